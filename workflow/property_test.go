package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_ConditionEvaluationNeverPanics(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	operators := gen.OneConstOf(
		string(OpEquals), string(OpContains), string(OpStartsWith),
		string(OpEndsWith), string(OpGreaterThan), string(OpLessThan),
		"regex", "",
	)

	properties.Property("evaluation is total over arbitrary inputs", prop.ForAll(
		func(field, fieldValue, condValue, operator string) bool {
			cond := Condition{Field: field, Operator: Operator(operator), Value: condValue}

			// Every message shape must evaluate without panicking.
			cond.Evaluate(map[string]any{field: fieldValue})
			cond.Evaluate(map[string]string{field: fieldValue})
			cond.Evaluate(fieldValue)
			cond.Evaluate(nil)
			cond.Evaluate(struct{ X int }{X: 1})
			return true
		},
		gen.AnyString(),
		gen.AnyString(),
		gen.AnyString(),
		operators,
	))

	properties.TestingRun(t)
}

func TestProperty_NumericComparisonConsistency(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("comparison operators agree with integer ordering", prop.ForAll(
		func(a, b int) bool {
			message := map[string]any{"x": a}

			gt := Condition{Field: "x", Operator: OpGreaterThan, Value: b}
			if gt.Evaluate(message) != (a > b) {
				t.Logf("greater_than mismatch for a=%d b=%d", a, b)
				return false
			}

			lt := Condition{Field: "x", Operator: OpLessThan, Value: b}
			if lt.Evaluate(message) != (a < b) {
				t.Logf("less_than mismatch for a=%d b=%d", a, b)
				return false
			}

			eq := Condition{Field: "x", Operator: OpEquals, Value: b}
			if eq.Evaluate(message) != (a == b) {
				t.Logf("equals mismatch for a=%d b=%d", a, b)
				return false
			}
			return true
		},
		gen.IntRange(-1_000_000, 1_000_000),
		gen.IntRange(-1_000_000, 1_000_000),
	))

	properties.Property("equals bridges int and float encodings", prop.ForAll(
		func(a int) bool {
			cond := Condition{Field: "x", Operator: OpEquals, Value: a}
			return cond.Evaluate(map[string]any{"x": float64(a)})
		},
		gen.IntRange(-1_000_000, 1_000_000),
	))

	properties.TestingRun(t)
}

func TestProperty_LinearChainExecutesInDeclaredOrder(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	properties.Property("a chain of n executors nests n applications", prop.ForAll(
		func(n int) bool {
			def := &Definition{Name: "chain", StartExecutor: "e0"}
			for i := 0; i < n; i++ {
				def.Executors = append(def.Executors, ExecutorConfig{
					Type: ExecutorAgent,
					Name: fmt.Sprintf("e%d", i),
				})
				if i > 0 {
					def.Edges = append(def.Edges, EdgeConfig{
						FromExecutor: fmt.Sprintf("e%d", i-1),
						ToExecutor:   fmt.Sprintf("e%d", i),
						EdgeType:     EdgeDirect,
					})
				}
			}

			client := &stubAgentClient{
				run: func(spec AgentSpec, message string) (string, error) {
					return spec.Name + "(" + message + ")", nil
				},
			}
			g, err := testBuilder(client, stubRegistry{}).Build(def)
			if err != nil {
				t.Logf("build failed: %v", err)
				return false
			}

			res, err := NewEngine(nil).Run(context.Background(), g, "in")
			if err != nil {
				t.Logf("run failed: %v", err)
				return false
			}

			want := "in"
			for i := 0; i < n; i++ {
				want = fmt.Sprintf("e%d(%s)", i, want)
			}
			if res.Output != want {
				t.Logf("output %q, want %q", res.Output, want)
				return false
			}
			return true
		},
		gen.IntRange(1, 6),
	))

	properties.TestingRun(t)
}

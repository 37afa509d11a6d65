package workflow

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Operator compares a message field against a condition value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpStartsWith  Operator = "starts_with"
	OpEndsWith    Operator = "ends_with"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// Condition routes a conditional edge: the named field is looked up on
// the current message and compared against Value with Operator.
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// Evaluate reports whether the condition matches the message. It is
// deterministic, side-effect-free, and never panics: an unresolvable
// field, an unknown operator, or a failed numeric coercion all yield
// false. The engine logs the evaluation error when one occurs.
func (c *Condition) Evaluate(message any) bool {
	ok, _ := c.evaluate(message)
	return ok
}

// evaluate is Evaluate with the reportable error preserved so callers
// can log coercion failures and unknown operators.
func (c *Condition) evaluate(message any) (bool, error) {
	fieldValue, found := lookupField(message, c.Field)
	if !found {
		return false, nil
	}

	switch c.Operator {
	case OpEquals:
		return valuesEqual(fieldValue, c.Value), nil
	case OpContains:
		return strings.Contains(stringify(fieldValue), stringify(c.Value)), nil
	case OpStartsWith:
		return strings.HasPrefix(stringify(fieldValue), stringify(c.Value)), nil
	case OpEndsWith:
		return strings.HasSuffix(stringify(fieldValue), stringify(c.Value)), nil
	case OpGreaterThan:
		a, b, err := coercePair(fieldValue, c.Value)
		if err != nil {
			return false, err
		}
		return a > b, nil
	case OpLessThan:
		a, b, err := coercePair(fieldValue, c.Value)
		if err != nil {
			return false, err
		}
		return a < b, nil
	default:
		return false, fmt.Errorf("unknown operator: %s", c.Operator)
	}
}

// lookupField resolves the condition field on the message: map key for
// mappings, exported struct field (case-insensitive) otherwise.
func lookupField(message any, field string) (any, bool) {
	switch m := message.(type) {
	case map[string]any:
		v, ok := m[field]
		return v, ok
	case map[string]string:
		v, ok := m[field]
		return v, ok
	}

	rv := reflect.ValueOf(message)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	fv := rv.FieldByNameFunc(func(name string) bool {
		return strings.EqualFold(name, field)
	})
	if !fv.IsValid() || !fv.CanInterface() {
		return nil, false
	}
	return fv.Interface(), true
}

// valuesEqual compares numerically when both sides coerce to numbers,
// otherwise by string form. This keeps 5 equal to 5.0 across the JSON
// decoding boundary.
func valuesEqual(a, b any) bool {
	if fa, fb, err := coercePair(a, b); err == nil {
		return fa == fb
	}
	return stringify(a) == stringify(b)
}

// coercePair converts both operands to float64, or reports which side
// failed.
func coercePair(a, b any) (float64, float64, error) {
	fa, err := toFloat(a)
	if err != nil {
		return 0, 0, fmt.Errorf("field value %v is not numeric: %w", a, err)
	}
	fb, err := toFloat(b)
	if err != nil {
		return 0, 0, fmt.Errorf("condition value %v is not numeric: %w", b, err)
	}
	return fa, fb, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return strconv.ParseFloat(strings.TrimSpace(stringify(v)), 64)
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/flowgraph/llm"
)

func noopTool(name string) Tool {
	return Tool{
		Schema: llm.ToolSchema{
			Name:       name,
			Parameters: json.RawMessage(`{"type":"object"}`),
		},
		Call: func(context.Context, map[string]any) (string, error) {
			return name, nil
		},
	}
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(noopTool("alpha"))

	fn, ok := r.Resolve("alpha")
	require.True(t, ok)
	out, err := fn(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "alpha", out)

	_, ok = r.Resolve("beta")
	assert.False(t, ok)
}

func TestRegistry_SchemasDropsUnknownNames(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(noopTool("alpha"))
	r.Register(noopTool("beta"))

	schemas := r.Schemas([]string{"alpha", "ghost", "beta"})
	require.Len(t, schemas, 2)
	assert.Equal(t, "alpha", schemas[0].Name)
	assert.Equal(t, "beta", schemas[1].Name)
}

func TestRegistry_SchemasNilMeansAll(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(noopTool("beta"))
	r.Register(noopTool("alpha"))

	schemas := r.Schemas(nil)
	require.Len(t, schemas, 2)
	assert.Equal(t, "alpha", schemas[0].Name)
	assert.Equal(t, "beta", schemas[1].Name)
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(nil)
	assert.Equal(t, []string{ExecuteCommandName}, r.Names())
}

package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteCommand_Output(t *testing.T) {
	tool := ExecuteCommand(nil)

	out, err := tool.Call(context.Background(), map[string]any{
		"command": "echo hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestExecuteCommand_WorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	tool := ExecuteCommand(nil)

	out, err := tool.Call(context.Background(), map[string]any{
		"command":           "pwd",
		"working_directory": dir,
	})
	require.NoError(t, err)
	assert.Contains(t, out, dir)
}

func TestExecuteCommand_EmptyOutput(t *testing.T) {
	tool := ExecuteCommand(nil)

	out, err := tool.Call(context.Background(), map[string]any{
		"command": "true",
	})
	require.NoError(t, err)
	assert.Equal(t, "Command executed successfully", out)
}

func TestExecuteCommand_NonZeroExit(t *testing.T) {
	tool := ExecuteCommand(nil)

	out, err := tool.Call(context.Background(), map[string]any{
		"command": "sh -c 'echo oops >&2; exit 3'",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Command failed (exit code 3)")
	assert.Contains(t, out, "oops")
}

func TestExecuteCommand_FallsBackToInput(t *testing.T) {
	tool := ExecuteCommand(nil)

	// A function executor delivers the message under "input".
	out, err := tool.Call(context.Background(), map[string]any{
		"input": "echo from-input",
	})
	require.NoError(t, err)
	assert.Equal(t, "from-input", out)
}

func TestExecuteCommand_MissingCommand(t *testing.T) {
	tool := ExecuteCommand(nil)

	out, err := tool.Call(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Error executing command: no command provided", out)
}

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowgraph/llm"
)

// ExecuteCommandName is the registry name of the shell tool.
const ExecuteCommandName = "execute_command"

// commandTimeout bounds one shell invocation.
const commandTimeout = 5 * time.Minute

var executeCommandSchema = llm.ToolSchema{
	Name:        ExecuteCommandName,
	Description: "Execute a shell command and return its output. Supports file operations, git operations, and any other CLI command.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "Command to execute (e.g., 'ls -la', 'git clone ...')"
			},
			"working_directory": {
				"type": "string",
				"description": "Working directory to execute the command in (default: current directory)"
			}
		},
		"required": ["command"]
	}`),
}

// ExecuteCommand returns the shell tool. All failure modes are
// reported in-band as output text so a workflow can route on them
// instead of aborting.
func ExecuteCommand(logger *zap.Logger) Tool {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "execute_command"))

	return Tool{
		Schema: executeCommandSchema,
		Call: func(ctx context.Context, params map[string]any) (string, error) {
			command, _ := params["command"].(string)
			if command == "" {
				// Function executors pass the current message under "input".
				command, _ = params["input"].(string)
			}
			if strings.TrimSpace(command) == "" {
				return "Error executing command: no command provided", nil
			}
			workingDir, _ := params["working_directory"].(string)
			if workingDir == "" {
				workingDir = "."
			}

			logger.Info("executing command",
				zap.String("command", command),
				zap.String("working_directory", workingDir),
			)
			return runShell(ctx, command, workingDir), nil
		},
	}
}

// runShell executes one command through the shell and renders the
// outcome as text.
func runShell(ctx context.Context, command, workingDir string) string {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workingDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := strings.TrimSpace(stdout.String())
	errText := strings.TrimSpace(stderr.String())

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "Command timed out after 5 minutes"
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Sprintf("Command failed (exit code %d):\n%s\n%s", exitErr.ExitCode(), errText, output)
		}
		return fmt.Sprintf("Error executing command: %v", err)
	}
	if output == "" {
		return "Command executed successfully"
	}
	return output
}

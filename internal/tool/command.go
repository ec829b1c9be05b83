package tool

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

// ExecuteCommand runs a shell command and captures combined output and
// exit status. A non-zero exit is not an invocation error; it is
// surfaced through Output.ExitStatus for exit_status validations.
// Params: command (required).
type ExecuteCommand struct {
	workDir string
}

// NewExecuteCommand creates a command adapter running in workDir.
func NewExecuteCommand(workDir string) *ExecuteCommand {
	return &ExecuteCommand{workDir: workDir}
}

func (a *ExecuteCommand) Name() string { return models.OpExecuteCommand }

func (a *ExecuteCommand) Invoke(ctx context.Context, params map[string]string) (Output, error) {
	command, err := requireParam(params, "command")
	if err != nil {
		return Output{}, err
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if a.workDir != "" {
		cmd.Dir = a.workDir
	}

	raw, err := cmd.CombinedOutput()
	output := strings.TrimRight(string(raw), "\n")

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// The command ran to completion with a non-zero status.
			return Output{Value: output, ExitStatus: exitErr.ExitCode()}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Output{Value: output}, ctxErr
		}
		return Output{}, fmt.Errorf("execute command: %w", err)
	}

	return Output{Value: output, ExitStatus: 0}, nil
}

package cmd

import (
	"errors"
	"fmt"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

// Process exit codes.
const (
	ExitOK           = 0
	ExitValidation   = 1 // a validation (step or postcondition) failed
	ExitToolError    = 2 // a tool invocation or timeout failed
	ExitPrecondition = 3 // a plan precondition failed
	ExitMalformed    = 4 // the plan document is malformed
)

// ExitError carries a process exit code through cobra's error return.
// main unwraps it into os.Exit.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitForError maps a typed error to its exit code.
func exitForError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return &ExitError{Code: codeForKind(models.ClassifyError(err)), Err: err}
}

// exitForReport maps a terminal execution report to its exit code.
func exitForReport(report *models.ExecutionReport) error {
	if report.Succeeded() {
		return nil
	}
	code := codeForKind(report.ErrorKind)
	return &ExitError{Code: code, Err: fmt.Errorf("execution ended %s: %s", report.Status, report.Error)}
}

func codeForKind(kind string) int {
	switch kind {
	case models.ErrKindParse, models.ErrKindDependency:
		return ExitMalformed
	case models.ErrKindPrecondition:
		return ExitPrecondition
	case models.ErrKindTool, models.ErrKindTimeout:
		return ExitToolError
	default:
		return ExitValidation
	}
}

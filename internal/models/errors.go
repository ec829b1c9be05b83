package models

import (
	"errors"
	"fmt"
)

// PlanParseError reports a malformed plan: missing required fields,
// unknown operations or validation kinds, dangling or cyclic
// dependencies. It is fatal and execution never starts.
type PlanParseError struct {
	Reason string
	Err    error
}

func (e *PlanParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plan parse: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("plan parse: %s", e.Reason)
}

func (e *PlanParseError) Unwrap() error { return e.Err }

// PreconditionFailure reports a failed plan precondition, surfaced
// before any step runs.
type PreconditionFailure struct {
	Kind    string
	Message string
}

func (e *PreconditionFailure) Error() string {
	return fmt.Sprintf("precondition %s failed: %s", e.Kind, e.Message)
}

// DependencyResolutionError reports a variable reference to a step that
// has not produced output. It is fatal for the referencing step, never
// retried, and indicates a malformed plan.
type DependencyResolutionError struct {
	Step int // the referencing step
	Ref  int // the referenced step with no output
}

func (e *DependencyResolutionError) Error() string {
	return fmt.Sprintf("step %d: reference to step %d which has not produced output", e.Step, e.Ref)
}

// StepValidationFailure reports a failed post-step validation. It is
// recoverable and governed entirely by the step's error policy.
type StepValidationFailure struct {
	Step    int
	Kind    string
	Message string
}

func (e *StepValidationFailure) Error() string {
	return fmt.Sprintf("step %d: validation %s failed: %s", e.Step, e.Kind, e.Message)
}

// ToolInvocationError reports a failed tool adapter call. It is
// recoverable and governed entirely by the step's error policy.
type ToolInvocationError struct {
	Step      int
	Operation string
	Err       error
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("step %d: %s invocation failed: %v", e.Step, e.Operation, e.Err)
}

func (e *ToolInvocationError) Unwrap() error { return e.Err }

// TimeoutError reports a step that exceeded its deadline. It is treated
// as a step failure subject to the step's error policy.
type TimeoutError struct {
	Step int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %d: timed out", e.Step)
}

// Error kind tags carried in execution reports.
const (
	ErrKindParse        = "plan_parse"
	ErrKindPrecondition = "precondition"
	ErrKindDependency   = "dependency_resolution"
	ErrKindValidation   = "validation"
	ErrKindTool         = "tool_invocation"
	ErrKindTimeout      = "timeout"
	ErrKindOther        = "other"
)

// ClassifyError maps an error to its taxonomy tag.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}
	var (
		parseErr   *PlanParseError
		preErr     *PreconditionFailure
		depErr     *DependencyResolutionError
		valErr     *StepValidationFailure
		toolErr    *ToolInvocationError
		timeoutErr *TimeoutError
	)
	switch {
	case errors.As(err, &parseErr):
		return ErrKindParse
	case errors.As(err, &preErr):
		return ErrKindPrecondition
	case errors.As(err, &depErr):
		return ErrKindDependency
	case errors.As(err, &valErr):
		return ErrKindValidation
	case errors.As(err, &timeoutErr):
		return ErrKindTimeout
	case errors.As(err, &toolErr):
		return ErrKindTool
	default:
		return ErrKindOther
	}
}

package models

import (
	"fmt"
	"time"
)

// Operation names the tool adapter accepts. Every step invokes exactly
// one of these; anything else is a load-time error.
const (
	OpReadArtifact   = "read_artifact"
	OpWriteArtifact  = "write_artifact"
	OpExecuteCommand = "execute_command"
	OpFetchResource  = "fetch_resource"
	OpDelegate       = "delegate"
)

// KnownOperations maps valid operation names for structural validation.
var KnownOperations = map[string]bool{
	OpReadArtifact:   true,
	OpWriteArtifact:  true,
	OpExecuteCommand: true,
	OpFetchResource:  true,
	OpDelegate:       true,
}

// Error policy actions.
const (
	ActionRetry    = "retry"
	ActionSkip     = "skip"
	ActionFail     = "fail"
	ActionEscalate = "escalate"
)

// ErrorPolicy is a per-step declarative failure-handling rule.
type ErrorPolicy struct {
	Action     string        `json:"action"`
	MaxRetries int           `json:"max_retries,omitempty"` // additional attempts for retry
	RetryDelay time.Duration `json:"retry_delay,omitempty"` // wait between attempts
	OnExhaust  string        `json:"on_exhaust,omitempty"`  // action after retries run out, default fail
}

// Validate checks the policy for structural errors.
func (ep *ErrorPolicy) Validate(stepIndex int) error {
	action := ep.Action
	if action == "" {
		action = ActionFail
	}
	switch action {
	case ActionRetry:
		if ep.MaxRetries < 1 {
			return &PlanParseError{Reason: fmt.Sprintf("step %d: retry policy requires max_retries >= 1", stepIndex)}
		}
		switch ep.OnExhaust {
		case "", ActionSkip, ActionFail, ActionEscalate:
		default:
			return &PlanParseError{Reason: fmt.Sprintf("step %d: invalid on_exhaust action %q", stepIndex, ep.OnExhaust)}
		}
	case ActionSkip, ActionFail, ActionEscalate:
	default:
		return &PlanParseError{Reason: fmt.Sprintf("step %d: invalid error policy action %q", stepIndex, ep.Action)}
	}
	return nil
}

// Step is one replayable operation in a plan: a single tool call with
// its validations, error policy, and dependencies on earlier steps.
type Step struct {
	Index       int               `json:"index"` // 1-based position, unique within the plan
	Description string            `json:"description"`
	Operation   string            `json:"operation"`
	Params      map[string]string `json:"params,omitempty"`
	Validations []Validation      `json:"validations,omitempty"`
	OnError     ErrorPolicy       `json:"on_error"`
	DependsOn   []int             `json:"depends_on,omitempty"`
	Timeout     time.Duration     `json:"timeout,omitempty"` // per-step deadline, 0 means the executor default
}

// Validate checks the step has all required fields and known values.
func (s *Step) Validate() error {
	if s.Index < 1 {
		return &PlanParseError{Reason: fmt.Sprintf("step %d: index must be >= 1", s.Index)}
	}
	if s.Operation == "" {
		return &PlanParseError{Reason: fmt.Sprintf("step %d: operation is required", s.Index)}
	}
	if !KnownOperations[s.Operation] {
		return &PlanParseError{Reason: fmt.Sprintf("step %d: unknown operation %q", s.Index, s.Operation)}
	}
	for _, v := range s.Validations {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return s.OnError.Validate(s.Index)
}

// CloneParams returns a copy of the step's parameter map. The executor
// hands only copies to tool adapters so the stored step stays immutable
// for the lifetime of the process.
func (s *Step) CloneParams() map[string]string {
	if s.Params == nil {
		return map[string]string{}
	}
	clone := make(map[string]string, len(s.Params))
	for k, v := range s.Params {
		clone[k] = v
	}
	return clone
}

// PolicyAction returns the effective error policy action, defaulting to fail.
func (s *Step) PolicyAction() string {
	if s.OnError.Action == "" {
		return ActionFail
	}
	return s.OnError.Action
}

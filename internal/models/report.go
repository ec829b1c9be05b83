package models

import "time"

// Overall execution statuses.
const (
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusDegraded   = "success_with_degradation"
	StatusIncomplete = "incomplete"
)

// Per-step statuses.
const (
	StepPending  = "pending"
	StepSuccess  = "success"
	StepFailed   = "failed"
	StepDegraded = "degraded" // failed but skipped per policy, output bound to the null sentinel
)

// NullSentinel is the output value bound to a step skipped by its error
// policy. Dependents must treat it as a valid, empty value.
const NullSentinel = ""

// StepResult records the outcome of one step execution, including every
// attempt and validation run.
type StepResult struct {
	Index       int                 `json:"index"`
	Status      string              `json:"status"`
	Attempts    int                 `json:"attempts"` // total tool invocations for this step
	Retries     int                 `json:"retries"`  // attempts beyond the first
	Output      string              `json:"output,omitempty"`
	OutputRef   string              `json:"output_ref,omitempty"` // reference to raw output (file path, URL)
	Validations []ValidationOutcome `json:"validations,omitempty"`
	Error       string              `json:"error,omitempty"`
	Duration    time.Duration       `json:"duration"`
}

// ExecutionReport is the complete, always-delivered record of a plan
// execution. Partial progress is reported even when execution aborts.
type ExecutionReport struct {
	RunID         string        `json:"run_id"`
	PlanID        string        `json:"plan_id"`
	PlanVersion   int           `json:"plan_version"`
	Status        string        `json:"status"`
	Steps         []StepResult  `json:"steps"`
	TotalTime     time.Duration `json:"total_time"`
	EstimatedCost float64       `json:"estimated_cost"`
	FailedStep    int           `json:"failed_step,omitempty"` // index of the fatally failing step, 0 if none
	Escalate      bool          `json:"escalate,omitempty"`    // set when a step requested learner intervention
	Error         string        `json:"error,omitempty"`       // fatal error surfaced verbatim
	ErrorKind     string        `json:"error_kind,omitempty"`  // taxonomy tag of the fatal error, see ClassifyError
	StartedAt     time.Time     `json:"started_at"`
}

// Succeeded reports whether the run is a terminal success, with or
// without degraded steps.
func (r *ExecutionReport) Succeeded() bool {
	return r.Status == StatusSuccess || r.Status == StatusDegraded
}

// CountsForSuccessRate reports whether this run participates in success
// rate recomputation. Incomplete runs (escalation, timeout, cancel) are
// excluded so a plan is not penalized for learner-side limitations.
func (r *ExecutionReport) CountsForSuccessRate() bool {
	return r.Status == StatusSuccess || r.Status == StatusDegraded || r.Status == StatusFailed
}

package models

import "fmt"

// Validation kinds. Each is a pure, read-only check of a step outcome.
const (
	CheckExists     = "exists"      // file at Path exists
	CheckNotEmpty   = "not_empty"   // output (or file at Path) is non-empty
	CheckContains   = "contains"    // output contains Substring
	CheckExitStatus = "exit_status" // captured exit status equals ExitStatus
	CheckMinSize    = "min_size"    // output (or file at Path) is at least MinBytes
)

// KnownValidationKinds maps valid validation kinds for structural validation.
var KnownValidationKinds = map[string]bool{
	CheckExists:     true,
	CheckNotEmpty:   true,
	CheckContains:   true,
	CheckExitStatus: true,
	CheckMinSize:    true,
}

// Validation declares one post-step correctness check. Checks that name a
// Path inspect the filesystem read-only; all others inspect the captured
// step output. Validations never mutate state, so the executor can re-run
// them freely during retries.
type Validation struct {
	Kind       string `json:"kind"`
	Path       string `json:"path,omitempty"`        // exists, not_empty, min_size
	Substring  string `json:"substring,omitempty"`   // contains
	ExitStatus int    `json:"exit_status,omitempty"` // exit_status
	MinBytes   int64  `json:"min_bytes,omitempty"`   // min_size
}

// Validate checks the validation declaration itself for structural errors.
func (v *Validation) Validate() error {
	if !KnownValidationKinds[v.Kind] {
		return &PlanParseError{Reason: fmt.Sprintf("unknown validation kind %q", v.Kind)}
	}
	switch v.Kind {
	case CheckExists:
		if v.Path == "" {
			return &PlanParseError{Reason: "exists validation requires a path"}
		}
	case CheckContains:
		if v.Substring == "" {
			return &PlanParseError{Reason: "contains validation requires a substring"}
		}
	case CheckMinSize:
		if v.MinBytes < 1 {
			return &PlanParseError{Reason: "min_size validation requires min_bytes >= 1"}
		}
	}
	return nil
}

// ValidationOutcome is the recorded result of one validation run.
type ValidationOutcome struct {
	Kind    string `json:"kind"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

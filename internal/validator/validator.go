// Package validator implements the pure post-step correctness checks.
// Every check is read-only: it inspects the captured step output or
// stats a file, never mutating anything, so the executor can safely
// re-run validations during retries.
package validator

import (
	"fmt"
	"os"
	"strings"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

// StepOutcome is the observable result of a step a validation runs against.
type StepOutcome struct {
	Output     string
	ExitStatus int
}

// Check runs a single validation against a step outcome and returns the
// recorded result. Unknown kinds fail closed; they should have been
// rejected at load time.
func Check(v models.Validation, outcome StepOutcome) models.ValidationOutcome {
	switch v.Kind {
	case models.CheckExists:
		return checkExists(v)
	case models.CheckNotEmpty:
		return checkNotEmpty(v, outcome)
	case models.CheckContains:
		return checkContains(v, outcome)
	case models.CheckExitStatus:
		return checkExitStatus(v, outcome)
	case models.CheckMinSize:
		return checkMinSize(v, outcome)
	default:
		return models.ValidationOutcome{
			Kind:    v.Kind,
			Passed:  false,
			Message: fmt.Sprintf("unknown validation kind %q", v.Kind),
		}
	}
}

// CheckAll runs every validation in order and returns all outcomes plus
// whether they all passed. It never short-circuits: the report records
// every outcome even after the first failure.
func CheckAll(validations []models.Validation, outcome StepOutcome) ([]models.ValidationOutcome, bool) {
	results := make([]models.ValidationOutcome, 0, len(validations))
	allPassed := true
	for _, v := range validations {
		result := Check(v, outcome)
		if !result.Passed {
			allPassed = false
		}
		results = append(results, result)
	}
	return results, allPassed
}

func checkExists(v models.Validation) models.ValidationOutcome {
	if _, err := os.Stat(v.Path); err != nil {
		return fail(v.Kind, fmt.Sprintf("path %s does not exist: %v", v.Path, err))
	}
	return pass(v.Kind, fmt.Sprintf("path %s exists", v.Path))
}

func checkNotEmpty(v models.Validation, outcome StepOutcome) models.ValidationOutcome {
	// With a path, check the file; otherwise check the captured output.
	if v.Path != "" {
		info, err := os.Stat(v.Path)
		if err != nil {
			return fail(v.Kind, fmt.Sprintf("path %s does not exist: %v", v.Path, err))
		}
		if info.Size() == 0 {
			return fail(v.Kind, fmt.Sprintf("path %s is empty", v.Path))
		}
		return pass(v.Kind, fmt.Sprintf("path %s is non-empty", v.Path))
	}
	if strings.TrimSpace(outcome.Output) == "" {
		return fail(v.Kind, "step output is empty")
	}
	return pass(v.Kind, "step output is non-empty")
}

func checkContains(v models.Validation, outcome StepOutcome) models.ValidationOutcome {
	if !strings.Contains(outcome.Output, v.Substring) {
		return fail(v.Kind, fmt.Sprintf("step output does not contain %q", v.Substring))
	}
	return pass(v.Kind, fmt.Sprintf("step output contains %q", v.Substring))
}

func checkExitStatus(v models.Validation, outcome StepOutcome) models.ValidationOutcome {
	if outcome.ExitStatus != v.ExitStatus {
		return fail(v.Kind, fmt.Sprintf("exit status %d, expected %d", outcome.ExitStatus, v.ExitStatus))
	}
	return pass(v.Kind, fmt.Sprintf("exit status is %d", v.ExitStatus))
}

func checkMinSize(v models.Validation, outcome StepOutcome) models.ValidationOutcome {
	if v.Path != "" {
		info, err := os.Stat(v.Path)
		if err != nil {
			return fail(v.Kind, fmt.Sprintf("path %s does not exist: %v", v.Path, err))
		}
		if info.Size() < v.MinBytes {
			return fail(v.Kind, fmt.Sprintf("path %s is %d bytes, expected at least %d", v.Path, info.Size(), v.MinBytes))
		}
		return pass(v.Kind, fmt.Sprintf("path %s is at least %d bytes", v.Path, v.MinBytes))
	}
	if int64(len(outcome.Output)) < v.MinBytes {
		return fail(v.Kind, fmt.Sprintf("step output is %d bytes, expected at least %d", len(outcome.Output), v.MinBytes))
	}
	return pass(v.Kind, fmt.Sprintf("step output is at least %d bytes", v.MinBytes))
}

func pass(kind, message string) models.ValidationOutcome {
	return models.ValidationOutcome{Kind: kind, Passed: true, Message: message}
}

func fail(kind, message string) models.ValidationOutcome {
	return models.ValidationOutcome{Kind: kind, Passed: false, Message: message}
}

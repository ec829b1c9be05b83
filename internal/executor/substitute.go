package executor

import (
	"regexp"
	"sort"
	"strconv"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

// stepRefPattern is the variable substitution syntax: ${steps.N.output}
// resolves to the captured output of step N.
var stepRefPattern = regexp.MustCompile(`\$\{steps\.(\d+)\.output\}`)

// ResolveParams returns a copy of a step's parameters with every step
// output reference substituted. A reference to a step with no recorded
// output is a *DependencyResolutionError: fatal for the referencing
// step, never retried, and no tool invocation happens.
func ResolveParams(stepIndex int, params map[string]string, outputs map[int]string) (map[string]string, error) {
	resolved := make(map[string]string, len(params))
	for key, value := range params {
		substituted, err := resolveValue(stepIndex, value, outputs)
		if err != nil {
			return nil, err
		}
		resolved[key] = substituted
	}
	return resolved, nil
}

func resolveValue(stepIndex int, value string, outputs map[int]string) (string, error) {
	var resolveErr error

	result := stepRefPattern.ReplaceAllStringFunc(value, func(match string) string {
		if resolveErr != nil {
			return match
		}
		ref, _ := strconv.Atoi(stepRefPattern.FindStringSubmatch(match)[1])
		output, ok := outputs[ref]
		if !ok {
			resolveErr = &models.DependencyResolutionError{Step: stepIndex, Ref: ref}
			return match
		}
		return output
	})

	if resolveErr != nil {
		return "", resolveErr
	}
	return result, nil
}

// References lists the step indices a parameter map refers to, in
// ascending order. It lets callers check resolvability against the
// declared step order without executing anything.
func References(params map[string]string) []int {
	seen := make(map[int]bool)
	var refs []int
	for _, value := range params {
		for _, match := range stepRefPattern.FindAllStringSubmatch(value, -1) {
			ref, _ := strconv.Atoi(match[1])
			if !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
		}
	}
	sort.Ints(refs)
	return refs
}

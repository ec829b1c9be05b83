package models

import (
	"fmt"
	"time"
)

// Risk levels a plan may declare. Matching is gated on the caller's
// risk tolerance: a plan is only eligible if its level is at or below it.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// TrustMetadata holds the mutable trust state of a plan. It is the only
// part of a stored plan that is ever rewritten; step content changes
// require a new plan version.
type TrustMetadata struct {
	Confidence  float64   `json:"confidence"`   // replay eligibility score in [0,1]
	UsageCount  int       `json:"usage_count"`  // total terminal executions
	SuccessRate float64   `json:"success_rate"` // successes / (successes + failures), incompletes excluded
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
}

// Plan is a stored, versioned, deterministic workflow description.
// Steps are immutable once loaded: the executor replays them with zero
// deviation, and any need to adapt a parameter means a new version.
type Plan struct {
	ID             string        `json:"id"`
	Version        int           `json:"version"`
	GoalSignature  string        `json:"goal_signature"` // text matched against incoming goals
	Tags           []string      `json:"tags,omitempty"` // task type tags for structured filtering
	RiskLevel      string        `json:"risk_level"`
	EstimatedCost  float64       `json:"estimated_cost"`
	EstimatedTime  time.Duration `json:"estimated_time"`
	Preconditions  []Validation  `json:"preconditions,omitempty"`
	Postconditions []Validation  `json:"postconditions,omitempty"`
	Steps          []Step        `json:"steps"`
	Trust          TrustMetadata `json:"trust"`
}

// Key returns the "id@vN" form used in logs and the execution store.
func (p *Plan) Key() string {
	return fmt.Sprintf("%s@v%d", p.ID, p.Version)
}

// Validate checks the plan for structural errors: missing required
// fields, invalid step definitions, dangling or cyclic dependencies.
// Any violation is returned as a *PlanParseError so execution never starts.
func (p *Plan) Validate() error {
	if p.ID == "" {
		return &PlanParseError{Reason: "plan id is required"}
	}
	if p.Version < 1 {
		return &PlanParseError{Reason: fmt.Sprintf("plan %s: version must be >= 1", p.ID)}
	}
	if p.GoalSignature == "" {
		return &PlanParseError{Reason: fmt.Sprintf("plan %s: goal signature is required", p.ID)}
	}
	if len(p.Steps) == 0 {
		return &PlanParseError{Reason: fmt.Sprintf("plan %s: at least one step is required", p.ID)}
	}
	if p.RiskLevel != "" && p.RiskLevel != RiskLow && p.RiskLevel != RiskMedium && p.RiskLevel != RiskHigh {
		return &PlanParseError{Reason: fmt.Sprintf("plan %s: invalid risk level %q", p.ID, p.RiskLevel)}
	}

	seen := make(map[int]bool, len(p.Steps))
	for i := range p.Steps {
		step := &p.Steps[i]
		if err := step.Validate(); err != nil {
			return err
		}
		if seen[step.Index] {
			return &PlanParseError{Reason: fmt.Sprintf("step %d: duplicate step index", step.Index)}
		}
		seen[step.Index] = true
	}

	// Indices must run 1..N without gaps.
	for i := 1; i <= len(p.Steps); i++ {
		if !seen[i] {
			return &PlanParseError{Reason: fmt.Sprintf("plan %s: step indices must be contiguous from 1, missing %d", p.ID, i)}
		}
	}

	// Dependencies must point at existing, earlier steps.
	for i := range p.Steps {
		step := &p.Steps[i]
		for _, dep := range step.DependsOn {
			if !seen[dep] {
				return &PlanParseError{Reason: fmt.Sprintf("step %d: depends on non-existent step %d", step.Index, dep)}
			}
			if dep >= step.Index {
				return &PlanParseError{Reason: fmt.Sprintf("step %d: dependency %d must reference an earlier step", step.Index, dep)}
			}
		}
	}

	for _, v := range p.Preconditions {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	for _, v := range p.Postconditions {
		if err := v.Validate(); err != nil {
			return err
		}
	}

	if HasCyclicDependencies(p.Steps) {
		return &PlanParseError{Reason: fmt.Sprintf("plan %s: cyclic step dependencies", p.ID)}
	}

	return nil
}

// Eligible reports whether the plan's trust metadata clears the given
// dispatch thresholds for automatic replay.
func (p *Plan) Eligible(minConfidence, minSuccessRate float64) bool {
	return p.Trust.Confidence >= minConfidence && p.Trust.SuccessRate >= minSuccessRate
}

// riskRank orders risk levels for tolerance comparison. Unknown levels
// rank highest so they are never dispatched under a bounded tolerance.
func riskRank(level string) int {
	switch level {
	case RiskLow, "":
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return 3
	}
}

// WithinRiskTolerance reports whether the plan's risk level is at or
// below the given tolerance level.
func (p *Plan) WithinRiskTolerance(tolerance string) bool {
	return riskRank(p.RiskLevel) <= riskRank(tolerance)
}

// HasCyclicDependencies detects circular dependencies between steps
// using DFS with color marking (white=unvisited, gray=visiting, black=visited).
func HasCyclicDependencies(steps []Step) bool {
	graph := make(map[int][]int)
	stepSet := make(map[int]bool)

	for _, step := range steps {
		stepSet[step.Index] = true
		graph[step.Index] = []int{}
	}

	// Edge dep -> step: dep must complete before step.
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if dep == step.Index {
				return true
			}
			if stepSet[dep] {
				graph[dep] = append(graph[dep], step.Index)
			}
		}
	}

	const (
		white = 0 // not visited
		gray  = 1 // currently visiting
		black = 2 // visited
	)

	colors := make(map[int]int, len(stepSet))
	for idx := range stepSet {
		colors[idx] = white
	}

	var dfs func(int) bool
	dfs = func(node int) bool {
		colors[node] = gray

		for _, neighbor := range graph[node] {
			if colors[neighbor] == gray {
				// Back edge found - cycle detected
				return true
			}
			if colors[neighbor] == white && dfs(neighbor) {
				return true
			}
		}

		colors[node] = black
		return false
	}

	for idx := range stepSet {
		if colors[idx] == white {
			if dfs(idx) {
				return true
			}
		}
	}

	return false
}

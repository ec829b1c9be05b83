// Package matcher decides whether an incoming goal can reuse a stored
// plan. Retrieval is hybrid and staged: a structured filter on trust
// metadata, tags, and risk runs first, then the survivors are ranked by
// textual similarity of the goal against each candidate's goal
// signature. The stages are independently testable, and the similarity
// scorer is an injected collaborator.
package matcher

import (
	"context"
	"fmt"
	"sort"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

// Default dispatch thresholds. A plan below either is never returned
// for automatic replay, however good its textual match.
const (
	DefaultMinConfidence  = 0.9
	DefaultMinSuccessRate = 0.85
)

// Constraints narrows the candidate set for one goal.
type Constraints struct {
	Tags           []string // every tag must be present on the plan
	MinConfidence  float64  // 0 means DefaultMinConfidence
	MinSuccessRate float64  // 0 means DefaultMinSuccessRate
	RiskTolerance  string   // highest acceptable risk level, "" means low
	MinSimilarity  float64  // rank-stage floor, 0 accepts any positive score
}

func (c Constraints) minConfidence() float64 {
	if c.MinConfidence > 0 {
		return c.MinConfidence
	}
	return DefaultMinConfidence
}

func (c Constraints) minSuccessRate() float64 {
	if c.MinSuccessRate > 0 {
		return c.MinSuccessRate
	}
	return DefaultMinSuccessRate
}

// CandidateSource lists the plans eligible for matching, newest version
// of each. The plan store satisfies this.
type CandidateSource interface {
	ListLatest(ctx context.Context) ([]*models.Plan, error)
}

// Matcher finds the best eligible stored plan for a goal.
type Matcher struct {
	source CandidateSource
	scorer Scorer
}

// New creates a Matcher. A nil scorer gets the default keyword scorer.
func New(source CandidateSource, scorer Scorer) *Matcher {
	if scorer == nil {
		scorer = NewKeywordScorer()
	}
	return &Matcher{source: source, scorer: scorer}
}

// Find returns the best eligible plan for the goal, or nil when no
// stored plan survives filtering and ranking. A nil result signals
// learner escalation, not an error.
func (m *Matcher) Find(ctx context.Context, goal string, constraints Constraints) (*models.Plan, error) {
	candidates, err := m.source.ListLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	survivors := Filter(candidates, constraints)
	if len(survivors) == 0 {
		return nil, nil
	}

	return m.rank(goal, survivors, constraints), nil
}

// Filter applies the structured stage: trust thresholds, tag coverage,
// and risk tolerance. It is exported so the stage is testable on its
// own and reusable without ranking.
func Filter(candidates []*models.Plan, constraints Constraints) []*models.Plan {
	minConf := constraints.minConfidence()
	minRate := constraints.minSuccessRate()

	var survivors []*models.Plan
	for _, plan := range candidates {
		if !plan.Eligible(minConf, minRate) {
			continue
		}
		if !plan.WithinRiskTolerance(constraints.RiskTolerance) {
			continue
		}
		if !hasAllTags(plan, constraints.Tags) {
			continue
		}
		survivors = append(survivors, plan)
	}
	return survivors
}

func hasAllTags(plan *models.Plan, required []string) bool {
	if len(required) == 0 {
		return true
	}
	tagSet := make(map[string]bool, len(plan.Tags))
	for _, tag := range plan.Tags {
		tagSet[tag] = true
	}
	for _, tag := range required {
		if !tagSet[tag] {
			return false
		}
	}
	return true
}

// rank scores the survivors and picks the best. Ties break on highest
// confidence, then highest usage count, then most recently used.
func (m *Matcher) rank(goal string, survivors []*models.Plan, constraints Constraints) *models.Plan {
	type scored struct {
		plan  *models.Plan
		score float64
	}

	ranked := make([]scored, 0, len(survivors))
	for _, plan := range survivors {
		score := m.scorer.Score(goal, plan.GoalSignature)
		if score <= constraints.MinSimilarity {
			continue
		}
		ranked = append(ranked, scored{plan: plan, score: score})
	}
	if len(ranked) == 0 {
		return nil
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.plan.Trust.Confidence != b.plan.Trust.Confidence {
			return a.plan.Trust.Confidence > b.plan.Trust.Confidence
		}
		if a.plan.Trust.UsageCount != b.plan.Trust.UsageCount {
			return a.plan.Trust.UsageCount > b.plan.Trust.UsageCount
		}
		return a.plan.Trust.LastUsedAt.After(b.plan.Trust.LastUsedAt)
	})

	return ranked[0].plan
}

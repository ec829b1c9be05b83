// Package confidence maintains a plan's trust metadata from real
// execution outcomes. Successes earn trust slowly, approaching but
// never reaching 1.0; failures are punished multiplicatively so they
// are felt faster than successes are earned. Incomplete runs
// (escalation, timeout, cancellation) touch usage only.
package confidence

import (
	"context"
	"fmt"
	"time"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

// Default update factors.
const (
	DefaultGainFactor  = 0.1 // k in confidence += (1 - confidence) * k
	DefaultDecayFactor = 0.5 // d in confidence *= d
)

// TrustStore is the slice of the plan store the tracker needs.
type TrustStore interface {
	RecordExecution(ctx context.Context, report *models.ExecutionReport) error
	SuccessRate(ctx context.Context, planID string, version int) (rate float64, total int, err error)
	ApplyTrust(ctx context.Context, planID string, version int, mutate func(models.TrustMetadata) models.TrustMetadata) (models.TrustMetadata, error)
}

// Tracker records execution outcomes and updates plan trust.
type Tracker struct {
	store TrustStore
	gain  float64
	decay float64
	now   func() time.Time
}

// NewTracker creates a Tracker with the given factors. Zero factors get
// the defaults.
func NewTracker(store TrustStore, gain, decay float64) *Tracker {
	if gain <= 0 || gain >= 1 {
		gain = DefaultGainFactor
	}
	if decay <= 0 || decay >= 1 {
		decay = DefaultDecayFactor
	}
	return &Tracker{store: store, gain: gain, decay: decay, now: time.Now}
}

// Record persists the report and applies the trust update for its plan.
// It returns the trust metadata after the update.
func (t *Tracker) Record(ctx context.Context, report *models.ExecutionReport) (models.TrustMetadata, error) {
	if err := t.store.RecordExecution(ctx, report); err != nil {
		return models.TrustMetadata{}, fmt.Errorf("record execution: %w", err)
	}

	rate, total, err := t.store.SuccessRate(ctx, report.PlanID, report.PlanVersion)
	if err != nil {
		return models.TrustMetadata{}, fmt.Errorf("recompute success rate: %w", err)
	}

	now := t.now().UTC()
	return t.store.ApplyTrust(ctx, report.PlanID, report.PlanVersion, func(trust models.TrustMetadata) models.TrustMetadata {
		return t.apply(trust, report.Status, rate, total, now)
	})
}

// apply computes the next trust state for one terminal execution.
func (t *Tracker) apply(trust models.TrustMetadata, status string, rate float64, total int, now time.Time) models.TrustMetadata {
	trust.UsageCount++
	trust.LastUsedAt = now

	switch status {
	case models.StatusSuccess, models.StatusDegraded:
		trust.Confidence += (1 - trust.Confidence) * t.gain
	case models.StatusFailed:
		trust.Confidence *= t.decay
	case models.StatusIncomplete:
		// Neither reward nor penalty.
	}
	trust.Confidence = clamp01(trust.Confidence)

	// Success rate tracks counted history only; with no counted runs the
	// stored rate (seeded by the learner) is kept.
	if total > 0 {
		trust.SuccessRate = clamp01(rate)
	}

	return trust
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

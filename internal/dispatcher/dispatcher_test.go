package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/matcher"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

type stubFinder struct {
	plan *models.Plan
	err  error
}

func (f *stubFinder) Find(ctx context.Context, goal string, constraints matcher.Constraints) (*models.Plan, error) {
	return f.plan, f.err
}

type stubRunner struct {
	report *models.ExecutionReport
	calls  int
}

func (r *stubRunner) Execute(ctx context.Context, plan *models.Plan) *models.ExecutionReport {
	r.calls++
	r.report.PlanID = plan.ID
	r.report.PlanVersion = plan.Version
	return r.report
}

type stubTracker struct {
	trust    models.TrustMetadata
	err      error
	recorded []*models.ExecutionReport
}

func (t *stubTracker) Record(ctx context.Context, report *models.ExecutionReport) (models.TrustMetadata, error) {
	t.recorded = append(t.recorded, report)
	return t.trust, t.err
}

type stubWriter struct {
	saved []*models.Plan
	err   error
}

func (w *stubWriter) SavePlan(ctx context.Context, plan *models.Plan) error {
	w.saved = append(w.saved, plan)
	return w.err
}

type stubLearner struct {
	plan  *models.Plan
	err   error
	calls int
}

func (l *stubLearner) Solve(ctx context.Context, goal string) (*models.Plan, error) {
	l.calls++
	return l.plan, l.err
}

func storedPlan() *models.Plan {
	return &models.Plan{
		ID:            "deploy-service",
		Version:       2,
		GoalSignature: "deploy the service to staging",
		Steps: []models.Step{
			{Index: 1, Operation: models.OpExecuteCommand, Params: map[string]string{"command": "true"}},
		},
	}
}

func TestDispatch_MatchedPlanSucceeds(t *testing.T) {
	finder := &stubFinder{plan: storedPlan()}
	runner := &stubRunner{report: &models.ExecutionReport{Status: models.StatusSuccess}}
	tracker := &stubTracker{trust: models.TrustMetadata{Confidence: 0.92, UsageCount: 5}}

	d := New(finder, runner, tracker, &stubWriter{}, nil, nil, Config{})
	result, err := d.Dispatch(context.Background(), "deploy the service")
	require.NoError(t, err)

	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, []State{StateEvaluating, StateFollowerExec, StateDone}, result.Trace)
	assert.Equal(t, 1, runner.calls)
	require.NotNil(t, result.Trust)
	assert.InDelta(t, 0.92, result.Trust.Confidence, 1e-9)

	// Trust is recorded on the terminal transition.
	require.Len(t, tracker.recorded, 1)
	assert.Equal(t, "deploy-service", tracker.recorded[0].PlanID)
}

func TestDispatch_DegradedRunStillDone(t *testing.T) {
	finder := &stubFinder{plan: storedPlan()}
	runner := &stubRunner{report: &models.ExecutionReport{Status: models.StatusDegraded}}

	d := New(finder, runner, &stubTracker{}, &stubWriter{}, nil, nil, Config{})
	result, err := d.Dispatch(context.Background(), "deploy the service")
	require.NoError(t, err)

	assert.Equal(t, StateDone, result.State)
}

func TestDispatch_NoMatchEscalatesToLearner(t *testing.T) {
	learned := storedPlan()
	learned.Version = 3
	learner := &stubLearner{plan: learned}
	writer := &stubWriter{}

	d := New(&stubFinder{}, &stubRunner{}, &stubTracker{}, writer, learner, nil, Config{})
	result, err := d.Dispatch(context.Background(), "something novel")
	require.NoError(t, err)

	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, []State{StateEvaluating, StateLearnerExec, StateDone}, result.Trace)
	assert.Equal(t, 1, learner.calls)
	require.Len(t, writer.saved, 1, "the learner's plan must be persisted")
	assert.Same(t, learned, writer.saved[0])
	assert.Same(t, learned, result.LearnerPlan)
	assert.Nil(t, result.Report, "no replay happened")
}

func TestDispatch_NoMatchNoLearnerFails(t *testing.T) {
	d := New(&stubFinder{}, &stubRunner{}, &stubTracker{}, &stubWriter{}, nil, nil, Config{})
	result, err := d.Dispatch(context.Background(), "something novel")
	require.NoError(t, err)

	assert.Equal(t, StateFailed, result.State)
	assert.Equal(t, []State{StateEvaluating, StateLearnerExec, StateFailed}, result.Trace)
}

func TestDispatch_FailedReplayTerminalWithoutFallback(t *testing.T) {
	finder := &stubFinder{plan: storedPlan()}
	runner := &stubRunner{report: &models.ExecutionReport{Status: models.StatusFailed, FailedStep: 1}}
	tracker := &stubTracker{}
	learner := &stubLearner{plan: storedPlan()}

	d := New(finder, runner, tracker, &stubWriter{}, learner, nil, Config{})
	result, err := d.Dispatch(context.Background(), "deploy the service")
	require.NoError(t, err)

	assert.Equal(t, StateFailed, result.State)
	assert.Zero(t, learner.calls, "fallback is opt-in")
	require.Len(t, tracker.recorded, 1, "failed replays still update trust")
}

func TestDispatch_FailedReplayFallsBackToLearner(t *testing.T) {
	finder := &stubFinder{plan: storedPlan()}
	runner := &stubRunner{report: &models.ExecutionReport{Status: models.StatusFailed, FailedStep: 1}}
	tracker := &stubTracker{}
	learned := storedPlan()
	learned.Version = 3
	learner := &stubLearner{plan: learned}
	writer := &stubWriter{}

	d := New(finder, runner, tracker, writer, learner, nil, Config{FallbackToLearner: true})
	result, err := d.Dispatch(context.Background(), "deploy the service")
	require.NoError(t, err)

	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, []State{StateEvaluating, StateFollowerExec, StateLearnerExec, StateDone}, result.Trace)
	require.Len(t, tracker.recorded, 1, "trust recorded before escalation")
	require.Len(t, writer.saved, 1)
	assert.Equal(t, 3, writer.saved[0].Version)
}

func TestDispatch_EscalatedRunFallsBack(t *testing.T) {
	finder := &stubFinder{plan: storedPlan()}
	runner := &stubRunner{report: &models.ExecutionReport{Status: models.StatusIncomplete, Escalate: true}}
	learner := &stubLearner{plan: storedPlan()}

	d := New(finder, runner, &stubTracker{}, &stubWriter{}, learner, nil, Config{FallbackToLearner: true})
	result, err := d.Dispatch(context.Background(), "deploy the service")
	require.NoError(t, err)

	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, 1, learner.calls)
}

func TestDispatch_LearnerErrorSurfaces(t *testing.T) {
	learner := &stubLearner{err: errors.New("reasoning budget exhausted")}

	d := New(&stubFinder{}, &stubRunner{}, &stubTracker{}, &stubWriter{}, learner, nil, Config{})
	result, err := d.Dispatch(context.Background(), "something novel")

	require.Error(t, err)
	assert.Equal(t, StateFailed, result.State)
}

func TestDispatch_TrackerErrorSurfaces(t *testing.T) {
	finder := &stubFinder{plan: storedPlan()}
	runner := &stubRunner{report: &models.ExecutionReport{Status: models.StatusSuccess}}
	tracker := &stubTracker{err: errors.New("database is locked")}

	d := New(finder, runner, tracker, &stubWriter{}, nil, nil, Config{})
	result, err := d.Dispatch(context.Background(), "deploy the service")

	require.Error(t, err)
	assert.Equal(t, StateFailed, result.State)
	assert.NotNil(t, result.Report, "the report survives even when trust recording fails")
}

func TestDispatch_MatcherErrorSurfaces(t *testing.T) {
	finder := &stubFinder{err: errors.New("store unavailable")}

	d := New(finder, &stubRunner{}, &stubTracker{}, &stubWriter{}, nil, nil, Config{})
	result, err := d.Dispatch(context.Background(), "deploy the service")

	require.Error(t, err)
	assert.Equal(t, StateFailed, result.State)
}

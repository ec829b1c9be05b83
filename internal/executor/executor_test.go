package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/tool"
)

// scriptedAdapter lets tests control per-call outcomes and observe
// every invocation.
type scriptedAdapter struct {
	name string

	mu     sync.Mutex
	calls  []map[string]string
	script func(call int, params map[string]string) (tool.Output, error)
}

func (s *scriptedAdapter) Name() string { return s.name }

func (s *scriptedAdapter) Invoke(ctx context.Context, params map[string]string) (tool.Output, error) {
	if err := ctx.Err(); err != nil {
		return tool.Output{}, err
	}
	s.mu.Lock()
	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}
	s.calls = append(s.calls, copied)
	call := len(s.calls)
	s.mu.Unlock()

	if s.script == nil {
		return tool.Output{Value: "ok"}, nil
	}
	return s.script(call, params)
}

func (s *scriptedAdapter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func registryWith(adapters ...tool.Adapter) *tool.Registry {
	r := tool.NewRegistry()
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

func testPlan(steps ...models.Step) *models.Plan {
	return &models.Plan{
		ID:            "test-plan",
		Version:       1,
		GoalSignature: "exercise the executor",
		Steps:         steps,
	}
}

func TestExecute_ThreeStepArtifactScenario(t *testing.T) {
	workDir := t.TempDir()
	registry := tool.DefaultRegistry(workDir, nil)
	exec := New(registry, nil, Config{})

	plan := testPlan(
		models.Step{
			Index:     1,
			Operation: models.OpWriteArtifact,
			Params:    map[string]string{"path": "a.txt", "content": "hello"},
		},
		models.Step{
			Index:     2,
			Operation: models.OpReadArtifact,
			Params:    map[string]string{"path": "a.txt"},
			DependsOn: []int{1},
		},
		models.Step{
			Index:     3,
			Operation: models.OpWriteArtifact,
			Params:    map[string]string{"path": "summary.txt", "content": "summary: ${steps.2.output}"},
			DependsOn: []int{2},
			Validations: []models.Validation{
				{Kind: models.CheckContains, Substring: "hello"},
			},
		},
	)
	require.NoError(t, plan.Validate())

	report := exec.Execute(context.Background(), plan)

	assert.Equal(t, models.StatusSuccess, report.Status)
	require.Len(t, report.Steps, 3)
	for _, sr := range report.Steps {
		assert.Equal(t, models.StepSuccess, sr.Status, "step %d", sr.Index)
	}

	summary, err := os.ReadFile(filepath.Join(workDir, "summary.txt"))
	require.NoError(t, err)
	assert.Equal(t, "summary: hello", string(summary))

	_, err = os.Stat(filepath.Join(workDir, "a.txt"))
	assert.NoError(t, err, "both artifacts should exist")
}

func TestExecute_Deterministic(t *testing.T) {
	run := func() *models.ExecutionReport {
		workDir := t.TempDir()
		exec := New(tool.DefaultRegistry(workDir, nil), nil, Config{})
		plan := testPlan(
			models.Step{Index: 1, Operation: models.OpWriteArtifact, Params: map[string]string{"path": "x.txt", "content": "fixed"}},
			models.Step{Index: 2, Operation: models.OpReadArtifact, Params: map[string]string{"path": "x.txt"}, DependsOn: []int{1}},
		)
		return exec.Execute(context.Background(), plan)
	}

	first := run()
	second := run()

	assert.Equal(t, first.Status, second.Status)
	require.Equal(t, len(first.Steps), len(second.Steps))
	for i := range first.Steps {
		assert.Equal(t, first.Steps[i].Index, second.Steps[i].Index)
		assert.Equal(t, first.Steps[i].Status, second.Steps[i].Status)
		assert.Equal(t, first.Steps[i].Output, second.Steps[i].Output)
	}
}

func TestExecute_FollowsTopologicalOrder(t *testing.T) {
	adapter := &scriptedAdapter{name: models.OpDelegate, script: func(call int, params map[string]string) (tool.Output, error) {
		return tool.Output{Value: params["task"]}, nil
	}}

	exec := New(registryWith(adapter), nil, Config{})
	plan := testPlan(
		models.Step{Index: 1, Operation: models.OpDelegate, Params: map[string]string{"task": "1"}},
		models.Step{Index: 2, Operation: models.OpDelegate, Params: map[string]string{"task": "2"}, DependsOn: []int{1}},
		models.Step{Index: 3, Operation: models.OpDelegate, Params: map[string]string{"task": "3"}, DependsOn: []int{1}},
		models.Step{Index: 4, Operation: models.OpDelegate, Params: map[string]string{"task": "4"}, DependsOn: []int{2, 3}},
	)
	require.NoError(t, plan.Validate())

	report := exec.Execute(context.Background(), plan)
	require.Equal(t, models.StatusSuccess, report.Status)

	var order []int
	for _, sr := range report.Steps {
		order = append(order, sr.Index)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, order, "report order follows the wave schedule")
}

func TestExecute_RetrySucceedsOnThirdAttempt(t *testing.T) {
	adapter := &scriptedAdapter{name: models.OpDelegate, script: func(call int, params map[string]string) (tool.Output, error) {
		if call < 3 {
			return tool.Output{}, errors.New("transient failure")
		}
		return tool.Output{Value: "done"}, nil
	}}

	exec := New(registryWith(adapter), nil, Config{})
	plan := testPlan(models.Step{
		Index:     1,
		Operation: models.OpDelegate,
		Params:    map[string]string{"task": "flaky"},
		OnError:   models.ErrorPolicy{Action: models.ActionRetry, MaxRetries: 3},
	})

	report := exec.Execute(context.Background(), plan)

	assert.Equal(t, models.StatusSuccess, report.Status)
	assert.Equal(t, 3, adapter.callCount(), "step must be invoked exactly 3 times")
	require.Len(t, report.Steps, 1)
	assert.Equal(t, models.StepSuccess, report.Steps[0].Status)
	assert.Equal(t, 2, report.Steps[0].Retries)
	assert.Equal(t, 3, report.Steps[0].Attempts)
}

func TestExecute_RetryExhaustionFails(t *testing.T) {
	adapter := &scriptedAdapter{name: models.OpDelegate, script: func(call int, params map[string]string) (tool.Output, error) {
		return tool.Output{}, errors.New("permanent failure")
	}}

	exec := New(registryWith(adapter), nil, Config{})
	plan := testPlan(models.Step{
		Index:     1,
		Operation: models.OpDelegate,
		Params:    map[string]string{"task": "doomed"},
		OnError:   models.ErrorPolicy{Action: models.ActionRetry, MaxRetries: 2},
	})

	report := exec.Execute(context.Background(), plan)

	assert.Equal(t, models.StatusFailed, report.Status)
	assert.Equal(t, 1, report.FailedStep)
	assert.Equal(t, 3, adapter.callCount())
}

func TestExecute_SkipBindsNullSentinel(t *testing.T) {
	adapter := &scriptedAdapter{name: models.OpDelegate, script: func(call int, params map[string]string) (tool.Output, error) {
		if params["task"] == "breaks" {
			return tool.Output{}, errors.New("boom")
		}
		return tool.Output{Value: "downstream:" + params["task"]}, nil
	}}

	exec := New(registryWith(adapter), nil, Config{})
	plan := testPlan(
		models.Step{
			Index:     1,
			Operation: models.OpDelegate,
			Params:    map[string]string{"task": "breaks"},
			OnError:   models.ErrorPolicy{Action: models.ActionSkip},
		},
		models.Step{
			Index:     2,
			Operation: models.OpDelegate,
			Params:    map[string]string{"task": "${steps.1.output}"},
			DependsOn: []int{1},
		},
	)

	report := exec.Execute(context.Background(), plan)

	assert.Equal(t, models.StatusDegraded, report.Status,
		"a skipped failure degrades the run, it does not fail it")
	require.Len(t, report.Steps, 2)
	assert.Equal(t, models.StepDegraded, report.Steps[0].Status)
	assert.Equal(t, models.StepSuccess, report.Steps[1].Status)

	// The dependent received the sentinel, not a resolution error.
	adapter.mu.Lock()
	lastCall := adapter.calls[len(adapter.calls)-1]
	adapter.mu.Unlock()
	assert.Equal(t, models.NullSentinel, lastCall["task"])
}

func TestExecute_FailPolicyHaltsWithPartialProgress(t *testing.T) {
	adapter := &scriptedAdapter{name: models.OpDelegate, script: func(call int, params map[string]string) (tool.Output, error) {
		if params["task"] == "second" {
			return tool.Output{}, errors.New("hard failure")
		}
		return tool.Output{Value: "ok"}, nil
	}}

	exec := New(registryWith(adapter), nil, Config{})
	plan := testPlan(
		models.Step{Index: 1, Operation: models.OpDelegate, Params: map[string]string{"task": "first"}},
		models.Step{Index: 2, Operation: models.OpDelegate, Params: map[string]string{"task": "second"}, DependsOn: []int{1}},
		models.Step{Index: 3, Operation: models.OpDelegate, Params: map[string]string{"task": "third"}, DependsOn: []int{2}},
	)

	report := exec.Execute(context.Background(), plan)

	assert.Equal(t, models.StatusFailed, report.Status)
	assert.Equal(t, 2, report.FailedStep)
	require.Len(t, report.Steps, 2, "progress before the failure must be reported")
	assert.Equal(t, models.StepSuccess, report.Steps[0].Status)
	assert.Equal(t, models.StepFailed, report.Steps[1].Status)
	assert.NotEmpty(t, report.Error)
}

func TestExecute_EscalatePolicy(t *testing.T) {
	adapter := &scriptedAdapter{name: models.OpDelegate, script: func(call int, params map[string]string) (tool.Output, error) {
		return tool.Output{}, errors.New("needs reasoning")
	}}

	exec := New(registryWith(adapter), nil, Config{})
	plan := testPlan(models.Step{
		Index:     1,
		Operation: models.OpDelegate,
		Params:    map[string]string{"task": "hard"},
		OnError:   models.ErrorPolicy{Action: models.ActionEscalate},
	})

	report := exec.Execute(context.Background(), plan)

	assert.Equal(t, models.StatusIncomplete, report.Status)
	assert.True(t, report.Escalate, "escalation must be flagged for the dispatcher")
	assert.Equal(t, 1, report.FailedStep)
}

func TestExecute_DependencyResolutionErrorSkipsInvocation(t *testing.T) {
	adapter := &scriptedAdapter{name: models.OpDelegate}

	exec := New(registryWith(adapter), nil, Config{})
	// Step 1 references step 2's output, which cannot exist yet.
	plan := testPlan(
		models.Step{Index: 1, Operation: models.OpDelegate, Params: map[string]string{"task": "${steps.2.output}"}},
		models.Step{Index: 2, Operation: models.OpDelegate, Params: map[string]string{"task": "later"}},
	)

	report := exec.Execute(context.Background(), plan)

	assert.Equal(t, models.StatusFailed, report.Status)
	assert.Equal(t, 1, report.FailedStep)
	assert.Zero(t, adapter.callCount(), "no tool invocation may happen for the referencing step")
	assert.Contains(t, report.Error, "has not produced output")
}

func TestExecute_ValidationFailureGovernedByPolicy(t *testing.T) {
	adapter := &scriptedAdapter{name: models.OpDelegate, script: func(call int, params map[string]string) (tool.Output, error) {
		return tool.Output{Value: "wrong content"}, nil
	}}

	exec := New(registryWith(adapter), nil, Config{})
	plan := testPlan(models.Step{
		Index:       1,
		Operation:   models.OpDelegate,
		Params:      map[string]string{"task": "produce"},
		Validations: []models.Validation{{Kind: models.CheckContains, Substring: "expected"}},
		OnError:     models.ErrorPolicy{Action: models.ActionSkip},
	})

	report := exec.Execute(context.Background(), plan)

	assert.Equal(t, models.StatusDegraded, report.Status)
	require.Len(t, report.Steps, 1)
	require.Len(t, report.Steps[0].Validations, 1)
	assert.False(t, report.Steps[0].Validations[0].Passed)
}

func TestExecute_PreconditionFailureRunsNoSteps(t *testing.T) {
	adapter := &scriptedAdapter{name: models.OpDelegate}

	exec := New(registryWith(adapter), nil, Config{})
	plan := testPlan(models.Step{Index: 1, Operation: models.OpDelegate, Params: map[string]string{"task": "x"}})
	plan.Preconditions = []models.Validation{
		{Kind: models.CheckExists, Path: filepath.Join(t.TempDir(), "missing-precondition-file")},
	}

	report := exec.Execute(context.Background(), plan)

	assert.Equal(t, models.StatusFailed, report.Status)
	assert.Empty(t, report.Steps)
	assert.Zero(t, adapter.callCount())
	assert.Contains(t, report.Error, "precondition")
}

func TestExecute_PostconditionFailure(t *testing.T) {
	adapter := &scriptedAdapter{name: models.OpDelegate}

	exec := New(registryWith(adapter), nil, Config{})
	plan := testPlan(models.Step{Index: 1, Operation: models.OpDelegate, Params: map[string]string{"task": "x"}})
	plan.Postconditions = []models.Validation{
		{Kind: models.CheckExists, Path: filepath.Join(t.TempDir(), "never-created")},
	}

	report := exec.Execute(context.Background(), plan)

	assert.Equal(t, models.StatusFailed, report.Status)
	assert.Contains(t, report.Error, "postcondition")
	require.Len(t, report.Steps, 1, "executed steps stay in the report")
}

func TestExecute_StepTimeoutGovernedByPolicy(t *testing.T) {
	adapter := &scriptedAdapter{name: models.OpDelegate, script: func(call int, params map[string]string) (tool.Output, error) {
		time.Sleep(50 * time.Millisecond)
		return tool.Output{}, context.DeadlineExceeded
	}}

	exec := New(registryWith(adapter), nil, Config{})
	plan := testPlan(models.Step{
		Index:     1,
		Operation: models.OpDelegate,
		Params:    map[string]string{"task": "slow"},
		Timeout:   10 * time.Millisecond,
		OnError:   models.ErrorPolicy{Action: models.ActionSkip},
	})

	report := exec.Execute(context.Background(), plan)

	assert.Equal(t, models.StatusDegraded, report.Status, "timeout is a step failure under the step's policy")
	require.Len(t, report.Steps, 1)
	assert.Equal(t, models.StepDegraded, report.Steps[0].Status)
}

func TestExecute_RunTimeoutYieldsIncomplete(t *testing.T) {
	adapter := &scriptedAdapter{name: models.OpDelegate, script: func(call int, params map[string]string) (tool.Output, error) {
		time.Sleep(80 * time.Millisecond)
		return tool.Output{Value: "slow"}, nil
	}}

	exec := New(registryWith(adapter), nil, Config{RunTimeout: 40 * time.Millisecond})
	plan := testPlan(
		models.Step{Index: 1, Operation: models.OpDelegate, Params: map[string]string{"task": "a"}},
		models.Step{Index: 2, Operation: models.OpDelegate, Params: map[string]string{"task": "b"}, DependsOn: []int{1}},
	)

	report := exec.Execute(context.Background(), plan)

	assert.Equal(t, models.StatusIncomplete, report.Status)
	assert.NotEmpty(t, report.Steps, "partial progress is reported, never dropped")
}

func TestExecute_ParallelWaveProducesSameResults(t *testing.T) {
	workDir := t.TempDir()
	exec := New(tool.DefaultRegistry(workDir, nil), nil, Config{Parallel: true, MaxConcurrency: 2})

	plan := testPlan(
		models.Step{Index: 1, Operation: models.OpWriteArtifact, Params: map[string]string{"path": "one.txt", "content": "first"}},
		models.Step{Index: 2, Operation: models.OpWriteArtifact, Params: map[string]string{"path": "two.txt", "content": "second"}},
		models.Step{
			Index:     3,
			Operation: models.OpWriteArtifact,
			Params:    map[string]string{"path": "joined.txt", "content": "${steps.1.output}+${steps.2.output}"},
			DependsOn: []int{1, 2},
		},
	)

	report := exec.Execute(context.Background(), plan)

	require.Equal(t, models.StatusSuccess, report.Status)
	require.Len(t, report.Steps, 3)
	// Report order stays index-sorted regardless of scheduling.
	assert.Equal(t, 1, report.Steps[0].Index)
	assert.Equal(t, 2, report.Steps[1].Index)
	assert.Equal(t, 3, report.Steps[2].Index)

	joined, err := os.ReadFile(filepath.Join(workDir, "joined.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first+second", string(joined))
}

func TestDryRun_NoToolInvocations(t *testing.T) {
	adapter := &scriptedAdapter{name: models.OpDelegate}

	exec := New(registryWith(adapter), nil, Config{})
	plan := testPlan(
		models.Step{Index: 1, Operation: models.OpDelegate, Params: map[string]string{"task": "collect"}},
		models.Step{
			Index:       2,
			Operation:   models.OpDelegate,
			Params:      map[string]string{"task": "use ${steps.1.output}"},
			DependsOn:   []int{1},
			Validations: []models.Validation{{Kind: models.CheckNotEmpty}},
		},
	)

	report, err := exec.DryRun(plan)
	require.NoError(t, err)

	assert.Zero(t, adapter.callCount(), "dry run must not invoke any adapter")
	assert.Equal(t, models.StatusSuccess, report.Status)
	require.Len(t, report.Steps, 2)
	assert.Equal(t, models.StepPending, report.Steps[0].Status)
	assert.Contains(t, report.Steps[1].Output, "<step-1-output>")
	require.Len(t, report.Steps[1].Validations, 1)
	assert.Equal(t, "planned (dry run)", report.Steps[1].Validations[0].Message)
}

func TestDryRun_CatchesBadReference(t *testing.T) {
	exec := New(tool.NewRegistry(), nil, Config{})
	plan := testPlan(
		models.Step{Index: 1, Operation: models.OpDelegate, Params: map[string]string{"task": "${steps.7.output}"}},
	)

	_, err := exec.DryRun(plan)
	var depErr *models.DependencyResolutionError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, 1, depErr.Step)
	assert.Equal(t, 7, depErr.Ref)
}

func TestTopologicalOrder_RejectsCycle(t *testing.T) {
	steps := []models.Step{
		{Index: 1, Operation: models.OpDelegate, DependsOn: []int{2}},
		{Index: 2, Operation: models.OpDelegate, DependsOn: []int{1}},
	}

	_, err := TopologicalOrder(steps)
	var parseErr *models.PlanParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestCalculateWaves(t *testing.T) {
	steps := []models.Step{
		{Index: 1},
		{Index: 2},
		{Index: 3, DependsOn: []int{1, 2}},
		{Index: 4, DependsOn: []int{3}},
	}

	waves, err := CalculateWaves(steps)
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}, {3}, {4}}, waves)
}

func TestResolveParams(t *testing.T) {
	outputs := map[int]string{1: "alpha", 2: ""}

	resolved, err := ResolveParams(3, map[string]string{
		"a": "use ${steps.1.output} here",
		"b": "sentinel ${steps.2.output} ok",
		"c": "plain",
	}, outputs)
	require.NoError(t, err)
	assert.Equal(t, "use alpha here", resolved["a"])
	assert.Equal(t, "sentinel  ok", resolved["b"])
	assert.Equal(t, "plain", resolved["c"])
}

func TestReferences(t *testing.T) {
	refs := References(map[string]string{
		"a": "${steps.5.output} and ${steps.2.output}",
		"b": "${steps.2.output} then ${steps.9.output}",
	})
	assert.Equal(t, []int{2, 5, 9}, refs, "references are deduplicated and ascending")

	assert.Empty(t, References(map[string]string{"plain": "no refs here"}))
}

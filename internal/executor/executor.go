// Package executor replays stored plans with zero deviation.
//
// The follower executes a plan's steps in a deterministic topological
// order, resolving output references between steps, invoking the tool
// adapter with each step's immutable parameters, validating outcomes,
// and absorbing failures according to each step's error policy. It never
// alters parameters, adds steps, or reorders independent steps
// non-deterministically: a fixed plan with fixed outcomes always
// executes identically. The caller always receives a complete execution
// report, even when the run aborts.
package executor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/logger"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/tool"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/validator"
)

// Config controls execution limits and the optional parallel mode.
type Config struct {
	// StepTimeout is the default per-step deadline. A step's own timeout
	// takes precedence. Zero means no per-step limit.
	StepTimeout time.Duration

	// RunTimeout bounds the whole execution. Zero means no limit.
	RunTimeout time.Duration

	// Parallel runs independent steps of the same dependency wave
	// concurrently. Sequential execution is the reproducibility
	// baseline and the default.
	Parallel bool

	// MaxConcurrency bounds parallel step execution. Zero means
	// DefaultMaxConcurrency.
	MaxConcurrency int
}

// Executor replays plans through a tool adapter registry.
type Executor struct {
	registry *tool.Registry
	log      *logger.ConsoleLogger
	cfg      Config
}

// New creates an Executor. A nil logger discards progress output.
func New(registry *tool.Registry, log *logger.ConsoleLogger, cfg Config) *Executor {
	if log == nil {
		log = logger.NewConsoleLogger(nil, "")
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Executor{registry: registry, log: log, cfg: cfg}
}

// halt carries the decision to stop a run before its last step.
type halt struct {
	status     string // models.StatusFailed or models.StatusIncomplete
	failedStep int
	escalate   bool
	err        error
}

// runState is the mutable state of one execution.
type runState struct {
	mu       sync.Mutex
	outputs  map[int]string // step index -> captured output (or the null sentinel)
	degraded bool
}

func (rs *runState) bind(index int, output string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.outputs[index] = output
}

func (rs *runState) snapshot() map[int]string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	copied := make(map[int]string, len(rs.outputs))
	for k, v := range rs.outputs {
		copied[k] = v
	}
	return copied
}

// Execute replays the plan and always returns a complete report. Fatal
// errors surface in the report verbatim together with all partial
// progress made before them.
func (e *Executor) Execute(ctx context.Context, plan *models.Plan) *models.ExecutionReport {
	report := e.newReport(plan)
	start := time.Now()
	defer func() {
		report.TotalTime = time.Since(start)
		e.log.LogRunComplete(report)
	}()

	if e.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.RunTimeout)
		defer cancel()
	}

	// Preconditions run before any step; a failure is fatal.
	for _, pre := range plan.Preconditions {
		outcome := validator.Check(pre, validator.StepOutcome{})
		if !outcome.Passed {
			err := &models.PreconditionFailure{Kind: pre.Kind, Message: outcome.Message}
			report.Status = models.StatusFailed
			report.Error = err.Error()
			report.ErrorKind = models.ErrKindPrecondition
			return report
		}
	}

	waves, err := CalculateWaves(plan.Steps)
	if err != nil {
		report.Status = models.StatusFailed
		report.Error = err.Error()
		report.ErrorKind = models.ClassifyError(err)
		return report
	}

	byIndex := make(map[int]*models.Step, len(plan.Steps))
	for i := range plan.Steps {
		byIndex[plan.Steps[i].Index] = &plan.Steps[i]
	}

	state := &runState{outputs: make(map[int]string, len(plan.Steps))}

	for _, wave := range waves {
		var h *halt
		if e.cfg.Parallel && len(wave) > 1 {
			h = e.runWaveParallel(ctx, state, report, byIndex, wave)
		} else {
			h = e.runWaveSequential(ctx, state, report, byIndex, wave)
		}
		if h != nil {
			report.Status = h.status
			report.FailedStep = h.failedStep
			report.Escalate = h.escalate
			if h.err != nil {
				report.Error = h.err.Error()
				report.ErrorKind = models.ClassifyError(h.err)
			}
			return report
		}
	}

	for _, post := range plan.Postconditions {
		outcome := validator.Check(post, validator.StepOutcome{})
		if !outcome.Passed {
			report.Status = models.StatusFailed
			report.Error = fmt.Sprintf("postcondition %s failed: %s", post.Kind, outcome.Message)
			report.ErrorKind = models.ErrKindValidation
			return report
		}
	}

	if state.degraded {
		report.Status = models.StatusDegraded
	} else {
		report.Status = models.StatusSuccess
	}
	return report
}

func (e *Executor) newReport(plan *models.Plan) *models.ExecutionReport {
	return &models.ExecutionReport{
		RunID:         uuid.NewString(),
		PlanID:        plan.ID,
		PlanVersion:   plan.Version,
		EstimatedCost: plan.EstimatedCost,
		StartedAt:     time.Now().UTC(),
	}
}

// runWaveSequential executes a wave's steps one at a time in index order.
func (e *Executor) runWaveSequential(ctx context.Context, state *runState, report *models.ExecutionReport, byIndex map[int]*models.Step, wave []int) *halt {
	for _, idx := range wave {
		if err := ctx.Err(); err != nil {
			return &halt{status: models.StatusIncomplete, failedStep: idx, err: err}
		}

		step := byIndex[idx]
		result, h := e.runStep(ctx, state, step)
		report.Steps = append(report.Steps, result)
		if h != nil {
			return h
		}
		e.recordOutput(state, result)
	}
	return nil
}

// runWaveParallel executes a wave's independent steps concurrently,
// bounded by MaxConcurrency. Results are appended in index order so the
// report stays deterministic, and the lowest-indexed fatal step wins
// when several fail at once.
func (e *Executor) runWaveParallel(ctx context.Context, state *runState, report *models.ExecutionReport, byIndex map[int]*models.Step, wave []int) *halt {
	results := make([]models.StepResult, len(wave))
	halts := make([]*halt, len(wave))
	started := make([]bool, len(wave))

	g, waveCtx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxConcurrency)

	for pos, idx := range wave {
		pos, idx := pos, idx
		g.Go(func() error {
			if err := waveCtx.Err(); err != nil {
				return nil // sibling already halted the wave
			}
			started[pos] = true
			result, h := e.runStep(waveCtx, state, byIndex[idx])
			results[pos] = result
			halts[pos] = h
			if h != nil {
				return h.err // cancels the rest of the wave
			}
			e.recordOutput(state, result)
			return nil
		})
	}
	g.Wait() // halts carry the real outcome; the group error is only for cancellation

	var chosen *halt
	for pos := range wave {
		if !started[pos] {
			continue
		}
		report.Steps = append(report.Steps, results[pos])
		h := halts[pos]
		if h == nil {
			continue
		}
		if chosen == nil || betterHalt(h, chosen) {
			chosen = h
		}
	}
	return chosen
}

// betterHalt prefers a definite failure over a cancellation-induced
// incomplete, then the lowest failing step index.
func betterHalt(a, b *halt) bool {
	if a.status != b.status {
		return a.status == models.StatusFailed
	}
	return a.failedStep < b.failedStep
}

func (e *Executor) recordOutput(state *runState, result models.StepResult) {
	if result.Status == models.StepDegraded {
		state.bind(result.Index, models.NullSentinel)
		state.mu.Lock()
		state.degraded = true
		state.mu.Unlock()
		return
	}
	state.bind(result.Index, result.Output)
}

// runStep executes one step under its error policy: resolve parameter
// references, invoke the adapter, validate, retry or absorb per policy.
func (e *Executor) runStep(ctx context.Context, state *runState, step *models.Step) (models.StepResult, *halt) {
	result := models.StepResult{Index: step.Index, Status: models.StepPending}
	start := time.Now()
	defer func() { result.Duration = time.Since(start) }()

	e.log.LogStepStart(*step)
	defer func() { e.log.LogStepComplete(result) }()

	resolved, err := ResolveParams(step.Index, step.CloneParams(), state.snapshot())
	if err != nil {
		// Fatal and never retried: the plan itself is malformed.
		result.Status = models.StepFailed
		result.Error = err.Error()
		return result, &halt{status: models.StatusFailed, failedStep: step.Index, err: err}
	}

	adapter, err := e.registry.Get(step.Operation)
	if err != nil {
		invErr := &models.ToolInvocationError{Step: step.Index, Operation: step.Operation, Err: err}
		result.Status = models.StepFailed
		result.Error = invErr.Error()
		return result, e.applyUltimate(step, &result, invErr)
	}

	policy := step.OnError
	attempts := maxAttempts(policy)
	var lastFailure error

	for attempt := 1; attempt <= attempts; attempt++ {
		result.Attempts = attempt
		result.Retries = attempt - 1

		out, invokeErr := e.invoke(ctx, step, adapter, resolved)
		if invokeErr == nil {
			result.Output = out.Value
			result.OutputRef = out.Ref
			outcomes, allPassed := validator.CheckAll(step.Validations, validator.StepOutcome{
				Output:     out.Value,
				ExitStatus: out.ExitStatus,
			})
			result.Validations = outcomes
			if allPassed {
				result.Status = models.StepSuccess
				result.Error = ""
				return result, nil
			}
			lastFailure = firstValidationFailure(step.Index, outcomes)
		} else {
			lastFailure = invokeErr
		}
		result.Error = lastFailure.Error()

		// Overall cancellation turns any step failure into an incomplete
		// run rather than a policy decision.
		if ctx.Err() != nil {
			result.Status = models.StepFailed
			return result, &halt{status: models.StatusIncomplete, failedStep: step.Index, err: lastFailure}
		}

		if attempt < attempts {
			e.log.LogRetry(step.Index, attempt, policy.MaxRetries, lastFailure.Error())
			if err := sleepRetryDelay(ctx, policy); err != nil {
				result.Status = models.StepFailed
				return result, &halt{status: models.StatusIncomplete, failedStep: step.Index, err: lastFailure}
			}
		}
	}

	return result, e.applyUltimate(step, &result, lastFailure)
}

// applyUltimate resolves an unrecoverable step failure into the
// policy's terminal action.
func (e *Executor) applyUltimate(step *models.Step, result *models.StepResult, cause error) *halt {
	switch ultimateAction(step) {
	case models.ActionSkip:
		result.Status = models.StepDegraded
		result.Output = models.NullSentinel
		return nil
	case models.ActionEscalate:
		result.Status = models.StepFailed
		return &halt{status: models.StatusIncomplete, failedStep: step.Index, escalate: true, err: cause}
	default:
		result.Status = models.StepFailed
		return &halt{status: models.StatusFailed, failedStep: step.Index, err: cause}
	}
}

// invoke calls the adapter under the step's deadline and classifies
// failures into the error taxonomy.
func (e *Executor) invoke(ctx context.Context, step *models.Step, adapter tool.Adapter, params map[string]string) (tool.Output, error) {
	timeout := step.Timeout
	if timeout == 0 {
		timeout = e.cfg.StepTimeout
	}

	stepCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	out, err := adapter.Invoke(stepCtx, params)
	if err != nil {
		if stepCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return out, &models.TimeoutError{Step: step.Index}
		}
		return out, &models.ToolInvocationError{Step: step.Index, Operation: step.Operation, Err: err}
	}
	return out, nil
}

func firstValidationFailure(stepIndex int, outcomes []models.ValidationOutcome) error {
	for _, outcome := range outcomes {
		if !outcome.Passed {
			return &models.StepValidationFailure{Step: stepIndex, Kind: outcome.Kind, Message: outcome.Message}
		}
	}
	return &models.StepValidationFailure{Step: stepIndex, Kind: "unknown", Message: "validation failed"}
}

// DryRun performs substitution and validation planning without invoking
// any tool adapter. It verifies every output reference resolves against
// the declared execution order and lists each step's planned
// validations. Errors indicate a malformed plan.
func (e *Executor) DryRun(plan *models.Plan) (*models.ExecutionReport, error) {
	report := e.newReport(plan)

	order, err := TopologicalOrder(plan.Steps)
	if err != nil {
		return nil, err
	}

	byIndex := make(map[int]*models.Step, len(plan.Steps))
	for i := range plan.Steps {
		byIndex[plan.Steps[i].Index] = &plan.Steps[i]
	}

	simulated := make(map[int]string, len(plan.Steps))
	for _, idx := range order {
		step := byIndex[idx]

		resolved, err := ResolveParams(step.Index, step.CloneParams(), simulated)
		if err != nil {
			return nil, err
		}
		simulated[step.Index] = fmt.Sprintf("<step-%d-output>", step.Index)

		result := models.StepResult{
			Index:  step.Index,
			Status: models.StepPending,
			Output: renderCall(step.Operation, resolved),
		}
		for _, v := range step.Validations {
			result.Validations = append(result.Validations, models.ValidationOutcome{
				Kind:    v.Kind,
				Passed:  true,
				Message: "planned (dry run)",
			})
		}
		report.Steps = append(report.Steps, result)
	}

	report.Status = models.StatusSuccess
	return report, nil
}

// renderCall formats an operation call for dry-run output with
// deterministic parameter ordering.
func renderCall(operation string, params map[string]string) string {
	if len(params) == 0 {
		return operation + "()"
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, params[k]))
	}
	return fmt.Sprintf("%s(%s)", operation, strings.Join(pairs, ", "))
}

// Package dispatcher decides, per goal, between deterministic replay of
// a stored plan and escalation to the external learner. It is the only
// component that sees both sides of the split: the matcher and executor
// on the replay path, and the learner collaborator on the cold path.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/logger"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/matcher"
	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

// State is a dispatcher state machine node.
type State string

const (
	StateEvaluating   State = "EVALUATING"
	StateFollowerExec State = "FOLLOWER_EXEC"
	StateLearnerExec  State = "LEARNER_EXEC"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// Learner is the external collaborator that produces a new plan for a
// goal no stored plan covers. The reasoning behind it is out of scope;
// only the returned plan is.
type Learner interface {
	Solve(ctx context.Context, goal string) (*models.Plan, error)
}

// Finder is the matcher stage the dispatcher consults from EVALUATING.
type Finder interface {
	Find(ctx context.Context, goal string, constraints matcher.Constraints) (*models.Plan, error)
}

// Runner replays a matched plan. The executor satisfies this.
type Runner interface {
	Execute(ctx context.Context, plan *models.Plan) *models.ExecutionReport
}

// TrustRecorder applies the trust update after a terminal run. The
// confidence tracker satisfies this.
type TrustRecorder interface {
	Record(ctx context.Context, report *models.ExecutionReport) (models.TrustMetadata, error)
}

// PlanWriter persists learner-produced plans. The plan store satisfies
// this.
type PlanWriter interface {
	SavePlan(ctx context.Context, plan *models.Plan) error
}

// Config controls dispatch behavior.
type Config struct {
	// Constraints gate the matcher's candidate set.
	Constraints matcher.Constraints

	// FallbackToLearner escalates a failed or incomplete replay to the
	// learner instead of terminating in FAILED. It has no effect when no
	// learner is configured.
	FallbackToLearner bool
}

// Dispatcher routes goals through the state machine.
type Dispatcher struct {
	finder  Finder
	runner  Runner
	tracker TrustRecorder
	plans   PlanWriter
	learner Learner
	log     *logger.ConsoleLogger
	cfg     Config
}

// New creates a Dispatcher. The learner may be nil; without one every
// escalation terminates in FAILED.
func New(finder Finder, runner Runner, tracker TrustRecorder, plans PlanWriter, learner Learner, log *logger.ConsoleLogger, cfg Config) *Dispatcher {
	if log == nil {
		log = logger.NewConsoleLogger(nil, "")
	}
	return &Dispatcher{
		finder:  finder,
		runner:  runner,
		tracker: tracker,
		plans:   plans,
		learner: learner,
		log:     log,
		cfg:     cfg,
	}
}

// Result is the terminal outcome of one dispatch.
type Result struct {
	State  State   // StateDone or StateFailed
	Trace  []State // every state visited, in order
	Plan   *models.Plan
	Report *models.ExecutionReport
	Trust  *models.TrustMetadata // set when a replay updated trust

	// LearnerPlan is the newly stored plan when the learner solved the
	// goal.
	LearnerPlan *models.Plan
}

// Dispatch runs the state machine for one goal. The returned Result is
// always terminal; the error reports infrastructure failures (store,
// tracker, learner), not plan failures, which live in the Result.
func (d *Dispatcher) Dispatch(ctx context.Context, goal string) (*Result, error) {
	result := &Result{Trace: []State{StateEvaluating}}

	plan, err := d.finder.Find(ctx, goal, d.cfg.Constraints)
	if err != nil {
		result.enter(StateFailed)
		return result, fmt.Errorf("match goal: %w", err)
	}

	if plan == nil {
		d.log.LogInfo("no eligible plan, escalating to learner")
		return d.runLearner(ctx, goal, result)
	}

	result.Plan = plan
	result.enter(StateFollowerExec)
	d.log.LogInfo(fmt.Sprintf("replaying plan %s", plan.Key()))

	report := d.runner.Execute(ctx, plan)
	result.Report = report

	trust, err := d.tracker.Record(ctx, report)
	if err != nil {
		result.enter(StateFailed)
		return result, fmt.Errorf("record trust for %s: %w", plan.Key(), err)
	}
	result.Trust = &trust

	if report.Succeeded() {
		result.enter(StateDone)
		return result, nil
	}

	if d.cfg.FallbackToLearner && d.learner != nil {
		d.log.LogWarn(fmt.Sprintf("replay of %s ended %s, escalating to learner", plan.Key(), report.Status))
		return d.runLearner(ctx, goal, result)
	}

	result.enter(StateFailed)
	return result, nil
}

// runLearner drives the LEARNER_EXEC state: solve the goal through the
// external collaborator and persist the plan it produced.
func (d *Dispatcher) runLearner(ctx context.Context, goal string, result *Result) (*Result, error) {
	result.enter(StateLearnerExec)

	if d.learner == nil {
		result.enter(StateFailed)
		return result, nil
	}

	plan, err := d.learner.Solve(ctx, goal)
	if err != nil {
		result.enter(StateFailed)
		return result, fmt.Errorf("learner: %w", err)
	}

	if err := d.plans.SavePlan(ctx, plan); err != nil {
		result.enter(StateFailed)
		return result, fmt.Errorf("store learner plan %s: %w", plan.Key(), err)
	}
	d.log.LogInfo(fmt.Sprintf("learner produced plan %s", plan.Key()))

	result.LearnerPlan = plan
	result.enter(StateDone)
	return result, nil
}

func (r *Result) enter(s State) {
	r.Trace = append(r.Trace, s)
	r.State = s
}

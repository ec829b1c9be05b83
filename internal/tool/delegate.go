package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

// ErrNoCollaborator is returned when a delegate step runs without a
// configured collaborator.
var ErrNoCollaborator = errors.New("no external collaborator configured")

// Collaborator is the boundary to an external reasoning system a plan
// step may delegate to. The executor treats the returned value as
// opaque: it is validated and passed along, never interpreted.
type Collaborator interface {
	// Call sends a task description and returns the collaborator's raw
	// response.
	Call(ctx context.Context, task string, params map[string]string) (string, error)
}

// Delegate forwards a step to an external collaborator and captures the
// response as the step output.
// Params: task (required); the rest of the map is passed through.
type Delegate struct {
	collaborator Collaborator
}

// NewDelegate creates a delegate adapter. A nil collaborator leaves
// delegation unconfigured and every invocation fails.
func NewDelegate(collaborator Collaborator) *Delegate {
	return &Delegate{collaborator: collaborator}
}

func (a *Delegate) Name() string { return models.OpDelegate }

func (a *Delegate) Invoke(ctx context.Context, params map[string]string) (Output, error) {
	if a.collaborator == nil {
		return Output{}, ErrNoCollaborator
	}

	task, err := requireParam(params, "task")
	if err != nil {
		return Output{}, err
	}

	result, err := a.collaborator.Call(ctx, task, params)
	if err != nil {
		return Output{}, fmt.Errorf("delegate call: %w", err)
	}

	return Output{Value: result}, nil
}

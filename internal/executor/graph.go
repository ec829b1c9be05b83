package executor

import (
	"fmt"
	"sort"

	"github.com/EvolvingAgentsLabs/llmunix-sub003/internal/models"
)

// DefaultMaxConcurrency bounds parallel step execution within a wave.
const DefaultMaxConcurrency = 4

// DependencyGraph represents the directed graph of step dependencies.
type DependencyGraph struct {
	Steps    map[int]*models.Step
	Edges    map[int][]int // prerequisite -> dependents
	InDegree map[int]int   // step -> number of dependencies
}

// BuildDependencyGraph constructs a dependency graph from a plan's steps.
func BuildDependencyGraph(steps []models.Step) *DependencyGraph {
	g := &DependencyGraph{
		Steps:    make(map[int]*models.Step),
		Edges:    make(map[int][]int),
		InDegree: make(map[int]int),
	}

	for i := range steps {
		g.Steps[steps[i].Index] = &steps[i]
		g.InDegree[steps[i].Index] = 0
	}

	for _, step := range steps {
		for _, dep := range step.DependsOn {
			// Dangling deps are caught by plan validation.
			if _, exists := g.Steps[dep]; !exists {
				continue
			}
			// dep -> step: dep must complete before step.
			g.Edges[dep] = append(g.Edges[dep], step.Index)
			g.InDegree[step.Index]++
		}
	}

	return g
}

// TopologicalOrder computes a deterministic execution order using Kahn's
// algorithm. The ready set is drained in ascending index order, so a
// fixed plan always yields the same order. A cycle is a *PlanParseError.
func TopologicalOrder(steps []models.Step) ([]int, error) {
	waves, err := CalculateWaves(steps)
	if err != nil {
		return nil, err
	}

	order := make([]int, 0, len(steps))
	for _, wave := range waves {
		order = append(order, wave...)
	}
	return order, nil
}

// CalculateWaves groups steps into dependency levels: steps with no
// dependencies form wave 1, steps depending only on wave 1 form wave 2,
// and so on. Steps within a wave are independent of one another and are
// sorted by index for determinism.
func CalculateWaves(steps []models.Step) ([][]int, error) {
	if len(steps) == 0 {
		return nil, nil
	}

	graph := BuildDependencyGraph(steps)

	inDegree := make(map[int]int, len(graph.InDegree))
	for k, v := range graph.InDegree {
		inDegree[k] = v
	}

	var waves [][]int
	for len(inDegree) > 0 {
		var current []int
		for idx, degree := range inDegree {
			if degree == 0 {
				current = append(current, idx)
			}
		}

		if len(current) == 0 {
			// Remaining steps all wait on each other.
			return nil, &models.PlanParseError{Reason: fmt.Sprintf("circular dependency among steps %v", remainingSteps(inDegree))}
		}

		sort.Ints(current)
		waves = append(waves, current)

		for _, idx := range current {
			delete(inDegree, idx)
			for _, dependent := range graph.Edges[idx] {
				if _, exists := inDegree[dependent]; exists {
					inDegree[dependent]--
				}
			}
		}
	}

	return waves, nil
}

func remainingSteps(inDegree map[int]int) []int {
	remaining := make([]int, 0, len(inDegree))
	for idx := range inDegree {
		remaining = append(remaining, idx)
	}
	sort.Ints(remaining)
	return remaining
}

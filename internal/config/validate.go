package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gammazero/toposort"
)

var (
	ErrTooManyWorkers    = errors.New("roster exceeds worker cap")
	ErrEmptyTaskID       = errors.New("worker has empty task_id")
	ErrDuplicateTaskID   = errors.New("duplicate task_id")
	ErrUnknownEngine     = errors.New("unknown engine")
	ErrUnknownDependency = errors.New("depends_on references unknown task")
	ErrDependencyCycle   = errors.New("depends_on contains a cycle")
)

// Validate checks the roster's structural invariants: worker cap, unique
// non-empty task ids, known engines and an acyclic depends_on graph.
// All violations are reported, joined.
func Validate(cfg *OrchestratorConfig) error {
	var errs []error

	if len(cfg.Workers) > MaxWorkers {
		errs = append(errs, fmt.Errorf("%w: %d workers, max %d", ErrTooManyWorkers, len(cfg.Workers), MaxWorkers))
	}

	seen := make(map[string]bool, len(cfg.Workers))
	for i, w := range cfg.Workers {
		if w.TaskID == "" {
			errs = append(errs, fmt.Errorf("worker %d: %w", i, ErrEmptyTaskID))
			continue
		}
		if seen[w.TaskID] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateTaskID, w.TaskID))
		}
		seen[w.TaskID] = true
		if !w.Engine.Valid() {
			errs = append(errs, fmt.Errorf("worker %q: %w %q", w.TaskID, ErrUnknownEngine, w.Engine))
		}
	}

	for _, w := range cfg.Workers {
		for _, dep := range w.DependsOn {
			if !seen[dep] {
				errs = append(errs, fmt.Errorf("worker %q: %w %q", w.TaskID, ErrUnknownDependency, dep))
			}
		}
	}

	if len(errs) == 0 {
		if err := checkAcyclic(cfg.Workers); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func checkAcyclic(workers []WorkerSpec) error {
	var edges []toposort.Edge
	for _, w := range workers {
		if len(w.DependsOn) == 0 {
			edges = append(edges, toposort.Edge{nil, w.TaskID})
			continue
		}
		for _, dep := range w.DependsOn {
			// dep must come before w
			edges = append(edges, toposort.Edge{dep, w.TaskID})
		}
	}
	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("%w: %v", ErrDependencyCycle, err)
	}
	return nil
}

// LaunchOrder returns the workers with every dependency placed before its
// dependents. Otherwise roster order is kept. The roster must be valid.
func LaunchOrder(workers []WorkerSpec) []WorkerSpec {
	index := make(map[string]int, len(workers))
	for i, w := range workers {
		index[w.TaskID] = i
	}

	order := make([]WorkerSpec, 0, len(workers))
	placed := make(map[string]bool, len(workers))
	visiting := make(map[string]bool)

	var visit func(i int)
	visit = func(i int) {
		w := workers[i]
		if placed[w.TaskID] || visiting[w.TaskID] {
			return
		}
		visiting[w.TaskID] = true
		for _, dep := range w.DependsOn {
			if j, ok := index[dep]; ok {
				visit(j)
			}
		}
		visiting[w.TaskID] = false
		placed[w.TaskID] = true
		order = append(order, w)
	}

	for i := range workers {
		visit(i)
	}
	return order
}

// Renumber rewrites every task id to {orch_id}-T{n}, n counting from 1 in
// roster order, and rewrites depends_on references to match.
func Renumber(cfg *OrchestratorConfig) {
	renamed := make(map[string]string, len(cfg.Workers))
	for i := range cfg.Workers {
		id := fmt.Sprintf("%s-T%d", cfg.OrchID, i+1)
		if old := cfg.Workers[i].TaskID; old != "" {
			renamed[old] = id
		}
		cfg.Workers[i].TaskID = id
	}
	for i := range cfg.Workers {
		deps := cfg.Workers[i].DependsOn
		for j, dep := range deps {
			if id, ok := renamed[dep]; ok {
				deps[j] = id
			}
		}
	}
}

// FindWorker returns the worker with the given task id.
func (c *OrchestratorConfig) FindWorker(taskID string) (WorkerSpec, bool) {
	for _, w := range c.Workers {
		if strings.EqualFold(w.TaskID, taskID) {
			return w, true
		}
	}
	return WorkerSpec{}, false
}

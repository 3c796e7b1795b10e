package graph

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/util"
	"github.com/tessera-flow/tessera/engine/pkg/util/call"
)

type (
	// Graph is the validated dependency DAG of a workflow definition. It is
	// immutable and safe to share between instances
	Graph struct {
		tasks      map[api.TaskID]*api.TaskDefinition
		deps       map[api.TaskID][]api.TaskID
		dependents map[api.TaskID][]api.TaskID
		order      []api.TaskID
		topo       []api.TaskID
	}

	// Records maps each task to its current record within an instance
	Records map[api.TaskID]*api.TaskRecord

	builder struct {
		def   *api.WorkflowDefinition
		graph *Graph
	}

	color uint8
)

const (
	white color = iota
	gray
	black
)

var (
	ErrCycleDetected     = fmt.Errorf("%w: cycle detected", api.ErrDefinition)
	ErrUnknownDependency = fmt.Errorf("%w: unknown dependency", api.ErrDefinition)
	ErrDuplicateTask     = fmt.Errorf("%w: duplicate task id", api.ErrDefinition)
	ErrSelfDependency    = fmt.Errorf("%w: task depends on itself", api.ErrDefinition)
)

// Build validates the definition and constructs its dependency graph. Every
// dependency must name a declared task and the edges must be acyclic
func Build(def *api.WorkflowDefinition) (*Graph, error) {
	b := &builder{
		def: def,
		graph: &Graph{
			tasks:      map[api.TaskID]*api.TaskDefinition{},
			deps:       map[api.TaskID][]api.TaskID{},
			dependents: map[api.TaskID][]api.TaskID{},
		},
	}
	if err := call.Perform(
		def.Validate,
		b.collectTasks,
		b.linkDependencies,
		b.checkAcyclic,
	); err != nil {
		return nil, err
	}
	return b.graph, nil
}

// Order returns the task IDs in declaration order
func (g *Graph) Order() []api.TaskID {
	return slices.Clone(g.order)
}

// Task returns the definition of the given task, or nil if unknown
func (g *Graph) Task(id api.TaskID) *api.TaskDefinition {
	return g.tasks[id]
}

// Dependencies returns the tasks the given task depends on
func (g *Graph) Dependencies(id api.TaskID) []api.TaskID {
	return slices.Clone(g.deps[id])
}

// Dependents returns the tasks that depend directly on the given task
func (g *Graph) Dependents(id api.TaskID) []api.TaskID {
	return slices.Clone(g.dependents[id])
}

// Roots returns the tasks with no dependencies, in declaration order
func (g *Graph) Roots() []api.TaskID {
	var res []api.TaskID
	for _, id := range g.order {
		if len(g.deps[id]) == 0 {
			res = append(res, id)
		}
	}
	return res
}

// ReadySet returns every pending task whose dependencies have all
// succeeded, in declaration order. A task without a record is pending
func (g *Graph) ReadySet(records Records) []api.TaskID {
	var res []api.TaskID
	for _, id := range g.order {
		if statusOf(records, id) != api.TaskPending {
			continue
		}
		if g.depsSucceeded(records, id) {
			res = append(res, id)
		}
	}
	return res
}

// IsTerminal returns true when every task is in a terminal state, or when
// any task has failed and the failure mode is fail-fast
func (g *Graph) IsTerminal(records Records, mode api.FailureMode) bool {
	allDone := true
	for _, id := range g.order {
		st := statusOf(records, id)
		if st == api.TaskFailed && mode != api.BestEffort {
			return true
		}
		if !st.IsTerminal() {
			allDone = false
		}
	}
	return allDone
}

// Blocked returns the pending tasks that can never become ready because a
// dependency, direct or transitive, failed or was cancelled
func (g *Graph) Blocked(records Records) []api.TaskID {
	blocked := util.Set[api.TaskID]{}
	for _, id := range g.topo {
		if statusOf(records, id) != api.TaskPending {
			continue
		}
		for _, dep := range g.deps[id] {
			st := statusOf(records, dep)
			if st == api.TaskFailed || st == api.TaskCancelled ||
				blocked.Contains(dep) {
				blocked.Add(id)
				break
			}
		}
	}

	var res []api.TaskID
	for _, id := range g.order {
		if blocked.Contains(id) {
			res = append(res, id)
		}
	}
	return res
}

func (g *Graph) depsSucceeded(records Records, id api.TaskID) bool {
	for _, dep := range g.deps[id] {
		if statusOf(records, dep) != api.TaskSucceeded {
			return false
		}
	}
	return true
}

func statusOf(records Records, id api.TaskID) api.TaskStatus {
	if rec, ok := records[id]; ok && rec != nil {
		return rec.Status
	}
	return api.TaskPending
}

func (b *builder) collectTasks() error {
	for _, t := range b.def.Tasks {
		if _, ok := b.graph.tasks[t.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
		}
		b.graph.tasks[t.ID] = t
		b.graph.order = append(b.graph.order, t.ID)
	}
	return nil
}

func (b *builder) linkDependencies() error {
	for _, t := range b.def.Tasks {
		seen := util.Set[api.TaskID]{}
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				return fmt.Errorf("%w: %s", ErrSelfDependency, t.ID)
			}
			if _, ok := b.graph.tasks[dep]; !ok {
				return fmt.Errorf("%w: %s depends on %s",
					ErrUnknownDependency, t.ID, dep)
			}
			if seen.Contains(dep) {
				continue
			}
			seen.Add(dep)
			b.graph.deps[t.ID] = append(b.graph.deps[t.ID], dep)
			b.graph.dependents[dep] = append(b.graph.dependents[dep], t.ID)
		}
	}
	return nil
}

// checkAcyclic walks the graph depth-first in declaration order. A back
// edge to a task still on the stack names the offending cycle. Tasks are
// appended to the topological order as they finish
func (b *builder) checkAcyclic() error {
	colors := map[api.TaskID]color{}
	var stack []api.TaskID

	var visit func(id api.TaskID) error
	visit = func(id api.TaskID) error {
		colors[id] = gray
		stack = append(stack, id)
		for _, dep := range b.graph.deps[id] {
			switch colors[dep] {
			case gray:
				start := slices.Index(stack, dep)
				cycle := append(slices.Clone(stack[start:]), dep)
				return fmt.Errorf("%w: %s", ErrCycleDetected, formatPath(cycle))
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		colors[id] = black
		b.graph.topo = append(b.graph.topo, id)
		return nil
	}

	for _, id := range b.graph.order {
		if colors[id] != white {
			continue
		}
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

func formatPath(ids []api.TaskID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, " -> ")
}

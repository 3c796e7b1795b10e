package wait

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/topic"

	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/util"
)

type (
	// Recorder is a transition listener that keeps every transition it
	// receives and republishes them to consumers
	Recorder struct {
		topic topic.Topic[*api.Transition]
		prod  topic.Producer[*api.Transition]
		seen  []*api.Transition
		mu    sync.Mutex
	}

	Wait struct {
		t        *testing.T
		consumer topic.Consumer[*api.Transition]
		timeout  time.Duration
	}

	Predicate[T any] func(T) bool

	Filter Predicate[*api.Transition]
)

const DefaultTimeout = time.Second * 5

// NewRecorder creates an empty transition recorder
func NewRecorder() *Recorder {
	t := caravan.NewTopic[*api.Transition]()
	return &Recorder{
		topic: t,
		prod:  t.NewProducer(),
	}
}

// OnTransition records the transition and publishes it to consumers
func (r *Recorder) OnTransition(t *api.Transition) {
	r.mu.Lock()
	r.seen = append(r.seen, t)
	r.mu.Unlock()
	r.prod.Send() <- t
}

// NewConsumer returns a consumer of transitions recorded from now on
func (r *Recorder) NewConsumer() topic.Consumer[*api.Transition] {
	return r.topic.NewConsumer()
}

// Transitions returns the recorded transitions matching filter, in the
// order they were delivered
func (r *Recorder) Transitions(filter Filter) []*api.Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []*api.Transition
	for _, t := range r.seen {
		if filter(t) {
			res = append(res, t)
		}
	}
	return res
}

// Close releases the recorder's producer
func (r *Recorder) Close() {
	r.prod.Close()
}

func On(t *testing.T, consumer topic.Consumer[*api.Transition]) *Wait {
	return &Wait{
		t:        t,
		consumer: consumer,
		timeout:  DefaultTimeout,
	}
}

func (w *Wait) WithTimeout(timeout time.Duration) *Wait {
	res := *w
	res.timeout = timeout
	return &res
}

// ForTransitions waits for matching transitions from the consumer
func (w *Wait) ForTransitions(count int, filter Filter) {
	w.t.Helper()

	deadline := time.NewTimer(w.timeout)
	defer deadline.Stop()

	for seen := 0; seen < count; {
		select {
		case t, ok := <-w.consumer.Receive():
			if !ok {
				w.t.Fatalf(
					"transition consumer closed before receiving %d", count,
				)
			}
			if !filter(t) {
				continue
			}
			seen++
		case <-deadline.C:
			w.t.Fatalf("timeout waiting for %d transitions", count)
		}
	}
}

// ForTransition waits for a single matching transition
func (w *Wait) ForTransition(filter Filter) {
	w.ForTransitions(1, filter)
}

// And composes filters and returns true when all match
func And(filters ...Filter) Filter {
	return func(t *api.Transition) bool {
		for _, filter := range filters {
			if !filter(t) {
				return false
			}
		}
		return true
	}
}

// Instance matches transitions of the given instance
func Instance(id api.InstanceID) Filter {
	return func(t *api.Transition) bool {
		return t != nil && t.InstanceID == id
	}
}

// Task matches task transitions of the given task IDs
func Task(ids ...api.TaskID) Filter {
	lookup := util.SetOf(ids...)
	return func(t *api.Transition) bool {
		return t != nil && t.Kind == api.TransitionTask &&
			lookup.Contains(t.TaskID)
	}
}

// Workflow matches instance-level transitions
func Workflow() Filter {
	return func(t *api.Transition) bool {
		return t != nil && t.IsWorkflow()
	}
}

// To matches transitions into any of the given statuses
func To[T ~string](statuses ...T) Filter {
	return func(t *api.Transition) bool {
		return t != nil && slices.Contains(statuses, T(t.To))
	}
}

// TaskTo matches a task entering one of the given statuses
func TaskTo(id api.TaskID, statuses ...api.TaskStatus) Filter {
	return And(Task(id), To(statuses...))
}

// WorkflowTo matches an instance entering one of the given statuses
func WorkflowTo(id api.InstanceID, statuses ...api.WorkflowStatus) Filter {
	return And(Instance(id), Workflow(), To(statuses...))
}

// Terminal matches an instance entering a terminal status
func Terminal(id api.InstanceID) Filter {
	return WorkflowTo(id,
		api.WorkflowCompleted, api.WorkflowFailed, api.WorkflowCancelled,
	)
}

// Any matches every transition
func Any() Filter {
	return func(t *api.Transition) bool {
		return t != nil
	}
}

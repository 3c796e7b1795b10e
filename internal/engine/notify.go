package engine

import (
	"log/slog"

	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/log"
)

type (
	// Listener receives every workflow and task transition after it has
	// been persisted. Transitions of one instance arrive in the order they
	// were produced. Implementations must not block
	Listener interface {
		OnTransition(t *api.Transition)
	}

	// ListenerFunc adapts a function to the Listener interface
	ListenerFunc func(t *api.Transition)
)

// OnTransition calls the wrapped function
func (f ListenerFunc) OnTransition(t *api.Transition) {
	f(t)
}

// AddListener registers a listener for all subsequent transitions
func (e *Engine) AddListener(l Listener) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()
	e.listeners = append(e.listeners, l)
}

func (e *Engine) notify(transitions []*api.Transition) {
	if len(transitions) == 0 {
		return
	}
	e.listenerMu.RLock()
	listeners := e.listeners
	e.listenerMu.RUnlock()

	for _, t := range transitions {
		logTransition(t)
		for _, l := range listeners {
			e.deliverTransition(l, t)
		}
	}
}

func (e *Engine) deliverTransition(l Listener, t *api.Transition) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Transition listener panicked",
				log.InstanceID(t.InstanceID),
				slog.Any("panic", r))
		}
	}()
	l.OnTransition(t)
}

func logTransition(t *api.Transition) {
	if t.IsWorkflow() {
		slog.Info("Workflow transition",
			log.InstanceID(t.InstanceID),
			log.WorkflowID(t.WorkflowID),
			slog.String("from", t.From),
			slog.String("to", t.To))
		return
	}
	slog.Debug("Task transition",
		log.InstanceID(t.InstanceID),
		log.TaskID(t.TaskID),
		slog.String("from", t.From),
		slog.String("to", t.To),
		log.Attempt(t.Attempt))
}

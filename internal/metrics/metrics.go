// Package metrics exposes engine activity as Prometheus collectors, fed by
// the engine's transition notifications
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tessera-flow/tessera/engine/internal/engine"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

type (
	// Collector records workflow and task transitions
	Collector struct {
		workflowTransitions *prometheus.CounterVec
		taskTransitions     *prometheus.CounterVec
		taskDuration        *prometheus.HistogramVec
		activeInstances     prometheus.Gauge
		pendingApprovals    prometheus.Gauge
		httpRequests        *prometheus.CounterVec
		httpDuration        *prometheus.HistogramVec

		started map[attemptKey]time.Time
		active  map[api.InstanceID]struct{}
		mu      sync.Mutex
	}

	attemptKey struct {
		instance api.InstanceID
		task     api.TaskID
	}
)

const Namespace = "tessera"

var _ engine.Listener = (*Collector)(nil)

// NewCollector creates a collector and registers it with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		workflowTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "workflow_transitions_total",
				Help:      "Workflow status transitions by target status",
			},
			[]string{"workflow", "to"},
		),
		taskTransitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "task_transitions_total",
				Help:      "Task status transitions by target status",
			},
			[]string{"workflow", "to"},
		),
		taskDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "task_attempt_duration_seconds",
				Help:      "Duration of task attempts by outcome",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"workflow", "outcome"},
		),
		activeInstances: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "active_instances",
				Help:      "Instances seen by this process that are not yet terminal",
			},
		),
		pendingApprovals: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "pending_approvals",
				Help:      "Approval tasks waiting for a decision",
			},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		started: map[attemptKey]time.Time{},
		active:  map[api.InstanceID]struct{}{},
	}
}

// OnTransition updates the collectors for a persisted transition
func (c *Collector) OnTransition(t *api.Transition) {
	wf := string(t.WorkflowID)
	if t.IsWorkflow() {
		c.workflowTransitions.WithLabelValues(wf, t.To).Inc()
		c.trackInstance(t)
		return
	}

	c.taskTransitions.WithLabelValues(wf, t.To).Inc()
	c.trackAttempt(t)
	switch {
	case t.To == string(api.TaskAwaitingSignal):
		c.pendingApprovals.Inc()
	case t.From == string(api.TaskAwaitingSignal):
		c.pendingApprovals.Dec()
	}
}

// RecordHTTPRequest records one served API request
func (c *Collector) RecordHTTPRequest(
	method, path string, status int, dur time.Duration,
) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(dur.Seconds())
}

func (c *Collector) trackInstance(t *api.Transition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, tracked := c.active[t.InstanceID]
	switch to := api.WorkflowStatus(t.To); {
	case to.IsTerminal():
		if tracked {
			delete(c.active, t.InstanceID)
			c.activeInstances.Dec()
		}
	case !tracked:
		c.active[t.InstanceID] = struct{}{}
		c.activeInstances.Inc()
	}
}

func (c *Collector) trackAttempt(t *api.Transition) {
	key := attemptKey{instance: t.InstanceID, task: t.TaskID}
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.From == string(api.TaskRunning) {
		if at, ok := c.started[key]; ok {
			delete(c.started, key)
			c.taskDuration.
				WithLabelValues(string(t.WorkflowID), t.To).
				Observe(t.Timestamp.Sub(at).Seconds())
		}
	}
	switch to := api.TaskStatus(t.To); {
	case to == api.TaskRunning:
		c.started[key] = t.Timestamp
	case to.IsTerminal():
		delete(c.started, key)
	}
}

package metrics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-flow/tessera/engine/internal/metrics"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

var base = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func workflow(from, to api.WorkflowStatus) *api.Transition {
	return &api.Transition{
		Timestamp:  base,
		InstanceID: "inst-1",
		WorkflowID: "wf",
		Kind:       api.TransitionWorkflow,
		From:       string(from),
		To:         string(to),
	}
}

func task(
	id api.TaskID, from, to api.TaskStatus, at time.Duration,
) *api.Transition {
	return &api.Transition{
		Timestamp:  base.Add(at),
		InstanceID: "inst-1",
		WorkflowID: "wf",
		TaskID:     id,
		Kind:       api.TransitionTask,
		From:       string(from),
		To:         string(to),
	}
}

func TestWorkflowTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.OnTransition(workflow("", api.WorkflowCreated))
	c.OnTransition(workflow(api.WorkflowCreated, api.WorkflowRunning))
	assertGauge(t, reg, "tessera_active_instances", 1)

	c.OnTransition(workflow(api.WorkflowRunning, api.WorkflowCompleted))
	assertGauge(t, reg, "tessera_active_instances", 0)

	expected := `
# HELP tessera_workflow_transitions_total Workflow status transitions by target status
# TYPE tessera_workflow_transitions_total counter
tessera_workflow_transitions_total{to="completed",workflow="wf"} 1
tessera_workflow_transitions_total{to="created",workflow="wf"} 1
tessera_workflow_transitions_total{to="running",workflow="wf"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg,
		strings.NewReader(expected), "tessera_workflow_transitions_total",
	))
}

func TestRecoveredInstanceNotNegative(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.OnTransition(workflow(api.WorkflowPaused, api.WorkflowCancelled))
	assertGauge(t, reg, "tessera_active_instances", 0)
}

func TestTaskAttemptDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.OnTransition(task("a", api.TaskPending, api.TaskRunning, 0))
	c.OnTransition(task("a", api.TaskRunning, api.TaskAwaitingRetry,
		2*time.Second))
	c.OnTransition(task("a", api.TaskAwaitingRetry, api.TaskRunning,
		3*time.Second))
	c.OnTransition(task("a", api.TaskRunning, api.TaskSucceeded,
		3500*time.Millisecond))

	count, err := testutil.GatherAndCount(
		reg, "tessera_task_attempt_duration_seconds",
	)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = testutil.GatherAndCount(reg, "tessera_task_transitions_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	sums := map[string]float64{}
	for _, mf := range mfs {
		if mf.GetName() != "tessera_task_attempt_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" {
					sums[l.GetValue()] = m.GetHistogram().GetSampleSum()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{
		"awaiting_retry": 2,
		"succeeded":      0.5,
	}, sums)
}

func TestPendingApprovals(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.OnTransition(task("ok", api.TaskRunning, api.TaskAwaitingSignal, 0))
	c.OnTransition(task("no", api.TaskRunning, api.TaskAwaitingSignal, 0))
	assertGauge(t, reg, "tessera_pending_approvals", 2)

	c.OnTransition(task("ok", api.TaskAwaitingSignal, api.TaskRunning, 0))
	c.OnTransition(task("no", api.TaskAwaitingSignal, api.TaskCancelled, 0))
	assertGauge(t, reg, "tessera_pending_approvals", 0)
}

func TestRecordHTTPRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.RecordHTTPRequest("GET", "/health", 200, 10*time.Millisecond)
	c.RecordHTTPRequest("GET", "/health", 200, 20*time.Millisecond)

	expected := `
# HELP tessera_http_requests_total Total number of HTTP requests
# TYPE tessera_http_requests_total counter
tessera_http_requests_total{method="GET",path="/health",status="200"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg,
		strings.NewReader(expected), "tessera_http_requests_total",
	))
}

func assertGauge(
	t *testing.T, reg *prometheus.Registry, name string, want float64,
) {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			require.Len(t, mf.GetMetric(), 1)
			assert.Equal(t, want, mf.GetMetric()[0].GetGauge().GetValue())
			return
		}
	}
	t.Fatalf("metric %s not gathered", name)
}

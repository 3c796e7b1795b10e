package activity_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-flow/tessera/engine/internal/activity"
	"github.com/tessera-flow/tessera/engine/pkg/api"
)

func httpRequest(cfg api.Config) *api.ActivityRequest {
	return &api.ActivityRequest{
		InstanceID: "inst-1",
		TaskID:     "call",
		Activity:   activity.KindHTTP,
		Attempt:    1,
		Config:     cfg,
	}
}

func TestHTTPActivityJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			data, _ := io.ReadAll(r.Body)
			assert.NoError(t, json.Unmarshal(data, &body))
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "secret", r.Header.Get("X-Token"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, map[string]any{"customer": "acme"}, body)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"order":{"id":"o-1","total":42}}`))
		},
	))
	defer server.Close()

	a := activity.NewHTTPActivity()
	res, err := a.Invoke(context.Background(), httpRequest(api.Config{
		"url":         server.URL,
		"method":      "post",
		"headers":     map[string]any{"X-Token": "secret"},
		"body":        map[string]any{"customer": "acme"},
		"result_path": "order.id",
	}))
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res["status_code"])
	assert.Equal(t, "o-1", res["result"])
	body, ok := res["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"id": "o-1", "total": float64(42)},
		body["order"])
	headers, ok := res["headers"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "application/json", headers["Content-Type"])
}

func TestHTTPActivityText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("plain text"))
		},
	))
	defer server.Close()

	a := activity.NewHTTPActivity()
	res, err := a.Invoke(context.Background(), httpRequest(api.Config{
		"url":         server.URL,
		"result_path": "missing",
	}))
	require.NoError(t, err)
	assert.Equal(t, "plain text", res["body"])
	assert.NotContains(t, res, "result")
}

func TestHTTPActivityStatusErrors(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNotFound)
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(int(status.Load()))
			_, _ = w.Write([]byte("nope"))
		},
	))
	defer server.Close()

	a := activity.NewHTTPActivity()
	req := httpRequest(api.Config{"url": server.URL})

	_, err := a.Invoke(context.Background(), req)
	assert.ErrorIs(t, err, activity.ErrHTTPStatus)
	assert.False(t, api.IsRetryable(err))
	assert.Contains(t, err.Error(), "HTTP 404: nope")

	status.Store(http.StatusBadGateway)
	_, err = a.Invoke(context.Background(), req)
	assert.ErrorIs(t, err, activity.ErrHTTPStatus)
	assert.True(t, api.IsRetryable(err))
}

func TestHTTPActivityTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		},
	))
	defer server.Close()
	defer close(release)

	a := activity.NewHTTPActivity()
	start := time.Now()
	_, err := a.Invoke(context.Background(), httpRequest(api.Config{
		"url":     server.URL,
		"timeout": "20ms",
	}))
	assert.Error(t, err)
	assert.True(t, api.IsRetryable(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHTTPActivityBadConfig(t *testing.T) {
	a := activity.NewHTTPActivity()

	_, err := a.Invoke(context.Background(), httpRequest(api.Config{}))
	assert.ErrorIs(t, err, activity.ErrNoURL)
	assert.False(t, api.IsRetryable(err))

	_, err = a.Invoke(context.Background(), httpRequest(api.Config{
		"url":     "http://localhost",
		"timeout": "soon",
	}))
	assert.ErrorIs(t, err, activity.ErrInvalidConfig)
	assert.False(t, api.IsRetryable(err))
}

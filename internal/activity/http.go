package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tessera-flow/tessera/engine/pkg/api"
	"github.com/tessera-flow/tessera/engine/pkg/log"
)

type (
	// HTTPActivity performs a single HTTP request per attempt
	HTTPActivity struct {
		client *http.Client
	}

	httpConfig struct {
		headers    map[string]any
		body       any
		url        string
		method     string
		resultPath string
		timeout    time.Duration
	}
)

const (
	httpConfigURL        = "url"
	httpConfigMethod     = "method"
	httpConfigHeaders    = "headers"
	httpConfigBody       = "body"
	httpConfigTimeout    = "timeout"
	httpConfigResultPath = "result_path"

	httpResultStatus  = "status_code"
	httpResultHeaders = "headers"
	httpResultBody    = "body"
	httpResultValue   = "result"

	defaultHTTPTimeout = 30 * time.Second
	httpUserAgent      = "Tessera-Engine/1.0"
	maxErrorBody       = 512
)

var (
	ErrNoURL         = errors.New("http activity requires a url")
	ErrHTTPStatus    = errors.New("http activity returned error status")
	ErrInvalidConfig = errors.New("invalid activity config")
)

// NewHTTPActivity creates an HTTP activity using its own client
func NewHTTPActivity() *HTTPActivity {
	return NewHTTPActivityWithClient(&http.Client{})
}

// NewHTTPActivityWithClient creates an HTTP activity over the given client
func NewHTTPActivityWithClient(c *http.Client) *HTTPActivity {
	return &HTTPActivity{client: c}
}

// Invoke sends the configured request. Client errors (4xx) can never
// succeed on retry and are reported as permanent, while server errors and
// transport failures are retryable
func (a *HTTPActivity) Invoke(
	ctx context.Context, req *api.ActivityRequest,
) (api.Args, error) {
	cfg, err := parseHTTPConfig(req.Config)
	if err != nil {
		return nil, api.PermanentError(err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	httpReq, err := cfg.newRequest(ctx)
	if err != nil {
		return nil, api.PermanentError(err)
	}

	start := time.Now()
	resp, err := a.client.Do(httpReq)
	dur := time.Since(start)
	if err != nil {
		slog.Warn("HTTP activity request failed",
			log.InstanceID(req.InstanceID),
			log.TaskID(req.TaskID),
			slog.Duration("duration", dur),
			log.Error(err))
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		err := fmt.Errorf("%w: HTTP %d: %s",
			ErrHTTPStatus, resp.StatusCode, truncate(body))
		if resp.StatusCode < http.StatusInternalServerError {
			return nil, api.PermanentError(err)
		}
		return nil, api.RetryableError(err)
	}

	slog.Debug("HTTP activity completed",
		log.InstanceID(req.InstanceID),
		log.TaskID(req.TaskID),
		slog.Int("status_code", resp.StatusCode),
		slog.Duration("duration", dur))
	return cfg.result(resp, body), nil
}

func parseHTTPConfig(c api.Config) (*httpConfig, error) {
	cfg := &httpConfig{
		url:        c.GetString(httpConfigURL, ""),
		method:     strings.ToUpper(c.GetString(httpConfigMethod, "GET")),
		headers:    c.GetMap(httpConfigHeaders),
		body:       c[httpConfigBody],
		resultPath: c.GetString(httpConfigResultPath, ""),
		timeout:    defaultHTTPTimeout,
	}
	if cfg.url == "" {
		return nil, ErrNoURL
	}
	if t, ok := c[httpConfigTimeout]; ok {
		d, err := configDuration(t)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w",
				ErrInvalidConfig, httpConfigTimeout, err)
		}
		cfg.timeout = d
	}
	return cfg, nil
}

// configDuration accepts a duration string or a number of seconds
func configDuration(v any) (time.Duration, error) {
	switch v := v.(type) {
	case string:
		return time.ParseDuration(v)
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func (c *httpConfig) newRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if c.body != nil {
		data, err := json.Marshal(c.body)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w",
				ErrInvalidConfig, httpConfigBody, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, c.url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", httpUserAgent)
	for k, v := range c.headers {
		req.Header.Set(k, fmt.Sprint(v))
	}
	return req, nil
}

func (c *httpConfig) result(resp *http.Response, body []byte) api.Args {
	headers := make(map[string]any, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	res := api.Args{
		httpResultStatus:  resp.StatusCode,
		httpResultHeaders: headers,
		httpResultBody:    string(body),
	}
	isJSON := gjson.ValidBytes(body) && len(bytes.TrimSpace(body)) > 0
	if isJSON {
		res[httpResultBody] = gjson.ParseBytes(body).Value()
	}
	if c.resultPath != "" && isJSON {
		if v := gjson.GetBytes(body, c.resultPath); v.Exists() {
			res[httpResultValue] = v.Value()
		}
	}
	return res
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

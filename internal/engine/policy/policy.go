package policy

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/tessera-flow/tessera/engine/pkg/api"
)

type (
	// Policy is the canonical retry and timeout policy of a single task,
	// with every default already applied
	Policy struct {
		MaxAttempts         int
		InitialBackoff      time.Duration
		MaxBackoff          time.Duration
		Multiplier          float64
		Timeout             time.Duration
		NonRetryableTimeout bool
	}

	// Defaults supplies the values used when a task leaves a field unset
	Defaults struct {
		Retry   api.RetryPolicy
		Timeout time.Duration
	}

	// FailureKind classifies a failed attempt
	FailureKind uint8
)

const (
	FailureRetryable FailureKind = iota
	FailurePermanent
	FailureTimeout
)

// MaxDelay bounds every backoff, including policies that declare no cap
const MaxDelay = 24 * time.Hour

// ErrAttemptTimeout is reported when an attempt exceeds its timeout
var ErrAttemptTimeout = errors.New("task attempt timed out")

// Normalize merges the task's declarations with the defaults. The result
// always satisfies MaxAttempts >= 1, Multiplier >= 1, and positive
// durations
func Normalize(task *api.TaskDefinition, d Defaults) Policy {
	res := Policy{
		MaxAttempts:         d.Retry.MaxAttempts,
		InitialBackoff:      d.Retry.InitialBackoff.Std(),
		MaxBackoff:          d.Retry.MaxBackoff.Std(),
		Multiplier:          d.Retry.Multiplier,
		NonRetryableTimeout: d.Retry.NonRetryableTimeout,
		Timeout:             d.Timeout,
	}

	if r := task.Retry; r != nil {
		if r.MaxAttempts > 0 {
			res.MaxAttempts = r.MaxAttempts
		}
		if r.InitialBackoff > 0 {
			res.InitialBackoff = r.InitialBackoff.Std()
		}
		if r.MaxBackoff > 0 {
			res.MaxBackoff = r.MaxBackoff.Std()
		}
		if r.Multiplier > 0 {
			res.Multiplier = r.Multiplier
		}
		if r.NonRetryableTimeout {
			res.NonRetryableTimeout = true
		}
	}
	if task.Timeout > 0 {
		res.Timeout = task.Timeout.Std()
	}

	if res.MaxAttempts < 1 {
		res.MaxAttempts = 1
	}
	if res.Multiplier < 1 {
		res.Multiplier = 1
	}
	if res.InitialBackoff <= 0 {
		res.InitialBackoff = time.Second
	}
	if res.InitialBackoff > MaxDelay {
		res.InitialBackoff = MaxDelay
	}
	if res.MaxBackoff <= 0 || res.MaxBackoff > MaxDelay {
		res.MaxBackoff = MaxDelay
	}
	if res.MaxBackoff < res.InitialBackoff {
		res.MaxBackoff = res.InitialBackoff
	}
	return res
}

// NextBackoff returns the delay before the attempt following attempt n:
// initial * multiplier^(n-1), capped at MaxBackoff, or at MaxDelay when
// no cap is set
func NextBackoff(p Policy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	limit := MaxDelay
	if p.MaxBackoff > 0 && p.MaxBackoff < MaxDelay {
		limit = p.MaxBackoff
	}
	delay := float64(p.InitialBackoff) *
		math.Pow(p.Multiplier, float64(attempt-1))
	if delay >= float64(limit) || math.IsInf(delay, 1) || math.IsNaN(delay) {
		return limit
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether another attempt may follow attempt n
func ShouldRetry(p Policy, attempt int, kind FailureKind) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	switch kind {
	case FailurePermanent:
		return false
	case FailureTimeout:
		return !p.NonRetryableTimeout
	default:
		return true
	}
}

// Classify determines the failure kind of an attempt's error
func Classify(err error) FailureKind {
	switch {
	case errors.Is(err, ErrAttemptTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case !api.IsRetryable(err):
		return FailurePermanent
	default:
		return FailureRetryable
	}
}

func (k FailureKind) String() string {
	switch k {
	case FailurePermanent:
		return "permanent"
	case FailureTimeout:
		return "timeout"
	default:
		return "retryable"
	}
}

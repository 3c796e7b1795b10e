package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-flow/tessera/engine/internal/engine/scheduler"
)

type fakeTimer struct {
	ch       chan time.Time
	resets   chan time.Duration
	fireHook func(time.Time)
}

const waitTimeout = time.Second

func TestScheduleFires(t *testing.T) {
	withFakeScheduler(t, func(
		ctx context.Context, s *scheduler.Scheduler, timer *fakeTimer,
		now time.Time,
	) {
		done := make(chan struct{}, 1)
		s.Schedule(ctx, scheduler.Key{Group: "i", Name: "retry"},
			now.Add(40*time.Millisecond),
			func() error {
				done <- struct{}{}
				return nil
			},
		)
		assert.Equal(t, 40*time.Millisecond, timer.waitReset(t))

		timer.fire(now.Add(time.Second))
		waitFor(t, done)
		assert.Equal(t, 0, s.Pending(ctx))
	})
}

func TestScheduleReplacesKey(t *testing.T) {
	withFakeScheduler(t, func(
		ctx context.Context, s *scheduler.Scheduler, timer *fakeTimer,
		now time.Time,
	) {
		var first atomic.Int32
		done := make(chan struct{}, 1)
		key := scheduler.Key{Group: "i", Name: "replace"}

		s.Schedule(ctx, key, now.Add(300*time.Millisecond), func() error {
			first.Add(1)
			return nil
		})
		assert.Equal(t, 300*time.Millisecond, timer.waitReset(t))

		s.Schedule(ctx, key, now.Add(20*time.Millisecond), func() error {
			done <- struct{}{}
			return nil
		})
		assert.Equal(t, 20*time.Millisecond, timer.waitReset(t))
		assert.Equal(t, 1, s.Pending(ctx))

		timer.fire(now.Add(time.Second))
		waitFor(t, done)
		assert.Equal(t, int32(0), first.Load())
	})
}

func TestCancel(t *testing.T) {
	withFakeScheduler(t, func(
		ctx context.Context, s *scheduler.Scheduler, timer *fakeTimer,
		now time.Time,
	) {
		key := scheduler.Key{Group: "i", Name: "gone"}
		s.Schedule(ctx, key, now.Add(time.Minute), func() error {
			return errors.New("should not run")
		})
		timer.waitReset(t)
		assert.Equal(t, 1, s.Pending(ctx))

		s.Cancel(ctx, key)
		assert.Equal(t, 0, s.Pending(ctx))
	})
}

func TestCancelGroup(t *testing.T) {
	withFakeScheduler(t, func(
		ctx context.Context, s *scheduler.Scheduler, timer *fakeTimer,
		now time.Time,
	) {
		noop := func() error { return nil }
		s.Schedule(ctx, scheduler.Key{Group: "a", Name: "1"},
			now.Add(time.Minute), noop)
		s.Schedule(ctx, scheduler.Key{Group: "a", Name: "2"},
			now.Add(2*time.Minute), noop)
		s.Schedule(ctx, scheduler.Key{Group: "b", Name: "1"},
			now.Add(3*time.Minute), noop)
		assert.Equal(t, 3, s.Pending(ctx))

		s.CancelGroup(ctx, "a")
		assert.Equal(t, 1, s.Pending(ctx))
	})
}

func TestFiresInDueOrder(t *testing.T) {
	withFakeScheduler(t, func(
		ctx context.Context, s *scheduler.Scheduler, timer *fakeTimer,
		now time.Time,
	) {
		order := make(chan string, 3)
		add := func(name string, delay time.Duration) {
			s.Schedule(ctx, scheduler.Key{Group: "g", Name: name},
				now.Add(delay), func() error {
					order <- name
					return nil
				})
		}
		add("late", 30*time.Millisecond)
		add("early", 10*time.Millisecond)
		add("middle", 20*time.Millisecond)
		assert.Equal(t, 3, s.Pending(ctx))

		timer.fire(now.Add(time.Second))
		assert.Equal(t, "early", <-order)
		assert.Equal(t, "middle", <-order)
		assert.Equal(t, "late", <-order)
	})
}

func withFakeScheduler(
	t *testing.T,
	fn func(context.Context, *scheduler.Scheduler, *fakeTimer, time.Time),
) {
	t.Helper()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	var current atomic.Pointer[time.Time]
	current.Store(&now)

	timer := &fakeTimer{
		ch:     make(chan time.Time, 1),
		resets: make(chan time.Duration, 16),
	}
	s := scheduler.New(
		func() time.Time { return *current.Load() },
		func(time.Duration) scheduler.Timer { return timer },
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	timer.fireHook = func(at time.Time) { current.Store(&at) }
	fn(ctx, s, timer, now)
}

func (t *fakeTimer) Channel() <-chan time.Time {
	return t.ch
}

func (t *fakeTimer) Reset(delay time.Duration) bool {
	select {
	case t.resets <- delay:
	default:
	}
	return true
}

func (t *fakeTimer) Stop() bool {
	return true
}

func (t *fakeTimer) fire(at time.Time) {
	t.fireHook(at)
	t.ch <- at
}

func (t *fakeTimer) waitReset(test *testing.T) time.Duration {
	test.Helper()
	select {
	case d := <-t.resets:
		return d
	case <-time.After(waitTimeout):
		require.FailNow(test, "timer was not reset")
		return 0
	}
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		require.FailNow(t, "scheduled function did not run")
	}
}

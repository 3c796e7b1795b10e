package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/tessera-flow/tessera/engine/pkg/log"
)

type (
	// Scheduler runs functions at a requested time. All bookkeeping happens
	// on the goroutine executing Run
	Scheduler struct {
		now       Clock
		makeTimer TimerConstructor
		reqs      chan request
	}

	// Func is called when its due time arrives
	Func func() error

	requestOp uint8

	request struct {
		fn    Func
		at    time.Time
		reply chan int
		key   Key
		group string
		op    requestOp
	}
)

const (
	opSchedule requestOp = iota
	opCancel
	opCancelGroup
	opCount
)

const requestBuffer = 128

// New creates a scheduler using the provided clock and timer constructor
func New(now Clock, makeTimer TimerConstructor) *Scheduler {
	return &Scheduler{
		now:       now,
		makeTimer: makeTimer,
		reqs:      make(chan request, requestBuffer),
	}
}

// Schedule registers fn to run at the given time, replacing any function
// already registered under the same key
func (s *Scheduler) Schedule(
	ctx context.Context, key Key, at time.Time, fn Func,
) {
	s.send(ctx, request{op: opSchedule, key: key, at: at, fn: fn})
}

// Cancel removes the function registered under key
func (s *Scheduler) Cancel(ctx context.Context, key Key) {
	s.send(ctx, request{op: opCancel, key: key})
}

// CancelGroup removes every function registered under the group
func (s *Scheduler) CancelGroup(ctx context.Context, group string) {
	s.send(ctx, request{op: opCancelGroup, group: group})
}

// Pending returns the number of registered functions once every earlier
// request has been applied
func (s *Scheduler) Pending(ctx context.Context) int {
	res := make(chan int, 1)
	s.send(ctx, request{op: opCount, reply: res})
	select {
	case n := <-res:
		return n
	case <-ctx.Done():
		return 0
	}
}

// Run services requests and fires due functions until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	q := newQueue()
	timer := s.makeTimer(time.Hour)
	timer.Stop()
	var timerCh <-chan time.Time

	rearm := func() {
		next := q.peek()
		if next == nil {
			timer.Stop()
			timerCh = nil
			return
		}
		timer.Reset(max(next.at.Sub(s.now()), 0))
		timerCh = timer.Channel()
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case req := <-s.reqs:
			switch req.op {
			case opSchedule:
				q.put(req.key, req.at, req.fn)
			case opCancel:
				q.remove(req.key)
			case opCancelGroup:
				q.removeGroup(req.group)
			case opCount:
				req.reply <- q.Len()
				continue
			}
			rearm()

		case <-timerCh:
			now := s.now()
			for e := q.peek(); e != nil && !e.at.After(now); e = q.peek() {
				q.pop()
				if err := e.fn(); err != nil {
					slog.Error("Scheduled function failed",
						slog.String("group", e.key.Group),
						slog.String("name", e.key.Name),
						log.Error(err))
				}
			}
			rearm()
		}
	}
}

func (s *Scheduler) send(ctx context.Context, req request) {
	select {
	case s.reqs <- req:
	case <-ctx.Done():
	}
}

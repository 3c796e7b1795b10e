package scheduler

import "time"

type (
	// Clock reports the current time
	Clock func() time.Time

	// Timer wakes the scheduler loop. Reset and Stop behave like their
	// time.Timer counterparts
	Timer interface {
		Channel() <-chan time.Time
		Reset(delay time.Duration) bool
		Stop() bool
	}

	// TimerConstructor builds a Timer that fires after delay
	TimerConstructor func(delay time.Duration) Timer

	wallTimer struct {
		t *time.Timer
	}
)

// NewTimer returns a Timer backed by the runtime's timers
func NewTimer(delay time.Duration) Timer {
	return wallTimer{t: time.NewTimer(delay)}
}

func (w wallTimer) Channel() <-chan time.Time {
	return w.t.C
}

func (w wallTimer) Reset(delay time.Duration) bool {
	return w.t.Reset(delay)
}

func (w wallTimer) Stop() bool {
	return w.t.Stop()
}

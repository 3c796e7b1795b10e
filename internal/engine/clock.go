package engine

import (
	"time"

	"github.com/tessera-flow/tessera/engine/internal/engine/scheduler"
)

type (
	// Clock reports the time used for retry and approval deadlines
	Clock = scheduler.Clock

	// Timer wakes the engine's scheduler
	Timer = scheduler.Timer

	// TimerConstructor builds a Timer that fires after delay
	TimerConstructor = scheduler.TimerConstructor
)

// NewTimer returns the default runtime-backed Timer
func NewTimer(delay time.Duration) Timer {
	return scheduler.NewTimer(delay)
}

// Now returns the current time according to the engine's clock
func (e *Engine) Now() time.Time {
	return e.clock()
}

package modem

import "time"

// Timer measures a command deadline against an injected clock. It is only
// touched from the poll loop.
type Timer struct {
	clock     Clock
	timeout   time.Duration
	startTime time.Time
	running   bool
}

// NewTimer creates a stopped timer
func NewTimer(clock Clock) *Timer {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Timer{clock: clock}
}

// Start (re)arms the timer for timeout from now
func (t *Timer) Start(timeout time.Duration) {
	t.timeout = timeout
	t.startTime = t.clock.Now()
	t.running = true
}

// Stop disarms the timer
func (t *Timer) Stop() {
	t.running = false
}

// IsRunning returns true if the timer is armed
func (t *Timer) IsRunning() bool {
	return t.running
}

// HasExpired reports whether the full timeout has elapsed. A deadline is
// reached at exactly start+timeout, never before.
func (t *Timer) HasExpired() bool {
	if !t.running {
		return false
	}
	return t.clock.Now().Sub(t.startTime) >= t.timeout
}

// Elapsed returns time since Start, zero when stopped
func (t *Timer) Elapsed() time.Duration {
	if !t.running {
		return 0
	}
	return t.clock.Now().Sub(t.startTime)
}

// Remaining returns time left before expiry
func (t *Timer) Remaining() time.Duration {
	if !t.running {
		return 0
	}
	remaining := t.timeout - t.Elapsed()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Timeout returns the armed duration
func (t *Timer) Timeout() time.Duration {
	return t.timeout
}

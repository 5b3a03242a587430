// Package reconnect schedules connection attempts with exponential backoff.
package reconnect

import (
	"math"
	"sync"
	"time"
)

// State identifies where the controller is in the connection lifecycle.
type State int32

const (
	// StateIdle means no attempt has been requested yet.
	StateIdle State = iota
	// StateConnecting means an attempt is due or in flight.
	StateConnecting
	// StateConnected means the last attempt succeeded.
	StateConnected
	// StateBackingOff means a retry timer is pending.
	StateBackingOff
	// StateTerminal means the attempt ceiling was reached.
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackingOff:
		return "backing-off"
	case StateTerminal:
		return "terminal"
	}
	return "unknown"
}

// Config holds the retry schedule parameters.
type Config struct {
	BaseDelay    time.Duration
	GrowthFactor float64
	CapDelay     time.Duration
	MaxAttempts  int
}

// Init applies schedule defaults.
func (c *Config) Init() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.GrowthFactor <= 1 {
		c.GrowthFactor = 1.5
	}
	if c.CapDelay <= 0 {
		c.CapDelay = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
}

// Delay returns the backoff delay after the given failed attempt, counted
// from 1: min(base x growth^(attempt-1), cap).
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(c.BaseDelay) * math.Pow(c.GrowthFactor, float64(attempt-1))
	if delay > float64(c.CapDelay) || delay < 0 {
		return c.CapDelay
	}
	return time.Duration(delay)
}

// Controller drives when connection attempts happen. It never dials itself:
// each time an attempt is due it emits a token on C, the owner dials and
// reports the outcome via Connected or Failed. After MaxAttempts consecutive
// failures the Terminal channel closes and no further token is emitted until
// an explicit Restart.
type Controller struct {
	config   Config
	mux      sync.Mutex
	state    State
	attempts int
	lastErr  error
	timer    *time.Timer
	dial     chan struct{}
	terminal chan struct{}
	stopped  bool
}

// New returns an idle controller.
func New(config Config) *Controller {
	config.Init()
	return &Controller{
		config:   config,
		state:    StateIdle,
		dial:     make(chan struct{}, 1),
		terminal: make(chan struct{}),
	}
}

// C emits a token whenever a connection attempt should begin.
func (c *Controller) C() <-chan struct{} {
	return c.dial
}

// Terminal closes once the attempt ceiling is reached. Restart re-arms it,
// so callers should re-fetch the channel after a restart.
func (c *Controller) Terminal() <-chan struct{} {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.terminal
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.state
}

// Attempts returns the consecutive failure count.
func (c *Controller) Attempts() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.attempts
}

// LastError returns the most recent failure reported to the controller.
func (c *Controller) LastError() error {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.lastErr
}

// Kick requests an immediate attempt when the controller is idle. While a
// retry is already pending, an attempt is in flight, the connection is up,
// or the controller is terminal, Kick is a no-op.
func (c *Controller) Kick() {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.stopped || c.state != StateIdle {
		return
	}
	c.beginAttempt()
}

// Connected reports a successful attempt; the failure count resets.
func (c *Controller) Connected() {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.stopped || c.state == StateTerminal {
		return
	}
	c.state = StateConnected
	c.attempts = 0
	c.lastErr = nil
}

// Failed reports a failed attempt or a dropped live connection. The failure
// count increments first, then the next attempt is scheduled for
// min(base x growth^(count-1), cap) from now; once the count reaches the
// ceiling the controller goes terminal instead.
func (c *Controller) Failed(err error) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.stopped || c.state == StateTerminal {
		return
	}
	c.lastErr = err
	c.attempts++
	if c.attempts >= c.config.MaxAttempts {
		c.state = StateTerminal
		close(c.terminal)
		return
	}
	c.state = StateBackingOff
	delay := c.config.Delay(c.attempts)
	c.timer = time.AfterFunc(delay, c.retry)
}

// Restart leaves the terminal state, resets the failure count and requests
// an immediate attempt. Outside the terminal state it is a no-op.
func (c *Controller) Restart() {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.stopped || c.state != StateTerminal {
		return
	}
	c.attempts = 0
	c.lastErr = nil
	c.terminal = make(chan struct{})
	c.beginAttempt()
}

// Stop cancels any pending retry; the controller accepts no further events.
func (c *Controller) Stop() {
	c.mux.Lock()
	defer c.mux.Unlock()
	c.stopped = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// NextDelay previews the delay that would follow one more failure.
func (c *Controller) NextDelay() time.Duration {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.config.Delay(c.attempts + 1)
}

func (c *Controller) retry() {
	c.mux.Lock()
	defer c.mux.Unlock()
	if c.stopped || c.state != StateBackingOff {
		return
	}
	c.beginAttempt()
}

// beginAttempt transitions to connecting and emits a dial token; callers
// hold the mutex.
func (c *Controller) beginAttempt() {
	c.state = StateConnecting
	select {
	case c.dial <- struct{}{}:
	default:
	}
}

// Package reconnect drives the push-transport lifecycle as an explicit
// state machine with exponential backoff, so the owning service never has
// to reason about scattered timer handles and attempt counters.
package reconnect

import "time"

// State is the push-connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateRetrying
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateRetrying:
		return "retrying"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Controller tracks consecutive push failures and computes backoff delays.
// It is a passive state machine: the owner performs I/O and timers and
// reports outcomes here. Not safe for concurrent use; the owning run loop
// is its only caller.
type Controller struct {
	state       State
	attempts    int
	baseDelay   time.Duration
	maxAttempts int
}

func New(baseDelay time.Duration, maxAttempts int) *Controller {
	return &Controller{
		state:       StateIdle,
		baseDelay:   baseDelay,
		maxAttempts: maxAttempts,
	}
}

// Start arms a fresh connection attempt. Called on service start and on an
// explicit manual reconnect; always resets the attempt counter.
func (c *Controller) Start() {
	c.state = StateConnecting
	c.attempts = 0
}

// Connected records a successful connection and clears the failure streak.
func (c *Controller) Connected() {
	c.state = StateConnected
	c.attempts = 0
}

// ConnectionLost records a dial failure or dropped connection. When another
// attempt is allowed it returns (delay, true) where delay doubles per
// consecutive failure; once the configured maximum is reached it returns
// (0, false) and the controller stays exhausted until Start.
func (c *Controller) ConnectionLost() (time.Duration, bool) {
	if c.attempts >= c.maxAttempts {
		c.state = StateExhausted
		return 0, false
	}
	c.attempts++
	c.state = StateRetrying
	return c.baseDelay << (c.attempts - 1), true
}

// Retrying reports the scheduled attempt is now being dialed.
func (c *Controller) Retrying() {
	c.state = StateConnecting
}

// Reset returns the controller to idle, e.g. on service stop.
func (c *Controller) Reset() {
	c.state = StateIdle
	c.attempts = 0
}

func (c *Controller) State() State { return c.state }

func (c *Controller) Attempts() int { return c.attempts }

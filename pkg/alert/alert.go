// Package alert turns a noisy "is abnormal" predicate into discrete,
// rate-limited events.
//
// A Condition starts Idle. A true input starts the debounce timer; once the
// input has stayed true for the debounce time the condition becomes Active
// and emits Started. While Active it emits Repeated every repeat interval,
// measured from the previous alert. A false input aborts any debounce
// silently and, if Active, emits Normalized. Elapsed time uses >= so a tick
// landing exactly on the boundary counts.
//
// Callers supply now from a monotonic clock (time.Now carries one). Backward
// jumps are not supported. A Condition is not safe for concurrent use; the
// control loop owns every instance.
package alert

import "time"

// Transition is the outcome of one Check.
type Transition int

const (
	None Transition = iota
	Started
	Repeated
	Normalized
)

func (t Transition) String() string {
	switch t {
	case None:
		return "none"
	case Started:
		return "started"
	case Repeated:
		return "repeated"
	case Normalized:
		return "normalized"
	}
	return "unknown"
}

// instant is an optional timestamp. The zero value means "not running",
// which never collides with a real reading of the clock.
type instant struct {
	t   time.Time
	set bool
}

func at(t time.Time) instant { return instant{t: t, set: true} }

func (i instant) since(now time.Time) time.Duration { return now.Sub(i.t) }

// Condition is one debounce/repeat state machine.
type Condition struct {
	name     string
	debounce time.Duration
	repeat   time.Duration

	startedAt   instant
	lastAlertAt instant
	active      bool
}

// New creates an idle condition.
func New(name string, debounce, repeat time.Duration) *Condition {
	return &Condition{name: name, debounce: debounce, repeat: repeat}
}

// Check advances the state machine with the current predicate value.
func (c *Condition) Check(isErr bool, now time.Time) Transition {
	if !isErr {
		c.startedAt = instant{}
		if c.active {
			c.active = false
			c.lastAlertAt = instant{}
			return Normalized
		}
		return None
	}

	if !c.startedAt.set {
		c.startedAt = at(now)
	}
	if c.startedAt.since(now) < c.debounce {
		return None
	}

	if !c.active {
		c.active = true
		c.lastAlertAt = at(now)
		return Started
	}
	if c.lastAlertAt.since(now) >= c.repeat {
		c.lastAlertAt = at(now)
		return Repeated
	}
	return None
}

// Name returns the condition's name.
func (c *Condition) Name() string { return c.name }

// Active reports whether the condition is confirmed.
func (c *Condition) Active() bool { return c.active }

// Debouncing reports whether the input is true but not yet confirmed.
func (c *Condition) Debouncing() bool { return c.startedAt.set && !c.active }

// SetDebounce changes the debounce time. A running debounce is measured
// against the new value on the next Check.
func (c *Condition) SetDebounce(d time.Duration) { c.debounce = d }

// SetRepeat changes the repeat interval.
func (c *Condition) SetRepeat(d time.Duration) { c.repeat = d }

// Debounce returns the debounce time.
func (c *Condition) Debounce() time.Duration { return c.debounce }

// Reset returns the condition to Idle without emitting anything.
func (c *Condition) Reset() {
	c.startedAt = instant{}
	c.lastAlertAt = instant{}
	c.active = false
}

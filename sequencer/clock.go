package sequencer

import (
	"time"

	"github.com/pkg/errors"

	"go-pianola/score"
)

// ClockState is the playback state of a Clock.
type ClockState int

const (
	Stopped ClockState = iota
	Running
	Paused
)

func (s ClockState) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	}
	return "stopped"
}

// ErrClockState is returned for lifecycle calls that are invalid in the current state.
var ErrClockState = errors.New("invalid clock transition")

// Clock measures elapsed playback time. Elapsed is monotonic while running and
// frozen while paused. Internally it keeps full precision so repeated
// pause/resume cycles never accumulate rounding.
type Clock struct {
	now    func() time.Time
	state  ClockState
	base   time.Time     // wall time of elapsed 0, valid while running
	frozen time.Duration // elapsed while paused or stopped
	leadIn score.Millis
}

// NewClock returns a stopped clock reading time from now (time.Now if nil).
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) State() ClockState {
	return c.state
}

// LeadIn returns the pre-roll given to Start.
func (c *Clock) LeadIn() score.Millis {
	return c.leadIn
}

// Start begins a playback pass at elapsed 0.
func (c *Clock) Start(leadIn score.Millis) error {
	if c.state != Stopped {
		return errors.Wrapf(ErrClockState, "start while %s", c.state)
	}
	if leadIn < 0 {
		return errors.Errorf("negative lead-in %dms", leadIn)
	}
	c.leadIn = leadIn
	c.frozen = 0
	c.base = c.now()
	c.state = Running
	return nil
}

// Pause freezes elapsed and returns it. Pausing a paused clock returns the
// same value again.
func (c *Clock) Pause() (score.Millis, error) {
	switch c.state {
	case Running:
		c.frozen = c.now().Sub(c.base)
		c.state = Paused
	case Stopped:
		return 0, errors.Wrap(ErrClockState, "pause while stopped")
	}
	return toMillis(c.frozen), nil
}

// Resume continues from elapsed from. Passing the value returned by Pause
// continues exactly where the clock stopped.
func (c *Clock) Resume(from score.Millis) error {
	switch c.state {
	case Running:
		return nil
	case Stopped:
		return errors.Wrap(ErrClockState, "resume while stopped")
	}
	if from < 0 {
		return errors.Errorf("negative resume position %dms", from)
	}
	if from != toMillis(c.frozen) {
		c.frozen = from.Duration()
	}
	c.base = c.now().Add(-c.frozen)
	c.state = Running
	return nil
}

// Restart rewinds elapsed to 0. A running clock keeps running, otherwise
// the clock ends up stopped.
func (c *Clock) Restart() {
	c.frozen = 0
	if c.state == Running {
		c.base = c.now()
		return
	}
	c.state = Stopped
}

// Now returns elapsed milliseconds of the current pass.
func (c *Clock) Now() score.Millis {
	if c.state == Running {
		return toMillis(c.now().Sub(c.base))
	}
	return toMillis(c.frozen)
}

// Position returns elapsed minus the lead-in, i.e. the song position.
// Negative during pre-roll.
func (c *Clock) Position() score.Millis {
	return c.Now() - c.leadIn
}

func toMillis(d time.Duration) score.Millis {
	if d < 0 {
		return 0
	}
	return score.Millis(d / time.Millisecond)
}

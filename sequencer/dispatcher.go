package sequencer

import (
	"github.com/charmbracelet/log"

	"go-pianola/debug"
	"go-pianola/device"
	"go-pianola/score"
)

// Sink is the output channel. Send must not block; a sink that cannot take
// the message returns an error and the message is dropped.
type Sink interface {
	Send(m device.Message) error
}

// Counters record what a dispatcher did with the events it released.
type Counters struct {
	Dispatched  int // sent to the sink without error
	Unsupported int // skipped, pitch outside the device profile
	Dropped     int // rejected by the sink
}

// Dispatcher releases events to a sink ahead of the playhead. It keeps one
// cursor into the sorted event list and never looks back.
type Dispatcher struct {
	score   *score.Score
	profile device.Profile
	window  score.Millis
	sink    Sink
	logger  *log.Logger
	sampler *debug.Sampler

	cursor   int
	counters Counters
}

// NewDispatcher returns a dispatcher for an adjusted score.
func NewDispatcher(s *score.Score, profile device.Profile, window score.Millis, sink Sink, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Dispatcher{
		score:   s,
		profile: profile,
		window:  window,
		sink:    sink,
		logger:  logger.WithPrefix("dispatch"),
		sampler: debug.NewSampler(100),
	}
}

// Tick releases every pending event with At <= elapsed+window, in order, and
// returns how many events it consumed.
func (d *Dispatcher) Tick(elapsed score.Millis) int {
	horizon := elapsed + d.window
	events := d.score.Events
	start := d.cursor

	for d.cursor < len(events) && events[d.cursor].At <= horizon {
		e := events[d.cursor]
		d.cursor++
		d.release(e)
	}
	return d.cursor - start
}

func (d *Dispatcher) release(e score.Event) {
	msg, err := d.profile.Translate(e, d.score.Notes[e.Note])
	if err != nil {
		d.counters.Unsupported++
		d.logger.Warn("skipping event", "event", e.String(), "err", err)
		return
	}
	if err := d.sink.Send(msg); err != nil {
		d.counters.Dropped++
		d.sampler.LogEvery(d.logger, "send", "send failed, event dropped", "event", e.String(), "err", err)
		return
	}
	d.counters.Dispatched++
}

// Control sends a lifecycle message. Failures are logged, never returned:
// the clock keeps running whatever the channel does.
func (d *Dispatcher) Control(m device.Message) {
	if err := d.sink.Send(m); err != nil {
		d.logger.Warn("control message dropped", "type", m.Type(), "err", err)
	}
}

// Reset rewinds the cursor for a fresh pass. Counters are kept.
func (d *Dispatcher) Reset() {
	d.cursor = 0
	d.sampler.Reset()
}

// Cursor returns the index of the next event to release.
func (d *Dispatcher) Cursor() int {
	return d.cursor
}

// Done reports whether every event has been released.
func (d *Dispatcher) Done() bool {
	return d.cursor >= len(d.score.Events)
}

func (d *Dispatcher) Counters() Counters {
	return d.counters
}

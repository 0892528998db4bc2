package sequencer

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"

	"go-pianola/score"
)

// ErrNoScore is returned by playback calls before a score is loaded.
var ErrNoScore = errors.New("no score loaded")

// Manager owns the active session and serializes every call onto it, so a
// UI and a timer loop can drive the same playback. One Tick is the unit of
// consistency: a reload either happens before it or after it.
type Manager struct {
	mu      sync.Mutex
	session *Session
	sink    Sink
	opts    Options
	now     func() time.Time
	logger  *log.Logger

	// Notify the UI of lifecycle changes and dispatches
	UpdateChan chan struct{}
}

// NewManager returns a manager that sends to sink.
func NewManager(sink Sink, opts Options, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		sink:       sink,
		opts:       opts,
		now:        time.Now,
		logger:     logger,
		UpdateChan: make(chan struct{}, 1),
	}
}

// SetTimeSource replaces the wall clock used by sessions loaded afterwards.
func (m *Manager) SetTimeSource(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Options returns the options new sessions are built with.
func (m *Manager) Options() Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opts
}

// Load prepares a new session and swaps it in. The old session keeps
// playing if the new score is rejected; otherwise it is retired before the
// new track info goes out.
func (m *Manager) Load(notes []score.RawNote, info score.TrackInfo) (score.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := prepare(notes, info, m.sink, m.opts, m.now, m.logger)
	if err != nil {
		m.logger.Error("score rejected", "err", err)
		return score.Report{}, err
	}
	if m.session != nil {
		m.session.retire()
	}
	s.announce()
	m.session = s
	m.notifyUpdate()
	return s.report, nil
}

// Loaded reports whether a score is ready.
func (m *Manager) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

func (m *Manager) with(fn func(s *Session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ErrNoScore
	}
	err := fn(m.session)
	m.notifyUpdate()
	return err
}

// Start begins playback.
func (m *Manager) Start() error {
	return m.with(func(s *Session) error { return s.Start() })
}

// Pause freezes playback and returns elapsed.
func (m *Manager) Pause() (at score.Millis, err error) {
	err = m.with(func(s *Session) error {
		at, err = s.Pause()
		return err
	})
	return at, err
}

// Resume continues from elapsed from.
func (m *Manager) Resume(from score.Millis) error {
	return m.with(func(s *Session) error { return s.Resume(from) })
}

// Restart rewinds to the top.
func (m *Manager) Restart() error {
	return m.with(func(s *Session) error {
		s.Restart()
		return nil
	})
}

// Toggle is the play/pause key: start when stopped, pause when running and
// resume where it left off when paused.
func (m *Manager) Toggle() error {
	return m.with(func(s *Session) error {
		switch s.clock.State() {
		case Stopped:
			return s.Start()
		case Running:
			_, err := s.Pause()
			return err
		}
		return s.Resume(s.clock.Now())
	})
}

// Tick runs one dispatch pass and returns the number of events released.
func (m *Manager) Tick() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return 0
	}
	n := m.session.Tick()
	if n > 0 {
		m.notifyUpdate()
	}
	return n
}

// Status returns a snapshot of the active session.
func (m *Manager) Status() (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Status{}, false
	}
	return m.session.Status(), true
}

// Sounding returns pitches currently held down.
func (m *Manager) Sounding() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	return m.session.Sounding()
}

// Finished reports whether the active session has played out.
func (m *Manager) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil && m.session.Finished()
}

// Run starts playback and ticks every interval until the score has played
// out or ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.Errorf("tick interval must be positive, got %s", interval)
	}
	if window := m.Options().Window.Duration(); interval > window {
		m.logger.Warn("tick interval exceeds lookahead, events may be late", "interval", interval, "lookahead", window)
	}
	if err := m.Start(); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.Tick()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Tick()
			if m.Finished() {
				st, _ := m.Status()
				m.logger.Info("playback finished", "dispatched", st.Counters.Dispatched,
					"unsupported", st.Counters.Unsupported, "dropped", st.Counters.Dropped)
				return nil
			}
		}
	}
}

// notifyUpdate must be called with mu held.
func (m *Manager) notifyUpdate() {
	select {
	case m.UpdateChan <- struct{}{}:
	default:
	}
}

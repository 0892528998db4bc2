package sequencer

import (
	"time"

	"github.com/charmbracelet/log"

	"go-pianola/device"
	"go-pianola/score"
)

// Options configure how a score is prepared and played.
type Options struct {
	LeadIn  score.Millis // pre-roll before the first note
	Window  score.Millis // lookahead
	Limits  score.Limits
	Profile device.Profile
}

// DefaultOptions match the reference instrument.
func DefaultOptions() Options {
	return Options{
		LeadIn:  1000,
		Window:  500,
		Limits:  score.DefaultLimits(),
		Profile: device.DefaultProfile(),
	}
}

// Session is one loaded score with its own clock and dispatch cursor.
// It is not safe for concurrent use; Manager serializes access.
type Session struct {
	score  *score.Score
	report score.Report
	clock  *Clock
	disp   *Dispatcher
	opts   Options
	logger *log.Logger
}

// Status is a snapshot of a session for display.
type Status struct {
	State    ClockState
	Elapsed  score.Millis
	Position score.Millis
	Length   score.Millis // timestamp of the last event
	Cursor   int
	Events   int
	Counters Counters
	Report   score.Report
}

// NewSession normalizes and adjusts notes. Nothing is sent and no session is
// returned unless the whole score is valid. On success the track info is
// sent to sink.
func NewSession(notes []score.RawNote, info score.TrackInfo, sink Sink, opts Options, now func() time.Time, logger *log.Logger) (*Session, error) {
	s, err := prepare(notes, info, sink, opts, now, logger)
	if err != nil {
		return nil, err
	}
	s.announce()
	return s, nil
}

func prepare(notes []score.RawNote, info score.TrackInfo, sink Sink, opts Options, now func() time.Time, logger *log.Logger) (*Session, error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := opts.Profile.Validate(); err != nil {
		return nil, err
	}

	sc, err := score.Normalize(notes, opts.LeadIn)
	if err != nil {
		return nil, err
	}
	rep, err := score.NewAdjuster(opts.Limits, logger).Adjust(sc)
	if err != nil {
		return nil, err
	}
	sc.Info = info

	s := &Session{
		score:  sc,
		report: rep,
		clock:  NewClock(now),
		disp:   NewDispatcher(sc, opts.Profile, opts.Window, sink, logger),
		opts:   opts,
		logger: logger,
	}
	return s, nil
}

func (s *Session) announce() {
	info := s.score.Info
	s.disp.Control(device.TrackInfoMsg{
		TicksPerBeat: info.TicksPerBeat,
		Tempo:        info.Tempo,
		TrackCount:   info.TrackCount,
	})
	s.logger.Info("score loaded", "notes", s.report.Notes, "events", len(s.score.Events),
		"shortened", s.report.Shortened, "stolen", s.report.Stolen, "length", s.score.Last().Duration())
}

// retire ends a session that is being replaced. If anything was sent the
// device is told to restart, which releases every key it holds.
func (s *Session) retire() {
	if s.disp.Cursor() == 0 {
		return
	}
	s.clock.Restart()
	s.disp.Control(device.RestartMsg{})
	s.logger.Debug("session retired", "cursor", s.disp.Cursor())
}

// Start begins playback from the top.
func (s *Session) Start() error {
	if err := s.clock.Start(s.opts.LeadIn); err != nil {
		return err
	}
	s.disp.Control(device.ResumeMsg{Time: 0})
	return nil
}

// Pause stops dispatching and returns the frozen elapsed time.
func (s *Session) Pause() (score.Millis, error) {
	wasRunning := s.clock.State() == Running
	at, err := s.clock.Pause()
	if err != nil {
		return 0, err
	}
	if wasRunning {
		s.disp.Control(device.PauseMsg{})
	}
	return at, nil
}

// Resume continues playback from elapsed from.
func (s *Session) Resume(from score.Millis) error {
	if s.clock.State() == Running {
		return nil
	}
	if err := s.clock.Resume(from); err != nil {
		return err
	}
	s.disp.Control(device.ResumeMsg{Time: int64(from)})
	return nil
}

// Restart rewinds to elapsed 0 and a fresh dispatch pass.
func (s *Session) Restart() {
	s.clock.Restart()
	s.disp.Reset()
	s.disp.Control(device.RestartMsg{})
}

// Tick dispatches the lookahead window at the clock's current time.
// It does nothing unless the clock is running.
func (s *Session) Tick() int {
	if s.clock.State() != Running {
		return 0
	}
	return s.disp.Tick(s.clock.Now())
}

// Finished reports whether every event has been released and played out.
func (s *Session) Finished() bool {
	return s.disp.Done() && s.clock.Now() >= s.score.Last()
}

// Sounding returns the pitches held down at the current time.
func (s *Session) Sounding() []int {
	return s.score.Sounding(s.clock.Now())
}

func (s *Session) Status() Status {
	return Status{
		State:    s.clock.State(),
		Elapsed:  s.clock.Now(),
		Position: s.clock.Position(),
		Length:   s.score.Last(),
		Cursor:   s.disp.Cursor(),
		Events:   len(s.score.Events),
		Counters: s.disp.Counters(),
		Report:   s.report,
	}
}

// Score returns the adjusted score. Callers must not modify it.
func (s *Session) Score() *score.Score {
	return s.score
}

func (s *Session) Profile() device.Profile {
	return s.opts.Profile
}

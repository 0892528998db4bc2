package transport

import (
	"github.com/charmbracelet/log"

	"go-pianola/device"
)

// Log is a dry-run sink: every message is logged and nothing is sent.
type Log struct {
	logger *log.Logger
}

func NewLog(logger *log.Logger) *Log {
	if logger == nil {
		logger = log.Default()
	}
	return &Log{logger: logger.WithPrefix("dry-run")}
}

func (l *Log) Send(m device.Message) error {
	switch v := m.(type) {
	case device.NoteMsg:
		if v.On != 0 {
			l.logger.Info("note on", "time", v.Time, "key", v.Key, "velocity", v.Velocity, "duration", v.Duration)
		} else {
			l.logger.Info("note off", "time", v.Time, "key", v.Key)
		}
	case device.ResumeMsg:
		l.logger.Info(v.Type(), "time", v.Time)
	case device.TrackInfoMsg:
		l.logger.Info(v.Type(), "ticksPerBeat", v.TicksPerBeat, "tempo", v.Tempo, "tracks", v.TrackCount)
	default:
		l.logger.Info(m.Type())
	}
	return nil
}

// Tee offers every message to all sinks and returns the first error.
type Tee []Sink

func (t Tee) Send(m device.Message) error {
	var first error
	for _, s := range t {
		if err := s.Send(m); err != nil && first == nil {
			first = err
		}
	}
	return first
}

package device

import (
	"math"

	"github.com/pkg/errors"

	"go-pianola/score"
)

// ErrUnsupportedPitch is returned for pitches the instrument has no key for.
var ErrUnsupportedPitch = errors.New("unsupported pitch")

// Profile maps MIDI pitches and velocities onto the instrument's actuators.
type Profile struct {
	Low         int // lowest MIDI pitch with a key
	High        int // highest MIDI pitch with a key
	VelocityMax int // device velocity for a score velocity of 1.0
}

// DefaultProfile is an 88-key piano (A0..C8) with 8-bit velocity.
func DefaultProfile() Profile {
	return Profile{Low: 21, High: 108, VelocityMax: 255}
}

// Keys returns the number of actuators.
func (p Profile) Keys() int {
	return p.High - p.Low + 1
}

// Supports reports whether pitch lies on the keyboard.
func (p Profile) Supports(pitch int) bool {
	return pitch >= p.Low && pitch <= p.High
}

// Key returns the zero-based actuator index for pitch.
func (p Profile) Key(pitch int) (int, error) {
	if !p.Supports(pitch) {
		return 0, errors.Wrapf(ErrUnsupportedPitch, "pitch %d outside %d..%d", pitch, p.Low, p.High)
	}
	return pitch - p.Low, nil
}

// Velocity scales a 0..1 velocity to the device range.
func (p Profile) Velocity(v float64) int {
	return int(math.Round(v * float64(p.VelocityMax)))
}

// Translate builds the wire message for an event. n is the note the event belongs to.
func (p Profile) Translate(e score.Event, n score.Note) (NoteMsg, error) {
	key, err := p.Key(e.Pitch)
	if err != nil {
		return NoteMsg{}, err
	}
	msg := NoteMsg{
		Time: int64(e.At),
		Key:  key,
	}
	if e.Kind == score.On {
		msg.On = 1
		msg.Velocity = p.Velocity(e.Velocity)
		msg.Duration = int64(n.Duration)
	}
	return msg, nil
}

// Validate checks the profile is usable.
func (p Profile) Validate() error {
	switch {
	case p.Low < score.MinPitch || p.High > score.MaxPitch:
		return errors.Errorf("key range %d..%d outside MIDI range", p.Low, p.High)
	case p.Low > p.High:
		return errors.Errorf("empty key range %d..%d", p.Low, p.High)
	case p.VelocityMax <= 0:
		return errors.Errorf("velocity max must be positive, got %d", p.VelocityMax)
	}
	return nil
}

package score

import (
	"sort"

	"github.com/pkg/errors"
)

// Normalize copies notes into a Score, shifts them by leadIn and expands each
// into an ON/OFF pair. No physical constraints are applied here.
func Normalize(notes []RawNote, leadIn Millis) (*Score, error) {
	if leadIn < 0 {
		return nil, errors.Wrapf(ErrInvalidScoreData, "negative lead-in %dms", leadIn)
	}

	s := &Score{
		Notes:  make([]Note, len(notes)),
		Events: make([]Event, 0, 2*len(notes)),
	}

	for i, rn := range notes {
		switch {
		case rn.Pitch < MinPitch || rn.Pitch > MaxPitch:
			return nil, invalid(i, "pitch %d outside %d..%d", rn.Pitch, MinPitch, MaxPitch)
		case rn.Start < 0:
			return nil, invalid(i, "negative start %dms", rn.Start)
		case rn.Duration < 0:
			return nil, invalid(i, "negative duration %dms", rn.Duration)
		case rn.Velocity < 0 || rn.Velocity > 1 || rn.Velocity != rn.Velocity:
			return nil, invalid(i, "velocity %v outside [0,1]", rn.Velocity)
		}

		n := Note{
			Pitch:    rn.Pitch,
			Start:    rn.Start + leadIn,
			Duration: rn.Duration,
			Velocity: rn.Velocity,
		}
		s.Notes[i] = n
		s.Events = append(s.Events,
			Event{Pitch: n.Pitch, At: n.Start, Kind: On, Velocity: n.Velocity, Note: i},
			Event{Pitch: n.Pitch, At: n.End(), Kind: Off, Note: i},
		)
	}

	s.Sort()
	return s, nil
}

// Sort orders events with Less.
func (s *Score) Sort() {
	sort.SliceStable(s.Events, func(i, j int) bool {
		return s.Less(s.Events[i], s.Events[j])
	})
}

// Less orders events by time. At equal times the release of a sounding note
// comes before any strike, so a key is always let go before it is hit again.
// A zero-length note keeps its ON directly followed by its own OFF.
func (s *Score) Less(a, b Event) bool {
	if a.At != b.At {
		return a.At < b.At
	}
	ra, rb := s.rank(a), s.rank(b)
	if ra != rb {
		return ra < rb
	}
	if ra == 0 && a.Pitch != b.Pitch {
		return a.Pitch < b.Pitch
	}
	if a.Note != b.Note {
		return a.Note < b.Note
	}
	return a.Kind == On && b.Kind == Off
}

func (s *Score) rank(e Event) int {
	if e.Kind == Off && s.Notes[e.Note].Duration > 0 {
		return 0
	}
	return 1
}

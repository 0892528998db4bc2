package score

import (
	"fmt"
	"time"
)

// Millis is the core time unit: integer milliseconds from playback start.
type Millis int64

// FromDuration converts a time.Duration to Millis, rounding to the nearest ms.
func FromDuration(d time.Duration) Millis {
	return Millis((d + time.Millisecond/2) / time.Millisecond)
}

// Duration converts back to a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// MIDI pitch bounds accepted at ingestion
const (
	MinPitch = 0
	MaxPitch = 127
)

// RawNote is a note as produced by the score parser
type RawNote struct {
	Pitch    int     // MIDI note number
	Start    Millis  // from the beginning of the score
	Duration Millis
	Velocity float64 // 0..1
}

// Note is a RawNote placed on the playback timeline (lead-in applied).
// Duration is the only field rewritten after normalization.
type Note struct {
	Pitch    int
	Start    Millis
	Duration Millis
	Velocity float64
}

// End returns the release time of the note
func (n Note) End() Millis {
	return n.Start + n.Duration
}

// Kind is the event type. Off sorts before On.
type Kind uint8

const (
	Off Kind = iota
	On
)

func (k Kind) String() string {
	if k == On {
		return "on"
	}
	return "off"
}

// Event is a discrete key action. Note indexes Score.Notes.
type Event struct {
	Pitch    int
	At       Millis
	Kind     Kind
	Velocity float64 // ON only
	Note     int
}

func (e Event) String() string {
	return fmt.Sprintf("%s@%d(p%d)", e.Kind, e.At, e.Pitch)
}

// TrackInfo is passed through unmodified to the output channel.
type TrackInfo struct {
	TicksPerBeat int
	Tempo        float64 // BPM
	TrackCount   int
}

// Score owns the note arena and the events derived from it.
type Score struct {
	Notes  []Note
	Events []Event
	Info   TrackInfo
}

// Last returns the timestamp of the final event (0 for an empty score).
func (s *Score) Last() Millis {
	if len(s.Events) == 0 {
		return 0
	}
	return s.Events[len(s.Events)-1].At
}

// Sounding returns the pitches whose adjusted window [start, end) contains at.
func (s *Score) Sounding(at Millis) []int {
	var pitches []int
	for _, n := range s.Notes {
		if n.Duration > 0 && n.Start <= at && at < n.End() {
			pitches = append(pitches, n.Pitch)
		}
	}
	return pitches
}

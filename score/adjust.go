package score

import (
	"sort"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
)

// Policy decides what happens when more notes would sound than MaxConcurrent.
type Policy string

const (
	// PolicyReject fails the load with a *CapacityError.
	PolicyReject Policy = "reject"
	// PolicySteal cuts the quietest sounding note (earliest start, then lowest
	// pitch on ties) at the moment of the new strike. The new strike always sounds.
	PolicySteal Policy = "steal"
)

// Limits are the physical limits of the actuator hardware.
type Limits struct {
	MinOffOn      Millis // silence required before a key is struck again
	MaxConcurrent int    // actuators that may be held down at once; 0 = unlimited
	Policy        Policy
}

// DefaultLimits match the reference solenoid piano.
func DefaultLimits() Limits {
	return Limits{
		MinOffOn:      100,
		MaxConcurrent: 10,
		Policy:        PolicySteal,
	}
}

// Report summarizes what an adjustment pass changed.
type Report struct {
	Notes     int
	Shortened int // notes cut to leave MinOffOn before the next strike
	Clamped   int // notes whose duration ended at zero
	Stolen    int // notes cut by PolicySteal
}

// Adjuster rewrites note durations so the event stream is playable.
type Adjuster struct {
	Limits Limits
	Logger *log.Logger
}

// NewAdjuster returns an adjuster logging through logger (log.Default() if nil).
func NewAdjuster(limits Limits, logger *log.Logger) *Adjuster {
	if logger == nil {
		logger = log.Default()
	}
	return &Adjuster{Limits: limits, Logger: logger.WithPrefix("adjust")}
}

// Adjust sweeps the events of s in time order, shortening notes in place.
// ON timestamps never move; each OFF is re-timed to its note's final end.
func (a *Adjuster) Adjust(s *Score) (Report, error) {
	lim := a.Limits
	if lim.MinOffOn < 0 {
		return Report{}, errors.Errorf("negative min off-on delay %dms", lim.MinOffOn)
	}
	if lim.MaxConcurrent < 0 {
		return Report{}, errors.Errorf("negative concurrency limit %d", lim.MaxConcurrent)
	}
	switch lim.Policy {
	case PolicyReject, PolicySteal:
	case "":
		lim.Policy = PolicySteal
	default:
		return Report{}, errors.Errorf("unknown capacity policy %q", lim.Policy)
	}

	rep := Report{Notes: len(s.Notes)}
	s.Sort()
	rep.Shortened = a.enforceGaps(s, lim.MinOffOn)
	retime(s)

	// Capacity is checked on final gap-adjusted durations, so a strike that
	// ends up with no audible window never holds an actuator.
	active := make(map[int]int) // pitch -> note index still held
	var offenses []Offense
	for _, e := range s.Events {
		p := e.Pitch
		if e.Kind == Off {
			if idx, ok := active[p]; ok && idx == e.Note {
				delete(active, p)
			}
			continue
		}
		if s.Notes[e.Note].Duration == 0 {
			continue
		}
		active[p] = e.Note

		if lim.MaxConcurrent == 0 || len(active) <= lim.MaxConcurrent {
			continue
		}
		if lim.Policy == PolicyReject {
			offenses = append(offenses, Offense{At: e.At, Pitches: sortedKeys(active)})
			continue
		}
		victim := a.pickVictim(s, active, e.Note)
		n := &s.Notes[victim]
		n.Duration = max(0, e.At-n.Start)
		delete(active, n.Pitch)
		rep.Stolen++
		a.Logger.Debug("stolen", "pitch", n.Pitch, "note", victim, "at", e.At, "for", p)
	}

	if len(offenses) > 0 {
		return rep, &CapacityError{Max: lim.MaxConcurrent, Offenses: offenses}
	}
	retime(s)

	for _, n := range s.Notes {
		if n.Duration == 0 {
			rep.Clamped++
		}
	}
	a.Logger.Debug("adjusted", "notes", rep.Notes, "shortened", rep.Shortened, "clamped", rep.Clamped, "stolen", rep.Stolen)
	return rep, nil
}

// enforceGaps shortens the last note struck on a pitch so it releases at
// least gap before the next strike. It returns the number of notes cut.
func (a *Adjuster) enforceGaps(s *Score, gap Millis) int {
	shortened := make(map[int]bool)
	active := make(map[int]int) // pitch -> note index still held
	last := make(map[int]int)   // pitch -> most recent note struck

	for _, e := range s.Events {
		p := e.Pitch
		if e.Kind == Off {
			if idx, ok := active[p]; ok && idx == e.Note {
				n := &s.Notes[idx]
				n.Duration = max(0, e.At-n.Start)
				delete(active, p)
			}
			// otherwise stale: the note was already cut by a later strike
			continue
		}

		if prev, ok := last[p]; ok {
			n := &s.Notes[prev]
			forcedOff := e.At - gap
			if n.Duration > 0 && n.End() > forcedOff {
				n.Duration = max(0, forcedOff-n.Start)
				shortened[prev] = true
				a.Logger.Debug("shortened", "pitch", p, "note", prev, "duration", n.Duration, "next", e.At)
			}
		}
		active[p] = e.Note
		last[p] = e.Note
	}
	return len(shortened)
}

// retime moves every OFF to its note's end and restores event order.
func retime(s *Score) {
	for i := range s.Events {
		ev := &s.Events[i]
		if ev.Kind == Off {
			ev.At = s.Notes[ev.Note].End()
		}
	}
	s.Sort()
}

// pickVictim returns the sounding note to cut: lowest velocity, then earliest
// start, then lowest pitch. The note just struck is never chosen.
func (a *Adjuster) pickVictim(s *Score, active map[int]int, struck int) int {
	best := -1
	for _, idx := range active {
		if idx == struck {
			continue
		}
		if best < 0 || worse(s.Notes[idx], s.Notes[best]) {
			best = idx
		}
	}
	return best
}

func worse(a, b Note) bool {
	if a.Velocity != b.Velocity {
		return a.Velocity < b.Velocity
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.Pitch < b.Pitch
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

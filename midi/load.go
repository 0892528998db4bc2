package midi

import (
	"bytes"
	"io"
	"math"
	"os"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-pianola/score"
)

// DefaultTempo is reported when a file carries no tempo meta event.
const DefaultTempo = 120.0

// File is a parsed Standard MIDI File flattened to notes.
type File struct {
	Notes     []score.RawNote
	Info      score.TrackInfo
	Unmatched int // note starts that never ended, dropped
}

// LoadFile reads a Standard MIDI File from disk.
func LoadFile(path string, logger *log.Logger) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open score")
	}
	defer f.Close()
	return Load(f, logger)
}

type noteKey struct {
	track int
	ch    uint8
	key   uint8
}

type pending struct {
	start int64 // microseconds
	vel   uint8
}

// Load parses an SMF stream. Every track and channel is merged; notes are
// returned ordered by start time, then pitch.
func Load(r io.Reader, logger *log.Logger) (*File, error) {
	if logger == nil {
		logger = log.Default()
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read score")
	}

	sm, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "parse smf")
	}
	out := &File{Info: trackInfo(sm)}

	open := make(map[noteKey][]pending)
	rd := smf.ReadTracksFrom(bytes.NewReader(data))
	rd.Do(func(ev smf.TrackEvent) {
		var ch, key, vel uint8
		switch {
		case ev.Message.GetNoteStart(&ch, &key, &vel):
			k := noteKey{ev.TrackNo, ch, key}
			open[k] = append(open[k], pending{start: ev.AbsMicroSeconds, vel: vel})
		case ev.Message.GetNoteEnd(&ch, &key):
			k := noteKey{ev.TrackNo, ch, key}
			starts := open[k]
			if len(starts) == 0 {
				return
			}
			p := starts[0]
			open[k] = starts[1:]
			start := micros(p.start)
			out.Notes = append(out.Notes, score.RawNote{
				Pitch:    int(key),
				Start:    start,
				Duration: max(0, micros(ev.AbsMicroSeconds)-start),
				Velocity: float64(p.vel) / 127,
			})
		}
	})
	if err := rd.Error(); err != nil {
		return nil, errors.Wrap(err, "read tracks")
	}

	for k, starts := range open {
		if len(starts) > 0 {
			out.Unmatched += len(starts)
			logger.Warn("note never released, dropped", "track", k.track, "channel", k.ch, "key", k.key, "count", len(starts))
		}
	}

	sort.SliceStable(out.Notes, func(i, j int) bool {
		a, b := out.Notes[i], out.Notes[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.Pitch < b.Pitch
	})
	logger.Debug("score parsed", "notes", len(out.Notes), "tracks", out.Info.TrackCount,
		"tempo", out.Info.Tempo, "ticksPerBeat", out.Info.TicksPerBeat)
	return out, nil
}

func trackInfo(sm *smf.SMF) score.TrackInfo {
	info := score.TrackInfo{Tempo: DefaultTempo, TrackCount: len(sm.Tracks)}
	if mt, ok := sm.TimeFormat.(smf.MetricTicks); ok {
		info.TicksPerBeat = int(mt.Resolution())
	}
	if tc := sm.TempoChanges(); len(tc) > 0 && tc[0].BPM > 0 {
		info.Tempo = tc[0].BPM
	}
	return info
}

func micros(us int64) score.Millis {
	return score.Millis(math.Round(float64(us) / 1000))
}

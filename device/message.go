package device

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Message type tags as understood by the piano firmware
const (
	TypeTrackInfo = "track_info"
	TypeNote      = "note"
	TypePause     = "pause"
	TypeResume    = "resume"
	TypeRestart   = "restart"
)

// Message is anything that can be sent to the instrument.
type Message interface {
	Type() string
}

// NoteMsg strikes (On=1) or releases (On=0) one key.
type NoteMsg struct {
	Time     int64 `json:"time"` // ms on the playback timeline
	Key      int   `json:"midi"` // actuator index, pitch - Profile.Low
	Duration int64 `json:"duration,omitempty"`
	Velocity int   `json:"velocity"`
	On       int   `json:"on"`
}

type TrackInfoMsg struct {
	TicksPerBeat int     `json:"ticksPerBeat"`
	Tempo        float64 `json:"tempo"`
	TrackCount   int     `json:"trackCount"`
}

type PauseMsg struct{}

// ResumeMsg carries the playback position playback continues from.
type ResumeMsg struct {
	Time int64 `json:"time"`
}

type RestartMsg struct{}

func (NoteMsg) Type() string      { return TypeNote }
func (TrackInfoMsg) Type() string { return TypeTrackInfo }
func (PauseMsg) Type() string     { return TypePause }
func (ResumeMsg) Type() string    { return TypeResume }
func (RestartMsg) Type() string   { return TypeRestart }

// Envelope is the JSON framing used on the websocket.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Marshal wraps m in an Envelope. Pause and restart carry no data.
func Marshal(m Message) ([]byte, error) {
	env := Envelope{Type: m.Type()}
	switch m.(type) {
	case PauseMsg, RestartMsg:
	default:
		data, err := json.Marshal(m)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal %s", m.Type())
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// Unmarshal decodes an Envelope back into its Message.
func Unmarshal(b []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}

	switch env.Type {
	case TypeNote:
		var n NoteMsg
		if err := json.Unmarshal(orEmpty(env.Data), &n); err != nil {
			return nil, errors.Wrap(err, "decode note")
		}
		return n, nil
	case TypeTrackInfo:
		var t TrackInfoMsg
		if err := json.Unmarshal(orEmpty(env.Data), &t); err != nil {
			return nil, errors.Wrap(err, "decode track info")
		}
		return t, nil
	case TypeResume:
		var r ResumeMsg
		if err := json.Unmarshal(orEmpty(env.Data), &r); err != nil {
			return nil, errors.Wrap(err, "decode resume")
		}
		return r, nil
	case TypePause:
		return PauseMsg{}, nil
	case TypeRestart:
		return RestartMsg{}, nil
	}
	return nil, errors.Errorf("unknown message type %q", env.Type)
}

func orEmpty(b json.RawMessage) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("{}")
	}
	return b
}

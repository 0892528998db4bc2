package device

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Serial framing
const (
	SOF0 = 0xAA
	SOF1 = 0x55

	CmdNoteOn    = 0x20
	CmdNoteOff   = 0x21
	CmdPause     = 0x30
	CmdResume    = 0x31
	CmdRestart   = 0x32
	CmdTrackInfo = 0x40
)

// ErrBadFrame is returned by DecodeFrame for truncated or corrupt input.
var ErrBadFrame = errors.New("bad frame")

// EncodeFrame builds the serial representation of m:
//
//	[SOF0][SOF1][LEN][CMD][payload...][CKS]
//
// LEN counts CMD plus payload. CKS is the xor of LEN, CMD and payload.
// Payload layouts (big endian):
//
//	note on    key u8, velocity u8, time u32, duration u32
//	note off   key u8, time u32
//	resume     time u32
//	track info ticksPerBeat u16, tempo centi-BPM u32, trackCount u8
func EncodeFrame(m Message) ([]byte, error) {
	var cmd byte
	var payload []byte

	switch v := m.(type) {
	case NoteMsg:
		if v.Key < 0 || v.Key > 0xFF {
			return nil, errors.Errorf("key %d does not fit in a frame", v.Key)
		}
		if err := fits("time", v.Time, math.MaxUint32); err != nil {
			return nil, err
		}
		if v.On != 0 {
			if err := fits("duration", v.Duration, math.MaxUint32); err != nil {
				return nil, err
			}
			cmd = CmdNoteOn
			payload = []byte{byte(v.Key), byte(min(max(v.Velocity, 0), 0xFF))}
			payload = binary.BigEndian.AppendUint32(payload, uint32(v.Time))
			payload = binary.BigEndian.AppendUint32(payload, uint32(v.Duration))
		} else {
			cmd = CmdNoteOff
			payload = []byte{byte(v.Key)}
			payload = binary.BigEndian.AppendUint32(payload, uint32(v.Time))
		}
	case ResumeMsg:
		if err := fits("resume time", v.Time, math.MaxUint32); err != nil {
			return nil, err
		}
		cmd = CmdResume
		payload = binary.BigEndian.AppendUint32(nil, uint32(v.Time))
	case PauseMsg:
		cmd = CmdPause
	case RestartMsg:
		cmd = CmdRestart
	case TrackInfoMsg:
		tempo := math.Round(v.Tempo * 100)
		if err := fits("ticks per beat", int64(v.TicksPerBeat), math.MaxUint16); err != nil {
			return nil, err
		}
		if err := fits("track count", int64(v.TrackCount), math.MaxUint8); err != nil {
			return nil, err
		}
		if tempo < 0 || tempo > math.MaxUint32 {
			return nil, errors.Errorf("tempo %.2f does not fit in a frame", v.Tempo)
		}
		cmd = CmdTrackInfo
		payload = binary.BigEndian.AppendUint16(nil, uint16(v.TicksPerBeat))
		payload = binary.BigEndian.AppendUint32(payload, uint32(tempo))
		payload = append(payload, byte(v.TrackCount))
	default:
		return nil, errors.Errorf("no frame encoding for %T", m)
	}

	length := byte(len(payload) + 1)
	cks := length ^ cmd
	for _, b := range payload {
		cks ^= b
	}

	out := make([]byte, 0, len(payload)+5)
	out = append(out, SOF0, SOF1, length, cmd)
	out = append(out, payload...)
	return append(out, cks), nil
}

func fits(field string, v int64, limit uint64) error {
	if v < 0 || uint64(v) > limit {
		return errors.Errorf("%s %d does not fit in a frame", field, v)
	}
	return nil
}

// DecodeFrame parses a single frame produced by EncodeFrame.
func DecodeFrame(b []byte) (Message, error) {
	if len(b) < 5 || b[0] != SOF0 || b[1] != SOF1 {
		return nil, errors.Wrap(ErrBadFrame, "missing start of frame")
	}
	length := int(b[2])
	if length == 0 || len(b) != length+4 {
		return nil, errors.Wrapf(ErrBadFrame, "length %d does not match %d bytes", length, len(b))
	}
	cks := b[2]
	for _, c := range b[3 : len(b)-1] {
		cks ^= c
	}
	if cks != b[len(b)-1] {
		return nil, errors.Wrapf(ErrBadFrame, "checksum %#x, want %#x", b[len(b)-1], cks)
	}

	cmd, p := b[3], b[4:len(b)-1]
	need := map[byte]int{CmdNoteOn: 10, CmdNoteOff: 5, CmdResume: 4, CmdTrackInfo: 7}
	if n, ok := need[cmd]; ok && len(p) != n {
		return nil, errors.Wrapf(ErrBadFrame, "cmd %#x payload %d bytes, want %d", cmd, len(p), n)
	}

	switch cmd {
	case CmdNoteOn:
		return NoteMsg{
			Key:      int(p[0]),
			Velocity: int(p[1]),
			Time:     int64(binary.BigEndian.Uint32(p[2:])),
			Duration: int64(binary.BigEndian.Uint32(p[6:])),
			On:       1,
		}, nil
	case CmdNoteOff:
		return NoteMsg{Key: int(p[0]), Time: int64(binary.BigEndian.Uint32(p[1:]))}, nil
	case CmdResume:
		return ResumeMsg{Time: int64(binary.BigEndian.Uint32(p))}, nil
	case CmdPause:
		return PauseMsg{}, nil
	case CmdRestart:
		return RestartMsg{}, nil
	case CmdTrackInfo:
		return TrackInfoMsg{
			TicksPerBeat: int(binary.BigEndian.Uint16(p)),
			Tempo:        float64(binary.BigEndian.Uint32(p[2:])) / 100,
			TrackCount:   int(p[6]),
		}, nil
	}
	return nil, errors.Wrapf(ErrBadFrame, "unknown cmd %#x", cmd)
}

package device

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Battery is the periodic status report sent back by the piano controller.
type Battery struct {
	ID         string      `json:"id"`
	Percentage int         `json:"percentage"`
	Voltage    json.Number `json:"voltage"` // millivolts, sent as a string
}

// Millivolts returns the reported voltage, or 0 if it could not be parsed.
func (b Battery) Millivolts() float64 {
	v, err := b.Voltage.Float64()
	if err != nil {
		return 0
	}
	return v
}

// ParseTelemetry decodes an inbound message. ok is false for messages that
// are valid JSON but not battery reports.
func ParseTelemetry(data []byte) (b Battery, ok bool, err error) {
	if err := json.Unmarshal(data, &b); err != nil {
		return Battery{}, false, errors.Wrap(err, "decode telemetry")
	}
	return b, b.ID == "battery", nil
}

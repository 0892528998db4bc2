package score

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidScoreData is returned for malformed raw notes. Nothing is loaded.
	ErrInvalidScoreData = errors.New("invalid score data")

	// ErrCapacityExceeded is matched by *CapacityError.
	ErrCapacityExceeded = errors.New("capacity exceeded")
)

// Offense is one moment where more notes would sound than the actuators allow.
type Offense struct {
	At      Millis
	Pitches []int
}

// CapacityError lists every offense found while adjusting a score under PolicyReject.
type CapacityError struct {
	Max      int
	Offenses []Offense
}

func (e *CapacityError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "capacity exceeded: %d offense(s) over %d concurrent notes", len(e.Offenses), e.Max)
	for i, o := range e.Offenses {
		if i == 3 {
			fmt.Fprintf(&b, "; ...")
			break
		}
		fmt.Fprintf(&b, "; at %dms pitches %v", o.At, o.Pitches)
	}
	return b.String()
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

func invalid(idx int, format string, args ...any) error {
	return errors.Wrapf(ErrInvalidScoreData, "note %d: "+format, append([]any{idx}, args...)...)
}

package sequencer

import (
	"testing"
	"time"

	"github.com/pkg/errors"
)

type fakeTime struct {
	t time.Time
}

func newFakeTime() *fakeTime {
	return &fakeTime{t: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeTime) Now() time.Time          { return f.t }
func (f *fakeTime) Advance(d time.Duration) { f.t = f.t.Add(d) }

func TestClockRunsAndPauses(t *testing.T) {
	ft := newFakeTime()
	c := NewClock(ft.Now)
	if c.State() != Stopped || c.Now() != 0 {
		t.Fatalf("new clock: state=%s now=%d", c.State(), c.Now())
	}
	if err := c.Start(1000); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ft.Advance(250 * time.Millisecond)
	if c.Now() != 250 {
		t.Fatalf("Now() = %d; want 250", c.Now())
	}
	if c.Position() != -750 {
		t.Fatalf("Position() = %d; want -750", c.Position())
	}

	at, err := c.Pause()
	if err != nil || at != 250 {
		t.Fatalf("Pause() = %d, %v", at, err)
	}
	ft.Advance(time.Hour)
	if c.Now() != 250 {
		t.Fatalf("paused clock moved to %d", c.Now())
	}
	if again, _ := c.Pause(); again != 250 {
		t.Fatalf("second Pause() = %d", again)
	}

	if err := c.Resume(at); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	ft.Advance(100 * time.Millisecond)
	if c.Now() != 350 {
		t.Fatalf("Now() after resume = %d; want 350", c.Now())
	}
}

func TestClockPauseResumeIdempotent(t *testing.T) {
	ft := newFakeTime()
	c := NewClock(ft.Now)
	c.Start(0)
	ft.Advance(1234 * time.Millisecond)
	before := c.Now()

	at, _ := c.Pause()
	if err := c.Resume(at); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if c.Now() != before {
		t.Fatalf("elapsed changed across pause/resume: %d -> %d", before, c.Now())
	}
}

func TestClockNoDrift(t *testing.T) {
	ft := newFakeTime()
	c := NewClock(ft.Now)
	c.Start(0)

	// 1.7ms per cycle: truncating to ms on every resume would lose 0.7ms each time
	for i := 0; i < 100; i++ {
		ft.Advance(1700 * time.Microsecond)
		at, _ := c.Pause()
		ft.Advance(time.Second)
		if err := c.Resume(at); err != nil {
			t.Fatalf("Resume: %v", err)
		}
	}
	if c.Now() != 170 {
		t.Fatalf("Now() = %d; want 170", c.Now())
	}
}

func TestClockResumeElsewhere(t *testing.T) {
	ft := newFakeTime()
	c := NewClock(ft.Now)
	c.Start(0)
	ft.Advance(500 * time.Millisecond)
	c.Pause()
	if err := c.Resume(2000); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	ft.Advance(10 * time.Millisecond)
	if c.Now() != 2010 {
		t.Fatalf("Now() = %d; want 2010", c.Now())
	}
}

func TestClockRestart(t *testing.T) {
	ft := newFakeTime()
	c := NewClock(ft.Now)

	c.Start(0)
	ft.Advance(time.Second)
	c.Restart()
	if c.State() != Running || c.Now() != 0 {
		t.Fatalf("restart while running: state=%s now=%d", c.State(), c.Now())
	}
	ft.Advance(40 * time.Millisecond)
	if c.Now() != 40 {
		t.Fatalf("clock did not keep running after restart: %d", c.Now())
	}

	c.Pause()
	c.Restart()
	if c.State() != Stopped || c.Now() != 0 {
		t.Fatalf("restart while paused: state=%s now=%d", c.State(), c.Now())
	}

	c.Restart()
	if c.State() != Stopped {
		t.Fatalf("restart while stopped: state=%s", c.State())
	}
	if err := c.Start(0); err != nil {
		t.Fatalf("Start after restart: %v", err)
	}
}

func TestClockInvalidTransitions(t *testing.T) {
	c := NewClock(newFakeTime().Now)
	if _, err := c.Pause(); !errors.Is(err, ErrClockState) {
		t.Fatalf("pause while stopped: %v", err)
	}
	if err := c.Resume(0); !errors.Is(err, ErrClockState) {
		t.Fatalf("resume while stopped: %v", err)
	}
	c.Start(0)
	if err := c.Start(0); !errors.Is(err, ErrClockState) {
		t.Fatalf("start while running: %v", err)
	}
	if err := c.Resume(0); err != nil {
		t.Fatalf("resume while running should be a no-op: %v", err)
	}
}

package midi

import (
	"bytes"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"go-pianola/device"
)

func quiet() *log.Logger {
	return log.New(io.Discard)
}

func testSMF(t *testing.T) *bytes.Buffer {
	t.Helper()
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(480)

	var tr smf.Track
	tr.Add(0, smf.MetaTempo(100)) // 600ms per beat
	tr.Add(0, gomidi.NoteOn(0, 60, 127))
	tr.Add(480, gomidi.NoteOff(0, 60))
	tr.Add(0, gomidi.NoteOn(1, 64, 64))
	tr.Add(240, gomidi.NoteOn(1, 64, 0))
	tr.Add(0, gomidi.NoteOn(0, 67, 100))
	tr.Close(0)
	if err := sm.Add(tr); err != nil {
		t.Fatalf("add track: %v", err)
	}

	var buf bytes.Buffer
	if _, err := sm.WriteTo(&buf); err != nil {
		t.Fatalf("write smf: %v", err)
	}
	return &buf
}

func TestLoad(t *testing.T) {
	f, err := Load(testSMF(t), quiet())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Info.TicksPerBeat != 480 || f.Info.Tempo != 100 || f.Info.TrackCount != 1 {
		t.Fatalf("unexpected track info %+v", f.Info)
	}
	if f.Unmatched != 1 {
		t.Fatalf("Unmatched = %d; want 1", f.Unmatched)
	}
	if len(f.Notes) != 2 {
		t.Fatalf("got %d notes: %+v", len(f.Notes), f.Notes)
	}

	a, b := f.Notes[0], f.Notes[1]
	if a.Pitch != 60 || a.Start != 0 || a.Duration != 600 || a.Velocity != 1 {
		t.Fatalf("first note %+v", a)
	}
	if b.Pitch != 64 || b.Start != 600 || b.Duration != 300 || b.Velocity != 64.0/127 {
		t.Fatalf("second note %+v", b)
	}
}

func TestLoadRejectsGarbage(t *testing.T) {
	if _, err := Load(bytes.NewReader([]byte("not a midi file")), quiet()); err == nil {
		t.Fatal("expected parse error")
	}
}

type captured struct {
	mu   sync.Mutex
	msgs []gomidi.Message
	got  chan struct{}
}

func newCaptured() *captured {
	return &captured{got: make(chan struct{}, 64)}
}

func (c *captured) send(m gomidi.Message) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
	c.got <- struct{}{}
	return nil
}

func (c *captured) wait(t *testing.T, n int) []gomidi.Message {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-c.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d messages", i, n)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]gomidi.Message(nil), c.msgs...)
}

func TestMonitorSchedulesNotes(t *testing.T) {
	c := newCaptured()
	m := NewMonitor(device.DefaultProfile(), 0, quiet())
	m.Attach(c.send)

	m.Send(device.ResumeMsg{Time: 0})
	m.Send(device.NoteMsg{Time: 0, Key: 39, Velocity: 255, Duration: 30, On: 1})
	m.Send(device.NoteMsg{Time: 30, Key: 39})

	got := c.wait(t, 2)
	if !bytes.Equal(got[0], gomidi.NoteOn(0, 60, 127)) {
		t.Fatalf("first message % x", []byte(got[0]))
	}
	if !bytes.Equal(got[1], gomidi.NoteOff(0, 60)) {
		t.Fatalf("second message % x", []byte(got[1]))
	}
	if m.Pending() != 0 {
		t.Fatalf("Pending() = %d", m.Pending())
	}
}

func TestMonitorPauseReleasesHeldKeys(t *testing.T) {
	c := newCaptured()
	m := NewMonitor(device.DefaultProfile(), 0, quiet())
	m.Attach(c.send)

	m.Send(device.ResumeMsg{Time: 0})
	m.Send(device.NoteMsg{Time: 0, Key: 0, Velocity: 100, On: 1})
	c.wait(t, 1)

	m.Send(device.PauseMsg{})
	got := c.wait(t, 1)
	if !bytes.Equal(got[1], gomidi.NoteOff(0, 21)) {
		t.Fatalf("held key not released: % x", []byte(got[1]))
	}
}

func TestMonitorPauseKeepsScheduledNotes(t *testing.T) {
	c := newCaptured()
	m := NewMonitor(device.DefaultProfile(), 0, quiet())
	m.Attach(c.send)

	m.Send(device.ResumeMsg{Time: 0})
	m.Send(device.NoteMsg{Time: 100, Key: 39, Velocity: 255, Duration: 50, On: 1})
	m.Send(device.NoteMsg{Time: 150, Key: 39})
	time.Sleep(20 * time.Millisecond)

	m.Send(device.PauseMsg{})
	if m.Pending() != 2 {
		t.Fatalf("Pending() after pause = %d; want 2", m.Pending())
	}
	time.Sleep(200 * time.Millisecond)
	c.mu.Lock()
	played := len(c.msgs)
	c.mu.Unlock()
	if played != 0 {
		t.Fatalf("%d messages played while paused", played)
	}

	m.Send(device.ResumeMsg{Time: 20})
	got := c.wait(t, 2)
	if !bytes.Equal(got[0], gomidi.NoteOn(0, 60, 127)) || !bytes.Equal(got[1], gomidi.NoteOff(0, 60)) {
		t.Fatalf("unexpected replay % x, % x", []byte(got[0]), []byte(got[1]))
	}
	if m.Pending() != 0 {
		t.Fatalf("Pending() = %d", m.Pending())
	}
}

func TestMonitorRestartDiscards(t *testing.T) {
	c := newCaptured()
	m := NewMonitor(device.DefaultProfile(), 0, quiet())
	m.Attach(c.send)

	m.Send(device.ResumeMsg{Time: 0})
	m.Send(device.NoteMsg{Time: 60000, Key: 1, Velocity: 100, On: 1})
	m.Send(device.PauseMsg{})
	m.Send(device.RestartMsg{})
	if m.Pending() != 0 {
		t.Fatalf("restart left %d notes pending", m.Pending())
	}
	m.Send(device.ResumeMsg{Time: 0})
	if m.Pending() != 0 {
		t.Fatal("resume after restart replayed discarded notes")
	}
}

func TestMonitorDetachedDropsQuietly(t *testing.T) {
	m := NewMonitor(device.DefaultProfile(), 0, quiet())
	if err := m.Send(device.NoteMsg{Key: 10, On: 1, Velocity: 1}); err != nil {
		t.Fatalf("detached monitor returned %v", err)
	}
	if m.Pending() != 0 {
		t.Fatal("detached monitor scheduled a note")
	}
}

func TestMonitorVelocity(t *testing.T) {
	m := NewMonitor(device.DefaultProfile(), 0, quiet())
	cases := map[int]uint8{0: 0, 1: 1, 128: 64, 255: 127}
	for in, want := range cases {
		if got := m.midiVelocity(in); got != want {
			t.Fatalf("midiVelocity(%d) = %d; want %d", in, got, want)
		}
	}
}

func TestPortWatcher(t *testing.T) {
	ports := []string{"Midi Through Port-0", "FluidSynth virtual port"}
	w := NewPortWatcher("fluid")
	w.list = func() []string { return ports }

	w.scan()
	ev := <-w.events
	if ev.Type != PortConnected || ev.Name != "FluidSynth virtual port" {
		t.Fatalf("unexpected event %+v", ev)
	}

	w.scan()
	select {
	case ev := <-w.events:
		t.Fatalf("unexpected event on unchanged scan %+v", ev)
	default:
	}

	ports = []string{"Midi Through Port-0"}
	w.scan()
	ev = <-w.events
	if ev.Type != PortDisconnected {
		t.Fatalf("expected disconnect, got %+v", ev)
	}
	names := w.Connected()
	sort.Strings(names)
	if len(names) != 0 {
		t.Fatalf("Connected() = %v", names)
	}
}

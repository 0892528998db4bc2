package midi

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	gomidi "gitlab.com/gomidi/midi/v2"
)

// ErrPortNotFound is returned by OpenOut when no port matches.
var ErrPortNotFound = errors.New("midi port not found")

// scanTimeout bounds a port listing; some platform MIDI services hang.
const scanTimeout = 3 * time.Second

// OutPorts lists MIDI output port names. It returns nil if the platform
// MIDI service does not answer in time.
func OutPorts() []string {
	ch := make(chan []string, 1)
	go func() {
		var names []string
		for _, p := range gomidi.GetOutPorts() {
			names = append(names, p.String())
		}
		ch <- names
	}()
	select {
	case names := <-ch:
		return names
	case <-time.After(scanTimeout):
		return nil
	}
}

// OpenOut opens the first output port whose name contains name
// (case-insensitive) and returns a sender for it.
func OpenOut(name string) (func(gomidi.Message) error, string, error) {
	want := strings.ToLower(name)
	for _, port := range gomidi.GetOutPorts() {
		if !strings.Contains(strings.ToLower(port.String()), want) {
			continue
		}
		send, err := gomidi.SendTo(port)
		if err != nil {
			return nil, "", errors.Wrapf(err, "open %s", port.String())
		}
		return send, port.String(), nil
	}
	return nil, "", errors.Wrapf(ErrPortNotFound, "%q", name)
}

// PortEvent is emitted when a watched port appears or disappears.
type PortEvent struct {
	Type PortEventType
	Name string
}

type PortEventType int

const (
	PortConnected PortEventType = iota
	PortDisconnected
)

// PortWatcher polls MIDI outputs for hot-plug of ports matching a name.
type PortWatcher struct {
	match    string
	list     func() []string
	seen     map[string]bool
	mu       sync.RWMutex
	events   chan PortEvent
	pollRate time.Duration
}

// NewPortWatcher watches output ports whose name contains match.
func NewPortWatcher(match string) *PortWatcher {
	return &PortWatcher{
		match:    strings.ToLower(match),
		list:     OutPorts,
		seen:     make(map[string]bool),
		events:   make(chan PortEvent, 16),
		pollRate: time.Second,
	}
}

// Events returns port connect/disconnect events. Closed when Run returns.
func (w *PortWatcher) Events() <-chan PortEvent {
	return w.events
}

// Connected returns the names currently present.
func (w *PortWatcher) Connected() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.seen))
	for n := range w.seen {
		names = append(names, n)
	}
	return names
}

// Run polls until ctx is done (blocking - run in goroutine).
func (w *PortWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.pollRate)
	defer ticker.Stop()
	defer close(w.events)

	w.scan()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scan()
		}
	}
}

func (w *PortWatcher) scan() {
	now := make(map[string]bool)
	for _, name := range w.list() {
		if strings.Contains(strings.ToLower(name), w.match) {
			now[name] = true
		}
	}

	w.mu.Lock()
	var evs []PortEvent
	for name := range now {
		if !w.seen[name] {
			evs = append(evs, PortEvent{Type: PortConnected, Name: name})
		}
	}
	for name := range w.seen {
		if !now[name] {
			evs = append(evs, PortEvent{Type: PortDisconnected, Name: name})
		}
	}
	w.seen = now
	w.mu.Unlock()

	for _, ev := range evs {
		select {
		case w.events <- ev:
		default:
		}
	}
}

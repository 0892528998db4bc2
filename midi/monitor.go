package midi

import (
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-pianola/device"
)

// Monitor plays the device message stream on a MIDI output, so the adjusted
// performance can be auditioned on a synth. Notes are scheduled at
// epoch+time like the firmware does; resume messages re-anchor the epoch.
// A pause parks the scheduled notes and a resume replays them, since the
// dispatcher never sends them twice.
type Monitor struct {
	profile device.Profile
	channel uint8
	now     func() time.Time
	logger  *log.Logger

	mu     sync.Mutex
	send   func(gomidi.Message) error
	epoch  time.Time
	timers map[*time.Timer]device.NoteMsg
	parked []device.NoteMsg
	paused bool
	held   map[uint8]bool
}

// NewMonitor returns a detached monitor. Attach a port sender to hear it.
func NewMonitor(profile device.Profile, channel uint8, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.Default()
	}
	return &Monitor{
		profile: profile,
		channel: channel,
		now:     time.Now,
		logger:  logger.WithPrefix("monitor"),
		timers:  make(map[*time.Timer]device.NoteMsg),
		held:    make(map[uint8]bool),
	}
}

// Attach routes output to send.
func (m *Monitor) Attach(send func(gomidi.Message) error) {
	m.mu.Lock()
	m.send = send
	m.mu.Unlock()
}

// Detach drops every scheduled note, releases held keys and disconnects
// the output.
func (m *Monitor) Detach() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discard()
	m.send = nil
}

// Send never fails: the monitor is best effort and must not count against
// the real output channel.
func (m *Monitor) Send(msg device.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch v := msg.(type) {
	case device.ResumeMsg:
		m.epoch = m.now().Add(-time.Duration(v.Time) * time.Millisecond)
		m.paused = false
		parked := m.parked
		m.parked = nil
		for _, n := range parked {
			m.schedule(n)
		}
	case device.PauseMsg:
		m.park()
	case device.RestartMsg:
		m.discard()
		m.epoch = m.now()
	case device.TrackInfoMsg:
		m.logger.Debug("track info", "tempo", v.Tempo, "tracks", v.TrackCount)
	case device.NoteMsg:
		if m.send == nil {
			return nil
		}
		if m.paused {
			m.parked = append(m.parked, v)
			return nil
		}
		m.schedule(v)
	}
	return nil
}

func (m *Monitor) schedule(n device.NoteMsg) {
	key := uint8(n.Key + m.profile.Low)
	at := m.epoch.Add(time.Duration(n.Time) * time.Millisecond)
	on := n.On != 0
	vel := m.midiVelocity(n.Velocity)

	var t *time.Timer
	t = time.AfterFunc(max(0, at.Sub(m.now())), func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, live := m.timers[t]; !live {
			return
		}
		delete(m.timers, t)
		m.play(key, vel, on)
	})
	m.timers[t] = n
}

// play must be called with mu held.
func (m *Monitor) play(key, vel uint8, on bool) {
	if m.send == nil {
		return
	}
	var err error
	if on {
		err = m.send(gomidi.NoteOn(m.channel, key, vel))
		m.held[key] = true
	} else {
		err = m.send(gomidi.NoteOff(m.channel, key))
		delete(m.held, key)
	}
	if err != nil {
		m.logger.Debug("midi send failed", "key", key, "err", err)
	}
}

// park stops the timers and keeps their notes for the next resume, ordered
// by time with releases first. mu must be held.
func (m *Monitor) park() {
	for t, n := range m.timers {
		t.Stop()
		m.parked = append(m.parked, n)
	}
	m.timers = make(map[*time.Timer]device.NoteMsg)
	sort.SliceStable(m.parked, func(i, j int) bool {
		a, b := m.parked[i], m.parked[j]
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.On < b.On
	})
	m.paused = true
	m.release()
}

// discard cancels scheduled and parked notes and releases held keys.
// mu must be held.
func (m *Monitor) discard() {
	for t := range m.timers {
		t.Stop()
	}
	m.timers = make(map[*time.Timer]device.NoteMsg)
	m.parked = nil
	m.paused = false
	m.release()
}

func (m *Monitor) release() {
	for key := range m.held {
		if m.send != nil {
			m.send(gomidi.NoteOff(m.channel, key))
		}
	}
	m.held = make(map[uint8]bool)
}

func (m *Monitor) midiVelocity(v int) uint8 {
	if v <= 0 {
		return 0
	}
	scaled := (v*127 + m.profile.VelocityMax/2) / m.profile.VelocityMax
	return uint8(min(max(scaled, 1), 127))
}

// Pending returns the number of notes scheduled or parked but not yet played.
func (m *Monitor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers) + len(m.parked)
}

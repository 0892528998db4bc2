package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-pianola/device"
	"go-pianola/midi"
	"go-pianola/score"
	"go-pianola/sequencer"
	"go-pianola/theme"
	"go-pianola/widgets"
)

type Model struct {
	Manager  *sequencer.Manager
	Theme    *theme.Theme
	Title    string
	TickRate time.Duration

	// Optional sources, nil when the transport has none
	Telemetry <-chan device.Battery
	Ports     <-chan midi.PortEvent

	battery  *device.Battery
	monitor  string
	err      error
	quitting bool
	showHelp bool
	width    int
}

var helpSections = []widgets.KeySection{
	{Title: "Playback", Keys: []widgets.KeyBinding{
		{Key: "space / p", Desc: "play, pause, resume"},
		{Key: "r", Desc: "restart from the top"},
	}},
	{Title: "General", Keys: []widgets.KeyBinding{
		{Key: "?", Desc: "toggle help"},
		{Key: "q", Desc: "pause and quit"},
	}},
}

type tickMsg time.Time

type UpdateMsg struct{}

type BatteryMsg device.Battery

type PortEventMsg midi.PortEvent

func NewModel(manager *sequencer.Manager, th *theme.Theme, title string, tickRate time.Duration) Model {
	return Model{
		Manager:  manager,
		Theme:    th,
		Title:    title,
		TickRate: tickRate,
		width:    88,
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func ListenForUpdates(manager *sequencer.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForBattery(ch <-chan device.Battery) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		b, ok := <-ch
		if !ok {
			return nil
		}
		return BatteryMsg(b)
	}
}

func ListenForPorts(ch <-chan midi.PortEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return PortEventMsg(ev)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.TickRate),
		ListenForUpdates(m.Manager),
		ListenForBattery(m.Telemetry),
		ListenForPorts(m.Ports),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			if st, ok := m.Manager.Status(); ok && st.State == sequencer.Running {
				_, m.err = m.Manager.Pause()
			}
			return m, tea.Quit

		case " ", "p":
			m.err = m.Manager.Toggle()

		case "r":
			m.err = m.Manager.Restart()

		case "?":
			m.showHelp = !m.showHelp
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		m.Manager.Tick()
		return m, tick(m.TickRate)

	case UpdateMsg:
		return m, ListenForUpdates(m.Manager)

	case BatteryMsg:
		b := device.Battery(msg)
		m.battery = &b
		return m, ListenForBattery(m.Telemetry)

	case PortEventMsg:
		if msg.Type == midi.PortConnected {
			m.monitor = msg.Name
		} else if msg.Name == m.monitor {
			m.monitor = ""
		}
		return m, ListenForPorts(m.Ports)
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	fgStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	st, loaded := m.Manager.Status()
	if !loaded {
		return "\n" + headerStyle.Render("go-pianola") + "\n\n" + dimStyle.Render("no score loaded  q:quit")
	}

	sym := m.Theme.Symbols.Stop
	switch st.State {
	case sequencer.Running:
		sym = m.Theme.Symbols.Play
	case sequencer.Paused:
		sym = m.Theme.Symbols.Pause
	}
	profile := m.Manager.Options().Profile
	leadIn := m.Manager.Options().LeadIn
	header := headerStyle.Render(fmt.Sprintf("go-pianola  %c  %s / %s  %s",
		sym, FormatPosition(st.Position), FormatPosition(st.Length-leadIn), m.Title))

	var status []string
	if m.battery != nil {
		status = append(status, fmt.Sprintf("battery %d%% %.1fV", m.battery.Percentage, m.battery.Millivolts()/1000))
	}
	if m.monitor != "" {
		status = append(status, "monitor "+m.monitor)
	}

	keys := widgets.RenderKeyboard(m.Theme, profile.Low, profile.High, m.Manager.Sounding())
	bar := widgets.RenderProgress(m.Theme, int64(st.Elapsed), int64(st.Length), min(m.width, profile.Keys()))

	c := st.Counters
	stats := fgStyle.Render(fmt.Sprintf("events %d/%d  sent %d  skipped %d  dropped %d  shortened %d  stolen %d",
		st.Cursor, st.Events, c.Dispatched, c.Unsupported, c.Dropped, st.Report.Shortened, st.Report.Stolen))

	help := dimStyle.Render("space:play/pause  r:restart  ?:help  q:quit")
	if m.showHelp {
		help = dimStyle.Render(widgets.RenderKeyHelp(helpSections))
	}

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	if len(status) > 0 {
		out.WriteString("  ")
		out.WriteString(dimStyle.Render(strings.Join(status, "  ")))
	}
	out.WriteString("\n\n")
	out.WriteString(bar)
	out.WriteString("\n")
	out.WriteString(keys)
	out.WriteString("\n\n")
	out.WriteString(stats)
	out.WriteString("\n\n")
	out.WriteString(help)
	if m.err != nil {
		out.WriteString("\n")
		out.WriteString(warnStyle.Render(m.err.Error()))
	}
	return out.String()
}

// FormatPosition renders ms as m:ss.t, with a leading minus during pre-roll.
func FormatPosition(ms score.Millis) string {
	sign := ""
	if ms < 0 {
		sign = "-"
		ms = -ms
	}
	tenths := ms / 100
	return fmt.Sprintf("%s%d:%02d.%d", sign, tenths/600, tenths/10%60, tenths%10)
}

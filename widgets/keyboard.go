package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-pianola/theme"
)

// IsBlackKey reports whether a MIDI pitch is a black key.
func IsBlackKey(pitch int) bool {
	switch pitch % 12 {
	case 1, 3, 6, 8, 10:
		return true
	}
	return false
}

// RenderKeyboard draws one cell per key from low to high, highlighting the
// sounding pitches.
func RenderKeyboard(th *theme.Theme, low, high int, sounding []int) string {
	held := make(map[int]bool, len(sounding))
	for _, p := range sounding {
		held[p] = true
	}

	idle := lipgloss.NewStyle().Foreground(th.Muted())
	hit := lipgloss.NewStyle().Foreground(th.Success())

	var out strings.Builder
	for p := low; p <= high; p++ {
		switch {
		case held[p]:
			out.WriteString(hit.Render(string(th.Symbols.Sounding)))
		case IsBlackKey(p):
			out.WriteString(idle.Render(string(th.Symbols.BlackKey)))
		default:
			out.WriteString(idle.Render(string(th.Symbols.WhiteKey)))
		}
	}
	return out.String()
}

// RenderProgress draws a bar of width cells filled to pos/length.
func RenderProgress(th *theme.Theme, pos, length int64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := 0
	if length > 0 && pos > 0 {
		filled = int(min(pos, length) * int64(width) / length)
	}
	done := lipgloss.NewStyle().Foreground(th.Accent()).Render(strings.Repeat("━", filled))
	rest := lipgloss.NewStyle().Foreground(th.Muted()).Render(strings.Repeat("─", width-filled))
	return done + rest
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}

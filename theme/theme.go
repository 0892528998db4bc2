package theme

import "github.com/charmbracelet/lipgloss"

type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	// Keyboard strip
	WhiteKey rune // ▁ idle white key
	BlackKey rune // ▔ idle black key
	Sounding rune // █ key held down

	// Transport
	Play  rune // ▶
	Pause rune // ‖
	Stop  rune // ■
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			WhiteKey: '▁',
			BlackKey: '▔',
			Sounding: '█',

			Play:  '▶',
			Pause: '‖',
			Stop:  '■',
		},
	}
}

// Roles are positions along the palette ramp.
const (
	RoleMuted   = 0.2 // idle keys, help text
	RoleFG      = 0.4 // counters
	RoleAccent  = 0.5 // header, progress
	RoleWarning = 0.8 // errors
	RoleSuccess = 1.0 // sounding keys
)

func (t *Theme) color(role float64) lipgloss.Color {
	return lipgloss.Color(t.Palette.At(role).Hex())
}

func (t *Theme) Muted() lipgloss.Color   { return t.color(RoleMuted) }
func (t *Theme) FG() lipgloss.Color      { return t.color(RoleFG) }
func (t *Theme) Accent() lipgloss.Color  { return t.color(RoleAccent) }
func (t *Theme) Warning() lipgloss.Color { return t.color(RoleWarning) }
func (t *Theme) Success() lipgloss.Color { return t.color(RoleSuccess) }

package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for the live display and summary.
type ColorScheme struct {
	Pass      *color.Color
	Fail      *color.Color
	Warn      *color.Color
	Label     *color.Color
	Value     *color.Color
	Latency   *color.Color
	Phase     *color.Color
	Dim       *color.Color
	Header    *color.Color
	Highlight *color.Color
}

// DefaultColorScheme returns the default color scheme. Colors are forced on;
// callers decide whether to use this or NoColorScheme.
func DefaultColorScheme() *ColorScheme {
	scheme := &ColorScheme{
		Pass:      color.New(color.FgGreen),
		Fail:      color.New(color.FgRed),
		Warn:      color.New(color.FgYellow),
		Label:     color.New(color.Bold),
		Value:     color.New(color.FgCyan),
		Latency:   color.New(color.FgBlue),
		Phase:     color.New(color.FgMagenta),
		Dim:       color.New(color.Faint),
		Header:    color.New(color.FgCyan),
		Highlight: color.New(color.FgMagenta, color.Bold),
	}
	for _, c := range scheme.all() {
		c.EnableColor()
	}
	return scheme
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range scheme.all() {
		c.DisableColor()
	}
	return scheme
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{
		s.Pass, s.Fail, s.Warn, s.Label, s.Value,
		s.Latency, s.Phase, s.Dim, s.Header, s.Highlight,
	}
}

// rateColor picks pass, warn or fail for a success ratio.
func (s *ColorScheme) rateColor(rate float64) *color.Color {
	switch {
	case rate >= 0.99:
		return s.Pass
	case rate >= 0.95:
		return s.Warn
	default:
		return s.Fail
	}
}

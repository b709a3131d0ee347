package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for cards.
type Theme struct {
	Primary lipgloss.Color // accent color
	Dim     lipgloss.Color // secondary text
	Error   lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
	Error:   lipgloss.Color("#ff5f5f"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
	Bar    lipgloss.Style
	Help   lipgloss.Style
	Border lipgloss.Style
	Failed lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label:  lipgloss.NewStyle().Foreground(t.Dim),
		Value:  lipgloss.NewStyle().Bold(true),
		Bar:    lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim).Italic(true),
		Border: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Primary).Padding(0, 1),
		Failed: lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(t.Error).Padding(0, 1),
	}
}

// DefaultStyles returns styles for DefaultTheme.
func DefaultStyles() Styles {
	return NewStyles(DefaultTheme)
}

// Row is a key/value line.
type Row struct {
	Key   string
	Value string
}

// Bar is a labeled horizontal bar for a fraction in [0, 1].
type Bar struct {
	Label    string
	Fraction float64
}

// Card is a bordered block of rows, bars and a footer.
type Card struct {
	Title    string
	Rows     []Row
	Bars     []Bar
	Footer   string
	Failed   bool
	BarWidth int
}

// Render renders the card.
func (c Card) Render(s Styles) string {
	var lines []string
	if c.Title != "" {
		lines = append(lines, s.Title.Render(c.Title), "")
	}

	keyWidth := 0
	for _, r := range c.Rows {
		keyWidth = max(keyWidth, lipgloss.Width(r.Key))
	}
	for _, r := range c.Rows {
		key := r.Key + strings.Repeat(" ", keyWidth-lipgloss.Width(r.Key))
		lines = append(lines, s.Label.Render(key)+"  "+s.Value.Render(r.Value))
	}

	if len(c.Bars) > 0 {
		if len(c.Rows) > 0 {
			lines = append(lines, "")
		}
		width := c.BarWidth
		if width <= 0 {
			width = 24
		}
		labelWidth := 0
		for _, b := range c.Bars {
			labelWidth = max(labelWidth, lipgloss.Width(b.Label))
		}
		for _, b := range c.Bars {
			f := min(max(b.Fraction, 0), 1)
			n := int(f*float64(width) + 0.5)
			label := b.Label + strings.Repeat(" ", labelWidth-lipgloss.Width(b.Label))
			bar := s.Bar.Render(strings.Repeat("█", n)) + strings.Repeat("░", width-n)
			lines = append(lines, fmt.Sprintf("%s  %s %s", label, bar, FormatPercent(f)))
		}
	}

	if c.Footer != "" {
		lines = append(lines, "", s.Help.Render(c.Footer))
	}

	box := s.Border
	if c.Failed {
		box = s.Failed
	}
	return box.Render(strings.Join(lines, "\n"))
}

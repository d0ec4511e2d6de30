package viz

import "github.com/charmbracelet/lipgloss"

// Theme is the color scheme of the TUI.
type Theme struct {
	Name    string
	Primary lipgloss.Color
	Accent  lipgloss.Color
	Text    lipgloss.Color
	Muted   lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
}

var (
	ThemeDefault = Theme{
		Name:    "default",
		Primary: lipgloss.Color("86"),
		Accent:  lipgloss.Color("205"),
		Text:    lipgloss.Color("252"),
		Muted:   lipgloss.Color("242"),
		Success: lipgloss.Color("82"),
		Warning: lipgloss.Color("220"),
		Error:   lipgloss.Color("196"),
	}

	ThemeMicrowave = Theme{
		Name:    "microwave",
		Primary: lipgloss.Color("#ff6b6b"),
		Accent:  lipgloss.Color("#feca57"),
		Text:    lipgloss.Color("#fff5f5"),
		Muted:   lipgloss.Color("#8b6b8c"),
		Success: lipgloss.Color("#5fd068"),
		Warning: lipgloss.Color("#ffc048"),
		Error:   lipgloss.Color("#ff4757"),
	}

	ThemeMinimal = Theme{
		Name:    "minimal",
		Primary: lipgloss.Color("#ffffff"),
		Accent:  lipgloss.Color("#0088ff"),
		Text:    lipgloss.Color("#ffffff"),
		Muted:   lipgloss.Color("#888888"),
		Success: lipgloss.Color("#00ff00"),
		Warning: lipgloss.Color("#ffaa00"),
		Error:   lipgloss.Color("#ff0000"),
	}

	Themes = []Theme{ThemeDefault, ThemeMicrowave, ThemeMinimal}
)

// GetTheme returns the named theme, or the default one.
func GetTheme(name string) Theme {
	for _, t := range Themes {
		if t.Name == name {
			return t
		}
	}
	return ThemeDefault
}

// next returns the theme after t in Themes.
func (t Theme) next() Theme {
	for i, o := range Themes {
		if o.Name == t.Name {
			return Themes[(i+1)%len(Themes)]
		}
	}
	return ThemeDefault
}

func ThemeNames() []string {
	names := make([]string, len(Themes))
	for i, t := range Themes {
		names[i] = t.Name
	}
	return names
}

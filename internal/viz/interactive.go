package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Picker is a menu choosing one of a list of names.
type Picker struct {
	title    string
	names    []string
	describe func(string) string
	cursor   int
	chosen   string
	st       styles
}

// NewPicker lists names under title. describe, when non-nil, adds a dimmed
// description next to each name.
func NewPicker(title string, names []string, describe func(string) string) Picker {
	return Picker{title: title, names: names, describe: describe, st: newStyles(ThemeDefault)}
}

func (p Picker) Init() tea.Cmd { return nil }

func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return p, nil
	}
	switch key.String() {
	case "q", "ctrl+c", "esc":
		return p, tea.Quit
	case "up", "k":
		if p.cursor > 0 {
			p.cursor--
		}
	case "down", "j":
		if p.cursor < len(p.names)-1 {
			p.cursor++
		}
	case "enter", " ":
		if len(p.names) > 0 {
			p.chosen = p.names[p.cursor]
		}
		return p, tea.Quit
	}
	return p, nil
}

// Chosen is the selected name, empty if the picker was dismissed.
func (p Picker) Chosen() string { return p.chosen }

func (p Picker) View() string {
	var s strings.Builder
	s.WriteString(p.st.header.Render(p.title) + "\n")
	for i, name := range p.names {
		line := fmt.Sprintf("%-10s", name)
		if p.describe != nil {
			line += " " + p.st.label.UnsetWidth().Render(p.describe(name))
		}
		if i == p.cursor {
			s.WriteString(p.st.selected.Render("> "+name) + strings.TrimPrefix(line, name) + "\n")
			continue
		}
		s.WriteString("  " + line + "\n")
	}
	s.WriteString(p.st.help.Render("↑↓:Move  Enter:Select  Q:Quit"))
	return s.String()
}

// Pick runs a full-screen picker and returns the chosen name, empty if the
// user quit.
func Pick(title string, names []string, describe func(string) string) (string, error) {
	final, err := tea.NewProgram(NewPicker(title, names, describe), tea.WithAltScreen()).Run()
	if err != nil {
		return "", err
	}
	return final.(Picker).Chosen(), nil
}

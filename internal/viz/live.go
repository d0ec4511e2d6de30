package viz

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/lenseflow/internal/jointmax"
	"github.com/san-kum/lenseflow/internal/metrics"
)

const (
	barWidth     = 30
	graphWidth   = 40
	graphHeight  = 6
	mapCells     = 24
	tickInterval = time.Second / 4
)

// RecordMsg delivers one finished outer iteration to the model.
type RecordMsg jointmax.Record

// DoneMsg ends the run, with the error that aborted it if any.
type DoneMsg struct{ Err error }

type TickMsg time.Time

// Model shows the progress of a joint reconstruction.
type Model struct {
	name    string
	steps   int
	trace   []jointmax.Record
	lnp     []float64
	start   time.Time
	elapsed time.Duration

	done        bool
	err         error
	interrupted bool

	// playHead is the record shown, -1 for the latest.
	playHead      int
	showDirection bool
	showHelp      bool

	theme Theme
	st    styles
	width int
}

func NewModel(name string, steps int) Model {
	return Model{
		name:     name,
		steps:    steps,
		start:    time.Now(),
		playHead: -1,
		theme:    ThemeDefault,
		st:       newStyles(ThemeDefault),
		width:    80,
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.interrupted = !m.done
			return m, tea.Quit
		case "m":
			m.showDirection = !m.showDirection
		case "t":
			m.theme = m.theme.next()
			m.st = newStyles(m.theme)
		case "[":
			m.scrub(-1)
		case "]":
			m.scrub(1)
		case "?":
			m.showHelp = !m.showHelp
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case RecordMsg:
		m.trace = append(m.trace, jointmax.Record(msg))
		m.lnp = append(m.lnp, msg.LnP)
	case DoneMsg:
		m.done, m.err = true, msg.Err
		m.elapsed = time.Since(m.start)
	case TickMsg:
		if m.done {
			return m, nil
		}
		m.elapsed = time.Since(m.start)
		return m, tick()
	}
	return m, nil
}

func (m *Model) scrub(dir int) {
	if len(m.trace) == 0 {
		return
	}
	if m.playHead == -1 {
		m.playHead = len(m.trace) - 1
	}
	m.playHead += dir
	if m.playHead < 0 {
		m.playHead = 0
	}
	if m.playHead >= len(m.trace) {
		m.playHead = -1
	}
}

// Done reports whether the run finished, successfully or not.
func (m Model) Done() bool { return m.done }

func (m Model) Err() error { return m.err }

// Interrupted reports whether the user quit before the run finished.
func (m Model) Interrupted() bool { return m.interrupted }

func (m Model) Trace() []jointmax.Record { return m.trace }

func (m Model) current() (jointmax.Record, bool) {
	if len(m.trace) == 0 {
		return jointmax.Record{}, false
	}
	if m.playHead >= 0 && m.playHead < len(m.trace) {
		return m.trace[m.playHead], true
	}
	return m.trace[len(m.trace)-1], true
}

func (m Model) status() string {
	switch {
	case m.err != nil:
		return m.st.failed.Render("FAILED")
	case m.done:
		return m.st.done.Render("DONE")
	case m.playHead >= 0:
		return m.st.running.Render(fmt.Sprintf("RUNNING (viewing step %d)", m.playHead+1))
	}
	return m.st.running.Render("RUNNING")
}

func (m Model) View() string {
	if m.showHelp {
		return m.helpView()
	}

	var s strings.Builder
	s.WriteString(m.st.header.Render("LENSEFLOW · "+m.name) + "\n")

	frac := 0.0
	if m.steps > 0 {
		frac = float64(len(m.trace)) / float64(m.steps)
	}
	fmt.Fprintf(&s, "%s  %s %d/%d\n", m.status(), m.st.progress(frac, barWidth), len(m.trace), m.steps)
	if m.err != nil {
		s.WriteString(m.st.failed.Render(m.err.Error()) + "\n")
	}

	if len(m.lnp) > 1 {
		chart := asciigraph.Plot(m.lnp, asciigraph.Height(graphHeight), asciigraph.Width(graphWidth), asciigraph.Caption("lnP"))
		s.WriteString(m.st.graph.Render(chart) + "\n")
	}

	stats := m.statsView()
	if rec, ok := m.current(); ok {
		title, img := "ϕ", rec.Phi
		if m.showDirection && rec.Direction != nil {
			title, img = "search direction", rec.Direction
		}
		if img != nil {
			panel := m.st.panel.Render(m.st.selected.Render(title) + "\n" + Heatmap(img.Rows(), mapCells))
			stats = lipgloss.JoinHorizontal(lipgloss.Top, stats, "  ", panel)
		}
	}
	s.WriteString(stats + "\n")
	s.WriteString(m.st.help.Render("M:Map  T:Theme  [ ]:Steps  ?:Help  Q:Quit"))
	return s.String()
}

func (m Model) statsView() string {
	var s strings.Builder
	row := func(label, value string) {
		s.WriteString(m.st.label.Render(label) + m.st.value.Render(value) + "\n")
	}
	row("Elapsed", m.elapsed.Round(time.Millisecond).String())

	rec, ok := m.current()
	if !ok {
		row("Step", "waiting for first field step")
		return s.String()
	}
	row("Step", fmt.Sprintf("%d", rec.Step))
	row("lnP", fmt.Sprintf("%.4f", rec.LnP))
	row("Δ lnP", fmt.Sprintf("%.4g", rec.LnP-rec.LnPBefore))
	row("α", fmt.Sprintf("%.4g", rec.Alpha))
	if h := rec.Solver; h != nil {
		row("CG iterations", fmt.Sprintf("%d", h.Iterations))
		row("CG residual", fmt.Sprintf("%.3g", h.Final()))
		row("CG converged", fmt.Sprintf("%t", h.Converged))
	}
	if len(m.lnp) > 1 {
		row("Trend", Sparkline(m.lnp, 20))
	}

	if m.done && m.err == nil {
		s.WriteString("\n" + m.st.header.Render("SUMMARY") + "\n")
		summary := metrics.Summarize(m.trace)
		for _, metric := range metrics.Default() {
			row(metric.Name(), fmt.Sprintf("%.4g", summary[metric.Name()]))
		}
	}
	return s.String()
}

func (m Model) helpView() string {
	var s strings.Builder
	s.WriteString(m.st.header.Render("KEYBOARD SHORTCUTS") + "\n")
	keys := [][2]string{
		{"M", "toggle ϕ and search direction"},
		{"T", "cycle themes (" + strings.Join(ThemeNames(), ", ") + ")"},
		{"[ ]", "step through earlier iterations"},
		{"?", "close help"},
		{"Q", "quit"},
	}
	for _, k := range keys {
		s.WriteString(m.st.selected.Render(fmt.Sprintf("%-6s", k[0])) + m.st.value.Render(k[1]) + "\n")
	}
	return m.st.panel.Render(s.String())
}

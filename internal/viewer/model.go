// Package viewer renders the drift navigator in the terminal.
package viewer

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	"github.com/pbaille/drift/internal/domain"
	"github.com/pbaille/drift/internal/drift"

	tea "github.com/charmbracelet/bubbletea"
)

// DefaultSettleDelay is the length of the tag-switch animation lock
const DefaultSettleDelay = 350 * time.Millisecond

// settleMsg ends the transition started by switch number gen
type settleMsg struct {
	gen int
}

// Options configures the viewer
type Options struct {
	// StartID opens this quote directly instead of the landing list
	StartID int

	SettleDelay time.Duration
}

// Model is the root bubbletea model. It holds the latest committed
// navigation session and nothing that could contradict it.
type Model struct {
	nav     *drift.Navigator
	session drift.Session
	keys    keyMap
	help    help.Model

	settleDelay time.Duration
	gen         int

	// landing list selection
	cursor int

	dropped int
	status  string

	width  int
	height int
}

// New creates the viewer on the landing list, or directly on a quote when
// opts.StartID names one
func New(nav *drift.Navigator, opts Options) Model {
	m := Model{
		nav:         nav,
		session:     drift.Landing(),
		keys:        defaultKeyMap(),
		help:        help.New(),
		settleDelay: opts.SettleDelay,
	}
	if m.settleDelay <= 0 {
		m.settleDelay = DefaultSettleDelay
	}
	if opts.StartID > 0 {
		s, out := nav.Open(m.session, opts.StartID)
		if out == drift.NoOp {
			m.status = fmt.Sprintf("quote %d not found", opts.StartID)
		} else {
			m.session = s
			m.cursor = s.QuoteIndex()
		}
	}
	return m
}

// Session returns the committed navigation session
func (m Model) Session() drift.Session { return m.session }

// Dropped returns how many inputs were discarded during transitions
func (m Model) Dropped() int { return m.dropped }

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case settleMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.session, _ = m.nav.Settle(m.session)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.session.Phase() == drift.OnLanding {
		return m.handleLandingKey(msg)
	}

	var in drift.Input
	switch {
	case key.Matches(msg, m.keys.Exit):
		in = drift.InputExit
	case key.Matches(msg, m.keys.Advance):
		in = drift.InputAdvance
	case key.Matches(msg, m.keys.Retreat):
		in = drift.InputRetreat
	case key.Matches(msg, m.keys.DriftUp):
		in = drift.InputDriftUp
	case key.Matches(msg, m.keys.DriftDown):
		in = drift.InputDriftDown
	default:
		return m, nil
	}
	return m.step(in)
}

func (m Model) handleLandingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	n := m.nav.Len()
	switch {
	case key.Matches(msg, m.keys.Open):
		if n == 0 {
			return m, nil
		}
		s, out := m.nav.OpenIndex(m.session, m.cursor)
		if out == drift.Moved {
			m.session = s
			m.status = ""
		}
	case key.Matches(msg, m.keys.DriftDown), key.Matches(msg, m.keys.Advance):
		if m.cursor < n-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.DriftUp), key.Matches(msg, m.keys.Retreat):
		if m.cursor > 0 {
			m.cursor--
		}
	}
	return m, nil
}

func (m Model) step(in drift.Input) (tea.Model, tea.Cmd) {
	prev := m.session
	s, out := m.nav.Step(m.session, in)

	switch out {
	case drift.Dropped:
		m.dropped++
		return m, nil
	case drift.Exited:
		m.session = s
		m.gen++
		if i := prev.QuoteIndex(); i >= 0 {
			m.cursor = i
		}
		return m, nil
	case drift.Switched:
		m.session = s
		m.gen++
		gen := m.gen
		return m, tea.Tick(m.settleDelay, func(time.Time) tea.Msg {
			return settleMsg{gen: gen}
		})
	default:
		m.session = s
		return m, nil
	}
}

// View implements tea.Model
func (m Model) View() string {
	if m.session.Phase() == drift.OnLanding {
		return m.landingView()
	}
	return m.quoteView()
}

func (m Model) landingView() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("drift"))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  %d quotes, %d tags", m.nav.Len(), len(m.nav.Tags()))))
	sb.WriteString("\n\n")

	rows := m.height - 6
	if rows < 5 {
		rows = 15
	}
	start := 0
	if m.cursor >= rows {
		start = m.cursor - rows + 1
	}
	end := start + rows
	if end > m.nav.Len() {
		end = m.nav.Len()
	}

	for i := start; i < end; i++ {
		q, _ := m.nav.Quote(i)
		line := fmt.Sprintf("%-28s %s", truncate(q.Author, 28), truncate(coverLabel(q), 40))
		if i == m.cursor {
			sb.WriteString(selectedStyle.Render("▸ " + line))
		} else {
			sb.WriteString(coverStyle.Render("  " + line))
		}
		sb.WriteString("\n")
	}

	if m.status != "" {
		sb.WriteString("\n" + statusStyle.Render(m.status))
	}
	sb.WriteString("\n" + m.help.ShortHelpView([]key.Binding{m.keys.Open, m.keys.DriftDown, m.keys.DriftUp, m.keys.Quit}))
	return sb.String()
}

func (m Model) quoteView() string {
	q, _ := m.nav.Current(m.session)
	s := m.session

	width := m.width
	if width <= 0 {
		width = 80
	}

	var sb strings.Builder
	if above := s.Above(); above != "" {
		sb.WriteString(candidateStyle.Render("↑ " + above))
	}
	sb.WriteString("\n")

	tag := s.ActiveTag()
	if tag == "" {
		tag = "all quotes"
	}
	sb.WriteString(activeTagStyle.Render(tag))
	if s.Busy() {
		sb.WriteString(busyStyle.Render("  ~ drifting from " + s.PreviousTag()))
	}
	sb.WriteString("\n")

	sb.WriteString(quoteStyle.Width(width - 8).Render("“" + q.Text + "”"))
	sb.WriteString("\n")
	sb.WriteString(authorStyle.Render("— " + byline(q)))
	sb.WriteString("\n\n")

	if below := s.Below(); below != "" {
		sb.WriteString(candidateStyle.Render("↓ " + below))
	}
	sb.WriteString("\n\n")

	status := fmt.Sprintf("#%d  depth %d", q.ID, s.Depth())
	if h := s.History(); len(h) > 0 {
		status += "  " + strings.Join(h, " › ")
	}
	if m.dropped > 0 {
		status += fmt.Sprintf("  dropped %d", m.dropped)
	}
	sb.WriteString(statusStyle.Render(status))
	sb.WriteString("\n" + m.help.View(m.keys))

	return lipgloss.NewStyle().MaxWidth(width).Render(sb.String())
}

func byline(q domain.Quote) string {
	parts := []string{q.Author}
	if q.Publication != nil && *q.Publication != "" {
		parts = append(parts, *q.Publication)
	}
	if q.Year != nil {
		parts = append(parts, fmt.Sprint(*q.Year))
	}
	return strings.Join(parts, ", ")
}

// coverLabel stands in for the cover image on the landing list
func coverLabel(q domain.Quote) string {
	if q.Publication != nil && *q.Publication != "" {
		return *q.Publication
	}
	return q.Text
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

package viewer

import (
	"strings"
	"testing"

	"github.com/pbaille/drift/internal/domain"
	"github.com/pbaille/drift/internal/drift"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	tea "github.com/charmbracelet/bubbletea"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func navigator() *drift.Navigator {
	pub := "Meditations"
	qs := []domain.Quote{
		{ID: 1, Text: "Life is long if you know how to use it.", Author: "Seneca", WeightedTags: domain.WeightedTags{"life": 0.9, "time": 0.5}},
		{ID: 2, Text: "Waste no more time.", Author: "Marcus Aurelius", Publication: &pub, WeightedTags: domain.WeightedTags{"time": 0.9}},
		{ID: 3, Text: "Live each day.", Author: "Seneca", WeightedTags: domain.WeightedTags{"life": 0.7}},
	}
	conns := domain.Connections{
		"life": {Related: []domain.RelatedTag{{Tag: "time", Score: 0.45}}},
		"time": {Related: []domain.RelatedTag{{Tag: "life", Score: 0.45}}},
	}
	return drift.New(qs, conns, []string{"life", "time"})
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case "up":
			msg = tea.KeyMsg{Type: tea.KeyUp}
		case "right":
			msg = tea.KeyMsg{Type: tea.KeyRight}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		var updated tea.Model
		updated, cmd = m.Update(msg)
		m = updated.(Model)
	}
	return m, cmd
}

func TestLandingOpenQuote(t *testing.T) {
	m := New(navigator(), Options{})
	assert.Equal(t, drift.OnLanding, m.Session().Phase())
	assert.Contains(t, m.View(), "3 quotes, 2 tags")

	m, _ = press(t, m, "j", "enter")
	s := m.Session()
	assert.Equal(t, drift.OnQuote, s.Phase())
	assert.Equal(t, 1, s.QuoteIndex())
	assert.Equal(t, "time", s.ActiveTag())
	assert.Contains(t, m.View(), "Waste no more time.")
}

func TestAdvanceWithinTag(t *testing.T) {
	m := New(navigator(), Options{StartID: 1})
	require.Equal(t, "life", m.Session().ActiveTag())

	m, cmd := press(t, m, "right")
	assert.Nil(t, cmd)
	assert.Equal(t, 2, m.Session().QuoteIndex())

	m, _ = press(t, m, "l")
	assert.Equal(t, 0, m.Session().QuoteIndex(), "wraps around")
}

func TestDriftSchedulesSettle(t *testing.T) {
	m := New(navigator(), Options{StartID: 1})

	m, cmd := press(t, m, "down")
	require.NotNil(t, cmd, "a tag switch schedules the settle tick")
	assert.Equal(t, drift.Transitioning, m.Session().Phase())
	assert.Equal(t, "time", m.Session().ActiveTag())
	assert.Contains(t, m.View(), "drifting from life")

	// input during the transition is dropped, not queued
	m, _ = press(t, m, "right", "up")
	assert.Equal(t, 2, m.Dropped())
	assert.Equal(t, "time", m.Session().ActiveTag())

	updated, _ := m.Update(settleMsg{gen: m.gen})
	m = updated.(Model)
	assert.Equal(t, drift.OnQuote, m.Session().Phase())

	m, _ = press(t, m, "k")
	assert.Equal(t, "life", m.Session().ActiveTag())
	assert.Equal(t, 0, m.Session().Depth())
}

func TestStaleSettleIgnored(t *testing.T) {
	m := New(navigator(), Options{StartID: 1})
	m, _ = press(t, m, "down")
	stale := settleMsg{gen: m.gen}

	// exit is honoured mid-transition and retires the pending tick
	m, _ = press(t, m, "esc")
	assert.Greater(t, m.gen, stale.gen)

	m, _ = press(t, m, "enter", "down")
	require.Equal(t, drift.Transitioning, m.Session().Phase())

	updated, _ := m.Update(stale)
	m = updated.(Model)
	assert.Equal(t, drift.Transitioning, m.Session().Phase(), "an old tick does not end a newer transition")
}

func TestExitReturnsToLanding(t *testing.T) {
	m := New(navigator(), Options{StartID: 3})

	m, _ = press(t, m, "esc")
	assert.Equal(t, drift.OnLanding, m.Session().Phase())
	assert.Equal(t, 2, m.cursor, "landing keeps the last quote selected")
}

func TestDeepLinkUnknownID(t *testing.T) {
	m := New(navigator(), Options{StartID: 42})
	assert.Equal(t, drift.OnLanding, m.Session().Phase())
	assert.True(t, strings.Contains(m.View(), "quote 42 not found"))
}

func TestQuit(t *testing.T) {
	m := New(navigator(), Options{StartID: 1})
	_, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}

// Package drift implements the viewer's tag-drift navigation state machine.
//
// A Session is an immutable value: every navigation step returns a new
// Session with the quote index, active tag, tag history and both drift
// candidates already updated, so a renderer holding the latest Session never
// observes a half-applied transition.
package drift

import (
	"net/url"
	"strconv"
	"strings"
)

// Phase is the state of a navigation session
type Phase int

const (
	// OnLanding shows the cover canvas; no quote is selected
	OnLanding Phase = iota
	// OnQuote shows a quote under an active tag
	OnQuote
	// Transitioning is the animation lock after a tag switch
	Transitioning
)

func (p Phase) String() string {
	switch p {
	case OnLanding:
		return "landing"
	case OnQuote:
		return "quote"
	case Transitioning:
		return "transitioning"
	}
	return "unknown"
}

// Outcome tells the caller what a step did
type Outcome int

const (
	// NoOp means the input had no effect (e.g. empty history)
	NoOp Outcome = iota
	// Moved means a new quote under the same tag
	Moved
	// Switched means the active tag changed; the session is Transitioning
	Switched
	// Settled means a transition finished
	Settled
	// Exited means the session went back to the landing canvas
	Exited
	// Dropped means the input arrived while Transitioning and was discarded
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case NoOp:
		return "noop"
	case Moved:
		return "moved"
	case Switched:
		return "switched"
	case Settled:
		return "settled"
	case Exited:
		return "exited"
	case Dropped:
		return "dropped"
	}
	return "unknown"
}

// Session is one committed navigation state
type Session struct {
	phase    Phase
	index    int
	tag      string
	previous string
	history  []string
	above    string
	below    string
}

// Landing returns a fresh session on the landing canvas
func Landing() Session {
	return Session{phase: OnLanding, index: -1}
}

// Phase returns the session phase
func (s Session) Phase() Phase { return s.phase }

// QuoteIndex returns the collection index of the current quote, -1 on landing
func (s Session) QuoteIndex() int { return s.index }

// ActiveTag returns the tag being traversed; "" for a quote with no primary tag
func (s Session) ActiveTag() string { return s.tag }

// PreviousTag returns the tag active before the last switch
func (s Session) PreviousTag() string { return s.previous }

// Above returns the drift-up candidate (most recent history entry)
func (s Session) Above() string { return s.above }

// Below returns the drift-down candidate from the connection graph
func (s Session) Below() string { return s.below }

// History returns a copy of the tag history, oldest first
func (s Session) History() []string {
	out := make([]string, len(s.history))
	copy(out, s.history)
	return out
}

// Depth returns the number of tags in the history
func (s Session) Depth() int { return len(s.history) }

// Busy reports whether input is currently being dropped
func (s Session) Busy() bool { return s.phase == Transitioning }

// ParseDeepLink extracts the quote id from a "q=<id>" parameter. It accepts
// a full URL, a path with a query, or a bare query string.
func ParseDeepLink(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}

	query := raw
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		query = raw[i+1:]
	} else if strings.Contains(raw, "://") {
		return 0, false
	}
	if i := strings.IndexByte(query, '#'); i >= 0 {
		query = query[:i]
	}

	values, err := url.ParseQuery(query)
	if err != nil {
		return 0, false
	}
	id, err := strconv.Atoi(values.Get("q"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

package drift

import (
	"sort"

	"github.com/pbaille/drift/internal/domain"
)

// Input is a navigation action
type Input int

const (
	InputAdvance Input = iota
	InputRetreat
	InputDriftUp
	InputDriftDown
	InputSettle
	InputExit
)

// Navigator answers navigation steps over a fixed quote set and graph.
// It holds no session state; sessions are passed in and returned.
type Navigator struct {
	quotes  []domain.Quote
	byID    map[int]int
	primary map[string]bool
	byTag   map[string][]int
	related map[string][]string
}

// New indexes quotes by primary tag. When primary is empty the tags of the
// connection graph are used as the allow-list. Primary tags without quotes
// are not navigable.
func New(qs []domain.Quote, conns domain.Connections, primary []string) *Navigator {
	n := &Navigator{
		quotes:  qs,
		byID:    make(map[int]int, len(qs)),
		primary: make(map[string]bool),
		byTag:   make(map[string][]int),
		related: make(map[string][]string, len(conns)),
	}

	if len(primary) == 0 {
		for tag := range conns {
			n.primary[tag] = true
		}
	}
	for _, t := range primary {
		if t = domain.NormalizeTag(t); t != "" {
			n.primary[t] = true
		}
	}

	for i, q := range qs {
		n.byID[q.ID] = i
		for _, tag := range q.WeightedTags.Keys() {
			if n.primary[tag] {
				n.byTag[tag] = append(n.byTag[tag], i)
			}
		}
	}

	for tag := range conns {
		n.related[tag] = conns.RelatedTags(tag)
	}
	return n
}

// Len returns the number of quotes
func (n *Navigator) Len() int { return len(n.quotes) }

// Quote returns the quote at a collection index
func (n *Navigator) Quote(i int) (domain.Quote, bool) {
	if i < 0 || i >= len(n.quotes) {
		return domain.Quote{}, false
	}
	return n.quotes[i], true
}

// Current returns the session's quote
func (n *Navigator) Current(s Session) (domain.Quote, bool) {
	if s.phase == OnLanding {
		return domain.Quote{}, false
	}
	return n.Quote(s.index)
}

// Tags returns the navigable primary tags
func (n *Navigator) Tags() []string {
	tags := make([]string, 0, len(n.byTag))
	for t := range n.byTag {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// TagQuotes returns the collection indexes carrying tag, in collection order.
// The empty tag spans the whole collection.
func (n *Navigator) TagQuotes(tag string) []int {
	if tag == "" {
		all := make([]int, len(n.quotes))
		for i := range all {
			all[i] = i
		}
		return all
	}
	return n.byTag[tag]
}

// Step dispatches an input
func (n *Navigator) Step(s Session, in Input) (Session, Outcome) {
	switch in {
	case InputAdvance:
		return n.Advance(s)
	case InputRetreat:
		return n.Retreat(s)
	case InputDriftUp:
		return n.DriftUp(s)
	case InputDriftDown:
		return n.DriftDown(s)
	case InputSettle:
		return n.Settle(s)
	case InputExit:
		return n.Exit(s)
	}
	return s, NoOp
}

// Open enters quote view on the quote with the given id. The active tag is
// the quote's highest-weighted primary tag and history starts empty.
func (n *Navigator) Open(s Session, id int) (Session, Outcome) {
	i, ok := n.byID[id]
	if !ok {
		return s, NoOp
	}
	return n.OpenIndex(s, i)
}

// OpenIndex is Open by collection index
func (n *Navigator) OpenIndex(s Session, i int) (Session, Outcome) {
	if s.phase == Transitioning {
		return s, Dropped
	}
	q, ok := n.Quote(i)
	if !ok {
		return s, NoOp
	}

	tag := q.TopTag(func(t string) bool { return len(n.byTag[t]) > 0 })
	next := Session{phase: OnQuote, index: i, tag: tag}
	return n.withCandidates(next), Moved
}

// Advance moves to the next quote sharing the active tag, wrapping around.
// When the tag has no other quote, it drifts down to a related tag instead.
func (n *Navigator) Advance(s Session) (Session, Outcome) {
	return n.traverse(s, 1)
}

// Retreat moves to the previous quote sharing the active tag, wrapping around
func (n *Navigator) Retreat(s Session) (Session, Outcome) {
	return n.traverse(s, -1)
}

func (n *Navigator) traverse(s Session, dir int) (Session, Outcome) {
	switch s.phase {
	case Transitioning:
		return s, Dropped
	case OnLanding:
		return s, NoOp
	}

	list := n.TagQuotes(s.tag)
	if len(list) == 0 {
		return s, NoOp
	}

	pos := -1
	for p, i := range list {
		if i == s.index {
			pos = p
			break
		}
	}

	if pos >= 0 && len(list) == 1 {
		if dir > 0 && s.below != "" {
			return n.switchTo(s, s.below, push(s.history, s.tag)), Switched
		}
		return s, NoOp
	}

	var nextPos int
	switch {
	case pos < 0:
		nextPos = 0
	default:
		nextPos = (pos + dir + len(list)) % len(list)
	}

	next := s.clone()
	next.index = list[nextPos]
	return next, Moved
}

// DriftUp returns to the most recent tag in history; no-op when empty
func (n *Navigator) DriftUp(s Session) (Session, Outcome) {
	switch s.phase {
	case Transitioning:
		return s, Dropped
	case OnLanding:
		return s, NoOp
	}
	if len(s.history) == 0 {
		return s, NoOp
	}

	last := len(s.history) - 1
	history := make([]string, last)
	copy(history, s.history[:last])
	return n.switchTo(s, s.history[last], history), Switched
}

// DriftDown switches to the strongest related tag of the active tag and
// pushes the active tag onto history; no-op without a candidate
func (n *Navigator) DriftDown(s Session) (Session, Outcome) {
	switch s.phase {
	case Transitioning:
		return s, Dropped
	case OnLanding:
		return s, NoOp
	}
	if s.below == "" {
		return s, NoOp
	}
	return n.switchTo(s, s.below, push(s.history, s.tag)), Switched
}

// Settle ends the animation lock of a tag switch
func (n *Navigator) Settle(s Session) (Session, Outcome) {
	if s.phase != Transitioning {
		return s, NoOp
	}
	next := s.clone()
	next.phase = OnQuote
	return next, Settled
}

// Exit discards the session and returns to the landing canvas. It is
// honoured even while transitioning.
func (n *Navigator) Exit(s Session) (Session, Outcome) {
	if s.phase == OnLanding {
		return s, NoOp
	}
	return Landing(), Exited
}

// RelatedCandidate returns the first related tag of tag that is navigable
// and not tag itself
func (n *Navigator) RelatedCandidate(tag string) string {
	for _, r := range n.related[tag] {
		if r != tag && len(n.byTag[r]) > 0 {
			return r
		}
	}
	return ""
}

// switchTo builds the full post-switch session: target tag, its best
// quote, the given history and fresh drift candidates.
func (n *Navigator) switchTo(s Session, target string, history []string) Session {
	next := Session{
		phase:    Transitioning,
		index:    n.bestQuote(target, s.index),
		tag:      target,
		previous: s.tag,
		history:  history,
	}
	return n.withCandidates(next)
}

// bestQuote picks the highest-weighted quote for tag other than exclude,
// earliest on ties; falls back to exclude when it is the only one
func (n *Navigator) bestQuote(tag string, exclude int) int {
	best, bestWeight := -1, -1.0
	for _, i := range n.TagQuotes(tag) {
		if i == exclude {
			continue
		}
		if w := n.quotes[i].WeightedTags[tag]; w > bestWeight {
			best, bestWeight = i, w
		}
	}
	if best < 0 {
		return exclude
	}
	return best
}

func (n *Navigator) withCandidates(s Session) Session {
	s.above = ""
	if len(s.history) > 0 {
		s.above = s.history[len(s.history)-1]
	}
	s.below = n.RelatedCandidate(s.tag)
	return s
}

func (s Session) clone() Session {
	out := s
	out.history = make([]string, len(s.history))
	copy(out.history, s.history)
	return out
}

func push(history []string, tag string) []string {
	out := make([]string, len(history), len(history)+1)
	copy(out, history)
	if tag == "" {
		return out
	}
	return append(out, tag)
}

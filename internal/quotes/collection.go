// Package quotes loads, edits and persists the quote collection.
package quotes

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/pbaille/drift/internal/domain"
)

var (
	// ErrNotFound is returned when no quote has the requested id
	ErrNotFound = errors.New("quote not found")
	// ErrInvalid wraps validation failures of a quote record
	ErrInvalid = errors.New("invalid quote")
)

// Skip records a persisted element that could not be used
type Skip struct {
	Index  int    `json:"index"`
	ID     int    `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// Collection is the ordered quote list with an id index.
// It is not safe for concurrent use.
type Collection struct {
	quotes []domain.Quote
	byID   map[int]int

	// unreadable elements are kept verbatim so saving never drops them
	preserved []json.RawMessage
	// highest id carried by a preserved element
	preservedMax int
}

// NewCollection builds a collection from quotes, keeping their order.
// Later duplicates of an id are ignored.
func NewCollection(qs []domain.Quote) *Collection {
	c := &Collection{byID: make(map[int]int, len(qs))}
	for _, q := range qs {
		if _, dup := c.byID[q.ID]; dup {
			continue
		}
		c.byID[q.ID] = len(c.quotes)
		c.quotes = append(c.quotes, q)
	}
	return c
}

// Len returns the number of quotes
func (c *Collection) Len() int {
	return len(c.quotes)
}

// All returns a copy of the quotes in collection order
func (c *Collection) All() []domain.Quote {
	out := make([]domain.Quote, len(c.quotes))
	copy(out, c.quotes)
	return out
}

// Get returns the quote with the given id
func (c *Collection) Get(id int) (domain.Quote, bool) {
	i, ok := c.byID[id]
	if !ok {
		return domain.Quote{}, false
	}
	return c.quotes[i], true
}

// Clone returns an independent copy. Edits that must reach disk are made
// on a clone and swapped in once saved.
func (c *Collection) Clone() *Collection {
	out := &Collection{
		quotes:       make([]domain.Quote, len(c.quotes)),
		byID:         make(map[int]int, len(c.byID)),
		preserved:    append([]json.RawMessage(nil), c.preserved...),
		preservedMax: c.preservedMax,
	}
	copy(out.quotes, c.quotes)
	for id, i := range c.byID {
		out.byID[id] = i
	}
	return out
}

// Index returns the position of the quote with the given id, or -1
func (c *Collection) Index(id int) int {
	if i, ok := c.byID[id]; ok {
		return i
	}
	return -1
}

// NextID returns one more than the highest id in use, counting ids held
// by unreadable records that are still persisted
func (c *Collection) NextID() int {
	max := c.preservedMax
	for _, q := range c.quotes {
		if q.ID > max {
			max = q.ID
		}
	}
	return max + 1
}

// Add validates q, assigns it the next id and appends it
func (c *Collection) Add(q domain.Quote) (domain.Quote, error) {
	if err := q.Validate(); err != nil {
		return domain.Quote{}, errors.Join(ErrInvalid, err)
	}
	q.ID = c.NextID()
	c.byID[q.ID] = len(c.quotes)
	c.quotes = append(c.quotes, q)
	return q, nil
}

// Append stores q under the next id without validation. Extraction uses it
// for records that failed validation and are flagged for review.
func (c *Collection) Append(q domain.Quote) domain.Quote {
	q.ID = c.NextID()
	c.byID[q.ID] = len(c.quotes)
	c.quotes = append(c.quotes, q)
	return q
}

// Put replaces the stored quote with the same id
func (c *Collection) Put(q domain.Quote) error {
	if err := q.Validate(); err != nil {
		return errors.Join(ErrInvalid, err)
	}
	i, ok := c.byID[q.ID]
	if !ok {
		return ErrNotFound
	}
	c.quotes[i] = q
	return nil
}

// Delete removes the quote with the given id
func (c *Collection) Delete(id int) error {
	i, ok := c.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.quotes = append(c.quotes[:i], c.quotes[i+1:]...)
	delete(c.byID, id)
	for j := i; j < len(c.quotes); j++ {
		c.byID[c.quotes[j].ID] = j
	}
	return nil
}

// Replace swaps in a new quote list, e.g. after a weighting pass.
// Preserved unreadable elements are kept.
func (c *Collection) Replace(qs []domain.Quote) {
	fresh := NewCollection(qs)
	c.quotes = fresh.quotes
	c.byID = fresh.byID
}

// Search performs a case-insensitive substring match over text, author and tags
func (c *Collection) Search(query string) []domain.Quote {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var out []domain.Quote
	for _, q := range c.quotes {
		if matches(q, query) {
			out = append(out, q)
		}
	}
	return out
}

func matches(q domain.Quote, query string) bool {
	if strings.Contains(strings.ToLower(q.Text), query) ||
		strings.Contains(strings.ToLower(q.Author), query) {
		return true
	}
	for _, t := range q.TagNames() {
		if strings.Contains(t, query) {
			return true
		}
	}
	return false
}

// ReviewQueue returns the quotes flagged for review, lowest confidence first
func (c *Collection) ReviewQueue() []domain.Quote {
	var out []domain.Quote
	for _, q := range c.quotes {
		if q.NeedsReview {
			out = append(out, q)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence < out[j].Confidence
	})
	return out
}

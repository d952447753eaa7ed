package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Quote represents a single extracted quote with its tags
type Quote struct {
	ID           int          `json:"id"`
	Text         string       `json:"quote"`
	Author       string       `json:"author"`
	Year         *int         `json:"year"`
	Publication  *string      `json:"publication"`
	BookAuthor   *string      `json:"book_author"`
	CoverURL     *string      `json:"cover_url"`
	Tags         []string     `json:"tags"`
	WeightedTags WeightedTags `json:"weighted_tags"`
	Confidence   float64      `json:"confidence"`
	NeedsReview  bool         `json:"needs_review"`
	Notes        string       `json:"notes,omitempty"`
	SourceImage  string       `json:"source_image,omitempty"`
}

// WeightedTags maps a curated tag to its weight.
//
// It decodes both the object form {"life": 0.8} and the older list form
// [{"tag": "life", "weight": 0.8, ...}], and always encodes as an object.
type WeightedTags map[string]float64

type weightedTagEntry struct {
	Tag    string  `json:"tag"`
	Weight float64 `json:"weight"`
}

func (w *WeightedTags) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*w = nil
		return nil
	}

	if data[0] == '[' {
		var entries []weightedTagEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return fmt.Errorf("decode weighted tag list: %w", err)
		}
		out := make(WeightedTags, len(entries))
		for _, e := range entries {
			tag := NormalizeTag(e.Tag)
			if tag == "" {
				continue
			}
			out[tag] = e.Weight
		}
		*w = out
		return nil
	}

	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode weighted tags: %w", err)
	}
	out := make(WeightedTags, len(m))
	for tag, weight := range m {
		if t := NormalizeTag(tag); t != "" {
			out[t] = weight
		}
	}
	*w = out
	return nil
}

func (w WeightedTags) MarshalJSON() ([]byte, error) {
	if w == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]float64(w))
}

// Keys returns the tag names in lexical order
func (w WeightedTags) Keys() []string {
	keys := make([]string, 0, len(w))
	for k := range w {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Ranked returns the tags ordered by weight, heaviest first, ties broken lexically
func (w WeightedTags) Ranked() []string {
	keys := w.Keys()
	sort.SliceStable(keys, func(i, j int) bool {
		return w[keys[i]] > w[keys[j]]
	})
	return keys
}

// Clone returns an independent copy
func (w WeightedTags) Clone() WeightedTags {
	if w == nil {
		return nil
	}
	out := make(WeightedTags, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// NormalizeTag lowercases and trims a tag
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// TagNames returns the tags to use for scoring: curated weighted tags when
// present, the lowercased raw tags otherwise.
func (q *Quote) TagNames() []string {
	if len(q.WeightedTags) > 0 {
		return q.WeightedTags.Keys()
	}
	seen := make(map[string]bool, len(q.Tags))
	var out []string
	for _, t := range q.Tags {
		t = NormalizeTag(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// TopTag returns the highest weighted tag accepted by allowed, or "" if none
func (q *Quote) TopTag(allowed func(string) bool) string {
	for _, tag := range q.WeightedTags.Ranked() {
		if allowed == nil || allowed(tag) {
			return tag
		}
	}
	return ""
}

// Validate reports the first missing required field
func (q *Quote) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("quote text is required")
	}
	if strings.TrimSpace(q.Author) == "" {
		return fmt.Errorf("author is required")
	}
	return nil
}

// RelatedTag is one entry of a tag's related list
type RelatedTag struct {
	Tag   string  `json:"tag"`
	Score float64 `json:"score"`
}

// TagConnection holds the related tags of one primary tag
type TagConnection struct {
	Related    []RelatedTag `json:"related"`
	QuoteCount int          `json:"quote_count"`
}

// Connections is the persisted navigation graph, keyed by primary tag
type Connections map[string]TagConnection

// RelatedTags returns the related tag names of tag, strongest first
func (c Connections) RelatedTags(tag string) []string {
	conn, ok := c[tag]
	if !ok {
		return nil
	}
	out := make([]string, len(conn.Related))
	for i, r := range conn.Related {
		out[i] = r.Tag
	}
	return out
}

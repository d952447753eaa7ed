// Package graph builds the tag connection graph used for drift navigation.
//
// Two primary tags are related when they label the same quotes; each shared
// quote contributes the product of the two tags' weights on that quote.
package graph

import (
	"math"
	"sort"
	"strings"

	"github.com/pbaille/drift/internal/domain"
)

// Options configures graph building
type Options struct {
	// TopK caps each tag's related list
	TopK int
	// MinWeight ignores per-quote tag weights below this value
	MinWeight float64
	// ReciprocalRatio bounds the reciprocal repair pass: A is added to B's
	// list unless B's weakest entry outscores A→B by more than this factor.
	ReciprocalRatio float64
	// ExcludeAuthorTags drops tags that merely name the quote's author
	ExcludeAuthorTags bool
}

// DefaultOptions returns the options used by `drift connect`
func DefaultOptions() Options {
	return Options{
		TopK:              5,
		ReciprocalRatio:   2.0,
		ExcludeAuthorTags: true,
	}
}

// OrphanQuote is a quote left without any primary tag
type OrphanQuote struct {
	ID     int      `json:"id"`
	Author string   `json:"author"`
	Tags   []string `json:"tags"`
}

// Result is the outcome of Build
type Result struct {
	Connections domain.Connections
	Orphans     []OrphanQuote
	// Dropped lists allow-listed tags with no quotes
	Dropped []string
}

// Build computes the connection graph over the allow-listed primary tags
func Build(qs []domain.Quote, primary []string, opts Options) Result {
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.ReciprocalRatio < 1 {
		opts.ReciprocalRatio = 1
	}

	allowed := make(map[string]bool, len(primary))
	for _, t := range primary {
		if t = domain.NormalizeTag(t); t != "" {
			allowed[t] = true
		}
	}

	counts := make(map[string]int)
	pairs := make(map[string]map[string]float64)
	var orphans []OrphanQuote

	for _, q := range qs {
		tags := PrimaryTags(q, allowed, opts)
		if len(tags) == 0 {
			orphans = append(orphans, OrphanQuote{ID: q.ID, Author: q.Author, Tags: q.TagNames()})
			continue
		}

		for _, t := range tags {
			counts[t]++
		}
		for i, a := range tags {
			for _, b := range tags[i+1:] {
				w := q.WeightedTags[a] * q.WeightedTags[b]
				addPair(pairs, a, b, w)
				addPair(pairs, b, a, w)
			}
		}
	}

	conns := make(domain.Connections, len(counts))
	for tag, n := range counts {
		conns[tag] = domain.TagConnection{
			Related:    topK(pairs[tag], opts.TopK),
			QuoteCount: n,
		}
	}

	repairReciprocal(conns, pairs, opts)

	var dropped []string
	for t := range allowed {
		if counts[t] == 0 {
			dropped = append(dropped, t)
		}
	}
	sort.Strings(dropped)

	return Result{Connections: conns, Orphans: orphans, Dropped: dropped}
}

// Orphans reports the quotes that carry no allow-listed tag
func Orphans(qs []domain.Quote, primary []string, opts Options) []OrphanQuote {
	return Build(qs, primary, opts).Orphans
}

// PrimaryTags returns q's weighted tags that are allow-listed, in lexical order
func PrimaryTags(q domain.Quote, allowed map[string]bool, opts Options) []string {
	author := strings.ToLower(strings.TrimSpace(q.Author))
	var out []string
	for _, tag := range q.WeightedTags.Keys() {
		if !allowed[tag] {
			continue
		}
		if q.WeightedTags[tag] < opts.MinWeight {
			continue
		}
		if opts.ExcludeAuthorTags && author != "" &&
			(strings.Contains(author, tag) || strings.Contains(tag, author)) {
			continue
		}
		out = append(out, tag)
	}
	return out
}

func addPair(pairs map[string]map[string]float64, a, b string, w float64) {
	m, ok := pairs[a]
	if !ok {
		m = make(map[string]float64)
		pairs[a] = m
	}
	m[b] += w
}

// topK returns the k strongest entries, ties broken lexically
func topK(scores map[string]float64, k int) []domain.RelatedTag {
	related := make([]domain.RelatedTag, 0, len(scores))
	for tag, s := range scores {
		related = append(related, domain.RelatedTag{Tag: tag, Score: round4(s)})
	}
	sortRelated(related)
	if len(related) > k {
		related = related[:k]
	}
	return related
}

func sortRelated(related []domain.RelatedTag) {
	sort.Slice(related, func(i, j int) bool {
		if related[i].Score != related[j].Score {
			return related[i].Score > related[j].Score
		}
		return related[i].Tag < related[j].Tag
	})
}

// repairReciprocal adds A to B's list when A lists B but B does not list A.
// When B's list is full, A replaces B's weakest entry unless that entry
// outscores A→B by more than opts.ReciprocalRatio.
func repairReciprocal(conns domain.Connections, pairs map[string]map[string]float64, opts Options) {
	tags := make([]string, 0, len(conns))
	for t := range conns {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	for _, a := range tags {
		for _, r := range conns[a].Related {
			b := r.Tag
			conn := conns[b]
			if listsTag(conn.Related, a) {
				continue
			}

			entry := domain.RelatedTag{Tag: a, Score: round4(pairs[b][a])}
			if len(conn.Related) < opts.TopK {
				conn.Related = append(conn.Related, entry)
			} else {
				weakest := conn.Related[len(conn.Related)-1]
				if weakest.Score > entry.Score*opts.ReciprocalRatio {
					continue
				}
				conn.Related = append(conn.Related[:len(conn.Related)-1:len(conn.Related)-1], entry)
			}
			sortRelated(conn.Related)
			conns[b] = conn
		}
	}
}

func listsTag(related []domain.RelatedTag, tag string) bool {
	for _, r := range related {
		if r.Tag == tag {
			return true
		}
	}
	return false
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

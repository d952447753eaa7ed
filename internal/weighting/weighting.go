// Package weighting scores each quote's tags by corpus frequency and
// by how well the tag fits the quote text.
package weighting

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pbaille/drift/internal/domain"
	"github.com/pbaille/drift/internal/quotes"
)

const (
	baseRelevance    = 0.5
	exactMatchBonus  = 0.4
	partialWordBonus = 0.2
	positionBonus    = 0.1
	authorPenalty    = 0.5

	// unseenCorpusScore is used for a tag that has no corpus count
	unseenCorpusScore = 0.1
)

// Options configures a weighting pass
type Options struct {
	// ExcludedTags are too generic to carry meaning and are never scored
	ExcludedTags []string
}

// TagCount is a tag with its corpus statistics
type TagCount struct {
	Tag         string  `json:"tag"`
	Count       int     `json:"count"`
	CorpusScore float64 `json:"corpus_score"`
}

// Report summarizes a weighting pass
type Report struct {
	Updated int           `json:"updated"`
	Skipped []quotes.Skip `json:"skipped,omitempty"`
	TopTags []TagCount    `json:"top_tags"`
	// DistinctTags counts tags after exclusions
	DistinctTags int `json:"distinct_tags"`
}

// Weigher computes tag weights over one corpus
type Weigher struct {
	excluded map[string]bool
	counts   map[string]int
	scores   map[string]float64
}

// New builds the corpus statistics for qs. Malformed quotes are left out
// of the corpus, matching what Apply skips.
func New(qs []domain.Quote, opts Options) *Weigher {
	w := &Weigher{
		excluded: make(map[string]bool, len(opts.ExcludedTags)),
		counts:   make(map[string]int),
	}
	for _, t := range opts.ExcludedTags {
		w.excluded[domain.NormalizeTag(t)] = true
	}

	for _, q := range qs {
		if malformed(q) != "" {
			continue
		}
		for _, tag := range q.TagNames() {
			if !w.excluded[tag] {
				w.counts[tag]++
			}
		}
	}
	w.scores = CorpusScores(w.counts)
	return w
}

// CorpusScores log-scales counts into [0,1]: ln(c+1) / ln(max+1)
func CorpusScores(counts map[string]int) map[string]float64 {
	scores := make(map[string]float64, len(counts))
	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}
	if max == 0 {
		return scores
	}
	denom := math.Log(float64(max) + 1)
	for tag, c := range counts {
		scores[tag] = math.Log(float64(c)+1) / denom
	}
	return scores
}

// CorpusScore returns the corpus score of tag, 0.1 when unseen
func (w *Weigher) CorpusScore(tag string) float64 {
	if s, ok := w.scores[tag]; ok {
		return s
	}
	return unseenCorpusScore
}

// Weight returns sqrt(corpus_score) × relevance, rounded to 4 decimals
func (w *Weigher) Weight(q domain.Quote, tag string) float64 {
	return round4(math.Sqrt(w.CorpusScore(tag)) * Relevance(q, tag))
}

// Apply re-scores every well-formed quote. Tags already in a curated
// weighted set keep their membership; only values change. A quote without
// a curated set is seeded from its raw tags minus the excluded ones.
func (w *Weigher) Apply(qs []domain.Quote) ([]domain.Quote, Report) {
	out := make([]domain.Quote, len(qs))
	var report Report

	for i, q := range qs {
		out[i] = q
		if reason := malformed(q); reason != "" {
			report.Skipped = append(report.Skipped, quotes.Skip{Index: i, ID: q.ID, Reason: reason})
			continue
		}

		var weighted domain.WeightedTags
		if len(q.WeightedTags) > 0 {
			weighted = q.WeightedTags.Clone()
			for tag := range weighted {
				if w.excluded[tag] {
					continue
				}
				weighted[tag] = w.Weight(q, tag)
			}
		} else {
			weighted = make(domain.WeightedTags)
			for _, tag := range q.TagNames() {
				if w.excluded[tag] {
					continue
				}
				weighted[tag] = w.Weight(q, tag)
			}
		}

		out[i].WeightedTags = weighted
		report.Updated++
	}

	report.DistinctTags = len(w.counts)
	report.TopTags = w.TopTags(10)
	return out, report
}

// TopTags returns the n most frequent tags, ties broken lexically
func (w *Weigher) TopTags(n int) []TagCount {
	all := make([]TagCount, 0, len(w.counts))
	for tag, c := range w.counts {
		all = append(all, TagCount{Tag: tag, Count: c, CorpusScore: round4(w.scores[tag])})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Tag < all[j].Tag
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Relevance scores how central tag is to q, in [0,1]:
// a 0.5 base, +0.4 when the tag's words appear in order as whole words in
// the text (else +0.2 when any word longer than 3 letters appears), halved
// when the tag names the author, plus up to 0.1 for an early position in
// the raw tag list.
func Relevance(q domain.Quote, tag string) float64 {
	tag = domain.NormalizeTag(tag)
	text := strings.ToLower(q.Text)
	author := strings.ToLower(q.Author)

	score := baseRelevance

	words := strings.Fields(tag)
	if len(words) > 0 {
		if wordsPattern(words).MatchString(text) {
			score += exactMatchBonus
		} else {
			for _, word := range words {
				if utf8.RuneCountInString(word) > 3 && strings.Contains(text, word) {
					score += partialWordBonus
					break
				}
			}
		}
	}

	if tag != "" && author != "" && (strings.Contains(author, tag) || strings.Contains(tag, author)) {
		score *= authorPenalty
	}

	raw := make([]string, len(q.Tags))
	for i, t := range q.Tags {
		raw[i] = domain.NormalizeTag(t)
	}
	for pos, t := range raw {
		if t == tag {
			score += positionBonus * (1 - float64(pos)/float64(len(raw)))
			break
		}
	}

	return math.Min(score, 1.0)
}

// nonWord is any rune outside letters, digits and underscore. RE2's \b
// only knows ASCII, so boundaries are spelled out with it.
const nonWord = `[^\p{L}\p{N}_]`

// wordsPattern matches the words in order, each on word boundaries. Two
// consecutive words may share the separator between them.
func wordsPattern(words []string) *regexp.Regexp {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = regexp.QuoteMeta(w)
	}
	gap := `(?:` + nonWord + `|` + nonWord + `.*` + nonWord + `)`
	return regexp.MustCompile(`(?:^|` + nonWord + `)` + strings.Join(parts, gap) + `(?:` + nonWord + `|$)`)
}

func malformed(q domain.Quote) string {
	switch {
	case q.ID <= 0:
		return "missing or non-positive id"
	case strings.TrimSpace(q.Text) == "":
		return "missing quote text"
	case strings.TrimSpace(q.Author) == "":
		return "missing author"
	}
	return ""
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

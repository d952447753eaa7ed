// Package extractor turns photographed book pages into quote records using a
// vision-language model.
package extractor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pbaille/drift/internal/domain"
)

// ErrNoAPIKey is returned when the provider's API key is not set
var ErrNoAPIKey = errors.New("api key environment variable not set")

// DefaultReviewThreshold flags extractions below this confidence
const DefaultReviewThreshold = 0.7

// Extractor reads one quote out of an image
type Extractor interface {
	Extract(ctx context.Context, img Image) (*domain.Quote, error)
	Name() string
	Model() string
}

// Image is the input of an extraction
type Image struct {
	Path      string
	Data      []byte
	MediaType string
}

// LoadImage reads an image file and sniffs its media type
func LoadImage(path string) (Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("read image: %w", err)
	}
	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		return Image{}, fmt.Errorf("%s: not an image (%s)", filepath.Base(path), mediaType)
	}
	return Image{Path: path, Data: data, MediaType: mediaType}, nil
}

// SHA256 returns the hex digest of the image bytes
func (img Image) SHA256() string {
	sum := sha256.Sum256(img.Data)
	return hex.EncodeToString(sum[:])
}

// New returns the extractor for a provider, reading its key from the
// environment
func New(provider, model string) (Extractor, error) {
	switch provider {
	case "anthropic":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY: %w", ErrNoAPIKey)
		}
		return NewAnthropic(key, model), nil
	case "gemini":
		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY: %w", ErrNoAPIKey)
		}
		return NewGemini(context.Background(), key, model)
	}
	return nil, fmt.Errorf("unknown provider %q", provider)
}

const prompt = `Extract the quote printed on this page. Return JSON only.

Return a JSON object with this structure:
{
  "quote": "the quote text",
  "author": "who said or wrote it",
  "year": 1923,
  "publication": "book or publication title, or null",
  "book_author": "author of the book when it is an anthology, or null",
  "tags": ["life", "time"],
  "confidence": 0.9
}

Rules:
- Copy the quote text exactly, as a single paragraph
- Use null for any field you cannot read
- Suggest 3-8 lowercase topic tags; the author's name may be one of them
- Confidence is 0.0-1.0 based on how legible and unambiguous the page is

Return ONLY the JSON, no other text.`

type extraction struct {
	Quote       string   `json:"quote"`
	Author      string   `json:"author"`
	Year        *int     `json:"year"`
	Publication *string  `json:"publication"`
	BookAuthor  *string  `json:"book_author"`
	Tags        []string `json:"tags"`
	Confidence  *float64 `json:"confidence"`
}

// parseResponse decodes the model's JSON answer into a quote record
func parseResponse(resp string) (*domain.Quote, error) {
	// Clean up response - remove markdown code blocks if present
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	resp = strings.TrimSpace(resp)

	var result extraction
	if err := json.Unmarshal([]byte(resp), &result); err != nil {
		return nil, fmt.Errorf("parse json: %w (response: %s)", err, resp)
	}

	q := &domain.Quote{
		Text:        result.Quote,
		Author:      strings.TrimSpace(result.Author),
		Year:        result.Year,
		Publication: blankToNil(result.Publication),
		BookAuthor:  blankToNil(result.BookAuthor),
		Tags:        result.Tags,
		Confidence:  -1,
	}
	if result.Confidence != nil {
		q.Confidence = *result.Confidence
	}
	return q, nil
}

// Validate normalizes an extracted record and flags it for review when a
// required field is missing, the confidence is out of range or below
// threshold. It never drops the record.
func Validate(q *domain.Quote, threshold float64) {
	var notes []string

	q.Text = SentenceCase(q.Text)
	q.Tags = normalizeTags(q.Tags)

	if q.Text == "" {
		notes = append(notes, "missing quote text")
	}
	if q.Author == "" {
		notes = append(notes, "missing author")
	}
	switch {
	case q.Confidence < 0 || q.Confidence > 1:
		notes = append(notes, fmt.Sprintf("confidence out of range: %g", q.Confidence))
		q.Confidence = 0
	case q.Confidence < threshold:
		notes = append(notes, fmt.Sprintf("low confidence: %.2f", q.Confidence))
	}
	if len(q.Tags) == 0 {
		notes = append(notes, "no tags")
	}

	if len(notes) > 0 {
		q.NeedsReview = true
		q.Notes = joinNotes(q.Notes, notes)
	}
}

// SentenceCase collapses whitespace into a single paragraph and upper-cases
// the first letter
func SentenceCase(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = domain.NormalizeTag(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func joinNotes(existing string, notes []string) string {
	all := strings.Join(notes, "; ")
	if existing == "" {
		return all
	}
	return existing + "; " + all
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}

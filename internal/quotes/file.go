package quotes

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pbaille/drift/internal/domain"
	"go.uber.org/zap"
)

// Load reads a quotes.json array. Elements that cannot be decoded, carry a
// non-positive id or repeat an earlier id are skipped and reported; they are
// written back untouched by Save.
func Load(path string, logger *zap.Logger) (*Collection, []Skip, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read quotes: %w", err)
	}

	c, skips, err := Decode(data)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}

	for _, s := range skips {
		logger.Warn("skipping quote record",
			zap.String("file", path),
			zap.Int("index", s.Index),
			zap.Int("id", s.ID),
			zap.String("reason", s.Reason))
	}
	return c, skips, nil
}

// Decode parses a JSON array of quote records, tolerating bad elements
func Decode(data []byte) (*Collection, []Skip, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, err
	}

	c := NewCollection(nil)
	var skips []Skip
	for i, elem := range raw {
		var q domain.Quote
		if err := json.Unmarshal(elem, &q); err != nil {
			skips = append(skips, Skip{Index: i, ID: preservedID(elem), Reason: err.Error()})
			c.preserve(elem)
			continue
		}
		if q.ID <= 0 {
			skips = append(skips, Skip{Index: i, ID: q.ID, Reason: "missing or non-positive id"})
			c.preserve(elem)
			continue
		}
		if _, dup := c.byID[q.ID]; dup {
			skips = append(skips, Skip{Index: i, ID: q.ID, Reason: "duplicate id"})
			c.preserve(elem)
			continue
		}
		c.byID[q.ID] = len(c.quotes)
		c.quotes = append(c.quotes, q)
	}
	return c, skips, nil
}

func (c *Collection) preserve(elem json.RawMessage) {
	c.preserved = append(c.preserved, elem)
	if id := preservedID(elem); id > c.preservedMax {
		c.preservedMax = id
	}
}

// preservedID reads just the id of a record that failed to decode, or 0
func preservedID(elem json.RawMessage) int {
	var head struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(elem, &head); err != nil {
		return 0
	}
	return head.ID
}

// Encode renders the collection as an indented JSON array
func (c *Collection) Encode() ([]byte, error) {
	elems := make([]json.RawMessage, 0, len(c.quotes)+len(c.preserved))
	for _, q := range c.quotes {
		var qb bytes.Buffer
		qenc := json.NewEncoder(&qb)
		qenc.SetEscapeHTML(false)
		if err := qenc.Encode(q); err != nil {
			return nil, fmt.Errorf("encode quote %d: %w", q.ID, err)
		}
		elems = append(elems, bytes.TrimSpace(qb.Bytes()))
	}
	elems = append(elems, c.preserved...)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(elems); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the collection to path atomically
func (c *Collection) Save(path string) error {
	data, err := c.Encode()
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to a temp file in the target dir and renames it
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

var csvHeader = []string{
	"id", "quote", "author", "year", "publication", "book_author",
	"cover_url", "tags", "confidence", "needs_review",
}

// WriteCSV exports the collection as CSV, tags joined by "; "
func (c *Collection) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, q := range c.quotes {
		year := ""
		if q.Year != nil {
			year = strconv.Itoa(*q.Year)
		}
		row := []string{
			strconv.Itoa(q.ID),
			q.Text,
			q.Author,
			year,
			deref(q.Publication),
			deref(q.BookAuthor),
			deref(q.CoverURL),
			strings.Join(q.Tags, "; "),
			strconv.FormatFloat(q.Confidence, 'f', -1, 64),
			strconv.FormatBool(q.NeedsReview),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", q.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// SaveCSV writes the CSV export to path atomically
func (c *Collection) SaveCSV(path string) error {
	var buf bytes.Buffer
	if err := c.WriteCSV(&buf); err != nil {
		return err
	}
	return WriteFileAtomic(path, buf.Bytes())
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

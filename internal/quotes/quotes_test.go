package quotes

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pbaille/drift/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sampleQuotes() []domain.Quote {
	year := 1942
	return []domain.Quote{
		{ID: 1, Text: "Life is short.", Author: "Seneca", Tags: []string{"life"}, WeightedTags: domain.WeightedTags{"life": 0.8, "death": 0.6}},
		{ID: 2, Text: "Art & design matter.", Author: "Dieter Rams", Year: &year, WeightedTags: domain.WeightedTags{"design": 0.7}, NeedsReview: true, Confidence: 0.4},
		{ID: 5, Text: "Cities are people.", Author: "Jane Jacobs", WeightedTags: domain.WeightedTags{"city": 0.9}, NeedsReview: true, Confidence: 0.6},
	}
}

func TestDecodeSkipsBadRecords(t *testing.T) {
	raw := `[
		{"id": 1, "quote": "a", "author": "x"},
		{"id": "not-a-number"},
		{"quote": "no id", "author": "y"},
		{"id": 1, "quote": "dup", "author": "z"},
		{"id": 2, "quote": "b", "author": "w"}
	]`

	c, skips, err := Decode([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, 2, c.Len())
	require.Len(t, skips, 3)
	assert.Equal(t, 1, skips[0].Index)
	assert.Equal(t, "missing or non-positive id", skips[1].Reason)
	assert.Equal(t, "duplicate id", skips[2].Reason)
}

func TestDecodeRejectsNonArray(t *testing.T) {
	_, _, err := Decode([]byte(`{"id": 1}`))
	assert.Error(t, err)
}

func TestSaveRoundTripPreservesUnreadable(t *testing.T) {
	raw := `[{"id": 1, "quote": "a", "author": "x"}, {"id": "bad"}]`
	c, _, err := Decode([]byte(raw))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "quotes.json")
	require.NoError(t, c.Save(path))

	again, skips, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Len())
	assert.Len(t, skips, 1, "unreadable element survives a save")
}

func TestNextIDCountsPreservedRecords(t *testing.T) {
	raw := `[
		{"id": 49, "quote": "a", "author": "x"},
		{"id": 50, "quote": "b", "author": "y", "year": "1990"}
	]`
	c, skips, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Len(t, skips, 1)
	assert.Equal(t, 50, skips[0].ID)

	added, err := c.Add(domain.Quote{Text: "c", Author: "z"})
	require.NoError(t, err)
	assert.Equal(t, 51, added.ID, "id 50 is still on disk")

	path := filepath.Join(t.TempDir(), "quotes.json")
	require.NoError(t, c.Save(path))
	again, skips, err := Load(path, nil)
	require.NoError(t, err)
	assert.Len(t, skips, 1, "no duplicate id after the round trip")
	assert.Equal(t, 2, again.Len())
	assert.Equal(t, 52, again.NextID())
}

func TestCloneIsIndependent(t *testing.T) {
	c := NewCollection(sampleQuotes())
	next := c.Clone()

	_, err := next.Add(domain.Quote{Text: "New one.", Author: "Anon"})
	require.NoError(t, err)
	require.NoError(t, next.Delete(1))
	q, _ := next.Get(2)
	q.Author = "Rams"
	require.NoError(t, next.Put(q))

	assert.Equal(t, 3, c.Len())
	_, ok := c.Get(1)
	assert.True(t, ok)
	got, _ := c.Get(2)
	assert.Equal(t, "Dieter Rams", got.Author)
	assert.Equal(t, 6, c.NextID())
}

func TestEncodeKeepsAmpersands(t *testing.T) {
	c := NewCollection(sampleQuotes())
	data, err := c.Encode()
	require.NoError(t, err)

	assert.Contains(t, string(data), "Art & design matter.")
	assert.Contains(t, string(data), `"year": null`)
}

func TestCollectionEdits(t *testing.T) {
	c := NewCollection(sampleQuotes())

	assert.Equal(t, 6, c.NextID())

	added, err := c.Add(domain.Quote{Text: "New one.", Author: "Anon"})
	require.NoError(t, err)
	assert.Equal(t, 6, added.ID)

	_, err = c.Add(domain.Quote{Text: "no author"})
	assert.ErrorIs(t, err, ErrInvalid)

	q, ok := c.Get(2)
	require.True(t, ok)
	q.Author = "Rams"
	require.NoError(t, c.Put(q))
	got, _ := c.Get(2)
	assert.Equal(t, "Rams", got.Author)

	assert.ErrorIs(t, c.Put(domain.Quote{ID: 99, Text: "t", Author: "a"}), ErrNotFound)

	require.NoError(t, c.Delete(2))
	assert.ErrorIs(t, c.Delete(2), ErrNotFound)
	assert.Equal(t, 1, c.Index(5), "index shifts after delete")
	assert.Equal(t, -1, c.Index(2))
}

func TestSearch(t *testing.T) {
	c := NewCollection(sampleQuotes())

	assert.Len(t, c.Search("LIFE"), 1)
	assert.Len(t, c.Search("jacobs"), 1)
	assert.Len(t, c.Search("design"), 1)
	assert.Empty(t, c.Search("   "))
}

func TestReviewQueue(t *testing.T) {
	c := NewCollection(sampleQuotes())
	queue := c.ReviewQueue()
	require.Len(t, queue, 2)
	assert.Equal(t, 2, queue[0].ID)
}

func TestWriteCSV(t *testing.T) {
	c := NewCollection(sampleQuotes())
	var buf bytes.Buffer
	require.NoError(t, c.WriteCSV(&buf))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "1942", rows[2][3])
	assert.Equal(t, "true", rows[2][9])
}

func TestWatcherReportsRewrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quotes.json")
	require.NoError(t, os.WriteFile(path, []byte("[]"), 0644))

	changed := make(chan []string, 4)
	w, err := NewWatcher(WatcherConfig{
		Files:         []string{path},
		DebounceDelay: 20 * time.Millisecond,
		OnChange:      func(paths []string) { changed <- paths },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	c := NewCollection(sampleQuotes())
	require.NoError(t, c.Save(path))

	select {
	case paths := <-changed:
		abs, _ := filepath.Abs(path)
		assert.Contains(t, paths, abs)
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	<-w.Done()
}

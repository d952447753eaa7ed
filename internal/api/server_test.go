package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pbaille/drift/internal/domain"
	"github.com/pbaille/drift/internal/fetcher"
	"github.com/pbaille/drift/internal/quotes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jpeg = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")

type stubFetcher struct {
	cover *fetcher.Cover
	err   error
}

func (f stubFetcher) FetchCover(ctx context.Context, rawURL string) (*fetcher.Cover, error) {
	return f.cover, f.err
}

type fixture struct {
	dir    string
	opts   Options
	server *Server
	http   *httptest.Server
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	dir := t.TempDir()

	coll := quotes.NewCollection([]domain.Quote{
		{ID: 1, Text: "Time flies.", Author: "Virgil", Tags: []string{"time"}, WeightedTags: domain.WeightedTags{"time": 0.9}, Confidence: 0.9},
		{ID: 2, Text: "Know thyself.", Author: "Socrates", WeightedTags: domain.WeightedTags{"self": 0.8}, Confidence: 0.5, NeedsReview: true},
	})
	require.NoError(t, coll.Save(filepath.Join(dir, "quotes.json")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tag_connections.json"),
		[]byte(`{"time":{"related":[{"tag":"self","score":0.2}],"quote_count":1}}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>viewer</html>"), 0644))

	opts := Options{
		SiteDir:         dir,
		QuotesPath:      filepath.Join(dir, "quotes.json"),
		CSVPath:         filepath.Join(dir, "quotes.csv"),
		ConnectionsPath: filepath.Join(dir, "tag_connections.json"),
		CoversDir:       filepath.Join(dir, "covers"),
		Fetcher:         stubFetcher{cover: &fetcher.Cover{SourceURL: "https://books.example/c.jpg", Data: jpeg, MediaType: "image/jpeg"}},
	}
	if mutate != nil {
		mutate(&opts)
	}

	s, err := New(opts)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &fixture{dir: dir, opts: opts, server: s, http: srv}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.http.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// onDisk reloads the persisted collection
func (f *fixture) onDisk(t *testing.T) *quotes.Collection {
	t.Helper()
	coll, skips, err := quotes.Load(f.opts.QuotesPath, nil)
	require.NoError(t, err)
	require.Empty(t, skips)
	return coll
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	resp := f.do(t, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 2, body["quotes"])
}

func TestListAndGetQuotes(t *testing.T) {
	f := newFixture(t, nil)

	type list struct {
		Quotes []domain.Quote `json:"quotes"`
		Count  int            `json:"count"`
	}

	all := decode[list](t, f.do(t, "GET", "/api/quotes", nil))
	assert.Equal(t, 2, all.Count)

	found := decode[list](t, f.do(t, "GET", "/api/quotes?q=virgil", nil))
	require.Equal(t, 1, found.Count)
	assert.Equal(t, 1, found.Quotes[0].ID)

	review := decode[list](t, f.do(t, "GET", "/api/quotes?review=1", nil))
	require.Equal(t, 1, review.Count)
	assert.Equal(t, 2, review.Quotes[0].ID)

	byTag := decode[list](t, f.do(t, "GET", "/api/quotes?tag=self", nil))
	require.Equal(t, 1, byTag.Count)
	assert.Equal(t, 2, byTag.Quotes[0].ID)

	none := decode[list](t, f.do(t, "GET", "/api/quotes?tag=nothing", nil))
	assert.NotNil(t, none.Quotes)

	q := decode[domain.Quote](t, f.do(t, "GET", "/api/quotes/2", nil))
	assert.Equal(t, "Socrates", q.Author)

	assert.Equal(t, http.StatusNotFound, f.do(t, "GET", "/api/quotes/99", nil).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, "GET", "/api/quotes/abc", nil).StatusCode)
}

func TestAddQuotePersists(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, "POST", "/api/quotes", domain.Quote{ID: 50, Text: "Carpe diem.", Author: "Horace"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	added := decode[domain.Quote](t, resp)
	assert.Equal(t, 3, added.ID, "ids are assigned by the server")

	got, ok := f.onDisk(t).Get(3)
	require.True(t, ok)
	assert.Equal(t, "Horace", got.Author)

	csv, err := os.ReadFile(f.opts.CSVPath)
	require.NoError(t, err)
	assert.Contains(t, string(csv), "Carpe diem.")
}

func TestAddQuoteValidation(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, "POST", "/api/quotes", domain.Quote{Text: "No author"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, resp)["error"], "author is required")

	assert.Equal(t, 2, f.onDisk(t).Len())
}

// blockSaves points quotes.json below a regular file so writes fail
func (f *fixture) blockSaves(t *testing.T, blocked bool) {
	t.Helper()
	f.server.mu.Lock()
	defer f.server.mu.Unlock()
	if blocked {
		f.server.opts.QuotesPath = filepath.Join(f.dir, "index.html", "quotes.json")
	} else {
		f.server.opts.QuotesPath = f.opts.QuotesPath
	}
}

func TestFailedSaveLeavesCollectionUntouched(t *testing.T) {
	f := newFixture(t, nil)

	f.blockSaves(t, true)
	resp := f.do(t, "POST", "/api/quotes", domain.Quote{Text: "Carpe diem.", Author: "Horace"})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	resp = f.do(t, "PUT", "/api/quotes/1", domain.Quote{Text: "Time flies.", Author: "Ovid"})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, http.StatusInternalServerError, f.do(t, "DELETE", "/api/quotes/1", nil).StatusCode)

	body := decode[map[string]any](t, f.do(t, "GET", "/health", nil))
	assert.EqualValues(t, 2, body["quotes"])
	q := decode[domain.Quote](t, f.do(t, "GET", "/api/quotes/1", nil))
	assert.Equal(t, "Virgil", q.Author)

	// a later edit must not carry the failed ones to disk
	f.blockSaves(t, false)
	require.Equal(t, http.StatusNoContent, f.do(t, "DELETE", "/api/quotes/2", nil).StatusCode)

	disk := f.onDisk(t)
	assert.Equal(t, 1, disk.Len())
	got, ok := disk.Get(1)
	require.True(t, ok)
	assert.Equal(t, "Virgil", got.Author)
	assert.Equal(t, 2, disk.NextID())
}

func TestSaveQuoteKeepsID(t *testing.T) {
	f := newFixture(t, nil)

	edited := domain.Quote{Text: "Time flies irretrievably.", Author: "Virgil", WeightedTags: domain.WeightedTags{"time": 1}}
	resp := f.do(t, "PUT", "/api/quotes/1", edited)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, ok := f.onDisk(t).Get(1)
	require.True(t, ok)
	assert.Equal(t, "Time flies irretrievably.", got.Text)
	assert.Equal(t, 0, f.onDisk(t).Index(1), "position is stable")

	edited.ID = 2
	assert.Equal(t, http.StatusBadRequest, f.do(t, "PUT", "/api/quotes/1", edited).StatusCode)

	edited.ID = 0
	assert.Equal(t, http.StatusNotFound, f.do(t, "PUT", "/api/quotes/9", edited).StatusCode)
}

func TestDeleteQuote(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusNoContent, f.do(t, "DELETE", "/api/quotes/1", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, "DELETE", "/api/quotes/1", nil).StatusCode)

	_, ok := f.onDisk(t).Get(1)
	assert.False(t, ok)
}

func TestReadOnlyRejectsMutations(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.ReadOnly = true })

	assert.Equal(t, http.StatusForbidden, f.do(t, "POST", "/api/quotes", domain.Quote{Text: "x", Author: "y"}).StatusCode)
	assert.Equal(t, http.StatusForbidden, f.do(t, "PUT", "/api/quotes/1", domain.Quote{Text: "x", Author: "y"}).StatusCode)
	assert.Equal(t, http.StatusForbidden, f.do(t, "DELETE", "/api/quotes/1", nil).StatusCode)
	assert.Equal(t, http.StatusForbidden, f.do(t, "POST", "/api/quotes/1/cover/keep", nil).StatusCode)

	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/api/quotes/1", nil).StatusCode)
	assert.Equal(t, 2, f.onDisk(t).Len())
}

func TestConnectionsAndStatic(t *testing.T) {
	f := newFixture(t, nil)

	conns := decode[domain.Connections](t, f.do(t, "GET", "/api/connections", nil))
	assert.Equal(t, []string{"self"}, conns.RelatedTags("time"))

	resp := f.do(t, "GET", "/index.html", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "viewer")
}

func TestUploadAndDeleteCover(t *testing.T) {
	f := newFixture(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("cover", "cover.jpg")
	require.NoError(t, err)
	part.Write(jpeg)
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.http.URL+"/api/quotes/1/cover", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	q := decode[domain.Quote](t, resp)
	require.NotNil(t, q.CoverURL)
	assert.Equal(t, "covers/1.jpg", *q.CoverURL)
	assert.FileExists(t, filepath.Join(f.dir, "covers", "1.jpg"))

	resp = f.do(t, "DELETE", "/api/quotes/1/cover", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, _ := f.onDisk(t).Get(1)
	assert.Nil(t, got.CoverURL)
	assert.NoFileExists(t, filepath.Join(f.dir, "covers", "1.jpg"))
}

func TestUploadRejectsNonImage(t *testing.T) {
	f := newFixture(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("cover", "notes.txt")
	part.Write([]byte("just text"))
	mw.Close()

	resp, err := http.Post(f.http.URL+"/api/quotes/1/cover", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFetchThenKeepCover(t *testing.T) {
	f := newFixture(t, nil)

	resp := f.do(t, "POST", "/api/quotes/2/cover/fetch", FetchCoverRequest{URL: "https://books.example/know"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pending := decode[FetchCoverResponse](t, resp)
	assert.Equal(t, "covers/pending/2.jpg", pending.Pending)
	assert.Equal(t, "https://books.example/c.jpg", pending.SourceURL)

	got, _ := f.onDisk(t).Get(2)
	assert.Nil(t, got.CoverURL, "fetch alone does not change the quote")

	resp = f.do(t, "POST", "/api/quotes/2/cover/keep", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, _ = f.onDisk(t).Get(2)
	require.NotNil(t, got.CoverURL)
	assert.Equal(t, "covers/2.jpg", *got.CoverURL)

	assert.Equal(t, http.StatusNotFound, f.do(t, "POST", "/api/quotes/2/cover/keep", nil).StatusCode)
}

func TestFetchCoverFailureIsReported(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Fetcher = stubFetcher{err: errors.New("no cover image found on page")} })

	resp := f.do(t, "POST", "/api/quotes/1/cover/fetch", FetchCoverRequest{URL: "https://books.example/x"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, resp)["error"], "no cover image")

	assert.Equal(t, http.StatusBadRequest, f.do(t, "POST", "/api/quotes/1/cover/fetch", FetchCoverRequest{}).StatusCode)
}

func TestMetricsCountEdits(t *testing.T) {
	f := newFixture(t, nil)
	f.do(t, "DELETE", "/api/quotes/2", nil)

	resp := f.do(t, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	assert.Contains(t, text, `drift_quote_edits_total{op="delete"} 1`)
	assert.Contains(t, text, "drift_quotes 1")
	assert.True(t, strings.Contains(text, `route="DELETE /api/quotes/{id}"`), text)
}

func TestReloadPicksUpDiskChanges(t *testing.T) {
	f := newFixture(t, nil)

	coll := f.onDisk(t)
	_, err := coll.Add(domain.Quote{Text: "Added offline.", Author: "Someone"})
	require.NoError(t, err)
	require.NoError(t, coll.Save(f.opts.QuotesPath))

	require.NoError(t, f.server.Reload())
	assert.Equal(t, http.StatusOK, f.do(t, "GET", "/api/quotes/3", nil).StatusCode)
}

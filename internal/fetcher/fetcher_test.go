package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jpeg = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")

func coverServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/book", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head>
<meta name="twitter:image" content="/wrong.jpg">
<meta property="og:image" content="/img/cover.jpg">
</head><body><meta property="og:image" content="/body.jpg"></body></html>`))
	})
	mux.HandleFunc("/bare", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>no image</title></head></html>`))
	})
	mux.HandleFunc("/img/cover.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(jpeg)
	})
	mux.HandleFunc("/raw", func(w http.ResponseWriter, r *http.Request) {
		// no content type: sniffed
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(jpeg)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchCoverFromPage(t *testing.T) {
	srv := coverServer(t)

	c, err := New().FetchCover(context.Background(), srv.URL+"/book")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/img/cover.jpg", c.SourceURL)
	assert.Equal(t, "image/jpeg", c.MediaType)
	assert.Equal(t, ".jpg", c.Ext())
	assert.Equal(t, jpeg, c.Data)
}

func TestFetchCoverDirectImage(t *testing.T) {
	srv := coverServer(t)

	c, err := New().FetchCover(context.Background(), srv.URL+"/raw")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", c.MediaType)
}

func TestFetchCoverErrors(t *testing.T) {
	srv := coverServer(t)
	f := New()

	_, err := f.FetchCover(context.Background(), srv.URL+"/bare")
	assert.ErrorContains(t, err, "no cover image")

	_, err = f.FetchCover(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "HTTP 404")

	_, err = f.FetchCover(context.Background(), "ftp://example.com/x")
	assert.ErrorContains(t, err, "unsupported scheme")
}

func TestExtractImageURLFallbacks(t *testing.T) {
	assert.Equal(t, "t.jpg", extractImageURL(`<head><meta name="twitter:image" content="t.jpg"></head>`))
	assert.Equal(t, "l.jpg", extractImageURL(`<head><link rel="image_src" href="l.jpg"></head>`))
	assert.Equal(t, "", extractImageURL(`<p>nothing</p>`))
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com"))
	assert.True(t, IsURL(" www.example.com"))
	assert.False(t, IsURL("covers/1.jpg"))
}

func TestSaveAndPromoteCover(t *testing.T) {
	dir := t.TempDir()
	c := &Cover{Data: jpeg, MediaType: "image/jpeg"}

	name, err := SaveCover(dir, 1, &Cover{Data: []byte("png"), MediaType: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "1.png", name)
	_, err = SaveCover(dir, 10, c)
	require.NoError(t, err)

	_, err = SaveCover(filepath.Join(dir, PendingDir), 1, c)
	require.NoError(t, err)

	name, err = PromotePending(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, "1.jpg", name)

	assert.NoFileExists(t, filepath.Join(dir, "1.png"), "previous cover replaced")
	assert.FileExists(t, filepath.Join(dir, "1.jpg"))
	assert.FileExists(t, filepath.Join(dir, "10.jpg"), "other quotes untouched")
	assert.NoFileExists(t, filepath.Join(dir, PendingDir, "1.jpg"))

	_, err = PromotePending(dir, 1)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, RemoveCover(dir, 1))
	assert.NoFileExists(t, filepath.Join(dir, "1.jpg"))
}

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pbaille/drift/internal/domain"
	"github.com/pbaille/drift/internal/fetcher"
	"go.uber.org/zap"
)

// FetchCoverRequest is the request body for looking up a cover online
type FetchCoverRequest struct {
	URL string `json:"url"`
}

// FetchCoverResponse points at the pending candidate until it is kept
type FetchCoverResponse struct {
	Pending   string `json:"pending"`
	SourceURL string `json:"source_url"`
}

func (s *Server) uploadCover(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, fetcher.MaxImageSize+1<<20)
	file, _, err := r.FormFile("cover")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'cover' is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, fetcher.MaxImageSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(data) > fetcher.MaxImageSize {
		writeError(w, http.StatusRequestEntityTooLarge, "cover image too large")
		return
	}
	mediaType := http.DetectContentType(data)
	if !strings.HasPrefix(mediaType, "image/") {
		writeError(w, http.StatusBadRequest, "cover is not an image: "+mediaType)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotes.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "quote not found")
		return
	}
	name, err := fetcher.SaveCover(s.opts.CoversDir, id, &fetcher.Cover{Data: data, MediaType: mediaType})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.setCover(w, q, s.coverURL(name), "upload_cover")
}

func (s *Server) deleteCover(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotes.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "quote not found")
		return
	}
	if err := fetcher.RemoveCover(s.opts.CoversDir, id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.setCover(w, q, "", "delete_cover")
}

// fetchCover resolves a cover online and stores it as a pending candidate;
// the quote is unchanged until the candidate is kept
func (s *Server) fetchCover(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req FetchCoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	s.mu.RLock()
	_, ok := s.quotes.Get(id)
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "quote not found")
		return
	}

	cover, err := s.fetcher.FetchCover(r.Context(), req.URL)
	if err != nil {
		s.logger.Warn("cover fetch failed", zap.Int("id", id), zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	name, err := fetcher.SaveCover(filepath.Join(s.opts.CoversDir, fetcher.PendingDir), id, cover)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, FetchCoverResponse{
		Pending:   s.coverURL(filepath.Join(fetcher.PendingDir, name)),
		SourceURL: cover.SourceURL,
	})
}

func (s *Server) keepCover(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotes.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "quote not found")
		return
	}
	name, err := fetcher.PromotePending(s.opts.CoversDir, id)
	if errors.Is(err, os.ErrNotExist) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.setCover(w, q, s.coverURL(name), "keep_cover")
}

// setCover stores the cover reference and persists. Callers hold s.mu.
func (s *Server) setCover(w http.ResponseWriter, q domain.Quote, url, op string) {
	if url == "" {
		q.CoverURL = nil
	} else {
		q.CoverURL = &url
	}
	next := s.quotes.Clone()
	if err := next.Put(q); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	if err := s.persist(next); err != nil {
		s.logger.Error("persist failed", zap.String("op", op), zap.Int("id", q.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.metrics.edits.WithLabelValues(op).Inc()
	s.logger.Info("cover updated", zap.Int("id", q.ID), zap.String("op", op))
	writeJSON(w, http.StatusOK, q)
}

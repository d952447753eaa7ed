package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pbaille/drift/internal/domain"
	"go.uber.org/zap"
)

func (s *Server) listQuotes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	s.mu.RLock()
	var list []domain.Quote
	switch {
	case query.Get("q") != "":
		list = s.quotes.Search(query.Get("q"))
	case query.Get("review") != "":
		list = s.quotes.ReviewQueue()
	default:
		list = s.quotes.All()
	}
	s.mu.RUnlock()

	if tag := domain.NormalizeTag(query.Get("tag")); tag != "" {
		filtered := list[:0:0]
		for _, q := range list {
			if _, ok := q.WeightedTags[tag]; ok {
				filtered = append(filtered, q)
			}
		}
		list = filtered
	}
	if list == nil {
		list = []domain.Quote{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"quotes": list,
		"count":  len(list),
	})
}

func (s *Server) getQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.RLock()
	q, ok := s.quotes.Get(id)
	s.mu.RUnlock()

	if !ok {
		writeError(w, http.StatusNotFound, "quote not found")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) addQuote(w http.ResponseWriter, r *http.Request) {
	var q domain.Quote
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.quotes.Clone()
	added, err := next.Add(q)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	if err := s.persist(next); err != nil {
		s.logger.Error("persist failed", zap.String("op", "add"), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.metrics.edits.WithLabelValues("add").Inc()
	s.logger.Info("quote added", zap.Int("id", added.ID), zap.String("author", added.Author))
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) saveQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var q domain.Quote
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if q.ID != 0 && q.ID != id {
		writeError(w, http.StatusBadRequest, "quote id cannot change: body has "+strconv.Itoa(q.ID))
		return
	}
	q.ID = id

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.quotes.Clone()
	if err := next.Put(q); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	if err := s.persist(next); err != nil {
		s.logger.Error("persist failed", zap.String("op", "save"), zap.Int("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.metrics.edits.WithLabelValues("save").Inc()
	s.logger.Info("quote saved", zap.Int("id", id))
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) deleteQuote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.quotes.Clone()
	if err := next.Delete(id); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	if err := s.persist(next); err != nil {
		s.logger.Error("persist failed", zap.String("op", "delete"), zap.Int("id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.metrics.edits.WithLabelValues("delete").Inc()
	s.logger.Info("quote deleted", zap.Int("id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listConnections(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	conns := s.conns
	s.mu.RUnlock()

	if conns == nil {
		conns = domain.Connections{}
	}
	writeJSON(w, http.StatusOK, conns)
}

// ABOUTME: HTTP API handlers for reading, writing, flushing and discarding drafts
// ABOUTME: Routes are registered with or without JWT auth depending on config

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/opsboard/draftkeep/internal/auth"
	"github.com/opsboard/draftkeep/internal/draft"
	"github.com/opsboard/draftkeep/internal/store"
)

// maxDraftBytes caps a PUT body.
const maxDraftBytes = 1 << 20

// DraftResponse is the JSON response for GET and PUT /api/drafts/{key}.
type DraftResponse struct {
	Key     string          `json:"key"`
	Value   json.RawMessage `json:"value,omitempty"`
	Pending bool            `json:"pending"`
}

// ListDraftsResponse is the JSON response for GET /api/drafts.
type ListDraftsResponse struct {
	Drafts []store.Record `json:"drafts"`
}

// StatsResponse is the JSON response for GET /api/stats.
type StatsResponse struct {
	draft.PoolStats
	Uptime string `json:"uptime"`
}

// Handler returns the server's routes wrapped in request ID middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	s.registerAPIRoutes(mux)
	return requestID(s.logger)(mux)
}

// registerAPIRoutes registers API routes on the mux with or without auth middleware.
func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	protect := func(h http.HandlerFunc) http.Handler { return h }
	protectAdmin := protect

	if s.verifier != nil {
		authMiddleware := auth.HTTPAuthMiddleware(s.verifier, s.logger)
		adminMiddleware := auth.RequireAdminHTTP(s.logger)
		protect = func(h http.HandlerFunc) http.Handler { return authMiddleware(h) }
		protectAdmin = func(h http.HandlerFunc) http.Handler { return authMiddleware(adminMiddleware(h)) }
		s.logger.Info("HTTP auth middleware enabled")
	} else {
		s.logger.Warn("HTTP auth disabled - no jwt_secret configured")
	}

	mux.Handle("GET /api/drafts", protect(s.handleListDrafts))
	mux.Handle("GET /api/drafts/{key}", protect(s.handleGetDraft))
	mux.Handle("PUT /api/drafts/{key}", protect(s.handlePutDraft))
	mux.Handle("POST /api/drafts/{key}/flush", protect(s.handleFlushDraft))
	mux.Handle("DELETE /api/drafts/{key}", protectAdmin(s.handleDeleteDraft))
	mux.Handle("GET /api/stats", protect(s.handleStats))
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleListDrafts handles GET /api/drafts?prefix=P.
func (s *Server) handleListDrafts(w http.ResponseWriter, r *http.Request) {
	lister, ok := s.backend.(store.Lister)
	if !ok {
		s.sendJSONError(w, http.StatusNotImplemented, "backend does not support listing")
		return
	}

	records, err := lister.List(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		s.logger.Error("failed to list drafts", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if records == nil {
		records = []store.Record{}
	}

	s.sendJSON(w, http.StatusOK, ListDraftsResponse{Drafts: records})
}

// handleGetDraft handles GET /api/drafts/{key}. A key with no draft returns a
// null value rather than 404, matching what a fresh form would start from.
func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	value, pending, err := s.pool.Get(key)
	if err != nil {
		s.sendPoolError(w, key, err)
		return
	}

	s.sendJSON(w, http.StatusOK, DraftResponse{Key: key, Value: value, Pending: pending})
}

// handlePutDraft handles PUT /api/drafts/{key}. The body replaces the draft
// and is written after the debounce window.
func (s *Server) handlePutDraft(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDraftBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendJSONError(w, http.StatusRequestEntityTooLarge, "draft too large")
			return
		}
		s.sendJSONError(w, http.StatusBadRequest, "reading body failed")
		return
	}
	if !json.Valid(body) {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.pool.Put(key, body); err != nil {
		s.sendPoolError(w, key, err)
		return
	}

	s.sendJSON(w, http.StatusAccepted, DraftResponse{Key: key, Pending: true})
}

// handleFlushDraft handles POST /api/drafts/{key}/flush.
func (s *Server) handleFlushDraft(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	if err := s.pool.Flush(r.Context(), key); err != nil {
		var perr *draft.PersistError
		if errors.As(err, &perr) {
			s.sendJSONError(w, http.StatusBadGateway, "flush failed: "+perr.Err.Error())
			return
		}
		s.sendPoolError(w, key, err)
		return
	}

	s.sendJSON(w, http.StatusOK, DraftResponse{Key: key, Pending: false})
}

// handleDeleteDraft handles DELETE /api/drafts/{key}.
func (s *Server) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	err := s.pool.Discard(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "draft not found")
		return
	}
	if err != nil {
		s.sendPoolError(w, key, err)
		return
	}

	by := ""
	if a := auth.FromContext(r.Context()); a != nil {
		by = a.Subject
	}
	s.logger.Info("draft deleted", "key", key, "by", by)
	w.WriteHeader(http.StatusNoContent)
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, StatsResponse{
		PoolStats: s.pool.Stats(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
	})
}

// sendPoolError maps pool errors to HTTP statuses.
func (s *Server) sendPoolError(w http.ResponseWriter, key string, err error) {
	switch {
	case errors.Is(err, draft.ErrEmptyKey):
		s.sendJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, draft.ErrClosed):
		s.sendJSONError(w, http.StatusServiceUnavailable, "server is shutting down")
	default:
		s.logger.Error("draft operation failed", "key", key, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// sendJSON writes v as a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}

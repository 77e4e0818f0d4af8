// Package api exposes the record repository over HTTP. It is a thin
// layer on top of the core; nothing in the core depends on it.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agriffard/SoftTrack/internal/domain"
	"github.com/agriffard/SoftTrack/internal/repository"
)

// Handler routes record operations.
type Handler struct {
	repo repository.RecordRepository
	mux  *http.ServeMux
	log  zerolog.Logger
}

// NewHandler builds the HTTP surface for a repository.
func NewHandler(repo repository.RecordRepository, log zerolog.Logger) *Handler {
	h := &Handler{repo: repo, mux: http.NewServeMux(), log: log}

	h.mux.HandleFunc("POST /records", h.create)
	h.mux.HandleFunc("GET /records", h.list)
	h.mux.HandleFunc("GET /records/{id}", h.get)
	h.mux.HandleFunc("PUT /records/{id}", h.update)
	h.mux.HandleFunc("DELETE /records/{id}", h.softDelete)
	h.mux.HandleFunc("POST /records/{id}/restore", h.restore)
	h.mux.HandleFunc("POST /records/{id}/restore/{version}", h.restoreToVersion)
	h.mux.HandleFunc("GET /records/{id}/history", h.history)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

type recordRequest struct {
	Fields map[string]any `json:"fields"`
}

func actor(r *http.Request) string {
	return r.Header.Get("X-Actor")
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	rec, err := h.repo.Create(r.Context(), domain.NewRecord(req.Fields), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.repo.List(r.Context(), includeDeleted(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.Record{}
	}
	h.writeJSON(w, http.StatusOK, records)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, found, err := h.repo.Get(r.Context(), id, includeDeleted(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	rec := domain.NewRecord(req.Fields)
	rec.ID = id
	updated, err := h.repo.Update(r.Context(), rec, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) softDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.repo.SoftDelete(r.Context(), id, actor(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.repo.Restore(r.Context(), id, actor(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) restoreToVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	version, err := strconv.ParseInt(r.PathValue("version"), 10, 64)
	if err != nil || version < 1 {
		http.Error(w, "invalid version", http.StatusBadRequest)
		return
	}

	rec, found, err := h.repo.RestoreToVersion(r.Context(), id, version, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		http.Error(w, "nothing to restore", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	entries, err := h.repo.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid record id: %v", err), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func includeDeleted(r *http.Request) bool {
	return r.URL.Query().Get("include_deleted") == "true"
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrDeleted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeJSON encodes the payload after the status line is sent; an encode
// failure can only be logged at that point, never reported to the client.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}

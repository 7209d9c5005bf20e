package deadletter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/entitysync/internal/domain"

	"github.com/google/uuid"
)

type Handler struct {
	service *Service
}

// NewHTTPHandler serves the /dead-letters routes.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/export"):
		h.handleExport(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/reprocess"):
		h.handleReprocess(w, r, path)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/resolve"):
		h.handleClose(w, r, path, h.service.MarkResolved)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/fail"):
		h.handleClose(w, r, path, h.service.MarkPermanentlyFailed)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/dead-letters"):
		h.handleList(w, r)
	case r.Method == http.MethodGet:
		h.handleGet(w, r, path)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

type closePayload struct {
	Note string `json:"note"`
	By   string `json:"by"`
}

func parseFilter(r *http.Request) (domain.DeadLetterFilter, error) {
	query := r.URL.Query()
	filter := domain.DeadLetterFilter{EntityType: strings.TrimSpace(query.Get("entity"))}
	if raw := strings.TrimSpace(query.Get("state")); raw != "" {
		state, ok := domain.ParseDeadLetterState(raw)
		if !ok {
			return filter, fmt.Errorf("invalid state %q", raw)
		}
		filter.State = state
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, fmt.Errorf("invalid limit %q", raw)
		}
		filter.Limit = limit
	}
	return filter, nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request, path string) {
	id, ok := entryID(w, path, "")
	if !ok {
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleReprocess(w http.ResponseWriter, r *http.Request, path string) {
	id, ok := entryID(w, path, "/reprocess")
	if !ok {
		return
	}
	entry, err := h.service.Reprocess(r.Context(), id, actingUser(r, ""))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidState) || errors.Is(err, domain.ErrRecordNotFound) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": err.Error(), "entry": entry})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "entry": entry})
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request, path string, apply func(ctx context.Context, id uuid.UUID, by, note string) (domain.DeadLetterEntry, error)) {
	suffix := path[strings.LastIndex(path, "/"):]
	id, ok := entryID(w, path, suffix)
	if !ok {
		return
	}
	var payload closePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}
	entry, err := apply(r.Context(), id, actingUser(r, payload.By), payload.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var buf bytes.Buffer
	if _, err := h.service.Export(r.Context(), filter, &buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	filename := fmt.Sprintf("dead-letters-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// entryID extracts the uuid segment that precedes suffix.
func entryID(w http.ResponseWriter, path, suffix string) (uuid.UUID, bool) {
	path = strings.TrimSuffix(path, suffix)
	idx := strings.LastIndex(path, "/")
	if idx == -1 || idx == len(path)-1 {
		http.Error(w, "missing dead-letter identifier", http.StatusBadRequest)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(path[idx+1:])
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid dead-letter identifier: %v", err), http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func actingUser(r *http.Request, fallback string) string {
	if user := strings.TrimSpace(r.Header.Get("X-Sync-User")); user != "" {
		return user
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" {
		return fallback
	}
	return "admin"
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRecordNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrResolutionNoteRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

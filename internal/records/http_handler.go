package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/syncctx"
)

const (
	BypassHeader   = "X-Sync-Bypass"
	BulkLoadHeader = "X-Sync-Bulk-Load"
	maxBodyBytes   = 5 << 20
)

// Writer is the write path of organic mutations, normally the publish controller.
type Writer interface {
	GetByID(ctx context.Context, collection string, id int64) (domain.Record, error)
	Create(ctx context.Context, collection string, values domain.Values) (domain.Record, error)
	Update(ctx context.Context, collection string, id int64, values domain.Values) (domain.Record, error)
}

type Handler struct {
	writer Writer
}

// NewHTTPHandler serves /records/{collection} and /records/{collection}/{id}.
func NewHTTPHandler(writer Writer) http.Handler {
	return &Handler{writer: writer}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/records"), "/"), "/")
	if len(parts) == 0 || parts[0] == "" || len(parts) > 2 {
		http.Error(w, "expected /records/{collection}[/{id}]", http.StatusNotFound)
		return
	}
	collection := parts[0]

	ctx := writeContext(r)
	switch {
	case len(parts) == 1 && r.Method == http.MethodPost:
		values, err := decodeValues(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		record, err := h.writer.Create(ctx, collection, values)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, record)
	case len(parts) == 2:
		id, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid record id %q", parts[1]), http.StatusBadRequest)
			return
		}
		h.handleRecord(w, r.WithContext(ctx), collection, id)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRecord(w http.ResponseWriter, r *http.Request, collection string, id int64) {
	switch r.Method {
	case http.MethodGet:
		record, err := h.writer.GetByID(r.Context(), collection, id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	case http.MethodPatch:
		values, err := decodeValues(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		record, err := h.writer.Update(r.Context(), collection, id, values)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, record)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// writeContext applies the publish skip headers to the request context.
func writeContext(r *http.Request) context.Context {
	ctx := r.Context()
	if truthyHeader(r.Header.Get(BypassHeader)) {
		ctx = syncctx.WithBypass(ctx)
	}
	if truthyHeader(r.Header.Get(BulkLoadHeader)) {
		ctx = syncctx.WithBulkLoad(ctx)
	}
	return ctx
}

func truthyHeader(value string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	return err == nil && parsed
}

func decodeValues(r *http.Request) (domain.Values, error) {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.UseNumber()
	var values domain.Values
	if err := decoder.Decode(&values); err != nil {
		return nil, fmt.Errorf("body must be a JSON object: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("body must contain at least one field")
	}
	return values, nil
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrRecordNotFound) {
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

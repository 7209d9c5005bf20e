package diagnostics

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

const maxLimit = DefaultCapacity

type logsResponse struct {
	Logs      []LogEntry `json:"logs"`
	Count     int        `json:"count"`
	Timestamp time.Time  `json:"timestamp"`
}

// NewHTTPHandler serves GET /sync/logs?limit=N from the buffer.
func NewHTTPHandler(buffer *LogBuffer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		limit := 100
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = parsed
		}
		if limit > maxLimit {
			limit = maxLimit
		}

		logs := buffer.Recent(limit)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(logsResponse{Logs: logs, Count: len(logs), Timestamp: time.Now().UTC()})
	})
}

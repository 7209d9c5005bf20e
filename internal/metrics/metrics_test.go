package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.MessageHandled("cliente", http.StatusOK)
	r.MessageHandled("cliente", http.StatusOK)
	r.Published("producto", errors.New("down"))
	r.Quarantined("")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.messages.WithLabelValues("cliente", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.published.WithLabelValues("producto", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.dlq.WithLabelValues("unknown")))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.MessageHandled("cliente", http.StatusOK)
	r.Published("cliente", nil)
	r.RetryRecorded("internal")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesCounters(t *testing.T) {
	r := New()
	r.UpsertOutcome("cliente", "created")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `entitysync_upsert_outcomes_total{entity="cliente",outcome="created"} 1`))
}

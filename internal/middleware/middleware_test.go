package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/rpattn/entitysync/internal/syncctx"

	"github.com/stretchr/testify/assert"
)

func TestActorMiddlewareReadsHeaders(t *testing.T) {
	var got syncctx.Actor
	handler := ActorMiddleware(syncctx.Actor{Login: "sync", CompanyID: 1})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = syncctx.ActorFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserHeader, "maria")
	req.Header.Set(CompanyHeader, "7")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, syncctx.Actor{Login: "maria", CompanyID: 7}, got)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, syncctx.Actor{Login: "sync", CompanyID: 1}, got)
}

func TestRecoverReturns500(t *testing.T) {
	handler := LoggingMiddleware(Recover(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLoggingMiddlewareTagsFailures(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	ok := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Empty(t, buf.String())

	ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/sync/logs", nil))
	assert.Contains(t, buf.String(), "[HTTP] GET /sync/logs 200 2B")

	buf.Reset()
	missing := LoggingMiddleware(http.NotFoundHandler())
	missing.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/records/x", nil))
	assert.Contains(t, buf.String(), "[HTTP] WARN: GET /records/x 404")
}

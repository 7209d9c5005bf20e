package records

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/outbound"
	"github.com/rpattn/entitysync/internal/publishing"
	"github.com/rpattn/entitysync/internal/repository/memory"
	"github.com/rpattn/entitysync/internal/schema"
	"github.com/rpattn/entitysync/internal/syncctx"
	"github.com/rpattn/entitysync/internal/transformations"
	"github.com/rpattn/entitysync/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandler(t *testing.T) (http.Handler, *memory.RecordStore, *transport.MemoryPublisher) {
	t.Helper()
	registry, err := schema.NewRegistry(schema.Builtins()...)
	require.NoError(t, err)

	store := memory.NewRecordStore()
	events := transport.NewMemoryPublisher()
	builder := outbound.NewBuilder(store, transformations.NewDefaultRegistry(), "", syncctx.Actor{Login: "admin"})
	ctrl := publishing.NewController(store, registry, outbound.NewPublisher(builder, events, nil), 0)
	return NewHTTPHandler(ctrl), store, events
}

func TestCreatePublishesProduct(t *testing.T) {
	handler, _, events := newHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/records/product.template", strings.NewReader(`{"producto_externo":"P1","name":"Gel"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var record domain.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.NotZero(t, record.ID)

	messages := events.Messages()
	require.Len(t, messages, 1)
	assert.Contains(t, string(messages[0].Payload), `"Tabla":"Productos"`)
}

func TestPatchWithBypassHeaderDoesNotPublish(t *testing.T) {
	handler, store, events := newHandler(t)
	product := store.Seed("product.template", domain.Values{"producto_externo": "P1", "name": "Gel"})

	req := httptest.NewRequest(http.MethodPatch, "/records/product.template/"+itoa(product.ID), strings.NewReader(`{"name":"Gel fuerte"}`))
	req.Header.Set(BypassHeader, "true")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, events.Messages())

	stored, err := store.GetByID(context.Background(), "product.template", product.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gel fuerte", stored.String("name"))

	req = httptest.NewRequest(http.MethodPatch, "/records/product.template/"+itoa(product.ID), strings.NewReader(`{"name":"Gel suave"}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, events.Messages(), 1)
}

func TestRecordRoutesRejectBadInput(t *testing.T) {
	handler, _, _ := newHandler(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"missing record", http.MethodGet, "/records/product.template/99", "", http.StatusNotFound},
		{"bad id", http.MethodPatch, "/records/product.template/abc", `{"name":"x"}`, http.StatusBadRequest},
		{"empty body", http.MethodPost, "/records/product.template", `{}`, http.StatusBadRequest},
		{"no collection", http.MethodPost, "/records", `{"name":"x"}`, http.StatusNotFound},
		{"delete", http.MethodDelete, "/records/product.template", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

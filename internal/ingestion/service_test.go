package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rpattn/entitysync/internal/deadletter"
	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/inbound"
	"github.com/rpattn/entitysync/internal/repository/memory"
	"github.com/rpattn/entitysync/internal/retry"
	"github.com/rpattn/entitysync/internal/schema"
	"github.com/rpattn/entitysync/internal/syncctx"
	"github.com/rpattn/entitysync/internal/transformations"
	"github.com/rpattn/entitysync/internal/upsert"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	service     *Service
	records     *memory.RecordStore
	retries     *memory.RetryStore
	deadLetters *memory.DeadLetterStore
	dlq         *deadletter.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	registry, err := schema.NewRegistry(schema.Builtins()...)
	require.NoError(t, err)

	records := memory.NewRecordStore()
	records.Seed(transformations.CountryCollection, domain.Values{"code": "ES"})
	retries := memory.NewRetryStore()
	deadLetters := memory.NewDeadLetterStore()

	processor := inbound.NewProcessor(transformations.NewDefaultRegistry(), records, syncctx.Actor{Login: "sync", CompanyID: 1})
	tracker := retry.NewTracker(retries, retry.DefaultMaxRetries, retry.DefaultRetention, nil)
	dlq := deadletter.NewService(deadLetters, nil)

	service := NewService(registry, processor, upsert.NewEngine(records), tracker, dlq, nil)
	dlq.SetReplayer(service)
	return fixture{service: service, records: records, retries: retries, deadLetters: deadLetters, dlq: dlq}
}

func envelope(t *testing.T, messageID string, payload map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	raw, err := NewEnvelope(messageID, data)
	require.NoError(t, err)
	return raw
}

func branchMessage() map[string]any {
	return map[string]any{"Cliente": "C9", "Contacto": "1", "Nombre": "Sucursal", "ClientePrincipal": false}
}

func TestHandleCreatesRecordAndAcks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.service.Handle(ctx, envelope(t, "m-1", map[string]any{"Cliente": "C1", "Contacto": "0", "Nombre": "Principal", "ClientePrincipal": true}))
	require.Equal(t, http.StatusOK, result.Status, result.Message)
	assert.Equal(t, "cliente", result.EntityType)
	assert.Equal(t, domain.OutcomeCreated, result.Outcome)

	stored, err := f.records.GetByID(ctx, "res.partner", result.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "Principal", stored.String("name"))

	_, err = f.retries.Get(ctx, "m-1")
	assert.True(t, errors.Is(err, domain.ErrRecordNotFound))
}

func TestHandleQuarantinesAfterMaxRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raw := envelope(t, "m-2", branchMessage())

	for attempt := 1; attempt <= retry.DefaultMaxRetries; attempt++ {
		result := f.service.Handle(ctx, raw)
		assert.Equal(t, http.StatusInternalServerError, result.Status, "attempt %d", attempt)
		assert.Equal(t, attempt, result.Attempt)
	}

	result := f.service.Handle(ctx, raw)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.True(t, result.Quarantined)

	entry, err := f.deadLetters.GetByMessageID(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, 4, entry.RetryCount)
	assert.Equal(t, domain.DeadLetterFailed, entry.State)
	assert.Equal(t, "cliente", entry.EntityType)
	assert.Contains(t, entry.ErrorMessage, "cliente principal")
	assert.Equal(t, raw, entry.RawPayload)

	tracked, err := f.retries.Get(ctx, "m-2")
	require.NoError(t, err)
	assert.Equal(t, domain.RetryStateMovedToDLQ, tracked.State)
}

func TestHandleSuccessAfterRetryMarksTracker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raw := envelope(t, "m-3", branchMessage())

	assert.Equal(t, http.StatusInternalServerError, f.service.Handle(ctx, raw).Status)

	f.records.Seed("res.partner", domain.Values{"cliente_externo": "C9", "contacto_externo": "0"})
	assert.Equal(t, http.StatusOK, f.service.Handle(ctx, raw).Status)

	tracked, err := f.retries.Get(ctx, "m-3")
	require.NoError(t, err)
	assert.Equal(t, domain.RetryStateSuccess, tracked.State)
}

func TestHandleWithoutMessageIDAcks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.service.Handle(ctx, envelope(t, "", branchMessage()))
	assert.Equal(t, http.StatusOK, result.Status)

	result = f.service.Handle(ctx, []byte(`{not json`))
	assert.Equal(t, http.StatusOK, result.Status)

	stats, err := f.retries.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRetrying)
}

func TestHandleResolvesEntityByTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.service.Handle(ctx, envelope(t, "m-4", map[string]any{"Tabla": "Productos", "Producto": "P1", "Nombre": "Champú"}))
	require.Equal(t, http.StatusOK, result.Status, result.Message)
	assert.Equal(t, "producto", result.EntityType)

	stored, err := f.records.GetByID(ctx, "product.template", result.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "P1", stored.String("producto_externo"))
}

func TestHandleUnknownTableIsRetried(t *testing.T) {
	f := newFixture(t)
	result := f.service.Handle(context.Background(), envelope(t, "m-5", map[string]any{"Tabla": "Facturas", "Producto": "P1"}))
	assert.Equal(t, http.StatusInternalServerError, result.Status)
	assert.Contains(t, result.Message, "Facturas")
}

func TestHandleUndetectableEntity(t *testing.T) {
	f := newFixture(t)
	result := f.service.Handle(context.Background(), envelope(t, "m-6", map[string]any{"Nada": 1}))
	assert.Equal(t, http.StatusInternalServerError, result.Status)
	assert.Contains(t, result.Message, "no se pudo determinar")
}

func TestHandleQuarantinesCycleImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.service.Handle(ctx, envelope(t, "m-7", map[string]any{"Producto": "K1", "Nombre": "Kit", "ProductosKit": []any{"K1"}}))
	assert.Equal(t, http.StatusOK, result.Status)
	assert.True(t, result.Quarantined)
	assert.Equal(t, 1, result.Attempt)

	entry, err := f.deadLetters.GetByMessageID(ctx, "m-7")
	require.NoError(t, err)
	assert.Equal(t, 1, entry.RetryCount)
	assert.Contains(t, entry.ErrorMessage, "ciclo")
}

func TestReprocessReplaysQuarantinedMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	raw := envelope(t, "m-8", branchMessage())
	for i := 0; i <= retry.DefaultMaxRetries; i++ {
		f.service.Handle(ctx, raw)
	}
	entry, err := f.deadLetters.GetByMessageID(ctx, "m-8")
	require.NoError(t, err)

	f.records.Seed("res.partner", domain.Values{"cliente_externo": "C9", "contacto_externo": "0"})
	retried, err := f.dlq.Reprocess(ctx, entry.ID, "ana")
	require.NoError(t, err)
	assert.Equal(t, domain.DeadLetterResolved, retried.State)

	tracked, err := f.retries.Get(ctx, "m-8")
	require.NoError(t, err)
	assert.Equal(t, 4, tracked.RetryCount)
}

func TestHTTPHandlerReportsStatus(t *testing.T) {
	f := newFixture(t)
	handler := NewHTTPHandler(f.service)

	req := httptest.NewRequest(http.MethodPost, "/sync", bytes.NewReader(envelope(t, "m-9", branchMessage())))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "m-9", body.MessageID)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sync", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDeliverHonoursDeadline(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Equal(t, http.StatusOK, f.service.Deliver(ctx, envelope(t, "m-10", map[string]any{"Producto": "P2", "Nombre": "Gel"})))
}

func TestHandleChildWithoutIdDoesNotOverwriteParent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result := f.service.Handle(ctx, envelope(t, "m-11", map[string]any{
		"Cliente": "C1", "Contacto": "0", "Nombre": "Principal SA", "ClientePrincipal": true,
		"PersonasContacto": []any{map[string]any{"Nombre": "Ana"}},
	}))
	require.Equal(t, http.StatusOK, result.Status, result.Message)
	assert.Equal(t, domain.OutcomeCreated, result.Outcome)

	parent, err := f.records.GetByID(ctx, "res.partner", result.RecordID)
	require.NoError(t, err)
	assert.Equal(t, "Principal SA", parent.String("name"))
	assert.NotEqual(t, "contact", parent.String("type"))

	partners, err := f.records.Search(ctx, "res.partner", nil, domain.SearchOptions{IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, partners, 1)
}

type panickingProcessor struct{}

func (panickingProcessor) Process(ctx context.Context, es domain.EntitySchema, message map[string]any) (domain.ValueSet, error) {
	var values map[string]any
	values["boom"] = true
	return domain.ValueSet{}, nil
}

func TestHandlePanicIsRetriedThenQuarantined(t *testing.T) {
	registry, err := schema.NewRegistry(schema.Builtins()...)
	require.NoError(t, err)
	records := memory.NewRecordStore()
	retries := memory.NewRetryStore()
	deadLetters := memory.NewDeadLetterStore()
	tracker := retry.NewTracker(retries, retry.DefaultMaxRetries, retry.DefaultRetention, nil)
	service := NewService(registry, panickingProcessor{}, upsert.NewEngine(records), tracker, deadletter.NewService(deadLetters, nil), nil)

	ctx := context.Background()
	raw := envelope(t, "p-2", map[string]any{"Producto": "P1", "Nombre": "Gel"})
	for attempt := 1; attempt <= retry.DefaultMaxRetries; attempt++ {
		result := service.Handle(ctx, raw)
		assert.Equal(t, http.StatusInternalServerError, result.Status)
		assert.Equal(t, attempt, result.Attempt)
		assert.Contains(t, result.Message, "panic during process")
	}

	result := service.Handle(ctx, raw)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.True(t, result.Quarantined)

	tracked, err := retries.Get(ctx, "p-2")
	require.NoError(t, err)
	assert.Equal(t, domain.RetryStateMovedToDLQ, tracked.State)
}

func TestHTTPHandlerRejectsOversizedBody(t *testing.T) {
	f := newFixture(t)
	handler := NewHTTPHandler(f.service)

	body := bytes.Repeat([]byte("a"), maxBodyBytes+1)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sync", bytes.NewReader(body)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

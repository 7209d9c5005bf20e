package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ repository.RecordRepository     = (*RecordStore)(nil)
	_ repository.RetryRepository      = (*RetryStore)(nil)
	_ repository.DeadLetterRepository = (*DeadLetterStore)(nil)
)

func TestRecordStoreNullCriterionDistinguishesVariants(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore()
	principal := store.Seed("res.partner", domain.Values{"cliente_externo": "1", "contacto_externo": "0", "persona_contacto_externa": nil})
	store.Seed("res.partner", domain.Values{"cliente_externo": "1", "contacto_externo": "0", "persona_contacto_externa": "7"})

	found, err := store.Search(ctx, "res.partner", []domain.Criterion{
		domain.Eq("cliente_externo", "1"),
		domain.Eq("contacto_externo", "0"),
		domain.Eq("persona_contacto_externa", nil),
	}, domain.SearchOptions{IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, principal.ID, found[0].ID)
}

func TestRecordStoreInactiveFiltering(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore()
	store.Seed("res.partner", domain.Values{"cliente_externo": "9", "active": false})

	found, err := store.Search(ctx, "res.partner", []domain.Criterion{domain.Eq("cliente_externo", "9")}, domain.SearchOptions{})
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = store.Search(ctx, "res.partner", []domain.Criterion{domain.Eq("cliente_externo", "9")}, domain.SearchOptions{IncludeInactive: true})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestRecordStoreNumericCriterionMatchesAcrossTypes(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore()
	store.Seed("res.partner", domain.Values{"parent_id": int64(5)})

	found, err := store.Search(ctx, "res.partner", []domain.Criterion{domain.Eq("parent_id", float64(5))}, domain.SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestRecordStoreUpdateMergesAndCountsWrites(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore()
	created, err := store.Create(ctx, "product.template", domain.Values{"name": "A", "barcode": "1"})
	require.NoError(t, err)

	updated, err := store.Update(ctx, "product.template", created.ID, domain.Values{"name": "B"})
	require.NoError(t, err)
	assert.Equal(t, "B", updated.Get("name"))
	assert.Equal(t, "1", updated.Get("barcode"))
	assert.Equal(t, 2, store.Writes())

	_, err = store.Update(ctx, "product.template", 999, domain.Values{})
	assert.True(t, errors.Is(err, domain.ErrRecordNotFound))
}

func TestRetryStoreIncrementKeepsEntityType(t *testing.T) {
	ctx := context.Background()
	store := NewRetryStore()

	first, err := store.Increment(ctx, "M1", "boom", "cliente")
	require.NoError(t, err)
	assert.Equal(t, 1, first.RetryCount)

	second, err := store.Increment(ctx, "M1", "boom again", "")
	require.NoError(t, err)
	assert.Equal(t, 2, second.RetryCount)
	assert.Equal(t, "cliente", second.EntityType)
	assert.Equal(t, "boom again", second.LastError)
}

func TestRetryStoreDeleteSucceededBefore(t *testing.T) {
	ctx := context.Background()
	store := NewRetryStore()
	old := time.Now().Add(-10 * 24 * time.Hour)
	store.SetClock(func() time.Time { return old })
	_, _ = store.Increment(ctx, "old", "x", "")
	require.NoError(t, store.SetState(ctx, "old", domain.RetryStateSuccess))
	store.SetClock(time.Now)
	_, _ = store.Increment(ctx, "fresh", "x", "")
	require.NoError(t, store.SetState(ctx, "fresh", domain.RetryStateSuccess))

	deleted, err := store.DeleteSucceededBefore(ctx, time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestDeadLetterStoreUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewDeadLetterStore()

	first, err := store.Upsert(ctx, domain.NewDeadLetterEntry("M1", []byte("{}"), "cliente", "err", "", 4))
	require.NoError(t, err)
	second, err := store.Upsert(ctx, domain.NewDeadLetterEntry("M1", []byte("{}"), "cliente", "err 2", "", 5))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 5, second.RetryCount)

	all, err := store.List(ctx, domain.DeadLetterFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

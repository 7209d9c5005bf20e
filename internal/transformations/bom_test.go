package transformations

import (
	"context"
	"errors"
	"testing"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kitEnv(store *memory.RecordStore, kit any) Env {
	return Env{
		Records: store,
		Schema:  domain.EntitySchema{Collection: ProductCollection, ComponentsKey: DefaultComponentsKey},
		Message: map[string]any{"Producto": "K1", DefaultComponentsKey: kit},
	}
}

func kitValues() *domain.ValueSet {
	vs := domain.NewValueSet()
	vs.Parent["producto_externo"] = "K1"
	return &vs
}

func TestSyncProductBOMAbsentKeyLeavesComponentsUnset(t *testing.T) {
	env := kitEnv(memory.NewRecordStore(), nil)
	delete(env.Message, DefaultComponentsKey)
	vs := kitValues()

	require.NoError(t, syncProductBOM(context.Background(), env, vs))
	assert.Nil(t, vs.Components)
}

func TestSyncProductBOMAcceptsEveryFormat(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore()
	a := store.Seed(ProductCollection, domain.Values{"producto_externo": "A"})
	b := store.Seed(ProductCollection, domain.Values{"producto_externo": "B"})

	cases := []struct {
		name  string
		kit   any
		lines []domain.ComponentLine
	}{
		{
			name: "objects",
			kit:  []any{map[string]any{"ProductoId": "A", "Cantidad": 2}, map[string]any{"ProductoId": "B"}},
			lines: []domain.ComponentLine{
				{RecordID: a.ID, ExternalID: "A", Quantity: 2},
				{RecordID: b.ID, ExternalID: "B", Quantity: 1},
			},
		},
		{
			name:  "ids with duplicates merged",
			kit:   []any{"A", "A"},
			lines: []domain.ComponentLine{{RecordID: a.ID, ExternalID: "A", Quantity: 2}},
		},
		{
			name:  "json string",
			kit:   `[{"ProductoId":"B","Cantidad":3}]`,
			lines: []domain.ComponentLine{{RecordID: b.ID, ExternalID: "B", Quantity: 3}},
		},
		{name: "blank string clears", kit: "  ", lines: []domain.ComponentLine{}},
		{name: "null clears", kit: nil, lines: []domain.ComponentLine{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vs := kitValues()
			require.NoError(t, syncProductBOM(ctx, kitEnv(store, tc.kit), vs))
			require.NotNil(t, vs.Components)
			assert.Equal(t, tc.lines, vs.Components.Lines)
		})
	}
}

func TestSyncProductBOMReportsMissingComponents(t *testing.T) {
	store := memory.NewRecordStore()
	store.Seed(ProductCollection, domain.Values{"producto_externo": "A"})

	err := syncProductBOM(context.Background(), kitEnv(store, []any{"A", "X1", "X2"}), kitValues())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMissingComponent))
	assert.Contains(t, err.Error(), "no encontrados")
	assert.Contains(t, err.Error(), "X1, X2")
}

func TestSyncProductBOMDetectsDirectCycle(t *testing.T) {
	store := memory.NewRecordStore()
	store.Seed(ProductCollection, domain.Values{"producto_externo": "K1"})

	err := syncProductBOM(context.Background(), kitEnv(store, []any{"K1"}), kitValues())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCyclicComponent))
	assert.True(t, domain.IsTerminal(err))
	assert.Contains(t, err.Error(), "ciclo")
}

func TestSyncProductBOMDetectsIndirectCycle(t *testing.T) {
	store := memory.NewRecordStore()
	kit := store.Seed(ProductCollection, domain.Values{"producto_externo": "K1"})
	a := store.Seed(ProductCollection, domain.Values{"producto_externo": "A"})
	b := store.Seed(ProductCollection, domain.Values{"producto_externo": "B"})
	store.Seed(BOMCollection, domain.Values{"product_tmpl_id": a.ID, "active": true,
		"lines": []any{map[string]any{"product_id": b.ID, "quantity": 1.0}}})
	store.Seed(BOMCollection, domain.Values{"product_tmpl_id": b.ID, "active": true,
		"lines": []any{map[string]any{"product_id": kit.ID, "quantity": 1.0}}})

	err := syncProductBOM(context.Background(), kitEnv(store, []any{"A"}), kitValues())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCyclicComponent))
	assert.Contains(t, err.Error(), "K1 -> A -> B -> K1")
}

func TestSyncComponentsWritesOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore()
	kit := store.Seed(ProductCollection, domain.Values{"producto_externo": "K1"})
	a := store.Seed(ProductCollection, domain.Values{"producto_externo": "A"})
	list := domain.ComponentList{Lines: []domain.ComponentLine{{RecordID: a.ID, ExternalID: "A", Quantity: 2}}}

	changed, err := SyncComponents(ctx, store, kit.ID, list)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = SyncComponents(ctx, store, kit.ID, list)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, store.Writes())

	rendered, err := KitComponents(ctx, store, kit.ID)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"ProductoId": "A", "Cantidad": int64(2)}}, rendered)

	changed, err = SyncComponents(ctx, store, kit.ID, domain.ComponentList{Lines: []domain.ComponentLine{}})
	require.NoError(t, err)
	assert.True(t, changed)
	_, found, err := FindBOM(ctx, store, kit.ID)
	require.NoError(t, err)
	assert.False(t, found)

	rendered, err = KitComponents(ctx, store, kit.ID)
	require.NoError(t, err)
	assert.Equal(t, []any{}, rendered)
}

func TestKitComponentsRequiresExternalIDs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore()
	kit := store.Seed(ProductCollection, domain.Values{"producto_externo": "K1"})
	anonymous := store.Seed(ProductCollection, domain.Values{"name": "sin código"})
	store.Seed(BOMCollection, domain.Values{"product_tmpl_id": kit.ID,
		"lines": []any{map[string]any{"product_id": anonymous.ID, "quantity": 1.5}}})

	_, err := KitComponents(ctx, store, kit.ID)
	assert.True(t, errors.Is(err, domain.ErrMissingComponent))
}

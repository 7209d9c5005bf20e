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

func TestPhoneSplitsMobileLandlineAndExtras(t *testing.T) {
	out, err := phoneTransformer{}.Forward(context.Background(), Env{}, "600111222 / 952000000 / 611000000 / ")
	require.NoError(t, err)

	assert.Equal(t, "600111222", out["mobile"])
	assert.Equal(t, "952000000", out["phone"])
	assert.Equal(t, "[Teléfonos extra] 611000000", out[domain.AppendPrefix+"comment"])
}

func TestPhoneReverseJoinsNumbers(t *testing.T) {
	record := domain.Record{Values: domain.Values{"mobile": "600", "phone": "952"}}
	value, err := phoneTransformer{}.Reverse(context.Background(), Env{}, nil, record)
	require.NoError(t, err)
	assert.Equal(t, "600/952", value)

	value, err = phoneTransformer{}.Reverse(context.Background(), Env{}, nil, domain.Record{})
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestVolumeRoundTripsThroughMillilitres(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore()
	ml := store.Seed(UoMCollection, domain.Values{"name": "ml"})
	env := Env{Records: store, Message: map[string]any{"Tamanno": 100, "UnidadMedida": "ml"}}

	out, err := sizeUnitTransformer{}.Forward(ctx, env, 100)
	require.NoError(t, err)
	assert.InDelta(t, 0.0001, out["volume"], 1e-12)
	assert.Equal(t, ml.ID, out["uom_id"])
	assert.Equal(t, ml.ID, out["uom_po_id"])

	back, err := sizeUnitTransformer{}.Reverse(ctx, env, nil, domain.Record{Values: domain.Values(out)})
	require.NoError(t, err)
	fanned := back.(map[string]any)
	assert.InDelta(t, 100.0, fanned["Tamanno"], 1e-9)
	assert.Equal(t, "ml", fanned["UnidadMedida"])
}

func TestSizeReversePicksReadableUnit(t *testing.T) {
	cases := []struct {
		name   string
		values domain.Values
		size   float64
		unit   string
	}{
		{"grams below one kilo", domain.Values{"weight": 0.5}, 500, "g"},
		{"kilos", domain.Values{"weight": 2.0}, 2, "kg"},
		{"litres from cubic metres", domain.Values{"volume": 0.0015}, 1.5, "l"},
		{"centimetres", domain.Values{"product_length": 0.25}, 25, "cm"},
		{"explicit millilitres win", domain.Values{"volume_ml": 250.0, "weight": 3.0}, 250, "ml"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			back, err := sizeUnitTransformer{}.Reverse(context.Background(), Env{}, nil, domain.Record{Values: tc.values})
			require.NoError(t, err)
			fanned := back.(map[string]any)
			assert.InDelta(t, tc.size, fanned["Tamanno"], 1e-9)
			assert.Equal(t, tc.unit, fanned["UnidadMedida"])
		})
	}
}

func TestSizeWithoutUnitMapsNothing(t *testing.T) {
	out, err := sizeUnitTransformer{}.Forward(context.Background(), Env{Message: map[string]any{}}, 12)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestCountryStateIgnoresAccentsAndCase(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore()
	store.Seed(CountryCollection, domain.Values{"code": "ES"})
	malaga := store.Seed(StateCollection, domain.Values{"name": "Málaga"})
	env := Env{Records: store}

	out, err := countryStateTransformer{}.Forward(ctx, env, "MALAGA")
	require.NoError(t, err)
	assert.Equal(t, malaga.ID, out["state_id"])

	out, err = countryStateTransformer{}.Forward(ctx, env, "Atlantis")
	require.NoError(t, err)
	assert.Nil(t, out["state_id"])

	name, err := countryStateTransformer{}.Reverse(ctx, env, malaga.ID, domain.Record{})
	require.NoError(t, err)
	assert.Equal(t, "MÁLAGA", name)
}

func TestSpainCountryRequiresConfiguredCountry(t *testing.T) {
	_, err := spainCountryTransformer{}.Forward(context.Background(), Env{Records: memory.NewRecordStore()}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransformationFailure))
}

func TestEstadoToActive(t *testing.T) {
	cases := []struct {
		value  any
		active bool
	}{
		{nil, true},
		{0, true},
		{9, true},
		{-1, false},
		{"-2", false},
	}
	for _, tc := range cases {
		out, err := estadoToActiveTransformer{}.Forward(context.Background(), Env{}, tc.value)
		require.NoError(t, err)
		assert.Equal(t, tc.active, out["active"], "Estado=%v", tc.value)
	}

	code, err := estadoToActiveTransformer{}.Reverse(context.Background(), Env{}, nil, domain.Record{Values: domain.Values{"active": false}})
	require.NoError(t, err)
	assert.Equal(t, -1, code)
}

func TestCargosRoundTrip(t *testing.T) {
	out, err := cargosTransformer{}.Forward(context.Background(), Env{}, 14)
	require.NoError(t, err)
	assert.Equal(t, "Esteticista", out["function"])

	code, err := cargosTransformer{}.Reverse(context.Background(), Env{}, out["function"], domain.Record{})
	require.NoError(t, err)
	assert.Equal(t, int64(14), code)
}

func TestVendedorLooksUpLoginIgnoringCase(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore()
	user := store.Seed(UserCollection, domain.Values{"login": "ana@example.com"})

	env := Env{Records: store, Message: map[string]any{"VendedorEmail": "ANA@example.com"}}
	out, err := vendedorTransformer{}.Forward(ctx, env, "V01")
	require.NoError(t, err)
	assert.Equal(t, user.ID, out["user_id"])
	assert.Equal(t, "V01", out["vendedor_externo"])

	env.Message = map[string]any{"VendedorEmail": "nobody@example.com"}
	out, err = vendedorTransformer{}.Forward(ctx, env, "V01")
	require.NoError(t, err)
	assert.Contains(t, out, "user_id")
	assert.Nil(t, out["user_id"])

	env.Message = map[string]any{}
	out, err = vendedorTransformer{}.Forward(ctx, env, "V01")
	require.NoError(t, err)
	assert.NotContains(t, out, "user_id")

	back, err := vendedorTransformer{}.Reverse(ctx, env, nil, domain.Record{Values: domain.Values{"vendedor_externo": "V01", "user_id": user.ID}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Vendedor": "V01", "VendedorEmail": "ana@example.com"}, back)
}

func TestCategoryFindOrCreate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore()
	env := Env{Records: store}
	grupo := categoryTransformer{field: "grupo_id", saleOkFromGroup: true}

	first, err := grupo.Forward(ctx, env, "MTP")
	require.NoError(t, err)
	assert.Equal(t, false, first["sale_ok"])
	require.NotNil(t, first["grupo_id"])

	second, err := grupo.Forward(ctx, env, "mtp")
	require.NoError(t, err)
	assert.Equal(t, first["grupo_id"], second["grupo_id"])
	assert.Equal(t, 1, store.Writes())

	name, err := grupo.Reverse(ctx, env, nil, domain.Record{Values: domain.Values{"grupo_id": first["grupo_id"]}})
	require.NoError(t, err)
	assert.Equal(t, "MTP", name)
}

func TestFicticioUsesGrupo(t *testing.T) {
	env := Env{Message: map[string]any{"Grupo": "CUR"}}
	out, err := ficticioTransformer{}.Forward(context.Background(), env, 1)
	require.NoError(t, err)
	assert.Equal(t, "service", out["detailed_type"])

	out, err = ficticioTransformer{}.Forward(context.Background(), Env{Message: map[string]any{}}, 1)
	require.NoError(t, err)
	assert.Equal(t, "consu", out["detailed_type"])

	out, err = ficticioTransformer{}.Forward(context.Background(), env, 0)
	require.NoError(t, err)
	assert.Equal(t, "product", out["detailed_type"])
}

type stubImages struct {
	data []byte
	err  error
}

func (s stubImages) Fetch(ctx context.Context, url string) ([]byte, error) {
	return s.data, s.err
}

func TestImageDegradesToURLOnFailure(t *testing.T) {
	out, err := imageTransformer{store: stubImages{err: errors.New("timeout")}}.Forward(context.Background(), Env{}, "http://img/a.png")
	require.NoError(t, err)
	assert.Equal(t, domain.Values{"url_imagen_actual": "http://img/a.png"}, out)

	out, err = imageTransformer{store: stubImages{data: []byte("png")}}.Forward(context.Background(), Env{}, "http://img/a.png")
	require.NoError(t, err)
	assert.Equal(t, "cG5n", out["image_1920"])
}

func TestRegistryRejectsUnknownAndDuplicateNames(t *testing.T) {
	registry := NewDefaultRegistry()

	_, err := registry.Transformer("does_not_exist")
	assert.True(t, errors.Is(err, domain.ErrUnknownExtension))
	_, err = registry.Validator("does_not_exist")
	assert.True(t, errors.Is(err, domain.ErrUnknownExtension))
	_, err = registry.PostProcessor("does_not_exist")
	assert.True(t, errors.Is(err, domain.ErrUnknownExtension))
	_, err = registry.ContextSource("does_not_exist")
	assert.True(t, errors.Is(err, domain.ErrUnknownExtension))

	assert.Error(t, registry.RegisterTransformer("phone", phoneTransformer{}))
	assert.Contains(t, registry.Names()["post_processors"], "sync_product_bom")
}

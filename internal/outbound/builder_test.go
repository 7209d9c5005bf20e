package outbound

import (
	"context"
	"testing"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/inbound"
	"github.com/rpattn/entitysync/internal/repository/memory"
	"github.com/rpattn/entitysync/internal/schema"
	"github.com/rpattn/entitysync/internal/syncctx"
	"github.com/rpattn/entitysync/internal/transformations"
	"github.com/rpattn/entitysync/internal/upsert"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testActor = syncctx.Actor{Login: "sync", CompanyID: 1}

func newBuilder(store *memory.RecordStore) *Builder {
	return NewBuilder(store, transformations.NewDefaultRegistry(), "", testActor)
}

func TestInferReverseClaimsFirstFreeTargetField(t *testing.T) {
	es := schema.Cliente()
	mappings := InferReverse(es.Fields, es.Reverse)

	byField := map[string]domain.ReverseMapping{}
	for _, m := range mappings {
		byField[m.Field] = m
	}

	assert.Equal(t, domain.ReverseMapping{Field: "mobile", Key: "Telefono", Transformer: "phone"}, byField["mobile"])
	assert.NotContains(t, byField, "phone")
	assert.Equal(t, "ClientePrincipal", byField["is_company"].Key)
	assert.Equal(t, "vendedor", byField["user_id"].Transformer)
	assert.Equal(t, domain.ReverseMapping{Field: "vendedor_externo", Key: "Vendedor"}, byField["vendedor_externo"])
	assert.Equal(t, "Cliente", byField["cliente_externo"].Key)
	assert.NotContains(t, byField, "country_id")
	assert.NotContains(t, byField, "company_id")
}

func TestInferReverseOverrideReplacesInPlace(t *testing.T) {
	rules := []domain.FieldMappingRule{domain.Direct("A", "a"), domain.Direct("B", "b")}
	mappings := InferReverse(rules, []domain.ReverseMapping{{Field: "a", Key: "Alpha"}})

	assert.Equal(t, []domain.ReverseMapping{{Field: "a", Key: "Alpha"}, {Field: "b", Key: "B"}}, mappings)
}

func TestBuildMessageRoundTripsInboundCliente(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore()
	store.Seed(transformations.CountryCollection, domain.Values{"code": "ES"})
	store.Seed(transformations.StateCollection, domain.Values{"name": "Madrid"})
	es := schema.Cliente()

	message := map[string]any{
		"Cliente":          "C1",
		"Contacto":         "0",
		"Nombre":           "Peluquería Ana",
		"Direccion":        "Calle Mayor 1",
		"ClientePrincipal": true,
		"Provincia":        "Madrid",
		"Telefono":         "600111222/912000000",
		"Estado":           0,
		"PersonasContacto": []any{
			map[string]any{"Id": "1", "Nombre": "Ana", "CorreoElectronico": "ana@example.com", "Cargo": 22},
		},
	}
	vs, err := inbound.NewProcessor(transformations.NewDefaultRegistry(), store, testActor).Process(ctx, es, message)
	require.NoError(t, err)
	result, err := upsert.NewEngine(store).Upsert(ctx, es, vs)
	require.NoError(t, err)

	record, err := store.GetByID(ctx, es.Collection, result.Record.ID)
	require.NoError(t, err)
	out, err := newBuilder(store).BuildMessage(ctx, es, record)
	require.NoError(t, err)

	for _, key := range []string{"Cliente", "Contacto", "Nombre", "Direccion", "ClientePrincipal"} {
		assert.Equal(t, message[key], out[key], key)
	}
	assert.Equal(t, "MADRID", out["Provincia"])
	assert.Equal(t, "600111222/912000000", out["Telefono"])
	assert.Equal(t, 9, out["Estado"])
	assert.Equal(t, "Clientes", out["Tabla"])
	assert.Equal(t, "Odoo", out["Source"])
	assert.Equal(t, `ODOO\sync`, out["Usuario"])
	assert.NotContains(t, out, "Vendedor")
	assert.NotContains(t, out, "_country")

	children, ok := out["PersonasContacto"].([]any)
	require.True(t, ok)
	require.Len(t, children, 1)
	child := children[0].(map[string]any)
	assert.Equal(t, "1", child["Id"])
	assert.Equal(t, "Ana", child["Nombre"])
	assert.Equal(t, "ana@example.com", child["CorreoElectronico"])
	assert.Equal(t, int64(22), child["Cargo"])
	assert.NotContains(t, child, "Telefonos")
}

func TestBuildMessageAlwaysIncludesFalsePrincipal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore()
	branch := store.Seed("res.partner", domain.Values{
		"cliente_externo": "C2", "contacto_externo": "1", "name": "Sucursal", "type": "delivery", "street": "",
	})

	out, err := newBuilder(store).BuildMessage(ctx, schema.Cliente(), branch)
	require.NoError(t, err)

	assert.Contains(t, out, "ClientePrincipal")
	assert.Equal(t, false, out["ClientePrincipal"])
	assert.NotContains(t, out, "Direccion")
	assert.NotContains(t, out, "PersonasContacto")
}

func TestBuildMessageUsesContextActor(t *testing.T) {
	store := memory.NewRecordStore()
	record := store.Seed("res.partner", domain.Values{"cliente_externo": "C3", "contacto_externo": "0"})
	ctx := syncctx.WithActor(context.Background(), syncctx.Actor{Login: "maria"})

	out, err := newBuilder(store).BuildMessage(ctx, schema.Cliente(), record)
	require.NoError(t, err)
	assert.Equal(t, `ODOO\maria`, out["Usuario"])
}

func TestBuildMessageRendersKitComponents(t *testing.T) {
	ctx := context.Background()
	store := memory.NewRecordStore()
	es := schema.Producto()
	kit := store.Seed(es.Collection, domain.Values{
		"producto_externo": "K1", "default_code": "K1", "name": "Kit", "list_price": 12.5, "volume": 0.0001,
	})
	component := store.Seed(es.Collection, domain.Values{"producto_externo": "A", "default_code": "A", "name": "Champú"})
	store.Seed(transformations.BOMCollection, domain.Values{"product_tmpl_id": kit.ID, "active": true,
		"lines": []any{map[string]any{"product_id": component.ID, "quantity": 2.0}}})

	out, err := newBuilder(store).BuildMessage(ctx, es, kit)
	require.NoError(t, err)

	assert.Equal(t, "K1", out["Producto"])
	assert.Equal(t, 12.5, out["PrecioProfesional"])
	assert.InDelta(t, 100.0, out["Tamanno"], 1e-9)
	assert.Equal(t, "ml", out["UnidadMedida"])
	assert.Equal(t, "Productos", out["Tabla"])
	assert.Equal(t, []any{map[string]any{"ProductoId": "A", "Cantidad": int64(2)}}, out["ProductosKit"])
	assert.NotContains(t, out, "Ficticio")

	plain, err := newBuilder(store).BuildMessage(ctx, es, component)
	require.NoError(t, err)
	assert.Equal(t, []any{}, plain["ProductosKit"])
}

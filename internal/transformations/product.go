package transformations

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/rpattn/entitysync/internal/domain"
)

// priceTransformer parses a price, defaulting to zero.
type priceTransformer struct{}

func (priceTransformer) Forward(ctx context.Context, env Env, value any) (domain.Values, error) {
	return domain.Values{"list_price": floatOrZero(value)}, nil
}

func (priceTransformer) Reverse(ctx context.Context, env Env, value any, record domain.Record) (any, error) {
	return value, nil
}

// quantityTransformer parses an on-hand quantity, defaulting to zero.
type quantityTransformer struct{}

func (quantityTransformer) Forward(ctx context.Context, env Env, value any) (domain.Values, error) {
	return domain.Values{"qty_available": floatOrZero(value)}, nil
}

func (quantityTransformer) Reverse(ctx context.Context, env Env, value any, record domain.Record) (any, error) {
	return value, nil
}

func floatOrZero(value any) float64 {
	if !domain.Truthy(value) {
		return 0
	}
	f, ok := domain.AsFloat(value)
	if !ok {
		return 0
	}
	return f
}

// ficticioTransformer maps the virtual-product flag to a product type. Virtual
// products in group CUR are services.
type ficticioTransformer struct{}

func (ficticioTransformer) Forward(ctx context.Context, env Env, value any) (domain.Values, error) {
	if !domain.Truthy(value) {
		return domain.Values{"detailed_type": "product"}, nil
	}
	if domain.AsString(env.Message["Grupo"]) == "CUR" {
		return domain.Values{"detailed_type": "service"}, nil
	}
	return domain.Values{"detailed_type": "consu"}, nil
}

func (ficticioTransformer) Reverse(ctx context.Context, env Env, value any, record domain.Record) (any, error) {
	detailed := record.String("detailed_type")
	if detailed == "" || detailed == "product" {
		return 0, nil
	}
	return 1, nil
}

// categoryTransformer finds or creates a product category of one kind.
type categoryTransformer struct {
	field string
	// saleOkFromGroup marks MTP (raw material) products as not for sale.
	saleOkFromGroup bool
}

func (t categoryTransformer) kind() string {
	return strings.TrimSuffix(t.field, "_id")
}

func (t categoryTransformer) Forward(ctx context.Context, env Env, value any) (domain.Values, error) {
	name := domain.AsString(value)
	out := domain.Values{}
	if t.saleOkFromGroup {
		out["sale_ok"] = !strings.EqualFold(name, "MTP")
	}
	if name == "" {
		out[t.field] = nil
		return out, nil
	}

	criteria := []domain.Criterion{
		{Field: "name", Op: domain.OpIEq, Value: name},
		domain.Eq("kind", t.kind()),
	}
	found, err := env.Records.Search(ctx, CategoryCollection, criteria, domain.SearchOptions{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s %q: %w", t.kind(), name, err)
	}
	if len(found) > 0 {
		out[t.field] = found[0].ID
		return out, nil
	}

	created, err := env.Records.Create(ctx, CategoryCollection, domain.Values{"name": name, "kind": t.kind()})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s %q: %w", t.kind(), name, err)
	}
	log.Printf("[TRANSFORM] created %s category %q (id=%d)", t.kind(), name, created.ID)
	out[t.field] = created.ID
	return out, nil
}

func (t categoryTransformer) Reverse(ctx context.Context, env Env, value any, record domain.Record) (any, error) {
	id, ok := domain.AsInt64(record.Get(t.field))
	if !ok || id == 0 {
		return nil, nil
	}
	category, err := env.Records.GetByID(ctx, CategoryCollection, id)
	if err != nil {
		return nil, nil
	}
	return nilIfEmpty(category.String("name")), nil
}

type unitInfo struct {
	field  string
	factor float64
	search []string
}

// Factors convert to the stored base unit: kg for weight, m³ for volume, m for length.
var units = map[string]unitInfo{
	"g":   {"weight", 0.001, []string{"g", "gr", "gram", "gramo"}},
	"gr":  {"weight", 0.001, []string{"g", "gr", "gram", "gramo"}},
	"kg":  {"weight", 1, []string{"kg", "kilogram", "kilogramo"}},
	"lb":  {"weight", 0.453592, []string{"lb", "pound", "libra"}},
	"oz":  {"weight", 0.0283495, []string{"oz", "ounce", "onza"}},
	"mg":  {"weight", 0.000001, []string{"mg", "milligram", "miligramo"}},
	"l":   {"volume", 0.001, []string{"l", "liter", "litro"}},
	"ml":  {"volume", 0.000001, []string{"ml", "milliliter", "mililitro"}},
	"cl":  {"volume", 0.00001, []string{"cl", "centiliter", "centilitro"}},
	"m3":  {"volume", 1, []string{"m3", "m³", "cubic meter", "metro cúbico"}},
	"cm3": {"volume", 0.000001, []string{"cm3", "cm³", "cubic centimeter", "centímetro cúbico"}},
	"mm":  {"product_length", 0.001, []string{"mm", "millimeter", "milímetro"}},
	"cm":  {"product_length", 0.01, []string{"cm", "centimeter", "centímetro"}},
	"m":   {"product_length", 1, []string{"m", "meter", "metro"}},
	"km":  {"product_length", 1000, []string{"km", "kilometer", "kilómetro"}},
	"in":  {"product_length", 0.0254, []string{"in", "inch", "pulgada"}},
	"ft":  {"product_length", 0.3048, []string{"ft", "foot", "pie"}},
}

// sizeUnitTransformer stores Tamanno in the measure implied by UnidadMedida.
// The reverse side picks the most readable unit, so 0.5 kg comes back as 500 g.
type sizeUnitTransformer struct{}

func (sizeUnitTransformer) Forward(ctx context.Context, env Env, value any) (domain.Values, error) {
	out := domain.Values{}
	size, ok := domain.AsFloat(value)
	if !ok || size == 0 {
		return out, nil
	}

	unitName := domain.AsString(env.Message["UnidadMedida"])
	if unitName == "" {
		log.Printf("[TRANSFORM] WARN: Tamanno=%v without UnidadMedida, size not mapped", value)
		return out, nil
	}
	unit, known := units[strings.ToLower(unitName)]
	if !known {
		log.Printf("[TRANSFORM] WARN: unknown UnidadMedida %q, size not mapped", unitName)
		return out, nil
	}

	out[unit.field] = size * unit.factor

	uomID, err := findUoM(ctx, env, unitName, unit.search)
	if err != nil {
		return nil, err
	}
	if uomID != 0 {
		out["uom_id"] = uomID
		out["uom_po_id"] = uomID
	} else {
		log.Printf("[TRANSFORM] WARN: no unit of measure found for %q", unitName)
	}
	return out, nil
}

func findUoM(ctx context.Context, env Env, unitName string, terms []string) (int64, error) {
	for _, term := range terms {
		found, err := env.Records.Search(ctx, UoMCollection,
			[]domain.Criterion{{Field: "name", Op: domain.OpIEq, Value: term}},
			domain.SearchOptions{Limit: 1})
		if err != nil {
			return 0, fmt.Errorf("failed to look up unit %q: %w", term, err)
		}
		if len(found) > 0 {
			return found[0].ID, nil
		}
	}

	found, err := env.Records.Search(ctx, UoMCollection,
		[]domain.Criterion{{Field: "name", Op: domain.OpILike, Value: strings.ToLower(strings.TrimSpace(unitName))}},
		domain.SearchOptions{Limit: 1})
	if err != nil {
		return 0, fmt.Errorf("failed to look up unit %q: %w", unitName, err)
	}
	if len(found) > 0 {
		return found[0].ID, nil
	}
	return 0, nil
}

func (sizeUnitTransformer) Reverse(ctx context.Context, env Env, value any, record domain.Record) (any, error) {
	volumeML, _ := domain.AsFloat(record.Get("volume_ml"))
	volume, _ := domain.AsFloat(record.Get("volume"))
	weight, _ := domain.AsFloat(record.Get("weight"))
	length, _ := domain.AsFloat(record.Get("product_length"))

	switch {
	case volumeML > 0:
		return volumeSize(volumeML), nil
	case volume > 0:
		return volumeSize(volume * 1_000_000), nil
	case weight > 0:
		if weight < 1 {
			return sizeWithUnit(weight*1000, "g"), nil
		}
		return sizeWithUnit(weight, "kg"), nil
	case length > 0:
		if length < 1 {
			return sizeWithUnit(length*100, "cm"), nil
		}
		return sizeWithUnit(length, "m"), nil
	}
	return nil, nil
}

func volumeSize(ml float64) map[string]any {
	if ml < 1000 {
		return sizeWithUnit(ml, "ml")
	}
	return sizeWithUnit(ml/1000, "l")
}

func sizeWithUnit(size float64, unit string) map[string]any {
	return map[string]any{"Tamanno": math.Round(size*100) / 100, "UnidadMedida": unit}
}

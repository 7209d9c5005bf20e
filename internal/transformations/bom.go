package transformations

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rpattn/entitysync/internal/domain"
)

// DefaultComponentsKey is the message key carrying a kit's component list.
const DefaultComponentsKey = "ProductosKit"

// maxComponentDepth bounds the cycle search through nested kits.
const maxComponentDepth = 10

// ComponentStore is the storage needed to write component lists.
type ComponentStore interface {
	Records
	Update(ctx context.Context, collection string, id int64, values domain.Values) (domain.Record, error)
	Delete(ctx context.Context, collection string, id int64) error
}

type componentRef struct {
	externalID string
	quantity   float64
}

// syncProductBOM resolves the kit component list carried by the message. A
// message without the key leaves Components nil.
func syncProductBOM(ctx context.Context, env Env, vs *domain.ValueSet) error {
	key := env.Schema.ComponentsKey
	if key == "" {
		key = DefaultComponentsKey
	}
	raw, present := env.Message[key]
	if !present {
		return nil
	}

	refs, err := parseComponentRefs(raw)
	if err != nil {
		return err
	}
	if len(refs) == 0 {
		vs.Components = &domain.ComponentList{Lines: []domain.ComponentLine{}}
		return nil
	}

	kitID := domain.AsString(vs.Parent["producto_externo"])
	for _, ref := range refs {
		if kitID != "" && ref.externalID == kitID {
			return fmt.Errorf("%w: ciclo directo, el producto %s se contiene a sí mismo", domain.ErrCyclicComponent, kitID)
		}
	}

	lines, err := resolveComponents(ctx, env.Records, refs)
	if err != nil {
		return err
	}

	if kitID != "" {
		if err := detectIndirectCycle(ctx, env.Records, kitID, lines); err != nil {
			return err
		}
	}

	vs.Components = &domain.ComponentList{Lines: lines}
	return nil
}

// parseComponentRefs accepts a list of {ProductoId, Cantidad} objects, a list of
// ids (quantity 1) or either of those encoded as a JSON string.
func parseComponentRefs(raw any) ([]componentRef, error) {
	switch typed := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(typed) == "" {
			return nil, nil
		}
		var decoded []any
		if err := json.Unmarshal([]byte(typed), &decoded); err != nil {
			return nil, fmt.Errorf("%w: ProductosKit is not valid JSON: %v", domain.ErrMalformedValue, err)
		}
		return parseComponentRefs(decoded)
	case []any:
		refs := make([]componentRef, 0, len(typed))
		index := map[string]int{}
		for _, item := range typed {
			ref, err := parseComponentRef(item)
			if err != nil {
				return nil, err
			}
			if pos, seen := index[ref.externalID]; seen {
				refs[pos].quantity += ref.quantity
				continue
			}
			index[ref.externalID] = len(refs)
			refs = append(refs, ref)
		}
		return refs, nil
	}
	return nil, fmt.Errorf("%w: ProductosKit has unsupported type %T", domain.ErrMalformedValue, raw)
}

func parseComponentRef(item any) (componentRef, error) {
	if object, ok := item.(map[string]any); ok {
		id := domain.AsString(object["ProductoId"])
		if id == "" {
			return componentRef{}, fmt.Errorf("%w: ProductosKit entry without ProductoId", domain.ErrMalformedValue)
		}
		quantity := 1.0
		if raw, present := object["Cantidad"]; present && raw != nil {
			parsed, ok := domain.AsFloat(raw)
			if !ok || parsed <= 0 {
				return componentRef{}, fmt.Errorf("%w: invalid Cantidad %v for %s", domain.ErrMalformedValue, raw, id)
			}
			quantity = parsed
		}
		return componentRef{externalID: id, quantity: quantity}, nil
	}

	id := domain.AsString(item)
	if id == "" {
		return componentRef{}, fmt.Errorf("%w: empty ProductosKit entry", domain.ErrMalformedValue)
	}
	return componentRef{externalID: id, quantity: 1}, nil
}

func resolveComponents(ctx context.Context, records Records, refs []componentRef) ([]domain.ComponentLine, error) {
	lines := make([]domain.ComponentLine, 0, len(refs))
	var missing []string
	for _, ref := range refs {
		found, err := records.Search(ctx, ProductCollection,
			[]domain.Criterion{domain.Eq("producto_externo", ref.externalID)},
			domain.SearchOptions{IncludeInactive: true, Limit: 1})
		if err != nil {
			return nil, fmt.Errorf("failed to look up component %s: %w", ref.externalID, err)
		}
		if len(found) == 0 {
			missing = append(missing, ref.externalID)
			continue
		}
		lines = append(lines, domain.ComponentLine{RecordID: found[0].ID, ExternalID: ref.externalID, Quantity: ref.quantity})
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: Productos componentes no encontrados: %s",
			domain.ErrMissingComponent, strings.Join(missing, ", "))
	}
	return lines, nil
}

// detectIndirectCycle walks the stored component graph from each new component,
// keyed by external id, and fails if it reaches the kit itself.
func detectIndirectCycle(ctx context.Context, records Records, kitID string, lines []domain.ComponentLine) error {
	visited := map[string]bool{}

	var walk func(line domain.ComponentLine, depth int, path []string) error
	walk = func(line domain.ComponentLine, depth int, path []string) error {
		if depth > maxComponentDepth || visited[line.ExternalID] {
			return nil
		}
		visited[line.ExternalID] = true

		children, err := storedComponents(ctx, records, line.RecordID)
		if err != nil {
			return err
		}
		for _, child := range children {
			next := append(append([]string(nil), path...), child.ExternalID)
			if child.ExternalID == kitID {
				return fmt.Errorf("%w: ciclo indirecto %s", domain.ErrCyclicComponent, strings.Join(next, " -> "))
			}
			if err := walk(child, depth+1, next); err != nil {
				return err
			}
		}
		return nil
	}

	for _, line := range lines {
		if err := walk(line, 1, []string{kitID, line.ExternalID}); err != nil {
			return err
		}
	}
	return nil
}

// FindBOM returns the active component list record of a product, if any.
func FindBOM(ctx context.Context, records Records, productID int64) (domain.Record, bool, error) {
	found, err := records.Search(ctx, BOMCollection,
		[]domain.Criterion{domain.Eq("product_tmpl_id", productID)},
		domain.SearchOptions{Limit: 1})
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("failed to look up bom of %d: %w", productID, err)
	}
	if len(found) == 0 {
		return domain.Record{}, false, nil
	}
	return found[0], true, nil
}

// bomLines decodes the stored lines of a component list record.
func bomLines(bom domain.Record) []domain.ComponentLine {
	raw, _ := bom.Get("lines").([]any)
	lines := make([]domain.ComponentLine, 0, len(raw))
	for _, item := range raw {
		object, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, ok := domain.AsInt64(object["product_id"])
		if !ok {
			continue
		}
		quantity, _ := domain.AsFloat(object["quantity"])
		lines = append(lines, domain.ComponentLine{RecordID: id, Quantity: quantity})
	}
	return lines
}

// storedComponents returns the stored components of a product with external ids
// filled in. Components without an external id are skipped.
func storedComponents(ctx context.Context, records Records, productID int64) ([]domain.ComponentLine, error) {
	bom, ok, err := FindBOM(ctx, records, productID)
	if err != nil || !ok {
		return nil, err
	}
	lines := bomLines(bom)
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.RecordID)
	}
	products, err := records.GetByIDs(ctx, ProductCollection, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load components of %d: %w", productID, err)
	}
	external := make(map[int64]string, len(products))
	for _, product := range products {
		external[product.ID] = product.String("producto_externo")
	}

	out := make([]domain.ComponentLine, 0, len(lines))
	for _, line := range lines {
		if ext := external[line.RecordID]; ext != "" {
			line.ExternalID = ext
			out = append(out, line)
		}
	}
	return out, nil
}

// SyncComponents makes the stored component list of productID match list. An
// empty list removes it. It reports whether anything was written.
func SyncComponents(ctx context.Context, store ComponentStore, productID int64, list domain.ComponentList) (bool, error) {
	bom, exists, err := FindBOM(ctx, store, productID)
	if err != nil {
		return false, err
	}

	if len(list.Lines) == 0 {
		if !exists {
			return false, nil
		}
		if err := store.Delete(ctx, BOMCollection, bom.ID); err != nil {
			return false, fmt.Errorf("failed to delete bom of %d: %w", productID, err)
		}
		return true, nil
	}

	if exists && sameComponents(bomLines(bom), list.Lines) {
		return false, nil
	}

	encoded := make([]any, 0, len(list.Lines))
	for _, line := range list.Lines {
		encoded = append(encoded, map[string]any{"product_id": line.RecordID, "quantity": line.Quantity})
	}
	values := domain.Values{"product_tmpl_id": productID, "type": "normal", "active": true, "lines": encoded}

	if exists {
		if _, err := store.Update(ctx, BOMCollection, bom.ID, values); err != nil {
			return false, fmt.Errorf("failed to update bom of %d: %w", productID, err)
		}
		return true, nil
	}
	if _, err := store.Create(ctx, BOMCollection, values); err != nil {
		return false, fmt.Errorf("failed to create bom of %d: %w", productID, err)
	}
	return true, nil
}

func sameComponents(stored, incoming []domain.ComponentLine) bool {
	if len(stored) != len(incoming) {
		return false
	}
	key := func(lines []domain.ComponentLine) []string {
		out := make([]string, 0, len(lines))
		for _, line := range lines {
			out = append(out, fmt.Sprintf("%d:%.4f", line.RecordID, line.Quantity))
		}
		sort.Strings(out)
		return out
	}
	a, b := key(stored), key(incoming)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// KitComponents renders the stored component list of a product for the outbound
// message. Every component must carry an external id.
func KitComponents(ctx context.Context, records Records, productID int64) ([]any, error) {
	bom, ok, err := FindBOM(ctx, records, productID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []any{}, nil
	}

	lines := bomLines(bom)
	out := make([]any, 0, len(lines))
	for _, line := range lines {
		component, err := records.GetByID(ctx, ProductCollection, line.RecordID)
		if err != nil {
			return nil, fmt.Errorf("failed to load component %d: %w", line.RecordID, err)
		}
		ext := component.String("producto_externo")
		if ext == "" {
			return nil, fmt.Errorf("%w: component %d has no producto_externo", domain.ErrMissingComponent, line.RecordID)
		}
		var quantity any = line.Quantity
		if line.Quantity == math.Trunc(line.Quantity) {
			quantity = int64(line.Quantity)
		}
		out = append(out, map[string]any{"ProductoId": ext, "Cantidad": quantity})
	}
	return out, nil
}

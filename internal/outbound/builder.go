package outbound

import (
	"context"
	"fmt"
	"strings"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/syncctx"
	"github.com/rpattn/entitysync/internal/transformations"
)

// DefaultOriginTag identifies messages produced by this side of the sync.
const DefaultOriginTag = "Odoo"

// Transformers resolves reverse transformers by name.
type Transformers interface {
	Transformer(name string) (transformations.Transformer, error)
}

// Builder renders stored records as external messages.
type Builder struct {
	records      transformations.Records
	transformers Transformers
	origin       string
	actor        syncctx.Actor
}

// NewBuilder creates a builder. actor is used when the context carries none.
func NewBuilder(records transformations.Records, transformers Transformers, origin string, actor syncctx.Actor) *Builder {
	if origin == "" {
		origin = DefaultOriginTag
	}
	return &Builder{records: records, transformers: transformers, origin: origin, actor: actor}
}

// InferReverse derives the reverse mapping of a rule list. A direct rule maps its
// field back to its key. A transformed rule maps only its first target field not
// already claimed, through the transformer's reverse side. Rules keyed with a
// leading underscore are inbound-only. Overrides replace the mapping of the same
// field or are appended.
func InferReverse(rules []domain.FieldMappingRule, overrides []domain.ReverseMapping) []domain.ReverseMapping {
	claimed := map[string]int{}
	var mappings []domain.ReverseMapping

	for _, rule := range rules {
		if rule.Internal() {
			continue
		}
		switch rule.Kind {
		case domain.RuleDirect:
			if _, taken := claimed[rule.Field]; taken {
				continue
			}
			claimed[rule.Field] = len(mappings)
			mappings = append(mappings, domain.ReverseMapping{Field: rule.Field, Key: rule.Key})
		case domain.RuleTransformed:
			for _, field := range rule.TargetFields() {
				if _, taken := claimed[field]; taken {
					continue
				}
				claimed[field] = len(mappings)
				mappings = append(mappings, domain.ReverseMapping{Field: field, Key: rule.Key, Transformer: rule.Transformer})
				break
			}
		}
	}

	for _, override := range overrides {
		if index, exists := claimed[override.Field]; exists {
			mappings[index] = override
			continue
		}
		claimed[override.Field] = len(mappings)
		mappings = append(mappings, override)
	}
	return mappings
}

// BuildMessage renders record, its children and its component list, wrapped with
// transport metadata.
func (b *Builder) BuildMessage(ctx context.Context, es domain.EntitySchema, record domain.Record) (map[string]any, error) {
	env := b.env(ctx, es)

	message, err := b.mapRecord(ctx, env, es, InferReverse(es.Fields, es.Reverse), record, true)
	if err != nil {
		return nil, err
	}

	if parentField, ok := es.ParentField(); ok && len(es.Hierarchy.ChildKeys) > 0 {
		children, err := b.records.Search(ctx, es.Collection, []domain.Criterion{domain.Eq(parentField, record.ID)}, domain.SearchOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to load children of %s %d: %w", es.Name, record.ID, err)
		}
		if len(children) > 0 {
			childMappings := InferReverse(es.ChildFields, es.ReverseChild)
			elements := make([]any, 0, len(children))
			for _, child := range children {
				element, err := b.mapRecord(ctx, env, es, childMappings, child, false)
				if err != nil {
					return nil, fmt.Errorf("child %d: %w", child.ID, err)
				}
				elements = append(elements, element)
			}
			message[es.Hierarchy.ChildKeys[0]] = elements
		}
	}

	if es.ComponentsKey != "" {
		kit, err := transformations.KitComponents(ctx, b.records, record.ID)
		if err != nil {
			return nil, err
		}
		message[es.ComponentsKey] = kit
	}

	message["Tabla"] = es.ExternalTable
	message["Source"] = b.origin
	message["Usuario"] = strings.ToUpper(b.origin) + `\` + env.Actor.Login
	return message, nil
}

func (b *Builder) env(ctx context.Context, es domain.EntitySchema) transformations.Env {
	actor := b.actor
	if fromCtx, ok := syncctx.ActorFromContext(ctx); ok {
		actor = fromCtx
	}
	return transformations.Env{Records: b.records, Actor: actor, Schema: es}
}

func (b *Builder) mapRecord(ctx context.Context, env transformations.Env, es domain.EntitySchema, mappings []domain.ReverseMapping, record domain.Record, parent bool) (map[string]any, error) {
	keep := func(key string, value any) bool {
		if !domain.IsBlank(value) {
			return true
		}
		return parent && es.AlwaysIncludes(key)
	}

	out := map[string]any{}
	for _, mapping := range mappings {
		value := record.Get(mapping.Field)

		if mapping.Transformer != "" {
			transformer, err := b.transformers.Transformer(mapping.Transformer)
			if err != nil {
				return nil, err
			}
			reversed, err := transformer.Reverse(ctx, env, value, record)
			if err != nil {
				return nil, fmt.Errorf("reverse %s (%s): %w", mapping.Transformer, mapping.Key, err)
			}
			if fanned, isMap := reversed.(map[string]any); isMap {
				for key, item := range fanned {
					if keep(key, item) {
						out[key] = item
					}
				}
				continue
			}
			value = reversed
		}

		if keep(mapping.Key, value) {
			out[mapping.Key] = value
		}
	}
	return out, nil
}

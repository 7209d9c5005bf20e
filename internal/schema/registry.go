package schema

import (
	"fmt"
	"strings"

	"github.com/rpattn/entitysync/internal/domain"
)

// Registry resolves entity schemas by name, collection and external table. It is
// built once at startup and only read afterwards.
type Registry struct {
	order        []string
	schemas      map[string]domain.EntitySchema
	byCollection map[string]string
	byTable      map[string]string
}

// NewRegistry indexes the given schemas. Names, collections and tables must be unique.
func NewRegistry(schemas ...domain.EntitySchema) (*Registry, error) {
	r := &Registry{
		schemas:      make(map[string]domain.EntitySchema, len(schemas)),
		byCollection: make(map[string]string, len(schemas)),
		byTable:      make(map[string]string, len(schemas)),
	}
	for _, es := range schemas {
		name := strings.TrimSpace(es.Name)
		if name == "" {
			return nil, fmt.Errorf("schema without name for collection %q", es.Collection)
		}
		if _, exists := r.schemas[name]; exists {
			return nil, fmt.Errorf("schema %q declared twice", name)
		}
		if owner, exists := r.byCollection[es.Collection]; exists {
			return nil, fmt.Errorf("collection %q already owned by schema %q", es.Collection, owner)
		}
		if es.ExternalTable != "" {
			if owner, exists := r.byTable[es.ExternalTable]; exists {
				return nil, fmt.Errorf("table %q already owned by schema %q", es.ExternalTable, owner)
			}
			r.byTable[es.ExternalTable] = name
		}
		r.schemas[name] = es
		r.byCollection[es.Collection] = name
		r.order = append(r.order, name)
	}
	return r, nil
}

// Get returns the schema of an entity type.
func (r *Registry) Get(entityType string) (domain.EntitySchema, error) {
	es, ok := r.schemas[entityType]
	if !ok {
		return domain.EntitySchema{}, fmt.Errorf("%w: %s", domain.ErrUnknownEntity, entityType)
	}
	return es, nil
}

// List returns every schema in declaration order.
func (r *Registry) List() []domain.EntitySchema {
	out := make([]domain.EntitySchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.schemas[name])
	}
	return out
}

// ByCollection returns the schema that owns a store collection.
func (r *Registry) ByCollection(collection string) (domain.EntitySchema, bool) {
	name, ok := r.byCollection[collection]
	if !ok {
		return domain.EntitySchema{}, false
	}
	return r.schemas[name], true
}

// ByTable maps an external table name to its entity type.
func (r *Registry) ByTable(table string) (string, error) {
	name, ok := r.byTable[strings.TrimSpace(table)]
	if !ok {
		return "", fmt.Errorf("%w: tabla %q sin entidad configurada", domain.ErrUnknownEntity, table)
	}
	return name, nil
}

// DetectByKey infers the entity type from the top-level keys of a message.
func (r *Registry) DetectByKey(message map[string]any) (string, bool) {
	for _, name := range r.order {
		for _, key := range r.schemas[name].DetectionKeys {
			if _, present := message[key]; present {
				return name, true
			}
		}
	}
	return "", false
}

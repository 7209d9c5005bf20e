package upsert

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/repository"
	"github.com/rpattn/entitysync/internal/syncctx"
	"github.com/rpattn/entitysync/internal/transformations"
)

const (
	messageUnchanged = "Sin cambios"
	messageSynced    = "Sincronización completada"
)

// ComponentSyncer stores the component list of a composite record.
type ComponentSyncer interface {
	SyncComponents(ctx context.Context, recordID int64, list domain.ComponentList) (bool, error)
}

type bomSyncer struct {
	records repository.RecordRepository
}

func (s bomSyncer) SyncComponents(ctx context.Context, recordID int64, list domain.ComponentList) (bool, error) {
	return transformations.SyncComponents(ctx, s.records, recordID, list)
}

// Engine writes value sets to the record store only when something changed.
type Engine struct {
	records    repository.RecordRepository
	components ComponentSyncer
}

// NewEngine creates an engine. Component lists are stored as bills of materials.
func NewEngine(records repository.RecordRepository) *Engine {
	return &Engine{records: records, components: bomSyncer{records: records}}
}

// WithComponentSyncer returns a copy of the engine using syncer for component lists.
func (e *Engine) WithComponentSyncer(syncer ComponentSyncer) *Engine {
	clone := *e
	clone.components = syncer
	return &clone
}

// Upsert stores the parent, its component list and its children. Every write is
// tagged as coming from the external system.
func (e *Engine) Upsert(ctx context.Context, es domain.EntitySchema, vs domain.ValueSet) (domain.UpsertResult, error) {
	ctx = syncctx.WithExternalOrigin(ctx)

	result, err := e.upsertOne(ctx, es, vs.Parent)
	if err != nil {
		return domain.UpsertResult{}, err
	}

	if vs.Components != nil {
		changed, err := e.components.SyncComponents(ctx, result.Record.ID, *vs.Components)
		if err != nil {
			return domain.UpsertResult{}, fmt.Errorf("failed to sync components of %s %d: %w", es.Name, result.Record.ID, err)
		}
		if changed {
			log.Printf("[UPSERT] %s %d: components updated (%d lines)", es.Name, result.Record.ID, len(vs.Components.Lines))
			if result.Outcome == domain.OutcomeUnchanged {
				result.Outcome = domain.OutcomeUpdated
			}
		}
	}

	if parentField, ok := es.ParentField(); ok {
		for index, values := range vs.Children {
			child := values.Clone()
			child[parentField] = result.Record.ID
			childResult, err := e.upsertOne(ctx, es, child, domain.Eq(parentField, result.Record.ID))
			if err != nil {
				log.Printf("[UPSERT] WARN: child %d of %s %d failed: %v", index, es.Name, result.Record.ID, err)
				continue
			}
			result.Children = append(result.Children, childResult)
		}
	}

	result.Message = messageUnchanged
	if result.Changed() {
		result.Message = messageSynced
	}
	return result, nil
}

// upsertOne finds the record by its identifiers plus scope. Children are scoped
// to their parent so they can never resolve to it.
func (e *Engine) upsertOne(ctx context.Context, es domain.EntitySchema, incoming domain.Values, scope ...domain.Criterion) (domain.UpsertResult, error) {
	values := storable(incoming)

	criteria := make([]domain.Criterion, 0, len(es.IDFields)+len(scope))
	for _, field := range es.IDFields {
		criteria = append(criteria, domain.Eq(field, values[field]))
	}
	criteria = append(criteria, scope...)
	found, err := e.records.Search(ctx, es.Collection, criteria, domain.SearchOptions{IncludeInactive: true, Limit: 1})
	if err != nil {
		return domain.UpsertResult{}, fmt.Errorf("failed to look up %s: %w", es.Name, err)
	}

	if len(found) == 0 {
		created, err := e.records.Create(ctx, es.Collection, values)
		if err != nil {
			return domain.UpsertResult{}, fmt.Errorf("failed to create %s: %w", es.Name, err)
		}
		log.Printf("[UPSERT] created %s %d in %s", es.Name, created.ID, es.Collection)
		return domain.UpsertResult{Outcome: domain.OutcomeCreated, Record: created, Message: messageSynced}, nil
	}

	existing := found[0]
	changes := domain.DiffValues(es.FieldKinds, existing.Values, values)
	if len(changes) == 0 {
		log.Printf("[UPSERT] %s %d unchanged, skipping write", es.Name, existing.ID)
		return domain.UpsertResult{Outcome: domain.OutcomeUnchanged, Record: existing, Message: messageUnchanged}, nil
	}
	for _, change := range changes {
		sanitized := domain.SanitizeForLog(domain.Values{change.Field: change.Previous, "next": change.Next})
		log.Printf("[UPSERT] %s %d: %s %v -> %v", es.Name, existing.ID, change.Field, sanitized[change.Field], sanitized["next"])
	}

	update := values.Clone()
	if parentField, ok := es.ParentField(); ok {
		if parentID, isID := domain.AsInt64(update[parentField]); isID && parentID == existing.ID {
			log.Printf("[UPSERT] WARN: %s %d cannot be its own parent, dropping %s", es.Name, existing.ID, parentField)
			delete(update, parentField)
		}
	}
	for _, field := range es.IDFields {
		if _, present := update[field]; !present {
			continue
		}
		kind, _ := es.KindOf(field)
		if domain.ValuesEqual(kind, field, existing.Get(field), update[field]) {
			delete(update, field)
		}
	}

	updated, err := e.records.Update(ctx, es.Collection, existing.ID, update)
	if err != nil {
		return domain.UpsertResult{}, fmt.Errorf("failed to update %s %d: %w", es.Name, existing.ID, err)
	}
	return domain.UpsertResult{Outcome: domain.OutcomeUpdated, Record: updated, Message: messageSynced}, nil
}

// storable drops engine-internal keys that must never reach the store.
func storable(values domain.Values) domain.Values {
	out := make(domain.Values, len(values))
	for key, value := range values {
		if strings.HasPrefix(key, "_") {
			continue
		}
		out[key] = value
	}
	return out
}

package publishing

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/repository"
	"github.com/rpattn/entitysync/internal/syncctx"
)

// DefaultBatchSize caps the records published per batch.
const DefaultBatchSize = 50

// Schemas finds the sync schema of a collection.
type Schemas interface {
	ByCollection(collection string) (domain.EntitySchema, bool)
}

// RecordPublisher sends one record out.
type RecordPublisher interface {
	PublishRecord(ctx context.Context, es domain.EntitySchema, record domain.Record) error
}

// Controller is a RecordRepository that publishes organic mutations of
// bidirectional collections after they are written. Reads and deletes go
// straight to the wrapped store.
type Controller struct {
	repository.RecordRepository
	schemas   Schemas
	publisher RecordPublisher
	batchSize int
}

func NewController(base repository.RecordRepository, schemas Schemas, publisher RecordPublisher, batchSize int) *Controller {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Controller{RecordRepository: base, schemas: schemas, publisher: publisher, batchSize: batchSize}
}

type mutation struct {
	record  domain.Record
	written domain.Values
	before  domain.Values
}

// Create writes a record and publishes it when eligible.
func (c *Controller) Create(ctx context.Context, collection string, values domain.Values) (domain.Record, error) {
	records, err := c.CreateMany(ctx, collection, []domain.Values{values})
	if err != nil {
		return domain.Record{}, err
	}
	return records[0], nil
}

// CreateMany writes several records and publishes the eligible ones in batches.
func (c *Controller) CreateMany(ctx context.Context, collection string, batch []domain.Values) ([]domain.Record, error) {
	es, watched := c.watch(ctx, collection)

	created := make([]domain.Record, 0, len(batch))
	mutations := make([]mutation, 0, len(batch))
	for _, values := range batch {
		record, err := c.RecordRepository.Create(ctx, collection, values)
		if err != nil {
			return created, err
		}
		created = append(created, record)
		mutations = append(mutations, mutation{record: record, written: values, before: domain.Values{}})
	}

	if watched {
		c.publish(ctx, es, mutations)
	}
	return created, nil
}

// Update merges values into a record and publishes it when eligible.
func (c *Controller) Update(ctx context.Context, collection string, id int64, values domain.Values) (domain.Record, error) {
	records, err := c.Write(ctx, collection, []int64{id}, values)
	if err != nil {
		return domain.Record{}, err
	}
	return records[0], nil
}

// Write applies the same values to every id. The diff baseline is each record's
// state before the write, limited to the written fields.
func (c *Controller) Write(ctx context.Context, collection string, ids []int64, values domain.Values) ([]domain.Record, error) {
	es, watched := c.watch(ctx, collection)

	snapshots := map[int64]domain.Values{}
	if watched {
		current, err := c.RecordRepository.GetByIDs(ctx, collection, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot %s before write: %w", collection, err)
		}
		for _, record := range current {
			before := domain.Values{}
			for field := range values {
				if record.Values.Has(field) {
					before[field] = record.Values[field]
				}
			}
			snapshots[record.ID] = before
		}
	}

	updated := make([]domain.Record, 0, len(ids))
	mutations := make([]mutation, 0, len(ids))
	for _, id := range ids {
		record, err := c.RecordRepository.Update(ctx, collection, id, values)
		if err != nil {
			return updated, err
		}
		updated = append(updated, record)
		mutations = append(mutations, mutation{record: record, written: values, before: snapshots[id]})
	}

	if watched {
		c.publish(ctx, es, mutations)
	}
	return updated, nil
}

// watch reports whether writes to collection made with ctx must be published.
func (c *Controller) watch(ctx context.Context, collection string) (domain.EntitySchema, bool) {
	es, ok := c.schemas.ByCollection(collection)
	if !ok || !es.Bidirectional {
		return domain.EntitySchema{}, false
	}
	if syncctx.SkipPublish(ctx) {
		return domain.EntitySchema{}, false
	}
	return es, true
}

func (c *Controller) publish(ctx context.Context, es domain.EntitySchema, mutations []mutation) {
	seen := map[int64]bool{}
	total := len(mutations)
	if total > c.batchSize {
		log.Printf("[PUBLISH] %d %s records in %d batches", total, es.Name, (total-1)/c.batchSize+1)
	}
	for start := 0; start < total; start += c.batchSize {
		end := start + c.batchSize
		if end > total {
			end = total
		}
		c.publishBatch(ctx, es, mutations[start:end], seen)
	}
}

func (c *Controller) publishBatch(ctx context.Context, es domain.EntitySchema, batch []mutation, seen map[int64]bool) {
	parentField, hierarchical := es.ParentField()

	var targets []domain.Record
	var parentIDs []int64
	order := []int64{}
	for _, m := range batch {
		if !changed(es, m) {
			continue
		}
		if hierarchical {
			if parentID, ok := domain.AsInt64(m.record.Get(parentField)); ok && parentID != 0 && parentID != m.record.ID {
				parentIDs = append(parentIDs, parentID)
				order = append(order, parentID)
				continue
			}
		}
		targets = append(targets, m.record)
		order = append(order, m.record.ID)
	}

	resolved := make(map[int64]domain.Record, len(targets)+len(parentIDs))
	for _, record := range targets {
		resolved[record.ID] = record
	}
	if len(parentIDs) > 0 {
		parents, errs := loadParents(ctx, newParentLoader(c.RecordRepository, es.Collection, c.batchSize), uniqueIDs(parentIDs))
		for _, err := range errs {
			log.Printf("[PUBLISH] ERROR: failed to load %s parent: %v", es.Name, err)
		}
		for id, parent := range parents {
			resolved[id] = parent
		}
	}

	for _, id := range order {
		if seen[id] {
			continue
		}
		seen[id] = true

		record, ok := resolved[id]
		if !ok {
			log.Printf("[PUBLISH] WARN: %s %d not found, skipping", es.Name, id)
			continue
		}
		if missing := missingIdentifiers(es, record); len(missing) > 0 {
			log.Printf("[PUBLISH] %s %d skipped, missing identifiers: %s", es.Name, id, strings.Join(missing, ", "))
			continue
		}
		if err := c.publisher.PublishRecord(ctx, es, record); err != nil {
			log.Printf("[PUBLISH] ERROR: failed to publish %s %d: %v", es.Name, id, err)
		}
	}
}

// changed reports whether any written field now differs from its snapshot.
func changed(es domain.EntitySchema, m mutation) bool {
	for field := range m.written {
		if strings.HasPrefix(field, "_") {
			continue
		}
		kind, _ := es.KindOf(field)
		if !domain.ValuesEqual(kind, field, m.before[field], m.record.Get(field)) {
			return true
		}
	}
	return false
}

func missingIdentifiers(es domain.EntitySchema, record domain.Record) []string {
	var missing []string
	for _, field := range es.EffectivePublishIDFields() {
		if domain.IsBlank(record.Get(field)) {
			missing = append(missing, field)
		}
	}
	return missing
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

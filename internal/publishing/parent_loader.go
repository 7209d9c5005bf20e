package publishing

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rpattn/entitysync/internal/domain"
	"github.com/rpattn/entitysync/internal/repository"

	"github.com/graph-gophers/dataloader"
)

// newParentLoader batches parent lookups of one collection into a single
// GetByIDs call. Missing parents resolve to a nil record.
func newParentLoader(records repository.RecordRepository, collection string, capacity int) *dataloader.Loader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))
		ids := make([]int64, len(keys))
		valid := make([]int64, 0, len(keys))
		for i, k := range keys {
			id, err := strconv.ParseInt(k.String(), 10, 64)
			if err != nil {
				results[i] = &dataloader.Result{Error: fmt.Errorf("invalid record id %q: %w", k.String(), err)}
				continue
			}
			ids[i] = id
			valid = append(valid, id)
		}
		if len(valid) == 0 {
			return results
		}

		found, err := records.GetByIDs(ctx, collection, valid)
		if err != nil {
			for i := range results {
				if results[i] == nil {
					results[i] = &dataloader.Result{Error: err}
				}
			}
			return results
		}

		byID := make(map[int64]domain.Record, len(found))
		for _, record := range found {
			byID[record.ID] = record
		}

		for i, id := range ids {
			if results[i] != nil {
				continue
			}
			if record, ok := byID[id]; ok {
				results[i] = &dataloader.Result{Data: &record}
			} else {
				results[i] = &dataloader.Result{Data: (*domain.Record)(nil)}
			}
		}
		return results
	}

	return dataloader.NewBatchedLoader(batchFn,
		dataloader.WithWait(time.Millisecond),
		dataloader.WithBatchCapacity(capacity))
}

// loadParents resolves every id through loader. Ids that fail to load or do not
// exist are left out of the result.
func loadParents(ctx context.Context, loader *dataloader.Loader, ids []int64) (map[int64]domain.Record, []error) {
	thunks := make(map[int64]dataloader.Thunk, len(ids))
	for _, id := range ids {
		thunks[id] = loader.Load(ctx, dataloader.StringKey(strconv.FormatInt(id, 10)))
	}

	parents := make(map[int64]domain.Record, len(ids))
	var errs []error
	for id, thunk := range thunks {
		data, err := thunk()
		if err != nil {
			errs = append(errs, fmt.Errorf("parent %d: %w", id, err))
			continue
		}
		if record, ok := data.(*domain.Record); ok && record != nil {
			parents[id] = *record
		}
	}
	return parents, errs
}

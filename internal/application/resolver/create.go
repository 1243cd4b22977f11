package resolver

import (
	"context"

	"github.com/turtacn/rid-registry/internal/infrastructure/monitoring/logging"
	apperrors "github.com/turtacn/rid-registry/pkg/errors"
)

// creation describes how to insert one entity type.
type creation[T comparable] struct {
	kind     string
	store    entityStore[T]
	base     func(T) string
	assign   func(item T, slug string, key int64)
	existing func(ctx context.Context, item T) (T, error)
	describe func(T) string
}

// createAll inserts items: slugs for the whole batch up front, one bulk
// insert, and on failure one insert per item with bounded slug retries.
// The result is aligned with items; failed items are left as the zero value.
// Only storage errors other than conflicts are returned.
func createAll[T comparable](ctx context.Context, r *Resolver, c creation[T], items []T) ([]T, error) {
	var zero T
	results := make([]T, len(items))
	if len(items) == 0 {
		return results, nil
	}

	bases := make([]string, len(items))
	for i, item := range items {
		bases[i] = c.base(item)
	}
	taken, err := c.store.TakenSlugs(ctx, uniqueStrings(bases))
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeUnknown, "reading %s slugs", c.kind)
	}
	slugs := allocateSlugs(bases, taken)

	if r.opts.Preview {
		for i, item := range items {
			c.assign(item, slugs[i], 0)
			results[i] = item
		}
		return results, nil
	}

	keys, err := c.store.NextKeys(ctx, len(items))
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeUnknown, "reserving %s keys", c.kind)
	}
	for i, item := range items {
		c.assign(item, slugs[i], keys[i])
	}

	err = c.store.InsertBatch(ctx, items)
	if err == nil {
		copy(results, items)
		return results, nil
	}
	r.logger.Warn("bulk insert failed, inserting one by one",
		logging.String("kind", c.kind), logging.Int("size", len(items)), logging.Err(err))

	for i, item := range items {
		created, err := insertWithRetry(ctx, r, c, item, bases[i])
		if err != nil {
			if apperrors.IsCode(err, apperrors.CodeSlugExhausted) {
				r.stats.CreateFailures++
				r.logger.Error("entity creation failed",
					logging.String("kind", c.kind), logging.String("name", c.describe(item)), logging.Err(err))
				results[i] = zero
				continue
			}
			return nil, err
		}
		results[i] = created
	}
	return results, nil
}

// insertWithRetry inserts one item, recomputing its slug and key after each
// conflict.  An entity created meanwhile under the same identity wins.
func insertWithRetry[T comparable](ctx context.Context, r *Resolver, c creation[T], item T, base string) (T, error) {
	var zero T
	for attempt := 1; attempt <= r.opts.SlugRetries; attempt++ {
		err := c.store.Insert(ctx, item)
		if err == nil {
			return item, nil
		}
		if !apperrors.IsConflict(err) {
			return zero, apperrors.Wrapf(err, apperrors.CodeUnknown, "inserting %s", c.kind)
		}

		found, lookupErr := c.existing(ctx, item)
		if lookupErr != nil {
			return zero, apperrors.Wrapf(lookupErr, apperrors.CodeUnknown, "re-reading %s", c.kind)
		}
		if found != zero {
			return found, nil
		}

		taken, err := c.store.TakenSlugs(ctx, []string{base})
		if err != nil {
			return zero, apperrors.Wrapf(err, apperrors.CodeUnknown, "reading %s slugs", c.kind)
		}
		keys, err := c.store.NextKeys(ctx, 1)
		if err != nil {
			return zero, apperrors.Wrapf(err, apperrors.CodeUnknown, "reserving %s key", c.kind)
		}
		c.assign(item, nextFreeSlug(base, taken), keys[0])
		r.logger.Debug("retrying entity insert",
			logging.String("kind", c.kind), logging.Int("attempt", attempt))
	}
	return zero, apperrors.Newf(apperrors.CodeSlugExhausted, "%s slug retries exhausted", c.kind).
		WithDetail(c.describe(item))
}

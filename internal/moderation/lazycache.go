package moderation

import (
	"context"
	"errors"
	"time"

	"github.com/redditmod/modbot/internal/models"
	"github.com/redditmod/modbot/internal/reddit"
)

// LazyCache memoizes a time-descending source as it is read. Lookups walk the
// cached prefix first and only pull from the source once it is exhausted.
type LazyCache[T any] struct {
	source    reddit.Iterator[T]
	created   func(T) time.Time
	entries   []T
	exhausted bool
}

func NewLazyCache[T any](source reddit.Iterator[T], created func(T) time.Time) *LazyCache[T] {
	return &LazyCache[T]{source: source, created: created}
}

// Find returns the first entry accepted by match. The search ends with a miss
// at the first entry created before since, because everything after it is
// older still.
func (c *LazyCache[T]) Find(ctx context.Context, since time.Time, match func(T) bool) (T, bool, error) {
	var zero T

	for _, e := range c.entries {
		if c.created(e).Before(since) {
			return zero, false, nil
		}
		if match(e) {
			return e, true, nil
		}
	}

	for !c.exhausted {
		e, err := c.source.Next(ctx)
		if errors.Is(err, models.ErrEndOfStream) {
			c.exhausted = true
			break
		}
		if err != nil {
			return zero, false, err
		}

		c.entries = append(c.entries, e)
		if c.created(e).Before(since) {
			return zero, false, nil
		}
		if match(e) {
			return e, true, nil
		}
	}

	return zero, false, nil
}

// Len is the number of entries pulled from the source so far
func (c *LazyCache[T]) Len() int {
	return len(c.entries)
}

// PendingQueue answers modqueue membership for one community during one run
type PendingQueue struct {
	cache *LazyCache[*models.Item]
}

func NewPendingQueue(source reddit.Iterator[*models.Item]) *PendingQueue {
	return &PendingQueue{
		cache: NewLazyCache(source, func(i *models.Item) time.Time { return i.CreatedAt }),
	}
}

// IsPending reports whether item is still awaiting moderation
func (p *PendingQueue) IsPending(ctx context.Context, item *models.Item) (bool, error) {
	_, found, err := p.cache.Find(ctx, item.CreatedAt, func(queued *models.Item) bool {
		return queued.Kind == item.Kind && queued.ID == item.ID
	})
	return found, err
}

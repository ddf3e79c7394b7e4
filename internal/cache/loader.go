package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// LoadFunc computes the value for a key on a cache miss. The context it
// receives is not cancelled when an individual caller gives up.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Loader fronts an LRUCache so that concurrent misses for the same key run
// the load function once and share its result. Errors are not cached.
type Loader[T any] struct {
	cache *LRUCache[T]
	group singleflight.Group

	// generation is bumped by Forget; loads started under an older
	// generation do not store their result. mu orders the bump and delete
	// against the check and store.
	mu         sync.Mutex
	generation atomic.Uint64
}

// NewLoader wraps c.
func NewLoader[T any](c *LRUCache[T]) *Loader[T] {
	return &Loader[T]{cache: c}
}

// Get returns the cached value for key, loading it on a miss. hit reports
// whether the value came from the cache. If ctx ends before the shared load
// finishes, Get returns ctx.Err() and the load keeps running for the others.
func (l *Loader[T]) Get(ctx context.Context, key string, load LoadFunc[T]) (value T, hit bool, err error) {
	if v, ok := l.cache.Get(key); ok {
		return v, true, nil
	}

	gen := l.generation.Load()
	loadCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		// Another caller may have filled the entry while we waited.
		if v, ok := l.cache.Get(key); ok {
			return v, nil
		}
		v, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		if l.generation.Load() == gen {
			l.cache.Set(key, v)
		}
		l.mu.Unlock()
		return v, nil
	})

	var zero T
	select {
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		return res.Val.(T), false, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

// Forget drops matching keys from the cache. Loads already in flight finish
// for their callers but no longer store their result.
func (l *Loader[T]) Forget(match func(key string) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.generation.Add(1)
	return l.cache.DeleteFunc(match)
}

// Cache exposes the underlying cache, e.g. for registration with a Manager.
func (l *Loader[T]) Cache() *LRUCache[T] {
	return l.cache
}

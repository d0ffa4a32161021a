// Package cache provides a bounded LRU result cache with single-flight
// computation: concurrent callers asking for the same key share one
// computation instead of racing duplicate work.
package cache

import (
	"container/list"
	"context"
	"sync"
)

// flight is an in-progress computation. Waiters block on done; val and
// err are published before done closes.
type flight[V any] struct {
	done chan struct{}
	val  V
	err  error
}

type entry[V any] struct {
	key string
	val V
}

// Cache maps string keys to values of type V, keeping at most capacity
// completed entries in least-recently-used order. In-progress computations
// are tracked separately and never occupy cache slots, so eviction only
// ever removes completed results.
type Cache[V any] struct {
	mu      sync.Mutex
	cap     int
	entries map[string]*list.Element
	order   *list.List // front is most recently used
	flights map[string]*flight[V]
	onEvict func(key string, val V)
}

// New returns a cache bounded to capacity entries. A capacity of zero or
// less disables storage entirely while keeping single-flight semantics.
// onEvict, if non-nil, is called outside the cache lock for every entry
// displaced by a newer one.
func New[V any](capacity int, onEvict func(key string, val V)) *Cache[V] {
	return &Cache[V]{
		cap:     capacity,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		flights: make(map[string]*flight[V]),
		onEvict: onEvict,
	}
}

// Do returns the value for key, computing it at most once across
// concurrent callers. compute reports the value, whether it is complete,
// and an error; incomplete values are handed to every caller of this
// flight but never stored. hit reports whether the value came from a
// stored entry or another caller's computation rather than this caller's
// own compute call.
//
// A caller waiting on someone else's computation honors its own context;
// the computation itself is cancelled only through the owning caller's
// context, which compute receives.
func (c *Cache[V]) Do(ctx context.Context, key string, compute func(context.Context) (V, bool, error)) (V, bool, error) {
	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		val := el.Value.(*entry[V]).val
		c.mu.Unlock()
		return val, true, nil
	}
	if f, ok := c.flights[key]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.val, true, f.err
		case <-ctx.Done():
			var zero V
			return zero, false, ctx.Err()
		}
	}
	f := &flight[V]{done: make(chan struct{})}
	c.flights[key] = f
	c.mu.Unlock()

	val, complete, err := compute(ctx)

	var evicted []entry[V]
	c.mu.Lock()
	delete(c.flights, key)
	if err == nil && complete {
		evicted = c.store(key, val)
	}
	c.mu.Unlock()

	f.val, f.err = val, err
	close(f.done)

	for _, ev := range evicted {
		c.onEvict(ev.key, ev.val)
	}
	return val, false, err
}

// Get returns the stored value for key, promoting it to most recently
// used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*entry[V]).val, true
}

// Len reports the number of completed entries currently stored.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// store holds c.mu. It returns the entries displaced to make room.
func (c *Cache[V]) store(key string, val V) []entry[V] {
	if c.cap <= 0 {
		return nil
	}
	if el, ok := c.entries[key]; ok {
		el.Value.(*entry[V]).val = val
		c.order.MoveToFront(el)
		return nil
	}
	var evicted []entry[V]
	for c.order.Len() >= c.cap {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		ent := oldest.Value.(*entry[V])
		c.order.Remove(oldest)
		delete(c.entries, ent.key)
		if c.onEvict != nil {
			evicted = append(evicted, *ent)
		}
	}
	c.entries[key] = c.order.PushFront(&entry[V]{key: key, val: val})
	return evicted
}

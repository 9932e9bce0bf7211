// Package expiring provides a size-capped map whose entries expire a fixed
// time after insertion. Expiry is lazy: stale entries stay visible until
// the owner calls Expire.
package expiring

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Key identifies a user inside a chat
type Key struct {
	UserID int64
	ChatID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%d@%d", k.UserID, k.ChatID)
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Registry is not safe for concurrent use. It is owned by a single event loop.
type Registry[V any] struct {
	ttl   time.Duration
	items *simplelru.LRU[Key, *entry[V]]
	now   func() time.Time
}

// Option configures a Registry
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// New creates a registry holding at most maxSize entries for ttl each
func New[V any](ttl time.Duration, maxSize int, opts ...Option) (*Registry[V], error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %v", ttl)
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	// Reads go through Peek, so the LRU order never changes after insertion
	// and the "least recently used" entry is the oldest inserted one.
	items, err := simplelru.NewLRU[Key, *entry[V]](maxSize, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	return &Registry[V]{ttl: ttl, items: items, now: o.now}, nil
}

// TTL returns the lifetime given to new entries
func (r *Registry[V]) TTL() time.Duration {
	return r.ttl
}

// Set inserts or overwrites key. An overwrite counts as a fresh insertion.
func (r *Registry[V]) Set(key Key, value V) {
	r.items.Remove(key)
	r.items.Add(key, &entry[V]{value: value, expiresAt: r.now().Add(r.ttl)})
}

// Get returns the stored value without checking expiry
func (r *Registry[V]) Get(key Key) (V, bool) {
	e, ok := r.items.Peek(key)
	if !ok {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Update replaces the value of an existing key, keeping its expiry and
// eviction position. It reports whether the key was present.
func (r *Registry[V]) Update(key Key, fn func(V) V) bool {
	e, ok := r.items.Peek(key)
	if !ok {
		return false
	}
	e.value = fn(e.value)
	return true
}

// Delete removes key; a missing key is not an error
func (r *Registry[V]) Delete(key Key) {
	r.items.Remove(key)
}

func (r *Registry[V]) Contains(key Key) bool {
	return r.items.Contains(key)
}

// Pop returns and removes the value for key
func (r *Registry[V]) Pop(key Key) (V, bool) {
	v, ok := r.Get(key)
	if ok {
		r.items.Remove(key)
	}
	return v, ok
}

// Expire drops every entry whose lifetime has passed and returns how many
// were dropped
func (r *Registry[V]) Expire() int {
	now := r.now()
	removed := 0
	for _, key := range r.items.Keys() {
		e, ok := r.items.Peek(key)
		if ok && !now.Before(e.expiresAt) {
			r.items.Remove(key)
			removed++
		}
	}
	return removed
}

func (r *Registry[V]) Len() int {
	return r.items.Len()
}

package utils

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is a size bounded cache with an optional eviction callback. It
// counts hits and misses so callers can report cache efficiency.
type LRU[K comparable, V any] struct {
	name  string
	cache *lru.Cache[K, V]

	hits int64
	miss int64
}

func NewLRU[K comparable, V any](
	size int, evict func(key K, value V), name string) (*LRU[K, V], error) {
	if size <= 0 {
		size = 1
	}

	var cache *lru.Cache[K, V]
	var err error
	if evict != nil {
		cache, err = lru.NewWithEvict[K, V](size, evict)
	} else {
		cache, err = lru.New[K, V](size)
	}
	if err != nil {
		return nil, err
	}

	return &LRU[K, V]{name: name, cache: cache}, nil
}

func (self *LRU[K, V]) Get(key K) (V, bool) {
	value, ok := self.cache.Get(key)
	if ok {
		atomic.AddInt64(&self.hits, 1)
	} else {
		atomic.AddInt64(&self.miss, 1)
	}
	return value, ok
}

func (self *LRU[K, V]) Add(key K, value V) {
	self.cache.Add(key, value)
}

func (self *LRU[K, V]) Len() int {
	return self.cache.Len()
}

func (self *LRU[K, V]) Purge() {
	self.cache.Purge()
}

func (self *LRU[K, V]) Stats() (hits int64, miss int64) {
	return atomic.LoadInt64(&self.hits), atomic.LoadInt64(&self.miss)
}

func (self *LRU[K, V]) DebugString() string {
	hits, miss := self.Stats()
	return fmt.Sprintf("LRU %v: %d items, %d hits, %d misses",
		self.name, self.Len(), hits, miss)
}

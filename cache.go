package aasdk

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
)

// LRUCache is an interface for caching counterfactual account addresses.
// The implementation should be thread-safe.
type LRUCache interface {
	// Get retrieves the address from the cache.
	Get(key string) (common.Address, bool)

	// Set stores the address in the cache.
	// Returns true if an eviction occurred.
	Set(key string, value common.Address) bool

	Len() int
}

type lruCache struct {
	inner *lru.Cache
}

func NewLRUCache(maxSize int) LRUCache {
	cache, err := lru.New(maxSize)
	if err != nil {
		panic(fmt.Errorf("failed to create LRU cache: %w, maxSize: %d", err, maxSize))
	}
	return &lruCache{
		inner: cache,
	}
}

// Get implements LRUCache.
func (l *lruCache) Get(key string) (common.Address, bool) {
	value, ok := l.inner.Get(key)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := value.(common.Address)
	return addr, ok
}

// Set implements LRUCache.
func (l *lruCache) Set(key string, value common.Address) bool {
	return l.inner.Add(key, value)
}

// Len implements LRUCache.
func (l *lruCache) Len() int {
	return l.inner.Len()
}

var _ LRUCache = &lruCache{}

package aasdk

import (
	"fmt"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(2)
	a := common.HexToAddress("0x01")
	b := common.HexToAddress("0x02")
	c := common.HexToAddress("0x03")

	assert.False(t, cache.Set("a", a))
	assert.False(t, cache.Set("b", b))
	got, ok := cache.Get("a")
	assert.True(t, ok)
	assert.Equal(t, a, got)

	// "b" is now the least recently used entry.
	assert.True(t, cache.Set("c", c))
	_, ok = cache.Get("b")
	assert.False(t, ok)
	assert.Equal(t, 2, cache.Len())
}

func TestLRUCacheConcurrent(t *testing.T) {
	cache := NewLRUCache(64)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i)
			addr := common.BigToAddress(common.Big1)
			cache.Set(key, addr)
			got, ok := cache.Get(key)
			assert.True(t, ok)
			assert.Equal(t, addr, got)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 16, cache.Len())
}

func TestNewLRUCachePanicsOnInvalidSize(t *testing.T) {
	assert.Panics(t, func() { NewLRUCache(0) })
}

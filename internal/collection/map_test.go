package collection

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSyncMap(t *testing.T) {
	m := NewSyncMap[string, int]()
	m.Put("a", 1)
	m.Put("b", 2)
	assert.Equal(t, 2, m.Len())

	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	m.Delete("a")
	_, ok = m.Get("a")
	assert.False(t, ok)

	seen := map[string]int{}
	m.Range(func(key string, value int) bool {
		seen[key] = value
		return true
	})
	assert.Equal(t, map[string]int{"b": 2}, seen)
}

func TestSyncMapTake(t *testing.T) {
	m := NewSyncMap[string, int]()
	m.Put("k", 7)

	v, ok := m.Take("k")
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = m.Take("k")
	assert.False(t, ok)
}

func TestSyncMapTakeOnce(t *testing.T) {
	// Many goroutines racing on Take get the value exactly once.
	m := NewSyncMap[int, string]()
	for i := 0; i < 100; i++ {
		m.Put(i, "v")
	}
	var taken int64
	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if _, ok := m.Take(i); ok {
					atomic.AddInt64(&taken, 1)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(100), taken)
	assert.Equal(t, 0, m.Len())
}

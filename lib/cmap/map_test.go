package cmap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	m := NewMap[string, int]()

	_, ok := m.Get("a")
	assert.False(t, ok)

	m.Set("a", 1)
	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	v, loaded := m.GetOrSet("a", 2)
	assert.True(t, loaded)
	assert.Equal(t, 1, v)

	v, loaded = m.GetOrSet("b", 2)
	assert.False(t, loaded)
	assert.Equal(t, 2, v)
	assert.Equal(t, 2, m.Len())

	m.Delete("a")
	assert.Equal(t, 1, m.Len())
}

func TestMapConcurrentSet(t *testing.T) {
	m := NewMap[int, int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Set(i, i*i)
		}(i)
	}
	wg.Wait()

	sum := 0
	m.Range(func(k, v int) bool {
		sum += v - k*k
		return true
	})
	assert.Equal(t, 50, m.Len())
	assert.Zero(t, sum)
}

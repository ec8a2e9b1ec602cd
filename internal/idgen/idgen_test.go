package idgen

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNext_StrictlyIncreasingAndDistinct(t *testing.T) {
	seen := make(map[uint64]bool)
	var prev uint64
	for i := 0; i < 1000; i++ {
		id := Next()
		assert.False(t, seen[id], "id %d reused", id)
		seen[id] = true
		assert.Greater(t, id, prev)
		prev = id
	}
}

func TestNext_ConcurrentCallersGetDistinctIDs(t *testing.T) {
	const n = 500
	ids := make([]uint64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i] = Next()
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, id := range ids {
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
}

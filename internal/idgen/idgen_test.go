package idgen

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Next_SameMillisecond(t *testing.T) {
	fixed := time.UnixMilli(1700000000000)
	g := NewWithClock(func() time.Time { return fixed })

	assert.Equal(t, int64(1700000000000), g.Next())
	assert.Equal(t, int64(1700000000001), g.Next())
	assert.Equal(t, int64(1700000000002), g.Next())
}

func TestGenerator_Next_ClockMovesBackwards(t *testing.T) {
	times := []time.Time{time.UnixMilli(2000), time.UnixMilli(1000)}
	i := 0
	g := NewWithClock(func() time.Time {
		tm := times[i]
		i++
		return tm
	})

	first := g.Next()
	second := g.Next()
	assert.Greater(t, second, first)
}

func TestGenerator_OrderNumber_Format(t *testing.T) {
	g := NewWithClock(func() time.Time { return time.UnixMilli(1234) })
	assert.Equal(t, "ORD-1234", g.OrderNumber())
	assert.True(t, strings.HasPrefix(g.OrderNumber(), OrderNumberPrefix))
}

func TestGenerator_Concurrent_Unique(t *testing.T) {
	g := New()
	const workers = 8
	const perWorker = 500

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				n := g.OrderNumber()
				mu.Lock()
				seen[n] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, workers*perWorker)
}

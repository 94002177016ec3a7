package services

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferenceGenerator_Format(t *testing.T) {
	fixed := time.Date(2025, 3, 7, 9, 5, 4, 123*int(time.Millisecond), time.UTC)
	gen := NewReferenceGeneratorWithClock(func() time.Time { return fixed })

	assert.Equal(t, "NUM_REF_FARMACIA_20414_20250307090504123", gen.Next("20414"))
}

func TestReferenceGenerator_MonotonicUnderFrozenClock(t *testing.T) {
	fixed := time.Date(2025, 3, 7, 9, 5, 4, 0, time.UTC)
	gen := NewReferenceGeneratorWithClock(func() time.Time { return fixed })

	first := gen.Next("20414")
	second := gen.Next("20414")

	assert.NotEqual(t, first, second)
	assert.Equal(t, "NUM_REF_FARMACIA_20414_20250307090504000", first)
	assert.Equal(t, "NUM_REF_FARMACIA_20414_20250307090504001", second)
}

func TestReferenceGenerator_ClockGoingBackwards(t *testing.T) {
	times := []time.Time{
		time.Date(2025, 3, 7, 9, 5, 4, 500*int(time.Millisecond), time.UTC),
		time.Date(2025, 3, 7, 9, 5, 4, 100*int(time.Millisecond), time.UTC),
	}
	i := 0
	gen := NewReferenceGeneratorWithClock(func() time.Time {
		t := times[i]
		i++
		return t
	})

	assert.Equal(t, "NUM_REF_FARMACIA_1_20250307090504500", gen.Next("1"))
	assert.Equal(t, "NUM_REF_FARMACIA_1_20250307090504501", gen.Next("1"))
}

func TestReferenceGenerator_ConcurrentUnique(t *testing.T) {
	gen := NewReferenceGenerator()

	const n = 200
	var mu sync.Mutex
	seen := make(map[string]struct{}, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ref := gen.Next("20414")
			mu.Lock()
			seen[ref] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	for ref := range seen {
		assert.True(t, strings.HasPrefix(ref, "NUM_REF_FARMACIA_20414_"))
	}
}

package scheduler

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultStore(t *testing.T) {
	store := NewResultStore()

	_, ok := store.Get("a")
	assert.False(t, ok)

	store.Set("a", []byte(`1`))
	got, ok := store.Get("a")
	require.True(t, ok)
	assert.Equal(t, []byte(`1`), got)

	store.Set("a", []byte(`2`))
	got, _ = store.Get("a")
	assert.Equal(t, []byte(`2`), got, "overwrite keeps the latest value")

	store.Set("b", []byte(`3`))
	assert.Equal(t, 2, store.Len())

	store.Clear()
	assert.Equal(t, 0, store.Len())
	_, ok = store.Get("a")
	assert.False(t, ok)
}

func TestResultStoreConcurrentWriters(t *testing.T) {
	store := NewResultStore()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Set(fmt.Sprintf("task_%d", i), []byte(`{}`))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 32, store.Len())
}

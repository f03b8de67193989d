package generation

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	k := newKeyedMutex()
	var a, b int
	counts := map[string]*int{"a": &a, "b": &b}
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			unlock := k.Lock(key)
			*counts[key]++
			unlock()
		}([]string{"a", "b"}[i%2])
	}
	wg.Wait()

	assert.Equal(t, 50, a)
	assert.Equal(t, 50, b)
	assert.Zero(t, k.size(), "idle keys are released")
}

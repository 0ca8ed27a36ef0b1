package keyed

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMutexes_SerializesPerKey(t *testing.T) {
	locks := New()
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Lock("k1")
			counter++
			locks.Unlock("k1")
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}

func TestMutexes_IndependentKeys(t *testing.T) {
	locks := New()
	locks.Lock("k1")

	done := make(chan struct{})
	go func() {
		locks.Lock("k2")
		locks.Unlock("k2")
		close(done)
	}()
	<-done
	locks.Unlock("k1")
}

func TestMutexes_UnlockUnknownPanics(t *testing.T) {
	locks := New()
	assert.Panics(t, func() { locks.Unlock("never-locked") })
}

func TestMutexes_Remove(t *testing.T) {
	locks := New()
	locks.Lock("k1")
	locks.Unlock("k1")
	locks.Remove("k1")
	// key is recreated lazily after removal
	locks.Lock("k1")
	locks.Unlock("k1")
}

package syncutil

import (
	"sync"
	"testing"
)

func TestShardedMutexSerializesSameKey(t *testing.T) {
	var sm ShardedMutex

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := sm.Lock("identity-abc")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("expected 100 increments, got %d", counter)
	}
}

func TestShardedMutexUnlockReleases(t *testing.T) {
	var sm ShardedMutex

	unlock := sm.Lock("key1")
	unlock()

	// Re-acquiring the same key must not deadlock.
	unlock = sm.Lock("key1")
	unlock()
}

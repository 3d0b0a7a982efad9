package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	var km KeyedMutex
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock(42)
			defer km.Unlock(42)
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	var km KeyedMutex

	km.Lock(1)
	defer km.Unlock(1)

	// a different key must not block
	done := make(chan struct{})
	go func() {
		km.Lock(2)
		km.Unlock(2)
		close(done)
	}()
	<-done
}

func TestKeyedMutexUnlockUnheldPanics(t *testing.T) {
	var km KeyedMutex
	assert.Panics(t, func() {
		km.Unlock(99)
	})
}

package application

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestImageLocks_SerialisesSameKey(t *testing.T) {
	locks := newImageLocks()

	unlock := locks.lock("a")

	acquired := make(chan struct{})
	released := make(chan struct{})
	go func() {
		release := locks.lock("a")
		close(acquired)
		release()
		close(released)
	}()

	// other keys are independent
	locks.lock("b")()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a locked key")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	<-acquired
	<-released

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks, "released keys are forgotten")
}

func TestImageLocks_Concurrent(t *testing.T) {
	locks := newImageLocks()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("shared")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

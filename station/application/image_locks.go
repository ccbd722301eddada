package application

import "sync"

// imageLocks serialises work on a single image key. The service holds the lock
// from storing a blob until the record referencing it is saved, and from the
// reference check until the record is deleted; the sweeper holds it while it
// decides on and removes a blob.
type imageLocks struct {
	mu    sync.Mutex
	locks map[string]*imageLock
}

type imageLock struct {
	mu      sync.Mutex
	holders int
}

func newImageLocks() *imageLocks {
	return &imageLocks{locks: make(map[string]*imageLock)}
}

// lock blocks until key is free and returns the matching unlock.
func (l *imageLocks) lock(key string) func() {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &imageLock{}
		l.locks[key] = entry
	}
	entry.holders++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.holders--
		if entry.holders == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

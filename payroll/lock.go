package payroll

import (
	"context"
	"sync"
)

// Locker serializes advancement per config id. Lock blocks until the lock is
// held or ctx is done; the returned func releases it.
type Locker interface {
	Lock(ctx context.Context, id ConfigID) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker. Entries are removed when the last
// holder or waiter releases them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[ConfigID]*keyedEntry
}

type keyedEntry struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[ConfigID]*keyedEntry)}
}

func (k *KeyedMutex) Lock(ctx context.Context, id ConfigID) (func(), error) {
	k.mu.Lock()
	e, ok := k.locks[id]
	if !ok {
		e = &keyedEntry{ch: make(chan struct{}, 1)}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(id, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(id, e)
		})
	}, nil
}

func (k *KeyedMutex) release(id ConfigID, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, id)
	}
}

// Held reports how many ids currently have a holder or waiter.
func (k *KeyedMutex) Held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

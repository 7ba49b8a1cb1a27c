package survey

import (
	"context"
	"sync"
)

// UnlockFunc releases a held lock
type UnlockFunc func()

// Locker serializes inbound event handling per participant. Two events for
// the same participant must never interleave between the status read and the
// raised signal.
type Locker interface {
	Lock(ctx context.Context, key string) (UnlockFunc, error)
}

// keyedMutex is the in-process Locker for single-node deployments
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() Locker {
	return &keyedMutex{
		locks: map[string]*keyedLock{},
	}
}

func (km *keyedMutex) Lock(ctx context.Context, key string) (UnlockFunc, error) {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &keyedLock{}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		km.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}, nil
}

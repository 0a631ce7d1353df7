// Package lock provides per-key mutual exclusion for loan payments, either
// within one process or across replicas through Redis.
package lock

import (
	"context"
	"sync"
)

// Locker grants exclusive access to a key until the returned unlock func is called.
// Lock blocks until the key is free or ctx is done.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Keyed is an in-process Locker. Idle keys are dropped from the map.
type Keyed struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyed returns an empty in-process locker.
func NewKeyed() *Keyed { return &Keyed{slots: make(map[string]*slot)} }

func (k *Keyed) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	sl, ok := k.slots[key]
	if !ok {
		sl = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = sl
	}
	sl.refs++
	k.mu.Unlock()

	select {
	case sl.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-sl.ch
				k.release(key, sl)
			})
		}, nil
	case <-ctx.Done():
		k.release(key, sl)
		return nil, ctx.Err()
	}
}

func (k *Keyed) release(key string, sl *slot) {
	k.mu.Lock()
	sl.refs--
	if sl.refs == 0 {
		delete(k.slots, key)
	}
	k.mu.Unlock()
}

// held reports how many keys currently have holders or waiters.
func (k *Keyed) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}

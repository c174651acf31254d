package access

import (
	"context"
	"sort"
	"sync"
)

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

// refMutex is a one-slot semaphore so a waiter can give up on ctx.
type refMutex struct {
	slot chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*refMutex{}}
}

// lock acquires every key in sorted order and returns the matching unlock.
// If ctx ends first, nothing stays held and ctx.Err() is returned.
func (k *keyedMutex) lock(ctx context.Context, keys ...string) (func(), error) {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	uniq := sorted[:0]
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		uniq = append(uniq, key)
	}

	held := make([]*refMutex, 0, len(uniq))
	for _, key := range uniq {
		m := k.ref(key)
		select {
		case m.slot <- struct{}{}:
			held = append(held, m)
		case <-ctx.Done():
			k.unref(key, m)
			k.release(uniq, held)
			return nil, ctx.Err()
		}
	}
	return func() { k.release(uniq, held) }, nil
}

func (k *keyedMutex) ref(key string) *refMutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m := k.locks[key]
	if m == nil {
		m = &refMutex{slot: make(chan struct{}, 1)}
		k.locks[key] = m
	}
	m.refs++
	return m
}

func (k *keyedMutex) unref(key string, m *refMutex) {
	k.mu.Lock()
	defer k.mu.Unlock()
	m.refs--
	if m.refs == 0 {
		delete(k.locks, key)
	}
}

func (k *keyedMutex) release(keys []string, held []*refMutex) {
	for i := len(held) - 1; i >= 0; i-- {
		<-held[i].slot
		k.unref(keys[i], held[i])
	}
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// keyLocks provides per-key mutual exclusion with bounded, ordered multi-key
// acquisition. Locks are plain buffered channels so acquisition can race a
// deadline; the map only grows, which is acceptable for a balance key space.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]chan struct{})}
}

func (k *keyLocks) lock(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.locks[key] = ch
	}
	return ch
}

// acquire takes exclusive holds on all keys in lexicographic order, waiting at
// most wait overall. On success it returns a release function. A wait-bound
// timeout releases anything already held and reports ErrContended; a caller
// that abandoned the request surfaces as its context error instead.
func (k *keyLocks) acquire(ctx context.Context, keys []string, wait time.Duration) (func(), error) {
	sorted := dedupeSorted(keys)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	held := make([]chan struct{}, 0, len(sorted))
	release := func() {
		// Release in reverse acquisition order.
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for _, key := range sorted {
		ch := k.lock(key)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-timer.C:
			release()
			return nil, ErrContended
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}

	return release, nil
}

func dedupeSorted(keys []string) []string {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	out := sorted[:0]
	for i, key := range sorted {
		if i > 0 && key == sorted[i-1] {
			continue
		}
		out = append(out, key)
	}
	return out
}

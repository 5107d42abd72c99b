package engine

import (
	"sort"
	"sync"
)

// keyedLocks hands out one mutex per record key. Keys are always acquired in
// sorted order so two callers with overlapping key sets cannot deadlock.
// An entry lives only while some caller holds or waits on it.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int // guarded by keyedLocks.mu
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*keyedLock)}
}

// acquire locks every key and returns a function that releases them.
func (k *keyedLocks) acquire(keys []string) func() {
	sorted := dedupeSorted(keys)

	held := make([]*keyedLock, 0, len(sorted))
	for _, key := range sorted {
		l := k.ref(key)
		l.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			k.unref(sorted[i])
		}
	}
}

func (k *keyedLocks) ref(key string) *keyedLock {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *keyedLocks) unref(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	l, ok := k.locks[key]
	if !ok {
		return
	}
	l.refs--
	if l.refs <= 0 {
		delete(k.locks, key)
	}
}

// size reports how many keys currently have a live entry.
func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func dedupeSorted(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	n := 0
	for i, key := range out {
		if i > 0 && key == out[n-1] {
			continue
		}
		out[n] = key
		n++
	}
	return out[:n]
}

func bankKey(id string) string       { return "bank:" + id }
func obligationKey(id string) string { return "obl:" + id }
func matchKey(id string) string      { return "match:" + id }

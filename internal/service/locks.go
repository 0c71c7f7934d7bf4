package service

import (
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// keyedLocks serialises work per key: technician timelines, or job ids while a job is
// being created.
type keyedLocks struct {
	m *xsync.Map[string, *sync.Mutex]
}

func newKeyedLocks() keyedLocks {
	return keyedLocks{m: xsync.NewMap[string, *sync.Mutex]()}
}

func (l keyedLocks) get(id string) *sync.Mutex {
	mu, _ := l.m.LoadOrStore(id, &sync.Mutex{})
	return mu
}

// lock acquires the given keys in order, so callers locking several keys never
// deadlock, and returns the matching unlock func.
// Empty ids are ignored.
func (l keyedLocks) lock(ids ...string) func() {
	uniq := make([]string, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		uniq = append(uniq, id)
	}
	sort.Strings(uniq)

	held := make([]*sync.Mutex, 0, len(uniq))
	for _, id := range uniq {
		mu := l.get(id)
		mu.Lock()
		held = append(held, mu)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

package mosaic

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// The high bit of the counter is the write flag, everything below it holds
// the read count.
const (
	lockWriteFlag uint32 = 1 << 31
	lockReadMask  uint32 = lockWriteFlag - 1
)

// readWriteCounter tracks concurrent access to one (component, table) pair.
// It never blocks: an incompatible acquisition is a bug in the caller and
// reported as such by the accessMap.
type readWriteCounter struct {
	state atomic.Uint32
}

func (c *readWriteCounter) acquireRead() bool {
	for {
		curr := c.state.Load()
		if curr&lockWriteFlag != 0 {
			return false
		}

		if c.state.CompareAndSwap(curr, curr+1) {
			return true
		}
	}
}

func (c *readWriteCounter) releaseRead() {
	for {
		curr := c.state.Load()
		if curr&lockReadMask == 0 {
			panic("read lock released without being held")
		}

		if c.state.CompareAndSwap(curr, curr-1) {
			return
		}
	}
}

func (c *readWriteCounter) acquireWrite() bool {
	return c.state.CompareAndSwap(0, lockWriteFlag)
}

func (c *readWriteCounter) releaseWrite() {
	if !c.state.CompareAndSwap(lockWriteFlag, 0) {
		panic("write lock released without being held")
	}
}

type lockKey struct {
	id    Entity
	table uint64
}

// accessMap is the opt-in aliasing detector: one readWriteCounter per
// (component-or-pair id, table) actually accessed by an iterator. Sparse
// components lock through their component record instead and never go
// through here.
type accessMap struct {
	// threaded guards the counters map itself; the counters stay atomic
	// either way so the single threaded path only skips the mutex.
	threaded bool
	disabled bool

	mu       sync.Mutex
	counters map[lockKey]*readWriteCounter

	describe func(id Entity) string
}

func newAccessMap(describe func(id Entity) string) *accessMap {
	return &accessMap{
		counters: map[lockKey]*readWriteCounter{},
		describe: describe,
	}
}

func (m *accessMap) counterFor(key lockKey) *readWriteCounter {
	if m.threaded {
		m.mu.Lock()
		defer m.mu.Unlock()
	}

	counter, ok := m.counters[key]
	if !ok {
		counter = &readWriteCounter{}
		m.counters[key] = counter
	}

	return counter
}

func (m *accessMap) lockRead(id Entity, table *Table) {
	if m.disabled {
		return
	}

	key := lockKey{id: id, table: table.Id}
	if !m.counterFor(key).acquireRead() {
		panic(fmt.Sprintf("read access to %s in %s while a write is in progress", m.describe(id), table))
	}
}

func (m *accessMap) unlockRead(id Entity, table *Table) {
	if m.disabled {
		return
	}

	m.counterFor(lockKey{id: id, table: table.Id}).releaseRead()
}

func (m *accessMap) lockWrite(id Entity, table *Table) {
	if m.disabled {
		return
	}

	key := lockKey{id: id, table: table.Id}
	if !m.counterFor(key).acquireWrite() {
		panic(fmt.Sprintf("write access to %s in %s conflicts with an existing read or write", m.describe(id), table))
	}
}

func (m *accessMap) unlockWrite(id Entity, table *Table) {
	if m.disabled {
		return
	}

	m.counterFor(lockKey{id: id, table: table.Id}).releaseWrite()
}

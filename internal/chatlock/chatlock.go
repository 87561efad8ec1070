// Package chatlock serializes access to remote chats.
//
// Each chat has one lock, created on first use and never removed. Callers
// that need more than one chat at a time must go through an Arbitrator, which
// holds a single ordering lock while the set is acquired. No two callers can
// be half-way through acquiring overlapping sets, so circular waits cannot
// form no matter what order the chats are requested in.
package chatlock

import (
	"sync"
)

// Table maps chat identifiers to their locks.
// TODO: entries are never evicted; add a TTL if the set of chats stops being bounded.
type Table struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTable creates an empty lock table.
func NewTable() *Table {
	return &Table{
		locks: make(map[string]*sync.Mutex),
	}
}

// Get returns the lock for chatID, creating it if needed.
func (t *Table) Get(chatID string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[chatID] = lock
	}
	return lock
}

// Len returns the number of chats seen so far.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

// Arbitrator acquires sets of chat locks without deadlocking.
type Arbitrator struct {
	ordering sync.Mutex
	table    *Table
}

// New creates an arbitrator over a fresh lock table.
func New() *Arbitrator {
	return NewArbitrator(NewTable())
}

// NewArbitrator creates an arbitrator over an existing table.
func NewArbitrator(table *Table) *Arbitrator {
	return &Arbitrator{table: table}
}

// Table returns the underlying lock table.
func (a *Arbitrator) Table() *Table {
	return a.table
}

// Acquire locks every chat in chatIDs and returns a function that releases them.
// Duplicate identifiers are locked once. A single chat is locked directly,
// larger sets are acquired under the ordering lock, which is dropped as soon
// as the whole set is held. The release function is safe to call more than once.
func (a *Arbitrator) Acquire(chatIDs ...string) (release func()) {
	locks := a.resolve(chatIDs)

	switch len(locks) {
	case 0:
		return func() {}
	case 1:
		locks[0].Lock()
	default:
		a.ordering.Lock()
		for _, lock := range locks {
			lock.Lock()
		}
		a.ordering.Unlock()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(locks) - 1; i >= 0; i-- {
				locks[i].Unlock()
			}
		})
	}
}

// Do runs fn while holding the locks for chatIDs.
func (a *Arbitrator) Do(chatIDs []string, fn func() error) error {
	release := a.Acquire(chatIDs...)
	defer release()
	return fn()
}

func (a *Arbitrator) resolve(chatIDs []string) []*sync.Mutex {
	seen := make(map[string]struct{}, len(chatIDs))
	locks := make([]*sync.Mutex, 0, len(chatIDs))
	for _, id := range chatIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		locks = append(locks, a.table.Get(id))
	}
	return locks
}

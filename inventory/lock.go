/*
lock.go - Per-(resource, unit) locking

PURPOSE:
  A balance row is the only point of write contention. Every operation that
  reads a balance and then writes it (sign, revoke, receipt posting and
  removal) locks the keys it touches first, so two signings against the
  same pair cannot both pass the availability check.

ORDERING:
  Keys are always acquired in SortKeys order. Two operations touching an
  overlapping set of keys therefore never wait on each other in a cycle.

IMPLEMENTATIONS:
  - KeyMutex: in-process, the default for a single server
  - lock/distlock: Redis-backed, for several servers sharing one database

SEE ALSO:
  - scope.go: Acquires the locks before opening the store transaction
*/
package inventory

import (
	"context"
	"fmt"
	"sync"
)

// Locker acquires exclusive locks on balance keys.
type Locker interface {
	// Lock blocks until every key is held or ctx is done. The returned
	// function releases all of them and is safe to call once.
	Lock(ctx context.Context, keys []BalanceKey) (unlock func(), err error)
}

// =============================================================================
// KEY MUTEX - In-process implementation
// =============================================================================

// KeyMutex is a Locker backed by one buffered channel per key. Idle keys are
// dropped from the map so it does not grow with the catalogue.
type KeyMutex struct {
	mu    sync.Mutex
	slots map[BalanceKey]*keySlot
}

type keySlot struct {
	ch   chan struct{}
	refs int
}

func NewKeyMutex() *KeyMutex {
	return &KeyMutex{slots: make(map[BalanceKey]*keySlot)}
}

func (m *KeyMutex) Lock(ctx context.Context, keys []BalanceKey) (func(), error) {
	keys = SortKeys(keys)
	held := make([]BalanceKey, 0, len(keys))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			m.release(held[i], true)
		}
	}

	for _, k := range keys {
		if err := m.acquire(ctx, k); err != nil {
			release()
			return func() {}, err
		}
		held = append(held, k)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (m *KeyMutex) acquire(ctx context.Context, k BalanceKey) error {
	m.mu.Lock()
	s := m.slots[k]
	if s == nil {
		s = &keySlot{ch: make(chan struct{}, 1)}
		m.slots[k] = s
	}
	s.refs++
	m.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		m.release(k, false)
		return fmt.Errorf("%w: %s: %v", ErrLockNotObtained, k, ctx.Err())
	}
}

func (m *KeyMutex) release(k BalanceKey, held bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.slots[k]
	if s == nil {
		return
	}
	if held {
		<-s.ch
	}
	s.refs--
	if s.refs == 0 {
		delete(m.slots, k)
	}
}

package inventory

import (
	"context"
)

// Scope runs ledger work as one unit: the touched balance keys are locked,
// then a store transaction is opened, and the Ledger handed to fn refuses to
// read or write any key outside the locked set. A refusal rolls the
// transaction back with ErrConcurrentModification so the caller can retry
// with a fresh key set.
type Scope struct {
	Store  TxStore
	Locker Locker
}

func NewScope(store TxStore, locker Locker) *Scope {
	if locker == nil {
		locker = NewKeyMutex()
	}
	return &Scope{Store: store, Locker: locker}
}

// Run locks keys, opens a transaction and calls fn with the transactional
// store and a ledger bound to it.
func (s *Scope) Run(ctx context.Context, keys []BalanceKey, fn func(tx Store, ledger *Ledger) error) error {
	keys = SortKeys(keys)

	unlock, err := s.Locker.Lock(ctx, keys)
	if err != nil {
		return err
	}
	defer unlock()

	locked := make(map[BalanceKey]bool, len(keys))
	for _, k := range keys {
		locked[k] = true
	}

	return s.Store.WithTx(ctx, func(tx Store) error {
		return fn(tx, &Ledger{store: tx, locked: locked})
	})
}

/*
ledger.go - Balance Ledger

PURPOSE:
  The Balance Ledger is the single source of truth for stock levels: one
  row per (resource, unit) pair holding the on-hand quantity. Only the
  Receipt and Shipment engines write to it.

CRITICAL INVARIANTS:
  1. ONE ROW PER PAIR: rows are created lazily by the first adjustment and
     are never deleted, even at zero.
  2. CALLER VALIDATES: Adjust has no rules of its own. Non-negativity and
     reference checks happen in the engines before they call it.
  3. CONSERVATION: quantity = posted receipt lines - signed shipment lines
     (see reconcile.go for the check).

SCOPED vs UNSCOPED:
  Engines obtain a Ledger from Scope.Run. That ledger is bound to one
  store transaction and to the keys locked for it; touching any other key
  fails with ErrConcurrentModification. NewLedger returns an unscoped ledger
  for read-only use (listings, availability lookups).

AVAILABILITY:
  Available() reads zero when no row exists or when the resource or unit is
  archived. The row itself is left alone.

SEE ALSO:
  - scope.go: Creates scoped ledgers
  - store.go: BalanceStore
*/
package inventory

import (
	"context"
	"fmt"
)

// Ledger reads and adjusts balance rows.
type Ledger struct {
	store  Store
	locked map[BalanceKey]bool // nil for an unscoped ledger
}

// NewLedger returns an unscoped ledger over store.
func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) guard(key BalanceKey) error {
	if l.locked != nil && !l.locked[key] {
		return fmt.Errorf("%w: balance %s is not locked by this operation", ErrConcurrentModification, key)
	}
	return nil
}

// Adjust adds delta to the row for key, creating the row when missing.
func (l *Ledger) Adjust(ctx context.Context, key BalanceKey, delta Quantity) (Balance, error) {
	if err := l.guard(key); err != nil {
		return Balance{}, err
	}

	current, err := l.store.GetBalance(ctx, key)
	if err != nil {
		return Balance{}, WrapStore("load balance", err)
	}

	b := Balance{Key: key, Quantity: delta}
	if current != nil {
		b.Quantity = current.Quantity.Add(delta)
	}
	if err := checkQuantity(b.Quantity.Decimal); err != nil {
		return Balance{}, invalid("quantity", "balance %s would reach %s, limit is below 1e%d", key, b.Quantity, MaxQuantityDigits)
	}

	if err := l.store.PutBalance(ctx, b); err != nil {
		return Balance{}, WrapStore("save balance", err)
	}
	return b, nil
}

// Query returns the rows matching filter.
func (l *Ledger) Query(ctx context.Context, filter BalanceFilter) ([]Balance, error) {
	rows, err := l.store.ListBalances(ctx, filter)
	if err != nil {
		return nil, WrapStore("list balances", err)
	}
	return rows, nil
}

// OnHand returns the stored quantity for key, zero when no row exists.
func (l *Ledger) OnHand(ctx context.Context, key BalanceKey) (Quantity, error) {
	if err := l.guard(key); err != nil {
		return Quantity{}, err
	}
	b, err := l.store.GetBalance(ctx, key)
	if err != nil {
		return Quantity{}, WrapStore("load balance", err)
	}
	if b == nil {
		return ZeroQuantity(), nil
	}
	return b.Quantity, nil
}

// Available returns what can be shipped for key: the on-hand quantity, or
// zero when the row is missing or the resource or unit is archived.
func (l *Ledger) Available(ctx context.Context, key BalanceKey) (Quantity, error) {
	onHand, err := l.OnHand(ctx, key)
	if err != nil {
		return Quantity{}, err
	}

	for _, ref := range []struct {
		kind RefKind
		id   int64
	}{
		{KindResource, int64(key.ResourceID)},
		{KindUnit, int64(key.UnitID)},
	} {
		r, err := l.store.GetReference(ctx, ref.kind, ref.id)
		if err != nil {
			return Quantity{}, WrapStore("load reference", err)
		}
		if r == nil || !r.Active() {
			return ZeroQuantity(), nil
		}
	}
	return onHand, nil
}

// requireStock checks that every key can give up its total. The first key
// (in line order) that falls short is reported.
func (l *Ledger) requireStock(ctx context.Context, lines []Line) error {
	order, totals := totalsByKey(lines)
	for _, k := range order {
		available, err := l.Available(ctx, k)
		if err != nil {
			return err
		}
		if available.LessThan(totals[k]) {
			return &InsufficientStockError{Key: k, Available: available, Requested: totals[k]}
		}
	}
	return nil
}

// post applies sign*quantity for every line.
func (l *Ledger) post(ctx context.Context, lines []Line, sign int) error {
	order, totals := totalsByKey(lines)
	for _, k := range order {
		delta := totals[k]
		if sign < 0 {
			delta = delta.Neg()
		}
		if _, err := l.Adjust(ctx, k, delta); err != nil {
			return err
		}
	}
	return nil
}

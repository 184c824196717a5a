/*
reconcile.go - Ledger conservation check

PURPOSE:
  Recomputes every balance from document history and reports rows that
  disagree with it:

    expected(pair) = Σ receipt lines - Σ lines of currently Signed shipments

  Revoked shipments contribute nothing: their signing debit and revoking
  credit cancel out. Drafts never touched the ledger.

  Reconcile only reads. It is the operator's tool for confirming that no
  code path or manual database edit has broken conservation.

SEE ALSO:
  - internal/cli/reconcile.go: reconcile command
  - api GET /api/balances/reconcile
*/
package inventory

import (
	"context"
	"sort"
)

// Drift is a balance row whose stored quantity disagrees with the documents.
type Drift struct {
	Key      BalanceKey
	Stored   Quantity
	Expected Quantity
	// MissingRow is set when documents imply a non-zero balance but no row exists.
	MissingRow bool
}

// Reconcile compares stored balances with document history.
func Reconcile(ctx context.Context, store Store) ([]Drift, error) {
	expected := make(map[BalanceKey]Quantity)
	add := func(lines []Line, sign int) {
		for _, l := range lines {
			q := l.Quantity
			if sign < 0 {
				q = q.Neg()
			}
			if cur, ok := expected[l.Key()]; ok {
				expected[l.Key()] = cur.Add(q)
			} else {
				expected[l.Key()] = q
			}
		}
	}

	receipts, err := store.ListReceipts(ctx, DocumentFilter{})
	if err != nil {
		return nil, WrapStore("list receipts", err)
	}
	for _, r := range receipts {
		add(r.Lines, +1)
	}

	shipments, err := store.ListShipments(ctx, DocumentFilter{Statuses: []ShipmentStatus{ShipmentSigned}})
	if err != nil {
		return nil, WrapStore("list shipments", err)
	}
	for _, s := range shipments {
		add(s.Lines, -1)
	}

	balances, err := store.ListBalances(ctx, BalanceFilter{})
	if err != nil {
		return nil, WrapStore("list balances", err)
	}

	var drifts []Drift
	seen := make(map[BalanceKey]bool, len(balances))
	for _, b := range balances {
		seen[b.Key] = true
		want, ok := expected[b.Key]
		if !ok {
			want = ZeroQuantity()
		}
		if !b.Quantity.Equal(want) {
			drifts = append(drifts, Drift{Key: b.Key, Stored: b.Quantity, Expected: want})
		}
	}
	for k, want := range expected {
		if !seen[k] && !want.IsZero() {
			drifts = append(drifts, Drift{Key: k, Stored: ZeroQuantity(), Expected: want, MissingRow: true})
		}
	}

	sort.Slice(drifts, func(i, j int) bool { return drifts[i].Key.less(drifts[j].Key) })
	return drifts, nil
}

package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/inventory/store"
)

// engine bundles the services over one in-memory store, sharing a locker
// the way the API handler does.
type engine struct {
	store     *store.TxMemory
	registry  *inventory.Registry
	receipts  *inventory.ReceiptService
	shipments *inventory.ShipmentService
}

func newEngine(t *testing.T) *engine {
	t.Helper()
	s := store.NewTxMemory()
	locker := inventory.NewKeyMutex()
	return &engine{
		store:     s,
		registry:  inventory.NewRegistry(s, nil),
		receipts:  inventory.NewReceiptService(s, locker, nil),
		shipments: inventory.NewShipmentService(s, locker, nil),
	}
}

func (e *engine) ref(t *testing.T, kind inventory.RefKind, name string) int64 {
	t.Helper()
	r, err := e.registry.Create(context.Background(), kind, name, "")
	require.NoError(t, err)
	return r.ID
}

// pair creates a resource and a unit and returns their balance key.
func (e *engine) pair(t *testing.T, resource, unit string) inventory.BalanceKey {
	t.Helper()
	return inventory.BalanceKey{
		ResourceID: inventory.ResourceID(e.ref(t, inventory.KindResource, resource)),
		UnitID:     inventory.UnitID(e.ref(t, inventory.KindUnit, unit)),
	}
}

func (e *engine) client(t *testing.T, name string) inventory.ClientID {
	t.Helper()
	return inventory.ClientID(e.ref(t, inventory.KindClient, name))
}

func (e *engine) receive(t *testing.T, number string, lines ...inventory.LineInput) inventory.ReceiptDocument {
	t.Helper()
	doc, err := e.receipts.CreateWithLines(context.Background(), number, day(1), lines)
	require.NoError(t, err)
	return doc
}

func (e *engine) draft(t *testing.T, number string, client inventory.ClientID, lines ...inventory.LineInput) inventory.ShipmentDocument {
	t.Helper()
	doc, err := e.shipments.CreateWithLines(context.Background(), number, client, day(2), lines, false)
	require.NoError(t, err)
	return doc
}

func (e *engine) onHand(t *testing.T, key inventory.BalanceKey) string {
	t.Helper()
	q, err := inventory.NewLedger(e.store).OnHand(context.Background(), key)
	require.NoError(t, err)
	return q.String()
}

// consistent asserts that the ledger matches document history.
func (e *engine) consistent(t *testing.T) {
	t.Helper()
	drifts, err := inventory.Reconcile(context.Background(), e.store)
	require.NoError(t, err)
	require.Empty(t, drifts)
}

func line(key inventory.BalanceKey, qty string) inventory.LineInput {
	return inventory.LineInput{ResourceID: key.ResourceID, UnitID: key.UnitID, Quantity: inventory.MustParseQuantity(qty)}
}

func qty(s string) inventory.Quantity { return inventory.MustParseQuantity(s) }

func day(d int) time.Time { return time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC) }

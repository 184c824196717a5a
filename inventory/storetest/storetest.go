/*
Package storetest is a behavioural test suite shared by every
inventory.TxStore implementation.

PURPOSE:
  The engines only see the inventory.Store interfaces, so the memory,
  SQLite and PostgreSQL backends must agree on the details the interfaces
  leave implicit: nil-on-missing lookups, case-insensitive active names,
  newest-first document order, filter semantics and rollback on error.

USAGE:
  func TestStore(t *testing.T) {
      storetest.Run(t, func(t *testing.T) inventory.TxStore {
          store, err := sqlite.New(":memory:")
          require.NoError(t, err)
          t.Cleanup(func() { store.Close() })
          return store
      })
  }

  open must return an empty store for every call.
*/
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/inventory"
)

// Opener returns a fresh, empty store for one subtest.
type Opener func(t *testing.T) inventory.TxStore

// Run executes the suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s inventory.TxStore)
	}{
		{"References", testReferences},
		{"Balances", testBalances},
		{"Receipts", testReceipts},
		{"Shipments", testShipments},
		{"DocumentFilters", testDocumentFilters},
		{"IsReferenced", testIsReferenced},
		{"RollbackOnError", testRollback},
		{"ServicesEndToEnd", testServices},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

// =============================================================================
// FIXTURES
// =============================================================================

func day(d int) time.Time {
	return time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC)
}

func qty(s string) inventory.Quantity {
	return inventory.MustParseQuantity(s)
}

type fixture struct {
	resource inventory.ResourceID
	unit     inventory.UnitID
	client   inventory.ClientID
}

func (f fixture) key() inventory.BalanceKey {
	return inventory.BalanceKey{ResourceID: f.resource, UnitID: f.unit}
}

func seed(t *testing.T, s inventory.Store) fixture {
	t.Helper()
	ctx := context.Background()

	mk := func(kind inventory.RefKind, name string) int64 {
		ref, err := s.CreateReference(ctx, inventory.Reference{Kind: kind, Name: name, Status: inventory.StatusActive})
		require.NoError(t, err)
		require.NotZero(t, ref.ID)
		return ref.ID
	}
	return fixture{
		resource: inventory.ResourceID(mk(inventory.KindResource, "Steel bolt")),
		unit:     inventory.UnitID(mk(inventory.KindUnit, "Box")),
		client:   inventory.ClientID(mk(inventory.KindClient, "Acme")),
	}
}

// =============================================================================
// CASES
// =============================================================================

func testReferences(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()

	// GIVEN: One active and one archived unit
	box, err := s.CreateReference(ctx, inventory.Reference{Kind: inventory.KindUnit, Name: "Box", Status: inventory.StatusActive})
	require.NoError(t, err)
	crate, err := s.CreateReference(ctx, inventory.Reference{Kind: inventory.KindUnit, Name: "Crate", Address: "Dock 2", Status: inventory.StatusArchived})
	require.NoError(t, err)

	// THEN: Lookups by id return the stored values
	got, err := s.GetReference(ctx, inventory.KindUnit, crate.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Crate", got.Name)
	assert.Equal(t, "Dock 2", got.Address)
	assert.Equal(t, inventory.StatusArchived, got.Status)

	missing, err := s.GetReference(ctx, inventory.KindUnit, 9999)
	require.NoError(t, err)
	assert.Nil(t, missing, "missing id returns nil without error")

	// Same id space does not leak across kinds
	other, err := s.GetReference(ctx, inventory.KindClient, box.ID)
	require.NoError(t, err)
	assert.Nil(t, other)

	// Name lookups ignore case and archived rows
	found, err := s.FindActiveByName(ctx, inventory.KindUnit, "bOx")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, box.ID, found.ID)

	found, err = s.FindActiveByName(ctx, inventory.KindUnit, "crate")
	require.NoError(t, err)
	assert.Nil(t, found, "archived names are not active")

	// Listing honours the status filter
	all, err := s.ListReferences(ctx, inventory.KindUnit, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active := inventory.StatusActive
	onlyActive, err := s.ListReferences(ctx, inventory.KindUnit, &active)
	require.NoError(t, err)
	require.Len(t, onlyActive, 1)
	assert.Equal(t, box.ID, onlyActive[0].ID)

	// Update overwrites name, address and status
	box.Name = "Carton"
	box.Address = "Shelf A"
	box.Status = inventory.StatusArchived
	require.NoError(t, s.UpdateReference(ctx, box))
	got, err = s.GetReference(ctx, inventory.KindUnit, box.ID)
	require.NoError(t, err)
	assert.Equal(t, "Carton", got.Name)
	assert.Equal(t, "Shelf A", got.Address)
	assert.Equal(t, inventory.StatusArchived, got.Status)
}

func testBalances(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	f := seed(t, s)

	// GIVEN: No row yet
	b, err := s.GetBalance(ctx, f.key())
	require.NoError(t, err)
	assert.Nil(t, b)

	// WHEN: Writing the row twice
	require.NoError(t, s.PutBalance(ctx, inventory.Balance{Key: f.key(), Quantity: qty("10.5")}))
	require.NoError(t, s.PutBalance(ctx, inventory.Balance{Key: f.key(), Quantity: qty("7.1234")}))

	// THEN: The last write wins and precision is preserved
	b, err = s.GetBalance(ctx, f.key())
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "7.1234", b.Quantity.String())

	list, err := s.ListBalances(ctx, inventory.BalanceFilter{ResourceIDs: []inventory.ResourceID{f.resource}})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, f.key(), list[0].Key)

	list, err = s.ListBalances(ctx, inventory.BalanceFilter{UnitIDs: []inventory.UnitID{f.unit + 1000}})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testReceipts(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	f := seed(t, s)

	doc, err := s.CreateReceipt(ctx, inventory.ReceiptDocument{Number: "R-1", Date: day(10)})
	require.NoError(t, err)
	require.NotZero(t, doc.ID)

	l1, err := s.AddReceiptLine(ctx, inventory.Line{DocumentID: doc.ID, ResourceID: f.resource, UnitID: f.unit, Quantity: qty("3")})
	require.NoError(t, err)
	_, err = s.AddReceiptLine(ctx, inventory.Line{DocumentID: doc.ID, ResourceID: f.resource, UnitID: f.unit, Quantity: qty("2.5")})
	require.NoError(t, err)

	got, err := s.GetReceipt(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "R-1", got.Number)
	assert.True(t, got.Date.Equal(day(10)))
	require.Len(t, got.Lines, 2)
	assert.Equal(t, "2.5000", got.Lines[1].Quantity.String())

	taken, err := s.ReceiptNumberTaken(ctx, "R-1", 0)
	require.NoError(t, err)
	assert.True(t, taken)
	taken, err = s.ReceiptNumberTaken(ctx, "R-1", doc.ID)
	require.NoError(t, err)
	assert.False(t, taken, "a document does not collide with itself")

	got.Number = "R-1b"
	got.Date = day(11)
	require.NoError(t, s.UpdateReceipt(ctx, *got))

	require.NoError(t, s.DeleteReceiptLine(ctx, l1.ID))
	got, err = s.GetReceipt(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "R-1b", got.Number)
	assert.Len(t, got.Lines, 1)

	require.NoError(t, s.DeleteReceipt(ctx, doc.ID))
	got, err = s.GetReceipt(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testShipments(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	f := seed(t, s)

	doc, err := s.CreateShipment(ctx, inventory.ShipmentDocument{
		Number: "S-1", ClientID: f.client, Date: day(12), Status: inventory.ShipmentDraft,
	})
	require.NoError(t, err)

	_, err = s.AddShipmentLine(ctx, inventory.Line{DocumentID: doc.ID, ResourceID: f.resource, UnitID: f.unit, Quantity: qty("4")})
	require.NoError(t, err)

	doc.Status = inventory.ShipmentSigned
	require.NoError(t, s.UpdateShipment(ctx, doc))

	got, err := s.GetShipment(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, inventory.ShipmentSigned, got.Status)
	assert.Equal(t, f.client, got.ClientID)
	require.Len(t, got.Lines, 1)

	taken, err := s.ShipmentNumberTaken(ctx, "S-1", 0)
	require.NoError(t, err)
	assert.True(t, taken)

	// Receipt and shipment numbers are separate namespaces
	taken, err = s.ReceiptNumberTaken(ctx, "S-1", 0)
	require.NoError(t, err)
	assert.False(t, taken)

	require.NoError(t, s.DeleteShipmentLine(ctx, got.Lines[0].ID))
	require.NoError(t, s.DeleteShipment(ctx, doc.ID))
	got, err = s.GetShipment(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func testDocumentFilters(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	f := seed(t, s)

	other, err := s.CreateReference(ctx, inventory.Reference{Kind: inventory.KindResource, Name: "Copper wire", Status: inventory.StatusActive})
	require.NoError(t, err)

	mkReceipt := func(number string, d int, resource inventory.ResourceID) {
		doc, err := s.CreateReceipt(ctx, inventory.ReceiptDocument{Number: number, Date: day(d)})
		require.NoError(t, err)
		_, err = s.AddReceiptLine(ctx, inventory.Line{DocumentID: doc.ID, ResourceID: resource, UnitID: f.unit, Quantity: qty("1")})
		require.NoError(t, err)
	}
	mkReceipt("R-1", 1, f.resource)
	mkReceipt("R-2", 5, inventory.ResourceID(other.ID))
	mkReceipt("R-3", 9, f.resource)

	numbers := func(docs []inventory.ReceiptDocument) []string {
		out := make([]string, len(docs))
		for i, d := range docs {
			out[i] = d.Number
		}
		return out
	}

	all, err := s.ListReceipts(ctx, inventory.DocumentFilter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"R-3", "R-2", "R-1"}, numbers(all), "newest first")

	from, to := day(5), day(9)
	ranged, err := s.ListReceipts(ctx, inventory.DocumentFilter{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, []string{"R-3", "R-2"}, numbers(ranged), "date bounds are inclusive")

	byResource, err := s.ListReceipts(ctx, inventory.DocumentFilter{ResourceIDs: []inventory.ResourceID{f.resource}})
	require.NoError(t, err)
	assert.Equal(t, []string{"R-3", "R-1"}, numbers(byResource))
	for _, d := range byResource {
		assert.Len(t, d.Lines, 1, "matching documents carry their lines")
	}

	byNumber, err := s.ListReceipts(ctx, inventory.DocumentFilter{Numbers: []string{"R-2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"R-2"}, numbers(byNumber))

	// Shipments filter additionally by client and status
	draft, err := s.CreateShipment(ctx, inventory.ShipmentDocument{Number: "S-1", ClientID: f.client, Date: day(3), Status: inventory.ShipmentDraft})
	require.NoError(t, err)
	_, err = s.CreateShipment(ctx, inventory.ShipmentDocument{Number: "S-2", ClientID: f.client, Date: day(4), Status: inventory.ShipmentSigned})
	require.NoError(t, err)

	signed, err := s.ListShipments(ctx, inventory.DocumentFilter{Statuses: []inventory.ShipmentStatus{inventory.ShipmentSigned}})
	require.NoError(t, err)
	require.Len(t, signed, 1)
	assert.Equal(t, "S-2", signed[0].Number)

	drafts, err := s.ListShipments(ctx, inventory.DocumentFilter{
		ClientIDs: []inventory.ClientID{f.client},
		Statuses:  []inventory.ShipmentStatus{inventory.ShipmentDraft},
	})
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, draft.ID, drafts[0].ID)

	none, err := s.ListShipments(ctx, inventory.DocumentFilter{ClientIDs: []inventory.ClientID{f.client + 1000}})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testIsReferenced(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	f := seed(t, s)

	for _, kind := range []inventory.RefKind{inventory.KindResource, inventory.KindUnit, inventory.KindClient} {
		var id int64
		switch kind {
		case inventory.KindResource:
			id = int64(f.resource)
		case inventory.KindUnit:
			id = int64(f.unit)
		case inventory.KindClient:
			id = int64(f.client)
		}
		used, err := s.IsReferenced(ctx, kind, id)
		require.NoError(t, err)
		assert.False(t, used, "%s unused before any document", kind)
	}

	// A draft shipment references the client; its line references the pair
	doc, err := s.CreateShipment(ctx, inventory.ShipmentDocument{Number: "S-1", ClientID: f.client, Date: day(1), Status: inventory.ShipmentDraft})
	require.NoError(t, err)
	_, err = s.AddShipmentLine(ctx, inventory.Line{DocumentID: doc.ID, ResourceID: f.resource, UnitID: f.unit, Quantity: qty("1")})
	require.NoError(t, err)

	for kind, id := range map[inventory.RefKind]int64{
		inventory.KindResource: int64(f.resource),
		inventory.KindUnit:     int64(f.unit),
		inventory.KindClient:   int64(f.client),
	} {
		used, err := s.IsReferenced(ctx, kind, id)
		require.NoError(t, err)
		assert.True(t, used, "%s referenced by shipment", kind)
	}
}

func testRollback(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	f := seed(t, s)
	boom := errors.New("boom")

	// WHEN: A transaction writes and then fails
	err := s.WithTx(ctx, func(tx inventory.Store) error {
		if err := tx.PutBalance(ctx, inventory.Balance{Key: f.key(), Quantity: qty("5")}); err != nil {
			return err
		}
		if _, err := tx.CreateReceipt(ctx, inventory.ReceiptDocument{Number: "R-rollback", Date: day(1)}); err != nil {
			return err
		}
		return boom
	})

	// THEN: The error is returned unchanged and nothing persisted
	assert.ErrorIs(t, err, boom)

	b, err := s.GetBalance(ctx, f.key())
	require.NoError(t, err)
	assert.Nil(t, b)

	taken, err := s.ReceiptNumberTaken(ctx, "R-rollback", 0)
	require.NoError(t, err)
	assert.False(t, taken)

	// AND: A successful transaction commits
	err = s.WithTx(ctx, func(tx inventory.Store) error {
		return tx.PutBalance(ctx, inventory.Balance{Key: f.key(), Quantity: qty("5")})
	})
	require.NoError(t, err)
	b, err = s.GetBalance(ctx, f.key())
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "5.0000", b.Quantity.String())
}

// testServices drives the engines against the backend so transactional
// paths (Scope, row locks, cascades) run on real storage.
func testServices(t *testing.T, s inventory.TxStore) {
	ctx := context.Background()
	registry := inventory.NewRegistry(s, nil)
	receipts := inventory.NewReceiptService(s, nil, nil)
	shipments := inventory.NewShipmentService(s, nil, nil)

	res, err := registry.Create(ctx, inventory.KindResource, "Steel bolt", "")
	require.NoError(t, err)
	unit, err := registry.Create(ctx, inventory.KindUnit, "Box", "")
	require.NoError(t, err)
	client, err := registry.Create(ctx, inventory.KindClient, "Acme", "1 Main St")
	require.NoError(t, err)

	key := inventory.BalanceKey{ResourceID: inventory.ResourceID(res.ID), UnitID: inventory.UnitID(unit.ID)}
	line := func(q string) inventory.LineInput {
		return inventory.LineInput{ResourceID: key.ResourceID, UnitID: key.UnitID, Quantity: qty(q)}
	}
	onHand := func() string {
		q, err := inventory.NewLedger(s).OnHand(ctx, key)
		require.NoError(t, err)
		return q.String()
	}

	rec, err := receipts.CreateWithLines(ctx, "R-1", day(1), []inventory.LineInput{line("10")})
	require.NoError(t, err)
	assert.Equal(t, "10.0000", onHand())

	ship, err := shipments.CreateWithLines(ctx, "S-1", inventory.ClientID(client.ID), day(2), []inventory.LineInput{line("6")}, true)
	require.NoError(t, err)
	assert.Equal(t, inventory.ShipmentSigned, ship.Status)
	assert.Equal(t, "4.0000", onHand())

	// Receipt can no longer be pulled back in full
	err = receipts.RemoveDocument(ctx, rec.ID)
	assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Equal(t, "4.0000", onHand(), "rejected removal changes nothing")

	_, err = shipments.Revoke(ctx, ship.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.0000", onHand())

	require.NoError(t, receipts.RemoveDocument(ctx, rec.ID))
	assert.Equal(t, "0.0000", onHand())

	drifts, err := inventory.Reconcile(ctx, s)
	require.NoError(t, err)
	assert.Empty(t, drifts)

	// Referenced entities cannot be archived even with zero stock
	_, err = registry.Archive(ctx, inventory.KindResource, res.ID)
	assert.ErrorIs(t, err, inventory.ErrReferenceInUse)
}

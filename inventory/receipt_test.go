package inventory_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/inventory"
)

func TestReceipt_AddLinePostsImmediately(t *testing.T) {
	e := newEngine(t)
	key := e.pair(t, "Bolt", "pcs")
	ctx := context.Background()

	doc, err := e.receipts.CreateDocument(ctx, "R-1", day(1))
	require.NoError(t, err)
	assert.Empty(t, doc.Lines)

	_, err = e.receipts.AddLine(ctx, doc.ID, line(key, "12.5"))
	require.NoError(t, err)
	_, err = e.receipts.AddLine(ctx, doc.ID, line(key, "0.0001"))
	require.NoError(t, err)

	assert.Equal(t, "12.5001", e.onHand(t, key))
	e.consistent(t)
}

func TestReceipt_CreateRejectsInvalidInput(t *testing.T) {
	e := newEngine(t)
	key := e.pair(t, "Bolt", "pcs")
	ctx := context.Background()

	tests := []struct {
		name   string
		number string
		lines  []inventory.LineInput
	}{
		{"empty number", "  ", nil},
		{"zero quantity", "R-1", []inventory.LineInput{line(key, "0")}},
		{"negative quantity", "R-1", []inventory.LineInput{line(key, "-2")}},
		{"missing resource", "R-1", []inventory.LineInput{{UnitID: key.UnitID, Quantity: qty("1")}}},
		{"too precise", "R-1", []inventory.LineInput{{ResourceID: key.ResourceID, UnitID: key.UnitID, Quantity: inventory.Quantity{Decimal: decimal.RequireFromString("1.00001")}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.receipts.CreateWithLines(ctx, tt.number, day(1), tt.lines)
			require.ErrorIs(t, err, inventory.ErrValidation)
		})
	}
	assert.Equal(t, "0.0000", e.onHand(t, key))
}

func TestReceipt_DuplicateNumberRejected(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.receive(t, "R-1")

	_, err := e.receipts.CreateDocument(ctx, "R-1", day(3))
	require.ErrorIs(t, err, inventory.ErrDuplicateNumber)
}

func TestReceipt_FailedLineRollsBackWholeDocument(t *testing.T) {
	// GIVEN: Two lines, the second naming a missing unit
	// WHEN: Creating the receipt
	// THEN: Neither the document nor the first line's credit persists

	e := newEngine(t)
	key := e.pair(t, "Bolt", "pcs")
	ctx := context.Background()

	_, err := e.receipts.CreateWithLines(ctx, "R-1", day(1), []inventory.LineInput{
		line(key, "5"),
		{ResourceID: key.ResourceID, UnitID: 999, Quantity: qty("1")},
	})
	require.ErrorIs(t, err, inventory.ErrReferenceNotFound)

	docs, err := e.receipts.List(ctx, inventory.DocumentFilter{})
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.Equal(t, "0.0000", e.onHand(t, key))
}

func TestReceipt_RemoveDocumentReversesAllLines(t *testing.T) {
	e := newEngine(t)
	bolt := e.pair(t, "Bolt", "pcs")
	nut := inventory.BalanceKey{ResourceID: inventory.ResourceID(e.ref(t, inventory.KindResource, "Nut")), UnitID: bolt.UnitID}
	e.receive(t, "R-1", line(bolt, "5"))
	doc := e.receive(t, "R-2", line(bolt, "10"), line(nut, "3"))

	require.NoError(t, e.receipts.RemoveDocument(context.Background(), doc.ID))

	assert.Equal(t, "5.0000", e.onHand(t, bolt))
	assert.Equal(t, "0.0000", e.onHand(t, nut))
	_, err := e.receipts.Get(context.Background(), doc.ID)
	require.ErrorIs(t, err, inventory.ErrDocumentNotFound)
	e.consistent(t)
}

func TestReceipt_RemoveRejectedWhenStockShipped(t *testing.T) {
	// GIVEN: 10 received, 8 shipped and signed
	// WHEN: Removing the receipt
	// THEN: InsufficientStock with shortfall 8, nothing changes

	e := newEngine(t)
	key := e.pair(t, "Bolt", "pcs")
	acme := e.client(t, "Acme")
	ctx := context.Background()
	doc := e.receive(t, "R-1", line(key, "10"))
	ship := e.draft(t, "S-1", acme, line(key, "8"))
	_, err := e.shipments.Sign(ctx, ship.ID)
	require.NoError(t, err)

	err = e.receipts.RemoveDocument(ctx, doc.ID)
	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, key, stockErr.Key)
	assert.Equal(t, "2.0000", stockErr.Available.String())
	assert.Equal(t, "8.0000", stockErr.Shortfall().String())

	assert.Equal(t, "2.0000", e.onHand(t, key))
	_, err = e.receipts.Get(ctx, doc.ID)
	require.NoError(t, err)
	e.consistent(t)
}

func TestReceipt_RemoveChecksCombinedQuantityPerPair(t *testing.T) {
	// GIVEN: A receipt with two 5 pcs lines of the same pair, 3 pcs shipped
	// WHEN: Removing the receipt
	// THEN: Rejected: 7 available against 10 combined, although each line alone fits

	e := newEngine(t)
	key := e.pair(t, "Bolt", "pcs")
	acme := e.client(t, "Acme")
	ctx := context.Background()
	doc := e.receive(t, "R-1", line(key, "5"), line(key, "5"))
	ship := e.draft(t, "S-1", acme, line(key, "3"))
	_, err := e.shipments.Sign(ctx, ship.ID)
	require.NoError(t, err)

	err = e.receipts.RemoveDocument(ctx, doc.ID)
	var stockErr *inventory.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "10.0000", stockErr.Requested.String())
	assert.Equal(t, "7.0000", e.onHand(t, key))
}

func TestReceipt_RemoveLine(t *testing.T) {
	e := newEngine(t)
	key := e.pair(t, "Bolt", "pcs")
	ctx := context.Background()
	doc := e.receive(t, "R-1", line(key, "4"), line(key, "6"))

	require.NoError(t, e.receipts.RemoveLine(ctx, doc.ID, doc.Lines[0].ID))
	assert.Equal(t, "6.0000", e.onHand(t, key))

	err := e.receipts.RemoveLine(ctx, doc.ID, doc.Lines[0].ID)
	require.ErrorIs(t, err, inventory.ErrLineNotFound)

	got, err := e.receipts.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, got.Lines, 1)
	e.consistent(t)
}

func TestReceipt_UpdateHeaderKeepsLines(t *testing.T) {
	e := newEngine(t)
	key := e.pair(t, "Bolt", "pcs")
	ctx := context.Background()
	e.receive(t, "R-1")
	doc := e.receive(t, "R-2", line(key, "1"))

	_, err := e.receipts.UpdateHeader(ctx, doc.ID, "R-1", day(5))
	require.ErrorIs(t, err, inventory.ErrDuplicateNumber)

	updated, err := e.receipts.UpdateHeader(ctx, doc.ID, "R-2b", day(5))
	require.NoError(t, err)
	assert.Equal(t, "R-2b", updated.Number)
	assert.Equal(t, day(5), updated.Date)
	assert.Len(t, updated.Lines, 1)
	assert.Equal(t, "1.0000", e.onHand(t, key))
}

func TestReceipt_ListFilters(t *testing.T) {
	e := newEngine(t)
	bolt := e.pair(t, "Bolt", "pcs")
	nut := inventory.BalanceKey{ResourceID: inventory.ResourceID(e.ref(t, inventory.KindResource, "Nut")), UnitID: bolt.UnitID}
	ctx := context.Background()

	_, err := e.receipts.CreateWithLines(ctx, "R-1", day(1), []inventory.LineInput{line(bolt, "1")})
	require.NoError(t, err)
	_, err = e.receipts.CreateWithLines(ctx, "R-2", day(10), []inventory.LineInput{line(nut, "1")})
	require.NoError(t, err)

	from := day(5)
	docs, err := e.receipts.List(ctx, inventory.DocumentFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "R-2", docs[0].Number)

	docs, err = e.receipts.List(ctx, inventory.DocumentFilter{ResourceIDs: []inventory.ResourceID{bolt.ResourceID}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "R-1", docs[0].Number)

	docs, err = e.receipts.List(ctx, inventory.DocumentFilter{Numbers: []string{"R-1", "R-2"}})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

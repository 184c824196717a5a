package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/inventory/storetest"
	"github.com/warp/stock-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Suite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) inventory.TxStore {
		return newTestStore(t)
	})
}

func TestStore_DuplicateActiveNameRejectedBySchema(t *testing.T) {
	// GIVEN: An active unit named "Box"
	// WHEN: Inserting "BOX" directly, bypassing the registry check
	// THEN: The partial unique index rejects it as a duplicate name

	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateReference(ctx, inventory.Reference{Kind: inventory.KindUnit, Name: "Box", Status: inventory.StatusActive})
	require.NoError(t, err)

	_, err = store.CreateReference(ctx, inventory.Reference{Kind: inventory.KindUnit, Name: "BOX", Status: inventory.StatusActive})
	assert.ErrorIs(t, err, inventory.ErrDuplicateName)

	// Archived rows are outside the index
	_, err = store.CreateReference(ctx, inventory.Reference{Kind: inventory.KindUnit, Name: "Box", Status: inventory.StatusArchived})
	assert.NoError(t, err)
}

func TestStore_DuplicateNumberRejectedBySchema(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	date := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)

	_, err := store.CreateReceipt(ctx, inventory.ReceiptDocument{Number: "R-1", Date: date})
	require.NoError(t, err)

	_, err = store.CreateReceipt(ctx, inventory.ReceiptDocument{Number: "R-1", Date: date})
	assert.ErrorIs(t, err, inventory.ErrDuplicateNumber)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	// GIVEN: A file-backed database with a balance row
	// WHEN: The store is closed and opened again
	// THEN: The row and its exact quantity are still there

	path := filepath.Join(t.TempDir(), "stock.db")
	ctx := context.Background()

	store, err := sqlite.New(path)
	require.NoError(t, err)

	res, err := store.CreateReference(ctx, inventory.Reference{Kind: inventory.KindResource, Name: "Nut", Status: inventory.StatusActive})
	require.NoError(t, err)
	unit, err := store.CreateReference(ctx, inventory.Reference{Kind: inventory.KindUnit, Name: "Each", Status: inventory.StatusActive})
	require.NoError(t, err)

	key := inventory.BalanceKey{ResourceID: inventory.ResourceID(res.ID), UnitID: inventory.UnitID(unit.ID)}
	require.NoError(t, store.PutBalance(ctx, inventory.Balance{Key: key, Quantity: inventory.MustParseQuantity("0.0001")}))
	require.NoError(t, store.Close())

	store, err = sqlite.New(path)
	require.NoError(t, err)
	defer store.Close()

	b, err := store.GetBalance(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.Equal(t, "0.0001", b.Quantity.String())
}

func TestStore_Reset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateReference(ctx, inventory.Reference{Kind: inventory.KindClient, Name: "Acme", Status: inventory.StatusActive})
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))

	refs, err := store.ListReferences(ctx, inventory.KindClient, nil)
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestStore_CorruptDocumentDateIsAnError(t *testing.T) {
	// GIVEN: A receipt whose date column was edited to garbage outside the store
	// WHEN: Reading it back
	// THEN: The read fails instead of returning a zero date

	path := filepath.Join(t.TempDir(), "stock.db")
	ctx := context.Background()

	store, err := sqlite.New(path)
	require.NoError(t, err)
	doc, err := store.CreateReceipt(ctx, inventory.ReceiptDocument{Number: "R-1", Date: time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec("UPDATE receipt_documents SET date = 'first of March' WHERE id = ?", int64(doc.ID))
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	store, err = sqlite.New(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.GetReceipt(ctx, doc.ID)
	assert.ErrorContains(t, err, "date")

	_, err = store.ListReceipts(ctx, inventory.DocumentFilter{})
	assert.Error(t, err)
}

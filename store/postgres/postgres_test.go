package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/inventory"
	"github.com/warp/stock-engine/inventory/storetest"
	"github.com/warp/stock-engine/store/postgres"
)

// newTestStore connects to TEST_DATABASE_URL and wipes it. The database
// must be dedicated to tests.
func newTestStore(t *testing.T) *postgres.Store {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL integration test")
	}

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dbURL)
	require.NoError(t, err)

	store := postgres.New(pool)
	t.Cleanup(store.Close)

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Reset(ctx))
	return store
}

func TestStore_Suite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) inventory.TxStore {
		return newTestStore(t)
	})
}

func TestStore_ConcurrentSignsNeverOverdraw(t *testing.T) {
	// GIVEN: 10 units on hand and five draft shipments of 3 units each
	// WHEN: All five are signed concurrently through separate lockers
	//       (simulating separate server instances)
	// THEN: Exactly three succeed and the balance ends at 1

	store := newTestStore(t)
	ctx := context.Background()

	registry := inventory.NewRegistry(store, nil)
	res, err := registry.Create(ctx, inventory.KindResource, "Pallet", "")
	require.NoError(t, err)
	unit, err := registry.Create(ctx, inventory.KindUnit, "Each", "")
	require.NoError(t, err)
	client, err := registry.Create(ctx, inventory.KindClient, "Acme", "")
	require.NoError(t, err)

	line := inventory.LineInput{
		ResourceID: inventory.ResourceID(res.ID),
		UnitID:     inventory.UnitID(unit.ID),
		Quantity:   inventory.NewQuantityFromInt(3),
	}
	date := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	receipts := inventory.NewReceiptService(store, nil, nil)
	_, err = receipts.CreateWithLines(ctx, "R-1", date, []inventory.LineInput{{
		ResourceID: line.ResourceID, UnitID: line.UnitID, Quantity: inventory.NewQuantityFromInt(10),
	}})
	require.NoError(t, err)

	var ids []inventory.DocumentID
	for _, n := range []string{"S-1", "S-2", "S-3", "S-4", "S-5"} {
		doc, err := inventory.NewShipmentService(store, nil, nil).
			CreateWithLines(ctx, n, inventory.ClientID(client.ID), date, []inventory.LineInput{line}, false)
		require.NoError(t, err)
		ids = append(ids, doc.ID)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		signed int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id inventory.DocumentID) {
			defer wg.Done()
			// Each goroutine gets its own KeyMutex, so only the row lock
			// in PostgreSQL serializes them.
			svc := inventory.NewShipmentService(store, inventory.NewKeyMutex(), nil)
			if _, err := svc.Sign(ctx, id); err == nil {
				mu.Lock()
				signed++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 3, signed)
	onHand, err := inventory.NewLedger(store).OnHand(ctx, line.Key())
	require.NoError(t, err)
	assert.Equal(t, "1.0000", onHand.String())
}

func TestStore_ConcurrentFirstReceiptsKeepEveryCredit(t *testing.T) {
	// GIVEN: A pair with no balance row
	// WHEN: Eight receipts of 2 units post concurrently through separate lockers
	// THEN: The balance holds all 16 units and reconciles

	store := newTestStore(t)
	ctx := context.Background()

	registry := inventory.NewRegistry(store, nil)
	res, err := registry.Create(ctx, inventory.KindResource, "Pallet", "")
	require.NoError(t, err)
	unit, err := registry.Create(ctx, inventory.KindUnit, "Each", "")
	require.NoError(t, err)

	line := inventory.LineInput{
		ResourceID: inventory.ResourceID(res.ID),
		UnitID:     inventory.UnitID(unit.ID),
		Quantity:   inventory.NewQuantityFromInt(2),
	}
	date := time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc := inventory.NewReceiptService(store, inventory.NewKeyMutex(), nil)
			_, err := svc.CreateWithLines(ctx, "R-"+string(rune('A'+i)), date, []inventory.LineInput{line})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	onHand, err := inventory.NewLedger(store).OnHand(ctx, line.Key())
	require.NoError(t, err)
	assert.Equal(t, "16.0000", onHand.String())

	drifts, err := inventory.Reconcile(ctx, store)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

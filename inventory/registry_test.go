package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/inventory"
)

func TestRegistry_CreateValidates(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	tests := []struct {
		name string
		kind inventory.RefKind
		ref  string
		want inventory.Kind
	}{
		{"blank name", inventory.KindResource, "   ", inventory.KindValidation},
		{"unknown kind", inventory.RefKind("warehouse"), "Main", inventory.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.registry.Create(ctx, tt.kind, tt.ref, "")
			require.Error(t, err)
			assert.Equal(t, tt.want, inventory.KindOf(err))
		})
	}
}

func TestRegistry_NamesUniqueAmongActive(t *testing.T) {
	// GIVEN: An active unit "kg"
	// WHEN: Creating "kg" again, then archiving the first and retrying
	// THEN: The first retry is a duplicate, the second succeeds, and
	//       restoring the archived one is a duplicate

	e := newEngine(t)
	ctx := context.Background()

	first, err := e.registry.Create(ctx, inventory.KindUnit, "kg", "")
	require.NoError(t, err)

	_, err = e.registry.Create(ctx, inventory.KindUnit, "kg", "")
	require.ErrorIs(t, err, inventory.ErrDuplicateName)

	_, err = e.registry.Archive(ctx, inventory.KindUnit, first.ID)
	require.NoError(t, err)

	_, err = e.registry.Create(ctx, inventory.KindUnit, "kg", "")
	require.NoError(t, err)

	_, err = e.registry.Restore(ctx, inventory.KindUnit, first.ID)
	require.ErrorIs(t, err, inventory.ErrDuplicateName)
}

func TestRegistry_SameNameAcrossKinds(t *testing.T) {
	e := newEngine(t)
	e.ref(t, inventory.KindResource, "Box")
	e.ref(t, inventory.KindUnit, "Box")
}

func TestRegistry_UpdateRename(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	acme, err := e.registry.Create(ctx, inventory.KindClient, "Acme", "1 Main St")
	require.NoError(t, err)
	e.ref(t, inventory.KindClient, "Globex")

	_, err = e.registry.Update(ctx, inventory.KindClient, acme.ID, "Globex", "")
	require.ErrorIs(t, err, inventory.ErrDuplicateName)

	updated, err := e.registry.Update(ctx, inventory.KindClient, acme.ID, "Acme Corp", "2 Main St")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", updated.Name)
	assert.Equal(t, "2 Main St", updated.Address)

	_, err = e.registry.Update(ctx, inventory.KindClient, 999, "Nobody", "")
	require.ErrorIs(t, err, inventory.ErrClientNotFound)
}

func TestRegistry_ArchiveIsIdempotent(t *testing.T) {
	// GIVEN: An unused resource
	// WHEN: Archiving it twice
	// THEN: Both calls succeed and it is archived exactly once

	e := newEngine(t)
	ctx := context.Background()
	id := e.ref(t, inventory.KindResource, "Washer")

	for i := 0; i < 2; i++ {
		ref, err := e.registry.Archive(ctx, inventory.KindResource, id)
		require.NoError(t, err)
		assert.Equal(t, inventory.StatusArchived, ref.Status)
	}

	exists, status, err := e.registry.Lookup(ctx, inventory.KindResource, id)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, inventory.StatusArchived, status)

	for i := 0; i < 2; i++ {
		ref, err := e.registry.Restore(ctx, inventory.KindResource, id)
		require.NoError(t, err)
		assert.Equal(t, inventory.StatusActive, ref.Status)
	}
}

func TestRegistry_ArchiveRefusedWhileReferenced(t *testing.T) {
	// GIVEN: Bolt/pcs with a balance row, client Acme on a draft
	// WHEN: Archiving Bolt, pcs and Acme
	// THEN: Every call fails with ErrReferenceInUse and all stay active

	e := newEngine(t)
	ctx := context.Background()
	key := e.pair(t, "Bolt", "pcs")
	acme := e.client(t, "Acme")
	e.receive(t, "R-1", line(key, "10"))
	e.draft(t, "S-1", acme)

	for _, c := range []struct {
		kind inventory.RefKind
		id   int64
	}{
		{inventory.KindResource, int64(key.ResourceID)},
		{inventory.KindUnit, int64(key.UnitID)},
		{inventory.KindClient, int64(acme)},
	} {
		_, err := e.registry.Archive(ctx, c.kind, c.id)
		require.ErrorIs(t, err, inventory.ErrReferenceInUse, "%s", c.kind)
		assert.Equal(t, inventory.KindConflict, inventory.KindOf(err))

		ref, err := e.registry.Get(ctx, c.kind, c.id)
		require.NoError(t, err)
		assert.Equal(t, inventory.StatusActive, ref.Status)
	}
}

func TestRegistry_ArchivedEntitiesRejectedOnNewLines(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	key := e.pair(t, "Bolt", "pcs")
	old := e.client(t, "Old Co")
	retired := e.ref(t, inventory.KindResource, "Retired")

	_, err := e.registry.Archive(ctx, inventory.KindClient, int64(old))
	require.NoError(t, err)
	_, err = e.registry.Archive(ctx, inventory.KindResource, retired)
	require.NoError(t, err)

	_, err = e.shipments.Create(ctx, "S-1", old, day(2))
	require.ErrorIs(t, err, inventory.ErrClientArchived)

	_, err = e.receipts.CreateWithLines(ctx, "R-1", day(1), []inventory.LineInput{
		{ResourceID: inventory.ResourceID(retired), UnitID: key.UnitID, Quantity: qty("1")},
	})
	require.ErrorIs(t, err, inventory.ErrReferenceArchived)
	assert.Equal(t, inventory.KindConflict, inventory.KindOf(err))

	_, err = e.receipts.CreateWithLines(ctx, "R-2", day(1), []inventory.LineInput{
		{ResourceID: 999, UnitID: key.UnitID, Quantity: qty("1")},
	})
	require.ErrorIs(t, err, inventory.ErrReferenceNotFound)
}

func TestRegistry_ListByStatus(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	e.ref(t, inventory.KindUnit, "kg")
	gone := e.ref(t, inventory.KindUnit, "gal")
	_, err := e.registry.Archive(ctx, inventory.KindUnit, gone)
	require.NoError(t, err)

	active := inventory.StatusActive
	refs, err := e.registry.List(ctx, inventory.KindUnit, &active)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "kg", refs[0].Name)

	refs, err = e.registry.List(ctx, inventory.KindUnit, nil)
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	used, err := e.registry.IsReferenced(ctx, inventory.KindUnit, gone)
	require.NoError(t, err)
	assert.False(t, used)
}

/*
store.go - Persistence interfaces for references, balances and documents

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations use SQLite, PostgreSQL, or in-memory storage.
  The store is deliberately dumb: it never checks stock, states or
  references. All rules live in the engines.

KEY INTERFACES:
  ReferenceStore: Resources, units and clients
  BalanceStore:   One row per (resource, unit) pair
  ReceiptStore:   Receipt documents and lines
  ShipmentStore:  Shipment documents and lines
  Store:          All of the above
  TxStore:        Store plus WithTx for atomic multi-table writes

ATOMIC OPERATIONS:
  Every engine operation that touches the ledger runs inside WithTx. If the
  callback returns an error nothing it wrote survives: a failed signing
  leaves no partial debits behind.

IMPLEMENTATIONS:
  - inventory/store/memory.go: In-memory (tests, --db=memory)
  - store/sqlite/sqlite.go:    SQLite
  - store/postgres/postgres.go: PostgreSQL

SEE ALSO:
  - scope.go: Locks balance keys and opens the transaction
  - ledger.go: Balance Ledger built on BalanceStore
*/
package inventory

import (
	"context"
	"time"
)

// =============================================================================
// FILTERS
// =============================================================================

// BalanceFilter selects balance rows. Empty sets do not filter.
type BalanceFilter struct {
	ResourceIDs []ResourceID
	UnitIDs     []UnitID
}

// Matches reports whether key passes the filter.
func (f BalanceFilter) Matches(key BalanceKey) bool {
	return containsID(f.ResourceIDs, key.ResourceID) && containsID(f.UnitIDs, key.UnitID)
}

// DocumentFilter selects documents for listings. Empty sets and nil dates do not filter.
// From and To are inclusive and compared by calendar day.
type DocumentFilter struct {
	From        *time.Time
	To          *time.Time
	Numbers     []string
	ResourceIDs []ResourceID
	UnitIDs     []UnitID

	// Shipment-only filters; ignored for receipts.
	ClientIDs []ClientID
	Statuses  []ShipmentStatus
}

// MatchesHeader checks the header-level criteria (dates and numbers).
func (f DocumentFilter) MatchesHeader(number string, date time.Time) bool {
	day := truncateDay(date)
	if f.From != nil && day.Before(truncateDay(*f.From)) {
		return false
	}
	if f.To != nil && day.After(truncateDay(*f.To)) {
		return false
	}
	return containsID(f.Numbers, number)
}

// MatchesLines checks line membership: with resource or unit filters set, at
// least one line must match both of them.
func (f DocumentFilter) MatchesLines(lines []Line) bool {
	if len(f.ResourceIDs) == 0 && len(f.UnitIDs) == 0 {
		return true
	}
	for _, l := range lines {
		if containsID(f.ResourceIDs, l.ResourceID) && containsID(f.UnitIDs, l.UnitID) {
			return true
		}
	}
	return false
}

// MatchesShipment applies every criterion to a shipment.
func (f DocumentFilter) MatchesShipment(doc ShipmentDocument) bool {
	return f.MatchesHeader(doc.Number, doc.Date) &&
		containsID(f.ClientIDs, doc.ClientID) &&
		containsID(f.Statuses, doc.Status) &&
		f.MatchesLines(doc.Lines)
}

// MatchesReceipt applies the receipt criteria.
func (f DocumentFilter) MatchesReceipt(doc ReceiptDocument) bool {
	return f.MatchesHeader(doc.Number, doc.Date) && f.MatchesLines(doc.Lines)
}

func containsID[T comparable](set []T, v T) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// STORE INTERFACES
// =============================================================================

// ReferenceStore persists resources, units and clients.
type ReferenceStore interface {
	// CreateReference inserts ref and returns it with its assigned ID.
	CreateReference(ctx context.Context, ref Reference) (Reference, error)

	// UpdateReference overwrites name, address and status.
	UpdateReference(ctx context.Context, ref Reference) error

	// GetReference returns nil, nil when the id does not exist.
	GetReference(ctx context.Context, kind RefKind, id int64) (*Reference, error)

	// FindActiveByName returns the active entity with the name, or nil.
	FindActiveByName(ctx context.Context, kind RefKind, name string) (*Reference, error)

	// ListReferences returns entities of kind ordered by name; nil status lists all.
	ListReferences(ctx context.Context, kind RefKind, status *Status) ([]Reference, error)

	// IsReferenced reports whether any balance, line or shipment points at the entity.
	IsReferenced(ctx context.Context, kind RefKind, id int64) (bool, error)
}

// BalanceStore persists balance rows.
type BalanceStore interface {
	// GetBalance returns nil, nil when no row exists. Inside a transaction
	// implementations lock the row until commit.
	GetBalance(ctx context.Context, key BalanceKey) (*Balance, error)

	// PutBalance creates or overwrites the row for b.Key.
	PutBalance(ctx context.Context, b Balance) error

	// ListBalances returns rows matching the filter ordered by key.
	ListBalances(ctx context.Context, filter BalanceFilter) ([]Balance, error)
}

// ReceiptStore persists receipt documents.
type ReceiptStore interface {
	CreateReceipt(ctx context.Context, doc ReceiptDocument) (ReceiptDocument, error)
	UpdateReceipt(ctx context.Context, doc ReceiptDocument) error
	// GetReceipt returns nil, nil when the id does not exist. Lines are loaded.
	GetReceipt(ctx context.Context, id DocumentID) (*ReceiptDocument, error)
	// ReceiptNumberTaken reports whether another receipt (id != except) uses number.
	ReceiptNumberTaken(ctx context.Context, number string, except DocumentID) (bool, error)
	AddReceiptLine(ctx context.Context, line Line) (Line, error)
	DeleteReceiptLine(ctx context.Context, id LineID) error
	// DeleteReceipt removes the document and its lines.
	DeleteReceipt(ctx context.Context, id DocumentID) error
	ListReceipts(ctx context.Context, filter DocumentFilter) ([]ReceiptDocument, error)
}

// ShipmentStore persists shipment documents.
type ShipmentStore interface {
	CreateShipment(ctx context.Context, doc ShipmentDocument) (ShipmentDocument, error)
	// UpdateShipment overwrites number, client, date and status.
	UpdateShipment(ctx context.Context, doc ShipmentDocument) error
	// GetShipment returns nil, nil when the id does not exist. Lines are loaded.
	GetShipment(ctx context.Context, id DocumentID) (*ShipmentDocument, error)
	ShipmentNumberTaken(ctx context.Context, number string, except DocumentID) (bool, error)
	AddShipmentLine(ctx context.Context, line Line) (Line, error)
	DeleteShipmentLine(ctx context.Context, id LineID) error
	DeleteShipment(ctx context.Context, id DocumentID) error
	ListShipments(ctx context.Context, filter DocumentFilter) ([]ShipmentDocument, error)
}

// Store is the full persistence surface used by the engines.
type Store interface {
	ReferenceStore
	BalanceStore
	ReceiptStore
	ShipmentStore
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Resetter is implemented by stores that can be wiped (demo scenarios, tests).
type Resetter interface {
	Reset(ctx context.Context) error
}

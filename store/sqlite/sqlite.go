/*
Package sqlite provides a SQLite-backed implementation of inventory.TxStore.

PURPOSE:
  Persists reference entities, balances and both document types with
  database/sql and mattn/go-sqlite3. The schema is auto-migrated on New().

KEY TABLES:
  resources, units, clients:            Reference entities (active/archived)
  balances:                             One row per (resource_id, unit_id)
  receipt_documents + receipt_lines:    Stock-in
  shipment_documents + shipment_lines:  Stock-out with status

QUANTITIES:
  Stored as TEXT with exactly 4 fractional digits ("12.5000"), the same
  representation inventory.Quantity.String() produces, so no precision is
  lost through SQLite's floating-point REAL type.

INDEXES:
  - idx_<kind>_active_name: names unique among active entities (partial index)
  - receipt_documents.number / shipment_documents.number: UNIQUE
  - idx_*_lines_document, idx_*_lines_pair: line lookups and usage checks

CONCURRENCY:
  The pool is limited to one connection and transactions start with
  BEGIN IMMEDIATE, so a WithTx callback holds the database write lock from
  its first read to commit. Check-then-write sequences cannot interleave.
  Inside WithTx every call must go through the transactional view; using
  the outer Store there would wait on the single connection forever.

USAGE:
  store, err := sqlite.New("./data/stock.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - inventory/store.go: Interface definitions
  - store/postgres: PostgreSQL implementation
  - inventory/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/stock-engine/inventory"
)

const dateLayout = "2006-01-02"

// Store implements inventory.TxStore using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{conn: db}, db: db}
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the database schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS resources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'archived')),
		created_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_resources_active_name
		ON resources(name COLLATE NOCASE) WHERE status = 'active';

	CREATE TABLE IF NOT EXISTS units (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'archived')),
		created_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_units_active_name
		ON units(name COLLATE NOCASE) WHERE status = 'active';

	CREATE TABLE IF NOT EXISTS clients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'archived')),
		created_at TEXT NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_clients_active_name
		ON clients(name COLLATE NOCASE) WHERE status = 'active';

	-- Balance ledger: at most one row per pair, never deleted
	CREATE TABLE IF NOT EXISTS balances (
		resource_id INTEGER NOT NULL REFERENCES resources(id),
		unit_id INTEGER NOT NULL REFERENCES units(id),
		quantity TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (resource_id, unit_id)
	);

	CREATE TABLE IF NOT EXISTS receipt_documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		number TEXT NOT NULL UNIQUE,
		date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_receipt_documents_date ON receipt_documents(date);

	CREATE TABLE IF NOT EXISTS receipt_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL REFERENCES receipt_documents(id) ON DELETE CASCADE,
		resource_id INTEGER NOT NULL REFERENCES resources(id),
		unit_id INTEGER NOT NULL REFERENCES units(id),
		quantity TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_receipt_lines_document ON receipt_lines(document_id);
	CREATE INDEX IF NOT EXISTS idx_receipt_lines_pair ON receipt_lines(resource_id, unit_id);

	CREATE TABLE IF NOT EXISTS shipment_documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		number TEXT NOT NULL UNIQUE,
		client_id INTEGER NOT NULL REFERENCES clients(id),
		date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'signed', 'revoked')),
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_shipment_documents_date ON shipment_documents(date);
	CREATE INDEX IF NOT EXISTS idx_shipment_documents_client ON shipment_documents(client_id);

	CREATE TABLE IF NOT EXISTS shipment_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL REFERENCES shipment_documents(id) ON DELETE CASCADE,
		resource_id INTEGER NOT NULL REFERENCES resources(id),
		unit_id INTEGER NOT NULL REFERENCES units(id),
		quantity TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_shipment_lines_document ON shipment_lines(document_id);
	CREATE INDEX IF NOT EXISTS idx_shipment_lines_pair ON shipment_lines(resource_id, unit_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tables := []string{
		"shipment_lines", "shipment_documents",
		"receipt_lines", "receipt_documents",
		"balances", "clients", "units", "resources",
	}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// =============================================================================
// TRANSACTIONAL STORE (inventory.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store inventory.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return inventory.WrapStore("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{conn: sqlTx}); err != nil {
		return err
	}

	return inventory.WrapStore("commit", sqlTx.Commit())
}

// =============================================================================
// QUERIES - shared by the pool and transactional paths
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	conn dbtx
}

func tableFor(kind inventory.RefKind) (string, error) {
	switch kind {
	case inventory.KindResource:
		return "resources", nil
	case inventory.KindUnit:
		return "units", nil
	case inventory.KindClient:
		return "clients", nil
	}
	return "", fmt.Errorf("unknown reference kind %q", kind)
}

// --- references ---

func (q queries) CreateReference(ctx context.Context, ref inventory.Reference) (inventory.Reference, error) {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return ref, err
	}
	res, err := q.conn.ExecContext(ctx,
		"INSERT INTO "+table+" (name, address, status, created_at) VALUES (?, ?, ?, ?)",
		ref.Name, ref.Address, ref.Status, now(),
	)
	if err != nil {
		return ref, mapConstraint(err, ref.Kind, ref.Name)
	}
	ref.ID, err = res.LastInsertId()
	return ref, err
}

func (q queries) UpdateReference(ctx context.Context, ref inventory.Reference) error {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return err
	}
	_, err = q.conn.ExecContext(ctx,
		"UPDATE "+table+" SET name = ?, address = ?, status = ? WHERE id = ?",
		ref.Name, ref.Address, ref.Status, ref.ID,
	)
	return mapConstraint(err, ref.Kind, ref.Name)
}

func (q queries) GetReference(ctx context.Context, kind inventory.RefKind, id int64) (*inventory.Reference, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	refs, err := q.queryReferences(ctx, kind, "SELECT id, name, address, status FROM "+table+" WHERE id = ?", id)
	if err != nil || len(refs) == 0 {
		return nil, err
	}
	return &refs[0], nil
}

func (q queries) FindActiveByName(ctx context.Context, kind inventory.RefKind, name string) (*inventory.Reference, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	refs, err := q.queryReferences(ctx, kind,
		"SELECT id, name, address, status FROM "+table+" WHERE status = 'active' AND name = ? COLLATE NOCASE", name)
	if err != nil || len(refs) == 0 {
		return nil, err
	}
	return &refs[0], nil
}

func (q queries) ListReferences(ctx context.Context, kind inventory.RefKind, status *inventory.Status) ([]inventory.Reference, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	query := "SELECT id, name, address, status FROM " + table
	var args []any
	if status != nil {
		query += " WHERE status = ?"
		args = append(args, *status)
	}
	query += " ORDER BY name, id"
	return q.queryReferences(ctx, kind, query, args...)
}

func (q queries) queryReferences(ctx context.Context, kind inventory.RefKind, query string, args ...any) ([]inventory.Reference, error) {
	rows, err := q.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", kind, err)
	}
	defer rows.Close()

	var refs []inventory.Reference
	for rows.Next() {
		ref := inventory.Reference{Kind: kind}
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.Address, &ref.Status); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (q queries) IsReferenced(ctx context.Context, kind inventory.RefKind, id int64) (bool, error) {
	var query string
	switch kind {
	case inventory.KindResource:
		query = `SELECT EXISTS (SELECT 1 FROM balances WHERE resource_id = ?1)
			OR EXISTS (SELECT 1 FROM receipt_lines WHERE resource_id = ?1)
			OR EXISTS (SELECT 1 FROM shipment_lines WHERE resource_id = ?1)`
	case inventory.KindUnit:
		query = `SELECT EXISTS (SELECT 1 FROM balances WHERE unit_id = ?1)
			OR EXISTS (SELECT 1 FROM receipt_lines WHERE unit_id = ?1)
			OR EXISTS (SELECT 1 FROM shipment_lines WHERE unit_id = ?1)`
	case inventory.KindClient:
		query = `SELECT EXISTS (SELECT 1 FROM shipment_documents WHERE client_id = ?1)`
	default:
		return false, fmt.Errorf("unknown reference kind %q", kind)
	}

	var used bool
	if err := q.conn.QueryRowContext(ctx, query, id).Scan(&used); err != nil {
		return false, err
	}
	return used, nil
}

// --- balances ---

func (q queries) GetBalance(ctx context.Context, key inventory.BalanceKey) (*inventory.Balance, error) {
	var quantity string
	err := q.conn.QueryRowContext(ctx,
		"SELECT quantity FROM balances WHERE resource_id = ? AND unit_id = ?",
		key.ResourceID, key.UnitID,
	).Scan(&quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	qty, err := inventory.ParseQuantity(quantity)
	if err != nil {
		return nil, err
	}
	return &inventory.Balance{Key: key, Quantity: qty}, nil
}

func (q queries) PutBalance(ctx context.Context, b inventory.Balance) error {
	_, err := q.conn.ExecContext(ctx, `
		INSERT INTO balances (resource_id, unit_id, quantity, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(resource_id, unit_id) DO UPDATE SET
			quantity = excluded.quantity,
			updated_at = excluded.updated_at
	`, b.Key.ResourceID, b.Key.UnitID, b.Quantity.String(), now())
	return err
}

func (q queries) ListBalances(ctx context.Context, filter inventory.BalanceFilter) ([]inventory.Balance, error) {
	var w where
	in(&w, "resource_id", filter.ResourceIDs)
	in(&w, "unit_id", filter.UnitIDs)

	rows, err := q.conn.QueryContext(ctx,
		"SELECT resource_id, unit_id, quantity FROM balances"+w.sql()+" ORDER BY resource_id, unit_id",
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []inventory.Balance
	for rows.Next() {
		var (
			b        inventory.Balance
			quantity string
		)
		if err := rows.Scan(&b.Key.ResourceID, &b.Key.UnitID, &quantity); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		if b.Quantity, err = inventory.ParseQuantity(quantity); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- receipts ---

func (q queries) CreateReceipt(ctx context.Context, doc inventory.ReceiptDocument) (inventory.ReceiptDocument, error) {
	res, err := q.conn.ExecContext(ctx,
		"INSERT INTO receipt_documents (number, date, created_at) VALUES (?, ?, ?)",
		doc.Number, formatDate(doc.Date), now(),
	)
	if err != nil {
		return doc, mapNumberConstraint(err, "receipt", doc.Number)
	}
	id, err := res.LastInsertId()
	doc.ID = inventory.DocumentID(id)
	doc.Lines = nil
	return doc, err
}

func (q queries) UpdateReceipt(ctx context.Context, doc inventory.ReceiptDocument) error {
	_, err := q.conn.ExecContext(ctx,
		"UPDATE receipt_documents SET number = ?, date = ? WHERE id = ?",
		doc.Number, formatDate(doc.Date), doc.ID,
	)
	return mapNumberConstraint(err, "receipt", doc.Number)
}

func (q queries) GetReceipt(ctx context.Context, id inventory.DocumentID) (*inventory.ReceiptDocument, error) {
	docs, err := q.queryReceipts(ctx, " WHERE d.id = ?", []any{id})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return &docs[0], nil
}

func (q queries) ReceiptNumberTaken(ctx context.Context, number string, except inventory.DocumentID) (bool, error) {
	return q.numberTaken(ctx, "receipt_documents", number, except)
}

func (q queries) AddReceiptLine(ctx context.Context, line inventory.Line) (inventory.Line, error) {
	return q.addLine(ctx, "receipt_lines", line)
}

func (q queries) DeleteReceiptLine(ctx context.Context, id inventory.LineID) error {
	_, err := q.conn.ExecContext(ctx, "DELETE FROM receipt_lines WHERE id = ?", id)
	return err
}

func (q queries) DeleteReceipt(ctx context.Context, id inventory.DocumentID) error {
	if _, err := q.conn.ExecContext(ctx, "DELETE FROM receipt_lines WHERE document_id = ?", id); err != nil {
		return err
	}
	_, err := q.conn.ExecContext(ctx, "DELETE FROM receipt_documents WHERE id = ?", id)
	return err
}

func (q queries) ListReceipts(ctx context.Context, filter inventory.DocumentFilter) ([]inventory.ReceiptDocument, error) {
	w := documentWhere(filter, "receipt_lines")
	return q.queryReceipts(ctx, w.sql(), w.args)
}

func (q queries) queryReceipts(ctx context.Context, where string, args []any) ([]inventory.ReceiptDocument, error) {
	rows, err := q.conn.QueryContext(ctx,
		"SELECT d.id, d.number, d.date FROM receipt_documents d"+where+" ORDER BY d.date DESC, d.id DESC",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}

	var (
		docs []inventory.ReceiptDocument
		ids  []inventory.DocumentID
	)
	err = func() error {
		defer rows.Close()
		for rows.Next() {
			var (
				doc  inventory.ReceiptDocument
				date string
			)
			if err := rows.Scan(&doc.ID, &doc.Number, &date); err != nil {
				return fmt.Errorf("failed to scan receipt: %w", err)
			}
			parsed, err := time.Parse(dateLayout, date)
			if err != nil {
				return fmt.Errorf("failed to parse receipt %d date: %w", doc.ID, err)
			}
			doc.Date = parsed
			docs = append(docs, doc)
			ids = append(ids, doc.ID)
		}
		return rows.Err()
	}()
	if err != nil {
		return nil, err
	}

	lines, err := q.loadLines(ctx, "receipt_lines", ids)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Lines = lines[docs[i].ID]
	}
	return docs, nil
}

// --- shipments ---

func (q queries) CreateShipment(ctx context.Context, doc inventory.ShipmentDocument) (inventory.ShipmentDocument, error) {
	res, err := q.conn.ExecContext(ctx,
		"INSERT INTO shipment_documents (number, client_id, date, status, created_at) VALUES (?, ?, ?, ?, ?)",
		doc.Number, doc.ClientID, formatDate(doc.Date), doc.Status, now(),
	)
	if err != nil {
		return doc, mapNumberConstraint(err, "shipment", doc.Number)
	}
	id, err := res.LastInsertId()
	doc.ID = inventory.DocumentID(id)
	doc.Lines = nil
	return doc, err
}

func (q queries) UpdateShipment(ctx context.Context, doc inventory.ShipmentDocument) error {
	_, err := q.conn.ExecContext(ctx,
		"UPDATE shipment_documents SET number = ?, client_id = ?, date = ?, status = ? WHERE id = ?",
		doc.Number, doc.ClientID, formatDate(doc.Date), doc.Status, doc.ID,
	)
	return mapNumberConstraint(err, "shipment", doc.Number)
}

func (q queries) GetShipment(ctx context.Context, id inventory.DocumentID) (*inventory.ShipmentDocument, error) {
	docs, err := q.queryShipments(ctx, " WHERE d.id = ?", []any{id})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return &docs[0], nil
}

func (q queries) ShipmentNumberTaken(ctx context.Context, number string, except inventory.DocumentID) (bool, error) {
	return q.numberTaken(ctx, "shipment_documents", number, except)
}

func (q queries) AddShipmentLine(ctx context.Context, line inventory.Line) (inventory.Line, error) {
	return q.addLine(ctx, "shipment_lines", line)
}

func (q queries) DeleteShipmentLine(ctx context.Context, id inventory.LineID) error {
	_, err := q.conn.ExecContext(ctx, "DELETE FROM shipment_lines WHERE id = ?", id)
	return err
}

func (q queries) DeleteShipment(ctx context.Context, id inventory.DocumentID) error {
	if _, err := q.conn.ExecContext(ctx, "DELETE FROM shipment_lines WHERE document_id = ?", id); err != nil {
		return err
	}
	_, err := q.conn.ExecContext(ctx, "DELETE FROM shipment_documents WHERE id = ?", id)
	return err
}

func (q queries) ListShipments(ctx context.Context, filter inventory.DocumentFilter) ([]inventory.ShipmentDocument, error) {
	w := documentWhere(filter, "shipment_lines")
	in(&w, "d.client_id", filter.ClientIDs)
	in(&w, "d.status", filter.Statuses)
	return q.queryShipments(ctx, w.sql(), w.args)
}

func (q queries) queryShipments(ctx context.Context, where string, args []any) ([]inventory.ShipmentDocument, error) {
	rows, err := q.conn.QueryContext(ctx,
		"SELECT d.id, d.number, d.client_id, d.date, d.status FROM shipment_documents d"+where+" ORDER BY d.date DESC, d.id DESC",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shipments: %w", err)
	}

	var (
		docs []inventory.ShipmentDocument
		ids  []inventory.DocumentID
	)
	err = func() error {
		defer rows.Close()
		for rows.Next() {
			var (
				doc  inventory.ShipmentDocument
				date string
			)
			if err := rows.Scan(&doc.ID, &doc.Number, &doc.ClientID, &date, &doc.Status); err != nil {
				return fmt.Errorf("failed to scan shipment: %w", err)
			}
			parsed, err := time.Parse(dateLayout, date)
			if err != nil {
				return fmt.Errorf("failed to parse shipment %d date: %w", doc.ID, err)
			}
			doc.Date = parsed
			docs = append(docs, doc)
			ids = append(ids, doc.ID)
		}
		return rows.Err()
	}()
	if err != nil {
		return nil, err
	}

	lines, err := q.loadLines(ctx, "shipment_lines", ids)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Lines = lines[docs[i].ID]
	}
	return docs, nil
}

// --- shared document helpers ---

func (q queries) numberTaken(ctx context.Context, table, number string, except inventory.DocumentID) (bool, error) {
	var taken bool
	err := q.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM "+table+" WHERE number = ? AND id <> ?)",
		number, except,
	).Scan(&taken)
	return taken, err
}

func (q queries) addLine(ctx context.Context, table string, line inventory.Line) (inventory.Line, error) {
	res, err := q.conn.ExecContext(ctx,
		"INSERT INTO "+table+" (document_id, resource_id, unit_id, quantity) VALUES (?, ?, ?, ?)",
		line.DocumentID, line.ResourceID, line.UnitID, line.Quantity.String(),
	)
	if err != nil {
		return line, err
	}
	id, err := res.LastInsertId()
	line.ID = inventory.LineID(id)
	return line, err
}

func (q queries) loadLines(ctx context.Context, table string, ids []inventory.DocumentID) (map[inventory.DocumentID][]inventory.Line, error) {
	out := make(map[inventory.DocumentID][]inventory.Line, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var w where
	in(&w, "document_id", ids)
	rows, err := q.conn.QueryContext(ctx,
		"SELECT id, document_id, resource_id, unit_id, quantity FROM "+table+w.sql()+" ORDER BY id",
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l        inventory.Line
			quantity string
		)
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.ResourceID, &l.UnitID, &quantity); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		if l.Quantity, err = inventory.ParseQuantity(quantity); err != nil {
			return nil, err
		}
		out[l.DocumentID] = append(out[l.DocumentID], l)
	}
	return out, rows.Err()
}

// documentWhere builds the header and line-membership criteria shared by
// both document types. Documents are aliased d.
func documentWhere(filter inventory.DocumentFilter, linesTable string) where {
	var w where
	if filter.From != nil {
		w.add("d.date >= ?", formatDate(*filter.From))
	}
	if filter.To != nil {
		w.add("d.date <= ?", formatDate(*filter.To))
	}
	in(&w, "d.number", filter.Numbers)

	if len(filter.ResourceIDs) > 0 || len(filter.UnitIDs) > 0 {
		var lw where
		lw.add("l.document_id = d.id")
		in(&lw, "l.resource_id", filter.ResourceIDs)
		in(&lw, "l.unit_id", filter.UnitIDs)
		w.add("EXISTS (SELECT 1 FROM "+linesTable+" l"+lw.sql()+")", lw.args...)
	}
	return w
}

// =============================================================================
// HELPERS
// =============================================================================

// where accumulates AND-ed conditions and their arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func in[T any](w *where, column string, values []T) {
	if len(values) == 0 {
		return
	}
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	w.add(column+" IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")+")", args...)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func mapConstraint(err error, kind inventory.RefKind, name string) error {
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s %q", inventory.ErrDuplicateName, kind, name)
	}
	return err
}

func mapNumberConstraint(err error, what, number string) error {
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s %q", inventory.ErrDuplicateNumber, what, number)
	}
	return err
}

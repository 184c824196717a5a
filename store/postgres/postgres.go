/*
Package postgres provides a PostgreSQL-backed implementation of inventory.TxStore.

PURPOSE:
  Production backend for multi-instance deployments. Uses jackc/pgx/v5
  with a pgxpool connection pool. The schema mirrors store/sqlite with
  native types: NUMERIC(18,4) quantities and DATE document dates.

ROW LOCKS:
  Inside WithTx, GetBalance reads with FOR UPDATE and GetReference with
  FOR SHARE.

    balance rows:    a concurrent check-then-debit on the same pair waits
                     for the first transaction to commit
    reference rows:  documents share-lock the entities they use; Archive
                     updates the row (waiting for those documents) before
                     it checks for references, so an entity is never
                     archived while a concurrent line attaches to it

  A balance row that does not exist yet cannot be locked, so GetBalance
  inside a transaction first inserts a zero row (ON CONFLICT DO NOTHING).
  Concurrent first postings for a pair then queue on that row even when
  the instances share no inventory.Locker.

USAGE:
  pool, err := postgres.NewPool(ctx, os.Getenv("DATABASE_URL"))
  store := postgres.New(pool)
  if err := store.Migrate(ctx); err != nil { ... }

SEE ALSO:
  - inventory/store.go: Interface definitions
  - store/sqlite: Embedded implementation
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/warp/stock-engine/inventory"
)

const schema = `
CREATE TABLE IF NOT EXISTS resources (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'archived')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_resources_active_name ON resources (lower(name)) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS units (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'archived')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_units_active_name ON units (lower(name)) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS clients (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'archived')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_clients_active_name ON clients (lower(name)) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS balances (
	resource_id BIGINT NOT NULL REFERENCES resources(id),
	unit_id BIGINT NOT NULL REFERENCES units(id),
	quantity NUMERIC(18,4) NOT NULL CHECK (quantity >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (resource_id, unit_id)
);

CREATE TABLE IF NOT EXISTS receipt_documents (
	id BIGSERIAL PRIMARY KEY,
	number TEXT NOT NULL UNIQUE,
	date DATE NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_receipt_documents_date ON receipt_documents(date);

CREATE TABLE IF NOT EXISTS receipt_lines (
	id BIGSERIAL PRIMARY KEY,
	document_id BIGINT NOT NULL REFERENCES receipt_documents(id) ON DELETE CASCADE,
	resource_id BIGINT NOT NULL REFERENCES resources(id),
	unit_id BIGINT NOT NULL REFERENCES units(id),
	quantity NUMERIC(18,4) NOT NULL CHECK (quantity > 0)
);
CREATE INDEX IF NOT EXISTS idx_receipt_lines_document ON receipt_lines(document_id);
CREATE INDEX IF NOT EXISTS idx_receipt_lines_pair ON receipt_lines(resource_id, unit_id);

CREATE TABLE IF NOT EXISTS shipment_documents (
	id BIGSERIAL PRIMARY KEY,
	number TEXT NOT NULL UNIQUE,
	client_id BIGINT NOT NULL REFERENCES clients(id),
	date DATE NOT NULL,
	status TEXT NOT NULL DEFAULT 'draft' CHECK (status IN ('draft', 'signed', 'revoked')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_shipment_documents_date ON shipment_documents(date);
CREATE INDEX IF NOT EXISTS idx_shipment_documents_client ON shipment_documents(client_id);

CREATE TABLE IF NOT EXISTS shipment_lines (
	id BIGSERIAL PRIMARY KEY,
	document_id BIGINT NOT NULL REFERENCES shipment_documents(id) ON DELETE CASCADE,
	resource_id BIGINT NOT NULL REFERENCES resources(id),
	unit_id BIGINT NOT NULL REFERENCES units(id),
	quantity NUMERIC(18,4) NOT NULL CHECK (quantity > 0)
);
CREATE INDEX IF NOT EXISTS idx_shipment_lines_document ON shipment_lines(document_id);
CREATE INDEX IF NOT EXISTS idx_shipment_lines_pair ON shipment_lines(resource_id, unit_id);
`

// NewPool opens and pings a connection pool for connStr.
func NewPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	if connStr == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	config, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to parse DATABASE_URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

// Store implements inventory.TxStore on a pgx pool.
type Store struct {
	queries
	pool *pgxpool.Pool
}

// New wraps an open pool. Call Migrate before first use.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{conn: pool}, pool: pool}
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE shipment_lines, shipment_documents, receipt_lines,
		receipt_documents, balances, clients, units, resources RESTART IDENTITY`)
	return err
}

// WithTx executes fn in a READ COMMITTED transaction.
func (s *Store) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return inventory.WrapStore("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(queries{conn: tx, inTx: true}); err != nil {
		return err
	}

	return inventory.WrapStore("commit", tx.Commit(ctx))
}

// =============================================================================
// QUERIES
// =============================================================================

type conn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	conn conn
	inTx bool
}

func (q queries) forUpdate() string {
	if q.inTx {
		return " FOR UPDATE"
	}
	return ""
}

func (q queries) forShare() string {
	if q.inTx {
		return " FOR SHARE"
	}
	return ""
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
	err = q.conn.QueryRow(ctx,
		"INSERT INTO "+table+" (name, address, status) VALUES ($1, $2, $3) RETURNING id",
		ref.Name, ref.Address, string(ref.Status),
	).Scan(&ref.ID)
	return ref, mapUnique(err, ref.Kind, ref.Name)
}

func (q queries) UpdateReference(ctx context.Context, ref inventory.Reference) error {
	table, err := tableFor(ref.Kind)
	if err != nil {
		return err
	}
	_, err = q.conn.Exec(ctx,
		"UPDATE "+table+" SET name = $1, address = $2, status = $3 WHERE id = $4",
		ref.Name, ref.Address, string(ref.Status), ref.ID,
	)
	return mapUnique(err, ref.Kind, ref.Name)
}

func (q queries) GetReference(ctx context.Context, kind inventory.RefKind, id int64) (*inventory.Reference, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	refs, err := q.queryReferences(ctx, kind,
		"SELECT id, name, address, status FROM "+table+" WHERE id = $1"+q.forShare(), id)
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
		"SELECT id, name, address, status FROM "+table+" WHERE status = 'active' AND lower(name) = lower($1)", name)
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
	var w where
	if status != nil {
		w.add("status = ?", string(*status))
	}
	return q.queryReferences(ctx, kind,
		"SELECT id, name, address, status FROM "+table+w.sql()+" ORDER BY name, id", w.args...)
}

func (q queries) queryReferences(ctx context.Context, kind inventory.RefKind, sql string, args ...any) ([]inventory.Reference, error) {
	rows, err := q.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", kind, err)
	}
	defer rows.Close()

	var refs []inventory.Reference
	for rows.Next() {
		var (
			ref    = inventory.Reference{Kind: kind}
			status string
		)
		if err := rows.Scan(&ref.ID, &ref.Name, &ref.Address, &status); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", kind, err)
		}
		ref.Status = inventory.Status(status)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (q queries) IsReferenced(ctx context.Context, kind inventory.RefKind, id int64) (bool, error) {
	var sql string
	switch kind {
	case inventory.KindResource:
		sql = `SELECT EXISTS (SELECT 1 FROM balances WHERE resource_id = $1)
			OR EXISTS (SELECT 1 FROM receipt_lines WHERE resource_id = $1)
			OR EXISTS (SELECT 1 FROM shipment_lines WHERE resource_id = $1)`
	case inventory.KindUnit:
		sql = `SELECT EXISTS (SELECT 1 FROM balances WHERE unit_id = $1)
			OR EXISTS (SELECT 1 FROM receipt_lines WHERE unit_id = $1)
			OR EXISTS (SELECT 1 FROM shipment_lines WHERE unit_id = $1)`
	case inventory.KindClient:
		sql = `SELECT EXISTS (SELECT 1 FROM shipment_documents WHERE client_id = $1)`
	default:
		return false, fmt.Errorf("unknown reference kind %q", kind)
	}

	var used bool
	err := q.conn.QueryRow(ctx, sql, id).Scan(&used)
	return used, err
}

// --- balances ---

func (q queries) GetBalance(ctx context.Context, key inventory.BalanceKey) (*inventory.Balance, error) {
	if q.inTx {
		if err := q.claimBalance(ctx, key); err != nil {
			return nil, err
		}
	}

	var quantity string
	err := q.conn.QueryRow(ctx,
		"SELECT quantity::text FROM balances WHERE resource_id = $1 AND unit_id = $2"+q.forUpdate(),
		int64(key.ResourceID), int64(key.UnitID),
	).Scan(&quantity)
	if errors.Is(err, pgx.ErrNoRows) {
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

// claimBalance inserts a zero row for key unless one exists, so the FOR UPDATE
// read that follows always has a row to lock. Two transactions posting the
// first quantity for a pair then serialize on that row instead of both
// seeing no row. The row is rolled back with the transaction when nothing
// is posted.
func (q queries) claimBalance(ctx context.Context, key inventory.BalanceKey) error {
	_, err := q.conn.Exec(ctx, `
		INSERT INTO balances (resource_id, unit_id, quantity)
		SELECT $1, $2, 0
		WHERE EXISTS (SELECT 1 FROM resources WHERE id = $1)
			AND EXISTS (SELECT 1 FROM units WHERE id = $2)
		ON CONFLICT (resource_id, unit_id) DO NOTHING
	`, int64(key.ResourceID), int64(key.UnitID))
	return err
}

func (q queries) PutBalance(ctx context.Context, b inventory.Balance) error {
	_, err := q.conn.Exec(ctx, `
		INSERT INTO balances (resource_id, unit_id, quantity, updated_at)
		VALUES ($1, $2, $3::numeric, now())
		ON CONFLICT (resource_id, unit_id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			updated_at = EXCLUDED.updated_at
	`, int64(b.Key.ResourceID), int64(b.Key.UnitID), b.Quantity.String())
	return err
}

func (q queries) ListBalances(ctx context.Context, filter inventory.BalanceFilter) ([]inventory.Balance, error) {
	var w where
	w.anyOf("resource_id", int64s(filter.ResourceIDs))
	w.anyOf("unit_id", int64s(filter.UnitIDs))

	rows, err := q.conn.Query(ctx,
		"SELECT resource_id, unit_id, quantity::text FROM balances"+w.sql()+" ORDER BY resource_id, unit_id",
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []inventory.Balance
	for rows.Next() {
		var (
			resourceID, unitID int64
			quantity           string
		)
		if err := rows.Scan(&resourceID, &unitID, &quantity); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		qty, err := inventory.ParseQuantity(quantity)
		if err != nil {
			return nil, err
		}
		out = append(out, inventory.Balance{
			Key:      inventory.BalanceKey{ResourceID: inventory.ResourceID(resourceID), UnitID: inventory.UnitID(unitID)},
			Quantity: qty,
		})
	}
	return out, rows.Err()
}

// --- receipts ---

func (q queries) CreateReceipt(ctx context.Context, doc inventory.ReceiptDocument) (inventory.ReceiptDocument, error) {
	var id int64
	err := q.conn.QueryRow(ctx,
		"INSERT INTO receipt_documents (number, date) VALUES ($1, $2) RETURNING id",
		doc.Number, dateOnly(doc.Date),
	).Scan(&id)
	if err != nil {
		return doc, mapUniqueNumber(err, "receipt", doc.Number)
	}
	doc.ID = inventory.DocumentID(id)
	doc.Lines = nil
	return doc, nil
}

func (q queries) UpdateReceipt(ctx context.Context, doc inventory.ReceiptDocument) error {
	_, err := q.conn.Exec(ctx,
		"UPDATE receipt_documents SET number = $1, date = $2 WHERE id = $3",
		doc.Number, dateOnly(doc.Date), int64(doc.ID),
	)
	return mapUniqueNumber(err, "receipt", doc.Number)
}

func (q queries) GetReceipt(ctx context.Context, id inventory.DocumentID) (*inventory.ReceiptDocument, error) {
	var w where
	w.add("d.id = ?", int64(id))
	docs, err := q.queryReceipts(ctx, w)
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
	_, err := q.conn.Exec(ctx, "DELETE FROM receipt_lines WHERE id = $1", int64(id))
	return err
}

func (q queries) DeleteReceipt(ctx context.Context, id inventory.DocumentID) error {
	_, err := q.conn.Exec(ctx, "DELETE FROM receipt_documents WHERE id = $1", int64(id))
	return err
}

func (q queries) ListReceipts(ctx context.Context, filter inventory.DocumentFilter) ([]inventory.ReceiptDocument, error) {
	return q.queryReceipts(ctx, documentWhere(filter, "receipt_lines"))
}

func (q queries) queryReceipts(ctx context.Context, w where) ([]inventory.ReceiptDocument, error) {
	rows, err := q.conn.Query(ctx,
		"SELECT d.id, d.number, d.date FROM receipt_documents d"+w.sql()+" ORDER BY d.date DESC, d.id DESC",
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.ReceiptDocument, error) {
		var (
			doc inventory.ReceiptDocument
			id  int64
		)
		err := row.Scan(&id, &doc.Number, &doc.Date)
		doc.ID = inventory.DocumentID(id)
		return doc, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan receipt: %w", err)
	}

	ids := make([]int64, len(docs))
	for i, d := range docs {
		ids[i] = int64(d.ID)
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
	var id int64
	err := q.conn.QueryRow(ctx,
		"INSERT INTO shipment_documents (number, client_id, date, status) VALUES ($1, $2, $3, $4) RETURNING id",
		doc.Number, int64(doc.ClientID), dateOnly(doc.Date), string(doc.Status),
	).Scan(&id)
	if err != nil {
		return doc, mapUniqueNumber(err, "shipment", doc.Number)
	}
	doc.ID = inventory.DocumentID(id)
	doc.Lines = nil
	return doc, nil
}

func (q queries) UpdateShipment(ctx context.Context, doc inventory.ShipmentDocument) error {
	_, err := q.conn.Exec(ctx,
		"UPDATE shipment_documents SET number = $1, client_id = $2, date = $3, status = $4 WHERE id = $5",
		doc.Number, int64(doc.ClientID), dateOnly(doc.Date), string(doc.Status), int64(doc.ID),
	)
	return mapUniqueNumber(err, "shipment", doc.Number)
}

func (q queries) GetShipment(ctx context.Context, id inventory.DocumentID) (*inventory.ShipmentDocument, error) {
	var w where
	w.add("d.id = ?", int64(id))
	docs, err := q.queryShipments(ctx, w, q.forUpdate())
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
	_, err := q.conn.Exec(ctx, "DELETE FROM shipment_lines WHERE id = $1", int64(id))
	return err
}

func (q queries) DeleteShipment(ctx context.Context, id inventory.DocumentID) error {
	_, err := q.conn.Exec(ctx, "DELETE FROM shipment_documents WHERE id = $1", int64(id))
	return err
}

func (q queries) ListShipments(ctx context.Context, filter inventory.DocumentFilter) ([]inventory.ShipmentDocument, error) {
	w := documentWhere(filter, "shipment_lines")
	w.anyOf("d.client_id", int64s(filter.ClientIDs))
	statuses := make([]string, len(filter.Statuses))
	for i, s := range filter.Statuses {
		statuses[i] = string(s)
	}
	w.anyOf("d.status", statuses)
	return q.queryShipments(ctx, w, "")
}

// queryShipments loads headers then lines. lock is appended to the header
// query so Sign and Revoke hold the document row until commit.
func (q queries) queryShipments(ctx context.Context, w where, lock string) ([]inventory.ShipmentDocument, error) {
	rows, err := q.conn.Query(ctx,
		"SELECT d.id, d.number, d.client_id, d.date, d.status FROM shipment_documents d"+w.sql()+" ORDER BY d.date DESC, d.id DESC"+lock,
		w.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shipments: %w", err)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.ShipmentDocument, error) {
		var (
			doc          inventory.ShipmentDocument
			id, clientID int64
			status       string
		)
		err := row.Scan(&id, &doc.Number, &clientID, &doc.Date, &status)
		doc.ID = inventory.DocumentID(id)
		doc.ClientID = inventory.ClientID(clientID)
		doc.Status = inventory.ShipmentStatus(status)
		return doc, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan shipment: %w", err)
	}

	ids := make([]int64, len(docs))
	for i, d := range docs {
		ids[i] = int64(d.ID)
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
	err := q.conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM "+table+" WHERE number = $1 AND id <> $2)",
		number, int64(except),
	).Scan(&taken)
	return taken, err
}

func (q queries) addLine(ctx context.Context, table string, line inventory.Line) (inventory.Line, error) {
	var id int64
	err := q.conn.QueryRow(ctx,
		"INSERT INTO "+table+" (document_id, resource_id, unit_id, quantity) VALUES ($1, $2, $3, $4::numeric) RETURNING id",
		int64(line.DocumentID), int64(line.ResourceID), int64(line.UnitID), line.Quantity.String(),
	).Scan(&id)
	line.ID = inventory.LineID(id)
	return line, err
}

func (q queries) loadLines(ctx context.Context, table string, ids []int64) (map[inventory.DocumentID][]inventory.Line, error) {
	out := make(map[inventory.DocumentID][]inventory.Line, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := q.conn.Query(ctx,
		"SELECT id, document_id, resource_id, unit_id, quantity::text FROM "+table+" WHERE document_id = ANY($1) ORDER BY id",
		ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, docID, resourceID, unitID int64
			quantity                      string
		)
		if err := rows.Scan(&id, &docID, &resourceID, &unitID, &quantity); err != nil {
			return nil, fmt.Errorf("failed to scan line: %w", err)
		}
		qty, err := inventory.ParseQuantity(quantity)
		if err != nil {
			return nil, err
		}
		l := inventory.Line{
			ID:         inventory.LineID(id),
			DocumentID: inventory.DocumentID(docID),
			ResourceID: inventory.ResourceID(resourceID),
			UnitID:     inventory.UnitID(unitID),
			Quantity:   qty,
		}
		out[l.DocumentID] = append(out[l.DocumentID], l)
	}
	return out, rows.Err()
}

func documentWhere(filter inventory.DocumentFilter, linesTable string) where {
	var w where
	if filter.From != nil {
		w.add("d.date >= ?", dateOnly(*filter.From))
	}
	if filter.To != nil {
		w.add("d.date <= ?", dateOnly(*filter.To))
	}
	w.anyOf("d.number", filter.Numbers)

	if len(filter.ResourceIDs) > 0 || len(filter.UnitIDs) > 0 {
		// Line criteria are rendered with the outer placeholders so the
		// numbering stays consecutive.
		cond := "EXISTS (SELECT 1 FROM " + linesTable + " l WHERE l.document_id = d.id"
		var args []any
		if len(filter.ResourceIDs) > 0 {
			cond += " AND l.resource_id = ANY(?)"
			args = append(args, int64s(filter.ResourceIDs))
		}
		if len(filter.UnitIDs) > 0 {
			cond += " AND l.unit_id = ANY(?)"
			args = append(args, int64s(filter.UnitIDs))
		}
		w.add(cond+")", args...)
	}
	return w
}

// =============================================================================
// HELPERS
// =============================================================================

// where accumulates AND-ed conditions written with ? placeholders and
// renders them as $1..$n.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		cond = strings.Replace(cond, "?", "$"+strconv.Itoa(len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

// anyOf adds "column = ANY(values)" unless values is empty.
func (w *where) anyOf(column string, values any) {
	switch v := values.(type) {
	case []int64:
		if len(v) == 0 {
			return
		}
	case []string:
		if len(v) == 0 {
			return
		}
	}
	w.add(column+" = ANY(?)", values)
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func int64s[T ~int64](ids []T) []int64 {
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func mapUnique(err error, kind inventory.RefKind, name string) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s %q", inventory.ErrDuplicateName, kind, name)
	}
	return err
}

func mapUniqueNumber(err error, what, number string) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s %q", inventory.ErrDuplicateNumber, what, number)
	}
	return err
}

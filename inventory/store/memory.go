// Package store provides in-memory Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/stock-engine/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	view
	mu sync.RWMutex
	st *state
}

type state struct {
	nextID     int64
	references map[inventory.RefKind]map[int64]inventory.Reference
	balances   map[inventory.BalanceKey]inventory.Quantity
	receipts   map[inventory.DocumentID]inventory.ReceiptDocument
	shipments  map[inventory.DocumentID]inventory.ShipmentDocument
}

func newState() *state {
	return &state{
		references: map[inventory.RefKind]map[int64]inventory.Reference{
			inventory.KindResource: {},
			inventory.KindUnit:     {},
			inventory.KindClient:   {},
		},
		balances:  make(map[inventory.BalanceKey]inventory.Quantity),
		receipts:  make(map[inventory.DocumentID]inventory.ReceiptDocument),
		shipments: make(map[inventory.DocumentID]inventory.ShipmentDocument),
	}
}

func NewMemory() *Memory {
	m := &Memory{st: newState()}
	m.view = view{m: m}
	return m
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = newState()
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialized, which is stronger than the snapshot
// isolation the SQL stores give.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.st.clone()

	if err := fn(view{m: tm.Memory, tx: true}); err != nil {
		tm.st = snapshot
		return err
	}
	return nil
}

func (s *state) clone() *state {
	c := newState()
	c.nextID = s.nextID
	for kind, refs := range s.references {
		for id, r := range refs {
			c.references[kind][id] = r
		}
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for id, d := range s.receipts {
		d.Lines = append([]inventory.Line(nil), d.Lines...)
		c.receipts[id] = d
	}
	for id, d := range s.shipments {
		d.Lines = append([]inventory.Line(nil), d.Lines...)
		c.shipments[id] = d
	}
	return c
}

// =============================================================================
// VIEW - Store methods shared by the locked and transactional paths
// =============================================================================

// view implements inventory.Store. Outside a transaction every call takes the
// Memory lock; inside WithTx the lock is already held.
type view struct {
	m  *Memory
	tx bool
}

func (v view) read() func() {
	if v.tx {
		return func() {}
	}
	v.m.mu.RLock()
	return v.m.mu.RUnlock
}

func (v view) write() func() {
	if v.tx {
		return func() {}
	}
	v.m.mu.Lock()
	return v.m.mu.Unlock
}

func (v view) next() int64 {
	v.m.st.nextID++
	return v.m.st.nextID
}

// --- references ---

func (v view) CreateReference(_ context.Context, ref inventory.Reference) (inventory.Reference, error) {
	defer v.write()()
	ref.ID = v.next()
	v.m.st.references[ref.Kind][ref.ID] = ref
	return ref, nil
}

func (v view) UpdateReference(_ context.Context, ref inventory.Reference) error {
	defer v.write()()
	v.m.st.references[ref.Kind][ref.ID] = ref
	return nil
}

func (v view) GetReference(_ context.Context, kind inventory.RefKind, id int64) (*inventory.Reference, error) {
	defer v.read()()
	ref, ok := v.m.st.references[kind][id]
	if !ok {
		return nil, nil
	}
	return &ref, nil
}

func (v view) FindActiveByName(_ context.Context, kind inventory.RefKind, name string) (*inventory.Reference, error) {
	defer v.read()()
	for _, ref := range v.m.st.references[kind] {
		if ref.Active() && strings.EqualFold(ref.Name, name) {
			return &ref, nil
		}
	}
	return nil, nil
}

func (v view) ListReferences(_ context.Context, kind inventory.RefKind, status *inventory.Status) ([]inventory.Reference, error) {
	defer v.read()()
	var out []inventory.Reference
	for _, ref := range v.m.st.references[kind] {
		if status == nil || ref.Status == *status {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (v view) IsReferenced(_ context.Context, kind inventory.RefKind, id int64) (bool, error) {
	defer v.read()()
	st := v.m.st

	if kind == inventory.KindClient {
		for _, d := range st.shipments {
			if int64(d.ClientID) == id {
				return true, nil
			}
		}
		return false, nil
	}

	matches := func(resource inventory.ResourceID, unit inventory.UnitID) bool {
		if kind == inventory.KindResource {
			return int64(resource) == id
		}
		return int64(unit) == id
	}
	for k := range st.balances {
		if matches(k.ResourceID, k.UnitID) {
			return true, nil
		}
	}
	for _, d := range st.receipts {
		for _, l := range d.Lines {
			if matches(l.ResourceID, l.UnitID) {
				return true, nil
			}
		}
	}
	for _, d := range st.shipments {
		for _, l := range d.Lines {
			if matches(l.ResourceID, l.UnitID) {
				return true, nil
			}
		}
	}
	return false, nil
}

// --- balances ---

func (v view) GetBalance(_ context.Context, key inventory.BalanceKey) (*inventory.Balance, error) {
	defer v.read()()
	q, ok := v.m.st.balances[key]
	if !ok {
		return nil, nil
	}
	return &inventory.Balance{Key: key, Quantity: q}, nil
}

func (v view) PutBalance(_ context.Context, b inventory.Balance) error {
	defer v.write()()
	v.m.st.balances[b.Key] = b.Quantity
	return nil
}

func (v view) ListBalances(_ context.Context, filter inventory.BalanceFilter) ([]inventory.Balance, error) {
	defer v.read()()
	var out []inventory.Balance
	for k, q := range v.m.st.balances {
		if filter.Matches(k) {
			out = append(out, inventory.Balance{Key: k, Quantity: q})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.ResourceID != b.ResourceID {
			return a.ResourceID < b.ResourceID
		}
		return a.UnitID < b.UnitID
	})
	return out, nil
}

// --- receipts ---

func (v view) CreateReceipt(_ context.Context, doc inventory.ReceiptDocument) (inventory.ReceiptDocument, error) {
	defer v.write()()
	doc.ID = inventory.DocumentID(v.next())
	doc.Lines = nil
	v.m.st.receipts[doc.ID] = doc
	return doc, nil
}

func (v view) UpdateReceipt(_ context.Context, doc inventory.ReceiptDocument) error {
	defer v.write()()
	current, ok := v.m.st.receipts[doc.ID]
	if !ok {
		return nil
	}
	current.Number = doc.Number
	current.Date = doc.Date
	v.m.st.receipts[doc.ID] = current
	return nil
}

func (v view) GetReceipt(_ context.Context, id inventory.DocumentID) (*inventory.ReceiptDocument, error) {
	defer v.read()()
	doc, ok := v.m.st.receipts[id]
	if !ok {
		return nil, nil
	}
	doc.Lines = append([]inventory.Line(nil), doc.Lines...)
	return &doc, nil
}

func (v view) ReceiptNumberTaken(_ context.Context, number string, except inventory.DocumentID) (bool, error) {
	defer v.read()()
	for id, d := range v.m.st.receipts {
		if id != except && d.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (v view) AddReceiptLine(_ context.Context, line inventory.Line) (inventory.Line, error) {
	defer v.write()()
	doc := v.m.st.receipts[line.DocumentID]
	line.ID = inventory.LineID(v.next())
	doc.Lines = append(append([]inventory.Line(nil), doc.Lines...), line)
	v.m.st.receipts[line.DocumentID] = doc
	return line, nil
}

func (v view) DeleteReceiptLine(_ context.Context, id inventory.LineID) error {
	defer v.write()()
	for docID, doc := range v.m.st.receipts {
		if lines, ok := withoutLine(doc.Lines, id); ok {
			doc.Lines = lines
			v.m.st.receipts[docID] = doc
			return nil
		}
	}
	return nil
}

func (v view) DeleteReceipt(_ context.Context, id inventory.DocumentID) error {
	defer v.write()()
	delete(v.m.st.receipts, id)
	return nil
}

func (v view) ListReceipts(_ context.Context, filter inventory.DocumentFilter) ([]inventory.ReceiptDocument, error) {
	defer v.read()()
	var out []inventory.ReceiptDocument
	for _, d := range v.m.st.receipts {
		if filter.MatchesReceipt(d) {
			d.Lines = append([]inventory.Line(nil), d.Lines...)
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// --- shipments ---

func (v view) CreateShipment(_ context.Context, doc inventory.ShipmentDocument) (inventory.ShipmentDocument, error) {
	defer v.write()()
	doc.ID = inventory.DocumentID(v.next())
	doc.Lines = nil
	v.m.st.shipments[doc.ID] = doc
	return doc, nil
}

func (v view) UpdateShipment(_ context.Context, doc inventory.ShipmentDocument) error {
	defer v.write()()
	current, ok := v.m.st.shipments[doc.ID]
	if !ok {
		return nil
	}
	current.Number = doc.Number
	current.ClientID = doc.ClientID
	current.Date = doc.Date
	current.Status = doc.Status
	v.m.st.shipments[doc.ID] = current
	return nil
}

func (v view) GetShipment(_ context.Context, id inventory.DocumentID) (*inventory.ShipmentDocument, error) {
	defer v.read()()
	doc, ok := v.m.st.shipments[id]
	if !ok {
		return nil, nil
	}
	doc.Lines = append([]inventory.Line(nil), doc.Lines...)
	return &doc, nil
}

func (v view) ShipmentNumberTaken(_ context.Context, number string, except inventory.DocumentID) (bool, error) {
	defer v.read()()
	for id, d := range v.m.st.shipments {
		if id != except && d.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (v view) AddShipmentLine(_ context.Context, line inventory.Line) (inventory.Line, error) {
	defer v.write()()
	doc := v.m.st.shipments[line.DocumentID]
	line.ID = inventory.LineID(v.next())
	doc.Lines = append(append([]inventory.Line(nil), doc.Lines...), line)
	v.m.st.shipments[line.DocumentID] = doc
	return line, nil
}

func (v view) DeleteShipmentLine(_ context.Context, id inventory.LineID) error {
	defer v.write()()
	for docID, doc := range v.m.st.shipments {
		if lines, ok := withoutLine(doc.Lines, id); ok {
			doc.Lines = lines
			v.m.st.shipments[docID] = doc
			return nil
		}
	}
	return nil
}

func (v view) DeleteShipment(_ context.Context, id inventory.DocumentID) error {
	defer v.write()()
	delete(v.m.st.shipments, id)
	return nil
}

func (v view) ListShipments(_ context.Context, filter inventory.DocumentFilter) ([]inventory.ShipmentDocument, error) {
	defer v.read()()
	var out []inventory.ShipmentDocument
	for _, d := range v.m.st.shipments {
		if filter.MatchesShipment(d) {
			d.Lines = append([]inventory.Line(nil), d.Lines...)
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func withoutLine(lines []inventory.Line, id inventory.LineID) ([]inventory.Line, bool) {
	for i, l := range lines {
		if l.ID == id {
			out := make([]inventory.Line, 0, len(lines)-1)
			out = append(out, lines[:i]...)
			return append(out, lines[i+1:]...), true
		}
	}
	return lines, false
}

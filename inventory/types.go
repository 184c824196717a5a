/*
Package inventory provides the balance-consistency core of the warehouse.

PURPOSE:
  This package holds the rules that govern how receipt and shipment documents
  move the on-hand balance of every (resource, unit) pair. The HTTP layer,
  the SQL stores and the CLI are thin shells around it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity: Fixed-precision decimal (4 fractional digits)
  - BalanceKey: The (resource, unit) pair that owns one balance row
  - Reference entities: Resource, Unit, Client with Active/Archived status
  - Documents: ReceiptDocument (posts immediately) and ShipmentDocument
    (Draft -> Signed -> Revoked)

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal rounded to 4 places, never float64
  2. Type Safety: Distinct ID types for resources, units, clients, documents
  3. One writer: only the Receipt and Shipment engines mutate balances

SEE ALSO:
  - ledger.go: Balance Ledger (adjust, query, available)
  - receipt.go: Receipt Engine
  - shipment.go: Shipment Engine and its transition table
  - store.go: Persistence interfaces
*/
package inventory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITY - Fixed-precision decimal
// =============================================================================

// QuantityScale is the number of fractional digits kept for every quantity.
const QuantityScale = 4

// Quantity is an amount of stock expressed in some unit of measure.
type Quantity struct {
	decimal.Decimal
}

// NewQuantity builds a quantity from a float, rounded to QuantityScale.
func NewQuantity(v float64) Quantity {
	return Quantity{decimal.NewFromFloat(v).Round(QuantityScale)}
}

// NewQuantityFromInt builds a whole-number quantity.
func NewQuantityFromInt(v int64) Quantity {
	return Quantity{decimal.NewFromInt(v)}
}

// QuantityFromDecimal wraps d, rounded to QuantityScale.
func QuantityFromDecimal(d decimal.Decimal) Quantity {
	return Quantity{d.Round(QuantityScale)}
}

// MaxQuantityDigits bounds the integer part of quantities and balances. It
// matches the NUMERIC(18,4) balance column of the Postgres store.
const MaxQuantityDigits = 14

// checkQuantity rejects values with more than QuantityScale fractional digits
// or a magnitude of 1e14 or more. It reads the coefficient and exponent only,
// so an input like "1e10000000" is refused without being expanded.
func checkQuantity(d decimal.Decimal) error {
	digits := strings.TrimLeft(d.Coefficient().String(), "-")
	if digits == "0" {
		return nil
	}
	significant := strings.TrimRight(digits, "0")
	exp := int64(d.Exponent()) + int64(len(digits)-len(significant))
	if exp < -QuantityScale {
		return invalid("quantity", "more than %d fractional digits", QuantityScale)
	}
	if int64(len(significant))+exp > MaxQuantityDigits {
		return invalid("quantity", "magnitude must be below 1e%d", MaxQuantityDigits)
	}
	return nil
}

// ParseQuantity parses a decimal string. More than 4 fractional digits are rejected
// instead of silently rounded, and so is anything of 1e14 or more.
func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{}, invalid("quantity", "%q is not a decimal number", s)
	}
	if err := checkQuantity(d); err != nil {
		return Quantity{}, err
	}
	return Quantity{d}, nil
}

// MustParseQuantity is ParseQuantity for constants in tests and scenarios.
func MustParseQuantity(s string) Quantity {
	q, err := ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return q
}

func ZeroQuantity() Quantity { return Quantity{decimal.Zero} }

func (q Quantity) Add(o Quantity) Quantity { return Quantity{q.Decimal.Add(o.Decimal)} }
func (q Quantity) Sub(o Quantity) Quantity { return Quantity{q.Decimal.Sub(o.Decimal)} }
func (q Quantity) Neg() Quantity { return Quantity{q.Decimal.Neg()} }
func (q Quantity) Equal(o Quantity) bool { return q.Decimal.Equal(o.Decimal) }
func (q Quantity) LessThan(o Quantity) bool { return q.Decimal.LessThan(o.Decimal) }
func (q Quantity) GreaterThanOrEqual(o Quantity) bool { return q.Decimal.GreaterThanOrEqual(o.Decimal) }

// String renders the quantity with exactly QuantityScale fractional digits,
// which is also the storage format.
func (q Quantity) String() string { return q.Decimal.StringFixed(QuantityScale) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ResourceID int64
type UnitID int64
type ClientID int64
type DocumentID int64
type LineID int64

// BalanceKey identifies one balance row.
type BalanceKey struct {
	ResourceID ResourceID
	UnitID     UnitID
}

func (k BalanceKey) String() string {
	return fmt.Sprintf("%d/%d", k.ResourceID, k.UnitID)
}

func (k BalanceKey) less(o BalanceKey) bool {
	if k.ResourceID != o.ResourceID {
		return k.ResourceID < o.ResourceID
	}
	return k.UnitID < o.UnitID
}

// SortKeys orders keys and removes duplicates. Locks are always taken in this order.
func SortKeys(keys []BalanceKey) []BalanceKey {
	seen := make(map[BalanceKey]bool, len(keys))
	out := make([]BalanceKey, 0, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// =============================================================================
// REFERENCE ENTITIES
// =============================================================================

// Status of a reference entity.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

func (s Status) Valid() bool { return s == StatusActive || s == StatusArchived }

// RefKind names a kind of reference entity.
type RefKind string

const (
	KindResource RefKind = "resource"
	KindUnit     RefKind = "unit"
	KindClient   RefKind = "client"
)

func (k RefKind) Valid() bool {
	return k == KindResource || k == KindUnit || k == KindClient
}

// Reference is a Resource, UnitOfMeasure or Client. Address is only
// meaningful for clients.
type Reference struct {
	Kind    RefKind
	ID      int64
	Name    string
	Address string
	Status  Status
}

func (r Reference) Active() bool { return r.Status == StatusActive }

// =============================================================================
// BALANCE
// =============================================================================

// Balance is the on-hand quantity of one (resource, unit) pair.
type Balance struct {
	Key      BalanceKey
	Quantity Quantity
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// Line is a document line item. Receipt and shipment lines share the shape.
type Line struct {
	ID         LineID
	DocumentID DocumentID
	ResourceID ResourceID
	UnitID     UnitID
	Quantity   Quantity
}

func (l Line) Key() BalanceKey {
	return BalanceKey{ResourceID: l.ResourceID, UnitID: l.UnitID}
}

// LineInput is a line that has not been persisted yet.
type LineInput struct {
	ResourceID ResourceID
	UnitID     UnitID
	Quantity   Quantity
}

func (l LineInput) Key() BalanceKey {
	return BalanceKey{ResourceID: l.ResourceID, UnitID: l.UnitID}
}

// ReceiptDocument records incoming stock. Its lines are posted to the ledger
// the moment they are added.
type ReceiptDocument struct {
	ID     DocumentID
	Number string
	Date   time.Time
	Lines  []Line
}

// ShipmentStatus is the state of a shipment document.
type ShipmentStatus string

const (
	ShipmentDraft   ShipmentStatus = "draft"
	ShipmentSigned  ShipmentStatus = "signed"
	ShipmentRevoked ShipmentStatus = "revoked"
)

func (s ShipmentStatus) Valid() bool {
	return s == ShipmentDraft || s == ShipmentSigned || s == ShipmentRevoked
}

// ShipmentDocument records outgoing stock. Lines touch the ledger only when
// the document is signed or revoked.
type ShipmentDocument struct {
	ID       DocumentID
	Number   string
	ClientID ClientID
	Date     time.Time
	Status   ShipmentStatus
	Lines    []Line
}

// Keys returns the balance keys touched by the lines, sorted and unique.
func Keys(lines []Line) []BalanceKey {
	keys := make([]BalanceKey, len(lines))
	for i, l := range lines {
		keys[i] = l.Key()
	}
	return SortKeys(keys)
}

// totalsByKey sums line quantities per balance key, preserving the order in
// which keys first appear.
func totalsByKey(lines []Line) ([]BalanceKey, map[BalanceKey]Quantity) {
	var order []BalanceKey
	totals := make(map[BalanceKey]Quantity)
	for _, l := range lines {
		k := l.Key()
		if _, ok := totals[k]; !ok {
			order = append(order, k)
			totals[k] = ZeroQuantity()
		}
		totals[k] = totals[k].Add(l.Quantity)
	}
	return order, totals
}

/*
receipt.go - Receipt Engine (stock-in)

PURPOSE:
  Posts incoming stock and allows full reversal. Receipts have no
  draft state: a line increases the balance the moment it is added.

RECEIPT FLOW:
  ┌───────────────────────────────────────────────────────────────┐
  │                                                               │
  │  CreateDocument ──▶ AddLine ──▶ balance += quantity           │
  │                        │                                      │
  │                        ▼                                      │
  │                  RemoveDocument ──▶ every pair still holds    │
  │                                     the quantity?             │
  │                                      yes: balance -= qty,     │
  │                                           delete document     │
  │                                      no:  InsufficientStock,  │
  │                                           nothing changes     │
  └───────────────────────────────────────────────────────────────┘

ATOMICITY:
  Line insert and balance credit happen in one Scope (locked keys + store
  transaction). Removal checks every line before touching any balance; the
  check and the debits share the same transaction.

WHY REMOVAL CAN FAIL:
  A receipt whose stock was already shipped out cannot be pulled back:
  that would take the balance below zero. Lines of one document that share
  a (resource, unit) pair are checked against their combined quantity.

SEE ALSO:
  - ledger.go: Adjust, requireStock
  - scope.go: Locking and transactions
*/
package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ReceiptService implements the Receipt Engine.
type ReceiptService struct {
	Store TxStore
	Scope *Scope
	Log   logrus.FieldLogger
}

func NewReceiptService(store TxStore, locker Locker, log logrus.FieldLogger) *ReceiptService {
	return &ReceiptService{Store: store, Scope: NewScope(store, locker), Log: orDiscard(log)}
}

// CreateDocument creates an empty receipt.
func (rs *ReceiptService) CreateDocument(ctx context.Context, number string, date time.Time) (ReceiptDocument, error) {
	return rs.CreateWithLines(ctx, number, date, nil)
}

// CreateWithLines creates a receipt and posts all its lines in one transaction.
func (rs *ReceiptService) CreateWithLines(ctx context.Context, number string, date time.Time, lines []LineInput) (ReceiptDocument, error) {
	number = strings.TrimSpace(number)
	if err := validateHeader(number, date); err != nil {
		return ReceiptDocument{}, err
	}
	keys, err := validateLines(lines)
	if err != nil {
		return ReceiptDocument{}, err
	}

	var doc ReceiptDocument
	err = rs.Scope.Run(ctx, keys, func(tx Store, ledger *Ledger) error {
		taken, err := tx.ReceiptNumberTaken(ctx, number, 0)
		if err != nil {
			return WrapStore("check receipt number", err)
		}
		if taken {
			return duplicateNumber("receipt", number)
		}

		doc, err = tx.CreateReceipt(ctx, ReceiptDocument{Number: number, Date: date})
		if err != nil {
			return WrapStore("create receipt", err)
		}

		for _, in := range lines {
			line, err := postReceiptLine(ctx, tx, ledger, doc.ID, in)
			if err != nil {
				return err
			}
			doc.Lines = append(doc.Lines, line)
		}
		return nil
	})
	if err != nil {
		return ReceiptDocument{}, err
	}

	rs.Log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"number":      doc.Number,
		"lines":       len(doc.Lines),
	}).Info("receipt created")
	return doc, nil
}

// AddLine persists a line and credits the balance in the same transaction.
func (rs *ReceiptService) AddLine(ctx context.Context, id DocumentID, in LineInput) (Line, error) {
	if err := validateID("document_id", int64(id)); err != nil {
		return Line{}, err
	}
	keys, err := validateLines([]LineInput{in})
	if err != nil {
		return Line{}, err
	}

	var line Line
	err = rs.Scope.Run(ctx, keys, func(tx Store, ledger *Ledger) error {
		doc, err := tx.GetReceipt(ctx, id)
		if err != nil {
			return WrapStore("load receipt", err)
		}
		if doc == nil {
			return &NotFoundError{What: "receipt", ID: int64(id)}
		}
		line, err = postReceiptLine(ctx, tx, ledger, id, in)
		return err
	})
	if err != nil {
		return Line{}, err
	}

	rs.Log.WithFields(logrus.Fields{
		"document_id": id,
		"resource_id": line.ResourceID,
		"unit_id":     line.UnitID,
		"quantity":    line.Quantity.String(),
	}).Info("receipt line posted")
	return line, nil
}

func postReceiptLine(ctx context.Context, tx Store, ledger *Ledger, id DocumentID, in LineInput) (Line, error) {
	if err := requireActive(ctx, tx, KindResource, int64(in.ResourceID)); err != nil {
		return Line{}, err
	}
	if err := requireActive(ctx, tx, KindUnit, int64(in.UnitID)); err != nil {
		return Line{}, err
	}

	line, err := tx.AddReceiptLine(ctx, Line{
		DocumentID: id,
		ResourceID: in.ResourceID,
		UnitID:     in.UnitID,
		Quantity:   in.Quantity,
	})
	if err != nil {
		return Line{}, WrapStore("add receipt line", err)
	}

	if _, err := ledger.Adjust(ctx, in.Key(), in.Quantity); err != nil {
		return Line{}, err
	}
	return line, nil
}

// RemoveDocument reverses every line and deletes the receipt. Either all
// lines are reversed or none are.
func (rs *ReceiptService) RemoveDocument(ctx context.Context, id DocumentID) error {
	doc, err := rs.Get(ctx, id)
	if err != nil {
		return err
	}

	err = rs.Scope.Run(ctx, Keys(doc.Lines), func(tx Store, ledger *Ledger) error {
		current, err := tx.GetReceipt(ctx, id)
		if err != nil {
			return WrapStore("load receipt", err)
		}
		if current == nil {
			return &NotFoundError{What: "receipt", ID: int64(id)}
		}
		if err := ledger.requireStock(ctx, current.Lines); err != nil {
			return err
		}
		if err := ledger.post(ctx, current.Lines, -1); err != nil {
			return err
		}
		return WrapStore("delete receipt", tx.DeleteReceipt(ctx, id))
	})

	fields := logrus.Fields{"document_id": id, "number": doc.Number, "lines": len(doc.Lines)}
	if err != nil {
		rs.Log.WithFields(fields).WithError(err).Warn("receipt removal rejected")
		return err
	}
	rs.Log.WithFields(fields).Info("receipt removed")
	return nil
}

// RemoveLine reverses and deletes a single line, under the same stock rule
// as RemoveDocument.
func (rs *ReceiptService) RemoveLine(ctx context.Context, id DocumentID, lineID LineID) error {
	doc, err := rs.Get(ctx, id)
	if err != nil {
		return err
	}
	line, ok := findLine(doc.Lines, lineID)
	if !ok {
		return ErrLineNotFound
	}

	return rs.Scope.Run(ctx, []BalanceKey{line.Key()}, func(tx Store, ledger *Ledger) error {
		current, err := tx.GetReceipt(ctx, id)
		if err != nil {
			return WrapStore("load receipt", err)
		}
		if current == nil {
			return &NotFoundError{What: "receipt", ID: int64(id)}
		}
		line, ok := findLine(current.Lines, lineID)
		if !ok {
			return ErrLineNotFound
		}
		if err := ledger.requireStock(ctx, []Line{line}); err != nil {
			return err
		}
		if _, err := ledger.Adjust(ctx, line.Key(), line.Quantity.Neg()); err != nil {
			return err
		}
		return WrapStore("delete receipt line", tx.DeleteReceiptLine(ctx, lineID))
	})
}

// UpdateHeader changes the number and date. Lines are not affected.
func (rs *ReceiptService) UpdateHeader(ctx context.Context, id DocumentID, number string, date time.Time) (ReceiptDocument, error) {
	number = strings.TrimSpace(number)
	if err := validateID("document_id", int64(id)); err != nil {
		return ReceiptDocument{}, err
	}
	if err := validateHeader(number, date); err != nil {
		return ReceiptDocument{}, err
	}

	var doc ReceiptDocument
	err := rs.Store.WithTx(ctx, func(tx Store) error {
		current, err := tx.GetReceipt(ctx, id)
		if err != nil {
			return WrapStore("load receipt", err)
		}
		if current == nil {
			return &NotFoundError{What: "receipt", ID: int64(id)}
		}
		taken, err := tx.ReceiptNumberTaken(ctx, number, id)
		if err != nil {
			return WrapStore("check receipt number", err)
		}
		if taken {
			return duplicateNumber("receipt", number)
		}
		current.Number = number
		current.Date = date
		doc = *current
		return WrapStore("update receipt", tx.UpdateReceipt(ctx, doc))
	})
	return doc, err
}

// Get returns a receipt with its lines.
func (rs *ReceiptService) Get(ctx context.Context, id DocumentID) (ReceiptDocument, error) {
	if err := validateID("document_id", int64(id)); err != nil {
		return ReceiptDocument{}, err
	}
	doc, err := rs.Store.GetReceipt(ctx, id)
	if err != nil {
		return ReceiptDocument{}, WrapStore("load receipt", err)
	}
	if doc == nil {
		return ReceiptDocument{}, &NotFoundError{What: "receipt", ID: int64(id)}
	}
	return *doc, nil
}

// List returns receipts matching filter, newest first.
func (rs *ReceiptService) List(ctx context.Context, filter DocumentFilter) ([]ReceiptDocument, error) {
	docs, err := rs.Store.ListReceipts(ctx, filter)
	return docs, WrapStore("list receipts", err)
}

// =============================================================================
// VALIDATION HELPERS
// =============================================================================

func validateHeader(number string, date time.Time) error {
	if number == "" {
		return invalid("number", "must not be empty")
	}
	if date.IsZero() {
		return invalid("date", "must be set")
	}
	return nil
}

// validateLines checks shape only and returns the balance keys the lines touch.
func validateLines(lines []LineInput) ([]BalanceKey, error) {
	keys := make([]BalanceKey, 0, len(lines))
	for _, l := range lines {
		if err := validateID("resource_id", int64(l.ResourceID)); err != nil {
			return nil, err
		}
		if err := validateID("unit_id", int64(l.UnitID)); err != nil {
			return nil, err
		}
		if !l.Quantity.IsPositive() {
			return nil, invalid("quantity", "must be positive, got %s", l.Quantity)
		}
		if err := checkQuantity(l.Quantity.Decimal); err != nil {
			return nil, err
		}
		keys = append(keys, l.Key())
	}
	return SortKeys(keys), nil
}

func findLine(lines []Line, id LineID) (Line, bool) {
	for _, l := range lines {
		if l.ID == id {
			return l, true
		}
	}
	return Line{}, false
}

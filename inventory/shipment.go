/*
shipment.go - Shipment Engine (stock-out)

PURPOSE:
  Owns the shipment lifecycle and the ledger debits and credits that go
  with it. Lines are provisional while the document is a draft; the stock
  moves only on signing (debit) and revoking (credit).

STATE MACHINE:
  ┌─────────────────────────────────────────────────────────────────┐
  │                                                                 │
  │   create ──▶ ┌───────┐  sign   ┌────────┐  revoke  ┌─────────┐  │
  │              │ Draft │ ──────▶ │ Signed │ ───────▶ │ Revoked │  │
  │              └───────┘ debit   └────────┘  credit  └─────────┘  │
  │                 │  ▲                                 terminal   │
  │        remove   │  │ add/remove line, edit header               │
  │                 ▼  │                                            │
  │             (deleted)                                           │
  └─────────────────────────────────────────────────────────────────┘

  Nothing ever returns to Draft. Every allowed move is listed in
  shipmentTransitions; anything missing from the table is rejected with
  ErrInvalidState.

SIGNING:
  Availability is re-read at signing time, not when lines were added:
  other receipts, removals and signings may have moved the balance since.
  All lines are checked first, then all are debited, inside one Scope. If
  any pair falls short nothing is debited and the document stays Draft.

REVOKING:
  Credits every line back, creating a balance row if one is missing.
  Revoked documents keep their lines as history and cannot be deleted.

SEE ALSO:
  - ledger.go: requireStock, post
  - receipt.go: The other writer of the ledger
*/
package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// TRANSITION TABLE
// =============================================================================

// ShipmentAction is an operation requested on a shipment.
type ShipmentAction string

const (
	ActionEdit   ShipmentAction = "edit"
	ActionSign   ShipmentAction = "sign"
	ActionRevoke ShipmentAction = "revoke"
	ActionRemove ShipmentAction = "remove"
)

// statusDeleted is the target of ActionRemove. It is never stored.
const statusDeleted ShipmentStatus = ""

type transition struct {
	from   ShipmentStatus
	action ShipmentAction
}

var shipmentTransitions = map[transition]ShipmentStatus{
	{ShipmentDraft, ActionEdit}:    ShipmentDraft,
	{ShipmentDraft, ActionSign}:    ShipmentSigned,
	{ShipmentDraft, ActionRemove}:  statusDeleted,
	{ShipmentSigned, ActionRevoke}: ShipmentRevoked,
}

// Next returns the status reached by applying action to doc, or an
// InvalidStateError when the table has no such move.
func (doc ShipmentDocument) Next(action ShipmentAction) (ShipmentStatus, error) {
	to, ok := shipmentTransitions[transition{doc.Status, action}]
	if !ok {
		return doc.Status, &InvalidStateError{DocumentID: doc.ID, Status: doc.Status, Action: action}
	}
	return to, nil
}

// =============================================================================
// SHIPMENT SERVICE
// =============================================================================

// ShipmentService implements the Shipment Engine.
type ShipmentService struct {
	Store TxStore
	Scope *Scope
	Log   logrus.FieldLogger
}

func NewShipmentService(store TxStore, locker Locker, log logrus.FieldLogger) *ShipmentService {
	return &ShipmentService{Store: store, Scope: NewScope(store, locker), Log: orDiscard(log)}
}

// Create creates an empty draft.
func (ss *ShipmentService) Create(ctx context.Context, number string, clientID ClientID, date time.Time) (ShipmentDocument, error) {
	return ss.CreateWithLines(ctx, number, clientID, date, nil, false)
}

// CreateWithLines creates a draft with lines. With sign set the document is
// signed in the same transaction; if signing fails the document is not created.
func (ss *ShipmentService) CreateWithLines(ctx context.Context, number string, clientID ClientID, date time.Time, lines []LineInput, sign bool) (ShipmentDocument, error) {
	number = strings.TrimSpace(number)
	if err := validateHeader(number, date); err != nil {
		return ShipmentDocument{}, err
	}
	if err := validateID("client_id", int64(clientID)); err != nil {
		return ShipmentDocument{}, err
	}
	keys, err := validateLines(lines)
	if err != nil {
		return ShipmentDocument{}, err
	}
	if !sign {
		keys = nil // drafts never touch balances
	}

	var doc ShipmentDocument
	err = ss.Scope.Run(ctx, keys, func(tx Store, ledger *Ledger) error {
		taken, err := tx.ShipmentNumberTaken(ctx, number, 0)
		if err != nil {
			return WrapStore("check shipment number", err)
		}
		if taken {
			return duplicateNumber("shipment", number)
		}
		if err := requireActive(ctx, tx, KindClient, int64(clientID)); err != nil {
			return err
		}

		doc, err = tx.CreateShipment(ctx, ShipmentDocument{
			Number:   number,
			ClientID: clientID,
			Date:     date,
			Status:   ShipmentDraft,
		})
		if err != nil {
			return WrapStore("create shipment", err)
		}

		for _, in := range lines {
			line, err := addShipmentLine(ctx, tx, doc.ID, in)
			if err != nil {
				return err
			}
			doc.Lines = append(doc.Lines, line)
		}

		if sign {
			return signInTx(ctx, tx, ledger, &doc)
		}
		return nil
	})
	if err != nil {
		return ShipmentDocument{}, err
	}

	ss.Log.WithFields(logrus.Fields{
		"document_id": doc.ID,
		"number":      doc.Number,
		"client_id":   doc.ClientID,
		"status":      doc.Status,
		"lines":       len(doc.Lines),
	}).Info("shipment created")
	return doc, nil
}

// AddLine adds a provisional line to a draft. Balances are not touched.
func (ss *ShipmentService) AddLine(ctx context.Context, id DocumentID, in LineInput) (Line, error) {
	if err := validateID("document_id", int64(id)); err != nil {
		return Line{}, err
	}
	if _, err := validateLines([]LineInput{in}); err != nil {
		return Line{}, err
	}

	var line Line
	err := ss.Store.WithTx(ctx, func(tx Store) error {
		doc, err := loadShipment(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := doc.Next(ActionEdit); err != nil {
			return err
		}
		line, err = addShipmentLine(ctx, tx, id, in)
		return err
	})
	return line, err
}

func addShipmentLine(ctx context.Context, tx Store, id DocumentID, in LineInput) (Line, error) {
	if err := requireActive(ctx, tx, KindResource, int64(in.ResourceID)); err != nil {
		return Line{}, err
	}
	if err := requireActive(ctx, tx, KindUnit, int64(in.UnitID)); err != nil {
		return Line{}, err
	}
	line, err := tx.AddShipmentLine(ctx, Line{
		DocumentID: id,
		ResourceID: in.ResourceID,
		UnitID:     in.UnitID,
		Quantity:   in.Quantity,
	})
	return line, WrapStore("add shipment line", err)
}

// RemoveLine deletes a line from a draft.
func (ss *ShipmentService) RemoveLine(ctx context.Context, id DocumentID, lineID LineID) error {
	if err := validateID("document_id", int64(id)); err != nil {
		return err
	}
	return ss.Store.WithTx(ctx, func(tx Store) error {
		doc, err := loadShipment(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := doc.Next(ActionEdit); err != nil {
			return err
		}
		if _, ok := findLine(doc.Lines, lineID); !ok {
			return ErrLineNotFound
		}
		return WrapStore("delete shipment line", tx.DeleteShipmentLine(ctx, lineID))
	})
}

// UpdateHeader changes number, client and date of a draft.
func (ss *ShipmentService) UpdateHeader(ctx context.Context, id DocumentID, number string, clientID ClientID, date time.Time) (ShipmentDocument, error) {
	number = strings.TrimSpace(number)
	if err := validateID("document_id", int64(id)); err != nil {
		return ShipmentDocument{}, err
	}
	if err := validateHeader(number, date); err != nil {
		return ShipmentDocument{}, err
	}
	if err := validateID("client_id", int64(clientID)); err != nil {
		return ShipmentDocument{}, err
	}

	var doc ShipmentDocument
	err := ss.Store.WithTx(ctx, func(tx Store) error {
		current, err := loadShipment(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := current.Next(ActionEdit); err != nil {
			return err
		}
		taken, err := tx.ShipmentNumberTaken(ctx, number, id)
		if err != nil {
			return WrapStore("check shipment number", err)
		}
		if taken {
			return duplicateNumber("shipment", number)
		}
		if clientID != current.ClientID {
			if err := requireActive(ctx, tx, KindClient, int64(clientID)); err != nil {
				return err
			}
		}
		current.Number = number
		current.ClientID = clientID
		current.Date = date
		doc = *current
		return WrapStore("update shipment", tx.UpdateShipment(ctx, doc))
	})
	return doc, err
}

// Sign debits every line and moves the draft to Signed, or changes nothing.
func (ss *ShipmentService) Sign(ctx context.Context, id DocumentID) (ShipmentDocument, error) {
	doc, err := ss.Get(ctx, id)
	if err != nil {
		return ShipmentDocument{}, err
	}
	if _, err := doc.Next(ActionSign); err != nil {
		return ShipmentDocument{}, err
	}

	var signed ShipmentDocument
	err = ss.Scope.Run(ctx, Keys(doc.Lines), func(tx Store, ledger *Ledger) error {
		current, err := loadShipment(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := signInTx(ctx, tx, ledger, current); err != nil {
			return err
		}
		signed = *current
		return nil
	})

	fields := logrus.Fields{"document_id": id, "number": doc.Number, "lines": len(doc.Lines)}
	if err != nil {
		ss.Log.WithFields(fields).WithError(err).Warn("shipment signing rejected")
		return ShipmentDocument{}, err
	}
	ss.Log.WithFields(fields).Info("shipment signed")
	return signed, nil
}

func signInTx(ctx context.Context, tx Store, ledger *Ledger, doc *ShipmentDocument) error {
	to, err := doc.Next(ActionSign)
	if err != nil {
		return err
	}
	if len(doc.Lines) == 0 {
		return ErrEmptyDocument
	}
	if err := ledger.requireStock(ctx, doc.Lines); err != nil {
		return err
	}
	if err := ledger.post(ctx, doc.Lines, -1); err != nil {
		return err
	}
	doc.Status = to
	return WrapStore("update shipment", tx.UpdateShipment(ctx, *doc))
}

// Revoke credits every line back and moves the document to Revoked.
func (ss *ShipmentService) Revoke(ctx context.Context, id DocumentID) (ShipmentDocument, error) {
	doc, err := ss.Get(ctx, id)
	if err != nil {
		return ShipmentDocument{}, err
	}
	if _, err := doc.Next(ActionRevoke); err != nil {
		return ShipmentDocument{}, err
	}

	var revoked ShipmentDocument
	err = ss.Scope.Run(ctx, Keys(doc.Lines), func(tx Store, ledger *Ledger) error {
		current, err := loadShipment(ctx, tx, id)
		if err != nil {
			return err
		}
		to, err := current.Next(ActionRevoke)
		if err != nil {
			return err
		}
		if err := ledger.post(ctx, current.Lines, +1); err != nil {
			return err
		}
		current.Status = to
		revoked = *current
		return WrapStore("update shipment", tx.UpdateShipment(ctx, *current))
	})
	if err != nil {
		return ShipmentDocument{}, err
	}

	ss.Log.WithFields(logrus.Fields{"document_id": id, "number": doc.Number, "lines": len(doc.Lines)}).Info("shipment revoked")
	return revoked, nil
}

// Remove deletes a draft and its lines. Signed and revoked documents are kept.
func (ss *ShipmentService) Remove(ctx context.Context, id DocumentID) error {
	if err := validateID("document_id", int64(id)); err != nil {
		return err
	}
	err := ss.Store.WithTx(ctx, func(tx Store) error {
		doc, err := loadShipment(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := doc.Next(ActionRemove); err != nil {
			return err
		}
		return WrapStore("delete shipment", tx.DeleteShipment(ctx, id))
	})
	if err != nil {
		return err
	}
	ss.Log.WithField("document_id", id).Info("shipment removed")
	return nil
}

// Get returns a shipment with its lines.
func (ss *ShipmentService) Get(ctx context.Context, id DocumentID) (ShipmentDocument, error) {
	if err := validateID("document_id", int64(id)); err != nil {
		return ShipmentDocument{}, err
	}
	doc, err := loadShipment(ctx, ss.Store, id)
	if err != nil {
		return ShipmentDocument{}, err
	}
	return *doc, nil
}

// List returns shipments matching filter, newest first.
func (ss *ShipmentService) List(ctx context.Context, filter DocumentFilter) ([]ShipmentDocument, error) {
	docs, err := ss.Store.ListShipments(ctx, filter)
	return docs, WrapStore("list shipments", err)
}

func loadShipment(ctx context.Context, s ShipmentStore, id DocumentID) (*ShipmentDocument, error) {
	doc, err := s.GetShipment(ctx, id)
	if err != nil {
		return nil, WrapStore("load shipment", err)
	}
	if doc == nil {
		return nil, &NotFoundError{What: "shipment", ID: int64(id)}
	}
	return doc, nil
}

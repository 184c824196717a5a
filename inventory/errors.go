/*
errors.go - Centralized error types for the inventory core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Every error returned by the core falls into one of four kinds, and the
  boundary layer maps kinds to protocol codes.

ERROR KINDS:
  1. Validation - Bad input shape, rejected before any store access
  2. NotFound   - A document or reference id does not resolve
  3. Conflict   - Business-rule rejection (duplicate number, wrong state,
                  insufficient stock, reference archived or still in use)
  4. Store      - Persistence failure; the only retryable kind

USAGE:
  if errors.Is(err, inventory.ErrInsufficientStock) {
      var stockErr *inventory.InsufficientStockError
      errors.As(err, &stockErr)
      // stockErr.Key names the offending resource/unit
  }

SEE ALSO:
  - api/errors.go: Kind -> HTTP status mapping
*/
package inventory

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input (non-positive id, empty name).
	ErrValidation = errors.New("validation failed")

	// ErrDocumentNotFound is returned when a document id does not resolve.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrLineNotFound is returned when a line id does not belong to the document.
	ErrLineNotFound = errors.New("line not found")

	// ErrReferenceNotFound is returned when a resource or unit is missing or archived.
	ErrReferenceNotFound = errors.New("reference not found")

	// ErrReferenceArchived narrows ErrReferenceNotFound for archived references.
	ErrReferenceArchived = errors.New("reference archived")

	// ErrClientNotFound is returned when a shipment names a client that does not exist.
	ErrClientNotFound = errors.New("client not found")

	// ErrClientArchived is returned when a shipment names an archived client.
	ErrClientArchived = errors.New("client archived")

	// ErrReferenceInUse is returned when archiving an entity that is still referenced.
	ErrReferenceInUse = errors.New("reference in use")

	// ErrDuplicateName is returned when an active entity of the same kind has the name.
	ErrDuplicateName = errors.New("duplicate name")

	// ErrDuplicateNumber is returned when a document number is already taken.
	ErrDuplicateNumber = errors.New("duplicate document number")

	// ErrInvalidState is returned when a shipment transition is not allowed from its state.
	ErrInvalidState = errors.New("invalid document state")

	// ErrEmptyDocument is returned when signing a shipment without lines.
	ErrEmptyDocument = errors.New("document has no lines")

	// ErrInsufficientStock is returned when a debit would take a balance below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrConcurrentModification is returned when the lines of a document changed
	// between lock acquisition and the transaction that uses them.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrStore wraps persistence failures.
	ErrStore = errors.New("store failure")

	// ErrLockNotObtained is returned when a balance key lock could not be acquired in time.
	ErrLockNotObtained = errors.New("balance lock not obtained")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError names the input field that failed validation.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *FieldError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError names the missing document.
type NotFoundError struct {
	What string
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.What, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrDocumentNotFound }

// ReferenceError describes a missing or archived resource, unit or client.
type ReferenceError struct {
	Kind     RefKind
	ID       int64
	Archived bool
}

func (e *ReferenceError) Error() string {
	if e.Archived {
		return fmt.Sprintf("%s %d is archived", e.Kind, e.ID)
	}
	return fmt.Sprintf("%s %d does not exist", e.Kind, e.ID)
}

// Unwrap returns the sentinel the engines promise for this reference kind.
func (e *ReferenceError) Unwrap() error {
	if e.Kind == KindClient {
		if e.Archived {
			return ErrClientArchived
		}
		return ErrClientNotFound
	}
	return ErrReferenceNotFound
}

// Is lets archived resources and units match ErrReferenceArchived as well.
func (e *ReferenceError) Is(target error) bool {
	return target == ErrReferenceArchived && e.Archived && e.Kind != KindClient
}

// InUseError is returned when archiving a referenced entity.
type InUseError struct {
	Kind RefKind
	ID   int64
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s %d is still referenced by balances or documents", e.Kind, e.ID)
}

func (e *InUseError) Unwrap() error { return ErrReferenceInUse }

// DuplicateError names the clashing value.
type DuplicateError struct {
	What  string
	Value string
	err   error
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.What, e.Value)
}

func (e *DuplicateError) Unwrap() error { return e.err }

func duplicateNumber(what, number string) error {
	return &DuplicateError{What: what + " number", Value: number, err: ErrDuplicateNumber}
}

func duplicateName(kind RefKind, name string) error {
	return &DuplicateError{What: string(kind) + " name", Value: name, err: ErrDuplicateName}
}

// InvalidStateError reports a rejected shipment transition.
type InvalidStateError struct {
	DocumentID DocumentID
	Status     ShipmentStatus
	Action     ShipmentAction
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s shipment %d in status %s", e.Action, e.DocumentID, e.Status)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	Key       BalanceKey
	Available Quantity
	Requested Quantity
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for resource %d (unit %d): available %s, requested %s, shortfall %s",
		e.Key.ResourceID, e.Key.UnitID, e.Available, e.Requested, e.Shortfall())
}

func (e *InsufficientStockError) Shortfall() Quantity {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// StoreError wraps a persistence failure with the operation that failed.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap exposes both the driver error and ErrStore.
func (e *StoreError) Unwrap() []error { return []error{ErrStore, e.Err} }

// WrapStore tags err as a store failure. Domain errors pass through untouched
// so stores can return them from inside their own helpers.
func WrapStore(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != KindStore {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// =============================================================================
// KIND CLASSIFICATION
// =============================================================================

// Kind is the error taxonomy exposed to callers of the core.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindStore      Kind = "store"
)

// KindOf classifies err. Unknown errors are treated as store failures.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrReferenceArchived),
		errors.Is(err, ErrClientArchived),
		errors.Is(err, ErrReferenceInUse),
		errors.Is(err, ErrDuplicateName),
		errors.Is(err, ErrDuplicateNumber),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrEmptyDocument),
		errors.Is(err, ErrInsufficientStock):
		return KindConflict
	case errors.Is(err, ErrDocumentNotFound),
		errors.Is(err, ErrLineNotFound),
		errors.Is(err, ErrReferenceNotFound),
		errors.Is(err, ErrClientNotFound):
		return KindNotFound
	default:
		return KindStore
	}
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return err != nil && KindOf(err) == KindStore
}

// IsClientError returns true if the error is due to invalid client input or a business rule.
func IsClientError(err error) bool {
	k := KindOf(err)
	return k == KindValidation || k == KindConflict
}

// IsNotFound returns true if the error indicates a missing document or reference.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

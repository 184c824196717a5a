/*
registry.go - Reference Registry (resources, units of measure, clients)

PURPOSE:
  Holds the master data the documents point at. Each entity is Active or
  Archived. Archived entities stay in the store (old documents still name
  them) but cannot be used on new lines or shipments.

RULES:
  - Names are unique among ACTIVE entities of the same kind. An archived
    "Bolt" does not block a new "Bolt"; restoring the old one then fails.
  - Archiving is refused while anything references the entity:
      resource/unit: a balance row, a receipt line or a shipment line
      client:        a shipment document
  - Archive and Restore are idempotent: repeating them succeeds and
    changes nothing.

SEE ALSO:
  - store.go: ReferenceStore.IsReferenced
  - ledger.go: Available() reads archived pairs as zero
*/
package inventory

import (
	"context"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Registry manages reference entities.
type Registry struct {
	Store TxStore
	Log   logrus.FieldLogger
}

func NewRegistry(store TxStore, log logrus.FieldLogger) *Registry {
	return &Registry{Store: store, Log: orDiscard(log)}
}

// Create adds an active entity. Address is ignored for resources and units.
func (r *Registry) Create(ctx context.Context, kind RefKind, name, address string) (Reference, error) {
	ref := Reference{Kind: kind, Name: strings.TrimSpace(name), Status: StatusActive}
	if kind == KindClient {
		ref.Address = strings.TrimSpace(address)
	}
	if err := validateReference(ref); err != nil {
		return Reference{}, err
	}

	var created Reference
	err := r.Store.WithTx(ctx, func(tx Store) error {
		if err := requireUniqueName(ctx, tx, ref.Kind, ref.Name, 0); err != nil {
			return err
		}
		var err error
		created, err = tx.CreateReference(ctx, ref)
		return WrapStore("create "+string(kind), err)
	})
	if err != nil {
		return Reference{}, err
	}

	r.Log.WithFields(logrus.Fields{"kind": kind, "id": created.ID, "name": created.Name}).Info("reference created")
	return created, nil
}

// Update renames an entity (and changes the address of a client).
func (r *Registry) Update(ctx context.Context, kind RefKind, id int64, name, address string) (Reference, error) {
	if err := validateID(string(kind)+"_id", id); err != nil {
		return Reference{}, err
	}

	var updated Reference
	err := r.Store.WithTx(ctx, func(tx Store) error {
		ref, err := mustGetReference(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		ref.Name = strings.TrimSpace(name)
		if kind == KindClient {
			ref.Address = strings.TrimSpace(address)
		}
		if err := validateReference(*ref); err != nil {
			return err
		}
		if ref.Active() {
			if err := requireUniqueName(ctx, tx, kind, ref.Name, id); err != nil {
				return err
			}
		}
		updated = *ref
		return WrapStore("update "+string(kind), tx.UpdateReference(ctx, *ref))
	})
	return updated, err
}

// Archive marks an entity archived. Already archived entities are returned as is.
func (r *Registry) Archive(ctx context.Context, kind RefKind, id int64) (Reference, error) {
	if err := validateID(string(kind)+"_id", id); err != nil {
		return Reference{}, err
	}

	var result Reference
	err := r.Store.WithTx(ctx, func(tx Store) error {
		ref, err := mustGetReference(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		result = *ref
		if ref.Status == StatusArchived {
			return nil
		}

		// Write first: the status change waits for transactions that hold
		// the entity row, so the reference check below sees their lines.
		result.Status = StatusArchived
		if err := tx.UpdateReference(ctx, result); err != nil {
			return WrapStore("archive "+string(kind), err)
		}

		used, err := tx.IsReferenced(ctx, kind, id)
		if err != nil {
			return WrapStore("check references", err)
		}
		if used {
			return &InUseError{Kind: kind, ID: id}
		}
		return nil
	})
	if err != nil {
		r.Log.WithFields(logrus.Fields{"kind": kind, "id": id}).WithError(err).Warn("archive rejected")
		return Reference{}, err
	}
	return result, nil
}

// Restore marks an entity active again. Already active entities are returned as is.
func (r *Registry) Restore(ctx context.Context, kind RefKind, id int64) (Reference, error) {
	if err := validateID(string(kind)+"_id", id); err != nil {
		return Reference{}, err
	}

	var result Reference
	err := r.Store.WithTx(ctx, func(tx Store) error {
		ref, err := mustGetReference(ctx, tx, kind, id)
		if err != nil {
			return err
		}
		result = *ref
		if ref.Active() {
			return nil
		}
		if err := requireUniqueName(ctx, tx, kind, ref.Name, id); err != nil {
			return err
		}
		result.Status = StatusActive
		return WrapStore("restore "+string(kind), tx.UpdateReference(ctx, result))
	})
	return result, err
}

// Get returns one entity.
func (r *Registry) Get(ctx context.Context, kind RefKind, id int64) (Reference, error) {
	if err := validateID(string(kind)+"_id", id); err != nil {
		return Reference{}, err
	}
	ref, err := mustGetReference(ctx, r.Store, kind, id)
	if err != nil {
		return Reference{}, err
	}
	return *ref, nil
}

// List returns entities of kind; a nil status lists both active and archived.
func (r *Registry) List(ctx context.Context, kind RefKind, status *Status) ([]Reference, error) {
	if !kind.Valid() {
		return nil, invalid("kind", "unknown reference kind %q", kind)
	}
	refs, err := r.Store.ListReferences(ctx, kind, status)
	return refs, WrapStore("list "+string(kind), err)
}

// Lookup reports whether the entity exists and its status.
func (r *Registry) Lookup(ctx context.Context, kind RefKind, id int64) (bool, Status, error) {
	ref, err := r.Store.GetReference(ctx, kind, id)
	if err != nil {
		return false, "", WrapStore("load "+string(kind), err)
	}
	if ref == nil {
		return false, "", nil
	}
	return true, ref.Status, nil
}

// IsReferenced reports whether archiving the entity would be refused.
func (r *Registry) IsReferenced(ctx context.Context, kind RefKind, id int64) (bool, error) {
	used, err := r.Store.IsReferenced(ctx, kind, id)
	return used, WrapStore("check references", err)
}

// =============================================================================
// HELPERS (shared with the engines)
// =============================================================================

func validateReference(ref Reference) error {
	if !ref.Kind.Valid() {
		return invalid("kind", "unknown reference kind %q", ref.Kind)
	}
	if ref.Name == "" {
		return invalid("name", "must not be empty")
	}
	return nil
}

func validateID(field string, id int64) error {
	if id <= 0 {
		return invalid(field, "must be positive, got %d", id)
	}
	return nil
}

func requireUniqueName(ctx context.Context, s ReferenceStore, kind RefKind, name string, self int64) error {
	existing, err := s.FindActiveByName(ctx, kind, name)
	if err != nil {
		return WrapStore("find "+string(kind), err)
	}
	if existing != nil && existing.ID != self {
		return duplicateName(kind, name)
	}
	return nil
}

func mustGetReference(ctx context.Context, s ReferenceStore, kind RefKind, id int64) (*Reference, error) {
	if !kind.Valid() {
		return nil, invalid("kind", "unknown reference kind %q", kind)
	}
	ref, err := s.GetReference(ctx, kind, id)
	if err != nil {
		return nil, WrapStore("load "+string(kind), err)
	}
	if ref == nil {
		return nil, &ReferenceError{Kind: kind, ID: id}
	}
	return ref, nil
}

// requireActive fails with a ReferenceError when the entity is missing or archived.
func requireActive(ctx context.Context, s ReferenceStore, kind RefKind, id int64) error {
	ref, err := mustGetReference(ctx, s, kind, id)
	if err != nil {
		return err
	}
	if !ref.Active() {
		return &ReferenceError{Kind: kind, ID: id, Archived: true}
	}
	return nil
}

func orDiscard(log logrus.FieldLogger) logrus.FieldLogger {
	if log != nil {
		return log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

/*
handlers.go - HTTP API handlers for the stock engine

PURPOSE:
  Exposes the inventory engines via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the domain services.

ENDPOINTS:
  Reference entities (same shape for /resources, /units, /clients):
    GET    /api/{kind}                  List (?status=active|archived)
    POST   /api/{kind}                  Create
    GET    /api/{kind}/{id}             Get
    PUT    /api/{kind}/{id}             Rename (and change client address)
    POST   /api/{kind}/{id}/archive     Archive (idempotent)
    POST   /api/{kind}/{id}/restore     Restore (idempotent)

  Balances:
    GET    /api/balances                Rows (?resource_id=&unit_id=, repeatable)
    GET    /api/balances/available      Available quantity for one pair
    GET    /api/balances/reconcile      Drift between rows and documents

  Receipts:
    GET    /api/receipts                List (?from=&to=&number=&resource_id=&unit_id=)
    POST   /api/receipts                Create (lines optional, posted immediately)
    GET    /api/receipts/{id}           Get
    PUT    /api/receipts/{id}           Change number/date
    DELETE /api/receipts/{id}           Reverse all lines and delete
    POST   /api/receipts/{id}/lines     Add and post a line
    DELETE /api/receipts/{id}/lines/{lineId}

  Shipments:
    GET    /api/shipments               List (receipt filters + client_id, status)
    POST   /api/shipments               Create draft (optionally sign at once)
    GET    /api/shipments/{id}          Get
    PUT    /api/shipments/{id}          Change header (draft only)
    DELETE /api/shipments/{id}          Delete (draft only)
    POST   /api/shipments/{id}/lines    Add line (draft only)
    DELETE /api/shipments/{id}/lines/{lineId}
    POST   /api/shipments/{id}/sign     Draft -> Signed (debits stock)
    POST   /api/shipments/{id}/revoke   Signed -> Revoked (credits stock)

REQUEST FLOW:
  1. Decode JSON (unknown fields rejected) and run validator tags
  2. Convert to domain types
  3. Call the service
  4. Serialize the DTO, or map the error kind to a status (errors.go)

SECURITY NOTE:
  No authentication. The console is expected to run behind a trusted proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error kind mapping
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/stock-engine/inventory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the services behind the HTTP API.
type Handler struct {
	Store     inventory.TxStore
	Registry  *inventory.Registry
	Receipts  *inventory.ReceiptService
	Shipments *inventory.ShipmentService
	Log       logrus.FieldLogger

	validate *validator.Validate

	scenarioMu      sync.Mutex
	currentScenario string
}

// NewHandler wires the services over store. locker serializes balance keys;
// nil selects an in-process KeyMutex.
func NewHandler(store inventory.TxStore, locker inventory.Locker, log logrus.FieldLogger) *Handler {
	if locker == nil {
		locker = inventory.NewKeyMutex()
	}
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Handler{
		Store:     store,
		Registry:  inventory.NewRegistry(store, log),
		Receipts:  inventory.NewReceiptService(store, locker, log),
		Shipments: inventory.NewShipmentService(store, locker, log),
		Log:       log,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// =============================================================================
// REFERENCE ENTITY HANDLERS
// =============================================================================

// ListReferences returns entities of kind, optionally filtered by status.
func (h *Handler) ListReferences(kind inventory.RefKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var status *inventory.Status
		if v := r.URL.Query().Get("status"); v != "" {
			s := inventory.Status(v)
			if !s.Valid() {
				h.fail(w, r, "ListReferences", badRequest("status must be active or archived", nil))
				return
			}
			status = &s
		}

		refs, err := h.Registry.List(r.Context(), kind, status)
		if err != nil {
			h.fail(w, r, "ListReferences", err)
			return
		}
		out := make([]ReferenceDTO, 0, len(refs))
		for _, ref := range refs {
			out = append(out, toReferenceDTO(ref))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// CreateReference adds an active entity.
func (h *Handler) CreateReference(kind inventory.RefKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ReferenceRequest
		if err := h.decode(r, &req); err != nil {
			h.fail(w, r, "CreateReference", err)
			return
		}
		ref, err := h.Registry.Create(r.Context(), kind, req.Name, req.Address)
		if err != nil {
			h.fail(w, r, "CreateReference", err)
			return
		}
		writeJSON(w, http.StatusCreated, toReferenceDTO(ref))
	}
}

// GetReference returns one entity.
func (h *Handler) GetReference(kind inventory.RefKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			h.fail(w, r, "GetReference", err)
			return
		}
		ref, err := h.Registry.Get(r.Context(), kind, id)
		if err != nil {
			h.fail(w, r, "GetReference", err)
			return
		}
		writeJSON(w, http.StatusOK, toReferenceDTO(ref))
	}
}

// UpdateReference renames an entity.
func (h *Handler) UpdateReference(kind inventory.RefKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			h.fail(w, r, "UpdateReference", err)
			return
		}
		var req ReferenceRequest
		if err := h.decode(r, &req); err != nil {
			h.fail(w, r, "UpdateReference", err)
			return
		}
		ref, err := h.Registry.Update(r.Context(), kind, id, req.Name, req.Address)
		if err != nil {
			h.fail(w, r, "UpdateReference", err)
			return
		}
		writeJSON(w, http.StatusOK, toReferenceDTO(ref))
	}
}

// ArchiveReference archives an entity that nothing references.
func (h *Handler) ArchiveReference(kind inventory.RefKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			h.fail(w, r, "ArchiveReference", err)
			return
		}
		ref, err := h.Registry.Archive(r.Context(), kind, id)
		if err != nil {
			h.fail(w, r, "ArchiveReference", err)
			return
		}
		writeJSON(w, http.StatusOK, toReferenceDTO(ref))
	}
}

// RestoreReference makes an archived entity active again.
func (h *Handler) RestoreReference(kind inventory.RefKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			h.fail(w, r, "RestoreReference", err)
			return
		}
		ref, err := h.Registry.Restore(r.Context(), kind, id)
		if err != nil {
			h.fail(w, r, "RestoreReference", err)
			return
		}
		writeJSON(w, http.StatusOK, toReferenceDTO(ref))
	}
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// ListBalances returns ledger rows with resource and unit names.
func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resourceIDs, err := queryIDs[inventory.ResourceID](q, "resource_id")
	if err != nil {
		h.fail(w, r, "ListBalances", err)
		return
	}
	unitIDs, err := queryIDs[inventory.UnitID](q, "unit_id")
	if err != nil {
		h.fail(w, r, "ListBalances", err)
		return
	}

	ctx := r.Context()
	rows, err := inventory.NewLedger(h.Store).Query(ctx, inventory.BalanceFilter{ResourceIDs: resourceIDs, UnitIDs: unitIDs})
	if err != nil {
		h.fail(w, r, "ListBalances", err)
		return
	}

	names, err := h.referenceNames(r, inventory.KindResource, inventory.KindUnit)
	if err != nil {
		h.fail(w, r, "ListBalances", err)
		return
	}

	out := make([]BalanceDTO, 0, len(rows))
	for _, b := range rows {
		out = append(out, BalanceDTO{
			ResourceID:   int64(b.Key.ResourceID),
			ResourceName: names[inventory.KindResource][int64(b.Key.ResourceID)],
			UnitID:       int64(b.Key.UnitID),
			UnitName:     names[inventory.KindUnit][int64(b.Key.UnitID)],
			Quantity:     b.Quantity.String(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// GetAvailable returns on-hand and available quantity for one pair.
func (h *Handler) GetAvailable(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resourceID, err := strconv.ParseInt(q.Get("resource_id"), 10, 64)
	if err != nil || resourceID <= 0 {
		h.fail(w, r, "GetAvailable", badRequest("resource_id must be a positive integer", nil))
		return
	}
	unitID, err := strconv.ParseInt(q.Get("unit_id"), 10, 64)
	if err != nil || unitID <= 0 {
		h.fail(w, r, "GetAvailable", badRequest("unit_id must be a positive integer", nil))
		return
	}

	key := inventory.BalanceKey{ResourceID: inventory.ResourceID(resourceID), UnitID: inventory.UnitID(unitID)}
	ledger := inventory.NewLedger(h.Store)
	onHand, err := ledger.OnHand(r.Context(), key)
	if err != nil {
		h.fail(w, r, "GetAvailable", err)
		return
	}
	available, err := ledger.Available(r.Context(), key)
	if err != nil {
		h.fail(w, r, "GetAvailable", err)
		return
	}
	writeJSON(w, http.StatusOK, AvailableDTO{
		ResourceID: resourceID,
		UnitID:     unitID,
		OnHand:     onHand.String(),
		Available:  available.String(),
	})
}

// Reconcile reports balances that disagree with document history.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	drifts, err := inventory.Reconcile(r.Context(), h.Store)
	if err != nil {
		h.fail(w, r, "Reconcile", err)
		return
	}
	resp := ReconcileResponse{Consistent: len(drifts) == 0, Drifts: make([]DriftDTO, 0, len(drifts))}
	for _, d := range drifts {
		resp.Drifts = append(resp.Drifts, DriftDTO{
			ResourceID: int64(d.Key.ResourceID),
			UnitID:     int64(d.Key.UnitID),
			Stored:     d.Stored.String(),
			Expected:   d.Expected.String(),
			MissingRow: d.MissingRow,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// RECEIPT HANDLERS
// =============================================================================

// ListReceipts returns receipts matching the query filters.
func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	filter, err := documentFilter(r)
	if err != nil {
		h.fail(w, r, "ListReceipts", err)
		return
	}
	docs, err := h.Receipts.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "ListReceipts", err)
		return
	}
	out := make([]ReceiptDTO, 0, len(docs))
	for _, d := range docs {
		out = append(out, toReceiptDTO(d))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateReceipt creates a receipt and posts its lines in one transaction.
func (h *Handler) CreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req ReceiptRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "CreateReceipt", err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.fail(w, r, "CreateReceipt", badRequest("date must be YYYY-MM-DD", nil))
		return
	}
	lines, err := toLineInputs(req.Lines)
	if err != nil {
		h.fail(w, r, "CreateReceipt", err)
		return
	}

	doc, err := h.Receipts.CreateWithLines(r.Context(), req.Number, date, lines)
	if err != nil {
		h.fail(w, r, "CreateReceipt", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptDTO(doc))
}

// GetReceipt returns one receipt with lines.
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "GetReceipt", err)
		return
	}
	doc, err := h.Receipts.Get(r.Context(), inventory.DocumentID(id))
	if err != nil {
		h.fail(w, r, "GetReceipt", err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptDTO(doc))
}

// UpdateReceipt changes number and date.
func (h *Handler) UpdateReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "UpdateReceipt", err)
		return
	}
	var req ReceiptHeaderRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "UpdateReceipt", err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.fail(w, r, "UpdateReceipt", badRequest("date must be YYYY-MM-DD", nil))
		return
	}
	doc, err := h.Receipts.UpdateHeader(r.Context(), inventory.DocumentID(id), req.Number, date)
	if err != nil {
		h.fail(w, r, "UpdateReceipt", err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptDTO(doc))
}

// DeleteReceipt reverses every line and deletes the receipt.
func (h *Handler) DeleteReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "DeleteReceipt", err)
		return
	}
	if err := h.Receipts.RemoveDocument(r.Context(), inventory.DocumentID(id)); err != nil {
		h.fail(w, r, "DeleteReceipt", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddReceiptLine posts one line.
func (h *Handler) AddReceiptLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "AddReceiptLine", err)
		return
	}
	in, err := h.decodeLine(r)
	if err != nil {
		h.fail(w, r, "AddReceiptLine", err)
		return
	}
	line, err := h.Receipts.AddLine(r.Context(), inventory.DocumentID(id), in)
	if err != nil {
		h.fail(w, r, "AddReceiptLine", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLineDTOs([]inventory.Line{line})[0])
}

// DeleteReceiptLine reverses and deletes one line.
func (h *Handler) DeleteReceiptLine(w http.ResponseWriter, r *http.Request) {
	id, lineID, err := pathDocLine(r)
	if err != nil {
		h.fail(w, r, "DeleteReceiptLine", err)
		return
	}
	if err := h.Receipts.RemoveLine(r.Context(), id, lineID); err != nil {
		h.fail(w, r, "DeleteReceiptLine", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SHIPMENT HANDLERS
// =============================================================================

// ListShipments returns shipments matching the query filters.
func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	filter, err := documentFilter(r)
	if err != nil {
		h.fail(w, r, "ListShipments", err)
		return
	}
	q := r.URL.Query()
	if filter.ClientIDs, err = queryIDs[inventory.ClientID](q, "client_id"); err != nil {
		h.fail(w, r, "ListShipments", err)
		return
	}
	for _, s := range queryList(q, "status") {
		st := inventory.ShipmentStatus(s)
		if !st.Valid() {
			h.fail(w, r, "ListShipments", badRequest("status must be draft, signed or revoked", nil))
			return
		}
		filter.Statuses = append(filter.Statuses, st)
	}

	docs, err := h.Shipments.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "ListShipments", err)
		return
	}
	out := make([]ShipmentDTO, 0, len(docs))
	for _, d := range docs {
		out = append(out, toShipmentDTO(d))
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateShipment creates a draft, optionally signing it at once.
func (h *Handler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	var req ShipmentRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "CreateShipment", err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.fail(w, r, "CreateShipment", badRequest("date must be YYYY-MM-DD", nil))
		return
	}
	lines, err := toLineInputs(req.Lines)
	if err != nil {
		h.fail(w, r, "CreateShipment", err)
		return
	}

	doc, err := h.Shipments.CreateWithLines(r.Context(), req.Number, inventory.ClientID(req.ClientID), date, lines, req.Sign)
	if err != nil {
		h.fail(w, r, "CreateShipment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toShipmentDTO(doc))
}

// GetShipment returns one shipment with lines.
func (h *Handler) GetShipment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "GetShipment", err)
		return
	}
	doc, err := h.Shipments.Get(r.Context(), inventory.DocumentID(id))
	if err != nil {
		h.fail(w, r, "GetShipment", err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentDTO(doc))
}

// UpdateShipment changes the header of a draft.
func (h *Handler) UpdateShipment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "UpdateShipment", err)
		return
	}
	var req ShipmentHeaderRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "UpdateShipment", err)
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.fail(w, r, "UpdateShipment", badRequest("date must be YYYY-MM-DD", nil))
		return
	}
	doc, err := h.Shipments.UpdateHeader(r.Context(), inventory.DocumentID(id), req.Number, inventory.ClientID(req.ClientID), date)
	if err != nil {
		h.fail(w, r, "UpdateShipment", err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentDTO(doc))
}

// DeleteShipment deletes a draft.
func (h *Handler) DeleteShipment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "DeleteShipment", err)
		return
	}
	if err := h.Shipments.Remove(r.Context(), inventory.DocumentID(id)); err != nil {
		h.fail(w, r, "DeleteShipment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddShipmentLine adds a provisional line to a draft.
func (h *Handler) AddShipmentLine(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "AddShipmentLine", err)
		return
	}
	in, err := h.decodeLine(r)
	if err != nil {
		h.fail(w, r, "AddShipmentLine", err)
		return
	}
	line, err := h.Shipments.AddLine(r.Context(), inventory.DocumentID(id), in)
	if err != nil {
		h.fail(w, r, "AddShipmentLine", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLineDTOs([]inventory.Line{line})[0])
}

// DeleteShipmentLine removes a line from a draft.
func (h *Handler) DeleteShipmentLine(w http.ResponseWriter, r *http.Request) {
	id, lineID, err := pathDocLine(r)
	if err != nil {
		h.fail(w, r, "DeleteShipmentLine", err)
		return
	}
	if err := h.Shipments.RemoveLine(r.Context(), id, lineID); err != nil {
		h.fail(w, r, "DeleteShipmentLine", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SignShipment debits stock and moves the draft to Signed.
func (h *Handler) SignShipment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "SignShipment", err)
		return
	}
	doc, err := h.Shipments.Sign(r.Context(), inventory.DocumentID(id))
	if err != nil {
		h.fail(w, r, "SignShipment", err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentDTO(doc))
}

// RevokeShipment credits stock back and moves the document to Revoked.
func (h *Handler) RevokeShipment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, "RevokeShipment", err)
		return
	}
	doc, err := h.Shipments.Revoke(r.Context(), inventory.DocumentID(id))
	if err != nil {
		h.fail(w, r, "RevokeShipment", err)
		return
	}
	writeJSON(w, http.StatusOK, toShipmentDTO(doc))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decode reads a JSON body into dst and runs its validator tags.
func (h *Handler) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid JSON body: "+err.Error(), nil)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fromValidator(err)
	}
	return nil
}

func (h *Handler) decodeLine(r *http.Request) (inventory.LineInput, error) {
	var req LineRequest
	if err := h.decode(r, &req); err != nil {
		return inventory.LineInput{}, err
	}
	in, err := req.toInput()
	if err != nil {
		return inventory.LineInput{}, badRequest(err.Error(), map[string]string{"field": "quantity"})
	}
	return in, nil
}

// referenceNames maps id to name for each kind, for display columns.
func (h *Handler) referenceNames(r *http.Request, kinds ...inventory.RefKind) (map[inventory.RefKind]map[int64]string, error) {
	out := make(map[inventory.RefKind]map[int64]string, len(kinds))
	for _, kind := range kinds {
		refs, err := h.Registry.List(r.Context(), kind, nil)
		if err != nil {
			return nil, err
		}
		names := make(map[int64]string, len(refs))
		for _, ref := range refs {
			names[ref.ID] = ref.Name
		}
		out[kind] = names
	}
	return out, nil
}

func pathID(r *http.Request, param string) (int64, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest(param+" must be a positive integer", map[string]string{"field": param})
	}
	return id, nil
}

func pathDocLine(r *http.Request) (inventory.DocumentID, inventory.LineID, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, 0, err
	}
	lineID, err := pathID(r, "lineId")
	if err != nil {
		return 0, 0, err
	}
	return inventory.DocumentID(id), inventory.LineID(lineID), nil
}

// queryList returns every value of a repeated or comma separated parameter.
func queryList(q map[string][]string, key string) []string {
	var out []string
	for _, v := range q[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// queryValues returns every non-empty value of a repeated parameter as sent.
// Document numbers may contain commas, so they are never split.
func queryValues(q map[string][]string, key string) []string {
	var out []string
	for _, v := range q[key] {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func queryIDs[T ~int64](q map[string][]string, key string) ([]T, error) {
	var out []T
	for _, v := range queryList(q, key) {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return nil, badRequest(key+" must be positive integers", map[string]string{"field": key})
		}
		out = append(out, T(id))
	}
	return out, nil
}

// documentFilter reads the filters shared by receipts and shipments.
func documentFilter(r *http.Request) (inventory.DocumentFilter, error) {
	q := r.URL.Query()
	var (
		f   inventory.DocumentFilter
		err error
	)
	for _, bound := range []struct {
		key string
		dst **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		if v := q.Get(bound.key); v != "" {
			t, err := parseDate(v)
			if err != nil {
				return f, badRequest(bound.key+" must be YYYY-MM-DD", map[string]string{"field": bound.key})
			}
			*bound.dst = &t
		}
	}
	f.Numbers = queryValues(q, "number")
	if f.ResourceIDs, err = queryIDs[inventory.ResourceID](q, "resource_id"); err != nil {
		return f, err
	}
	if f.UnitIDs, err = queryIDs[inventory.UnitID](q, "unit_id"); err != nil {
		return f, err
	}
	return f, nil
}

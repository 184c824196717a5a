/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Reference CRUD, duplicate names, archive guard
- Receipt and shipment lifecycles through the router
- Error kind to status mapping and error bodies
- Request validation (unknown fields, bad quantities, bad ids)
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stock-engine/store/sqlite"
)

func setupTestHandler(t *testing.T) *Handler {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewHandler(store, nil, nil)
}

type testAPI struct {
	t      *testing.T
	h      *Handler
	router http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	h := setupTestHandler(t)
	return &testAPI{t: t, h: h, router: NewRouter(h, Options{Scenarios: true})}
}

// do sends a request and decodes the JSON response into out when non-nil.
func (a *testAPI) do(method, path string, body any, out any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	if out != nil && rec.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func (a *testAPI) reference(kind, name string) int64 {
	a.t.Helper()
	var ref ReferenceDTO
	rec := a.do(http.MethodPost, "/api/"+kind, ReferenceRequest{Name: name}, &ref)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	return ref.ID
}

func (a *testAPI) available(resource, unit int64) AvailableDTO {
	a.t.Helper()
	var out AvailableDTO
	rec := a.do(http.MethodGet, fmt.Sprintf("/api/balances/available?resource_id=%d&unit_id=%d", resource, unit), nil, &out)
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	return out
}

func lineReq(resource, unit int64, qty string) LineRequest {
	return LineRequest{ResourceID: resource, UnitID: unit, Quantity: json.Number(qty)}
}

// =============================================================================
// REFERENCES
// =============================================================================

func TestReferences_CreateListRename(t *testing.T) {
	// GIVEN: An empty store
	// WHEN: Creating two clients and renaming one
	// THEN: Both are listed as active, the rename sticks

	api := newTestAPI(t)

	var acme ReferenceDTO
	rec := api.do(http.MethodPost, "/api/clients", ReferenceRequest{Name: "Acme", Address: "1 Main St"}, &acme)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "client", acme.Kind)
	assert.Equal(t, "active", acme.Status)
	assert.Equal(t, "1 Main St", acme.Address)

	api.reference("clients", "Globex")

	var renamed ReferenceDTO
	rec = api.do(http.MethodPut, fmt.Sprintf("/api/clients/%d", acme.ID), ReferenceRequest{Name: "Acme Corp", Address: "2 Main St"}, &renamed)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Acme Corp", renamed.Name)

	var list []ReferenceDTO
	rec = api.do(http.MethodGet, "/api/clients?status=active", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, list, 2)
}

func TestReferences_DuplicateNameIsConflict(t *testing.T) {
	api := newTestAPI(t)
	api.reference("units", "kg")

	var resp ErrorResponse
	rec := api.do(http.MethodPost, "/api/units", ReferenceRequest{Name: "kg"}, &resp)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", resp.Kind)
}

func TestReferences_ArchiveGuardAndIdempotence(t *testing.T) {
	// GIVEN: Bolt has a balance row, Washer is unused
	// WHEN: Archiving both, Washer twice
	// THEN: Bolt is refused with 409, Washer archives and stays archived

	api := newTestAPI(t)
	bolt := api.reference("resources", "Bolt")
	washer := api.reference("resources", "Washer")
	pcs := api.reference("units", "pcs")

	rec := api.do(http.MethodPost, "/api/receipts", ReceiptRequest{
		Number: "R-1", Date: "2025-03-01", Lines: []LineRequest{lineReq(bolt, pcs, "10")},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp ErrorResponse
	rec = api.do(http.MethodPost, fmt.Sprintf("/api/resources/%d/archive", bolt), nil, &resp)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", resp.Kind)

	for i := 0; i < 2; i++ {
		var ref ReferenceDTO
		rec = api.do(http.MethodPost, fmt.Sprintf("/api/resources/%d/archive", washer), nil, &ref)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "archived", ref.Status)
	}

	var restored ReferenceDTO
	rec = api.do(http.MethodPost, fmt.Sprintf("/api/resources/%d/restore", washer), nil, &restored)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", restored.Status)
}

func TestReferences_NotFoundAndBadID(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/api/units/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodGet, "/api/units/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// RECEIPTS
// =============================================================================

func TestReceipts_CreatePostsBalance(t *testing.T) {
	// GIVEN: Bolt/pcs with no stock
	// WHEN: Posting a receipt of 100 and adding a line of 2.5
	// THEN: On hand is 102.5, listed in the balances with names

	api := newTestAPI(t)
	bolt := api.reference("resources", "Bolt")
	pcs := api.reference("units", "pcs")

	var doc ReceiptDTO
	rec := api.do(http.MethodPost, "/api/receipts", ReceiptRequest{
		Number: "R-1", Date: "2025-03-01", Lines: []LineRequest{lineReq(bolt, pcs, "100")},
	}, &doc)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, doc.Lines, 1)
	assert.Equal(t, "100.0000", doc.Lines[0].Quantity)

	rec = api.do(http.MethodPost, fmt.Sprintf("/api/receipts/%d/lines", doc.ID), lineReq(bolt, pcs, "2.5"), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	assert.Equal(t, "102.5000", api.available(bolt, pcs).OnHand)

	var rows []BalanceDTO
	rec = api.do(http.MethodGet, fmt.Sprintf("/api/balances?resource_id=%d", bolt), nil, &rows)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, rows, 1)
	assert.Equal(t, "Bolt", rows[0].ResourceName)
	assert.Equal(t, "pcs", rows[0].UnitName)
	assert.Equal(t, "102.5000", rows[0].Quantity)
}

func TestReceipts_RemovalThatWouldOverdrawIsRejected(t *testing.T) {
	// GIVEN: 10 received, 8 shipped and signed
	// WHEN: Deleting the receipt
	// THEN: 409 with the shortfall in details, the receipt and stock are untouched

	api := newTestAPI(t)
	bolt := api.reference("resources", "Bolt")
	pcs := api.reference("units", "pcs")
	client := api.reference("clients", "Acme")

	var receipt ReceiptDTO
	api.do(http.MethodPost, "/api/receipts", ReceiptRequest{
		Number: "R-1", Date: "2025-03-01", Lines: []LineRequest{lineReq(bolt, pcs, "10")},
	}, &receipt)
	rec := api.do(http.MethodPost, "/api/shipments", ShipmentRequest{
		Number: "S-1", ClientID: client, Date: "2025-03-02", Lines: []LineRequest{lineReq(bolt, pcs, "8")}, Sign: true,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp ErrorResponse
	rec = api.do(http.MethodDelete, fmt.Sprintf("/api/receipts/%d", receipt.ID), nil, &resp)
	assert.Equal(t, http.StatusConflict, rec.Code)
	details, ok := resp.Details.(map[string]any)
	require.True(t, ok, "details: %#v", resp.Details)
	assert.Equal(t, "8.0000", details["shortfall"])

	assert.Equal(t, "2.0000", api.available(bolt, pcs).OnHand)
	rec = api.do(http.MethodGet, fmt.Sprintf("/api/receipts/%d", receipt.ID), nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReceipts_DeleteReversesLines(t *testing.T) {
	api := newTestAPI(t)
	bolt := api.reference("resources", "Bolt")
	pcs := api.reference("units", "pcs")

	var receipt ReceiptDTO
	api.do(http.MethodPost, "/api/receipts", ReceiptRequest{
		Number: "R-1", Date: "2025-03-01", Lines: []LineRequest{lineReq(bolt, pcs, "10")},
	}, &receipt)

	rec := api.do(http.MethodDelete, fmt.Sprintf("/api/receipts/%d", receipt.ID), nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, "0.0000", api.available(bolt, pcs).OnHand)

	rec = api.do(http.MethodGet, fmt.Sprintf("/api/receipts/%d", receipt.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReceipts_ListFilters(t *testing.T) {
	api := newTestAPI(t)
	bolt := api.reference("resources", "Bolt")
	nut := api.reference("resources", "Nut")
	pcs := api.reference("units", "pcs")

	api.do(http.MethodPost, "/api/receipts", ReceiptRequest{Number: "R-1", Date: "2025-03-01", Lines: []LineRequest{lineReq(bolt, pcs, "1")}}, nil)
	api.do(http.MethodPost, "/api/receipts", ReceiptRequest{Number: "R-2", Date: "2025-03-10", Lines: []LineRequest{lineReq(nut, pcs, "1")}}, nil)

	var docs []ReceiptDTO
	rec := api.do(http.MethodGet, "/api/receipts?from=2025-03-05", nil, &docs)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, docs, 1)
	assert.Equal(t, "R-2", docs[0].Number)

	rec = api.do(http.MethodGet, fmt.Sprintf("/api/receipts?resource_id=%d", bolt), nil, &docs)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, docs, 1)
	assert.Equal(t, "R-1", docs[0].Number)

	rec = api.do(http.MethodGet, "/api/receipts?from=March", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReceipts_ListByNumberMatchesExactly(t *testing.T) {
	// GIVEN: Receipts "R-1,A", "R-1" and "A"
	// WHEN: Filtering by number "R-1,A" and by repeated number values
	// THEN: The comma is part of the number, repeats form the set

	api := newTestAPI(t)
	for _, number := range []string{"R-1,A", "R-1", "A"} {
		rec := api.do(http.MethodPost, "/api/receipts", ReceiptRequest{Number: number, Date: "2025-03-01"}, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	var docs []ReceiptDTO
	rec := api.do(http.MethodGet, "/api/receipts?"+url.Values{"number": {"R-1,A"}}.Encode(), nil, &docs)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, docs, 1)
	assert.Equal(t, "R-1,A", docs[0].Number)

	rec = api.do(http.MethodGet, "/api/receipts?"+url.Values{"number": {"R-1", "A"}}.Encode(), nil, &docs)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, docs, 2)
}

// =============================================================================
// SHIPMENTS
// =============================================================================

func TestShipments_SignRevokeLifecycle(t *testing.T) {
	// GIVEN: 100 pcs received
	// WHEN: A 30 pcs draft is signed, then revoked, then revoked again
	// THEN: Stock goes 100 -> 70 -> 100, the second revoke is a 409

	api := newTestAPI(t)
	bolt := api.reference("resources", "Bolt")
	pcs := api.reference("units", "pcs")
	client := api.reference("clients", "Acme")

	api.do(http.MethodPost, "/api/receipts", ReceiptRequest{Number: "R-1", Date: "2025-03-01", Lines: []LineRequest{lineReq(bolt, pcs, "100")}}, nil)

	var draft ShipmentDTO
	rec := api.do(http.MethodPost, "/api/shipments", ShipmentRequest{
		Number: "S-1", ClientID: client, Date: "2025-03-02", Lines: []LineRequest{lineReq(bolt, pcs, "30")},
	}, &draft)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "draft", draft.Status)
	assert.Equal(t, "100.0000", api.available(bolt, pcs).OnHand)

	var signed ShipmentDTO
	rec = api.do(http.MethodPost, fmt.Sprintf("/api/shipments/%d/sign", draft.ID), nil, &signed)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "signed", signed.Status)
	assert.Equal(t, "70.0000", api.available(bolt, pcs).OnHand)

	// Signed documents are frozen.
	rec = api.do(http.MethodPost, fmt.Sprintf("/api/shipments/%d/lines", draft.ID), lineReq(bolt, pcs, "1"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = api.do(http.MethodDelete, fmt.Sprintf("/api/shipments/%d", draft.ID), nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var revoked ShipmentDTO
	rec = api.do(http.MethodPost, fmt.Sprintf("/api/shipments/%d/revoke", draft.ID), nil, &revoked)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "revoked", revoked.Status)
	assert.Equal(t, "100.0000", api.available(bolt, pcs).OnHand)

	var resp ErrorResponse
	rec = api.do(http.MethodPost, fmt.Sprintf("/api/shipments/%d/revoke", draft.ID), nil, &resp)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", resp.Kind)
}

func TestShipments_SignWithoutStockLeavesDraft(t *testing.T) {
	api := newTestAPI(t)
	cement := api.reference("resources", "Cement")
	kg := api.reference("units", "kg")
	client := api.reference("clients", "BuildRight")

	var draft ShipmentDTO
	api.do(http.MethodPost, "/api/shipments", ShipmentRequest{
		Number: "S-1", ClientID: client, Date: "2025-03-02", Lines: []LineRequest{lineReq(cement, kg, "50")},
	}, &draft)

	var resp ErrorResponse
	rec := api.do(http.MethodPost, fmt.Sprintf("/api/shipments/%d/sign", draft.ID), nil, &resp)
	assert.Equal(t, http.StatusConflict, rec.Code)
	details, ok := resp.Details.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "50.0000", details["requested"])

	var got ShipmentDTO
	api.do(http.MethodGet, fmt.Sprintf("/api/shipments/%d", draft.ID), nil, &got)
	assert.Equal(t, "draft", got.Status)
	assert.Equal(t, "0.0000", api.available(cement, kg).OnHand)
}

func TestShipments_CreateSignedFailsAtomically(t *testing.T) {
	// GIVEN: No stock
	// WHEN: Creating a shipment with sign=true
	// THEN: 409 and no document is left behind

	api := newTestAPI(t)
	bolt := api.reference("resources", "Bolt")
	pcs := api.reference("units", "pcs")
	client := api.reference("clients", "Acme")

	rec := api.do(http.MethodPost, "/api/shipments", ShipmentRequest{
		Number: "S-1", ClientID: client, Date: "2025-03-02", Lines: []LineRequest{lineReq(bolt, pcs, "1")}, Sign: true,
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var docs []ShipmentDTO
	rec = api.do(http.MethodGet, "/api/shipments", nil, &docs)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, docs)
}

func TestShipments_DraftEditAndDelete(t *testing.T) {
	api := newTestAPI(t)
	bolt := api.reference("resources", "Bolt")
	nut := api.reference("resources", "Nut")
	pcs := api.reference("units", "pcs")
	client := api.reference("clients", "Acme")
	other := api.reference("clients", "Globex")

	var draft ShipmentDTO
	api.do(http.MethodPost, "/api/shipments", ShipmentRequest{
		Number: "S-1", ClientID: client, Date: "2025-03-02",
		Lines: []LineRequest{lineReq(bolt, pcs, "5"), lineReq(nut, pcs, "5")},
	}, &draft)
	require.Len(t, draft.Lines, 2)

	rec := api.do(http.MethodDelete, fmt.Sprintf("/api/shipments/%d/lines/%d", draft.ID, draft.Lines[1].ID), nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	var updated ShipmentDTO
	rec = api.do(http.MethodPut, fmt.Sprintf("/api/shipments/%d", draft.ID), ShipmentHeaderRequest{
		Number: "S-1A", ClientID: other, Date: "2025-03-03",
	}, &updated)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "S-1A", updated.Number)
	assert.Equal(t, other, updated.ClientID)
	assert.Len(t, updated.Lines, 1)

	rec = api.do(http.MethodDelete, fmt.Sprintf("/api/shipments/%d", draft.ID), nil, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "0.0000", api.available(bolt, pcs).OnHand)
}

func TestShipments_ListByStatusAndClient(t *testing.T) {
	api := newTestAPI(t)
	bolt := api.reference("resources", "Bolt")
	pcs := api.reference("units", "pcs")
	acme := api.reference("clients", "Acme")
	globex := api.reference("clients", "Globex")

	api.do(http.MethodPost, "/api/receipts", ReceiptRequest{Number: "R-1", Date: "2025-03-01", Lines: []LineRequest{lineReq(bolt, pcs, "10")}}, nil)
	api.do(http.MethodPost, "/api/shipments", ShipmentRequest{Number: "S-1", ClientID: acme, Date: "2025-03-02", Lines: []LineRequest{lineReq(bolt, pcs, "1")}, Sign: true}, nil)
	api.do(http.MethodPost, "/api/shipments", ShipmentRequest{Number: "S-2", ClientID: globex, Date: "2025-03-02", Lines: []LineRequest{lineReq(bolt, pcs, "1")}}, nil)

	var docs []ShipmentDTO
	rec := api.do(http.MethodGet, "/api/shipments?status=signed", nil, &docs)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, docs, 1)
	assert.Equal(t, "S-1", docs[0].Number)

	rec = api.do(http.MethodGet, fmt.Sprintf("/api/shipments?client_id=%d", globex), nil, &docs)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, docs, 1)
	assert.Equal(t, "S-2", docs[0].Number)
}

// =============================================================================
// VALIDATION AND RECONCILIATION
// =============================================================================

func TestValidation_RejectsMalformedRequests(t *testing.T) {
	api := newTestAPI(t)
	bolt := api.reference("resources", "Bolt")
	pcs := api.reference("units", "pcs")

	tests := []struct {
		name string
		body any
	}{
		{"unknown field", `{"number":"R-1","date":"2025-03-01","colour":"red"}`},
		{"missing number", ReceiptRequest{Date: "2025-03-01"}},
		{"bad date", ReceiptRequest{Number: "R-1", Date: "01/03/2025"}},
		{"negative quantity", ReceiptRequest{Number: "R-1", Date: "2025-03-01", Lines: []LineRequest{lineReq(bolt, pcs, "-1")}}},
		{"too many decimals", ReceiptRequest{Number: "R-1", Date: "2025-03-01", Lines: []LineRequest{lineReq(bolt, pcs, "0.00001")}}},
		{"exponent overflow", ReceiptRequest{Number: "R-1", Date: "2025-03-01", Lines: []LineRequest{lineReq(bolt, pcs, "1e10000000")}}},
		{"beyond balance column", ReceiptRequest{Number: "R-1", Date: "2025-03-01", Lines: []LineRequest{lineReq(bolt, pcs, "100000000000000")}}},
		{"missing unit", ReceiptRequest{Number: "R-1", Date: "2025-03-01", Lines: []LineRequest{{ResourceID: bolt, Quantity: "1"}}}},
		{"not json", "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp ErrorResponse
			rec := api.do(http.MethodPost, "/api/receipts", tt.body, &resp)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "validation", resp.Kind)
		})
	}

	assert.Equal(t, "0.0000", api.available(bolt, pcs).OnHand)
}

func TestReconcile_ConsistentAfterActivity(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.h.loadScenario(context.Background(), "warehouse"))

	var resp ReconcileResponse
	rec := api.do(http.MethodGet, "/api/balances/reconcile", nil, &resp)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, resp.Consistent)
	assert.Empty(t, resp.Drifts)
}

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

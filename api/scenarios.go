/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built data sets that walk the console through the balance
  rules. Each scenario wipes the store and replays a short document
  history through the real services, so every balance on screen was
  produced by the same code paths a user would trigger.

AVAILABLE SCENARIOS:
  receive-ship-revoke:  100 pcs received, 30 shipped and signed, then revoked
  oversell-rejected:    Signing 50 kg against an empty balance fails; draft stays
  competing-drafts:     Two 150 kg drafts against 200 kg; only the first signs
  archive-guard:        A resource with a balance row refuses to be archived
  draft-deletion:       A two-line draft is deleted without touching stock
  warehouse:            A busier mix of all of the above for browsing

HOW SCENARIOS WORK:
  1. Reset the store (requires inventory.Resetter)
  2. Create reference entities through the Registry
  3. Post receipts and shipments through the engines
  4. Steps that are expected to be rejected are checked for the exact error

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "competing-drafts"}

NOTE:
  Scenarios reset the database. The routes are only mounted in development
  (serve --scenarios).

SEE ALSO:
  - handlers.go: Handler wiring
  - server.go: Options.Scenarios
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/stock-engine/inventory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "receive-ship-revoke",
		Name:        "Receive, Ship, Revoke",
		Description: "Receive 100 pcs of Bolt, sign a 30 pcs shipment (70 left), revoke it (100 again)",
	},
	{
		ID:          "oversell-rejected",
		Name:        "Oversell Rejected",
		Description: "Signing 50 kg of Cement with nothing on hand fails; the draft and the zero balance stay",
	},
	{
		ID:          "competing-drafts",
		Name:        "Competing Drafts",
		Description: "200 kg on hand, two 150 kg drafts: the first signs (50 left), the second is rejected",
	},
	{
		ID:          "archive-guard",
		Name:        "Archive Guard",
		Description: "A resource that appears in a balance row cannot be archived",
	},
	{
		ID:          "draft-deletion",
		Name:        "Draft Deletion",
		Description: "A draft shipment with two lines is deleted; stock is unchanged",
	},
	{
		ID:          "warehouse",
		Name:        "Warehouse",
		Description: "Several resources, units and clients with receipts and shipments in every state",
	},
}

type scenarioLoader func(ctx context.Context, h *Handler) error

var scenarioLoaders = map[string]scenarioLoader{
	"receive-ship-revoke": loadReceiveShipRevoke,
	"oversell-rejected":   loadOversellRejected,
	"competing-drafts":    loadCompetingDrafts,
	"archive-guard":       loadArchiveGuard,
	"draft-deletion":      loadDraftDeletion,
	"warehouse":           loadWarehouse,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, "LoadScenario", err)
		return
	}
	if err := h.loadScenario(r.Context(), req.ScenarioID); err != nil {
		h.fail(w, r, "LoadScenario", err)
		return
	}

	for _, s := range scenarios {
		if s.ID == req.ScenarioID {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
}

// loadScenario serializes loads; two concurrent resets would interleave.
func (h *Handler) loadScenario(ctx context.Context, id string) error {
	load, ok := scenarioLoaders[id]
	if !ok {
		return badRequest(fmt.Sprintf("unknown scenario %q", id), map[string]string{"field": "scenario_id"})
	}
	resetter, ok := h.Store.(inventory.Resetter)
	if !ok {
		return fmt.Errorf("store does not support reset")
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	if err := resetter.Reset(ctx); err != nil {
		return inventory.WrapStore("reset", err)
	}
	h.currentScenario = ""
	if err := load(ctx, h); err != nil {
		return fmt.Errorf("scenario %s: %w", id, err)
	}
	h.currentScenario = id
	h.Log.WithField("scenario", id).Info("scenario loaded")
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// demo wraps the services with helpers that keep loaders short.
type demo struct {
	ctx context.Context
	h   *Handler
	err error
}

func (d *demo) ref(kind inventory.RefKind, name, address string) int64 {
	if d.err != nil {
		return 0
	}
	ref, err := d.h.Registry.Create(d.ctx, kind, name, address)
	if err != nil {
		d.err = fmt.Errorf("create %s %q: %w", kind, name, err)
	}
	return ref.ID
}

func (d *demo) receipt(number string, date time.Time, lines ...inventory.LineInput) inventory.ReceiptDocument {
	if d.err != nil {
		return inventory.ReceiptDocument{}
	}
	doc, err := d.h.Receipts.CreateWithLines(d.ctx, number, date, lines)
	if err != nil {
		d.err = fmt.Errorf("receipt %s: %w", number, err)
	}
	return doc
}

func (d *demo) draft(number string, client int64, date time.Time, lines ...inventory.LineInput) inventory.ShipmentDocument {
	if d.err != nil {
		return inventory.ShipmentDocument{}
	}
	doc, err := d.h.Shipments.CreateWithLines(d.ctx, number, inventory.ClientID(client), date, lines, false)
	if err != nil {
		d.err = fmt.Errorf("shipment %s: %w", number, err)
	}
	return doc
}

func (d *demo) sign(doc inventory.ShipmentDocument) {
	if d.err != nil {
		return
	}
	if _, err := d.h.Shipments.Sign(d.ctx, doc.ID); err != nil {
		d.err = fmt.Errorf("sign %s: %w", doc.Number, err)
	}
}

func (d *demo) revoke(doc inventory.ShipmentDocument) {
	if d.err != nil {
		return
	}
	if _, err := d.h.Shipments.Revoke(d.ctx, doc.ID); err != nil {
		d.err = fmt.Errorf("revoke %s: %w", doc.Number, err)
	}
}

// expect records a failure unless err matches want.
func (d *demo) expect(step string, err, want error) {
	if d.err != nil {
		return
	}
	if !errors.Is(err, want) {
		d.err = fmt.Errorf("%s: expected %v, got %v", step, want, err)
	}
}

func line(resource, unit int64, qty string) inventory.LineInput {
	return inventory.LineInput{
		ResourceID: inventory.ResourceID(resource),
		UnitID:     inventory.UnitID(unit),
		Quantity:   inventory.MustParseQuantity(qty),
	}
}

func day(month time.Month, d int) time.Time {
	return time.Date(2025, month, d, 0, 0, 0, 0, time.UTC)
}

func loadReceiveShipRevoke(ctx context.Context, h *Handler) error {
	d := &demo{ctx: ctx, h: h}
	bolt := d.ref(inventory.KindResource, "Bolt", "")
	pcs := d.ref(inventory.KindUnit, "pcs", "")
	client := d.ref(inventory.KindClient, "Northwind Traders", "12 Harbour Rd")

	d.receipt("R-0001", day(time.March, 3), line(bolt, pcs, "100"))
	ship := d.draft("S-0001", client, day(time.March, 4), line(bolt, pcs, "30"))
	d.sign(ship)
	d.revoke(ship)
	return d.err
}

func loadOversellRejected(ctx context.Context, h *Handler) error {
	d := &demo{ctx: ctx, h: h}
	cement := d.ref(inventory.KindResource, "Cement", "")
	kg := d.ref(inventory.KindUnit, "kg", "")
	client := d.ref(inventory.KindClient, "BuildRight Ltd", "4 Quarry Lane")

	ship := d.draft("S-0001", client, day(time.March, 5), line(cement, kg, "50"))
	if d.err != nil {
		return d.err
	}
	_, err := h.Shipments.Sign(ctx, ship.ID)
	d.expect("sign S-0001", err, inventory.ErrInsufficientStock)
	return d.err
}

func loadCompetingDrafts(ctx context.Context, h *Handler) error {
	d := &demo{ctx: ctx, h: h}
	cement := d.ref(inventory.KindResource, "Cement", "")
	kg := d.ref(inventory.KindUnit, "kg", "")
	client := d.ref(inventory.KindClient, "BuildRight Ltd", "4 Quarry Lane")

	d.receipt("R-0001", day(time.March, 1), line(cement, kg, "200"))
	first := d.draft("S-0001", client, day(time.March, 2), line(cement, kg, "150"))
	second := d.draft("S-0002", client, day(time.March, 2), line(cement, kg, "150"))
	d.sign(first)
	if d.err != nil {
		return d.err
	}
	_, err := h.Shipments.Sign(ctx, second.ID)
	d.expect("sign S-0002", err, inventory.ErrInsufficientStock)
	return d.err
}

func loadArchiveGuard(ctx context.Context, h *Handler) error {
	d := &demo{ctx: ctx, h: h}
	bolt := d.ref(inventory.KindResource, "Bolt", "")
	pcs := d.ref(inventory.KindUnit, "pcs", "")
	d.ref(inventory.KindResource, "Washer", "")

	d.receipt("R-0001", day(time.March, 1), line(bolt, pcs, "10"))
	if d.err != nil {
		return d.err
	}
	_, err := h.Registry.Archive(ctx, inventory.KindResource, bolt)
	d.expect("archive Bolt", err, inventory.ErrReferenceInUse)
	return d.err
}

func loadDraftDeletion(ctx context.Context, h *Handler) error {
	d := &demo{ctx: ctx, h: h}
	bolt := d.ref(inventory.KindResource, "Bolt", "")
	nut := d.ref(inventory.KindResource, "Nut", "")
	pcs := d.ref(inventory.KindUnit, "pcs", "")
	client := d.ref(inventory.KindClient, "Northwind Traders", "12 Harbour Rd")

	d.receipt("R-0001", day(time.March, 1), line(bolt, pcs, "40"), line(nut, pcs, "40"))
	doomed := d.draft("S-0001", client, day(time.March, 2), line(bolt, pcs, "5"), line(nut, pcs, "5"))
	d.draft("S-0002", client, day(time.March, 3), line(bolt, pcs, "1"))
	if d.err != nil {
		return d.err
	}
	if err := h.Shipments.Remove(ctx, doomed.ID); err != nil {
		return fmt.Errorf("remove S-0001: %w", err)
	}
	return nil
}

func loadWarehouse(ctx context.Context, h *Handler) error {
	d := &demo{ctx: ctx, h: h}

	bolt := d.ref(inventory.KindResource, "Bolt M8", "")
	nut := d.ref(inventory.KindResource, "Nut M8", "")
	cable := d.ref(inventory.KindResource, "Copper cable", "")
	cement := d.ref(inventory.KindResource, "Cement", "")
	legacy := d.ref(inventory.KindResource, "Legacy bracket", "")

	pcs := d.ref(inventory.KindUnit, "pcs", "")
	box := d.ref(inventory.KindUnit, "box", "")
	m := d.ref(inventory.KindUnit, "m", "")
	kg := d.ref(inventory.KindUnit, "kg", "")

	northwind := d.ref(inventory.KindClient, "Northwind Traders", "12 Harbour Rd")
	buildright := d.ref(inventory.KindClient, "BuildRight Ltd", "4 Quarry Lane")
	sparks := d.ref(inventory.KindClient, "Sparks Electrical", "88 Volt Ave")
	d.ref(inventory.KindClient, "Dormant Co", "1 Nowhere St")

	d.receipt("R-0001", day(time.February, 3), line(bolt, pcs, "500"), line(nut, pcs, "500"), line(bolt, box, "20"))
	d.receipt("R-0002", day(time.February, 10), line(cable, m, "1250.5"), line(cement, kg, "2000"))
	d.receipt("R-0003", day(time.February, 24), line(cement, kg, "750.25"))

	s1 := d.draft("S-0001", buildright, day(time.March, 1), line(cement, kg, "1200"))
	d.sign(s1)
	s2 := d.draft("S-0002", sparks, day(time.March, 2), line(cable, m, "310.75"), line(bolt, pcs, "40"))
	d.sign(s2)
	s3 := d.draft("S-0003", northwind, day(time.March, 4), line(bolt, pcs, "120"), line(nut, pcs, "120"))
	d.sign(s3)
	d.revoke(s3)
	d.draft("S-0004", northwind, day(time.March, 9), line(bolt, box, "5"), line(nut, pcs, "60"))

	if d.err != nil {
		return d.err
	}
	// Unused entities can be archived; they drop out of the active lists.
	if _, err := h.Registry.Archive(ctx, inventory.KindResource, legacy); err != nil {
		return fmt.Errorf("archive legacy bracket: %w", err)
	}
	return nil
}

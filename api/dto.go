/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the inventory domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

QUANTITIES:
  Responses carry quantities as strings with 4 fractional digits ("12.5000")
  so JavaScript clients never round them. Requests accept either a JSON
  number or a numeric string.

DATES:
  Document dates are calendar days, "2006-01-02".

VALIDATION:
  Request types carry go-playground/validator tags checked by decode()
  before any domain call. Domain rules (positive quantity, 4 fractional
  digits, active references) are enforced again by the services.

SEE ALSO:
  - handlers.go: Uses these types
  - inventory/types.go: Domain types
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/stock-engine/inventory"
)

const dateLayout = "2006-01-02"

// =============================================================================
// REFERENCE ENTITIES
// =============================================================================

// ReferenceDTO represents a resource, unit or client.
type ReferenceDTO struct {
	ID      int64  `json:"id"`
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	Status  string `json:"status"`
}

// ReferenceRequest creates or renames a reference entity. Address is only
// meaningful for clients.
type ReferenceRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address" validate:"max=500"`
}

func toReferenceDTO(r inventory.Reference) ReferenceDTO {
	return ReferenceDTO{
		ID:      r.ID,
		Kind:    string(r.Kind),
		Name:    r.Name,
		Address: r.Address,
		Status:  string(r.Status),
	}
}

// =============================================================================
// BALANCES
// =============================================================================

// BalanceDTO is one ledger row.
type BalanceDTO struct {
	ResourceID   int64  `json:"resource_id"`
	ResourceName string `json:"resource_name,omitempty"`
	UnitID       int64  `json:"unit_id"`
	UnitName     string `json:"unit_name,omitempty"`
	Quantity     string `json:"quantity"`
}

// AvailableDTO answers "how much of this pair can be shipped right now".
type AvailableDTO struct {
	ResourceID int64  `json:"resource_id"`
	UnitID     int64  `json:"unit_id"`
	OnHand     string `json:"on_hand"`
	Available  string `json:"available"`
}

// DriftDTO is a balance row that disagrees with document history.
type DriftDTO struct {
	ResourceID int64  `json:"resource_id"`
	UnitID     int64  `json:"unit_id"`
	Stored     string `json:"stored"`
	Expected   string `json:"expected"`
	MissingRow bool   `json:"missing_row,omitempty"`
}

// ReconcileResponse wraps the drift list.
type ReconcileResponse struct {
	Consistent bool       `json:"consistent"`
	Drifts     []DriftDTO `json:"drifts"`
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// LineRequest is one document line in a request.
type LineRequest struct {
	ResourceID int64       `json:"resource_id" validate:"required,gt=0"`
	UnitID     int64       `json:"unit_id" validate:"required,gt=0"`
	Quantity   json.Number `json:"quantity" validate:"required"`
}

// ReceiptRequest creates a receipt, optionally with lines.
type ReceiptRequest struct {
	Number string        `json:"number" validate:"required,max=50"`
	Date   string        `json:"date" validate:"required,datetime=2006-01-02"`
	Lines  []LineRequest `json:"lines" validate:"omitempty,dive"`
}

// ReceiptHeaderRequest changes a receipt's number and date.
type ReceiptHeaderRequest struct {
	Number string `json:"number" validate:"required,max=50"`
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
}

// ShipmentRequest creates a draft shipment. With Sign set the draft is
// signed in the same transaction; if signing fails nothing is created.
type ShipmentRequest struct {
	Number   string        `json:"number" validate:"required,max=50"`
	ClientID int64         `json:"client_id" validate:"required,gt=0"`
	Date     string        `json:"date" validate:"required,datetime=2006-01-02"`
	Lines    []LineRequest `json:"lines" validate:"omitempty,dive"`
	Sign     bool          `json:"sign"`
}

// ShipmentHeaderRequest changes a draft shipment's header.
type ShipmentHeaderRequest struct {
	Number   string `json:"number" validate:"required,max=50"`
	ClientID int64  `json:"client_id" validate:"required,gt=0"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
}

// LineDTO is one document line in a response.
type LineDTO struct {
	ID         int64  `json:"id"`
	ResourceID int64  `json:"resource_id"`
	UnitID     int64  `json:"unit_id"`
	Quantity   string `json:"quantity"`
}

// ReceiptDTO represents a receipt document.
type ReceiptDTO struct {
	ID     int64     `json:"id"`
	Number string    `json:"number"`
	Date   string    `json:"date"`
	Lines  []LineDTO `json:"lines"`
}

// ShipmentDTO represents a shipment document.
type ShipmentDTO struct {
	ID       int64     `json:"id"`
	Number   string    `json:"number"`
	ClientID int64     `json:"client_id"`
	Date     string    `json:"date"`
	Status   string    `json:"status"`
	Lines    []LineDTO `json:"lines"`
}

func toLineDTOs(lines []inventory.Line) []LineDTO {
	out := make([]LineDTO, 0, len(lines))
	for _, l := range lines {
		out = append(out, LineDTO{
			ID:         int64(l.ID),
			ResourceID: int64(l.ResourceID),
			UnitID:     int64(l.UnitID),
			Quantity:   l.Quantity.String(),
		})
	}
	return out
}

func toReceiptDTO(doc inventory.ReceiptDocument) ReceiptDTO {
	return ReceiptDTO{
		ID:     int64(doc.ID),
		Number: doc.Number,
		Date:   doc.Date.Format(dateLayout),
		Lines:  toLineDTOs(doc.Lines),
	}
}

func toShipmentDTO(doc inventory.ShipmentDocument) ShipmentDTO {
	return ShipmentDTO{
		ID:       int64(doc.ID),
		Number:   doc.Number,
		ClientID: int64(doc.ClientID),
		Date:     doc.Date.Format(dateLayout),
		Status:   string(doc.Status),
		Lines:    toLineDTOs(doc.Lines),
	}
}

// toLineInputs converts validated request lines. Quantity syntax errors are
// reported against the line index.
func toLineInputs(lines []LineRequest) ([]inventory.LineInput, error) {
	out := make([]inventory.LineInput, 0, len(lines))
	for i, l := range lines {
		in, err := l.toInput()
		if err != nil {
			return nil, badRequest(err.Error(), map[string]any{"line": i})
		}
		out = append(out, in)
	}
	return out, nil
}

func (l LineRequest) toInput() (inventory.LineInput, error) {
	q, err := inventory.ParseQuantity(l.Quantity.String())
	if err != nil {
		return inventory.LineInput{}, err
	}
	return inventory.LineInput{
		ResourceID: inventory.ResourceID(l.ResourceID),
		UnitID:     inventory.UnitID(l.UnitID),
		Quantity:   q,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Details any    `json:"details,omitempty"`
}

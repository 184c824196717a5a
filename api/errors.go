/*
errors.go - Error kind to HTTP status mapping

  inventory.KindValidation  400 Bad Request
  inventory.KindNotFound    404 Not Found
  inventory.KindConflict    409 Conflict
  inventory.KindStore       503 Service Unavailable (retryable)

Every error body is ErrorResponse. Details carry the structured part of the
domain error so the console can point at the offending field, line or
balance pair.
*/
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/warp/stock-engine/config"
	"github.com/warp/stock-engine/inventory"
)

// requestError is a malformed request body or query. It classifies as
// inventory.KindValidation.
type requestError struct {
	msg     string
	details any
}

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Unwrap() error { return inventory.ErrValidation }

func badRequest(msg string, details any) error {
	return &requestError{msg: msg, details: details}
}

// fromValidator turns validator.ValidationErrors into a requestError
// listing each failed field and rule.
func fromValidator(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return badRequest(err.Error(), nil)
	}
	fields := make(map[string]string, len(ve))
	names := make([]string, 0, len(ve))
	for _, fe := range ve {
		fields[fe.Namespace()] = fe.Tag()
		names = append(names, fe.Field())
	}
	return badRequest(fmt.Sprintf("invalid fields: %s", strings.Join(names, ", ")), fields)
}

func statusFor(kind inventory.Kind) int {
	switch kind {
	case inventory.KindValidation:
		return http.StatusBadRequest
	case inventory.KindNotFound:
		return http.StatusNotFound
	case inventory.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// detailsFor extracts the structured fields of known domain errors.
func detailsFor(err error) any {
	var (
		reqErr   *requestError
		fieldErr *inventory.FieldError
		stockErr *inventory.InsufficientStockError
		stateErr *inventory.InvalidStateError
		refErr   *inventory.ReferenceError
		useErr   *inventory.InUseError
	)
	switch {
	case errors.As(err, &reqErr):
		return reqErr.details
	case errors.As(err, &fieldErr):
		return map[string]string{"field": fieldErr.Field}
	case errors.As(err, &stockErr):
		return map[string]any{
			"resource_id": stockErr.Key.ResourceID,
			"unit_id":     stockErr.Key.UnitID,
			"available":   stockErr.Available.String(),
			"requested":   stockErr.Requested.String(),
			"shortfall":   stockErr.Shortfall().String(),
		}
	case errors.As(err, &stateErr):
		return map[string]any{
			"document_id": stateErr.DocumentID,
			"status":      stateErr.Status,
			"action":      stateErr.Action,
		}
	case errors.As(err, &refErr):
		return map[string]any{"kind": refErr.Kind, "id": refErr.ID, "archived": refErr.Archived}
	case errors.As(err, &useErr):
		return map[string]any{"kind": useErr.Kind, "id": useErr.ID}
	}
	return nil
}

// fail writes err as an ErrorResponse. Store failures are logged with the
// request id; their message is not leaked to the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, fn string, err error) {
	kind := inventory.KindOf(err)
	status := statusFor(kind)

	resp := ErrorResponse{Error: err.Error(), Kind: string(kind), Details: detailsFor(err)}
	if kind == inventory.KindStore {
		config.LogError(h.Log, "api", fn, r.Method+" "+r.URL.Path, middleware.GetReqID(r.Context()), err)
		resp.Error = "temporary storage failure, retry the request"
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, resp)
}

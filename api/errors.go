/*
errors.go - Error envelope and status mapping

PURPOSE:
  Every failure is rendered as {"error": {"code", "message", "details"}}.
  The code is the ledger error kind; the status follows from it.

STATUS MAPPING:
  validation            400
  unauthorized          401
  not_found             404
  conflict              409
  insufficient_balance  422
  concurrency, outcome_unknown, canceled  503 with Retry-After
  internal              500, message hidden and the cause logged

SEE ALSO:
  - ledger/errors.go: error kinds
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp/channel-ledger/ledger"
	"github.com/warp/channel-ledger/logger"
)

// =============================================================================
// ERROR ENVELOPE
// =============================================================================

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// requestError is raised by the HTTP layer itself (bad body, bad token)
// before the ledger is involved.
type requestError struct {
	Status  int
	Code    string
	Message string
	Details any
	Err     error
}

func (e *requestError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *requestError) Unwrap() error { return e.Err }

func badRequest(message string, details any) error {
	return &requestError{Status: http.StatusBadRequest, Code: string(ledger.KindValidation), Message: message, Details: details}
}

func unauthorized(message string, err error) error {
	return &requestError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: message, Err: err}
}

// statusFor maps a ledger error kind to an HTTP status.
func statusFor(kind ledger.Kind) int {
	switch kind {
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindConflict:
		return http.StatusConflict
	case ledger.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	case ledger.KindConcurrency, ledger.KindOutcomeUnknown, ledger.KindCanceled:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func errorDetails(err error) any {
	var insufficient *ledger.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		return map[string]string{
			"available": insufficient.Available.String(),
			"requested": insufficient.Requested.String(),
			"shortfall": insufficient.Shortfall().String(),
		}
	}
	var invalid *ledger.ValidationError
	if errors.As(err, &invalid) {
		return map[string]string{invalid.Field: invalid.Message}
	}
	return nil
}

// writeError renders err as the JSON error envelope. Internal errors are
// logged and their message is not exposed.
func writeError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		writeJSON(w, reqErr.Status, errorEnvelope{Error: apiError{Code: reqErr.Code, Message: reqErr.Message, Details: reqErr.Details}})
		return
	}

	kind := ledger.KindOf(err)
	status := statusFor(kind)
	body := apiError{Code: string(kind), Message: err.Error(), Details: errorDetails(err)}
	if kind == ledger.KindInternal {
		body.Message = "internal error"
		logg.Error(ctx, "request.failed", err)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorEnvelope{Error: body})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

/*
errors.go - Error taxonomy for the channel ledger

PURPOSE:
  All error types in one place. Callers branch on a Kind (KindOf) or on the
  sentinels with errors.Is; the structured types carry the context needed
  for a useful message and Unwrap to their sentinel.

ERROR KINDS:
  validation            bad input, nothing persisted
  not_found             unknown channel or entry
  conflict              operation not allowed in the current state
  insufficient_balance  debit would take the channel negative
  concurrency           optimistic retry budget exhausted
  outcome_unknown       write phase timed out; re-read the channel
  internal              anything else (store failures)

STORE-LEVEL SENTINELS:
  ErrVersionConflict and ErrDuplicateReference are returned by Store
  implementations. The engine translates them; they never reach API callers
  unwrapped.

SEE ALSO:
  - engine.go: produces these errors
  - api/errors.go: maps Kind to HTTP status
*/
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConcurrency         = errors.New("concurrent modification: retry budget exhausted")

	// ErrOutcomeUnknown means the write phase did not report back in time.
	// The write may have landed; callers must re-read channel state.
	ErrOutcomeUnknown = errors.New("write outcome unknown")

	// ErrVersionConflict is returned by Store.UpdateChannel when the stored
	// version no longer matches the expected one.
	ErrVersionConflict = errors.New("channel version conflict")

	// ErrDuplicateReference is returned by Store.AppendEntry when a sale entry
	// with the same reference id already exists.
	ErrDuplicateReference = errors.New("duplicate entry reference")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type NotFoundError struct {
	Resource string // "channel", "entry"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type ConflictError struct {
	ChannelID ChannelID
	Reason    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("channel %s: %s", e.ChannelID, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	ChannelID ChannelID
	Available decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance on channel %s: available %s, requested %s, shortfall %s",
		e.ChannelID, e.Available, e.Requested, e.Shortfall())
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

type ConcurrencyError struct {
	ChannelID ChannelID
	Attempts  int
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("channel %s modified concurrently: gave up after %d attempts", e.ChannelID, e.Attempts)
}

func (e *ConcurrencyError) Unwrap() error { return ErrConcurrency }

type OutcomeUnknownError struct {
	ChannelID ChannelID
	Cause     error
}

func (e *OutcomeUnknownError) Error() string {
	return fmt.Sprintf("channel %s: write outcome unknown (%v); re-read channel state", e.ChannelID, e.Cause)
}

func (e *OutcomeUnknownError) Unwrap() []error { return []error{ErrOutcomeUnknown, e.Cause} }

// =============================================================================
// KIND - One classification shared by every caller
// =============================================================================

type Kind string

const (
	KindNone                Kind = ""
	KindValidation          Kind = "validation"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindConcurrency         Kind = "concurrency"
	KindOutcomeUnknown      Kind = "outcome_unknown"
	KindCanceled            Kind = "canceled"
	KindInternal            Kind = "internal"
)

// KindOf classifies err. Order matters: OutcomeUnknown wraps a deadline error
// and must win over KindCanceled.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrConcurrency):
		return KindConcurrency
	case errors.Is(err, ErrOutcomeUnknown):
		return KindOutcomeUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}
	return KindInternal
}

// IsRetryable returns true if the whole operation may succeed on retry.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindConcurrency, KindCanceled:
		return true
	}
	return false
}

// IsClientError returns true if the error is due to invalid client input or state.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindConflict, KindInsufficientBalance:
		return true
	}
	return false
}

func channelNotFound(id ChannelID) error {
	return &NotFoundError{Resource: "channel", ID: string(id)}
}

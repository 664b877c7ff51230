/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Every amount crosses the wire as a decimal string ("25000", "1250.50").
  Requests are parsed with ledger.ParseMoney; responses use Decimal.String.

VALIDATION:
  Request types carry go-playground/validator tags; decodeJSON checks them
  (validate.go). Domain rules (non-negative, active channel) stay in ledger.

SEE ALSO:
  - handlers.go: Uses these types
  - validate.go: Body decoding and tag validation
*/
package api

import (
	"time"

	"github.com/warp/channel-ledger/ledger"
)

// =============================================================================
// CHANNELS
// =============================================================================

// ChannelDTO represents a payment channel in API responses.
type ChannelDTO struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Balance     string    `json:"balance"`
	IsActive    bool      `json:"is_active"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CreateChannelRequest struct {
	Name           string `json:"name" validate:"required,max=100"`
	Type           string `json:"type" validate:"required,oneof=cash bank digital"`
	Description    string `json:"description" validate:"max=500"`
	InitialBalance string `json:"initial_balance" validate:"omitempty,numeric"`
}

// UpdateChannelRequest edits metadata only. Balance is not accepted here.
type UpdateChannelRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Type        *string `json:"type" validate:"omitempty,oneof=cash bank digital"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// =============================================================================
// BALANCE OPERATIONS
// =============================================================================

// AmountRequest is the body of credits and debits.
type AmountRequest struct {
	Amount        string `json:"amount" validate:"required,numeric"`
	ReferenceType string `json:"reference_type" validate:"required,oneof=sale adjustment"`
	ReferenceID   string `json:"reference_id" validate:"max=100"`
	Description   string `json:"description" validate:"max=500"`
}

type SalePaymentRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
	SaleID string `json:"sale_id" validate:"required,max=100"`
}

type AdjustmentRequest struct {
	NewBalance string `json:"new_balance" validate:"required,numeric"`
	Reason     string `json:"reason" validate:"required,max=500"`
}

// ReceiptDTO is returned by every balance-changing endpoint.
type ReceiptDTO struct {
	Channel  ChannelDTO `json:"channel"`
	Entry    *EntryDTO  `json:"entry,omitempty"`
	Replayed bool       `json:"replayed,omitempty"`
}

// =============================================================================
// ENTRIES
// =============================================================================

// EntryDTO represents one ledger entry.
type EntryDTO struct {
	ID              string    `json:"id"`
	ChannelID       string    `json:"channel_id"`
	Sequence        int64     `json:"sequence"`
	Type            string    `json:"type"`
	Amount          string    `json:"amount"`
	PreviousBalance string    `json:"previous_balance"`
	NewBalance      string    `json:"new_balance"`
	Description     string    `json:"description,omitempty"`
	ReferenceType   string    `json:"reference_type"`
	ReferenceID     string    `json:"reference_id,omitempty"`
	CreatedBy       string    `json:"created_by,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// =============================================================================
// RECONCILIATION
// =============================================================================

type ReconcileDTO struct {
	ChannelID     string          `json:"channel_id"`
	CachedBalance string          `json:"cached_balance"`
	LedgerBalance string          `json:"ledger_balance"`
	Entries       int             `json:"entries"`
	Repaired      bool            `json:"repaired"`
	ChainBreaks   []ChainBreakDTO `json:"chain_breaks"`
}

type ChainBreakDTO struct {
	EntryID  string `json:"entry_id"`
	Sequence int64  `json:"sequence"`
	Expected string `json:"expected"`
	Found    string `json:"found"`
	Reason   string `json:"reason"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toChannelDTO(ch ledger.Channel) ChannelDTO {
	return ChannelDTO{
		ID:          string(ch.ID),
		Name:        ch.Name,
		Type:        string(ch.Type),
		Description: ch.Description,
		Balance:     ch.Balance.String(),
		IsActive:    ch.IsActive,
		Version:     ch.Version,
		CreatedAt:   ch.CreatedAt,
		UpdatedAt:   ch.UpdatedAt,
	}
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:              string(e.ID),
		ChannelID:       string(e.ChannelID),
		Sequence:        e.Sequence,
		Type:            string(e.Type),
		Amount:          e.Amount.String(),
		PreviousBalance: e.PreviousBalance.String(),
		NewBalance:      e.NewBalance.String(),
		Description:     e.Description,
		ReferenceType:   string(e.ReferenceType),
		ReferenceID:     e.ReferenceID,
		CreatedBy:       e.CreatedBy,
		CreatedAt:       e.CreatedAt,
	}
}

func toEntryDTOs(entries []ledger.Entry) []EntryDTO {
	out := make([]EntryDTO, len(entries))
	for i, e := range entries {
		out[i] = toEntryDTO(e)
	}
	return out
}

func toReceiptDTO(r ledger.Receipt) ReceiptDTO {
	dto := ReceiptDTO{Channel: toChannelDTO(r.Channel), Replayed: r.Replayed}
	if r.Entry != nil {
		e := toEntryDTO(*r.Entry)
		dto.Entry = &e
	}
	return dto
}

func toReconcileDTO(r ledger.ReconcileReport) ReconcileDTO {
	breaks := make([]ChainBreakDTO, len(r.ChainBreaks))
	for i, b := range r.ChainBreaks {
		breaks[i] = ChainBreakDTO{
			EntryID:  string(b.EntryID),
			Sequence: b.Sequence,
			Expected: b.Expected.String(),
			Found:    b.Found.String(),
			Reason:   b.Reason,
		}
	}
	return ReconcileDTO{
		ChannelID:     string(r.ChannelID),
		CachedBalance: r.CachedBalance.String(),
		LedgerBalance: r.LedgerBalance.String(),
		Entries:       r.Entries,
		Repaired:      r.Repaired,
		ChainBreaks:   breaks,
	}
}

/*
handlers.go - HTTP API handlers for the channel ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the ledger and reports packages.

ENDPOINTS:
  Channels:
    POST   /api/channels                      Create channel (optional initial balance)
    GET    /api/channels                      List channels (?include_inactive=1)
    GET    /api/channels/{id}                 Get channel
    PATCH  /api/channels/{id}                 Edit name, type, description
    POST   /api/channels/{id}/deactivate      Soft delete (balance must be zero)

  Balance operations:
    POST   /api/channels/{id}/credits         Credit
    POST   /api/channels/{id}/debits          Debit
    POST   /api/channels/{id}/sale-payments   Idempotent sale payment (201 new, 200 replayed)
    POST   /api/channels/{id}/adjustments     Set balance to an absolute value

  Log and maintenance:
    GET    /api/channels/{id}/entries         Entries (?from&to RFC3339)
    GET    /api/channels/{id}/balance         Balance replayed from the log (?at RFC3339)
    POST   /api/channels/{id}/reconcile       Rebuild cached balance from the log
    POST   /api/reconcile                     Reconcile every channel of the owner

  Reports:
    GET    /api/reports/channel-totals        Totals per channel (?start&end&tz&reference_type)
    GET    /api/reports/top-channel           Channel with the largest total

OWNERSHIP:
  Every request carries an auth.Actor (middleware.go). Channels of another
  owner are reported as not found.

ERROR HANDLING:
  Errors are rendered by writeError (errors.go) from ledger.KindOf:
  - 400: validation
  - 404: not found
  - 409: conflict
  - 422: insufficient balance
  - 503: retry budget exhausted, write outcome unknown
  - 500: internal

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/channel-ledger/auth"
	"github.com/warp/channel-ledger/ledger"
	"github.com/warp/channel-ledger/logger"
	"github.com/warp/channel-ledger/reports"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter clears all stored data. Implemented by both stores.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *ledger.Engine
	Channels *ledger.ChannelService
	Reports  reports.Reporter
	Store    Resetter
	Logger   *logger.Logger

	// AllowScenarios enables POST /api/scenarios/load, which wipes the store.
	AllowScenarios bool

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler. store may be nil when scenarios are disabled.
func NewHandler(engine *ledger.Engine, reporter reports.Reporter, store Resetter, logg *logger.Logger) *Handler {
	if logg == nil {
		logg = logger.Nop()
	}
	return &Handler{
		Engine:   engine,
		Channels: ledger.NewChannelService(engine),
		Reports:  reporter,
		Store:    store,
		Logger:   logg,
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(r.Context(), h.Logger, w, err)
}

func ownerOf(r *http.Request) ledger.OwnerID {
	return ledger.OwnerID(auth.ActorFrom(r.Context()).OwnerID)
}

func channelIDParam(r *http.Request) ledger.ChannelID {
	return ledger.ChannelID(chi.URLParam(r, "id"))
}

// ownedChannel returns the channel if it belongs to the caller, active or not.
func (h *Handler) ownedChannel(r *http.Request) (ledger.Channel, error) {
	id := channelIDParam(r)
	ch, err := h.Channels.Lookup(r.Context(), id)
	if err != nil {
		return ledger.Channel{}, err
	}
	if ch.OwnerID != ownerOf(r) {
		return ledger.Channel{}, &ledger.NotFoundError{Resource: "channel", ID: string(id)}
	}
	return ch, nil
}

// =============================================================================
// CHANNEL HANDLERS
// =============================================================================

// CreateChannel creates a channel owned by the caller.
func (h *Handler) CreateChannel(w http.ResponseWriter, r *http.Request) {
	var req CreateChannelRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	initial := ledger.MustParseMoney("0")
	if req.InitialBalance != "" {
		v, err := ledger.ParseMoney(req.InitialBalance)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		initial = v
	}

	receipt, err := h.Channels.CreateChannel(r.Context(), ledger.CreateChannelInput{
		OwnerID:        ownerOf(r),
		Name:           req.Name,
		Type:           ledger.ChannelType(req.Type),
		Description:    req.Description,
		InitialBalance: initial,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptDTO(receipt))
}

// ListChannels returns the caller's channels ordered by name.
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))
	channels, err := h.Channels.ListChannels(r.Context(), ownerOf(r), ledger.ListOptions{IncludeInactive: includeInactive})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dtos := make([]ChannelDTO, len(channels))
	for i, ch := range channels {
		dtos[i] = toChannelDTO(ch)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetChannel returns an active channel with a verified balance.
func (h *Handler) GetChannel(w http.ResponseWriter, r *http.Request) {
	if _, err := h.ownedChannel(r); err != nil {
		h.fail(w, r, err)
		return
	}
	ch, err := h.Channels.GetChannel(r.Context(), channelIDParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChannelDTO(ch))
}

// UpdateChannel edits channel metadata.
func (h *Handler) UpdateChannel(w http.ResponseWriter, r *http.Request) {
	var req UpdateChannelRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.ownedChannel(r); err != nil {
		h.fail(w, r, err)
		return
	}

	patch := ledger.ChannelPatch{Name: req.Name, Description: req.Description}
	if req.Type != nil {
		t := ledger.ChannelType(*req.Type)
		patch.Type = &t
	}
	ch, err := h.Channels.UpdateChannel(r.Context(), channelIDParam(r), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChannelDTO(ch))
}

// DeactivateChannel soft-deletes a channel with zero balance.
func (h *Handler) DeactivateChannel(w http.ResponseWriter, r *http.Request) {
	if _, err := h.ownedChannel(r); err != nil {
		h.fail(w, r, err)
		return
	}
	ch, err := h.Channels.Deactivate(r.Context(), channelIDParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toChannelDTO(ch))
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// Credit adds to a channel balance.
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, h.Engine.Credit)
}

// Debit subtracts from a channel balance.
func (h *Handler) Debit(w http.ResponseWriter, r *http.Request) {
	h.applyAmount(w, r, h.Engine.Debit)
}

func (h *Handler) applyAmount(w http.ResponseWriter, r *http.Request, apply func(context.Context, ledger.CreditInput) (ledger.Receipt, error)) {
	var req AmountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := ledger.ParseMoney(req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.ownedChannel(r); err != nil {
		h.fail(w, r, err)
		return
	}

	receipt, err := apply(r.Context(), ledger.CreditInput{
		ChannelID:     channelIDParam(r),
		Amount:        amount,
		ReferenceType: ledger.ReferenceType(req.ReferenceType),
		ReferenceID:   req.ReferenceID,
		Description:   req.Description,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptDTO(receipt))
}

// ApplySalePayment records a sale once. A replay returns the original
// entry with 200 instead of 201.
func (h *Handler) ApplySalePayment(w http.ResponseWriter, r *http.Request) {
	var req SalePaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	amount, err := ledger.ParseMoney(req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.ownedChannel(r); err != nil {
		h.fail(w, r, err)
		return
	}

	receipt, err := h.Engine.ApplySalePayment(r.Context(), channelIDParam(r), amount, req.SaleID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, toReceiptDTO(receipt))
}

// AdjustBalance sets a channel balance to an absolute value.
func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	target, err := ledger.ParseMoney(req.NewBalance)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.ownedChannel(r); err != nil {
		h.fail(w, r, err)
		return
	}

	receipt, err := h.Engine.AdjustBalance(r.Context(), channelIDParam(r), target, req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReceiptDTO(receipt))
}

// =============================================================================
// LOG HANDLERS
// =============================================================================

var (
	openStart = time.Unix(0, 0).UTC()
	openEnd   = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
)

// ListEntries returns a channel's entries, optionally within [from, to).
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	from, err := parseInstant(r, "from", openStart)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	to, err := parseInstant(r, "to", openEnd)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ch, err := h.ownedChannel(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	entries, err := h.Engine.Log().EntriesInRange(r.Context(), ch.ID, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// GetBalanceAt replays the log up to ?at (default now).
func (h *Handler) GetBalanceAt(w http.ResponseWriter, r *http.Request) {
	at, err := parseInstant(r, "at", time.Now().UTC())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ch, err := h.ownedChannel(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	balance, err := h.Engine.Log().BalanceAt(r.Context(), ch.ID, at)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"channel_id": string(ch.ID),
		"at":         at.Format(time.RFC3339Nano),
		"balance":    balance.String(),
	})
}

func parseInstant(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, &ledger.ValidationError{Field: name, Message: "must be an RFC3339 timestamp"}
	}
	return t, nil
}

// =============================================================================
// RECONCILIATION HANDLERS
// =============================================================================

// ReconcileChannel rebuilds one channel's cached balance from its entries.
func (h *Handler) ReconcileChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := h.ownedChannel(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	report, err := h.Engine.Reconcile(r.Context(), ch.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReconcileDTO(report))
}

// ReconcileOwner reconciles all of the caller's channels.
func (h *Handler) ReconcileOwner(w http.ResponseWriter, r *http.Request) {
	results, err := h.Engine.ReconcileOwner(r.Context(), ownerOf(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]ReconcileDTO, len(results))
	for i, rep := range results {
		dtos[i] = toReconcileDTO(rep)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

func reportQuery(r *http.Request) (reports.Query, error) {
	q := r.URL.Query()
	dr, err := reports.ParseDateRange(q.Get("start"), q.Get("end"), q.Get("tz"))
	if err != nil {
		return reports.Query{}, err
	}
	query := reports.Query{Range: dr}
	if ref := q.Get("reference_type"); ref != "" {
		rt := ledger.ReferenceType(ref)
		if !rt.IsValid() {
			return reports.Query{}, &ledger.ValidationError{Field: "reference_type", Message: "must be one of sale, adjustment, initial"}
		}
		query.ReferenceType = rt
	}
	return query, nil
}

// ChannelTotals sums entry amounts per channel over a date range.
func (h *Handler) ChannelTotals(w http.ResponseWriter, r *http.Request) {
	q, err := reportQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	totals, err := h.Reports.ChannelTotals(r.Context(), ownerOf(r), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

// TopChannel returns the channel with the largest total over a date range.
func (h *Handler) TopChannel(w http.ResponseWriter, r *http.Request) {
	q, err := reportQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	top, err := h.Reports.TopChannel(r.Context(), ownerOf(r), q)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, top)
}

/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Provides pre-built storefronts that populate the store with realistic
	channels and entries. Each scenario is loaded for the calling owner.

AVAILABLE SCENARIOS:

	storefront:  cash drawer, bank account, e-wallet with opening balances
	busy-day:    storefront plus a day of sales, a refund and a stock take

HOW SCENARIOS WORK:
 1. Reset store (clear all data)
 2. Create channels through ChannelService
 3. Apply operations through Engine, like any client would

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "busy-day"}

NOTE:

	Scenarios reset the store. The route only exists when AllowScenarios is set.

SEE ALSO:
  - handlers.go: Handler
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/channel-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "storefront",
		Name:        "Storefront",
		Description: "Cash drawer, bank account and e-wallet with opening balances",
	},
	{
		ID:          "busy-day",
		Name:        "Busy Day",
		Description: "Storefront plus sales on every channel, a refund and a stock take",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	var load func(context.Context, ledger.OwnerID) error
	switch req.ScenarioID {
	case "storefront":
		load = func(ctx context.Context, owner ledger.OwnerID) error {
			_, err := h.loadStorefront(ctx, owner)
			return err
		}
	case "busy-day":
		load = h.loadBusyDay
	default:
		h.fail(w, r, badRequest("unknown scenario", map[string]string{"scenario_id": req.ScenarioID}))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		h.fail(w, r, fmt.Errorf("reset store: %w", err))
		return
	}
	h.currentScenario = ""

	if err := load(ctx, ownerOf(r)); err != nil {
		h.fail(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}
	h.currentScenario = req.ScenarioID

	h.Logger.Info(h.Logger.WithField(ctx, "scenario", req.ScenarioID), "scenario.loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type storefront struct {
	Cash   ledger.Channel
	Bank   ledger.Channel
	Wallet ledger.Channel
}

func (h *Handler) loadStorefront(ctx context.Context, owner ledger.OwnerID) (storefront, error) {
	specs := []ledger.CreateChannelInput{
		{OwnerID: owner, Name: "Cash Drawer", Type: ledger.ChannelCash, Description: "Front counter", InitialBalance: ledger.MustParseMoney("100000")},
		{OwnerID: owner, Name: "BCA Account", Type: ledger.ChannelBank, InitialBalance: ledger.MustParseMoney("200000")},
		{OwnerID: owner, Name: "E-Wallet", Type: ledger.ChannelDigital, Description: "QR payments", InitialBalance: ledger.MustParseMoney("60000")},
	}

	var created []ledger.Channel
	for _, in := range specs {
		receipt, err := h.Channels.CreateChannel(ctx, in)
		if err != nil {
			return storefront{}, fmt.Errorf("create %s: %w", in.Name, err)
		}
		created = append(created, receipt.Channel)
	}
	return storefront{Cash: created[0], Bank: created[1], Wallet: created[2]}, nil
}

func (h *Handler) loadBusyDay(ctx context.Context, owner ledger.OwnerID) error {
	sf, err := h.loadStorefront(ctx, owner)
	if err != nil {
		return err
	}

	sales := []struct {
		channel ledger.ChannelID
		amount  string
		saleID  string
	}{
		{sf.Cash.ID, "25000", "sale-1001"},
		{sf.Cash.ID, "12500", "sale-1002"},
		{sf.Wallet.ID, "48000", "sale-1003"},
		{sf.Bank.ID, "150000", "sale-1004"},
		{sf.Wallet.ID, "9000", "sale-1005"},
	}
	for _, s := range sales {
		if _, err := h.Engine.ApplySalePayment(ctx, s.channel, ledger.MustParseMoney(s.amount), s.saleID); err != nil {
			return fmt.Errorf("sale %s: %w", s.saleID, err)
		}
	}

	if _, err := h.Engine.Debit(ctx, ledger.DebitInput{
		ChannelID:     sf.Cash.ID,
		Amount:        ledger.MustParseMoney("12500"),
		ReferenceType: ledger.RefAdjustment,
		ReferenceID:   "refund-1002",
		Description:   "Refund for sale-1002",
	}); err != nil {
		return fmt.Errorf("refund: %w", err)
	}

	if _, err := h.Engine.AdjustBalance(ctx, sf.Cash.ID, ledger.MustParseMoney("120000"), "End of day count"); err != nil {
		return fmt.Errorf("stock take: %w", err)
	}
	return nil
}

/*
reconcile.go - Rebuild cached balances from the entry log

PURPOSE:
  Channel.Balance is a cache. The entry log is the source of truth: the
  authoritative balance is the NewBalance of the channel's most recent entry
  (zero when there are none). Reconcile replays the log, reports chain
  breaks, and rewrites the cache by compare-and-set when it drifted.

WHEN IT RUNS:
  - ChannelService.GetChannel verifies every read against the latest entry
    and repairs on mismatch instead of trusting a stale cache
  - POST /api/channels/{id}/reconcile
  - api.ReconciliationScheduler sweeps all channels on an interval

CHAIN BREAKS:
  entry[i].PreviousBalance must equal entry[i-1].NewBalance and every entry
  must satisfy its type's formula. Breaks are reported, never rewritten:
  entries are immutable.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type ReconcileReport struct {
	ChannelID     ChannelID
	CachedBalance decimal.Decimal
	LedgerBalance decimal.Decimal
	Entries       int
	Repaired      bool
	ChainBreaks   []ChainBreak
}

// ChainBreak points at an entry that does not follow from its predecessor.
type ChainBreak struct {
	EntryID  EntryID
	Sequence int64
	Expected decimal.Decimal // running balance before this entry
	Found    decimal.Decimal // entry.PreviousBalance
	Reason   string
}

// Replay walks entries in order and returns the authoritative balance and any breaks.
func Replay(entries []Entry) (decimal.Decimal, []ChainBreak) {
	running := decimal.Zero
	var breaks []ChainBreak
	for _, e := range entries {
		if !e.PreviousBalance.Equal(running) {
			breaks = append(breaks, ChainBreak{
				EntryID: e.ID, Sequence: e.Sequence, Expected: running, Found: e.PreviousBalance,
				Reason: "previous balance does not match preceding entry",
			})
		}
		if !e.consistent() {
			breaks = append(breaks, ChainBreak{
				EntryID: e.ID, Sequence: e.Sequence, Expected: running, Found: e.PreviousBalance,
				Reason: fmt.Sprintf("%s entry amounts are inconsistent", e.Type),
			})
		}
		running = e.NewBalance
	}
	return running, breaks
}

// Reconcile replays a channel's entries and repairs its cached balance.
func (e *Engine) Reconcile(ctx context.Context, channelID ChannelID) (ReconcileReport, error) {
	var report ReconcileReport
	_, err := e.runWithRetry(ctx, "reconcile", channelID, func(ctx context.Context, _ int) (Receipt, error) {
		ch, err := e.store.GetChannel(ctx, channelID)
		if err != nil {
			return Receipt{}, err
		}
		entries, err := e.store.LoadEntries(ctx, channelID)
		if err != nil {
			return Receipt{}, err
		}

		balance, breaks := Replay(entries)
		report = ReconcileReport{
			ChannelID:     channelID,
			CachedBalance: ch.Balance,
			LedgerBalance: balance,
			Entries:       len(entries),
			ChainBreaks:   breaks,
		}
		if ch.Balance.Equal(balance) {
			return Receipt{Channel: ch}, nil
		}

		next := ch
		next.Balance = balance
		next.Version = ch.Version + 1
		err = e.write(ctx, ch.ID, func(ctx context.Context, st Store) error {
			return st.UpdateChannel(ctx, next, ch.Version)
		})
		if err != nil {
			return Receipt{}, err
		}
		report.Repaired = true
		e.observer.ObserveRepair()
		e.logger.Warn(e.logger.WithFields(ctx, map[string]any{
			"cached_balance": ch.Balance.String(),
			"ledger_balance": balance.String(),
		}), "ledger.balance_repaired")
		return Receipt{Channel: next}, nil
	})
	return report, err
}

// ReconcileOwner reconciles every channel of an owner.
func (e *Engine) ReconcileOwner(ctx context.Context, ownerID OwnerID) ([]ReconcileReport, error) {
	channels, err := e.store.ListChannels(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return e.reconcileChannels(ctx, channels)
}

// ReconcileAll reconciles every channel in the store. A failing channel does
// not stop the sweep; failures are joined into the returned error.
func (e *Engine) ReconcileAll(ctx context.Context) ([]ReconcileReport, error) {
	channels, err := e.store.AllChannels(ctx)
	if err != nil {
		return nil, err
	}
	return e.reconcileChannels(ctx, channels)
}

func (e *Engine) reconcileChannels(ctx context.Context, channels []Channel) ([]ReconcileReport, error) {
	reports := make([]ReconcileReport, 0, len(channels))
	var errs []error
	for _, ch := range channels {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		r, err := e.Reconcile(ctx, ch.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("reconcile %s: %w", ch.ID, err))
			continue
		}
		reports = append(reports, r)
	}
	return reports, errors.Join(errs...)
}

// verifiedChannel returns ch if its balance matches the latest entry,
// otherwise reconciles and returns the repaired row.
func (e *Engine) verifiedChannel(ctx context.Context, ch Channel) (Channel, error) {
	latest, err := e.store.LatestEntry(ctx, ch.ID)
	if err != nil {
		return Channel{}, err
	}
	expected := decimal.Zero
	if latest != nil {
		expected = latest.NewBalance
	}
	if ch.Balance.Equal(expected) {
		return ch, nil
	}
	if _, err := e.Reconcile(ctx, ch.ID); err != nil {
		return Channel{}, err
	}
	return e.store.GetChannel(ctx, ch.ID)
}

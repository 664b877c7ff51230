/*
aggregator.go - Read-only views over the entry log

PURPOSE:
  Per-channel totals and the busiest channel for an owner over a range of
  calendar days. Nothing here writes; it runs safely against a replica that
  lags the primary.

CONSISTENCY:
  Totals are computed from entries only, never from Channel.Balance, so a
  report can never disagree with the log it summarizes.

SEE ALSO:
  - cache.go: Redis read-through wrapper
  - daterange.go: calendar-day windows
*/
package reports

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/channel-ledger/ledger"
)

type ChannelTotal struct {
	ChannelID   ledger.ChannelID `json:"channel_id"`
	ChannelName string           `json:"channel_name"`
	Count       int              `json:"count"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
}

// Query selects entries by day range and, optionally, by reference type
// (e.g. only sale entries).
type Query struct {
	Range         DateRange
	ReferenceType ledger.ReferenceType
}

// Reporter is implemented by Aggregator and Cache.
type Reporter interface {
	ChannelTotals(ctx context.Context, ownerID ledger.OwnerID, q Query) ([]ChannelTotal, error)
	TopChannel(ctx context.Context, ownerID ledger.OwnerID, q Query) (ChannelTotal, error)
}

type Aggregator struct {
	store ledger.Store
	log   *ledger.TransactionLog
}

func NewAggregator(store ledger.Store) *Aggregator {
	return &Aggregator{store: store, log: ledger.NewTransactionLog(store)}
}

// ChannelTotals sums entry amounts per channel, ordered by channel id.
// Channels with no matching entries are omitted.
func (a *Aggregator) ChannelTotals(ctx context.Context, ownerID ledger.OwnerID, q Query) ([]ChannelTotal, error) {
	from, to := q.Range.Window()
	entries, err := a.log.OwnerEntries(ctx, ownerID, from, to)
	if err != nil {
		return nil, err
	}

	totals := make(map[ledger.ChannelID]*ChannelTotal)
	for _, e := range entries {
		if q.ReferenceType != "" && e.ReferenceType != q.ReferenceType {
			continue
		}
		t, ok := totals[e.ChannelID]
		if !ok {
			t = &ChannelTotal{ChannelID: e.ChannelID, TotalAmount: decimal.Zero}
			totals[e.ChannelID] = t
		}
		t.Count++
		t.TotalAmount = t.TotalAmount.Add(e.Amount)
	}
	if len(totals) == 0 {
		return []ChannelTotal{}, nil
	}

	channels, err := a.store.ListChannels(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, ch := range channels {
		if t, ok := totals[ch.ID]; ok {
			t.ChannelName = ch.Name
		}
	}

	result := make([]ChannelTotal, 0, len(totals))
	for _, t := range totals {
		result = append(result, *t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ChannelID < result[j].ChannelID })
	return result, nil
}

// TopChannel returns the channel with the greatest total; ties go to the
// lowest channel id. NotFoundError when nothing falls in range.
func (a *Aggregator) TopChannel(ctx context.Context, ownerID ledger.OwnerID, q Query) (ChannelTotal, error) {
	totals, err := a.ChannelTotals(ctx, ownerID, q)
	if err != nil {
		return ChannelTotal{}, err
	}
	if len(totals) == 0 {
		return ChannelTotal{}, &ledger.NotFoundError{Resource: "channel activity", ID: q.Range.String()}
	}

	// totals is sorted by id, so a strict comparison keeps the lowest id on ties.
	top := totals[0]
	for _, t := range totals[1:] {
		if t.TotalAmount.GreaterThan(top.TotalAmount) {
			top = t
		}
	}
	return top, nil
}

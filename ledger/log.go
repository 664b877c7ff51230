/*
log.go - Read side of the append-only entry log

PURPOSE:
  TransactionLog is the durable, ordered, immutable record of every balance
  change. It is the source of truth; Channel.Balance is a cache of it.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. CHAINED: entry[i].PreviousBalance == entry[i-1].NewBalance per channel

  Appends are not exposed here. They happen only inside the engine's atomic
  unit together with the channel compare-and-set (engine.go).

SEE ALSO:
  - store.go: Low-level persistence interface
  - reconcile.go: replays this log to rebuild balances
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionLog struct {
	Store Store
}

func NewTransactionLog(store Store) *TransactionLog {
	return &TransactionLog{Store: store}
}

// Entries returns all entries for a channel, chronologically.
func (l *TransactionLog) Entries(ctx context.Context, channelID ChannelID) ([]Entry, error) {
	return l.Store.LoadEntries(ctx, channelID)
}

// EntriesInRange returns entries with from <= CreatedAt < to.
func (l *TransactionLog) EntriesInRange(ctx context.Context, channelID ChannelID, from, to time.Time) ([]Entry, error) {
	return l.Store.LoadEntriesRange(ctx, channelID, from, to)
}

// OwnerEntries returns entries across all of an owner's channels with from <= CreatedAt < to.
func (l *TransactionLog) OwnerEntries(ctx context.Context, ownerID OwnerID, from, to time.Time) ([]Entry, error) {
	return l.Store.LoadOwnerEntries(ctx, ownerID, from, to)
}

// Latest returns the most recent entry for a channel, or nil.
func (l *TransactionLog) Latest(ctx context.Context, channelID ChannelID) (*Entry, error) {
	return l.Store.LatestEntry(ctx, channelID)
}

// ByReference looks up an owner's entry by its originating reference.
func (l *TransactionLog) ByReference(ctx context.Context, ownerID OwnerID, refType ReferenceType, refID string) (*Entry, error) {
	e, err := l.Store.FindByReference(ctx, ownerID, refType, refID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, &NotFoundError{Resource: "entry", ID: string(refType) + ":" + refID}
	}
	return e, nil
}

// BalanceAt computes the channel balance as of at by replaying entries.
// This is a derived value; a channel with no entries before at has balance zero.
func (l *TransactionLog) BalanceAt(ctx context.Context, channelID ChannelID, at time.Time) (decimal.Decimal, error) {
	entries, err := l.Store.LoadEntries(ctx, channelID)
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	for _, e := range entries {
		if e.CreatedAt.After(at) {
			break
		}
		balance = e.NewBalance
	}
	return balance, nil
}

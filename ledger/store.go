/*
store.go - Persistence contract for channels and entries

PURPOSE:
  Defines the interface between the ledger logic and the database.
  Implementations: ledger/store (memory) and store/sqlstore (SQLite, PostgreSQL).

KEY INTERFACES:
  Store:   channel rows (insert, compare-and-set update, read) and
           entry rows (append, read). No entry update or delete exists.
  TxStore: Store plus WithTx for atomic multi-row writes.

COMPARE-AND-SET:
  UpdateChannel(ctx, ch, expectedVersion) writes ch only if the stored row
  still has expectedVersion, and stores ch.Version (expectedVersion+1).
  A mismatch returns ErrVersionConflict; the engine retries from a fresh read.

SALE IDEMPOTENCY:
  AppendEntry rejects a second sale entry with the same OwnerID and
  ReferenceID with ErrDuplicateReference. Sale ids are scoped to the owner. The engine checks first; the store constraint is
  the backstop for concurrent callers.

ORDERING:
  Entry reads return rows ordered by CreatedAt, then Sequence.

SEE ALSO:
  - engine.go: the only writer
  - log.go: read-side wrapper
*/
package ledger

import (
	"context"
	"time"
)

// Store handles persistence of channels and their entries.
// IMPORTANT: entries are APPEND-ONLY. No Update, No Delete. Ever.
type Store interface {
	// InsertChannel persists a new channel row.
	InsertChannel(ctx context.Context, ch Channel) error

	// UpdateChannel is a compare-and-set on Version.
	UpdateChannel(ctx context.Context, ch Channel, expectedVersion int64) error

	// GetChannel returns the channel regardless of IsActive.
	// Returns a NotFoundError if it does not exist.
	GetChannel(ctx context.Context, id ChannelID) (Channel, error)

	// ListChannels returns all channels for an owner, active or not.
	ListChannels(ctx context.Context, ownerID OwnerID) ([]Channel, error)

	// AllChannels returns every channel (maintenance sweeps).
	AllChannels(ctx context.Context) ([]Channel, error)

	// AppendEntry persists an entry. This is the ONLY entry write.
	AppendEntry(ctx context.Context, e Entry) error

	// LoadEntries returns all entries for a channel.
	LoadEntries(ctx context.Context, channelID ChannelID) ([]Entry, error)

	// LoadEntriesRange returns channel entries with from <= CreatedAt < to.
	LoadEntriesRange(ctx context.Context, channelID ChannelID, from, to time.Time) ([]Entry, error)

	// LoadOwnerEntries returns entries across an owner's channels with from <= CreatedAt < to.
	LoadOwnerEntries(ctx context.Context, ownerID OwnerID, from, to time.Time) ([]Entry, error)

	// LatestEntry returns the most recent entry, or nil if the channel has none.
	LatestEntry(ctx context.Context, channelID ChannelID) (*Entry, error)

	// FindByReference returns the owner's entry with the given reference, or nil.
	FindByReference(ctx context.Context, ownerID OwnerID, refType ReferenceType, refID string) (*Entry, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the passed Store is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// EntryBefore is the canonical entry order: CreatedAt, then Sequence, then
// ChannelID for entries from different channels.
func EntryBefore(a, b Entry) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Sequence != b.Sequence {
		return a.Sequence < b.Sequence
	}
	return a.ChannelID < b.ChannelID
}

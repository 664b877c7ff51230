package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/channel-ledger/ledger"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements ledger.Store against either the pool or a transaction.
type queries struct {
	q        querier
	postgres bool
}

const channelColumns = `id, owner_id, name, type, description, balance, is_active, version, created_at, updated_at`

const entryColumns = `id, channel_id, owner_id, sequence, entry_type, amount, previous_balance, new_balance,
	description, reference_type, reference_id, created_by, created_at`

// =============================================================================
// CHANNELS
// =============================================================================

func (q queries) InsertChannel(ctx context.Context, ch ledger.Channel) error {
	_, err := q.exec(ctx, `
		INSERT INTO channels (`+channelColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(ch.ID), string(ch.OwnerID), ch.Name, string(ch.Type), ch.Description, ch.Balance.String(),
		ch.IsActive, ch.Version, formatTime(ch.CreatedAt), formatTime(ch.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &ledger.ConflictError{ChannelID: ch.ID, Reason: "channel already exists"}
		}
		return fmt.Errorf("failed to insert channel: %w", err)
	}
	return nil
}

// UpdateChannel is the compare-and-set: the row is written only if its
// version is still expectedVersion.
func (q queries) UpdateChannel(ctx context.Context, ch ledger.Channel, expectedVersion int64) error {
	res, err := q.exec(ctx, `
		UPDATE channels
		SET name = ?, type = ?, description = ?, balance = ?, is_active = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?`,
		ch.Name, string(ch.Type), ch.Description, ch.Balance.String(), ch.IsActive, ch.Version, formatTime(ch.UpdatedAt),
		string(ch.ID), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update channel: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := q.GetChannel(ctx, ch.ID); err != nil {
		return err
	}
	return ledger.ErrVersionConflict
}

func (q queries) GetChannel(ctx context.Context, id ledger.ChannelID) (ledger.Channel, error) {
	row := q.queryRow(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ?`, string(id))
	ch, err := scanChannel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Channel{}, &ledger.NotFoundError{Resource: "channel", ID: string(id)}
	}
	return ch, err
}

func (q queries) ListChannels(ctx context.Context, ownerID ledger.OwnerID) ([]ledger.Channel, error) {
	return q.queryChannels(ctx, `SELECT `+channelColumns+` FROM channels WHERE owner_id = ? ORDER BY id`, string(ownerID))
}

func (q queries) AllChannels(ctx context.Context) ([]ledger.Channel, error) {
	return q.queryChannels(ctx, `SELECT `+channelColumns+` FROM channels ORDER BY id`)
}

func (q queries) queryChannels(ctx context.Context, query string, args ...any) ([]ledger.Channel, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query channels: %w", err)
	}
	defer rows.Close()

	var channels []ledger.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// =============================================================================
// ENTRIES - INSERT and SELECT only
// =============================================================================

func (q queries) AppendEntry(ctx context.Context, e ledger.Entry) error {
	_, err := q.exec(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID), string(e.ChannelID), string(e.OwnerID), e.Sequence, string(e.Type),
		e.Amount.String(), e.PreviousBalance.String(), e.NewBalance.String(),
		e.Description, string(e.ReferenceType), nullString(e.ReferenceID), e.CreatedBy, formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) && isSaleReferenceViolation(err) {
			return ledger.ErrDuplicateReference
		}
		if isUniqueViolation(err) {
			return ledger.ErrVersionConflict
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

func (q queries) LoadEntries(ctx context.Context, channelID ledger.ChannelID) ([]ledger.Entry, error) {
	return q.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE channel_id = ?
		ORDER BY created_at ASC, sequence ASC`, string(channelID))
}

func (q queries) LoadEntriesRange(ctx context.Context, channelID ledger.ChannelID, from, to time.Time) ([]ledger.Entry, error) {
	return q.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE channel_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, sequence ASC`, string(channelID), formatTime(from), formatTime(to))
}

func (q queries) LoadOwnerEntries(ctx context.Context, ownerID ledger.OwnerID, from, to time.Time) ([]ledger.Entry, error) {
	return q.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE owner_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, sequence ASC, channel_id ASC`, string(ownerID), formatTime(from), formatTime(to))
}

func (q queries) LatestEntry(ctx context.Context, channelID ledger.ChannelID) (*ledger.Entry, error) {
	entries, err := q.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE channel_id = ?
		ORDER BY created_at DESC, sequence DESC
		LIMIT 1`, string(channelID))
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func (q queries) FindByReference(ctx context.Context, ownerID ledger.OwnerID, refType ledger.ReferenceType, refID string) (*ledger.Entry, error) {
	entries, err := q.queryEntries(ctx, `
		SELECT `+entryColumns+` FROM ledger_entries
		WHERE owner_id = ? AND reference_type = ? AND reference_id = ?
		ORDER BY created_at ASC, sequence ASC
		LIMIT 1`, string(ownerID), string(refType), refID)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func (q queries) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.Entry, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanChannel(row scanner) (ledger.Channel, error) {
	var (
		ch                   ledger.Channel
		balance              string
		createdAt, updatedAt string
	)
	err := row.Scan(&ch.ID, &ch.OwnerID, &ch.Name, &ch.Type, &ch.Description, &balance,
		&ch.IsActive, &ch.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ch, err
	}
	if err != nil {
		return ch, fmt.Errorf("failed to scan channel: %w", err)
	}
	if ch.Balance, err = decimal.NewFromString(balance); err != nil {
		return ch, fmt.Errorf("channel %s: bad balance %q: %w", ch.ID, balance, err)
	}
	if ch.CreatedAt, err = parseTime(createdAt); err != nil {
		return ch, err
	}
	if ch.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return ch, err
	}
	return ch, nil
}

func scanEntry(row scanner) (ledger.Entry, error) {
	var (
		e                             ledger.Entry
		amount, previous, next, stamp string
		referenceID                   sql.NullString
	)
	err := row.Scan(&e.ID, &e.ChannelID, &e.OwnerID, &e.Sequence, &e.Type,
		&amount, &previous, &next, &e.Description, &e.ReferenceType, &referenceID, &e.CreatedBy, &stamp)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{{&e.Amount, amount}, {&e.PreviousBalance, previous}, {&e.NewBalance, next}} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return e, fmt.Errorf("entry %s: bad amount %q: %w", e.ID, f.src, err)
		}
	}
	e.ReferenceID = referenceID.String
	if e.CreatedAt, err = parseTime(stamp); err != nil {
		return e, err
	}
	return e, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (q queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.q.ExecContext(ctx, q.rebind(query), args...)
}

func (q queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.q.QueryContext(ctx, q.rebind(query), args...)
}

func (q queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.q.QueryRowContext(ctx, q.rebind(query), args...)
}

// rebind turns ? placeholders into $1, $2, ... for postgres.
func (q queries) rebind(query string) string {
	if !q.postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

func isSaleReferenceViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Constraint == "idx_entries_sale_reference"
	}
	return strings.Contains(err.Error(), "ledger_entries.reference_id")
}

/*
Package ledger provides the payment-channel balance engine.

PURPOSE:
  A payment channel (cash drawer, bank account, e-wallet) carries a running
  balance. Every sale, manual adjustment, or initial funding event produces
  an immutable Entry recording the balance before and after the change.
  This package owns the types, the store contract, and the only code path
  allowed to change a balance.

KEY CONCEPTS IN THIS FILE (types.go):
  - Channel: money-holding account with a cached balance and a version
  - Entry: append-only record of one balance change
  - Receipt: what every write operation returns (channel + entry)

DESIGN PRINCIPLES:
  1. Immutability: entries are never modified or deleted
  2. Precision: money is decimal.Decimal, never float64
  3. Cache discipline: Channel.Balance is derived from the entry log and
     can always be rebuilt by replaying it (see reconcile.go)
  4. Optimistic concurrency: every channel write is a compare-and-set on Version

USAGE:
  engine := ledger.NewEngine(store)
  receipt, err := engine.ApplySalePayment(ctx, channelID, ledger.MustParseMoney("25000"), "sale-1")

SEE ALSO:
  - engine.go: Credit, Debit, ApplySalePayment, AdjustBalance
  - channels.go: channel lifecycle (create, rename, deactivate)
  - log.go: TransactionLog read side
  - store.go: persistence contract
*/
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// ParseMoney parses a decimal string such as "25000" or "1250.50".
func ParseMoney(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, &ValidationError{Field: "amount", Message: fmt.Sprintf("invalid decimal %q", s)}
	}
	return d, nil
}

// MustParseMoney is ParseMoney for literals in tests and scenarios.
func MustParseMoney(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ChannelID string
type EntryID string
type OwnerID string

// =============================================================================
// CHANNEL
// =============================================================================

type ChannelType string

const (
	ChannelCash    ChannelType = "cash"
	ChannelBank    ChannelType = "bank"
	ChannelDigital ChannelType = "digital"
)

func (t ChannelType) IsValid() bool {
	switch t {
	case ChannelCash, ChannelBank, ChannelDigital:
		return true
	}
	return false
}

// Channel is a named money-holding account.
//
// Balance is a cache of the NewBalance of the channel's most recent entry.
// Version increments on every write and is the compare-and-set token.
type Channel struct {
	ID          ChannelID
	OwnerID     OwnerID
	Name        string
	Type        ChannelType
	Description string
	Balance     decimal.Decimal
	IsActive    bool
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// ENTRY - Immutable record of one balance change
// =============================================================================

type EntryType string

const (
	EntryIncome     EntryType = "income"
	EntryExpense    EntryType = "expense"
	EntryAdjustment EntryType = "adjustment"
)

type ReferenceType string

const (
	RefSale       ReferenceType = "sale"
	RefAdjustment ReferenceType = "adjustment"
	RefInitial    ReferenceType = "initial"
)

func (r ReferenceType) IsValid() bool {
	switch r {
	case RefSale, RefAdjustment, RefInitial:
		return true
	}
	return false
}

// Entry is one append-only ledger record.
//
// INVARIANTS:
//   - Amount >= 0 (magnitude only; direction comes from Type)
//   - income:     NewBalance = PreviousBalance + Amount
//   - expense:    NewBalance = PreviousBalance - Amount
//   - adjustment: Amount = |NewBalance - PreviousBalance|
//   - NewBalance >= 0
type Entry struct {
	ID              EntryID
	ChannelID       ChannelID
	OwnerID         OwnerID
	Sequence        int64 // channel Version produced by this write
	Type            EntryType
	Amount          decimal.Decimal
	PreviousBalance decimal.Decimal
	NewBalance      decimal.Decimal
	Description     string
	ReferenceType   ReferenceType
	ReferenceID     string
	CreatedBy       string
	CreatedAt       time.Time
}

// Delta returns the signed balance change this entry represents.
func (e Entry) Delta() decimal.Decimal {
	return e.NewBalance.Sub(e.PreviousBalance)
}

// consistent reports whether the entry's amounts satisfy its type's formula.
func (e Entry) consistent() bool {
	if e.Amount.IsNegative() || e.NewBalance.IsNegative() {
		return false
	}
	switch e.Type {
	case EntryIncome:
		return e.PreviousBalance.Add(e.Amount).Equal(e.NewBalance)
	case EntryExpense:
		return e.PreviousBalance.Sub(e.Amount).Equal(e.NewBalance)
	case EntryAdjustment:
		return e.Delta().Abs().Equal(e.Amount)
	}
	return false
}

// =============================================================================
// RECEIPT - Result of an applied operation
// =============================================================================

// Receipt is returned by every balance-changing operation.
// Replayed is true when an idempotent sale payment matched an existing entry
// and nothing was written.
type Receipt struct {
	Channel  Channel
	Entry    *Entry
	Replayed bool
}

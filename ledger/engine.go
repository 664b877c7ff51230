/*
engine.go - The only code path that changes a channel balance

PURPOSE:
  Engine applies credit, debit, sale-payment and adjustment operations.
  Each operation produces exactly one Entry and one channel write, committed
  together, or nothing at all.

OPERATION LIFECYCLE:
  Requested -> Validated -> Applied     (terminal success)
  Requested -> Rejected                 (terminal failure)
  No partial state is observable.

ALGORITHM (every operation):
  0. Validate input (ValidationError, nothing read or written)
  1. Read the channel: must exist (NotFoundError) and be active (ConflictError).
     A cached balance that drifted from the latest entry is repaired first.
  2. previous = channel.Balance, next = formula(previous)
  3. Reject next < 0 (InsufficientBalanceError)
  4. In one transaction: compare-and-set the channel on Version, append the entry
  5. Return the updated channel and the entry

  A version conflict at step 4 restarts from step 1, up to MaxAttempts,
  then the operation fails with ConcurrencyError.

SALE PAYMENT DIRECTION:
  ApplySalePayment credits cash channels (the drawer receives the money) and
  debits bank/digital channels (funds already held are disbursed against the
  sale). The asymmetry is easy to invert by mistake; see TestApplySalePayment_*.

CANCELLATION AND TIMEOUTS:
  - ctx canceled before step 1: returns ctx.Err(), nothing happens
  - AttemptTimeout bounds steps 1-3 of each attempt; expiry = failure, state unchanged
  - step 4 ignores caller cancellation and is bounded by WriteTimeout; expiry
    returns OutcomeUnknownError because the commit may have landed

SEE ALSO:
  - channels.go: channel lifecycle, also funneled through runWithRetry
  - reconcile.go: cache repair
  - store.go: UpdateChannel compare-and-set contract
*/
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/channel-ledger/auth"
	"github.com/warp/channel-ledger/events"
	"github.com/warp/channel-ledger/logger"
)

const (
	DefaultMaxAttempts    = 5
	DefaultAttemptTimeout = 5 * time.Second
	DefaultWriteTimeout   = 10 * time.Second
)

// Observer receives operation outcomes. metrics.LedgerMetrics implements it.
type Observer interface {
	ObserveOperation(op, outcome string, attempts int, duration time.Duration)
	ObserveRetry(op string)
	ObserveRepair()
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, int, time.Duration) {}
func (nopObserver) ObserveRetry(string)                                 {}
func (nopObserver) ObserveRepair()                                      {}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	store     TxStore
	log       *TransactionLog
	logger    *logger.Logger
	observer  Observer
	publisher events.Publisher
	now       func() time.Time
	newID     func() string

	maxAttempts    int
	attemptTimeout time.Duration
	writeTimeout   time.Duration

	// beforeWrite runs between the read and write phases of every attempt.
	// Tests use it to interleave a competing writer.
	beforeWrite func(op string, attempt int)
}

type Option func(*Engine)

func WithLogger(l *logger.Logger) Option      { return func(e *Engine) { e.logger = l } }
func WithObserver(o Observer) Option          { return func(e *Engine) { e.observer = o } }
func WithPublisher(p events.Publisher) Option { return func(e *Engine) { e.publisher = p } }
func WithClock(now func() time.Time) Option   { return func(e *Engine) { e.now = now } }
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithRetryPolicy overrides the optimistic retry budget and timeouts.
// Zero values keep the defaults.
func WithRetryPolicy(maxAttempts int, attemptTimeout, writeTimeout time.Duration) Option {
	return func(e *Engine) {
		if maxAttempts > 0 {
			e.maxAttempts = maxAttempts
		}
		if attemptTimeout > 0 {
			e.attemptTimeout = attemptTimeout
		}
		if writeTimeout > 0 {
			e.writeTimeout = writeTimeout
		}
	}
}

func NewEngine(store TxStore, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		log:            NewTransactionLog(store),
		logger:         logger.Nop(),
		observer:       nopObserver{},
		publisher:      events.Nop{},
		now:            time.Now,
		newID:          uuid.NewString,
		maxAttempts:    DefaultMaxAttempts,
		attemptTimeout: DefaultAttemptTimeout,
		writeTimeout:   DefaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Log exposes the read side of the entry log.
func (e *Engine) Log() *TransactionLog { return e.log }

// =============================================================================
// OPERATION INPUTS
// =============================================================================

type CreditInput struct {
	ChannelID     ChannelID
	Amount        decimal.Decimal
	ReferenceType ReferenceType
	ReferenceID   string
	Description   string
}

type DebitInput = CreditInput

func (in CreditInput) validate() error {
	if strings.TrimSpace(string(in.ChannelID)) == "" {
		return &ValidationError{Field: "channel_id", Message: "is required"}
	}
	if !in.Amount.IsPositive() {
		return &ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	// initial is written only by CreateChannel.
	if !in.ReferenceType.IsValid() || in.ReferenceType == RefInitial {
		return &ValidationError{Field: "reference_type", Message: "must be one of sale, adjustment"}
	}
	if in.ReferenceType == RefSale && strings.TrimSpace(in.ReferenceID) == "" {
		return &ValidationError{Field: "reference_id", Message: "is required for sale entries"}
	}
	return nil
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Credit increases the channel balance: NewBalance = PreviousBalance + Amount.
func (e *Engine) Credit(ctx context.Context, in CreditInput) (Receipt, error) {
	if err := in.validate(); err != nil {
		return e.rejectEarly(ctx, "credit", in.ChannelID, err)
	}
	return e.applyEntry(ctx, "credit", in.ChannelID, in.saleRef(), func(ch Channel) (Entry, error) {
		return Entry{
			Type:            EntryIncome,
			Amount:          in.Amount,
			PreviousBalance: ch.Balance,
			NewBalance:      ch.Balance.Add(in.Amount),
			Description:     in.Description,
			ReferenceType:   in.ReferenceType,
			ReferenceID:     in.ReferenceID,
		}, nil
	})
}

// Debit decreases the channel balance: NewBalance = PreviousBalance - Amount.
// Fails with InsufficientBalanceError if PreviousBalance < Amount.
func (e *Engine) Debit(ctx context.Context, in DebitInput) (Receipt, error) {
	if err := in.validate(); err != nil {
		return e.rejectEarly(ctx, "debit", in.ChannelID, err)
	}
	return e.applyEntry(ctx, "debit", in.ChannelID, in.saleRef(), func(ch Channel) (Entry, error) {
		if ch.Balance.LessThan(in.Amount) {
			return Entry{}, &InsufficientBalanceError{ChannelID: ch.ID, Available: ch.Balance, Requested: in.Amount}
		}
		return Entry{
			Type:            EntryExpense,
			Amount:          in.Amount,
			PreviousBalance: ch.Balance,
			NewBalance:      ch.Balance.Sub(in.Amount),
			Description:     in.Description,
			ReferenceType:   in.ReferenceType,
			ReferenceID:     in.ReferenceID,
		}, nil
	})
}

func (in CreditInput) saleRef() string {
	if in.ReferenceType == RefSale {
		return in.ReferenceID
	}
	return ""
}

// ApplySalePayment records the payment of a completed sale.
// Cash channels are credited, bank and digital channels are debited.
// Calling it again with the same saleID returns the existing entry with
// Replayed set and writes nothing.
func (e *Engine) ApplySalePayment(ctx context.Context, channelID ChannelID, amount decimal.Decimal, saleID string) (Receipt, error) {
	in := CreditInput{
		ChannelID:     channelID,
		Amount:        amount,
		ReferenceType: RefSale,
		ReferenceID:   saleID,
		Description:   "Sale payment " + saleID,
	}
	if err := in.validate(); err != nil {
		return e.rejectEarly(ctx, "sale_payment", channelID, err)
	}

	return e.applyEntry(ctx, "sale_payment", channelID, saleID, func(ch Channel) (Entry, error) {
		entry := Entry{
			Amount:          amount,
			PreviousBalance: ch.Balance,
			Description:     in.Description,
			ReferenceType:   RefSale,
			ReferenceID:     saleID,
		}
		if ch.Type == ChannelCash {
			entry.Type = EntryIncome
			entry.NewBalance = ch.Balance.Add(amount)
			return entry, nil
		}
		if ch.Balance.LessThan(amount) {
			return Entry{}, &InsufficientBalanceError{ChannelID: ch.ID, Available: ch.Balance, Requested: amount}
		}
		entry.Type = EntryExpense
		entry.NewBalance = ch.Balance.Sub(amount)
		return entry, nil
	})
}

// AdjustBalance sets the balance to an operator-supplied value (e.g. after a
// till count). The entry amount is |newBalance - previousBalance|.
func (e *Engine) AdjustBalance(ctx context.Context, channelID ChannelID, newBalance decimal.Decimal, reason string) (Receipt, error) {
	var err error
	switch {
	case newBalance.IsNegative():
		err = &ValidationError{Field: "new_balance", Message: "must not be negative"}
	case strings.TrimSpace(reason) == "":
		err = &ValidationError{Field: "reason", Message: "is required"}
	}
	if err != nil {
		return e.rejectEarly(ctx, "adjust", channelID, err)
	}

	return e.applyEntry(ctx, "adjust", channelID, "", func(ch Channel) (Entry, error) {
		return Entry{
			Type:            EntryAdjustment,
			Amount:          newBalance.Sub(ch.Balance).Abs(),
			PreviousBalance: ch.Balance,
			NewBalance:      newBalance,
			Description:     reason,
			ReferenceType:   RefAdjustment,
		}, nil
	})
}

// =============================================================================
// APPLY - shared read / compute / compare-and-set loop
// =============================================================================

type planFunc func(ch Channel) (Entry, error)

func (e *Engine) applyEntry(ctx context.Context, op string, channelID ChannelID, saleID string, plan planFunc) (Receipt, error) {
	return e.runWithRetry(ctx, op, channelID, func(ctx context.Context, attempt int) (Receipt, error) {
		readCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout)
		defer cancel()

		ch, err := e.store.GetChannel(readCtx, channelID)
		if err != nil {
			return Receipt{}, err
		}
		if saleID != "" {
			if receipt, ok, err := e.replaySale(readCtx, ch, saleID); err != nil || ok {
				return receipt, err
			}
		}
		ch, err = e.usableChannel(readCtx, ch)
		if err != nil {
			return Receipt{}, err
		}

		entry, err := plan(ch)
		if err != nil {
			return Receipt{}, err
		}
		if entry.NewBalance.IsNegative() {
			return Receipt{}, &InsufficientBalanceError{ChannelID: ch.ID, Available: ch.Balance, Requested: entry.Amount}
		}
		if err := readCtx.Err(); err != nil {
			return Receipt{}, err
		}
		if e.beforeWrite != nil {
			e.beforeWrite(op, attempt)
		}

		receipt, err := e.commit(ctx, ch, entry)
		if saleID != "" && errors.Is(err, ErrDuplicateReference) {
			// Lost a race with another caller for the same sale.
			if receipt, ok, rerr := e.replaySale(ctx, ch, saleID); rerr != nil || ok {
				return receipt, rerr
			}
		}
		return receipt, err
	})
}

// commit is step 4: channel compare-and-set plus entry append in one transaction.
func (e *Engine) commit(ctx context.Context, ch Channel, entry Entry) (Receipt, error) {
	at := e.now().UTC()
	if at.Before(ch.UpdatedAt) {
		at = ch.UpdatedAt
	}

	next := ch
	next.Balance = entry.NewBalance
	next.Version = ch.Version + 1
	next.UpdatedAt = at

	entry.ID = EntryID(e.newID())
	entry.ChannelID = ch.ID
	entry.OwnerID = ch.OwnerID
	entry.Sequence = next.Version
	entry.CreatedAt = at
	entry.CreatedBy = auth.ActorFrom(ctx).ID

	err := e.write(ctx, ch.ID, func(ctx context.Context, s Store) error {
		if err := s.UpdateChannel(ctx, next, ch.Version); err != nil {
			return err
		}
		return s.AppendEntry(ctx, entry)
	})
	if err != nil {
		return Receipt{}, err
	}
	return Receipt{Channel: next, Entry: &entry}, nil
}

// write runs fn in a transaction detached from caller cancellation and
// bounded by WriteTimeout.
func (e *Engine) write(ctx context.Context, channelID ChannelID, fn func(context.Context, Store) error) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.writeTimeout)
	defer cancel()

	err := e.store.WithTx(writeCtx, func(s Store) error { return fn(writeCtx, s) })
	if err != nil && writeCtx.Err() != nil {
		return &OutcomeUnknownError{ChannelID: channelID, Cause: writeCtx.Err()}
	}
	return err
}

// runWithRetry drives one operation: retries on ErrVersionConflict, records
// metrics, logs the terminal state.
func (e *Engine) runWithRetry(ctx context.Context, op string, channelID ChannelID, attemptFn func(context.Context, int) (Receipt, error)) (Receipt, error) {
	start := e.now()
	ctx = e.logger.WithFields(ctx, map[string]any{"op": op, "channel_id": string(channelID)})

	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		receipt, err := attemptFn(ctx, attempt)
		if errors.Is(err, ErrVersionConflict) {
			e.observer.ObserveRetry(op)
			e.logger.Debug(ctx, "ledger.version_conflict")
			continue
		}
		e.finish(ctx, op, attempt, start, receipt, err)
		return receipt, err
	}

	err := &ConcurrencyError{ChannelID: channelID, Attempts: e.maxAttempts}
	e.finish(ctx, op, e.maxAttempts, start, Receipt{}, err)
	return Receipt{}, err
}

func (e *Engine) rejectEarly(ctx context.Context, op string, channelID ChannelID, err error) (Receipt, error) {
	ctx = e.logger.WithFields(ctx, map[string]any{"op": op, "channel_id": string(channelID)})
	e.finish(ctx, op, 0, e.now(), Receipt{}, err)
	return Receipt{}, err
}

func (e *Engine) finish(ctx context.Context, op string, attempts int, start time.Time, receipt Receipt, err error) {
	elapsed := e.now().Sub(start)

	switch {
	case err == nil && receipt.Replayed:
		e.observer.ObserveOperation(op, "replayed", attempts, elapsed)
		e.logger.Info(ctx, "ledger.replayed")
	case err == nil:
		e.observer.ObserveOperation(op, "applied", attempts, elapsed)
		if receipt.Entry != nil {
			e.logger.Debug(e.logger.WithFields(ctx, map[string]any{
				"entry_id":    string(receipt.Entry.ID),
				"new_balance": receipt.Entry.NewBalance.String(),
			}), "ledger.applied")
			e.publish(ctx, *receipt.Entry)
		}
	default:
		kind := KindOf(err)
		e.observer.ObserveOperation(op, string(kind), attempts, elapsed)
		ctx = e.logger.WithField(ctx, "kind", string(kind))
		if kind == KindInternal || kind == KindOutcomeUnknown {
			e.logger.Error(ctx, "ledger.failed", err)
			return
		}
		e.logger.Info(e.logger.WithField(ctx, "reason", err.Error()), "ledger.rejected")
	}
}

// publish never fails the operation: the entry is already committed, so the
// event is sent even if the caller has gone away.
func (e *Engine) publish(ctx context.Context, entry Entry) {
	if err := e.publisher.Publish(context.WithoutCancel(ctx), entryAppliedEvent(entry)); err != nil {
		e.logger.Warn(e.logger.WithField(ctx, "error", err.Error()), "ledger.publish_failed")
	}
}

func entryAppliedEvent(entry Entry) events.Event {
	return events.Event{
		Type:       events.TypeEntryApplied,
		Key:        string(entry.ChannelID),
		OccurredAt: entry.CreatedAt,
		Payload: events.EntryApplied{
			EntryID:         string(entry.ID),
			ChannelID:       string(entry.ChannelID),
			OwnerID:         string(entry.OwnerID),
			Sequence:        entry.Sequence,
			Type:            string(entry.Type),
			Amount:          entry.Amount.String(),
			PreviousBalance: entry.PreviousBalance.String(),
			NewBalance:      entry.NewBalance.String(),
			ReferenceType:   string(entry.ReferenceType),
			ReferenceID:     entry.ReferenceID,
			CreatedBy:       entry.CreatedBy,
		},
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func (e *Engine) activeChannel(ctx context.Context, id ChannelID) (Channel, error) {
	ch, err := e.store.GetChannel(ctx, id)
	if err != nil {
		return Channel{}, err
	}
	return e.usableChannel(ctx, ch)
}

// usableChannel rejects deactivated channels and returns ch with its cached
// balance checked against the latest entry.
func (e *Engine) usableChannel(ctx context.Context, ch Channel) (Channel, error) {
	if !ch.IsActive {
		return Channel{}, &ConflictError{ChannelID: ch.ID, Reason: "channel is deactivated"}
	}
	return e.verifiedChannel(ctx, ch)
}

// replaySale returns the existing receipt for a sale the channel's owner
// already recorded.
func (e *Engine) replaySale(ctx context.Context, ch Channel, saleID string) (Receipt, bool, error) {
	existing, err := e.store.FindByReference(ctx, ch.OwnerID, RefSale, saleID)
	if err != nil || existing == nil {
		return Receipt{}, false, err
	}
	if existing.ChannelID != ch.ID {
		return Receipt{}, true, &ConflictError{
			ChannelID: ch.ID,
			Reason:    "sale " + saleID + " already recorded on another channel",
		}
	}
	current, err := e.store.GetChannel(ctx, ch.ID)
	if err != nil {
		return Receipt{}, true, err
	}
	return Receipt{Channel: current, Entry: existing, Replayed: true}, true, nil
}

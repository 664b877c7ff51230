package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/channel-ledger/auth"
	"github.com/warp/channel-ledger/events"
	"github.com/warp/channel-ledger/ledger"
)

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenarioA_CreateCashChannelWithInitialBalance(t *testing.T) {
	// GIVEN: A new cash drawer funded with 100000
	// WHEN: The channel is created
	// THEN: One income/initial entry 0 -> 100000 and balance 100000

	f := newFixture(t)
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "100000")

	requireMoney(t, "100000", ch.Balance)
	entries := f.entries(t, ch.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.EntryIncome, entries[0].Type)
	assert.Equal(t, ledger.RefInitial, entries[0].ReferenceType)
	requireMoney(t, "0", entries[0].PreviousBalance)
	requireMoney(t, "100000", entries[0].NewBalance)
	f.requireLedgerInvariant(t, ch.ID)
}

func TestScenarioA_ZeroInitialBalanceWritesNoEntry(t *testing.T) {
	f := newFixture(t)
	ch := f.createChannel(t, "E-Wallet", ledger.ChannelDigital, "0")

	assert.Empty(t, f.entries(t, ch.ID))
	requireMoney(t, "0", ch.Balance)
	f.requireLedgerInvariant(t, ch.ID)
}

func TestScenarioB_SalePaymentCreditsCashChannel(t *testing.T) {
	// GIVEN: Cash channel at 100000
	// WHEN: Sale sale-1 of 25000 is paid into it
	// THEN: income entry 100000 -> 125000

	f := newFixture(t)
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "100000")

	receipt, err := f.engine.ApplySalePayment(context.Background(), ch.ID, money("25000"), "sale-1")
	require.NoError(t, err)

	require.NotNil(t, receipt.Entry)
	assert.False(t, receipt.Replayed)
	assert.Equal(t, ledger.EntryIncome, receipt.Entry.Type)
	assert.Equal(t, ledger.RefSale, receipt.Entry.ReferenceType)
	assert.Equal(t, "sale-1", receipt.Entry.ReferenceID)
	requireMoney(t, "100000", receipt.Entry.PreviousBalance)
	requireMoney(t, "125000", receipt.Entry.NewBalance)
	requireMoney(t, "125000", receipt.Channel.Balance)
	f.requireLedgerInvariant(t, ch.ID)
}

func TestScenarioC_SalePaymentOnBankChannelInsufficient(t *testing.T) {
	// GIVEN: Bank channel at 20000
	// WHEN: Sale sale-2 of 25000 is applied (debits non-cash channels)
	// THEN: InsufficientBalanceError, balance still 20000, no new entry

	f := newFixture(t)
	ch := f.createChannel(t, "BCA", ledger.ChannelBank, "20000")

	_, err := f.engine.ApplySalePayment(context.Background(), ch.ID, money("25000"), "sale-2")

	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	var insufficient *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	requireMoney(t, "5000", insufficient.Shortfall())
	assert.Equal(t, ledger.KindInsufficientBalance, ledger.KindOf(err))

	requireMoney(t, "20000", f.balance(t, ch.ID))
	assert.Len(t, f.entries(t, ch.ID), 1)
}

func TestScenarioD_AdjustBalanceAfterStockTake(t *testing.T) {
	// GIVEN: Channel at 125000
	// WHEN: Operator adjusts to 50000
	// THEN: adjustment entry with amount 75000, new balance 50000

	f := newFixture(t)
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "125000")

	receipt, err := f.engine.AdjustBalance(context.Background(), ch.ID, money("50000"), "stock take")
	require.NoError(t, err)

	assert.Equal(t, ledger.EntryAdjustment, receipt.Entry.Type)
	assert.Equal(t, ledger.RefAdjustment, receipt.Entry.ReferenceType)
	requireMoney(t, "75000", receipt.Entry.Amount)
	requireMoney(t, "125000", receipt.Entry.PreviousBalance)
	requireMoney(t, "50000", receipt.Entry.NewBalance)
	assert.Equal(t, "stock take", receipt.Entry.Description)
	f.requireLedgerInvariant(t, ch.ID)
}

func TestScenarioE_DeactivateWithBalanceRejected(t *testing.T) {
	// GIVEN: Channel at 50000
	// WHEN: Deactivate
	// THEN: ConflictError and the channel stays active

	f := newFixture(t)
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "50000")

	_, err := f.channels.Deactivate(context.Background(), ch.ID)

	require.ErrorIs(t, err, ledger.ErrConflict)
	got, err := f.channels.GetChannel(context.Background(), ch.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestScenarioF_ConcurrentCreditsNoLostUpdate(t *testing.T) {
	// GIVEN: Channel at 0
	// WHEN: Two credits of 1000 race
	// THEN: Balance 2000 and exactly two entries

	f := newFixture(t)
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "0")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Credit(context.Background(), ledger.CreditInput{
				ChannelID:     ch.ID,
				Amount:        money("1000"),
				ReferenceType: ledger.RefAdjustment,
				Description:   "float top-up",
			})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	requireMoney(t, "2000", f.balance(t, ch.ID))
	assert.Len(t, f.entries(t, ch.ID), 2)
	f.requireLedgerInvariant(t, ch.ID)
}

func TestConcurrentWriters_ManyGoroutines(t *testing.T) {
	const writers = 20
	f := newFixture(t, ledger.WithRetryPolicy(writers+1, 0, 0))
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "10000")

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := ledger.CreditInput{ChannelID: ch.ID, Amount: money("100"), ReferenceType: ledger.RefAdjustment}
			var err error
			if i%2 == 0 {
				_, err = f.engine.Credit(context.Background(), in)
			} else {
				_, err = f.engine.Debit(context.Background(), in)
			}
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	requireMoney(t, "10000", f.balance(t, ch.ID))
	assert.Len(t, f.entries(t, ch.ID), writers+1)
	f.requireLedgerInvariant(t, ch.ID)
}

// =============================================================================
// OPERATIONS
// =============================================================================

func TestCreditAndDebit(t *testing.T) {
	f := newFixture(t)
	ch := f.createChannel(t, "BCA", ledger.ChannelBank, "1000")
	ctx := context.Background()

	receipt, err := f.engine.Credit(ctx, ledger.CreditInput{
		ChannelID: ch.ID, Amount: money("250.50"), ReferenceType: ledger.RefAdjustment, Description: "transfer in",
	})
	require.NoError(t, err)
	requireMoney(t, "1250.50", receipt.Channel.Balance)
	assert.Equal(t, int64(2), receipt.Entry.Sequence)

	receipt, err = f.engine.Debit(ctx, ledger.DebitInput{
		ChannelID: ch.ID, Amount: money("1250.50"), ReferenceType: ledger.RefAdjustment,
	})
	require.NoError(t, err)
	requireMoney(t, "0", receipt.Channel.Balance)
	assert.Equal(t, ledger.EntryExpense, receipt.Entry.Type)
	assert.Equal(t, int64(3), receipt.Entry.Sequence)

	_, err = f.engine.Debit(ctx, ledger.DebitInput{ChannelID: ch.ID, Amount: money("0.01"), ReferenceType: ledger.RefAdjustment})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	f.requireLedgerInvariant(t, ch.ID)
}

func TestSalePayment_DigitalChannelDebits(t *testing.T) {
	f := newFixture(t)
	ch := f.createChannel(t, "GoPay", ledger.ChannelDigital, "40000")

	receipt, err := f.engine.ApplySalePayment(context.Background(), ch.ID, money("15000"), "sale-9")
	require.NoError(t, err)

	assert.Equal(t, ledger.EntryExpense, receipt.Entry.Type)
	requireMoney(t, "25000", receipt.Channel.Balance)
}

func TestAdjustBalance_RoundTrip(t *testing.T) {
	f := newFixture(t)
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "300")

	for _, target := range []string{"1000", "0", "42.25", "42.25"} {
		_, err := f.engine.AdjustBalance(context.Background(), ch.ID, money(target), "till count")
		require.NoError(t, err)

		got, err := f.channels.GetChannel(context.Background(), ch.ID)
		require.NoError(t, err)
		requireMoney(t, target, got.Balance)
	}
	f.requireLedgerInvariant(t, ch.ID)
}

func TestValidation_NothingPersisted(t *testing.T) {
	f := newFixture(t)
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "100")
	ctx := context.Background()

	cases := map[string]func() error{
		"zero credit": func() error {
			_, err := f.engine.Credit(ctx, ledger.CreditInput{ChannelID: ch.ID, Amount: money("0"), ReferenceType: ledger.RefAdjustment})
			return err
		},
		"negative debit": func() error {
			_, err := f.engine.Debit(ctx, ledger.DebitInput{ChannelID: ch.ID, Amount: money("-5"), ReferenceType: ledger.RefAdjustment})
			return err
		},
		"unknown reference type": func() error {
			_, err := f.engine.Credit(ctx, ledger.CreditInput{ChannelID: ch.ID, Amount: money("5"), ReferenceType: "refund"})
			return err
		},
		"initial reserved for channel creation": func() error {
			_, err := f.engine.Credit(ctx, ledger.CreditInput{ChannelID: ch.ID, Amount: money("5"), ReferenceType: ledger.RefInitial})
			return err
		},
		"sale without id": func() error {
			_, err := f.engine.ApplySalePayment(ctx, ch.ID, money("5"), " ")
			return err
		},
		"negative adjustment": func() error {
			_, err := f.engine.AdjustBalance(ctx, ch.ID, money("-1"), "oops")
			return err
		},
		"adjustment without reason": func() error {
			_, err := f.engine.AdjustBalance(ctx, ch.ID, money("10"), "  ")
			return err
		},
		"missing channel id": func() error {
			_, err := f.engine.Credit(ctx, ledger.CreditInput{Amount: money("5"), ReferenceType: ledger.RefAdjustment})
			return err
		},
	}
	for name, call := range cases {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.ErrorIs(t, err, ledger.ErrValidation)
			assert.Equal(t, ledger.KindValidation, ledger.KindOf(err))
		})
	}

	assert.Len(t, f.entries(t, ch.ID), 1)
	requireMoney(t, "100", f.balance(t, ch.ID))
}

func TestUnknownChannel_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Credit(context.Background(), ledger.CreditInput{
		ChannelID: "missing", Amount: money("1"), ReferenceType: ledger.RefAdjustment,
	})
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestDeactivatedChannel_RejectsOperations(t *testing.T) {
	f := newFixture(t)
	ch := f.createChannel(t, "Old Wallet", ledger.ChannelDigital, "0")
	ctx := context.Background()

	_, err := f.channels.Deactivate(ctx, ch.ID)
	require.NoError(t, err)

	_, err = f.engine.Credit(ctx, ledger.CreditInput{ChannelID: ch.ID, Amount: money("1"), ReferenceType: ledger.RefAdjustment})
	require.ErrorIs(t, err, ledger.ErrConflict)

	_, err = f.engine.AdjustBalance(ctx, ch.ID, money("10"), "count")
	require.ErrorIs(t, err, ledger.ErrConflict)

	_, err = f.channels.GetChannel(ctx, ch.ID)
	require.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestCreatedBy_ComesFromActor(t *testing.T) {
	f := newFixture(t)
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "0")
	ctx := auth.WithActor(context.Background(), auth.Actor{ID: "cashier-7", OwnerID: string(owner)})

	receipt, err := f.engine.ApplySalePayment(ctx, ch.ID, money("5000"), "sale-77")
	require.NoError(t, err)
	assert.Equal(t, "cashier-7", receipt.Entry.CreatedBy)
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

func TestSalePayment_SecondCallReplays(t *testing.T) {
	f := newFixture(t)
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "100000")
	ctx := context.Background()

	first, err := f.engine.ApplySalePayment(ctx, ch.ID, money("25000"), "sale-1")
	require.NoError(t, err)
	second, err := f.engine.ApplySalePayment(ctx, ch.ID, money("25000"), "sale-1")
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	requireMoney(t, "125000", second.Channel.Balance)
	assert.Len(t, f.entries(t, ch.ID), 2)
}

func TestSalePayment_SameSaleOtherChannelConflicts(t *testing.T) {
	f := newFixture(t)
	drawer := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "0")
	other := f.createChannel(t, "Second Drawer", ledger.ChannelCash, "0")
	ctx := context.Background()

	_, err := f.engine.ApplySalePayment(ctx, drawer.ID, money("100"), "sale-1")
	require.NoError(t, err)

	_, err = f.engine.ApplySalePayment(ctx, other.ID, money("100"), "sale-1")
	require.ErrorIs(t, err, ledger.ErrConflict)
	assert.NotContains(t, err.Error(), string(drawer.ID))
	assert.Empty(t, f.entries(t, other.ID))
}

func TestSalePayment_SameSaleIDAcrossOwners(t *testing.T) {
	// GIVEN: Two owners whose POS systems both number a sale INV-0001
	// WHEN: Each records it on its own channel
	// THEN: Both are applied and each replay finds its own owner's entry

	f := newFixture(t)
	ctx := context.Background()
	mine := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "0")
	created, err := f.channels.CreateChannel(ctx, ledger.CreateChannelInput{
		OwnerID: "store-2", Name: "Cash Drawer", Type: ledger.ChannelCash,
	})
	require.NoError(t, err)
	theirs := created.Channel

	first, err := f.engine.ApplySalePayment(ctx, mine.ID, money("100"), "INV-0001")
	require.NoError(t, err)
	second, err := f.engine.ApplySalePayment(ctx, theirs.ID, money("300"), "INV-0001")
	require.NoError(t, err)
	assert.False(t, second.Replayed)
	assert.NotEqual(t, first.Entry.ID, second.Entry.ID)
	requireMoney(t, "100", f.balance(t, mine.ID))
	requireMoney(t, "300", f.balance(t, theirs.ID))

	replay, err := f.engine.ApplySalePayment(ctx, theirs.ID, money("300"), "INV-0001")
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, second.Entry.ID, replay.Entry.ID)
}

func TestSalePayment_ConcurrentDuplicatesWriteOnce(t *testing.T) {
	const callers = 10
	f := newFixture(t, ledger.WithRetryPolicy(callers+1, 0, 0))
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "0")

	var wg sync.WaitGroup
	receipts := make([]ledger.Receipt, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.engine.ApplySalePayment(context.Background(), ch.ID, money("500"), "sale-42")
			assert.NoError(t, err)
			receipts[i] = r
		}(i)
	}
	wg.Wait()

	applied := 0
	for _, r := range receipts {
		if !r.Replayed {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
	assert.Len(t, f.entries(t, ch.ID), 1)
	requireMoney(t, "500", f.balance(t, ch.ID))
}

// =============================================================================
// CONCURRENCY CONTROL
// =============================================================================

func TestRetry_InterleavedWriterIsNotLost(t *testing.T) {
	// GIVEN: Channel at 1000, and a credit of 500 that lands between a
	//        debit's read and write
	// WHEN: The debit of 300 completes
	// THEN: It retried from a fresh read and the final balance is 1200

	f := newFixture(t)
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "1000")
	ctx := context.Background()

	ledger.SetBeforeWrite(f.engine, func(op string, attempt int) {
		if op == "debit" && attempt == 1 {
			_, err := f.engine.Credit(ctx, ledger.CreditInput{ChannelID: ch.ID, Amount: money("500"), ReferenceType: ledger.RefAdjustment})
			require.NoError(t, err)
		}
	})

	receipt, err := f.engine.Debit(ctx, ledger.DebitInput{ChannelID: ch.ID, Amount: money("300"), ReferenceType: ledger.RefAdjustment})
	require.NoError(t, err)

	requireMoney(t, "1500", receipt.Entry.PreviousBalance)
	requireMoney(t, "1200", f.balance(t, ch.ID))
	f.requireLedgerInvariant(t, ch.ID)
}

func TestRetry_ExhaustedBudgetFailsWithConcurrencyError(t *testing.T) {
	f := newFixture(t, ledger.WithRetryPolicy(3, 0, 0))
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "1000")
	ctx := context.Background()

	attempts := 0
	ledger.SetBeforeWrite(f.engine, func(op string, attempt int) {
		attempts = attempt
		cur, err := f.store.GetChannel(ctx, ch.ID)
		require.NoError(t, err)
		bumped := cur
		bumped.Version++
		require.NoError(t, f.store.UpdateChannel(ctx, bumped, cur.Version))
	})

	_, err := f.engine.Credit(ctx, ledger.CreditInput{ChannelID: ch.ID, Amount: money("1"), ReferenceType: ledger.RefAdjustment})

	require.ErrorIs(t, err, ledger.ErrConcurrency)
	assert.True(t, ledger.IsRetryable(err))
	assert.Equal(t, 3, attempts)
	requireMoney(t, "1000", f.balance(t, ch.ID))
	assert.Len(t, f.entries(t, ch.ID), 1)
}

// =============================================================================
// CANCELLATION AND TIMEOUTS
// =============================================================================

func TestCanceledBeforeStart_NoEffect(t *testing.T) {
	f := newFixture(t)
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "10")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Credit(ctx, ledger.CreditInput{ChannelID: ch.ID, Amount: money("1"), ReferenceType: ledger.RefAdjustment})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ledger.KindCanceled, ledger.KindOf(err))
	requireMoney(t, "10", f.balance(t, ch.ID))
}

func TestCanceledDuringWrite_WriteStillLands(t *testing.T) {
	f := newFixture(t)
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "10")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ledger.SetBeforeWrite(f.engine, func(string, int) { cancel() })

	receipt, err := f.engine.Credit(ctx, ledger.CreditInput{ChannelID: ch.ID, Amount: money("5"), ReferenceType: ledger.RefAdjustment})
	require.NoError(t, err)
	requireMoney(t, "15", receipt.Channel.Balance)
	requireMoney(t, "15", f.balance(t, ch.ID))
}

// stallingStore blocks WithTx until its context expires once stall is set.
type stallingStore struct {
	ledger.TxStore
	stall bool
}

func (s *stallingStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	if s.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.TxStore.WithTx(ctx, fn)
}

func TestWriteTimeout_OutcomeUnknown(t *testing.T) {
	f := newFixture(t)
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "10")

	slow := &stallingStore{TxStore: f.store, stall: true}
	engine := ledger.NewEngine(slow, ledger.WithRetryPolicy(0, 0, 20*time.Millisecond))

	_, err := engine.Credit(context.Background(), ledger.CreditInput{ChannelID: ch.ID, Amount: money("1"), ReferenceType: ledger.RefAdjustment})

	require.ErrorIs(t, err, ledger.ErrOutcomeUnknown)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, ledger.KindOutcomeUnknown, ledger.KindOf(err))
	var unknown *ledger.OutcomeUnknownError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, ch.ID, unknown.ChannelID)
}

// =============================================================================
// EVENTS
// =============================================================================

func TestAppliedOperationsPublishEvents(t *testing.T) {
	f := newFixture(t)
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "100")
	ctx := context.Background()

	_, err := f.engine.ApplySalePayment(ctx, ch.ID, money("50"), "sale-1")
	require.NoError(t, err)
	_, err = f.engine.ApplySalePayment(ctx, ch.ID, money("50"), "sale-1")
	require.NoError(t, err)
	_, err = f.engine.Debit(ctx, ledger.DebitInput{ChannelID: ch.ID, Amount: money("1000"), ReferenceType: ledger.RefAdjustment})
	require.Error(t, err)

	// initial entry + first sale; replays and rejections publish nothing
	require.Equal(t, 2, f.events.count())
	last := f.events.events[1]
	assert.Equal(t, events.TypeEntryApplied, last.Type)
	assert.Equal(t, string(ch.ID), last.Key)
	payload := last.Payload.(events.EntryApplied)
	assert.Equal(t, "150", payload.NewBalance)
	assert.Equal(t, "sale-1", payload.ReferenceID)
}

// ctxPublisher records the context error each event was published under.
type ctxPublisher struct {
	errs []error
}

func (p *ctxPublisher) Publish(ctx context.Context, _ events.Event) error {
	p.errs = append(p.errs, ctx.Err())
	return nil
}

func TestPublish_SurvivesCallerCancellation(t *testing.T) {
	// GIVEN: A caller that cancels after the read phase
	// WHEN: The credit commits anyway
	// THEN: Its event is published under a live context

	pub := &ctxPublisher{}
	f := newFixture(t, ledger.WithPublisher(pub))
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "0")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ledger.SetBeforeWrite(f.engine, func(string, int) { cancel() })

	_, err := f.engine.Credit(ctx, ledger.CreditInput{ChannelID: ch.ID, Amount: money("5"), ReferenceType: ledger.RefAdjustment})
	require.NoError(t, err)
	require.Error(t, ctx.Err())

	requireMoney(t, "5", f.balance(t, ch.ID))
	require.NotEmpty(t, pub.errs)
	assert.NoError(t, pub.errs[len(pub.errs)-1])
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error {
	return errors.New("broker down")
}

func TestPublishFailure_DoesNotFailOperation(t *testing.T) {
	f := newFixture(t, ledger.WithPublisher(failingPublisher{}))
	ch := f.createChannel(t, "Cash Drawer", ledger.ChannelCash, "0")

	_, err := f.engine.Credit(context.Background(), ledger.CreditInput{ChannelID: ch.ID, Amount: money("5"), ReferenceType: ledger.RefAdjustment})
	require.NoError(t, err)
	requireMoney(t, "5", f.balance(t, ch.ID))
}

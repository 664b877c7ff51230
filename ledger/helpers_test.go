package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/channel-ledger/events"
	"github.com/warp/channel-ledger/ledger"
	"github.com/warp/channel-ledger/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const owner = ledger.OwnerID("store-1")

type fixture struct {
	store    *store.TxMemory
	engine   *ledger.Engine
	channels *ledger.ChannelService
	clock    *stepClock
	events   *recordingPublisher
}

func newFixture(t *testing.T, opts ...ledger.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewTxMemory(),
		clock:  newStepClock(time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)),
		events: &recordingPublisher{},
	}
	opts = append([]ledger.Option{ledger.WithClock(f.clock.Now), ledger.WithPublisher(f.events)}, opts...)
	f.engine = ledger.NewEngine(f.store, opts...)
	f.channels = ledger.NewChannelService(f.engine)
	return f
}

func (f *fixture) createChannel(t *testing.T, name string, typ ledger.ChannelType, initial string) ledger.Channel {
	t.Helper()
	receipt, err := f.channels.CreateChannel(context.Background(), ledger.CreateChannelInput{
		OwnerID:        owner,
		Name:           name,
		Type:           typ,
		InitialBalance: money(initial),
	})
	require.NoError(t, err)
	return receipt.Channel
}

func (f *fixture) entries(t *testing.T, id ledger.ChannelID) []ledger.Entry {
	t.Helper()
	entries, err := f.engine.Log().Entries(context.Background(), id)
	require.NoError(t, err)
	return entries
}

func (f *fixture) balance(t *testing.T, id ledger.ChannelID) decimal.Decimal {
	t.Helper()
	ch, err := f.store.GetChannel(context.Background(), id)
	require.NoError(t, err)
	return ch.Balance
}

// requireLedgerInvariant checks that the cached balance equals the latest
// entry's NewBalance, that the chain is unbroken, and nothing is negative.
func (f *fixture) requireLedgerInvariant(t *testing.T, id ledger.ChannelID) {
	t.Helper()
	entries := f.entries(t, id)
	balance, breaks := ledger.Replay(entries)
	require.Empty(t, breaks)
	require.True(t, f.balance(t, id).Equal(balance), "cached %s, ledger %s", f.balance(t, id), balance)
	for _, e := range entries {
		require.False(t, e.NewBalance.IsNegative())
	}
}

func money(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	return ledger.MustParseMoney(s)
}

func requireMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, money(want).Equal(got), "want %s, got %s", want, got)
}

// stepClock advances one second per reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock(start time.Time) *stepClock { return &stepClock{now: start} }

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

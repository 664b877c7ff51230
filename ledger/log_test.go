package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/channel-ledger/ledger"
)

func TestTransactionLog_Queries(t *testing.T) {
	f := newFixture(t)
	ch := f.createChannel(t, "Drawer", ledger.ChannelCash, "100")
	ctx := context.Background()

	sale, err := f.engine.ApplySalePayment(ctx, ch.ID, money("40"), "sale-1")
	require.NoError(t, err)
	adj, err := f.engine.AdjustBalance(ctx, ch.ID, money("90"), "count")
	require.NoError(t, err)

	log := f.engine.Log()

	all, err := log.Entries(ctx, ch.ID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.True(t, ledger.EntryBefore(all[i-1], all[i]))
		assert.True(t, all[i].PreviousBalance.Equal(all[i-1].NewBalance))
	}

	latest, err := log.Latest(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, adj.Entry.ID, latest.ID)

	found, err := log.ByReference(ctx, owner, ledger.RefSale, "sale-1")
	require.NoError(t, err)
	assert.Equal(t, sale.Entry.ID, found.ID)

	_, err = log.ByReference(ctx, owner, ledger.RefSale, "sale-404")
	require.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = log.ByReference(ctx, "store-2", ledger.RefSale, "sale-1")
	require.ErrorIs(t, err, ledger.ErrNotFound, "references are scoped to the owner")

	// Half-open window: includes from, excludes to.
	window, err := log.EntriesInRange(ctx, ch.ID, sale.Entry.CreatedAt, adj.Entry.CreatedAt)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, sale.Entry.ID, window[0].ID)

	owned, err := log.OwnerEntries(ctx, owner, time.Time{}, adj.Entry.CreatedAt.Add(time.Second))
	require.NoError(t, err)
	assert.Len(t, owned, 3)
}

func TestTransactionLog_BalanceAt(t *testing.T) {
	f := newFixture(t)
	ch := f.createChannel(t, "Drawer", ledger.ChannelCash, "100")
	ctx := context.Background()

	sale, err := f.engine.ApplySalePayment(ctx, ch.ID, money("40"), "sale-1")
	require.NoError(t, err)

	before, err := f.engine.Log().BalanceAt(ctx, ch.ID, ch.CreatedAt.Add(-time.Second))
	require.NoError(t, err)
	requireMoney(t, "0", before)

	atCreate, err := f.engine.Log().BalanceAt(ctx, ch.ID, ch.CreatedAt)
	require.NoError(t, err)
	requireMoney(t, "100", atCreate)

	afterSale, err := f.engine.Log().BalanceAt(ctx, ch.ID, sale.Entry.CreatedAt)
	require.NoError(t, err)
	requireMoney(t, "140", afterSale)
}

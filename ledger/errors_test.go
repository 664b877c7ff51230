package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/channel-ledger/ledger"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ledger.Kind
	}{
		{nil, ledger.KindNone},
		{&ledger.ValidationError{Field: "amount", Message: "must be positive"}, ledger.KindValidation},
		{&ledger.NotFoundError{Resource: "channel", ID: "x"}, ledger.KindNotFound},
		{&ledger.ConflictError{ChannelID: "x", Reason: "inactive"}, ledger.KindConflict},
		{&ledger.InsufficientBalanceError{ChannelID: "x", Available: money("1"), Requested: money("2")}, ledger.KindInsufficientBalance},
		{&ledger.ConcurrencyError{ChannelID: "x", Attempts: 5}, ledger.KindConcurrency},
		{&ledger.OutcomeUnknownError{ChannelID: "x", Cause: context.DeadlineExceeded}, ledger.KindOutcomeUnknown},
		{context.Canceled, ledger.KindCanceled},
		{fmt.Errorf("load channel: %w", &ledger.NotFoundError{Resource: "channel", ID: "x"}), ledger.KindNotFound},
		{errors.New("disk on fire"), ledger.KindInternal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ledger.KindOf(tc.err), "%v", tc.err)
	}
}

func TestClientErrors(t *testing.T) {
	assert.True(t, ledger.IsClientError(&ledger.ValidationError{}))
	assert.True(t, ledger.IsClientError(&ledger.InsufficientBalanceError{}))
	assert.False(t, ledger.IsClientError(&ledger.ConcurrencyError{}))
	assert.False(t, ledger.IsClientError(errors.New("boom")))
}

func TestParseMoney(t *testing.T) {
	d, err := ledger.ParseMoney(" 1250.50 ")
	assert.NoError(t, err)
	assert.Equal(t, "1250.5", d.String())

	_, err = ledger.ParseMoney("12,50")
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

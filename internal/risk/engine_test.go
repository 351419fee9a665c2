package risk

import (
	"testing"

	"github.com/n0ct4/secure-bank-final/pkg/exception"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestEngineEvaluate(t *testing.T) {
	engine := NewEngine(Config{WithdrawalLimit: d(3000), TransferLimit: d(500)})

	cases := []struct {
		name    string
		intent  Intent
		amount  decimal.Decimal
		balance decimal.Decimal
		reason  Reason
		err     error
	}{
		{"deposit has no ceiling", IntentDeposit, d(1_000_000), d(0), ReasonNone, nil},
		{"deposit zero", IntentDeposit, d(0), d(10), ReasonInvalidAmount, exception.ErrInvalidAmount},
		{"withdrawal ok", IntentWithdrawal, d(3000), d(5000), ReasonNone, nil},
		{"withdrawal negative", IntentWithdrawal, d(-5), d(5000), ReasonInvalidAmount, exception.ErrInvalidAmount},
		{"withdrawal over balance", IntentWithdrawal, d(2000), d(1500), ReasonInsufficientFunds, exception.ErrInsufficientFunds},
		{"withdrawal over limit", IntentWithdrawal, d(3500), d(5100), ReasonWithdrawalLimit, exception.ErrLimitExceeded},
		{"withdrawal ceiling checked first", IntentWithdrawal, d(6000), d(5100), ReasonWithdrawalLimit, exception.ErrLimitExceeded},
		{"transfer ok", IntentTransfer, d(200), d(5100), ReasonNone, nil},
		{"transfer over limit", IntentTransfer, d(501), d(5100), ReasonTransferLimit, exception.ErrLimitExceeded},
		{"transfer over balance", IntentTransfer, d(400), d(300), ReasonInsufficientFunds, exception.ErrInsufficientFunds},
		{"transfer ceiling checked first", IntentTransfer, d(900), d(300), ReasonTransferLimit, exception.ErrLimitExceeded},
		{"unknown intent", IntentUnknown, d(1), d(1), ReasonUnknownIntent, exception.ErrInvalidArgument},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := engine.Evaluate(c.intent, c.amount, c.balance)
			assert.Equal(t, c.reason, got.Reason)
			assert.Equal(t, c.err == nil, got.Allowed())
			if c.err == nil {
				require.NoError(t, got.Err())
				return
			}
			require.ErrorIs(t, got.Err(), c.err)
		})
	}
}

func TestEngineZeroCeilingRejects(t *testing.T) {
	engine := NewEngine(Config{})
	got := engine.Evaluate(IntentWithdrawal, decimal.RequireFromString("0.01"), d(10))
	assert.Equal(t, ReasonWithdrawalLimit, got.Reason)
}

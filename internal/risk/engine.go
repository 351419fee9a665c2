package risk

import (
	"github.com/n0ct4/secure-bank-final/pkg/exception"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// Config holds the per-operation ceilings. A zero ceiling is still a
// ceiling: every positive amount exceeds it.
type Config struct {
	WithdrawalLimit decimal.Decimal
	TransferLimit   decimal.Decimal
}

// Intent is the kind of balance movement being checked.
type Intent uint8

const (
	IntentUnknown Intent = iota
	IntentDeposit
	IntentWithdrawal
	IntentTransfer
)

func (i Intent) String() string {
	switch i {
	case IntentDeposit:
		return "deposit"
	case IntentWithdrawal:
		return "withdrawal"
	case IntentTransfer:
		return "transfer"
	default:
		return "unknown"
	}
}

type Action uint8

const (
	ActionAllow Action = iota
	ActionDeny
)

// Reason explains a denial.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonUnknownIntent
	ReasonInvalidAmount
	ReasonInsufficientFunds
	ReasonWithdrawalLimit
	ReasonTransferLimit
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonUnknownIntent:
		return "unknown intent"
	case ReasonInvalidAmount:
		return "invalid amount"
	case ReasonInsufficientFunds:
		return "insufficient funds"
	case ReasonWithdrawalLimit:
		return "withdrawal limit exceeded"
	case ReasonTransferLimit:
		return "transfer limit exceeded"
	default:
		return "unknown"
	}
}

// Decision is the outcome of one evaluation.
type Decision struct {
	Intent  Intent
	Action  Action
	Reason  Reason
	Amount  decimal.Decimal
	Balance decimal.Decimal
	Limit   decimal.Decimal
}

func (d Decision) Allowed() bool {
	return d.Action == ActionAllow
}

// Err maps a denial to its sentinel error, or nil when allowed.
func (d Decision) Err() error {
	switch d.Reason {
	case ReasonNone:
		return nil
	case ReasonInvalidAmount:
		return errors.Wrapf(exception.ErrInvalidAmount, "amount: %s", d.Amount.StringFixed(2))
	case ReasonInsufficientFunds:
		return errors.Wrapf(exception.ErrInsufficientFunds, "amount: %s, balance: %s", d.Amount.StringFixed(2), d.Balance.StringFixed(2))
	case ReasonWithdrawalLimit, ReasonTransferLimit:
		return errors.Wrapf(exception.ErrLimitExceeded, "amount: %s, limit: %s", d.Amount.StringFixed(2), d.Limit.StringFixed(2))
	default:
		return errors.Wrapf(exception.ErrInvalidArgument, "intent: %s", d.Intent)
	}
}

// Engine evaluates balance movements against the configured ceilings.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with static limits.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config {
	return e.cfg
}

// Evaluate checks amount against the ceiling for intent and the balance.
// The order of checks is amount sign, ceiling, then funds. Deposits have no
// ceiling.
func (e *Engine) Evaluate(intent Intent, amount, balance decimal.Decimal) Decision {
	decision := Decision{
		Intent:  intent,
		Action:  ActionAllow,
		Reason:  ReasonNone,
		Amount:  amount,
		Balance: balance,
	}

	deny := func(reason Reason) Decision {
		decision.Action = ActionDeny
		decision.Reason = reason
		return decision
	}

	if !amount.IsPositive() {
		return deny(ReasonInvalidAmount)
	}

	switch intent {
	case IntentDeposit:
		return decision
	case IntentWithdrawal:
		decision.Limit = e.cfg.WithdrawalLimit
		if amount.GreaterThan(e.cfg.WithdrawalLimit) {
			return deny(ReasonWithdrawalLimit)
		}
		if amount.GreaterThan(balance) {
			return deny(ReasonInsufficientFunds)
		}
		return decision
	case IntentTransfer:
		decision.Limit = e.cfg.TransferLimit
		if amount.GreaterThan(e.cfg.TransferLimit) {
			return deny(ReasonTransferLimit)
		}
		if amount.GreaterThan(balance) {
			return deny(ReasonInsufficientFunds)
		}
		return decision
	default:
		return deny(ReasonUnknownIntent)
	}
}

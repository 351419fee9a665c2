package bank

import (
	"context"
	"fmt"

	"github.com/n0ct4/secure-bank-final/internal/account"
	"github.com/n0ct4/secure-bank-final/internal/buffer"
	"github.com/n0ct4/secure-bank-final/internal/journal"
	"github.com/n0ct4/secure-bank-final/internal/lock"
	"github.com/n0ct4/secure-bank-final/internal/obs"
	"github.com/n0ct4/secure-bank-final/internal/risk"
	"github.com/n0ct4/secure-bank-final/pkg/exception"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// Audit categories used by the handlers.
const (
	CategoryDeposit    = "Deposit"
	CategoryWithdrawal = "Withdrawal"
	CategoryTransfer   = "Transfer"
	CategoryQuery      = "Balance query"
)

// Deps wires a Service to the shared components.
type Deps struct {
	Table   *account.Table
	Buffer  *buffer.Buffer
	Journal *journal.Journal
	Risk    *risk.Engine
	Locks   *lock.Manager
	Metrics *obs.Metrics
}

// Result is what every handler returns on success.
type Result struct {
	Account      account.Account
	Counterparty account.Account
	Balance      decimal.Decimal
}

// Service implements the four account operations.
type Service struct {
	table   *account.Table
	buf     *buffer.Buffer
	journal *journal.Journal
	risk    *risk.Engine
	locks   *lock.Manager
	metrics *obs.Metrics
}

// New validates deps and installs the buffer as the table's commit
// observer: every committed snapshot is enqueued before the mutation lock
// is released.
func New(deps Deps) (*Service, error) {
	if deps.Table == nil || deps.Buffer == nil || deps.Journal == nil || deps.Risk == nil || deps.Locks == nil {
		return nil, exception.ErrNilInstance
	}
	s := &Service{
		table:   deps.Table,
		buf:     deps.Buffer,
		journal: deps.Journal,
		risk:    deps.Risk,
		locks:   deps.Locks,
		metrics: deps.Metrics,
	}
	deps.Table.OnCommit(s.enqueue)
	return s, nil
}

func (s *Service) enqueue(ctx context.Context, snapshots []account.Account) error {
	entries := make([]buffer.Entry, 0, len(snapshots))
	for _, a := range snapshots {
		entries = append(entries, buffer.Entry{Account: a})
	}
	if err := s.buf.EnqueueBatch(ctx, entries...); err != nil {
		return errors.Wrapf(err, "enqueue %d snapshots", len(entries))
	}
	return nil
}

// Deposit adds amount to the account. Deposits have no ceiling.
func (s *Service) Deposit(ctx context.Context, number int32, amount decimal.Decimal) (Result, error) {
	updated, err := s.table.Mutate(ctx, number, func(a *account.Account) error {
		if d := s.risk.Evaluate(risk.IntentDeposit, amount, a.Balance); !d.Allowed() {
			return d.Err()
		}
		a.Balance = a.Balance.Add(amount)
		a.TransactionCount++
		return nil
	})
	if err != nil {
		return Result{}, s.reject(ctx, obs.OpDeposit, number, CategoryDeposit, amount, err)
	}

	// Log write failures are reported to the audit log by the journal.
	_ = s.journal.Record(logCtx(ctx), number, journal.KindDeposit, amount, updated.Balance)
	_ = s.journal.Audit(logCtx(ctx), number, CategoryDeposit, fmt.Sprintf("deposit of %s completed", amount.StringFixed(2)))
	s.metrics.IncOp(obs.OpDeposit)
	return s.result(updated, account.Account{}), nil
}

// Withdraw removes amount from the account. The withdrawal ceiling is
// checked before the available funds.
func (s *Service) Withdraw(ctx context.Context, number int32, amount decimal.Decimal) (Result, error) {
	updated, err := s.table.Mutate(ctx, number, func(a *account.Account) error {
		if d := s.risk.Evaluate(risk.IntentWithdrawal, amount, a.Balance); !d.Allowed() {
			return d.Err()
		}
		a.Balance = a.Balance.Sub(amount)
		a.TransactionCount++
		return nil
	})
	if err != nil {
		return Result{}, s.reject(ctx, obs.OpWithdrawal, number, CategoryWithdrawal, amount, err)
	}

	_ = s.journal.Record(logCtx(ctx), number, journal.KindWithdrawal, amount, updated.Balance)
	_ = s.journal.Audit(logCtx(ctx), number, CategoryWithdrawal, fmt.Sprintf("withdrawal of %s completed", amount.StringFixed(2)))
	s.metrics.IncOp(obs.OpWithdrawal)
	return s.result(updated, account.Account{}), nil
}

// Transfer moves amount from src to dst under the system-wide transfer
// lock. Only the source transaction count changes.
func (s *Service) Transfer(ctx context.Context, src, dst int32, amount decimal.Decimal) (Result, error) {
	var res Result
	err := s.locks.Do(ctx, lock.Transfer, func() error {
		from, to, err := s.table.MutatePair(ctx, src, dst, func(from, to *account.Account) error {
			if d := s.risk.Evaluate(risk.IntentTransfer, amount, from.Balance); !d.Allowed() {
				return d.Err()
			}
			from.Balance = from.Balance.Sub(amount)
			to.Balance = to.Balance.Add(amount)
			from.TransactionCount++
			return nil
		})
		if err != nil {
			return err
		}

		_ = s.journal.Record(logCtx(ctx), src, journal.KindTransferSent, amount, from.Balance)
		_ = s.journal.Record(logCtx(ctx), dst, journal.KindTransferReceived, amount, to.Balance)
		_ = s.journal.Audit(logCtx(ctx), src, CategoryTransfer, fmt.Sprintf("sent %s to account %d", amount.StringFixed(2), dst))
		_ = s.journal.Audit(logCtx(ctx), dst, CategoryTransfer, fmt.Sprintf("received %s from account %d", amount.StringFixed(2), src))
		res = s.result(from, to)
		return nil
	})
	if err != nil {
		return Result{}, s.reject(ctx, obs.OpTransfer, src, CategoryTransfer, amount, err)
	}
	s.metrics.IncOp(obs.OpTransfer)
	return res, nil
}

// Query returns the live account under the lookup lock.
func (s *Service) Query(ctx context.Context, number int32) (Result, error) {
	a, err := s.table.Lookup(ctx, number)
	if err != nil {
		s.metrics.IncRejected(obs.OpQuery)
		_ = s.journal.Audit(logCtx(ctx), number, CategoryQuery, fmt.Sprintf("rejected: %s", err.Error()))
		return Result{}, err
	}
	_ = s.journal.Audit(logCtx(ctx), number, CategoryQuery, fmt.Sprintf("balance %s", a.Balance.StringFixed(2)))
	s.metrics.IncOp(obs.OpQuery)
	return s.result(a, account.Account{}), nil
}

func (s *Service) reject(ctx context.Context, op obs.Op, number int32, category string, amount decimal.Decimal, err error) error {
	s.metrics.IncRejected(op)
	_ = s.journal.Audit(logCtx(ctx), number, category, fmt.Sprintf("%s of %s rejected: %s", op, amount.StringFixed(2), err.Error()))
	return err
}

// logCtx keeps log writes for a committed or rejected operation alive when
// the caller gives up.
func logCtx(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func (s *Service) result(a, counterparty account.Account) Result {
	return Result{
		Account:      a,
		Counterparty: counterparty,
		Balance:      a.Balance,
	}
}

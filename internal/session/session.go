package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/n0ct4/secure-bank-final/internal/bank"
	"github.com/n0ct4/secure-bank-final/pkg/exception"
	"github.com/shopspring/decimal"
)

// Session is an authenticated handle on one account. Operations on a
// session run one at a time.
type Session struct {
	ID       uuid.UUID
	Number   int32
	Holder   string
	OpenedAt time.Time

	sup    *Supervisor
	mu     sync.Mutex
	closed bool
	ops    int
}

// Info is a read-only view of a session.
type Info struct {
	ID         uuid.UUID
	Number     int32
	Holder     string
	OpenedAt   time.Time
	Operations int
}

func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		ID:         s.ID,
		Number:     s.Number,
		Holder:     s.Holder,
		OpenedAt:   s.OpenedAt,
		Operations: s.ops,
	}
}

func (s *Session) Deposit(ctx context.Context, amount decimal.Decimal) (bank.Result, error) {
	return s.do(func() (bank.Result, error) {
		return s.sup.service.Deposit(ctx, s.Number, amount)
	})
}

func (s *Session) Withdraw(ctx context.Context, amount decimal.Decimal) (bank.Result, error) {
	return s.do(func() (bank.Result, error) {
		return s.sup.service.Withdraw(ctx, s.Number, amount)
	})
}

// Transfer sends amount from the session account to dst.
func (s *Session) Transfer(ctx context.Context, dst int32, amount decimal.Decimal) (bank.Result, error) {
	return s.do(func() (bank.Result, error) {
		return s.sup.service.Transfer(ctx, s.Number, dst, amount)
	})
}

func (s *Session) Query(ctx context.Context) (bank.Result, error) {
	return s.do(func() (bank.Result, error) {
		return s.sup.service.Query(ctx, s.Number)
	})
}

func (s *Session) do(fn func() (bank.Result, error)) (bank.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return bank.Result{}, exception.ErrSessionClosed
	}
	s.ops++
	return fn()
}

// close waits for the in-flight operation, if any.
func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

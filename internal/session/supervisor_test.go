package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/n0ct4/secure-bank-final/internal/account"
	"github.com/n0ct4/secure-bank-final/internal/bank"
	"github.com/n0ct4/secure-bank-final/internal/buffer"
	"github.com/n0ct4/secure-bank-final/internal/journal"
	"github.com/n0ct4/secure-bank-final/internal/lock"
	"github.com/n0ct4/secure-bank-final/internal/obs"
	"github.com/n0ct4/secure-bank-final/internal/risk"
	"github.com/n0ct4/secure-bank-final/pkg/exception"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	sup   *Supervisor
	buf   *buffer.Buffer
	audit string
}

func newFixture(t *testing.T, maxSessions, bufferSize int) fixture {
	t.Helper()
	dir := t.TempDir()
	metrics := obs.NewMetrics()
	locks := lock.NewManager(metrics)

	file := account.NewRecordFile(filepath.Join(dir, "cuentas.dat"))
	require.NoError(t, file.WriteAll([]account.Account{
		{Number: 1000, Holder: "David Sanez", Balance: decimal.NewFromInt(5000), PIN: 1234},
		{Number: 1001, Holder: "Miguel Ramirez", Balance: decimal.NewFromInt(5000), PIN: 9876},
		{Number: 1003, Holder: "Valeria Torres", Balance: decimal.NewFromInt(5000), PIN: 8776, Locked: true},
	}))
	table, _, err := account.Load(file, locks, 0)
	require.NoError(t, err)

	cfg := journal.Config{
		TransactionPath: filepath.Join(dir, "transacciones.log"),
		AuditPath:       filepath.Join(dir, "application.log"),
		PersonalDir:     filepath.Join(dir, "transactions"),
	}
	j, err := journal.New(cfg, locks, metrics)
	require.NoError(t, err)
	require.NoError(t, j.EnsurePersonalDir())

	buf := buffer.New(bufferSize, metrics)
	svc, err := bank.New(bank.Deps{
		Table:   table,
		Buffer:  buf,
		Journal: j,
		Risk:    risk.NewEngine(risk.Config{WithdrawalLimit: decimal.NewFromInt(3000), TransferLimit: decimal.NewFromInt(500)}),
		Locks:   locks,
		Metrics: metrics,
	})
	require.NoError(t, err)

	sup, err := NewSupervisor(Config{MaxSessions: maxSessions}, svc, table, j, metrics)
	require.NoError(t, err)
	return fixture{sup: sup, buf: buf, audit: cfg.AuditPath}
}

func TestSupervisorOpenAndOperate(t *testing.T) {
	f := newFixture(t, 2, 10)

	sess, err := f.sup.Open(t.Context(), 1000, 1234)
	require.NoError(t, err)
	assert.Equal(t, "David Sanez", sess.Holder)
	assert.Equal(t, 1, f.sup.Active())

	res, err := sess.Deposit(t.Context(), decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "5100.00", res.Balance.StringFixed(2))

	res, err = sess.Withdraw(t.Context(), decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, "5050.00", res.Balance.StringFixed(2))

	res, err = sess.Transfer(t.Context(), 1001, decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.Equal(t, "5000.00", res.Balance.StringFixed(2))
	assert.Equal(t, "5050.00", res.Counterparty.Balance.StringFixed(2))

	res, err = sess.Query(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int32(3), res.Account.TransactionCount)
	assert.Equal(t, 4, sess.Info().Operations)
}

func TestSupervisorLoginFailures(t *testing.T) {
	f := newFixture(t, 1, 10)

	_, err := f.sup.Open(t.Context(), 1000, 1)
	require.ErrorIs(t, err, exception.ErrAuthFailed)
	_, err = f.sup.Open(t.Context(), 4242, 1234)
	require.ErrorIs(t, err, exception.ErrAuthFailed)
	_, err = f.sup.Open(t.Context(), 1003, 8776)
	require.ErrorIs(t, err, exception.ErrAccountLocked)
	assert.Equal(t, 0, f.sup.Active())

	_, err = f.sup.Open(t.Context(), 1000, 1234)
	require.NoError(t, err, "failed logins must release their slot")

	audit, err := os.ReadFile(f.audit)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(audit), "login failed"))
}

func TestSupervisorLoginAttemptCap(t *testing.T) {
	f := newFixture(t, 2, 10)
	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.Local)
	f.sup.WithClock(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		_, err := f.sup.Open(t.Context(), 1000, 1)
		require.ErrorIs(t, err, exception.ErrAuthFailed)
	}

	_, err := f.sup.Open(t.Context(), 1000, 1234)
	require.ErrorIs(t, err, exception.ErrLoginBlocked)
	assert.Equal(t, 0, f.sup.Active())

	_, err = f.sup.Open(t.Context(), 1001, 9876)
	require.NoError(t, err, "other accounts are not blocked")

	now = now.Add(time.Minute)
	_, err = f.sup.Open(t.Context(), 1000, 1234)
	require.NoError(t, err)

	audit, err := os.ReadFile(f.audit)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(audit), "| Description: too many login attempts"))
	assert.Equal(t, 1, strings.Count(string(audit), "login refused: too many login attempts"))
}

func TestSupervisorSuccessfulLoginResetsAttempts(t *testing.T) {
	f := newFixture(t, 2, 10)

	for i := 0; i < 2; i++ {
		_, err := f.sup.Open(t.Context(), 1000, 1)
		require.ErrorIs(t, err, exception.ErrAuthFailed)
	}
	sess, err := f.sup.Open(t.Context(), 1000, 1234)
	require.NoError(t, err)
	require.NoError(t, f.sup.Close(t.Context(), sess.ID))

	for i := 0; i < 2; i++ {
		_, err := f.sup.Open(t.Context(), 1000, 1)
		require.ErrorIs(t, err, exception.ErrAuthFailed)
	}
	_, err = f.sup.Open(t.Context(), 1000, 1234)
	require.NoError(t, err)
}

func TestSupervisorSessionLimit(t *testing.T) {
	f := newFixture(t, 2, 10)

	first, err := f.sup.Open(t.Context(), 1000, 1234)
	require.NoError(t, err)
	_, err = f.sup.Open(t.Context(), 1001, 9876)
	require.NoError(t, err)
	_, err = f.sup.Open(t.Context(), 1000, 1234)
	require.ErrorIs(t, err, exception.ErrSessionLimit)

	require.NoError(t, f.sup.Close(t.Context(), first.ID))
	_, err = first.Query(t.Context())
	require.ErrorIs(t, err, exception.ErrSessionClosed)
	require.ErrorIs(t, f.sup.Close(t.Context(), first.ID), exception.ErrSessionNotFound)

	_, err = f.sup.Open(t.Context(), 1000, 1234)
	require.NoError(t, err)
	assert.Equal(t, 2, f.sup.Active())
	assert.Len(t, f.sup.Sessions(), 2)
}

func TestSupervisorGetByPrefix(t *testing.T) {
	f := newFixture(t, 2, 10)
	sess, err := f.sup.Open(t.Context(), 1000, 1234)
	require.NoError(t, err)

	got, err := f.sup.Get(sess.ID.String())
	require.NoError(t, err)
	assert.Same(t, sess, got)

	got, err = f.sup.Get(sess.ID.String()[:8])
	require.NoError(t, err)
	assert.Same(t, sess, got)

	_, err = f.sup.Get(sess.ID.String()[:2])
	require.ErrorIs(t, err, exception.ErrSessionNotFound)
	_, err = f.sup.Get("ffffffff-ffff-ffff-ffff-ffffffffffff")
	require.ErrorIs(t, err, exception.ErrSessionNotFound)
}

func TestSupervisorShutdownWaitsForInFlight(t *testing.T) {
	f := newFixture(t, 2, 1)
	sess, err := f.sup.Open(t.Context(), 1000, 1234)
	require.NoError(t, err)

	_, err = sess.Deposit(t.Context(), decimal.NewFromInt(1))
	require.NoError(t, err)

	blocked := make(chan error, 1)
	go func() {
		_, err := sess.Deposit(t.Context(), decimal.NewFromInt(2))
		blocked <- err
	}()
	time.Sleep(20 * time.Millisecond)

	shutdown := make(chan error, 1)
	go func() { shutdown <- f.sup.Shutdown(t.Context()) }()

	select {
	case <-shutdown:
		t.Fatal("shutdown returned while an operation was in flight")
	case <-time.After(30 * time.Millisecond):
	}

	_, err = f.buf.Dequeue(t.Context())
	require.NoError(t, err)
	require.NoError(t, <-blocked)
	require.NoError(t, <-shutdown)

	assert.Equal(t, 0, f.sup.Active())
	_, err = f.sup.Open(t.Context(), 1000, 1234)
	require.ErrorIs(t, err, exception.ErrSupervisorDown)
}

func TestSupervisorShutdownHonorsContext(t *testing.T) {
	f := newFixture(t, 1, 1)
	sess, err := f.sup.Open(t.Context(), 1000, 1234)
	require.NoError(t, err)
	_, err = sess.Deposit(t.Context(), decimal.NewFromInt(1))
	require.NoError(t, err)

	opCtx, cancelOp := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		_, err := sess.Deposit(opCtx, decimal.NewFromInt(1))
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, f.sup.Shutdown(ctx), context.DeadlineExceeded)

	cancelOp()
	require.ErrorIs(t, <-done, context.Canceled)
	require.Eventually(t, func() bool { return f.sup.Active() == 0 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
}

func TestNewSupervisorValidates(t *testing.T) {
	_, err := NewSupervisor(Config{MaxSessions: 0}, nil, nil, nil, nil)
	require.Error(t, err)
	_, err = NewSupervisor(Config{MaxSessions: 1, MaxLoginAttempts: -1}, nil, nil, nil, nil)
	require.Error(t, err)
	_, err = NewSupervisor(Config{MaxSessions: 1}, nil, nil, nil, nil)
	require.ErrorIs(t, err, exception.ErrNilInstance)
}

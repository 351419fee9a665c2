package monitor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/n0ct4/secure-bank-final/internal/journal"
	"github.com/n0ct4/secure-bank-final/internal/lock"
	"github.com/n0ct4/secure-bank-final/internal/obs"
	"github.com/n0ct4/secure-bank-final/pkg/exception"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendTx(t *testing.T, path string, ops ...op) {
	t.Helper()
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	defer file.Close()
	for _, o := range ops {
		line := journal.FormatTransaction("2025-05-01 10:00:00", o.number, o.kind, decimal.NewFromInt(10), decimal.NewFromInt(100))
		_, err := file.WriteString(line)
		require.NoError(t, err)
	}
}

type env struct {
	dir     string
	txPath  string
	audit   string
	journal *journal.Journal
	metrics *obs.Metrics
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	metrics := obs.NewMetrics()
	cfg := journal.Config{
		TransactionPath: filepath.Join(dir, "transacciones.log"),
		AuditPath:       filepath.Join(dir, "application.log"),
		PersonalDir:     filepath.Join(dir, "transactions"),
	}
	j, err := journal.New(cfg, lock.NewManager(nil), metrics)
	require.NoError(t, err)
	return env{dir: dir, txPath: cfg.TransactionPath, audit: cfg.AuditPath, journal: j, metrics: metrics}
}

func (e env) monitor(t *testing.T, mode Mode, out *bytes.Buffer) *Monitor {
	t.Helper()
	m, err := New(Config{
		TransactionPath:     e.txPath,
		Mode:                mode,
		OffsetDB:            filepath.Join(e.dir, "monitor.db"),
		WithdrawalThreshold: 3,
		TransferThreshold:   3,
	}, e.journal, out, e.metrics)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestScanOnceRescanAlertsOnce(t *testing.T) {
	e := newEnv(t)
	var out bytes.Buffer
	m := e.monitor(t, ModeRescan, &out)

	alerts, err := m.ScanOnce(t.Context())
	require.NoError(t, err)
	assert.Empty(t, alerts)

	appendTx(t, e.txPath, repeat(op{1000, journal.KindWithdrawal}, 3)...)
	alerts, err = m.ScanOnce(t.Context())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "ALERT: account 1000 made 3 consecutive withdrawals\n", out.String())

	alerts, err = m.ScanOnce(t.Context())
	require.NoError(t, err)
	assert.Empty(t, alerts)

	assert.Equal(t, uint64(1), e.metrics.Snapshot().Alerts)
	audit, err := os.ReadFile(e.audit)
	require.NoError(t, err)
	assert.Contains(t, string(audit), "| Account: 1000 | Operation: Monitor | Description: withdrawals anomaly alert")
}

func TestScanOnceRescanRereadsWholeLog(t *testing.T) {
	e := newEnv(t)
	m := e.monitor(t, ModeRescan, &bytes.Buffer{})

	appendTx(t, e.txPath, repeat(op{1000, journal.KindWithdrawal}, 2)...)
	alerts, err := m.ScanOnce(t.Context())
	require.NoError(t, err)
	assert.Empty(t, alerts)

	appendTx(t, e.txPath, op{1000, journal.KindWithdrawal})
	alerts, err = m.ScanOnce(t.Context())
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
	assert.Zero(t, m.Offset())
}

func TestScanOnceTailCarriesStateAndOffset(t *testing.T) {
	e := newEnv(t)
	m := e.monitor(t, ModeTail, &bytes.Buffer{})

	appendTx(t, e.txPath, transfer(1000, 1001)...)
	appendTx(t, e.txPath, transfer(1000, 1001)...)
	alerts, err := m.ScanOnce(t.Context())
	require.NoError(t, err)
	assert.Empty(t, alerts)
	info, err := os.Stat(e.txPath)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), m.Offset())

	appendTx(t, e.txPath, transfer(1000, 1001)...)
	alerts, err = m.ScanOnce(t.Context())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, RuleTransfers, alerts[0].Rule)
	offset := m.Offset()
	require.NoError(t, m.Close())

	restarted := e.monitor(t, ModeTail, &bytes.Buffer{})
	assert.Equal(t, offset, restarted.Offset())
	alerts, err = restarted.ScanOnce(t.Context())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestScanOnceTailSkipsPartialLine(t *testing.T) {
	e := newEnv(t)
	m := e.monitor(t, ModeTail, &bytes.Buffer{})

	appendTx(t, e.txPath, op{1000, journal.KindDeposit})
	full, err := os.Stat(e.txPath)
	require.NoError(t, err)

	file, err := os.OpenFile(e.txPath, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = file.WriteString("[2025-05-01 10:00:00] Account: 10")
	require.NoError(t, err)
	require.NoError(t, file.Close())

	_, err = m.ScanOnce(t.Context())
	require.NoError(t, err)
	assert.Equal(t, full.Size(), m.Offset())
}

func TestScanOnceTailTruncatedLog(t *testing.T) {
	e := newEnv(t)
	m := e.monitor(t, ModeTail, &bytes.Buffer{})

	appendTx(t, e.txPath, repeat(op{1000, journal.KindDeposit}, 5)...)
	_, err := m.ScanOnce(t.Context())
	require.NoError(t, err)
	require.Positive(t, m.Offset())

	require.NoError(t, os.Truncate(e.txPath, 0))
	appendTx(t, e.txPath, repeat(op{2000, journal.KindWithdrawal}, 3)...)
	alerts, err := m.ScanOnce(t.Context())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, int32(2000), alerts[0].Number)
}

func TestScanOnceMissingLog(t *testing.T) {
	e := newEnv(t)
	m := e.monitor(t, ModeRescan, &bytes.Buffer{})
	alerts, err := m.ScanOnce(t.Context())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

type stepClock struct {
	cancel context.CancelFunc
	sleeps int
}

func (c *stepClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps++
	if c.sleeps >= 2 {
		c.cancel()
		return ctx.Err()
	}
	return nil
}

func TestRunPollsUntilCancelled(t *testing.T) {
	e := newEnv(t)
	var out bytes.Buffer
	m := e.monitor(t, ModeRescan, &out)
	appendTx(t, e.txPath, repeat(op{1000, journal.KindWithdrawal}, 3)...)

	ctx, cancel := context.WithCancel(t.Context())
	clock := &stepClock{cancel: cancel}
	require.NoError(t, m.WithClock(clock).Run(ctx))

	assert.Equal(t, 2, clock.sleeps)
	assert.Equal(t, 1, strings.Count(out.String(), "ALERT"))
	assert.Equal(t, []int32{1000}, m.Alerted().Accounts())

	audit, err := os.ReadFile(e.audit)
	require.NoError(t, err)
	assert.Contains(t, string(audit), "| Operation: Monitor | Description: active in rescan mode")
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{TransactionPath: "tx.log"}.withDefaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ModeRescan, cfg.Mode)
	assert.Equal(t, 4*time.Second, cfg.Interval)

	tail := Config{TransactionPath: "tx.log", Mode: ModeTail}.withDefaults()
	assert.Equal(t, "monitor.db", tail.OffsetDB)

	_, err := New(Config{TransactionPath: "tx.log", Mode: "sideways"}, nil, nil, nil)
	require.ErrorIs(t, err, exception.ErrUnknownScanMode)
	_, err = New(Config{}, nil, nil, nil)
	require.Error(t, err)
}

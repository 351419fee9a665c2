package monitor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/n0ct4/secure-bank-final/internal/journal"
	"github.com/n0ct4/secure-bank-final/internal/obs"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const auditCategory = "Monitor"

// Clock allows deterministic polling in tests.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Monitor polls the transaction log and raises anomaly alerts.
type Monitor struct {
	cfg      Config
	journal  *journal.Journal
	out      io.Writer
	metrics  *obs.Metrics
	clock    Clock
	alerted  *AlertedSet
	detector *Detector

	offsets *OffsetStore
	offset  int64
}

// New validates cfg and, in tail mode, restores the saved read offset.
// journal and metrics may be nil; out defaults to stdout.
func New(cfg Config, j *journal.Journal, out io.Writer, metrics *obs.Metrics) (*Monitor, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if out == nil {
		out = os.Stdout
	}
	alerted := NewAlertedSet()
	m := &Monitor{
		cfg:      cfg,
		journal:  j,
		out:      out,
		metrics:  metrics,
		clock:    realClock{},
		alerted:  alerted,
		detector: NewDetector(cfg.WithdrawalThreshold, cfg.TransferThreshold, alerted),
	}
	if cfg.Mode == ModeTail {
		store, err := OpenOffsetStore(cfg.OffsetDB)
		if err != nil {
			return nil, err
		}
		offset, err := store.Load(cfg.TransactionPath)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		m.offsets, m.offset = store, offset
	}
	return m, nil
}

// WithClock swaps the clock implementation.
func (m *Monitor) WithClock(clock Clock) *Monitor {
	if clock != nil {
		m.clock = clock
	}
	return m
}

func (m *Monitor) Alerted() *AlertedSet {
	return m.alerted
}

func (m *Monitor) Offset() int64 {
	return m.offset
}

// Close releases the offset store.
func (m *Monitor) Close() error {
	if m.offsets == nil {
		return nil
	}
	return m.offsets.Close()
}

// Run scans, sleeps for the configured interval and repeats until ctx is
// done.
func (m *Monitor) Run(ctx context.Context) error {
	m.audit(ctx, 0, fmt.Sprintf("active in %s mode, watching %s", m.cfg.Mode, m.cfg.TransactionPath))
	for {
		if _, err := m.ScanOnce(ctx); err != nil {
			logs.Errorf("monitor scan %s, err: %+v", m.cfg.TransactionPath, err)
		}
		if err := m.clock.Sleep(ctx, m.cfg.Interval); err != nil {
			return nil
		}
	}
}

// ScanOnce performs one pass over the transaction log. Only newline
// terminated lines are consumed.
func (m *Monitor) ScanOnce(ctx context.Context) ([]Alert, error) {
	file, err := os.Open(m.cfg.TransactionPath)
	if err != nil {
		if os.IsNotExist(err) {
			logs.Warnf("monitor: transaction log %s not found yet", m.cfg.TransactionPath)
			return nil, nil
		}
		return nil, errors.Wrapf(err, "open %s", m.cfg.TransactionPath)
	}
	defer file.Close()

	var start int64
	switch m.cfg.Mode {
	case ModeTail:
		info, err := file.Stat()
		if err != nil {
			return nil, errors.Wrapf(err, "stat %s", m.cfg.TransactionPath)
		}
		if info.Size() < m.offset {
			logs.Warnf("monitor: %s shrank below offset %d, restarting from 0", m.cfg.TransactionPath, m.offset)
			m.offset = 0
			m.detector.Reset()
		}
		start = m.offset
	default:
		m.detector.Reset()
	}
	if _, err := file.Seek(start, io.SeekStart); err != nil {
		return nil, errors.Wrapf(err, "seek %s", m.cfg.TransactionPath)
	}

	var (
		alerts   []Alert
		consumed int64
		reader   = bufio.NewReader(file)
	)
	for {
		if err := ctx.Err(); err != nil {
			break
		}
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return alerts, errors.Wrapf(err, "read %s", m.cfg.TransactionPath)
		}
		consumed += int64(len(line))
		rec, ok := journal.ParseTransactionLine(line)
		if !ok {
			continue
		}
		for _, alert := range m.detector.Observe(rec.Number, rec.Kind) {
			m.emit(ctx, alert)
			alerts = append(alerts, alert)
		}
	}

	if m.cfg.Mode == ModeTail && consumed > 0 {
		m.offset = start + consumed
		if err := m.offsets.Save(m.cfg.TransactionPath, m.offset); err != nil {
			return alerts, err
		}
	}
	return alerts, nil
}

func (m *Monitor) emit(ctx context.Context, alert Alert) {
	fmt.Fprintln(m.out, alert.String())
	m.metrics.IncAlert()
	m.audit(ctx, alert.Number, fmt.Sprintf("%s anomaly alert", alert.Rule))
}

func (m *Monitor) audit(ctx context.Context, number int32, description string) {
	if m.journal == nil {
		return
	}
	_ = m.journal.Audit(ctx, number, auditCategory, description)
}

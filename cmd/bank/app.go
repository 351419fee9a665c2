package main

import (
	"context"
	"fmt"
	"io"

	"github.com/n0ct4/secure-bank-final/internal/account"
	"github.com/n0ct4/secure-bank-final/internal/bank"
	"github.com/n0ct4/secure-bank-final/internal/buffer"
	"github.com/n0ct4/secure-bank-final/internal/journal"
	"github.com/n0ct4/secure-bank-final/internal/lock"
	"github.com/n0ct4/secure-bank-final/internal/monitor"
	"github.com/n0ct4/secure-bank-final/internal/obs"
	"github.com/n0ct4/secure-bank-final/internal/ops"
	"github.com/n0ct4/secure-bank-final/internal/risk"
	"github.com/n0ct4/secure-bank-final/internal/session"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const persistCategory = "Persist"

// app holds every long-lived component of a running bank.
type app struct {
	cfg     ops.Config
	metrics *obs.Metrics
	locks   *lock.Manager
	journal *journal.Journal
	file    *account.RecordFile
	table   *account.Table
	buf     *buffer.Buffer
	drainer *buffer.Drainer
	service *bank.Service
	sup     *session.Supervisor

	monitor       *monitor.Monitor
	monitorCancel context.CancelFunc
	monitorDone   chan error
}

// newApp wires the components and starts the drainer. Any error here is a
// fatal startup error.
func newApp(ctx context.Context, cfg ops.Config) (*app, error) {
	metrics := obs.NewMetrics()
	locks := lock.NewManager(metrics)

	j, err := journal.New(cfg.Journal(), locks, metrics)
	if err != nil {
		return nil, err
	}
	if err := j.EnsurePersonalDir(); err != nil {
		return nil, err
	}

	file := account.NewRecordFile(cfg.AccountFile)
	table, report, err := account.Load(file, locks, cfg.AccountCapacity)
	if err != nil {
		return nil, errors.Wrapf(err, "load accounts from %s", cfg.AccountFile)
	}
	logs.Infof("loaded %d accounts from %s (invalid: %d, duplicates: %d, overflow: %d)",
		report.Loaded, cfg.AccountFile, report.Invalid, report.Duplicates, report.Overflow)

	buf := buffer.New(cfg.BufferSize, metrics)
	service, err := bank.New(bank.Deps{
		Table:   table,
		Buffer:  buf,
		Journal: j,
		Risk:    risk.NewEngine(cfg.Risk()),
		Locks:   locks,
		Metrics: metrics,
	})
	if err != nil {
		return nil, err
	}
	sup, err := session.NewSupervisor(cfg.Session(), service, table, j, metrics)
	if err != nil {
		return nil, err
	}

	drainer := buffer.NewDrainer(buf, file, func(e buffer.Entry, err error) {
		logs.Errorf("persist account %d, err: %+v", e.Account.Number, err)
		_ = j.Audit(context.WithoutCancel(ctx), e.Account.Number, persistCategory,
			fmt.Sprintf("could not persist account snapshot: %s", err.Error()))
	}, metrics)
	if err := drainer.Start(ctx); err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		metrics: metrics,
		locks:   locks,
		journal: j,
		file:    file,
		table:   table,
		buf:     buf,
		drainer: drainer,
		service: service,
		sup:     sup,
	}, nil
}

// startMonitor embeds the anomaly monitor, printing alerts to out.
func (a *app) startMonitor(ctx context.Context, out io.Writer) error {
	m, err := monitor.New(a.cfg.Monitor(), a.journal, out, a.metrics)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	a.monitor = m
	a.monitorCancel = cancel
	a.monitorDone = make(chan error, 1)
	go func() {
		a.monitorDone <- m.Run(ctx)
	}()
	return nil
}

// shutdown closes the sessions, stops the drainer and persists whatever is
// still buffered. It returns the first error met.
func (a *app) shutdown(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	keep(a.sup.Shutdown(ctx))
	// Mutations still in flight after a timed-out Shutdown fail to enqueue
	// and stay unpublished, so one Drain covers every accepted snapshot.
	a.buf.Close()
	a.drainer.Stop()

	persisted, err := a.buf.Drain(a.file)
	if err != nil {
		logs.Errorf("drain buffer, err: %+v", err)
	}
	keep(err)
	logs.Infof("shutdown drain persisted %d snapshots", persisted)

	if a.monitorCancel != nil {
		a.monitorCancel()
		keep(<-a.monitorDone)
		keep(a.monitor.Close())
	}

	a.locks.Close()
	logSnapshot(a.metrics.Snapshot())
	return firstErr
}

func logSnapshot(s obs.Snapshot) {
	for op, n := range s.Ops {
		logs.Infof("metrics: op %s ok %d rejected %d", op, n, s.Rejections[op])
	}
	logs.Infof("metrics: buffer enqueued %d persisted %d failures %d, journal failures %d, alerts %d",
		s.BufferEnqueued, s.BufferPersisted, s.PersistFailures, s.JournalFailures, s.Alerts)
	logs.Infof("metrics: persist latency count %d avg %s max %s",
		s.PersistLatency.Count, s.PersistLatency.Avg, s.PersistLatency.Max)
}

package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/n0ct4/secure-bank-final/internal/lock"
	"github.com/n0ct4/secure-bank-final/internal/obs"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const timeLayout = "2006-01-02 15:04:05"

// Kind is the operation column of the transaction and personal logs.
type Kind string

const (
	KindDeposit          Kind = "Deposit"
	KindWithdrawal       Kind = "Withdrawal"
	KindTransferSent     Kind = "Transfer sent"
	KindTransferReceived Kind = "Transfer received"
)

// Journal appends to the transaction, audit and personal logs. Each family
// is serialized by its own named lock and every write opens, appends and
// closes the file.
type Journal struct {
	cfg     Config
	locks   *lock.Manager
	metrics *obs.Metrics
	now     func() time.Time
}

// New validates cfg and binds the journal to the lock set.
func New(cfg Config, locks *lock.Manager, metrics *obs.Metrics) (*Journal, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Journal{
		cfg:     cfg,
		locks:   locks,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// WithClock swaps the timestamp source.
func (j *Journal) WithClock(now func() time.Time) *Journal {
	if now != nil {
		j.now = now
	}
	return j
}

func (j *Journal) Config() Config {
	return j.cfg
}

// EnsurePersonalDir creates the personal log directory.
func (j *Journal) EnsurePersonalDir() error {
	if err := os.MkdirAll(j.cfg.PersonalDir, 0o700); err != nil {
		return errors.Wrapf(err, "create personal log dir %s", j.cfg.PersonalDir)
	}
	return nil
}

// PersonalPath returns the personal log file of an account.
func (j *Journal) PersonalPath(number int32) string {
	return filepath.Join(j.cfg.PersonalDir, fmt.Sprintf("transactions_%d.log", number))
}

func (j *Journal) stamp() string {
	return j.now().Format(timeLayout)
}

// Transaction appends one line to the shared transaction log. A write
// failure is reported to the audit log and returned.
func (j *Journal) Transaction(ctx context.Context, number int32, kind Kind, amount, balance decimal.Decimal) error {
	line := FormatTransaction(j.stamp(), number, kind, amount, balance)
	err := j.locks.Do(ctx, lock.TransactionLog, func() error {
		return appendLine(j.cfg.TransactionPath, line, 0o644)
	})
	if err != nil {
		j.reportFailure(ctx, number, "transaction log", err)
	}
	return err
}

// Personal appends one line to the account's own log.
func (j *Journal) Personal(ctx context.Context, number int32, kind Kind, amount, balance decimal.Decimal) error {
	line := FormatTransaction(j.stamp(), number, kind, amount, balance)
	path := j.PersonalPath(number)
	err := j.locks.Do(ctx, lock.PersonalLog, func() error {
		return appendLine(path, line, 0o600)
	})
	if err != nil {
		j.reportFailure(ctx, number, "personal log", err)
	}
	return err
}

// Record writes the same movement to the transaction and personal logs.
func (j *Journal) Record(ctx context.Context, number int32, kind Kind, amount, balance decimal.Decimal) error {
	errTx := j.Transaction(ctx, number, kind, amount, balance)
	errPersonal := j.Personal(ctx, number, kind, amount, balance)
	if errTx != nil {
		return errTx
	}
	return errPersonal
}

// Audit appends one event to the audit log. A zero number marks a
// process-level event. Failures are best effort: they go to the process
// logger only.
func (j *Journal) Audit(ctx context.Context, number int32, category, description string) error {
	line := FormatAudit(j.stamp(), number, category, description)
	err := j.locks.Do(ctx, lock.AuditLog, func() error {
		return appendLine(j.cfg.AuditPath, line, 0o644)
	})
	if err != nil {
		j.metrics.IncJournalFailure()
		logs.Errorf("write audit log %s, err: %+v", j.cfg.AuditPath, err)
	}
	return err
}

func (j *Journal) reportFailure(ctx context.Context, number int32, family string, err error) {
	j.metrics.IncJournalFailure()
	_ = j.Audit(ctx, number, "Error", fmt.Sprintf("could not write %s: %s", family, err.Error()))
}

// FormatTransaction renders a transaction or personal log line.
func FormatTransaction(stamp string, number int32, kind Kind, amount, balance decimal.Decimal) string {
	return fmt.Sprintf("[%s] Account: %d | Operation: %s | Amount: %s | Final balance: %s\n",
		stamp, number, kind, amount.StringFixed(2), balance.StringFixed(2))
}

// FormatAudit renders an audit log line.
func FormatAudit(stamp string, number int32, category, description string) string {
	if number == 0 {
		return fmt.Sprintf("[%s] | Operation: %s | Description: %s\n", stamp, category, description)
	}
	return fmt.Sprintf("[%s] | Account: %d | Operation: %s | Description: %s\n", stamp, number, category, description)
}

func appendLine(path, line string, perm os.FileMode) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, perm)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	if _, err := file.WriteString(line); err != nil {
		_ = file.Close()
		return errors.Wrapf(err, "append %s", path)
	}
	return file.Close()
}

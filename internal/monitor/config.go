package monitor

import (
	"fmt"
	"time"

	"github.com/n0ct4/secure-bank-final/pkg/exception"
	"github.com/yanun0323/errors"
)

// Mode selects how each pass reads the transaction log.
type Mode string

const (
	// ModeRescan reads the whole log every pass with a fresh window and
	// fresh counters.
	ModeRescan Mode = "rescan"
	// ModeTail reads only what was appended since the last pass and keeps
	// the window and counters. The read offset survives restarts.
	ModeTail Mode = "tail"
)

const (
	defaultInterval = 4 * time.Second
	defaultOffsetDB = "monitor.db"
)

// Config controls the anomaly monitor.
type Config struct {
	TransactionPath     string
	Interval            time.Duration
	Mode                Mode
	OffsetDB            string
	WithdrawalThreshold int
	TransferThreshold   int
}

func (c Config) withDefaults() Config {
	if c.Interval == 0 {
		c.Interval = defaultInterval
	}
	if c.Mode == "" {
		c.Mode = ModeRescan
	}
	if c.Mode == ModeTail && c.OffsetDB == "" {
		c.OffsetDB = defaultOffsetDB
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.TransactionPath == "" {
		return fmt.Errorf("invalid monitor config: TransactionPath is empty")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("invalid monitor config: Interval must be > 0")
	}
	switch c.Mode {
	case ModeRescan:
	case ModeTail:
		if c.OffsetDB == "" {
			return fmt.Errorf("invalid monitor config: OffsetDB is empty")
		}
	default:
		return errors.Wrapf(exception.ErrUnknownScanMode, "mode: %s", c.Mode)
	}
	return nil
}

package ops

import (
	"bufio"
	"io"
	"os"
	"strings"
	"time"

	"github.com/n0ct4/secure-bank-final/internal/journal"
	"github.com/n0ct4/secure-bank-final/internal/monitor"
	"github.com/n0ct4/secure-bank-final/internal/risk"
	"github.com/n0ct4/secure-bank-final/internal/session"
	"github.com/n0ct4/secure-bank-final/pkg/exception"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/yanun0323/errors"
)

// EnvPrefix prefixes environment overrides, e.g. BANK_MAX_SESSIONS.
const EnvPrefix = "BANK"

// Canonical keys. Each may also be written with its alias.
const (
	KeyWithdrawalLimit     = "WITHDRAWAL_LIMIT"
	KeyTransferLimit       = "TRANSFER_LIMIT"
	KeyWithdrawalThreshold = "WITHDRAWAL_THRESHOLD"
	KeyTransferThreshold   = "TRANSFER_THRESHOLD"
	KeyMaxSessions         = "MAX_SESSIONS"
	KeyAccountFile         = "ACCOUNT_FILE"
	KeyTransactionLog      = "TRANSACTION_LOG"
	KeyAuditLog            = "AUDIT_LOG"
	KeyPersonalLogDir      = "PERSONAL_LOG_DIR"
	KeyBufferSize          = "BUFFER_SIZE"
	KeyAccountCapacity     = "ACCOUNT_CAPACITY"
	KeyMonitorInterval     = "MONITOR_INTERVAL"
	KeyMonitorMode         = "MONITOR_MODE"
	KeyMonitorOffsetDB     = "MONITOR_OFFSET_DB"
	KeyLoginAttempts       = "LOGIN_ATTEMPTS"
	KeyLoginCooldown       = "LOGIN_COOLDOWN"
)

var aliases = map[string]string{
	"LIMITE_RETIRO":         KeyWithdrawalLimit,
	"LIMITE_TRANSFERENCIA":  KeyTransferLimit,
	"UMBRAL_RETIROS":        KeyWithdrawalThreshold,
	"UMBRAL_TRANSFERENCIAS": KeyTransferThreshold,
	"NUM_HILOS":             KeyMaxSessions,
	"ARCHIVO_CUENTAS":       KeyAccountFile,
	"ARCHIVO_LOG":           KeyTransactionLog,
}

var known = map[string]struct{}{
	KeyWithdrawalLimit:     {},
	KeyTransferLimit:       {},
	KeyWithdrawalThreshold: {},
	KeyTransferThreshold:   {},
	KeyMaxSessions:         {},
	KeyAccountFile:         {},
	KeyTransactionLog:      {},
	KeyAuditLog:            {},
	KeyPersonalLogDir:      {},
	KeyBufferSize:          {},
	KeyAccountCapacity:     {},
	KeyMonitorInterval:     {},
	KeyMonitorMode:         {},
	KeyMonitorOffsetDB:     {},
	KeyLoginAttempts:       {},
	KeyLoginCooldown:       {},
}

const (
	defaultAccountFile     = "cuentas.dat"
	defaultTransactionLog  = "transacciones.log"
	defaultAuditLog        = "application.log"
	defaultPersonalLogDir  = "transactions"
	defaultBufferSize      = 10
	defaultAccountCapacity = 100
	defaultMonitorInterval = 4 * time.Second
	defaultMonitorOffsetDB = "monitor.db"
)

// Config is the resolved runtime configuration.
type Config struct {
	WithdrawalLimit     decimal.Decimal
	TransferLimit       decimal.Decimal
	WithdrawalThreshold int
	TransferThreshold   int
	MaxSessions         int

	AccountFile    string
	TransactionLog string
	AuditLog       string
	PersonalLogDir string

	BufferSize      int
	AccountCapacity int

	MonitorInterval time.Duration
	MonitorMode     monitor.Mode
	MonitorOffsetDB string

	LoginAttempts int
	LoginCooldown time.Duration
}

// Load reads a KEY=VALUE file, applies BANK_* environment overrides and
// defaults, and validates the result.
func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "open config %s", path)
	}
	defer file.Close()

	cfg, err := Parse(file)
	if err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse reads KEY=VALUE lines. Blank lines and lines starting with '#' are
// skipped; unknown keys and malformed lines are ignored. Numeric values that
// do not parse count as missing, and missing numeric keys are zero.
func Parse(r io.Reader) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, value, ok := parseLine(sc.Text())
		if !ok {
			continue
		}
		v.SetDefault(key, value)
	}
	if err := sc.Err(); err != nil {
		return Config{}, err
	}
	return resolve(v).withDefaults(), nil
}

func parseLine(line string) (string, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", "", false
	}
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	key = strings.ToUpper(strings.TrimSpace(key))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	if _, ok := known[key]; !ok {
		return "", "", false
	}
	return key, strings.TrimSpace(value), true
}

func resolve(v *viper.Viper) Config {
	return Config{
		WithdrawalLimit:     decimalOf(v, KeyWithdrawalLimit),
		TransferLimit:       decimalOf(v, KeyTransferLimit),
		WithdrawalThreshold: intOf(v, KeyWithdrawalThreshold),
		TransferThreshold:   intOf(v, KeyTransferThreshold),
		MaxSessions:         intOf(v, KeyMaxSessions),
		AccountFile:         stringOf(v, KeyAccountFile),
		TransactionLog:      stringOf(v, KeyTransactionLog),
		AuditLog:            stringOf(v, KeyAuditLog),
		PersonalLogDir:      stringOf(v, KeyPersonalLogDir),
		BufferSize:          intOf(v, KeyBufferSize),
		AccountCapacity:     intOf(v, KeyAccountCapacity),
		MonitorInterval:     durationOf(v, KeyMonitorInterval),
		MonitorMode:         monitor.Mode(strings.ToLower(stringOf(v, KeyMonitorMode))),
		MonitorOffsetDB:     stringOf(v, KeyMonitorOffsetDB),
		LoginAttempts:       intOf(v, KeyLoginAttempts),
		LoginCooldown:       durationOf(v, KeyLoginCooldown),
	}
}

// stringOf keeps the first whitespace-delimited token of a value.
func stringOf(v *viper.Viper, key string) string {
	fields := strings.Fields(v.GetString(key))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func intOf(v *viper.Viper, key string) int {
	d, ok := parseDecimal(stringOf(v, key))
	if !ok || !d.IsInteger() {
		return 0
	}
	return int(d.IntPart())
}

func decimalOf(v *viper.Viper, key string) decimal.Decimal {
	d, ok := parseDecimal(stringOf(v, key))
	if !ok {
		return decimal.Zero
	}
	return d
}

func parseDecimal(raw string) (decimal.Decimal, bool) {
	if raw == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// durationOf accepts a Go duration or a bare number of seconds.
func durationOf(v *viper.Viper, key string) time.Duration {
	raw := stringOf(v, key)
	if raw == "" {
		return 0
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, ok := parseDecimal(raw); ok {
		return time.Duration(secs.Mul(decimal.NewFromInt(int64(time.Second))).IntPart())
	}
	return 0
}

func (c Config) withDefaults() Config {
	if c.AccountFile == "" {
		c.AccountFile = defaultAccountFile
	}
	if c.TransactionLog == "" {
		c.TransactionLog = defaultTransactionLog
	}
	if c.AuditLog == "" {
		c.AuditLog = defaultAuditLog
	}
	if c.PersonalLogDir == "" {
		c.PersonalLogDir = defaultPersonalLogDir
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.AccountCapacity == 0 {
		c.AccountCapacity = defaultAccountCapacity
	}
	if c.MonitorInterval == 0 {
		c.MonitorInterval = defaultMonitorInterval
	}
	if c.MonitorMode == "" {
		c.MonitorMode = monitor.ModeRescan
	}
	if c.MonitorOffsetDB == "" {
		c.MonitorOffsetDB = defaultMonitorOffsetDB
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.MaxSessions <= 0 {
		return errors.Wrapf(exception.ErrInvalidConfig, "%s must be > 0, got %d", KeyMaxSessions, c.MaxSessions)
	}
	if c.WithdrawalLimit.IsNegative() {
		return errors.Wrapf(exception.ErrInvalidConfig, "%s must be >= 0", KeyWithdrawalLimit)
	}
	if c.TransferLimit.IsNegative() {
		return errors.Wrapf(exception.ErrInvalidConfig, "%s must be >= 0", KeyTransferLimit)
	}
	if c.BufferSize < 2 {
		return errors.Wrapf(exception.ErrInvalidConfig, "%s must be >= 2, got %d", KeyBufferSize, c.BufferSize)
	}
	if c.AccountCapacity <= 0 {
		return errors.Wrapf(exception.ErrInvalidConfig, "%s must be > 0", KeyAccountCapacity)
	}
	if c.TransactionLog == c.AuditLog {
		return errors.Wrapf(exception.ErrInvalidConfig, "%s and %s must differ", KeyTransactionLog, KeyAuditLog)
	}
	if err := c.Monitor().Validate(); err != nil {
		return errors.Wrap(exception.ErrInvalidConfig, err.Error())
	}
	if err := c.Session().Validate(); err != nil {
		return errors.Wrap(exception.ErrInvalidConfig, err.Error())
	}
	return nil
}

func (c Config) Risk() risk.Config {
	return risk.Config{
		WithdrawalLimit: c.WithdrawalLimit,
		TransferLimit:   c.TransferLimit,
	}
}

func (c Config) Journal() journal.Config {
	return journal.Config{
		TransactionPath: c.TransactionLog,
		AuditPath:       c.AuditLog,
		PersonalDir:     c.PersonalLogDir,
	}
}

func (c Config) Monitor() monitor.Config {
	return monitor.Config{
		TransactionPath:     c.TransactionLog,
		Interval:            c.MonitorInterval,
		Mode:                c.MonitorMode,
		OffsetDB:            c.MonitorOffsetDB,
		WithdrawalThreshold: c.WithdrawalThreshold,
		TransferThreshold:   c.TransferThreshold,
	}
}

func (c Config) Session() session.Config {
	return session.Config{
		MaxSessions:      c.MaxSessions,
		MaxLoginAttempts: c.LoginAttempts,
		LoginCooldown:    c.LoginCooldown,
	}
}

package journal

import "fmt"

const (
	defaultTransactionPath = "transacciones.log"
	defaultAuditPath       = "application.log"
	defaultPersonalDir     = "transactions"
)

// Config locates the three log families.
type Config struct {
	TransactionPath string
	AuditPath       string
	PersonalDir     string
}

func (c Config) withDefaults() Config {
	if c.TransactionPath == "" {
		c.TransactionPath = defaultTransactionPath
	}
	if c.AuditPath == "" {
		c.AuditPath = defaultAuditPath
	}
	if c.PersonalDir == "" {
		c.PersonalDir = defaultPersonalDir
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.TransactionPath == "" {
		return fmt.Errorf("invalid journal config: TransactionPath is empty")
	}
	if c.AuditPath == "" {
		return fmt.Errorf("invalid journal config: AuditPath is empty")
	}
	if c.PersonalDir == "" {
		return fmt.Errorf("invalid journal config: PersonalDir is empty")
	}
	if c.TransactionPath == c.AuditPath {
		return fmt.Errorf("invalid journal config: transaction and audit logs share %s", c.AuditPath)
	}
	return nil
}

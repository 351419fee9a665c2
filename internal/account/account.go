package account

import (
	"github.com/n0ct4/secure-bank-final/internal/codec"
	"github.com/shopspring/decimal"
)

// Account is the in-memory view of one customer account.
type Account struct {
	Number           int32
	Holder           string
	Balance          decimal.Decimal
	PIN              int32
	TransactionCount int32
	Locked           bool
}

// FromRecord converts an on-disk record. Balances are rounded to cents to
// drop float32 noise.
func FromRecord(r codec.AccountRecord) Account {
	return Account{
		Number:           r.Number,
		Holder:           r.Holder,
		Balance:          decimal.NewFromFloat32(r.Balance).Round(2),
		PIN:              r.PIN,
		TransactionCount: r.TransactionCount,
		Locked:           r.Locked,
	}
}

// Record converts the account to its on-disk shape.
func (a Account) Record() codec.AccountRecord {
	return codec.AccountRecord{
		Number:           a.Number,
		Holder:           a.Holder,
		Balance:          float32(a.Balance.InexactFloat64()),
		PIN:              a.PIN,
		TransactionCount: a.TransactionCount,
		Locked:           a.Locked,
	}
}

// Valid reports whether the account would survive a reload.
func (a Account) Valid() bool {
	return a.Number > 0 && a.Holder != ""
}

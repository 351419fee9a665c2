package seed

import (
	"os"

	"github.com/n0ct4/secure-bank-final/internal/account"
	"github.com/n0ct4/secure-bank-final/pkg/exception"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// OpeningBalance is credited to every default account.
var OpeningBalance = decimal.NewFromInt(5000)

// Defaults returns the starter accounts 1000..1005.
func Defaults() []account.Account {
	holders := []struct {
		name string
		pin  int32
	}{
		{"David Sanez", 1234},
		{"Miguel Ramirez", 9876},
		{"Lucía Ramírez", 4567},
		{"Valeria Torres", 8776},
		{"Julián Navarro", 2233},
		{"Camila Duarte", 2233},
	}

	accounts := make([]account.Account, 0, len(holders))
	for i, h := range holders {
		accounts = append(accounts, account.Account{
			Number:  int32(1000 + i),
			Holder:  h.name,
			Balance: OpeningBalance,
			PIN:     h.pin,
		})
	}
	return accounts
}

// Write stores accounts into path. An existing non-empty file is only
// replaced when force is set.
func Write(path string, accounts []account.Account, force bool) error {
	if !force {
		info, err := os.Stat(path)
		if err == nil && info.Size() > 0 {
			return errors.Wrapf(exception.ErrSeedTargetExists, "path: %s", path)
		}
		if err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "stat %s", path)
		}
	}
	for _, a := range accounts {
		if !a.Valid() {
			return errors.Wrapf(exception.ErrAccountInvalid, "account: %d", a.Number)
		}
	}
	return account.NewRecordFile(path).WriteAll(accounts)
}

package journal

import (
	"github.com/n0ct4/secure-bank-final/pkg/scanner"
	"github.com/shopspring/decimal"
)

var (
	keyAccount   = []byte("Account")
	keyOperation = []byte("Operation")
	keyAmount    = []byte("Amount")
	keyBalance   = []byte("Final balance")
)

// TxRecord is a parsed transaction log line.
type TxRecord struct {
	Stamp   string
	Number  int32
	Kind    Kind
	Amount  decimal.Decimal
	Balance decimal.Decimal
}

// ParseTransactionLine parses a line produced by FormatTransaction. Lines
// missing any of the five fields are rejected.
func ParseTransactionLine(line []byte) (TxRecord, bool) {
	stamp, ok := scanner.ScanBracket(line)
	if !ok {
		return TxRecord{}, false
	}
	number, ok := scanner.ScanIntField(line, keyAccount)
	if !ok || number < -1<<31 || number > 1<<31-1 {
		return TxRecord{}, false
	}
	kind, ok := scanner.ScanTextField(line, keyOperation)
	if !ok {
		return TxRecord{}, false
	}
	amount, ok := scanDecimal(line, keyAmount)
	if !ok {
		return TxRecord{}, false
	}
	balance, ok := scanDecimal(line, keyBalance)
	if !ok {
		return TxRecord{}, false
	}
	return TxRecord{
		Stamp:   string(stamp),
		Number:  int32(number),
		Kind:    Kind(kind),
		Amount:  amount,
		Balance: balance,
	}, true
}

func scanDecimal(line, key []byte) (decimal.Decimal, bool) {
	raw, ok := scanner.ScanTextField(line, key)
	if !ok {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

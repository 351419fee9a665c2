package exception

import "errors"

// Operation validation errors. Callers match them with errors.Is.
var (
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrLimitExceeded     = errors.New("bank: limit exceeded")
	ErrInvalidAmount     = errors.New("bank: amount must be positive")
	ErrSameAccount       = errors.New("bank: source and destination are the same account")
)

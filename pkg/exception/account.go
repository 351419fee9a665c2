package exception

import "errors"

// Account store errors
var (
	ErrAccountNotFound  = errors.New("account: not found")
	ErrAccountExists    = errors.New("account: duplicate account number")
	ErrAccountInvalid   = errors.New("account: invalid record")
	ErrAccountLocked    = errors.New("account: locked")
	ErrAuthFailed       = errors.New("account: authentication failed")
	ErrTableFull        = errors.New("account: table capacity reached")
	ErrRecordShortWrite = errors.New("account: short record write")
)

// Seed errors
var (
	ErrSeedTargetExists = errors.New("seed: account file already exists")
)

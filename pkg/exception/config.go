package exception

import "errors"

// Configuration and monitor errors
var (
	ErrInvalidConfig   = errors.New("config: invalid")
	ErrUnknownScanMode = errors.New("monitor: unknown scan mode")
)

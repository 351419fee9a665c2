package exception

import "errors"

// Lock manager and write buffer errors
var (
	ErrLockManagerClosed = errors.New("lock: manager closed")
	ErrUnknownResource   = errors.New("lock: unknown resource")
	ErrBufferClosed      = errors.New("buffer: closed")
	ErrDrainerRunning    = errors.New("buffer: drainer already running")
)

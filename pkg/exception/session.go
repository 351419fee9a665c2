package exception

import "errors"

// Session supervisor errors
var (
	ErrSessionLimit    = errors.New("session: limit reached")
	ErrSessionNotFound = errors.New("session: not found")
	ErrSessionClosed   = errors.New("session: closed")
	ErrSupervisorDown  = errors.New("session: supervisor shut down")
	ErrLoginBlocked    = errors.New("session: too many login attempts")
)

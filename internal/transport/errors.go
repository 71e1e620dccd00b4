package transport

import "errors"

var (
	ErrNotConnected   = errors.New("transport: connection is not connected")
	ErrInvalidMessage = errors.New("transport: message contains the delimiter byte")
	ErrAlreadyStarted = errors.New("transport: server already started")
	ErrNotStarted     = errors.New("transport: server not started")
	ErrInvalidConfig  = errors.New("transport: invalid config")
)

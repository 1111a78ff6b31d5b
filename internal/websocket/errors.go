package websocket

import "errors"

var (
	ErrWriteTimeout = errors.New("write queue full, send timed out")
)

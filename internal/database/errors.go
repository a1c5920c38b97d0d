package database

import "errors"

var (
	ErrManagerClosed  = errors.New("database manager is closed")
	ErrWriteTimeout   = errors.New("write operation timeout")
	ErrCodeTaken      = errors.New("session code already in use")
	ErrInvalidSession = errors.New("session record is incomplete")
)

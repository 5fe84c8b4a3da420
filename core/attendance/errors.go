package attendance

import "errors"

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
	ErrNotFound        = errors.New("session not found")
	ErrExpired         = errors.New("session expired")
	ErrSessionClosed   = errors.New("session closed")
	ErrInvalidToken    = errors.New("invalid token")
)

package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUndecodable    = errors.New("undecodable record")
	ErrUnroutable     = errors.New("phase has no owning module")
	ErrUnhandledEvent = errors.New("event not handled in current phase")
	ErrPhaseMismatch  = errors.New("phase does not belong to module")
)

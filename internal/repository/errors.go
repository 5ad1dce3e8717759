package repository

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrUnknownSender       = errors.New("unknown sender")
	ErrEmailTaken          = errors.New("email already registered")
	ErrInvalidParticipants = errors.New("conversation needs at least two distinct participants")
	ErrInvalidStatus       = errors.New("invalid presence status")
	ErrEmptyContent        = errors.New("message content is empty")
)

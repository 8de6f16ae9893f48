package service

import "errors"

var (
	ErrUnknownTransport = errors.New("unknown transport")
	ErrInvalidCommand   = errors.New("invalid command")
	ErrNilOption        = errors.New("option value cannot be nil")
)

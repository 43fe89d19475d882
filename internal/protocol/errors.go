package protocol

import "errors"

var (
	ErrMalformedFrame  = errors.New("protocol: malformed frame")
	ErrUnknownRequest  = errors.New("protocol: unknown request id")
	ErrRequestMismatch = errors.New("protocol: request id mismatch")
	ErrNilMessage      = errors.New("protocol: nil message")
	ErrFieldTooLong    = errors.New("protocol: field too long")
	ErrInvalidField    = errors.New("protocol: invalid field")
	ErrMalformedReport = errors.New("protocol: malformed report content")
)

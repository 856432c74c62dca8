package router

import (
	"errors"
	"strings"
)

var (
	// ErrMissingHeader means the request carried no header part at all.
	ErrMissingHeader = errors.New("router: header part missing")
	// ErrMissingToken means the header has no security token or an empty token value.
	ErrMissingToken = errors.New("router: security token missing")
	// ErrTokenRejected wraps failures reported by a TokenVerifier.
	ErrTokenRejected = errors.New("router: security token rejected")
)

// MissingFieldError lists required header fields that were absent.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return "router: required header fields missing: " + strings.Join(e.Fields, ", ")
}

// UnsupportedTypeError reports a valid request no handler accepted. It is a
// normal protocol outcome and is only surfaced for logging.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return "router: no handler for message type " + e.Type
}

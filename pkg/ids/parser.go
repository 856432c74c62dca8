package ids

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxHeaderBytes bounds the size of a header accepted by ParseReader.
const MaxHeaderBytes = 1 << 20

var (
	errEmptyHeader   = errors.New("empty header")
	errNullHeader    = errors.New("header is null")
	errHeaderTooLong = fmt.Errorf("header exceeds %d bytes", MaxHeaderBytes)
)

// ParseError reports a header that could not be decoded into an Envelope.
// No partial envelope is ever returned alongside it.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "ids: malformed header: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse decodes a JSON header. Known fields are accepted under their
// namespaced or bare key; the namespaced key wins when both are present.
func Parse(data []byte) (*Envelope, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &ParseError{Err: errEmptyHeader}
	}
	if isNull(data) {
		return nil, &ParseError{Err: errNullHeader}
	}
	raw, err := rawObject(data)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	env := &Envelope{}
	props, err := decodeFields(raw, env, envelopeFields)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	env.Properties = props
	return env, nil
}

// ParseReader reads at most MaxHeaderBytes from r and parses them.
func ParseReader(r io.Reader) (*Envelope, error) {
	if r == nil {
		return nil, &ParseError{Err: errEmptyHeader}
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxHeaderBytes+1))
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if len(data) > MaxHeaderBytes {
		return nil, &ParseError{Err: errHeaderTooLong}
	}
	return Parse(data)
}

// Marshal encodes e with the requested key spelling. Parsing the result
// yields an envelope equal to e.
func Marshal(e *Envelope, s Spelling) ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	return json.Marshal(encodeFields(e, envelopeFields, e.Properties, s))
}

// MarshalJSON encodes the envelope with namespaced keys.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	return Marshal(e, Namespaced)
}

// UnmarshalJSON decodes a header with the same rules as Parse.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*e = *parsed
	return nil
}

// Package router validates inbound broker requests and routes each one to
// the first registered handler able to process it.
package router

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/morezero/catalog-broker/pkg/ids"
)

// Claims holds the attributes a TokenVerifier extracted from the security
// token. It is never nil on a validated Request.
type Claims map[string]any

// Request is a header that passed every validation stage, plus the raw
// payload part when one was sent.
type Request struct {
	Header *ids.Envelope
	// Payload is nil when the request carried no payload part.
	Payload *string
	Claims  Claims
}

// MessageType returns the header's type tag.
func (r *Request) MessageType() string {
	if r == nil || r.Header == nil {
		return ""
	}
	return r.Header.Type
}

// Response is the outcome of routing one request. Payload is nil when no
// payload part should be emitted; otherwise it is encoded as JSON.
type Response struct {
	Header  *ids.Envelope
	Payload any
}

// HasPayload reports whether a payload part should be emitted. Typed nils
// (pointers, slices, maps) and a JSON null count as absent.
func (r *Response) HasPayload() bool {
	if r == nil || r.Payload == nil {
		return false
	}
	if raw, ok := r.Payload.(json.RawMessage); ok {
		trimmed := bytes.TrimSpace(raw)
		return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
	}
	v := reflect.ValueOf(r.Payload)
	switch v.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
		return !v.IsNil()
	}
	return true
}

package commsutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/morezero/catalog-broker/pkg/ids"
	"github.com/morezero/catalog-broker/pkg/router"
)

const codecLogPrefix = "commsutil:codec"

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Bundle is the NATS form of a broker message: {"header": {...}, "payload": ...}.
// A missing member is absent, matching a missing multipart part.
type Bundle struct {
	Header  json.RawMessage `json:"header,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeBundle parses a bundle. Data that is not a JSON object is an error.
func DecodeBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%s - invalid bundle: %w", codecLogPrefix, err)
	}
	return &b, nil
}

// HeaderReader returns the header document, or nil when the bundle has none.
// A header sent as a JSON string is unwrapped first.
func (b *Bundle) HeaderReader() io.Reader {
	text, ok := b.text(b.Header)
	if !ok {
		return nil
	}
	return bytes.NewReader([]byte(text))
}

// PayloadText returns the payload as the raw text a multipart part would
// carry, or nil when absent. A JSON string payload is unwrapped.
func (b *Bundle) PayloadText() *string {
	text, ok := b.text(b.Payload)
	if !ok {
		return nil
	}
	return &text
}

func (b *Bundle) text(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", false
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s, true
		}
	}
	return string(trimmed), true
}

// EncodeResponse renders a router response as a bundle.
func EncodeResponse(resp *router.Response) ([]byte, error) {
	if resp == nil || resp.Header == nil {
		return nil, fmt.Errorf("%s - response has no header", codecLogPrefix)
	}
	header, err := ids.Marshal(resp.Header, ids.Namespaced)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to encode header: %w", codecLogPrefix, err)
	}
	b := Bundle{Header: header}
	if resp.HasPayload() {
		payload, err := json.Marshal(resp.Payload)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to encode payload: %w", codecLogPrefix, err)
		}
		b.Payload = payload
	}
	return json.Marshal(b)
}

// EncodeRequest builds a bundle from a raw header (nil when absent) and
// optional payload text. Each member is embedded as JSON when valid and as a
// JSON string otherwise.
func EncodeRequest(header []byte, payload *string) ([]byte, error) {
	var b Bundle
	if header != nil {
		b.Header = embed(header)
	}
	if payload != nil {
		b.Payload = embed([]byte(*payload))
	}
	return json.Marshal(b)
}

func embed(text []byte) json.RawMessage {
	if len(bytes.TrimSpace(text)) > 0 && json.Valid(text) {
		return json.RawMessage(text)
	}
	quoted, _ := json.Marshal(string(text))
	return quoted
}

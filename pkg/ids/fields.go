package ids

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Spelling selects which key of each alias list is emitted on serialization.
type Spelling int

const (
	// Namespaced emits prefixed keys such as "ids:issued".
	Namespaced Spelling = iota
	// Bare emits unprefixed keys such as "issued".
	Bare
)

// IssuedLayout is the layout used when emitting issued timestamps that carry
// no sub-millisecond digits. Finer timestamps are emitted with RFC3339Nano.
const IssuedLayout = "2006-01-02T15:04:05.000Z07:00"

var issuedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02T15:04:05Z0700",
}

// field declares one JSON property of T: its accepted keys in precedence
// order (namespaced first, bare second) and how to move it in and out of T.
type field[T any] struct {
	keys   []string
	decode func(*T, json.RawMessage) error
	encode func(*T, Spelling) (any, bool)
}

func (f field[T]) key(s Spelling) string {
	if s == Bare && len(f.keys) > 1 {
		return f.keys[1]
	}
	return f.keys[0]
}

func stringField[T any](keys []string, ptr func(*T) *string) field[T] {
	return field[T]{
		keys:   keys,
		decode: func(t *T, raw json.RawMessage) error { return decodeString(raw, ptr(t)) },
		encode: func(t *T, _ Spelling) (any, bool) { v := *ptr(t); return v, v != "" },
	}
}

func uriField[T any](keys []string, ptr func(*T) *string) field[T] {
	return field[T]{
		keys:   keys,
		decode: func(t *T, raw json.RawMessage) error { return decodeURI(raw, ptr(t)) },
		encode: func(t *T, _ Spelling) (any, bool) { v := *ptr(t); return v, v != "" },
	}
}

func uriListField[T any](keys []string, ptr func(*T) *[]string) field[T] {
	return field[T]{
		keys:   keys,
		decode: func(t *T, raw json.RawMessage) error { return decodeURIList(raw, ptr(t)) },
		encode: func(t *T, _ Spelling) (any, bool) { v := *ptr(t); return v, v != nil },
	}
}

func referenceField[T any](keys []string, ptr func(*T) **Reference) field[T] {
	return field[T]{
		keys: keys,
		decode: func(t *T, raw json.RawMessage) error {
			ref, err := decodeReference(raw)
			if err != nil {
				return err
			}
			*ptr(t) = ref
			return nil
		},
		encode: func(t *T, s Spelling) (any, bool) {
			ref := *ptr(t)
			if ref == nil {
				return nil, false
			}
			return encodeFields(ref, referenceFields, ref.Properties, s), true
		},
	}
}

var referenceFields = []field[Reference]{
	uriField([]string{"@id", "id"}, func(r *Reference) *string { return &r.ID }),
	stringField([]string{"@type", "type"}, func(r *Reference) *string { return &r.Type }),
}

var tokenFields = []field[SecurityToken]{
	uriField([]string{"@id", "id"}, func(t *SecurityToken) *string { return &t.ID }),
	stringField([]string{"@type", "type"}, func(t *SecurityToken) *string { return &t.Type }),
	referenceField([]string{"ids:tokenFormat", "tokenFormat"}, func(t *SecurityToken) **Reference { return &t.TokenFormat }),
	stringField([]string{"ids:tokenValue", "tokenValue"}, func(t *SecurityToken) *string { return &t.TokenValue }),
}

var envelopeFields = []field[Envelope]{
	stringField([]string{"@context", "context"}, func(e *Envelope) *string { return &e.Context }),
	uriField([]string{"@id", "id"}, func(e *Envelope) *string { return &e.ID }),
	stringField([]string{"@type", "type"}, func(e *Envelope) *string { return &e.Type }),
	{
		keys: []string{"ids:securityToken", "securityToken"},
		decode: func(e *Envelope, raw json.RawMessage) error {
			tok, err := decodeToken(raw)
			if err != nil {
				return err
			}
			e.SecurityToken = tok
			return nil
		},
		encode: func(e *Envelope, s Spelling) (any, bool) {
			if e.SecurityToken == nil {
				return nil, false
			}
			return encodeFields(e.SecurityToken, tokenFields, e.SecurityToken.Properties, s), true
		},
	},
	uriField([]string{"ids:issuerConnector", "issuerConnector"}, func(e *Envelope) *string { return &e.IssuerConnector }),
	uriField([]string{"ids:senderAgent", "senderAgent"}, func(e *Envelope) *string { return &e.SenderAgent }),
	stringField([]string{"ids:modelVersion", "modelVersion"}, func(e *Envelope) *string { return &e.ModelVersion }),
	uriField([]string{"ids:correlationMessage", "correlationMessage"}, func(e *Envelope) *string { return &e.CorrelationMessage }),
	uriListField([]string{"ids:recipientConnector", "recipientConnector"}, func(e *Envelope) *[]string { return &e.RecipientConnector }),
	uriListField([]string{"ids:recipientAgent", "recipientAgent"}, func(e *Envelope) *[]string { return &e.RecipientAgent }),
	{
		keys:   []string{"ids:issued", "issued"},
		decode: func(e *Envelope, raw json.RawMessage) error { return decodeTime(raw, &e.Issued) },
		encode: func(e *Envelope, _ Spelling) (any, bool) { return formatIssued(e.Issued), !e.Issued.IsZero() },
	},
	stringField([]string{"ids:contentVersion", "contentVersion"}, func(e *Envelope) *string { return &e.ContentVersion }),
	referenceField([]string{"ids:rejectionReason", "rejectionReason"}, func(e *Envelope) **Reference { return &e.RejectionReason }),
}

var errNotObject = errors.New("expected a JSON object")

// formatIssued keeps every digit the parser accepts.
func formatIssued(t time.Time) string {
	if t.Nanosecond()%int(time.Millisecond) != 0 {
		return t.Format(time.RFC3339Nano)
	}
	return t.Format(IssuedLayout)
}

// decodeFields fills target from raw using the alias table. For each field
// the first present key wins and every spelling of the field is consumed.
// Remaining keys are returned as unrecognized properties (nil when none).
func decodeFields[T any](raw map[string]json.RawMessage, target *T, fields []field[T]) (map[string]any, error) {
	for _, f := range fields {
		for _, k := range f.keys {
			v, ok := raw[k]
			if !ok {
				continue
			}
			if err := f.decode(target, v); err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			break
		}
		for _, k := range f.keys {
			delete(raw, k)
		}
	}
	if len(raw) == 0 {
		return nil, nil
	}
	props := make(map[string]any, len(raw))
	for k, v := range raw {
		val, err := decodeProperty(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		props[k] = val
	}
	return props, nil
}

// decodeProperty keeps numbers as json.Number so large integers survive
// re-encoding unchanged.
func decodeProperty(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var val any
	if err := dec.Decode(&val); err != nil {
		return nil, err
	}
	return val, nil
}

// encodeFields is the inverse of decodeFields. Properties spelled like a
// declared field, under any alias, are dropped: re-parsing would read them
// as that field.
func encodeFields[T any](target *T, fields []field[T], props map[string]any, s Spelling) map[string]any {
	out := make(map[string]any, len(fields)+len(props))
	for k, v := range props {
		if !declared(fields, k) {
			out[k] = v
		}
	}
	for _, f := range fields {
		if v, ok := f.encode(target, s); ok {
			out[f.key(s)] = v
		}
	}
	return out
}

func declared[T any](fields []field[T], key string) bool {
	for _, f := range fields {
		for _, k := range f.keys {
			if k == key {
				return true
			}
		}
	}
	return false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func rawObject(raw []byte) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errNotObject
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeString(raw json.RawMessage, dst *string) error {
	if isNull(raw) {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// decodeURI accepts a string or a JSON-LD node reference {"@id": "..."}.
func decodeURI(raw json.RawMessage, dst *string) error {
	if isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var node struct {
			ID string `json:"@id"`
		}
		if nodeErr := json.Unmarshal(raw, &node); nodeErr != nil || node.ID == "" {
			return err
		}
		s = node.ID
	}
	if s == "" {
		return nil
	}
	if _, err := url.Parse(s); err != nil {
		return err
	}
	*dst = s
	return nil
}

func decodeURIList(raw json.RawMessage, dst *[]string) error {
	if isNull(raw) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return err
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		var s string
		if err := decodeURI(item, &s); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	*dst = out
	return nil
}

// decodeTime accepts an RFC 3339 string or a JSON-LD value object {"@value": "..."}.
func decodeTime(raw json.RawMessage, dst *time.Time) error {
	if isNull(raw) {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var typed struct {
			Value string `json:"@value"`
		}
		if objErr := json.Unmarshal(raw, &typed); objErr != nil || typed.Value == "" {
			return err
		}
		s = typed.Value
	}
	for _, layout := range issuedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*dst = t
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// decodeReference accepts a bare URI string or an object with @id and @type.
func decodeReference(raw json.RawMessage) (*Reference, error) {
	if isNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil, nil
		}
		if _, err := url.Parse(s); err != nil {
			return nil, err
		}
		return &Reference{ID: s}, nil
	}
	m, err := rawObject(raw)
	if err != nil {
		return nil, err
	}
	ref := &Reference{}
	props, err := decodeFields(m, ref, referenceFields)
	if err != nil {
		return nil, err
	}
	ref.Properties = props
	return ref, nil
}

func decodeToken(raw json.RawMessage) (*SecurityToken, error) {
	if isNull(raw) {
		return nil, nil
	}
	m, err := rawObject(raw)
	if err != nil {
		return nil, err
	}
	tok := &SecurityToken{}
	props, err := decodeFields(m, tok, tokenFields)
	if err != nil {
		return nil, err
	}
	tok.Properties = props
	return tok, nil
}

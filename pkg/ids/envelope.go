// Package ids models the IDS message header (envelope) exchanged with the broker,
// its JSON encoding, and the rejection and reply envelopes the broker emits.
package ids

import (
	"reflect"
	"time"
)

// DefaultContext is the JSON-LD context stamped on envelopes produced by the broker.
const DefaultContext = "https://w3id.org/idsa/contexts/context.jsonld"

// Message type tags handled or produced by the broker.
const (
	TypeConnectorUpdate      = "ids:ConnectorUpdateMessage"
	TypeConnectorUnavailable = "ids:ConnectorUnavailableMessage"
	TypeQuery                = "ids:QueryMessage"
	TypeDescriptionRequest   = "ids:DescriptionRequestMessage"
	TypeDescriptionResponse  = "ids:DescriptionResponseMessage"
	TypeResult               = "ids:ResultMessage"
	TypeMessageProcessed     = "ids:MessageProcessedNotificationMessage"
	TypeRejection            = "ids:RejectionMessage"
)

// Required header keys, as reported in missing-field diagnostics.
const (
	KeyID              = "@id"
	KeyIssuerConnector = "ids:issuerConnector"
	KeySenderAgent     = "ids:senderAgent"
)

// Envelope is the protocol message header. Optional URIs are empty when absent.
type Envelope struct {
	Context            string
	ID                 string
	Type               string
	SecurityToken      *SecurityToken
	IssuerConnector    string
	SenderAgent        string
	ModelVersion       string
	CorrelationMessage string
	RecipientConnector []string
	RecipientAgent     []string
	Issued             time.Time
	ContentVersion     string
	// RejectionReason is only set on rejection envelopes.
	RejectionReason *Reference
	// Properties holds keys the parser did not recognize. They are carried
	// through serialization but never validated.
	Properties map[string]any
}

// Reference is a typed URI tag such as a token format or a rejection reason.
type Reference struct {
	ID         string
	Type       string
	Properties map[string]any
}

// SecurityToken is the dynamic attribute token attached to an envelope.
type SecurityToken struct {
	ID          string
	Type        string
	TokenFormat *Reference
	TokenValue  string
	Properties  map[string]any
}

// Present reports whether the token exists and carries a non-empty value.
func (t *SecurityToken) Present() bool {
	return t != nil && t.TokenValue != ""
}

// MissingFields returns the keys of required fields that are not set, in
// declaration order. An empty result means the envelope can be dispatched.
func (e *Envelope) MissingFields() []string {
	var missing []string
	if e.ID == "" {
		missing = append(missing, KeyID)
	}
	if e.IssuerConnector == "" {
		missing = append(missing, KeyIssuerConnector)
	}
	if e.SenderAgent == "" {
		missing = append(missing, KeySenderAgent)
	}
	return missing
}

// Equal reports whether two envelopes carry the same values. Issued
// timestamps are compared as instants.
func (e *Envelope) Equal(o *Envelope) bool {
	if e == nil || o == nil {
		return e == o
	}
	if !e.Issued.Equal(o.Issued) {
		return false
	}
	a, b := *e, *o
	a.Issued, b.Issued = time.Time{}, time.Time{}
	return reflect.DeepEqual(a, b)
}

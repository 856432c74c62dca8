package ids

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Rejection reason codes.
const (
	ReasonMalformedMessage        = "https://w3id.org/idsa/code/MALFORMED_MESSAGE"
	ReasonNotAuthenticated        = "https://w3id.org/idsa/code/NOT_AUTHENTICATED"
	ReasonMessageTypeNotSupported = "https://w3id.org/idsa/code/MESSAGE_TYPE_NOT_SUPPORTED"
	ReasonBadParameters           = "https://w3id.org/idsa/code/BAD_PARAMETERS"
	ReasonInternalRecipientError  = "https://w3id.org/idsa/code/INTERNAL_RECIPIENT_ERROR"
	ReasonNotFound                = "https://w3id.org/idsa/code/NOT_FOUND"
)

// PropertyRejectedType carries the type tag of a message rejected as unsupported.
const PropertyRejectedType = "ids:rejectedMessageType"

// Identity is the broker's own connector identity.
type Identity struct {
	ConnectorID  string
	ModelVersion string
}

// Factory builds the envelopes the broker sends. Every envelope is stamped
// with the broker identity as issuer connector and sender agent, never with
// the identity of the original sender.
type Factory struct {
	Identity Identity
	// NewID returns a fresh message id for the given message type.
	NewID func(messageType string) string
	Now   func() time.Time
}

// NewFactory returns a Factory generating UUID-based message ids and UTC timestamps.
func NewFactory(identity Identity) *Factory {
	return &Factory{
		Identity: identity,
		NewID:    NewMessageID,
		Now:      func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// NewMessageID returns an autogenerated message URI such as
// https://w3id.org/idsa/autogen/rejectionMessage/<uuid>.
func NewMessageID(messageType string) string {
	name := strings.TrimPrefix(messageType, "ids:")
	if name != "" {
		name = strings.ToLower(name[:1]) + name[1:]
	}
	return fmt.Sprintf("https://w3id.org/idsa/autogen/%s/%s", name, uuid.NewString())
}

// Reply builds an envelope of the given type answering orig. orig may be nil
// or partially populated; correlation and recipients are set only from the
// fields it exposes.
func (f *Factory) Reply(orig *Envelope, messageType string) *Envelope {
	e := &Envelope{
		Context:         DefaultContext,
		ID:              f.NewID(messageType),
		Type:            messageType,
		IssuerConnector: f.Identity.ConnectorID,
		SenderAgent:     f.Identity.ConnectorID,
		ModelVersion:    f.Identity.ModelVersion,
		Issued:          f.Now(),
	}
	if orig == nil {
		return e
	}
	e.CorrelationMessage = orig.ID
	if orig.IssuerConnector != "" {
		e.RecipientConnector = []string{orig.IssuerConnector}
	}
	if orig.SenderAgent != "" {
		e.RecipientAgent = []string{orig.SenderAgent}
	}
	return e
}

// Notification acknowledges orig with a MessageProcessedNotificationMessage.
func (f *Factory) Notification(orig *Envelope) *Envelope {
	return f.Reply(orig, TypeMessageProcessed)
}

// Reject builds a RejectionMessage with the given reason answering orig.
func (f *Factory) Reject(orig *Envelope, reason string) *Envelope {
	e := f.Reply(orig, TypeRejection)
	e.RejectionReason = &Reference{ID: reason}
	return e
}

// Malformed rejects a request whose header was absent, unparseable or
// incomplete. orig is nil when no header could be parsed.
func (f *Factory) Malformed(orig *Envelope) *Envelope {
	return f.Reject(orig, ReasonMalformedMessage)
}

// Unauthenticated rejects a request without a usable security token.
func (f *Factory) Unauthenticated(orig *Envelope) *Envelope {
	return f.Reject(orig, ReasonNotAuthenticated)
}

// UnsupportedType rejects a valid request no handler accepted. The original
// type tag is echoed for diagnostics.
func (f *Factory) UnsupportedType(orig *Envelope) *Envelope {
	e := f.Reject(orig, ReasonMessageTypeNotSupported)
	if orig != nil && orig.Type != "" {
		e.Properties = map[string]any{PropertyRejectedType: orig.Type}
	}
	return e
}

// BadParameters rejects a request whose payload a handler could not use.
func (f *Factory) BadParameters(orig *Envelope) *Envelope {
	return f.Reject(orig, ReasonBadParameters)
}

// InternalError rejects a request a handler failed to process.
func (f *Factory) InternalError(orig *Envelope) *Envelope {
	return f.Reject(orig, ReasonInternalRecipientError)
}

// NotFound rejects a request for an element the broker does not know.
func (f *Factory) NotFound(orig *Envelope) *Envelope {
	return f.Reject(orig, ReasonNotFound)
}

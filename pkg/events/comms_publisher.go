package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/catalog-broker/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// ChangeSubject overrides the base change subject (BROKER_CHANGE_EVENT_SUBJECT).
	ChangeSubject string
}

// CommsPublisher publishes node change events to NATS.
type CommsPublisher struct {
	nc            *comms.Conn
	changeSubject string
}

// NewCommsPublisher creates a CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	subject := commsutil.SubjectNodesChanged
	if opts != nil && opts.ChangeSubject != "" {
		subject = opts.ChangeSubject
	}
	return &CommsPublisher{nc: nc, changeSubject: subject}
}

// PublishNodeChanged publishes the event on the per-action subject and on the
// base change subject.
func (p *CommsPublisher) PublishNodeChanged(_ context.Context, event *NodeChangedEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	for _, subject := range []string{commsutil.BuildChangeSubject(p.changeSubject, event.Action), p.changeSubject} {
		if err := p.nc.Publish(subject, data); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, subject, err))
			return fmt.Errorf("%s - publish %s: %w", commsPublisherLogPrefix, subject, err)
		}
	}

	slog.Debug(fmt.Sprintf("%s - Published %s event for %s", commsPublisherLogPrefix, event.Action, event.Node.Name))
	return nil
}

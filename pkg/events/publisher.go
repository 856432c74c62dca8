package events

import "context"

// EventPublisher publishes node change events.
type EventPublisher interface {
	PublishNodeChanged(ctx context.Context, event *NodeChangedEvent) error
}

// NoOpPublisher drops every event. Used when NATS is disabled.
type NoOpPublisher struct{}

func (p *NoOpPublisher) PublishNodeChanged(_ context.Context, _ *NodeChangedEvent) error {
	return nil
}

// CallbackPublisher hands events to a function, mostly for tests.
type CallbackPublisher struct {
	callback func(ctx context.Context, event *NodeChangedEvent) error
}

func NewCallbackPublisher(cb func(ctx context.Context, event *NodeChangedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

func (p *CallbackPublisher) PublishNodeChanged(ctx context.Context, event *NodeChangedEvent) error {
	return p.callback(ctx, event)
}

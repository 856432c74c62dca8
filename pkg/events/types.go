// Package events defines node change events and their publishers.
package events

import (
	"time"

	"github.com/morezero/catalog-broker/pkg/directory"
)

// Node change actions.
const (
	ActionRegistered = "registered"
	ActionRemoved    = "removed"
)

// NodeChangedEvent is emitted after a node was stored in or removed from the directory.
type NodeChangedEvent struct {
	Action string         `json:"action"`
	Node   directory.Node `json:"node"`
	// MessageID is the id of the protocol message that caused the change.
	MessageID string `json:"messageId,omitempty"`
	Timestamp string `json:"timestamp"`
}

// NewNodeChangedEvent stamps an event with the current UTC time.
func NewNodeChangedEvent(action string, node directory.Node, messageID string) *NodeChangedEvent {
	return &NodeChangedEvent{
		Action:    action,
		Node:      node,
		MessageID: messageID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// Package handlers implements the broker's protocol message handlers:
// connector registration and removal, catalog queries and self-description.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/catalog-broker/pkg/directory"
	"github.com/morezero/catalog-broker/pkg/events"
	"github.com/morezero/catalog-broker/pkg/ids"
	"github.com/morezero/catalog-broker/pkg/router"
)

const logPrefix = "handlers:handlers"

// Header properties read by the handlers.
const (
	propertyAffectedConnector = "ids:affectedConnector"
	propertyRequestedElement  = "ids:requestedElement"
)

// Deps are the collaborators shared by all handlers.
type Deps struct {
	Factory   *ids.Factory
	Directory directory.NodeDirectory
	// Publisher defaults to a no-op publisher.
	Publisher events.EventPublisher
	// SelfDescription is the broker's connector description as JSON.
	SelfDescription json.RawMessage
	// Versions gates every handler; nil accepts all model versions.
	Versions *VersionGate
}

// Handlers holds the broker's message handlers.
type Handlers struct {
	deps Deps
}

// New creates the handler set.
func New(deps Deps) *Handlers {
	if deps.Publisher == nil {
		deps.Publisher = &events.NoOpPublisher{}
	}
	return &Handlers{deps: deps}
}

// Routes returns the handlers in registration order.
func (h *Handlers) Routes() []router.Handler {
	return []router.Handler{
		router.Route{Name: "connector-update", Match: h.accepts(ids.TypeConnectorUpdate), Process: h.ConnectorUpdate},
		router.Route{Name: "connector-unavailable", Match: h.accepts(ids.TypeConnectorUnavailable), Process: h.ConnectorUnavailable},
		router.Route{Name: "query", Match: h.accepts(ids.TypeQuery), Process: h.Query},
		router.Route{Name: "description-request", Match: h.accepts(ids.TypeDescriptionRequest), Process: h.DescriptionRequest},
	}
}

// accepts matches requests of one message type whose model version passes the gate.
func (h *Handlers) accepts(messageType string) func(*router.Request) bool {
	return func(req *router.Request) bool {
		return req.MessageType() == messageType && h.deps.Versions.Allows(req.Header.ModelVersion)
	}
}

func (h *Handlers) reply(req *router.Request, messageType string, payload any) *router.Response {
	return &router.Response{Header: h.deps.Factory.Reply(req.Header, messageType), Payload: payload}
}

func (h *Handlers) reject(req *router.Request, build func(*ids.Envelope) *ids.Envelope) *router.Response {
	return &router.Response{Header: build(req.Header)}
}

func (h *Handlers) publish(ctx context.Context, action string, node directory.Node, messageID string) {
	if err := h.deps.Publisher.PublishNodeChanged(ctx, events.NewNodeChangedEvent(action, node, messageID)); err != nil {
		slog.Error(fmt.Sprintf("%s - PublishNodeChanged failed: %v", logPrefix, err))
	}
}

// referenceProperty reads an unrecognized header property holding a URI,
// given either as a string or as an {"@id": ...} reference, under its
// namespaced or bare key.
func referenceProperty(header *ids.Envelope, key string) string {
	for _, k := range []string{key, strings.TrimPrefix(key, "ids:")} {
		switch v := header.Properties[k].(type) {
		case string:
			return v
		case map[string]any:
			for _, idKey := range []string{"@id", "id"} {
				if s, ok := v[idKey].(string); ok {
					return s
				}
			}
		}
	}
	return ""
}

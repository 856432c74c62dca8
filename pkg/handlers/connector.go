package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/morezero/catalog-broker/pkg/directory"
	"github.com/morezero/catalog-broker/pkg/events"
	"github.com/morezero/catalog-broker/pkg/ids"
	"github.com/morezero/catalog-broker/pkg/router"
)

const connectorLogPrefix = "handlers:connector"

// ConnectorUpdate registers the connector described by the payload as a
// catalog node. The node targets the connector's default endpoint, or the
// connector id when no endpoint is declared.
func (h *Handlers) ConnectorUpdate(ctx context.Context, req *router.Request) *router.Response {
	f := h.deps.Factory
	if req.Payload == nil {
		slog.Debug(fmt.Sprintf("%s - update without payload id=%s", connectorLogPrefix, req.Header.ID))
		return h.reject(req, f.BadParameters)
	}

	connector, err := ids.ParseConnector([]byte(*req.Payload))
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - unreadable self-description id=%s: %v", connectorLogPrefix, req.Header.ID, err))
		return h.reject(req, f.BadParameters)
	}
	if affected := referenceProperty(req.Header, propertyAffectedConnector); affected != "" && affected != connector.ID {
		slog.Warn(fmt.Sprintf("%s - affected connector %s does not match payload %s", connectorLogPrefix, affected, connector.ID))
		return h.reject(req, f.BadParameters)
	}

	node := directory.Node{
		Name:               connector.ID,
		TargetURL:          connector.AccessURL(),
		SupportedProtocols: []string{directory.ProtocolIDSMultipart},
	}
	if node.TargetURL == "" {
		node.TargetURL = connector.ID
	}

	if err := h.deps.Directory.Insert(ctx, node); err != nil {
		if errors.Is(err, directory.ErrInvalidNode) {
			slog.Warn(fmt.Sprintf("%s - rejected node %s: %v", connectorLogPrefix, node.Name, err))
			return h.reject(req, f.BadParameters)
		}
		slog.Error(fmt.Sprintf("%s - Insert failed: %v", connectorLogPrefix, err))
		return h.reject(req, f.InternalError)
	}

	slog.Info(fmt.Sprintf("%s - registered node=%s target=%s", connectorLogPrefix, node.Name, node.TargetURL))
	h.publish(ctx, events.ActionRegistered, node, req.Header.ID)
	return h.reply(req, ids.TypeMessageProcessed, nil)
}

// ConnectorUnavailable removes the affected connector's node, falling back to
// the issuer connector. Removing an unknown node is acknowledged as well.
func (h *Handlers) ConnectorUnavailable(ctx context.Context, req *router.Request) *router.Response {
	name := referenceProperty(req.Header, propertyAffectedConnector)
	if name == "" {
		name = req.Header.IssuerConnector
	}

	removed, err := h.deps.Directory.Delete(ctx, name)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - Delete failed: %v", connectorLogPrefix, err))
		return h.reject(req, h.deps.Factory.InternalError)
	}

	if removed != nil {
		slog.Info(fmt.Sprintf("%s - removed node=%s", connectorLogPrefix, name))
		h.publish(ctx, events.ActionRemoved, *removed, req.Header.ID)
	} else {
		slog.Debug(fmt.Sprintf("%s - node=%s was not registered", connectorLogPrefix, name))
	}
	return h.reply(req, ids.TypeMessageProcessed, nil)
}

package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/catalog-broker/pkg/ids"
	"github.com/morezero/catalog-broker/pkg/router"
)

// DescriptionRequest returns the broker's self-description, or the stored
// node when ids:requestedElement names a registered connector.
func (h *Handlers) DescriptionRequest(ctx context.Context, req *router.Request) *router.Response {
	element := referenceProperty(req.Header, propertyRequestedElement)
	if element == "" || element == h.deps.Factory.Identity.ConnectorID {
		return h.reply(req, ids.TypeDescriptionResponse, h.deps.SelfDescription)
	}

	node, err := h.deps.Directory.Get(ctx, element)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - Get failed: %v", logPrefix, err))
		return h.reject(req, h.deps.Factory.InternalError)
	}
	if node == nil {
		return h.reject(req, h.deps.Factory.NotFound)
	}
	return h.reply(req, ids.TypeDescriptionResponse, node)
}

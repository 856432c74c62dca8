package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/catalog-broker/pkg/ids"
	"github.com/morezero/catalog-broker/pkg/router"
)

// Query answers with every registered node. Query payloads are not
// interpreted.
func (h *Handlers) Query(ctx context.Context, req *router.Request) *router.Response {
	nodes, err := h.deps.Directory.GetAll(ctx)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - GetAll failed: %v", logPrefix, err))
		return h.reject(req, h.deps.Factory.InternalError)
	}
	return h.reply(req, ids.TypeResult, nodes)
}

package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/morezero/catalog-broker/pkg/ids"
)

const routerLogPrefix = "router:router"

// NewRouterParams holds the collaborators of a Router.
type NewRouterParams struct {
	Factory  *ids.Factory
	Handlers []Handler
	// Verifier defaults to PresenceVerifier.
	Verifier TokenVerifier
}

// Router validates and dispatches requests. Every outcome, including every
// validation failure, is expressed as a Response; Handle never fails.
type Router struct {
	factory    *ids.Factory
	pipeline   *Pipeline
	dispatcher *Dispatcher
}

// NewRouter creates a Router. The handler list is copied.
func NewRouter(params NewRouterParams) *Router {
	return &Router{
		factory:    params.Factory,
		pipeline:   &Pipeline{Verifier: params.Verifier},
		dispatcher: NewDispatcher(params.Factory, params.Handlers...),
	}
}

// Factory returns the factory used for rejection envelopes.
func (r *Router) Factory() *ids.Factory {
	return r.factory
}

// Handle routes one request. header is nil when the request carried no
// header part; payload is nil when it carried no payload part.
func (r *Router) Handle(ctx context.Context, header io.Reader, payload *string) *Response {
	req, partial, err := r.pipeline.Validate(ctx, header, payload)
	if err != nil {
		return &Response{Header: r.reject(partial, err)}
	}

	resp, err := r.dispatcher.Dispatch(ctx, req)
	if err != nil {
		slog.Info(fmt.Sprintf("%s - %v (id=%s)", routerLogPrefix, err, req.Header.ID))
	}
	return resp
}

func (r *Router) reject(partial *ids.Envelope, err error) *ids.Envelope {
	var parseErr *ids.ParseError
	var fieldErr *MissingFieldError
	switch {
	case errors.Is(err, ErrMissingHeader):
		slog.Debug(fmt.Sprintf("%s - request without header part", routerLogPrefix))
		return r.factory.Malformed(nil)
	case errors.As(err, &parseErr):
		slog.Warn(fmt.Sprintf("%s - could not parse header: %v", routerLogPrefix, err))
		return r.factory.Malformed(nil)
	case errors.As(err, &fieldErr):
		slog.Debug(fmt.Sprintf("%s - %v", routerLogPrefix, err))
		return r.factory.Malformed(partial)
	case errors.Is(err, ErrMissingToken):
		slog.Warn(fmt.Sprintf("%s - token is missing in header %s", routerLogPrefix, partial.ID))
		return r.factory.Unauthenticated(partial)
	case errors.Is(err, ErrTokenRejected):
		slog.Warn(fmt.Sprintf("%s - %v (id=%s)", routerLogPrefix, err, partial.ID))
		return r.factory.Unauthenticated(partial)
	default:
		slog.Error(fmt.Sprintf("%s - unexpected validation error: %v", routerLogPrefix, err))
		return r.factory.Malformed(partial)
	}
}

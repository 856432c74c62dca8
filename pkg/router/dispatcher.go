package router

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/morezero/catalog-broker/pkg/ids"
)

const logPrefix = "router:dispatcher"

// Handler processes the requests its predicate accepts. CanHandle must only
// inspect the request and must not block.
type Handler interface {
	CanHandle(req *Request) bool
	Handle(ctx context.Context, req *Request) *Response
}

// Route adapts a predicate and a processing function to Handler.
type Route struct {
	Name    string
	Match   func(req *Request) bool
	Process func(ctx context.Context, req *Request) *Response
}

func (r Route) CanHandle(req *Request) bool {
	return r.Match != nil && r.Match(req)
}

func (r Route) Handle(ctx context.Context, req *Request) *Response {
	return r.Process(ctx, req)
}

func (r Route) String() string {
	return r.Name
}

// Dispatcher selects the first handler, in registration order, whose
// predicate accepts a request.
type Dispatcher struct {
	factory  *ids.Factory
	handlers []Handler
}

// NewDispatcher creates a Dispatcher over a private copy of handlers.
func NewDispatcher(factory *ids.Factory, handlers ...Handler) *Dispatcher {
	hs := make([]Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	return &Dispatcher{factory: factory, handlers: hs}
}

// Len returns the number of registered handlers.
func (d *Dispatcher) Len() int {
	return len(d.handlers)
}

// Dispatch invokes only the first matching handler. When none matches it
// returns an unsupported-type rejection along with *UnsupportedTypeError.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) (*Response, error) {
	for _, h := range d.handlers {
		if !h.CanHandle(req) {
			continue
		}
		slog.Debug(fmt.Sprintf("%s - type=%s id=%s handler=%s", logPrefix, req.MessageType(), req.Header.ID, handlerName(h)))
		resp := h.Handle(ctx, req)
		if resp == nil || resp.Header == nil {
			slog.Warn(fmt.Sprintf("%s - handler %s returned no response for %s", logPrefix, handlerName(h), req.Header.ID))
			return &Response{Header: d.factory.InternalError(req.Header)}, nil
		}
		return resp, nil
	}
	return &Response{Header: d.factory.UnsupportedType(req.Header)}, &UnsupportedTypeError{Type: req.MessageType()}
}

func handlerName(h Handler) string {
	if s, ok := h.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", h)
}

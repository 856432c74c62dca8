package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/morezero/catalog-broker/pkg/directory"
	"github.com/morezero/catalog-broker/pkg/events"
	"github.com/morezero/catalog-broker/pkg/ids"
	"github.com/morezero/catalog-broker/pkg/router"
)

const (
	testBrokerID = "https://broker.example.com"
	testSelf     = `{"@id":"https://broker.example.com","@type":"ids:Broker"}`
)

// recorder collects published events.
type recorder struct {
	mu     sync.Mutex
	events []*events.NodeChangedEvent
}

func (r *recorder) publish(_ context.Context, e *events.NodeChangedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

// failingDirectory fails every operation.
type failingDirectory struct{}

var errStore = errors.New("store unavailable")

func (failingDirectory) Insert(context.Context, directory.Node) error { return errStore }

func (failingDirectory) Get(context.Context, string) (*directory.Node, error) {
	return nil, errStore
}

func (failingDirectory) GetAll(context.Context) ([]directory.Node, error) {
	return nil, errStore
}

func (failingDirectory) Delete(context.Context, string) (*directory.Node, error) {
	return nil, errStore
}

// staleReadDirectory serves an outdated node from Get, as a read racing a
// re-registration would. Delete reports the row actually removed.
type staleReadDirectory struct {
	*directory.Memory
	stale directory.Node
}

func (d staleReadDirectory) Get(context.Context, string) (*directory.Node, error) {
	n := d.stale
	return &n, nil
}

func testFactory() *ids.Factory {
	return &ids.Factory{
		Identity: ids.Identity{ConnectorID: testBrokerID, ModelVersion: "4.2.7"},
		NewID:    func(messageType string) string { return "urn:test:" + messageType },
		Now:      func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func newTestHandlers(dir directory.NodeDirectory) (*Handlers, *recorder) {
	rec := &recorder{}
	h := New(Deps{
		Factory:         testFactory(),
		Directory:       dir,
		Publisher:       events.NewCallbackPublisher(rec.publish),
		SelfDescription: json.RawMessage(testSelf),
	})
	return h, rec
}

func testRequest(messageType string, payload *string) *router.Request {
	return &router.Request{
		Header: &ids.Envelope{
			ID:              "https://connector.example.com/messages/1",
			Type:            messageType,
			IssuerConnector: "https://connector.example.com",
			SenderAgent:     "https://agent.example.com",
			ModelVersion:    "4.2.7",
			SecurityToken:   &ids.SecurityToken{TokenValue: "token"},
		},
		Payload: payload,
		Claims:  router.Claims{},
	}
}

func ptr(s string) *string { return &s }

func rejectionReason(resp *router.Response) string {
	if resp == nil || resp.Header == nil || resp.Header.RejectionReason == nil {
		return ""
	}
	return resp.Header.RejectionReason.ID
}

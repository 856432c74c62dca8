package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/morezero/catalog-broker/pkg/ids"
)

const routerTestPrefix = "router:router_test"

func echoRoute(messageType string) Route {
	return Route{
		Name:  messageType,
		Match: func(req *Request) bool { return req.MessageType() == messageType },
		Process: func(_ context.Context, req *Request) *Response {
			var payload any
			if req.Payload != nil {
				payload = *req.Payload
			}
			return &Response{Header: &ids.Envelope{ID: "reply", CorrelationMessage: req.Header.ID}, Payload: payload}
		},
	}
}

func newTestRouter(verifier TokenVerifier) *Router {
	return NewRouter(NewRouterParams{
		Factory:  testFactory(),
		Handlers: []Handler{echoRoute(ids.TypeConnectorUpdate)},
		Verifier: verifier,
	})
}

func TestRouter_Outcomes(t *testing.T) {
	noToken := `{"@type": "ids:ConnectorUpdateMessage", "@id": "https://c.example.com/m/7",
		"ids:issuerConnector": "https://c.example.com", "ids:senderAgent": "https://a.example.com"}`
	noIssuer := `{"@type": "ids:ConnectorUpdateMessage", "@id": "https://c.example.com/m/8",
		"ids:senderAgent": "https://a.example.com", "ids:securityToken": {"ids:tokenValue": "t"}}`
	unsupported := strings.Replace(validHeader, ids.TypeConnectorUpdate, "ids:ArtifactRequestMessage", 1)

	tests := []struct {
		name            string
		header          *string
		wantReason      string
		wantCorrelation string
	}{
		{"absent header", nil, ids.ReasonMalformedMessage, ""},
		{"unparseable header", ptr(`{not json`), ids.ReasonMalformedMessage, ""},
		{"missing issuer", &noIssuer, ids.ReasonMalformedMessage, "https://c.example.com/m/8"},
		{"missing token", &noToken, ids.ReasonNotAuthenticated, "https://c.example.com/m/7"},
		{"no handler", &unsupported, ids.ReasonMessageTypeNotSupported, "https://connector.example.com/messages/1"},
	}
	r := newTestRouter(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp *Response
			if tt.header == nil {
				resp = r.Handle(context.Background(), nil, nil)
			} else {
				resp = r.Handle(context.Background(), strings.NewReader(*tt.header), nil)
			}
			if resp == nil || resp.Header == nil {
				t.Fatalf("%s - router must always answer", routerTestPrefix)
			}
			if resp.Header.Type != ids.TypeRejection {
				t.Errorf("%s - Type = %q, want rejection", routerTestPrefix, resp.Header.Type)
			}
			if resp.Header.RejectionReason == nil || resp.Header.RejectionReason.ID != tt.wantReason {
				t.Errorf("%s - reason = %+v, want %s", routerTestPrefix, resp.Header.RejectionReason, tt.wantReason)
			}
			if resp.Header.CorrelationMessage != tt.wantCorrelation {
				t.Errorf("%s - CorrelationMessage = %q, want %q", routerTestPrefix, resp.Header.CorrelationMessage, tt.wantCorrelation)
			}
			if resp.Header.IssuerConnector != "https://broker.example.com" {
				t.Errorf("%s - rejection must carry broker identity, got %q", routerTestPrefix, resp.Header.IssuerConnector)
			}
			if resp.Payload != nil {
				t.Errorf("%s - rejection must have no payload", routerTestPrefix)
			}
		})
	}
}

func TestRouter_Dispatches(t *testing.T) {
	r := newTestRouter(nil)
	payload := `{"@id":"https://connector.example.com"}`
	resp := r.Handle(context.Background(), strings.NewReader(validHeader), &payload)
	if resp.Header.ID != "reply" {
		t.Fatalf("%s - expected handler response, got %+v", routerTestPrefix, resp.Header)
	}
	if resp.Payload != payload {
		t.Errorf("%s - Payload = %v, want %q", routerTestPrefix, resp.Payload, payload)
	}
}

func TestRouter_VerifierRejection(t *testing.T) {
	r := newTestRouter(claimsVerifier{err: errors.New("signature invalid")})
	resp := r.Handle(context.Background(), strings.NewReader(validHeader), nil)
	if resp.Header.RejectionReason == nil || resp.Header.RejectionReason.ID != ids.ReasonNotAuthenticated {
		t.Errorf("%s - expected not-authenticated rejection, got %+v", routerTestPrefix, resp.Header)
	}
}

func TestRouter_ConcurrentCorrelation(t *testing.T) {
	r := newTestRouter(nil)
	const n = 64

	var wg sync.WaitGroup
	errs := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("https://connector.example.com/messages/%d", i)
			header := strings.Replace(validHeader, "https://connector.example.com/messages/1", id, 1)
			if i%2 == 1 {
				header = strings.Replace(header, `"ids:tokenValue": "eyJhbGciOiJSUzI1NiJ9.e30.sig"`, `"ids:tokenValue": ""`, 1)
			}
			resp := r.Handle(context.Background(), strings.NewReader(header), nil)
			if resp.Header.CorrelationMessage != id {
				errs <- fmt.Sprintf("request %d correlated to %q", i, resp.Header.CorrelationMessage)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Errorf("%s - %s", routerTestPrefix, e)
	}
}

func ptr(s string) *string { return &s }

package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/morezero/catalog-broker/internal/config"
	"github.com/morezero/catalog-broker/pkg/directory"
	"github.com/morezero/catalog-broker/pkg/events"
	"github.com/morezero/catalog-broker/pkg/ids"
	"github.com/morezero/catalog-broker/pkg/multipart"
)

const serverTestPrefix = "server:server_test"

const testBrokerID = "https://broker.example.com"

const connectorSelfDescription = `{
	"@id": "https://connector.example.com",
	"@type": "ids:BaseConnector",
	"ids:hasDefaultEndpoint": {
		"@id": "https://connector.example.com/endpoint",
		"ids:accessURL": {"@id": "https://connector.example.com/api/ids/data"}
	}
}`

func testConfig() *config.Config {
	return &config.Config{
		ConnectorID:        testBrokerID,
		Title:              "Test broker",
		ModelVersion:       "4.2.7",
		PublicURL:          "https://broker.example.com",
		APIBasePath:        "/api",
		MultipartMaxBytes:  multipart.DefaultMaxPartBytes,
		RequestTimeout:     5 * time.Second,
		HealthCheckTimeout: 5 * time.Second,
		Directory:          config.DirectoryMemory,
	}
}

// testServer returns a Server over an in-memory directory.
func testServer(t *testing.T, cfg *config.Config, pub events.EventPublisher) (*Server, *directory.Memory) {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	dir := directory.NewMemory()
	s, err := New(NewServerParams{Config: cfg, Directory: dir, Publisher: pub})
	if err != nil {
		t.Fatalf("%s - New: %v", serverTestPrefix, err)
	}
	return s, dir
}

func header(messageType, id string) []byte {
	return []byte(`{
		"@context": "https://w3id.org/idsa/contexts/context.jsonld",
		"@type": "` + messageType + `",
		"@id": "` + id + `",
		"ids:issuerConnector": {"@id": "https://connector.example.com"},
		"ids:senderAgent": {"@id": "https://connector.example.com"},
		"ids:modelVersion": "4.2.7",
		"ids:issued": "2024-03-01T12:00:00.000Z",
		"ids:securityToken": {
			"@type": "ids:DynamicAttributeToken",
			"ids:tokenFormat": {"@id": "https://w3id.org/idsa/code/JWT"},
			"ids:tokenValue": "eyJhbGciOiJSUzI1NiJ9.e30.sig"
		}
	}`)
}

// postMessage sends a multipart broker message and decodes the multipart answer.
func postMessage(t *testing.T, h http.Handler, hdr []byte, payload *string) (*ids.Envelope, *multipart.Parts) {
	t.Helper()
	body, contentType, err := multipart.EncodeRequest(hdr, payload)
	if err != nil {
		t.Fatalf("%s - EncodeRequest: %v", serverTestPrefix, err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/infrastructure", bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	return serve(t, h, req)
}

func serve(t *testing.T, h http.Handler, req *http.Request) (*ids.Envelope, *multipart.Parts) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("%s - status = %d, want 200 for every protocol outcome", serverTestPrefix, rec.Code)
	}
	parts, err := multipart.ReadParts(rec.Body, rec.Header().Get("Content-Type"), multipart.DefaultMaxPartBytes)
	if err != nil {
		t.Fatalf("%s - ReadParts: %v", serverTestPrefix, err)
	}
	if !parts.HasHeader {
		t.Fatalf("%s - response has no header part", serverTestPrefix)
	}
	env, err := ids.Parse(parts.Header)
	if err != nil {
		t.Fatalf("%s - response header: %v", serverTestPrefix, err)
	}
	return env, parts
}

func reason(env *ids.Envelope) string {
	if env.RejectionReason == nil {
		return ""
	}
	return env.RejectionReason.ID
}

func ptr(s string) *string { return &s }

var errProbe = errors.New("probe failed")

func failingCheck(context.Context) error { return errProbe }

package multipart

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/morezero/catalog-broker/pkg/ids"
	"github.com/morezero/catalog-broker/pkg/router"
)

const multipartTestPrefix = "multipart:multipart_test"

func testHeader() *ids.Envelope {
	return &ids.Envelope{
		Context:         ids.DefaultContext,
		ID:              "https://broker.example.com/m/1",
		Type:            ids.TypeMessageProcessed,
		IssuerConnector: "https://broker.example.com",
		SenderAgent:     "https://broker.example.com",
	}
}

func TestEncode_HeaderOnly(t *testing.T) {
	body, contentType, err := Encode(&router.Response{Header: testHeader()})
	if err != nil {
		t.Fatalf("%s - Encode: %v", multipartTestPrefix, err)
	}
	if !strings.HasPrefix(contentType, "multipart/form-data; boundary=") {
		t.Errorf("%s - Content-Type = %q", multipartTestPrefix, contentType)
	}

	parts, err := ReadParts(bytes.NewReader(body), contentType, 0)
	if err != nil {
		t.Fatalf("%s - ReadParts: %v", multipartTestPrefix, err)
	}
	if !parts.HasHeader {
		t.Fatalf("%s - header part must always be present", multipartTestPrefix)
	}
	if parts.Payload != nil {
		t.Errorf("%s - payload part must be omitted for nil payload, got %q", multipartTestPrefix, *parts.Payload)
	}
	env, err := ids.Parse(parts.Header)
	if err != nil {
		t.Fatalf("%s - header part does not parse: %v", multipartTestPrefix, err)
	}
	if !env.Equal(testHeader()) {
		t.Errorf("%s - header round trip = %+v", multipartTestPrefix, env)
	}
}

func TestEncode_NullPayloadsOmitPart(t *testing.T) {
	payloads := map[string]any{
		"nil raw message": json.RawMessage(nil),
		"raw null":        json.RawMessage("null"),
		"nil pointer":     (*ids.Envelope)(nil),
		"nil slice":       []string(nil),
		"nil map":         map[string]any(nil),
	}
	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			body, contentType, err := Encode(&router.Response{Header: testHeader(), Payload: payload})
			if err != nil {
				t.Fatalf("%s - Encode: %v", multipartTestPrefix, err)
			}
			if bytes.Contains(body, []byte(`name="payload"`)) {
				t.Errorf("%s - payload part must be omitted, body:\n%s", multipartTestPrefix, body)
			}
			parts, err := ReadParts(bytes.NewReader(body), contentType, 0)
			if err != nil {
				t.Fatalf("%s - ReadParts: %v", multipartTestPrefix, err)
			}
			if !parts.HasHeader || parts.Payload != nil {
				t.Errorf("%s - want header only, got %+v", multipartTestPrefix, parts)
			}
		})
	}
}

func TestEncode_WithPayload(t *testing.T) {
	payload := []map[string]string{{"name": "node-1"}}
	body, contentType, err := Encode(&router.Response{Header: testHeader(), Payload: payload})
	if err != nil {
		t.Fatalf("%s - Encode: %v", multipartTestPrefix, err)
	}
	if !strings.Contains(string(body), "Content-Type: application/json") {
		t.Errorf("%s - parts must be declared as JSON", multipartTestPrefix)
	}

	parts, err := ReadParts(bytes.NewReader(body), contentType, 0)
	if err != nil {
		t.Fatalf("%s - ReadParts: %v", multipartTestPrefix, err)
	}
	if parts.Payload == nil {
		t.Fatalf("%s - payload part missing", multipartTestPrefix)
	}
	var got []map[string]string
	if err := json.Unmarshal([]byte(*parts.Payload), &got); err != nil || len(got) != 1 || got[0]["name"] != "node-1" {
		t.Errorf("%s - payload = %q (%v)", multipartTestPrefix, *parts.Payload, err)
	}
}

func TestEncode_RawPayloadPassesThrough(t *testing.T) {
	raw := json.RawMessage(`{"@id":"https://broker.example.com"}`)
	body, contentType, err := Encode(&router.Response{Header: testHeader(), Payload: raw})
	if err != nil {
		t.Fatalf("%s - Encode: %v", multipartTestPrefix, err)
	}
	parts, _ := ReadParts(bytes.NewReader(body), contentType, 0)
	if parts.Payload == nil || *parts.Payload != string(raw) {
		t.Errorf("%s - payload = %v, want %s", multipartTestPrefix, parts.Payload, raw)
	}
}

func TestEncode_NoHeader(t *testing.T) {
	if _, _, err := Encode(&router.Response{}); err == nil {
		t.Errorf("%s - expected error for response without header", multipartTestPrefix)
	}
	if _, _, err := Encode(nil); err == nil {
		t.Errorf("%s - expected error for nil response", multipartTestPrefix)
	}
}

func TestReadRequest(t *testing.T) {
	payload := `{"@id":"https://connector.example.com"}`
	body, contentType, err := EncodeRequest([]byte(`{"@id":"x"}`), &payload)
	if err != nil {
		t.Fatalf("%s - EncodeRequest: %v", multipartTestPrefix, err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/infrastructure", bytes.NewReader(body))
	req.Header.Set("Content-Type", contentType)

	parts, err := ReadRequest(req, 0)
	if err != nil {
		t.Fatalf("%s - ReadRequest: %v", multipartTestPrefix, err)
	}
	if string(parts.Header) != `{"@id":"x"}` {
		t.Errorf("%s - Header = %q", multipartTestPrefix, parts.Header)
	}
	if parts.Payload == nil || *parts.Payload != payload {
		t.Errorf("%s - Payload = %v", multipartTestPrefix, parts.Payload)
	}
	if parts.HeaderReader() == nil {
		t.Errorf("%s - HeaderReader() must be non-nil when a header was sent", multipartTestPrefix)
	}
}

func TestReadRequest_NotMultipart(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/infrastructure", strings.NewReader(`{"@id":"x"}`))
	req.Header.Set("Content-Type", "application/json")

	parts, err := ReadRequest(req, 0)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", multipartTestPrefix, err)
	}
	if parts.HasHeader || parts.HeaderReader() != nil {
		t.Errorf("%s - non-multipart body must yield no header part", multipartTestPrefix)
	}
}

func TestReadParts_OnlyPayload(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("--b\r\nContent-Disposition: form-data; name=\"payload\"\r\n\r\n{}\r\n--b--\r\n")
	parts, err := ReadParts(&buf, "multipart/form-data; boundary=b", 0)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", multipartTestPrefix, err)
	}
	if parts.HasHeader {
		t.Errorf("%s - no header part was sent", multipartTestPrefix)
	}
	if parts.Payload == nil || *parts.Payload != "{}" {
		t.Errorf("%s - Payload = %v", multipartTestPrefix, parts.Payload)
	}
}

func TestReadParts_TooLarge(t *testing.T) {
	body, contentType, _ := EncodeRequest([]byte(strings.Repeat("x", 64)), nil)
	_, err := ReadParts(bytes.NewReader(body), contentType, 16)
	if !errors.Is(err, ErrPartTooLarge) {
		t.Errorf("%s - err = %v, want ErrPartTooLarge", multipartTestPrefix, err)
	}
}

func TestWriteResponse(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteResponse(rec, &router.Response{Header: testHeader()}); err != nil {
		t.Fatalf("%s - WriteResponse: %v", multipartTestPrefix, err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("%s - status = %d, want 200", multipartTestPrefix, rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "multipart/form-data") {
		t.Errorf("%s - Content-Type = %q", multipartTestPrefix, rec.Header().Get("Content-Type"))
	}
}

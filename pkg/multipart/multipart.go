// Package multipart encodes broker responses as multipart/form-data and
// extracts the header and payload parts of inbound requests.
package multipart

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	mimemultipart "mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/morezero/catalog-broker/pkg/ids"
	"github.com/morezero/catalog-broker/pkg/router"
)

const logPrefix = "multipart:multipart"

// Part names.
const (
	PartHeader  = "header"
	PartPayload = "payload"
)

// DefaultMaxPartBytes bounds each part read by ReadParts when no limit is given.
const DefaultMaxPartBytes = 32 << 20

// ErrPartTooLarge is returned when a part exceeds the configured limit.
var ErrPartTooLarge = errors.New("multipart: part too large")

// Parts are the request parts the broker understands. Header is nil and
// HasHeader false when no header part was sent.
type Parts struct {
	Header    []byte
	HasHeader bool
	Payload   *string
}

// HeaderReader returns a reader over the header part, or nil when absent.
func (p *Parts) HeaderReader() io.Reader {
	if p == nil || !p.HasHeader {
		return nil
	}
	return bytes.NewReader(p.Header)
}

// ReadRequest extracts the parts of an HTTP request. A body that is not
// multipart yields empty Parts and no error.
func ReadRequest(r *http.Request, maxPartBytes int64) (*Parts, error) {
	return ReadParts(r.Body, r.Header.Get("Content-Type"), maxPartBytes)
}

// ReadParts reads a multipart body with the given Content-Type. The first
// part of each known name wins; unknown parts are skipped.
func ReadParts(body io.Reader, contentType string, maxPartBytes int64) (*Parts, error) {
	parts := &Parts{}
	if body == nil {
		return parts, nil
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return parts, nil
	}
	if maxPartBytes <= 0 {
		maxPartBytes = DefaultMaxPartBytes
	}

	mr := mimemultipart.NewReader(body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return parts, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read part: %w", logPrefix, err)
		}

		name := p.FormName()
		switch {
		case name == PartHeader && !parts.HasHeader:
			data, err := readLimited(p, maxPartBytes)
			if err != nil {
				return nil, fmt.Errorf("%s - header part: %w", logPrefix, err)
			}
			parts.Header = data
			parts.HasHeader = true
		case name == PartPayload && parts.Payload == nil:
			data, err := readLimited(p, maxPartBytes)
			if err != nil {
				return nil, fmt.Errorf("%s - payload part: %w", logPrefix, err)
			}
			s := string(data)
			parts.Payload = &s
		}
		p.Close()
	}
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrPartTooLarge
	}
	return data, nil
}

// Encode renders resp as multipart/form-data. The header part is always
// present; the payload part only when resp.HasPayload. Payloads are
// JSON encoded, so pre-encoded documents should be passed as json.RawMessage.
func Encode(resp *router.Response) ([]byte, string, error) {
	if resp == nil || resp.Header == nil {
		return nil, "", fmt.Errorf("%s - response has no header", logPrefix)
	}
	header, err := ids.Marshal(resp.Header, ids.Namespaced)
	if err != nil {
		return nil, "", fmt.Errorf("%s - failed to encode header: %w", logPrefix, err)
	}
	withPayload := resp.HasPayload()
	var payload []byte
	if withPayload {
		payload, err = json.Marshal(resp.Payload)
		if err != nil {
			return nil, "", fmt.Errorf("%s - failed to encode payload: %w", logPrefix, err)
		}
	}
	return encodeParts(header, payload, withPayload)
}

// EncodeRequest builds a request body from a raw header and optional payload.
func EncodeRequest(header []byte, payload *string) ([]byte, string, error) {
	if payload == nil {
		return encodeParts(header, nil, false)
	}
	return encodeParts(header, []byte(*payload), true)
}

// WriteResponse encodes resp and writes it with status 200.
func WriteResponse(w http.ResponseWriter, resp *router.Response) error {
	body, contentType, err := Encode(resp)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, err = w.Write(body)
	return err
}

func encodeParts(header, payload []byte, withPayload bool) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := mimemultipart.NewWriter(&buf)
	if err := writeJSONPart(mw, PartHeader, header); err != nil {
		return nil, "", err
	}
	if withPayload {
		if err := writeJSONPart(mw, PartPayload, payload); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("%s - failed to close writer: %w", logPrefix, err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func writeJSONPart(mw *mimemultipart.Writer, name string, data []byte) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, name))
	h.Set("Content-Type", "application/json")
	w, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("%s - failed to create %s part: %w", logPrefix, name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("%s - failed to write %s part: %w", logPrefix, name, err)
	}
	return nil
}

package ids

import (
	"encoding/json"
	"errors"
)

// Connector is the subset of a connector self-description the broker reads.
type Connector struct {
	ID                   string
	Type                 string
	OutboundModelVersion string
	DefaultEndpoint      *Endpoint
	Properties           map[string]any
}

// Endpoint is a connector endpoint with its access URL.
type Endpoint struct {
	ID         string
	AccessURL  string
	Properties map[string]any
}

// AccessURL returns the default endpoint's access URL, or "" when none is declared.
func (c *Connector) AccessURL() string {
	if c == nil || c.DefaultEndpoint == nil {
		return ""
	}
	return c.DefaultEndpoint.AccessURL
}

var endpointFields = []field[Endpoint]{
	uriField([]string{"@id", "id"}, func(e *Endpoint) *string { return &e.ID }),
	uriField([]string{"ids:accessURL", "accessURL"}, func(e *Endpoint) *string { return &e.AccessURL }),
}

var connectorFields = []field[Connector]{
	uriField([]string{"@id", "id"}, func(c *Connector) *string { return &c.ID }),
	stringField([]string{"@type", "type"}, func(c *Connector) *string { return &c.Type }),
	stringField([]string{"ids:outboundModelVersion", "outboundModelVersion"}, func(c *Connector) *string { return &c.OutboundModelVersion }),
	{
		keys: []string{"ids:hasDefaultEndpoint", "hasDefaultEndpoint"},
		decode: func(c *Connector, raw json.RawMessage) error {
			if isNull(raw) {
				return nil
			}
			m, err := rawObject(raw)
			if err != nil {
				return err
			}
			ep := &Endpoint{}
			props, err := decodeFields(m, ep, endpointFields)
			if err != nil {
				return err
			}
			ep.Properties = props
			c.DefaultEndpoint = ep
			return nil
		},
		encode: func(c *Connector, s Spelling) (any, bool) {
			if c.DefaultEndpoint == nil {
				return nil, false
			}
			return encodeFields(c.DefaultEndpoint, endpointFields, c.DefaultEndpoint.Properties, s), true
		},
	},
}

var errNoConnectorID = errors.New("connector description has no @id")

// ParseConnector decodes a connector self-description payload.
func ParseConnector(data []byte) (*Connector, error) {
	raw, err := rawObject(data)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	c := &Connector{}
	props, err := decodeFields(raw, c, connectorFields)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if c.ID == "" {
		return nil, &ParseError{Err: errNoConnectorID}
	}
	c.Properties = props
	return c, nil
}

// MarshalJSON encodes the connector with namespaced keys.
func (c *Connector) MarshalJSON() ([]byte, error) {
	return json.Marshal(encodeFields(c, connectorFields, c.Properties, Namespaced))
}

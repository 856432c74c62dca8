// Package selfdescription loads the broker's own connector self-description,
// served in answer to description requests.
package selfdescription

import (
	"encoding/json"

	"github.com/morezero/catalog-broker/pkg/ids"
)

// SourceDefault is the Source of a generated self-description.
const SourceDefault = "default"

// Params describe the broker when no self-description file is found.
type Params struct {
	ConnectorID          string
	Title                string
	ModelVersion         string
	InboundModelVersions []string
	// EndpointURL is the absolute URL of the infrastructure endpoint.
	EndpointURL string
}

// Description is a loaded self-description.
type Description struct {
	// Raw is the document encoded as JSON.
	Raw       json.RawMessage
	Connector *ids.Connector
	// Source is the file the document came from, or SourceDefault.
	Source string
}

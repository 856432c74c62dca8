// Package directory stores the federated catalog nodes known to the broker.
package directory

import (
	"context"
	"errors"
	"net/url"
	"slices"
)

// ProtocolIDSMultipart is the protocol advertised by nodes registered through
// the infrastructure endpoint.
const ProtocolIDSMultipart = "ids-multipart"

// Node is a federated catalog node. Name is the registering connector id.
type Node struct {
	Name               string   `json:"name"`
	TargetURL          string   `json:"targetUrl"`
	SupportedProtocols []string `json:"supportedProtocols"`
}

// ErrInvalidNode is returned for nodes without a name or a valid target URL.
var ErrInvalidNode = errors.New("directory: node requires a name and an absolute target URL")

// Validate checks the fields every stored node must carry.
func (n Node) Validate() error {
	if n.Name == "" || n.TargetURL == "" {
		return ErrInvalidNode
	}
	u, err := url.Parse(n.TargetURL)
	if err != nil || !u.IsAbs() {
		return ErrInvalidNode
	}
	return nil
}

func (n Node) clone() Node {
	n.SupportedProtocols = slices.Clone(n.SupportedProtocols)
	return n
}

// NodeDirectory persists nodes keyed by name. Get returns nil, nil for an
// unknown name; Delete returns the removed node, or nil when none existed.
type NodeDirectory interface {
	Insert(ctx context.Context, node Node) error
	Get(ctx context.Context, name string) (*Node, error)
	GetAll(ctx context.Context) ([]Node, error)
	Delete(ctx context.Context, name string) (*Node, error)
}

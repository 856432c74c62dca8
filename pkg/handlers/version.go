package handlers

import (
	"fmt"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const versionLogPrefix = "handlers:version"

// VersionGate restricts handlers to requests whose model version satisfies a
// semver constraint such as ">= 4.0.0, < 5.0.0".
type VersionGate struct {
	constraint *masterminds.Constraints
	raw        string
}

// NewVersionGate parses constraint. An empty constraint yields a nil gate,
// which allows every version.
func NewVersionGate(constraint string) (*VersionGate, error) {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" {
		return nil, nil
	}
	c, err := masterminds.NewConstraint(constraint)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid model version constraint %q: %w", versionLogPrefix, constraint, err)
	}
	return &VersionGate{constraint: c, raw: constraint}, nil
}

// Allows reports whether a header model version passes the gate. Headers
// without a model version always pass; unparseable versions never do.
func (g *VersionGate) Allows(version string) bool {
	if g == nil || version == "" {
		return true
	}
	v, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}
	return g.constraint.Check(v)
}

func (g *VersionGate) String() string {
	if g == nil {
		return "*"
	}
	return g.raw
}

package commsutil

import "strings"

// Default subjects.
const (
	SubjectInfrastructure = "broker.infrastructure"
	SubjectNodesChanged   = "broker.nodes.changed"
)

// BuildChangeSubject appends the change action to the base change subject,
// e.g. broker.nodes.changed.registered.
func BuildChangeSubject(base, action string) string {
	if base == "" {
		base = SubjectNodesChanged
	}
	action = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(action)
	if action == "" {
		return base
	}
	return base + "." + action
}

package directory

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process NodeDirectory.
type Memory struct {
	mu    sync.RWMutex
	nodes map[string]Node
}

// NewMemory creates an empty Memory directory.
func NewMemory() *Memory {
	return &Memory{nodes: make(map[string]Node)}
}

// Insert adds or replaces the node with the same name.
func (m *Memory) Insert(_ context.Context, node Node) error {
	if err := node.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[node.Name] = node.clone()
	return nil
}

func (m *Memory) Get(_ context.Context, name string) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[name]
	if !ok {
		return nil, nil
	}
	n = n.clone()
	return &n, nil
}

// GetAll returns every node ordered by name.
func (m *Memory) GetAll(_ context.Context) ([]Node, error) {
	m.mu.RLock()
	out := make([]Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n.clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Delete(_ context.Context, name string) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[name]
	if !ok {
		return nil, nil
	}
	delete(m.nodes, name)
	return &n, nil
}

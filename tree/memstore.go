package tree

import (
	"context"
	"sync"
)

// MemStore is the in-memory reference Store implementation. It is the
// store used by every test in this module and is a reasonable default
// for a single-process directory; a durable backend is an external
// collaborator (spec §1) this module does not provide.
type MemStore struct {
	mu    sync.RWMutex
	nodes map[NodeKind]map[string]*Node
}

// NewMemStore returns an empty store containing only the space for each
// node kind.
func NewMemStore() *MemStore {
	return &MemStore{
		nodes: map[NodeKind]map[string]*Node{
			KindRoot:     {},
			KindInterior: {},
			KindLeaf:     {},
		},
	}
}

func (m *MemStore) Get(_ context.Context, kind NodeKind, label NodeLabel) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[kind][label.Key()]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneNode(n), nil
}

func (m *MemStore) GetBatch(_ context.Context, kind NodeKind, labels []NodeLabel) (map[string]*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*Node, len(labels))
	for _, l := range labels {
		if n, ok := m.nodes[kind][l.Key()]; ok {
			out[l.Key()] = cloneNode(n)
		}
	}
	return out, nil
}

func (m *MemStore) SetMany(_ context.Context, writes []Write) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// All-or-nothing: validate before mutating so a partial batch never
	// becomes visible.
	for _, w := range writes {
		if w.Node == nil {
			return errNilWrite
		}
	}
	for _, w := range writes {
		m.nodes[w.Kind][w.Node.Label.Key()] = cloneNode(w.Node)
	}
	return nil
}

func (m *MemStore) GetRoot(ctx context.Context) (*Node, error) {
	return m.Get(ctx, KindRoot, EmptyLabel)
}

func cloneNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	c := &Node{
		Kind:  n.Kind,
		Label: n.Label,
	}
	if n.Left != nil {
		l := *n.Left
		c.Left = &l
	}
	if n.Right != nil {
		r := *n.Right
		c.Right = &r
	}
	c.Snapshots = append([]Snapshot(nil), n.Snapshots...)
	return c
}

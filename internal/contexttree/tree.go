// Package contexttree implements the Context Tree: a forest of
// host-provided context strings rendered depth-first into the system
// prompt. The teacher has no equivalent component; this is built in its
// idiom (plain struct, a depth-first renderer, no external dependency — see
// DESIGN.md for why no third-party tree library applies here).
package contexttree

import (
	"strings"
	"sync"

	"github.com/relaykit/agentcore/pkg/ids"
)

// Node is one entry in the forest: a value plus its children, addressable
// by ID for removal.
type Node struct {
	ID       string
	Value    string
	Children []*Node
}

// Tree is a mutable forest of context Nodes, shared between the host and
// the Agent Loop: the host adds/removes entries via Add/Remove; the loop
// renders a read-only snapshot into the system prompt at submit time.
type Tree struct {
	mu    sync.Mutex
	roots []*Node
	index map[string]*Node
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{index: make(map[string]*Node)}
}

// Add inserts a new node with value, optionally nested under parentID ("" =
// root level), and returns its generated ID.
func (t *Tree) Add(value string, parentID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	node := &Node{ID: ids.New("ctx_"), Value: value}
	if parentID == "" {
		t.roots = append(t.roots, node)
		t.index[node.ID] = node
		return node.ID, nil
	}
	parent, ok := t.index[parentID]
	if !ok {
		return "", errNoSuchNode(parentID)
	}
	parent.Children = append(parent.Children, node)
	t.index[node.ID] = node
	return node.ID, nil
}

// Remove deletes the node with id and all of its descendants.
func (t *Tree) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.index[id]; !ok {
		return
	}
	t.roots = removeFrom(t.roots, id)
	for _, root := range t.roots {
		pruneChildren(root, id)
	}
	t.deleteSubtreeFromIndex(id)
}

func (t *Tree) deleteSubtreeFromIndex(id string) {
	node, ok := t.index[id]
	if !ok {
		return
	}
	delete(t.index, id)
	for _, c := range node.Children {
		t.deleteSubtreeFromIndex(c.ID)
	}
}

func removeFrom(nodes []*Node, id string) []*Node {
	out := nodes[:0]
	for _, n := range nodes {
		if n.ID != id {
			out = append(out, n)
		}
	}
	return out
}

func pruneChildren(n *Node, id string) {
	n.Children = removeFrom(n.Children, id)
	for _, c := range n.Children {
		pruneChildren(c, id)
	}
}

// Render produces the depth-first, indented text block injected into the
// system prompt (§4.G, used by request construction §4.I.2).
func (t *Tree) Render() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.roots) == 0 {
		return ""
	}
	var b strings.Builder
	for _, root := range t.roots {
		renderNode(&b, root, 0)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderNode(b *strings.Builder, n *Node, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString("- ")
	b.WriteString(n.Value)
	b.WriteString("\n")
	for _, c := range n.Children {
		renderNode(b, c, depth+1)
	}
}

type noSuchNodeError string

func (e noSuchNodeError) Error() string { return "contexttree: no such node " + string(e) }

func errNoSuchNode(id string) error { return noSuchNodeError(id) }

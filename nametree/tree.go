// Package nametree provides an ordered suffix-matching set over dotted
// domain names. Names are stored as reversed label sequences, so a
// longest-suffix match becomes a prefix walk keyed on whole labels:
// "a.example.com" matches a stored "example.com", "badexample.com" does not.
package nametree

import (
	"errors"
	"strings"
	"unsafe"
)

var (
	// ErrInvalid means the name fails the syntactic check.
	ErrInvalid = errors.New("nametree: invalid name")
	// ErrDuplicated means the exact name is already present.
	ErrDuplicated = errors.New("nametree: duplicated name")
)

const (
	maxLabelLength = 63
	maxNameLength  = 255
)

// Tree is a digital trie keyed on reversed label sequences. Not safe for
// concurrent mutation; steady-state readers require an external swap
// discipline (see filter.Filter).
type Tree struct {
	root  node
	size  int
	nodes int
}

type node struct {
	children map[string]*node
	terminal bool
	tag      int
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{}
}

// Add inserts name into the set. Names are lowercased on insert.
func (t *Tree) Add(name string) error {
	return t.AddTag(name, 0)
}

// AddTag inserts name carrying an integer tag retrievable via Lookup.
// An existing entry keeps its original tag.
func (t *Tree) AddTag(name string, tag int) error {
	labels, ok := splitLabels(name)
	if !ok {
		return ErrInvalid
	}

	cur := &t.root
	for i := len(labels) - 1; i >= 0; i-- {
		label := labels[i]
		if cur.children == nil {
			cur.children = make(map[string]*node)
		}
		next, ok := cur.children[label]
		if !ok {
			next = &node{}
			cur.children[label] = next
			t.nodes++
		}
		cur = next
	}

	if cur.terminal {
		return ErrDuplicated
	}
	cur.terminal = true
	cur.tag = tag
	t.size++
	return nil
}

// Match reports whether any stored name is a label-aligned suffix of name.
func (t *Tree) Match(name string) bool {
	_, ok := t.Lookup(name)
	return ok
}

// Lookup walks name from its last label towards the first and returns the
// tag of the best matching stored suffix. When several stored suffixes
// match, the smallest tag wins, which preserves registration order for
// tagged sets.
func (t *Tree) Lookup(name string) (int, bool) {
	labels, ok := splitLabels(name)
	if !ok {
		return 0, false
	}

	best := 0
	found := false

	cur := &t.root
	for i := len(labels) - 1; i >= 0; i-- {
		next, ok := cur.children[labels[i]]
		if !ok {
			break
		}
		cur = next
		if cur.terminal && (!found || cur.tag < best) {
			best = cur.tag
			found = true
		}
	}

	return best, found
}

// Size returns the number of stored names.
func (t *Tree) Size() int {
	return t.size
}

// MemoryEstimate returns an approximation of the heap held by the tree,
// for logging only.
func (t *Tree) MemoryEstimate() int {
	est := int(unsafe.Sizeof(Tree{}))
	est += t.nodes * int(unsafe.Sizeof(node{}))
	var walk func(n *node)
	walk = func(n *node) {
		for label, child := range n.children {
			est += len(label) + int(unsafe.Sizeof(&node{}))
			walk(child)
		}
	}
	walk(&t.root)
	return est
}

// Clear removes all entries.
func (t *Tree) Clear() {
	t.root = node{}
	t.size = 0
	t.nodes = 0
}

func splitLabels(name string) ([]string, bool) {
	if name == "" || len(name)+2 > maxNameLength {
		return nil, false
	}
	labels := strings.Split(strings.ToLower(name), ".")
	for _, label := range labels {
		if len(label) == 0 || len(label) > maxLabelLength {
			return nil, false
		}
	}
	return labels, true
}

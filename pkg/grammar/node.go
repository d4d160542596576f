// Package grammar parses the iproute2 route grammar into a tree of
// segment nodes and renders canonical text back from it.
//
// The grammar, as documented by ip-route(8):
//
//	ROUTE     := [ ACTION ] NODE_SPEC INFO_SPEC
//	NODE_SPEC := [ TYPE ] PREFIX [ tos TOS ] [ table ID ] [ proto P ]
//	             [ scope S ] [ metric M ]
//	INFO_SPEC := NH OPTIONS
//	NH        := [ NHFLAGS ] [ via ADDR ] [ dev DEV ] [ weight W ]
//	OPTIONS   := [ mtu N ] [ advmss N ] ... [ initrwnd N ]
//
// Every segment claims tokens from a shared TokenStream and leaves the rest
// for its next sibling.
package grammar

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Kind identifies a grammar segment.
type Kind string

const (
	KindRoute    Kind = "ROUTE"
	KindNodeSpec Kind = "NODE_SPEC"
	KindInfoSpec Kind = "INFO_SPEC"
	KindNextHop  Kind = "NH"
	KindOptions  Kind = "OPTIONS"
)

// slot declares a child position of a segment. A repeatable slot may be
// instantiated more than once (multipath next hops).
type slot struct {
	kind   Kind
	repeat bool
}

// segment is the static description of one grammar segment.
type segment struct {
	kind     Kind
	fields   []string
	children []slot
	parse    func(p *Parser, n *Node, ts *TokenStream) error
}

type namedChild struct {
	name string
	node *Node
}

// Node is one parsed segment. It owns the tokens it claimed, its declared
// field values and its children.
type Node struct {
	seg      *segment
	parent   *Node
	group    int
	text     []string
	values   map[string]string
	children []namedChild
}

func newNode(seg *segment, group int) *Node {
	return &Node{
		seg:    seg,
		group:  group,
		values: make(map[string]string, len(seg.fields)),
	}
}

// Kind returns the segment kind of n.
func (n *Node) Kind() Kind { return n.seg.kind }

// Name returns the name n is stored under in its parent.
func (n *Node) Name() string {
	if n.group == 0 {
		return string(n.seg.kind)
	}
	return string(n.seg.kind) + strconv.Itoa(n.group+1)
}

// Fields returns the field names declared by the segment, in order.
func (n *Node) Fields() []string {
	return slices.Clone(n.seg.fields)
}

// Children returns the child nodes in construction order.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	for i, c := range n.children {
		out[i] = c.node
	}
	return out
}

// Child returns the child stored under name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.children {
		if c.name == name {
			return c.node
		}
	}
	return nil
}

// Field returns the value of a declared field, or "" when unset or unknown.
func (n *Node) Field(name string) string {
	return n.values[name]
}

// Has reports whether the field is set.
func (n *Node) Has(name string) bool {
	_, ok := n.values[name]
	return ok
}

// Get resolves name against the declared fields, then the children. A
// declared but unset field yields nil; a field yields a string and a child
// a *Node.
func (n *Node) Get(name string) (any, error) {
	if n.declares(name) {
		if v, ok := n.values[name]; ok {
			return v, nil
		}
		return nil, nil
	}
	if c := n.Child(name); c != nil {
		return c, nil
	}
	if _, ok := n.slotFor(name); ok {
		return nil, nil
	}
	return nil, &NameNotFoundError{Segment: n.Kind(), Name: name}
}

// Set assigns a field (string, or nil to unset) or replaces a child
// (*Node of the slot's kind). A child must not be attached elsewhere, and
// a repeated slot (NH2, NH3, ...) only takes a group that opens with the
// nexthop keyword.
func (n *Node) Set(name string, value any) error {
	if n.declares(name) {
		switch v := value.(type) {
		case nil:
			delete(n.values, name)
		case string:
			n.values[name] = v
		default:
			return fmt.Errorf("%s.%s: %T: %w", n.Kind(), name, value, ErrValueType)
		}
		return nil
	}
	kind, ok := n.slotFor(name)
	if !ok {
		return &NameNotFoundError{Segment: n.Kind(), Name: name}
	}
	child, isNode := value.(*Node)
	if !isNode || child == nil || child.Kind() != kind {
		return fmt.Errorf("%s.%s: %T: %w", n.Kind(), name, value, ErrValueType)
	}
	group := groupOf(name, kind)
	if group > 0 && !child.opensGroup() {
		return fmt.Errorf("%s.%s: group without %q: %w", n.Kind(), name, nexthopKeyword, ErrValueType)
	}
	if child.parent != nil {
		if child.parent == n && n.Child(name) == child {
			return nil
		}
		return fmt.Errorf("%s.%s: %w to %s", n.Kind(), name, ErrAttached, child.parent.Kind())
	}

	child.parent, child.group = n, group
	for i := range n.children {
		if n.children[i].name == name {
			n.children[i].node.parent = nil
			n.children[i].node = child
			return nil
		}
	}
	at := len(n.children)
	for i, c := range n.children {
		if n.slotOrder(c.name, c.node) > n.slotOrder(name, child) {
			at = i
			break
		}
	}
	n.children = slices.Insert(n.children, at, namedChild{name: name, node: child})
	return nil
}

// Delete unsets a field or removes a child. Declared names that hold
// nothing are a no-op, matching Get.
func (n *Node) Delete(name string) error {
	if n.declares(name) {
		delete(n.values, name)
		return nil
	}
	for i, c := range n.children {
		if c.name == name {
			c.node.parent = nil
			n.children = slices.Delete(n.children, i, i+1)
			return nil
		}
	}
	if _, ok := n.slotFor(name); ok {
		return nil
	}
	return &NameNotFoundError{Segment: n.Kind(), Name: name}
}

// Text returns the tokens n itself claimed, single-spaced.
func (n *Node) Text() string {
	return strings.Join(n.text, " ")
}

// Canonical renders n and its subtree: own tokens first, then each child
// in slot order.
func (n *Node) Canonical() string {
	parts := make([]string, 0, 1+len(n.children))
	if len(n.text) > 0 {
		parts = append(parts, n.Text())
	}
	for _, c := range n.children {
		if s := c.node.Canonical(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// String implements fmt.Stringer with the canonical subtree text.
func (n *Node) String() string { return n.Canonical() }

// Map returns the set fields and children as nested maps, suitable for
// JSON and protobuf Struct encoding.
func (n *Node) Map() map[string]any {
	m := make(map[string]any, len(n.values)+len(n.children))
	for _, f := range n.seg.fields {
		if v, ok := n.values[f]; ok {
			m[f] = v
		}
	}
	for _, c := range n.children {
		m[c.name] = c.node.Map()
	}
	return m
}

func (n *Node) declares(name string) bool {
	return slices.Contains(n.seg.fields, name)
}

// slotFor maps a child name (NH, NH2, ...) to its declared slot kind.
func (n *Node) slotFor(name string) (Kind, bool) {
	for _, s := range n.seg.children {
		if name == string(s.kind) || (s.repeat && groupOf(name, s.kind) > 0) {
			return s.kind, true
		}
	}
	return "", false
}

// groupOf returns the group index encoded in a child name: 0 for "NH",
// 1 for "NH2" and so on, -1 when name is not a slot name of kind.
func groupOf(name string, kind Kind) int {
	base := string(kind)
	if name == base {
		return 0
	}
	if !strings.HasPrefix(name, base) {
		return -1
	}
	digits := name[len(base):]
	if digits[0] < '1' || digits[0] > '9' {
		return -1
	}
	i, err := strconv.Atoi(digits)
	if err != nil || i < 2 {
		return -1
	}
	return i - 1
}

// slotOrder ranks a child by declared slot position, then by group, so
// children set by name land where the parser would have put them.
func (n *Node) slotOrder(name string, c *Node) int {
	for i, s := range n.seg.children {
		if s.kind == c.Kind() {
			return i<<16 + max(groupOf(name, s.kind), 0)
		}
	}
	return len(n.seg.children) << 16
}

// opensGroup reports whether n claimed the nexthop keyword first.
func (n *Node) opensGroup() bool {
	return len(n.text) > 0 && n.text[0] == nexthopKeyword
}

// claim records tokens as consumed by n.
func (n *Node) claim(tokens ...string) {
	n.text = append(n.text, tokens...)
}

func (n *Node) assign(field, value string) {
	n.claim(value)
	n.values[field] = value
}

func (n *Node) addChild(c *Node) {
	c.parent = n
	n.children = append(n.children, namedChild{name: c.Name(), node: c})
}

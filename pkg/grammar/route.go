package grammar

import (
	"net/netip"
	"strings"

	"github.com/psaab/iproute2/pkg/cidr"
)

// Route is a parsed route: the ROUTE node tree plus the tokens nothing
// claimed (always empty under TrailingReject).
type Route struct {
	root      *Node
	Remainder []string
}

// Root returns the ROUTE node.
func (r *Route) Root() *Node { return r.root }

// NodeSpec returns the NODE_SPEC node.
func (r *Route) NodeSpec() *Node { return r.root.Child(string(KindNodeSpec)) }

// InfoSpec returns the INFO_SPEC node.
func (r *Route) InfoSpec() *Node { return r.root.Child(string(KindInfoSpec)) }

// NextHops returns the NH nodes in order. Without multipath there is
// exactly one.
func (r *Route) NextHops() []*Node {
	info := r.InfoSpec()
	if info == nil {
		return nil
	}
	var out []*Node
	for _, c := range info.Children() {
		if c.Kind() == KindNextHop {
			out = append(out, c)
		}
	}
	return out
}

// TuningOptions returns the OPTIONS node.
func (r *Route) TuningOptions() *Node {
	if info := r.InfoSpec(); info != nil {
		return info.Child(string(KindOptions))
	}
	return nil
}

// Action returns the route action, or "".
func (r *Route) Action() string { return r.root.Field(FieldAction) }

// Type returns the route type, or "".
func (r *Route) Type() string { return field(r.NodeSpec(), FieldType) }

// Prefix returns the destination token as written.
func (r *Route) Prefix() string { return field(r.NodeSpec(), FieldPrefix) }

// Destination returns the masked destination prefix. ok is false for
// "default", which has no address family of its own.
func (r *Route) Destination() (p netip.Prefix, ok bool) {
	prefix := r.Prefix()
	if prefix == "" || prefix == cidr.Default {
		return netip.Prefix{}, false
	}
	p, err := cidr.Parse(prefix)
	return p, err == nil
}

// Option returns the value of an option keyword from whichever segment
// declares it; for next-hop keywords the first NH is used.
func (r *Route) Option(name string) string {
	for _, n := range []*Node{r.NodeSpec(), r.TuningOptions()} {
		if n != nil && n.declares(name) {
			return n.Field(name)
		}
	}
	if nhs := r.NextHops(); len(nhs) > 0 {
		return nhs[0].Field(name)
	}
	return ""
}

// Lookup resolves a dotted path from the root, for example
// "NODE_SPEC.metric" or "INFO_SPEC.NH.via".
func (r *Route) Lookup(path string) (any, error) {
	cur := r.root
	parts := strings.Split(path, ".")
	for i, name := range parts {
		v, err := cur.Get(name)
		if err != nil {
			return nil, err
		}
		if i == len(parts)-1 {
			return v, nil
		}
		next, ok := v.(*Node)
		if !ok || next == nil {
			return nil, &NameNotFoundError{Segment: cur.Kind(), Name: strings.Join(parts[:i+1], ".")}
		}
		cur = next
	}
	return cur, nil
}

// String returns the canonical text of the whole tree.
func (r *Route) String() string { return r.root.Canonical() }

// Tokens returns the canonical text split into tokens.
func (r *Route) Tokens() []string { return strings.Fields(r.String()) }

// Map returns the tree as nested maps keyed by field and child name.
func (r *Route) Map() map[string]any { return r.root.Map() }

func field(n *Node, name string) string {
	if n == nil {
		return ""
	}
	return n.Field(name)
}

package grammar

import (
	"errors"
	"slices"

	"github.com/psaab/iproute2/pkg/cidr"
)

var (
	routeActions = []string{"add", "del", "change", "append", "replace", "monitor"}
	routeTypes   = []string{"unicast", "local", "broadcast", "multicast", "throw",
		"unreachable", "prohibit", "blackhole", "nat"}
	nodeSpecOptions = []string{"tos", "table", "proto", "scope", "metric"}
	nextHopFlags    = []string{"onlink", "pervasive"}
	nextHopOptions  = []string{"via", "dev", "weight"}
	tuningOptions   = []string{"mtu", "advmss", "rtt", "rttvar", "reordering", "window",
		"cwnd", "initcwnd", "ssthresh", "realms", "src", "rto_min", "hoplimit", "initrwnd"}
)

// nexthopKeyword opens a next-hop group in a multipath route.
const nexthopKeyword = "nexthop"

// Field names that are not option keywords.
const (
	FieldAction  = "action"
	FieldType    = "type"
	FieldPrefix  = "prefix"
	FieldNHFlags = "nhflags"
)

var (
	routeSegment = &segment{
		kind:     KindRoute,
		fields:   []string{FieldAction},
		children: []slot{{kind: KindNodeSpec}, {kind: KindInfoSpec}},
		parse:    parseRoute,
	}
	nodeSpecSegment = &segment{
		kind:   KindNodeSpec,
		fields: append([]string{FieldType, FieldPrefix}, nodeSpecOptions...),
		parse:  parseNodeSpec,
	}
	infoSpecSegment = &segment{
		kind:     KindInfoSpec,
		children: []slot{{kind: KindNextHop, repeat: true}, {kind: KindOptions}},
		parse:    parseInfoSpec,
	}
	nextHopSegment = &segment{
		kind:   KindNextHop,
		fields: append([]string{FieldNHFlags}, nextHopOptions...),
		parse:  parseNextHop,
	}
	optionsSegment = &segment{
		kind:   KindOptions,
		fields: slices.Clone(tuningOptions),
		parse:  parseOptions,
	}
)

func segmentFor(k Kind) *segment {
	switch k {
	case KindRoute:
		return routeSegment
	case KindNodeSpec:
		return nodeSpecSegment
	case KindInfoSpec:
		return infoSpecSegment
	case KindNextHop:
		return nextHopSegment
	case KindOptions:
		return optionsSegment
	}
	return nil
}

// Keywords returns the option keywords a segment recognises.
func Keywords(k Kind) []string {
	switch k {
	case KindNodeSpec:
		return slices.Clone(nodeSpecOptions)
	case KindNextHop:
		return slices.Clone(nextHopOptions)
	case KindOptions:
		return slices.Clone(tuningOptions)
	}
	return nil
}

// claimIfFirst moves the head token into field when it belongs to set.
func claimIfFirst(n *Node, ts *TokenStream, field string, set []string) {
	tok, err := ts.PeekFirst()
	if err != nil || !slices.Contains(set, tok) {
		return
	}
	ts.RemoveFirst()
	n.assign(field, tok)
}

func parseRoute(_ *Parser, n *Node, ts *TokenStream) error {
	claimIfFirst(n, ts, FieldAction, routeActions)
	return nil
}

func parseNodeSpec(p *Parser, n *Node, ts *TokenStream) error {
	claimIfFirst(n, ts, FieldType, routeTypes)

	tok, err := ts.PeekFirst()
	if err != nil {
		return &MissingFieldError{Segment: KindNodeSpec, Field: FieldPrefix}
	}
	if _, err := p.validator.Validate(tok); err != nil {
		reason := err.Error()
		var verr *cidr.ValidationError
		if errors.As(err, &verr) {
			reason = verr.Reason
		}
		return &InvalidPrefixError{Prefix: tok, Reason: reason, Err: err}
	}
	ts.RemoveFirst()
	n.assign(FieldPrefix, tok)

	return p.scan(n, ts, 0, ts.Len(), nodeSpecOptions)
}

func parseInfoSpec(_ *Parser, _ *Node, _ *TokenStream) error {
	return nil
}

// parseNextHop claims one next-hop group. Without multipath the group is
// the whole stream. With multipath the first group ends at the first
// "nexthop" keyword; every later group starts with one and ends before the
// next. A first group with no next-hop tokens of its own takes the first
// "nexthop" group instead of staying empty.
func parseNextHop(p *Parser, n *Node, ts *TokenStream) error {
	lo, hi := 0, ts.Len()
	if p.opts.Multipath {
		at := ts.Index(nexthopKeyword, 0)
		if n.group > 0 || at == 0 || (at > 0 && !hasNextHopTokens(ts, at)) {
			kw, err := ts.RemoveAt(at)
			if err != nil {
				return &MissingFieldError{Segment: KindNextHop, Field: nexthopKeyword}
			}
			n.claim(kw)
			lo = at
			if hi = ts.Index(nexthopKeyword, lo); hi < 0 {
				hi = ts.Len()
			}
		} else if at > 0 {
			hi = at
		}
	}

	if tok, ok := ts.At(lo); ok && lo < hi && slices.Contains(nextHopFlags, tok) {
		ts.RemoveAt(lo)
		n.assign(FieldNHFlags, tok)
		hi--
	}
	return p.scan(n, ts, lo, hi, nextHopOptions)
}

// hasNextHopTokens reports whether [0, hi) opens with a next-hop flag or
// holds a next-hop keyword.
func hasNextHopTokens(ts *TokenStream, hi int) bool {
	if tok, ok := ts.At(0); ok && slices.Contains(nextHopFlags, tok) {
		return true
	}
	for i := 0; i < hi; i++ {
		if tok, _ := ts.At(i); slices.Contains(nextHopOptions, tok) {
			return true
		}
	}
	return false
}

func parseOptions(p *Parser, n *Node, ts *TokenStream) error {
	return p.scan(n, ts, 0, ts.Len(), tuningOptions)
}

// scan claims "keyword value" pairs found anywhere in [lo, hi). Tokens that
// are not keywords stay where they are.
func (p *Parser) scan(n *Node, ts *TokenStream, lo, hi int, keywords []string) error {
	seen := make(map[string]bool, len(keywords))
	for i := lo; i < hi; {
		tok, _ := ts.At(i)
		if !slices.Contains(keywords, tok) {
			i++
			continue
		}
		if seen[tok] {
			switch p.opts.Duplicates {
			case DuplicateReject:
				return &DuplicateKeywordError{Segment: n.Kind(), Keyword: tok}
			case DuplicateFirstWins:
				i += 2
				continue
			}
		}
		if i+1 >= hi {
			return &MissingFieldError{Segment: n.Kind(), Field: tok}
		}
		val, _ := ts.At(i + 1)
		ts.RemoveAt(i)
		ts.RemoveAt(i)
		hi -= 2
		n.claim(tok, val)
		n.values[tok] = val
		seen[tok] = true
	}
	return nil
}

// Vocabulary returns every reserved word of the grammar, sorted.
func Vocabulary() []string {
	var words []string
	for _, set := range [][]string{routeActions, routeTypes, nodeSpecOptions,
		nextHopFlags, nextHopOptions, tuningOptions, {nexthopKeyword, cidr.Default}} {
		words = append(words, set...)
	}
	slices.Sort(words)
	return slices.Compact(words)
}

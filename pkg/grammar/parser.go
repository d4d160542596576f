package grammar

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/psaab/iproute2/pkg/cidr"
)

// DuplicatePolicy decides what happens when an option keyword occurs twice
// within one segment.
type DuplicatePolicy int

const (
	DuplicateFirstWins DuplicatePolicy = iota // later pairs stay in the remainder
	DuplicateLastWins                         // later pairs are claimed and overwrite
	DuplicateReject                           // parse fails
)

func (d DuplicatePolicy) String() string {
	switch d {
	case DuplicateFirstWins:
		return "first"
	case DuplicateLastWins:
		return "last"
	case DuplicateReject:
		return "reject"
	}
	return fmt.Sprintf("DuplicatePolicy(%d)", int(d))
}

// ParseDuplicatePolicy converts a config name ("first", "last", "reject").
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "", "first":
		return DuplicateFirstWins, nil
	case "last":
		return DuplicateLastWins, nil
	case "reject":
		return DuplicateReject, nil
	}
	return 0, fmt.Errorf("unknown duplicate policy %q", s)
}

// TrailingPolicy decides whether unclaimed tokens fail the parse.
type TrailingPolicy int

const (
	TrailingReject TrailingPolicy = iota
	TrailingAllow
)

func (t TrailingPolicy) String() string {
	switch t {
	case TrailingReject:
		return "reject"
	case TrailingAllow:
		return "allow"
	}
	return fmt.Sprintf("TrailingPolicy(%d)", int(t))
}

// ParseTrailingPolicy converts a config name ("reject", "allow").
func ParseTrailingPolicy(s string) (TrailingPolicy, error) {
	switch s {
	case "", "reject":
		return TrailingReject, nil
	case "allow":
		return TrailingAllow, nil
	}
	return 0, fmt.Errorf("unknown trailing policy %q", s)
}

// Options configures a Parser. The zero value is the strict single-path
// grammar with first-wins duplicates and the standard CIDR validator.
type Options struct {
	Multipath  bool // parse repeated "nexthop" groups
	Duplicates DuplicatePolicy
	Trailing   TrailingPolicy
	Validator  cidr.Validator // nil = cidr.Standard
}

// Parser builds route trees. It holds no per-parse state and may be used
// from several goroutines.
type Parser struct {
	opts      Options
	validator cidr.Validator
}

// NewParser creates a Parser.
func NewParser(opts Options) *Parser {
	v := opts.Validator
	if v == nil {
		v = cidr.Standard
	}
	return &Parser{opts: opts, validator: v}
}

// Options returns the options the parser was built with.
func (p *Parser) Options() Options { return p.opts }

var defaultParser = NewParser(Options{})

// Parse parses tokens with the default options.
func Parse(tokens []string) (*Route, error) {
	return defaultParser.Parse(tokens)
}

// Parse builds the route tree for tokens. The input slice is not modified.
func (p *Parser) Parse(tokens []string) (*Route, error) {
	ts := NewTokenStream(tokens)
	root, err := p.build(KindRoute, 0, ts)
	if err != nil {
		slog.Debug("route parse failed", "tokens", len(tokens), "err", err)
		return nil, err
	}
	rest := ts.Snapshot()
	if len(rest) > 0 && p.opts.Trailing == TrailingReject {
		return nil, &TrailingTokensError{Tokens: rest}
	}
	r := &Route{root: root, Remainder: rest}
	slog.Debug("route parsed", "route", r.String(), "remainder", len(rest))
	return r, nil
}

// ParseLine tokenizes one line of route text and parses it.
func (p *Parser) ParseLine(line string) (*Route, error) {
	tokens, err := Tokenize(line)
	if err != nil {
		return nil, err
	}
	return p.Parse(tokens)
}

// ParseAll parses one route per line of r. Blank lines and "#" comments
// are skipped. The first failure is returned as a *LineError.
func (p *Parser) ParseAll(name string, r io.Reader) ([]*Route, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	lines, err := Lines(name, string(data))
	if err != nil {
		return nil, err
	}
	routes := make([]*Route, 0, len(lines))
	for _, l := range lines {
		route, err := p.Parse(l.Tokens)
		if err != nil {
			return nil, &LineError{Line: l.Number, Err: err}
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// build constructs a node of kind over ts: the segment's own parse first,
// then each child slot in order over whatever is left.
func (p *Parser) build(kind Kind, group int, ts *TokenStream) (*Node, error) {
	seg := segmentFor(kind)
	n := newNode(seg, group)
	if err := seg.parse(p, n, ts); err != nil {
		return nil, err
	}
	for _, s := range seg.children {
		child, err := p.build(s.kind, 0, ts)
		if err != nil {
			return nil, err
		}
		n.addChild(child)
		if !s.repeat || !p.opts.Multipath {
			continue
		}
		for g := 1; ts.Contains(nexthopKeyword); g++ {
			child, err := p.build(s.kind, g, ts)
			if err != nil {
				return nil, err
			}
			n.addChild(child)
		}
	}
	return n, nil
}

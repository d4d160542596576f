// Package routetable holds named routing tables of parsed routes and
// persists them in sqlite.
package routetable

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/psaab/iproute2/pkg/grammar"
	"github.com/psaab/iproute2/pkg/routing"
)

// Key identifies a route by the blake3 hash of its canonical text, so two
// routes that differ only in keyword order share a key.
func Key(r *grammar.Route) string {
	h := blake3.New()
	h.WriteString(r.String())
	return hex.EncodeToString(h.Sum(nil))
}

// Table is a named, ordered set of routes. Safe for concurrent use.
type Table struct {
	Name        string
	Description string

	mu     sync.RWMutex
	routes []*grammar.Route
	keys   map[string]int
}

// New returns an empty table.
func New(name, description string) *Table {
	return &Table{Name: name, Description: description, keys: make(map[string]int)}
}

// Add appends r unless an equal route is already present. It reports
// whether the route was added.
func (t *Table) Add(r *grammar.Route) bool {
	k := Key(r)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.keys[k]; ok {
		return false
	}
	t.keys[k] = len(t.routes)
	t.routes = append(t.routes, r)
	return true
}

// Remove deletes the route with key k and reports whether it existed.
func (t *Table) Remove(k string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i, ok := t.keys[k]
	if !ok {
		return false
	}
	t.routes = append(t.routes[:i], t.routes[i+1:]...)
	delete(t.keys, k)
	for j := i; j < len(t.routes); j++ {
		t.keys[Key(t.routes[j])] = j
	}
	return true
}

// Routes returns the routes in insertion order.
func (t *Table) Routes() []*grammar.Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*grammar.Route(nil), t.routes...)
}

// Len returns the number of routes.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.routes)
}

// Load parses a routes file into the table. Routes already present are
// skipped; the number of routes added is returned.
func (t *Table) Load(p *grammar.Parser, name string, r io.Reader) (int, error) {
	routes, err := p.ParseAll(name, r)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	added := 0
	for _, route := range routes {
		if t.Add(route) {
			added++
		}
	}
	return added, nil
}

// Commands renders each route as an ip argv targeting this table. Routes
// that name their own table keep it.
func (t *Table) Commands() [][]string {
	var out [][]string
	for _, r := range t.Routes() {
		args := routing.Command(r)
		if r.Option("table") == "" {
			args = append(args, "table", t.Name)
		}
		out = append(out, args)
	}
	return out
}

// String renders one canonical route per line, suitable for Load.
func (t *Table) String() string {
	var b strings.Builder
	for _, r := range t.Routes() {
		b.WriteString(r.String())
		b.WriteByte('\n')
	}
	return b.String()
}

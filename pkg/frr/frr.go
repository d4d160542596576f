// Package frr renders route tables as FRR static route configuration and
// maintains a managed section of frr.conf holding it.
package frr

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/psaab/iproute2/pkg/grammar"
	"github.com/psaab/iproute2/pkg/routetable"
)

const (
	// DefaultFRRConf is the main FRR config file.
	DefaultFRRConf = "/etc/frr/frr.conf"

	markerBegin = "! BEGIN ROUTEGRAMMAR MANAGED CONFIG - do not edit this section"
	markerEnd   = "! END ROUTEGRAMMAR MANAGED CONFIG"
)

// ErrUnsupported is returned for routes FRR static routes cannot express.
var ErrUnsupported = errors.New("not expressible as an FRR static route")

// Manager writes the managed section of one frr.conf file.
type Manager struct {
	frrConf string
}

// New creates a Manager for path, or DefaultFRRConf when path is empty.
func New(path string) *Manager {
	if path == "" {
		path = DefaultFRRConf
	}
	return &Manager{frrConf: path}
}

// StaticRoute produces FRR static route commands for r. Multiple next
// hops produce one line each (FRR creates ECMP). vrf may be empty.
func StaticRoute(r *grammar.Route, vrf string) (string, error) {
	dst, isV6 := destination(r)
	prefix := "ip"
	if isV6 {
		prefix = "ipv6"
	}

	var suffix strings.Builder
	if m := r.Option("metric"); m != "" {
		d, err := strconv.Atoi(m)
		if err != nil || d < 1 || d > 255 {
			return "", fmt.Errorf("%s: metric %s is outside the FRR distance range: %w", r.Prefix(), m, ErrUnsupported)
		}
		fmt.Fprintf(&suffix, " %d", d)
	}
	if tbl := r.Option("table"); tbl != "" && tbl != "main" {
		if _, err := strconv.ParseUint(tbl, 10, 32); err != nil {
			return "", fmt.Errorf("%s: table %s must be numeric: %w", r.Prefix(), tbl, ErrUnsupported)
		}
		suffix.WriteString(" table " + tbl)
	}
	if vrf != "" {
		suffix.WriteString(" vrf " + vrf)
	}

	switch r.Type() {
	case "", "unicast":
	case "blackhole":
		return fmt.Sprintf("%s route %s Null0%s\n", prefix, dst, suffix.String()), nil
	case "unreachable", "prohibit":
		return fmt.Sprintf("%s route %s reject%s\n", prefix, dst, suffix.String()), nil
	default:
		return "", fmt.Errorf("%s: route type %s: %w", r.Prefix(), r.Type(), ErrUnsupported)
	}

	var b strings.Builder
	for _, nh := range r.NextHops() {
		via, dev := nh.Field("via"), nh.Field("dev")
		var nexthop string
		switch {
		case via != "" && dev != "":
			nexthop = via + " " + dev
		case via != "":
			nexthop = via
		case dev != "":
			nexthop = dev
		default:
			continue
		}
		if nh.Field(grammar.FieldNHFlags) == "onlink" && dev != "" {
			nexthop += " onlink"
		}
		fmt.Fprintf(&b, "%s route %s %s%s\n", prefix, dst, nexthop, suffix.String())
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%s: no next hop: %w", r.Prefix(), ErrUnsupported)
	}
	return b.String(), nil
}

// destination returns the FRR destination text. "default" is IPv6 when
// any gateway is.
func destination(r *grammar.Route) (string, bool) {
	if p, ok := r.Destination(); ok {
		return p.String(), p.Addr().Is6()
	}
	for _, nh := range r.NextHops() {
		if strings.Contains(nh.Field("via"), ":") {
			return "::/0", true
		}
	}
	return "0.0.0.0/0", false
}

// Render produces the static routes of a table, one block per table.
// Routes FRR cannot express are skipped and logged; the first such error
// is returned alongside the rendered text.
func Render(t *routetable.Table, vrf string) (string, error) {
	var (
		b        strings.Builder
		firstErr error
	)
	fmt.Fprintf(&b, "! table %s\n", t.Name)
	for _, r := range t.Routes() {
		line, err := StaticRoute(r, vrf)
		if err != nil {
			slog.Debug("skipping route for FRR", "table", t.Name, "route", r.String(), "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		b.WriteString(line)
	}
	return b.String(), firstErr
}

// Clear removes the managed section from frr.conf.
func (m *Manager) Clear() error {
	return m.WriteManaged("")
}

// WriteManaged replaces the managed section in frr.conf.
// If section is empty, the managed block is removed entirely.
func (m *Manager) WriteManaged(section string) error {
	existing, err := os.ReadFile(m.frrConf)
	if err != nil {
		if os.IsNotExist(err) {
			existing = []byte("log syslog informational\n")
		} else {
			return fmt.Errorf("read frr.conf: %w", err)
		}
	}

	// Strip existing managed section
	content := string(existing)
	if start := strings.Index(content, markerBegin); start >= 0 {
		end := strings.Index(content, markerEnd)
		if end >= 0 {
			end += len(markerEnd)
			if end < len(content) && content[end] == '\n' {
				end++
			}
			content = content[:start] + content[end:]
		}
	}

	if section != "" {
		content = strings.TrimRight(content, "\n") + "\n"
		content += markerBegin + "\n"
		content += section
		content += markerEnd + "\n"
	}

	if err := os.WriteFile(m.frrConf, []byte(content), 0644); err != nil {
		return fmt.Errorf("write frr.conf: %w", err)
	}
	slog.Info("frr.conf managed section written", "file", m.frrConf, "bytes", len(section))
	return nil
}

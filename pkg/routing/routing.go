// Package routing converts parsed routes into netlink route objects and ip
// command lines, and back.
package routing

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"github.com/psaab/iproute2/pkg/grammar"
)

// ErrNoResolver is returned when a route names a device but no resolver
// was supplied.
var ErrNoResolver = errors.New("no link resolver for dev")

// LinkResolver maps interface names to kernel link indexes and back.
type LinkResolver interface {
	LinkIndex(name string) (int, error)
	LinkName(index int) (string, error)
}

// NetlinkResolver resolves links through a netlink handle.
type NetlinkResolver struct {
	h *netlink.Handle
}

// NewNetlinkResolver opens a netlink handle in the current namespace.
func NewNetlinkResolver() (*NetlinkResolver, error) {
	h, err := netlink.NewHandle()
	if err != nil {
		return nil, fmt.Errorf("netlink handle: %w", err)
	}
	return &NetlinkResolver{h: h}, nil
}

// LinkIndex implements LinkResolver.
func (r *NetlinkResolver) LinkIndex(name string) (int, error) {
	link, err := r.h.LinkByName(name)
	if err != nil {
		return 0, fmt.Errorf("interface %s not found: %w", name, err)
	}
	return link.Attrs().Index, nil
}

// LinkName implements LinkResolver.
func (r *NetlinkResolver) LinkName(index int) (string, error) {
	link, err := r.h.LinkByIndex(index)
	if err != nil {
		return "", fmt.Errorf("link %d not found: %w", index, err)
	}
	return link.Attrs().Name, nil
}

// Close releases the netlink handle.
func (r *NetlinkResolver) Close() {
	if r.h != nil {
		r.h.Close()
	}
}

var routeTypes = map[string]int{
	"unicast":     unix.RTN_UNICAST,
	"local":       unix.RTN_LOCAL,
	"broadcast":   unix.RTN_BROADCAST,
	"multicast":   unix.RTN_MULTICAST,
	"throw":       unix.RTN_THROW,
	"unreachable": unix.RTN_UNREACHABLE,
	"prohibit":    unix.RTN_PROHIBIT,
	"blackhole":   unix.RTN_BLACKHOLE,
	"nat":         unix.RTN_NAT,
}

var routeTables = map[string]int{
	"main":    unix.RT_TABLE_MAIN,
	"local":   unix.RT_TABLE_LOCAL,
	"default": unix.RT_TABLE_DEFAULT,
}

var routeProtocols = map[string]int{
	"redirect": unix.RTPROT_REDIRECT,
	"kernel":   unix.RTPROT_KERNEL,
	"boot":     unix.RTPROT_BOOT,
	"static":   unix.RTPROT_STATIC,
	"ra":       unix.RTPROT_RA,
	"dhcp":     unix.RTPROT_DHCP,
	"zebra":    unix.RTPROT_ZEBRA,
	"bird":     unix.RTPROT_BIRD,
}

var routeScopes = map[string]netlink.Scope{
	"global":  netlink.SCOPE_UNIVERSE,
	"site":    netlink.SCOPE_SITE,
	"link":    netlink.SCOPE_LINK,
	"host":    netlink.SCOPE_HOST,
	"nowhere": netlink.SCOPE_NOWHERE,
}

var nextHopFlags = map[string]int{
	"onlink":    int(netlink.FLAG_ONLINK),
	"pervasive": int(netlink.FLAG_PERVASIVE),
}

// ToNetlink builds the kernel representation of r. Nothing is installed.
func ToNetlink(r *grammar.Route, links LinkResolver) (*netlink.Route, error) {
	nr := &netlink.Route{}

	if t := r.Type(); t != "" {
		nr.Type = routeTypes[t]
	}
	if dst, ok := r.Destination(); ok {
		nr.Dst = prefixToIPNet(dst)
		nr.Family = familyOf(dst.Addr())
	}

	spec := r.NodeSpec()
	var err error
	if v := spec.Field("table"); v != "" {
		if nr.Table, err = lookupNumber(v, routeTables); err != nil {
			return nil, fmt.Errorf("table: %w", err)
		}
	}
	if v := spec.Field("proto"); v != "" {
		p, err := lookupNumber(v, routeProtocols)
		if err != nil {
			return nil, fmt.Errorf("proto: %w", err)
		}
		nr.Protocol = netlink.RouteProtocol(p)
	}
	if v := spec.Field("scope"); v != "" {
		s, ok := routeScopes[v]
		if !ok {
			n, err := strconv.ParseUint(v, 0, 8)
			if err != nil {
				return nil, fmt.Errorf("scope: unknown scope %q", v)
			}
			s = netlink.Scope(n)
		}
		nr.Scope = s
	}
	if v := spec.Field("tos"); v != "" {
		tos, err := parseTOS(v)
		if err != nil {
			return nil, fmt.Errorf("tos: %w", err)
		}
		nr.Tos = int(tos)
	}
	if v := spec.Field("metric"); v != "" {
		if nr.Priority, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("metric: %w", err)
		}
	}

	if err := applyNextHops(nr, r.NextHops(), links); err != nil {
		return nil, err
	}
	if opts := r.TuningOptions(); opts != nil {
		if err := applyOptions(nr, opts); err != nil {
			return nil, err
		}
	}
	return nr, nil
}

func applyNextHops(nr *netlink.Route, nhs []*grammar.Node, links LinkResolver) error {
	var used []*grammar.Node
	for _, nh := range nhs {
		if len(nh.Map()) > 0 {
			used = append(used, nh)
		}
	}
	if len(used) == 1 {
		gw, idx, flags, err := nextHop(used[0], links)
		if err != nil {
			return err
		}
		nr.Gw, nr.LinkIndex, nr.Flags = gw, idx, flags
		if nr.Family == 0 && gw != nil {
			nr.Family = familyOfIP(gw)
		}
		return nil
	}
	for _, nh := range used {
		gw, idx, flags, err := nextHop(nh, links)
		if err != nil {
			return err
		}
		info := &netlink.NexthopInfo{Gw: gw, LinkIndex: idx, Flags: flags}
		if w := nh.Field("weight"); w != "" {
			n, err := strconv.Atoi(w)
			if err != nil || n < 1 || n > 256 {
				return fmt.Errorf("%s: weight %q out of range 1..256", nh.Name(), w)
			}
			info.Hops = n - 1
		}
		nr.MultiPath = append(nr.MultiPath, info)
	}
	return nil
}

func nextHop(nh *grammar.Node, links LinkResolver) (net.IP, int, int, error) {
	var (
		gw    net.IP
		index int
	)
	if v := nh.Field("via"); v != "" {
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("%s: via %q: %w", nh.Name(), v, err)
		}
		gw = net.IP(addr.Unmap().AsSlice())
	}
	if v := nh.Field("dev"); v != "" {
		if links == nil {
			return nil, 0, 0, fmt.Errorf("%s: %s: %w", nh.Name(), v, ErrNoResolver)
		}
		idx, err := links.LinkIndex(v)
		if err != nil {
			return nil, 0, 0, fmt.Errorf("%s: %w", nh.Name(), err)
		}
		index = idx
	}
	return gw, index, nextHopFlags[nh.Field(grammar.FieldNHFlags)], nil
}

func applyOptions(nr *netlink.Route, opts *grammar.Node) error {
	ints := []struct {
		name string
		dst  *int
		ms   bool
	}{
		{"mtu", &nr.MTU, false},
		{"advmss", &nr.AdvMSS, false},
		{"rtt", &nr.Rtt, true},
		{"rttvar", &nr.RttVar, true},
		{"reordering", &nr.Reordering, false},
		{"window", &nr.Window, false},
		{"cwnd", &nr.Cwnd, false},
		{"initcwnd", &nr.InitCwnd, false},
		{"ssthresh", &nr.Ssthresh, false},
		{"rto_min", &nr.RtoMin, true},
		{"hoplimit", &nr.Hoplimit, false},
		{"initrwnd", &nr.InitRwnd, false},
	}
	for _, o := range ints {
		v := opts.Field(o.name)
		if v == "" {
			continue
		}
		var (
			n   int
			err error
		)
		if o.ms {
			n, err = parseMillis(v)
		} else {
			n, err = strconv.Atoi(v)
		}
		if err != nil {
			return fmt.Errorf("%s: %q is not a number", o.name, v)
		}
		*o.dst = n
	}
	if v := opts.Field("realms"); v != "" {
		realm, err := parseRealms(v)
		if err != nil {
			return fmt.Errorf("realms: %w", err)
		}
		nr.Realm = realm
	}
	if v := opts.Field("src"); v != "" {
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return fmt.Errorf("src %q: %w", v, err)
		}
		nr.Src = net.IP(addr.Unmap().AsSlice())
	}
	return nil
}

// Command returns the ip argv that would install r, without the binary
// name. A route without an action is rendered as "add".
func Command(r *grammar.Route) []string {
	toks := r.Tokens()
	if r.Action() == "" {
		toks = append([]string{"add"}, toks...)
	}
	return append([]string{"route"}, toks...)
}

// FromNetlink renders a kernel route as grammar tokens (without an action),
// so it can be fed back through the parser.
func FromNetlink(nr *netlink.Route, links LinkResolver) ([]string, error) {
	var toks []string
	if name := reverse(routeTypes, nr.Type); name != "" {
		toks = append(toks, name)
	}
	switch {
	case nr.Dst != nil:
		toks = append(toks, nr.Dst.String())
	default:
		toks = append(toks, "default")
	}
	if nr.Tos != 0 {
		toks = append(toks, "tos", fmt.Sprintf("0x%02x", nr.Tos))
	}
	if nr.Table != 0 {
		toks = append(toks, "table", nameOrNumber(routeTables, nr.Table))
	}
	if nr.Protocol != 0 {
		toks = append(toks, "proto", nameOrNumber(routeProtocols, int(nr.Protocol)))
	}
	if nr.Scope != netlink.SCOPE_UNIVERSE {
		name := ""
		for k, v := range routeScopes {
			if v == nr.Scope {
				name = k
			}
		}
		if name == "" {
			name = strconv.Itoa(int(nr.Scope))
		}
		toks = append(toks, "scope", name)
	}
	if nr.Priority != 0 {
		toks = append(toks, "metric", strconv.Itoa(nr.Priority))
	}

	hop := func(gw net.IP, index, flags int) ([]string, error) {
		var out []string
		if name := reverse(nextHopFlags, flags); name != "" {
			out = append(out, name)
		}
		if gw != nil {
			out = append(out, "via", gw.String())
		}
		if index != 0 {
			if links == nil {
				return nil, ErrNoResolver
			}
			name, err := links.LinkName(index)
			if err != nil {
				return nil, err
			}
			out = append(out, "dev", name)
		}
		return out, nil
	}
	if len(nr.MultiPath) == 0 {
		h, err := hop(nr.Gw, nr.LinkIndex, nr.Flags)
		if err != nil {
			return nil, err
		}
		toks = append(toks, h...)
	}
	for _, nh := range nr.MultiPath {
		h, err := hop(nh.Gw, nh.LinkIndex, nh.Flags)
		if err != nil {
			return nil, err
		}
		toks = append(toks, "nexthop")
		toks = append(toks, h...)
		toks = append(toks, "weight", strconv.Itoa(nh.Hops+1))
	}

	metrics := []struct {
		name string
		v    int
	}{
		{"mtu", nr.MTU}, {"advmss", nr.AdvMSS}, {"rtt", nr.Rtt}, {"rttvar", nr.RttVar},
		{"reordering", nr.Reordering}, {"window", nr.Window}, {"cwnd", nr.Cwnd},
		{"initcwnd", nr.InitCwnd}, {"ssthresh", nr.Ssthresh}, {"rto_min", nr.RtoMin},
		{"hoplimit", nr.Hoplimit}, {"initrwnd", nr.InitRwnd},
	}
	for _, m := range metrics {
		if m.v != 0 {
			toks = append(toks, m.name, strconv.Itoa(m.v))
		}
	}
	if nr.Realm != 0 {
		toks = append(toks, "realms", formatRealms(nr.Realm))
	}
	if nr.Src != nil {
		toks = append(toks, "src", nr.Src.String())
	}
	return toks, nil
}

// protoTag returns a single-letter route protocol marker.
func protoTag(proto string) string {
	switch proto {
	case "static", "boot":
		return "S"
	case "kernel":
		return "C"
	case "dhcp", "ra":
		return "D"
	case "zebra", "bird":
		return "P"
	case "":
		return "-"
	default:
		return "?"
	}
}

// FormatTerse renders routes as an aligned one-line-per-route table.
func FormatTerse(routes []*grammar.Route) string {
	sorted := append([]*grammar.Route(nil), routes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Prefix() < sorted[j].Prefix()
	})

	var buf strings.Builder
	fmt.Fprintf(&buf, "%-8s %-40s %-4s %-24s %s\n", "Type", "Destination", "P", "Next-hop", "Interface")
	for _, r := range sorted {
		typ := r.Type()
		if typ == "" {
			typ = "unicast"
		}
		nh, dev := ">", ""
		if hops := r.NextHops(); len(hops) > 0 {
			if v := hops[0].Field("via"); v != "" {
				nh = v
			}
			dev = hops[0].Field("dev")
			if len(hops) > 1 {
				nh += fmt.Sprintf(" (+%d)", len(hops)-1)
			}
		}
		fmt.Fprintf(&buf, "%-8s %-40s %-4s %-24s %s\n",
			typ, r.Prefix(), protoTag(r.Option("proto")), nh, dev)
	}
	return buf.String()
}

// dscpValues maps DSCP code point names to their 6-bit values.
var dscpValues = map[string]uint8{
	"ef":   46,
	"af11": 10, "af12": 12, "af13": 14,
	"af21": 18, "af22": 20, "af23": 22,
	"af31": 26, "af32": 28, "af33": 30,
	"af41": 34, "af42": 36, "af43": 38,
	"cs0": 0, "cs1": 8, "cs2": 16, "cs3": 24,
	"cs4": 32, "cs5": 40, "cs6": 48, "cs7": 56,
	"be": 0,
}

// parseTOS accepts a raw TOS byte (decimal or 0x hex) or a DSCP name,
// which is shifted into the upper six bits.
func parseTOS(v string) (uint8, error) {
	if dscp, ok := dscpValues[strings.ToLower(v)]; ok {
		return dscp << 2, nil
	}
	n, err := strconv.ParseUint(v, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("%q is neither a TOS byte nor a DSCP name", v)
	}
	return uint8(n), nil
}

// parseMillis reads a time value in milliseconds; a unit suffix
// (s, ms, us) is honoured as ip-route(8) does.
func parseMillis(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	return int(d / time.Millisecond), nil
}

// parseRealms reads "TO" or "FROM/TO" realm numbers into the kernel's
// packed form (FROM in the high 16 bits).
func parseRealms(v string) (int, error) {
	from, to, pair := strings.Cut(v, "/")
	if !pair {
		from, to = "0", v
	}
	f, err := strconv.ParseUint(from, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("realm %q: %w", from, err)
	}
	t, err := strconv.ParseUint(to, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("realm %q: %w", to, err)
	}
	return int(f<<16 | t), nil
}

func formatRealms(realm int) string {
	from, to := realm>>16, realm&0xffff
	if from == 0 {
		return strconv.Itoa(to)
	}
	return fmt.Sprintf("%d/%d", from, to)
}

func lookupNumber(v string, names map[string]int) (int, error) {
	if n, ok := names[v]; ok {
		return n, nil
	}
	n, err := strconv.ParseUint(v, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("unknown name %q", v)
	}
	return int(n), nil
}

func nameOrNumber(names map[string]int, n int) string {
	if name := reverse(names, n); name != "" {
		return name
	}
	return strconv.Itoa(n)
}

func reverse(names map[string]int, n int) string {
	for k, v := range names {
		if v == n {
			return k
		}
	}
	return ""
}

func prefixToIPNet(p netip.Prefix) *net.IPNet {
	bits := p.Addr().BitLen()
	return &net.IPNet{
		IP:   net.IP(p.Addr().AsSlice()),
		Mask: net.CIDRMask(p.Bits(), bits),
	}
}

func familyOf(a netip.Addr) int {
	if a.Is4() {
		return netlink.FAMILY_V4
	}
	return netlink.FAMILY_V6
}

func familyOfIP(ip net.IP) int {
	if ip.To4() != nil {
		return netlink.FAMILY_V4
	}
	return netlink.FAMILY_V6
}

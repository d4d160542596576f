package grammar

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psaab/iproute2/pkg/cidr"
)

func TestParseFullRoute(t *testing.T) {
	r, err := Parse([]string{"add", "unicast", "10.0.0.0/24", "via", "10.0.0.1", "dev", "eth0", "metric", "100"})
	require.NoError(t, err)

	assert.Equal(t, "add", r.Action())
	assert.Equal(t, "unicast", r.Type())
	assert.Equal(t, "10.0.0.0/24", r.Prefix())
	assert.Equal(t, "100", r.NodeSpec().Field("metric"))
	require.Len(t, r.NextHops(), 1)
	assert.Equal(t, "10.0.0.1", r.NextHops()[0].Field("via"))
	assert.Equal(t, "eth0", r.NextHops()[0].Field("dev"))
	assert.Empty(t, r.Remainder)

	assert.Equal(t, "add unicast 10.0.0.0/24 metric 100 via 10.0.0.1 dev eth0", r.String())
	assert.Equal(t, "add", r.Root().Text())
	assert.Equal(t, "unicast 10.0.0.0/24 metric 100", r.NodeSpec().Text())
	assert.Equal(t, "", r.InfoSpec().Text())
}

func TestParseOrderIndependence(t *testing.T) {
	inputs := [][]string{
		{"add", "10.0.0.0/24", "metric", "5", "via", "10.0.0.1"},
		{"add", "10.0.0.0/24", "via", "10.0.0.1", "metric", "5"},
	}
	for _, in := range inputs {
		r, err := Parse(in)
		require.NoError(t, err, in)
		assert.Equal(t, "5", r.Option("metric"), in)
		assert.Equal(t, "10.0.0.1", r.Option("via"), in)
		assert.Equal(t, "add 10.0.0.0/24 metric 5 via 10.0.0.1", r.String(), in)
	}
}

func TestParseAllSegments(t *testing.T) {
	r, err := Parse(strings.Fields(
		"change 2001:db8::/64 onlink via fe80::1 dev eth1 hoplimit 64 initcwnd 10 scope link"))
	require.NoError(t, err)

	assert.Equal(t, "change", r.Action())
	assert.Equal(t, "", r.Type())
	assert.Equal(t, "link", r.Option("scope"))
	nh := r.NextHops()[0]
	assert.Equal(t, "onlink", nh.Field(FieldNHFlags))
	assert.Equal(t, "fe80::1", nh.Field("via"))
	assert.Equal(t, "eth1", nh.Field("dev"))
	assert.Equal(t, "64", r.TuningOptions().Field("hoplimit"))
	assert.Equal(t, "10", r.TuningOptions().Field("initcwnd"))
	assert.Equal(t,
		"change 2001:db8::/64 scope link onlink via fe80::1 dev eth1 hoplimit 64 initcwnd 10",
		r.String())
}

func TestParseSemanticRoundTrip(t *testing.T) {
	inputs := []string{
		"add unicast 10.0.0.0/24 via 10.0.0.1 dev eth0 metric 100",
		"replace blackhole 192.168.0.0/16 table 100 proto static",
		"add default via 10.0.0.1 mtu 1400 advmss 1360 src 10.0.0.2",
		"del 10.1.0.0/16 dev eth0 rto_min 200 realms 10 tos 0x10",
		"local 10.0.0.5 dev lo table local scope host",
	}
	for _, in := range inputs {
		r1, err := Parse(strings.Fields(in))
		require.NoError(t, err, in)
		r2, err := Parse(r1.Tokens())
		require.NoError(t, err, r1.String())
		assert.Equal(t, r1.Map(), r2.Map(), in)
		assert.Equal(t, r1.String(), r2.String(), in)
	}
}

func TestParseInvalidPrefix(t *testing.T) {
	_, err := Parse([]string{"add", "not-an-address"})
	require.Error(t, err)
	var perr *InvalidPrefixError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "not-an-address", perr.Prefix)
	assert.Equal(t, "not an IP address", perr.Reason)

	var verr *cidr.ValidationError
	assert.True(t, errors.As(err, &verr), "validator error stays reachable")
}

func TestParseUnknownActionFallsThroughToPrefix(t *testing.T) {
	_, err := Parse([]string{"insert", "10.0.0.0/24"})
	var perr *InvalidPrefixError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "insert", perr.Prefix)

	// Without an action the prefix may come first.
	r, err := Parse([]string{"10.0.0.0/24", "dev", "eth0"})
	require.NoError(t, err)
	assert.Equal(t, "", r.Action())
	assert.Equal(t, "10.0.0.0/24", r.Prefix())
}

func TestParseMissingPrefix(t *testing.T) {
	for _, in := range [][]string{nil, {"add"}, {"add", "unicast"}} {
		_, err := Parse(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrEmptyStream), in)
		var merr *MissingFieldError
		require.True(t, errors.As(err, &merr))
		assert.Equal(t, KindNodeSpec, merr.Segment)
		assert.Equal(t, FieldPrefix, merr.Field)
	}
}

func TestParseKeywordWithoutValue(t *testing.T) {
	_, err := Parse([]string{"add", "10.0.0.0/24", "via"})
	var merr *MissingFieldError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, KindNextHop, merr.Segment)
	assert.Equal(t, "via", merr.Field)
}

func TestParseTrailingTokens(t *testing.T) {
	in := []string{"add", "10.0.0.0/24", "bogus", "dev", "eth0", "1"}
	_, err := Parse(in)
	var terr *TrailingTokensError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, []string{"bogus", "1"}, terr.Tokens)

	p := NewParser(Options{Trailing: TrailingAllow})
	r, err := p.Parse(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"bogus", "1"}, r.Remainder)
	assert.Equal(t, "eth0", r.Option("dev"))
}

func TestParseFlagOnlyWhenFirst(t *testing.T) {
	p := NewParser(Options{Trailing: TrailingAllow})
	r, err := p.Parse([]string{"add", "10.0.0.0/24", "via", "10.0.0.1", "onlink"})
	require.NoError(t, err)
	assert.False(t, r.NextHops()[0].Has(FieldNHFlags))
	assert.Equal(t, []string{"onlink"}, r.Remainder)

	r, err = p.Parse([]string{"add", "10.0.0.0/24", "pervasive", "via", "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "pervasive", r.NextHops()[0].Field(FieldNHFlags))
	assert.Empty(t, r.Remainder)
}

func TestParseDuplicatePolicies(t *testing.T) {
	in := []string{"add", "10.0.0.0/24", "metric", "5", "metric", "7"}

	_, err := Parse(in)
	var terr *TrailingTokensError
	require.True(t, errors.As(err, &terr), "first-wins leaves the second pair behind")
	assert.Equal(t, []string{"metric", "7"}, terr.Tokens)

	r, err := NewParser(Options{Trailing: TrailingAllow}).Parse(in)
	require.NoError(t, err)
	assert.Equal(t, "5", r.Option("metric"))

	r, err = NewParser(Options{Duplicates: DuplicateLastWins}).Parse(in)
	require.NoError(t, err)
	assert.Equal(t, "7", r.Option("metric"))
	assert.Equal(t, "add 10.0.0.0/24 metric 5 metric 7", r.String())

	_, err = NewParser(Options{Duplicates: DuplicateReject}).Parse(in)
	var derr *DuplicateKeywordError
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, KindNodeSpec, derr.Segment)
	assert.Equal(t, "metric", derr.Keyword)
}

func TestParseMultipath(t *testing.T) {
	in := strings.Fields("add 10.0.0.0/24 mtu 1400 " +
		"nexthop via 10.0.0.1 dev eth0 weight 1 " +
		"nexthop onlink via 10.0.0.2 dev eth1 weight 2")

	_, err := Parse(in)
	var terr *TrailingTokensError
	require.True(t, errors.As(err, &terr), "single next hop cannot hold two groups")

	p := NewParser(Options{Multipath: true})
	r, err := p.Parse(in)
	require.NoError(t, err)

	nhs := r.NextHops()
	require.Len(t, nhs, 2, "the first group takes the first nexthop keyword")
	assert.Equal(t, "NH", nhs[0].Name())
	assert.Equal(t, map[string]any{"via": "10.0.0.1", "dev": "eth0", "weight": "1"}, nhs[0].Map())
	assert.Equal(t, "NH2", nhs[1].Name())
	assert.Equal(t, "onlink", nhs[1].Field(FieldNHFlags))
	assert.Equal(t, "10.0.0.2", nhs[1].Field("via"))
	assert.Equal(t, "1400", r.Option("mtu"))
	assert.Equal(t, "10.0.0.1", r.Option("via"))

	assert.Equal(t, "add 10.0.0.0/24 nexthop via 10.0.0.1 dev eth0 weight 1 "+
		"nexthop onlink via 10.0.0.2 dev eth1 weight 2 mtu 1400", r.String())

	v, err := r.Lookup("INFO_SPEC.NH2.dev")
	require.NoError(t, err)
	assert.Equal(t, "eth1", v)

	again, err := p.Parse(r.Tokens())
	require.NoError(t, err)
	assert.Equal(t, r.Map(), again.Map())
}

func TestParseMultipathOptionsBeforeGroups(t *testing.T) {
	p := NewParser(Options{Multipath: true})
	tests := []struct {
		in    string
		hops  []map[string]any
		canon string
	}{
		{
			in:    "add 10.0.0.0/8 mtu 1400 nexthop via 10.0.0.1",
			hops:  []map[string]any{{"via": "10.0.0.1"}},
			canon: "add 10.0.0.0/8 nexthop via 10.0.0.1 mtu 1400",
		},
		{
			in:    "10.0.0.0/8 mtu 1400 initcwnd 10 nexthop dev eth0 nexthop dev eth1",
			hops:  []map[string]any{{"dev": "eth0"}, {"dev": "eth1"}},
			canon: "10.0.0.0/8 nexthop dev eth0 nexthop dev eth1 mtu 1400 initcwnd 10",
		},
		{
			// The leading hop owns its own tokens; the group stays separate.
			in:    "10.0.0.0/8 via 10.0.0.1 mtu 1400 nexthop via 10.0.0.2",
			hops:  []map[string]any{{"via": "10.0.0.1"}, {"via": "10.0.0.2"}},
			canon: "10.0.0.0/8 via 10.0.0.1 nexthop via 10.0.0.2 mtu 1400",
		},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			r, err := p.Parse(strings.Fields(tt.in))
			require.NoError(t, err)
			var hops []map[string]any
			for _, nh := range r.NextHops() {
				hops = append(hops, nh.Map())
			}
			assert.Equal(t, tt.hops, hops)
			assert.Equal(t, tt.canon, r.String())
			assert.Equal(t, "1400", r.Option("mtu"))

			again, err := p.Parse(r.Tokens())
			require.NoError(t, err)
			assert.Equal(t, r.Map(), again.Map())
		})
	}
}

func TestParseMultipathGroupKeywordWithoutValue(t *testing.T) {
	p := NewParser(Options{Multipath: true})
	_, err := p.Parse(strings.Fields("add 10.0.0.0/24 nexthop via nexthop via 10.0.0.2"))
	var merr *MissingFieldError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "via", merr.Field)
}

func TestParseDefaultPrefix(t *testing.T) {
	r, err := Parse([]string{"add", "default", "via", "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "default", r.Prefix())
	_, ok := r.Destination()
	assert.False(t, ok)

	r, err = Parse([]string{"add", "10.0.0.1/24"})
	require.NoError(t, err)
	dst, ok := r.Destination()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.0/24", dst.String())
	assert.Equal(t, "10.0.0.1/24", r.Prefix(), "field keeps the token as written")
}

func TestParseCustomValidator(t *testing.T) {
	var seen []string
	p := NewParser(Options{Validator: cidr.ValidatorFunc(func(s string) (string, error) {
		seen = append(seen, s)
		if s == "10.9.9.9/32" {
			return "", fmt.Errorf("reserved")
		}
		return s, nil
	})})

	_, err := p.Parse([]string{"add", "10.9.9.9/32"})
	var perr *InvalidPrefixError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "reserved", perr.Reason)

	_, err = p.Parse([]string{"add", "anything-goes"})
	require.NoError(t, err)
	assert.Equal(t, []string{"10.9.9.9/32", "anything-goes"}, seen)
}

func TestParseDoesNotShareState(t *testing.T) {
	in := []string{"add", "10.0.0.0/24", "metric", "5"}
	r1, err := Parse(in)
	require.NoError(t, err)
	r2, err := Parse(in)
	require.NoError(t, err)

	require.NoError(t, r1.NodeSpec().Set("metric", "9"))
	assert.Equal(t, "5", r2.Option("metric"))
	assert.Equal(t, []string{"add", "10.0.0.0/24", "metric", "5"}, in)
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&InvalidPrefixError{Prefix: "x"}, "invalid_prefix"},
		{&MissingFieldError{Segment: KindNodeSpec, Field: FieldPrefix}, "empty_stream"},
		{ErrEmptyStream, "empty_stream"},
		{&TrailingTokensError{Tokens: []string{"x"}}, "trailing_tokens"},
		{&DuplicateKeywordError{Keyword: "via"}, "duplicate_keyword"},
		{&NameNotFoundError{Name: "x"}, "name_not_found"},
		{&LineError{Line: 2, Err: &InvalidPrefixError{}}, "invalid_prefix"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err), fmt.Sprint(tt.err))
	}
}

func TestPolicyNames(t *testing.T) {
	for _, d := range []DuplicatePolicy{DuplicateFirstWins, DuplicateLastWins, DuplicateReject} {
		got, err := ParseDuplicatePolicy(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	for _, tp := range []TrailingPolicy{TrailingReject, TrailingAllow} {
		got, err := ParseTrailingPolicy(tp.String())
		require.NoError(t, err)
		assert.Equal(t, tp, got)
	}
	_, err := ParseDuplicatePolicy("sometimes")
	assert.Error(t, err)
	_, err = ParseTrailingPolicy("maybe")
	assert.Error(t, err)
}

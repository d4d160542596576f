package grammar

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, line string) *Route {
	t.Helper()
	r, err := Parse(strings.Fields(line))
	require.NoError(t, err)
	return r
}

func TestNodeGetFieldThenChild(t *testing.T) {
	r := mustParse(t, "add unicast 10.0.0.0/24 via 10.0.0.1 dev eth0 metric 100")
	root := r.Root()

	v, err := root.Get(FieldAction)
	require.NoError(t, err)
	assert.Equal(t, "add", v)

	v, err = root.Get("NODE_SPEC")
	require.NoError(t, err)
	spec, ok := v.(*Node)
	require.True(t, ok)
	assert.Equal(t, KindNodeSpec, spec.Kind())

	v, err = spec.Get("tos")
	require.NoError(t, err)
	assert.Nil(t, v, "declared but unset")

	_, err = root.Get("metric")
	var nerr *NameNotFoundError
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, KindRoute, nerr.Segment)
	assert.Equal(t, "metric", nerr.Name)
}

func TestNodeRepeatableSlotNames(t *testing.T) {
	r := mustParse(t, "add 10.0.0.0/24 via 10.0.0.1")
	info := r.InfoSpec()

	v, err := info.Get("NH2")
	require.NoError(t, err, "NH2 is a declared slot even when absent")
	assert.Nil(t, v)

	for _, name := range []string{"NH1", "NH0", "NHx", "OPTIONS2"} {
		_, err := info.Get(name)
		var nerr *NameNotFoundError
		assert.True(t, errors.As(err, &nerr), name)
	}
}

func TestNodeRepeatableSlotDeleteMatchesGet(t *testing.T) {
	info := mustParse(t, "add 10.0.0.0/24 via 10.0.0.1").InfoSpec()

	v, err := info.Get("NH3")
	require.NoError(t, err)
	assert.Nil(t, v)
	require.NoError(t, info.Delete("NH3"), "an unfilled slot deletes like an unset field")
	assert.Equal(t, "via 10.0.0.1", info.Canonical())

	var nerr *NameNotFoundError
	for _, name := range []string{"NH1", "NH02", "NH+2", "OPTIONS2"} {
		_, gerr := info.Get(name)
		assert.True(t, errors.As(gerr, &nerr), name)
		assert.True(t, errors.As(info.Delete(name), &nerr), name)
	}
}

func TestNodeSetRepeatedSlot(t *testing.T) {
	r := mustParse(t, "add 10.0.0.0/8 via 10.0.0.1 mtu 1400")
	info := r.InfoSpec()

	err := info.Set("NH2", r.NextHops()[0])
	assert.True(t, errors.Is(err, ErrValueType), "a group without the nexthop keyword")
	assert.Equal(t, "add 10.0.0.0/8 via 10.0.0.1 mtu 1400", r.String())

	multi := NewParser(Options{Multipath: true})
	m, err := multi.Parse(strings.Fields("10.1.0.0/16 nexthop via 10.1.0.1 nexthop via 10.1.0.2"))
	require.NoError(t, err)
	hop := m.NextHops()[1]
	assert.True(t, errors.Is(info.Set("NH2", hop), ErrAttached))

	require.NoError(t, m.InfoSpec().Delete("NH2"))
	assert.Equal(t, "10.1.0.0/16 nexthop via 10.1.0.1", m.String())

	require.NoError(t, info.Set("NH2", hop))
	require.NoError(t, info.Set("NH2", hop), "setting the same child again is a no-op")
	assert.True(t, errors.Is(info.Set("NH3", hop), ErrAttached))
	assert.Equal(t, "NH2", hop.Name())
	assert.Equal(t, "add 10.0.0.0/8 via 10.0.0.1 nexthop via 10.1.0.2 mtu 1400", r.String())

	again, err := multi.Parse(r.Tokens())
	require.NoError(t, err)
	assert.Equal(t, r.Map(), again.Map())
}

func TestNodeSetAndDeleteFields(t *testing.T) {
	r := mustParse(t, "add 10.0.0.0/24 metric 100")
	spec := r.NodeSpec()

	require.NoError(t, spec.Set("metric", "7"))
	assert.Equal(t, "7", r.Option("metric"))

	require.NoError(t, spec.Set("tos", "0x10"))
	assert.True(t, spec.Has("tos"))

	err := spec.Set("metric", 5)
	assert.True(t, errors.Is(err, ErrValueType))

	require.NoError(t, spec.Set("tos", nil))
	assert.False(t, spec.Has("tos"))

	require.NoError(t, spec.Delete("metric"))
	assert.False(t, spec.Has("metric"))
	assert.NotContains(t, spec.Map(), "metric")

	var nerr *NameNotFoundError
	assert.True(t, errors.As(spec.Set("via", "x"), &nerr))
	assert.True(t, errors.As(spec.Delete("via"), &nerr))
}

func TestNodeSetAndDeleteChildren(t *testing.T) {
	r := mustParse(t, "add 10.0.0.0/24 via 10.0.0.1 mtu 1400")
	root := r.Root()
	info := r.InfoSpec()

	err := root.Set("INFO_SPEC", r.NodeSpec())
	assert.True(t, errors.Is(err, ErrValueType), "slot kind must match")
	err = root.Set("INFO_SPEC", "text")
	assert.True(t, errors.Is(err, ErrValueType))

	require.NoError(t, root.Delete("INFO_SPEC"))
	assert.Nil(t, r.InfoSpec())
	assert.Nil(t, r.NextHops())
	assert.Equal(t, "add 10.0.0.0/24", r.String())

	require.NoError(t, root.Set("INFO_SPEC", info))
	assert.Equal(t, "add 10.0.0.0/24 via 10.0.0.1 mtu 1400", r.String())

	other := mustParse(t, "add 10.2.0.0/16 via 10.2.0.1")
	hop := other.NextHops()[0]
	assert.True(t, errors.Is(info.Set("NH", hop), ErrAttached))
	require.NoError(t, other.InfoSpec().Delete("NH"))
	require.NoError(t, info.Set("NH", hop))
	assert.Equal(t, "10.2.0.1", r.Option("via"))
	assert.Equal(t, "add 10.0.0.0/24 via 10.2.0.1 mtu 1400", r.String())

	var nerr *NameNotFoundError
	assert.True(t, errors.As(root.Delete("NH"), &nerr))
}

func TestNodeFieldsAndChildren(t *testing.T) {
	r := mustParse(t, "add 10.0.0.0/24")
	assert.Equal(t, []string{"type", "prefix", "tos", "table", "proto", "scope", "metric"}, r.NodeSpec().Fields())
	assert.Equal(t, []string{"nhflags", "via", "dev", "weight"}, r.NextHops()[0].Fields())
	assert.Empty(t, r.InfoSpec().Fields())

	children := r.Root().Children()
	require.Len(t, children, 2)
	assert.Equal(t, KindNodeSpec, children[0].Kind())
	assert.Equal(t, KindInfoSpec, children[1].Kind())

	fields := r.NodeSpec().Fields()
	fields[0] = "mutated"
	assert.Equal(t, "type", r.NodeSpec().Fields()[0])
}

func TestRouteLookup(t *testing.T) {
	r := mustParse(t, "add unicast 10.0.0.0/24 via 10.0.0.1 dev eth0 metric 100")

	tests := []struct {
		path string
		want any
	}{
		{"action", "add"},
		{"NODE_SPEC.metric", "100"},
		{"NODE_SPEC.type", "unicast"},
		{"NODE_SPEC.tos", nil},
		{"INFO_SPEC.NH.via", "10.0.0.1"},
		{"INFO_SPEC.NH.dev", "eth0"},
		{"INFO_SPEC.OPTIONS.mtu", nil},
	}
	for _, tt := range tests {
		got, err := r.Lookup(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}

	for _, path := range []string{"NODE_SPEC.metric.x", "INFO_SPEC.NH2.via", "bogus", "INFO_SPEC.NH.mtu"} {
		_, err := r.Lookup(path)
		var nerr *NameNotFoundError
		assert.True(t, errors.As(err, &nerr), path)
	}
}

func TestRouteMap(t *testing.T) {
	r := mustParse(t, "add unicast 10.0.0.0/24 via 10.0.0.1 dev eth0 metric 100")
	want := map[string]any{
		"action": "add",
		"NODE_SPEC": map[string]any{
			"type":   "unicast",
			"prefix": "10.0.0.0/24",
			"metric": "100",
		},
		"INFO_SPEC": map[string]any{
			"NH":      map[string]any{"via": "10.0.0.1", "dev": "eth0"},
			"OPTIONS": map[string]any{},
		},
	}
	assert.Equal(t, want, r.Map())
}

func TestKeywords(t *testing.T) {
	assert.Equal(t, []string{"via", "dev", "weight"}, Keywords(KindNextHop))
	assert.Contains(t, Keywords(KindOptions), "rto_min")
	assert.Contains(t, Keywords(KindNodeSpec), "metric")
	assert.Nil(t, Keywords(KindRoute))
}

func TestVocabulary(t *testing.T) {
	words := Vocabulary()
	assert.True(t, slices.IsSorted(words))
	for _, w := range []string{"add", "blackhole", "default", "nexthop", "onlink", "via", "initrwnd", "metric"} {
		assert.Contains(t, words, w)
	}
	assert.NotContains(t, words, "prefix")
}

package routetable

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psaab/iproute2/pkg/grammar"
)

const routesFile = `# uplinks
10.0.0.0/24 via 10.0.0.1 dev eth0
blackhole 192.0.2.0/24

metric 10 is not a prefix
`

func parse(t *testing.T, line string) *grammar.Route {
	t.Helper()
	r, err := grammar.NewParser(grammar.Options{}).ParseLine(line)
	require.NoError(t, err)
	return r
}

func TestKeyIgnoresKeywordOrder(t *testing.T) {
	a := parse(t, "10.0.0.0/24 metric 5 via 10.0.0.1")
	b := parse(t, "10.0.0.0/24 via 10.0.0.1 metric 5")
	c := parse(t, "10.0.0.0/24 metric 6 via 10.0.0.1")
	assert.Equal(t, Key(a), Key(b))
	assert.NotEqual(t, Key(a), Key(c))
	assert.Len(t, Key(a), 64)
}

func TestTableAddRemove(t *testing.T) {
	tbl := New("uplinks", "")
	a := parse(t, "10.0.0.0/24 via 10.0.0.1")
	b := parse(t, "10.1.0.0/24 via 10.0.0.1")
	c := parse(t, "10.2.0.0/24 via 10.0.0.1")

	assert.True(t, tbl.Add(a))
	assert.False(t, tbl.Add(parse(t, "10.0.0.0/24 via 10.0.0.1")), "duplicate")
	assert.True(t, tbl.Add(b))
	assert.True(t, tbl.Add(c))
	assert.Equal(t, 3, tbl.Len())

	assert.True(t, tbl.Remove(Key(a)))
	assert.False(t, tbl.Remove(Key(a)))
	assert.Equal(t, []*grammar.Route{b, c}, tbl.Routes())

	// indexes shift after a removal
	assert.True(t, tbl.Remove(Key(c)))
	assert.Equal(t, []*grammar.Route{b}, tbl.Routes())
}

func TestTableLoad(t *testing.T) {
	tbl := New("uplinks", "")
	p := grammar.NewParser(grammar.Options{})

	_, err := tbl.Load(p, "routes.conf", strings.NewReader(routesFile))
	var lerr *grammar.LineError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, 5, lerr.Line)
	assert.Zero(t, tbl.Len(), "nothing added on failure")

	good := strings.Join(strings.Split(routesFile, "\n")[:3], "\n")
	n, err := tbl.Load(p, "routes.conf", strings.NewReader(good))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = tbl.Load(p, "routes.conf", strings.NewReader(tbl.String()))
	require.NoError(t, err)
	assert.Zero(t, n, "reloading own output adds nothing")
}

func TestTableCommands(t *testing.T) {
	tbl := New("100", "")
	tbl.Add(parse(t, "10.0.0.0/24 via 10.0.0.1"))
	tbl.Add(parse(t, "del 10.1.0.0/24 table main"))
	assert.Equal(t, [][]string{
		{"route", "add", "10.0.0.0/24", "via", "10.0.0.1", "table", "100"},
		{"route", "del", "10.1.0.0/24", "table", "main"},
	}, tbl.Commands())
}

func openStore(t *testing.T, opts grammar.Options) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "routes.db"), grammar.NewParser(opts))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, grammar.Options{Multipath: true})
	mp := grammar.NewParser(grammar.Options{Multipath: true})

	tbl := New("uplinks", "upstream providers")
	for _, line := range []string{
		"10.0.0.0/24 via 10.0.0.1 dev eth0",
		"default nexthop via 192.0.2.1 weight 1 nexthop via 192.0.2.2 weight 3",
		"blackhole 198.51.100.0/24",
	} {
		r, err := mp.ParseLine(line)
		require.NoError(t, err)
		tbl.Add(r)
	}
	require.NoError(t, s.SaveTable(ctx, tbl))

	got, err := s.LoadTable(ctx, "uplinks")
	require.NoError(t, err)
	assert.Equal(t, "upstream providers", got.Description)
	assert.Equal(t, tbl.String(), got.String())
	require.Len(t, got.Routes()[1].NextHops(), 2)

	// saving again replaces the routes
	tbl.Remove(Key(tbl.Routes()[0]))
	tbl.Description = "providers"
	require.NoError(t, s.SaveTable(ctx, tbl))
	got, err = s.LoadTable(ctx, "uplinks")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Len())
	assert.Equal(t, "providers", got.Description)
}

func TestStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, grammar.Options{})

	infos, err := s.ListTables(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)

	a := New("b-side", "")
	a.Add(parse(t, "10.0.0.0/8 via 10.0.0.1"))
	require.NoError(t, s.SaveTable(ctx, a))
	require.NoError(t, s.SaveTable(ctx, New("a-side", "empty")))

	infos, err = s.ListTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TableInfo{
		{Name: "a-side", Description: "empty", Routes: 0},
		{Name: "b-side", Routes: 1},
	}, infos)

	require.NoError(t, s.DeleteTable(ctx, "b-side"))
	_, err = s.LoadTable(ctx, "b-side")
	assert.True(t, errors.Is(err, ErrTableNotFound))
	assert.True(t, errors.Is(s.DeleteTable(ctx, "b-side"), ErrTableNotFound))
}

func TestStoreInMemory(t *testing.T) {
	s, err := Open(":memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	tbl := New("main", "")
	tbl.Add(parse(t, "10.0.0.0/8 dev eth0"))
	require.NoError(t, s.SaveTable(context.Background(), tbl))
	got, err := s.LoadTable(context.Background(), "main")
	require.NoError(t, err)
	assert.Equal(t, tbl.String(), got.String())
}

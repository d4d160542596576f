package grammar

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenStream(t *testing.T) {
	in := []string{"a", "b", "c", "b"}
	ts := NewTokenStream(in)
	require.Equal(t, 4, ts.Len())

	head, err := ts.PeekFirst()
	require.NoError(t, err)
	assert.Equal(t, "a", head)
	assert.Equal(t, 4, ts.Len(), "peek must not consume")

	assert.True(t, ts.Contains("c"))
	assert.False(t, ts.Contains("z"))
	assert.Equal(t, 1, ts.Index("b", 0))
	assert.Equal(t, 3, ts.Index("b", 2))
	assert.Equal(t, -1, ts.Index("z", 0))

	snap := ts.Snapshot()
	tok, err := ts.RemoveAt(2)
	require.NoError(t, err)
	assert.Equal(t, "c", tok)
	assert.Equal(t, []string{"a", "b", "c", "b"}, snap, "snapshot is independent")

	tok, err = ts.RemoveFirst()
	require.NoError(t, err)
	assert.Equal(t, "a", tok)
	assert.Equal(t, []string{"b", "b"}, ts.Snapshot())
	assert.Equal(t, []string{"a", "b", "c", "b"}, in, "input slice untouched")
}

func TestTokenStreamEmpty(t *testing.T) {
	ts := NewTokenStream(nil)
	assert.True(t, ts.Empty())

	_, err := ts.PeekFirst()
	assert.True(t, errors.Is(err, ErrEmptyStream))
	_, err = ts.RemoveFirst()
	assert.True(t, errors.Is(err, ErrEmptyStream))
	_, err = ts.RemoveAt(3)
	assert.True(t, errors.Is(err, ErrEmptyStream))

	_, ok := ts.At(-1)
	assert.False(t, ok)
	assert.Empty(t, ts.Snapshot())
}

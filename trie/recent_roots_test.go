package trie

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecentRootsCache_SeenOnSecondCall(t *testing.T) {
	c, err := NewRecentRootsCache(4)
	require.NoError(t, err)

	root := Hash{1}
	require.False(t, c.Seen(root))
	require.True(t, c.Seen(root))
}

func TestRecentRootsCache_EvictsWhenFull(t *testing.T) {
	c, err := NewRecentRootsCache(2)
	require.NoError(t, err)

	c.Seen(Hash{1})
	c.Seen(Hash{2})
	c.Seen(Hash{3}) // evicts Hash{1}

	require.Equal(t, 2, c.Len())
	require.False(t, c.Seen(Hash{1}))
}

package nonce

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocIsUniqueAndTracked(t *testing.T) {
	r := New()
	seen := make(map[uint64]struct{})
	for i := 0; i < 100; i++ {
		n, err := r.Alloc()
		require.NoError(t, err)
		_, dup := seen[n]
		require.False(t, dup)
		seen[n] = struct{}{}
		require.True(t, r.Has(n))
	}
	require.Equal(t, 100, r.Len())
}

func TestRemove(t *testing.T) {
	r := New()
	n, err := r.Alloc()
	require.NoError(t, err)
	require.True(t, r.Has(n))

	r.Remove(n)
	require.False(t, r.Has(n))
	require.Equal(t, 0, r.Len())
}

package chainsync

import (
	"testing"

	chaincfg "github.com/bsv-blockchain/go-chaincfg"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

func hashAt(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

func TestNoCheckpointsNextCheckpointIsNil(t *testing.T) {
	c := New(false, nil, hashAt(0), 0)
	require.Nil(t, c.NextCheckpoint())
	require.False(t, c.IsCheckpointed(100))
}

func TestFindsNextCheckpointAboveHeight(t *testing.T) {
	h1, h2 := hashAt(1), hashAt(2)
	checkpoints := []chaincfg.Checkpoint{
		{Height: 100, Hash: &h1},
		{Height: 200, Hash: &h2},
	}
	c := New(true, checkpoints, hashAt(0), 50)
	require.NotNil(t, c.NextCheckpoint())
	require.Equal(t, int32(100), c.NextCheckpoint().Height)
	require.True(t, c.IsCheckpointed(100))
	require.False(t, c.IsCheckpointed(101))
}

func TestPastFinalCheckpointHasNoTarget(t *testing.T) {
	h1 := hashAt(1)
	checkpoints := []chaincfg.Checkpoint{{Height: 100, Hash: &h1}}
	c := New(true, checkpoints, hashAt(0), 150)
	require.Nil(t, c.NextCheckpoint())
}

func TestAppendRejectsNonContiguousHeight(t *testing.T) {
	c := New(false, nil, hashAt(0), 10)
	err := c.Append(hashAt(1), 12)
	require.Error(t, err)
}

func TestAppendEnforcesCheckpointHashMatch(t *testing.T) {
	want := hashAt(0xaa)
	checkpoints := []chaincfg.Checkpoint{{Height: 11, Hash: &want}}
	c := New(true, checkpoints, hashAt(0), 10)

	err := c.Append(hashAt(0xbb), 11)
	require.Error(t, err)

	err = c.Append(want, 11)
	require.NoError(t, err)
	require.Equal(t, int32(11), c.Tip().Height)
}

func TestNextUnrequestedAdvances(t *testing.T) {
	c := New(false, nil, hashAt(0), 0)
	require.Equal(t, int32(0), c.NextUnrequested().Height)

	require.NoError(t, c.Append(hashAt(1), 1))
	require.NoError(t, c.Append(hashAt(2), 2))

	require.Equal(t, int32(0), c.NextUnrequested().Height)
	c.AdvanceUnrequested()
	require.Equal(t, int32(1), c.NextUnrequested().Height)
	c.AdvanceUnrequested()
	require.Equal(t, int32(2), c.NextUnrequested().Height)
	c.AdvanceUnrequested()
	require.Nil(t, c.NextUnrequested())
}

func TestMergeCheckpointsOverridesAndSorts(t *testing.T) {
	d1, d2, o1 := hashAt(1), hashAt(2), hashAt(9)
	defaults := []chaincfg.Checkpoint{
		{Height: 200, Hash: &d2},
		{Height: 100, Hash: &d1},
	}
	overrides := []chaincfg.Checkpoint{{Height: 100, Hash: &o1}}

	merged := MergeCheckpoints(defaults, overrides)
	require.Len(t, merged, 2)
	require.Equal(t, int32(100), merged[0].Height)
	require.Equal(t, o1, *merged[0].Hash)
	require.Equal(t, int32(200), merged[1].Height)
}

func TestResetReseedsAtNewTip(t *testing.T) {
	c := New(false, nil, hashAt(0), 0)
	require.NoError(t, c.Append(hashAt(1), 1))
	require.Equal(t, 2, c.Len())

	c.Reset(hashAt(5), 500)
	require.Equal(t, 1, c.Len())
	require.Equal(t, int32(500), c.Tip().Height)
}

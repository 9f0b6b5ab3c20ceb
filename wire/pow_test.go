package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMeetsTargetAcceptsEasyDifficulty(t *testing.T) {
	h := &BlockHeader{Version: 1, Bits: 0x207fffff} // regtest-style trivial difficulty
	require.True(t, h.MeetsTarget())
}

func TestMeetsTargetRejectsImpossibleDifficulty(t *testing.T) {
	h := &BlockHeader{Version: 1, Bits: 0x03000001} // smallest positive target: essentially unreachable
	require.False(t, h.MeetsTarget())
}

func TestMeetsTargetRejectsZeroBits(t *testing.T) {
	h := &BlockHeader{Version: 1, Bits: 0}
	require.False(t, h.MeetsTarget())
}

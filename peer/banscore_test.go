package peer

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestBanScoreNeverDecreases exercises invariant 5: ban_score only ever
// rises while the peer is alive, and IncreaseBan reports true on every
// call that leaves the score at or above BanThreshold.
func TestBanScoreNeverDecreases(t *testing.T) {
	clientConn, _ := net.Pipe()
	defer clientConn.Close()

	p := New(1, clientConn, true, testConfig())

	last := 0
	for i := 0; i < 12; i++ {
		crossed := p.IncreaseBan(10)
		require.GreaterOrEqual(t, p.BanScore(), last)
		last = p.BanScore()
		if p.BanScore() >= BanThreshold {
			require.True(t, crossed)
		} else {
			require.False(t, crossed)
		}
	}
	require.Equal(t, 120, p.BanScore())
}

func TestIncreaseBanCrossesThresholdExactlyAtBoundary(t *testing.T) {
	clientConn, _ := net.Pipe()
	defer clientConn.Close()

	p := New(2, clientConn, true, testConfig())
	require.False(t, p.IncreaseBan(BanThreshold-1))
	require.True(t, p.IncreaseBan(1))
}

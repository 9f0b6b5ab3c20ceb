package peer

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/timgates42/mako/wire"
)

// TestDeadPeerIgnoresFurtherMessages exercises invariant 6: once a peer
// reaches DEAD it processes no further input and its ban score is frozen.
func TestDeadPeerIgnoresFurtherMessages(t *testing.T) {
	clientConn, _ := net.Pipe()
	defer clientConn.Close()

	cfg := testConfig()
	p := New(1, clientConn, true, cfg)
	p.state = StateConnected
	p.Close("test teardown")
	require.Equal(t, StateDead, p.State())

	scoreBefore := p.BanScore()

	deps := noopDeps()
	frame := versionFrame(t, cfg.Net, 1, wire.ServiceNetwork, 70013)
	p.Feed(frame, deps)

	require.Equal(t, StateDead, p.State())
	require.Equal(t, scoreBefore, p.BanScore())
}

// TestCloseIsIdempotent: a second Close call does not re-invoke the
// teardown callback or change state.
func TestCloseIsIdempotent(t *testing.T) {
	clientConn, _ := net.Pipe()
	defer clientConn.Close()

	p := New(2, clientConn, true, testConfig())
	calls := 0
	p.OnClose(func(*Peer) { calls++ })

	p.Close("first")
	p.Close("second")

	require.Equal(t, 1, calls)
	require.Equal(t, StateDead, p.State())
}

// TestSendFailsAfterClose: enqueueing a message on a dead peer errors
// rather than silently queuing.
func TestSendFailsAfterClose(t *testing.T) {
	clientConn, _ := net.Pipe()
	defer clientConn.Close()

	p := New(3, clientConn, true, testConfig())
	p.Close("teardown")

	err := p.Send(&wire.MsgVerAck{})
	require.Error(t, err)
}

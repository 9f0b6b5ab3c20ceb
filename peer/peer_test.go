package peer

import (
	"net"
	"testing"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
	"github.com/timgates42/mako/wire"
)

func testConfig() Config {
	return Config{
		UserAgentName:    "mako",
		UserAgentVersion: "0.1.0",
		Services:         wire.ServiceNetwork,
		Net:              wire.RegTest,
		ProtocolVersion:  70013,
	}
}

func noopDeps() Deps {
	return Deps{
		ChainSynced:    func() bool { return true },
		RandomNonce:    func() (uint64, error) { return 1, nil },
		OwnNonceExists: func(uint64) bool { return false },
	}
}

func versionFrame(t *testing.T, net wire.BitcoinNet, nonce uint64, services uint64, protoVersion int32) []byte {
	t.Helper()
	msg := &wire.MsgVersion{
		ProtocolVersion: protoVersion,
		Services:        services,
		Timestamp:       time.Now(),
		Nonce:           nonce,
		UserAgent:       "/test:0.0.1/",
		StartHeight:     0,
		Relay:           true,
	}
	frame, err := wire.Encode(net, msg)
	require.NoError(t, err)
	return frame
}

func verackFrame(t *testing.T, net wire.BitcoinNet) []byte {
	t.Helper()
	frame, err := wire.Encode(net, &wire.MsgVerAck{})
	require.NoError(t, err)
	return frame
}

// TestHandshakeOutboundHappyPath covers scenario 1: an outbound peer
// receives a valid version, answers with verack, and completes once its
// own verack arrives back.
func TestHandshakeOutboundHappyPath(t *testing.T) {
	clientConn, _ := net.Pipe()
	defer clientConn.Close()

	cfg := testConfig()
	p := New(1, clientConn, false, cfg)
	require.Equal(t, StateConnecting, p.State())

	deps := noopDeps()
	frame := versionFrame(t, cfg.Net, 42, wire.ServiceNetwork|wire.ServiceWitness, 70013)
	p.Feed(frame, deps)
	require.Equal(t, StateWaitVerack, p.State())

	out, _ := p.DrainOutbound()
	require.Len(t, out, 1, "expected a verack to have been queued")

	p.Feed(verackFrame(t, cfg.Net), deps)
	require.Equal(t, StateConnected, p.State())
}

// TestSelfConnectionRejected covers scenario 2: an outbound peer whose
// version nonce matches one of our own in-flight nonces is closed.
func TestSelfConnectionRejected(t *testing.T) {
	clientConn, _ := net.Pipe()
	defer clientConn.Close()

	cfg := testConfig()
	p := New(2, clientConn, false, cfg)

	deps := noopDeps()
	deps.OwnNonceExists = func(n uint64) bool { return n == 99 }

	frame := versionFrame(t, cfg.Net, 99, wire.ServiceNetwork|wire.ServiceWitness, 70013)
	p.Feed(frame, deps)

	require.Equal(t, StateDead, p.State())
}

// TestParseErrorIncreasesBanScore covers scenario 3: a framing error bumps
// ban score by 10 without killing the peer until the threshold is crossed.
func TestParseErrorIncreasesBanScore(t *testing.T) {
	clientConn, _ := net.Pipe()
	defer clientConn.Close()

	cfg := testConfig()
	p := New(3, clientConn, true, cfg)
	deps := noopDeps()

	bad := make([]byte, wire.HeaderSize)
	bad[0] = 0xff // corrupt magic, guaranteed mismatch against RegTest

	p.Feed(bad, deps)
	require.Equal(t, 10, p.BanScore())
	require.NotEqual(t, StateDead, p.State())

	for i := 0; i < 9; i++ {
		p.Feed(bad, deps)
	}
	require.Equal(t, StateDead, p.State())
}

// TestHeadersStallCloses covers scenario 4: no headers response within
// the stall window closes the peer.
func TestHeadersStallCloses(t *testing.T) {
	clientConn, _ := net.Pipe()
	defer clientConn.Close()

	cfg := testConfig()
	p := New(4, clientConn, true, cfg)
	p.state = StateConnected
	p.connectTime = time.Now().Add(-time.Hour)

	now := time.Now()
	p.SetGetHeadersTime(now.Add(-(headersStallTimeout + time.Second)))

	deps := noopDeps()
	p.checkStall(now, deps)

	require.Equal(t, StateDead, p.State())
}

// TestAnnounceDeduplicates exercises the bloom-substitute announce cache:
// the same hash announced twice only queues one inventory vector.
func TestAnnounceDeduplicates(t *testing.T) {
	clientConn, _ := net.Pipe()
	defer clientConn.Close()

	cfg := testConfig()
	p := New(5, clientConn, true, cfg)
	p.state = StateConnected

	var h chainhash.Hash
	h[0] = 0x01

	p.Announce(wire.InvTx, h)
	p.Announce(wire.InvTx, h)
	require.Len(t, p.outInv, 1)
}

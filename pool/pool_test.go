package pool

import (
	"net"
	"testing"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
	"github.com/timgates42/mako/peer"
	"github.com/timgates42/mako/wire"
)

func testPeerConfig() peer.Config {
	return peer.Config{
		UserAgentName:    "mako",
		UserAgentVersion: "0.1.0",
		Services:         wire.ServiceNetwork,
		Net:              wire.RegTest,
		ProtocolVersion:  70013,
	}
}

func versionFrame(t *testing.T, nonce uint64, startHeight int32) []byte {
	t.Helper()
	msg := &wire.MsgVersion{
		ProtocolVersion: 70013,
		Services:        wire.ServiceNetwork | wire.ServiceWitness,
		Timestamp:       time.Now(),
		Nonce:           nonce,
		UserAgent:       "/test:0.0.1/",
		StartHeight:     startHeight,
		Relay:           true,
	}
	frame, err := wire.Encode(wire.RegTest, msg)
	require.NoError(t, err)
	return frame
}

func verackFrame(t *testing.T) []byte {
	t.Helper()
	frame, err := wire.Encode(wire.RegTest, &wire.MsgVerAck{})
	require.NoError(t, err)
	return frame
}

// pipeConn gives each test peer its own remote address: net.Pipe reports
// the same "pipe" address for every connection, which the registry would
// reject as a duplicate.
type pipeConn struct {
	net.Conn
	remote net.Addr
}

func (c pipeConn) RemoteAddr() net.Addr { return c.remote }

// buildConnectedPeer drives a Peer through a real outbound handshake over
// a net.Pipe so it reaches StateConnected via its own public API, rather
// than poking unexported state from outside the peer package. The peer's
// address is 127.0.0.1 with port 18000+nonce.
func buildConnectedPeer(t *testing.T, id int32, nonce uint64, height int32) *peer.Peer {
	t.Helper()
	c, _ := net.Pipe()
	conn := pipeConn{Conn: c, remote: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 18000 + int(nonce)}}
	p := peer.New(id, conn, false, testPeerConfig())
	deps := peer.Deps{
		ChainSynced:    func() bool { return true },
		RandomNonce:    func() (uint64, error) { return nonce, nil },
		OwnNonceExists: func(uint64) bool { return false },
	}
	p.Feed(versionFrame(t, nonce, height), deps)
	require.Equal(t, peer.StateWaitVerack, p.State())
	p.Feed(verackFrame(t), deps)
	require.Equal(t, peer.StateConnected, p.State())
	return p
}

func TestRegistryRejectsDuplicateAddrAndID(t *testing.T) {
	r := NewRegistry()
	p1 := buildConnectedPeer(t, 1, 10, 5)
	require.NoError(t, r.Add(p1))

	p2 := buildConnectedPeer(t, 1, 11, 6) // same ID
	require.Error(t, r.Add(p2))
}

func TestRegistryLoaderMustBeOutboundAndRegistered(t *testing.T) {
	r := NewRegistry()
	p1 := buildConnectedPeer(t, 1, 10, 5)

	require.Error(t, r.SetLoader(p1), "must reject an unregistered peer")

	require.NoError(t, r.Add(p1))
	require.NoError(t, r.SetLoader(p1))
	require.Equal(t, p1, r.Loader())

	r.Remove(p1)
	require.Nil(t, r.Loader(), "removing the loader clears the slot")
}

func TestRegistryCountByIP(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, 0, r.CountByIP("127.0.0.1"))
}

func TestRequestTrackerClaimIsExclusive(t *testing.T) {
	tr := newRequestTracker(16)
	var h chainhash.Hash
	h[0] = 1

	require.True(t, tr.TryClaim(h, 1))
	require.False(t, tr.TryClaim(h, 2), "a second peer must not steal an outstanding claim")
	require.True(t, tr.TryClaim(h, 1), "the owning peer may re-claim its own request")

	tr.Release(h)
	require.False(t, tr.Has(h))
	require.True(t, tr.TryClaim(h, 2), "released hash is claimable by anyone")
}

func TestRequestTrackerReleaseAllOwnedBy(t *testing.T) {
	tr := newRequestTracker(16)
	var h1, h2, h3 chainhash.Hash
	h1[0], h2[0], h3[0] = 1, 2, 3

	require.True(t, tr.TryClaim(h1, 1))
	require.True(t, tr.TryClaim(h2, 1))
	require.True(t, tr.TryClaim(h3, 2))

	tr.ReleaseAllOwnedBy(1)

	require.False(t, tr.Has(h1))
	require.False(t, tr.Has(h2))
	require.True(t, tr.Has(h3), "a different owner's claim survives")
	require.Equal(t, 1, tr.Count())
}

func TestRequestStaggerSpreadsWithinABatch(t *testing.T) {
	s := newRequestStagger(50 * time.Millisecond)
	base := time.Now()

	d0 := s.Next(base, 0)
	d1 := s.Next(base, 0)
	d2 := s.Next(base, 0)

	require.Equal(t, base, d0)
	require.Equal(t, base.Add(50*time.Millisecond), d1)
	require.Equal(t, base.Add(100*time.Millisecond), d2)

	s.Reset()
	require.Equal(t, base, s.Next(base, 0), "reset restarts the stagger count")
}

// stubAddrManager is the minimal AddressManager a test needs to drive
// maybeSelectLoader/requestNextHeaders without a real address store.
type stubAddrManager struct{}

func (stubAddrManager) AddAddresses([]*wire.NetAddress, *wire.NetAddress) {}
func (stubAddrManager) GetAddress() *wire.NetAddress                     { return nil }
func (stubAddrManager) NeedMoreAddresses() bool                          { return false }
func (stubAddrManager) MarkAttempt(*wire.NetAddress)                     {}
func (stubAddrManager) MarkSuccess(*wire.NetAddress)                     {}
func (stubAddrManager) MarkAck(*wire.NetAddress)                         {}
func (stubAddrManager) Ban(*wire.NetAddress)                             {}
func (stubAddrManager) IsBanned(*wire.NetAddress) bool                   { return false }
func (stubAddrManager) MarkLocal(*wire.NetAddress)                       {}
func (stubAddrManager) IsLocal(*wire.NetAddress) bool                    { return false }
func (stubAddrManager) Size() int                                        { return 0 }
func (stubAddrManager) ForEach(func(*wire.NetAddress) bool)              {}

func TestMaybeSelectLoaderPicksHighestOutboundPeer(t *testing.T) {
	p := New(Options{MaxOutbound: 8}, Deps{Addr: stubAddrManager{}}, chainhash.Hash{}, 0)

	low := buildConnectedPeer(t, 1, 10, 100)
	high := buildConnectedPeer(t, 2, 11, 500)
	require.NoError(t, p.registry.Add(low))
	require.NoError(t, p.registry.Add(high))

	p.maybeSelectLoader()

	require.Equal(t, high, p.registry.Loader())
	require.True(t, high.Syncing())
	require.False(t, low.Syncing())
}

func TestMaybeSelectLoaderNoopsWhenLoaderAlreadySet(t *testing.T) {
	p := New(Options{MaxOutbound: 8}, Deps{Addr: stubAddrManager{}}, chainhash.Hash{}, 0)

	first := buildConnectedPeer(t, 1, 10, 100)
	second := buildConnectedPeer(t, 2, 11, 500)
	require.NoError(t, p.registry.Add(first))
	require.NoError(t, p.registry.Add(second))
	require.NoError(t, p.registry.SetLoader(first))

	p.maybeSelectLoader()

	require.Equal(t, first, p.registry.Loader(), "an already-assigned loader is left alone")
}

func TestSyncedDefaultsFalse(t *testing.T) {
	p := New(Options{MaxOutbound: 8}, Deps{}, chainhash.Hash{}, 0)
	require.False(t, p.Synced())
	p.SetSynced(true)
	require.True(t, p.Synced())
}

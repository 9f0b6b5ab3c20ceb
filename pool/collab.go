// Package pool implements the peer pool orchestrator (components E and
// G): peer registry, listen/dial, outbound slot filling, loader
// selection, global request de-duplication, inv/compact-block/header-sync
// dispatch, and address relay.
//
// Grounded on legacy/peer_server.go's server/peerState (newServer,
// peerHandler, handleAddPeerMsg/handleDonePeerMsg, handleRelayInvMsg,
// pushTxMsg/pushBlockMsg) and legacy/Server.go's settings/logging wiring,
// restructured from teranode's message-passing goroutine
// (peerHandler's big select over query/relay/broadcast channels) into the
// single-threaded tick loop spec §5 requires.
package pool

import (
	"time"

	chaincfg "github.com/bsv-blockchain/go-chaincfg"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/timgates42/mako/internal/ulogger"
	"github.com/timgates42/mako/peer"
	"github.com/timgates42/mako/wire"
)

// AddressManager is the pool's candidate-address source, grounded on
// legacy/peer_server.go's addrManager field (an addrmgr.AddrManager in
// the teacher) and spec §6's address-manager collaborator list (`get`,
// `add`, `mark_attempt|success|ack`, `ban`, `is_banned`, `mark_local`,
// `is_local`, `size`, iterator).
type AddressManager interface {
	AddAddresses(addrs []*wire.NetAddress, src *wire.NetAddress)
	GetAddress() *wire.NetAddress
	NeedMoreAddresses() bool
	MarkAttempt(addr *wire.NetAddress)
	MarkSuccess(addr *wire.NetAddress)
	MarkAck(addr *wire.NetAddress)
	Ban(addr *wire.NetAddress)
	IsBanned(addr *wire.NetAddress) bool
	MarkLocal(addr *wire.NetAddress)
	IsLocal(addr *wire.NetAddress) bool
	Size() int
	ForEach(fn func(addr *wire.NetAddress) bool)
}

// Mempool is consulted when relaying transactions and answering getdata;
// a minimal surface since full mempool management is out of scope
// (spec.md §1 non-goals).
type Mempool interface {
	HaveTransaction(hash chainhash.Hash) bool
	FetchTransaction(hash chainhash.Hash) ([]byte, bool)
}

// BlockSource answers getdata/getheaders/getblocks for locally held
// blocks, and reports the current tip for handshake/header-sync seeding.
type BlockSource interface {
	NewestBlock() (chainhash.Hash, int32, error)
	FetchBlock(hash chainhash.Hash) ([]byte, bool)
	FetchHeader(hash chainhash.Hash) (*wire.BlockHeader, bool)
	HeightOf(hash chainhash.Hash) (int32, bool)
	LocatorHashes() []chainhash.Hash
	// Submit hands a fully assembled block to the chain collaborator
	// (spec §6 Chain "add(block, flags, peer_id) -> ok/verify_error"),
	// used once a compact block or full-block fetch completes.
	Submit(hash chainhash.Hash, raw []byte) error
}

// Options configures a Pool (spec §6 "Configurable options").
type Options struct {
	Network              wire.BitcoinNet
	Listen               bool
	ListenAddresses      []string
	Port                 string
	MaxOutbound          int
	MaxInbound           int
	CheckpointsEnabled   bool
	BIP37Enabled         bool
	BIP152Enabled        bool
	BlockMode            peer.CompactMode
	OnlyNet              string
	Onion                bool
	ProxyAddr            string
	ProxyUser            string
	ProxyPass            string
	RequiredServices     uint64
	SelfConnect          bool
	ConnectPeers         []string
	OutboundFillInterval time.Duration
	UserAgentName        string
	UserAgentVersion     string
	ProtocolVersion      uint32
	Services             uint64
	Checkpoints          []chaincfg.Checkpoint
}

// Deps bundles the pool's external collaborators: address storage, the
// local block source, the mempool, and the logger.
type Deps struct {
	Addr    AddressManager
	Chain   BlockSource
	Mempool Mempool
	Logger  ulogger.Logger
}

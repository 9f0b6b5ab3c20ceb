// Package peer implements the per-peer protocol state machine (spec
// component D, §4.D): handshake negotiation, tick-driven stall detection,
// ping/pong, ban-score misbehavior accounting, and queued sends.
//
// This is grounded directly on other_examples/btcsuite-btcd's peer.go
// (Peer struct shape, handshake/stall/ping constants and logic) but
// adapted from btcd's five-goroutine-per-peer model to the single
// threaded, tick-driven cooperative loop spec §5 requires: there is no
// readHandler/writeHandler/pingTicker goroutine here, only Tick(now)
// called once per loop iteration and Send pushing onto
// plain slices the loop drains on the same tick.
package peer

import (
	"net"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/jellydator/ttlcache/v3"
	"github.com/timgates42/mako/internal/errors"
	"github.com/timgates42/mako/internal/ulogger"
	"github.com/timgates42/mako/wire"
)

// State is the peer connection lifecycle (spec §4.D).
type State int

const (
	StateConnecting State = iota
	StateWaitVersion
	StateWaitVerack
	StateConnected
	StateDead
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateWaitVersion:
		return "WAIT_VERSION"
	case StateWaitVerack:
		return "WAIT_VERACK"
	case StateConnected:
		return "CONNECTED"
	case StateDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Tuning constants, all named per spec §4.D.
const (
	MinVersion         = 70001
	HeadersVersion      = 31800
	BanThreshold        = 100
	MaxOutboundBuffered = 30 * 1024 * 1024
	negotiateTimeout    = 5 * time.Second
	pingInterval        = 30 * time.Second
	invFlushInterval    = 5 * time.Second
	stallCheckInterval  = 5 * time.Second
	invStallTimeout     = 30 * time.Second
	headersStallTimeout = 60 * time.Second
	loaderBlockStall    = 120 * time.Second
	requestStallTimeout = 120 * time.Second
	compactStallTimeout = 30 * time.Second
	postHandshakeGrace  = 60 * time.Second
	sendRecvTimeout     = 20 * time.Minute
	maxInvQueue         = 500
	maxAnnounceCache    = 5000
	maxInvAnnounceCache = 50000
)

// CompactMode mirrors spec §3's "compact-block mode (unset / 0 / 1)".
type CompactMode int

const (
	CompactModeUnset CompactMode = iota
	CompactModeLowBandwidth
	CompactModeHighBandwidth
)

// Listeners mirrors btcd's MessageListeners: optional callbacks invoked
// serially as messages of each type arrive (spec §4.D connection
// contract). Any unset listener is simply skipped.
type Listeners struct {
	OnGetAddr     func(p *Peer, msg *wire.MsgGetAddr)
	OnAddr        func(p *Peer, msg *wire.MsgAddr)
	OnInv         func(p *Peer, msg *wire.MsgInv)
	OnGetData     func(p *Peer, msg *wire.MsgGetData)
	OnNotFound    func(p *Peer, msg *wire.MsgNotFound)
	OnGetBlocks   func(p *Peer, msg *wire.MsgGetBlocks)
	OnGetHeaders  func(p *Peer, msg *wire.MsgGetHeaders)
	OnHeaders     func(p *Peer, msg *wire.MsgHeaders)
	OnTx          func(p *Peer, msg *wire.MsgTx)
	OnBlock       func(p *Peer, msg *wire.MsgBlock)
	OnReject      func(p *Peer, msg *wire.MsgReject)
	OnFeeFilter   func(p *Peer, msg *wire.MsgFeeFilter)
	OnSendHeaders func(p *Peer, msg *wire.MsgSendHeaders)
	OnSendCmpct   func(p *Peer, msg *wire.MsgSendCmpct)
	OnCmpctBlock  func(p *Peer, msg *wire.MsgCmpctBlock)
	OnGetBlockTxn func(p *Peer, msg *wire.MsgGetBlockTxn)
	OnBlockTxn    func(p *Peer, msg *wire.MsgBlockTxn)
}

// Config configures a Peer at creation time (cf. btcd peer.Config).
type Config struct {
	UserAgentName    string
	UserAgentVersion string
	Services         uint64
	Net              wire.BitcoinNet
	ProtocolVersion  uint32
	DisableRelayTx   bool
	SelfConnect      bool
	CheckpointsOn    bool
	BIP152Enabled    bool
	Listeners        Listeners
	Logger           ulogger.Logger
}

// compactBlockState tracks an in-flight compact block awaiting
// getblocktxn/blocktxn completion (spec §4.G compact blocks): the header
// (for PoW/linkage already checked at accept time), the total tx count,
// the transactions already known by index (prefilled or since filled),
// and the indices still outstanding.
type compactBlockState struct {
	header    wire.BlockHeader
	total     uint64
	prefilled map[uint64]wire.MsgTx
	missing   map[uint64]struct{}
	started   time.Time
}

// CompactBlockEntry is a read-only snapshot of an in-flight compact
// block's bookkeeping, returned to the pool for getblocktxn fill and
// full-block fallback decisions.
type CompactBlockEntry struct {
	Header    wire.BlockHeader
	Total     uint64
	Prefilled map[uint64]wire.MsgTx
	Missing   map[uint64]struct{}
}

// Peer is a single connection's protocol state machine.
type Peer struct {
	cfg     Config
	conn    net.Conn
	logger  ulogger.Logger
	inbound bool

	ID         int32
	addr       net.Addr
	state      State
	loader     bool
	selfNonce  uint64
	services   uint64
	version    uint32
	height     int32
	userAgent  string
	relay      bool
	prefersHdr bool
	compactMode CompactMode
	compactWitness bool
	minFeeRate int64

	connectTime time.Time
	lastSend    time.Time
	lastRecv    time.Time
	lastPing    time.Time
	lastPong    time.Time
	blockTime   time.Time
	gbTime      time.Time
	ghTime      time.Time
	lastTick    time.Time
	lastInvFlush time.Time
	lastStallCk  time.Time
	pingNonce   uint64
	minPing     time.Duration

	banScore int

	syncing      bool
	sentAddr     bool
	gettingAddr  bool
	sentGetAddr  bool

	announcedAddrs *ttlcache.Cache[string, struct{}]
	announcedInv   *ttlcache.Cache[string, struct{}]

	blockRequests  map[chainhash.Hash]time.Time
	txRequests     map[chainhash.Hash]time.Time
	compactBlocks  map[chainhash.Hash]*compactBlockState

	outInv   []*wire.InvVect
	outQueue [][]byte // already-encoded frames pending flush
	outBytes int

	parser *wire.Parser

	onClose func(p *Peer)
}

// New constructs a Peer bound to conn. inbound distinguishes accept() vs
// dial() per spec §4.D's state diagram.
func New(id int32, conn net.Conn, inbound bool, cfg Config) *Peer {
	logger := cfg.Logger
	if logger == nil {
		logger = ulogger.New("peer")
	}

	p := &Peer{
		cfg:         cfg,
		conn:        conn,
		logger:      logger,
		inbound:     inbound,
		ID:          id,
		addr:        conn.RemoteAddr(),
		state:       StateWaitVersion,
		connectTime: time.Now(),

		announcedAddrs: ttlcache.New[string, struct{}](
			ttlcache.WithCapacity[string, struct{}](maxAnnounceCache)),
		announcedInv: ttlcache.New[string, struct{}](
			ttlcache.WithCapacity[string, struct{}](maxInvAnnounceCache)),

		blockRequests: make(map[chainhash.Hash]time.Time),
		txRequests:    make(map[chainhash.Hash]time.Time),
		compactBlocks: make(map[chainhash.Hash]*compactBlockState),
		parser:        wire.NewParser(cfg.Net),
	}

	if !inbound {
		p.state = StateConnecting
	}

	return p
}

// Conn exposes the underlying socket so the pool's loop can write drained
// outbound frames; ownership of reads/closes stays with Peer/the pool.
func (p *Peer) Conn() net.Conn { return p.conn }

func (p *Peer) Addr() string      { return p.addr.String() }
func (p *Peer) State() State      { return p.state }
func (p *Peer) Inbound() bool     { return p.inbound }
func (p *Peer) Outbound() bool    { return !p.inbound }
func (p *Peer) IsLoader() bool    { return p.loader }
func (p *Peer) SetLoader(v bool)  { p.loader = v }
func (p *Peer) BanScore() int     { return p.banScore }
func (p *Peer) Services() uint64  { return p.services }
func (p *Peer) Version() uint32   { return p.version }
func (p *Peer) Height() int32     { return p.height }
func (p *Peer) UserAgent() string { return p.userAgent }
func (p *Peer) Connected() bool   { return p.state == StateConnected }
func (p *Peer) Syncing() bool     { return p.syncing }
func (p *Peer) SetSyncing(v bool) { p.syncing = v }
func (p *Peer) GettingAddr() bool { return p.gettingAddr }
func (p *Peer) SetGettingAddr(v bool) { p.gettingAddr = v }
func (p *Peer) SentGetAddr() bool { return p.sentGetAddr }
func (p *Peer) SetSentGetAddr(v bool) { p.sentGetAddr = v }
func (p *Peer) BlockTime() time.Time { return p.blockTime }
func (p *Peer) GetBlocksTime() time.Time { return p.gbTime }
func (p *Peer) GetHeadersTime() time.Time { return p.ghTime }
func (p *Peer) SetBlockTime(t time.Time)  { p.blockTime = t }
func (p *Peer) SetGetBlocksTime(t time.Time) { p.gbTime = t }
func (p *Peer) SetGetHeadersTime(t time.Time) { p.ghTime = t }
func (p *Peer) CompactMode() CompactMode { return p.compactMode }
func (p *Peer) MinFeeRate() int64        { return p.minFeeRate }

// OnClose registers the pool's teardown callback, invoked exactly once
// when the peer transitions to DEAD.
func (p *Peer) OnClose(fn func(p *Peer)) { p.onClose = fn }

// Close is idempotent: marks DEAD and closes the socket, ignoring any
// inputs that arrive afterward (spec §5 cancellation contract).
func (p *Peer) Close(reason string) {
	if p.state == StateDead {
		return
	}
	p.logger.Debugf("closing peer %s: %s", p.Addr(), reason)
	p.state = StateDead
	_ = p.conn.Close()
	p.announcedAddrs.DeleteAll()
	p.announcedInv.DeleteAll()
	if p.onClose != nil {
		p.onClose(p)
	}
}

// Send enqueues an already-typed message for the next flush. Returns an
// error if the peer is DEAD.
func (p *Peer) Send(msg wire.Message) error {
	if p.state == StateDead {
		return errors.New(errors.ERR_SOCKET, "peer is dead")
	}
	frame, err := wire.Encode(p.cfg.Net, msg)
	if err != nil {
		return err
	}
	p.outQueue = append(p.outQueue, frame)
	p.outBytes += len(frame)
	p.maybeAddDeadline(msg)
	return nil
}

// Announce enqueues an inventory announcement, deduplicated through the
// peer's announce cache; flushed every 5s, at 500 entries, or
// immediately for blocks (spec §4.D Connection contract).
func (p *Peer) Announce(invType wire.InvType, hash chainhash.Hash) {
	key := hash.String()
	if p.announcedInv.Has(key) {
		return
	}
	p.announcedInv.Set(key, struct{}{}, ttlcache.DefaultTTL)
	p.outInv = append(p.outInv, &wire.InvVect{Type: invType, Hash: hash})

	if invType == wire.InvBlock || invType == wire.InvWitnessBlock || len(p.outInv) >= maxInvQueue {
		p.flushInv()
	}
}

func (p *Peer) flushInv() {
	if len(p.outInv) == 0 {
		return
	}
	inv := wire.NewMsgInv()
	for _, iv := range p.outInv {
		_ = inv.AddInvVect(iv)
	}
	p.outInv = p.outInv[:0]
	_ = p.Send(inv)
}

// RequestBlock registers a pending block request and sends getdata
// (spec §4.D "request_block / request_tx").
func (p *Peer) RequestBlock(hash chainhash.Hash, deadline time.Time) error {
	p.blockRequests[hash] = deadline
	return p.Send(&wire.MsgGetData{InvList: []*wire.InvVect{{Type: wire.InvBlock, Hash: hash}}})
}

func (p *Peer) RequestTx(hash chainhash.Hash, deadline time.Time) error {
	p.txRequests[hash] = deadline
	return p.Send(&wire.MsgGetData{InvList: []*wire.InvVect{{Type: wire.InvTx, Hash: hash}}})
}

func (p *Peer) HasBlockRequest(h chainhash.Hash) bool { _, ok := p.blockRequests[h]; return ok }
func (p *Peer) HasTxRequest(h chainhash.Hash) bool    { _, ok := p.txRequests[h]; return ok }
func (p *Peer) ClearBlockRequest(h chainhash.Hash)    { delete(p.blockRequests, h) }
func (p *Peer) ClearTxRequest(h chainhash.Hash)       { delete(p.txRequests, h) }
func (p *Peer) BlockRequestCount() int                { return len(p.blockRequests) }
func (p *Peer) TxRequestCount() int                   { return len(p.txRequests) }
func (p *Peer) CompactBlockCount() int                { return len(p.compactBlocks) }

// HasCompactBlock reports whether hash already has an in-flight compact
// block, used to reject duplicate cmpctblock announcements (spec §4.G
// "Reject duplicates (in peer's compact_map or pool's compact_map)").
func (p *Peer) HasCompactBlock(hash chainhash.Hash) bool {
	_, ok := p.compactBlocks[hash]
	return ok
}

// CompactBlock returns a snapshot of an in-flight compact block's
// bookkeeping.
func (p *Peer) CompactBlock(hash chainhash.Hash) (CompactBlockEntry, bool) {
	cb, ok := p.compactBlocks[hash]
	if !ok {
		return CompactBlockEntry{}, false
	}
	return CompactBlockEntry{Header: cb.header, Total: cb.total, Prefilled: cb.prefilled, Missing: cb.missing}, true
}

// AddCompactBlock registers a newly accepted compact block awaiting
// getblocktxn/blocktxn completion.
func (p *Peer) AddCompactBlock(hash chainhash.Hash, header wire.BlockHeader, total uint64, prefilled map[uint64]wire.MsgTx, missing map[uint64]struct{}) {
	p.compactBlocks[hash] = &compactBlockState{
		header:    header,
		total:     total,
		prefilled: prefilled,
		missing:   missing,
		started:   time.Now(),
	}
}

// ClearCompactBlock drops an in-flight compact block, whether it finalized
// or fell back to a full-block fetch.
func (p *Peer) ClearCompactBlock(hash chainhash.Hash) {
	delete(p.compactBlocks, hash)
}

// AllBlockTxRequests returns a snapshot for stall detection.
func (p *Peer) AllBlockTxRequests() (blocks, txs map[chainhash.Hash]time.Time) {
	return p.blockRequests, p.txRequests
}

// IncreaseBan adds to ban_score; returns true if the peer should now be
// banned (score crossed BanThreshold). Score never decreases while alive
// (invariant 5).
func (p *Peer) IncreaseBan(score int) bool {
	p.banScore += score
	return p.banScore >= BanThreshold
}

// Outbound frames pending flush, and the accumulated size, exposed to the
// pool's drain step; the pool owns the actual socket write.
func (p *Peer) DrainOutbound() ([][]byte, int) {
	frames, n := p.outQueue, p.outBytes
	p.outQueue, p.outBytes = nil, 0
	return frames, n
}

func (p *Peer) OutboundBuffered() int { return p.outBytes }

func (p *Peer) maybeAddDeadline(msg wire.Message) {
	now := time.Now()
	switch msg.Command() {
	case wire.CmdGetBlocks:
		p.gbTime = now
	case wire.CmdGetHeaders:
		p.ghTime = now
	}
}

func (p *Peer) MarkSend() { p.lastSend = time.Now() }
func (p *Peer) MarkRecv() { p.lastRecv = time.Now() }

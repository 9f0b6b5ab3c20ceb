package pool

import (
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/btcsuite/go-socks/socks"
	"github.com/timgates42/mako/chainsync"
	"github.com/timgates42/mako/internal/errors"
	"github.com/timgates42/mako/internal/ulogger"
	"github.com/timgates42/mako/nonce"
	"github.com/timgates42/mako/peer"
	"github.com/timgates42/mako/wire"
)

const (
	outboundFillInterval = 3 * time.Second
	maxPeersPerIP        = 4
)

// readEvent carries freshly read bytes from a peer's dedicated reader
// goroutine back to the single-threaded pool loop (grounded on
// legacy/peer_server.go's peerHandler select loop, collapsed here from a
// multi-channel query/relay/broadcast fan-in to one read-event channel
// plus a ticker, matching spec §5's single cooperative loop).
type readEvent struct {
	peerID int32
	data   []byte
	err    error
}

// Pool is the orchestrator (components E + G): owns the Registry, nonce
// registry, listen socket, global request trackers, and the header-sync
// chain, and drives every peer's Tick once per loop iteration.
type Pool struct {
	opts   Options
	deps   Deps
	logger ulogger.Logger

	registry *Registry
	nonces   *nonce.Registry

	blockReqs   *requestTracker
	txReqs      *requestTracker
	compactReqs *requestTracker
	stagger     *requestStagger

	chain *chainsync.Chain

	nextID int32
	synced bool

	listener net.Listener
	events   chan readEvent
	newConns chan net.Conn

	onionProxy *socks.Proxy // set when opts.Onion routes outbound dials through Tor

	// shutdown is read by acceptLoop/readLoop, which run on their own
	// goroutines outside the single-threaded Run loop (legacy/peer_server.go
	// uses the same typed sync/atomic wrapper convention for its
	// cross-goroutine counters).
	shutdown atomic.Bool
}

// New constructs a Pool. tip/tipHeight seed the header-sync chain at the
// locally known best block.
func New(opts Options, deps Deps, tip chainhash.Hash, tipHeight int32) *Pool {
	logger := deps.Logger
	if logger == nil {
		logger = ulogger.New("pool")
	}
	if opts.OutboundFillInterval == 0 {
		opts.OutboundFillInterval = outboundFillInterval
	}

	var onionProxy *socks.Proxy
	if opts.Onion && opts.ProxyAddr != "" {
		onionProxy = &socks.Proxy{
			Addr:     opts.ProxyAddr,
			Username: opts.ProxyUser,
			Password: opts.ProxyPass,
		}
	}

	return &Pool{
		onionProxy:  onionProxy,
		opts:        opts,
		deps:        deps,
		logger:      logger,
		registry:    NewRegistry(),
		nonces:      nonce.New(),
		blockReqs:   newRequestTracker(1024),
		txReqs:      newRequestTracker(4096),
		compactReqs: newRequestTracker(256),
		stagger:     newRequestStagger(50 * time.Millisecond),
		chain:       chainsync.New(opts.CheckpointsEnabled, opts.Checkpoints, tip, tipHeight),
		events:      make(chan readEvent, 256),
		newConns:    make(chan net.Conn, 64),
	}
}

// Listen opens the configured listen addresses and spawns an accept loop
// per address (spec §6 "listen (on/off)"). Accepted connections are
// handed to the main loop via newConns.
func (p *Pool) Listen() error {
	if !p.opts.Listen {
		return nil
	}
	addrs := p.opts.ListenAddresses
	if len(addrs) == 0 {
		addrs = []string{net.JoinHostPort("", p.opts.Port)}
	}
	for _, addr := range addrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return errors.NewConfigurationError("listen on %s: %v", addr, err)
		}
		p.listener = ln
		go p.acceptLoop(ln)
	}
	return nil
}

func (p *Pool) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		if p.shutdown.Load() {
			conn.Close()
			return
		}
		p.newConns <- conn
	}
}

// Dial opens an outbound connection and registers it with the pool. The
// caller (the main loop's outbound-fill step) is responsible for rate
// limiting and candidate selection. When the pool was configured with an
// onion proxy (spec §6 "onion (on/off)"), the dial is routed through it
// instead of a direct TCP connection, mirroring btcd's Proxy.Dial wiring
// for cfg.Proxy.
func (p *Pool) Dial(addr string) error {
	conn, err := p.dialNetwork(addr)
	if err != nil {
		return err
	}
	return p.addConn(conn, false)
}

func (p *Pool) dialNetwork(addr string) (net.Conn, error) {
	if p.onionProxy != nil {
		return p.onionProxy.Dial("tcp", addr)
	}
	return net.Dial("tcp", addr)
}

// addConn wraps conn in a Peer, applies the admission checks ported from
// legacy/peer_server.go's handleAddPeerMsg (per-IP cap, duplicate address,
// self-connect via nonce registry), registers it, and starts its reader
// goroutine.
func (p *Pool) addConn(conn net.Conn, inbound bool) error {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		conn.Close()
		return errors.NewProcessingError("split host/port: %v", err)
	}

	if p.registry.CountByIP(host) >= maxPeersPerIP {
		conn.Close()
		return errors.NewProcessingError("max peers per IP reached for %s", host)
	}
	if _, exists := p.registry.ByAddr(conn.RemoteAddr().String()); exists {
		conn.Close()
		return errors.NewProcessingError("already connected to %s", conn.RemoteAddr())
	}

	selfNonce, err := p.nonces.Alloc()
	if err != nil {
		conn.Close()
		return err
	}

	id := p.nextID
	p.nextID++

	cfg := peer.Config{
		UserAgentName:    p.opts.UserAgentName,
		UserAgentVersion: p.opts.UserAgentVersion,
		Services:         p.opts.Services,
		Net:              p.opts.Network,
		ProtocolVersion:  p.opts.ProtocolVersion,
		SelfConnect:      p.opts.SelfConnect,
		CheckpointsOn:    p.opts.CheckpointsEnabled,
		BIP152Enabled:    p.opts.BIP152Enabled,
		Listeners:        p.listeners(),
		Logger:           p.logger,
	}

	pr := peer.New(id, conn, inbound, cfg)
	if err := p.registry.Add(pr); err != nil {
		p.nonces.Remove(selfNonce)
		conn.Close()
		return err
	}
	pr.OnClose(func(pr *peer.Peer) {
		p.nonces.Remove(selfNonce)
		p.blockReqs.ReleaseAllOwnedBy(pr.ID)
		p.txReqs.ReleaseAllOwnedBy(pr.ID)
		p.compactReqs.ReleaseAllOwnedBy(pr.ID)
		p.registry.Remove(pr)
	})

	if !inbound {
		nonceMsg := pr.LocalVersionMsg(selfNonce, p.currentHeight())
		_ = pr.Send(nonceMsg)
		p.flushPeer(pr)
	}

	go p.readLoop(id, conn)
	return nil
}

func (p *Pool) readLoop(id int32, conn net.Conn) {
	buf := make([]byte, 32*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			p.events <- readEvent{peerID: id, data: chunk}
		}
		if err != nil {
			p.events <- readEvent{peerID: id, err: err}
			return
		}
	}
}

func (p *Pool) currentHeight() int32 {
	if p.deps.Chain == nil {
		return 0
	}
	_, h, err := p.deps.Chain.NewestBlock()
	if err != nil {
		return 0
	}
	return h
}

// Run drives the single-threaded event loop until stop is closed (spec
// §5: "expected every ~1s" tick cadence, event-driven reads in between).
func (p *Pool) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	fillTicker := time.NewTicker(p.opts.OutboundFillInterval)
	defer fillTicker.Stop()

	for {
		select {
		case <-stop:
			p.shutdownAll()
			return
		case conn := <-p.newConns:
			if err := p.addConn(conn, true); err != nil {
				p.logger.Debugf("pool: rejecting inbound connection: %v", err)
			}
		case ev := <-p.events:
			p.handleReadEvent(ev)
		case <-fillTicker.C:
			p.fillOutbound()
		case now := <-ticker.C:
			p.tickAll(now)
		}
	}
}

func (p *Pool) handleReadEvent(ev readEvent) {
	pr, ok := p.registry.ByID(ev.peerID)
	if !ok {
		return
	}
	if ev.err != nil {
		pr.Close("connection closed: " + ev.err.Error())
		return
	}
	pr.Feed(ev.data, p.peerDeps())
	p.flushPeer(pr)
}

func (p *Pool) tickAll(now time.Time) {
	deps := p.peerDeps()
	var dead []*peer.Peer
	p.registry.ForEach(func(pr *peer.Peer) bool {
		pr.Tick(now, deps)
		if pr.State() == peer.StateDead {
			dead = append(dead, pr)
		} else {
			p.flushPeer(pr)
		}
		return true
	})
	for _, pr := range dead {
		p.registry.Remove(pr)
	}
	p.maybeSelectLoader()
}

// flushPeer writes every frame a peer has queued since the last flush.
// A write error closes the peer immediately rather than waiting for the
// next read to notice the broken connection.
func (p *Pool) flushPeer(pr *peer.Peer) {
	frames, _ := pr.DrainOutbound()
	for _, f := range frames {
		if _, err := pr.Conn().Write(f); err != nil {
			pr.Close("write error: " + err.Error())
			return
		}
	}
	pr.MarkSend()
}

func (p *Pool) peerDeps() peer.Deps {
	return peer.Deps{
		ChainSynced:    func() bool { return p.synced },
		RandomNonce:    p.nonces.Alloc,
		OwnNonceExists: p.nonces.Has,
	}
}

// fillOutbound opens new outbound connections up to MaxOutbound, grounded
// on legacy/peer_server.go's connection-manager-driven outbound fill,
// collapsed here to a direct dial since the connmgr package is out of
// scope for the single-threaded model. Candidates banned or already
// advertised as local are skipped (spec §4.G outbound filling: "not
// already connected, not locally-advertised, not banned").
func (p *Pool) fillOutbound() {
	for p.registry.Outbound() < p.opts.MaxOutbound {
		if p.deps.Addr == nil {
			return
		}
		addr := p.deps.Addr.GetAddress()
		if addr == nil {
			return
		}
		if p.deps.Addr.IsBanned(addr) || p.deps.Addr.IsLocal(addr) {
			continue
		}
		target := net.JoinHostPort(addr.IP.String(), strconv.Itoa(int(addr.Port)))
		if _, exists := p.registry.ByAddr(target); exists {
			continue
		}
		p.deps.Addr.MarkAttempt(addr)
		if err := p.Dial(target); err != nil {
			p.logger.Debugf("pool: dial %s failed: %v", target, err)
			continue
		}
	}
}

// banPeer applies score to the peer's ban counter and, on crossing
// BanThreshold, bans its remote address via the address-manager
// collaborator and closes the connection (spec §4.D "Score >= 100 => ban
// the address via the addrman collaborator and close").
func (p *Pool) banPeer(pr *peer.Peer, score int, reason string) bool {
	if !pr.IncreaseBan(score) {
		return false
	}
	if p.deps.Addr != nil {
		p.deps.Addr.Ban(peerNetAddress(pr))
	}
	pr.Close(reason)
	return true
}

// peerNetAddress builds the wire.NetAddress the address manager keys bans
// on from a peer's remote socket address.
func peerNetAddress(pr *peer.Peer) *wire.NetAddress {
	host, portStr, err := net.SplitHostPort(pr.Addr())
	if err != nil {
		return &wire.NetAddress{}
	}
	port, _ := strconv.Atoi(portStr)
	return &wire.NetAddress{IP: net.ParseIP(host), Port: uint16(port)}
}

// maybeSelectLoader assigns the loader slot to the outbound peer with the
// highest reported height once none holds it, as in
// legacy/peer_server.go's sync-candidate selection.
func (p *Pool) maybeSelectLoader() {
	if p.registry.Loader() != nil {
		return
	}
	var best *peer.Peer
	p.registry.ForEach(func(pr *peer.Peer) bool {
		if !pr.Outbound() || !pr.Connected() {
			return true
		}
		if best == nil || pr.Height() > best.Height() {
			best = pr
		}
		return true
	})
	if best != nil {
		_ = p.registry.SetLoader(best)
		best.SetSyncing(true)
		p.requestNextHeaders(best)
	}
}

// requestNextHeaders issues a getheaders toward the loader's next
// checkpoint (or a getblocks fallback past the final checkpoint), ported
// from the headers-first / getblocks fallback logic in
// other_examples' btcd-lineage SyncManager.startSync.
func (p *Pool) requestNextHeaders(loader *peer.Peer) {
	locator := p.chain.Tip()
	if p.chain.NextCheckpoint() != nil {
		_ = loader.Send(&wire.MsgGetHeaders{
			Locator:  []*chainhash.Hash{&locator.Hash},
			HashStop: *p.chain.NextCheckpoint().Hash,
		})
		loader.SetGetHeadersTime(time.Now())
		return
	}
	_ = loader.Send(&wire.MsgGetBlocks{
		Locator:  []*chainhash.Hash{&locator.Hash},
		HashStop: chainhash.Hash{},
	})
	loader.SetGetBlocksTime(time.Now())
}

func (p *Pool) shutdownAll() {
	p.shutdown.Store(true)

	if p.listener != nil {
		_ = p.listener.Close()
	}
	p.registry.ForEach(func(pr *peer.Peer) bool {
		pr.Close("pool shutting down")
		return true
	})
}

// Registry exposes the peer registry for status reporting.
func (p *Pool) Registry() *Registry { return p.registry }

// Synced reports whether initial header/block sync has completed.
func (p *Pool) Synced() bool { return p.synced }

// SetSynced marks the pool caught up, called once the loader answers
// getheaders with a batch shorter than a full 2000 headers.
func (p *Pool) SetSynced(v bool) { p.synced = v }

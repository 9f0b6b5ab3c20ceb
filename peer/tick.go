package peer

import (
	"time"

	"github.com/timgates42/mako/wire"
)

// Deps supplies the pool-wide facts a Peer needs but does not own
// itself: whether the chain has finished syncing, a fresh nonce source,
// and self-connect detection against the pool's nonce registry (spec
// §4.D stall detection and handshake validation).
type Deps struct {
	ChainSynced    func() bool
	RandomNonce    func() (uint64, error)
	OwnNonceExists func(nonce uint64) bool
}

// Tick runs once per loop iteration (spec §5: "expected every ~1s").
// It drives connect-timeout enforcement, keep-alive, periodic flush, and
// stall detection, replacing btcd's per-peer goroutines with a single
// synchronous call from the pool.
func (p *Peer) Tick(now time.Time, deps Deps) {
	if p.state == StateDead {
		return
	}

	if p.state != StateConnected {
		if now.Sub(p.connectTime) > negotiateTimeout {
			p.Close("connection stall: handshake not completed in time")
		}
		return
	}

	if p.lastPing.IsZero() || (now.Sub(p.lastPing) > pingInterval && p.pingNonce == 0) {
		if nonce, err := deps.RandomNonce(); err == nil {
			p.pingNonce = nonce
			p.lastPing = now
			_ = p.Send(&wire.MsgPing{Nonce: nonce})
		}
	}

	if p.lastInvFlush.IsZero() || now.Sub(p.lastInvFlush) > invFlushInterval {
		p.flushInv()
		p.lastInvFlush = now
	}

	if p.lastStallCk.IsZero() || now.Sub(p.lastStallCk) > stallCheckInterval {
		p.checkStall(now, deps)
		p.lastStallCk = now
	}

	if p.outBytes > MaxOutboundBuffered {
		p.Close("drain stall: outbound buffer exceeds cap")
	}
}

// checkStall implements spec §4.D's stall-detection subsection in order.
func (p *Peer) checkStall(now time.Time, deps Deps) {
	synced := deps.ChainSynced()

	if !synced && !p.gbTime.IsZero() && now.After(p.gbTime.Add(invStallTimeout)) {
		p.Close("inv stall: no response to getblocks")
		return
	}

	if !p.ghTime.IsZero() && now.After(p.ghTime.Add(headersStallTimeout)) {
		p.Close("headers stall: no response to getheaders")
		return
	}

	if p.loader && !synced && !p.blockTime.IsZero() && now.After(p.blockTime.Add(loaderBlockStall)) {
		p.Close("loader block stall")
		return
	}

	if synced || !p.syncing {
		for h, deadline := range p.blockRequests {
			if now.After(deadline) {
				p.Close("stalled block request " + h.String())
				return
			}
		}
		for h, deadline := range p.txRequests {
			if now.After(deadline) {
				p.Close("stalled tx request " + h.String())
				return
			}
		}
		for h, cb := range p.compactBlocks {
			if now.Sub(cb.started) > compactStallTimeout {
				p.Close("stalled compact block " + h.String())
				return
			}
		}
	}

	if now.After(p.connectTime.Add(postHandshakeGrace)) {
		if p.lastSend.IsZero() || p.lastRecv.IsZero() {
			p.Close("no traffic after grace period")
			return
		}
		if now.After(p.lastSend.Add(sendRecvTimeout)) {
			p.Close("no outbound traffic sent in 20m")
			return
		}
		mult := 1
		if p.version < 60000 {
			mult = 4
		}
		if now.After(p.lastRecv.Add(sendRecvTimeout * time.Duration(mult))) {
			p.Close("no traffic received within deadline")
			return
		}
		if p.pingNonce != 0 && now.After(p.lastPing.Add(sendRecvTimeout)) {
			p.Close("outstanding ping challenge too old")
			return
		}
	}
}

// HandlePing replies with a pong, unless the remote's protocol version
// predates ping nonces (spec §4.D ping/pong: "Ping without challenge
// (version < 60000) is ignored on reply").
func (p *Peer) HandlePing(msg *wire.MsgPing) {
	if p.version >= 60000 {
		_ = p.Send(&wire.MsgPong{Nonce: msg.Nonce})
	}
}

// HandlePong updates ping statistics if the nonce matches our
// outstanding challenge; mismatches are logged, not scored.
func (p *Peer) HandlePong(msg *wire.MsgPong, now time.Time) {
	if p.pingNonce == 0 || msg.Nonce != p.pingNonce {
		p.logger.Debugf("peer %s: unmatched pong nonce", p.Addr())
		return
	}
	p.lastPong = now
	rtt := now.Sub(p.lastPing)
	if p.minPing == 0 || rtt < p.minPing {
		p.minPing = rtt
	}
	p.pingNonce = 0
}

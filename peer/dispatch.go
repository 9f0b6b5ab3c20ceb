package peer

import (
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/timgates42/mako/internal/errors"
	"github.com/timgates42/mako/wire"
)

// Feed hands freshly-read socket bytes to the framer and dispatches
// every complete message it yields. A framing/checksum error bumps ban
// score by 10 (spec §4.D misbehavior: "Parse error in the framer: +10")
// and may cascade into a ban/close if the threshold is crossed.
func (p *Peer) Feed(data []byte, deps Deps) {
	if p.state == StateDead {
		return
	}

	frames, err := p.parser.Feed(data)
	for _, f := range frames {
		p.dispatchFrame(f, deps)
		if p.state == StateDead {
			return
		}
	}

	if err != nil {
		p.logger.Debugf("peer %s: parse error: %v", p.Addr(), err)
		if p.IncreaseBan(10) {
			p.Close("ban score threshold crossed after parse error")
		}
	}
}

func (p *Peer) dispatchFrame(f *wire.Frame, deps Deps) {
	p.MarkRecv()

	msg, err := wire.Decode(f.Header.Command, f.Payload)
	if err != nil {
		if p.IncreaseBan(10) {
			p.Close("ban score threshold crossed after decode error")
		}
		return
	}

	if err := p.enforceStateContract(msg); err != nil {
		p.Close(err.Error())
		return
	}

	p.logger.Debugf("peer %s: received %s\n%s", p.Addr(), msg.Command(), spew.Sdump(msg))

	switch m := msg.(type) {
	case *wire.MsgVersion:
		p.handleIncomingVersion(m, deps)
	case *wire.MsgVerAck:
		p.CompleteHandshake()
	default:
		p.route(msg, deps)
	}
}

// handleIncomingVersion drives the WAIT_VERSION -> WAIT_VERACK
// transition for both inbound and outbound peers (spec §4.D state
// diagram: "On Version receipt... sends its own Version (if inbound)
// and a Verack, and moves to WAIT_VERACK").
func (p *Peer) handleIncomingVersion(m *wire.MsgVersion, deps Deps) {
	if p.Outbound() {
		if err := p.ValidateOutboundHandshake(m, deps); err != nil {
			p.Close(err.Error())
			return
		}
	}

	p.HandleVersion(m)

	if p.inbound {
		nonce, err := deps.RandomNonce()
		if err == nil {
			_ = p.Send(p.LocalVersionMsg(nonce, p.height))
		}
	}
	_ = p.Send(&wire.MsgVerAck{})
	p.AdvanceToWaitVerack()
}

// enforceStateContract implements the state diagram's "any message other
// than X is a protocol violation: close" rules (spec §4.D).
func (p *Peer) enforceStateContract(msg wire.Message) error {
	switch p.state {
	case StateWaitVersion:
		if msg.Command() != wire.CmdVersion {
			return errors.NewProtocolError("expected version, got %s", msg.Command())
		}
	case StateWaitVerack:
		if msg.Command() != wire.CmdVerAck {
			return errors.NewProtocolError("expected verack, got %s", msg.Command())
		}
	case StateConnected:
		if msg.Command() == wire.CmdVersion || msg.Command() == wire.CmdVerAck {
			return errors.NewProtocolError("unexpected %s after handshake", msg.Command())
		}
	}
	return nil
}

func (p *Peer) route(msg wire.Message, deps Deps) {
	l := p.cfg.Listeners
	now := time.Now()

	switch m := msg.(type) {
	case *wire.MsgPing:
		p.HandlePing(m)
	case *wire.MsgPong:
		p.HandlePong(m, now)
	case *wire.MsgGetAddr:
		if l.OnGetAddr != nil {
			l.OnGetAddr(p, m)
		}
	case *wire.MsgAddr:
		if l.OnAddr != nil {
			l.OnAddr(p, m)
		}
	case *wire.MsgInv:
		if l.OnInv != nil {
			l.OnInv(p, m)
		}
	case *wire.MsgGetData:
		if l.OnGetData != nil {
			l.OnGetData(p, m)
		}
	case *wire.MsgNotFound:
		if l.OnNotFound != nil {
			l.OnNotFound(p, m)
		}
	case *wire.MsgGetBlocks:
		if l.OnGetBlocks != nil {
			l.OnGetBlocks(p, m)
		}
	case *wire.MsgGetHeaders:
		if l.OnGetHeaders != nil {
			l.OnGetHeaders(p, m)
		}
	case *wire.MsgHeaders:
		if l.OnHeaders != nil {
			l.OnHeaders(p, m)
		}
	case *wire.MsgTx:
		if l.OnTx != nil {
			l.OnTx(p, m)
		}
	case *wire.MsgBlock:
		if l.OnBlock != nil {
			l.OnBlock(p, m)
		}
	case *wire.MsgReject:
		if l.OnReject != nil {
			l.OnReject(p, m)
		}
	case *wire.MsgFeeFilter:
		p.minFeeRate = m.MinFeeRate
		if l.OnFeeFilter != nil {
			l.OnFeeFilter(p, m)
		}
	case *wire.MsgSendHeaders:
		p.prefersHdr = true
		if l.OnSendHeaders != nil {
			l.OnSendHeaders(p, m)
		}
	case *wire.MsgSendCmpct:
		if m.Announce {
			if m.Version == 1 {
				p.compactMode = CompactModeHighBandwidth
			} else {
				p.compactMode = CompactModeLowBandwidth
			}
		}
		if l.OnSendCmpct != nil {
			l.OnSendCmpct(p, m)
		}
	case *wire.MsgCmpctBlock:
		if l.OnCmpctBlock != nil {
			l.OnCmpctBlock(p, m)
		}
	case *wire.MsgGetBlockTxn:
		if l.OnGetBlockTxn != nil {
			l.OnGetBlockTxn(p, m)
		}
	case *wire.MsgBlockTxn:
		if l.OnBlockTxn != nil {
			l.OnBlockTxn(p, m)
		}
	case *wire.MsgMemPool, *wire.MsgUnknown:
		// logged, not errors (spec §4.B)
	}
}

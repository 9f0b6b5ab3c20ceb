package peer

import (
	"time"

	"github.com/timgates42/mako/internal/errors"
	"github.com/timgates42/mako/wire"
)

// ServiceNetwork / ServiceWitness mirror the bits spec §4.D.validation
// checks against.
const (
	serviceNetwork = wire.ServiceNetwork
	serviceWitness = wire.ServiceWitness
)

// ValidateOutboundHandshake runs the spec §4.D ordered validation list
// for outbound peers only; any failure closes.
func (p *Peer) ValidateOutboundHandshake(msg *wire.MsgVersion, deps Deps) error {
	if !p.cfg.SelfConnect && deps.OwnNonceExists(msg.Nonce) {
		return errors.New(errors.ERR_SELF_CONNECT, "connected to self")
	}
	if msg.ProtocolVersion < MinVersion {
		return errors.NewProtocolError("peer version %d below minimum %d", msg.ProtocolVersion, MinVersion)
	}
	if msg.Services&serviceNetwork == 0 {
		return errors.NewProtocolError("peer does not advertise NODE_NETWORK")
	}
	if p.cfg.CheckpointsOn && msg.ProtocolVersion < HeadersVersion {
		return errors.NewProtocolError("peer version %d below headers-capable %d", msg.ProtocolVersion, HeadersVersion)
	}
	if msg.Services&serviceWitness == 0 {
		return errors.NewProtocolError("peer does not advertise NODE_WITNESS")
	}
	if p.cfg.BIP152Enabled && !p.compactWitness {
		p.logger.Warnf("peer %s lacks compact-witness support, continuing", p.Addr())
	}
	return nil
}

// HandleVersion records the fields carried by a version message and
// negotiates the protocol version (spec §4.D "On Version receipt").
func (p *Peer) HandleVersion(msg *wire.MsgVersion) {
	p.services = msg.Services
	p.height = msg.StartHeight
	p.userAgent = msg.UserAgent
	p.relay = msg.Relay

	want := p.cfg.ProtocolVersion
	if want == 0 || uint32(msg.ProtocolVersion) < want {
		p.version = uint32(msg.ProtocolVersion)
	} else {
		p.version = want
	}
}

// LocalVersionMsg builds the outgoing version message.
func (p *Peer) LocalVersionMsg(nonce uint64, startHeight int32) *wire.MsgVersion {
	return &wire.MsgVersion{
		ProtocolVersion: int32(p.cfg.ProtocolVersion),
		Services:        p.cfg.Services,
		Timestamp:       time.Now(),
		Nonce:           nonce,
		UserAgent:       "/" + p.cfg.UserAgentName + ":" + p.cfg.UserAgentVersion + "/",
		StartHeight:     startHeight,
		Relay:           !p.cfg.DisableRelayTx,
	}
}

// CompleteHandshake transitions WAIT_VERACK -> CONNECTED.
func (p *Peer) CompleteHandshake() {
	p.state = StateConnected
	p.lastTick = time.Now()
}

// AdvanceToWaitVerack transitions WAIT_VERSION -> WAIT_VERACK after a
// version has been received and our own Version/Verack sent.
func (p *Peer) AdvanceToWaitVerack() {
	p.state = StateWaitVerack
}

package pool

import (
	"container/list"
	"net"

	"github.com/timgates42/mako/internal/errors"
	"github.com/timgates42/mako/peer"
)

// Registry is the peer pool's addr->Peer and id->Peer mapping, plus
// insertion-order iteration and the nullable loader slot (spec §3 "Peer
// Registry"). Grounded on legacy/peer_server.go's peerState
// (inboundPeers/outboundPeers txmap.SyncedMap + Count/CountIP/forAllPeers),
// simplified to plain maps since the single-threaded loop needs no
// internal locking.
type Registry struct {
	byAddr map[string]*peer.Peer
	byID   map[int32]*peer.Peer
	order  *list.List // insertion order, elements hold *peer.Peer

	loader *peer.Peer

	inbound  int
	outbound int
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byAddr: make(map[string]*peer.Peer),
		byID:   make(map[int32]*peer.Peer),
		order:  list.New(),
	}
}

// Add inserts a new peer. addr must be unique; id must be unique (spec §3
// invariant).
func (r *Registry) Add(p *peer.Peer) error {
	if _, exists := r.byAddr[p.Addr()]; exists {
		return errors.NewProcessingError("peer address %s already registered", p.Addr())
	}
	if _, exists := r.byID[p.ID]; exists {
		return errors.NewProcessingError("peer id %d already registered", p.ID)
	}

	r.byAddr[p.Addr()] = p
	r.byID[p.ID] = p
	r.order.PushBack(p)

	if p.Outbound() {
		r.outbound++
	} else {
		r.inbound++
	}
	return nil
}

// Remove tears down bookkeeping for a dead peer, clearing the loader slot
// if it held it (invariant: loader != nil ⇒ loader.outbound && loader.loader).
func (r *Registry) Remove(p *peer.Peer) {
	if _, ok := r.byAddr[p.Addr()]; !ok {
		return
	}
	delete(r.byAddr, p.Addr())
	delete(r.byID, p.ID)

	for e := r.order.Front(); e != nil; e = e.Next() {
		if e.Value.(*peer.Peer) == p {
			r.order.Remove(e)
			break
		}
	}

	if p.Outbound() {
		r.outbound--
	} else {
		r.inbound--
	}
	if r.loader == p {
		r.loader = nil
	}
}

func (r *Registry) ByAddr(addr string) (*peer.Peer, bool) { p, ok := r.byAddr[addr]; return p, ok }
func (r *Registry) ByID(id int32) (*peer.Peer, bool)      { p, ok := r.byID[id]; return p, ok }

func (r *Registry) Inbound() int  { return r.inbound }
func (r *Registry) Outbound() int { return r.outbound }
func (r *Registry) Length() int   { return r.inbound + r.outbound }

// Loader returns the pool-wide loader peer, or nil if none is assigned.
func (r *Registry) Loader() *peer.Peer { return r.loader }

// SetLoader assigns the loader slot; only an outbound peer already in the
// registry can become the loader (spec §3 invariant).
func (r *Registry) SetLoader(p *peer.Peer) error {
	if p != nil {
		if !p.Outbound() {
			return errors.NewProcessingError("loader must be an outbound peer")
		}
		if _, ok := r.byID[p.ID]; !ok {
			return errors.NewProcessingError("loader must already be registered")
		}
	}
	if r.loader != nil {
		r.loader.SetLoader(false)
	}
	r.loader = p
	if p != nil {
		p.SetLoader(true)
	}
	return nil
}

// ForEach visits every registered peer in insertion order. visit
// returning false stops iteration early.
func (r *Registry) ForEach(visit func(p *peer.Peer) bool) {
	for e := r.order.Front(); e != nil; {
		// Take the successor first: a visit that closes the peer removes
		// it from the list, which clears its link to the next element.
		next := e.Next()
		if !visit(e.Value.(*peer.Peer)) {
			return
		}
		e = next
	}
}

// CountByIP returns how many registered peers resolve to the given host,
// used to cap multiple connections from the same address (spec §4.G DoS
// limits), ported from legacy/peer_server.go's peerState.CountIP.
func (r *Registry) CountByIP(host string) int {
	n := 0
	r.ForEach(func(p *peer.Peer) bool {
		if h, _, err := net.SplitHostPort(p.Addr()); err == nil && h == host {
			n++
		}
		return true
	})
	return n
}

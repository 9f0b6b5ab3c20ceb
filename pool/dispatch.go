package pool

import (
	"sort"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/timgates42/mako/peer"
	"github.com/timgates42/mako/wire"
	"github.com/twmb/murmur3"
)

const (
	requestTimeout    = 2 * time.Minute
	maxAddrBatch      = 1000
	addrRelayMaxBatch = 10
	addrRelayMaxAge   = 10 * time.Minute

	maxHeadersBatchComplete   = 2000
	maxCompactInFlightPerPeer = 15
	maxCompactBlocksBehindTip = 15
)

// listeners wires the per-peer message callbacks (spec §4.D/§4.G dispatch
// rules), ported from legacy/peer_server.go's serverPeer.On* handlers and
// restructured to operate on the pool's registry/trackers instead of
// teranode's blockchain/mempool services.
func (p *Pool) listeners() peer.Listeners {
	return peer.Listeners{
		OnGetAddr:     p.onGetAddr,
		OnAddr:        p.onAddr,
		OnInv:         p.onInv,
		OnGetData:     p.onGetData,
		OnHeaders:     p.onHeaders,
		OnTx:          p.onTx,
		OnBlock:       p.onBlock,
		OnCmpctBlock:  p.onCmpctBlock,
		OnGetBlockTxn: p.onGetBlockTxn,
		OnBlockTxn:    p.onBlockTxn,
		OnReject:      p.onReject,
	}
}

func (p *Pool) onGetAddr(pr *peer.Peer, _ *wire.MsgGetAddr) {
	if p.deps.Addr == nil {
		return
	}
	msg := wire.NewMsgAddr()
	for i := 0; i < maxAddrBatch; i++ {
		na := p.deps.Addr.GetAddress()
		if na == nil {
			break
		}
		if err := msg.AddAddress(na); err != nil {
			break
		}
	}
	_ = pr.Send(msg)
}

// onAddr handles a batch of addresses: enforces the >1000-entry ban,
// drops already-banned candidates, feeds the rest to the address
// manager, and relays small unsolicited batches to exactly two peers
// chosen by MurmurHash3 of the 16-byte address, seeds 0 and 1, modulo
// the connected peer count (spec §4.G "Reject > 1000 entries (+100)...
// Filter by routable, services, port != 0, not banned... relay... picked
// by MurmurHash3"). The per-peer address-announce cache substitutes for
// the spec's address Bloom filter (see DESIGN.md Bloom filter
// substitution note).
func (p *Pool) onAddr(pr *peer.Peer, msg *wire.MsgAddr) {
	if len(msg.AddrList) > maxAddrBatch {
		p.banPeer(pr, 100, "addr batch exceeds 1000 entries")
		return
	}

	var accepted []*wire.NetAddress
	if p.deps.Addr != nil {
		for _, na := range msg.AddrList {
			if na == nil || na.Port == 0 || p.deps.Addr.IsBanned(na) {
				continue
			}
			accepted = append(accepted, na)
		}
		p.deps.Addr.AddAddresses(accepted, nil)
	} else {
		accepted = msg.AddrList
	}

	if pr.SentGetAddr() || len(accepted) >= addrRelayMaxBatch {
		return
	}

	now := time.Now()
	peers := p.connectedPeers()
	if len(peers) == 0 {
		return
	}

	for _, na := range accepted {
		if now.Sub(na.Timestamp) > addrRelayMaxAge {
			continue
		}
		key := addrKey(na)
		for _, seed := range [2]uint32{0, 1} {
			idx := murmur3.Sum32WithSeed(key, seed) % uint32(len(peers))
			target := peers[idx]
			if target == pr {
				continue
			}
			one := wire.NewMsgAddr()
			_ = one.AddAddress(na)
			_ = target.Send(one)
		}
	}
}

func addrKey(na *wire.NetAddress) []byte {
	ip := na.IP.To16()
	if ip == nil {
		ip = make([]byte, 16)
	}
	return ip
}

func (p *Pool) connectedPeers() []*peer.Peer {
	var out []*peer.Peer
	p.registry.ForEach(func(pr *peer.Peer) bool {
		if pr.Connected() {
			out = append(out, pr)
		}
		return true
	})
	return out
}

// onInv claims each advertised hash in the pool-wide request trackers
// before issuing getdata, so only one peer ever has a given hash
// outstanding at a time (spec §3 "global sets block_map/tx_map/
// compact_map... union over all peers").
func (p *Pool) onInv(pr *peer.Peer, msg *wire.MsgInv) {
	deadline := time.Now().Add(requestTimeout)
	p.stagger.Reset()
	for _, iv := range msg.InvList {
		switch iv.Type {
		case wire.InvBlock, wire.InvWitnessBlock:
			if p.blockReqs.Has(iv.Hash) {
				continue
			}
			if !p.blockReqs.TryClaim(iv.Hash, pr.ID) {
				continue
			}
			d := p.stagger.Next(deadline, 0)
			_ = pr.RequestBlock(iv.Hash, d)
		case wire.InvTx, wire.InvWitnessTx:
			if !p.synced {
				continue // ignore tx relay before initial sync completes
			}
			if p.deps.Mempool != nil && p.deps.Mempool.HaveTransaction(iv.Hash) {
				continue
			}
			if !p.txReqs.TryClaim(iv.Hash, pr.ID) {
				continue
			}
			d := p.stagger.Next(deadline, 0)
			_ = pr.RequestTx(iv.Hash, d)
		case wire.InvCmpctBlock:
			if !p.compactReqs.TryClaim(iv.Hash, pr.ID) {
				continue
			}
			_ = pr.RequestBlock(iv.Hash, deadline)
		}
	}
}

func (p *Pool) onGetData(pr *peer.Peer, msg *wire.MsgGetData) {
	for _, iv := range msg.InvList {
		switch iv.Type {
		case wire.InvTx, wire.InvWitnessTx:
			if p.deps.Mempool == nil {
				continue
			}
			raw, ok := p.deps.Mempool.FetchTransaction(iv.Hash)
			if !ok {
				_ = pr.Send(&wire.MsgNotFound{InvList: []*wire.InvVect{iv}})
				continue
			}
			_ = pr.Send(&wire.MsgTx{Raw: raw})
		case wire.InvBlock, wire.InvWitnessBlock:
			if p.deps.Chain == nil {
				continue
			}
			raw, ok := p.deps.Chain.FetchBlock(iv.Hash)
			if !ok {
				_ = pr.Send(&wire.MsgNotFound{InvList: []*wire.InvVect{iv}})
				continue
			}
			_ = pr.Send(&wire.MsgBlock{Raw: raw})
		}
	}
}

// onHeaders advances the header-sync chain and re-requests the next
// checkpoint window, or falls back to getblocks once past the final
// checkpoint (spec §4.G "Header sync completion": reject oversize
// batches, verify PoW and prev_block linkage per header, enforce
// checkpoint hashes).
func (p *Pool) onHeaders(pr *peer.Peer, msg *wire.MsgHeaders) {
	if p.registry.Loader() != pr {
		return
	}
	pr.SetGetHeadersTime(time.Time{})

	if len(msg.Headers) > maxHeadersBatchComplete {
		p.banPeer(pr, 100, "headers batch exceeds 2000")
		return
	}

	for _, h := range msg.Headers {
		hash := h.BlockHash()
		if !h.MeetsTarget() {
			p.banPeer(pr, 20, "header fails proof-of-work")
			return
		}
		prevTip := p.chain.Tip()
		if h.PrevBlock != prevTip.Hash {
			p.banPeer(pr, 20, "header prev-hash mismatch")
			return
		}
		if err := p.chain.Append(hash, prevTip.Height+1); err != nil {
			p.banPeer(pr, 50, "checkpoint mismatch: "+err.Error())
			return
		}
	}

	if len(msg.Headers) == 0 || len(msg.Headers) < maxHeadersBatchComplete {
		p.SetSynced(true)
		pr.SetSyncing(false)
		return
	}

	p.requestNextHeaders(pr)
}

func (p *Pool) onTx(pr *peer.Peer, msg *wire.MsgTx) {
	hash := msg.TxHash()
	p.txReqs.Release(hash)
	pr.ClearTxRequest(hash)
}

func (p *Pool) onBlock(pr *peer.Peer, msg *wire.MsgBlock) {
	hash := msg.BlockHash()
	p.blockReqs.Release(hash)
	pr.ClearBlockRequest(hash)
	pr.SetBlockTime(time.Now())
	if p.deps.Chain != nil {
		if err := p.deps.Chain.Submit(hash, msg.Raw); err != nil {
			p.logger.Debugf("pool: submit block %s: %v", hash, err)
		}
	}
}

// onCmpctBlock implements the bip152 compact-block state machine (spec
// §4.G "Compact blocks"): duplicate rejection, the unrequested/
// low-bandwidth-mode close, header PoW verification, a shortid-collision
// fallback, and either an immediate finalize (nothing missing) or a
// getblocktxn round for the rest.
//
// Resolving shortids against a live mempool snapshot needs a siphash-keyed
// mempool index this pool's narrow Mempool collaborator doesn't expose
// (see DESIGN.md's `pool (E, G)` entry); every shortid
// position is conservatively treated as missing and requested via
// getblocktxn, the protocol's own fallback path for entries a snapshot
// doesn't cover.
func (p *Pool) onCmpctBlock(pr *peer.Peer, msg *wire.MsgCmpctBlock) {
	hash := msg.Header.BlockHash()

	if pr.HasCompactBlock(hash) || p.compactReqs.Has(hash) {
		return
	}

	if !pr.HasBlockRequest(hash) && p.opts.BlockMode != peer.CompactModeHighBandwidth {
		pr.Close("unrequested compact block outside high-bandwidth mode")
		return
	}

	if !msg.Header.MeetsTarget() {
		p.banPeer(pr, 100, "compact block header fails proof-of-work")
		return
	}

	total := uint64(len(msg.ShortIDs) + len(msg.PrefilledTxs))
	prefilled := make(map[uint64]wire.MsgTx, len(msg.PrefilledTxs))
	for _, pt := range msg.PrefilledTxs {
		if pt.Index >= total {
			p.banPeer(pr, 100, "compact block prefilled index out of range")
			return
		}
		if _, dup := prefilled[pt.Index]; dup {
			p.banPeer(pr, 100, "compact block duplicate prefilled index")
			return
		}
		prefilled[pt.Index] = pt.Tx
	}

	if hasDuplicateShortID(msg.ShortIDs) {
		p.fallbackToFullBlock(pr, hash, "compact block shortid collision")
		return
	}

	missing := make(map[uint64]struct{}, len(msg.ShortIDs))
	next := uint64(0)
	for range msg.ShortIDs {
		for {
			if _, taken := prefilled[next]; !taken {
				break
			}
			next++
		}
		missing[next] = struct{}{}
		next++
	}

	if len(missing) == 0 {
		txs := make([]wire.MsgTx, total)
		for idx, tx := range prefilled {
			txs[idx] = tx
		}
		p.finalizeCompactBlock(pr, hash, msg.Header, txs)
		return
	}

	if pr.CompactBlockCount() >= maxCompactInFlightPerPeer {
		pr.Close("too many in-flight compact blocks")
		return
	}

	pr.AddCompactBlock(hash, msg.Header, total, prefilled, missing)
	p.compactReqs.TryClaim(hash, pr.ID)

	indexes := make([]uint64, 0, len(missing))
	for idx := range missing {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })
	_ = pr.Send(&wire.MsgGetBlockTxn{BlockHash: hash, Indexes: indexes})
}

func hasDuplicateShortID(ids [][6]byte) bool {
	seen := make(map[[6]byte]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
	}
	return false
}

// fallbackToFullBlock drops an in-flight compact block, applies its ban
// score, and re-requests the block whole, as both the shortid-collision
// and blocktxn-incomplete paths require (spec §4.G "fall back to full
// block and +10").
func (p *Pool) fallbackToFullBlock(pr *peer.Peer, hash chainhash.Hash, reason string) {
	pr.ClearCompactBlock(hash)
	p.compactReqs.Release(hash)
	if p.banPeer(pr, 10, reason) {
		return
	}
	_ = pr.RequestBlock(hash, time.Now().Add(requestTimeout))
}

// finalizeCompactBlock reassembles a full block from its header and
// now-complete transaction set and submits it to the chain collaborator
// (spec §4.G "finalize into a full block and submit to chain").
func (p *Pool) finalizeCompactBlock(pr *peer.Peer, hash chainhash.Hash, header wire.BlockHeader, txs []wire.MsgTx) {
	pr.ClearCompactBlock(hash)
	p.compactReqs.Release(hash)
	pr.ClearBlockRequest(hash)
	pr.SetBlockTime(time.Now())

	if p.deps.Chain == nil {
		return
	}
	raw, err := wire.AssembleBlock(header, txs)
	if err != nil {
		p.logger.Debugf("pool: assemble compact block %s: %v", hash, err)
		return
	}
	if err := p.deps.Chain.Submit(hash, raw); err != nil {
		p.logger.Debugf("pool: submit compact block %s: %v", hash, err)
	}
}

// onGetBlockTxn answers a getblocktxn by slicing the requested indices
// out of a locally held block (spec §4.G "On getblocktxn: reject if the
// target block is > 15 behind tip or unknown; otherwise fetch the block
// and reply with a blocktxn").
func (p *Pool) onGetBlockTxn(pr *peer.Peer, msg *wire.MsgGetBlockTxn) {
	if p.deps.Chain == nil {
		return
	}
	height, ok := p.deps.Chain.HeightOf(msg.BlockHash)
	if !ok || p.chain.Tip().Height-height > maxCompactBlocksBehindTip {
		return
	}
	raw, ok := p.deps.Chain.FetchBlock(msg.BlockHash)
	if !ok {
		return
	}
	txs, err := wire.ParseBlockTxs(raw)
	if err != nil {
		p.logger.Debugf("pool: parse block %s for getblocktxn: %v", msg.BlockHash, err)
		return
	}

	resp := &wire.MsgBlockTxn{BlockHash: msg.BlockHash}
	for _, idx := range msg.Indexes {
		if idx >= uint64(len(txs)) {
			continue
		}
		resp.Txs = append(resp.Txs, txs[idx])
	}
	_ = pr.Send(resp)
}

// onBlockTxn fills an in-flight compact block from a getblocktxn
// response, finalizing once complete or falling back to a full block
// otherwise (spec §4.G "On blocktxn: ... fill missing; if still
// incomplete, fall back to full block and +10; else finalize and
// submit").
func (p *Pool) onBlockTxn(pr *peer.Peer, msg *wire.MsgBlockTxn) {
	entry, ok := pr.CompactBlock(msg.BlockHash)
	if !ok {
		p.logger.Debugf("peer %s: blocktxn for unknown compact block %s", pr.Addr(), msg.BlockHash)
		return
	}

	indexes := make([]uint64, 0, len(entry.Missing))
	for idx := range entry.Missing {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	for i, idx := range indexes {
		if i >= len(msg.Txs) {
			break
		}
		entry.Prefilled[idx] = msg.Txs[i]
		delete(entry.Missing, idx)
	}

	if len(entry.Missing) > 0 {
		p.fallbackToFullBlock(pr, msg.BlockHash, "blocktxn response incomplete")
		return
	}

	txs := make([]wire.MsgTx, entry.Total)
	for idx, tx := range entry.Prefilled {
		txs[idx] = tx
	}
	p.finalizeCompactBlock(pr, msg.BlockHash, entry.Header, txs)
}

func (p *Pool) onReject(pr *peer.Peer, msg *wire.MsgReject) {
	p.logger.Debugf("peer %s rejected %s: %s", pr.Addr(), msg.Command, msg.Reason)
}

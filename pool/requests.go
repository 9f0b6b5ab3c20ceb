package pool

import (
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/dolthub/swiss"
)

// requestTracker is the pool-wide "currently being requested by some
// peer" set for one inventory kind (block_map / tx_map / compact_map,
// spec §3 "Pool"). Grounded on teranode's util.SwissMap
// (github.com/dolthub/swiss wrapping a [32]byte-keyed set), generalized
// to track which peer owns the request so a dead peer's outstanding
// requests can be released back to the pool.
type requestTracker struct {
	m *swiss.Map[chainhash.Hash, int32]
}

func newRequestTracker(sizeHint uint32) *requestTracker {
	return &requestTracker{m: swiss.NewMap[chainhash.Hash, int32](sizeHint)}
}

// TryClaim registers hash as owned by peerID if nobody else already owns
// it; returns false if some other peer has already claimed it.
func (t *requestTracker) TryClaim(hash chainhash.Hash, peerID int32) bool {
	if owner, ok := t.m.Get(hash); ok && owner != peerID {
		return false
	}
	t.m.Put(hash, peerID)
	return true
}

func (t *requestTracker) Has(hash chainhash.Hash) bool {
	_, ok := t.m.Get(hash)
	return ok
}

func (t *requestTracker) Release(hash chainhash.Hash) {
	t.m.Delete(hash)
}

// ReleaseAllOwnedBy drops every entry owned by peerID, called when a peer
// dies so its in-flight requests can be reissued to another peer.
func (t *requestTracker) ReleaseAllOwnedBy(peerID int32) {
	var stale []chainhash.Hash
	t.m.Iter(func(h chainhash.Hash, owner int32) bool {
		if owner == peerID {
			stale = append(stale, h)
		}
		return false
	})
	for _, h := range stale {
		t.m.Delete(h)
	}
}

func (t *requestTracker) Count() int { return int(t.m.Count()) }

// requestStagger spreads N deadlines set within the same tick a fixed
// increment apart (spec.md §9 Open Question (b): avoid every request in a
// batch expiring in the exact same instant and stampeding the stall
// checker). Not a bug: an intentional smoothing of the request-stall
// sweep, named here so it reads as a design choice rather than jitter.
type requestStagger struct {
	step  time.Duration
	count int
}

func newRequestStagger(step time.Duration) *requestStagger {
	return &requestStagger{step: step}
}

// Next returns the deadline for the next request issued in this tick,
// spreading successive calls within the same batch by step.
func (s *requestStagger) Next(base time.Time, timeout time.Duration) time.Time {
	d := base.Add(timeout + time.Duration(s.count)*s.step)
	s.count++
	return d
}

// Reset clears the stagger counter at the start of a new batch/tick.
func (s *requestStagger) Reset() { s.count = 0 }

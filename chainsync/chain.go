// Package chainsync implements the checkpoint-gated header-sync chain
// (component F): a forward-linked list of {hash, height} nodes starting
// at the current tip, a pointer to the next target checkpoint, and a
// pointer to the next unrequested node.
//
// Grounded on the header-sync bookkeeping in
// other_examples' btcd-lineage blockmanager/SyncManager (headerList as a
// container/list, nextCheckpoint *chaincfg.Checkpoint,
// findNextHeaderCheckpoint) and on legacy/peer_server.go's checkpoint
// merge/sort helpers, adapted from the block-manager's own goroutine into
// a plain struct the pool drives synchronously.
package chainsync

import (
	"container/list"
	"sort"

	chaincfg "github.com/bsv-blockchain/go-chaincfg"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/timgates42/mako/internal/errors"
)

// Node is a single {hash, height} entry in the header chain.
type Node struct {
	Hash   chainhash.Hash
	Height int32
}

// Chain is the forward-linked header-sync chain (spec §3 "Header-sync
// chain"). Heights are contiguous and strictly increasing; the head is
// always the current tip when a sync round begins.
type Chain struct {
	checkpointsEnabled bool
	checkpoints        []chaincfg.Checkpoint

	headers        *list.List
	nextUnrequested *list.Element
	nextCheckpoint *chaincfg.Checkpoint
}

// New builds a Chain rooted at the current tip (tipHash, tipHeight).
// checkpoints should already be sorted by height ascending; MergeCheckpoints
// below produces that ordering from a network's defaults plus overrides.
func New(checkpointsEnabled bool, checkpoints []chaincfg.Checkpoint, tipHash chainhash.Hash, tipHeight int32) *Chain {
	c := &Chain{
		checkpointsEnabled: checkpointsEnabled,
		checkpoints:        checkpoints,
		headers:            list.New(),
	}
	c.Reset(tipHash, tipHeight)
	return c
}

// Reset reseeds the chain at a new tip, as happens when a sync round
// starts or restarts after the loader peer is lost.
func (c *Chain) Reset(tipHash chainhash.Hash, tipHeight int32) {
	c.headers.Init()
	c.nextUnrequested = nil

	root := &Node{Hash: tipHash, Height: tipHeight}
	elem := c.headers.PushBack(root)
	c.nextUnrequested = elem

	if c.checkpointsEnabled {
		c.nextCheckpoint = c.findNextCheckpoint(tipHeight)
	}
}

// findNextCheckpoint returns the first checkpoint whose height is above
// height, or nil when checkpoints are exhausted or disabled.
func (c *Chain) findNextCheckpoint(height int32) *chaincfg.Checkpoint {
	if len(c.checkpoints) == 0 {
		return nil
	}
	final := &c.checkpoints[len(c.checkpoints)-1]
	if height >= final.Height {
		return nil
	}
	next := final
	for i := len(c.checkpoints) - 2; i >= 0; i-- {
		if height >= c.checkpoints[i].Height {
			break
		}
		next = &c.checkpoints[i]
	}
	return next
}

// NextCheckpoint is the target of the current headers-first sync round,
// or nil once past the final checkpoint or when checkpoints are disabled.
func (c *Chain) NextCheckpoint() *chaincfg.Checkpoint { return c.nextCheckpoint }

// IsCheckpointed reports whether height is at or below the next
// checkpoint target, i.e. still inside headers-first territory.
func (c *Chain) IsCheckpointed(height int32) bool {
	if !c.checkpointsEnabled || c.nextCheckpoint == nil {
		return false
	}
	return height <= c.nextCheckpoint.Height
}

// Append extends the chain with a new node. It enforces the contiguous,
// strictly-increasing height invariant and, when the appended height
// reaches or passes the next checkpoint, verifies the hash matches
// exactly (spec §4.F "headers-first... checkpoint hash must match
// exactly").
func (c *Chain) Append(hash chainhash.Hash, height int32) error {
	tail := c.headers.Back().Value.(*Node)
	if height != tail.Height+1 {
		return errors.NewVerifyError("non-contiguous header height %d after %d", height, tail.Height)
	}

	if c.nextCheckpoint != nil && height == c.nextCheckpoint.Height {
		if hash != *c.nextCheckpoint.Hash {
			return errors.NewVerifyError("checkpoint mismatch at height %d", height)
		}
	}

	elem := c.headers.PushBack(&Node{Hash: hash, Height: height})
	if c.nextUnrequested == nil {
		c.nextUnrequested = elem
	}

	if c.checkpointsEnabled && c.nextCheckpoint != nil && height >= c.nextCheckpoint.Height {
		c.nextCheckpoint = c.findNextCheckpoint(height)
	}

	return nil
}

// Tip returns the highest known node.
func (c *Chain) Tip() *Node {
	return c.headers.Back().Value.(*Node)
}

// NextUnrequested returns the next node past what's already been fetched
// in full (blocks requested), or nil once every known header has a
// matching block request outstanding or satisfied.
func (c *Chain) NextUnrequested() *Node {
	if c.nextUnrequested == nil {
		return nil
	}
	return c.nextUnrequested.Value.(*Node)
}

// AdvanceUnrequested moves the next-unrequested pointer forward by one,
// called once the pool has issued a request for the current node.
func (c *Chain) AdvanceUnrequested() {
	if c.nextUnrequested == nil {
		return
	}
	c.nextUnrequested = c.nextUnrequested.Next()
}

// Len is the number of nodes currently tracked.
func (c *Chain) Len() int { return c.headers.Len() }

// checkpointSorter sorts checkpoints by height ascending (ports
// legacy/peer_server.go's checkpointSorter).
type checkpointSorter []chaincfg.Checkpoint

func (s checkpointSorter) Len() int           { return len(s) }
func (s checkpointSorter) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s checkpointSorter) Less(i, j int) bool { return s[i].Height < s[j].Height }

// MergeCheckpoints merges a network's default checkpoints with operator
// overrides, overrides winning ties on height, result sorted ascending
// (ports legacy/peer_server.go's mergeCheckpoints).
func MergeCheckpoints(defaults, additional []chaincfg.Checkpoint) []chaincfg.Checkpoint {
	extra := make(map[int32]chaincfg.Checkpoint, len(additional))
	for _, cp := range additional {
		extra[cp.Height] = cp
	}

	merged := make([]chaincfg.Checkpoint, 0, len(defaults)+len(extra))
	for _, cp := range defaults {
		if _, overridden := extra[cp.Height]; !overridden {
			merged = append(merged, cp)
		}
	}
	for _, cp := range extra {
		merged = append(merged, cp)
	}

	sort.Sort(checkpointSorter(merged))
	return merged
}

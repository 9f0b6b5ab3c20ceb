package legacy

import (
	"sync"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/timgates42/mako/wire"
)

// chainStub is a minimal in-memory stand-in for the chain/mempool
// services spec §1 treats as opaque collaborators ("Consensus validation
// of blocks and transactions... Persistent block/UTXO storage, header
// index, reorg logic"). It satisfies pool.BlockSource and pool.Mempool
// just enough to answer getdata/getheaders locally and let the pool's
// own sync/relay logic exercise a real backing store end to end.
type chainStub struct {
	mu sync.Mutex

	tip       chainhash.Hash
	height    int32
	blocks    map[chainhash.Hash][]byte
	headers   map[chainhash.Hash]*wire.BlockHeader
	heights   map[chainhash.Hash]int32
	locator   []chainhash.Hash
	mempool   map[chainhash.Hash][]byte
}

func newChainStub(tip chainhash.Hash, height int32) *chainStub {
	return &chainStub{
		tip:     tip,
		height:  height,
		blocks:  make(map[chainhash.Hash][]byte),
		headers: make(map[chainhash.Hash]*wire.BlockHeader),
		heights: make(map[chainhash.Hash]int32),
		locator: []chainhash.Hash{tip},
		mempool: make(map[chainhash.Hash][]byte),
	}
}

func (c *chainStub) NewestBlock() (chainhash.Hash, int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tip, c.height, nil
}

func (c *chainStub) FetchBlock(hash chainhash.Hash) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.blocks[hash]
	return raw, ok
}

func (c *chainStub) FetchHeader(hash chainhash.Hash) (*wire.BlockHeader, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.headers[hash]
	return h, ok
}

// HeightOf returns a known block's height, used by the getblocktxn
// handler to enforce the "target block is > 15 behind tip" depth check
// (spec §4.G "On getblocktxn: reject if the target block is > 15 behind
// tip or unknown").
func (c *chainStub) HeightOf(hash chainhash.Hash) (int32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.heights[hash]
	return h, ok
}

func (c *chainStub) LocatorHashes() []chainhash.Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]chainhash.Hash, len(c.locator))
	copy(out, c.locator)
	return out
}

// Submit records a fully assembled block, standing in for the chain
// collaborator's own consensus validation (spec §1 non-goal). It always
// accepts, and any hash other than the current tip becomes the new tip one
// height higher; whether the block links to the tip is not checked.
func (c *chainStub) Submit(hash chainhash.Hash, raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks[hash] = raw
	if hash != c.tip {
		c.heights[hash] = c.height + 1
		c.tip = hash
		c.height++
		c.locator = append([]chainhash.Hash{hash}, c.locator...)
	}
	return nil
}

func (c *chainStub) HaveTransaction(hash chainhash.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.mempool[hash]
	return ok
}

func (c *chainStub) FetchTransaction(hash chainhash.Hash) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.mempool[hash]
	return raw, ok
}

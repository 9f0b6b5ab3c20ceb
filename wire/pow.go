package wire

import (
	"math/big"

	bt "github.com/bsv-blockchain/go-bt/v2"
)

// compactToBig expands a block header's compact difficulty bits into its
// full target, the same exponent/mantissa layout teranode's
// model.NBit.CalculateTarget and btcd's blockchain.CompactToBig use.
func compactToBig(bits uint32) *big.Int {
	mantissa := bits & 0x007fffff
	exponent := bits >> 24

	target := new(big.Int)
	if exponent <= 3 {
		target.SetInt64(int64(mantissa >> (8 * (3 - exponent))))
	} else {
		target.SetInt64(int64(mantissa))
		target.Lsh(target, 8*(uint(exponent)-3))
	}
	return target
}

// MeetsTarget reports whether the header's own hash satisfies its
// declared difficulty bits (spec §4.G header-sync completion: "For each
// header: verify PoW"). Byte order follows teranode's
// services/blockchain/work.CalculateWork, which reverses a chainhash.Hash
// through bt.ReverseBytes before treating it as a big-endian integer.
func (h *BlockHeader) MeetsTarget() bool {
	target := compactToBig(h.Bits)
	if target.Sign() <= 0 {
		return false
	}

	hash := h.BlockHash()
	raw := make([]byte, len(hash))
	copy(raw, hash[:])

	hashNum := new(big.Int).SetBytes(bt.ReverseBytes(raw))
	return hashNum.Cmp(target) <= 0
}

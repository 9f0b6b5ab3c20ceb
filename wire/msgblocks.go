package wire

import (
	"encoding/binary"
	"io"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/timgates42/mako/internal/errors"
)

const maxBlockLocatorHashes = 2000

func writeLocator(w io.Writer, locator []*chainhash.Hash, stop *chainhash.Hash) error {
	if err := writeVarInt(w, uint64(len(locator))); err != nil {
		return err
	}
	for _, h := range locator {
		if err := writeHash(w, h); err != nil {
			return err
		}
	}
	return writeHash(w, stop)
}

func readLocator(r io.Reader) ([]*chainhash.Hash, *chainhash.Hash, error) {
	count, err := readVarInt(r)
	if err != nil {
		return nil, nil, err
	}
	if count > maxBlockLocatorHashes {
		return nil, nil, errors.NewProtocolError("locator length %d exceeds max %d", count, maxBlockLocatorHashes)
	}
	locator := make([]*chainhash.Hash, 0, count)
	for i := uint64(0); i < count; i++ {
		h, err := readHash(r)
		if err != nil {
			return nil, nil, err
		}
		locator = append(locator, h)
	}
	stop, err := readHash(r)
	if err != nil {
		return nil, nil, err
	}
	return locator, stop, nil
}

// MsgGetBlocks / MsgGetHeaders request a range of blocks/headers starting
// after the first locator hash the remote recognizes, stopping at
// HashStop (zero hash means "as many as possible").
type MsgGetBlocks struct {
	Locator  []*chainhash.Hash
	HashStop chainhash.Hash
}

func NewMsgGetBlocks(stop *chainhash.Hash) *MsgGetBlocks {
	return &MsgGetBlocks{HashStop: *stop}
}

func (m *MsgGetBlocks) AddBlockLocatorHash(h *chainhash.Hash) error {
	if len(m.Locator) >= maxBlockLocatorHashes {
		return errors.NewProtocolError("locator full")
	}
	m.Locator = append(m.Locator, h)
	return nil
}

func (m *MsgGetBlocks) Command() string { return CmdGetBlocks }
func (m *MsgGetBlocks) BsvEncode(w io.Writer) error {
	return writeLocator(w, m.Locator, &m.HashStop)
}
func (m *MsgGetBlocks) Bsvdecode(r io.Reader, length uint32) error {
	locator, stop, err := readLocator(r)
	if err != nil {
		return err
	}
	m.Locator, m.HashStop = locator, *stop
	return nil
}

type MsgGetHeaders struct {
	Locator  []*chainhash.Hash
	HashStop chainhash.Hash
}

func NewMsgGetHeaders() *MsgGetHeaders { return &MsgGetHeaders{} }

func (m *MsgGetHeaders) AddBlockLocatorHash(h *chainhash.Hash) error {
	if len(m.Locator) >= maxBlockLocatorHashes {
		return errors.NewProtocolError("locator full")
	}
	m.Locator = append(m.Locator, h)
	return nil
}

func (m *MsgGetHeaders) Command() string { return CmdGetHeaders }
func (m *MsgGetHeaders) BsvEncode(w io.Writer) error {
	return writeLocator(w, m.Locator, &m.HashStop)
}
func (m *MsgGetHeaders) Bsvdecode(r io.Reader, length uint32) error {
	locator, stop, err := readLocator(r)
	if err != nil {
		return err
	}
	m.Locator, m.HashStop = locator, *stop
	return nil
}

// BlockHeader is the 80-byte block header. The trailing transaction-count
// varint that follows each header in a headers message (always 0 on the
// wire; block bodies travel in `block` messages) is not part of it; the
// headers message writes and skips it.
type BlockHeader struct {
	Version    int32
	PrevBlock  chainhash.Hash
	MerkleRoot chainhash.Hash
	Timestamp  uint32
	Bits       uint32
	Nonce      uint32
}

func (h *BlockHeader) encode(w io.Writer) error {
	var buf [80]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Version))
	copy(buf[4:36], h.PrevBlock[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[72:76], h.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
	_, err := w.Write(buf[:])
	return err
}

func (h *BlockHeader) decode(r io.Reader) error {
	var buf [80]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	h.Version = int32(binary.LittleEndian.Uint32(buf[0:4]))
	copy(h.PrevBlock[:], buf[4:36])
	copy(h.MerkleRoot[:], buf[36:68])
	h.Timestamp = binary.LittleEndian.Uint32(buf[68:72])
	h.Bits = binary.LittleEndian.Uint32(buf[72:76])
	h.Nonce = binary.LittleEndian.Uint32(buf[76:80])
	return nil
}

// BlockHash computes the double-SHA256 block hash of the header.
func (h *BlockHeader) BlockHash() chainhash.Hash {
	buf := make([]byte, 80)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Version))
	copy(buf[4:36], h.PrevBlock[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[72:76], h.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
	return chainhash.DoubleHashH(buf)
}

// maxHeadersWireCap is a purely defensive bound against a hostile peer
// claiming an enormous header count to force a huge allocation; it is
// intentionally far above the spec's business rule of "reject batches >
// 2000 (+100)", which is enforced at the pool layer (pool/dispatch.go
// onHeaders) where a ban score can actually be applied.
const maxHeadersWireCap = 50_000

// MsgHeaders carries a batch of block headers during headers-first sync.
type MsgHeaders struct {
	Headers []*BlockHeader
}

func (m *MsgHeaders) Command() string { return CmdHeaders }

func (m *MsgHeaders) BsvEncode(w io.Writer) error {
	if err := writeVarInt(w, uint64(len(m.Headers))); err != nil {
		return err
	}
	for _, h := range m.Headers {
		if err := h.encode(w); err != nil {
			return err
		}
		if err := writeVarInt(w, 0); err != nil { // tx count, always 0
			return err
		}
	}
	return nil
}

func (m *MsgHeaders) Bsvdecode(r io.Reader, length uint32) error {
	count, err := readVarInt(r)
	if err != nil {
		return err
	}
	if count > maxHeadersWireCap {
		return errors.NewProtocolError("headers batch %d exceeds max %d", count, maxHeadersWireCap)
	}
	headers := make([]*BlockHeader, 0, count)
	for i := uint64(0); i < count; i++ {
		h := &BlockHeader{}
		if err := h.decode(r); err != nil {
			return err
		}
		if _, err := readVarInt(r); err != nil { // discard tx count
			return err
		}
		headers = append(headers, h)
	}
	m.Headers = headers
	return nil
}

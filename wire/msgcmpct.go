package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	bt "github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
	"github.com/timgates42/mako/internal/errors"
)

// readNestedTx decodes one transaction from a stream shared with
// neighboring messages, where no outer length prefix exists to bound the
// read the way Bsvdecode's top-level `length` parameter does for a
// standalone `tx` message. go-bt/v2's Tx.ReadFrom parses the Bitcoin
// transaction wire format structurally (version, inputs, outputs,
// locktime) and so consumes exactly the bytes belonging to the
// transaction; a TeeReader captures those same bytes verbatim into
// MsgTx.Raw so the rest of the core keeps treating tx bodies as opaque.
func readNestedTx(r io.Reader) (MsgTx, error) {
	var captured bytes.Buffer
	tee := io.TeeReader(r, &captured)

	tx := &bt.Tx{}
	if _, err := tx.ReadFrom(tee); err != nil {
		return MsgTx{}, errors.NewParseError("decode nested tx: %v", err)
	}
	return MsgTx{Raw: captured.Bytes()}, nil
}

// maxCompactEntries bounds shortid/prefilled-tx/index counts decoded from
// a single compact-block-family message, matching the defensive caps
// applied to the other list-shaped messages in this package.
const maxCompactEntries = 4_000_000

// PrefilledTx is a transaction included directly in a compact block
// rather than represented by a shortid (spec §4.G compact blocks).
type PrefilledTx struct {
	Index uint64
	Tx    MsgTx
}

// MsgCmpctBlock is the bip152 compact-block announcement: a header, a
// nonce for shortid siphash keys, a sparse prefilled-tx list, and the
// 6-byte shortids for everything else.
type MsgCmpctBlock struct {
	Header       BlockHeader
	Nonce        uint64
	ShortIDs     [][6]byte
	PrefilledTxs []PrefilledTx
}

// readBoundedCount reads a varint count and safely narrows it to an int,
// rejecting both overflow and anything past maxCompactEntries before the
// caller allocates a slice sized by it.
func readBoundedCount(r io.Reader) (int, error) {
	n, err := readVarInt(r)
	if err != nil {
		return 0, err
	}
	if n > maxCompactEntries {
		return 0, errors.NewProtocolError("compact-block entry count %d exceeds max %d", n, maxCompactEntries)
	}
	count, err := safeconversion.Uint64ToInt(n)
	if err != nil {
		return 0, errors.NewParseError("entry count overflow: %v", err)
	}
	return count, nil
}

func (m *MsgCmpctBlock) Command() string { return CmdCmpctBlock }

func (m *MsgCmpctBlock) BsvEncode(w io.Writer) error {
	if err := m.Header.encode(w); err != nil {
		return err
	}
	var nbuf [8]byte
	binary.LittleEndian.PutUint64(nbuf[:], m.Nonce)
	if _, err := w.Write(nbuf[:]); err != nil {
		return err
	}
	if err := writeVarInt(w, uint64(len(m.ShortIDs))); err != nil {
		return err
	}
	for _, s := range m.ShortIDs {
		if _, err := w.Write(s[:]); err != nil {
			return err
		}
	}
	if err := writeVarInt(w, uint64(len(m.PrefilledTxs))); err != nil {
		return err
	}
	for _, p := range m.PrefilledTxs {
		if err := writeVarInt(w, p.Index); err != nil {
			return err
		}
		if err := p.Tx.BsvEncode(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *MsgCmpctBlock) Bsvdecode(r io.Reader, length uint32) error {
	if err := m.Header.decode(r); err != nil {
		return err
	}
	var nbuf [8]byte
	if _, err := io.ReadFull(r, nbuf[:]); err != nil {
		return err
	}
	m.Nonce = binary.LittleEndian.Uint64(nbuf[:])

	sidCount, err := readBoundedCount(r)
	if err != nil {
		return err
	}
	m.ShortIDs = make([][6]byte, sidCount)
	for i := range m.ShortIDs {
		if _, err := io.ReadFull(r, m.ShortIDs[i][:]); err != nil {
			return err
		}
	}

	pCount, err := readBoundedCount(r)
	if err != nil {
		return err
	}
	m.PrefilledTxs = make([]PrefilledTx, pCount)
	for i := range m.PrefilledTxs {
		idx, err := readVarInt(r)
		if err != nil {
			return err
		}
		tx, err := readNestedTx(r)
		if err != nil {
			return err
		}
		m.PrefilledTxs[i].Index = idx
		m.PrefilledTxs[i].Tx = tx
	}
	return nil
}

// MsgGetBlockTxn requests the missing transactions of a compact block by
// index.
type MsgGetBlockTxn struct {
	BlockHash chainhash.Hash
	Indexes   []uint64
}

func (m *MsgGetBlockTxn) Command() string { return CmdGetBlockTxn }

func (m *MsgGetBlockTxn) BsvEncode(w io.Writer) error {
	if err := writeHash(w, &m.BlockHash); err != nil {
		return err
	}
	if err := writeVarInt(w, uint64(len(m.Indexes))); err != nil {
		return err
	}
	for _, idx := range m.Indexes {
		if err := writeVarInt(w, idx); err != nil {
			return err
		}
	}
	return nil
}

func (m *MsgGetBlockTxn) Bsvdecode(r io.Reader, length uint32) error {
	h, err := readHash(r)
	if err != nil {
		return err
	}
	m.BlockHash = *h
	count, err := readBoundedCount(r)
	if err != nil {
		return err
	}
	m.Indexes = make([]uint64, count)
	for i := range m.Indexes {
		idx, err := readVarInt(r)
		if err != nil {
			return err
		}
		m.Indexes[i] = idx
	}
	return nil
}

// MsgBlockTxn is the getblocktxn response: the requested transactions.
type MsgBlockTxn struct {
	BlockHash chainhash.Hash
	Txs       []MsgTx
}

func (m *MsgBlockTxn) Command() string { return CmdBlockTxn }

func (m *MsgBlockTxn) BsvEncode(w io.Writer) error {
	if err := writeHash(w, &m.BlockHash); err != nil {
		return err
	}
	if err := writeVarInt(w, uint64(len(m.Txs))); err != nil {
		return err
	}
	for i := range m.Txs {
		if err := m.Txs[i].BsvEncode(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *MsgBlockTxn) Bsvdecode(r io.Reader, length uint32) error {
	h, err := readHash(r)
	if err != nil {
		return err
	}
	m.BlockHash = *h

	count, err := readBoundedCount(r)
	if err != nil {
		return err
	}
	m.Txs = make([]MsgTx, count)
	for i := range m.Txs {
		tx, err := readNestedTx(r)
		if err != nil {
			return err
		}
		m.Txs[i] = tx
	}
	return nil
}

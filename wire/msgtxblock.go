package wire

import (
	"bytes"
	"io"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/timgates42/mako/internal/errors"
)

// MsgTx and MsgBlock are treated as opaque payloads by the core: full
// transaction/script decoding is consensus-validation territory (spec §1
// non-goal), so the wire codec only needs the header/hash metadata the
// state machine and pool reason about, plus the raw bytes the chain and
// mempool collaborators consume verbatim.

// MsgTx wraps a raw serialized transaction. Hash is the double-SHA256 of
// Raw, used for inventory identity; a real consensus engine would derive
// a wtxid/txid pair here instead.
type MsgTx struct {
	Raw  []byte
	hash *chainhash.Hash
}

func (m *MsgTx) Command() string { return CmdTx }

func (m *MsgTx) BsvEncode(w io.Writer) error {
	_, err := w.Write(m.Raw)
	return err
}

func (m *MsgTx) Bsvdecode(r io.Reader, length uint32) error {
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	m.Raw = buf
	return nil
}

func (m *MsgTx) TxHash() chainhash.Hash {
	if m.hash == nil {
		h := chainhash.DoubleHashH(m.Raw)
		m.hash = &h
	}
	return *m.hash
}

// MsgBlock carries a parsed header plus the raw bytes of the whole block
// (header, transaction count and transactions), left opaque for the same
// reason.
type MsgBlock struct {
	Header BlockHeader
	Raw    []byte // header bytes + tx payload, full wire-format block
}

func (m *MsgBlock) Command() string { return CmdBlock }

func (m *MsgBlock) BsvEncode(w io.Writer) error {
	_, err := w.Write(m.Raw)
	return err
}

func (m *MsgBlock) Bsvdecode(r io.Reader, length uint32) error {
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}
	m.Raw = buf
	if len(buf) >= 80 {
		_ = m.Header.decode(&sliceReader{b: buf[:80]})
	}
	return nil
}

func (m *MsgBlock) BlockHash() chainhash.Hash { return m.Header.BlockHash() }

// ParseBlockTxs splits a full block payload's transactions back out by
// index, used to answer getblocktxn (spec §4.G "otherwise fetch the
// block and reply with a blocktxn"). Each tx is self-delimiting via
// readNestedTx the same way compact-block prefilled transactions are.
func ParseBlockTxs(raw []byte) ([]MsgTx, error) {
	if len(raw) < 80 {
		return nil, errors.NewParseError("block payload too short for header")
	}
	r := bytes.NewReader(raw[80:])
	count, err := readBoundedCount(r)
	if err != nil {
		return nil, err
	}
	txs := make([]MsgTx, count)
	for i := range txs {
		tx, err := readNestedTx(r)
		if err != nil {
			return nil, err
		}
		txs[i] = tx
	}
	return txs, nil
}

// AssembleBlock serializes a full block payload (header + tx count + raw
// tx bodies), the inverse of ParseBlockTxs, used to finalize a compact
// block once every transaction is known.
func AssembleBlock(header BlockHeader, txs []MsgTx) ([]byte, error) {
	var buf bytes.Buffer
	if err := header.encode(&buf); err != nil {
		return nil, err
	}
	if err := writeVarInt(&buf, uint64(len(txs))); err != nil {
		return nil, err
	}
	for i := range txs {
		if err := txs[i].BsvEncode(&buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

type sliceReader struct {
	b   []byte
	pos int
}

func (s *sliceReader) Read(p []byte) (int, error) {
	n := copy(p, s.b[s.pos:])
	s.pos += n
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

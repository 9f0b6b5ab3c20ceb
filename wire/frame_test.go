package wire

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/require"
)

func TestChecksumMatchesDoubleSHA256(t *testing.T) {
	payload := []byte("hello world")
	sum := checksum(payload)
	require.Len(t, sum, 4)
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	require.Equal(t, second[:4], sum[:])

	// Round trip through a real frame.
	frame, err := EncodeFrame(MainNet, "test", payload)
	require.NoError(t, err)

	p := NewParser(MainNet)
	frames, err := p.Feed(frame)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, payload, frames[0].Payload)
	require.Equal(t, sum, frames[0].Header.Checksum)
}

func TestParserRejectsBadMagic(t *testing.T) {
	frame, err := EncodeFrame(TestNet, "test", []byte("x"))
	require.NoError(t, err)

	p := NewParser(MainNet)
	_, err = p.Feed(frame)
	require.Error(t, err)
}

func TestEncodeFrameRejectsOversizePayload(t *testing.T) {
	_, err := EncodeFrame(MainNet, "test", make([]byte, MaxMessagePayload+1))
	require.Error(t, err)
}

func TestParserRejectsBadChecksum(t *testing.T) {
	frame, err := EncodeFrame(MainNet, "test", []byte("hello"))
	require.NoError(t, err)
	frame[len(frame)-1] ^= 0xFF // corrupt the last payload byte so the checksum no longer matches

	p := NewParser(MainNet)
	_, err = p.Feed(frame)
	require.Error(t, err)
}

func TestParserHandlesSplitReads(t *testing.T) {
	frame, err := EncodeFrame(MainNet, CmdPing, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.NoError(t, err)

	p := NewParser(MainNet)
	frames, err := p.Feed(frame[:10])
	require.NoError(t, err)
	require.Empty(t, frames)

	frames, err = p.Feed(frame[10:])
	require.NoError(t, err)
	require.Len(t, frames, 1)
	require.Equal(t, CmdPing, frames[0].Header.Command)
}

func TestVersionRoundTrip(t *testing.T) {
	v := &MsgVersion{
		ProtocolVersion: 70015,
		Services:        ServiceNetwork | ServiceWitness,
		Timestamp:       time.Unix(1700000000, 0),
		Nonce:           0x1111222233334444,
		UserAgent:       "/mako:1.0/",
		StartHeight:     100,
		Relay:           true,
	}

	encoded, err := Encode(MainNet, v)
	require.NoError(t, err)

	p := NewParser(MainNet)
	frames, err := p.Feed(encoded)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	decoded, err := Decode(frames[0].Header.Command, frames[0].Payload)
	require.NoError(t, err)

	got, ok := decoded.(*MsgVersion)
	require.True(t, ok)
	require.Equal(t, v.ProtocolVersion, got.ProtocolVersion)
	require.Equal(t, v.Services, got.Services)
	require.Equal(t, v.Nonce, got.Nonce)
	require.Equal(t, v.UserAgent, got.UserAgent)
	require.Equal(t, v.StartHeight, got.StartHeight)
	require.Equal(t, v.Relay, got.Relay)
}

func TestInvRoundTrip(t *testing.T) {
	inv := NewMsgInv()
	for i := 0; i < 5; i++ {
		require.NoError(t, inv.AddInvVect(&InvVect{Type: InvBlock}))
	}

	encoded, err := Encode(MainNet, inv)
	require.NoError(t, err)

	p := NewParser(MainNet)
	frames, err := p.Feed(encoded)
	require.NoError(t, err)

	decoded, err := Decode(frames[0].Header.Command, frames[0].Payload)
	require.NoError(t, err)
	got := decoded.(*MsgInv)
	require.Len(t, got.InvList, 5)
}

// minimalTxRaw is a structurally valid, zero-input/zero-output
// transaction (version 1, locktime 0) used only to exercise the nested
// tx decode path; go-bt/v2's own test fixtures (e.g. bt.NewTx()) are the
// same shape.
func minimalTxRaw() []byte {
	return []byte{
		0x01, 0x00, 0x00, 0x00, // version
		0x00,                   // input count
		0x00,                   // output count
		0x00, 0x00, 0x00, 0x00, // locktime
	}
}

func TestCmpctBlockRoundTrip(t *testing.T) {
	msg := &MsgCmpctBlock{
		Header: BlockHeader{Version: 1, Timestamp: 1700000000, Bits: 0x207fffff},
		Nonce:  0xdeadbeefcafebabe,
		ShortIDs: [][6]byte{
			{1, 2, 3, 4, 5, 6},
			{6, 5, 4, 3, 2, 1},
		},
		PrefilledTxs: []PrefilledTx{
			{Index: 0, Tx: MsgTx{Raw: minimalTxRaw()}},
		},
	}

	encoded, err := Encode(MainNet, msg)
	require.NoError(t, err)

	p := NewParser(MainNet)
	frames, err := p.Feed(encoded)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	decoded, err := Decode(frames[0].Header.Command, frames[0].Payload)
	require.NoError(t, err)
	got, ok := decoded.(*MsgCmpctBlock)
	require.True(t, ok)

	require.Equal(t, msg.Header.Version, got.Header.Version)
	require.Equal(t, msg.Nonce, got.Nonce)
	require.Equal(t, msg.ShortIDs, got.ShortIDs)
	require.Len(t, got.PrefilledTxs, 1)
	require.Equal(t, msg.PrefilledTxs[0].Index, got.PrefilledTxs[0].Index)
	require.Equal(t, minimalTxRaw(), got.PrefilledTxs[0].Tx.Raw)
}

func TestBlockTxnRoundTrip(t *testing.T) {
	var hash chainhash.Hash
	hash[0] = 7

	msg := &MsgBlockTxn{
		BlockHash: hash,
		Txs: []MsgTx{
			{Raw: minimalTxRaw()},
			{Raw: minimalTxRaw()},
		},
	}

	encoded, err := Encode(MainNet, msg)
	require.NoError(t, err)

	p := NewParser(MainNet)
	frames, err := p.Feed(encoded)
	require.NoError(t, err)

	decoded, err := Decode(frames[0].Header.Command, frames[0].Payload)
	require.NoError(t, err)
	got, ok := decoded.(*MsgBlockTxn)
	require.True(t, ok)

	require.Equal(t, msg.BlockHash, got.BlockHash)
	require.Len(t, got.Txs, 2)
	require.Equal(t, minimalTxRaw(), got.Txs[0].Raw)
	require.Equal(t, minimalTxRaw(), got.Txs[1].Raw)
}

func TestUnknownCommandDoesNotError(t *testing.T) {
	encoded, err := EncodeFrame(MainNet, "madeupcmd", []byte{9, 9})
	require.NoError(t, err)

	p := NewParser(MainNet)
	frames, err := p.Feed(encoded)
	require.NoError(t, err)

	decoded, err := Decode(frames[0].Header.Command, frames[0].Payload)
	require.NoError(t, err)
	require.Equal(t, "madeupcmd", decoded.Command())
}

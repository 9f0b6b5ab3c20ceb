package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/timgates42/mako/internal/errors"
)

// Command names, spec §6.
const (
	CmdVersion     = "version"
	CmdVerAck      = "verack"
	CmdPing        = "ping"
	CmdPong        = "pong"
	CmdGetAddr     = "getaddr"
	CmdAddr        = "addr"
	CmdInv         = "inv"
	CmdGetData     = "getdata"
	CmdNotFound    = "notfound"
	CmdGetBlocks   = "getblocks"
	CmdGetHeaders  = "getheaders"
	CmdHeaders     = "headers"
	CmdBlock       = "block"
	CmdTx          = "tx"
	CmdReject      = "reject"
	CmdMemPool     = "mempool"
	CmdFeeFilter   = "feefilter"
	CmdSendHeaders = "sendheaders"
	CmdSendCmpct   = "sendcmpct"
	CmdCmpctBlock  = "cmpctblock"
	CmdGetBlockTxn = "getblocktxn"
	CmdBlockTxn    = "blocktxn"
	CmdUnknown     = "unknown"
)

// Service bits (spec §6 / glossary).
const (
	ServiceNetwork uint64 = 1 << 0
	ServiceBloom   uint64 = 1 << 2
	ServiceWitness uint64 = 1 << 3
)

// InvType enumerates the inventory kinds (spec §6).
type InvType uint32

const (
	InvTx                   InvType = 1
	InvBlock                InvType = 2
	InvFilteredBlock        InvType = 3
	InvCmpctBlock           InvType = 4
	InvWitnessTx            InvType = 0x40000001
	InvWitnessBlock         InvType = 0x40000002
	InvWitnessFilteredBlock InvType = 0x40000003
)

// Message is the sum type over the closed command set (design note:
// "Message polymorphism... dispatch with a match, not dynamic calls").
// UNKNOWN is the default for any command not in the closed set.
type Message interface {
	Command() string
	BsvEncode(w io.Writer) error
	Bsvdecode(r io.Reader, length uint32) error
}

// Decode reads and dispatches a single message body for the given
// command, returning an Unknown sentinel body for unrecognized commands
// per spec §4.B ("Unknown commands decode to a sentinel UNKNOWN... not
// errors").
func Decode(command string, payload []byte) (Message, error) {
	msg := newMessageForCommand(command)
	r := bytes.NewReader(payload)
	if err := msg.Bsvdecode(r, uint32(len(payload))); err != nil {
		return nil, errors.NewParseError("decode %s: %v", command, err)
	}
	return msg, nil
}

// Encode serializes msg's command and payload into a full frame.
func Encode(net BitcoinNet, msg Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := msg.BsvEncode(&buf); err != nil {
		return nil, err
	}
	return EncodeFrame(net, msg.Command(), buf.Bytes())
}

func newMessageForCommand(command string) Message {
	switch command {
	case CmdVersion:
		return &MsgVersion{}
	case CmdVerAck:
		return &MsgVerAck{}
	case CmdPing:
		return &MsgPing{}
	case CmdPong:
		return &MsgPong{}
	case CmdGetAddr:
		return &MsgGetAddr{}
	case CmdAddr:
		return &MsgAddr{}
	case CmdInv:
		return &MsgInv{}
	case CmdGetData:
		return &MsgGetData{}
	case CmdNotFound:
		return &MsgNotFound{}
	case CmdGetBlocks:
		return &MsgGetBlocks{}
	case CmdGetHeaders:
		return &MsgGetHeaders{}
	case CmdHeaders:
		return &MsgHeaders{}
	case CmdBlock:
		return &MsgBlock{}
	case CmdTx:
		return &MsgTx{}
	case CmdReject:
		return &MsgReject{}
	case CmdMemPool:
		return &MsgMemPool{}
	case CmdFeeFilter:
		return &MsgFeeFilter{}
	case CmdSendHeaders:
		return &MsgSendHeaders{}
	case CmdSendCmpct:
		return &MsgSendCmpct{}
	case CmdCmpctBlock:
		return &MsgCmpctBlock{}
	case CmdGetBlockTxn:
		return &MsgGetBlockTxn{}
	case CmdBlockTxn:
		return &MsgBlockTxn{}
	default:
		return &MsgUnknown{command: command}
	}
}

// --- varint / varstring helpers, matching the bitcoin wire encoding. ---

func writeVarInt(w io.Writer, n uint64) error {
	switch {
	case n < 0xfd:
		_, err := w.Write([]byte{byte(n)})
		return err
	case n <= 0xffff:
		buf := make([]byte, 3)
		buf[0] = 0xfd
		binary.LittleEndian.PutUint16(buf[1:], uint16(n))
		_, err := w.Write(buf)
		return err
	case n <= 0xffffffff:
		buf := make([]byte, 5)
		buf[0] = 0xfe
		binary.LittleEndian.PutUint32(buf[1:], uint32(n))
		_, err := w.Write(buf)
		return err
	default:
		buf := make([]byte, 9)
		buf[0] = 0xff
		binary.LittleEndian.PutUint64(buf[1:], n)
		_, err := w.Write(buf)
		return err
	}
}

func readVarInt(r io.Reader) (uint64, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, err
	}
	switch prefix[0] {
	case 0xfd:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint16(b[:])), nil
	case 0xfe:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint32(b[:])), nil
	case 0xff:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(b[:]), nil
	default:
		return uint64(prefix[0]), nil
	}
}

func writeVarString(w io.Writer, s string) error {
	if err := writeVarInt(w, uint64(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readVarString(r io.Reader, maxLen uint64) (string, error) {
	n, err := readVarInt(r)
	if err != nil {
		return "", err
	}
	if n > maxLen {
		return "", errors.NewParseError("varstring length %d exceeds max %d", n, maxLen)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readHash(r io.Reader) (*chainhash.Hash, error) {
	var h chainhash.Hash
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return nil, err
	}
	return &h, nil
}

func writeHash(w io.Writer, h *chainhash.Hash) error {
	_, err := w.Write(h[:])
	return err
}

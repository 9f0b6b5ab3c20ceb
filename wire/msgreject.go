package wire

import (
	"io"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// RejectCode enumerates the reject-message reason codes (spec §7:
// "Reject messages... carry a numeric code mapped from the verify
// error").
type RejectCode uint8

const (
	RejectMalformed       RejectCode = 0x01
	RejectInvalid         RejectCode = 0x10
	RejectObsolete        RejectCode = 0x11
	RejectDuplicate       RejectCode = 0x12
	RejectNonstandard     RejectCode = 0x40
	RejectDust            RejectCode = 0x41
	RejectInsufficientFee RejectCode = 0x42
	RejectCheckpoint      RejectCode = 0x43
)

// VerifyErrorKind names the kinds of chain/mempool verify failures the
// pool maps onto a RejectCode, resolving spec §9 Open Question (a).
type VerifyErrorKind int

const (
	VerifyMalformed VerifyErrorKind = iota
	VerifyInvalid
	VerifyObsolete
	VerifyDuplicate
	VerifyNonstandard
	VerifyDust
	VerifyInsufficientFee
	VerifyCheckpoint
)

// rejectCodeTable is the explicit mapping spec.md §9(a) asks for.
var rejectCodeTable = map[VerifyErrorKind]RejectCode{
	VerifyMalformed:       RejectMalformed,
	VerifyInvalid:         RejectInvalid,
	VerifyObsolete:        RejectObsolete,
	VerifyDuplicate:       RejectDuplicate,
	VerifyNonstandard:     RejectNonstandard,
	VerifyDust:            RejectDust,
	VerifyInsufficientFee: RejectInsufficientFee,
	VerifyCheckpoint:      RejectCheckpoint,
}

// RejectCodeFor resolves a verify-error kind to its wire reject code.
func RejectCodeFor(kind VerifyErrorKind) RejectCode {
	if code, ok := rejectCodeTable[kind]; ok {
		return code
	}
	return RejectInvalid
}

// MsgReject names the offending command, a reason code, a human string,
// and (for block/tx rejections) the hash being rejected.
type MsgReject struct {
	Command string
	Code    RejectCode
	Reason  string
	Hash    chainhash.Hash
}

func NewMsgReject(command string, code RejectCode, reason string) *MsgReject {
	return &MsgReject{Command: command, Code: code, Reason: reason}
}

// Command returns the wire command name "reject"; the rejected command
// is stored in the Command field per the bitcoin wire format.
func (m *MsgReject) Command() string { return CmdReject }

func (m *MsgReject) BsvEncode(w io.Writer) error {
	if err := writeVarString(w, m.Command); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(m.Code)}); err != nil {
		return err
	}
	if err := writeVarString(w, m.Reason); err != nil {
		return err
	}
	if m.Command == CmdTx || m.Command == CmdBlock {
		return writeHash(w, &m.Hash)
	}
	return nil
}

func (m *MsgReject) Bsvdecode(r io.Reader, length uint32) error {
	cmd, err := readVarString(r, maxUserAgentLen)
	if err != nil {
		return err
	}
	m.Command = cmd

	var codeBuf [1]byte
	if _, err := io.ReadFull(r, codeBuf[:]); err != nil {
		return err
	}
	m.Code = RejectCode(codeBuf[0])

	reason, err := readVarString(r, 256)
	if err != nil {
		return err
	}
	m.Reason = reason

	if m.Command == CmdTx || m.Command == CmdBlock {
		h, err := readHash(r)
		if err != nil {
			return nil // hash may be absent on malformed reject; non-fatal
		}
		m.Hash = *h
	}
	return nil
}

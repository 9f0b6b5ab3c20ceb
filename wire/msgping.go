package wire

import (
	"encoding/binary"
	"io"
)

// MsgPing / MsgPong carry a 64-bit nonce challenge (spec §4.D ping/pong).
type MsgPing struct{ Nonce uint64 }
type MsgPong struct{ Nonce uint64 }

func (m *MsgPing) Command() string { return CmdPing }
func (m *MsgPing) BsvEncode(w io.Writer) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], m.Nonce)
	_, err := w.Write(buf[:])
	return err
}
func (m *MsgPing) Bsvdecode(r io.Reader, length uint32) error {
	if length == 0 {
		return nil // pre-BIP0031 ping carries no nonce
	}
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	m.Nonce = binary.LittleEndian.Uint64(buf[:])
	return nil
}

func (m *MsgPong) Command() string { return CmdPong }
func (m *MsgPong) BsvEncode(w io.Writer) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], m.Nonce)
	_, err := w.Write(buf[:])
	return err
}
func (m *MsgPong) Bsvdecode(r io.Reader, length uint32) error {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	m.Nonce = binary.LittleEndian.Uint64(buf[:])
	return nil
}

// MsgGetAddr, MsgMemPool, MsgSendHeaders have no payload.
type MsgGetAddr struct{}

func (m *MsgGetAddr) Command() string                        { return CmdGetAddr }
func (m *MsgGetAddr) BsvEncode(w io.Writer) error             { return nil }
func (m *MsgGetAddr) Bsvdecode(r io.Reader, length uint32) error { return nil }

type MsgMemPool struct{}

func (m *MsgMemPool) Command() string                        { return CmdMemPool }
func (m *MsgMemPool) BsvEncode(w io.Writer) error             { return nil }
func (m *MsgMemPool) Bsvdecode(r io.Reader, length uint32) error { return nil }

type MsgSendHeaders struct{}

func (m *MsgSendHeaders) Command() string                        { return CmdSendHeaders }
func (m *MsgSendHeaders) BsvEncode(w io.Writer) error             { return nil }
func (m *MsgSendHeaders) Bsvdecode(r io.Reader, length uint32) error { return nil }

// MsgFeeFilter carries a minimum relay fee rate (satoshis/kB).
type MsgFeeFilter struct{ MinFeeRate int64 }

func (m *MsgFeeFilter) Command() string { return CmdFeeFilter }
func (m *MsgFeeFilter) BsvEncode(w io.Writer) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(m.MinFeeRate))
	_, err := w.Write(buf[:])
	return err
}
func (m *MsgFeeFilter) Bsvdecode(r io.Reader, length uint32) error {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	m.MinFeeRate = int64(binary.LittleEndian.Uint64(buf[:]))
	return nil
}

// MsgSendCmpct announces bip152 compact-block support and mode.
type MsgSendCmpct struct {
	Announce bool
	Version  uint64
}

func (m *MsgSendCmpct) Command() string { return CmdSendCmpct }
func (m *MsgSendCmpct) BsvEncode(w io.Writer) error {
	var buf [9]byte
	if m.Announce {
		buf[0] = 1
	}
	binary.LittleEndian.PutUint64(buf[1:], m.Version)
	_, err := w.Write(buf[:])
	return err
}
func (m *MsgSendCmpct) Bsvdecode(r io.Reader, length uint32) error {
	var buf [9]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	m.Announce = buf[0] != 0
	m.Version = binary.LittleEndian.Uint64(buf[1:])
	return nil
}

// MsgUnknown is the sentinel body for any command outside the closed set
// (spec §4.B: "logged but not errors").
type MsgUnknown struct{ command string }

func (m *MsgUnknown) Command() string                        { return m.command }
func (m *MsgUnknown) BsvEncode(w io.Writer) error             { return nil }
func (m *MsgUnknown) Bsvdecode(r io.Reader, length uint32) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

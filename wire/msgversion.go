package wire

import (
	"encoding/binary"
	"io"
	"time"
)

const maxUserAgentLen = 256

// MsgVersion is the initial handshake message (spec §4.B field list).
type MsgVersion struct {
	ProtocolVersion int32
	Services        uint64
	Timestamp       time.Time
	AddrYou         NetAddress
	AddrMe          NetAddress
	Nonce           uint64
	UserAgent       string
	StartHeight     int32
	Relay           bool
}

func (m *MsgVersion) Command() string { return CmdVersion }

func (m *MsgVersion) BsvEncode(w io.Writer) error {
	var buf [20]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(m.ProtocolVersion))
	binary.LittleEndian.PutUint64(buf[4:12], m.Services)
	binary.LittleEndian.PutUint64(buf[12:20], uint64(m.Timestamp.Unix()))
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}

	if err := writeNetAddress(w, &m.AddrYou, false); err != nil {
		return err
	}
	if err := writeNetAddress(w, &m.AddrMe, false); err != nil {
		return err
	}

	var nonceBuf [8]byte
	binary.LittleEndian.PutUint64(nonceBuf[:], m.Nonce)
	if _, err := w.Write(nonceBuf[:]); err != nil {
		return err
	}

	if err := writeVarString(w, m.UserAgent); err != nil {
		return err
	}

	var tail [5]byte
	binary.LittleEndian.PutUint32(tail[0:4], uint32(m.StartHeight))
	if m.Relay {
		tail[4] = 1
	}
	_, err := w.Write(tail[:])
	return err
}

func (m *MsgVersion) Bsvdecode(r io.Reader, length uint32) error {
	var buf [20]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return err
	}
	m.ProtocolVersion = int32(binary.LittleEndian.Uint32(buf[0:4]))
	m.Services = binary.LittleEndian.Uint64(buf[4:12])
	m.Timestamp = time.Unix(int64(binary.LittleEndian.Uint64(buf[12:20])), 0)

	addrYou, err := readNetAddress(r, false)
	if err != nil {
		return err
	}
	m.AddrYou = *addrYou

	addrMe, err := readNetAddress(r, false)
	if err != nil {
		return err
	}
	m.AddrMe = *addrMe

	var nonceBuf [8]byte
	if _, err := io.ReadFull(r, nonceBuf[:]); err != nil {
		return err
	}
	m.Nonce = binary.LittleEndian.Uint64(nonceBuf[:])

	ua, err := readVarString(r, maxUserAgentLen)
	if err != nil {
		return err
	}
	m.UserAgent = ua

	var height [4]byte
	if _, err := io.ReadFull(r, height[:]); err != nil {
		return err
	}
	m.StartHeight = int32(binary.LittleEndian.Uint32(height[:]))

	// Relay flag absent implies true for older protocol versions, per
	// spec §4.B ("absent implies 1 for older protocol versions").
	var relay [1]byte
	if _, err := io.ReadFull(r, relay[:]); err != nil {
		m.Relay = true
		return nil
	}
	m.Relay = relay[0] != 0

	return nil
}

// MsgVerAck has no payload.
type MsgVerAck struct{}

func (m *MsgVerAck) Command() string                        { return CmdVerAck }
func (m *MsgVerAck) BsvEncode(w io.Writer) error             { return nil }
func (m *MsgVerAck) Bsvdecode(r io.Reader, length uint32) error { return nil }

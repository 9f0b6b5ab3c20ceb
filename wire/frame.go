// Package wire implements the peer-to-peer wire framing (component A) and
// the typed message codec (component B) described in spec §4.A/4.B and
// §6, modeled on btcd's wire.ReadMessageN/WriteMessageN shape and on
// github.com/bsv-blockchain/go-wire's BsvEncode/Bsvdecode convention.
package wire

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/timgates42/mako/internal/errors"
)

// BitcoinNet identifies the network a message frame belongs to via its
// 4-byte magic.
type BitcoinNet uint32

const (
	MainNet BitcoinNet = 0xe8f3e1e3
	TestNet BitcoinNet = 0xf4f3e5f4
	RegTest BitcoinNet = 0xdab5bffa
	SimNet  BitcoinNet = 0x12141c16
	SigNet  BitcoinNet = 0x6fa5dae2
)

// MaxMessagePayload is the spec's 32 MiB framing cap.
const MaxMessagePayload = 32 * 1024 * 1024

// CommandSize is the fixed, NUL-padded command field width.
const CommandSize = 12

// HeaderSize is magic(4) + command(12) + length(4) + checksum(4).
const HeaderSize = 4 + CommandSize + 4 + 4

// Header is the decoded 24-byte frame header.
type Header struct {
	Magic    BitcoinNet
	Command  string
	Length   uint32
	Checksum [4]byte
}

// parseState tracks the framer's two-phase read (spec §4.A).
type parseState int

const (
	stateNeedHeader parseState = iota
	stateNeedBody
)

// Frame is the fully decoded header+payload pair delivered upward once a
// checksum has been verified.
type Frame struct {
	Header  Header
	Payload []byte
}

// Parser is a single-pass, one-per-peer byte-stream framer. It never
// panics; all failures are returned from Feed as an error satisfying
// errors.Is(err, errors.ERR_PARSE), matching the spec's "the parser never
// throws" contract (upstream on_parse_error()).
type Parser struct {
	net   BitcoinNet
	state parseState
	hdr   Header
	buf   []byte // accumulated bytes not yet consumed
}

// NewParser creates a framer bound to a single network magic.
func NewParser(net BitcoinNet) *Parser {
	return &Parser{net: net, state: stateNeedHeader}
}

// Feed appends newly-read socket bytes and returns every complete,
// checksum-verified frame it can extract. Partial data is retained for
// the next call (unbounded except by MaxMessagePayload on a single
// payload, per spec §4.A back-pressure note).
func (p *Parser) Feed(data []byte) ([]*Frame, error) {
	p.buf = append(p.buf, data...)

	var frames []*Frame
	for {
		switch p.state {
		case stateNeedHeader:
			if len(p.buf) < HeaderSize {
				return frames, nil
			}
			hdr, err := parseHeader(p.buf[:HeaderSize], p.net)
			if err != nil {
				return frames, err
			}
			p.hdr = hdr
			p.buf = p.buf[HeaderSize:]
			p.state = stateNeedBody

		case stateNeedBody:
			n := int(p.hdr.Length)
			if len(p.buf) < n {
				return frames, nil
			}
			payload := make([]byte, n)
			copy(payload, p.buf[:n])
			p.buf = p.buf[n:]

			if checksum(payload) != p.hdr.Checksum {
				return frames, errors.NewParseError("checksum mismatch for command %q", p.hdr.Command)
			}

			frames = append(frames, &Frame{Header: p.hdr, Payload: payload})
			p.state = stateNeedHeader
		}
	}
}

func parseHeader(b []byte, want BitcoinNet) (Header, error) {
	var h Header

	magic := BitcoinNet(binary.LittleEndian.Uint32(b[0:4]))
	if magic != want {
		return h, errors.NewParseError("unexpected network magic %08x, want %08x", magic, want)
	}
	h.Magic = magic

	cmdBytes := b[4 : 4+CommandSize]
	cmd, err := decodeCommand(cmdBytes)
	if err != nil {
		return h, err
	}
	h.Command = cmd

	h.Length = binary.LittleEndian.Uint32(b[16:20])
	if h.Length > MaxMessagePayload {
		return h, errors.NewParseError("payload length %d exceeds max %d", h.Length, MaxMessagePayload)
	}

	copy(h.Checksum[:], b[20:24])
	return h, nil
}

// decodeCommand validates the NUL-padded ASCII command field: it must be
// NUL-terminated within CommandSize bytes and every byte before the first
// NUL must be printable ASCII [32,126].
func decodeCommand(b []byte) (string, error) {
	nul := -1
	for i, c := range b {
		if c == 0 {
			nul = i
			break
		}
		if c < 32 || c > 126 {
			return "", errors.NewParseError("command byte %d out of printable ASCII range: %d", i, c)
		}
	}
	if nul == -1 {
		return "", errors.NewParseError("command not NUL-terminated within %d bytes", CommandSize)
	}
	for _, c := range b[nul:] {
		if c != 0 {
			return "", errors.NewParseError("non-NUL byte after command terminator")
		}
	}
	return string(b[:nul]), nil
}

// checksum is the first 4 bytes of double-SHA256(payload).
func checksum(payload []byte) [4]byte {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	var out [4]byte
	copy(out[:], second[:4])
	return out
}

// EncodeFrame serializes a command and already-encoded payload into a
// full wire frame, the inverse of Parser.Feed for a single message.
func EncodeFrame(net BitcoinNet, command string, payload []byte) ([]byte, error) {
	if len(command) >= CommandSize {
		return nil, errors.NewParseError("command %q must be shorter than %d bytes", command, CommandSize)
	}
	if len(payload) > MaxMessagePayload {
		return nil, errors.NewParseError("payload length %d exceeds max %d", len(payload), MaxMessagePayload)
	}

	out := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], uint32(net))

	copy(out[4:4+CommandSize], command)

	binary.LittleEndian.PutUint32(out[16:20], uint32(len(payload)))
	sum := checksum(payload)
	copy(out[20:24], sum[:])
	copy(out[24:], payload)

	return out, nil
}

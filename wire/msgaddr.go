package wire

import (
	"io"

	"github.com/timgates42/mako/internal/errors"
)

// MaxAddrPerMsg is the spec's addr-message entry cap (§4.G misbehavior:
// "Invalid address message (> 1000 entries)").
const MaxAddrPerMsg = 1000

// maxAddrWireCap is a looser allocation guard applied at decode time, so
// an oversize batch still decodes and reaches the pool's addr handler,
// which applies the MaxAddrPerMsg ban score.
const maxAddrWireCap = 50_000

// MsgAddr carries a batch of timestamped peer addresses.
type MsgAddr struct {
	AddrList []*NetAddress
}

func NewMsgAddr() *MsgAddr { return &MsgAddr{} }

// AddAddress appends a single address, rejecting once the message is at
// capacity (mirrors MsgInv.AddInvVect).
func (m *MsgAddr) AddAddress(na *NetAddress) error {
	if len(m.AddrList) >= MaxAddrPerMsg {
		return errors.NewProtocolError("addr message full")
	}
	m.AddrList = append(m.AddrList, na)
	return nil
}

func (m *MsgAddr) Command() string { return CmdAddr }

func (m *MsgAddr) BsvEncode(w io.Writer) error {
	if len(m.AddrList) > MaxAddrPerMsg {
		return errors.NewProtocolError("addr list length %d exceeds max %d", len(m.AddrList), MaxAddrPerMsg)
	}
	if err := writeVarInt(w, uint64(len(m.AddrList))); err != nil {
		return err
	}
	for _, na := range m.AddrList {
		if err := writeNetAddress(w, na, true); err != nil {
			return err
		}
	}
	return nil
}

func (m *MsgAddr) Bsvdecode(r io.Reader, length uint32) error {
	count, err := readVarInt(r)
	if err != nil {
		return err
	}
	if count > maxAddrWireCap {
		return errors.NewProtocolError("addr list length %d exceeds max %d", count, maxAddrWireCap)
	}
	list := make([]*NetAddress, 0, count)
	for i := uint64(0); i < count; i++ {
		na, err := readNetAddress(r, true)
		if err != nil {
			return err
		}
		list = append(list, na)
	}
	m.AddrList = list
	return nil
}

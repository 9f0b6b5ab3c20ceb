package wire

import (
	"encoding/binary"
	"io"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/timgates42/mako/internal/errors"
)

// MaxInvPerMsg is the spec's per-message inventory cap (§6).
const MaxInvPerMsg = 50000

// InvVect is a single (type, hash) inventory entry.
type InvVect struct {
	Type InvType
	Hash chainhash.Hash
}

func writeInvVect(w io.Writer, iv *InvVect) error {
	var tbuf [4]byte
	binary.LittleEndian.PutUint32(tbuf[:], uint32(iv.Type))
	if _, err := w.Write(tbuf[:]); err != nil {
		return err
	}
	_, err := w.Write(iv.Hash[:])
	return err
}

func readInvVect(r io.Reader) (*InvVect, error) {
	var tbuf [4]byte
	if _, err := io.ReadFull(r, tbuf[:]); err != nil {
		return nil, err
	}
	iv := &InvVect{Type: InvType(binary.LittleEndian.Uint32(tbuf[:]))}
	if _, err := io.ReadFull(r, iv.Hash[:]); err != nil {
		return nil, err
	}
	return iv, nil
}

func writeInvList(w io.Writer, list []*InvVect) error {
	if len(list) > MaxInvPerMsg {
		return errors.NewProtocolError("inventory list length %d exceeds max %d", len(list), MaxInvPerMsg)
	}
	if err := writeVarInt(w, uint64(len(list))); err != nil {
		return err
	}
	for _, iv := range list {
		if err := writeInvVect(w, iv); err != nil {
			return err
		}
	}
	return nil
}

func readInvList(r io.Reader) ([]*InvVect, error) {
	count, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	if count > MaxInvPerMsg {
		return nil, errors.NewProtocolError("inventory list length %d exceeds max %d", count, MaxInvPerMsg)
	}
	list := make([]*InvVect, 0, count)
	for i := uint64(0); i < count; i++ {
		iv, err := readInvVect(r)
		if err != nil {
			return nil, err
		}
		list = append(list, iv)
	}
	return list, nil
}

// MsgInv, MsgGetData, MsgNotFound all share the inventory-list shape.
type MsgInv struct{ InvList []*InvVect }
type MsgGetData struct{ InvList []*InvVect }
type MsgNotFound struct{ InvList []*InvVect }

func NewMsgInv() *MsgInv { return &MsgInv{} }

func (m *MsgInv) AddInvVect(iv *InvVect) error {
	if len(m.InvList) >= MaxInvPerMsg {
		return errors.NewProtocolError("inv message full")
	}
	m.InvList = append(m.InvList, iv)
	return nil
}

func (m *MsgInv) Command() string                        { return CmdInv }
func (m *MsgInv) BsvEncode(w io.Writer) error             { return writeInvList(w, m.InvList) }
func (m *MsgInv) Bsvdecode(r io.Reader, length uint32) error {
	list, err := readInvList(r)
	if err != nil {
		return err
	}
	m.InvList = list
	return nil
}

func (m *MsgGetData) Command() string                        { return CmdGetData }
func (m *MsgGetData) BsvEncode(w io.Writer) error             { return writeInvList(w, m.InvList) }
func (m *MsgGetData) Bsvdecode(r io.Reader, length uint32) error {
	list, err := readInvList(r)
	if err != nil {
		return err
	}
	m.InvList = list
	return nil
}

func (m *MsgNotFound) Command() string                        { return CmdNotFound }
func (m *MsgNotFound) BsvEncode(w io.Writer) error             { return writeInvList(w, m.InvList) }
func (m *MsgNotFound) Bsvdecode(r io.Reader, length uint32) error {
	list, err := readInvList(r)
	if err != nil {
		return err
	}
	m.InvList = list
	return nil
}

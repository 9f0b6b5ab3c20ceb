package wire

import (
	"encoding/binary"
	"io"
	"net"
	"time"
)

// NetAddress is the 26-byte (or 30-byte with timestamp, in addr
// messages) network address structure: services(8) + 16-byte
// IPv6-mapped address + 2-byte big-endian port (spec §4.B).
type NetAddress struct {
	Timestamp time.Time // only present/meaningful in addr messages
	Services  uint64
	IP        net.IP
	Port      uint16
}

func writeNetAddress(w io.Writer, na *NetAddress, withTimestamp bool) error {
	if withTimestamp {
		var tbuf [4]byte
		binary.LittleEndian.PutUint32(tbuf[:], uint32(na.Timestamp.Unix()))
		if _, err := w.Write(tbuf[:]); err != nil {
			return err
		}
	}

	var sbuf [8]byte
	binary.LittleEndian.PutUint64(sbuf[:], na.Services)
	if _, err := w.Write(sbuf[:]); err != nil {
		return err
	}

	ip := na.IP.To16()
	if ip == nil {
		ip = make(net.IP, 16)
	}
	if _, err := w.Write(ip); err != nil {
		return err
	}

	var pbuf [2]byte
	binary.BigEndian.PutUint16(pbuf[:], na.Port)
	_, err := w.Write(pbuf[:])
	return err
}

func readNetAddress(r io.Reader, withTimestamp bool) (*NetAddress, error) {
	na := &NetAddress{}

	if withTimestamp {
		var tbuf [4]byte
		if _, err := io.ReadFull(r, tbuf[:]); err != nil {
			return nil, err
		}
		na.Timestamp = time.Unix(int64(binary.LittleEndian.Uint32(tbuf[:])), 0)
	}

	var sbuf [8]byte
	if _, err := io.ReadFull(r, sbuf[:]); err != nil {
		return nil, err
	}
	na.Services = binary.LittleEndian.Uint64(sbuf[:])

	ip := make(net.IP, 16)
	if _, err := io.ReadFull(r, ip); err != nil {
		return nil, err
	}
	na.IP = ip

	var pbuf [2]byte
	if _, err := io.ReadFull(r, pbuf[:]); err != nil {
		return nil, err
	}
	na.Port = binary.BigEndian.Uint16(pbuf[:])

	return na, nil
}

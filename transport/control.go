package transport

import (
	"encoding/binary"
	"io"

	"github.com/geds-project/geds/internal/xerrors"
)

// MessageType tags a MultiplexHeader, matching the wire header's `type`
// field (spec §5): GET_REQ/GET_REPLY carry the bulk data plane, INFO_REQ/
// INFO_REPLY are the supplemented FileTransferProtocol-style control
// channel (size/seal-state probes) this package adds per SPEC_FULL §5.
type MessageType uint8

const (
	GetReq MessageType = iota + 1
	GetReply
	InfoReq
	InfoReply
)

// MultiplexHeader is the richer peer-multiplexer wire header:
//
//	struct { u64 reqid; u64 datalen; u64 offset; u16 hdrlen; u8 type; u8 error; u32 pad; }
//
// little-endian on the wire. hdrlen >= sizeof(header); any excess bytes
// immediately following the header carry the object name.
type MultiplexHeader struct {
	ReqID   uint64
	DataLen uint64
	Offset  uint64
	HdrLen  uint16
	Type    MessageType
	Error   uint8 // POSIX errno, 0 on success
}

const multiplexHeaderSize = 8 + 8 + 8 + 2 + 1 + 1 + 4

// WriteMultiplexHeader writes hdr's binary encoding, followed by name (the
// "excess bytes" the header's hdrlen field accounts for), to w.
func WriteMultiplexHeader(w io.Writer, hdr MultiplexHeader, name string) error {
	hdr.HdrLen = uint16(multiplexHeaderSize + len(name))
	buf := make([]byte, multiplexHeaderSize+len(name))
	binary.LittleEndian.PutUint64(buf[0:8], hdr.ReqID)
	binary.LittleEndian.PutUint64(buf[8:16], hdr.DataLen)
	binary.LittleEndian.PutUint64(buf[16:24], hdr.Offset)
	binary.LittleEndian.PutUint16(buf[24:26], hdr.HdrLen)
	buf[26] = byte(hdr.Type)
	buf[27] = hdr.Error
	copy(buf[multiplexHeaderSize:], name)
	_, err := w.Write(buf)
	return err
}

// ReadMultiplexHeader reads a MultiplexHeader plus its trailing name field
// from r.
func ReadMultiplexHeader(r io.Reader) (MultiplexHeader, string, error) {
	var fixed [multiplexHeaderSize]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return MultiplexHeader{}, "", err
	}
	hdr := MultiplexHeader{
		ReqID:   binary.LittleEndian.Uint64(fixed[0:8]),
		DataLen: binary.LittleEndian.Uint64(fixed[8:16]),
		Offset:  binary.LittleEndian.Uint64(fixed[16:24]),
		HdrLen:  binary.LittleEndian.Uint16(fixed[24:26]),
		Type:    MessageType(fixed[26]),
		Error:   fixed[27],
	}
	if int(hdr.HdrLen) < multiplexHeaderSize {
		return MultiplexHeader{}, "", xerrors.InvalidArgumentf("multiplex header hdrlen %d shorter than fixed size", hdr.HdrLen)
	}
	nameLen := int(hdr.HdrLen) - multiplexHeaderSize
	name := ""
	if nameLen > 0 {
		nameBuf := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBuf); err != nil {
			return MultiplexHeader{}, "", err
		}
		name = string(nameBuf)
	}
	return hdr, name, nil
}

// InfoReply is the payload of an INFO_REPLY message: the object's current
// size and whether it has been sealed.
type InfoReply struct {
	Size   uint64
	Sealed bool
}

func EncodeInfoReply(r InfoReply) []byte {
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint64(buf[0:8], r.Size)
	if r.Sealed {
		buf[8] = 1
	}
	return buf
}

func DecodeInfoReply(buf []byte) (InfoReply, error) {
	if len(buf) < 9 {
		return InfoReply{}, xerrors.InvalidArgumentf("info reply payload too short: %d bytes", len(buf))
	}
	return InfoReply{
		Size:   binary.LittleEndian.Uint64(buf[0:8]),
		Sealed: buf[8] != 0,
	}, nil
}

// Package packetsink implements the packet-sink wire format: a 12-byte
// codec header followed by a stream of Config and Media packets, all
// big-endian, header bytes then explicit payload byte count, with
// bufpool-backed payload buffers.
package packetsink

import (
	"encoding/binary"
	"io"

	"github.com/alxayo/txproto-go/internal/bufpool"
	"github.com/alxayo/txproto-go/internal/errors"
)

// FourCC identifies the elementary codec carried by a packet-sink stream.
type FourCC uint32

// The closed set of codec fourccs the wire format recognizes, spelled as
// the big-endian interpretation of their ASCII bytes.
var (
	FourCCH264 = fourcc('h', '2', '6', '4')
	FourCCH265 = fourcc('h', '2', '6', '5')
	FourCCH266 = fourcc('h', '2', '6', '6')
	FourCCOpus = fourcc('o', 'p', 'u', 's')
)

func fourcc(a, b, c, d byte) FourCC {
	return FourCC(uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d))
}

// Bit layout of the media-packet pts_and_flags word.
const (
	bitKYMEDIA = uint64(1) << 63
	bitCONFIG  = uint64(1) << 62
	bitKEY     = uint64(1) << 61
	ptsMask    = bitKEY - 1 // bits 60..0
)

// headerSize is the fixed 12-byte codec header: 4-byte fourcc, 1-byte
// rotation, 7 reserved bytes.
const headerSize = 4 + 1 + 7

// Header is the stream's one-time codec header.
type Header struct {
	FourCC   FourCC
	Rotation uint8 // 0..3
}

// Encode writes h as the fixed 12-byte codec header.
func (h Header) Encode(w io.Writer) error {
	if h.Rotation > 3 {
		return errors.NewInvalidArgError("packetsink.header.rotation", nil)
	}
	var buf [headerSize]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(h.FourCC))
	buf[4] = h.Rotation
	// buf[5:12] stays zero (reserved).
	_, err := w.Write(buf[:])
	return wrapWrite("packetsink.header.write", err)
}

// DecodeHeader reads the fixed 12-byte codec header from r.
func DecodeHeader(r io.Reader) (Header, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, wrapRead("packetsink.header.read", err)
	}
	rotation := buf[4]
	if rotation > 3 {
		return Header{}, errors.NewInvalidArgError("packetsink.header.rotation", nil)
	}
	return Header{FourCC: FourCC(binary.BigEndian.Uint32(buf[0:4])), Rotation: rotation}, nil
}

// ConfigPacket carries an encoder's extradata blob (SPS/PPS, Opus header,
// …), emitted once up front and again whenever extradata changes.
type ConfigPacket struct {
	Extradata []byte
}

// Encode writes the Config packet: an 8-byte KYMEDIA|CONFIG flags word,
// a 4-byte size, then the extradata bytes.
func (c ConfigPacket) Encode(w io.Writer) error {
	var hdr [8 + 4]byte
	binary.BigEndian.PutUint64(hdr[0:8], bitKYMEDIA|bitCONFIG)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(c.Extradata)))
	if _, err := w.Write(hdr[:]); err != nil {
		return wrapWrite("packetsink.config.header.write", err)
	}
	if len(c.Extradata) == 0 {
		return nil
	}
	_, err := w.Write(c.Extradata)
	return wrapWrite("packetsink.config.body.write", err)
}

// DecodeConfigPacket reads a Config packet's flags word (already known to
// carry the CONFIG bit by the caller) plus its extradata body.
func DecodeConfigPacket(r io.Reader) (ConfigPacket, error) {
	var szBuf [4]byte
	if _, err := io.ReadFull(r, szBuf[:]); err != nil {
		return ConfigPacket{}, wrapRead("packetsink.config.size.read", err)
	}
	n := binary.BigEndian.Uint32(szBuf[:])
	buf := bufpool.Get(int(n))
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return ConfigPacket{}, wrapRead("packetsink.config.body.read", err)
		}
	}
	return ConfigPacket{Extradata: buf}, nil
}

// MediaPacket carries one compressed media access unit.
type MediaPacket struct {
	PTS     int64 // truncated to 61 bits on the wire (mod 2^61)
	Key     bool
	Payload []byte
}

// Encode writes the Media packet: an 8-byte pts_and_flags word (KYMEDIA
// set, CONFIG clear, KEY set iff Key, low 61 bits the PTS), a 4-byte size,
// then the payload.
func (m MediaPacket) Encode(w io.Writer) error {
	word := bitKYMEDIA | (uint64(m.PTS) & ptsMask)
	if m.Key {
		word |= bitKEY
	}
	var hdr [8 + 4]byte
	binary.BigEndian.PutUint64(hdr[0:8], word)
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(m.Payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return wrapWrite("packetsink.media.header.write", err)
	}
	if len(m.Payload) == 0 {
		return nil
	}
	_, err := w.Write(m.Payload)
	return wrapWrite("packetsink.media.body.write", err)
}

// DecodeMediaPacket reads a Media packet's flags word (already known not
// to carry the CONFIG bit) plus its payload, returning the PTS and key
// flag recovered from the flags word.
func DecodeMediaPacket(word uint64, r io.Reader) (MediaPacket, error) {
	var szBuf [4]byte
	if _, err := io.ReadFull(r, szBuf[:]); err != nil {
		return MediaPacket{}, wrapRead("packetsink.media.size.read", err)
	}
	n := binary.BigEndian.Uint32(szBuf[:])
	buf := bufpool.Get(int(n))
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return MediaPacket{}, wrapRead("packetsink.media.body.read", err)
		}
	}
	return MediaPacket{
		PTS:     int64(word & ptsMask),
		Key:     word&bitKEY != 0,
		Payload: buf,
	}, nil
}

func wrapWrite(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.NewExternalError(op, 0, err)
}

func wrapRead(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.NewExternalError(op, 0, err)
}

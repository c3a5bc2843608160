package packetsink

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/alxayo/txproto-go/internal/errors"
)

// Writer sequences the header/config/media packet stream onto an
// underlying io.Writer, tracking the last extradata blob written so a
// packet carrying a new extradata blob in its side-data gets a fresh
// ConfigPacket emitted before its media record automatically.
type Writer struct {
	w             io.Writer
	headerWritten bool
	lastExtradata []byte
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// WriteHeader emits the one-time codec header. Must be called exactly
// once, before any packet.
func (sw *Writer) WriteHeader(h Header) error {
	if sw.headerWritten {
		return errors.NewInvalidArgError("packetsink.writer.header.twice", nil)
	}
	if err := h.Encode(sw.w); err != nil {
		return err
	}
	sw.headerWritten = true
	return nil
}

// WriteConfig emits a Config packet and records extradata as the
// current baseline for change detection.
func (sw *Writer) WriteConfig(extradata []byte) error {
	if !sw.headerWritten {
		return errors.NewInvalidArgError("packetsink.writer.config.before_header", nil)
	}
	if err := (ConfigPacket{Extradata: extradata}).Encode(sw.w); err != nil {
		return err
	}
	sw.lastExtradata = append([]byte(nil), extradata...)
	return nil
}

// WriteMedia emits a Media packet. If extradata is non-nil and differs
// from the last Config packet's extradata, a fresh Config packet is
// written first.
func (sw *Writer) WriteMedia(m MediaPacket, extradata []byte) error {
	if !sw.headerWritten {
		return errors.NewInvalidArgError("packetsink.writer.media.before_header", nil)
	}
	if extradata != nil && !bytes.Equal(extradata, sw.lastExtradata) {
		if err := sw.WriteConfig(extradata); err != nil {
			return err
		}
	}
	return m.Encode(sw.w)
}

// Reader decodes a packetsink stream: one Header, then an interleaved
// sequence of ConfigPacket and MediaPacket values delivered through Next.
type Reader struct {
	r io.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader { return &Reader{r: r} }

// ReadHeader reads the stream's one-time codec header. Must be called
// exactly once, before the first Next.
func (sr *Reader) ReadHeader() (Header, error) {
	return DecodeHeader(sr.r)
}

// Packet is the decoded union Next returns: exactly one of Config or
// Media is set, discriminated by IsConfig.
type Packet struct {
	IsConfig bool
	Config   ConfigPacket
	Media    MediaPacket
}

// Next decodes the next Config or Media packet from the stream, io.EOF
// on clean end of stream.
func (sr *Reader) Next() (Packet, error) {
	var wordBuf [8]byte
	if _, err := io.ReadFull(sr.r, wordBuf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return Packet{}, io.EOF
		}
		return Packet{}, wrapRead("packetsink.reader.word.read", err)
	}
	word := binary.BigEndian.Uint64(wordBuf[:])
	if word&bitKYMEDIA == 0 {
		return Packet{}, errors.NewInvalidArgError("packetsink.reader.bad_sync", nil)
	}
	if word&bitCONFIG != 0 {
		cfg, err := DecodeConfigPacket(sr.r)
		if err != nil {
			return Packet{}, err
		}
		return Packet{IsConfig: true, Config: cfg}, nil
	}
	media, err := DecodeMediaPacket(word, sr.r)
	if err != nil {
		return Packet{}, err
	}
	return Packet{Media: media}, nil
}

// Package cursorpipe implements the cursor-overlay side-channel record
// format emitted alongside a capture source's video output: a display
// identifier, a visibility byte, and (only when visible) the cursor's
// position (already offset by its hotspot), hotspot, dimensions, and
// ARGB32 pixel data, all big-endian.
package cursorpipe

import (
	"encoding/binary"
	"io"

	"github.com/alxayo/txproto-go/internal/errors"
)

// Record is one cursor-state update for a single display/output.
type Record struct {
	DisplayID uint32
	Visible   bool

	// The remaining fields are meaningful only when Visible is true.
	X, Y         int32 // position, already offset by the hotspot
	HotspotX     int32
	HotspotY     int32
	Width        uint32
	Height       uint32
	Pixels       []uint32 // ARGB32, row-major, len == Width*Height for non-masked shapes
}

// Encode writes r in the cursor-pipe wire format: a 4-byte identifier, a
// 1-byte visibility flag, and, when visible, position, hotspot,
// dimensions, a 4-byte pixel count, then that many big-endian ARGB32
// words.
func (r Record) Encode(w io.Writer) error {
	var head [5]byte
	binary.BigEndian.PutUint32(head[0:4], r.DisplayID)
	if r.Visible {
		head[4] = 1
	}
	if _, err := w.Write(head[:]); err != nil {
		return wrap("cursorpipe.record.write_head", err)
	}
	if !r.Visible {
		return nil
	}

	var body [28]byte
	binary.BigEndian.PutUint32(body[0:4], uint32(r.X))
	binary.BigEndian.PutUint32(body[4:8], uint32(r.Y))
	binary.BigEndian.PutUint32(body[8:12], uint32(r.HotspotX))
	binary.BigEndian.PutUint32(body[12:16], uint32(r.HotspotY))
	binary.BigEndian.PutUint32(body[16:20], r.Width)
	binary.BigEndian.PutUint32(body[20:24], r.Height)
	binary.BigEndian.PutUint32(body[24:28], uint32(len(r.Pixels)))
	if _, err := w.Write(body[:]); err != nil {
		return wrap("cursorpipe.record.write_body", err)
	}

	pixelBuf := make([]byte, 4*len(r.Pixels))
	for i, px := range r.Pixels {
		binary.BigEndian.PutUint32(pixelBuf[i*4:i*4+4], px)
	}
	if _, err := w.Write(pixelBuf); err != nil {
		return wrap("cursorpipe.record.write_pixels", err)
	}
	return nil
}

// Decode reads one Record from r.
func Decode(r io.Reader) (Record, error) {
	var head [5]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Record{}, wrap("cursorpipe.record.read_head", err)
	}
	rec := Record{
		DisplayID: binary.BigEndian.Uint32(head[0:4]),
		Visible:   head[4] != 0,
	}
	if !rec.Visible {
		return rec, nil
	}

	var body [28]byte
	if _, err := io.ReadFull(r, body[:]); err != nil {
		return Record{}, wrap("cursorpipe.record.read_body", err)
	}
	rec.X = int32(binary.BigEndian.Uint32(body[0:4]))
	rec.Y = int32(binary.BigEndian.Uint32(body[4:8]))
	rec.HotspotX = int32(binary.BigEndian.Uint32(body[8:12]))
	rec.HotspotY = int32(binary.BigEndian.Uint32(body[12:16]))
	rec.Width = binary.BigEndian.Uint32(body[16:20])
	rec.Height = binary.BigEndian.Uint32(body[20:24])
	n := binary.BigEndian.Uint32(body[24:28])

	if n > 0 {
		pixelBuf := make([]byte, 4*n)
		if _, err := io.ReadFull(r, pixelBuf); err != nil {
			return Record{}, wrap("cursorpipe.record.read_pixels", err)
		}
		rec.Pixels = make([]uint32, n)
		for i := range rec.Pixels {
			rec.Pixels[i] = binary.BigEndian.Uint32(pixelBuf[i*4 : i*4+4])
		}
	}
	return rec, nil
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.NewExternalError(op, 0, err)
}

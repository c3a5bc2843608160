package media

import "github.com/alxayo/txproto-go/internal/bufpool"

// Packet is a compressed elementary-stream unit (demuxer/encoder output,
// decoder/muxer input). Data is bufpool-backed when pooled is true, so
// Release returns it to the pool instead of letting the GC reclaim it.
type Packet struct {
	Stream   *Stream
	PTS, DTS int64
	Data     []byte
	KeyFrame bool

	// SideData carries a replacement extradata blob attached to this
	// packet (a mid-stream parameter-set change); consumers that frame
	// extradata out-of-band re-emit their config record when it changes.
	SideData []byte

	pooled bool
}

// NewPacket wraps buf (typically obtained from bufpool.Get) as a pooled
// packet bound to stream.
func NewPacket(stream *Stream, pts, dts int64, buf []byte, keyFrame bool) *Packet {
	return &Packet{Stream: stream, PTS: pts, DTS: dts, Data: buf, KeyFrame: keyFrame, pooled: true}
}

// Release returns the packet's buffer to bufpool if it was pool-backed.
// Safe to call on a nil packet.
func (p *Packet) Release() {
	if p == nil {
		return
	}
	if p.pooled && p.Data != nil {
		bufpool.Put(p.Data)
		p.Data = nil
	}
}

// Clone returns an independent packet sharing the same stream descriptor
// but holding its own copy of Data, so a FIFO mirror's consumer can
// Release() its copy without affecting the primary queue's packet.
func (p *Packet) Clone() *Packet {
	if p == nil {
		return nil
	}
	buf := bufpool.Get(len(p.Data))
	copy(buf, p.Data)
	return &Packet{Stream: p.Stream, PTS: p.PTS, DTS: p.DTS, Data: buf, KeyFrame: p.KeyFrame, SideData: p.SideData, pooled: true}
}

package media

import "github.com/alxayo/txproto-go/internal/bufpool"

// Frame is a decoded (raw) audio/video/sub sample unit (decoder/filter
// output, encoder/filter input).
type Frame struct {
	Stream  *Stream
	PTS     int64
	Width   int // 0 for audio
	Height  int // 0 for audio
	Samples int // 0 for video
	Data    []byte
	pooled  bool
}

// NewFrame wraps buf as a pooled frame bound to stream.
func NewFrame(stream *Stream, pts int64, buf []byte) *Frame {
	return &Frame{Stream: stream, PTS: pts, Data: buf, pooled: true}
}

// Release returns the frame's buffer to bufpool if pool-backed.
func (f *Frame) Release() {
	if f == nil {
		return
	}
	if f.pooled && f.Data != nil {
		bufpool.Put(f.Data)
		f.Data = nil
	}
}

// Clone returns an independent frame with its own buffer copy, for mirror
// fan-out consumers.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	buf := bufpool.Get(len(f.Data))
	copy(buf, f.Data)
	return &Frame{Stream: f.Stream, PTS: f.PTS, Width: f.Width, Height: f.Height, Samples: f.Samples, Data: buf, pooled: true}
}

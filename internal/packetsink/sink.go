package packetsink

import (
	"io"
	"strings"

	"github.com/alxayo/txproto-go/internal/errors"
	"github.com/alxayo/txproto-go/internal/media"
)

// Sink adapts the packet-sink wire format to the muxer component's sink
// surface, so a pipeline can terminate in a kymux endpoint the same way
// it terminates in a container muxer: MuxerCreate with a Sink wraps the
// endpoint in an ordinary muxer component, and the encoder→muxer link
// shape (add stream, mirror packet FIFO) carries over unchanged. It
// reuses the component worker the muxer already runs instead of a
// bespoke sink thread.
type Sink struct {
	conn     io.WriteCloser
	w        *Writer
	rotation uint8
	stream   *media.Stream
	started  bool
}

// DialSink connects to a kymux:// URI and returns a Sink streaming to it.
func DialSink(uri string, rotation uint8) (*Sink, error) {
	ep, err := ParseEndpoint(uri)
	if err != nil {
		return nil, err
	}
	conn, err := Dial(ep)
	if err != nil {
		return nil, err
	}
	return NewSink(conn, rotation), nil
}

// NewSink wraps an already-connected endpoint (a live kymux connection,
// or any loopback writer in tests).
func NewSink(conn io.WriteCloser, rotation uint8) *Sink {
	return &Sink{conn: conn, w: NewWriter(conn), rotation: rotation}
}

// AddStream records the single elementary stream this endpoint carries.
// The wire format is single-stream; a second registration is rejected.
func (s *Sink) AddStream(st *media.Stream) error {
	if s.stream != nil {
		return errors.NewUnsupportedError("packetsink.sink.second_stream", nil)
	}
	if _, err := codecFourCC(st.Codec); err != nil {
		return err
	}
	s.stream = st
	return nil
}

// NeedsGlobalHeader reports true: the wire format fronts the stream with
// a Config packet carrying the codec's extradata, so the encoder must
// produce it out-of-band.
func (s *Sink) NeedsGlobalHeader() bool { return true }

// WritePacket streams one compressed packet. The first call emits the
// codec header and the initial Config packet from the registered stream's
// extradata; a packet carrying new side-data re-emits Config before its
// media record.
func (s *Sink) WritePacket(p *media.Packet) error {
	if s.stream == nil {
		return errors.NewInvalidArgError("packetsink.sink.no_stream", nil)
	}
	if !s.started {
		fcc, err := codecFourCC(s.stream.Codec)
		if err != nil {
			return err
		}
		if err := s.w.WriteHeader(Header{FourCC: fcc, Rotation: s.rotation}); err != nil {
			return err
		}
		if err := s.w.WriteConfig(s.stream.Extradata); err != nil {
			return err
		}
		s.started = true
	}
	return s.w.WriteMedia(MediaPacket{
		PTS:     p.PTS,
		Key:     p.KeyFrame,
		Payload: p.Data,
	}, p.SideData)
}

// Close shuts the endpoint connection down.
func (s *Sink) Close() error {
	return s.conn.Close()
}

// codecFourCC maps a codec name to its wire fourcc.
func codecFourCC(name string) (FourCC, error) {
	switch strings.ToLower(name) {
	case "h264", "libx264", "avc":
		return FourCCH264, nil
	case "h265", "hevc", "libx265":
		return FourCCH265, nil
	case "h266", "vvc":
		return FourCCH266, nil
	case "opus", "libopus":
		return FourCCOpus, nil
	}
	return 0, errors.NewUnsupportedError("packetsink.sink.codec."+name, nil)
}

// Package class implements the classed-object handle: a named, typed,
// refcounted wrapper around any runtime entity (component, event, I/O
// entry, FIFO).
package class

// Kind is the closed enumeration of runtime entity roles.
type Kind int

const (
	None Kind = iota
	Context
	Demuxer
	Decoder
	Filter
	Encoder
	Muxer
	MuxerSink
	AudioSrc
	AudioSink
	AudioBidir
	VideoSrc
	VideoSink
	VideoBidir
	SubSrc
	SubSink
	SubBidir
	Interface
	Script
	PacketSink
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Context:
		return "context"
	case Demuxer:
		return "demuxer"
	case Decoder:
		return "decoder"
	case Filter:
		return "filter"
	case Encoder:
		return "encoder"
	case Muxer:
		return "muxer"
	case MuxerSink:
		return "muxer_sink"
	case AudioSrc:
		return "audio_src"
	case AudioSink:
		return "audio_sink"
	case AudioBidir:
		return "audio_bidir"
	case VideoSrc:
		return "video_src"
	case VideoSink:
		return "video_sink"
	case VideoBidir:
		return "video_bidir"
	case SubSrc:
		return "sub_src"
	case SubSink:
		return "sub_sink"
	case SubBidir:
		return "sub_bidir"
	case Interface:
		return "interface"
	case Script:
		return "script"
	case PacketSink:
		return "packet_sink"
	default:
		return "unknown"
	}
}

// Family is a bit-set membership test ("is this any source/sink/inout?").
type Family uint8

const (
	FamilySource Family = 1 << iota
	FamilySink
	FamilyInOut
)

var familyOf = map[Kind]Family{
	AudioSrc:   FamilySource,
	VideoSrc:   FamilySource,
	SubSrc:     FamilySource,
	Demuxer:    FamilySource,
	AudioSink:  FamilySink,
	VideoSink:  FamilySink,
	SubSink:    FamilySink,
	Muxer:      FamilySink,
	MuxerSink:  FamilySink,
	PacketSink: FamilySink,
	AudioBidir: FamilyInOut,
	VideoBidir: FamilyInOut,
	SubBidir:   FamilyInOut,
	Interface:  FamilyInOut,
}

// In reports whether k belongs to family f.
func (k Kind) In(f Family) bool { return familyOf[k]&f != 0 }

// IsSource reports whether k is any *_SOURCE kind (including demuxer).
func (k Kind) IsSource() bool { return k.In(FamilySource) }

// IsSink reports whether k is any *_SINK kind (including muxer).
func (k Kind) IsSink() bool { return k.In(FamilySink) }

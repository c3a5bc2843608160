package iosys

import (
	"hash/crc32"

	"github.com/alxayo/txproto-go/internal/class"
	"github.com/alxayo/txproto-go/internal/component"
	"github.com/alxayo/txproto-go/internal/events"
	"github.com/alxayo/txproto-go/internal/fifo"
)

// Entry is one discovered capture/sink device. Its Identifier is the
// CRC32 of the platform-specific device name, a stable numeric id
// derived from the name alone.
type Entry struct {
	APIID      string
	Identifier uint32

	// Media properties, populated by the owning API backend once known.
	Resolution    [2]int // width, height; zero for audio
	Rotation      uint8
	SampleRate    int // 0 for video
	ChannelLayout string

	// Output carries frames the backend produces toward a component FIFO
	// wired to this entry by a Link. Source-kind entries (filewatch) use
	// this; sink-kind entries leave it nil.
	Output *fifo.Frame

	// Input carries raw byte segments a muxer/packetsink-facing component
	// pushes into this entry for the backend to consume (e.g. upload).
	// Sink-kind entries (azureblob) use this; source-kind entries leave
	// it nil.
	Input *fifo.Buffer

	// Events is this entry's own list: ON_CHANGE for a property update,
	// ON_ERROR/ON_EOS for the connection/discovery lifecycle.
	Events *events.List

	// Ctrl is the owning back-end's control entry point for this entry.
	// Source/sink kinds carry their ctrl on the entry itself because
	// different capture back-ends ship different implementations; the
	// main context routes here instead of the per-kind Ops table when
	// the handle's payload is an Entry.
	Ctrl component.CtrlFunc
}

// Destroy satisfies class.Destroyable: close the output FIFO so any
// component reading from it observes end-of-stream.
func (e *Entry) Destroy() {
	if e.Output != nil {
		e.Output.CloseEOS()
		e.Output.Drain()
	}
	if e.Input != nil {
		e.Input.CloseEOS()
		e.Input.Drain()
	}
}

// Identify computes the CRC32 identifier for a platform device name.
func Identify(name string) uint32 {
	return crc32.ChecksumIEEE([]byte(name))
}

// NewEntry allocates an Entry and wraps it in a class.Handle of the
// given source/sink kind, with its own event list ready for Add/Dispatch.
func NewEntry(apiID string, name string, kind class.Kind, parent *class.Handle) (*class.Handle, *Entry) {
	e := &Entry{APIID: apiID, Identifier: Identify(name)}
	h := class.New(e, name, kind, parent)
	e.Events = events.NewList(h)
	return h, e
}

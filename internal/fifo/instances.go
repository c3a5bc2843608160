package fifo

import (
	"github.com/alxayo/txproto-go/internal/bufpool"
	"github.com/alxayo/txproto-go/internal/media"
)

// Packet and Frame are the two media-plane FIFO instantiations every
// component Ops implementation passes data through.
type (
	Packet = FIFO[*media.Packet]
	Frame  = FIFO[*media.Frame]
)

// BufElem is a bufpool-backed byte buffer, Releasable so it can flow
// through a generic FIFO the same way Packet/Frame do.
type BufElem struct {
	Data []byte
}

// Release returns the buffer to bufpool.
func (b *BufElem) Release() {
	if b == nil {
		return
	}
	bufpool.Put(b.Data)
	b.Data = nil
}

// Clone copies the buffer into a fresh bufpool allocation.
func (b *BufElem) Clone() *BufElem {
	if b == nil {
		return nil
	}
	cp := bufpool.Get(len(b.Data))
	copy(cp, b.Data)
	return &BufElem{Data: cp}
}

// Buffer is the raw byte-buffer FIFO instantiation.
type Buffer = FIFO[*BufElem]

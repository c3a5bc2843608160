// Package fifo implements the bounded FIFO: a generic blocking queue
// with configurable max depth, push/pop block policies, and mirror
// fan-out with per-mirror backpressure isolation.
package fifo

import (
	"sync"
	"sync/atomic"

	"github.com/alxayo/txproto-go/internal/errors"
)

// Releasable is the element constraint: every FIFO element must know how
// to release its own resources and how to produce an independent shallow
// copy for mirror fan-out (mirrors receive a cloned/shared reference,
// never the original).
type Releasable[T any] interface {
	Release()
	Clone() T
}

// Flags controls push/pop blocking behavior, set with SetFlags.
type Flags uint8

const (
	// BlockNoInput makes Push block while the queue is at Max (default).
	// Clearing it makes Push fail immediately with an AgainError instead.
	BlockNoInput Flags = 1 << iota
	// BlockMaxOutput makes Pop block while the queue is empty (default).
	// Clearing it makes Pop fail immediately with an AgainError instead.
	BlockMaxOutput
)

const defaultFlags = BlockNoInput | BlockMaxOutput

// Unbounded and ZeroBuffered are the two special values SetMax/New accept
// alongside any non-negative depth.
const (
	Unbounded    = -1
	ZeroBuffered = 0
)

// FIFO is a bounded, blocking queue of T. The zero value is not usable;
// construct with New.
type FIFO[T Releasable[T]] struct {
	mu     sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	buf    []T
	maxLen int

	flags       Flags
	pullNoBlock bool
	closed      bool

	// blockSource opts this FIFO, as a mirror target, into exerting
	// backpressure on its source's Push instead of dropping clones when
	// full.
	blockSource atomic.Bool

	// dropped counts deliveries lost to a full non-blocking queue, both
	// direct Push misses and mirror clones that could not land. Read by
	// components reporting ON_STATS.
	dropped atomic.Uint64

	mirrorsMu sync.Mutex
	mirrors   []*FIFO[T]
	sources   []*FIFO[T]
}

// New creates a FIFO with the given max depth (Unbounded, ZeroBuffered, or
// a positive capacity) and the default block-on-full/block-on-empty
// policy.
func New[T Releasable[T]](maxLen int) *FIFO[T] {
	f := &FIFO[T]{maxLen: maxLen, flags: defaultFlags}
	f.notEmpty = sync.NewCond(&f.mu)
	f.notFull = sync.NewCond(&f.mu)
	return f
}

// Max returns the configured max depth.
func (f *FIFO[T]) Max() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxLen
}

// SetMax changes the max depth at runtime. Widening a full queue wakes any
// blocked pushers.
func (f *FIFO[T]) SetMax(maxLen int) {
	f.mu.Lock()
	f.maxLen = maxLen
	f.mu.Unlock()
	f.notFull.Broadcast()
}

// SetFlags replaces the block policy flags.
func (f *FIFO[T]) SetFlags(fl Flags) {
	f.mu.Lock()
	f.flags = fl
	f.mu.Unlock()
	f.notEmpty.Broadcast()
	f.notFull.Broadcast()
}

// isFullLocked reports whether the queue is at capacity. Caller must hold
// f.mu. Unbounded queues are never full; zero-buffered queues are always
// "full" (every Push must rendezvous with a waiting Pop via blocking).
func (f *FIFO[T]) isFullLocked() bool {
	if f.maxLen == Unbounded {
		return false
	}
	return len(f.buf) >= f.maxLen
}

// IsFull reports whether the queue is currently at its max depth.
func (f *FIFO[T]) IsFull() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isFullLocked()
}

// Size returns the number of elements currently queued.
func (f *FIFO[T]) Size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buf)
}

// Push enqueues v, fanning a Clone() of it out to every mirror first. If
// the queue is full and BlockNoInput is set, Push blocks until space frees
// or the queue is closed (in which case it returns an InvalidArg-class
// push-after-close error); if BlockNoInput is clear, a full queue returns an
// AgainError immediately.
func (f *FIFO[T]) Push(v T) error {
	f.fanOutToMirrors(v)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.NewInvalidArgError("fifo.push", nil)
	}
	for f.isFullLocked() {
		if f.flags&BlockNoInput == 0 {
			f.dropped.Add(1)
			return errors.NewAgainError("fifo.push")
		}
		f.notFull.Wait()
		if f.closed {
			return errors.NewInvalidArgError("fifo.push", nil)
		}
	}
	f.buf = append(f.buf, v)
	f.notEmpty.Signal()
	return nil
}

// Pop dequeues the oldest element. ok is false only once the queue has
// been closed (via CloseEOS) and drained. If the queue is empty and
// BlockMaxOutput is set (and pullNoBlock is false), Pop blocks until an
// element arrives or the queue closes; otherwise it returns immediately
// with an AgainError.
func (f *FIFO[T]) Pop() (v T, ok bool, err error) {
	return f.PopFlags(f.Flags())
}

// PopFlags is Pop with an explicit override of the blocking policy for
// this single call, without mutating the FIFO's stored flags.
func (f *FIFO[T]) PopFlags(fl Flags) (v T, ok bool, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for len(f.buf) == 0 {
		if f.closed {
			var zero T
			return zero, false, nil
		}
		if fl&BlockMaxOutput == 0 || f.pullNoBlock {
			var zero T
			return zero, false, errors.NewAgainError("fifo.pop")
		}
		f.notEmpty.Wait()
	}
	v = f.buf[0]
	f.buf = f.buf[1:]
	f.notFull.Signal()
	return v, true, nil
}

// Peek returns the oldest element without removing it, and whether one was
// available.
func (f *FIFO[T]) Peek() (v T, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.buf) == 0 {
		var zero T
		return zero, false
	}
	return f.buf[0], true
}

// Flags returns the currently configured block policy.
func (f *FIFO[T]) Flags() Flags {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags
}

// SetPullNoBlock controls whether Pop/PopFlags ever block, independent of
// BlockMaxOutput: it overrides the block-on-empty policy for a single
// consumer without disturbing producers.
func (f *FIFO[T]) SetPullNoBlock(v bool) {
	f.mu.Lock()
	f.pullNoBlock = v
	f.mu.Unlock()
	f.notEmpty.Broadcast()
}

// Drain releases every currently queued element without closing the
// FIFO (flush, as distinct from end-of-stream): a later Push still
// succeeds and later Pops still block on empty per the usual policy.
func (f *FIFO[T]) Drain() {
	f.mu.Lock()
	buf := f.buf
	f.buf = nil
	f.mu.Unlock()
	for _, v := range buf {
		v.Release()
	}
	f.notFull.Broadcast()
}

// CloseEOS marks the queue closed: every blocked and future Pop returns
// (zero, false, nil) once drained, and blocked Pushes are released with an
// error. The close propagates to every registered mirror, the way a
// pushed item would, so a consumer reading through a RefView observes
// end-of-stream at the same point in the item sequence. Safe to call
// more than once.
func (f *FIFO[T]) CloseEOS() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.mu.Unlock()
	f.notEmpty.Broadcast()
	f.notFull.Broadcast()

	f.mirrorsMu.Lock()
	mirrors := make([]*FIFO[T], len(f.mirrors))
	copy(mirrors, f.mirrors)
	f.mirrorsMu.Unlock()
	for _, m := range mirrors {
		m.CloseEOS()
	}
}

// Closed reports whether CloseEOS has been called.
func (f *FIFO[T]) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fanOutToMirrors clones v into every currently registered mirror, in
// mirror registration order, on the pusher's own goroutine so every
// mirror observes items in the source's push order. Mirror backpressure
// is isolated from the source: a full mirror has its clone dropped (and
// counted on the mirror's dropped counter) rather than stalling the
// primary queue's producer, unless the mirror opted into source-side
// blocking via SetBlockSource, in which case the clone push honors the
// mirror's own block policy. A clone a closed mirror rejects is released
// rather than leaked. Fan-out per destination follows
// relay.DestinationManager.RelayMessage, with the per-destination queue
// replaced by the mirror FIFO itself.
func (f *FIFO[T]) fanOutToMirrors(v T) {
	f.mirrorsMu.Lock()
	mirrors := make([]*FIFO[T], len(f.mirrors))
	copy(mirrors, f.mirrors)
	f.mirrorsMu.Unlock()

	for _, m := range mirrors {
		clone := v.Clone()
		if m.blockSource.Load() {
			if err := m.Push(clone); err != nil {
				clone.Release()
			}
			continue
		}
		if err := m.pushNoWait(clone); err != nil {
			clone.Release()
		}
	}
}

// pushNoWait is Push with the block-on-full policy forced off for this
// one call, used by mirror fan-out so a slow mirror drops instead of
// stalling its source. The miss is counted on f's dropped counter.
func (f *FIFO[T]) pushNoWait(v T) error {
	f.fanOutToMirrors(v)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.NewInvalidArgError("fifo.push", nil)
	}
	if f.isFullLocked() {
		f.dropped.Add(1)
		return errors.NewAgainError("fifo.push")
	}
	f.buf = append(f.buf, v)
	f.notEmpty.Signal()
	return nil
}

// SetBlockSource opts f, as a mirror target, into blocking its source's
// Push when f is full instead of having the clone dropped.
func (f *FIFO[T]) SetBlockSource(v bool) { f.blockSource.Store(v) }

// Dropped reports how many deliveries this queue has lost to a full
// non-blocking push, direct or via mirror fan-out.
func (f *FIFO[T]) Dropped() uint64 { return f.dropped.Load() }

// Mirror registers dst to receive a Clone() of every element pushed to f
// from now on, independent of f's own consumers. It also records f as a
// source on dst, so UnmirrorAll can later be driven from either side.
func (f *FIFO[T]) Mirror(dst *FIFO[T]) {
	f.mirrorsMu.Lock()
	f.mirrors = append(f.mirrors, dst)
	f.mirrorsMu.Unlock()

	dst.mirrorsMu.Lock()
	dst.sources = append(dst.sources, f)
	dst.mirrorsMu.Unlock()
}

// Unmirror stops dst from receiving further clones of f's pushes.
func (f *FIFO[T]) Unmirror(dst *FIFO[T]) {
	f.mirrorsMu.Lock()
	f.mirrors = removeFIFO(f.mirrors, dst)
	f.mirrorsMu.Unlock()

	dst.mirrorsMu.Lock()
	dst.sources = removeFIFO(dst.sources, f)
	dst.mirrorsMu.Unlock()
}

// UnmirrorAll detaches f from every mirror it feeds and every source
// feeding it.
func (f *FIFO[T]) UnmirrorAll() {
	f.mirrorsMu.Lock()
	mirrors := f.mirrors
	sources := f.sources
	f.mirrors = nil
	f.sources = nil
	f.mirrorsMu.Unlock()

	for _, m := range mirrors {
		m.mirrorsMu.Lock()
		m.sources = removeFIFO(m.sources, f)
		m.mirrorsMu.Unlock()
	}
	for _, s := range sources {
		s.mirrorsMu.Lock()
		s.mirrors = removeFIFO(s.mirrors, f)
		s.mirrorsMu.Unlock()
	}
}

func removeFIFO[T Releasable[T]](list []*FIFO[T], target *FIFO[T]) []*FIFO[T] {
	out := list[:0]
	for _, f := range list {
		if f != target {
			out = append(out, f)
		}
	}
	return out
}

// Generic is the type-erased view of a FIFO[T] used wherever component Ops
// need to enumerate a component's queues without caring about element
// type (flush-on-discard, depth reporting). Every *FIFO[T] satisfies it
// automatically.
type Generic interface {
	Size() int
	IsFull() bool
	CloseEOS()
	Closed() bool
}

// RefView returns a new FIFO mirroring f with the same max depth and
// flags, already wired via Mirror: a read-only handle onto an existing
// queue's traffic.
func RefView[T Releasable[T]](f *FIFO[T]) *FIFO[T] {
	view := New[T](f.Max())
	view.SetFlags(f.Flags())
	f.Mirror(view)
	return view
}

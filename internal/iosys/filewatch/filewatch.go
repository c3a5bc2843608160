// Package filewatch implements an internal/iosys.API backend that
// discovers "capture devices" as watched directories: each file created
// inside Root (or found by the periodic sweep) becomes an entry, and each
// write to that file
// is treated as a new frame of capture-adjacent data (modeling a named
// pipe directory a real screen/window capture source would drop frames
// into; the actual display-duplication backend stays an external
// concern). Built on fsnotify's recommended watcher-loop shape; a dead
// watcher is replaced in place so discovered entries survive transient
// faults.
package filewatch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/alxayo/txproto-go/internal/class"
	"github.com/alxayo/txproto-go/internal/component"
	"github.com/alxayo/txproto-go/internal/errors"
	"github.com/alxayo/txproto-go/internal/events"
	"github.com/alxayo/txproto-go/internal/fifo"
	"github.com/alxayo/txproto-go/internal/iosys"
	"github.com/alxayo/txproto-go/internal/logger"
	"github.com/alxayo/txproto-go/internal/media"
)

// Backend watches Root for capture-pipe files, registering one iosys
// entry per file it finds.
type Backend struct {
	Root string
	Kind class.Kind // class.VideoSrc or class.AudioSrc

	// Rescan is the periodic full-directory sweep interval, catching
	// files the watcher missed (created before InitIO, or dropped
	// events under load). Zero disables the sweep.
	Rescan time.Duration

	// epoch is the reference value recorded at CTRL_START; frames are
	// stamped monotonic-now minus this.
	epoch atomic.Int64

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	entries map[string]*class.Handle // path -> entry handle
}

// New returns a Backend watching root for new capture-pipe files,
// re-scanning the directory every rescan interval (0 disables).
func New(root string, kind class.Kind, rescan time.Duration) *Backend {
	return &Backend{Root: root, Kind: kind, Rescan: rescan, entries: make(map[string]*class.Handle)}
}

// Name identifies this API to the iosys registry.
func (b *Backend) Name() string { return "filewatch" }

// InitSys verifies Root exists; it creates it if absent, matching a
// capture-pipe directory that a driver would otherwise pre-create.
func (b *Backend) InitSys(ctx context.Context) error {
	if err := os.MkdirAll(b.Root, 0o755); err != nil {
		return errors.NewExternalError("filewatch.init_sys.mkdir", 0, err)
	}
	return nil
}

// InitIO starts the discovery loop in a background goroutine and
// returns once the watcher is established, matching component.Worker's
// "Start returns immediately, run until ctx is done" shape.
func (b *Backend) InitIO(ctx context.Context, reg *iosys.Registry) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.NewExternalError("filewatch.init_io.new_watcher", 0, err)
	}
	if err := w.Add(b.Root); err != nil {
		w.Close()
		return errors.NewExternalError("filewatch.init_io.add_root", 0, err)
	}

	b.mu.Lock()
	b.watcher = w
	b.mu.Unlock()

	go b.loop(ctx, reg, w)
	return nil
}

func (b *Backend) loop(ctx context.Context, reg *iosys.Registry, w *fsnotify.Watcher) {
	defer w.Close()
	var rescan <-chan time.Time
	if b.Rescan > 0 {
		t := time.NewTicker(b.Rescan)
		defer t.Stop()
		rescan = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-rescan:
			b.sweep(reg)
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			b.handleEvent(ctx, reg, ev)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logger.Logger().Error("filewatch watcher error", "error", err)
			if apiEvents := reg.Events(b.Name()); apiEvents != nil {
				apiEvents.Dispatch(events.TypeMask{Phase: events.OnError}, err)
			}
			b.recover(ctx, reg)
		}
	}
}

// recover implements the "release and re-acquire without touching the
// event graph" policy: a fresh watcher replaces the dead one, but every
// existing entry's handle (and its own event list) survives untouched.
func (b *Backend) recover(ctx context.Context, reg *iosys.Registry) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Logger().Error("filewatch recover failed", "error", err)
		return
	}
	if err := w.Add(b.Root); err != nil {
		logger.Logger().Error("filewatch recover add_root failed", "error", err)
		w.Close()
		return
	}

	b.mu.Lock()
	old := b.watcher
	b.watcher = w
	b.mu.Unlock()
	if old != nil {
		old.Close()
	}

	go b.loop(ctx, reg, w)
}

func (b *Backend) handleEvent(ctx context.Context, reg *iosys.Registry, ev fsnotify.Event) {
	switch {
	case ev.Op&fsnotify.Create != 0:
		b.registerEntry(reg, ev.Name)
	case ev.Op&fsnotify.Write != 0:
		b.onWrite(reg, ev.Name)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		b.unregisterEntry(reg, ev.Name)
	}
}

func (b *Backend) registerEntry(reg *iosys.Registry, path string) {
	b.mu.Lock()
	if _, exists := b.entries[path]; exists {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	name := filepath.Base(path)
	h, entry := iosys.NewEntry(b.Name(), name, b.Kind, nil)
	entry.Output = fifo.New[*media.Frame](64)
	entry.Ctrl = b.entryCtrl(entry)

	if err := reg.RegisterEntryFor(b.Name(), entry.Identifier, h); err != nil {
		h.Unref()
		return
	}

	b.mu.Lock()
	b.entries[path] = h
	b.mu.Unlock()

	entry.Events.Dispatch(events.TypeMask{Phase: events.OnChange}, path)
}

func (b *Backend) onWrite(reg *iosys.Registry, path string) {
	b.mu.Lock()
	h, ok := b.entries[path]
	b.mu.Unlock()
	if !ok {
		return
	}
	entry, ok := class.As[*iosys.Entry](h)
	if !ok {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		entry.Events.Dispatch(events.TypeMask{Phase: events.OnError}, err)
		return
	}
	if len(data) == 0 {
		return
	}
	frame := media.NewFrame(nil, time.Now().UnixNano()-b.epoch.Load(), data)
	if err := entry.Output.Push(frame); err != nil {
		frame.Release()
	}
}

func (b *Backend) unregisterEntry(reg *iosys.Registry, path string) {
	b.mu.Lock()
	h, ok := b.entries[path]
	delete(b.entries, path)
	b.mu.Unlock()
	if !ok {
		return
	}
	if entry, ok := class.As[*iosys.Entry](h); ok {
		entry.Events.Dispatch(events.TypeMask{Phase: events.OnEOS}, nil)
		reg.UnregisterEntryFor(b.Name(), entry.Identifier)
	}
}

// entryCtrl is the per-entry control surface a capture entry carries:
// start records the epoch reference used to stamp frames and announces
// readiness; event registration, flush and stop act on the entry's own
// queue and list, with the same flag routing a full component ctrl uses.
func (b *Backend) entryCtrl(entry *iosys.Entry) component.CtrlFunc {
	return func(h *class.Handle, flags component.Flag, arg any) error {
		switch {
		case flags.Has(component.NewEvent):
			ev, ok := arg.(*events.Event)
			if !ok {
				return errors.NewInvalidArgError("filewatch.entry.ctrl.new_event", nil)
			}
			return entry.Events.Add(ev)
		case flags.Has(component.Start):
			if v, ok := arg.(int64); ok {
				b.epoch.Store(v)
			}
			return entry.Events.Dispatch(events.TypeMask{Phase: events.OnInit}, nil)
		case flags.Has(component.Flush):
			entry.Output.Drain()
			return nil
		case flags.Has(component.Stop):
			entry.Output.CloseEOS()
			return nil
		case flags.Has(component.Opts):
			// Pipe entries carry no options of their own; accept and
			// leave unknown keys to the caller.
			return nil
		case flags.Has(component.Signal):
			phase, _ := arg.(events.Phase)
			entry.Events.Signal(phase)
			return nil
		case flags.Has(component.Commit):
			return entry.Events.Dispatch(events.TypeMask{Phase: events.OnCommit | events.OnConfig}, nil)
		case flags.Has(component.Discard):
			return entry.Events.Dispatch(events.TypeMask{Phase: events.OnDiscard}, nil)
		}
		return errors.NewUnsupportedError("filewatch.entry.ctrl", nil)
	}
}

// sweep registers any file already present under Root that the watcher
// never reported, so entries survive watcher races and pre-existing
// pipes are still discovered.
func (b *Backend) sweep(reg *iosys.Registry) {
	names, err := os.ReadDir(b.Root)
	if err != nil {
		return
	}
	for _, de := range names {
		if de.IsDir() {
			continue
		}
		b.registerEntry(reg, filepath.Join(b.Root, de.Name()))
	}
}

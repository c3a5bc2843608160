// Package pipeline implements the main context: the top-level runtime
// value owning the root event list, the external reference list
// (keeping every client-visible handle alive until teardown), the epoch
// clock and the I/O source registry. It is the single object the public
// API at the module root (txproto.go) delegates to.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/alxayo/txproto-go/internal/class"
	"github.com/alxayo/txproto-go/internal/commit"
	"github.com/alxayo/txproto-go/internal/component"
	"github.com/alxayo/txproto-go/internal/config"
	"github.com/alxayo/txproto-go/internal/epoch"
	"github.com/alxayo/txproto-go/internal/errors"
	"github.com/alxayo/txproto-go/internal/events"
	"github.com/alxayo/txproto-go/internal/iosys"
	"github.com/alxayo/txproto-go/internal/linking"
	"github.com/alxayo/txproto-go/internal/logger"
	"github.com/alxayo/txproto-go/internal/optval"
	"github.com/alxayo/txproto-go/internal/stats"
)

// MainContext is the runtime owner every component is built through.
// Construct with New, start background machinery with Init, and always
// call Free to unwind the external reference list.
type MainContext struct {
	Root  *class.Handle
	Event *events.List
	Epoch *epoch.Clock
	IO    *iosys.Registry
	Stats *stats.Registry
	Cfg   config.Config

	refMu        sync.Mutex
	externalRefs []*class.Handle

	initOnce sync.Once
	freeOnce sync.Once
}

// New allocates a MainContext with cfg's defaults applied. An empty
// config resolves to config.Default().
func New(cfg config.Config) *MainContext {
	if cfg.FIFODefaultCapacity == 0 {
		cfg = config.Default().Override(cfg)
	}
	root := class.New(nil, "main", class.Context, nil)
	mc := &MainContext{
		Root:  root,
		Event: events.NewList(root),
		Epoch: epoch.NewClock(),
		IO:    iosys.NewRegistry(),
		Cfg:   cfg,
	}
	if cfg.StatsEnabled {
		mc.Stats = stats.New()
	}
	switch cfg.EpochModeValue() {
	case epoch.System:
		mc.Epoch.SetSystem()
	default:
		mc.Epoch.SetOffset(0)
	}
	return mc
}

// RootEvents satisfies internal/commit.Context and internal/linking's
// commit.Context dependency without either package importing pipeline.
func (mc *MainContext) RootEvents() *events.List { return mc.Event }

// Init starts the I/O registry's registered back-ends (InitSys then
// InitIO) against ctx. Safe to call at most once; later calls are a
// no-op.
func (mc *MainContext) Init(ctx context.Context) error {
	var err error
	mc.initOnce.Do(func() {
		if ierr := mc.IO.InitSys(ctx); ierr != nil {
			err = ierr
			return
		}
		err = mc.IO.InitIO(ctx)
	})
	return err
}

// Free unrefs every externally held handle in registration order and
// drops the main context's own root reference. Safe to call more than
// once.
func (mc *MainContext) Free() {
	mc.freeOnce.Do(func() {
		mc.refMu.Lock()
		refs := mc.externalRefs
		mc.externalRefs = nil
		mc.refMu.Unlock()
		for _, h := range refs {
			h.Unref()
		}
		mc.Root.Unref()
	})
}

// track adds h to the external-reference list, keeping it alive until
// Free/Destroy even if the caller drops its own reference.
func (mc *MainContext) track(h *class.Handle) *class.Handle {
	mc.refMu.Lock()
	mc.externalRefs = append(mc.externalRefs, h)
	mc.refMu.Unlock()
	return h
}

// Destroy pops h from the external-reference list and unrefs it.
func (mc *MainContext) Destroy(h *class.Handle) {
	if h == nil {
		return
	}
	mc.refMu.Lock()
	for i, ref := range mc.externalRefs {
		if ref == h {
			mc.externalRefs = append(mc.externalRefs[:i], mc.externalRefs[i+1:]...)
			break
		}
	}
	mc.refMu.Unlock()
	h.Unref()
}

// EpochSetOffset moves the epoch clock into Offset mode with the given
// nanosecond offset.
func (mc *MainContext) EpochSetOffset(offsetNanos int64) { mc.Epoch.SetOffset(offsetNanos) }

// EpochSetSystem moves the epoch clock into System (wall-clock) mode.
func (mc *MainContext) EpochSetSystem() { mc.Epoch.SetSystem() }

// Commit dispatches every staged ON_COMMIT event on the root list in
// insertion order. A component failing its own commit
// signals ON_ERROR on its own list but does not prevent other staged
// commits from running; the joined error (if any) is returned to the
// caller as the aggregate result.
func (mc *MainContext) Commit() error {
	return commit.Commit(mc)
}

// Discard rolls back every staged ON_DISCARD event in reverse
// registration order.
func (mc *MainContext) Discard() error {
	return commit.Discard(mc)
}

// Ctrl is the generic dispatch entry point delegating to the
// appropriate component controller. Non-immediate NEW_EVENT, OPTS and
// COMMIT calls are staged through the commit protocol instead of
// applied synchronously; everything else acts at once.
func (mc *MainContext) Ctrl(h *class.Handle, flags component.Flag, arg any) error {
	if flags.Has(component.Start) && arg == nil {
		// START carries the current epoch value so the component (or
		// capture entry) can stamp timestamps as monotonic_now minus
		// the epoch.
		arg = mc.Epoch.Now()
	}
	if !flags.Has(component.Immediate) {
		switch {
		case flags.Has(component.Opts):
			return mc.stageOpts(h, flags, arg)
		case flags.Has(component.NewEvent):
			return mc.stageNewEvent(h, arg)
		case flags.Has(component.Commit):
			return commit.StageCommit(mc, routeCtrl, h)
		}
	}
	if err := routeCtrl(h, flags, arg); err != nil {
		return err
	}
	if !flags.Has(component.Immediate) {
		// A non-immediate control action also enrolls the component in
		// the next commit/discard pass, so a later Commit re-dispatches
		// its ON_COMMIT|ON_CONFIG and settles any link event a source's
		// ON_INIT has since unparked.
		return commit.StageCommit(mc, routeCtrl, h)
	}
	return nil
}

// routeCtrl dispatches a control call to an I/O entry's own ctrl when the
// handle wraps one (source/sink kinds carry their ctrl on the entry
// itself), and to the per-kind Ops table otherwise.
func routeCtrl(h *class.Handle, flags component.Flag, arg any) error {
	if entry, ok := class.As[*iosys.Entry](h); ok && entry.Ctrl != nil {
		return entry.Ctrl(h, flags, arg)
	}
	return component.Ctrl(h, flags, arg)
}

// stageNewEvent defers an event registration to the next Commit, with the
// usual matching discard (a rollback before the commit fires simply never
// registers the event).
func (mc *MainContext) stageNewEvent(h *class.Handle, arg any) error {
	ev, ok := arg.(*events.Event)
	if !ok {
		return errors.NewInvalidArgError("pipeline.ctrl.new_event", nil)
	}
	return commit.StageCommit(mc, stagedChange(func(target *class.Handle) error {
		return routeCtrl(target, component.NewEvent|component.Immediate, ev)
	}), h)
}

// stagedChange adapts a not-yet-applied change into the commit protocol's
// CtrlFunc shape: the commit pass applies it, the discard pass cancels it.
// Nothing was applied before commit, so rollback is simply never
// applying; a discard that ran first also retires the commit side, so a
// later Commit cannot resurrect the rolled-back change.
func stagedChange(apply func(target *class.Handle) error) component.CtrlFunc {
	var cancelled atomic.Bool
	return func(target *class.Handle, fl component.Flag, _ any) error {
		if fl.Has(component.Discard) {
			cancelled.Store(true)
			return nil
		}
		if cancelled.Load() {
			return nil
		}
		return apply(target)
	}
}

// stageOpts registers a one-shot ON_COMMIT event on the root list that
// applies arg as an immediate OPTS call once Commit runs, and a matching
// ON_DISCARD that drops the staged change, mirroring
// add_commit_fn_to_list/add_discard_fn_to_list's symmetric staging.
func (mc *MainContext) stageOpts(h *class.Handle, flags component.Flag, arg any) error {
	return commit.StageCommit(mc, stagedChange(func(target *class.Handle) error {
		return routeCtrl(target, flags|component.Immediate, arg)
	}), h)
}

// EventRegister registers ev on target's own event list, not the main
// context's root list.
func (mc *MainContext) EventRegister(target *class.Handle, ev *events.Event) error {
	return routeCtrl(target, component.NewEvent, ev)
}

// EventDestroy retires a still-pending event from target's own list
// before it fires, the inverse of EventRegister. Removing an event that
// already expired through one-shot dispatch is a no-op.
func (mc *MainContext) EventDestroy(target *class.Handle, ev *events.Event) error {
	if target == nil || ev == nil {
		return errors.NewInvalidArgError("pipeline.event_destroy", nil)
	}
	var list *events.List
	if entry, ok := class.As[*iosys.Entry](target); ok {
		list = entry.Events
	} else if ops, ok := component.Lookup(target.Kind()); ok && ops.Events != nil {
		list = ops.Events(target)
	}
	if list == nil {
		return errors.NewUnsupportedError("pipeline.event_destroy."+target.Kind().String(), nil)
	}
	list.Remove(ev)
	return nil
}

// Link wires src to dst per the link negotiator's wiring table, staging
// the matching discard (and, for autostart, issuing CTRL_START to both
// endpoints) against mc.
func (mc *MainContext) Link(src, dst *class.Handle, opts linking.Options) error {
	return linking.Link(mc, src, dst, opts)
}

// Create is the single component-construction entry point every
// DemuxerCreate/DecoderCreate/EncoderCreate/MuxerCreate/FiltergraphCreate
// wrapper calls: resolve kind's Ops table, build the handle, and track it
// on the external-reference list.
func (mc *MainContext) Create(kind class.Kind, name string, collaborator any) (*class.Handle, error) {
	ops, ok := component.Lookup(kind)
	if !ok || ops.Create == nil {
		return nil, errors.NewUnsupportedError("pipeline.create."+kind.String(), nil)
	}
	h, err := ops.Create(name, mc.Root, collaborator)
	if err != nil {
		return nil, err
	}
	log := logger.WithClass(logger.Logger(), kind.String(), name)
	log.Debug("component created")
	return mc.track(h), nil
}

// DemuxerCreate builds a demuxer component reading from src. url and
// format are carried for naming/logging only; the actual container
// parsing is src's responsibility.
func (mc *MainContext) DemuxerCreate(name, url string, src component.DemuxSource, initOpts optval.Dict) (*class.Handle, error) {
	if name == "" {
		name = url
	}
	h, err := mc.Create(class.Demuxer, name, src)
	if err != nil {
		return nil, err
	}
	if len(initOpts) > 0 {
		if err := mc.Ctrl(h, component.Opts|component.Immediate, initOpts); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// DecoderCreate builds a decoder component wrapping dec (codecName is
// carried for naming/logging; decoder selection itself happens outside
// the runtime's scope).
func (mc *MainContext) DecoderCreate(codecName string, dec component.FrameDecoder, initOpts optval.Dict) (*class.Handle, error) {
	h, err := mc.Create(class.Decoder, codecName, dec)
	if err != nil {
		return nil, err
	}
	if len(initOpts) > 0 {
		if err := mc.Ctrl(h, component.Opts|component.Immediate, initOpts); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// EncoderParams carries EncoderCreate's options.
type EncoderParams struct {
	CodecName string
	Name      string
	CodecOpts optval.Dict
	InitOpts  optval.Dict
	PixFmt    string
}

// EncoderCreate builds an encoder component wrapping enc.
func (mc *MainContext) EncoderCreate(p EncoderParams, enc component.FrameEncoder) (*class.Handle, error) {
	name := p.Name
	if name == "" {
		name = p.CodecName
	}
	h, err := mc.Create(class.Encoder, name, enc)
	if err != nil {
		return nil, err
	}
	merged := optval.Merge(p.InitOpts, p.CodecOpts)
	if len(merged) > 0 {
		if err := mc.Ctrl(h, component.Opts|component.Immediate, merged); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// MuxerCreate builds a muxer component wrapping sink.
func (mc *MainContext) MuxerCreate(url string, sink component.MuxSink, muxOpts, initOpts optval.Dict) (*class.Handle, error) {
	h, err := mc.Create(class.Muxer, url, sink)
	if err != nil {
		return nil, err
	}
	merged := optval.Merge(initOpts, muxOpts)
	if len(merged) > 0 {
		if err := mc.Ctrl(h, component.Opts|component.Immediate, merged); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// FiltergraphCreate builds a filter-graph component wrapping graph.
// graphString and hwdevKind are carried for naming/logging; the actual
// filter chain construction is graph's responsibility.
func (mc *MainContext) FiltergraphCreate(graphString, hwdevKind string, graph component.FrameFilter, initOpts optval.Dict) (*class.Handle, error) {
	h, err := mc.Create(class.Filter, graphString, graph)
	if err != nil {
		return nil, err
	}
	if len(initOpts) > 0 {
		if err := mc.Ctrl(h, component.Opts|component.Immediate, initOpts); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// IORegisterCB registers api under the I/O registry; its discovery loop
// starts at the next Init. To observe the back-end's entry set, register
// events against the registry's per-API list (Registry.Events); an
// Immediate-flagged event fires synchronously against the current
// snapshot.
func (mc *MainContext) IORegisterCB(api iosys.API) {
	mc.IO.Register(api)
}

// IOCreate looks up an I/O entry by apiName/identifier, applying opts to
// it if it implements component.OptsApplier, the same init_opts
// forwarding component creation does.
func (mc *MainContext) IOCreate(apiName string, identifier uint32, opts optval.Dict) (*class.Handle, error) {
	h := mc.IO.RefEntry(apiName, identifier)
	if h == nil {
		return nil, errors.NewNotFoundError("pipeline.io_create." + apiName)
	}
	if entry, ok := class.As[component.OptsApplier](h); ok && len(opts) > 0 {
		if err := entry.ApplyOpts(opts); err != nil {
			h.Unref()
			return nil, err
		}
	}
	return mc.track(h), nil
}

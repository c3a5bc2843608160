// Package commit implements the two-phase commit/discard activation
// protocol: components stage a pending control call against the main
// context, and a later Commit or Discard call runs every staged action
// in one pass. A thin layer over internal/events.
package commit

import (
	"github.com/alxayo/txproto-go/internal/class"
	"github.com/alxayo/txproto-go/internal/component"
	"github.com/alxayo/txproto-go/internal/events"
)

// Context is the minimal surface StageCommit/Commit/Discard need from
// the owning main context (just its root event list), so this package
// never needs to import internal/pipeline.
type Context interface {
	RootEvents() *events.List
}

// StageCommit registers a one-shot ON_COMMIT event on ctx's root list
// that invokes fn(fnCtx, component.Commit, nil), and always also
// registers a matching one-shot ON_DISCARD event invoking fn(fnCtx,
// component.Discard, nil), so every staged change has a rollback
// enrolled up front.
func StageCommit(ctx Context, fn component.CtrlFunc, fnCtx *class.Handle) error {
	commitEv := events.New(
		events.TypeMask{Phase: events.OnCommit, Flags: events.FlagOneshot},
		func(ev *events.Event, state any, c, dep *class.Handle, data any) error {
			err := fn(fnCtx, component.Commit, nil)
			if err != nil && fnCtx != nil {
				// The failing component reports ON_ERROR on its own list;
				// the error still joins Commit's aggregate result.
				if ops, ok := component.Lookup(fnCtx.Kind()); ok && ops.Events != nil {
					if list := ops.Events(fnCtx); list != nil {
						list.Dispatch(events.TypeMask{Phase: events.OnError}, err)
					}
				}
			}
			return err
		},
		nil, nil,
	)
	if err := ctx.RootEvents().Add(commitEv); err != nil {
		return err
	}
	return StageDiscard(ctx, fn, fnCtx)
}

// StageDiscard registers a one-shot ON_DISCARD event invoking fn(fnCtx,
// component.Discard, nil). Exposed separately for link paths that only
// need the rollback staged.
func StageDiscard(ctx Context, fn component.CtrlFunc, fnCtx *class.Handle) error {
	discardEv := events.New(
		events.TypeMask{Phase: events.OnDiscard, Flags: events.FlagOneshot},
		func(ev *events.Event, state any, c, dep *class.Handle, data any) error {
			return fn(fnCtx, component.Discard, nil)
		},
		nil, nil,
	)
	return ctx.RootEvents().Add(discardEv)
}

// Commit dispatches ON_COMMIT on ctx's root list. A staged commit
// callback that errors does not stop the others from running: every
// staged component's commit callback runs regardless of earlier errors,
// joined via events.List.DispatchAll.
func Commit(ctx Context) error {
	return ctx.RootEvents().DispatchAll(events.TypeMask{Phase: events.OnCommit}, nil, false)
}

// Discard dispatches ON_DISCARD on ctx's root list in reverse registration
// order, so components are torn down in the opposite order they were
// staged, the reverse of Commit's forward order.
func Discard(ctx Context) error {
	return ctx.RootEvents().DispatchAll(events.TypeMask{Phase: events.OnDiscard}, nil, true)
}

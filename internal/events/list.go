package events

import (
	stderrors "errors"
	"sync"

	"github.com/alxayo/txproto-go/internal/class"
)

// List is the per-object event registry: an insertion-ordered collection
// of Events dispatched against a single owning handle. A single List
// serves every phase/category combination for one object (commit.go,
// component.go and pipeline.go each hold one).
type List struct {
	mu     sync.Mutex
	owner  *class.Handle
	events []*Event

	// dispatched records, per phase bit, whether Dispatch has ever fired
	// for it; queried by HasDispatched (e.g. a component checks ON_COMMIT
	// already ran before allowing a second commit attempt).
	dispatched Phase
}

// NewList creates an event list bound to owner. owner is a weak reference:
// the list never Ref/Unref's it.
func NewList(owner *class.Handle) *List {
	return &List{owner: owner}
}

// Add registers ev. FlagDependency events are parked: they never fire from
// Dispatch until Signal is called with a matching source phase. FlagImmediate
// events fire synchronously before Add returns, using nil dispatch data;
// if also FlagOneshot they are destroyed and never stored.
func (l *List) Add(ev *Event) error {
	l.mu.Lock()
	if ev.Type.has(FlagImmediate) && !ev.Type.has(FlagDependency) {
		l.mu.Unlock()
		err := ev.Callback(ev, ev.State, l.owner, ev.DepCtx, nil)
		l.mu.Lock()
		l.dispatched |= ev.Type.Phase
		if ev.Type.has(FlagOneshot) {
			l.mu.Unlock()
			if ev.Destroy != nil {
				ev.Destroy(ev.State)
			}
			return err
		}
		l.events = append(l.events, ev)
		l.mu.Unlock()
		return err
	}
	l.events = append(l.events, ev)
	l.mu.Unlock()
	return nil
}

// Signal releases every parked FlagDependency event whose Type.Phase
// intersects sourcePhase, clearing the dependency flag so the next Dispatch
// call is free to run them. It does not dispatch them itself: dependency
// events become ordinary pending events once unparked.
func (l *List) Signal(sourcePhase Phase) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.Type.has(FlagDependency) && ev.Type.Phase&sourcePhase != 0 {
			ev.Type.clear(FlagDependency)
		}
	}
}

// Dispatch runs every non-parked, non-expired event whose Type matches
// mask, in insertion order. ctx is Ref'd for the duration of the call so
// a callback cannot outlive the object it was invoked on. One-shot
// events are removed and their Destroy (if any) invoked after the
// callback returns, whether or not it returned an error. Every matching
// event runs exactly once regardless of an earlier one's error; Dispatch
// reports the first error encountered but does not let it skip any later
// pending event (same traversal as DispatchAll).
func (l *List) Dispatch(mask TypeMask, data any) error {
	l.mu.Lock()
	pending := make([]*Event, 0, len(l.events))
	for _, ev := range l.events {
		if ev.Type.has(FlagDependency) || ev.Type.has(FlagExpired) {
			continue
		}
		if ev.Type.Matches(mask) {
			pending = append(pending, ev)
		}
	}
	l.mu.Unlock()

	if l.owner != nil {
		l.owner.Ref()
		defer l.owner.Unref()
	}

	var firstErr error
	var expired []*Event
	for _, ev := range pending {
		err := ev.Callback(ev, ev.State, l.owner, ev.DepCtx, data)
		if ev.Type.has(FlagOneshot) {
			ev.Type.set(FlagExpired)
			expired = append(expired, ev)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	l.mu.Lock()
	l.dispatched |= mask.Phase
	if len(expired) > 0 {
		l.removeLocked(expired)
	}
	l.mu.Unlock()

	for _, ev := range expired {
		if ev.Destroy != nil {
			ev.Destroy(ev.State)
		}
	}
	return firstErr
}

// removeLocked drops the given events from l.events. Caller must hold l.mu.
func (l *List) removeLocked(gone []*Event) {
	if len(gone) == 0 {
		return
	}
	dead := make(map[*Event]struct{}, len(gone))
	for _, ev := range gone {
		dead[ev] = struct{}{}
	}
	kept := l.events[:0]
	for _, ev := range l.events {
		if _, ok := dead[ev]; !ok {
			kept = append(kept, ev)
		}
	}
	l.events = kept
}

// DispatchAll runs every non-parked, non-expired event matching mask like
// Dispatch, but never stops on error: every matching event runs exactly
// once, and every error is collected and returned joined via errors.Join.
// When reverse is true, matching events run in reverse registration order.
// This is the commit/discard main-context dispatch used by
// internal/commit, where one staged component's error must not prevent
// every other staged component from running its own commit/discard.
func (l *List) DispatchAll(mask TypeMask, data any, reverse bool) error {
	l.mu.Lock()
	var pending []*Event
	for _, ev := range l.events {
		if ev.Type.has(FlagDependency) || ev.Type.has(FlagExpired) {
			continue
		}
		if ev.Type.Matches(mask) {
			pending = append(pending, ev)
		}
	}
	l.mu.Unlock()

	if reverse {
		for i, j := 0, len(pending)-1; i < j; i, j = i+1, j-1 {
			pending[i], pending[j] = pending[j], pending[i]
		}
	}

	if l.owner != nil {
		l.owner.Ref()
		defer l.owner.Unref()
	}

	var joined error
	var expired []*Event
	for _, ev := range pending {
		err := ev.Callback(ev, ev.State, l.owner, ev.DepCtx, data)
		if ev.Type.has(FlagOneshot) {
			ev.Type.set(FlagExpired)
			expired = append(expired, ev)
		}
		if err != nil {
			joined = stderrors.Join(joined, err)
		}
	}

	l.mu.Lock()
	l.dispatched |= mask.Phase
	if len(expired) > 0 {
		l.removeLocked(expired)
	}
	l.mu.Unlock()

	for _, ev := range expired {
		if ev.Destroy != nil {
			ev.Destroy(ev.State)
		}
	}
	return joined
}

// Remove retires ev before it fires: it is dropped from the list and its
// Destroy (if any) runs. Reports whether the event was still enrolled;
// an event already expired through one-shot dispatch is gone and returns
// false.
func (l *List) Remove(ev *Event) bool {
	l.mu.Lock()
	found := false
	for _, e := range l.events {
		if e == ev {
			found = true
			break
		}
	}
	if found {
		ev.Type.set(FlagExpired)
		l.removeLocked([]*Event{ev})
	}
	l.mu.Unlock()
	if found && ev.Destroy != nil {
		ev.Destroy(ev.State)
	}
	return found
}

// HasDispatched reports whether Dispatch has ever been called with a mask
// whose Phase intersected phase.
func (l *List) HasDispatched(phase Phase) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dispatched&phase != 0
}

// IterRef returns a snapshot copy of the currently registered events, safe
// to range over without holding the list's lock (the owner handle is Ref'd
// for the lifetime the caller holds the snapshot is the caller's
// responsibility via the handle it already owns).
func (l *List) IterRef() []*Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len reports the number of currently registered (non-expired) events.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

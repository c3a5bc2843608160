package commit

import (
	"errors"
	"testing"

	"github.com/alxayo/txproto-go/internal/class"
	"github.com/alxayo/txproto-go/internal/component"
	"github.com/alxayo/txproto-go/internal/events"
)

type fakeCtx struct {
	root *events.List
}

func (c *fakeCtx) RootEvents() *events.List { return c.root }

func newFakeCtx() *fakeCtx {
	owner := class.New(struct{}{}, "mc", class.Context, nil)
	return &fakeCtx{root: events.NewList(owner)}
}

func TestStageCommitRegistersCommitAndDiscard(t *testing.T) {
	ctx := newFakeCtx()
	var calls []component.Flag
	fn := func(h *class.Handle, flags component.Flag, arg any) error {
		calls = append(calls, flags)
		return nil
	}
	target := class.New(struct{}{}, "enc0", class.Encoder, nil)

	if err := StageCommit(ctx, fn, target); err != nil {
		t.Fatalf("StageCommit: %v", err)
	}

	if err := Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if len(calls) != 1 || calls[0] != component.Commit {
		t.Fatalf("expected one Commit call, got %v", calls)
	}

	if err := Discard(ctx); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if len(calls) != 2 || calls[1] != component.Discard {
		t.Fatalf("expected Discard call to follow, got %v", calls)
	}
}

func TestCommitContinuesPastErrorsAndJoinsThem(t *testing.T) {
	ctx := newFakeCtx()
	boom := errors.New("boom")
	second := false

	fn1 := func(h *class.Handle, flags component.Flag, arg any) error { return boom }
	fn2 := func(h *class.Handle, flags component.Flag, arg any) error { second = true; return nil }

	t1 := class.New(struct{}{}, "c1", class.Encoder, nil)
	t2 := class.New(struct{}{}, "c2", class.Muxer, nil)

	if err := StageCommit(ctx, fn1, t1); err != nil {
		t.Fatalf("StageCommit 1: %v", err)
	}
	if err := StageCommit(ctx, fn2, t2); err != nil {
		t.Fatalf("StageCommit 2: %v", err)
	}

	err := Commit(ctx)
	if err == nil || !errors.Is(err, boom) {
		t.Fatalf("expected joined error containing boom, got %v", err)
	}
	if !second {
		t.Fatalf("expected second component's commit to still run despite first's error")
	}
}

func TestDiscardRunsInReverseOrder(t *testing.T) {
	ctx := newFakeCtx()
	var order []string

	mk := func(name string) component.CtrlFunc {
		return func(h *class.Handle, flags component.Flag, arg any) error {
			order = append(order, name)
			return nil
		}
	}
	t1 := class.New(struct{}{}, "first", class.Demuxer, nil)
	t2 := class.New(struct{}{}, "second", class.Muxer, nil)

	StageDiscard(ctx, mk("first"), t1)
	StageDiscard(ctx, mk("second"), t2)

	if err := Discard(ctx); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Fatalf("expected reverse discard order, got %v", order)
	}
}

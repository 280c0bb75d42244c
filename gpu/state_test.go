package gpu

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func TestValidTransition(t *testing.T) {
	specs := []struct {
		from, to ResourceState
		exp      bool
	}{
		{StateUndefined, StateCopyDest, true},
		{StateUndefined, StateUnorderedAccess, true},
		{StateUndefined, StateAccelerationStructure, true},
		{StateUndefined, StateShaderResource, false},
		{StateUndefined, StatePresent, false},
		{StateCopyDest, StateShaderResource, true},
		{StateShaderResource, StateVertexBuffer, true},
		{StateShaderResource, StateIndexBuffer, true},
		{StateRenderTarget, StateCopyDest, true},
		{StateCopyDest, StatePresent, true},
		{StateAccelerationStructure, StateShaderResource, false},
		{StateAccelerationStructure, StateAccelerationStructure, true},
		{StateUnorderedAccess, StateAccelerationStructure, false},
		{StateShaderResource, StateUndefined, false},
		{StateCommon, StateCommon, true},
		{numResourceStates, StateCommon, false},
	}

	for index, s := range specs {
		if got := ValidTransition(s.from, s.to); got != s.exp {
			t.Fatalf("[spec %d] expected transition %s -> %s valid=%t; got %t", index, s.from, s.to, s.exp, got)
		}
	}
}

func TestStateAllowed(t *testing.T) {
	buf := &fakeBuffer{fakeResource: fakeResource{label: "vb"}}
	color := &fakeTexture{fakeResource: fakeResource{label: "color"}, format: gputypes.TextureFormatRGBA32Float}
	depth := &fakeTexture{fakeResource: fakeResource{label: "depth"}, format: gputypes.TextureFormatDepth32Float}
	kbuf := &fakeTexture{fakeResource: fakeResource{label: "kbuffer"}, format: gputypes.TextureFormatR32Uint}

	specs := []struct {
		res Resource
		to  ResourceState
		exp bool
	}{
		{buf, StateVertexBuffer, true},
		{buf, StateIndexBuffer, true},
		{buf, StateAccelerationStructure, true},
		{buf, StateUnorderedAccess, true},
		{buf, StateRenderTarget, false},
		{buf, StateDepthWrite, false},
		{buf, StatePresent, false},
		{color, StateRenderTarget, true},
		{color, StatePresent, true},
		{color, StateDepthWrite, false},
		{color, StateIndexBuffer, false},
		{color, StateVertexBuffer, false},
		{depth, StateDepthWrite, true},
		{depth, StateRenderTarget, false},
		{kbuf, StateUnorderedAccess, true},
		{kbuf, StateShaderResource, true},
		{kbuf, StateRenderTarget, false},
		{kbuf, StateAccelerationStructure, false},
	}

	for index, s := range specs {
		if got := StateAllowed(s.res, s.to); got != s.exp {
			t.Fatalf("[spec %d] expected %s in %s allowed=%t; got %t", index, s.res.Label(), s.to, s.exp, got)
		}
	}
}

func TestTrackerRejectsStatesForResourceKind(t *testing.T) {
	cl := &recordingList{}
	tracker := NewStateTracker(false)
	vb := &fakeBuffer{fakeResource: fakeResource{label: "vb", state: StateVertexBuffer}}
	color := &fakeTexture{fakeResource: fakeResource{label: "color", state: StateShaderResource}, format: gputypes.TextureFormatRGBA32Float}

	if err := tracker.Transition(cl, StateRenderTarget, vb); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition moving a buffer to RenderTarget; got %v", err)
	}
	if err := tracker.Transition(cl, StateIndexBuffer, color); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition moving a texture to IndexBuffer; got %v", err)
	}
	if len(cl.barriers) != 0 || vb.State() != StateVertexBuffer || color.State() != StateShaderResource {
		t.Fatalf("expected no barriers to be recorded; got %d", len(cl.barriers))
	}
}

func TestTrackerRecordsBarriers(t *testing.T) {
	cl := &recordingList{}
	tracker := NewStateTracker(false)
	kbuf := &fakeResource{label: "kbuffer", state: StateUnorderedAccess}
	lsKbuf := &fakeResource{label: "ls kbuffer", state: StateShaderResource}

	if err := tracker.Transition(cl, StateShaderResource, kbuf, lsKbuf); err != nil {
		t.Fatal(err)
	}

	if len(cl.barriers) != 1 {
		t.Fatalf("expected 1 barrier (same state transitions are skipped); got %d", len(cl.barriers))
	}
	b := cl.barriers[0]
	if b.Resource != kbuf || b.Before != StateUnorderedAccess || b.After != StateShaderResource {
		t.Fatalf("unexpected barrier %+v", b)
	}
	if kbuf.State() != StateShaderResource {
		t.Fatalf("expected resource state to be updated; got %s", kbuf.State())
	}

	// Repeating the transition is a no-op
	if err := tracker.Transition(cl, StateShaderResource, kbuf); err != nil || len(cl.barriers) != 1 {
		t.Fatalf("expected no additional barriers; got %d (err %v)", len(cl.barriers), err)
	}
}

func TestTrackerRejectsInvalidTransitions(t *testing.T) {
	cl := &recordingList{}
	tracker := NewStateTracker(false)
	blas := &fakeResource{label: "blas", state: StateAccelerationStructure}
	vb := &fakeResource{label: "vb", state: StateCopyDest}

	err := tracker.Transition(cl, StateShaderResource, vb, blas)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition; got %v", err)
	}
	if len(cl.barriers) != 0 || vb.State() != StateCopyDest {
		t.Fatalf("expected no barriers to be recorded on failure; got %d", len(cl.barriers))
	}
}

func TestStrictTrackerPanics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected strict tracker to panic")
		}
	}()

	tracker := NewStateTracker(true)
	tracker.Transition(&recordingList{}, StateUndefined, &fakeResource{label: "tex", state: StateCommon})
}

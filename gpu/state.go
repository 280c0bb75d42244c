package gpu

import (
	"fmt"

	"github.com/StarsX/SparseVolumeDXR/log"
)

// The state a resource is in from the device's point of view.
type ResourceState uint8

const (
	StateUndefined ResourceState = iota
	StateCommon
	StateCopyDest
	StateCopySource
	StateUnorderedAccess
	StateShaderResource
	StateRenderTarget
	StateDepthWrite
	StateVertexBuffer
	StateIndexBuffer
	StateAccelerationStructure
	StatePresent
	numResourceStates
)

var resourceStateNames = [numResourceStates]string{
	"Undefined",
	"Common",
	"CopyDest",
	"CopySource",
	"UnorderedAccess",
	"ShaderResource",
	"RenderTarget",
	"DepthWrite",
	"VertexBuffer",
	"IndexBuffer",
	"AccelerationStructure",
	"Present",
}

// Implements Stringer.
func (s ResourceState) String() string {
	if s < numResourceStates {
		return resourceStateNames[s]
	}
	return fmt.Sprintf("ResourceState(%d)", uint8(s))
}

// Report whether a resource may move from one state to another.
//
// Freshly created (Undefined) resources can only enter states that a device
// can initialize them into. Acceleration structures never leave their state
// and no resource may return to Undefined.
func ValidTransition(from, to ResourceState) bool {
	if from >= numResourceStates || to >= numResourceStates {
		return false
	}
	if from == to {
		return true
	}

	switch {
	case to == StateUndefined:
		return false
	case from == StateAccelerationStructure:
		return false
	case to == StateAccelerationStructure:
		return from == StateUndefined
	case from == StateUndefined:
		switch to {
		case StateCommon, StateCopyDest, StateUnorderedAccess, StateRenderTarget, StateDepthWrite:
			return true
		}
		return false
	}
	return true
}

// Report whether res may be placed in state s. Buffers never become render
// targets or presentable images and textures never feed the input assembler
// or hold acceleration structures. Depth formats are only written through
// DepthWrite and color formats through RenderTarget.
func StateAllowed(res Resource, s ResourceState) bool {
	switch r := res.(type) {
	case Texture:
		switch s {
		case StateVertexBuffer, StateIndexBuffer, StateAccelerationStructure:
			return false
		case StateDepthWrite:
			return IsDepthFormat(r.Format())
		case StateRenderTarget, StatePresent:
			return IsColorFormat(r.Format())
		}
	case Buffer:
		switch s {
		case StateRenderTarget, StateDepthWrite, StatePresent:
			return false
		}
	}
	return true
}

// ValidTransition restricted to the states res can be in.
func ValidResourceTransition(res Resource, from, to ResourceState) bool {
	return ValidTransition(from, to) && StateAllowed(res, to)
}

// A resource state transition.
type Barrier struct {
	Resource Resource
	Before   ResourceState
	After    ResourceState
}

// StateTracker validates and records resource state transitions. The last
// recorded state lives on each resource (Resource.State); the tracker
// compares it against the requested state and records the barriers.
type StateTracker struct {
	logger log.Logger

	// When set, invalid transitions panic instead of being logged.
	strict bool
}

func NewStateTracker(strict bool) *StateTracker {
	return &StateTracker{
		logger: log.New("state tracker"),
		strict: strict,
	}
}

// Record barriers moving every resource into state to. Resources already in
// that state are skipped. If any transition is invalid no barrier is recorded
// and ErrInvalidTransition is returned.
func (t *StateTracker) Transition(cl CommandList, to ResourceState, resources ...Resource) error {
	barriers := make([]Barrier, 0, len(resources))
	for _, res := range resources {
		from := res.State()
		if from == to {
			continue
		}
		if !ValidResourceTransition(res, from, to) {
			err := fmt.Errorf("%w: %s from %s to %s", ErrInvalidTransition, res.Label(), from, to)
			if t.strict {
				panic(err)
			}
			t.logger.Warning(err.Error())
			return err
		}
		barriers = append(barriers, Barrier{Resource: res, Before: from, After: to})
	}

	if len(barriers) == 0 {
		return nil
	}
	for _, b := range barriers {
		b.Resource.SetState(b.After)
	}
	cl.Barrier(barriers...)
	return nil
}

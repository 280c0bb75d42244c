// Package accel builds the acceleration structures used for ray dispatches:
// a static bottom level structure over the mesh triangles and a top level
// structure holding mesh instances.
//
// Both levels follow the same sequence: PreBuild queries the device for the
// memory requirements, Allocate creates the result buffer and Build records
// the build followed by a UAV barrier on the result.
package accel

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/StarsX/SparseVolumeDXR/gpu"
	"github.com/StarsX/SparseVolumeDXR/log"
	"github.com/StarsX/SparseVolumeDXR/types"
)

var (
	ErrNoGeometry      = errors.New("accel: no triangles to build")
	ErrNoInstances     = errors.New("accel: no instances to build")
	ErrNotPrebuilt     = errors.New("accel: PreBuild must be called first")
	ErrNotAllocated    = errors.New("accel: Allocate must be called first")
	ErrScratchTooSmall = errors.New("accel: scratch buffer is too small")
)

var logger = log.New("accel")

// Create a default heap buffer usable as build scratch memory.
func NewScratch(dev gpu.Device, label string, size uint64) (gpu.Buffer, error) {
	return dev.CreateBuffer(gpu.BufferDescriptor{
		Label:        label,
		Size:         size,
		Usage:        gputypes.BufferUsageStorage,
		InitialState: gpu.StateUnorderedAccess,
	})
}

type structure struct {
	label    string
	inputs   gpu.AccelerationStructureInputs
	info     gpu.PrebuildInfo
	prebuilt bool
	result   gpu.Buffer
}

func (s *structure) preBuild(dev gpu.Device) error {
	info, err := dev.AccelerationStructurePrebuild(s.inputs)
	if err != nil {
		return fmt.Errorf("accel: prebuild %s: %w", s.label, err)
	}
	if info.ResultSize == 0 {
		return fmt.Errorf("accel: prebuild %s: device reported a zero result size", s.label)
	}
	s.info = info
	s.prebuilt = true
	logger.Debugf("%s needs %d result and %d scratch bytes", s.label, info.ResultSize, info.ScratchSize)
	return nil
}

func (s *structure) allocate(dev gpu.Device) error {
	if !s.prebuilt {
		return ErrNotPrebuilt
	}
	buf, err := dev.CreateBuffer(gpu.BufferDescriptor{
		Label:        s.label,
		Size:         s.info.ResultSize,
		Usage:        gputypes.BufferUsageStorage,
		InitialState: gpu.StateAccelerationStructure,
	})
	if err != nil {
		return fmt.Errorf("accel: allocate %s: %w", s.label, err)
	}
	s.result = buf
	return nil
}

func (s *structure) build(cl gpu.CommandList, scratch gpu.Buffer) error {
	if s.result == nil {
		return ErrNotAllocated
	}
	if scratch == nil || scratch.Size() < s.info.ScratchSize {
		return fmt.Errorf("%w: %s needs %d bytes", ErrScratchTooSmall, s.label, s.info.ScratchSize)
	}

	cl.BuildAccelerationStructure(gpu.BuildDescriptor{
		Inputs:  s.inputs,
		Dest:    s.result,
		Scratch: scratch,
	})
	cl.UAVBarrier(s.result)
	return nil
}

// BottomLevel is a static structure over indexed triangle geometry.
type BottomLevel struct {
	structure
}

// Describe a bottom level structure. Geometry buffers must be in the
// ShaderResource state when the build executes.
func NewBottomLevel(label string, geometry ...gpu.TriangleGeometry) *BottomLevel {
	return &BottomLevel{
		structure: structure{
			label: label,
			inputs: gpu.AccelerationStructureInputs{
				Level:    gpu.BottomLevel,
				Geometry: append([]gpu.TriangleGeometry(nil), geometry...),
			},
		},
	}
}

func (b *BottomLevel) TriangleCount() uint32 {
	var count uint32
	for _, g := range b.inputs.Geometry {
		count += g.IndexCount / 3
	}
	return count
}

func (b *BottomLevel) PreBuild(dev gpu.Device) error {
	if b.TriangleCount() == 0 {
		return ErrNoGeometry
	}
	return b.preBuild(dev)
}

func (b *BottomLevel) Allocate(dev gpu.Device) error {
	return b.allocate(dev)
}

// Record the build and a UAV barrier on the result.
func (b *BottomLevel) Build(cl gpu.CommandList, scratch gpu.Buffer) error {
	return b.build(cl, scratch)
}

func (b *BottomLevel) Info() gpu.PrebuildInfo {
	return b.info
}

func (b *BottomLevel) Result() gpu.Buffer {
	return b.result
}

// Describe an instance of b placed by the world matrix.
func (b *BottomLevel) Instance(world types.Mat4, id uint32) gpu.InstanceDesc {
	desc := gpu.InstanceDesc{
		Transform:  types.Rows3x4(world),
		InstanceID: id,
		Mask:       1,
	}
	if b.result != nil {
		desc.BottomLevel = b.result.Address()
	}
	return desc
}

// TopLevel holds instances of bottom level structures. Instance descriptors
// live in an upload heap buffer that can be rewritten between builds.
type TopLevel struct {
	structure
	instances gpu.Buffer
}

func NewTopLevel(label string, instanceCount uint32) *TopLevel {
	return &TopLevel{
		structure: structure{
			label: label,
			inputs: gpu.AccelerationStructureInputs{
				Level:         gpu.TopLevel,
				InstanceCount: instanceCount,
			},
		},
	}
}

func (t *TopLevel) InstanceCount() uint32 {
	return t.inputs.InstanceCount
}

func (t *TopLevel) PreBuild(dev gpu.Device) error {
	if t.inputs.InstanceCount == 0 {
		return ErrNoInstances
	}
	return t.preBuild(dev)
}

// Allocate the result and the instance descriptor buffers.
func (t *TopLevel) Allocate(dev gpu.Device) error {
	if err := t.allocate(dev); err != nil {
		return err
	}

	buf, err := dev.CreateBuffer(gpu.BufferDescriptor{
		Label:        t.label + " instances",
		Size:         uint64(t.inputs.InstanceCount) * gpu.InstanceDescSize,
		Heap:         gpu.HeapUpload,
		Usage:        gputypes.BufferUsageMapWrite,
		InitialState: gpu.StateCommon,
	})
	if err != nil {
		return fmt.Errorf("accel: allocate %s instances: %w", t.label, err)
	}
	t.instances = buf
	t.inputs.Instances = buf
	return nil
}

// Write the instance descriptors read by the next build.
func (t *TopLevel) SetInstances(descs ...gpu.InstanceDesc) error {
	if t.instances == nil {
		return ErrNotAllocated
	}
	if uint32(len(descs)) != t.inputs.InstanceCount {
		return fmt.Errorf("accel: %s expects %d instances; got %d", t.label, t.inputs.InstanceCount, len(descs))
	}

	data := make([]byte, len(descs)*gpu.InstanceDescSize)
	for i, desc := range descs {
		desc.Put(data[i*gpu.InstanceDescSize:])
	}
	return t.instances.Write(0, data)
}

// Read back the instance descriptors.
func (t *TopLevel) Instances() ([]gpu.InstanceDesc, error) {
	if t.instances == nil {
		return nil, ErrNotAllocated
	}
	data := make([]byte, t.instances.Size())
	if err := t.instances.Read(0, data); err != nil {
		return nil, err
	}
	descs := make([]gpu.InstanceDesc, t.inputs.InstanceCount)
	for i := range descs {
		if err := descs[i].UnmarshalBinary(data[i*gpu.InstanceDescSize:]); err != nil {
			return nil, err
		}
	}
	return descs, nil
}

// Record the build and a UAV barrier on the result.
func (t *TopLevel) Build(cl gpu.CommandList, scratch gpu.Buffer) error {
	return t.build(cl, scratch)
}

func (t *TopLevel) Info() gpu.PrebuildInfo {
	return t.info
}

func (t *TopLevel) Result() gpu.Buffer {
	return t.result
}

package gpu

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/gogpu/gputypes"
)

type AccelerationStructureLevel uint8

const (
	BottomLevel AccelerationStructureLevel = iota
	TopLevel
)

func (l AccelerationStructureLevel) String() string {
	if l == TopLevel {
		return "top level"
	}
	return "bottom level"
}

type GeometryFlags uint8

const (
	// Skip any-hit invocations for this geometry.
	GeometryOpaque GeometryFlags = 1 << iota

	// Invoke any-hit at most once per primitive along a ray.
	GeometryNoDuplicateAnyHit
)

// Indexed triangle geometry for bottom level builds. Positions are read as
// VertexFormat at the start of each VertexStride sized vertex.
type TriangleGeometry struct {
	VertexBuffer Buffer
	VertexStride uint32
	VertexCount  uint32
	VertexFormat gputypes.VertexFormat
	IndexBuffer  Buffer
	IndexCount   uint32
	Flags        GeometryFlags
}

type AccelerationStructureInputs struct {
	Level AccelerationStructureLevel

	// Bottom level inputs.
	Geometry []TriangleGeometry

	// Top level inputs: InstanceCount descriptors read from Instances.
	InstanceCount uint32
	Instances     Buffer
}

// Memory requirements reported by the device before a build.
type PrebuildInfo struct {
	ResultSize  uint64
	ScratchSize uint64
}

type BuildDescriptor struct {
	Inputs  AccelerationStructureInputs
	Dest    Buffer
	Scratch Buffer
}

// A shader table region: Size bytes starting at Offset, split into Stride
// sized records.
type TableRange struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
	Stride uint64
}

type DispatchRaysDescriptor struct {
	RayGen   TableRange
	Miss     TableRange
	HitGroup TableRange
	Width    uint32
	Height   uint32
}

// Size in bytes of a packed InstanceDesc.
const InstanceDescSize = 64

type InstanceFlags uint8

const (
	InstanceTriangleCullDisable InstanceFlags = 1 << iota
	InstanceFrontCounterClockwise
	InstanceForceOpaque
	InstanceForceNonOpaque
)

var errShortInstanceDesc = errors.New("gpu: instance descriptor requires 64 bytes")

// A top level instance: a row-major 3x4 object-to-world transform, a 24 bit
// instance id and hit group offset, an 8 bit mask and flags and the address
// of the bottom level structure.
type InstanceDesc struct {
	Transform      [12]float32
	InstanceID     uint32
	Mask           uint8
	HitGroupOffset uint32
	Flags          InstanceFlags
	BottomLevel    uint64
}

// Implements encoding.BinaryMarshaler.
func (d InstanceDesc) MarshalBinary() ([]byte, error) {
	out := make([]byte, InstanceDescSize)
	d.Put(out)
	return out, nil
}

// Pack the descriptor into dst, which must hold InstanceDescSize bytes.
func (d InstanceDesc) Put(dst []byte) {
	for i, v := range d.Transform {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(dst[48:], d.InstanceID&0xFFFFFF|uint32(d.Mask)<<24)
	binary.LittleEndian.PutUint32(dst[52:], d.HitGroupOffset&0xFFFFFF|uint32(d.Flags)<<24)
	binary.LittleEndian.PutUint64(dst[56:], d.BottomLevel)
}

// Implements encoding.BinaryUnmarshaler.
func (d *InstanceDesc) UnmarshalBinary(data []byte) error {
	if len(data) < InstanceDescSize {
		return errShortInstanceDesc
	}
	for i := range d.Transform {
		d.Transform[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	idMask := binary.LittleEndian.Uint32(data[48:])
	d.InstanceID = idMask & 0xFFFFFF
	d.Mask = uint8(idMask >> 24)
	offsetFlags := binary.LittleEndian.Uint32(data[52:])
	d.HitGroupOffset = offsetFlags & 0xFFFFFF
	d.Flags = InstanceFlags(offsetFlags >> 24)
	d.BottomLevel = binary.LittleEndian.Uint64(data[56:])
	return nil
}

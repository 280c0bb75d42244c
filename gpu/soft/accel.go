package soft

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/StarsX/SparseVolumeDXR/asset/bvh"
	"github.com/StarsX/SparseVolumeDXR/gpu"
	"github.com/StarsX/SparseVolumeDXR/types"
)

const (
	// Bytes per BVH node and per triangle used by prebuild estimates.
	nodeFootprint     = 32
	triangleFootprint = 36
	instanceFootprint = 64

	// Triangles per BVH leaf.
	minLeafTriangles = 2
)

// A triangle stored in a bottom level structure.
type accelTriangle struct {
	v         [3]mgl32.Vec3
	primitive uint32
	flags     gpu.GeometryFlags
}

func (t *accelTriangle) BBox() [2]types.Vec3 {
	return [2]types.Vec3{
		types.MinVec3(t.v[0], types.MinVec3(t.v[1], t.v[2])),
		types.MaxVec3(t.v[0], types.MaxVec3(t.v[1], t.v[2])),
	}
}

func (t *accelTriangle) Center() types.Vec3 {
	return t.v[0].Add(t.v[1]).Add(t.v[2]).Mul(1.0 / 3.0)
}

type accelInstance struct {
	desc          gpu.InstanceDesc
	blas          *accelStructure
	worldToObject mgl32.Mat4
}

// The contents of an acceleration structure buffer.
type accelStructure struct {
	level gpu.AccelerationStructureLevel

	// Bottom level: BVH over tris, leaves index the reordered tris slice.
	nodes []bvh.Node
	tris  []accelTriangle

	// Top level.
	instances []accelInstance
}

// Estimate the memory needed to build an acceleration structure.
func (d *Device) AccelerationStructurePrebuild(inputs gpu.AccelerationStructureInputs) (gpu.PrebuildInfo, error) {
	if !d.rayTracing {
		return gpu.PrebuildInfo{}, fmt.Errorf("soft device: prebuild: %w", gpu.ErrUnsupported)
	}

	switch inputs.Level {
	case gpu.BottomLevel:
		var tris uint64
		for _, g := range inputs.Geometry {
			tris += uint64(g.IndexCount / 3)
		}
		if tris == 0 {
			return gpu.PrebuildInfo{}, fmt.Errorf("soft device: bottom level prebuild requires at least one triangle")
		}
		nodes := 2*tris - 1
		return gpu.PrebuildInfo{
			ResultSize:  gpu.Align(nodes*nodeFootprint+tris*triangleFootprint, addressAlignment),
			ScratchSize: gpu.Align(tris*nodeFootprint+nodes*8, addressAlignment),
		}, nil
	case gpu.TopLevel:
		if inputs.InstanceCount == 0 {
			return gpu.PrebuildInfo{}, fmt.Errorf("soft device: top level prebuild requires at least one instance")
		}
		count := uint64(inputs.InstanceCount)
		return gpu.PrebuildInfo{
			ResultSize:  gpu.Align(count*instanceFootprint+64, addressAlignment),
			ScratchSize: gpu.Align(count*instanceFootprint, addressAlignment),
		}, nil
	}
	return gpu.PrebuildInfo{}, fmt.Errorf("soft device: unknown acceleration structure level %d", inputs.Level)
}

func (ex *executor) checkBuildTargets(inputs gpu.AccelerationStructureInputs, dest, scratch *buffer) error {
	if dest == nil || scratch == nil {
		return fmt.Errorf("build requires destination and scratch buffers")
	}
	if err := expectState(dest.label, dest.actual, gpu.StateAccelerationStructure); err != nil {
		return err
	}
	if err := expectState(scratch.label, scratch.actual, gpu.StateUnorderedAccess); err != nil {
		return err
	}

	info, err := ex.dev.AccelerationStructurePrebuild(inputs)
	if err != nil {
		return err
	}
	if dest.Size() < info.ResultSize {
		return fmt.Errorf("%s holds %d bytes; build needs %d", dest.label, dest.Size(), info.ResultSize)
	}
	if scratch.Size() < info.ScratchSize {
		return fmt.Errorf("scratch %s holds %d bytes; build needs %d", scratch.label, scratch.Size(), info.ScratchSize)
	}
	return nil
}

func (ex *executor) buildBottomLevel(inputs gpu.AccelerationStructureInputs, dest, scratch *buffer) error {
	if err := ex.checkBuildTargets(inputs, dest, scratch); err != nil {
		return err
	}

	var tris []accelTriangle
	for gi, g := range inputs.Geometry {
		vb, _ := g.VertexBuffer.(*buffer)
		ib, _ := g.IndexBuffer.(*buffer)
		if vb == nil || ib == nil {
			return fmt.Errorf("geometry %d: missing vertex or index buffer", gi)
		}
		if err := expectState(vb.label, vb.actual, gpu.StateShaderResource); err != nil {
			return fmt.Errorf("geometry %d: %w", gi, err)
		}
		if err := expectState(ib.label, ib.actual, gpu.StateShaderResource); err != nil {
			return fmt.Errorf("geometry %d: %w", gi, err)
		}
		if g.VertexFormat != gputypes.VertexFormatFloat32x3 {
			return fmt.Errorf("geometry %d: unsupported vertex format %v", gi, g.VertexFormat)
		}
		if uint64(g.IndexCount)*4 > ib.Size() {
			return fmt.Errorf("geometry %d: %d indices overflow %s", gi, g.IndexCount, ib.label)
		}

		for i := uint32(0); i+2 < g.IndexCount; i += 3 {
			tri := accelTriangle{primitive: uint32(len(tris)), flags: g.Flags}
			for c := uint32(0); c < 3; c++ {
				index := binary.LittleEndian.Uint32(ib.data[(i+c)*4:])
				if index >= g.VertexCount {
					return fmt.Errorf("geometry %d: index %d outside %d vertices", gi, index, g.VertexCount)
				}
				offset := uint64(index) * uint64(g.VertexStride)
				if offset+12 > vb.Size() {
					return fmt.Errorf("geometry %d: vertex %d outside %s", gi, index, vb.label)
				}
				tri.v[c] = readVec3(vb.data[offset:])
			}
			tris = append(tris, tri)
		}
	}

	items := make([]bvh.BoundedVolume, len(tris))
	for i := range tris {
		items[i] = &tris[i]
	}
	ordered := make([]accelTriangle, 0, len(tris))
	nodes := bvh.Build(items, minLeafTriangles, func(_ *bvh.Node, leafItems []bvh.BoundedVolume) {
		for _, item := range leafItems {
			ordered = append(ordered, *item.(*accelTriangle))
		}
	}, bvh.SurfaceAreaHeuristic)

	dest.as = &accelStructure{
		level: gpu.BottomLevel,
		nodes: nodes,
		tris:  ordered,
	}
	ex.pendingUAV[dest] = struct{}{}
	return nil
}

func (ex *executor) buildTopLevel(inputs gpu.AccelerationStructureInputs, instances, dest, scratch *buffer) error {
	if err := ex.checkBuildTargets(inputs, dest, scratch); err != nil {
		return err
	}
	if instances == nil {
		return fmt.Errorf("top level build requires an instance buffer")
	}
	if instances.heap != gpu.HeapUpload {
		if err := expectState(instances.label, instances.actual, gpu.StateShaderResource); err != nil {
			return err
		}
	}
	if uint64(inputs.InstanceCount)*gpu.InstanceDescSize > instances.Size() {
		return fmt.Errorf("%d instances overflow %s", inputs.InstanceCount, instances.label)
	}

	as := &accelStructure{level: gpu.TopLevel}
	for i := uint32(0); i < inputs.InstanceCount; i++ {
		var inst accelInstance
		if err := inst.desc.UnmarshalBinary(instances.data[i*gpu.InstanceDescSize:]); err != nil {
			return err
		}

		ex.dev.mu.Lock()
		blasBuf := ex.dev.buffers[inst.desc.BottomLevel]
		ex.dev.mu.Unlock()
		if blasBuf == nil || blasBuf.as == nil || blasBuf.as.level != gpu.BottomLevel {
			return fmt.Errorf("instance %d: no bottom level structure at %#x", i, inst.desc.BottomLevel)
		}
		if _, pending := ex.pendingUAV[blasBuf]; pending {
			return fmt.Errorf("instance %d: %s is read without a UAV barrier after its build", i, blasBuf.label)
		}

		inst.blas = blasBuf.as
		inst.worldToObject = types.FromRows3x4(inst.desc.Transform).Inv()
		as.instances = append(as.instances, inst)
	}

	dest.as = as
	ex.pendingUAV[dest] = struct{}{}
	return nil
}

func readVec3(src []byte) mgl32.Vec3 {
	return mgl32.Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(src[0:])),
		math.Float32frombits(binary.LittleEndian.Uint32(src[4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(src[8:])),
	}
}

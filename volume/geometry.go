package volume

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/StarsX/SparseVolumeDXR/asset/mesh"
	"github.com/StarsX/SparseVolumeDXR/gpu"
	"github.com/StarsX/SparseVolumeDXR/types"
)

// Device copy of the mesh.
type geometry struct {
	bound       types.Bound
	vertexCount uint32
	indexCount  uint32

	vertexBuffer gpu.Buffer
	indexBuffer  gpu.Buffer

	// Upload heap sources of the initial copies. Kept until Close since
	// the copies execute after Init returns.
	staging []gpu.Buffer
}

func (g *geometry) release(release func(gpu.Resource)) {
	for _, buf := range append([]gpu.Buffer{g.vertexBuffer, g.indexBuffer}, g.staging...) {
		if buf != nil {
			release(buf)
		}
	}
	*g = geometry{bound: g.bound}
}

// Import the mesh and validate it.
func (v *Volume) loadGeometry(path string) (*mesh.Mesh, error) {
	importer := v.opts.Importer
	if importer == nil {
		importer = mesh.WavefrontImporter{}
	}
	m, err := importer.Import(path)
	if err != nil {
		return nil, err
	}

	if m.TriangleCount() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrDegenerateMesh, path)
	}
	bound := m.Bound()
	if !(bound.Radius > 0) {
		return nil, fmt.Errorf("%w: %s", ErrZeroRadius, path)
	}

	v.geometry.bound = bound
	v.logger.Infof("loaded %s: %d vertices, %d triangles, bound center %v radius %f",
		path, len(m.Vertices), m.TriangleCount(), bound.Center, bound.Radius)
	return m, nil
}

// Record copies of the mesh into default heap buffers. The buffers end up
// in the ShaderResource state when ray tracing is enabled so the bottom
// level build can read them, and in their input assembler states otherwise.
func (v *Volume) uploadGeometry(cl gpu.CommandList, m *mesh.Mesh) error {
	g := &v.geometry
	g.vertexCount = uint32(len(m.Vertices))
	g.indexCount = uint32(len(m.Indices))

	var err error
	if g.vertexBuffer, err = v.upload(cl, "vertex buffer", m.VertexData(), gputypes.BufferUsageVertex); err != nil {
		return err
	}
	if g.indexBuffer, err = v.upload(cl, "index buffer", m.IndexData(), gputypes.BufferUsageIndex); err != nil {
		return err
	}

	if v.opts.RayTracing {
		return v.tracker.Transition(cl, gpu.StateShaderResource, g.vertexBuffer, g.indexBuffer)
	}
	return v.drawableGeometry(cl)
}

// Move the geometry buffers to the states needed for drawing.
func (v *Volume) drawableGeometry(cl gpu.CommandList) error {
	if err := v.tracker.Transition(cl, gpu.StateVertexBuffer, v.geometry.vertexBuffer); err != nil {
		return err
	}
	return v.tracker.Transition(cl, gpu.StateIndexBuffer, v.geometry.indexBuffer)
}

func (v *Volume) upload(cl gpu.CommandList, label string, data []byte, usage gputypes.BufferUsage) (gpu.Buffer, error) {
	size := uint64(len(data))
	staging, err := v.dev.CreateBuffer(gpu.BufferDescriptor{
		Label:        label + " upload",
		Size:         size,
		Heap:         gpu.HeapUpload,
		Usage:        gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc,
		InitialState: gpu.StateCommon,
	})
	if err != nil {
		return nil, err
	}
	v.geometry.staging = append(v.geometry.staging, staging)
	if err = staging.Write(0, data); err != nil {
		return nil, err
	}

	buf, err := v.dev.CreateBuffer(gpu.BufferDescriptor{
		Label:        label,
		Size:         size,
		Usage:        usage | gputypes.BufferUsageCopyDst | gputypes.BufferUsageStorage,
		InitialState: gpu.StateCopyDest,
	})
	if err != nil {
		return nil, err
	}
	cl.CopyBuffer(buf, 0, staging, 0, size)
	return buf, nil
}

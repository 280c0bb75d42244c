package mesh

import (
	"encoding/binary"
	"math"

	"github.com/StarsX/SparseVolumeDXR/types"
)

// Size in bytes of a packed vertex: float32 position followed by a float32 normal.
const VertexStride = 24

// Size in bytes of a packed index.
const IndexSize = 4

type Vertex struct {
	Position types.Vec3
	Normal   types.Vec3
}

// An indexed triangle mesh. Meshes are immutable once imported.
type Mesh struct {
	Name     string
	Vertices []Vertex
	Indices  []uint32

	bbox  [2]types.Vec3
	bound types.Bound
}

// Create a mesh from vertex and index lists and compute its bounds.
func New(name string, vertices []Vertex, indices []uint32) *Mesh {
	m := &Mesh{
		Name:     name,
		Vertices: vertices,
		Indices:  indices,
		bbox:     types.EmptyBBox(),
	}
	if len(vertices) == 0 {
		m.bbox = [2]types.Vec3{}
	}
	for _, v := range vertices {
		m.bbox[0] = types.MinVec3(m.bbox[0], v.Position)
		m.bbox[1] = types.MaxVec3(m.bbox[1], v.Position)
	}
	m.bound = types.BoundFromBBox(m.bbox)
	return m
}

func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

func (m *Mesh) BBox() [2]types.Vec3 {
	return m.bbox
}

// The bounding sphere derived from the mesh AABB.
func (m *Mesh) Bound() types.Bound {
	return m.bound
}

// Positions of the three corners of triangle tri.
func (m *Mesh) Triangle(tri int) [3]types.Vec3 {
	return [3]types.Vec3{
		m.Vertices[m.Indices[tri*3]].Position,
		m.Vertices[m.Indices[tri*3+1]].Position,
		m.Vertices[m.Indices[tri*3+2]].Position,
	}
}

// Pack vertices into a little-endian byte stream with VertexStride bytes per vertex.
func (m *Mesh) VertexData() []byte {
	out := make([]byte, len(m.Vertices)*VertexStride)
	for i, v := range m.Vertices {
		base := out[i*VertexStride:]
		for c := 0; c < 3; c++ {
			binary.LittleEndian.PutUint32(base[c*4:], math.Float32bits(v.Position[c]))
			binary.LittleEndian.PutUint32(base[12+c*4:], math.Float32bits(v.Normal[c]))
		}
	}
	return out
}

// Pack indices into a little-endian uint32 byte stream.
func (m *Mesh) IndexData() []byte {
	out := make([]byte, len(m.Indices)*IndexSize)
	for i, idx := range m.Indices {
		binary.LittleEndian.PutUint32(out[i*IndexSize:], idx)
	}
	return out
}

// Unpack a vertex stream produced by VertexData.
func DecodeVertices(data []byte) []Vertex {
	out := make([]Vertex, len(data)/VertexStride)
	for i := range out {
		base := data[i*VertexStride:]
		for c := 0; c < 3; c++ {
			out[i].Position[c] = math.Float32frombits(binary.LittleEndian.Uint32(base[c*4:]))
			out[i].Normal[c] = math.Float32frombits(binary.LittleEndian.Uint32(base[12+c*4:]))
		}
	}
	return out
}

// Unpack an index stream produced by IndexData.
func DecodeIndices(data []byte) []uint32 {
	out := make([]uint32, len(data)/IndexSize)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*IndexSize:])
	}
	return out
}

package soft

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/StarsX/SparseVolumeDXR/gpu"
)

// A rasterized sample: pixel coordinates and viewport depth.
type fragment struct {
	X, Y int
	Z    float32
}

// Returns the clip space position of a vertex. vertex holds the raw vertex
// bytes or nil when the pipeline has no vertex input.
type vertexProgram func(b *bindings, vertexID uint32, vertex []byte) mgl32.Vec4

// Shades a fragment. Returning false discards the color write.
type pixelProgram func(b *bindings, f fragment) ([4]float32, bool)

// Screen positions are snapped to 1/256 of a pixel so that edge functions
// are exact and triangles sharing an edge agree on every sample.
const (
	subPixelBits  = 8
	subPixelScale = 1 << subPixelBits
	subPixelHalf  = subPixelScale / 2

	// Keeps edge function products inside int64.
	maxFixed = 1 << 29
)

type screenVertex struct {
	x, y int64
	z    float64
	ok   bool
}

type setupTriangle struct {
	v    [3]screenVertex
	area int64

	// Top-left rule bias per edge (edge i is opposite vertex i).
	topLeft [3]bool
}

func (ex *executor) draw(count, instances uint32, indexed bool) error {
	p := ex.pipeline
	if p == nil || p.kind != graphicsPipeline {
		return fmt.Errorf("no graphics pipeline set")
	}
	if p.layout != ex.layout {
		return fmt.Errorf("pipeline %s expects layout %s", p.label, p.layout.label)
	}
	if err := ex.validateBindings(); err != nil {
		return err
	}
	if err := ex.validateTargets(p); err != nil {
		return err
	}

	vertexIDs, err := ex.fetchIndices(count, indexed)
	if err != nil {
		return err
	}

	b := &bindings{params: ex.params}
	var vertexData []byte
	var stride uint32
	if p.graphics.VertexLayout != nil {
		if ex.vertexBuffer == nil {
			return fmt.Errorf("pipeline %s requires a vertex buffer", p.label)
		}
		if err := expectState(ex.vertexBuffer.label, ex.vertexBuffer.actual, gpu.StateVertexBuffer); err != nil {
			return err
		}
		vertexData = ex.vertexBuffer.data
		stride = ex.vertexStride
		if stride == 0 {
			stride = uint32(p.graphics.VertexLayout.ArrayStride)
		}
	}

	// Vertex stage with a per-draw cache
	cache := make(map[uint32]screenVertex, len(vertexIDs))
	shade := func(id uint32) (screenVertex, error) {
		if sv, exists := cache[id]; exists {
			return sv, nil
		}
		var raw []byte
		if vertexData != nil {
			start := uint64(id) * uint64(stride)
			if start+uint64(stride) > uint64(len(vertexData)) {
				return screenVertex{}, fmt.Errorf("vertex %d outside %s", id, ex.vertexBuffer.label)
			}
			raw = vertexData[start : start+uint64(stride)]
		}
		sv := ex.toScreen(p.vs(b, id, raw))
		cache[id] = sv
		return sv, nil
	}

	tris := make([]setupTriangle, 0, len(vertexIDs)/3)
	for i := 0; i+2 < len(vertexIDs); i += 3 {
		var tri setupTriangle
		valid := true
		for c := 0; c < 3; c++ {
			if tri.v[c], err = shade(vertexIDs[i+c]); err != nil {
				return err
			}
			valid = valid && tri.v[c].ok
		}
		// Triangles reaching behind the eye are not clipped, only dropped.
		if valid && tri.setup(p.graphics.Primitive.CullMode) {
			tris = append(tris, tri)
		}
	}

	for inst := uint32(0); inst < instances; inst++ {
		if err := ex.rasterize(p, b, tris); err != nil {
			return err
		}
	}
	ex.draws++
	return nil
}

func (ex *executor) validateTargets(p *pipeline) error {
	desc := &p.graphics
	if len(ex.colorTargets) > len(desc.ColorFormats) {
		return fmt.Errorf("pipeline %s declares %d color targets; %d bound", p.label, len(desc.ColorFormats), len(ex.colorTargets))
	}
	for i, t := range ex.colorTargets {
		if t.format != desc.ColorFormats[i] {
			return fmt.Errorf("render target %s has format %v; pipeline %s expects %v", t.label, t.format, p.label, desc.ColorFormats[i])
		}
		if err := expectState(t.label, t.actual, gpu.StateRenderTarget); err != nil {
			return err
		}
	}
	if ex.depthTarget != nil && desc.DepthTest {
		if desc.DepthFormat != gputypes.TextureFormatUndefined && ex.depthTarget.format != desc.DepthFormat {
			return fmt.Errorf("depth target %s has format %v; pipeline %s expects %v", ex.depthTarget.label, ex.depthTarget.format, p.label, desc.DepthFormat)
		}
		if err := expectState(ex.depthTarget.label, ex.depthTarget.actual, gpu.StateDepthWrite); err != nil {
			return err
		}
	}
	return nil
}

func (ex *executor) fetchIndices(count uint32, indexed bool) ([]uint32, error) {
	ids := make([]uint32, count)
	if !indexed {
		for i := range ids {
			ids[i] = uint32(i)
		}
		return ids, nil
	}

	ib := ex.indexBuffer
	if ib == nil {
		return nil, fmt.Errorf("indexed draw without an index buffer")
	}
	if err := expectState(ib.label, ib.actual, gpu.StateIndexBuffer); err != nil {
		return nil, err
	}
	if uint64(count)*4 > ib.Size() {
		return nil, fmt.Errorf("%d indices overflow %s", count, ib.label)
	}
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint32(ib.data[i*4:])
	}
	return ids, nil
}

// Apply the perspective divide and the viewport transform.
func (ex *executor) toScreen(clip mgl32.Vec4) screenVertex {
	w := float64(clip[3])
	if w <= 1e-7 {
		return screenVertex{}
	}
	vp := ex.viewport
	nx := float64(clip[0]) / w
	ny := float64(clip[1]) / w
	nz := float64(clip[2]) / w
	return screenVertex{
		x:  toFixed(float64(vp.X) + (nx*0.5+0.5)*float64(vp.Width)),
		y:  toFixed(float64(vp.Y) + (0.5-ny*0.5)*float64(vp.Height)),
		z:  float64(vp.MinDepth) + nz*float64(vp.MaxDepth-vp.MinDepth),
		ok: true,
	}
}

func toFixed(v float64) int64 {
	f := math.Round(v * subPixelScale)
	if f > maxFixed {
		return maxFixed
	}
	if f < -maxFixed {
		return -maxFixed
	}
	return int64(f)
}

// Fixed point pixel center.
func sampleCenter(i int) int64 {
	return int64(i)<<subPixelBits + subPixelHalf
}

func edgeFunction(a, b screenVertex, px, py int64) int64 {
	return (b.x-a.x)*(py-a.y) - (b.y-a.y)*(px-a.x)
}

// Normalize winding and compute the fill rule flags. Returns false for
// degenerate or culled triangles. Screen space has y pointing down so a
// positive area means clockwise on screen.
func (t *setupTriangle) setup(cull gputypes.CullMode) bool {
	t.area = edgeFunction(t.v[0], t.v[1], t.v[2].x, t.v[2].y)
	if t.area == 0 {
		return false
	}

	// Clip space counter-clockwise triangles end up clockwise on screen
	frontFacing := t.area > 0
	switch cull {
	case gputypes.CullModeBack:
		if !frontFacing {
			return false
		}
	case gputypes.CullModeFront:
		if frontFacing {
			return false
		}
	}

	if t.area < 0 {
		t.v[1], t.v[2] = t.v[2], t.v[1]
		t.area = -t.area
	}

	for i := 0; i < 3; i++ {
		a, b := t.v[(i+1)%3], t.v[(i+2)%3]
		dx, dy := b.x-a.x, b.y-a.y
		t.topLeft[i] = (dy == 0 && dx > 0) || dy < 0
	}
	return true
}

func (ex *executor) rasterize(p *pipeline, b *bindings, tris []setupTriangle) error {
	vp := ex.viewport
	minX, minY := int(vp.X), int(vp.Y)
	maxX, maxY := int(vp.X+vp.Width), int(vp.Y+vp.Height)
	for _, t := range ex.colorTargets {
		maxX, maxY = min(maxX, int(t.width)), min(maxY, int(t.height))
	}
	depth := ex.depthTarget
	if depth != nil && p.graphics.DepthTest {
		maxX, maxY = min(maxX, int(depth.width)), min(maxY, int(depth.height))
	} else {
		depth = nil
	}
	if maxX <= minX || maxY <= minY {
		return nil
	}

	desc := &p.graphics
	minDepth, maxDepth := float64(min(vp.MinDepth, vp.MaxDepth)), float64(max(vp.MinDepth, vp.MaxDepth))

	return ex.forEachBand(maxY-minY, func(y0, y1 int) error {
		y0, y1 = y0+minY, y1+minY
		var fragments uint64
		for ti := range tris {
			t := &tris[ti]
			bx0 := max(minX, int(min(t.v[0].x, t.v[1].x, t.v[2].x)>>subPixelBits))
			bx1 := min(maxX-1, int(max(t.v[0].x, t.v[1].x, t.v[2].x)>>subPixelBits))
			by0 := max(y0, int(min(t.v[0].y, t.v[1].y, t.v[2].y)>>subPixelBits))
			by1 := min(y1-1, int(max(t.v[0].y, t.v[1].y, t.v[2].y)>>subPixelBits))

			for y := by0; y <= by1; y++ {
				py := sampleCenter(y)
				for x := bx0; x <= bx1; x++ {
					px := sampleCenter(x)

					w0 := edgeFunction(t.v[1], t.v[2], px, py)
					w1 := edgeFunction(t.v[2], t.v[0], px, py)
					w2 := edgeFunction(t.v[0], t.v[1], px, py)
					if !covers(w0, t.topLeft[0]) || !covers(w1, t.topLeft[1]) || !covers(w2, t.topLeft[2]) {
						continue
					}

					z := (float64(w0)*t.v[0].z + float64(w1)*t.v[1].z + float64(w2)*t.v[2].z) / float64(t.area)
					if z < minDepth || z > maxDepth {
						continue
					}
					if depth != nil && !compare(desc.DepthCompare, float32(z), depth.loadFloat(x, y)) {
						continue
					}
					if depth != nil && desc.DepthWrite {
						depth.storeFloat(x, y, float32(z))
					}

					fragments++
					color, write := p.ps(b, fragment{X: x, Y: y, Z: float32(z)})
					if !write {
						continue
					}
					for _, rt := range ex.colorTargets {
						rt.storeColor(x, y, blend(desc.Blend, color, rt.loadColor(x, y)))
					}
				}
			}
		}
		ex.fragments.Add(fragments)
		return nil
	})
}

func covers(w int64, topLeft bool) bool {
	return w > 0 || (w == 0 && topLeft)
}

func compare(fn gputypes.CompareFunction, a, b float32) bool {
	switch fn {
	case gputypes.CompareFunctionNever:
		return false
	case gputypes.CompareFunctionLess:
		return a < b
	case gputypes.CompareFunctionEqual:
		return a == b
	case gputypes.CompareFunctionLessEqual:
		return a <= b
	case gputypes.CompareFunctionGreater:
		return a > b
	case gputypes.CompareFunctionNotEqual:
		return a != b
	case gputypes.CompareFunctionGreaterEqual:
		return a >= b
	}
	return true
}

func blend(mode gpu.BlendMode, src, dst [4]float32) [4]float32 {
	if mode != gpu.BlendNonPremultiplied {
		return src
	}
	a := src[3]
	return [4]float32{
		src[0]*a + dst[0]*(1-a),
		src[1]*a + dst[1]*(1-a),
		src[2]*a + dst[2]*(1-a),
		a + dst[3]*(1-a),
	}
}

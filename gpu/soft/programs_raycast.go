package soft

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/StarsX/SparseVolumeDXR/gpu"
	"github.com/StarsX/SparseVolumeDXR/types"
)

// Emit a triangle covering the whole viewport: vertices 0, 1, 2 map to
// (-1, 1), (3, 1) and (-1, -3).
func vsScreenQuad(_ *bindings, vertexID uint32, _ []byte) mgl32.Vec4 {
	u := float32((vertexID << 1) & 2)
	v := float32(vertexID & 2)
	return mgl32.Vec4{u*2 - 1, 1 - v*2, 0, 1}
}

// Shade the pixel from the camera and light K-buffers. Param 0 holds
// {ScreenToWorld, ViewProjLS}; param 1 holds the camera and light K-buffers.
func psSparseRayCast(b *bindings, f fragment) ([4]float32, bool) {
	consts := b.constants(0)
	screenToWorld := gpu.Mat4At(consts)
	viewProjLS := gpu.Mat4At(consts[gpu.Mat4Size:])
	camera, light := b.texture(1, 0), b.texture(1, 1)
	if !camera.inBounds(f.X, f.Y) {
		return [4]float32{}, false
	}

	px, py := float32(f.X)+0.5, float32(f.Y)+0.5
	var points []mgl32.Vec3
	for layer := 0; layer < int(camera.layers); layer++ {
		bits := camera.loadUint(f.X, f.Y, layer)
		if bits == emptyLayer {
			break
		}
		points = append(points, unproject(screenToWorld, px, py, math.Float32frombits(bits)))
	}
	if len(points) < 2 {
		return [4]float32{}, false
	}

	viewDir := types.SafeNormalize(unproject(screenToWorld, px, py, 1).Sub(unproject(screenToWorld, px, py, 0)))
	lightDir := types.SafeNormalize(lightDepthAxis(viewProjLS).Mul(-1))

	color, alpha, _ := shadeCrossings(points, viewDir, lightDir, newShadowSampler(light, viewProjLS))
	if alpha <= 0 {
		return [4]float32{}, false
	}
	return [4]float32{color[0], color[1], color[2], alpha}, true
}

package soft

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/StarsX/SparseVolumeDXR/gpu"
	"github.com/StarsX/SparseVolumeDXR/types"
)

// Global layout params of the SparseRayCast library.
const (
	rtOutputs = iota // output color and thickness
	rtScene
	rtKBuffers // camera and light K-buffers
	rtConstants
)

// Most crossings a ray records.
const maxCrossings = 16

type crossingPayload struct {
	t     [maxCrossings]float32
	count int
	done  bool
}

// Keep t sorted, dropping the farthest crossing when full.
func (p *crossingPayload) insert(t float32) {
	i := p.count
	if i == maxCrossings {
		if t >= p.t[maxCrossings-1] {
			return
		}
		i--
	} else {
		p.count++
	}
	for ; i > 0 && p.t[i-1] > t; i-- {
		p.t[i] = p.t[i-1]
	}
	p.t[i] = t
}

// Trace one ray per pixel collecting every surface crossing, then composite
// the crossings over the background. The record payload holds
// {ScreenToWorld, LightDir}.
func raygenMain(ctx *rayContext, x, y int) {
	b := ctx.bindings()
	output, thickness := b.texture(rtOutputs, 0), b.texture(rtOutputs, 1)
	camera, light := b.texture(rtKBuffers, 0), b.texture(rtKBuffers, 1)

	// Pixels the camera peel never touched are background.
	if camera.inBounds(x, y) && camera.loadUint(x, y, 0) == emptyLayer {
		output.storeColor(x, y, clearColor)
		thickness.storeColor(x, y, [4]float32{})
		return
	}

	local := ctx.localConstants()
	screenToWorld := gpu.Mat4At(local)
	lightDir := gpu.Vec4At(local[gpu.Mat4Size:]).Vec3()
	viewProjLS := gpu.Mat4At(b.constants(rtConstants)[gpu.Mat4Size:])

	px, py := float32(x)+0.5, float32(y)+0.5
	origin := unproject(screenToWorld, px, py, 0)
	span := unproject(screenToWorld, px, py, 1).Sub(origin)
	dir := types.SafeNormalize(span)

	var payload crossingPayload
	ctx.traceRay(rayDesc{Origin: origin, Direction: dir, TMin: 0, TMax: span.Len()}, &payload)

	if payload.count == 0 {
		output.storeColor(x, y, clearColor)
		thickness.storeColor(x, y, [4]float32{})
		return
	}

	points := make([]mgl32.Vec3, payload.count)
	for i := range points {
		points[i] = origin.Add(dir.Mul(payload.t[i]))
	}
	color, alpha, depth := shadeCrossings(points, dir, lightDir, newShadowSampler(light, viewProjLS))

	var out [4]float32
	for i := 0; i < 3; i++ {
		out[i] = color[i]*alpha + clearColor[i]*(1-alpha)
	}
	out[3] = 1
	output.storeColor(x, y, out)
	thickness.storeColor(x, y, [4]float32{depth})
}

// Record the crossing and keep searching.
func anyHitMain(_ *rayContext, payload any, hit hitAttributes) hitDecision {
	payload.(*crossingPayload).insert(hit.T)
	return ignoreHit
}

func closestHitMain(_ *rayContext, payload any, _ hitAttributes) {
	payload.(*crossingPayload).done = true
}

func missMain(_ *rayContext, payload any) {
	payload.(*crossingPayload).done = true
}

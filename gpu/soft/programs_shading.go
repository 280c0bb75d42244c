package soft

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/StarsX/SparseVolumeDXR/types"
)

// Volume material shared by the ray cast and ray trace programs.
const (
	// Extinction coefficient per world unit.
	sigma float32 = 0.5

	// Fraction of the light that reaches fully shadowed samples.
	ambient float32 = 0.3
)

var (
	baseColor = mgl32.Vec3{1.0, 0.85, 0.6}

	// Background written by the ray trace program where nothing is hit.
	clearColor = [4]float32{0, 0.2, 0.4, 1}
)

// Looks up light space K-buffer layers to estimate how much of the object
// lies between a point and the light.
type shadowSampler struct {
	kbuf       *texture
	viewProj   mgl32.Mat4
	depthScale float32
}

func newShadowSampler(kbuf *texture, viewProjLS mgl32.Mat4) shadowSampler {
	return shadowSampler{
		kbuf:       kbuf,
		viewProj:   viewProjLS,
		depthScale: lightDepthAxis(viewProjLS).Len(),
	}
}

// World space vector spanning the light depth range.
func lightDepthAxis(viewProjLS mgl32.Mat4) mgl32.Vec3 {
	return viewProjLS.Inv().Mul4x1(mgl32.Vec4{0, 0, 1, 0}).Vec3()
}

// World distance travelled inside the object from the light to p.
func (s shadowSampler) opticalDepth(p mgl32.Vec3) float32 {
	ndc := types.TransformPoint(s.viewProj, p)
	size := float32(s.kbuf.width)
	x := int(math32.Floor((ndc[0]*0.5 + 0.5) * size))
	y := int(math32.Floor((0.5 - ndc[1]*0.5) * float32(s.kbuf.height)))
	if !s.kbuf.inBounds(x, y) {
		return 0
	}

	var depth float32
	for layer := 0; layer+1 < int(s.kbuf.layers); layer += 2 {
		front := s.kbuf.loadUint(x, y, layer)
		if front == emptyLayer {
			break
		}
		back := s.kbuf.loadUint(x, y, layer+1)
		la := math.Float32frombits(front)
		lb := math.Float32frombits(back)
		depth += max(0, min(lb, ndc[2])-la)
		if back == emptyLayer {
			break
		}
	}
	return depth * s.depthScale
}

// Front to back composite of sorted surface crossings taken pairwise as
// entry and exit points. Returns the non-premultiplied color, its alpha and
// the total thickness crossed.
func shadeCrossings(points []mgl32.Vec3, viewDir, lightDir mgl32.Vec3, shadow shadowSampler) ([3]float32, float32, float32) {
	var (
		color        mgl32.Vec3
		thickness    float32
		transmission float32 = 1
	)
	phase := 0.75 + 0.25*viewDir.Mul(-1).Dot(lightDir)

	for i := 0; i+1 < len(points); i += 2 {
		entry, exit := points[i], points[i+1]
		length := exit.Sub(entry).Len()
		if length <= 0 {
			continue
		}

		mid := entry.Add(exit).Mul(0.5)
		lit := ambient + (1-ambient)*math32.Exp(-sigma*shadow.opticalDepth(mid))
		absorbed := 1 - math32.Exp(-sigma*length)

		color = color.Add(baseColor.Mul(transmission * absorbed * lit * phase))
		transmission *= 1 - absorbed
		thickness += length
	}

	alpha := 1 - transmission
	if alpha > 0 {
		color = color.Mul(1 / alpha)
	}
	return [3]float32{color[0], color[1], color[2]}, alpha, thickness
}

// Reconstruct the world position of a screen point at a depth.
func unproject(screenToWorld mgl32.Mat4, x, y, z float32) mgl32.Vec3 {
	return types.TransformPoint(screenToWorld, mgl32.Vec3{x, y, z})
}

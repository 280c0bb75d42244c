package soft

import (
	"math"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/StarsX/SparseVolumeDXR/gpu"
)

// Value of an empty K-buffer layer: the bits of depth 1.0. Non-negative
// float32 bit patterns compare like the floats they encode.
var emptyLayer = math.Float32bits(1)

// Transform the vertex position by the world-view-projection matrix bound
// at param 0.
func vsBasePass(b *bindings, _ uint32, vertex []byte) mgl32.Vec4 {
	wvp := gpu.Mat4At(b.constants(0))
	return wvp.Mul4x1(readVec3(vertex).Vec4(1))
}

// Insert the fragment depth into the K-buffer bound at param 1 keeping the
// nearest layers in ascending order. Each step swaps the carried depth with
// the layer value when it is nearer and carries the farther one down.
func psDepthPeel(b *bindings, f fragment) ([4]float32, bool) {
	kbuf := b.texture(1, 0)
	if !kbuf.inBounds(f.X, f.Y) {
		return [4]float32{}, false
	}

	z := math.Float32bits(f.Z)
	for layer := 0; layer < int(kbuf.layers); layer++ {
		orig := atomicMin(&kbuf.texels[kbuf.offset(f.X, f.Y, layer)], z)
		if orig == emptyLayer {
			break
		}
		z = max(z, orig)
	}
	return [4]float32{}, false
}

func atomicMin(addr *uint32, v uint32) uint32 {
	for {
		old := atomic.LoadUint32(addr)
		if old <= v {
			return old
		}
		if atomic.CompareAndSwapUint32(addr, old, v) {
			return old
		}
	}
}

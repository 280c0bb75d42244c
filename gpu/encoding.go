package gpu

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Size in bytes of a packed 4x4 float matrix.
const Mat4Size = 64

// Size in bytes of a packed 4 component float vector.
const Vec4Size = 16

// Round v up to a multiple of alignment (a power of two).
func Align(v, alignment uint64) uint64 {
	return (v + alignment - 1) &^ (alignment - 1)
}

// Pack m into dst in mgl32 (column-major) element order.
func PutMat4(dst []byte, m mgl32.Mat4) {
	for i, v := range m {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

func PutVec4(dst []byte, v mgl32.Vec4) {
	for i, c := range v {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(c))
	}
}

func Mat4At(src []byte) mgl32.Mat4 {
	var m mgl32.Mat4
	for i := range m {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return m
}

func Vec4At(src []byte) mgl32.Vec4 {
	var v mgl32.Vec4
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return v
}

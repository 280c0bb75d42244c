package types

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

type Vec2 = mgl32.Vec2
type Vec3 = mgl32.Vec3
type Vec4 = mgl32.Vec4
type Mat4 = mgl32.Mat4

// Define a 3 component vector.
func XYZ(x, y, z float32) Vec3 {
	return Vec3{x, y, z}
}

// Define a 4 component vector.
func XYZW(x, y, z, w float32) Vec4 {
	return Vec4{x, y, z, w}
}

// Calc min component from two vectors
func MinVec3(v1, v2 Vec3) Vec3 {
	out := v1
	for i := 0; i < 3; i++ {
		if v2[i] < out[i] {
			out[i] = v2[i]
		}
	}
	return out
}

// Calc max component from two vectors
func MaxVec3(v1, v2 Vec3) Vec3 {
	out := v1
	for i := 0; i < 3; i++ {
		if v2[i] > out[i] {
			out[i] = v2[i]
		}
	}
	return out
}

// An empty bounding box that any point will expand.
func EmptyBBox() [2]Vec3 {
	return [2]Vec3{
		{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

// Normalize a vector; zero-length vectors are returned unchanged.
func SafeNormalize(v Vec3) Vec3 {
	l := v.Len()
	if l < floatCmpEpsilon {
		return v
	}
	return v.Mul(1 / l)
}

const floatCmpEpsilon = 1e-12

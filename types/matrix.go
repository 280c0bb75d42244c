package types

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Left-handed view matrix looking from eye at focus. Matrices follow the
// column-vector convention (clip = M * v).
func LookAtLH(eye, focus, up Vec3) Mat4 {
	z := SafeNormalize(focus.Sub(eye))
	x := SafeNormalize(up.Cross(z))
	y := z.Cross(x)

	return mgl32.Mat4FromRows(
		x.Vec4(-x.Dot(eye)),
		y.Vec4(-y.Dot(eye)),
		z.Vec4(-z.Dot(eye)),
		Vec4{0, 0, 0, 1},
	)
}

// Left-handed orthographic projection mapping view depth [zn, zf] to [0, 1].
func OrthographicLH(width, height, zn, zf float32) Mat4 {
	r := 1 / (zf - zn)
	return mgl32.Mat4FromRows(
		Vec4{2 / width, 0, 0, 0},
		Vec4{0, 2 / height, 0, 0},
		Vec4{0, 0, r, -zn * r},
		Vec4{0, 0, 0, 1},
	)
}

// Left-handed perspective projection mapping view depth [zn, zf] to [0, 1].
func PerspectiveFovLH(fovY, aspect, zn, zf float32) Mat4 {
	h := float32(1 / math.Tan(float64(fovY)/2))
	w := h / aspect
	r := zf / (zf - zn)
	return mgl32.Mat4FromRows(
		Vec4{w, 0, 0, 0},
		Vec4{0, h, 0, 0},
		Vec4{0, 0, r, -r * zn},
		Vec4{0, 0, 1, 0},
	)
}

// Maps normalized device coordinates to pixel coordinates of a width x height
// viewport with the origin at the top-left corner. Depth is left unchanged.
func ScreenMatrix(width, height float32) Mat4 {
	return mgl32.Mat4FromRows(
		Vec4{0.5 * width, 0, 0, 0.5 * width},
		Vec4{0, -0.5 * height, 0, 0.5 * height},
		Vec4{0, 0, 1, 0},
		Vec4{0, 0, 0, 1},
	)
}

// Transform a point and apply the perspective divide.
func TransformPoint(m Mat4, p Vec3) Vec3 {
	v := m.Mul4x1(p.Vec4(1))
	if v[3] == 0 {
		return v.Vec3()
	}
	return v.Vec3().Mul(1 / v[3])
}

// Return the upper 3x4 block of m in row-major order.
func Rows3x4(m Mat4) [12]float32 {
	var out [12]float32
	for row := 0; row < 3; row++ {
		for col := 0; col < 4; col++ {
			out[row*4+col] = m.At(row, col)
		}
	}
	return out
}

// Rebuild an affine matrix from a row-major 3x4 block.
func FromRows3x4(rows [12]float32) Mat4 {
	return mgl32.Mat4FromRows(
		Vec4{rows[0], rows[1], rows[2], rows[3]},
		Vec4{rows[4], rows[5], rows[6], rows[7]},
		Vec4{rows[8], rows[9], rows[10], rows[11]},
		Vec4{0, 0, 0, 1},
	)
}

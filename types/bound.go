package types

import "github.com/go-gl/mathgl/mgl32"

// A bounding sphere.
type Bound struct {
	Center Vec3
	Radius float32
}

// Derive a bounding sphere from an axis aligned box: the sphere is centered
// on the box and its radius is half the box diagonal.
func BoundFromBBox(bbox [2]Vec3) Bound {
	return Bound{
		Center: bbox[0].Add(bbox[1]).Mul(0.5),
		Radius: bbox[1].Sub(bbox[0]).Len() * 0.5,
	}
}

// Packed (center, radius) form.
func (b Bound) Vec4() Vec4 {
	return b.Center.Vec4(b.Radius)
}

// Object placement: translation plus uniform scale, no rotation.
type Placement struct {
	Position Vec3
	Scale    float32
}

// The world matrix Translate(position) * Scale(scale).
func (p Placement) World() Mat4 {
	return mgl32.Translate3D(p.Position[0], p.Position[1], p.Position[2]).
		Mul4(mgl32.Scale3D(p.Scale, p.Scale, p.Scale))
}

// Packed (position, scale) form.
func (p Placement) Vec4() Vec4 {
	return p.Position.Vec4(p.Scale)
}

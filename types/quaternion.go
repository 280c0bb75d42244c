package types

import "github.com/go-gl/mathgl/mgl32"

// An orbiting camera defined by yaw/pitch angles (radians) and a distance
// around a target point.
type Orbit struct {
	Target   Vec3
	Distance float32
	Yaw      float32
	Pitch    float32
}

// Calculate the eye position. Rotations are applied pitch first (around X)
// then yaw (around Y) to a -Z offset, matching a left-handed camera that
// looks down +Z.
func (o Orbit) Eye() Vec3 {
	q := mgl32.QuatRotate(o.Yaw, Vec3{0, 1, 0}).Mul(mgl32.QuatRotate(o.Pitch, Vec3{1, 0, 0}))
	return o.Target.Add(q.Rotate(Vec3{0, 0, -o.Distance}))
}

// Advance the yaw angle by delta radians.
func (o Orbit) Step(delta float32) Orbit {
	o.Yaw += delta
	return o
}

// Build a view matrix for the orbit.
func (o Orbit) View() Mat4 {
	return LookAtLH(o.Eye(), o.Target, Vec3{0, 1, 0})
}

package volume

import (
	"github.com/StarsX/SparseVolumeDXR/gpu"
	"github.com/StarsX/SparseVolumeDXR/types"
)

// Matrices written to a frame slot by UpdateFrame.
type FrameConstants struct {
	// Object to clip space for the camera and the light.
	WorldViewProj   types.Mat4
	WorldViewProjLS types.Mat4

	// Pixel coordinates plus depth to world space.
	ScreenToWorld types.Mat4

	// World to light clip space.
	ViewProjLS types.Mat4

	// Unit vector from the light focus towards the light.
	LightDir types.Vec3
}

// Compute the frame constants for a camera view-projection matrix.
func (v *Volume) frameConstants(viewProj types.Mat4) FrameConstants {
	world := v.placement.World()

	// The light orbits the world space bound of the object.
	focus := types.TransformPoint(world, v.geometry.bound.Center)
	radius := v.geometry.bound.Radius * abs(v.placement.Scale)
	light := focus.Add(v.opts.LightOffset)

	viewLS := types.LookAtLH(light, focus, types.XYZ(0, 1, 0))
	projLS := types.OrthographicLH(3*radius, 3*radius, zNearLS, zFarLS)
	viewProjLS := projLS.Mul4(viewLS)

	screen := types.ScreenMatrix(float32(v.width), float32(v.height))
	return FrameConstants{
		WorldViewProj:   viewProj.Mul4(world),
		WorldViewProjLS: viewProjLS.Mul4(world),
		ScreenToWorld:   screen.Mul4(viewProj).Inv(),
		ViewProjLS:      viewProjLS,
		LightDir:        types.SafeNormalize(light.Sub(focus)),
	}
}

// UpdateFrame writes the transforms of the current placement and the given
// camera view-projection into frame slot frameIndex. When ray tracing is
// enabled the slot's ray generation record is rewritten as well.
func (v *Volume) UpdateFrame(frameIndex int, viewProj types.Mat4) {
	if !v.checkFrame("UpdateFrame", frameIndex) {
		return
	}
	f := v.frames[frameIndex]
	fc := v.frameConstants(viewProj)

	data := make([]byte, constantBufferSize)
	gpu.PutMat4(data[cameraWVPOffset:], fc.WorldViewProj)
	gpu.PutMat4(data[lightWVPOffset:], fc.WorldViewProjLS)
	gpu.PutMat4(data[perObjectOffset:], fc.ScreenToWorld)
	gpu.PutMat4(data[perObjectOffset+gpu.Mat4Size:], fc.ViewProjLS)
	if err := f.constants.Write(0, data); err != nil {
		v.logger.Errorf("frame %d: writing constants: %v", frameIndex, err)
		return
	}

	f.world = v.placement.World()
	f.updated = true

	if !v.opts.RayTracing {
		return
	}

	payload := make([]byte, rayGenConstantsSize)
	gpu.PutMat4(payload, fc.ScreenToWorld)
	gpu.PutVec4(payload[gpu.Mat4Size:], fc.LightDir.Vec4(0))

	f.rayGenTable.Reset()
	if err := f.rayGenTable.Add(gpu.ShaderRecord{Identifier: v.rayGenID, Payload: payload}); err != nil {
		v.logger.Errorf("frame %d: writing ray generation record: %v", frameIndex, err)
	}
}

// Read back the constants last written to a frame slot.
func (v *Volume) FrameConstants(frameIndex int) (FrameConstants, error) {
	var fc FrameConstants
	if frameIndex < 0 || frameIndex >= len(v.frames) {
		return fc, ErrBadFrameIndex
	}
	f := v.frames[frameIndex]

	data := make([]byte, constantBufferSize)
	if err := f.constants.Read(0, data); err != nil {
		return fc, err
	}
	fc.WorldViewProj = gpu.Mat4At(data[cameraWVPOffset:])
	fc.WorldViewProjLS = gpu.Mat4At(data[lightWVPOffset:])
	fc.ScreenToWorld = gpu.Mat4At(data[perObjectOffset:])
	fc.ViewProjLS = gpu.Mat4At(data[perObjectOffset+gpu.Mat4Size:])

	if f.rayGenTable != nil && f.rayGenTable.Len() > 0 {
		record, err := f.rayGenTable.Record(0)
		if err != nil {
			return fc, err
		}
		fc.LightDir = gpu.Vec4At(record[len(v.rayGenID)+gpu.Mat4Size:]).Vec3()
	}
	return fc, nil
}

func abs(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

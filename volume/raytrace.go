package volume

import (
	"github.com/StarsX/SparseVolumeDXR/gpu"
	"github.com/StarsX/SparseVolumeDXR/types"
)

// RenderDXR records the ray traced path for frame slot frameIndex: depth
// peels from the light and the camera, a ray dispatch over the top level
// structure of the slot and a copy of the output image into colorTarget.
// depthTarget may be nil.
//
// colorTarget is left in the Present state.
func (v *Volume) RenderDXR(cl gpu.CommandList, frameIndex int, colorTarget, depthTarget gpu.Texture) {
	if !v.checkFrame("RenderDXR", frameIndex) {
		return
	}
	if !v.opts.RayTracing {
		msg := "RenderDXR called with ray tracing disabled"
		if v.opts.Strict {
			panic("volume: " + msg)
		}
		v.logger.Warning(msg)
		return
	}
	f := v.frames[frameIndex]
	v.warnStale(f, "RenderDXR")

	if err := v.peelBoth(cl, f, depthTarget, nil); err != nil {
		v.logger.Errorf("render frame %d: depth peel: %v", frameIndex, err)
		return
	}
	if err := v.refreshInstance(cl, f); err != nil {
		v.logger.Errorf("render frame %d: top level build: %v", frameIndex, err)
		return
	}
	if err := v.traceRays(cl, f); err != nil {
		v.logger.Errorf("render frame %d: %v", frameIndex, err)
		return
	}
	if err := v.copyOutput(cl, f, colorTarget); err != nil {
		v.logger.Errorf("render frame %d: output copy: %v", frameIndex, err)
		return
	}
	v.logger.Debugf("recorded ray dispatch for frame %d", frameIndex)
}

// Rebuild the top level structure of f when the world matrix written by the
// last UpdateFrame differs from the one its instance carries.
func (v *Volume) refreshInstance(cl gpu.CommandList, f *frame) error {
	if !f.updated || f.world == f.tlasWorld {
		return nil
	}
	if !v.instanceNotice {
		v.logger.Noticef("placement changed; rebuilding top level structures per frame slot")
		v.instanceNotice = true
	}
	return v.buildTopLevel(cl, f, f.world)
}

func (v *Volume) buildTopLevel(cl gpu.CommandList, f *frame, world types.Mat4) error {
	if err := f.tlas.SetInstances(v.blas.Instance(world, 0)); err != nil {
		return err
	}
	if err := f.tlas.Build(cl, f.tlasScratch); err != nil {
		return err
	}
	f.tlasWorld = world
	return nil
}

func (v *Volume) traceRays(cl gpu.CommandList, f *frame) error {
	if err := v.tracker.Transition(cl, gpu.StateUnorderedAccess, f.output, f.thickness); err != nil {
		return err
	}
	cl.ClearTextureFloat(f.thickness, [4]float32{})

	cl.SetPipelineLayout(v.layouts[globalLayout])
	cl.SetPipeline(v.rayTracingPipeline)
	cl.SetTextures(rtOutputs, f.output, f.thickness)
	cl.SetAccelerationStructure(rtScene, f.tlas.Result())
	cl.SetTextures(rtKBuffers, f.kbuffers[cameraSpace], f.kbuffers[lightSpace])
	cl.SetConstants(rtConstants, f.constants, perObjectOffset)

	cl.DispatchRays(gpu.DispatchRaysDescriptor{
		RayGen:   f.rayGenTable.Range(),
		Miss:     v.missTable.Range(),
		HitGroup: v.hitGroupTable.Range(),
		Width:    v.width,
		Height:   v.height,
	})
	return nil
}

func (v *Volume) copyOutput(cl gpu.CommandList, f *frame, colorTarget gpu.Texture) error {
	if err := v.tracker.Transition(cl, gpu.StateCopySource, f.output); err != nil {
		return err
	}
	if err := v.tracker.Transition(cl, gpu.StateCopyDest, colorTarget); err != nil {
		return err
	}
	cl.CopyTexture(colorTarget, f.output)
	if err := v.tracker.Transition(cl, gpu.StatePresent, colorTarget); err != nil {
		return err
	}
	return v.tracker.Transition(cl, gpu.StateUnorderedAccess, f.output)
}

package volume

import (
	"github.com/StarsX/SparseVolumeDXR/gpu"
)

// Render records the rasterized path for frame slot frameIndex: depth peels
// from the light and the camera followed by a full-screen sparse ray cast
// that blends the volume into colorTarget. Either depth target may be nil.
//
// colorTarget is left in the RenderTarget state.
func (v *Volume) Render(cl gpu.CommandList, frameIndex int, colorTarget, depthTarget, shadowDepthTarget gpu.Texture) {
	if !v.checkFrame("Render", frameIndex) {
		return
	}
	f := v.frames[frameIndex]
	v.warnStale(f, "Render")

	if err := v.peelBoth(cl, f, depthTarget, shadowDepthTarget); err != nil {
		v.logger.Errorf("render frame %d: depth peel: %v", frameIndex, err)
		return
	}
	if err := v.tracker.Transition(cl, gpu.StateRenderTarget, colorTarget); err != nil {
		v.logger.Errorf("render frame %d: %v", frameIndex, err)
		return
	}

	cl.SetPipelineLayout(v.layouts[sparseRayCastLayout])
	cl.SetPipeline(v.pipelines[sparseRayCastPipeline])
	cl.SetConstants(rayCastConstants, f.constants, perObjectOffset)
	cl.SetTextures(rayCastKBuffers, f.kbuffers[cameraSpace], f.kbuffers[lightSpace])
	cl.SetViewport(gpu.FullViewport(v.width, v.height))
	cl.SetRenderTargets([]gpu.Texture{colorTarget}, nil)
	cl.Draw(3, 1)

	v.logger.Debugf("recorded sparse ray cast for frame %d", frameIndex)
}

// Warn when a pass runs on a slot that UpdateFrame never wrote.
func (v *Volume) warnStale(f *frame, op string) {
	if !f.updated {
		v.logger.Warningf("%s: frame %d rendered before UpdateFrame", op, f.index)
	}
}

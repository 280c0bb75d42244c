package volume

import (
	"github.com/StarsX/SparseVolumeDXR/asset/mesh"
	"github.com/StarsX/SparseVolumeDXR/gpu"
)

// Record a depth peel of the mesh into one of the K-buffers of frame f.
// The K-buffer is left in the ShaderResource state. When depthTarget is not
// nil fragments behind its contents are rejected; the target is not written.
func (v *Volume) depthPeel(cl gpu.CommandList, f *frame, kt kbufferType, depthTarget gpu.Texture) error {
	kbuf := f.kbuffers[kt]
	if err := v.tracker.Transition(cl, gpu.StateUnorderedAccess, kbuf); err != nil {
		return err
	}
	cl.ClearTextureUint(kbuf, emptyDepth)

	cl.SetPipelineLayout(v.layouts[depthPeelLayout])
	cl.SetPipeline(v.pipelines[depthPeelPipeline])

	offset := uint64(cameraWVPOffset)
	if kt == lightSpace {
		offset = lightWVPOffset
	}
	cl.SetConstants(peelConstants, f.constants, offset)
	cl.SetTextures(peelKBuffer, kbuf)

	if depthTarget != nil {
		if err := v.tracker.Transition(cl, gpu.StateDepthWrite, depthTarget); err != nil {
			return err
		}
	}
	cl.SetViewport(gpu.FullViewport(kbuf.Width(), kbuf.Height()))
	cl.SetRenderTargets(nil, depthTarget)

	cl.SetVertexBuffer(v.geometry.vertexBuffer, mesh.VertexStride)
	cl.SetIndexBuffer(v.geometry.indexBuffer)
	cl.DrawIndexed(v.geometry.indexCount, 1)

	return v.tracker.Transition(cl, gpu.StateShaderResource, kbuf)
}

// Peel the light space K-buffer followed by the camera space one.
func (v *Volume) peelBoth(cl gpu.CommandList, f *frame, depthTarget, shadowDepthTarget gpu.Texture) error {
	if err := v.depthPeel(cl, f, lightSpace, shadowDepthTarget); err != nil {
		return err
	}
	return v.depthPeel(cl, f, cameraSpace, depthTarget)
}

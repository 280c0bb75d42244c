package soft

import (
	"fmt"

	"github.com/StarsX/SparseVolumeDXR/gpu"
)

type command struct {
	name string
	exec func(ex *executor) error
}

// CommandList records commands for Device.Execute. Argument errors found
// while recording are reported by Close.
type CommandList struct {
	dev      *Device
	commands []command
	closed   bool
	err      error
}

func (cl *CommandList) fail(err error) {
	if cl.err == nil {
		cl.err = err
	}
}

func (cl *CommandList) record(name string, fn func(ex *executor) error) {
	if cl.closed {
		cl.fail(fmt.Errorf("soft device: %s recorded on a closed command list", name))
		return
	}
	cl.commands = append(cl.commands, command{name: name, exec: fn})
}

func (cl *CommandList) buffer(b gpu.Buffer, what string) *buffer {
	if b == nil {
		return nil
	}
	sb, ok := b.(*buffer)
	if !ok || sb.dev != cl.dev {
		cl.fail(fmt.Errorf("soft device: %s: buffer %s was not created by this device", what, b.Label()))
		return nil
	}
	return sb
}

func (cl *CommandList) texture(t gpu.Texture, what string) *texture {
	if t == nil {
		return nil
	}
	st, ok := t.(*texture)
	if !ok || st.dev != cl.dev {
		cl.fail(fmt.Errorf("soft device: %s: texture %s was not created by this device", what, t.Label()))
		return nil
	}
	return st
}

// Names of the recorded commands in order.
func (cl *CommandList) Commands() []string {
	names := make([]string, len(cl.commands))
	for i, cmd := range cl.commands {
		names[i] = cmd.name
	}
	return names
}

func (cl *CommandList) Barrier(barriers ...gpu.Barrier) {
	batch := append([]gpu.Barrier(nil), barriers...)
	for _, b := range batch {
		switch b.Resource.(type) {
		case *buffer, *texture:
		default:
			cl.fail(fmt.Errorf("soft device: barrier: resource %s was not created by this device", b.Resource.Label()))
			return
		}
	}
	cl.record("Barrier", func(ex *executor) error {
		for _, b := range batch {
			if err := ex.transition(b); err != nil {
				return err
			}
		}
		return nil
	})
}

func (cl *CommandList) UAVBarrier(res gpu.Resource) {
	cl.record("UAVBarrier", func(ex *executor) error {
		ex.uavBarrier(res)
		return nil
	})
}

func (cl *CommandList) ClearTextureUint(t gpu.Texture, value uint32) {
	tex := cl.texture(t, "ClearTextureUint")
	cl.record("ClearTextureUint", func(ex *executor) error {
		if err := expectState(tex.label, tex.actual, gpu.StateUnorderedAccess); err != nil {
			return err
		}
		ex.fill(tex.texels, value)
		return nil
	})
}

func (cl *CommandList) ClearTextureFloat(t gpu.Texture, value [4]float32) {
	tex := cl.texture(t, "ClearTextureFloat")
	cl.record("ClearTextureFloat", func(ex *executor) error {
		if err := expectState(tex.label, tex.actual, gpu.StateUnorderedAccess, gpu.StateRenderTarget); err != nil {
			return err
		}
		ex.clearColor(tex, value)
		return nil
	})
}

func (cl *CommandList) ClearDepth(t gpu.Texture, depth float32) {
	tex := cl.texture(t, "ClearDepth")
	cl.record("ClearDepth", func(ex *executor) error {
		if !gpu.IsDepthFormat(tex.format) {
			return fmt.Errorf("%s is not a depth texture", tex.label)
		}
		if err := expectState(tex.label, tex.actual, gpu.StateDepthWrite); err != nil {
			return err
		}
		ex.clearColor(tex, [4]float32{depth})
		return nil
	})
}

func (cl *CommandList) CopyBuffer(dst gpu.Buffer, dstOffset uint64, src gpu.Buffer, srcOffset uint64, size uint64) {
	d := cl.buffer(dst, "CopyBuffer")
	s := cl.buffer(src, "CopyBuffer")
	cl.record("CopyBuffer", func(ex *executor) error {
		return ex.copyBuffer(d, dstOffset, s, srcOffset, size)
	})
}

func (cl *CommandList) CopyTexture(dst, src gpu.Texture) {
	d := cl.texture(dst, "CopyTexture")
	s := cl.texture(src, "CopyTexture")
	cl.record("CopyTexture", func(ex *executor) error {
		return ex.copyTexture(d, s)
	})
}

func (cl *CommandList) SetPipelineLayout(layout gpu.PipelineLayout) {
	l, ok := layout.(*pipelineLayout)
	if !ok || l.local {
		cl.fail(fmt.Errorf("soft device: SetPipelineLayout: invalid layout %s", layout.Label()))
		return
	}
	cl.record("SetPipelineLayout", func(ex *executor) error {
		ex.layout = l
		ex.params = make([]binding, len(l.params))
		return nil
	})
}

func (cl *CommandList) SetPipeline(p gpu.Pipeline) {
	sp, ok := p.(*pipeline)
	if !ok {
		cl.fail(fmt.Errorf("soft device: SetPipeline: pipeline %s was not created by this device", p.Label()))
		return
	}
	cl.record("SetPipeline", func(ex *executor) error {
		ex.pipeline = sp
		return nil
	})
}

func (cl *CommandList) SetConstants(param int, buf gpu.Buffer, offset uint64) {
	b := cl.buffer(buf, "SetConstants")
	cl.record("SetConstants", func(ex *executor) error {
		if offset >= b.Size() {
			return fmt.Errorf("constant offset %d outside %s", offset, b.label)
		}
		return ex.bind(param, binding{kind: gpu.BindingConstants, buf: b, offset: offset})
	})
}

func (cl *CommandList) SetTextures(param int, textures ...gpu.Texture) {
	texs := make([]*texture, len(textures))
	for i, t := range textures {
		texs[i] = cl.texture(t, "SetTextures")
	}
	cl.record("SetTextures", func(ex *executor) error {
		return ex.bind(param, binding{textures: texs})
	})
}

func (cl *CommandList) SetAccelerationStructure(param int, tlas gpu.Buffer) {
	b := cl.buffer(tlas, "SetAccelerationStructure")
	cl.record("SetAccelerationStructure", func(ex *executor) error {
		return ex.bind(param, binding{kind: gpu.BindingAccelerationStructure, buf: b})
	})
}

func (cl *CommandList) SetViewport(vp gpu.Viewport) {
	cl.record("SetViewport", func(ex *executor) error {
		ex.viewport = vp
		return nil
	})
}

func (cl *CommandList) SetRenderTargets(color []gpu.Texture, depth gpu.Texture) {
	targets := make([]*texture, len(color))
	for i, t := range color {
		targets[i] = cl.texture(t, "SetRenderTargets")
	}
	ds := cl.texture(depth, "SetRenderTargets")
	cl.record("SetRenderTargets", func(ex *executor) error {
		ex.colorTargets = targets
		ex.depthTarget = ds
		return nil
	})
}

func (cl *CommandList) SetVertexBuffer(buf gpu.Buffer, stride uint32) {
	b := cl.buffer(buf, "SetVertexBuffer")
	cl.record("SetVertexBuffer", func(ex *executor) error {
		ex.vertexBuffer = b
		ex.vertexStride = stride
		return nil
	})
}

func (cl *CommandList) SetIndexBuffer(buf gpu.Buffer) {
	b := cl.buffer(buf, "SetIndexBuffer")
	cl.record("SetIndexBuffer", func(ex *executor) error {
		ex.indexBuffer = b
		return nil
	})
}

func (cl *CommandList) Draw(vertexCount, instanceCount uint32) {
	cl.record("Draw", func(ex *executor) error {
		return ex.draw(vertexCount, instanceCount, false)
	})
}

func (cl *CommandList) DrawIndexed(indexCount, instanceCount uint32) {
	cl.record("DrawIndexed", func(ex *executor) error {
		return ex.draw(indexCount, instanceCount, true)
	})
}

func (cl *CommandList) BuildAccelerationStructure(desc gpu.BuildDescriptor) {
	dest := cl.buffer(desc.Dest, "BuildAccelerationStructure")
	scratch := cl.buffer(desc.Scratch, "BuildAccelerationStructure")
	inputs := desc.Inputs
	inputs.Geometry = append([]gpu.TriangleGeometry(nil), desc.Inputs.Geometry...)
	for _, g := range inputs.Geometry {
		cl.buffer(g.VertexBuffer, "BuildAccelerationStructure")
		cl.buffer(g.IndexBuffer, "BuildAccelerationStructure")
	}
	instances := cl.buffer(inputs.Instances, "BuildAccelerationStructure")

	name := "BuildBottomLevel"
	if inputs.Level == gpu.TopLevel {
		name = "BuildTopLevel"
	}
	cl.record(name, func(ex *executor) error {
		if inputs.Level == gpu.TopLevel {
			return ex.buildTopLevel(inputs, instances, dest, scratch)
		}
		return ex.buildBottomLevel(inputs, dest, scratch)
	})
}

func (cl *CommandList) DispatchRays(desc gpu.DispatchRaysDescriptor) {
	tables := [3]*buffer{
		cl.buffer(desc.RayGen.Buffer, "DispatchRays"),
		cl.buffer(desc.Miss.Buffer, "DispatchRays"),
		cl.buffer(desc.HitGroup.Buffer, "DispatchRays"),
	}
	cl.record("DispatchRays", func(ex *executor) error {
		return ex.dispatchRays(desc, tables)
	})
}

func (cl *CommandList) Close() error {
	cl.closed = true
	return cl.err
}

func (cl *CommandList) Reset() {
	cl.commands = cl.commands[:0]
	cl.closed = false
	cl.err = nil
}

func expectState(label string, actual gpu.ResourceState, allowed ...gpu.ResourceState) error {
	for _, s := range allowed {
		if actual == s {
			return nil
		}
	}
	return fmt.Errorf("%s is in state %s; expected %v", label, actual, allowed)
}

package soft

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/StarsX/SparseVolumeDXR/asset/mesh"
	"github.com/StarsX/SparseVolumeDXR/gpu"
)

type testRig struct {
	t       *testing.T
	dev     *Device
	cl      *CommandList
	tracker *gpu.StateTracker
}

func newTestRig(t *testing.T, opts ...Option) *testRig {
	dev := New(append([]Option{WithWorkers(3)}, opts...)...)
	return &testRig{
		t:       t,
		dev:     dev,
		cl:      dev.CreateCommandList(),
		tracker: gpu.NewStateTracker(true),
	}
}

// Close and execute the recorded commands, then reset the list.
func (r *testRig) execute() error {
	if err := r.cl.Close(); err != nil {
		return err
	}
	err := r.dev.Execute(r.cl)
	r.cl.Reset()
	return err
}

func (r *testRig) mustExecute() {
	if err := r.execute(); err != nil {
		r.t.Fatal(err)
	}
}

// Record an upload of data into a new default heap buffer left in state.
func (r *testRig) upload(label string, data []byte, state gpu.ResourceState) gpu.Buffer {
	staging, err := r.dev.CreateBuffer(gpu.BufferDescriptor{
		Label:        label + " upload",
		Size:         uint64(len(data)),
		Heap:         gpu.HeapUpload,
		InitialState: gpu.StateCommon,
	})
	if err != nil {
		r.t.Fatal(err)
	}
	if err = staging.Write(0, data); err != nil {
		r.t.Fatal(err)
	}

	buf, err := r.dev.CreateBuffer(gpu.BufferDescriptor{
		Label:        label,
		Size:         uint64(len(data)),
		InitialState: gpu.StateCopyDest,
	})
	if err != nil {
		r.t.Fatal(err)
	}
	r.cl.CopyBuffer(buf, 0, staging, 0, uint64(len(data)))
	if err = r.tracker.Transition(r.cl, state, buf); err != nil {
		r.t.Fatal(err)
	}
	return buf
}

// An upload heap buffer holding a matrix at offset 0.
func (r *testRig) constants(label string, m mgl32.Mat4) gpu.Buffer {
	buf, err := r.dev.CreateBuffer(gpu.BufferDescriptor{
		Label:        label,
		Size:         256,
		Heap:         gpu.HeapUpload,
		InitialState: gpu.StateCommon,
	})
	if err != nil {
		r.t.Fatal(err)
	}
	data := make([]byte, gpu.Mat4Size)
	gpu.PutMat4(data, m)
	if err = buf.Write(0, data); err != nil {
		r.t.Fatal(err)
	}
	return buf
}

func (r *testRig) texture(label string, w, h, layers uint32, format gputypes.TextureFormat, state gpu.ResourceState) gpu.Texture {
	tex, err := r.dev.CreateTexture(gpu.TextureDescriptor{
		Label:        label,
		Width:        w,
		Height:       h,
		ArrayLayers:  layers,
		Format:       format,
		InitialState: state,
	})
	if err != nil {
		r.t.Fatal(err)
	}
	return tex
}

// Pipeline inserting triangle depths into a K-buffer bound at param 1.
func (r *testRig) peelPipeline(depthTest bool) gpu.Pipeline {
	layout, err := r.dev.CreatePipelineLayout(gpu.PipelineLayoutDescriptor{
		Label: "peel layout",
		Params: []gpu.LayoutParam{
			{Kind: gpu.BindingConstants, Count: gpu.Mat4Size},
			{Kind: gpu.BindingUAV, Count: 1},
		},
		InputAssembler: true,
	})
	if err != nil {
		r.t.Fatal(err)
	}

	programs := Programs()
	p, err := r.dev.CreateGraphicsPipeline(gpu.GraphicsPipelineDescriptor{
		Label:        "peel",
		Layout:       layout,
		VertexShader: programs["VSBasePass"],
		PixelShader:  programs["PSDepthPeel"],
		VertexLayout: &gputypes.VertexBufferLayout{
			ArrayStride: mesh.VertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
				{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		DepthFormat:  gputypes.TextureFormatDepth32Float,
		DepthTest:    depthTest,
		DepthCompare: gputypes.CompareFunctionLess,
	})
	if err != nil {
		r.t.Fatal(err)
	}
	return p
}

// Geometry buffers for a list of triangles given as position triplets.
func (r *testRig) triangles(state gpu.ResourceState, tris ...[3]mgl32.Vec3) (gpu.Buffer, gpu.Buffer, *mesh.Mesh) {
	var (
		vertices []mesh.Vertex
		indices  []uint32
	)
	for _, tri := range tris {
		for _, p := range tri {
			indices = append(indices, uint32(len(vertices)))
			vertices = append(vertices, mesh.Vertex{Position: p, Normal: mgl32.Vec3{0, 0, -1}})
		}
	}
	m := mesh.New("test", vertices, indices)
	return r.upload("vertices", m.VertexData(), state), r.upload("indices", m.IndexData(), state), m
}

// Depth values stored in the layers of the K-buffer texel at (x, y).
func (r *testRig) layers(kbuf gpu.Texture, x, y int) []float32 {
	var out []float32
	for layer := uint32(0); layer < kbuf.ArrayLayers(); layer++ {
		texels, err := r.dev.ReadTexels(kbuf, layer)
		if err != nil {
			r.t.Fatal(err)
		}
		bits := texels[y*int(kbuf.Width())+x]
		if bits == emptyLayer {
			break
		}
		out = append(out, math.Float32frombits(bits))
	}
	return out
}

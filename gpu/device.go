package gpu

import "github.com/gogpu/gputypes"

// Memory heap a buffer is allocated from.
type Heap uint8

const (
	// Device local memory; not CPU accessible.
	HeapDefault Heap = iota

	// CPU writable memory used for staging and per-frame constants.
	HeapUpload

	// CPU readable memory used to fetch results.
	HeapReadback
)

// Every device object carries a debug label.
type Object interface {
	Label() string
}

// A resource that can be transitioned between states. State returns the
// state last recorded on the host side, which is what the next barrier
// will transition from.
type Resource interface {
	Object
	State() ResourceState
	SetState(ResourceState)
}

type BufferDescriptor struct {
	Label        string
	Size         uint64
	Heap         Heap
	Usage        gputypes.BufferUsage
	InitialState ResourceState
}

type Buffer interface {
	Resource
	Size() uint64

	// Virtual address of the buffer start. Addresses are used to reference
	// acceleration structures from instance descriptors.
	Address() uint64

	// Copy data into an upload heap buffer.
	Write(offset uint64, data []byte) error

	// Copy data out of an upload or readback heap buffer.
	Read(offset uint64, dst []byte) error
}

type TextureDescriptor struct {
	Label        string
	Width        uint32
	Height       uint32
	ArrayLayers  uint32
	Format       gputypes.TextureFormat
	Usage        gputypes.TextureUsage
	InitialState ResourceState
}

type Texture interface {
	Resource
	Width() uint32
	Height() uint32
	ArrayLayers() uint32
	Format() gputypes.TextureFormat
}

// Kinds of pipeline layout parameters.
type BindingKind uint8

const (
	BindingConstants BindingKind = iota
	BindingSRV
	BindingUAV
	BindingAccelerationStructure
)

func (k BindingKind) String() string {
	switch k {
	case BindingConstants:
		return "constants"
	case BindingSRV:
		return "srv"
	case BindingUAV:
		return "uav"
	case BindingAccelerationStructure:
		return "acceleration structure"
	}
	return "unknown"
}

// A pipeline layout parameter. Count is the number of views in a SRV/UAV
// table or the size in bytes of a constant block.
type LayoutParam struct {
	Kind  BindingKind
	Count int
}

type PipelineLayoutDescriptor struct {
	Label  string
	Params []LayoutParam

	// Allows the layout to be used with vertex buffer input.
	InputAssembler bool

	// Local layouts describe shader record payloads instead of bindings
	// set on the command list.
	Local bool
}

type PipelineLayout interface {
	Object
	Params() []LayoutParam
}

// Color blending applied to render target writes.
type BlendMode uint8

const (
	BlendOpaque BlendMode = iota

	// dst = src.rgb * src.a + dst.rgb * (1 - src.a)
	BlendNonPremultiplied
)

type GraphicsPipelineDescriptor struct {
	Label        string
	Layout       PipelineLayout
	VertexShader []byte
	PixelShader  []byte

	// Nil when the vertex shader generates its own vertices.
	VertexLayout *gputypes.VertexBufferLayout
	Primitive    gputypes.PrimitiveState

	// Depth testing against the bound depth target; the target is only
	// read when DepthWrite is false.
	DepthFormat  gputypes.TextureFormat
	DepthTest    bool
	DepthWrite   bool
	DepthCompare gputypes.CompareFunction

	ColorFormats []gputypes.TextureFormat
	Blend        BlendMode
}

// A hit group pairs a closest-hit and an any-hit export.
type HitGroup struct {
	Name       string
	ClosestHit string
	AnyHit     string
}

type RayTracingPipelineDescriptor struct {
	Label   string
	Library []byte

	HitGroups []HitGroup

	// Layout shared by every shader invoked during a dispatch.
	GlobalLayout PipelineLayout

	// Local layouts keyed by the export that consumes them.
	LocalLayouts map[string]PipelineLayout

	MaxPayloadSize    uint32
	MaxAttributeSize  uint32
	MaxRecursionDepth uint32
}

type Pipeline interface {
	Object
	Layout() PipelineLayout
}

type Viewport struct {
	X, Y          float32
	Width, Height float32
	MinDepth      float32
	MaxDepth      float32
}

// Create a viewport covering a width x height target with the full depth range.
func FullViewport(width, height uint32) Viewport {
	return Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1}
}

// The Device interface exposes the capabilities the renderer needs from a GPU.
type Device interface {
	CreateBuffer(desc BufferDescriptor) (Buffer, error)
	CreateTexture(desc TextureDescriptor) (Texture, error)
	CreatePipelineLayout(desc PipelineLayoutDescriptor) (PipelineLayout, error)
	CreateGraphicsPipeline(desc GraphicsPipelineDescriptor) (Pipeline, error)
	CreateRayTracingPipeline(desc RayTracingPipelineDescriptor) (Pipeline, error)

	SupportsRayTracing() bool

	// Size in bytes of the identifiers returned by ShaderIdentifier.
	ShaderIdentifierSize() int

	// Opaque identifier of a ray tracing export or hit group.
	ShaderIdentifier(p Pipeline, export string) ([]byte, error)

	AccelerationStructurePrebuild(inputs AccelerationStructureInputs) (PrebuildInfo, error)
}

// The CommandList interface records work for later execution by the device.
type CommandList interface {
	Barrier(barriers ...Barrier)

	// Order unordered-access writes to res (or to every resource when res
	// is nil) before subsequent work.
	UAVBarrier(res Resource)

	ClearTextureUint(t Texture, value uint32)
	ClearTextureFloat(t Texture, value [4]float32)
	ClearDepth(t Texture, depth float32)

	CopyBuffer(dst Buffer, dstOffset uint64, src Buffer, srcOffset uint64, size uint64)
	CopyTexture(dst, src Texture)

	SetPipelineLayout(layout PipelineLayout)
	SetPipeline(p Pipeline)
	SetConstants(param int, buf Buffer, offset uint64)
	SetTextures(param int, textures ...Texture)
	SetAccelerationStructure(param int, tlas Buffer)

	SetViewport(vp Viewport)
	SetRenderTargets(color []Texture, depth Texture)
	SetVertexBuffer(buf Buffer, stride uint32)
	SetIndexBuffer(buf Buffer)
	Draw(vertexCount, instanceCount uint32)
	DrawIndexed(indexCount, instanceCount uint32)

	BuildAccelerationStructure(desc BuildDescriptor)
	DispatchRays(desc DispatchRaysDescriptor)

	// Finish recording. Returns the first recording error, if any.
	Close() error

	// Discard recorded commands so the list can be reused.
	Reset()
}

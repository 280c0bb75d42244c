package soft

import (
	"fmt"
	"math"

	"github.com/gogpu/gputypes"

	"github.com/StarsX/SparseVolumeDXR/gpu"
)

type buffer struct {
	dev     *Device
	label   string
	heap    gpu.Heap
	usage   gputypes.BufferUsage
	address uint64
	data    []byte

	// State seen by the host when recording and state reached by executed
	// barriers.
	recorded gpu.ResourceState
	actual   gpu.ResourceState

	// Set once an acceleration structure is built into the buffer.
	as *accelStructure
}

func (b *buffer) Label() string                { return b.label }
func (b *buffer) State() gpu.ResourceState     { return b.recorded }
func (b *buffer) SetState(s gpu.ResourceState) { b.recorded = s }
func (b *buffer) Size() uint64                 { return uint64(len(b.data)) }
func (b *buffer) Address() uint64              { return b.address }

func (b *buffer) Write(offset uint64, data []byte) error {
	if b.heap != gpu.HeapUpload {
		return fmt.Errorf("soft device: write to %s: %w", b.label, gpu.ErrNotMappable)
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("soft device: write of %d bytes at %d overflows %s (%d bytes)", len(data), offset, b.label, len(b.data))
	}
	copy(b.data[offset:], data)
	return nil
}

func (b *buffer) Read(offset uint64, dst []byte) error {
	if b.heap == gpu.HeapDefault {
		return fmt.Errorf("soft device: read from %s: %w", b.label, gpu.ErrNotMappable)
	}
	if offset+uint64(len(dst)) > uint64(len(b.data)) {
		return fmt.Errorf("soft device: read of %d bytes at %d overflows %s (%d bytes)", len(dst), offset, b.label, len(b.data))
	}
	copy(dst, b.data[offset:])
	return nil
}

type texture struct {
	dev    *Device
	label  string
	width  uint32
	height uint32
	layers uint32
	format gputypes.TextureFormat
	usage  gputypes.TextureUsage

	// Texel storage: integer formats store raw values, everything else
	// stores float32 bits. Color formats keep RGBA order.
	channels int
	texels   []uint32

	recorded gpu.ResourceState
	actual   gpu.ResourceState
}

func (t *texture) Label() string                  { return t.label }
func (t *texture) State() gpu.ResourceState       { return t.recorded }
func (t *texture) SetState(s gpu.ResourceState)   { t.recorded = s }
func (t *texture) Width() uint32                  { return t.width }
func (t *texture) Height() uint32                 { return t.height }
func (t *texture) ArrayLayers() uint32            { return t.layers }
func (t *texture) Format() gputypes.TextureFormat { return t.format }

func (t *texture) offset(x, y, layer int) int {
	return ((layer*int(t.height)+y)*int(t.width) + x) * t.channels
}

func (t *texture) loadUint(x, y, layer int) uint32 {
	return t.texels[t.offset(x, y, layer)]
}

func (t *texture) loadFloat(x, y int) float32 {
	return math.Float32frombits(t.texels[t.offset(x, y, 0)])
}

func (t *texture) storeFloat(x, y int, v float32) {
	t.texels[t.offset(x, y, 0)] = math.Float32bits(v)
}

func (t *texture) loadColor(x, y int) [4]float32 {
	var c [4]float32
	base := t.offset(x, y, 0)
	for i := 0; i < t.channels && i < 4; i++ {
		c[i] = math.Float32frombits(t.texels[base+i])
	}
	if t.channels < 4 {
		c[3] = 1
	}
	return c
}

func (t *texture) storeColor(x, y int, c [4]float32) {
	base := t.offset(x, y, 0)
	unorm := isUnorm(t.format)
	for i := 0; i < t.channels && i < 4; i++ {
		v := c[i]
		if unorm {
			v = clamp01(v)
		}
		t.texels[base+i] = math.Float32bits(v)
	}
}

func (t *texture) inBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < int(t.width) && y < int(t.height)
}

func channelCount(format gputypes.TextureFormat) int {
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatRGBA32Float:
		return 4
	case gputypes.TextureFormatRG32Float:
		return 2
	}
	return 1
}

func isUnorm(format gputypes.TextureFormat) bool {
	switch format {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm, gputypes.TextureFormatR8Unorm:
		return true
	}
	return false
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

type pipelineLayout struct {
	label          string
	params         []gpu.LayoutParam
	inputAssembler bool
	local          bool
}

func (l *pipelineLayout) Label() string             { return l.label }
func (l *pipelineLayout) Params() []gpu.LayoutParam { return l.params }

type pipelineKind uint8

const (
	graphicsPipeline pipelineKind = iota
	rayTracingPipeline
)

type pipeline struct {
	label  string
	kind   pipelineKind
	layout *pipelineLayout

	// Graphics state.
	graphics gpu.GraphicsPipelineDescriptor
	vs       vertexProgram
	ps       pixelProgram

	// Ray tracing state.
	lib          *library
	hitGroups    map[string]gpu.HitGroup
	localLayouts map[string]*pipelineLayout
	identifiers  map[string][]byte
	exports      map[string]string
	maxRecursion uint32
}

func (p *pipeline) Label() string              { return p.label }
func (p *pipeline) Layout() gpu.PipelineLayout { return p.layout }

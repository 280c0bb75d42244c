// Package soft implements the gpu device contract on the CPU.
//
// Command lists are recorded and then executed serially by Execute. Draws
// and ray dispatches fan out over horizontal bands of the target using a
// bounded worker group; unordered-access writes use atomics so results do not
// depend on scheduling. Programs are Go functions selected by the name stored
// in the program blob (see Programs).
package soft

import (
	"crypto/sha256"
	"fmt"
	"runtime"
	"sync"

	"github.com/StarsX/SparseVolumeDXR/gpu"
	"github.com/StarsX/SparseVolumeDXR/log"
)

const (
	// Size of the identifiers returned by ShaderIdentifier.
	shaderIdentifierSize = sha256.Size

	// Virtual addresses handed out to buffers are aligned to this size.
	addressAlignment = 256

	// First virtual address handed out; zero is reserved as the null address.
	baseAddress = 0x10000
)

// A device option.
type Option func(*Device)

// Limit the total size of all resources created on the device.
func WithMemoryLimit(bytes uint64) Option {
	return func(d *Device) {
		d.memoryLimit = bytes
	}
}

// Report ray tracing as unsupported.
func WithoutRayTracing() Option {
	return func(d *Device) {
		d.rayTracing = false
	}
}

// Set the number of goroutines used for draws and dispatches.
func WithWorkers(n int) Option {
	return func(d *Device) {
		if n > 0 {
			d.workers = n
		}
	}
}

// Device is a CPU implementation of gpu.Device.
type Device struct {
	logger log.Logger

	mu          sync.Mutex
	nextAddress uint64
	allocated   uint64
	memoryLimit uint64
	nextSerial  uint64

	// Buffers indexed by virtual address for acceleration structure lookups.
	buffers map[uint64]*buffer

	rayTracing bool
	workers    int

	stats Stats
}

// Execution counters.
type Stats struct {
	CommandLists uint64
	Draws        uint64
	Fragments    uint64
	Dispatches   uint64
	Rays         uint64
}

// Create a new device.
func New(opts ...Option) *Device {
	d := &Device{
		logger:      log.New("soft device"),
		nextAddress: baseAddress,
		buffers:     make(map[uint64]*buffer),
		rayTracing:  true,
		workers:     runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Device) SupportsRayTracing() bool {
	return d.rayTracing
}

func (d *Device) ShaderIdentifierSize() int {
	return shaderIdentifierSize
}

// Return a copy of the execution counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// Total bytes allocated by live resources.
func (d *Device) Allocated() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.allocated
}

func (d *Device) reserve(label string, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.memoryLimit != 0 && d.allocated+size > d.memoryLimit {
		return fmt.Errorf("soft device: allocating %d bytes for %s: %w", size, label, gpu.ErrOutOfMemory)
	}
	d.allocated += size
	return nil
}

func (d *Device) CreateBuffer(desc gpu.BufferDescriptor) (gpu.Buffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("soft device: buffer %s has zero size", desc.Label)
	}
	if !gpu.StateAllowed((*buffer)(nil), desc.InitialState) {
		return nil, fmt.Errorf("soft device: buffer %s cannot start in %s: %w", desc.Label, desc.InitialState, gpu.ErrInvalidTransition)
	}
	if err := d.reserve(desc.Label, desc.Size); err != nil {
		return nil, err
	}

	b := &buffer{
		dev:      d,
		label:    desc.Label,
		heap:     desc.Heap,
		usage:    desc.Usage,
		data:     make([]byte, desc.Size),
		recorded: desc.InitialState,
		actual:   desc.InitialState,
	}

	d.mu.Lock()
	b.address = d.nextAddress
	d.nextAddress += gpu.Align(desc.Size, addressAlignment)
	d.buffers[b.address] = b
	d.mu.Unlock()

	d.logger.Debugf("created buffer %s (%d bytes @ %#x)", desc.Label, desc.Size, b.address)
	return b, nil
}

func (d *Device) CreateTexture(desc gpu.TextureDescriptor) (gpu.Texture, error) {
	layers := desc.ArrayLayers
	if layers == 0 {
		layers = 1
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("soft device: texture %s has zero extent", desc.Label)
	}
	texelSize := gpu.TexelSize(desc.Format)
	if texelSize == 0 {
		return nil, fmt.Errorf("soft device: texture %s: unsupported format %v", desc.Label, desc.Format)
	}

	if !gpu.StateAllowed(&texture{format: desc.Format}, desc.InitialState) {
		return nil, fmt.Errorf("soft device: texture %s cannot start in %s: %w", desc.Label, desc.InitialState, gpu.ErrInvalidTransition)
	}

	size := uint64(desc.Width) * uint64(desc.Height) * uint64(layers) * uint64(texelSize)
	if err := d.reserve(desc.Label, size); err != nil {
		return nil, err
	}

	channels := channelCount(desc.Format)
	t := &texture{
		dev:      d,
		label:    desc.Label,
		width:    desc.Width,
		height:   desc.Height,
		layers:   layers,
		format:   desc.Format,
		usage:    desc.Usage,
		channels: channels,
		texels:   make([]uint32, int(desc.Width)*int(desc.Height)*int(layers)*channels),
		recorded: desc.InitialState,
		actual:   desc.InitialState,
	}
	d.logger.Debugf("created texture %s (%dx%dx%d %v)", desc.Label, desc.Width, desc.Height, layers, desc.Format)
	return t, nil
}

// Release the memory held by a resource created by this device.
func (d *Device) Release(res gpu.Resource) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch r := res.(type) {
	case *buffer:
		if _, exists := d.buffers[r.address]; !exists {
			return
		}
		delete(d.buffers, r.address)
		d.allocated -= uint64(len(r.data))
	case *texture:
		if r.texels == nil {
			return
		}
		d.allocated -= uint64(r.width) * uint64(r.height) * uint64(r.layers) * uint64(gpu.TexelSize(r.format))
		r.texels = nil
	}
}

func (d *Device) CreatePipelineLayout(desc gpu.PipelineLayoutDescriptor) (gpu.PipelineLayout, error) {
	for index, param := range desc.Params {
		if param.Count <= 0 {
			return nil, fmt.Errorf("soft device: layout %s: param %d (%s) has no entries", desc.Label, index, param.Kind)
		}
		if desc.Local && param.Kind != gpu.BindingConstants {
			return nil, fmt.Errorf("soft device: local layout %s: param %d must be constants; got %s", desc.Label, index, param.Kind)
		}
	}

	return &pipelineLayout{
		label:          desc.Label,
		params:         append([]gpu.LayoutParam(nil), desc.Params...),
		inputAssembler: desc.InputAssembler,
		local:          desc.Local,
	}, nil
}

func (d *Device) CreateGraphicsPipeline(desc gpu.GraphicsPipelineDescriptor) (gpu.Pipeline, error) {
	layout, ok := desc.Layout.(*pipelineLayout)
	if !ok || layout == nil {
		return nil, fmt.Errorf("soft device: pipeline %s: layout was not created by this device", desc.Label)
	}
	if desc.VertexLayout != nil && !layout.inputAssembler {
		return nil, fmt.Errorf("soft device: pipeline %s: layout %s does not allow vertex input", desc.Label, layout.label)
	}

	vsName, err := programName(desc.VertexShader)
	if err != nil {
		return nil, fmt.Errorf("soft device: pipeline %s: vertex shader: %w", desc.Label, err)
	}
	vs, exists := vertexPrograms[vsName]
	if !exists {
		return nil, fmt.Errorf("soft device: pipeline %s: unknown vertex program %q", desc.Label, vsName)
	}

	psName, err := programName(desc.PixelShader)
	if err != nil {
		return nil, fmt.Errorf("soft device: pipeline %s: pixel shader: %w", desc.Label, err)
	}
	ps, exists := pixelPrograms[psName]
	if !exists {
		return nil, fmt.Errorf("soft device: pipeline %s: unknown pixel program %q", desc.Label, psName)
	}

	d.logger.Debugf("created graphics pipeline %s (%s, %s)", desc.Label, vsName, psName)
	return &pipeline{
		label:    desc.Label,
		kind:     graphicsPipeline,
		layout:   layout,
		graphics: desc,
		vs:       vs,
		ps:       ps,
	}, nil
}

func (d *Device) CreateRayTracingPipeline(desc gpu.RayTracingPipelineDescriptor) (gpu.Pipeline, error) {
	if !d.rayTracing {
		return nil, fmt.Errorf("soft device: pipeline %s: %w", desc.Label, gpu.ErrUnsupported)
	}
	global, ok := desc.GlobalLayout.(*pipelineLayout)
	if !ok || global == nil || global.local {
		return nil, fmt.Errorf("soft device: pipeline %s: invalid global layout", desc.Label)
	}

	libName, err := programName(desc.Library)
	if err != nil {
		return nil, fmt.Errorf("soft device: pipeline %s: library: %w", desc.Label, err)
	}
	lib, exists := libraries[libName]
	if !exists {
		return nil, fmt.Errorf("soft device: pipeline %s: unknown library %q", desc.Label, libName)
	}
	if desc.MaxRecursionDepth == 0 {
		return nil, fmt.Errorf("soft device: pipeline %s: max recursion depth must be at least 1", desc.Label)
	}

	d.mu.Lock()
	d.nextSerial++
	serial := d.nextSerial
	d.mu.Unlock()

	p := &pipeline{
		label:        desc.Label,
		kind:         rayTracingPipeline,
		layout:       global,
		lib:          lib,
		hitGroups:    make(map[string]gpu.HitGroup),
		localLayouts: make(map[string]*pipelineLayout),
		identifiers:  make(map[string][]byte),
		exports:      make(map[string]string),
		maxRecursion: desc.MaxRecursionDepth,
	}

	register := func(export string) {
		id := sha256.Sum256([]byte(fmt.Sprintf("%d/%s/%s", serial, desc.Label, export)))
		p.identifiers[export] = id[:]
		p.exports[string(id[:])] = export
	}
	for name := range lib.rayGen {
		register(name)
	}
	for name := range lib.miss {
		register(name)
	}
	for _, hg := range desc.HitGroups {
		if _, exists := lib.closestHit[hg.ClosestHit]; hg.ClosestHit != "" && !exists {
			return nil, fmt.Errorf("soft device: pipeline %s: hit group %s: unknown closest hit export %q", desc.Label, hg.Name, hg.ClosestHit)
		}
		if _, exists := lib.anyHit[hg.AnyHit]; hg.AnyHit != "" && !exists {
			return nil, fmt.Errorf("soft device: pipeline %s: hit group %s: unknown any hit export %q", desc.Label, hg.Name, hg.AnyHit)
		}
		p.hitGroups[hg.Name] = hg
		register(hg.Name)
	}
	for export, l := range desc.LocalLayouts {
		local, ok := l.(*pipelineLayout)
		if !ok || local == nil || !local.local {
			return nil, fmt.Errorf("soft device: pipeline %s: export %s: invalid local layout", desc.Label, export)
		}
		if _, exists := p.identifiers[export]; !exists {
			return nil, fmt.Errorf("soft device: pipeline %s: local layout bound to unknown export %q", desc.Label, export)
		}
		p.localLayouts[export] = local
	}

	d.logger.Debugf("created ray tracing pipeline %s (library %s)", desc.Label, libName)
	return p, nil
}

func (d *Device) ShaderIdentifier(p gpu.Pipeline, export string) ([]byte, error) {
	rp, ok := p.(*pipeline)
	if !ok || rp.kind != rayTracingPipeline {
		return nil, fmt.Errorf("soft device: %s is not a ray tracing pipeline", p.Label())
	}
	id, exists := rp.identifiers[export]
	if !exists {
		return nil, fmt.Errorf("soft device: pipeline %s has no export %q", rp.label, export)
	}
	return append([]byte(nil), id...), nil
}

// Create a command list for recording work on this device.
func (d *Device) CreateCommandList() *CommandList {
	return &CommandList{dev: d}
}

// Execute a closed command list. Commands run in recording order and
// execution stops at the first failing command.
func (d *Device) Execute(cl gpu.CommandList) error {
	list, ok := cl.(*CommandList)
	if !ok || list.dev != d {
		return fmt.Errorf("soft device: command list was not created by this device")
	}
	if !list.closed {
		return fmt.Errorf("soft device: command list must be closed before execution")
	}
	if list.err != nil {
		return list.err
	}

	ex := newExecutor(d)
	for index, cmd := range list.commands {
		if err := cmd.exec(ex); err != nil {
			return fmt.Errorf("soft device: command %d (%s): %w", index, cmd.name, err)
		}
	}

	d.mu.Lock()
	d.stats.CommandLists++
	d.stats.Draws += ex.draws
	d.stats.Fragments += ex.fragments.Load()
	d.stats.Dispatches += ex.dispatches
	d.stats.Rays += ex.rays.Load()
	d.mu.Unlock()
	return nil
}

package soft

import (
	"fmt"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/StarsX/SparseVolumeDXR/gpu"
)

type binding struct {
	kind     gpu.BindingKind
	buf      *buffer
	offset   uint64
	textures []*texture
	set      bool
}

// Constant block bytes starting at the bound offset.
func (b *binding) constants() []byte {
	return b.buf.data[b.offset:]
}

// Bindings visible to a program invocation.
type bindings struct {
	params []binding

	// Shader record payload for ray tracing exports with a local layout.
	local []byte
}

func (b *bindings) constants(param int) []byte {
	return b.params[param].constants()
}

func (b *bindings) texture(param, index int) *texture {
	return b.params[param].textures[index]
}

// Execution state of a command list.
type executor struct {
	dev *Device

	layout   *pipelineLayout
	params   []binding
	pipeline *pipeline

	viewport     gpu.Viewport
	colorTargets []*texture
	depthTarget  *texture
	vertexBuffer *buffer
	vertexStride uint32
	indexBuffer  *buffer

	// Acceleration structures written since the last UAV barrier covering them.
	pendingUAV map[*buffer]struct{}

	draws      uint64
	dispatches uint64
	fragments  atomic.Uint64
	rays       atomic.Uint64
}

func newExecutor(dev *Device) *executor {
	return &executor{
		dev:        dev,
		pendingUAV: make(map[*buffer]struct{}),
	}
}

func (ex *executor) transition(b gpu.Barrier) error {
	var actual *gpu.ResourceState
	switch r := b.Resource.(type) {
	case *buffer:
		actual = &r.actual
	case *texture:
		actual = &r.actual
	}

	if *actual != b.Before {
		return fmt.Errorf("barrier on %s expects state %s; resource is in %s", b.Resource.Label(), b.Before, *actual)
	}
	if !gpu.ValidResourceTransition(b.Resource, b.Before, b.After) {
		return fmt.Errorf("%w: %s from %s to %s", gpu.ErrInvalidTransition, b.Resource.Label(), b.Before, b.After)
	}
	*actual = b.After
	return nil
}

func (ex *executor) uavBarrier(res gpu.Resource) {
	if res == nil {
		ex.pendingUAV = make(map[*buffer]struct{})
		return
	}
	if b, ok := res.(*buffer); ok {
		delete(ex.pendingUAV, b)
	}
}

func (ex *executor) bind(param int, b binding) error {
	if ex.layout == nil {
		return fmt.Errorf("no pipeline layout set")
	}
	if param < 0 || param >= len(ex.params) {
		return fmt.Errorf("param %d outside layout %s (%d params)", param, ex.layout.label, len(ex.params))
	}

	decl := ex.layout.params[param]
	switch {
	case b.textures != nil:
		if decl.Kind != gpu.BindingSRV && decl.Kind != gpu.BindingUAV {
			return fmt.Errorf("param %d of %s is %s; got texture views", param, ex.layout.label, decl.Kind)
		}
		if len(b.textures) > decl.Count {
			return fmt.Errorf("param %d of %s holds %d views; got %d", param, ex.layout.label, decl.Count, len(b.textures))
		}
		b.kind = decl.Kind
	case b.kind != decl.Kind:
		return fmt.Errorf("param %d of %s is %s; got %s", param, ex.layout.label, decl.Kind, b.kind)
	case b.kind == gpu.BindingConstants && b.offset+uint64(decl.Count) > b.buf.Size():
		return fmt.Errorf("constant block of %d bytes at %d overflows %s", decl.Count, b.offset, b.buf.label)
	}

	b.set = true
	ex.params[param] = b
	return nil
}

// Check that every layout param is bound and that bound resources are in
// the state their binding kind requires.
func (ex *executor) validateBindings() error {
	for index := range ex.params {
		b := &ex.params[index]
		if !b.set {
			return fmt.Errorf("param %d of %s is not bound", index, ex.layout.label)
		}

		switch b.kind {
		case gpu.BindingSRV:
			for _, t := range b.textures {
				if err := expectState(t.label, t.actual, gpu.StateShaderResource); err != nil {
					return err
				}
			}
		case gpu.BindingUAV:
			for _, t := range b.textures {
				if err := expectState(t.label, t.actual, gpu.StateUnorderedAccess); err != nil {
					return err
				}
			}
		case gpu.BindingAccelerationStructure:
			if b.buf.as == nil || b.buf.as.level != gpu.TopLevel {
				return fmt.Errorf("%s does not hold a top level acceleration structure", b.buf.label)
			}
			if _, pending := ex.pendingUAV[b.buf]; pending {
				return fmt.Errorf("%s is read without a UAV barrier after its build", b.buf.label)
			}
		}
	}
	return nil
}

func (ex *executor) copyBuffer(dst *buffer, dstOffset uint64, src *buffer, srcOffset uint64, size uint64) error {
	if src.heap != gpu.HeapUpload {
		if err := expectState(src.label, src.actual, gpu.StateCopySource); err != nil {
			return err
		}
	}
	if err := expectState(dst.label, dst.actual, gpu.StateCopyDest); err != nil {
		return err
	}
	if srcOffset+size > src.Size() || dstOffset+size > dst.Size() {
		return fmt.Errorf("copy of %d bytes from %s+%d to %s+%d is out of range", size, src.label, srcOffset, dst.label, dstOffset)
	}
	copy(dst.data[dstOffset:dstOffset+size], src.data[srcOffset:srcOffset+size])
	return nil
}

func (ex *executor) copyTexture(dst, src *texture) error {
	if err := expectState(src.label, src.actual, gpu.StateCopySource); err != nil {
		return err
	}
	if err := expectState(dst.label, dst.actual, gpu.StateCopyDest); err != nil {
		return err
	}
	if dst.width != src.width || dst.height != src.height || dst.layers != src.layers || dst.channels != src.channels {
		return fmt.Errorf("cannot copy %s (%dx%dx%d) into %s (%dx%dx%d)",
			src.label, src.width, src.height, src.layers, dst.label, dst.width, dst.height, dst.layers)
	}
	copy(dst.texels, src.texels)
	return nil
}

func (ex *executor) fill(texels []uint32, value uint32) {
	for i := range texels {
		texels[i] = value
	}
}

func (ex *executor) clearColor(t *texture, value [4]float32) {
	var texel [4]uint32
	for i := 0; i < t.channels; i++ {
		v := value[i]
		if isUnorm(t.format) {
			v = clamp01(v)
		}
		texel[i] = math.Float32bits(v)
	}
	for i := 0; i < len(t.texels); i += t.channels {
		copy(t.texels[i:i+t.channels], texel[:t.channels])
	}
}

// Split rows [0, height) into bands and process them on the worker group.
func (ex *executor) forEachBand(height int, fn func(y0, y1 int) error) error {
	workers := ex.dev.workers
	rows := (height + workers*4 - 1) / (workers * 4)
	if rows < 1 {
		rows = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for y0 := 0; y0 < height; y0 += rows {
		y0, y1 := y0, min(y0+rows, height)
		g.Go(func() error {
			return fn(y0, y1)
		})
	}
	return g.Wait()
}

package volume

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/StarsX/SparseVolumeDXR/accel"
	"github.com/StarsX/SparseVolumeDXR/asset/mesh"
	"github.com/StarsX/SparseVolumeDXR/gpu"
	"github.com/StarsX/SparseVolumeDXR/types"
)

// Init loads the mesh at meshPath and records the commands that upload it
// and build the acceleration structures into cl. The host must execute cl
// before the first frame is rendered.
//
// Init may be called once. If any step fails an *InitError is returned and
// the volume moves to the Failed state for good.
func (v *Volume) Init(cl gpu.CommandList, width, height uint32, colorFormat, depthFormat gputypes.TextureFormat, meshPath string, placement types.Placement) error {
	if v.state != Uninitialized {
		return &InitError{Step: "start initialization", Err: fmt.Errorf("%w (state %s)", ErrAlreadyInit, v.state)}
	}
	v.state = Initializing
	start := time.Now()

	v.width, v.height = width, height
	v.colorFormat, v.depthFormat = colorFormat, depthFormat
	v.placement = placement

	var m *mesh.Mesh
	steps := []struct {
		name string
		run  func() error
	}{
		{"validate options", v.validateOptions},
		{"load mesh", func() (err error) {
			m, err = v.loadGeometry(meshPath)
			return err
		}},
		{"upload geometry", func() error { return v.uploadGeometry(cl, m) }},
		{"create pipeline layouts", v.createPipelineLayouts},
		{"create pipelines", v.createPipelines},
		{"create frame resources", v.createFrameResources},
		{"build acceleration structures", func() error { return v.buildAccelerationStructures(cl) }},
		{"create shader tables", v.createShaderTables},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			v.state = Failed
			v.logger.Errorf("init failed while trying to %s: %v", step.name, err)
			return &InitError{Step: step.name, Err: err}
		}
	}

	v.state = Ready
	v.logger.Noticef("initialized %dx%d volume with %d frame slots (ray tracing: %t) in %d ms",
		width, height, len(v.frames), v.opts.RayTracing, time.Since(start).Nanoseconds()/1e6)
	return nil
}

func (v *Volume) validateOptions() error {
	switch {
	case v.opts.FrameCount < 2 || v.opts.FrameCount > 3:
		return fmt.Errorf("%w; got %d", ErrBadFrameCount, v.opts.FrameCount)
	case v.width == 0 || v.height == 0:
		return fmt.Errorf("volume: invalid viewport %dx%d", v.width, v.height)
	case v.opts.ShadowMapSize == 0:
		return fmt.Errorf("volume: invalid shadow map size %d", v.opts.ShadowMapSize)
	case v.opts.RayTracing && !v.dev.SupportsRayTracing():
		return ErrNoRayTracing
	}
	return nil
}

// Record the bottom level build and one top level build per frame slot,
// then move the geometry to its drawing states.
func (v *Volume) buildAccelerationStructures(cl gpu.CommandList) error {
	if !v.opts.RayTracing {
		return nil
	}

	g := &v.geometry
	v.blas = accel.NewBottomLevel("bottom level", gpu.TriangleGeometry{
		VertexBuffer: g.vertexBuffer,
		VertexStride: mesh.VertexStride,
		VertexCount:  g.vertexCount,
		VertexFormat: gputypes.VertexFormatFloat32x3,
		IndexBuffer:  g.indexBuffer,
		IndexCount:   g.indexCount,
	})
	if err := v.blas.PreBuild(v.dev); err != nil {
		return err
	}
	if err := v.blas.Allocate(v.dev); err != nil {
		return err
	}

	var err error
	if v.blasScratch, err = accel.NewScratch(v.dev, "bottom level scratch", v.blas.Info().ScratchSize); err != nil {
		return err
	}
	if err = v.blas.Build(cl, v.blasScratch); err != nil {
		return err
	}

	world := v.placement.World()
	for _, f := range v.frames {
		f.tlas = accel.NewTopLevel(fmt.Sprintf("top level %d", f.index), 1)
		if err = f.tlas.PreBuild(v.dev); err != nil {
			return err
		}
		if err = f.tlas.Allocate(v.dev); err != nil {
			return err
		}
		if f.tlasScratch, err = accel.NewScratch(v.dev, fmt.Sprintf("top level scratch %d", f.index), f.tlas.Info().ScratchSize); err != nil {
			return err
		}
		if err = v.buildTopLevel(cl, f, world); err != nil {
			return err
		}
	}

	return v.drawableGeometry(cl)
}

// Fetch the shader identifiers and fill the hit group, miss and ray
// generation tables. Ray generation records get their payload from
// UpdateFrame.
func (v *Volume) createShaderTables() error {
	if !v.opts.RayTracing {
		return nil
	}

	var err error
	if v.rayGenID, err = v.dev.ShaderIdentifier(v.rayTracingPipeline, rayGenName); err != nil {
		return err
	}
	if v.hitGroupTable, err = v.singleRecordTable("hit group table", hitGroupName); err != nil {
		return err
	}
	if v.missTable, err = v.singleRecordTable("miss table", missName); err != nil {
		return err
	}

	for _, f := range v.frames {
		err = f.rayGenTable.Add(gpu.ShaderRecord{
			Identifier: v.rayGenID,
			Payload:    make([]byte, rayGenConstantsSize),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (v *Volume) singleRecordTable(label, export string) (*gpu.ShaderTable, error) {
	id, err := v.dev.ShaderIdentifier(v.rayTracingPipeline, export)
	if err != nil {
		return nil, err
	}
	table, err := gpu.NewShaderTable(v.dev, label, 1, 0)
	if err != nil {
		return nil, err
	}
	if err = table.Add(gpu.ShaderRecord{Identifier: id}); err != nil {
		return nil, err
	}
	return table, nil
}

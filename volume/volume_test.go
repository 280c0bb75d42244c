package volume

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/StarsX/SparseVolumeDXR/asset/mesh"
	"github.com/StarsX/SparseVolumeDXR/gpu"
	"github.com/StarsX/SparseVolumeDXR/gpu/soft"
	"github.com/StarsX/SparseVolumeDXR/types"
)

func TestCubeLayers(t *testing.T) {
	for _, rayTracing := range []bool{false, true} {
		opts := testOptions()
		opts.RayTracing = rayTracing
		r := newTestRig(t, opts)
		r.mustInit()

		r.vol.UpdateFrame(0, testViewProj(types.XYZ(0, 0, -5)))
		color := r.colorTarget()
		r.vol.Render(r.cl, 0, color, r.depthTarget(testWidth), r.depthTarget(opts.ShadowMapSize))
		r.execute()

		camera, light := r.vol.KBuffers(0)
		covered := 0
		for i, count := range r.layerCounts(camera) {
			switch count {
			case 0:
			case 2:
				covered++
			default:
				t.Fatalf("[ray tracing %t] texel %d: expected 0 or 2 layers; got %d", rayTracing, i, count)
			}
		}
		if covered == 0 {
			t.Fatalf("[ray tracing %t] expected the cube to cover some pixels", rayTracing)
		}
		center := (testHeight/2)*testWidth + testWidth/2
		if got := r.layerCounts(camera)[center]; got != 2 {
			t.Fatalf("[ray tracing %t] expected 2 layers at the center; got %d", rayTracing, got)
		}

		lightCovered := 0
		for _, count := range r.layerCounts(light) {
			if count%2 != 0 {
				t.Fatalf("[ray tracing %t] expected an even light space layer count; got %d", rayTracing, count)
			}
			if count > 0 {
				lightCovered++
			}
		}
		if lightCovered == 0 {
			t.Fatalf("[ray tracing %t] expected the cube to cover some light space texels", rayTracing)
		}

		colors := r.colors(color)
		if colors[0] != ClearColor {
			t.Fatalf("[ray tracing %t] expected background %v; got %v", rayTracing, ClearColor, colors[0])
		}
		if colors[center] == ClearColor {
			t.Fatalf("[ray tracing %t] expected the center pixel to be shaded", rayTracing)
		}
	}
}

func TestUpdateFrameScreenToWorld(t *testing.T) {
	opts := testOptions()
	opts.FrameCount = 3
	r := newTestRig(t, opts)
	r.mustInit()

	eyes := []types.Vec3{
		types.XYZ(0, 0, -5),
		types.XYZ(3, 1, -4),
		types.XYZ(-2, 4, 6),
	}
	for i, eye := range eyes {
		r.vol.UpdateFrame(i, testViewProj(eye))
	}

	screen := types.ScreenMatrix(testWidth, testHeight)
	for i, eye := range eyes {
		viewProj := testViewProj(eye)
		fc, err := r.vol.FrameConstants(i)
		if err != nil {
			t.Fatal(err)
		}

		if exp := screen.Mul4(viewProj).Inv(); !matApproxEqual(fc.ScreenToWorld, exp, 1e-4) {
			t.Fatalf("[frame %d] expected screen to world\n%v\ngot\n%v", i, exp, fc.ScreenToWorld)
		}
		if !matApproxEqual(fc.WorldViewProj, viewProj, 1e-6) {
			t.Fatalf("[frame %d] expected identity placement to keep the view projection", i)
		}

		// The screen center at depth 0 lies on the near plane in front of the eye.
		p := types.TransformPoint(fc.ScreenToWorld, types.XYZ(testWidth/2, testHeight/2, 0))
		dir := types.SafeNormalize(p.Sub(eye))
		if exp := types.SafeNormalize(eye.Mul(-1)); dir.Sub(exp).Len() > 1e-3 {
			t.Fatalf("[frame %d] expected the screen center to look along %v; got %v", i, exp, dir)
		}
	}
}

func TestUpdateFrameLightSpace(t *testing.T) {
	opts := testOptions()
	r := newTestRig(t, opts)
	if err := r.init(types.Placement{Position: types.XYZ(1, 2, 3), Scale: 2}); err != nil {
		t.Fatal(err)
	}
	r.vol.UpdateFrame(1, testViewProj(types.XYZ(0, 0, -5)))

	fc, err := r.vol.FrameConstants(1)
	if err != nil {
		t.Fatal(err)
	}

	// The light looks at the world space center of the bound.
	center := types.TransformPoint(fc.ViewProjLS, types.XYZ(1, 2, 3))
	if !approxEqual(center[0], 0, 1e-4) || !approxEqual(center[1], 0, 1e-4) {
		t.Fatalf("expected the bound center at the light space origin; got %v", center)
	}
	expZ := (opts.LightOffset.Len() - zNearLS) / (zFarLS - zNearLS)
	if !approxEqual(center[2], expZ, 1e-4) {
		t.Fatalf("expected light space depth %f; got %f", expZ, center[2])
	}

	if exp := types.SafeNormalize(opts.LightOffset); fc.LightDir.Sub(exp).Len() > 1e-5 {
		t.Fatalf("expected light direction %v; got %v", exp, fc.LightDir)
	}
	if exp := fc.ViewProjLS.Mul4(r.vol.Placement().World()); !matApproxEqual(fc.WorldViewProjLS, exp, 1e-6) {
		t.Fatalf("expected light world-view-projection\n%v\ngot\n%v", exp, fc.WorldViewProjLS)
	}
}

func TestUpdateFrameIdempotence(t *testing.T) {
	r := newTestRig(t, testOptions())
	r.mustInit()
	viewProj := testViewProj(types.XYZ(1, 2, -5))

	snapshot := func() ([]byte, []byte) {
		f := r.vol.frames[0]
		consts := make([]byte, constantBufferSize)
		if err := f.constants.Read(0, consts); err != nil {
			t.Fatal(err)
		}
		record, err := f.rayGenTable.Record(0)
		if err != nil {
			t.Fatal(err)
		}
		return consts, record
	}

	r.vol.UpdateFrame(0, viewProj)
	consts1, record1 := snapshot()
	r.vol.UpdateFrame(0, viewProj)
	consts2, record2 := snapshot()

	if !bytes.Equal(consts1, consts2) {
		t.Fatal("expected repeated updates to write identical constants")
	}
	if !bytes.Equal(record1, record2) {
		t.Fatal("expected repeated updates to write identical ray generation records")
	}
	if got := r.vol.frames[0].rayGenTable.Len(); got != 1 {
		t.Fatalf("expected 1 ray generation record; got %d", got)
	}
}

func TestFrameSlotIsolation(t *testing.T) {
	r := newTestRig(t, testOptions())
	r.mustInit()

	r.vol.UpdateFrame(0, testViewProj(types.XYZ(0, 0, -5)))
	before, err := r.vol.FrameConstants(0)
	if err != nil {
		t.Fatal(err)
	}

	r.vol.UpdateFrame(1, testViewProj(types.XYZ(4, 0, 0)))
	r.vol.UpdateFrame(2, testViewProj(types.XYZ(0, 4, 1)))

	after, err := r.vol.FrameConstants(0)
	if err != nil {
		t.Fatal(err)
	}
	if before != after {
		t.Fatal("expected updates of other slots to leave slot 0 untouched")
	}

	other, err := r.vol.FrameConstants(1)
	if err != nil {
		t.Fatal(err)
	}
	if other.ScreenToWorld == before.ScreenToWorld {
		t.Fatal("expected slot 1 to hold its own transforms")
	}
}

func TestInstanceTransformRoundTrip(t *testing.T) {
	r := newTestRig(t, testOptions())
	r.mustInit()

	placement := types.Placement{Position: types.XYZ(0.5, -0.25, 1), Scale: 1.5}
	r.vol.SetPlacement(placement)
	r.vol.UpdateFrame(2, testViewProj(types.XYZ(0, 0, -6)))
	r.vol.RenderDXR(r.cl, 2, r.colorTarget(), nil)
	r.execute()

	descs, err := r.vol.frames[2].tlas.Instances()
	if err != nil {
		t.Fatal(err)
	}
	if len(descs) != 1 {
		t.Fatalf("expected 1 instance; got %d", len(descs))
	}
	if got := types.FromRows3x4(descs[0].Transform); !matApproxEqual(got, placement.World(), 1e-6) {
		t.Fatalf("expected instance transform\n%v\ngot\n%v", placement.World(), got)
	}
	if descs[0].BottomLevel != r.vol.blas.Result().Address() {
		t.Fatalf("expected instance to reference bottom level at %#x; got %#x", r.vol.blas.Result().Address(), descs[0].BottomLevel)
	}

	// Slots that were not rendered keep the initial placement.
	descs, err = r.vol.frames[0].tlas.Instances()
	if err != nil {
		t.Fatal(err)
	}
	if got := types.FromRows3x4(descs[0].Transform); !matApproxEqual(got, types.Placement{Scale: 1}.World(), 1e-6) {
		t.Fatalf("expected slot 0 to keep the identity transform; got\n%v", got)
	}
}

func TestAccelerationStructureSizes(t *testing.T) {
	opts := testOptions()
	opts.Importer = importerFunc(func(string) (*mesh.Mesh, error) {
		return mesh.New("triangle", []mesh.Vertex{
			{Position: types.XYZ(0, 0, 0)},
			{Position: types.XYZ(1, 0, 0)},
			{Position: types.XYZ(0, 1, 0)},
		}, []uint32{0, 1, 2}), nil
	})
	r := newTestRig(t, opts)
	r.mustInit()

	if info := r.vol.blas.Info(); info.ResultSize == 0 || info.ScratchSize == 0 {
		t.Fatalf("expected non-zero bottom level sizes; got %+v", info)
	}
	for i, f := range r.vol.frames {
		if info := f.tlas.Info(); info.ResultSize == 0 || info.ScratchSize == 0 {
			t.Fatalf("[frame %d] expected non-zero top level sizes; got %+v", i, info)
		}
		if got := f.tlas.InstanceCount(); got != 1 {
			t.Fatalf("[frame %d] expected 1 instance; got %d", i, got)
		}
	}
	if got := r.vol.TriangleCount(); got != 1 {
		t.Fatalf("expected 1 triangle; got %d", got)
	}
}

func TestInitFailures(t *testing.T) {
	specs := []struct {
		descr   string
		opts    func(*Options)
		devOpts []soft.Option
		step    string
		exp     error
	}{
		{
			descr: "zero triangles",
			opts: func(o *Options) {
				o.Importer = importerFunc(func(string) (*mesh.Mesh, error) {
					return mesh.New("empty", []mesh.Vertex{{}, {}, {}}, nil), nil
				})
			},
			step: "load mesh",
			exp:  ErrDegenerateMesh,
		},
		{
			descr: "zero radius",
			opts: func(o *Options) {
				o.Importer = importerFunc(func(string) (*mesh.Mesh, error) {
					return mesh.New("point", []mesh.Vertex{{}, {}, {}}, []uint32{0, 1, 2}), nil
				})
			},
			step: "load mesh",
			exp:  ErrZeroRadius,
		},
		{
			descr: "bad frame count",
			opts:  func(o *Options) { o.FrameCount = 4 },
			step:  "validate options",
			exp:   ErrBadFrameCount,
		},
		{
			descr:   "no ray tracing support",
			devOpts: []soft.Option{soft.WithoutRayTracing()},
			step:    "validate options",
			exp:     ErrNoRayTracing,
		},
		{
			descr: "no programs",
			opts:  func(o *Options) { o.Programs = nil },
			step:  "create pipelines",
			exp:   ErrNoPrograms,
		},
		{
			descr:   "out of memory",
			devOpts: []soft.Option{soft.WithMemoryLimit(4096)},
			step:    "create frame resources",
			exp:     gpu.ErrOutOfMemory,
		},
	}

	for specIndex, spec := range specs {
		opts := testOptions()
		if spec.opts != nil {
			spec.opts(&opts)
		}
		r := newTestRig(t, opts, spec.devOpts...)

		err := r.init(types.Placement{Scale: 1})
		var initErr *InitError
		if !errors.As(err, &initErr) {
			t.Fatalf("[spec %d: %s] expected an *InitError; got %v", specIndex, spec.descr, err)
		}
		if initErr.Step != spec.step {
			t.Fatalf("[spec %d: %s] expected failing step %q; got %q", specIndex, spec.descr, spec.step, initErr.Step)
		}
		if !errors.Is(err, spec.exp) {
			t.Fatalf("[spec %d: %s] expected error to wrap %v; got %v", specIndex, spec.descr, spec.exp, err)
		}
		if r.vol.State() != Failed {
			t.Fatalf("[spec %d: %s] expected state Failed; got %s", specIndex, spec.descr, r.vol.State())
		}

		// Failed volumes stay failed.
		err = r.init(types.Placement{Scale: 1})
		if !errors.Is(err, ErrAlreadyInit) {
			t.Fatalf("[spec %d: %s] expected a second Init to fail with ErrAlreadyInit; got %v", specIndex, spec.descr, err)
		}
	}
}

func TestInitImportError(t *testing.T) {
	opts := testOptions()
	opts.Importer = mesh.WavefrontImporter{}
	r := newTestRig(t, opts)

	err := r.init(types.Placement{Scale: 1})
	var importErr *mesh.ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("expected a *mesh.ImportError; got %v", err)
	}
	if !strings.Contains(err.Error(), "load mesh") {
		t.Fatalf("expected the error to name the failing step; got %q", err.Error())
	}
}

func TestStateMachine(t *testing.T) {
	expPanic := func(descr string, fn func()) {
		defer func() {
			if recover() == nil {
				t.Fatalf("[%s] expected a panic", descr)
			}
		}()
		fn()
	}

	r := newTestRig(t, testOptions())
	if r.vol.State() != Uninitialized {
		t.Fatalf("expected state Uninitialized; got %s", r.vol.State())
	}
	expPanic("update before init", func() { r.vol.UpdateFrame(0, types.Mat4{}) })
	expPanic("render before init", func() { r.vol.Render(r.cl, 0, nil, nil, nil) })

	r.mustInit()
	if r.vol.State() != Ready {
		t.Fatalf("expected state Ready; got %s", r.vol.State())
	}
	expPanic("frame index out of range", func() { r.vol.UpdateFrame(3, types.Mat4{}) })
	expPanic("negative frame index", func() { r.vol.RenderDXR(r.cl, -1, nil, nil) })

	// Without strict mode misuse is logged and ignored.
	opts := testOptions()
	opts.Strict = false
	lenient := newTestRig(t, opts)
	lenient.vol.UpdateFrame(0, types.Mat4{})
	lenient.vol.RenderDXR(lenient.cl, 0, nil, nil)
	if got := len(lenient.cl.Commands()); got != 0 {
		t.Fatalf("expected no recorded commands; got %d", got)
	}

	r.vol.Close()
	if r.vol.State() != Uninitialized {
		t.Fatalf("expected Close to reset the state; got %s", r.vol.State())
	}
	if r.vol.FrameCount() != 0 {
		t.Fatalf("expected Close to release the frame slots; got %d", r.vol.FrameCount())
	}
}

func TestRayTracedBackgroundAndThickness(t *testing.T) {
	r := newTestRig(t, testOptions())
	r.mustInit()

	r.vol.UpdateFrame(1, testViewProj(types.XYZ(0, 0, -5)))
	color := r.colorTarget()
	r.vol.RenderDXR(r.cl, 1, color, nil)
	r.execute()

	if color.State() != gpu.StatePresent {
		t.Fatalf("expected the color target to end in Present; got %s", color.State())
	}

	output, thickness := r.vol.RayTraceOutputs(1)
	if output.State() != gpu.StateUnorderedAccess {
		t.Fatalf("expected the output to return to UnorderedAccess; got %s", output.State())
	}
	colors := r.colors(color)
	outputs := r.colors(output)
	depths := r.colors(thickness)

	for _, i := range []int{0, testWidth - 1, testWidth * testHeight / 2} {
		if colors[i] != ClearColor {
			t.Fatalf("[pixel %d] expected background %v; got %v", i, ClearColor, colors[i])
		}
		if depths[i][0] != 0 {
			t.Fatalf("[pixel %d] expected zero thickness; got %f", i, depths[i][0])
		}
	}
	for i := range colors {
		if colors[i] != outputs[i] {
			t.Fatalf("[pixel %d] expected the copy %v to match the output %v", i, colors[i], outputs[i])
		}
	}

	center := (testHeight/2)*testWidth + testWidth/2
	if got := depths[center][0]; !approxEqual(got, 1, 0.05) {
		t.Fatalf("expected a thickness close to 1 at the center; got %f", got)
	}
	if colors[center][3] != 1 {
		t.Fatalf("expected an opaque composite; got alpha %f", colors[center][3])
	}
}

func TestRasterAndRayTracedPathsAgree(t *testing.T) {
	render := func(rayTraced bool) [][4]float32 {
		r := newTestRig(t, testOptions())
		r.mustInit()
		r.vol.UpdateFrame(0, testViewProj(types.XYZ(1, 1, -5)))
		color := r.colorTarget()
		if rayTraced {
			r.vol.RenderDXR(r.cl, 0, color, nil)
		} else {
			r.vol.Render(r.cl, 0, color, nil, nil)
		}
		r.execute()
		return r.colors(color)
	}

	raster, traced := render(false), render(true)
	center := (testHeight/2)*testWidth + testWidth/2
	for c := 0; c < 3; c++ {
		if !approxEqual(raster[center][c], traced[center][c], 0.02) {
			t.Fatalf("expected matching center colors; raster %v, ray traced %v", raster[center], traced[center])
		}
	}
	if raster[0] != traced[0] {
		t.Fatalf("expected matching backgrounds; raster %v, ray traced %v", raster[0], traced[0])
	}
}

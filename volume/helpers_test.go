package volume

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/StarsX/SparseVolumeDXR/asset/mesh"
	"github.com/StarsX/SparseVolumeDXR/gpu"
	"github.com/StarsX/SparseVolumeDXR/gpu/soft"
	"github.com/StarsX/SparseVolumeDXR/types"
)

const (
	testWidth  = 64
	testHeight = 64
)

type importerFunc func(path string) (*mesh.Mesh, error)

func (fn importerFunc) Import(path string) (*mesh.Mesh, error) {
	return fn(path)
}

// A unit cube centered at the origin.
func unitCube() *mesh.Mesh {
	var vertices []mesh.Vertex
	for i := 0; i < 8; i++ {
		p := types.XYZ(float32(i&1)-0.5, float32(i>>1&1)-0.5, float32(i>>2&1)-0.5)
		vertices = append(vertices, mesh.Vertex{Position: p, Normal: types.SafeNormalize(p)})
	}

	faces := [][4]uint32{
		{0, 2, 6, 4}, {1, 5, 7, 3},
		{0, 4, 5, 1}, {2, 3, 7, 6},
		{0, 1, 3, 2}, {4, 6, 7, 5},
	}
	var indices []uint32
	for _, f := range faces {
		indices = append(indices, f[0], f[1], f[2], f[0], f[2], f[3])
	}
	return mesh.New("cube", vertices, indices)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.ShadowMapSize = 128
	opts.Strict = true
	opts.Programs = soft.Programs()
	opts.Importer = importerFunc(func(string) (*mesh.Mesh, error) {
		return unitCube(), nil
	})
	return opts
}

// Camera looking at the origin from -Z.
func testViewProj(eye types.Vec3) types.Mat4 {
	view := types.LookAtLH(eye, types.Vec3{}, types.XYZ(0, 1, 0))
	proj := types.PerspectiveFovLH(math.Pi/4, float32(testWidth)/testHeight, 0.1, 100)
	return proj.Mul4(view)
}

type testRig struct {
	t   *testing.T
	dev *soft.Device
	cl  *soft.CommandList
	vol *Volume
}

func newTestRig(t *testing.T, opts Options, devOpts ...soft.Option) *testRig {
	dev := soft.New(append([]soft.Option{soft.WithWorkers(4)}, devOpts...)...)
	return &testRig{
		t:   t,
		dev: dev,
		cl:  dev.CreateCommandList(),
		vol: New(dev, opts),
	}
}

func (r *testRig) init(placement types.Placement) error {
	err := r.vol.Init(r.cl, testWidth, testHeight, gputypes.TextureFormatRGBA32Float, gputypes.TextureFormatDepth32Float, "cube.obj", placement)
	if err != nil {
		r.cl.Reset()
		return err
	}
	r.execute()
	return nil
}

func (r *testRig) mustInit() {
	if err := r.init(types.Placement{Scale: 1}); err != nil {
		r.t.Fatal(err)
	}
}

func (r *testRig) execute() {
	if err := r.cl.Close(); err != nil {
		r.t.Fatal(err)
	}
	err := r.dev.Execute(r.cl)
	r.cl.Reset()
	if err != nil {
		r.t.Fatal(err)
	}
}

// A host color target cleared to the background color.
func (r *testRig) colorTarget() gpu.Texture {
	tex, err := r.dev.CreateTexture(gpu.TextureDescriptor{
		Label:        "back buffer",
		Width:        testWidth,
		Height:       testHeight,
		Format:       gputypes.TextureFormatRGBA32Float,
		InitialState: gpu.StateRenderTarget,
	})
	if err != nil {
		r.t.Fatal(err)
	}
	r.cl.ClearTextureFloat(tex, ClearColor)
	return tex
}

func (r *testRig) depthTarget(size uint32) gpu.Texture {
	tex, err := r.dev.CreateTexture(gpu.TextureDescriptor{
		Label:        "depth",
		Width:        size,
		Height:       size,
		Format:       gputypes.TextureFormatDepth32Float,
		InitialState: gpu.StateDepthWrite,
	})
	if err != nil {
		r.t.Fatal(err)
	}
	r.cl.ClearDepth(tex, 1)
	return tex
}

func (r *testRig) colors(tex gpu.Texture) [][4]float32 {
	colors, err := r.dev.ReadColors(tex)
	if err != nil {
		r.t.Fatal(err)
	}
	return colors
}

// Number of filled layers in each texel of a K-buffer; also checks that
// the filled layers are sorted.
func (r *testRig) layerCounts(kbuf gpu.Texture) []int {
	w, h := int(kbuf.Width()), int(kbuf.Height())
	counts := make([]int, w*h)
	last := make([]float32, w*h)
	for layer := uint32(0); layer < kbuf.ArrayLayers(); layer++ {
		texels, err := r.dev.ReadTexels(kbuf, layer)
		if err != nil {
			r.t.Fatal(err)
		}
		for i, bits := range texels {
			if bits == emptyDepth || counts[i] != int(layer) {
				continue
			}
			z := math.Float32frombits(bits)
			if layer > 0 && z < last[i] {
				r.t.Fatalf("texel %d: layer %d depth %f is nearer than layer %d depth %f", i, layer, z, layer-1, last[i])
			}
			last[i] = z
			counts[i]++
		}
	}
	return counts
}

func approxEqual(a, b, tolerance float32) bool {
	return mgl32.Abs(a-b) <= tolerance
}

func matApproxEqual(a, b types.Mat4, tolerance float32) bool {
	for i := range a {
		if !approxEqual(a[i], b[i], tolerance*max(1, mgl32.Abs(b[i]))) {
			return false
		}
	}
	return true
}

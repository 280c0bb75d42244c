// Package volume renders a closed mesh as a semi-transparent volume.
//
// Every frame the mesh is depth peeled from the light and from the camera
// into K-buffers: texture arrays holding the 16 nearest depths per pixel in
// ascending order. The layers are then consumed either by a full-screen
// ray cast pass that treats consecutive layers as entry/exit pairs or by a
// ray dispatch that traverses an acceleration structure over the mesh. Both
// paths use the light K-buffer to estimate self shadowing.
//
// A Volume only records commands; the host executes the command lists and
// rotates frame slots so that a slot is not rewritten while in flight.
package volume

import (
	"math"

	"github.com/gogpu/gputypes"

	"github.com/StarsX/SparseVolumeDXR/accel"
	"github.com/StarsX/SparseVolumeDXR/asset/mesh"
	"github.com/StarsX/SparseVolumeDXR/asset/shader"
	"github.com/StarsX/SparseVolumeDXR/gpu"
	"github.com/StarsX/SparseVolumeDXR/log"
	"github.com/StarsX/SparseVolumeDXR/types"
)

const (
	// Depth layers per K-buffer texel.
	NumKLayers = 16

	// Light space depth range.
	zNearLS float32 = 1
	zFarLS  float32 = 128
)

// Background color written by the ray traced path where nothing is hit.
var ClearColor = [4]float32{0, 0.2, 0.4, 1}

// Depth stored in empty K-buffer layers.
var emptyDepth = math.Float32bits(1)

type Options struct {
	// Number of frame slots (2 or 3).
	FrameCount int

	// Build the acceleration structures and shader tables used by RenderDXR.
	RayTracing bool

	// Light space K-buffer resolution.
	ShadowMapSize uint32

	// Light position relative to the bound center.
	LightOffset types.Vec3

	// Panic on misuse and invalid resource transitions instead of logging.
	Strict bool

	// Source of the program binaries.
	Programs shader.Loader

	// Mesh importer.
	Importer mesh.Importer
}

func DefaultOptions() Options {
	return Options{
		FrameCount:    3,
		RayTracing:    true,
		ShadowMapSize: 1024,
		LightOffset:   types.XYZ(10, 45, 75),
		Importer:      mesh.WavefrontImporter{},
	}
}

// Volume owns the GPU resources of a single mesh instance.
type Volume struct {
	logger  log.Logger
	dev     gpu.Device
	opts    Options
	state   State
	tracker *gpu.StateTracker

	width, height uint32
	colorFormat   gputypes.TextureFormat
	depthFormat   gputypes.TextureFormat

	geometry  geometry
	placement types.Placement

	layouts   [numPipelineLayouts]gpu.PipelineLayout
	pipelines [numPipelines]gpu.Pipeline

	frames []*frame

	// Ray tracing resources shared by all frame slots.
	rayTracingPipeline gpu.Pipeline
	blas               *accel.BottomLevel
	blasScratch        gpu.Buffer
	hitGroupTable      *gpu.ShaderTable
	missTable          *gpu.ShaderTable
	rayGenID           []byte

	instanceNotice bool
}

// Create a volume rendered by dev. Call Init before use.
func New(dev gpu.Device, opts Options) *Volume {
	return &Volume{
		logger:  log.New("sparse volume"),
		dev:     dev,
		opts:    opts,
		tracker: gpu.NewStateTracker(opts.Strict),
	}
}

func (v *Volume) State() State {
	return v.state
}

func (v *Volume) Options() Options {
	return v.opts
}

// The mesh bounding sphere in object space.
func (v *Volume) Bound() types.Bound {
	return v.geometry.bound
}

func (v *Volume) TriangleCount() int {
	return int(v.geometry.indexCount / 3)
}

func (v *Volume) Placement() types.Placement {
	return v.placement
}

// Change the object placement. The new world matrix is picked up by the
// next UpdateFrame of each slot.
func (v *Volume) SetPlacement(p types.Placement) {
	v.placement = p
}

func (v *Volume) FrameCount() int {
	return len(v.frames)
}

// Camera and light K-buffers of a frame slot.
func (v *Volume) KBuffers(frameIndex int) (camera, light gpu.Texture) {
	f := v.frames[frameIndex]
	return f.kbuffers[cameraSpace], f.kbuffers[lightSpace]
}

// Output color and thickness images written by RenderDXR. Both are nil when
// ray tracing is disabled.
func (v *Volume) RayTraceOutputs(frameIndex int) (output, thickness gpu.Texture) {
	f := v.frames[frameIndex]
	return f.output, f.thickness
}

// Release device memory held by the volume. Devices that do not implement
// Release(gpu.Resource) rely on garbage collection.
func (v *Volume) Close() {
	releaser, canRelease := v.dev.(interface{ Release(gpu.Resource) })
	release := func(res gpu.Resource) {
		if canRelease && res != nil {
			releaser.Release(res)
		}
	}

	v.geometry.release(release)
	for _, f := range v.frames {
		f.release(release)
	}
	v.frames = nil

	if v.blas != nil && v.blas.Result() != nil {
		release(v.blas.Result())
	}
	if v.blasScratch != nil {
		release(v.blasScratch)
	}
	for _, table := range []*gpu.ShaderTable{v.hitGroupTable, v.missTable} {
		if table != nil {
			release(table.Buffer())
		}
	}
	v.blas, v.blasScratch, v.hitGroupTable, v.missTable = nil, nil, nil, nil

	if v.state != Failed {
		v.state = Uninitialized
	}
}

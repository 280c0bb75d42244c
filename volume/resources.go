package volume

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/StarsX/SparseVolumeDXR/accel"
	"github.com/StarsX/SparseVolumeDXR/gpu"
	"github.com/StarsX/SparseVolumeDXR/types"
)

type kbufferType uint8

const (
	cameraSpace kbufferType = iota
	lightSpace
	numKBuffers
)

func (kt kbufferType) String() string {
	if kt == lightSpace {
		return "light space"
	}
	return "camera space"
}

// Per-frame constant buffer layout. Sections start on 256 byte boundaries.
const (
	cameraWVPOffset = 0
	lightWVPOffset  = 256
	perObjectOffset = 512

	// {ScreenToWorld, ViewProjLS}
	perObjectSize = 2 * gpu.Mat4Size

	constantBufferSize = perObjectOffset + 2*gpu.Mat4Size + 128

	// {ScreenToWorld, LightDir}
	rayGenConstantsSize = gpu.Mat4Size + gpu.Vec4Size
)

// Resources owned by one frame slot.
type frame struct {
	index int

	constants gpu.Buffer
	kbuffers  [numKBuffers]gpu.Texture

	// Ray tracing outputs and per-slot tables.
	output      gpu.Texture
	thickness   gpu.Texture
	rayGenTable *gpu.ShaderTable
	tlas        *accel.TopLevel
	tlasScratch gpu.Buffer

	// World matrix of the last UpdateFrame and of the last instance build.
	world     types.Mat4
	tlasWorld types.Mat4
	updated   bool
}

func (f *frame) release(release func(gpu.Resource)) {
	if f.constants != nil {
		release(f.constants)
	}
	for _, kbuf := range f.kbuffers {
		if kbuf != nil {
			release(kbuf)
		}
	}
	for _, tex := range []gpu.Texture{f.output, f.thickness} {
		if tex != nil {
			release(tex)
		}
	}
	if f.rayGenTable != nil {
		release(f.rayGenTable.Buffer())
	}
	if f.tlas != nil && f.tlas.Result() != nil {
		release(f.tlas.Result())
	}
	if f.tlasScratch != nil {
		release(f.tlasScratch)
	}
}

func (v *Volume) createFrameResources() error {
	v.frames = make([]*frame, v.opts.FrameCount)
	for i := range v.frames {
		f := &frame{index: i}
		v.frames[i] = f

		var err error
		f.constants, err = v.dev.CreateBuffer(gpu.BufferDescriptor{
			Label:        fmt.Sprintf("constants %d", i),
			Size:         constantBufferSize,
			Heap:         gpu.HeapUpload,
			Usage:        gputypes.BufferUsageUniform | gputypes.BufferUsageMapWrite,
			InitialState: gpu.StateCommon,
		})
		if err != nil {
			return err
		}

		sizes := [numKBuffers][2]uint32{
			cameraSpace: {v.width, v.height},
			lightSpace:  {v.opts.ShadowMapSize, v.opts.ShadowMapSize},
		}
		for kt := kbufferType(0); kt < numKBuffers; kt++ {
			f.kbuffers[kt], err = v.dev.CreateTexture(gpu.TextureDescriptor{
				Label:        fmt.Sprintf("%s kbuffer %d", kt, i),
				Width:        sizes[kt][0],
				Height:       sizes[kt][1],
				ArrayLayers:  NumKLayers,
				Format:       gputypes.TextureFormatR32Uint,
				Usage:        gputypes.TextureUsageStorageBinding | gputypes.TextureUsageTextureBinding,
				InitialState: gpu.StateUnorderedAccess,
			})
			if err != nil {
				return err
			}
		}

		if !v.opts.RayTracing {
			continue
		}

		f.output, err = v.dev.CreateTexture(gpu.TextureDescriptor{
			Label:        fmt.Sprintf("output %d", i),
			Width:        v.width,
			Height:       v.height,
			Format:       v.colorFormat,
			Usage:        gputypes.TextureUsageStorageBinding | gputypes.TextureUsageCopySrc,
			InitialState: gpu.StateUnorderedAccess,
		})
		if err != nil {
			return err
		}
		f.thickness, err = v.dev.CreateTexture(gpu.TextureDescriptor{
			Label:        fmt.Sprintf("thickness %d", i),
			Width:        v.width,
			Height:       v.height,
			Format:       gputypes.TextureFormatR32Float,
			Usage:        gputypes.TextureUsageStorageBinding | gputypes.TextureUsageCopySrc,
			InitialState: gpu.StateUnorderedAccess,
		})
		if err != nil {
			return err
		}

		if f.rayGenTable, err = gpu.NewShaderTable(v.dev, fmt.Sprintf("ray generation table %d", i), 1, rayGenConstantsSize); err != nil {
			return err
		}
	}
	return nil
}

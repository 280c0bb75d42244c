package volume

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/StarsX/SparseVolumeDXR/asset/mesh"
	"github.com/StarsX/SparseVolumeDXR/gpu"
)

type pipelineLayoutType uint8

const (
	depthPeelLayout pipelineLayoutType = iota
	sparseRayCastLayout
	globalLayout
	rayGenLayout
	numPipelineLayouts
)

type pipelineType uint8

const (
	depthPeelPipeline pipelineType = iota
	sparseRayCastPipeline
	numPipelines
)

type programType uint8

// Programs loaded through the program loader.
const (
	vsBasePass programType = iota
	psDepthPeel
	vsScreenQuad
	psSparseRayCast
	sparseRayCastLibrary
	numPrograms
)

// Implements Stringer; map program type to the name passed to the loader.
func (pt programType) String() string {
	switch pt {
	case vsBasePass:
		return "VSBasePass"
	case psDepthPeel:
		return "PSDepthPeel"
	case vsScreenQuad:
		return "VSScreenQuad"
	case psSparseRayCast:
		return "PSSparseRayCast"
	case sparseRayCastLibrary:
		return "SparseRayCast"
	default:
		panic(fmt.Sprintf("Unsupported program type: %d", pt))
	}
}

// Ray tracing exports.
const (
	hitGroupName   = "hitGroup"
	rayGenName     = "raygenMain"
	closestHitName = "closestHitMain"
	anyHitName     = "anyHitMain"
	missName       = "missMain"

	maxPayloadSize   = 16
	maxAttributeSize = 8
	maxRecursion     = 1
)

// Depth peel layout params.
const (
	peelConstants = iota
	peelKBuffer
)

// Sparse ray cast layout params.
const (
	rayCastConstants = iota
	rayCastKBuffers
)

// Global ray tracing layout params.
const (
	rtOutputs = iota
	rtScene
	rtKBuffers
	rtConstants
)

func (v *Volume) createPipelineLayouts() error {
	descs := [numPipelineLayouts]gpu.PipelineLayoutDescriptor{
		depthPeelLayout: {
			Label: "depth peel layout",
			Params: []gpu.LayoutParam{
				peelConstants: {Kind: gpu.BindingConstants, Count: gpu.Mat4Size},
				peelKBuffer:   {Kind: gpu.BindingUAV, Count: 1},
			},
			InputAssembler: true,
		},
		sparseRayCastLayout: {
			Label: "sparse ray cast layout",
			Params: []gpu.LayoutParam{
				rayCastConstants: {Kind: gpu.BindingConstants, Count: perObjectSize},
				rayCastKBuffers:  {Kind: gpu.BindingSRV, Count: int(numKBuffers)},
			},
		},
		globalLayout: {
			Label: "ray tracing global layout",
			Params: []gpu.LayoutParam{
				rtOutputs:   {Kind: gpu.BindingUAV, Count: 2},
				rtScene:     {Kind: gpu.BindingAccelerationStructure, Count: 1},
				rtKBuffers:  {Kind: gpu.BindingSRV, Count: int(numKBuffers)},
				rtConstants: {Kind: gpu.BindingConstants, Count: perObjectSize},
			},
		},
		rayGenLayout: {
			Label:  "ray generation layout",
			Params: []gpu.LayoutParam{{Kind: gpu.BindingConstants, Count: rayGenConstantsSize}},
			Local:  true,
		},
	}

	count := numPipelineLayouts
	if !v.opts.RayTracing {
		count = globalLayout
	}
	for lt := pipelineLayoutType(0); lt < count; lt++ {
		layout, err := v.dev.CreatePipelineLayout(descs[lt])
		if err != nil {
			return err
		}
		v.layouts[lt] = layout
	}
	return nil
}

func (v *Volume) loadPrograms() ([numPrograms][]byte, error) {
	var blobs [numPrograms][]byte
	if v.opts.Programs == nil {
		return blobs, ErrNoPrograms
	}

	count := numPrograms
	if !v.opts.RayTracing {
		count = sparseRayCastLibrary
	}
	for pt := programType(0); pt < count; pt++ {
		blob, err := v.opts.Programs.LoadProgram(pt.String())
		if err != nil {
			return blobs, err
		}
		blobs[pt] = blob
	}
	return blobs, nil
}

func (v *Volume) createPipelines() error {
	programs, err := v.loadPrograms()
	if err != nil {
		return err
	}

	v.pipelines[depthPeelPipeline], err = v.dev.CreateGraphicsPipeline(gpu.GraphicsPipelineDescriptor{
		Label:        "depth peel",
		Layout:       v.layouts[depthPeelLayout],
		VertexShader: programs[vsBasePass],
		PixelShader:  programs[psDepthPeel],
		VertexLayout: &gputypes.VertexBufferLayout{
			ArrayStride: mesh.VertexStride,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},  // position
				{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1}, // normal
			},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		DepthFormat:  v.depthFormat,
		DepthTest:    true,
		DepthCompare: gputypes.CompareFunctionLess,
	})
	if err != nil {
		return err
	}

	v.pipelines[sparseRayCastPipeline], err = v.dev.CreateGraphicsPipeline(gpu.GraphicsPipelineDescriptor{
		Label:        "sparse ray cast",
		Layout:       v.layouts[sparseRayCastLayout],
		VertexShader: programs[vsScreenQuad],
		PixelShader:  programs[psSparseRayCast],
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		ColorFormats: []gputypes.TextureFormat{v.colorFormat},
		Blend:        gpu.BlendNonPremultiplied,
	})
	if err != nil {
		return err
	}

	if !v.opts.RayTracing {
		return nil
	}

	v.rayTracingPipeline, err = v.dev.CreateRayTracingPipeline(gpu.RayTracingPipelineDescriptor{
		Label:   "sparse ray cast library",
		Library: programs[sparseRayCastLibrary],
		HitGroups: []gpu.HitGroup{
			{Name: hitGroupName, ClosestHit: closestHitName, AnyHit: anyHitName},
		},
		GlobalLayout:      v.layouts[globalLayout],
		LocalLayouts:      map[string]gpu.PipelineLayout{rayGenName: v.layouts[rayGenLayout]},
		MaxPayloadSize:    maxPayloadSize,
		MaxAttributeSize:  maxAttributeSize,
		MaxRecursionDepth: maxRecursion,
	})
	return err
}

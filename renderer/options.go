package renderer

import (
	"github.com/StarsX/SparseVolumeDXR/asset/shader"
	"github.com/StarsX/SparseVolumeDXR/types"
)

type Options struct {
	// Frame dims.
	FrameW uint32
	FrameH uint32

	// Number of frames to render and number of frame slots to rotate.
	Frames     int
	FrameCount int

	// Use the ray traced path instead of the sparse ray cast.
	RayTracing bool

	// Light space K-buffer resolution.
	ShadowMapSize uint32

	// Number of goroutines used by the device; 0 selects GOMAXPROCS.
	Workers int

	// Camera orbit. Distance is given in bound radii; angles in radians.
	Distance float32
	Pitch    float32
	YawStep  float32
	FovY     float32

	// Object placement.
	Placement types.Placement

	// Program source; nil selects the built-in device programs.
	Programs shader.Loader
}

func DefaultOptions() Options {
	return Options{
		FrameW:        512,
		FrameH:        512,
		Frames:        1,
		FrameCount:    3,
		ShadowMapSize: 1024,
		Distance:      4,
		Pitch:         0.3,
		YawStep:       0.05,
		FovY:          0.7854,
		Placement:     types.Placement{Scale: 1},
	}
}

package renderer

import (
	"fmt"
	"image"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/mrjoshuak/go-openexr/exr"

	"github.com/StarsX/SparseVolumeDXR/gpu"
	"github.com/StarsX/SparseVolumeDXR/gpu/soft"
	"github.com/StarsX/SparseVolumeDXR/log"
	"github.com/StarsX/SparseVolumeDXR/types"
	"github.com/StarsX/SparseVolumeDXR/volume"
)

const (
	colorFormat = gputypes.TextureFormatRGBA32Float
	depthFormat = gputypes.TextureFormatDepth32Float
)

// Headless renders frames into host owned textures of a soft device.
type Headless struct {
	logger  log.Logger
	opts    Options
	dev     *soft.Device
	cl      *soft.CommandList
	tracker *gpu.StateTracker
	vol     *volume.Volume

	// Host targets.
	color       gpu.Texture
	depth       gpu.Texture
	shadowDepth gpu.Texture

	orbit    types.Orbit
	rendered int
	stats    FrameStats
}

// Create a headless renderer for the mesh at meshFile. The initialization
// commands are executed before NewHeadless returns.
func NewHeadless(meshFile string, opts Options) (*Headless, error) {
	if opts.FrameW == 0 || opts.FrameH == 0 {
		return nil, ErrBadFrameSize
	}
	if opts.Frames <= 0 {
		return nil, ErrNoFrames
	}

	var devOpts []soft.Option
	if opts.Workers > 0 {
		devOpts = append(devOpts, soft.WithWorkers(opts.Workers))
	}
	dev := soft.New(devOpts...)

	volOpts := volume.DefaultOptions()
	volOpts.FrameCount = opts.FrameCount
	volOpts.RayTracing = opts.RayTracing
	volOpts.ShadowMapSize = opts.ShadowMapSize
	volOpts.Programs = opts.Programs
	if volOpts.Programs == nil {
		volOpts.Programs = soft.Programs()
	}

	r := &Headless{
		logger:  log.New("renderer"),
		opts:    opts,
		dev:     dev,
		cl:      dev.CreateCommandList(),
		tracker: gpu.NewStateTracker(false),
		vol:     volume.New(dev, volOpts),
	}

	var err error
	if r.color, err = r.target("back buffer", opts.FrameW, opts.FrameH, colorFormat, gpu.StatePresent); err != nil {
		return nil, err
	}
	if r.depth, err = r.target("depth buffer", opts.FrameW, opts.FrameH, depthFormat, gpu.StateDepthWrite); err != nil {
		return nil, err
	}
	if r.shadowDepth, err = r.target("shadow depth buffer", opts.ShadowMapSize, opts.ShadowMapSize, depthFormat, gpu.StateDepthWrite); err != nil {
		return nil, err
	}

	if err = r.vol.Init(r.cl, opts.FrameW, opts.FrameH, colorFormat, depthFormat, meshFile, opts.Placement); err != nil {
		return nil, err
	}
	if err = r.submit(); err != nil {
		return nil, err
	}

	bound := r.vol.Bound()
	r.orbit = types.Orbit{
		Target:   types.TransformPoint(opts.Placement.World(), bound.Center),
		Distance: opts.Distance * bound.Radius * opts.Placement.Scale,
		Pitch:    opts.Pitch,
	}
	return r, nil
}

// Render the configured number of frames, rotating frame slots and
// advancing the camera by YawStep per frame.
func (r *Headless) Render() error {
	start := time.Now()
	r.stats = FrameStats{}

	for i := 0; i < r.opts.Frames; i++ {
		frameStart := time.Now()
		before := r.dev.Stats()
		slot := r.rendered % r.vol.FrameCount()

		if err := r.recordFrame(slot); err != nil {
			return err
		}
		if err := r.submit(); err != nil {
			return fmt.Errorf("renderer: frame %d: %w", r.rendered, err)
		}

		after := r.dev.Stats()
		r.stats.Frames = append(r.stats.Frames, FrameStat{
			Index:      r.rendered,
			Slot:       slot,
			RenderTime: time.Since(frameStart),
			Draws:      after.Draws - before.Draws,
			Fragments:  after.Fragments - before.Fragments,
			Dispatches: after.Dispatches - before.Dispatches,
			Rays:       after.Rays - before.Rays,
		})
		r.rendered++
		r.orbit = r.orbit.Step(r.opts.YawStep)
	}

	r.stats.RenderTime = time.Since(start)
	r.logger.Infof("rendered %d frames in %d ms", r.opts.Frames, r.stats.RenderTime.Nanoseconds()/1e6)
	return nil
}

func (r *Headless) recordFrame(slot int) error {
	aspect := float32(r.opts.FrameW) / float32(r.opts.FrameH)
	near := r.orbit.Distance * 0.01
	proj := types.PerspectiveFovLH(r.opts.FovY, aspect, near, r.orbit.Distance*10)
	r.vol.UpdateFrame(slot, proj.Mul4(r.orbit.View()))

	if err := r.tracker.Transition(r.cl, gpu.StateRenderTarget, r.color); err != nil {
		return err
	}
	r.cl.ClearTextureFloat(r.color, volume.ClearColor)
	if err := r.tracker.Transition(r.cl, gpu.StateDepthWrite, r.depth, r.shadowDepth); err != nil {
		return err
	}
	r.cl.ClearDepth(r.depth, 1)
	r.cl.ClearDepth(r.shadowDepth, 1)

	if r.opts.RayTracing {
		r.vol.RenderDXR(r.cl, slot, r.color, r.depth)
		return nil
	}
	r.vol.Render(r.cl, slot, r.color, r.depth, r.shadowDepth)
	return r.tracker.Transition(r.cl, gpu.StatePresent, r.color)
}

func (r *Headless) submit() error {
	defer r.cl.Reset()
	if err := r.cl.Close(); err != nil {
		return err
	}
	return r.dev.Execute(r.cl)
}

func (r *Headless) target(label string, w, h uint32, format gputypes.TextureFormat, state gpu.ResourceState) (gpu.Texture, error) {
	return r.dev.CreateTexture(gpu.TextureDescriptor{
		Label:        label,
		Width:        w,
		Height:       h,
		Format:       format,
		Usage:        gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopyDst,
		InitialState: state,
	})
}

func (r *Headless) Stats() FrameStats {
	return r.stats
}

// The final color target as a float image.
func (r *Headless) Frame() (image.Image, error) {
	if r.rendered == 0 {
		return nil, ErrNotRendered
	}
	colors, err := r.dev.ReadColors(r.color)
	if err != nil {
		return nil, err
	}
	return r.floatImage(colors, func(c [4]float32) [4]float32 { return c }), nil
}

// Thickness written by the last ray traced frame, replicated into the color
// channels.
func (r *Headless) Thickness() (image.Image, error) {
	if !r.opts.RayTracing {
		return nil, ErrNoRayTracedOut
	}
	if r.rendered == 0 {
		return nil, ErrNotRendered
	}
	_, thickness := r.vol.RayTraceOutputs((r.rendered - 1) % r.vol.FrameCount())
	values, err := r.dev.ReadColors(thickness)
	if err != nil {
		return nil, err
	}
	return r.floatImage(values, func(c [4]float32) [4]float32 { return [4]float32{c[0], c[0], c[0], 1} }), nil
}

func (r *Headless) floatImage(texels [][4]float32, fn func([4]float32) [4]float32) *exr.RGBAImage {
	w, h := int(r.opts.FrameW), int(r.opts.FrameH)
	img := exr.NewRGBAImage(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := fn(texels[y*w+x])
			img.SetRGBA(x, y, c[0], c[1], c[2], c[3])
		}
	}
	return img
}

func (r *Headless) Close() {
	r.vol.Close()
	for _, tex := range []gpu.Texture{r.color, r.depth, r.shadowDepth} {
		if tex != nil {
			r.dev.Release(tex)
		}
	}
	r.color, r.depth, r.shadowDepth = nil, nil, nil
}

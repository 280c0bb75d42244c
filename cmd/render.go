package cmd

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/StarsX/SparseVolumeDXR/asset/shader"
	"github.com/StarsX/SparseVolumeDXR/gpu/soft"
	"github.com/StarsX/SparseVolumeDXR/renderer"
	"github.com/StarsX/SparseVolumeDXR/types"
)

// Render frames of a mesh and save the last one.
func RenderFrames(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	if ctx.NArg() != 1 {
		return errors.New("missing mesh file argument")
	}

	opts := renderer.DefaultOptions()
	opts.FrameW = uint32(ctx.Int("width"))
	opts.FrameH = uint32(ctx.Int("height"))
	opts.Frames = ctx.Int("frames")
	opts.FrameCount = ctx.Int("frame-count")
	opts.RayTracing = ctx.Bool("raytrace")
	opts.ShadowMapSize = uint32(ctx.Int("shadow-map-size"))
	opts.Workers = ctx.Int("workers")
	opts.Distance = float32(ctx.Float64("distance"))
	opts.YawStep = float32(ctx.Float64("yaw-step"))
	opts.Placement = types.Placement{Scale: float32(ctx.Float64("scale"))}

	// Programs found in the directory override the built-in ones.
	if dir := ctx.String("programs"); dir != "" {
		opts.Programs = shader.Chain{shader.NewDirLoader(dir), soft.Programs()}
	}

	thicknessFile := ctx.String("thickness")
	if thicknessFile != "" && !opts.RayTracing {
		logger.Notice("thickness output requires --raytrace; ignoring --thickness")
		thicknessFile = ""
	}

	r, err := renderer.NewHeadless(ctx.Args().First(), opts)
	if err != nil {
		return err
	}
	defer r.Close()

	if err = r.Render(); err != nil {
		return err
	}
	displayFrameStats(r.Stats())

	frame, err := r.Frame()
	if err != nil {
		return err
	}
	imgFile := ctx.String("out")
	if err = renderer.SaveImage(imgFile, frame); err != nil {
		return err
	}
	logger.Noticef("wrote frame to %s", imgFile)

	if thicknessFile == "" {
		return nil
	}
	thickness, err := r.Thickness()
	if err != nil {
		return err
	}
	if ctx.Bool("normalize") {
		thickness = renderer.Normalize(thickness)
	}
	if err = renderer.SaveImage(thicknessFile, thickness); err != nil {
		return err
	}
	logger.Noticef("wrote thickness to %s", thicknessFile)
	return nil
}

func displayFrameStats(stats renderer.FrameStats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Frame", "Slot", "Draws", "Fragments", "Dispatches", "Rays", "Render time"})
	for _, stat := range stats.Frames {
		table.Append([]string{
			fmt.Sprintf("%d", stat.Index),
			fmt.Sprintf("%d", stat.Slot),
			fmt.Sprintf("%d", stat.Draws),
			fmt.Sprintf("%d", stat.Fragments),
			fmt.Sprintf("%d", stat.Dispatches),
			fmt.Sprintf("%d", stat.Rays),
			stat.RenderTime.String(),
		})
	}
	table.SetFooter([]string{"", "", "", "", "", "TOTAL", stats.RenderTime.String()})

	table.Render()
	logger.Noticef("frame statistics\n%s", buf.String())
}

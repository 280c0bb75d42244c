package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/StarsX/SparseVolumeDXR/cmd"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "sparsevolume"
	app.Usage = "render meshes as semi-transparent volumes using K-buffer depth peeling"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "log level (debug, info, notice, warning, error)",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render frames of a mesh on the reference device",
			Description: `
Load a wavefront obj mesh, depth peel it from the light and an orbiting camera
into K-buffers and shade it either with the sparse ray cast pass or, with
--raytrace, with a ray dispatch over its acceleration structure.

Frame slots are rotated for every rendered frame; the last frame is written
to the --out image. The image format is selected by the file extension
(png, bmp, tif, tiff or exr).`,
			ArgsUsage: "mesh.obj",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "width",
					Value: 512,
					Usage: "frame width",
				},
				cli.IntFlag{
					Name:  "height",
					Value: 512,
					Usage: "frame height",
				},
				cli.IntFlag{
					Name:  "frames",
					Value: 1,
					Usage: "number of frames to render",
				},
				cli.IntFlag{
					Name:  "frame-count",
					Value: 3,
					Usage: "number of frame slots (2 or 3)",
				},
				cli.BoolFlag{
					Name:  "raytrace",
					Usage: "use the ray traced path",
				},
				cli.IntFlag{
					Name:  "shadow-map-size",
					Value: 1024,
					Usage: "light space K-buffer resolution",
				},
				cli.IntFlag{
					Name:  "workers",
					Usage: "number of device worker goroutines (0 uses all cpus)",
				},
				cli.Float64Flag{
					Name:  "distance",
					Value: 4,
					Usage: "camera distance in bound radii",
				},
				cli.Float64Flag{
					Name:  "yaw-step",
					Value: 0.05,
					Usage: "camera yaw increment per frame in radians",
				},
				cli.Float64Flag{
					Name:  "scale",
					Value: 1,
					Usage: "object scale",
				},
				cli.StringFlag{
					Name:  "programs",
					Usage: "directory with program binaries overriding the built-in programs",
				},
				cli.StringFlag{
					Name:  "out, o",
					Value: "frame.png",
					Usage: "image filename for the rendered frame",
				},
				cli.StringFlag{
					Name:  "thickness",
					Usage: "image filename for the ray traced thickness",
				},
				cli.BoolFlag{
					Name:  "normalize",
					Usage: "scale the thickness image to [0, 1]",
				},
			},
			Action: cmd.RenderFrames,
		},
		{
			Name:      "mesh-info",
			Usage:     "print mesh statistics",
			ArgsUsage: "mesh1.obj mesh2.obj ...",
			Action:    cmd.ShowMeshInfo,
		},
		{
			Name:   "list-programs",
			Usage:  "list the programs built into the reference device",
			Action: cmd.ListPrograms,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

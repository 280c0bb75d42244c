package cmd

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"

	"github.com/StarsX/SparseVolumeDXR/asset/mesh"
)

// Display mesh statistics.
func ShowMeshInfo(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	if ctx.NArg() == 0 {
		return errors.New("missing mesh file argument")
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Mesh", "Vertices", "Triangles", "Bound center", "Bound radius"})
	for idx := 0; idx < ctx.NArg(); idx++ {
		m, err := mesh.Import(ctx.Args().Get(idx))
		if err != nil {
			return err
		}
		bound := m.Bound()
		table.Append([]string{
			m.Name,
			fmt.Sprintf("%d", len(m.Vertices)),
			fmt.Sprintf("%d", m.TriangleCount()),
			fmt.Sprintf("(%.3f, %.3f, %.3f)", bound.Center[0], bound.Center[1], bound.Center[2]),
			fmt.Sprintf("%.3f", bound.Radius),
		})
	}
	table.Render()

	logger.Noticef("mesh information:\n%s", buf.String())
	return nil
}

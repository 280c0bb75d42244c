package cmd

import (
	"bytes"
	"fmt"

	"github.com/urfave/cli"

	"github.com/StarsX/SparseVolumeDXR/gpu/soft"
)

// List the programs built into the reference device.
func ListPrograms(ctx *cli.Context) error {
	if err := setupLogging(ctx); err != nil {
		return err
	}

	var buf bytes.Buffer
	names := soft.ProgramNames()
	buf.WriteString(fmt.Sprintf("\nReference device provides %d program(s):\n\n", len(names)))
	for idx, name := range names {
		buf.WriteString(fmt.Sprintf("  [%02d] %s\n", idx, name))
	}

	logger.Notice(buf.String())
	return nil
}

package cmd

import (
	"github.com/urfave/cli"

	"github.com/StarsX/SparseVolumeDXR/log"
)

var logger = log.New("sparsevolume")

func setupLogging(ctx *cli.Context) error {
	if level := ctx.GlobalString("log-level"); level != "" {
		parsed, err := log.ParseLevel(level)
		if err != nil {
			return err
		}
		log.SetLevel(parsed)
	}

	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
	return nil
}

// voxelstudio is an interactive viewer for voxel fragment collision.
package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli"
)

var logger = log.WithPrefix("voxelstudio")

func main() {
	app := cli.NewApp()
	app.Name = "voxelstudio"
	app.Usage = "drop voxel fragments onto editable terrain"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.StringFlag{
			Name:  "config, c",
			Value: "voxelstudio.toml",
			Usage: "TOML config file; missing files use the defaults",
		},
		cli.StringFlag{
			Name:  "scene, s",
			Usage: "JSON scene to load at startup",
		},
	}
	app.Action = func(ctx *cli.Context) error {
		if ctx.Bool("v") {
			log.SetLevel(log.DebugLevel)
		}
		a, err := newApp(ctx.String("config"), ctx.String("scene"))
		if err != nil {
			return err
		}
		return a.Run()
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}

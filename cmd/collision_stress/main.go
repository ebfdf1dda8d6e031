// Stress test for voxel fragment collision: drops a field of random fragments
// onto a flat floor and reports frame timings per collision backend.
package main

import (
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli"
)

var logger = log.WithPrefix("stress")

func main() {
	app := cli.NewApp()
	app.Name = "collision_stress"
	app.Usage = "benchmark voxel fragment collision"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		if ctx.GlobalBool("v") {
			log.SetLevel(log.DebugLevel)
		}
		return nil
	}
	app.Commands = []cli.Command{
		{
			Name:   "list-devices",
			Usage:  "show the GPU adapter collision would run on",
			Action: listDevices,
		},
		{
			Name:  "run",
			Usage: "simulate fragments falling onto a floor",
			Description: `
Spawns fragments of random size and orientation above a flat floor and runs
the frame loop for a fixed number of frames at 60 fps. With --device gpu the
compute device is used; "host" emulates it on the CPU with the same readback
pipeline; "cpu" runs the host collider directly.`,
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "fragments, n",
					Value: 200,
					Usage: "number of fragments to spawn",
				},
				cli.IntFlag{
					Name:  "frames, f",
					Value: 600,
					Usage: "number of frames to run",
				},
				cli.StringFlag{
					Name:  "device, d",
					Value: "host",
					Usage: "collision backend: gpu, host or cpu",
				},
				cli.Uint64Flag{
					Name:  "seed",
					Value: 42,
					Usage: "random seed for fragment placement",
				},
				cli.StringFlag{
					Name:  "config, c",
					Value: "voxelstudio.toml",
					Usage: "TOML config file; missing files use the defaults",
				},
				cli.StringFlag{
					Name:  "scene, s",
					Usage: "JSON scene to load instead of the generated field",
				},
			},
			Action: runStress,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}

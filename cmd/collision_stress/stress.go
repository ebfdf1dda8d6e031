package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/urfave/cli"

	"voxelstudio/internal/collision"
	"voxelstudio/internal/components"
	"voxelstudio/internal/compute"
	"voxelstudio/internal/config"
	"voxelstudio/internal/engine"
	"voxelstudio/internal/occupancy"
	"voxelstudio/internal/voxel"
	"voxelstudio/internal/world"
)

const (
	frameDelta = 1.0 / 60
	spacing    = 8
)

func listDevices(ctx *cli.Context) error {
	info, err := compute.Initialize()
	if err != nil {
		return err
	}
	fmt.Printf("Name:    %s\n", info.Name)
	fmt.Printf("Vendor:  %s\n", info.Vendor)
	fmt.Printf("Backend: %s\n", info.Backend)
	fmt.Printf("Type:    %s\n", info.DeviceType)
	fmt.Printf("Driver:  %s\n", info.Driver)
	return nil
}

func openDevice(name string, cfg config.Config) (collision.Device, error) {
	limits := collision.Limits{
		MaxContacts:      cfg.Collision.MaxContacts,
		MaxChunks:        cfg.Collision.MaxChunks,
		MaxFragmentWords: cfg.Collision.MaxFragmentWords,
	}
	switch name {
	case "gpu":
		info, err := compute.Initialize()
		if err != nil {
			return nil, err
		}
		logger.Info("compute adapter", "adapter", info)
		dev, err := compute.NewCollisionDevice(compute.Get(), limits)
		if err != nil {
			return nil, err
		}
		return dev, nil
	case "host":
		return collision.NewHostDevice(limits.MaxChunks, limits.MaxContacts), nil
	case "cpu":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown device %q", name)
}

// spawnField lays n fragments out on a grid, each dropped from a random height.
func spawnField(w *world.World, n int, rng *rand.Rand) {
	side := int(math.Ceil(math.Sqrt(float64(n))))
	w.Terrain.FillBox([3]int{0, 0, 0}, [3]int{side*spacing - 1, 3, side*spacing - 1}, voxel.Voxel{Color: [3]uint8{80, 140, 60}})

	for i := 0; i < n; i++ {
		size := [3]int{2 + rng.IntN(4), 2 + rng.IntN(4), 2 + rng.IntN(4)}
		occ := occupancy.SolidFragment(size[0], size[1], size[2])
		if rng.IntN(3) == 0 {
			// carve a notch so some fragments take the sparse path
			occ.Set(0, size[1]-1, 0, false)
		}
		pos := mgl32.Vec3{
			float32((i%side)*spacing) + spacing/2,
			10 + rng.Float32()*20,
			float32((i/side)*spacing) + spacing/2,
		}
		rot := mgl32.QuatRotate(rng.Float32()*2*math.Pi, mgl32.Vec3{0, 1, 0})
		w.SpawnFragment(occ, pos, rot)
	}
}

func runStress(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return err
	}

	dev, err := openDevice(ctx.String("device"), cfg)
	if errors.Is(err, compute.ErrPipelineCreationFailed) {
		logger.Warn("GPU unavailable, running on CPU", "err", err)
	} else if err != nil {
		return err
	}

	w := world.New(cfg, voxel.NewWorld(), dev)
	defer w.Release()

	if path := ctx.String("scene"); path != "" {
		if err := w.LoadScene(path); err != nil {
			return err
		}
	} else {
		seed := ctx.Uint64("seed")
		spawnField(w, ctx.Int("fragments"), rand.New(rand.NewPCG(seed, seed)))
	}

	frames := ctx.Int("frames")
	times := make([]time.Duration, 0, frames)
	var collide time.Duration
	start := time.Now()
	for i := 0; i < frames; i++ {
		t := time.Now()
		w.Frame(frameDelta)
		times = append(times, time.Since(t))
		collide += w.Stats().CollideTime
	}
	total := time.Since(start)

	report(os.Stdout, w, times, collide, total)
	return nil
}

func report(out io.Writer, w *world.World, times []time.Duration, collide, total time.Duration) {
	st := w.Stats()
	grounded, sleeping := 0, 0
	for _, g := range w.Scene.FindByTag("fragment") {
		body := engine.GetComponent[*components.FragmentBody](g)
		if body == nil {
			continue
		}
		if body.Grounded {
			grounded++
		}
		if body.IsSleeping {
			sleeping++
		}
	}

	sorted := append([]time.Duration(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	pct := func(p float64) time.Duration {
		if len(sorted) == 0 {
			return 0
		}
		return sorted[min(len(sorted)-1, int(p*float64(len(sorted))))]
	}

	fmt.Fprintf(out, "mode       %s (%s)\n", st.Mode, st.Device)
	if st.FallbackReason != nil {
		fmt.Fprintf(out, "fallback   %v\n", st.FallbackReason)
	}
	fmt.Fprintf(out, "fragments  %d (%d grounded, %d sleeping, %d kinematic)\n",
		st.Fragments, grounded, sleeping, len(w.Scene.FindByTag("kinematic")))
	fmt.Fprintf(out, "chunks     %d resident, %d parked, %d evicted, %d skipped\n",
		st.ResidentChunks, st.ParkedChunks, st.EvictedChunks, st.SkippedChunks)
	fmt.Fprintf(out, "frames     %d in %v, %d physics steps\n", st.Frame, total.Round(time.Millisecond), st.Steps)
	fmt.Fprintf(out, "frame time p50 %v | p95 %v | max %v\n",
		pct(0.5).Round(time.Microsecond), pct(0.95).Round(time.Microsecond), pct(1).Round(time.Microsecond))
	if len(times) > 0 {
		fmt.Fprintf(out, "collide    %v avg\n", (collide / time.Duration(len(times))).Round(time.Microsecond))
	}
	rb := st.Readback
	fmt.Fprintf(out, "readback   %d delivered, %d dropped, %d stale, %d skipped, %d map failures, %d overflows\n",
		rb.Delivered, rb.Dropped, rb.Stale, rb.SkippedFrames, rb.MapFailures, rb.Overflows)
}

// Package world runs the frame loop: contact readback, simulation, extraction
// and collision dispatch, with a CPU fallback when the device misbehaves.
package world

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-gl/mathgl/mgl32"

	"voxelstudio/internal/collision"
	"voxelstudio/internal/components"
	"voxelstudio/internal/config"
	"voxelstudio/internal/engine"
	"voxelstudio/internal/extract"
	"voxelstudio/internal/occupancy"
	"voxelstudio/internal/physics"
	"voxelstudio/internal/readback"
	"voxelstudio/internal/voxel"
)

var logger = log.WithPrefix("world")

// ErrNoDevice is the fallback reason when the world starts without a device.
var ErrNoDevice = errors.New("no collision device")

// Mode is where collision runs.
type Mode int

const (
	ModeGPU Mode = iota
	ModeCPU
)

func (m Mode) String() string {
	if m == ModeGPU {
		return "GPU"
	}
	return "CPU"
}

// Stats is a snapshot for HUDs and the stress tool.
type Stats struct {
	Frame          uint64
	Mode           Mode
	Device         string
	Fragments      int
	ResidentChunks int
	ParkedChunks   int
	EvictedChunks  int
	SkippedChunks  int
	Steps          uint64
	LastApply      physics.ApplyResult
	Readback       readback.Stats
	FallbackReason error
	CollideTime    time.Duration
}

type World struct {
	Scene   *engine.Scene
	Terrain *voxel.World
	Physics *physics.FragmentWorld

	// OnFallback fires when collision leaves the device.
	OnFallback engine.Event

	cfg        config.Config
	limits     collision.Limits
	tracker    *extract.TerrainTracker
	table      *collision.Terrain
	host       *collision.HostCollider
	device     collision.Device
	dispatcher *collision.Dispatcher
	pipeline   *readback.Pipeline
	cpuBatches chan collision.Batch

	mode           Mode
	fallbackReason error
	frame          uint64
	fragments      int
	evicted        int
	skipped        int
	overflows      int
	collideTime    time.Duration
	lastLogTime    time.Time
}

// New creates a world over terrain. With a nil device, or PreferGPU off,
// collision runs on the CPU from the start.
func New(cfg config.Config, terrain *voxel.World, dev collision.Device) *World {
	limits := collision.Limits{
		MaxContacts:      cfg.Collision.MaxContacts,
		MaxChunks:        cfg.Collision.MaxChunks,
		MaxFragmentWords: cfg.Collision.MaxFragmentWords,
	}
	scene := engine.NewScene("voxelstudio")
	table := collision.NewTerrain(limits.MaxChunks)

	w := &World{
		Scene:      scene,
		Terrain:    terrain,
		Physics:    physics.NewFragmentWorld(cfg.Physics, scene, terrain),
		cfg:        cfg,
		limits:     limits,
		tracker:    extract.NewTerrainTracker(),
		table:      table,
		host:       collision.NewHostCollider(table, limits),
		device:     dev,
		cpuBatches: make(chan collision.Batch, 1),
		mode:       ModeCPU,
	}

	switch {
	case dev == nil:
		w.fallbackReason = ErrNoDevice
	case !cfg.Collision.PreferGPU:
		w.fallbackReason = errors.New("GPU collision disabled in config")
	default:
		w.dispatcher = collision.NewDispatcher(dev, table, limits)
		w.pipeline = readback.New(dev, limits.MaxContacts)
		w.mode = ModeGPU
	}
	if w.mode == ModeGPU {
		w.Physics.SetContactSource(w.pipeline.Deliveries())
		logger.Info("collision on device", "device", dev.Name())
	} else {
		w.Physics.SetContactSource(w.cpuBatches)
		logger.Info("collision on CPU", "reason", w.fallbackReason)
	}
	return w
}

// Mode reports where collision currently runs.
func (w *World) Mode() Mode { return w.mode }

// SetMode switches collision between device and CPU. Switching to the device
// re-uploads the whole terrain.
func (w *World) SetMode(m Mode) error {
	if m == w.mode {
		return nil
	}
	if m == ModeCPU {
		w.fallback(errors.New("switched to CPU"))
		return nil
	}
	if w.device == nil {
		return ErrNoDevice
	}
	if w.dispatcher == nil {
		w.dispatcher = collision.NewDispatcher(w.device, w.table, w.limits)
		w.pipeline = readback.New(w.device, w.limits.MaxContacts)
	}
	if err := w.dispatcher.Upload(w.table.All()); err != nil {
		return fmt.Errorf("re-upload terrain: %w", err)
	}
	// Maps still pending from before the fallback describe old positions.
	w.pipeline.DiscardBefore(w.frame + 1)
	w.pipeline.ResetFailures()
	w.overflows = w.pipeline.Stats().Overflows
	w.mode = ModeGPU
	w.fallbackReason = nil
	w.Physics.SetContactSource(w.pipeline.Deliveries())
	logger.Info("collision back on device", "device", w.device.Name())
	return nil
}

// Frame advances one rendered frame of dt seconds.
func (w *World) Frame(dt float64) {
	w.frame++

	if w.mode == ModeGPU {
		w.pipeline.Poll()
		w.checkDevice()
	}

	w.Scene.Update(float32(dt))
	w.Physics.Step(dt)

	snap := extract.Fragments(w.Scene, w.frame)
	w.fragments = len(snap.Fragments)
	w.table.TouchNear(snap)
	changes, err := w.table.Apply(w.tracker.Extract(w.Terrain))
	if len(changes.Evicted) > 0 {
		w.evicted += len(changes.Evicted)
		logger.Warn("chunk table full, evicted chunks away from fragments", "evicted", changes.Evicted, "parked", w.table.Parked())
	}
	if err != nil {
		w.skipped += len(changes.Skipped)
		logger.Warn("chunk table full, chunks read as empty", "skipped", changes.Skipped, "err", err)
	}

	start := time.Now()
	if w.mode == ModeGPU {
		if err := w.dispatch(changes, snap); err != nil {
			w.fallback(err)
		}
	}
	if w.mode == ModeCPU {
		w.collideCPU(snap)
	}
	w.collideTime = time.Since(start)
	w.logStatus()
}

func (w *World) dispatch(changes collision.TerrainChanges, snap extract.FragmentSnapshot) error {
	if err := w.dispatcher.Upload(changes); err != nil {
		return err
	}
	if len(snap.Fragments) == 0 {
		return nil
	}

	id, ok := w.pipeline.Begin()
	if !ok {
		return nil
	}
	sub, err := w.dispatcher.Dispatch(snap)
	if err != nil {
		w.pipeline.Abort(id)
		return err
	}
	if err := w.pipeline.Submit(id, sub); err != nil {
		logger.Warn("readback submit failed", "frame", sub.Frame, "err", err)
	}
	return nil
}

func (w *World) collideCPU(snap extract.FragmentSnapshot) {
	if len(snap.Fragments) == 0 {
		return
	}
	w.push(w.host.Collide(snap))
}

// push hands a CPU batch to physics with the same replace-if-unconsumed rule
// as the readback channel.
func (w *World) push(b collision.Batch) {
	select {
	case <-w.cpuBatches:
	default:
	}
	w.cpuBatches <- b
}

func (w *World) checkDevice() {
	st := w.pipeline.Stats()
	switch {
	case st.ConsecutiveFailures >= w.cfg.Collision.FailedReadbackThreshold:
		w.fallback(fmt.Errorf("%w: %d consecutive frames", readback.ErrMapFailed, st.ConsecutiveFailures))
	case st.Overflows > w.overflows:
		w.overflows = st.Overflows
		w.fallback(fmt.Errorf("%w: capacity %d", collision.ErrCapacityExceeded, w.limits.MaxContacts))
	}
}

func (w *World) fallback(reason error) {
	if w.mode == ModeCPU {
		return
	}
	w.mode = ModeCPU
	w.fallbackReason = reason
	// Keep a batch that was delivered but not consumed yet.
	select {
	case b := <-w.pipeline.Deliveries():
		w.push(b)
	default:
	}
	w.Physics.SetContactSource(w.cpuBatches)
	logger.Info("collision falling back to CPU", "reason", reason)
	w.OnFallback.Invoke()
}

// SpawnFragment adds a simulated voxel fragment centred at pos.
func (w *World) SpawnFragment(occ *occupancy.Fragment, pos mgl32.Vec3, rot mgl32.Quat) *engine.GameObject {
	g := engine.NewGameObject(fmt.Sprintf("fragment_%d", len(w.Scene.GameObjects)))
	g.Tags = []string{"fragment"}
	g.Transform.Position = pos
	g.Transform.Rotation = rot
	g.AddComponent(components.NewVoxelFragment(occ))
	g.AddComponent(components.NewFragmentBody())
	w.Scene.AddGameObject(g)
	g.Start()
	return g
}

// SpawnKinematicBox adds an axis-aligned box moved by game code. It receives
// contacts but no gravity.
func (w *World) SpawnKinematicBox(half, pos mgl32.Vec3) *engine.GameObject {
	g := engine.NewGameObject(fmt.Sprintf("box_%d", len(w.Scene.GameObjects)))
	g.Tags = []string{"kinematic"}
	g.Transform.Position = pos
	g.AddComponent(components.NewKinematicBox(half))
	body := components.NewFragmentBody()
	body.IsKinematic = true
	body.UseGravity = false
	g.AddComponent(body)
	w.Scene.AddGameObject(g)
	g.Start()
	return g
}

// Despawn removes an entity. Contacts still in flight for it are dropped when
// they arrive.
func (w *World) Despawn(id engine.EntityID) error {
	g := w.Scene.FindByUID(id)
	if g == nil {
		return fmt.Errorf("despawn %v: %w", id, physics.ErrEntityNotFound)
	}
	w.Scene.RemoveGameObject(g)
	return nil
}

// EditVoxel sets (v non-nil) or clears a terrain voxel and wakes bodies next
// to it. The change reaches collision on the next frame.
func (w *World) EditVoxel(x, y, z int, v *voxel.Voxel) bool {
	changed := false
	if v == nil {
		changed = w.Terrain.ClearVoxel(x, y, z)
	} else {
		changed = !w.Terrain.Occupied(x, y, z)
		w.Terrain.SetVoxel(x, y, z, *v)
	}
	if changed {
		center := mgl32.Vec3{float32(x) + 0.5, float32(y) + 0.5, float32(z) + 0.5}
		w.Physics.WakeNear(physics.NewAABBFromCenter(center, mgl32.Vec3{0.5, 0.5, 0.5}), 1)
	}
	return changed
}

func (w *World) Stats() Stats {
	st := Stats{
		Frame:          w.frame,
		Mode:           w.mode,
		Fragments:      w.fragments,
		ResidentChunks: w.table.Resident(),
		ParkedChunks:   w.table.Parked(),
		EvictedChunks:  w.evicted,
		SkippedChunks:  w.skipped,
		Steps:          w.Physics.Steps(),
		LastApply:      w.Physics.LastApply(),
		FallbackReason: w.fallbackReason,
		CollideTime:    w.collideTime,
	}
	if w.device != nil {
		st.Device = w.device.Name()
	}
	if w.pipeline != nil {
		st.Readback = w.pipeline.Stats()
	}
	return st
}

// Release frees the device.
func (w *World) Release() {
	if w.device != nil {
		w.device.Release()
		w.device = nil
	}
}

func (w *World) logStatus() {
	if time.Since(w.lastLogTime) < time.Second {
		return
	}
	w.lastLogTime = time.Now()
	logger.Debug("frame", "frame", w.frame, "mode", w.mode, "fragments", w.fragments, "chunks", w.table.Resident(), "collide", w.collideTime)
}

package world

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelstudio/internal/collision"
	"voxelstudio/internal/components"
	"voxelstudio/internal/config"
	"voxelstudio/internal/engine"
	"voxelstudio/internal/occupancy"
	"voxelstudio/internal/physics"
	"voxelstudio/internal/readback"
	"voxelstudio/internal/voxel"
)

// flatFloor is three chunks wide along X with its top surface at y=4.
func flatFloor() *voxel.World {
	w := voxel.NewWorld()
	w.FillBox([3]int{0, 0, 0}, [3]int{3*voxel.ChunkSize - 1, 3, voxel.ChunkSize - 1}, voxel.Voxel{})
	return w
}

func newTestWorld(t *testing.T, mutate func(*config.Config)) (*World, *collision.HostDevice) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	require.NoError(t, cfg.Validate())
	dev := collision.NewHostDevice(cfg.Collision.MaxChunks, cfg.Collision.MaxContacts)
	w := New(cfg, flatFloor(), dev)
	t.Cleanup(w.Release)
	return w, dev
}

func cube(w *World, pos mgl32.Vec3) (*engine.GameObject, *components.FragmentBody) {
	g := w.SpawnFragment(occupancy.SolidFragment(2, 2, 2), pos, mgl32.QuatIdent())
	return g, engine.GetComponent[*components.FragmentBody](g)
}

func run(w *World, fps int, seconds float64) {
	frames := int(seconds * float64(fps))
	for i := 0; i < frames; i++ {
		w.Frame(1 / float64(fps))
	}
}

func TestDeviceContactsArriveOneFrameLate(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	g, body := cube(w, mgl32.Vec3{48, 4.3, 16})
	require.Equal(t, ModeGPU, w.Mode())

	w.Frame(1.0 / 60)
	assert.False(t, body.Grounded, "contacts of this frame are not available yet")

	w.Frame(1.0 / 60)
	assert.True(t, body.Grounded)
	assert.InDelta(t, 5.0, g.Transform.Position[1], 1e-4)
	assert.Equal(t, 1, w.Stats().Readback.Delivered)
	assert.Equal(t, ModeGPU, w.Mode())
}

func TestDropScenarioOnDevice(t *testing.T) {
	for _, fps := range []int{30, 60, 120} {
		w, _ := newTestWorld(t, nil)
		g, body := cube(w, mgl32.Vec3{48, 10, 16})

		run(w, fps, 3)

		assert.Equal(t, ModeGPU, w.Mode(), "fps %d", fps)
		assert.True(t, body.Grounded, "fps %d", fps)
		assert.InDelta(t, 5.0, g.Transform.Position[1], 0.1, "fps %d", fps)
		assert.Equal(t, uint64(180), w.Stats().Steps, "fps %d", fps)
	}
}

func TestFallbackAfterConsecutiveMapFailures(t *testing.T) {
	w, dev := newTestWorld(t, nil)
	dev.FailMaps = true
	fallbacks := 0
	w.OnFallback.AddListener(func() { fallbacks++ })
	g, body := cube(w, mgl32.Vec3{48, 10, 16})

	run(w, 60, 0.2)
	require.Equal(t, ModeCPU, w.Mode())
	assert.Equal(t, 1, fallbacks)
	assert.ErrorIs(t, w.Stats().FallbackReason, readback.ErrMapFailed)
	assert.GreaterOrEqual(t, w.Stats().Readback.MapFailures, 8)

	run(w, 60, 3)
	assert.True(t, body.Grounded)
	assert.InDelta(t, 5.0, g.Transform.Position[1], 0.1)
}

func TestFallbackWhenMapsNeverComplete(t *testing.T) {
	w, dev := newTestWorld(t, nil)
	dev.NeverCompleteMaps = true
	g, body := cube(w, mgl32.Vec3{48, 10, 16})

	run(w, 60, 20.0/60)
	require.Equal(t, ModeCPU, w.Mode())
	assert.ErrorIs(t, w.Stats().FallbackReason, readback.ErrMapFailed)
	assert.Equal(t, 2, dev.PendingMaps())

	run(w, 60, 3)
	assert.True(t, body.Grounded)
	assert.InDelta(t, 5.0, g.Transform.Position[1], 0.1)
}

func TestFallbackOnContactOverflow(t *testing.T) {
	w, _ := newTestWorld(t, func(c *config.Config) { c.Collision.MaxContacts = 2 })
	g, body := cube(w, mgl32.Vec3{48, 4.3, 16})

	w.Frame(1.0 / 60)
	w.Frame(1.0 / 60)

	assert.Equal(t, ModeCPU, w.Mode())
	assert.ErrorIs(t, w.Stats().FallbackReason, collision.ErrCapacityExceeded)
	assert.True(t, body.Grounded, "the truncated batch is still applied")
	assert.InDelta(t, 5.0, g.Transform.Position[1], 1e-4)
}

func TestStartsOnCPUWithoutDevice(t *testing.T) {
	w := New(config.Default(), flatFloor(), nil)
	assert.Equal(t, ModeCPU, w.Mode())
	assert.ErrorIs(t, w.Stats().FallbackReason, ErrNoDevice)
	assert.ErrorIs(t, w.SetMode(ModeGPU), ErrNoDevice)

	g, body := cube(w, mgl32.Vec3{20, 10, 20})
	run(w, 60, 3)
	assert.True(t, body.Grounded)
	assert.InDelta(t, 5.0, g.Transform.Position[1], 0.1)
}

func TestPreferGPUOff(t *testing.T) {
	w, dev := newTestWorld(t, func(c *config.Config) { c.Collision.PreferGPU = false })
	assert.Equal(t, ModeCPU, w.Mode())
	cube(w, mgl32.Vec3{48, 4.3, 16})
	w.Frame(1.0 / 60)
	assert.Zero(t, dev.Dispatches)
}

func TestDespawnWhileContactsInFlight(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	g, _ := cube(w, mgl32.Vec3{48, 4.3, 16})

	w.Frame(1.0 / 60)
	require.NoError(t, w.Despawn(g.UID))
	w.Frame(1.0 / 60)

	assert.Equal(t, 4, w.Stats().LastApply.Unknown)
	assert.Zero(t, w.Stats().LastApply.Bodies)
	assert.ErrorIs(t, w.Despawn(g.UID), physics.ErrEntityNotFound)
}

func TestEditVoxelReachesCollision(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	g, body := cube(w, mgl32.Vec3{48, 10, 16})
	run(w, 60, 2)
	require.InDelta(t, 5.0, g.Transform.Position[1], 0.1)

	for x := 47; x <= 48; x++ {
		for z := 15; z <= 16; z++ {
			assert.True(t, w.EditVoxel(x, 3, z, nil))
		}
	}
	assert.False(t, w.EditVoxel(47, 3, 15, nil), "already empty")

	run(w, 60, 2)
	assert.True(t, body.Grounded)
	assert.InDelta(t, 4.0, g.Transform.Position[1], 0.1)
	assert.Equal(t, ModeGPU, w.Mode())
}

func TestSetModeReuploadsTerrain(t *testing.T) {
	w, dev := newTestWorld(t, nil)
	w.Frame(1.0 / 60)

	require.NoError(t, w.SetMode(ModeCPU))
	assert.Equal(t, ModeCPU, w.Mode())
	w.EditVoxel(200, 0, 0, &voxel.Voxel{})
	w.Frame(1.0 / 60)
	assert.False(t, dev.TerrainView().Occupied(200, 0, 0))

	require.NoError(t, w.SetMode(ModeGPU))
	assert.Equal(t, ModeGPU, w.Mode())
	assert.NoError(t, w.Stats().FallbackReason)
	assert.True(t, dev.TerrainView().Occupied(200, 0, 0))
	assert.True(t, dev.TerrainView().Occupied(10, 3, 10))
}

func TestCPUCollisionKeepsEveryContact(t *testing.T) {
	cfg := config.Default()
	cfg.Collision.MaxContacts = 2
	w := New(cfg, flatFloor(), nil)
	g, body := cube(w, mgl32.Vec3{48, 4.3, 16})

	w.Frame(1.0 / 60)
	w.Frame(1.0 / 60)
	assert.Equal(t, 4, w.Stats().LastApply.Contacts)
	assert.True(t, body.Grounded)
	assert.InDelta(t, 5.0, g.Transform.Position[1], 1e-4)
}

func TestTerrainLargerThanChunkBudget(t *testing.T) {
	w, _ := newTestWorld(t, func(c *config.Config) { c.Collision.MaxChunks = 2 })
	a, bodyA := cube(w, mgl32.Vec3{16, 10, 16})
	b, bodyB := cube(w, mgl32.Vec3{80, 10, 16})

	run(w, 60, 3)
	assert.True(t, bodyA.Grounded)
	assert.True(t, bodyB.Grounded)
	assert.InDelta(t, 5.0, a.Transform.Position[1], 0.1)
	assert.InDelta(t, 5.0, b.Transform.Position[1], 0.1)
	st := w.Stats()
	assert.Equal(t, ModeGPU, st.Mode)
	assert.Equal(t, 2, st.ResidentChunks)
	assert.Equal(t, 1, st.ParkedChunks)
	assert.Equal(t, 1, st.EvictedChunks, "the middle chunk has nothing above it")
	assert.Zero(t, st.SkippedChunks)

	// A cube over the parked middle chunk brings it back once the far one
	// has nothing above it any more.
	require.NoError(t, w.Despawn(b.UID))
	c, bodyC := cube(w, mgl32.Vec3{48, 10, 16})
	run(w, 60, 3)
	assert.True(t, bodyC.Grounded)
	assert.InDelta(t, 5.0, c.Transform.Position[1], 0.1)
	assert.True(t, bodyA.Grounded)
	assert.Equal(t, 2, w.Stats().EvictedChunks)
	assert.Equal(t, 1, w.Stats().ParkedChunks)
}

func TestStaleBatchIgnoredAfterReturningToDevice(t *testing.T) {
	w, dev := newTestWorld(t, nil)
	dev.NeverCompleteMaps = true
	g, body := cube(w, mgl32.Vec3{48, 4.3, 16})
	w.Frame(1.0 / 60)
	require.Equal(t, 1, dev.PendingMaps())

	require.NoError(t, w.SetMode(ModeCPU))
	g.Transform.Position = mgl32.Vec3{48, 20, 16}
	body.Velocity = mgl32.Vec3{}
	w.Frame(1.0 / 60)

	dev.NeverCompleteMaps = false
	require.NoError(t, w.SetMode(ModeGPU))
	w.Frame(1.0 / 60)
	st := w.Stats()
	assert.Equal(t, 1, st.Readback.Stale, "contacts from before the switch are dropped")
	assert.Zero(t, st.Readback.Delivered)
	assert.False(t, body.Grounded)
	assert.Greater(t, g.Transform.Position[1], float32(19))

	w.Frame(1.0 / 60)
	assert.Equal(t, 1, w.Stats().Readback.Delivered)
	assert.Equal(t, ModeGPU, w.Mode())
}

func TestKinematicBoxIsPushedOut(t *testing.T) {
	w, _ := newTestWorld(t, nil)
	g := w.SpawnKinematicBox(mgl32.Vec3{0.5, 0.5, 0.5}, mgl32.Vec3{10.5, 3.8, 10.5})
	body := engine.GetComponent[*components.FragmentBody](g)

	w.Frame(1.0 / 60)
	assert.Equal(t, float32(3.8), g.Transform.Position[1], "no gravity")
	w.Frame(1.0 / 60)
	assert.InDelta(t, 4.5, g.Transform.Position[1], 1e-4)
	assert.True(t, body.Grounded)
}

func TestApplyScene(t *testing.T) {
	w := New(config.Default(), voxel.NewWorld(), nil)
	sf, err := ParseScene([]byte(`{
		"terrain": [
			{"min": [0, 0, 0], "max": [15, 0, 15], "color": "Green"},
			{"min": [4, 0, 4], "max": [4, 0, 4], "clear": true}
		],
		"fragments": [
			{"name": "crate", "position": [2, 5, 2], "size": [3, 3, 3], "shape": "hollow", "velocity": [1, 0, 0]},
			{"position": [8, 5, 8], "size": [4, 4, 4], "shape": "sphere", "rotation": [0, 45, 0]}
		],
		"kinematic": [
			{"name": "player", "position": [12, 2, 12], "halfExtents": [0.4, 0.9, 0.4]}
		]
	}`))
	require.NoError(t, err)
	require.NoError(t, w.ApplyScene(sf))

	assert.True(t, w.Terrain.Occupied(0, 0, 0))
	assert.False(t, w.Terrain.Occupied(4, 0, 4))
	v, ok := w.Terrain.Voxel(1, 0, 1)
	require.True(t, ok)
	assert.Equal(t, [3]uint8{0, 228, 48}, v.Color)

	crate := w.Scene.FindByName("crate")
	require.NotNil(t, crate)
	frag := engine.GetComponent[*components.VoxelFragment](crate)
	assert.Equal(t, 26, frag.Occupancy.Count())
	assert.Equal(t, float32(1), engine.GetComponent[*components.FragmentBody](crate).Velocity[0])

	player := w.Scene.FindByName("player")
	require.NotNil(t, player)
	assert.True(t, engine.GetComponent[*components.FragmentBody](player).IsKinematic)
	assert.Len(t, w.Scene.GameObjects, 3)

	assert.Error(t, w.ApplyScene(&SceneFile{Kinematic: []KinematicDef{{Name: "player", HalfExtents: [3]float32{1, 1, 1}}}}), "name already in the world")
	assert.Error(t, w.ApplyScene(&SceneFile{Fragments: []FragmentDef{
		{Name: "twin", Size: [3]int{1, 1, 1}},
		{Name: "twin", Size: [3]int{1, 1, 1}},
	}}))
	assert.Nil(t, w.Scene.FindByName("twin"), "a rejected scene spawns nothing")
	assert.Len(t, w.Scene.GameObjects, 3)

	_, err = buildShape("pyramid", [3]int{2, 2, 2})
	assert.Error(t, err)
	assert.Error(t, w.ApplyScene(&SceneFile{Fragments: []FragmentDef{{Size: [3]int{0, 1, 1}}}}))
}

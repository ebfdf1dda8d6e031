package compute

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelstudio/internal/collision"
	"voxelstudio/internal/components"
	"voxelstudio/internal/engine"
	"voxelstudio/internal/extract"
	"voxelstudio/internal/occupancy"
	"voxelstudio/internal/voxel"
)

func gpuOrSkip(t *testing.T) *System {
	t.Helper()
	if _, err := Initialize(); err != nil {
		t.Skipf("no GPU adapter: %v", err)
	}
	return Get()
}

type rig struct {
	dev     *CollisionDevice
	disp    *collision.Dispatcher
	terrain *collision.Terrain
	limits  collision.Limits
}

func newRig(t *testing.T, limits collision.Limits) *rig {
	sys := gpuOrSkip(t)
	dev, err := NewCollisionDevice(sys, limits)
	require.NoError(t, err)
	t.Cleanup(dev.Release)

	w := voxel.NewWorld()
	w.FillBox([3]int{-8, 0, -8}, [3]int{40, 3, 40}, voxel.Voxel{})
	terrain := collision.NewTerrain(limits.MaxChunks)
	ch, err := terrain.Apply(extract.NewTerrainTracker().Extract(w))
	require.NoError(t, err)

	disp := collision.NewDispatcher(dev, terrain, limits)
	require.NoError(t, disp.Upload(ch))
	return &rig{dev: dev, disp: disp, terrain: terrain, limits: limits}
}

// readContacts copies and maps staging buffer 0, polling until the map
// completes.
func readContacts(t *testing.T, dev *CollisionDevice) []byte {
	t.Helper()
	require.NoError(t, dev.CopyContacts(0))
	var status *collision.MapStatus
	require.NoError(t, dev.MapAsync(0, func(s collision.MapStatus) { status = &s }))

	deadline := time.Now().Add(5 * time.Second)
	for status == nil && time.Now().Before(deadline) {
		dev.Poll()
		time.Sleep(time.Millisecond)
	}
	require.NotNil(t, status, "map did not complete")
	require.Equal(t, collision.MapSuccess, *status)

	raw := append([]byte(nil), dev.MappedRange(0)...)
	dev.Unmap(0)
	return raw
}

func fragmentScene(n int, y float32) *engine.Scene {
	scene := engine.NewScene("gpu")
	for i := 0; i < n; i++ {
		g := engine.NewGameObject("fragment")
		g.Transform.Position = mgl32.Vec3{float32(i*3) - 4, y, 5}
		if i%2 == 1 {
			g.Transform.Rotation = mgl32.QuatRotate(0.3, mgl32.Vec3{0, 1, 0})
		}
		g.AddComponent(components.NewVoxelFragment(occupancy.SolidFragment(2, 2, 2)))
		scene.AddGameObject(g)
	}
	return scene
}

func TestNewCollisionDeviceWithoutSystem(t *testing.T) {
	_, err := NewCollisionDevice(nil, collision.DefaultLimits())
	assert.ErrorIs(t, err, ErrPipelineCreationFailed)
}

func TestDeviceMatchesHostCollider(t *testing.T) {
	r := newRig(t, collision.DefaultLimits())
	snap := extract.Fragments(fragmentScene(10, 4.3), 1)

	_, err := r.disp.Dispatch(snap)
	require.NoError(t, err)
	got, err := collision.DecodeContacts(readContacts(t, r.dev), r.limits.MaxContacts)
	require.NoError(t, err)

	want := collision.NewHostCollider(r.terrain, r.limits).Collide(snap)
	require.Len(t, got, len(want.Contacts))
	require.Len(t, got, 40)
	for i := range got {
		assert.Equal(t, want.Contacts[i].Entity, got[i].Entity)
		assert.Equal(t, want.Contacts[i].VoxelIndex, got[i].VoxelIndex)
		assert.Equal(t, want.Contacts[i].Normal, got[i].Normal)
		assert.InDelta(t, want.Contacts[i].Penetration, got[i].Penetration, 1e-4)
	}
}

func TestDeviceNoContactsAboveSurface(t *testing.T) {
	r := newRig(t, collision.DefaultLimits())
	_, err := r.disp.Dispatch(extract.Fragments(fragmentScene(3, 6), 1))
	require.NoError(t, err)

	got, err := collision.DecodeContacts(readContacts(t, r.dev), r.limits.MaxContacts)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDeviceReportsOverflow(t *testing.T) {
	limits := collision.DefaultLimits()
	limits.MaxContacts = 3
	r := newRig(t, limits)
	_, err := r.disp.Dispatch(extract.Fragments(fragmentScene(2, 4.3), 1))
	require.NoError(t, err)

	got, err := collision.DecodeContacts(readContacts(t, r.dev), limits.MaxContacts)
	assert.ErrorIs(t, err, collision.ErrCapacityExceeded)
	assert.Len(t, got, 3)
}

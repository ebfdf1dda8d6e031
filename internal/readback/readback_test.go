package readback

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

type harness struct {
	dev   *collision.HostDevice
	disp  *collision.Dispatcher
	pipe  *Pipeline
	scene *engine.Scene
	frag  *engine.GameObject
	frame uint64
}

func newHarness(t *testing.T) *harness {
	w := voxel.NewWorld()
	w.FillBox([3]int{0, 0, 0}, [3]int{15, 3, 15}, voxel.Voxel{})

	limits := collision.DefaultLimits()
	terrain := collision.NewTerrain(limits.MaxChunks)
	ch, err := terrain.Apply(extract.NewTerrainTracker().Extract(w))
	require.NoError(t, err)

	dev := collision.NewHostDevice(limits.MaxChunks, limits.MaxContacts)
	disp := collision.NewDispatcher(dev, terrain, limits)
	require.NoError(t, disp.Upload(ch))

	scene := engine.NewScene("readback")
	g := engine.NewGameObject("fragment")
	g.Transform.Position = mgl32.Vec3{5, 4.3, 5}
	g.AddComponent(components.NewVoxelFragment(occupancy.SolidFragment(2, 2, 2)))
	scene.AddGameObject(g)

	return &harness{dev: dev, disp: disp, pipe: New(dev, limits.MaxContacts), scene: scene, frag: g}
}

// step runs one frame boundary: poll, then dispatch and submit.
func (h *harness) step(t *testing.T) bool {
	h.frame++
	h.pipe.Poll()
	id, ok := h.pipe.Begin()
	if !ok {
		return false
	}
	sub, err := h.disp.Dispatch(extract.Fragments(h.scene, h.frame))
	require.NoError(t, err)
	require.NoError(t, h.pipe.Submit(id, sub))
	return true
}

func receive(p *Pipeline) (collision.Batch, bool) {
	select {
	case b := <-p.Deliveries():
		return b, true
	default:
		return collision.Batch{}, false
	}
}

func TestOneFrameLatencyAndAlternation(t *testing.T) {
	h := newHarness(t)

	require.True(t, h.step(t))
	assert.Equal(t, [2]State{MapPending, Idle}, h.pipe.States())
	_, ok := receive(h.pipe)
	assert.False(t, ok, "nothing is available in the frame it was computed")

	require.True(t, h.step(t))
	assert.Equal(t, [2]State{Idle, MapPending}, h.pipe.States())
	b, ok := receive(h.pipe)
	require.True(t, ok)
	assert.Equal(t, uint64(1), b.Frame)
	require.Len(t, b.Contacts, 4)
	assert.Equal(t, h.frag.UID, b.Contacts[0].Entity)

	require.True(t, h.step(t))
	assert.Equal(t, [2]State{MapPending, Idle}, h.pipe.States())
	b, ok = receive(h.pipe)
	require.True(t, ok)
	assert.Equal(t, uint64(2), b.Frame)
	assert.Equal(t, 2, h.pipe.Stats().Delivered)
}

func TestNeverCompletingMapsDoNotBlock(t *testing.T) {
	h := newHarness(t)
	h.dev.NeverCompleteMaps = true

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			h.step(t)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("frame loop stalled on a pending map")
	}

	assert.Equal(t, [2]State{MapPending, MapPending}, h.pipe.States())
	assert.Equal(t, 198, h.pipe.ConsecutiveFailures())
	assert.Equal(t, 198, h.pipe.Stats().SkippedFrames)
	_, ok := receive(h.pipe)
	assert.False(t, ok)
}

func TestMapFailureDropsFrameAndRecovers(t *testing.T) {
	h := newHarness(t)
	h.dev.FailMaps = true

	require.True(t, h.step(t))
	require.True(t, h.step(t))
	assert.Equal(t, [2]State{Idle, MapPending}, h.pipe.States())
	assert.Equal(t, 1, h.pipe.Stats().MapFailures)
	assert.Equal(t, 1, h.pipe.ConsecutiveFailures())
	_, ok := receive(h.pipe)
	assert.False(t, ok)

	h.dev.FailMaps = false
	require.True(t, h.step(t))
	b, ok := receive(h.pipe)
	require.True(t, ok)
	assert.Equal(t, uint64(2), b.Frame)
	assert.Zero(t, h.pipe.ConsecutiveFailures())
}

func TestUnconsumedBatchIsReplaced(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 4; i++ {
		require.True(t, h.step(t))
	}
	h.pipe.Poll()

	b, ok := receive(h.pipe)
	require.True(t, ok)
	assert.Equal(t, uint64(4), b.Frame)
	_, ok = receive(h.pipe)
	assert.False(t, ok)
	assert.Equal(t, 3, h.pipe.Stats().Dropped)
}

func TestContactsOutsideSubmissionAreDiscarded(t *testing.T) {
	h := newHarness(t)
	h.frame++
	id, ok := h.pipe.Begin()
	require.True(t, ok)
	sub, err := h.disp.Dispatch(extract.Fragments(h.scene, h.frame))
	require.NoError(t, err)
	sub.Entities = nil
	require.NoError(t, h.pipe.Submit(id, sub))

	h.pipe.Poll()
	b, ok := receive(h.pipe)
	require.True(t, ok)
	assert.Empty(t, b.Contacts)
}

func TestAbortReleasesWriteTarget(t *testing.T) {
	h := newHarness(t)
	id, ok := h.pipe.Begin()
	require.True(t, ok)
	assert.Equal(t, Writing, h.pipe.States()[id])
	h.pipe.Abort(id)
	assert.Equal(t, Idle, h.pipe.States()[id])

	assert.Error(t, h.pipe.Submit(id, collision.Submission{}))
}

func TestDiscardBeforeDropsOldFrames(t *testing.T) {
	h := newHarness(t)
	h.dev.NeverCompleteMaps = true
	require.True(t, h.step(t))
	require.True(t, h.step(t))

	// both maps finish only after the caller has moved on to frame 3
	h.pipe.DiscardBefore(3)
	h.dev.NeverCompleteMaps = false
	h.pipe.Poll()
	h.pipe.Poll()
	_, ok := receive(h.pipe)
	assert.False(t, ok)
	assert.Equal(t, 2, h.pipe.Stats().Stale)
	assert.Equal(t, [2]State{Idle, Idle}, h.pipe.States())

	require.True(t, h.step(t))
	h.pipe.Poll()
	b, ok := receive(h.pipe)
	require.True(t, ok)
	assert.Equal(t, uint64(3), b.Frame)
}

func TestDiscardBeforeEmptiesDeliveryChannel(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.step(t))
	h.pipe.Poll()

	h.pipe.DiscardBefore(2)
	_, ok := receive(h.pipe)
	assert.False(t, ok)
	assert.Equal(t, 1, h.pipe.Stats().Stale)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "map-pending", MapPending.String())
	assert.Equal(t, "State(9)", State(9).String())
}

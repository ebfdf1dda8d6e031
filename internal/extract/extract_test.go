package extract

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voxelstudio/internal/components"
	"voxelstudio/internal/engine"
	"voxelstudio/internal/occupancy"
	"voxelstudio/internal/voxel"
)

func TestFragmentsSortedAndFiltered(t *testing.T) {
	scene := engine.NewScene("extract")

	var objs []*engine.GameObject
	for i := 0; i < 3; i++ {
		g := engine.NewGameObject("frag")
		g.AddComponent(components.NewVoxelFragment(occupancy.SolidFragment(2, 2, 2)))
		g.Transform.Position = mgl32.Vec3{float32(i), 10, 0}
		objs = append(objs, g)
	}
	box := engine.NewGameObject("box")
	box.AddComponent(components.NewKinematicBox(mgl32.Vec3{0.5, 1, 0.5}))

	inactive := engine.NewGameObject("inactive")
	inactive.AddComponent(components.NewVoxelFragment(occupancy.SolidFragment(1, 1, 1)))
	inactive.Active = false

	plain := engine.NewGameObject("plain")

	// reverse insertion order
	scene.AddGameObject(plain)
	scene.AddGameObject(inactive)
	scene.AddGameObject(box)
	for i := len(objs) - 1; i >= 0; i-- {
		scene.AddGameObject(objs[i])
	}

	snap := Fragments(scene, 3)
	require.Len(t, snap.Fragments, 4)
	assert.Equal(t, uint64(3), snap.Frame)

	ids := snap.Entities()
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}
	assert.Equal(t, objs[0].UID, ids[0])
	assert.Equal(t, mgl32.Vec3{0, 10, 0}, snap.Fragments[0].Position)
	assert.Equal(t, 8, snap.Fragments[0].Voxels())

	last := snap.Fragments[3]
	assert.Equal(t, box.UID, last.Entity)
	assert.True(t, last.Solid)
	assert.Nil(t, last.Occupancy)
	assert.Equal(t, [3]int{1, 2, 1}, last.Size)
}

func TestTerrainFirstExtractIsFull(t *testing.T) {
	w := voxel.NewWorld()
	w.FillBox([3]int{0, 0, 0}, [3]int{40, 0, 0}, voxel.Voxel{})

	tr := NewTerrainTracker()
	delta := tr.Extract(w)
	require.Len(t, delta.Upserts, 2)
	assert.Empty(t, delta.Removals)
	assert.Equal(t, voxel.ChunkCoord{}, delta.Upserts[0].Coord)

	assert.True(t, tr.Extract(w).Empty(), "no edits, no uploads")
}

func TestTerrainOnlyDirtyChunksReupload(t *testing.T) {
	w := voxel.NewWorld()
	w.FillBox([3]int{0, 0, 0}, [3]int{40, 0, 0}, voxel.Voxel{})
	tr := NewTerrainTracker()
	tr.Extract(w)

	w.SetVoxel(35, 5, 0, voxel.Voxel{})
	delta := tr.Extract(w)
	require.Len(t, delta.Upserts, 1)
	assert.Equal(t, voxel.ChunkCoord{X: 1}, delta.Upserts[0].Coord)

	// the upload is a copy, later edits do not leak into it
	words := delta.Upserts[0].Words
	w.ClearVoxel(35, 5, 0)
	assert.Equal(t, 10, countBits(words))
	assert.Equal(t, 9, countBits(chunkWords(t, w, voxel.ChunkCoord{X: 1})))
}

func TestTerrainReplacedChunkReuploads(t *testing.T) {
	w := voxel.NewWorld()
	w.SetVoxel(1, 1, 1, voxel.Voxel{})
	tr := NewTerrainTracker()
	tr.Extract(w)

	// same generation, different chunk
	c := voxel.NewChunk()
	c.Set(2, 2, 2, voxel.Voxel{})
	w.LoadChunk(voxel.ChunkCoord{}, c)

	delta := tr.Extract(w)
	require.Len(t, delta.Upserts, 1)
}

func TestTerrainRemovals(t *testing.T) {
	w := voxel.NewWorld()
	w.SetVoxel(1, 1, 1, voxel.Voxel{})
	w.SetVoxel(-1, 1, 1, voxel.Voxel{})
	tr := NewTerrainTracker()
	tr.Extract(w)

	w.UnloadChunk(voxel.ChunkCoord{X: -1})
	w.ClearVoxel(1, 1, 1)

	delta := tr.Extract(w)
	assert.Empty(t, delta.Upserts)
	assert.Equal(t, []voxel.ChunkCoord{{X: -1}, {}}, delta.Removals)

	tr.Reset()
	w.SetVoxel(1, 1, 1, voxel.Voxel{})
	assert.Len(t, tr.Extract(w).Upserts, 1)
}

func chunkWords(t *testing.T, w *voxel.World, coord voxel.ChunkCoord) []uint32 {
	c, ok := w.Chunk(coord)
	require.True(t, ok)
	return c.Occupancy().Words()
}

func countBits(words []uint32) int {
	n := 0
	for _, w := range words {
		for ; w != 0; w &= w - 1 {
			n++
		}
	}
	return n
}

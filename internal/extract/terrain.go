package extract

import (
	"slices"

	"voxelstudio/internal/voxel"
)

// ChunkUpload carries a copy of one chunk's occupancy words.
type ChunkUpload struct {
	Coord      voxel.ChunkCoord
	Generation uint64
	Words      []uint32
}

// TerrainDelta is the set of terrain changes since the previous extraction.
type TerrainDelta struct {
	Upserts  []ChunkUpload
	Removals []voxel.ChunkCoord
}

func (d TerrainDelta) Empty() bool {
	return len(d.Upserts) == 0 && len(d.Removals) == 0
}

type trackedChunk struct {
	chunk      *voxel.Chunk
	generation uint64
}

// TerrainTracker remembers which chunk generations have been handed to the
// device. Tracking is per chunk: one edited voxel re-uploads its whole chunk.
type TerrainTracker struct {
	seen map[voxel.ChunkCoord]trackedChunk
}

func NewTerrainTracker() *TerrainTracker {
	return &TerrainTracker{seen: make(map[voxel.ChunkCoord]trackedChunk)}
}

// Reset forgets everything, so the next Extract is a full upload.
func (t *TerrainTracker) Reset() {
	t.seen = make(map[voxel.ChunkCoord]trackedChunk)
}

// Extract returns the chunks that were added, edited, replaced or unloaded since
// the last call. Chunks with no occupied voxels are treated as absent.
func (t *TerrainTracker) Extract(w *voxel.World) TerrainDelta {
	var delta TerrainDelta
	live := make(map[voxel.ChunkCoord]struct{}, w.ChunkCount())

	for _, coord := range w.Coords() {
		c, _ := w.Chunk(coord)
		if c.Count() == 0 {
			continue
		}
		live[coord] = struct{}{}
		prev, ok := t.seen[coord]
		if ok && prev.chunk == c && prev.generation == c.Generation() {
			continue
		}
		delta.Upserts = append(delta.Upserts, ChunkUpload{
			Coord:      coord,
			Generation: c.Generation(),
			Words:      c.Occupancy().Clone().Words(),
		})
		t.seen[coord] = trackedChunk{chunk: c, generation: c.Generation()}
	}

	for _, coord := range sortedCoords(t.seen) {
		if _, ok := live[coord]; !ok {
			delta.Removals = append(delta.Removals, coord)
			delete(t.seen, coord)
		}
	}
	return delta
}

func sortedCoords(m map[voxel.ChunkCoord]trackedChunk) []voxel.ChunkCoord {
	out := make([]voxel.ChunkCoord, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b voxel.ChunkCoord) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return out
}

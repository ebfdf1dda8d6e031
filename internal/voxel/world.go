// Package voxel holds authored voxel terrain: chunks of optional voxels keyed by
// chunk coordinate, each with a derived occupancy bitset and generation counter.
package voxel

import (
	"sort"

	"github.com/go-gl/mathgl/mgl32"
)

// World owns the persistent terrain. It is mutated only by the simulation
// thread; the collision pipeline reads it during extraction.
type World struct {
	chunks map[ChunkCoord]*Chunk
}

// NewWorld creates an empty terrain.
func NewWorld() *World {
	return &World{chunks: make(map[ChunkCoord]*Chunk)}
}

// SetVoxel fills a world voxel, creating its chunk if needed.
func (w *World) SetVoxel(x, y, z int, v Voxel) {
	coord := WorldToChunk(x, y, z)
	c, ok := w.chunks[coord]
	if !ok {
		c = NewChunk()
		w.chunks[coord] = c
	}
	lx, ly, lz := WorldToLocal(x, y, z)
	c.Set(lx, ly, lz, v)
}

// ClearVoxel empties a world voxel and reports whether it was filled.
func (w *World) ClearVoxel(x, y, z int) bool {
	c, ok := w.chunks[WorldToChunk(x, y, z)]
	if !ok {
		return false
	}
	lx, ly, lz := WorldToLocal(x, y, z)
	return c.Clear(lx, ly, lz)
}

// Voxel returns the voxel at a world coordinate, if any.
func (w *World) Voxel(x, y, z int) (Voxel, bool) {
	c, ok := w.chunks[WorldToChunk(x, y, z)]
	if !ok {
		return Voxel{}, false
	}
	lx, ly, lz := WorldToLocal(x, y, z)
	return c.Get(lx, ly, lz)
}

// Occupied reports whether a world voxel is filled. Unloaded chunks are empty.
func (w *World) Occupied(x, y, z int) bool {
	c, ok := w.chunks[WorldToChunk(x, y, z)]
	if !ok {
		return false
	}
	lx, ly, lz := WorldToLocal(x, y, z)
	return c.occ.Get(lx, ly, lz)
}

// OccupiedAt reports whether the voxel containing a world-space point is filled.
func (w *World) OccupiedAt(p mgl32.Vec3) bool {
	v := PointToVoxel(p)
	return w.Occupied(v[0], v[1], v[2])
}

// RegionOccupied reports whether any voxel in the inclusive box is filled.
func (w *World) RegionOccupied(min, max [3]int) bool {
	for z := min[2]; z <= max[2]; z++ {
		for y := min[1]; y <= max[1]; y++ {
			for x := min[0]; x <= max[0]; x++ {
				if w.Occupied(x, y, z) {
					return true
				}
			}
		}
	}
	return false
}

// FillBox fills the inclusive box with v.
func (w *World) FillBox(min, max [3]int, v Voxel) {
	for z := min[2]; z <= max[2]; z++ {
		for y := min[1]; y <= max[1]; y++ {
			for x := min[0]; x <= max[0]; x++ {
				w.SetVoxel(x, y, z, v)
			}
		}
	}
}

// Chunk returns a loaded chunk.
func (w *World) Chunk(coord ChunkCoord) (*Chunk, bool) {
	c, ok := w.chunks[coord]
	return c, ok
}

// LoadChunk inserts or replaces a chunk.
func (w *World) LoadChunk(coord ChunkCoord, c *Chunk) {
	w.chunks[coord] = c
}

// UnloadChunk removes a chunk and reports whether it was loaded.
func (w *World) UnloadChunk(coord ChunkCoord) bool {
	if _, ok := w.chunks[coord]; !ok {
		return false
	}
	delete(w.chunks, coord)
	return true
}

// Coords returns the loaded chunk coordinates in ascending order.
func (w *World) Coords() []ChunkCoord {
	coords := make([]ChunkCoord, 0, len(w.chunks))
	for c := range w.chunks {
		coords = append(coords, c)
	}
	sort.Slice(coords, func(i, j int) bool { return coords[i].Less(coords[j]) })
	return coords
}

// ChunkCount returns the number of loaded chunks.
func (w *World) ChunkCount() int {
	return len(w.chunks)
}

// Generation returns the generation of a loaded chunk.
func (w *World) Generation(coord ChunkCoord) (uint64, bool) {
	c, ok := w.chunks[coord]
	if !ok {
		return 0, false
	}
	return c.generation, true
}

package voxel

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"voxelstudio/internal/occupancy"
)

// ChunkSize is the edge length of a chunk in voxels.
const ChunkSize = occupancy.ChunkSize

const chunkVolume = ChunkSize * ChunkSize * ChunkSize

// Voxel is an authored cell: a colour and an emission scalar.
type Voxel struct {
	Color    [3]uint8
	Emission float32
}

// ChunkCoord addresses a chunk in chunk units.
type ChunkCoord struct {
	X, Y, Z int32
}

// Less orders coordinates by X, then Y, then Z.
func (c ChunkCoord) Less(o ChunkCoord) bool {
	if c.X != o.X {
		return c.X < o.X
	}
	if c.Y != o.Y {
		return c.Y < o.Y
	}
	return c.Z < o.Z
}

// Origin returns the world voxel coordinate of the chunk's minimum corner.
func (c ChunkCoord) Origin() [3]int {
	return [3]int{int(c.X) * ChunkSize, int(c.Y) * ChunkSize, int(c.Z) * ChunkSize}
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// WorldToChunk returns the chunk containing a world voxel coordinate.
// Floor division keeps negative coordinates in the correct chunk.
func WorldToChunk(x, y, z int) ChunkCoord {
	return ChunkCoord{
		X: int32(floorDiv(x, ChunkSize)),
		Y: int32(floorDiv(y, ChunkSize)),
		Z: int32(floorDiv(z, ChunkSize)),
	}
}

// WorldToLocal returns the chunk-local coordinate of a world voxel coordinate.
func WorldToLocal(x, y, z int) (int, int, int) {
	return floorMod(x, ChunkSize), floorMod(y, ChunkSize), floorMod(z, ChunkSize)
}

// PointToVoxel floors a world-space point to the voxel containing it.
// A point exactly on a voxel face belongs to the voxel on its positive side.
func PointToVoxel(p mgl32.Vec3) [3]int {
	return [3]int{
		int(math32.Floor(p[0])),
		int(math32.Floor(p[1])),
		int(math32.Floor(p[2])),
	}
}

// Chunk is a dense 32^3 array of optional voxels with a derived occupancy bitset.
type Chunk struct {
	voxels     []Voxel
	occ        *occupancy.Chunk
	generation uint64
}

// NewChunk creates an empty chunk.
func NewChunk() *Chunk {
	return &Chunk{
		voxels: make([]Voxel, chunkVolume),
		occ:    occupancy.NewChunk(),
	}
}

func localIndex(x, y, z int) int {
	return x + y*ChunkSize + z*ChunkSize*ChunkSize
}

// Get returns the voxel at a local coordinate, if any.
func (c *Chunk) Get(x, y, z int) (Voxel, bool) {
	if !c.occ.Get(x, y, z) {
		return Voxel{}, false
	}
	return c.voxels[localIndex(x, y, z)], true
}

// Set stores a voxel. The occupancy bit and generation change only when the
// cell goes from empty to filled; recolouring does not affect collision.
func (c *Chunk) Set(x, y, z int, v Voxel) {
	if !occupancy.InChunk(x, y, z) {
		return
	}
	c.voxels[localIndex(x, y, z)] = v
	if c.occ.Set(x, y, z, true) {
		c.generation++
	}
}

// Clear empties a cell and reports whether it was filled.
func (c *Chunk) Clear(x, y, z int) bool {
	if !c.occ.Set(x, y, z, false) {
		return false
	}
	c.voxels[localIndex(x, y, z)] = Voxel{}
	c.generation++
	return true
}

// Occupancy returns the derived bitset. It is kept in sync on every mutation.
func (c *Chunk) Occupancy() *occupancy.Chunk {
	return c.occ
}

// Generation is a monotonic counter bumped whenever occupancy changes.
func (c *Chunk) Generation() uint64 {
	return c.generation
}

// Count returns the number of filled voxels.
func (c *Chunk) Count() int {
	return c.occ.Count()
}

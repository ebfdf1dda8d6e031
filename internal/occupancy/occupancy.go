// Package occupancy provides bit-packed voxel occupancy for terrain chunks and
// movable fragments. Bitsets are the only voxel representation uploaded to the GPU.
package occupancy

import "math/bits"

// ChunkSize is the edge length of a terrain chunk in voxels.
const ChunkSize = 32

// ChunkWords is the number of uint32 words needed for one chunk (32768 bits).
const ChunkWords = ChunkSize * ChunkSize * ChunkSize / 32

// Chunk is the bit-packed occupancy of a single 32x32x32 chunk.
// Linear index: x + y*32 + z*32*32, word = index/32, bit = index%32.
type Chunk struct {
	words [ChunkWords]uint32
}

// NewChunk creates an empty chunk occupancy.
func NewChunk() *Chunk {
	return &Chunk{}
}

// InChunk reports whether a local coordinate lies inside a chunk.
func InChunk(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < ChunkSize && y < ChunkSize && z < ChunkSize
}

func chunkBit(x, y, z int) (int, uint32) {
	linear := x + y*ChunkSize + z*ChunkSize*ChunkSize
	return linear >> 5, uint32(linear & 31)
}

// Get returns whether the local voxel is occupied.
// Out of range coordinates are empty.
func (c *Chunk) Get(x, y, z int) bool {
	if !InChunk(x, y, z) {
		return false
	}
	w, b := chunkBit(x, y, z)
	return c.words[w]&(1<<b) != 0
}

// Set updates a single bit and reports whether it changed.
// Out of range coordinates are ignored.
func (c *Chunk) Set(x, y, z int, occupied bool) bool {
	if !InChunk(x, y, z) {
		return false
	}
	w, b := chunkBit(x, y, z)
	old := c.words[w]
	if occupied {
		c.words[w] |= 1 << b
	} else {
		c.words[w] &^= 1 << b
	}
	return old != c.words[w]
}

// Count returns the number of occupied voxels.
func (c *Chunk) Count() int {
	n := 0
	for _, w := range c.words {
		n += bits.OnesCount32(w)
	}
	return n
}

// Empty reports whether no voxel is occupied.
func (c *Chunk) Empty() bool {
	for _, w := range c.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Words exposes the packed words for upload. Callers must not modify them.
func (c *Chunk) Words() []uint32 {
	return c.words[:]
}

// Clone returns an independent copy.
func (c *Chunk) Clone() *Chunk {
	cp := *c
	return &cp
}

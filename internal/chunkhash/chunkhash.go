// Package chunkhash maps chunk coordinates to device occupancy layers using an
// open-addressed table with linear probing. The same hash and probe order is
// implemented by the collision kernel; LookupPacked is the host copy of that
// lookup and is used to verify the two agree.
package chunkhash

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"voxelstudio/internal/voxel"
)

// ProbeDepth is the number of consecutive slots examined by insert and lookup.
const ProbeDepth = 4

// SlotWords is the number of int32 words per slot in the packed layout.
const SlotWords = 4

// Sentinel values of an empty packed slot.
const (
	EmptyCoord int32 = math.MaxInt32
	NoLayer    int32 = -1
)

var ErrTableFull = errors.New("chunk hash table full")

// Hash returns the home slot of coord in a table of the given size.
// Arithmetic wraps in uint32, matching the device.
func Hash(coord voxel.ChunkCoord, size int) int {
	h := uint32(coord.X)
	h = h*31 + uint32(coord.Y)
	h = h*31 + uint32(coord.Z)
	return int(h % uint32(size))
}

type slotState uint8

const (
	slotEmpty slotState = iota
	slotLive
	slotTombstone
)

type slot struct {
	coord    voxel.ChunkCoord
	layer    int32
	state    slotState
	lastUsed uint64
}

// Slot is a resolved table entry.
type Slot struct {
	Index int
	Layer int32
}

// Entry is a live coordinate and its layer.
type Entry struct {
	Coord voxel.ChunkCoord
	Layer int32
	Slot  int
}

// Table is the host side of the chunk hash table. The slot array doubles as the
// reverse map from slot to coordinate.
type Table struct {
	slots []slot
	index map[voxel.ChunkCoord]int
	clock uint64
	dirty bool
}

// New creates a table for up to maxChunks resident chunks. The slot count is
// four times that to keep probe chains short.
func New(maxChunks int) *Table {
	size := max(maxChunks, 1) * 4
	return &Table{
		slots: make([]slot, size),
		index: make(map[voxel.ChunkCoord]int),
		dirty: true,
	}
}

// Size returns the number of slots.
func (t *Table) Size() int { return len(t.slots) }

// Len returns the number of live entries.
func (t *Table) Len() int { return len(t.index) }

func (t *Table) probe(coord voxel.ChunkCoord, i int) int {
	return (Hash(coord, len(t.slots)) + i) % len(t.slots)
}

// Upsert inserts coord or updates its layer. It fails with ErrTableFull when
// the probe window holds only live entries for other coordinates.
func (t *Table) Upsert(coord voxel.ChunkCoord, layer int32) (int, error) {
	t.clock++
	if idx, ok := t.index[coord]; ok {
		s := &t.slots[idx]
		if s.layer != layer {
			s.layer = layer
			t.dirty = true
		}
		s.lastUsed = t.clock
		return idx, nil
	}

	target := -1
	for i := 0; i < ProbeDepth; i++ {
		idx := t.probe(coord, i)
		s := t.slots[idx]
		if s.state == slotEmpty {
			if target < 0 {
				target = idx
			}
			break
		}
		if s.state == slotTombstone && target < 0 {
			target = idx
		}
	}
	if target < 0 {
		return -1, fmt.Errorf("%w: chunk %v", ErrTableFull, coord)
	}

	t.slots[target] = slot{coord: coord, layer: layer, state: slotLive, lastUsed: t.clock}
	t.index[coord] = target
	t.dirty = true
	return target, nil
}

// Lookup follows the probe sequence until it finds coord, reaches an empty
// slot, or exhausts the probe depth.
func (t *Table) Lookup(coord voxel.ChunkCoord) (Slot, bool) {
	for i := 0; i < ProbeDepth; i++ {
		idx := t.probe(coord, i)
		s := t.slots[idx]
		switch s.state {
		case slotEmpty:
			return Slot{}, false
		case slotLive:
			if s.coord == coord {
				return Slot{Index: idx, Layer: s.layer}, true
			}
		case slotTombstone:
			if s.coord == coord {
				return Slot{}, false
			}
		}
	}
	return Slot{}, false
}

// Remove tombstones the slot of coord and returns the layer it held.
func (t *Table) Remove(coord voxel.ChunkCoord) (int32, bool) {
	idx, ok := t.index[coord]
	if !ok {
		return NoLayer, false
	}
	s := &t.slots[idx]
	layer := s.layer
	s.state = slotTombstone
	s.layer = NoLayer
	delete(t.index, coord)
	t.dirty = true
	return layer, true
}

// Touch marks coord as recently used.
func (t *Table) Touch(coord voxel.ChunkCoord) {
	if idx, ok := t.index[coord]; ok {
		t.clock++
		t.slots[idx].lastUsed = t.clock
	}
}

// CoordAt returns the live coordinate stored at a slot.
func (t *Table) CoordAt(idx int) (voxel.ChunkCoord, bool) {
	if idx < 0 || idx >= len(t.slots) || t.slots[idx].state != slotLive {
		return voxel.ChunkCoord{}, false
	}
	return t.slots[idx].coord, true
}

// EvictFor removes the least recently used live entry in the probe window of
// coord, making room for it. Entries for which protect returns true are never
// chosen; a nil protect allows any entry. The evicted entry is returned so its
// layer can be released.
func (t *Table) EvictFor(coord voxel.ChunkCoord, protect func(voxel.ChunkCoord) bool) (Entry, bool) {
	victim := -1
	for i := 0; i < ProbeDepth; i++ {
		idx := t.probe(coord, i)
		s := t.slots[idx]
		if s.state != slotLive || s.coord == coord || (protect != nil && protect(s.coord)) {
			continue
		}
		if victim < 0 || s.lastUsed < t.slots[victim].lastUsed {
			victim = idx
		}
	}
	if victim < 0 {
		return Entry{}, false
	}
	e := Entry{Coord: t.slots[victim].coord, Layer: t.slots[victim].layer, Slot: victim}
	t.Remove(e.Coord)
	return e, true
}

// EvictLRU removes the least recently used live entry in the whole table,
// skipping entries protect returns true for.
func (t *Table) EvictLRU(protect func(voxel.ChunkCoord) bool) (Entry, bool) {
	victim := -1
	for idx, s := range t.slots {
		if s.state != slotLive || (protect != nil && protect(s.coord)) {
			continue
		}
		if victim < 0 || s.lastUsed < t.slots[victim].lastUsed {
			victim = idx
		}
	}
	if victim < 0 {
		return Entry{}, false
	}
	e := Entry{Coord: t.slots[victim].coord, Layer: t.slots[victim].layer, Slot: victim}
	t.Remove(e.Coord)
	return e, true
}

// Entries returns the live entries ordered by coordinate.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.index))
	for coord, idx := range t.index {
		out = append(out, Entry{Coord: coord, Layer: t.slots[idx].layer, Slot: idx})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Coord.Less(out[j].Coord) })
	return out
}

// Dirty reports whether the table changed since the last ClearDirty.
func (t *Table) Dirty() bool { return t.dirty }

// ClearDirty is called after the packed table has been uploaded.
func (t *Table) ClearDirty() { t.dirty = false }

// Packed returns the device layout: four int32 per slot (x, y, z, layer).
// Empty slots hold (MaxInt32, MaxInt32, MaxInt32, -1); tombstones keep their
// coordinate with layer -1.
func (t *Table) Packed() []int32 {
	out := make([]int32, len(t.slots)*SlotWords)
	for i, s := range t.slots {
		o := i * SlotWords
		if s.state == slotEmpty {
			out[o], out[o+1], out[o+2], out[o+3] = EmptyCoord, EmptyCoord, EmptyCoord, NoLayer
			continue
		}
		out[o], out[o+1], out[o+2] = s.coord.X, s.coord.Y, s.coord.Z
		if s.state == slotLive {
			out[o+3] = s.layer
		} else {
			out[o+3] = NoLayer
		}
	}
	return out
}

// LookupPacked resolves coord against a packed table exactly as the collision
// kernel does. It returns NoLayer when the chunk is absent.
func LookupPacked(packed []int32, coord voxel.ChunkCoord) int32 {
	size := len(packed) / SlotWords
	if size == 0 {
		return NoLayer
	}
	home := Hash(coord, size)
	for i := 0; i < ProbeDepth; i++ {
		o := ((home + i) % size) * SlotWords
		x, y, z, layer := packed[o], packed[o+1], packed[o+2], packed[o+3]
		if x == coord.X && y == coord.Y && z == coord.Z {
			return layer
		}
		if x == EmptyCoord && y == EmptyCoord && z == EmptyCoord {
			return NoLayer
		}
	}
	return NoLayer
}

package collision

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/chewxy/math32"

	"voxelstudio/internal/chunkhash"
	"voxelstudio/internal/extract"
	"voxelstudio/internal/occupancy"
	"voxelstudio/internal/voxel"
)

// Limits are the fixed capacities of the device buffers.
type Limits struct {
	MaxContacts      int
	MaxChunks        int
	MaxFragmentWords int
}

func DefaultLimits() Limits {
	return Limits{
		MaxContacts:      4096,
		MaxChunks:        64,
		MaxFragmentWords: 65536,
	}
}

// TerrainChanges lists what Apply modified and must be uploaded. Evicted and
// Parked chunks moved to the host-side parking area and come back once a
// fragment is near them; Skipped chunks were wanted but found no room.
type TerrainChanges struct {
	Layers  []int32
	Table   bool
	Evicted []voxel.ChunkCoord
	Parked  []voxel.ChunkCoord
	Skipped []voxel.ChunkCoord
}

// Terrain is the host copy of the device terrain: the chunk hash table and one
// occupancy layer per resident chunk. Both the device upload and the host
// collider read from it.
//
// When more chunks exist than there are layers, the chunks no fragment is near
// wait in parked until TouchNear marks them wanted again.
type Terrain struct {
	table  *chunkhash.Table
	words  []uint32
	free   []int32
	packed []int32
	parked map[voxel.ChunkCoord][]uint32
	near   map[voxel.ChunkCoord]struct{}
}

// NewTerrain creates a terrain with room for maxChunks resident chunks.
func NewTerrain(maxChunks int) *Terrain {
	t := &Terrain{
		table:  chunkhash.New(maxChunks),
		words:  make([]uint32, maxChunks*occupancy.ChunkWords),
		parked: make(map[voxel.ChunkCoord][]uint32),
		near:   make(map[voxel.ChunkCoord]struct{}),
	}
	for l := maxChunks - 1; l >= 0; l-- {
		t.free = append(t.free, int32(l))
	}
	t.packed = t.table.Packed()
	return t
}

// Table returns the underlying hash table.
func (t *Terrain) Table() *chunkhash.Table { return t.table }

// View returns the kernel input. It is valid until the next Apply.
func (t *Terrain) View() TerrainView {
	return TerrainView{Table: t.packed, Chunks: t.words}
}

// LayerWords returns the occupancy words of one layer.
func (t *Terrain) LayerWords(layer int32) []uint32 {
	base := int(layer) * occupancy.ChunkWords
	return t.words[base : base+occupancy.ChunkWords]
}

func (t *Terrain) release(layer int32) {
	clear(t.LayerWords(layer))
	t.free = append(t.free, layer)
}

func (t *Terrain) isNear(c voxel.ChunkCoord) bool {
	_, ok := t.near[c]
	return ok
}

// Apply folds an extraction delta into the table, then brings back parked
// chunks that a fragment is now near. A chunk near a fragment evicts the least
// recently used chunk nothing is near; other chunks are parked when the layers
// run out. Wanted chunks that still find no room are skipped and read as
// empty; the returned error wraps chunkhash.ErrTableFull in that case.
func (t *Terrain) Apply(delta extract.TerrainDelta) (TerrainChanges, error) {
	var ch TerrainChanges
	var errs []error

	for _, coord := range delta.Removals {
		delete(t.parked, coord)
		if layer, ok := t.table.Remove(coord); ok {
			t.release(layer)
		}
	}

	tried := make(map[voxel.ChunkCoord]struct{}, len(delta.Upserts))
	for _, up := range delta.Upserts {
		tried[up.Coord] = struct{}{}
		delete(t.parked, up.Coord)
		if slot, ok := t.table.Lookup(up.Coord); ok {
			t.table.Touch(up.Coord)
			copy(t.LayerWords(slot.Layer), up.Words)
			ch.Layers = append(ch.Layers, slot.Layer)
			continue
		}
		if err := t.place(up.Coord, up.Words, &ch); err != nil {
			errs = append(errs, err)
		}
	}

	wanted := make([]voxel.ChunkCoord, 0, len(t.near))
	for c := range t.near {
		_, parked := t.parked[c]
		_, done := tried[c]
		if parked && !done {
			wanted = append(wanted, c)
		}
	}
	sort.Slice(wanted, func(i, j int) bool { return wanted[i].Less(wanted[j]) })
	for _, c := range wanted {
		words := t.parked[c]
		delete(t.parked, c)
		if err := t.place(c, words, &ch); err != nil {
			errs = append(errs, err)
		}
	}

	if t.table.Dirty() {
		t.packed = t.table.Packed()
		t.table.ClearDirty()
		ch.Table = true
	}
	if len(errs) > 0 {
		return ch, fmt.Errorf("apply terrain: %w", errors.Join(errs...))
	}
	return ch, nil
}

// place gives a non-resident chunk a layer, evicting or parking as needed.
func (t *Terrain) place(coord voxel.ChunkCoord, words []uint32, ch *TerrainChanges) error {
	near := t.isNear(coord)
	if len(t.free) == 0 {
		if !near {
			t.park(coord, words, &ch.Parked)
			return nil
		}
		e, ok := t.table.EvictLRU(t.isNear)
		if !ok {
			t.park(coord, words, &ch.Skipped)
			return fmt.Errorf("%w: every resident chunk is near a fragment, %v has no layer", chunkhash.ErrTableFull, coord)
		}
		t.evict(e, ch)
	}
	layer := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]

	_, err := t.table.Upsert(coord, layer)
	if errors.Is(err, chunkhash.ErrTableFull) && near {
		if e, ok := t.table.EvictFor(coord, t.isNear); ok {
			t.evict(e, ch)
			_, err = t.table.Upsert(coord, layer)
		}
	}
	if err != nil {
		t.free = append(t.free, layer)
		if !near {
			t.park(coord, words, &ch.Parked)
			return nil
		}
		t.park(coord, words, &ch.Skipped)
		return fmt.Errorf("place chunk %v: %w", coord, err)
	}
	copy(t.LayerWords(layer), words)
	ch.Layers = append(ch.Layers, layer)
	return nil
}

func (t *Terrain) park(coord voxel.ChunkCoord, words []uint32, into *[]voxel.ChunkCoord) {
	t.parked[coord] = slices.Clone(words)
	*into = append(*into, coord)
}

// evict parks a resident chunk's words and frees its layer.
func (t *Terrain) evict(e chunkhash.Entry, ch *TerrainChanges) {
	t.parked[e.Coord] = slices.Clone(t.LayerWords(e.Layer))
	t.release(e.Layer)
	ch.Evicted = append(ch.Evicted, e.Coord)
}

// TouchNear records the chunks around every fragment as wanted for the next
// Apply and refreshes their LRU stamp. The box reaches one voxel past the
// fragment bound, plus the height the +Y exit search may climb.
func (t *Terrain) TouchNear(snap extract.FragmentSnapshot) {
	clear(t.near)
	for _, f := range snap.Fragments {
		r := 0.5*math32.Sqrt(float32(f.Size[0]*f.Size[0]+f.Size[1]*f.Size[1]+f.Size[2]*f.Size[2])) + 1
		lo := voxel.WorldToChunk(int(math32.Floor(f.Position[0]-r)), int(math32.Floor(f.Position[1]-r)), int(math32.Floor(f.Position[2]-r)))
		hi := voxel.WorldToChunk(int(math32.Floor(f.Position[0]+r)), int(math32.Floor(f.Position[1]+r))+surfaceSearch, int(math32.Floor(f.Position[2]+r)))
		for x := lo.X; x <= hi.X; x++ {
			for y := lo.Y; y <= hi.Y; y++ {
				for z := lo.Z; z <= hi.Z; z++ {
					c := voxel.ChunkCoord{X: x, Y: y, Z: z}
					t.near[c] = struct{}{}
					t.table.Touch(c)
				}
			}
		}
	}
}

// All describes every resident layer and the table, for a full re-upload to a
// device that missed earlier changes.
func (t *Terrain) All() TerrainChanges {
	ch := TerrainChanges{Table: true}
	for _, e := range t.table.Entries() {
		ch.Layers = append(ch.Layers, e.Layer)
	}
	return ch
}

// Resident is the number of chunks currently holding a layer.
func (t *Terrain) Resident() int {
	return t.table.Len()
}

// Parked is the number of chunks waiting for a layer.
func (t *Terrain) Parked() int {
	return len(t.parked)
}

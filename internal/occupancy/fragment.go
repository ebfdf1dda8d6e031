package occupancy

import "math/bits"

// Fragment is the occupancy of a movable voxel cluster of arbitrary size.
// It uses the same linear layout as Chunk: x + y*sx + z*sx*sy.
type Fragment struct {
	size  [3]int
	words []uint32
}

// NewFragment creates an empty fragment occupancy of the given size.
func NewFragment(sx, sy, sz int) *Fragment {
	sx, sy, sz = max(sx, 0), max(sy, 0), max(sz, 0)
	n := sx * sy * sz
	return &Fragment{
		size:  [3]int{sx, sy, sz},
		words: make([]uint32, (n+31)/32),
	}
}

// SolidFragment creates a fully occupied fragment, used for box-shaped bodies.
func SolidFragment(sx, sy, sz int) *Fragment {
	f := NewFragment(sx, sy, sz)
	for z := 0; z < f.size[2]; z++ {
		for y := 0; y < f.size[1]; y++ {
			for x := 0; x < f.size[0]; x++ {
				f.Set(x, y, z, true)
			}
		}
	}
	return f
}

// FragmentFromWords wraps previously packed words. The slice is copied.
func FragmentFromWords(size [3]int, words []uint32) *Fragment {
	f := NewFragment(size[0], size[1], size[2])
	copy(f.words, words)
	return f
}

// Size returns the extent in voxels.
func (f *Fragment) Size() [3]int {
	return f.size
}

func (f *Fragment) contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < f.size[0] && y < f.size[1] && z < f.size[2]
}

func (f *Fragment) bit(x, y, z int) (int, uint32) {
	linear := x + y*f.size[0] + z*f.size[0]*f.size[1]
	return linear >> 5, uint32(linear & 31)
}

// Get returns whether the local voxel is occupied. Out of range is empty.
func (f *Fragment) Get(x, y, z int) bool {
	if !f.contains(x, y, z) {
		return false
	}
	w, b := f.bit(x, y, z)
	return f.words[w]&(1<<b) != 0
}

// Set updates a single voxel and reports whether it changed.
func (f *Fragment) Set(x, y, z int, occupied bool) bool {
	if !f.contains(x, y, z) {
		return false
	}
	w, b := f.bit(x, y, z)
	old := f.words[w]
	if occupied {
		f.words[w] |= 1 << b
	} else {
		f.words[w] &^= 1 << b
	}
	return old != f.words[w]
}

// Count returns the number of occupied voxels.
func (f *Fragment) Count() int {
	n := 0
	for _, w := range f.words {
		n += bits.OnesCount32(w)
	}
	return n
}

// IterOccupied calls fn for every occupied voxel in linear order.
func (f *Fragment) IterOccupied(fn func(x, y, z int)) {
	for z := 0; z < f.size[2]; z++ {
		for y := 0; y < f.size[1]; y++ {
			for x := 0; x < f.size[0]; x++ {
				if f.Get(x, y, z) {
					fn(x, y, z)
				}
			}
		}
	}
}

// Words exposes the packed words for upload. Callers must not modify them.
func (f *Fragment) Words() []uint32 {
	return f.words
}

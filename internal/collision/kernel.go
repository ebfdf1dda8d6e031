package collision

import (
	"sync/atomic"

	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"voxelstudio/internal/chunkhash"
	"voxelstudio/internal/occupancy"
	"voxelstudio/internal/voxel"
)

// surfaceSearch bounds how far the +Y exit walks up to find the terrain top.
const surfaceSearch = 4

// TerrainView is the read-only terrain input of the kernel: the packed hash
// table and the chunk occupancy layers it points into.
type TerrainView struct {
	Table  []int32
	Chunks []uint32
}

// Occupied resolves a world voxel through the packed table. Chunks that do not
// resolve are empty.
func (v TerrainView) Occupied(x, y, z int) bool {
	layer := chunkhash.LookupPacked(v.Table, voxel.WorldToChunk(x, y, z))
	if layer < 0 {
		return false
	}
	base := int(layer) * occupancy.ChunkWords
	if base+occupancy.ChunkWords > len(v.Chunks) {
		return false
	}
	lx, ly, lz := voxel.WorldToLocal(x, y, z)
	idx := lx + ly*occupancy.ChunkSize + lz*occupancy.ChunkSize*occupancy.ChunkSize
	return v.Chunks[base+idx>>5]&(1<<uint(idx&31)) != 0
}

// contactSink is the host form of the output buffer: an atomic counter and a
// bounded record array. The counter keeps counting past capacity.
type contactSink struct {
	count   atomic.Uint32
	records []GPUContact
}

func newContactSink(maxContacts int) *contactSink {
	return &contactSink{records: make([]GPUContact, maxContacts)}
}

func (s *contactSink) reset() {
	s.count.Store(0)
}

func (s *contactSink) emit(c GPUContact) {
	idx := s.count.Add(1) - 1
	if int(idx) < len(s.records) {
		s.records[idx] = c
	}
}

// encode writes the header and stored records in the device buffer layout.
func (s *contactSink) encode() []byte {
	total := s.count.Load()
	n := min(int(total), len(s.records))
	out := make([]byte, ContactHeaderSize+n*ContactRecordSize)
	le.PutUint32(out, total)
	for i := 0; i < n; i++ {
		PutContact(out[ContactHeaderSize+i*ContactRecordSize:], s.records[i])
	}
	return out
}

// rotate applies q to v the same way the shader does.
func rotate(q mgl32.Quat, v mgl32.Vec3) mgl32.Vec3 {
	t := q.V.Cross(v).Add(v.Mul(q.W))
	return v.Add(q.V.Cross(t).Mul(2))
}

// invocation runs one kernel thread: grid cell (x, y, z) of the fragment
// selected by u.
func invocation(u Uniforms, frag GPUFragment, fragOcc []uint32, terrain TerrainView, x, y, z uint32, out *contactSink) {
	if x >= frag.Size[0] || y >= frag.Size[1] || z >= frag.Size[2] {
		return
	}
	linear := x + y*frag.Size[0] + z*frag.Size[0]*frag.Size[1]
	if frag.Flags&FlagSolid == 0 {
		w := linear >> 5
		if w >= u.OccWords || int(u.OccOffset+w) >= len(fragOcc) {
			return
		}
		if fragOcc[u.OccOffset+w]&(1<<(linear&31)) == 0 {
			return
		}
	}

	scale := u.VoxelScale
	local := mgl32.Vec3{
		(float32(x) + 0.5 - float32(frag.Size[0])*0.5) * scale,
		(float32(y) + 0.5 - float32(frag.Size[1])*0.5) * scale,
		(float32(z) + 0.5 - float32(frag.Size[2])*0.5) * scale,
	}
	p := rotate(frag.rotation(), local).Add(mgl32.Vec3(frag.Position))

	vx := int(math32.Floor(p[0]))
	vy := int(math32.Floor(p[1]))
	vz := int(math32.Floor(p[2]))
	if !terrain.Occupied(vx, vy, vz) {
		return
	}

	normal, depth := exitFace(terrain, p, vx, vy, vz)
	lo, hi := frag.EntityLo, frag.EntityHi
	out.emit(GPUContact{
		Position:    [3]float32{p[0], p[1], p[2]},
		Penetration: depth,
		Normal:      [3]float32{normal[0], normal[1], normal[2]},
		EntityLo:    lo,
		EntityHi:    hi,
		VoxelIndex:  linear,
		Kind:        uint32(KindTerrain),
	})
}

var faces = [6]struct {
	dir   [3]int
	axis  int
	upper bool
}{
	{[3]int{0, 1, 0}, 1, true},
	{[3]int{1, 0, 0}, 0, true},
	{[3]int{-1, 0, 0}, 0, false},
	{[3]int{0, 0, 1}, 2, true},
	{[3]int{0, 0, -1}, 2, false},
	{[3]int{0, -1, 0}, 1, false},
}

// exitFace picks the closest face of voxel v whose neighbour is empty. +Y is
// checked first and wins ties. A buried sample exits through +Y.
func exitFace(terrain TerrainView, p mgl32.Vec3, vx, vy, vz int) (mgl32.Vec3, float32) {
	frac := [3]float32{p[0] - float32(vx), p[1] - float32(vy), p[2] - float32(vz)}
	best := -1
	bestDist := float32(2)
	for i, f := range faces {
		if terrain.Occupied(vx+f.dir[0], vy+f.dir[1], vz+f.dir[2]) {
			continue
		}
		d := frac[f.axis]
		if f.upper {
			d = 1 - d
		}
		if d < bestDist {
			best, bestDist = i, d
		}
	}

	if best <= 0 {
		top := vy + 1
		for k := 0; k < surfaceSearch && terrain.Occupied(vx, top, vz); k++ {
			top++
		}
		return mgl32.Vec3{0, 1, 0}, float32(top) - p[1]
	}
	f := faces[best]
	return mgl32.Vec3{float32(f.dir[0]), float32(f.dir[1]), float32(f.dir[2])}, bestDist
}

// runFragment executes every invocation of one fragment dispatch.
func runFragment(u Uniforms, frag GPUFragment, fragOcc []uint32, terrain TerrainView, out *contactSink) {
	groups := Workgroups(frag.Size)
	for z := uint32(0); z < groups[2]; z++ {
		runSlice(u, frag, fragOcc, terrain, groups, z, out)
	}
}

// runSlice executes the workgroups of one z layer.
func runSlice(u Uniforms, frag GPUFragment, fragOcc []uint32, terrain TerrainView, groups [3]uint32, z uint32, out *contactSink) {
	for gy := uint32(0); gy < groups[1]; gy++ {
		for gx := uint32(0); gx < groups[0]; gx++ {
			for ly := uint32(0); ly < WorkgroupSize; ly++ {
				for lx := uint32(0); lx < WorkgroupSize; lx++ {
					invocation(u, frag, fragOcc, terrain, gx*WorkgroupSize+lx, gy*WorkgroupSize+ly, z, out)
				}
			}
		}
	}
}

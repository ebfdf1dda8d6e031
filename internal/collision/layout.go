package collision

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstudio/internal/engine"
)

// Byte sizes of the records shared with the kernel. All records are
// little-endian and 16-byte aligned to match WGSL storage layout rules.
const (
	FragmentRecordSize = 64
	UniformsSize       = 32
	ContactRecordSize  = 48
	ContactHeaderSize  = 16

	WorkgroupSize = 8
)

// Fragment flags.
const (
	// FlagSolid marks a fragment whose grid is fully occupied. Its occupancy
	// words are not uploaded.
	FlagSolid uint32 = 1 << 0
)

// GPUFragment is one entry of the fragment transform buffer.
type GPUFragment struct {
	Position  [3]float32
	_         uint32
	Rotation  [4]float32 // x, y, z, w
	Size      [3]uint32
	EntityLo  uint32
	EntityHi  uint32
	OccOffset uint32
	OccWords  uint32
	Flags     uint32
}

// Entity reassembles the 64-bit entity id.
func (f GPUFragment) Entity() engine.EntityID {
	return engine.EntityID(uint64(f.EntityHi)<<32 | uint64(f.EntityLo))
}

func splitEntity(id engine.EntityID) (lo, hi uint32) {
	return uint32(uint64(id)), uint32(uint64(id) >> 32)
}

func (f GPUFragment) rotation() mgl32.Quat {
	return mgl32.Quat{W: f.Rotation[3], V: mgl32.Vec3{f.Rotation[0], f.Rotation[1], f.Rotation[2]}}
}

// Uniforms is the per-dispatch parameter block. It is rewritten before every
// fragment dispatch.
type Uniforms struct {
	FragmentIndex uint32
	FragmentCount uint32
	MaxContacts   uint32
	TableSize     uint32
	OccOffset     uint32
	OccWords      uint32
	ChunkWords    uint32
	VoxelScale    float32
}

// ContactKind tags what a contact was generated against.
type ContactKind uint32

const (
	KindTerrain ContactKind = iota
)

// GPUContact is one entry of the contact output buffer.
type GPUContact struct {
	Position    [3]float32
	Penetration float32
	Normal      [3]float32
	EntityLo    uint32
	EntityHi    uint32
	VoxelIndex  uint32
	Kind        uint32
	_           uint32
}

// Workgroups returns the dispatch size covering a fragment grid.
func Workgroups(size [3]uint32) [3]uint32 {
	return [3]uint32{
		(size[0] + WorkgroupSize - 1) / WorkgroupSize,
		(size[1] + WorkgroupSize - 1) / WorkgroupSize,
		size[2],
	}
}

var le = binary.LittleEndian

func putF32(b []byte, v float32) { le.PutUint32(b, math.Float32bits(v)) }
func getF32(b []byte) float32 { return math.Float32frombits(le.Uint32(b)) }

// AppendFragment appends the 64-byte encoding of f.
func AppendFragment(dst []byte, f GPUFragment) []byte {
	var b [FragmentRecordSize]byte
	for i := 0; i < 3; i++ {
		putF32(b[i*4:], f.Position[i])
	}
	for i := 0; i < 4; i++ {
		putF32(b[16+i*4:], f.Rotation[i])
	}
	for i := 0; i < 3; i++ {
		le.PutUint32(b[32+i*4:], f.Size[i])
	}
	le.PutUint32(b[44:], f.EntityLo)
	le.PutUint32(b[48:], f.EntityHi)
	le.PutUint32(b[52:], f.OccOffset)
	le.PutUint32(b[56:], f.OccWords)
	le.PutUint32(b[60:], f.Flags)
	return append(dst, b[:]...)
}

// EncodeFragments packs records for upload.
func EncodeFragments(records []GPUFragment) []byte {
	out := make([]byte, 0, len(records)*FragmentRecordSize)
	for _, r := range records {
		out = AppendFragment(out, r)
	}
	return out
}

// Bytes returns the 32-byte encoding of u.
func (u Uniforms) Bytes() []byte {
	b := make([]byte, UniformsSize)
	le.PutUint32(b[0:], u.FragmentIndex)
	le.PutUint32(b[4:], u.FragmentCount)
	le.PutUint32(b[8:], u.MaxContacts)
	le.PutUint32(b[12:], u.TableSize)
	le.PutUint32(b[16:], u.OccOffset)
	le.PutUint32(b[20:], u.OccWords)
	le.PutUint32(b[24:], u.ChunkWords)
	putF32(b[28:], u.VoxelScale)
	return b
}

// PutContact writes the 48-byte encoding of c into b.
func PutContact(b []byte, c GPUContact) {
	for i := 0; i < 3; i++ {
		putF32(b[i*4:], c.Position[i])
		putF32(b[16+i*4:], c.Normal[i])
	}
	putF32(b[12:], c.Penetration)
	le.PutUint32(b[28:], c.EntityLo)
	le.PutUint32(b[32:], c.EntityHi)
	le.PutUint32(b[36:], c.VoxelIndex)
	le.PutUint32(b[40:], c.Kind)
	le.PutUint32(b[44:], 0)
}

func readContact(b []byte) GPUContact {
	var c GPUContact
	for i := 0; i < 3; i++ {
		c.Position[i] = getF32(b[i*4:])
		c.Normal[i] = getF32(b[16+i*4:])
	}
	c.Penetration = getF32(b[12:])
	c.EntityLo = le.Uint32(b[28:])
	c.EntityHi = le.Uint32(b[32:])
	c.VoxelIndex = le.Uint32(b[36:])
	c.Kind = le.Uint32(b[40:])
	return c
}

// ContactBufferSize is the byte size of an output buffer holding maxContacts.
func ContactBufferSize(maxContacts int) int {
	return ContactHeaderSize + maxContacts*ContactRecordSize
}

// Int32Bytes and Uint32Bytes encode word slices for upload.
func Int32Bytes(words []int32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		le.PutUint32(b[i*4:], uint32(w))
	}
	return b
}

func Uint32Bytes(words []uint32) []byte {
	b := make([]byte, len(words)*4)
	for i, w := range words {
		le.PutUint32(b[i*4:], w)
	}
	return b
}

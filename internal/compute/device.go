package compute

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/cogentcore/webgpu/wgpu"

	"voxelstudio/internal/chunkhash"
	"voxelstudio/internal/collision"
	"voxelstudio/internal/occupancy"
)

var logger = log.WithPrefix("compute")

var collisionBindings = []wgpu.BindGroupLayoutEntry{
	storageBinding(0, true),
	storageBinding(1, true),
	storageBinding(2, true),
	storageBinding(3, true),
	uniformBinding(4),
	storageBinding(5, false),
}

// CollisionDevice runs the collision kernel on a System. It implements
// collision.Device.
type CollisionDevice struct {
	sys      *System
	pipeline *Pipeline

	table    *Buffer
	chunks   *Buffer
	frags    *Buffer
	fragOcc  *Buffer
	params   *Buffer
	contacts *Buffer
	staging  [2]*Buffer

	bindGroup   *wgpu.BindGroup
	contactSize uint64
	maxChunks   int
}

// NewCollisionDevice compiles the kernel and allocates buffers sized by
// limits. Errors wrap ErrPipelineCreationFailed.
func NewCollisionDevice(sys *System, limits collision.Limits) (*CollisionDevice, error) {
	if sys == nil {
		return nil, fmt.Errorf("%w: compute system not initialized", ErrPipelineCreationFailed)
	}
	p, err := sys.CreatePipeline("voxel_collision", collisionShader, "main", collisionBindings)
	if err != nil {
		return nil, err
	}

	d := &CollisionDevice{
		sys:         sys,
		pipeline:    p,
		contactSize: uint64(collision.ContactBufferSize(limits.MaxContacts)),
		maxChunks:   limits.MaxChunks,
	}
	storage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
	tableSlots := chunkhash.New(limits.MaxChunks).Size()

	allocs := []struct {
		dst   **Buffer
		label string
		size  uint64
		usage wgpu.BufferUsage
	}{
		{&d.table, "chunk_table", uint64(tableSlots * chunkhash.SlotWords * 4), storage},
		{&d.chunks, "chunk_bits", uint64(limits.MaxChunks * occupancy.ChunkWords * 4), storage},
		{&d.frags, "fragments", collision.FragmentRecordSize * 64, storage},
		{&d.fragOcc, "fragment_bits", uint64(limits.MaxFragmentWords * 4), storage},
		{&d.params, "params", collision.UniformsSize, wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst},
		{&d.contacts, "contacts", d.contactSize, storage | wgpu.BufferUsageCopySrc},
		{&d.staging[0], "staging_0", d.contactSize, wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst},
		{&d.staging[1], "staging_1", d.contactSize, wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst},
	}
	for _, a := range allocs {
		buf, err := sys.CreateBuffer(a.label, a.size, a.usage)
		if err != nil {
			d.Release()
			return nil, fmt.Errorf("%w: %v", ErrPipelineCreationFailed, err)
		}
		*a.dst = buf
	}

	// An empty table reads as all-empty slots.
	sys.WriteBuffer(d.table, 0, collision.Int32Bytes(chunkhash.New(limits.MaxChunks).Packed()))

	if err := d.rebind(); err != nil {
		d.Release()
		return nil, fmt.Errorf("%w: %v", ErrPipelineCreationFailed, err)
	}
	logger.Info("collision device ready", "adapter", sys.Info().Name, "contacts", limits.MaxContacts, "chunks", limits.MaxChunks)
	return d, nil
}

func (d *CollisionDevice) rebind() error {
	if d.bindGroup != nil {
		d.bindGroup.Release()
	}
	bg, err := d.sys.Bind("voxel_collision_bind_group", d.pipeline,
		d.table, d.chunks, d.frags, d.fragOcc, d.params, d.contacts)
	if err != nil {
		return err
	}
	d.bindGroup = bg
	return nil
}

func (d *CollisionDevice) Name() string { return d.sys.Info().Name }

func (d *CollisionDevice) UploadChunkTable(packed []int32) error {
	b := collision.Int32Bytes(packed)
	if uint64(len(b)) > d.table.Size() {
		return fmt.Errorf("chunk table of %d bytes exceeds buffer of %d", len(b), d.table.Size())
	}
	d.sys.WriteBuffer(d.table, 0, b)
	return nil
}

func (d *CollisionDevice) UploadChunk(layer int, words []uint32) error {
	if layer < 0 || layer >= d.maxChunks {
		return fmt.Errorf("chunk layer %d out of range", layer)
	}
	d.sys.WriteBuffer(d.chunks, uint64(layer*occupancy.ChunkWords*4), collision.Uint32Bytes(words))
	return nil
}

func (d *CollisionDevice) UploadFragments(records []collision.GPUFragment, occ []uint32) error {
	need := uint64(len(records) * collision.FragmentRecordSize)
	if need > d.frags.Size() {
		buf, err := d.sys.CreateBuffer("fragments", max(need, 2*d.frags.Size()), d.frags.usage)
		if err != nil {
			return err
		}
		d.frags.Release()
		d.frags = buf
		if err := d.rebind(); err != nil {
			return err
		}
	}
	occBytes := collision.Uint32Bytes(occ)
	if uint64(len(occBytes)) > d.fragOcc.Size() {
		return fmt.Errorf("fragment occupancy of %d bytes exceeds buffer of %d", len(occBytes), d.fragOcc.Size())
	}
	d.sys.WriteBuffer(d.frags, 0, collision.EncodeFragments(records))
	d.sys.WriteBuffer(d.fragOcc, 0, occBytes)
	return nil
}

func (d *CollisionDevice) ResetContacts() error {
	d.sys.WriteBuffer(d.contacts, 0, make([]byte, collision.ContactHeaderSize))
	return nil
}

// Dispatch writes the uniform block and submits one pass. Queue order keeps
// each pass on its own parameters.
func (d *CollisionDevice) Dispatch(u collision.Uniforms, groups [3]uint32) error {
	d.sys.WriteBuffer(d.params, 0, u.Bytes())
	return d.sys.Dispatch(d.pipeline, d.bindGroup, groups[0], groups[1], groups[2])
}

func (d *CollisionDevice) CopyContacts(dst collision.StagingID) error {
	return d.sys.Copy(d.contacts, d.staging[dst], d.contactSize)
}

func (d *CollisionDevice) MapAsync(dst collision.StagingID, done func(collision.MapStatus)) error {
	return d.staging[dst].buffer.MapAsync(wgpu.MapModeRead, 0, d.contactSize, func(status wgpu.BufferMapAsyncStatus) {
		if status == wgpu.BufferMapAsyncStatusSuccess {
			done(collision.MapSuccess)
			return
		}
		logger.Debug("staging map failed", "buffer", dst, "status", status)
		done(collision.MapError)
	})
}

func (d *CollisionDevice) Poll() {
	d.sys.Poll()
}

func (d *CollisionDevice) MappedRange(dst collision.StagingID) []byte {
	return d.staging[dst].buffer.GetMappedRange(0, uint(d.contactSize))
}

func (d *CollisionDevice) Unmap(dst collision.StagingID) {
	d.staging[dst].buffer.Unmap()
}

// Release frees the device buffers. The System stays alive.
func (d *CollisionDevice) Release() {
	if d.bindGroup != nil {
		d.bindGroup.Release()
		d.bindGroup = nil
	}
	for _, b := range []*Buffer{d.table, d.chunks, d.frags, d.fragOcc, d.params, d.contacts, d.staging[0], d.staging[1]} {
		if b != nil {
			b.Release()
		}
	}
}

var _ collision.Device = (*CollisionDevice)(nil)

package collision

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"voxelstudio/internal/occupancy"
)

type hostStaging struct {
	data    []byte
	pending bool
	mapped  bool
}

type hostMap struct {
	dst  StagingID
	done func(MapStatus)
}

// HostDevice emulates the GPU in process memory. Dispatches run the kernel on
// goroutines, one per z slice, and map requests complete on the next Poll.
type HostDevice struct {
	table    []int32
	chunks   []uint32
	frags    []GPUFragment
	fragOcc  []uint32
	sink     *contactSink
	staging  [2]hostStaging
	maps     []hostMap
	maxSlots int

	// FailMaps completes every map request with MapError.
	FailMaps bool
	// NeverCompleteMaps leaves map requests pending forever.
	NeverCompleteMaps bool
	// Workers bounds the goroutines of one dispatch. Zero means GOMAXPROCS.
	Workers int

	Dispatches int
}

// NewHostDevice creates an emulated device for the given capacities.
func NewHostDevice(maxChunks, maxContacts int) *HostDevice {
	return &HostDevice{
		table:    make([]int32, 0),
		chunks:   make([]uint32, maxChunks*occupancy.ChunkWords),
		sink:     newContactSink(maxContacts),
		maxSlots: maxChunks,
	}
}

func (d *HostDevice) Name() string { return "host" }

func (d *HostDevice) UploadChunkTable(packed []int32) error {
	d.table = append(d.table[:0], packed...)
	return nil
}

func (d *HostDevice) UploadChunk(layer int, words []uint32) error {
	if layer < 0 || layer >= d.maxSlots {
		return fmt.Errorf("chunk layer %d out of range", layer)
	}
	copy(d.chunks[layer*occupancy.ChunkWords:(layer+1)*occupancy.ChunkWords], words)
	return nil
}

func (d *HostDevice) UploadFragments(records []GPUFragment, occ []uint32) error {
	d.frags = append(d.frags[:0], records...)
	d.fragOcc = append(d.fragOcc[:0], occ...)
	return nil
}

func (d *HostDevice) ResetContacts() error {
	d.sink.reset()
	return nil
}

func (d *HostDevice) Dispatch(u Uniforms, groups [3]uint32) error {
	if int(u.FragmentIndex) >= len(d.frags) {
		return fmt.Errorf("fragment index %d out of range", u.FragmentIndex)
	}
	frag := d.frags[u.FragmentIndex]
	terrain := TerrainView{Table: d.table, Chunks: d.chunks}
	d.Dispatches++

	var g errgroup.Group
	workers := d.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g.SetLimit(workers)
	for z := uint32(0); z < groups[2]; z++ {
		g.Go(func() error {
			runSlice(u, frag, d.fragOcc, terrain, groups, z, d.sink)
			return nil
		})
	}
	return g.Wait()
}

func (d *HostDevice) CopyContacts(dst StagingID) error {
	s := &d.staging[dst]
	if s.pending || s.mapped {
		return fmt.Errorf("staging buffer %d is in use", dst)
	}
	s.data = d.sink.encode()
	return nil
}

func (d *HostDevice) MapAsync(dst StagingID, done func(MapStatus)) error {
	s := &d.staging[dst]
	if s.pending || s.mapped {
		return fmt.Errorf("staging buffer %d is already mapped", dst)
	}
	s.pending = true
	d.maps = append(d.maps, hostMap{dst: dst, done: done})
	return nil
}

func (d *HostDevice) Poll() {
	if d.NeverCompleteMaps || len(d.maps) == 0 {
		return
	}
	maps := d.maps
	d.maps = nil
	for _, m := range maps {
		s := &d.staging[m.dst]
		s.pending = false
		if d.FailMaps {
			m.done(MapError)
			continue
		}
		s.mapped = true
		m.done(MapSuccess)
	}
}

func (d *HostDevice) MappedRange(dst StagingID) []byte {
	s := &d.staging[dst]
	if !s.mapped {
		return nil
	}
	return s.data
}

func (d *HostDevice) Unmap(dst StagingID) {
	d.staging[dst].mapped = false
}

// PendingMaps returns the number of map requests not yet completed.
func (d *HostDevice) PendingMaps() int {
	return len(d.maps)
}

// TerrainView exposes the uploaded terrain, for parity checks against the
// host table.
func (d *HostDevice) TerrainView() TerrainView {
	return TerrainView{Table: d.table, Chunks: d.chunks}
}

func (d *HostDevice) Release() {
	d.frags, d.fragOcc, d.maps = nil, nil, nil
}

var _ Device = (*HostDevice)(nil)

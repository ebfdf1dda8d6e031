package collision

import (
	"fmt"

	"github.com/charmbracelet/log"

	"voxelstudio/internal/engine"
	"voxelstudio/internal/extract"
	"voxelstudio/internal/occupancy"
)

var logger = log.WithPrefix("collision")

// Submission records which entities a dispatched frame covers, so contacts
// can be checked against it when they come back.
type Submission struct {
	Frame    uint64
	Entities []engine.EntityID
	Dropped  int
}

// packFragments converts a snapshot into device records and a packed
// occupancy buffer. Fragments whose occupancy does not fit in maxWords are
// dropped from the end, which is the highest entity ids.
func packFragments(snap extract.FragmentSnapshot, maxWords int) ([]GPUFragment, []uint32, int) {
	records := make([]GPUFragment, 0, len(snap.Fragments))
	var occ []uint32
	dropped := 0
	for _, f := range snap.Fragments {
		rec := GPUFragment{
			Position: [3]float32(f.Position),
			Rotation: [4]float32{f.Rotation.V[0], f.Rotation.V[1], f.Rotation.V[2], f.Rotation.W},
			Size:     [3]uint32{uint32(f.Size[0]), uint32(f.Size[1]), uint32(f.Size[2])},
		}
		rec.EntityLo, rec.EntityHi = splitEntity(f.Entity)
		if f.Solid {
			rec.Flags |= FlagSolid
		} else {
			if len(occ)+len(f.Occupancy) > maxWords {
				dropped++
				continue
			}
			rec.OccOffset = uint32(len(occ))
			rec.OccWords = uint32(len(f.Occupancy))
			occ = append(occ, f.Occupancy...)
		}
		records = append(records, rec)
	}
	return records, occ, dropped
}

func uniformsFor(i int, records []GPUFragment, limits Limits, tableSize int) Uniforms {
	return Uniforms{
		FragmentIndex: uint32(i),
		FragmentCount: uint32(len(records)),
		MaxContacts:   uint32(limits.MaxContacts),
		TableSize:     uint32(tableSize),
		OccOffset:     records[i].OccOffset,
		OccWords:      records[i].OccWords,
		ChunkWords:    occupancy.ChunkWords,
		VoxelScale:    1,
	}
}

// Dispatcher drives a Device: it uploads terrain changes and issues one
// dispatch per fragment in ascending entity order.
type Dispatcher struct {
	dev           Device
	terrain       *Terrain
	limits        Limits
	tableUploaded bool
}

func NewDispatcher(dev Device, terrain *Terrain, limits Limits) *Dispatcher {
	return &Dispatcher{dev: dev, terrain: terrain, limits: limits}
}

// Device returns the execution target.
func (d *Dispatcher) Device() Device { return d.dev }

// Upload pushes the layers and table modified by Terrain.Apply.
func (d *Dispatcher) Upload(ch TerrainChanges) error {
	for _, layer := range ch.Layers {
		if err := d.dev.UploadChunk(int(layer), d.terrain.LayerWords(layer)); err != nil {
			return fmt.Errorf("upload chunk layer %d: %w", layer, err)
		}
	}
	if ch.Table || !d.tableUploaded {
		if err := d.dev.UploadChunkTable(d.terrain.View().Table); err != nil {
			return fmt.Errorf("upload chunk table: %w", err)
		}
		d.tableUploaded = true
	}
	return nil
}

// Dispatch uploads the snapshot and records the collision work for it. The
// contact buffer is reset first, so after the last dispatch it holds exactly
// this frame's contacts.
func (d *Dispatcher) Dispatch(snap extract.FragmentSnapshot) (Submission, error) {
	records, occ, dropped := packFragments(snap, d.limits.MaxFragmentWords)
	if dropped > 0 {
		logger.Warn("fragment occupancy buffer full", "dropped", dropped, "capacity", d.limits.MaxFragmentWords)
	}

	sub := Submission{Frame: snap.Frame, Dropped: dropped}
	if err := d.dev.ResetContacts(); err != nil {
		return sub, fmt.Errorf("reset contacts: %w", err)
	}
	if len(records) == 0 {
		return sub, nil
	}
	if err := d.dev.UploadFragments(records, occ); err != nil {
		return sub, fmt.Errorf("upload fragments: %w", err)
	}

	tableSize := d.terrain.Table().Size()
	for i, rec := range records {
		u := uniformsFor(i, records, d.limits, tableSize)
		if err := d.dev.Dispatch(u, Workgroups(rec.Size)); err != nil {
			return sub, fmt.Errorf("dispatch fragment %v: %w", rec.Entity(), err)
		}
		sub.Entities = append(sub.Entities, rec.Entity())
	}
	return sub, nil
}

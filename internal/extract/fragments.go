// Package extract takes the per-frame snapshot the collision pipeline works
// from: fragment transforms and occupancy, plus the terrain chunks that changed
// since the previous frame.
package extract

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelstudio/internal/components"
	"voxelstudio/internal/engine"
)

// ExtractedFragment is a read-only copy of one fragment's collision inputs.
// Position is the centre of the grid.
type ExtractedFragment struct {
	Entity    engine.EntityID
	Position  mgl32.Vec3
	Rotation  mgl32.Quat
	Size      [3]int
	Occupancy []uint32 // shared with the component; nil when Solid
	Solid     bool
}

// Voxels returns the number of grid cells the fragment spans.
func (f ExtractedFragment) Voxels() int {
	return f.Size[0] * f.Size[1] * f.Size[2]
}

// FragmentSnapshot holds the fragments of one frame in ascending entity order.
type FragmentSnapshot struct {
	Frame     uint64
	Fragments []ExtractedFragment
}

// Entities returns the extracted entity ids in snapshot order.
func (s FragmentSnapshot) Entities() []engine.EntityID {
	out := make([]engine.EntityID, len(s.Fragments))
	for i, f := range s.Fragments {
		out[i] = f.Entity
	}
	return out
}

// Fragments snapshots every active voxel fragment and kinematic box in scene.
func Fragments(scene *engine.Scene, frame uint64) FragmentSnapshot {
	snap := FragmentSnapshot{Frame: frame}
	for _, g := range scene.Entities() {
		if !g.Active {
			continue
		}
		if f := engine.GetComponent[*components.VoxelFragment](g); f != nil && f.Occupancy != nil {
			size := f.Occupancy.Size()
			if size[0]*size[1]*size[2] == 0 {
				continue
			}
			snap.Fragments = append(snap.Fragments, ExtractedFragment{
				Entity:    g.UID,
				Position:  g.WorldPosition(),
				Rotation:  g.WorldRotation(),
				Size:      size,
				Occupancy: f.Occupancy.Words(),
			})
			continue
		}
		if b := engine.GetComponent[*components.KinematicBox](g); b != nil {
			snap.Fragments = append(snap.Fragments, ExtractedFragment{
				Entity:   g.UID,
				Position: g.WorldPosition(),
				Rotation: mgl32.QuatIdent(),
				Size:     b.GridSize(),
				Solid:    true,
			})
		}
	}
	return snap
}

package components

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelstudio/internal/engine"
	"voxelstudio/internal/occupancy"
)

// VoxelFragment marks a GameObject as a movable voxel cluster. The transform
// position is the centre of the occupancy grid.
type VoxelFragment struct {
	engine.BaseComponent
	Occupancy *occupancy.Fragment
	Color     [3]uint8
}

func NewVoxelFragment(occ *occupancy.Fragment) *VoxelFragment {
	return &VoxelFragment{Occupancy: occ, Color: [3]uint8{200, 120, 60}}
}

// HalfExtents returns half the grid size in world units.
func (f *VoxelFragment) HalfExtents() mgl32.Vec3 {
	s := f.Occupancy.Size()
	return mgl32.Vec3{float32(s[0]) / 2, float32(s[1]) / 2, float32(s[2]) / 2}
}

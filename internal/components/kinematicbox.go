package components

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"voxelstudio/internal/engine"
)

// KinematicBox is an axis-aligned box body that collides through the voxel
// pipeline as a fully solid grid.
type KinematicBox struct {
	engine.BaseComponent
	HalfExtents mgl32.Vec3
}

func NewKinematicBox(halfExtents mgl32.Vec3) *KinematicBox {
	return &KinematicBox{HalfExtents: halfExtents}
}

// GridSize is the voxel extent covering the box, at least one per axis.
func (b *KinematicBox) GridSize() [3]int {
	var s [3]int
	for i := range s {
		s[i] = max(1, int(math32.Ceil(b.HalfExtents[i]*2)))
	}
	return s
}

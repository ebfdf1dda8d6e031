package physics

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"voxelstudio/internal/engine"
)

type AABB struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// NewAABBFromCenter creates an AABB from a center point and half extents.
func NewAABBFromCenter(center, half mgl32.Vec3) AABB {
	return AABB{Min: center.Sub(half), Max: center.Add(half)}
}

func (a AABB) Center() mgl32.Vec3 {
	return a.Min.Add(a.Max).Mul(0.5)
}

func (a AABB) Intersects(b AABB) bool {
	return a.Min[0] <= b.Max[0] && a.Max[0] >= b.Min[0] &&
		a.Min[1] <= b.Max[1] && a.Max[1] >= b.Min[1] &&
		a.Min[2] <= b.Max[2] && a.Max[2] >= b.Min[2]
}

func (a AABB) Expand(margin float32) AABB {
	m := mgl32.Vec3{margin, margin, margin}
	return AABB{Min: a.Min.Sub(m), Max: a.Max.Add(m)}
}

// BodyBounds returns the world bounds of a body's rotated voxel grid.
func BodyBounds(g *engine.GameObject) (AABB, bool) {
	size, rot, ok := bodyGrid(g)
	if !ok {
		return AABB{}, false
	}
	h := mgl32.Vec3{float32(size[0]) / 2, float32(size[1]) / 2, float32(size[2]) / 2}
	ax := rot.Rotate(mgl32.Vec3{h[0], 0, 0})
	ay := rot.Rotate(mgl32.Vec3{0, h[1], 0})
	az := rot.Rotate(mgl32.Vec3{0, 0, h[2]})
	var half mgl32.Vec3
	for i := 0; i < 3; i++ {
		half[i] = math32.Abs(ax[i]) + math32.Abs(ay[i]) + math32.Abs(az[i])
	}
	return NewAABBFromCenter(g.Transform.Position, half), true
}

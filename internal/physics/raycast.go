package physics

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"voxelstudio/internal/components"
	"voxelstudio/internal/engine"
	"voxelstudio/internal/voxel"
)

type RaycastHit struct {
	GameObject *engine.GameObject // nil for terrain hits
	Voxel      [3]int             // terrain voxel, valid when GameObject is nil
	Point      mgl32.Vec3
	Normal     mgl32.Vec3
	Distance   float32
}

// Raycast returns the closest terrain voxel or fragment body along the ray.
func (w *FragmentWorld) Raycast(origin, direction mgl32.Vec3, maxDistance float32) (RaycastHit, bool) {
	direction = direction.Normalize()
	closest, hit := RaycastTerrain(w.terrain, origin, direction, maxDistance)
	if !hit {
		closest.Distance = maxDistance
	}

	for _, g := range w.scene.Entities() {
		if !g.Active || engine.GetComponent[*components.FragmentBody](g) == nil {
			continue
		}
		box, ok := BodyBounds(g)
		if !ok {
			continue
		}
		if h, ok := raycastBox(origin, direction, box, maxDistance); ok && h.Distance < closest.Distance {
			closest = h
			closest.GameObject = g
			hit = true
		}
	}
	return closest, hit
}

// RaycastTerrain walks the voxel grid along the ray and returns the first
// occupied voxel. A ray starting inside terrain hits at distance zero.
func RaycastTerrain(terrain *voxel.World, origin, direction mgl32.Vec3, maxDistance float32) (RaycastHit, bool) {
	direction = direction.Normalize()
	v := voxel.PointToVoxel(origin)

	var step [3]int
	var tMax, tDelta [3]float32
	for i := 0; i < 3; i++ {
		switch {
		case direction[i] > 0:
			step[i] = 1
			tMax[i] = (float32(v[i]+1) - origin[i]) / direction[i]
			tDelta[i] = 1 / direction[i]
		case direction[i] < 0:
			step[i] = -1
			tMax[i] = (origin[i] - float32(v[i])) / -direction[i]
			tDelta[i] = -1 / direction[i]
		default:
			tMax[i] = math32.Inf(1)
			tDelta[i] = math32.Inf(1)
		}
	}

	var normal mgl32.Vec3
	t := float32(0)
	for t <= maxDistance {
		if terrain.Occupied(v[0], v[1], v[2]) {
			return RaycastHit{
				Voxel:    v,
				Point:    origin.Add(direction.Mul(t)),
				Normal:   normal,
				Distance: t,
			}, true
		}
		axis := 0
		if tMax[1] < tMax[axis] {
			axis = 1
		}
		if tMax[2] < tMax[axis] {
			axis = 2
		}
		t = tMax[axis]
		v[axis] += step[axis]
		tMax[axis] += tDelta[axis]
		normal = mgl32.Vec3{}
		normal[axis] = -float32(step[axis])
	}
	return RaycastHit{}, false
}

// raycastBox is the slab test against an axis-aligned box.
func raycastBox(origin, direction mgl32.Vec3, box AABB, maxDistance float32) (RaycastHit, bool) {
	tmin := float32(-1e30)
	tmax := float32(1e30)
	for i := 0; i < 3; i++ {
		if direction[i] == 0 {
			if origin[i] < box.Min[i] || origin[i] > box.Max[i] {
				return RaycastHit{}, false
			}
			continue
		}
		t1 := (box.Min[i] - origin[i]) / direction[i]
		t2 := (box.Max[i] - origin[i]) / direction[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = max(tmin, t1)
		tmax = min(tmax, t2)
		if tmin > tmax {
			return RaycastHit{}, false
		}
	}

	t := tmin
	if t < 0 {
		t = tmax
	}
	if t < 0 || t > maxDistance {
		return RaycastHit{}, false
	}

	point := origin.Add(direction.Mul(t))

	// Calculate normal based on which face was hit
	var normal mgl32.Vec3
	const epsilon = 0.001
	for i := 0; i < 3; i++ {
		if math32.Abs(point[i]-box.Min[i]) < epsilon {
			normal[i] = -1
			break
		}
		if math32.Abs(point[i]-box.Max[i]) < epsilon {
			normal[i] = 1
			break
		}
	}

	return RaycastHit{Point: point, Normal: normal, Distance: t}, true
}

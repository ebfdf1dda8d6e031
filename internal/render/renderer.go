// Package render draws the voxel terrain and fragments with raylib.
package render

import (
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"

	"voxelstudio/internal/components"
	"voxelstudio/internal/engine"
	"voxelstudio/internal/physics"
	"voxelstudio/internal/voxel"
	"voxelstudio/internal/world"
)

const viewDistance = 400

type surfaceVoxel struct {
	pos   rl.Vector3
	color rl.Color
}

// Renderer caches the exposed terrain voxels and rebuilds them when any
// chunk changes.
type Renderer struct {
	ShowWires  bool
	ShowBounds bool

	surface []surfaceVoxel
	stamp   uint64
	chunks  int

	Drawn  int
	Culled int
}

func New() *Renderer {
	return &Renderer{ShowWires: true}
}

func toRL(v mgl32.Vec3) rl.Vector3 {
	return rl.Vector3{X: v[0], Y: v[1], Z: v[2]}
}

func (r *Renderer) terrainStamp(t *voxel.World) uint64 {
	var sum uint64
	for _, c := range t.Coords() {
		g, _ := t.Generation(c)
		sum += g
	}
	return sum
}

// rebuild collects every occupied voxel with at least one empty neighbour.
func (r *Renderer) rebuild(t *voxel.World) {
	r.surface = r.surface[:0]
	for _, coord := range t.Coords() {
		c, ok := t.Chunk(coord)
		if !ok {
			continue
		}
		o := coord.Origin()
		for z := 0; z < voxel.ChunkSize; z++ {
			for y := 0; y < voxel.ChunkSize; y++ {
				for x := 0; x < voxel.ChunkSize; x++ {
					v, ok := c.Get(x, y, z)
					if !ok {
						continue
					}
					wx, wy, wz := o[0]+x, o[1]+y, o[2]+z
					if t.Occupied(wx, wy+1, wz) && t.Occupied(wx+1, wy, wz) && t.Occupied(wx-1, wy, wz) &&
						t.Occupied(wx, wy, wz+1) && t.Occupied(wx, wy, wz-1) && t.Occupied(wx, wy-1, wz) {
						continue
					}
					col := rl.NewColor(v.Color[0], v.Color[1], v.Color[2], 255)
					if v.Color == ([3]uint8{}) {
						col = rl.NewColor(110, 110, 110, 255)
					}
					r.surface = append(r.surface, surfaceVoxel{
						pos:   rl.Vector3{X: float32(wx) + 0.5, Y: float32(wy) + 0.5, Z: float32(wz) + 0.5},
						color: col,
					})
				}
			}
		}
	}
}

// Draw renders terrain and fragments. It must run inside BeginMode3D.
func (r *Renderer) Draw(cam rl.Camera3D, w *world.World) {
	aspect := float32(rl.GetScreenWidth()) / float32(rl.GetScreenHeight())
	frustum := ExtractFrustum(cam, aspect, viewDistance)
	r.Drawn, r.Culled = 0, 0

	if stamp := r.terrainStamp(w.Terrain); stamp != r.stamp || w.Terrain.ChunkCount() != r.chunks {
		r.stamp, r.chunks = stamp, w.Terrain.ChunkCount()
		r.rebuild(w.Terrain)
	}
	for _, s := range r.surface {
		if !frustum.ContainsSphere(s.pos, 0.87) {
			continue
		}
		rl.DrawCube(s.pos, 1, 1, 1, s.color)
	}

	for _, g := range w.Scene.Entities() {
		if !g.Active {
			continue
		}
		if f := engine.GetComponent[*components.VoxelFragment](g); f != nil && f.Occupancy != nil {
			r.drawFragment(&frustum, g, f)
		} else if b := engine.GetComponent[*components.KinematicBox](g); b != nil {
			p := toRL(g.WorldPosition())
			rl.DrawCubeWiresV(p, toRL(b.HalfExtents.Mul(2)), rl.SkyBlue)
		}
	}
}

func (r *Renderer) drawFragment(frustum *Frustum, g *engine.GameObject, f *components.VoxelFragment) {
	size := f.Occupancy.Size()
	pos := g.WorldPosition()
	radius := 0.5 * float32(math.Sqrt(float64(size[0]*size[0]+size[1]*size[1]+size[2]*size[2])))
	if !frustum.ContainsSphere(toRL(pos), radius) {
		r.Culled++
		return
	}
	r.Drawn++

	col := rl.NewColor(f.Color[0], f.Color[1], f.Color[2], 255)
	if body := engine.GetComponent[*components.FragmentBody](g); body != nil && body.IsSleeping {
		col = rl.ColorBrightness(col, -0.35)
	}
	wire := rl.ColorBrightness(col, -0.5)

	rot := g.WorldRotation()
	angle := 2 * math.Acos(float64(max(-1, min(1, rot.W))))
	axis := mgl32.Vec3{0, 1, 0}
	if rot.V.Len() > 1e-6 {
		axis = rot.V.Normalize()
	}

	rl.PushMatrix()
	rl.Translatef(pos[0], pos[1], pos[2])
	rl.Rotatef(float32(angle*180/math.Pi), axis[0], axis[1], axis[2])
	f.Occupancy.IterOccupied(func(x, y, z int) {
		c := rl.Vector3{
			X: float32(x) + 0.5 - float32(size[0])/2,
			Y: float32(y) + 0.5 - float32(size[1])/2,
			Z: float32(z) + 0.5 - float32(size[2])/2,
		}
		rl.DrawCube(c, 1, 1, 1, col)
		if r.ShowWires {
			rl.DrawCubeWires(c, 1, 1, 1, wire)
		}
	})
	rl.PopMatrix()

	if box, ok := physics.BodyBounds(g); r.ShowBounds && ok {
		rl.DrawBoundingBox(rl.BoundingBox{Min: toRL(box.Min), Max: toRL(box.Max)}, rl.Yellow)
	}
}

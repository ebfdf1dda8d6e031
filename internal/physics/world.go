package physics

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"

	"voxelstudio/internal/collision"
	"voxelstudio/internal/components"
	"voxelstudio/internal/config"
	"voxelstudio/internal/engine"
	"voxelstudio/internal/voxel"
)

var logger = log.WithPrefix("physics")

// ErrEntityNotFound marks contacts for an entity that was despawned, or lost
// its body, between extraction and readback.
var ErrEntityNotFound = errors.New("entity not found")

// stepEpsilon absorbs float64 drift in the accumulator so frame rates that
// divide the timestep evenly take exactly the same steps.
const stepEpsilon = 1e-9

// ApplyResult counts what one batch did.
type ApplyResult struct {
	Bodies   int
	Contacts int
	Unknown  int // contacts whose entity no longer exists
	Landed   int
}

// FragmentWorld steps FragmentBody entities at a fixed timestep and resolves
// them against terrain contacts delivered one frame late.
type FragmentWorld struct {
	cfg     config.Physics
	gravity mgl32.Vec3
	scene   *engine.Scene
	terrain *voxel.World
	source  <-chan collision.Batch

	accumulator float64
	steps       uint64
	applied     int
	lastApply   ApplyResult

	// OnGrounded fires with the entity id whenever a body lands.
	OnGrounded engine.EventWithArg[engine.EntityID]

	lastLogTime time.Time
}

func NewFragmentWorld(cfg config.Physics, scene *engine.Scene, terrain *voxel.World) *FragmentWorld {
	return &FragmentWorld{
		cfg:     cfg,
		gravity: mgl32.Vec3(cfg.Gravity),
		scene:   scene,
		terrain: terrain,
	}
}

// SetContactSource selects the channel contact batches are taken from. A nil
// source means no contacts.
func (w *FragmentWorld) SetContactSource(src <-chan collision.Batch) {
	w.source = src
}

// Steps is the number of fixed steps taken so far.
func (w *FragmentWorld) Steps() uint64 { return w.steps }

// BatchesApplied is the number of contact batches consumed so far.
func (w *FragmentWorld) BatchesApplied() int { return w.applied }

// LastApply reports the most recently applied batch.
func (w *FragmentWorld) LastApply() ApplyResult { return w.lastApply }

// Step advances the simulation by frameDelta seconds of real time and returns
// the number of fixed steps taken. At most MaxStepsPerFrame steps run; time
// beyond that is dropped.
func (w *FragmentWorld) Step(frameDelta float64) int {
	dt := w.cfg.FixedTimestep
	w.accumulator += frameDelta

	n := 0
	for w.accumulator+stepEpsilon >= dt {
		if n == w.cfg.MaxStepsPerFrame {
			logger.Debug("step cap reached, dropping time", "dropped", w.accumulator, "steps", n)
			w.accumulator = 0
			break
		}
		w.step(float32(dt))
		w.accumulator -= dt
		n++
	}
	w.logStatus()
	return n
}

func (w *FragmentWorld) step(dt float32) {
	w.steps++
	select {
	case b := <-w.source:
		w.Apply(b)
	default:
	}

	for _, g := range w.scene.Entities() {
		if !g.Active {
			continue
		}
		body := engine.GetComponent[*components.FragmentBody](g)
		if body == nil || body.IsKinematic || body.IsSleeping {
			continue
		}

		if body.UseGravity && !body.Grounded {
			body.Velocity = body.Velocity.Add(w.gravity.Mul(dt))
		}
		g.Transform.Position = g.Transform.Position.Add(body.Velocity.Mul(dt))

		if body.AngularVelocity.Len() > 0 {
			q := g.Transform.Rotation
			spin := mgl32.Quat{V: body.AngularVelocity}.Mul(q).Scale(0.5 * dt)
			g.Transform.Rotation = q.Add(spin).Normalize()
		}

		if body.Grounded && !w.onGround(g) {
			w.setGrounded(g, body, false)
		}
		body.TrySleep(w.cfg.SleepVelocity, w.cfg.SleepFrames)
	}
}

// Apply resolves one batch of contacts against the bodies they name.
// Contacts for entities that no longer exist are skipped.
func (w *FragmentWorld) Apply(b collision.Batch) ApplyResult {
	var res ApplyResult
	w.applied++
	for _, id := range b.Entities() {
		cs := b.ForEntity(id)
		res.Contacts += len(cs)
		landed, err := w.applyBody(id, cs)
		if errors.Is(err, ErrEntityNotFound) {
			res.Unknown += len(cs)
			continue
		}
		res.Bodies++
		if landed {
			res.Landed++
		}
	}
	w.lastApply = res
	return res
}

func (w *FragmentWorld) applyBody(id engine.EntityID, cs []collision.Contact) (bool, error) {
	g := w.scene.FindByUID(id)
	if g == nil {
		return false, fmt.Errorf("%w: %v", ErrEntityNotFound, id)
	}
	body := engine.GetComponent[*components.FragmentBody](g)
	size, rot, ok := bodyGrid(g)
	if body == nil || !ok {
		return false, fmt.Errorf("%w: %v has no body", ErrEntityNotFound, id)
	}

	var lateral []collision.Contact
	target := float32(-math32.MaxFloat32)
	floor := false
	for _, c := range cs {
		if c.IsFloor() {
			// The surface height is absolute, so the snap stays right even
			// though the body has moved since the contact was computed.
			top := c.Position[1] + c.Penetration
			local := rot.Rotate(localCenter(c.VoxelIndex, size))
			target = max(target, top+0.5-local[1])
			floor = true
			continue
		}
		if c.Penetration >= w.cfg.MinPenetration {
			lateral = append(lateral, c)
		}
	}

	pos := &g.Transform.Position
	if floor {
		pos[1] = max(pos[1], target)
		body.Velocity[1] = max(body.Velocity[1], 0)
	}
	if len(lateral) > 0 {
		r := collision.ResolutionVector(lateral)
		pos[0] += r[0]
		pos[2] += r[2]
		if r[1] < 0 {
			pos[1] += r[1]
			body.Velocity[1] = min(body.Velocity[1], 0)
		}
		for _, axis := range [2]int{0, 2} {
			if r[axis]*body.Velocity[axis] < 0 {
				body.Velocity[axis] = 0
			}
		}
	}

	if floor {
		w.setGrounded(g, body, true)
	}
	return floor, nil
}

// onGround probes the terrain just below the body's bounds at the centre and
// the four bottom corners.
func (w *FragmentWorld) onGround(g *engine.GameObject) bool {
	box, ok := BodyBounds(g)
	if !ok {
		return false
	}
	const inset = 0.1
	y := box.Min[1] - w.cfg.GroundProbe
	c := box.Center()
	probes := [5][2]float32{
		{c[0], c[2]},
		{box.Min[0] + inset, box.Min[2] + inset},
		{box.Max[0] - inset, box.Min[2] + inset},
		{box.Min[0] + inset, box.Max[2] - inset},
		{box.Max[0] - inset, box.Max[2] - inset},
	}
	for _, p := range probes {
		if w.terrain.OccupiedAt(mgl32.Vec3{p[0], y, p[1]}) {
			return true
		}
	}
	return false
}

func (w *FragmentWorld) setGrounded(g *engine.GameObject, body *components.FragmentBody, grounded bool) {
	if body.Grounded == grounded {
		return
	}
	body.Grounded = grounded
	if grounded {
		w.OnGrounded.Invoke(g.UID)
	}
	for _, c := range g.Components() {
		if h, ok := c.(engine.GroundedHandler); ok {
			h.OnGrounded(grounded)
		}
	}
}

// WakeNear wakes sleeping bodies whose bounds come within margin of box.
func (w *FragmentWorld) WakeNear(box AABB, margin float32) int {
	box = box.Expand(margin)
	n := 0
	for _, g := range w.scene.Entities() {
		body := engine.GetComponent[*components.FragmentBody](g)
		if body == nil || !body.IsSleeping {
			continue
		}
		if b, ok := BodyBounds(g); ok && b.Intersects(box) {
			body.Wake()
			body.Grounded = false
			n++
		}
	}
	return n
}

func (w *FragmentWorld) logStatus() {
	if time.Since(w.lastLogTime) < time.Second {
		return
	}
	w.lastLogTime = time.Now()
	awake, grounded := 0, 0
	for _, g := range w.scene.Entities() {
		body := engine.GetComponent[*components.FragmentBody](g)
		if body == nil {
			continue
		}
		if !body.IsSleeping {
			awake++
		}
		if body.Grounded {
			grounded++
		}
	}
	logger.Debug("status", "steps", w.steps, "awake", awake, "grounded", grounded, "batches", w.applied)
}

// bodyGrid returns the voxel grid size and rotation contacts were computed
// with. Kinematic boxes are extracted axis aligned.
func bodyGrid(g *engine.GameObject) ([3]int, mgl32.Quat, bool) {
	if f := engine.GetComponent[*components.VoxelFragment](g); f != nil && f.Occupancy != nil {
		return f.Occupancy.Size(), g.WorldRotation(), true
	}
	if b := engine.GetComponent[*components.KinematicBox](g); b != nil {
		return b.GridSize(), mgl32.QuatIdent(), true
	}
	return [3]int{}, mgl32.Quat{}, false
}

// localCenter decodes a linear voxel index into the centred local position of
// that voxel.
func localCenter(idx uint32, size [3]int) mgl32.Vec3 {
	sx, sy := uint32(size[0]), uint32(size[1])
	x := idx % sx
	y := (idx / sx) % sy
	z := idx / (sx * sy)
	return mgl32.Vec3{
		float32(x) + 0.5 - float32(size[0])/2,
		float32(y) + 0.5 - float32(size[1])/2,
		float32(z) + 0.5 - float32(size[2])/2,
	}
}

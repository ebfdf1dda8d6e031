package engine

import (
	"fmt"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
)

// EntityID identifies a GameObject for its whole lifetime. IDs are never reused,
// so a stale ID resolves to nothing rather than to a newer object.
type EntityID uint64

func (id EntityID) String() string {
	return fmt.Sprintf("#%d", uint64(id))
}

var nextUID atomic.Uint64

func newUID() EntityID {
	return EntityID(nextUID.Add(1))
}

type Transform struct {
	Position mgl32.Vec3
	Rotation mgl32.Quat
	Scale    mgl32.Vec3
}

// Matrix returns the local-to-parent transform.
func (t Transform) Matrix() mgl32.Mat4 {
	return mgl32.Translate3D(t.Position[0], t.Position[1], t.Position[2]).
		Mul4(t.Rotation.Mat4()).
		Mul4(mgl32.Scale3D(t.Scale[0], t.Scale[1], t.Scale[2]))
}

type GameObject struct {
	UID        EntityID
	Name       string
	Tags       []string
	Transform  Transform
	Active     bool
	Scene      *Scene
	Parent     *GameObject
	Children   []*GameObject
	components []Component
	started    bool
}

func NewGameObject(name string) *GameObject {
	return &GameObject{
		UID:    newUID(),
		Name:   name,
		Active: true,
		Transform: Transform{
			Rotation: mgl32.QuatIdent(),
			Scale:    mgl32.Vec3{1, 1, 1},
		},
		components: make([]Component, 0),
		Children:   make([]*GameObject, 0),
	}
}

func (g *GameObject) AddComponent(c Component) {
	c.SetGameObject(g)
	g.components = append(g.components, c)
}

// GetComponent returns the first component of type T, or the zero value.
func GetComponent[T Component](g *GameObject) T {
	var zero T
	for _, c := range g.components {
		if typed, ok := c.(T); ok {
			return typed
		}
	}
	return zero
}

func (g *GameObject) Start() {
	if g.started {
		return
	}
	for _, c := range g.components {
		c.Start()
	}
	g.started = true
}

func (g *GameObject) Update(deltaTime float32) {
	if !g.Active {
		return
	}
	for _, c := range g.components {
		c.Update(deltaTime)
	}
}

func (g *GameObject) Components() []Component {
	return g.components
}

func (g *GameObject) HasTag(tag string) bool {
	for _, t := range g.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (g *GameObject) AddChild(child *GameObject) {
	child.Parent = g
	g.Children = append(g.Children, child)
}

func (g *GameObject) RemoveChild(child *GameObject) {
	for i, c := range g.Children {
		if c == child {
			g.Children = append(g.Children[:i], g.Children[i+1:]...)
			child.Parent = nil
			return
		}
	}
}

func (g *GameObject) WorldPosition() mgl32.Vec3 {
	if g.Parent == nil {
		return g.Transform.Position
	}
	ps := g.Parent.WorldScale()
	scaled := mgl32.Vec3{
		g.Transform.Position[0] * ps[0],
		g.Transform.Position[1] * ps[1],
		g.Transform.Position[2] * ps[2],
	}
	return g.Parent.WorldPosition().Add(g.Parent.WorldRotation().Rotate(scaled))
}

func (g *GameObject) WorldRotation() mgl32.Quat {
	if g.Parent == nil {
		return g.Transform.Rotation
	}
	return g.Parent.WorldRotation().Mul(g.Transform.Rotation).Normalize()
}

func (g *GameObject) WorldScale() mgl32.Vec3 {
	if g.Parent == nil {
		return g.Transform.Scale
	}
	ps := g.Parent.WorldScale()
	return mgl32.Vec3{
		ps[0] * g.Transform.Scale[0],
		ps[1] * g.Transform.Scale[1],
		ps[2] * g.Transform.Scale[2],
	}
}

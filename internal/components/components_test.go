package components

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"

	"voxelstudio/internal/engine"
	"voxelstudio/internal/occupancy"
)

func TestFragmentBodySleepsWhenStill(t *testing.T) {
	b := NewFragmentBody()
	b.Grounded = true
	b.Velocity = mgl32.Vec3{0.01, 0, 0}

	for i := 0; i < 9; i++ {
		b.TrySleep(0.05, 10)
	}
	assert.False(t, b.IsSleeping)
	b.TrySleep(0.05, 10)
	assert.True(t, b.IsSleeping)
	assert.Equal(t, mgl32.Vec3{}, b.Velocity)

	b.Wake()
	assert.False(t, b.IsSleeping)
}

func TestFragmentBodyAirborneNeverSleeps(t *testing.T) {
	b := NewFragmentBody()
	for i := 0; i < 100; i++ {
		b.TrySleep(0.05, 10)
	}
	assert.False(t, b.IsSleeping)
}

func TestComponentsAttach(t *testing.T) {
	g := engine.NewGameObject("Fragment")
	frag := NewVoxelFragment(occupancy.SolidFragment(2, 4, 2))
	g.AddComponent(frag)
	g.AddComponent(NewFragmentBody())

	assert.Same(t, frag, engine.GetComponent[*VoxelFragment](g))
	assert.NotNil(t, engine.GetComponent[*FragmentBody](g))
	assert.Nil(t, engine.GetComponent[*KinematicBox](g))
	assert.Equal(t, mgl32.Vec3{1, 2, 1}, frag.HalfExtents())
}

func TestKinematicBoxGridSize(t *testing.T) {
	b := NewKinematicBox(mgl32.Vec3{0.5, 1.2, 0.1})
	assert.Equal(t, [3]int{1, 3, 1}, b.GridSize())
}

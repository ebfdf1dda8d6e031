package components

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelstudio/internal/engine"
)

// FragmentBody is the rigid state of a simulated fragment.
type FragmentBody struct {
	engine.BaseComponent
	Velocity        mgl32.Vec3
	AngularVelocity mgl32.Vec3 // radians per second on each axis
	Mass            float32
	UseGravity      bool
	IsKinematic     bool // moved by game code, never by contacts

	Grounded bool

	// Sleep state - sleeping bodies skip integration until woken
	IsSleeping  bool
	CanSleep    bool
	stillFrames int
}

func NewFragmentBody() *FragmentBody {
	return &FragmentBody{
		Mass:       1.0,
		UseGravity: true,
		CanSleep:   true,
	}
}

// Wake forces the body out of sleep state
func (b *FragmentBody) Wake() {
	b.IsSleeping = false
	b.stillFrames = 0
}

// TrySleep puts a grounded body to sleep after it has stayed below
// speedThreshold for the given number of consecutive steps.
func (b *FragmentBody) TrySleep(speedThreshold float32, frames int) {
	if !b.CanSleep || b.IsSleeping {
		return
	}
	if !b.Grounded || b.Velocity.Len() >= speedThreshold || b.AngularVelocity.Len() >= speedThreshold {
		b.stillFrames = 0
		return
	}
	b.stillFrames++
	if b.stillFrames >= frames {
		b.IsSleeping = true
		b.Velocity = mgl32.Vec3{}
		b.AngularVelocity = mgl32.Vec3{}
	}
}

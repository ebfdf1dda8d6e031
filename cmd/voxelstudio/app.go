package main

import (
	"fmt"
	"math/rand/v2"
	"time"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"

	"voxelstudio/internal/camera"
	"voxelstudio/internal/config"
	"voxelstudio/internal/occupancy"
	"voxelstudio/internal/physics"
	"voxelstudio/internal/render"
	"voxelstudio/internal/voxel"
	"voxelstudio/internal/world"
)

const (
	panelWidth  = 260
	reachRange  = 300
	spawnHeight = 20
)

var (
	colorBgDark    = rl.NewColor(10, 10, 15, 255)
	colorBgPanel   = rl.NewColor(18, 18, 24, 235)
	colorBgElement = rl.NewColor(28, 28, 38, 255)
	colorBgHover   = rl.NewColor(38, 38, 52, 255)
	colorAccent    = rl.NewColor(108, 99, 255, 255)
	colorText      = rl.NewColor(200, 200, 208, 255)
	colorTextMuted = rl.NewColor(119, 119, 119, 255)
	colorTerrain   = [3]uint8{96, 150, 72}
)

type App struct {
	World    *world.World
	Camera   *camera.OrbitCamera
	Renderer *render.Renderer
	Paused   bool

	cfg       config.Config
	scenePath string
	rng       *rand.Rand
	status    string

	// Debug timing (ms)
	updateMs float64
	drawMs   float64
}

func newApp(configPath, scenePath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return &App{
		cfg:       cfg,
		scenePath: scenePath,
		rng:       rand.New(rand.NewPCG(1, 2)),
		Renderer:  render.New(),
	}, nil
}

func (a *App) Run() error {
	rl.SetConfigFlags(rl.FlagWindowHighdpi | rl.FlagWindowResizable | rl.FlagMsaa4xHint)
	rl.InitWindow(1280, 720, "voxelstudio")
	defer rl.CloseWindow()
	rl.SetTargetFPS(120)

	// The device is created after the window so both share the display.
	a.World = world.New(a.cfg, voxel.NewWorld(), openDevice(a.cfg))
	defer a.World.Release()

	a.World.OnFallback.AddListener(func() {
		a.status = "collision fell back to CPU"
	})
	if err := a.loadScene(); err != nil {
		return err
	}
	a.Camera = camera.New(rl.Vector3{X: 48, Y: 4, Z: 48})
	initStyle()

	for !rl.WindowShouldClose() {
		a.Update()
		a.Draw()
	}
	return nil
}

func (a *App) loadScene() error {
	if a.scenePath != "" {
		return a.World.LoadScene(a.scenePath)
	}
	a.World.Terrain.FillBox([3]int{0, 0, 0}, [3]int{95, 3, 95}, voxel.Voxel{Color: colorTerrain})
	a.World.Terrain.FillBox([3]int{40, 4, 40}, [3]int{55, 7, 44}, voxel.Voxel{Color: [3]uint8{127, 106, 79}})
	for i := 0; i < 12; i++ {
		a.spawnRandom(mgl32.Vec3{16 + float32(i%4)*20, spawnHeight, 20 + float32(i/4)*24})
	}
	return nil
}

func (a *App) spawnRandom(pos mgl32.Vec3) {
	size := [3]int{2 + a.rng.IntN(5), 2 + a.rng.IntN(5), 2 + a.rng.IntN(5)}
	occ := occupancy.SolidFragment(size[0], size[1], size[2])
	if a.rng.IntN(2) == 0 {
		// knock out a corner column so the fragment is not a plain box
		for y := 0; y < size[1]; y++ {
			occ.Set(size[0]-1, y, size[2]-1, false)
		}
	}
	rot := mgl32.AnglesToQuat(a.rng.Float32()*0.6-0.3, a.rng.Float32()*6.28, a.rng.Float32()*0.6-0.3, mgl32.XYZ)
	a.World.SpawnFragment(occ, pos, rot)
}

func (a *App) overPanel() bool {
	return rl.GetMousePosition().X < panelWidth
}

func (a *App) Update() {
	start := time.Now()
	dt := rl.GetFrameTime()

	a.Camera.Update(dt)

	if rl.IsKeyPressed(rl.KeySpace) {
		t := a.Camera.Target
		a.spawnRandom(mgl32.Vec3{t.X, t.Y + spawnHeight, t.Z})
	}
	if rl.IsKeyPressed(rl.KeyP) {
		a.Paused = !a.Paused
	}
	if rl.IsKeyPressed(rl.KeyG) {
		a.toggleGPU()
	}
	if rl.IsKeyPressed(rl.KeyF1) {
		a.Renderer.ShowBounds = !a.Renderer.ShowBounds
	}

	if !a.overPanel() && (rl.IsMouseButtonPressed(rl.MouseLeftButton) || rl.IsMouseButtonPressed(rl.MouseMiddleButton)) {
		a.editAtCursor(rl.IsMouseButtonPressed(rl.MouseMiddleButton) || rl.IsKeyDown(rl.KeyLeftShift))
	}

	if !a.Paused {
		a.World.Frame(float64(dt))
	}
	a.updateMs = float64(time.Since(start).Microseconds()) / 1000.0
}

// editAtCursor removes the terrain voxel under the cursor, or places one on
// the face that was hit.
func (a *App) editAtCursor(place bool) {
	ray := rl.GetScreenToWorldRay(rl.GetMousePosition(), a.Camera.GetRaylibCamera())
	origin := mgl32.Vec3{ray.Position.X, ray.Position.Y, ray.Position.Z}
	dir := mgl32.Vec3{ray.Direction.X, ray.Direction.Y, ray.Direction.Z}

	hit, ok := a.World.Physics.Raycast(origin, dir, reachRange)
	if !ok {
		return
	}
	if hit.GameObject != nil {
		a.status = fmt.Sprintf("%s at %.1f", hit.GameObject.Name, hit.Distance)
		return
	}
	v := hit.Voxel
	if place {
		n := hit.Normal
		x, y, z := v[0]+int(n[0]), v[1]+int(n[1]), v[2]+int(n[2])
		a.World.EditVoxel(x, y, z, &voxel.Voxel{Color: colorTerrain})
		a.status = fmt.Sprintf("placed %d,%d,%d", x, y, z)
		return
	}
	a.World.EditVoxel(v[0], v[1], v[2], nil)
	a.status = fmt.Sprintf("removed %d,%d,%d", v[0], v[1], v[2])
}

func (a *App) toggleGPU() {
	next := world.ModeGPU
	if a.World.Mode() == world.ModeGPU {
		next = world.ModeCPU
	}
	if err := a.World.SetMode(next); err != nil {
		a.status = err.Error()
		logger.Warn("mode switch failed", "mode", next, "err", err)
	}
}

func (a *App) Draw() {
	start := time.Now()
	cam := a.Camera.GetRaylibCamera()

	rl.BeginDrawing()
	rl.ClearBackground(rl.NewColor(30, 32, 40, 255))

	rl.BeginMode3D(cam)
	a.Renderer.Draw(cam, a.World)
	if hit, ok := a.cursorHit(cam); ok && hit.GameObject == nil {
		c := rl.Vector3{X: float32(hit.Voxel[0]) + 0.5, Y: float32(hit.Voxel[1]) + 0.5, Z: float32(hit.Voxel[2]) + 0.5}
		rl.DrawCubeWires(c, 1.02, 1.02, 1.02, rl.Yellow)
	}
	rl.EndMode3D()

	a.drawPanel()
	rl.EndDrawing()
	a.drawMs = float64(time.Since(start).Microseconds()) / 1000.0
}

func (a *App) cursorHit(cam rl.Camera3D) (physics.RaycastHit, bool) {
	if a.overPanel() {
		return physics.RaycastHit{}, false
	}
	ray := rl.GetScreenToWorldRay(rl.GetMousePosition(), cam)
	return a.World.Physics.Raycast(
		mgl32.Vec3{ray.Position.X, ray.Position.Y, ray.Position.Z},
		mgl32.Vec3{ray.Direction.X, ray.Direction.Y, ray.Direction.Z},
		reachRange,
	)
}

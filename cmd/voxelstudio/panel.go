package main

import (
	"fmt"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl32"

	"voxelstudio/internal/world"
)

func initStyle() {
	gui.SetStyle(gui.DEFAULT, gui.BACKGROUND_COLOR, gui.NewColorPropertyValue(colorBgDark))
	gui.SetStyle(gui.DEFAULT, gui.BASE_COLOR_NORMAL, gui.NewColorPropertyValue(colorBgElement))
	gui.SetStyle(gui.DEFAULT, gui.BASE_COLOR_FOCUSED, gui.NewColorPropertyValue(colorBgHover))
	gui.SetStyle(gui.DEFAULT, gui.BASE_COLOR_PRESSED, gui.NewColorPropertyValue(colorAccent))
	gui.SetStyle(gui.DEFAULT, gui.TEXT_COLOR_NORMAL, gui.NewColorPropertyValue(colorText))
	gui.SetStyle(gui.DEFAULT, gui.TEXT_COLOR_FOCUSED, gui.NewColorPropertyValue(rl.White))
	gui.SetStyle(gui.DEFAULT, gui.TEXT_COLOR_PRESSED, gui.NewColorPropertyValue(rl.White))
	gui.SetStyle(gui.DEFAULT, gui.BORDER_COLOR_FOCUSED, gui.NewColorPropertyValue(colorAccent))
	gui.SetStyle(gui.DEFAULT, gui.TEXT_SIZE, 14)
}

// drawPanel renders the control panel and stats down the left edge.
func (a *App) drawPanel() {
	h := float32(rl.GetScreenHeight())
	rl.DrawRectangle(0, 0, panelWidth, int32(h), colorBgPanel)

	x, y := float32(12), float32(12)
	w := float32(panelWidth - 24)
	row := func(height float32) rl.Rectangle {
		r := rl.NewRectangle(x, y, w, height)
		y += height + 6
		return r
	}

	rl.DrawText("voxelstudio", int32(x), int32(y), 20, rl.White)
	y += 30

	if gui.Button(row(28), "Spawn fragment [Space]") {
		t := a.Camera.Target
		a.spawnRandom(mgl32.Vec3{t.X, t.Y + spawnHeight, t.Z})
	}
	if gui.Button(row(28), "Spawn 10") {
		t := a.Camera.Target
		for i := 0; i < 10; i++ {
			a.spawnRandom(mgl32.Vec3{t.X + float32(i%5)*6 - 12, t.Y + spawnHeight + float32(i/5)*8, t.Z})
		}
	}

	gpu := a.World.Mode() == world.ModeGPU
	if gui.CheckBox(rl.NewRectangle(x, y, 18, 18), "GPU collision [G]", gpu) != gpu {
		a.toggleGPU()
	}
	y += 26
	a.Paused = gui.CheckBox(rl.NewRectangle(x, y, 18, 18), "Paused [P]", a.Paused)
	y += 26
	a.Renderer.ShowWires = gui.CheckBox(rl.NewRectangle(x, y, 18, 18), "Voxel outlines", a.Renderer.ShowWires)
	y += 26
	a.Renderer.ShowBounds = gui.CheckBox(rl.NewRectangle(x, y, 18, 18), "Body bounds [F1]", a.Renderer.ShowBounds)
	y += 34

	st := a.World.Stats()
	lines := []string{
		fmt.Sprintf("FPS        %d", rl.GetFPS()),
		fmt.Sprintf("Mode       %s", st.Mode),
		fmt.Sprintf("Device     %s", st.Device),
		fmt.Sprintf("Fragments  %d (%d drawn)", st.Fragments, a.Renderer.Drawn),
		fmt.Sprintf("Chunks     %d resident, %d parked", st.ResidentChunks, st.ParkedChunks),
		fmt.Sprintf("Steps      %d", st.Steps),
		fmt.Sprintf("Contacts   %d", st.LastApply.Contacts),
		fmt.Sprintf("Collide    %.2f ms", float64(st.CollideTime.Microseconds())/1000),
		fmt.Sprintf("Update     %.2f ms", a.updateMs),
		fmt.Sprintf("Draw       %.2f ms", a.drawMs),
		fmt.Sprintf("Delivered  %d", st.Readback.Delivered),
		fmt.Sprintf("Dropped    %d", st.Readback.Dropped),
		fmt.Sprintf("Map fails  %d", st.Readback.MapFailures),
	}
	if st.EvictedChunks > 0 {
		lines = append(lines, fmt.Sprintf("Evicted    %d chunks", st.EvictedChunks))
	}
	if st.SkippedChunks > 0 {
		lines = append(lines, fmt.Sprintf("Skipped    %d chunks", st.SkippedChunks))
	}
	for _, l := range lines {
		rl.DrawText(l, int32(x), int32(y), 14, colorText)
		y += 18
	}

	if st.FallbackReason != nil {
		y += 6
		rl.DrawText("CPU fallback:", int32(x), int32(y), 14, rl.Orange)
		y += 18
		rl.DrawText(truncate(st.FallbackReason.Error(), 34), int32(x), int32(y), 12, colorTextMuted)
		y += 18
	}
	if a.status != "" {
		rl.DrawText(a.status, int32(x), int32(h-60), 14, colorText)
	}
	rl.DrawText("LMB remove  MMB/Shift place", int32(x), int32(h-40), 12, colorTextMuted)
	rl.DrawText("RMB orbit  WASD pan  wheel zoom", int32(x), int32(h-24), 12, colorTextMuted)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

package world

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-gl/mathgl/mgl32"

	"voxelstudio/internal/components"
	"voxelstudio/internal/engine"
	"voxelstudio/internal/occupancy"
	"voxelstudio/internal/voxel"
)

// --- JSON types ---

type SceneFile struct {
	Terrain   []TerrainBoxDef `json:"terrain"`
	Fragments []FragmentDef   `json:"fragments"`
	Kinematic []KinematicDef  `json:"kinematic,omitempty"`
}

// TerrainBoxDef fills an inclusive voxel box.
type TerrainBoxDef struct {
	Min   [3]int `json:"min"`
	Max   [3]int `json:"max"`
	Color string `json:"color,omitempty"`
	Clear bool   `json:"clear,omitempty"`
}

type FragmentDef struct {
	Name     string     `json:"name,omitempty"`
	Position [3]float32 `json:"position"`
	Rotation [3]float32 `json:"rotation,omitempty"` // euler degrees
	Size     [3]int     `json:"size"`
	Shape    string     `json:"shape,omitempty"` // solid, hollow, sphere
	Velocity [3]float32 `json:"velocity,omitempty"`
	Color    string     `json:"color,omitempty"`
}

type KinematicDef struct {
	Name        string     `json:"name,omitempty"`
	Position    [3]float32 `json:"position"`
	HalfExtents [3]float32 `json:"halfExtents"`
}

// --- Color mapping ---

var colorByName = map[string][3]uint8{
	"Red":       {230, 41, 55},
	"Blue":      {0, 121, 241},
	"Green":     {0, 228, 48},
	"Orange":    {255, 161, 0},
	"Yellow":    {253, 249, 0},
	"Purple":    {200, 122, 255},
	"Brown":     {127, 106, 79},
	"Beige":     {211, 176, 131},
	"Gray":      {130, 130, 130},
	"LightGray": {200, 200, 200},
	"DarkGray":  {80, 80, 80},
	"White":     {255, 255, 255},
}

func lookupColor(name string, fallback [3]uint8) [3]uint8 {
	if c, ok := colorByName[name]; ok {
		return c
	}
	return fallback
}

// --- Shapes ---

func buildShape(shape string, size [3]int) (*occupancy.Fragment, error) {
	if size[0] < 1 || size[1] < 1 || size[2] < 1 {
		return nil, fmt.Errorf("fragment size %v must be positive", size)
	}
	switch shape {
	case "", "solid":
		return occupancy.SolidFragment(size[0], size[1], size[2]), nil
	case "hollow":
		f := occupancy.NewFragment(size[0], size[1], size[2])
		for z := 0; z < size[2]; z++ {
			for y := 0; y < size[1]; y++ {
				for x := 0; x < size[0]; x++ {
					if x == 0 || y == 0 || z == 0 || x == size[0]-1 || y == size[1]-1 || z == size[2]-1 {
						f.Set(x, y, z, true)
					}
				}
			}
		}
		return f, nil
	case "sphere":
		f := occupancy.NewFragment(size[0], size[1], size[2])
		for z := 0; z < size[2]; z++ {
			for y := 0; y < size[1]; y++ {
				for x := 0; x < size[0]; x++ {
					dx := (float32(x)+0.5)/float32(size[0])*2 - 1
					dy := (float32(y)+0.5)/float32(size[1])*2 - 1
					dz := (float32(z)+0.5)/float32(size[2])*2 - 1
					if dx*dx+dy*dy+dz*dz <= 1 {
						f.Set(x, y, z, true)
					}
				}
			}
		}
		return f, nil
	}
	return nil, fmt.Errorf("unknown fragment shape %q", shape)
}

// --- Loading ---

// ParseScene decodes a scene description.
func ParseScene(data []byte) (*SceneFile, error) {
	var sf SceneFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	return &sf, nil
}

// LoadScene reads a scene file into the world: terrain boxes first, then
// fragments and kinematic boxes.
func (w *World) LoadScene(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scene: %w", err)
	}
	sf, err := ParseScene(data)
	if err != nil {
		return err
	}
	return w.ApplyScene(sf)
}

func (w *World) ApplyScene(sf *SceneFile) error {
	if err := w.checkNames(sf); err != nil {
		return err
	}
	for _, box := range sf.Terrain {
		if box.Clear {
			for x := box.Min[0]; x <= box.Max[0]; x++ {
				for y := box.Min[1]; y <= box.Max[1]; y++ {
					for z := box.Min[2]; z <= box.Max[2]; z++ {
						w.Terrain.ClearVoxel(x, y, z)
					}
				}
			}
			continue
		}
		w.Terrain.FillBox(box.Min, box.Max, voxel.Voxel{Color: lookupColor(box.Color, colorByName["Gray"])})
	}

	for i, def := range sf.Fragments {
		occ, err := buildShape(def.Shape, def.Size)
		if err != nil {
			return fmt.Errorf("fragment %d: %w", i, err)
		}
		rot := mgl32.AnglesToQuat(
			mgl32.DegToRad(def.Rotation[0]),
			mgl32.DegToRad(def.Rotation[1]),
			mgl32.DegToRad(def.Rotation[2]),
			mgl32.XYZ,
		)
		g := w.SpawnFragment(occ, mgl32.Vec3(def.Position), rot)
		if def.Name != "" {
			g.Name = def.Name
		}
		if f := engine.GetComponent[*components.VoxelFragment](g); f != nil {
			f.Color = lookupColor(def.Color, f.Color)
		}
		if body := engine.GetComponent[*components.FragmentBody](g); body != nil {
			body.Velocity = mgl32.Vec3(def.Velocity)
		}
	}

	for _, def := range sf.Kinematic {
		g := w.SpawnKinematicBox(mgl32.Vec3(def.HalfExtents), mgl32.Vec3(def.Position))
		if def.Name != "" {
			g.Name = def.Name
		}
	}
	return nil
}

// checkNames rejects a scene whose named entities collide with each other or
// with entities already in the world, so lookups by name stay unambiguous.
func (w *World) checkNames(sf *SceneFile) error {
	names := make([]string, 0, len(sf.Fragments)+len(sf.Kinematic))
	for _, def := range sf.Fragments {
		names = append(names, def.Name)
	}
	for _, def := range sf.Kinematic {
		names = append(names, def.Name)
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup || w.Scene.FindByName(name) != nil {
			return fmt.Errorf("entity name %q is already taken", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

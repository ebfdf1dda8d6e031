package engine

import "testing"

func newFragment(name string, tags ...string) *GameObject {
	g := NewGameObject(name)
	g.Tags = tags
	return g
}

func TestSpawnRegistersEntity(t *testing.T) {
	scene := NewScene("terrain")
	crate := newFragment("crate", "fragment")
	scene.AddGameObject(crate)

	if got := scene.FindByUID(crate.UID); got != crate {
		t.Fatalf("FindByUID(%v) = %v, want the spawned crate", crate.UID, got)
	}
	if crate.Scene != scene {
		t.Error("spawned fragment does not point back at its scene")
	}
	if scene.FindByUID(crate.UID+1000) != nil {
		t.Error("unknown entity id resolved")
	}
}

func TestDespawnLeavesOthersResolvable(t *testing.T) {
	scene := NewScene("terrain")
	rock := newFragment("rock", "fragment")
	plank := newFragment("plank", "fragment")
	scene.AddGameObject(rock)
	scene.AddGameObject(plank)

	scene.RemoveGameObject(rock)

	if len(scene.GameObjects) != 1 || scene.GameObjects[0] != plank {
		t.Fatalf("after despawn scene holds %d objects", len(scene.GameObjects))
	}
	if scene.FindByUID(rock.UID) != nil {
		t.Error("despawned fragment still resolves; late contacts would be applied to it")
	}
	if rock.Scene != nil {
		t.Error("despawned fragment keeps its scene")
	}
	if scene.FindByUID(plank.UID) != plank {
		t.Error("surviving fragment lost")
	}
}

// Debris split off a fragment is parented to it and goes with it.
func TestDespawnTakesDebrisAlong(t *testing.T) {
	scene := NewScene("terrain")
	wall := newFragment("wall", "fragment")
	chip := newFragment("chip", "fragment")
	scene.AddGameObject(wall)
	scene.AddGameObject(chip)
	wall.AddChild(chip)

	scene.RemoveGameObject(wall)

	if n := len(scene.GameObjects); n != 0 {
		t.Errorf("%d objects left after despawning the parent", n)
	}
	if scene.FindByUID(chip.UID) != nil {
		t.Error("debris outlived its parent")
	}
}

func TestLookupByNameAndTag(t *testing.T) {
	scene := NewScene("terrain")
	scene.AddGameObject(newFragment("crate", "fragment"))
	scene.AddGameObject(newFragment("barrel", "fragment"))
	player := newFragment("player", "kinematic")
	scene.AddGameObject(player)

	if scene.FindByName("player") != player {
		t.Error("player not found by name")
	}
	if scene.FindByName("ghost") != nil {
		t.Error("missing name resolved")
	}

	frags := scene.FindByTag("fragment")
	if len(frags) != 2 || frags[0].Name != "crate" {
		t.Errorf("FindByTag(fragment) = %d objects", len(frags))
	}
	if n := len(scene.FindByTag("kinematic")); n != 1 {
		t.Errorf("FindByTag(kinematic) = %d objects, want 1", n)
	}
	if scene.FindByTag("terrain") != nil {
		t.Error("unused tag matched")
	}
}

func TestZeroSceneAcceptsEntities(t *testing.T) {
	var scene Scene
	g := newFragment("crate")
	scene.AddGameObject(g)
	if scene.FindByUID(g.UID) != g {
		t.Error("zero-value scene did not index the entity")
	}
}

// Snapshots walk entities in id order, whatever order they were spawned in.
func TestEntitiesInIDOrder(t *testing.T) {
	scene := NewScene("terrain")
	first := newFragment("first")
	second := newFragment("second")
	third := newFragment("third")
	scene.AddGameObject(third)
	scene.AddGameObject(first)
	scene.AddGameObject(second)
	scene.RemoveGameObject(second)
	scene.AddGameObject(second)

	got := scene.Entities()
	want := []*GameObject{first, second, third}
	if len(got) != len(want) {
		t.Fatalf("got %d entities, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entity %d is %s, want %s", i, got[i].Name, want[i].Name)
		}
	}
}

func TestUpdateReachesEveryEntity(t *testing.T) {
	scene := NewScene("terrain")
	a := newFragment("a")
	b := newFragment("b")
	ca, cb := &countingComponent{}, &countingComponent{}
	a.AddComponent(ca)
	b.AddComponent(cb)
	scene.AddGameObject(a)
	scene.AddGameObject(b)

	scene.Update(1.0 / 60)
	scene.Update(1.0 / 60)
	if ca.updates != 2 || cb.updates != 2 {
		t.Errorf("updates = %d, %d; want 2 each", ca.updates, cb.updates)
	}
}

type countingComponent struct {
	BaseComponent
	updates int
}

func (c *countingComponent) Update(float32) { c.updates++ }

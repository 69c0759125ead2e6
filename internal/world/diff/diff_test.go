package diff

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"worldstate.ai/internal/world/model"
	"worldstate.ai/internal/world/runtime"
)

func view(ps ...runtime.PlacementView) runtime.WorldView {
	return runtime.WorldView{Placements: ps}
}

func pv(id, asset string) runtime.PlacementView {
	return runtime.PlacementView{PlacementID: id, AssetID: asset, IsValid: true, Transform: model.IdentityTransform()}
}

func ids[T any](xs []T, id func(T) string) []string {
	out := []string{}
	for _, x := range xs {
		out = append(out, id(x))
	}
	return out
}

func TestCompute_SelfDiffIsEmpty(t *testing.T) {
	nan := pv("n", "x")
	nan.Transform.Position.X = math.NaN()
	x := view(pv("a", "chair"), pv("b", "table"), nan)
	d := Compute(x, x)
	if !d.Empty() {
		t.Fatalf("self diff not empty: %+v", d)
	}
}

func TestCompute_Buckets(t *testing.T) {
	before := view(pv("keep", "chair"), pv("gone", "lamp"), pv("moved", "sofa"))
	moved := pv("moved", "sofa")
	moved.Transform.Position.X = 2
	after := view(pv("new", "rug"), moved, pv("keep", "chair"))

	d := Compute(before, after)
	if got := ids(d.Added, func(a Added) string { return a.PlacementID }); !reflect.DeepEqual(got, []string{"new"}) {
		t.Fatalf("added=%v", got)
	}
	if got := ids(d.Removed, func(r Removed) string { return r.PlacementID }); !reflect.DeepEqual(got, []string{"gone"}) {
		t.Fatalf("removed=%v", got)
	}
	if got := ids(d.Updated, func(u Updated) string { return u.PlacementID }); !reflect.DeepEqual(got, []string{"moved"}) {
		t.Fatalf("updated=%v", got)
	}
	if d.Updated[0].Before.Transform.Position.X != 0 || d.Updated[0].After.Transform.Position.X != 2 {
		t.Fatalf("updated entry carries wrong views: %+v", d.Updated[0])
	}
}

func TestCompute_CanonicalOrdering(t *testing.T) {
	before := view(pv("c", "1"), pv("a", "1"))
	afterA := view(pv("z", "1"), pv("m", "1"), pv("b", "1"))
	afterB := view(pv("b", "1"), pv("z", "1"), pv("m", "1"))

	d1 := Compute(before, afterA)
	d2 := Compute(view(pv("a", "1"), pv("c", "1")), afterB)
	if !reflect.DeepEqual(d1, d2) {
		t.Fatalf("diffs differ:\n%+v\n%+v", d1, d2)
	}
	j1, _ := json.Marshal(d1)
	j2, _ := json.Marshal(d2)
	if string(j1) != string(j2) {
		t.Fatalf("serialized diffs differ")
	}
	if got := ids(d1.Added, func(a Added) string { return a.PlacementID }); !reflect.DeepEqual(got, []string{"b", "m", "z"}) {
		t.Fatalf("added order=%v", got)
	}
}

func TestEqual_Fields(t *testing.T) {
	base := pv("a", "chair")
	base.Tags = []string{"x", "y"}
	base.IssueIDs = []string{"i1"}

	mutations := map[string]func(*runtime.PlacementView){
		"asset":     func(p *runtime.PlacementView) { p.AssetID = "sofa" },
		"region":    func(p *runtime.PlacementView) { p.RegionID = "r" },
		"space":     func(p *runtime.PlacementView) { p.SpaceID = "s" },
		"valid":     func(p *runtime.PlacementView) { p.IsValid = false },
		"warnings":  func(p *runtime.PlacementView) { p.HasWarnings = true },
		"rotation":  func(p *runtime.PlacementView) { p.Transform.Rotation.Y = 90 },
		"scale":     func(p *runtime.PlacementView) { p.Transform.Scale.Z = 2 },
		"tag order": func(p *runtime.PlacementView) { p.Tags = []string{"y", "x"} },
		"issues":    func(p *runtime.PlacementView) { p.IssueIDs = nil },
		"tiny move": func(p *runtime.PlacementView) { p.Transform.Position.X = 1e-12 },
	}
	for name, mut := range mutations {
		other := base
		other.Tags = append([]string(nil), base.Tags...)
		mut(&other)
		if Equal(base, other) {
			t.Fatalf("%s: expected difference", name)
		}
	}
	if !Equal(base, base) {
		t.Fatalf("view not equal to itself")
	}
}

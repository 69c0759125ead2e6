package digest

import (
	"math"
	"testing"

	"worldstate.ai/internal/world/model"
	"worldstate.ai/internal/world/runtime"
)

func TestViewDigest_OrderIndependent(t *testing.T) {
	a := runtime.PlacementView{PlacementID: "a", AssetID: "chair", IsValid: true}
	b := runtime.PlacementView{PlacementID: "b", AssetID: "table", IsValid: true}
	r1 := model.Region{RegionID: "r1", SpaceIDs: []string{"s1"}}
	r2 := model.Region{RegionID: "r2"}

	d1 := ViewDigest(runtime.WorldView{Regions: []model.Region{r1, r2}, Placements: []runtime.PlacementView{a, b}})
	d2 := ViewDigest(runtime.WorldView{Regions: []model.Region{r2, r1}, Placements: []runtime.PlacementView{b, a}})
	if d1 != d2 {
		t.Fatalf("digest depends on order: %s vs %s", d1, d2)
	}

	b.IsValid = false
	d3 := ViewDigest(runtime.WorldView{Regions: []model.Region{r1, r2}, Placements: []runtime.PlacementView{a, b}})
	if d3 == d1 {
		t.Fatalf("digest ignored validity flag")
	}
}

func TestViewDigest_FieldBoundaries(t *testing.T) {
	x := runtime.PlacementView{PlacementID: "ab", AssetID: "c"}
	y := runtime.PlacementView{PlacementID: "a", AssetID: "bc"}
	if ViewDigest(runtime.WorldView{Placements: []runtime.PlacementView{x}}) ==
		ViewDigest(runtime.WorldView{Placements: []runtime.PlacementView{y}}) {
		t.Fatalf("adjacent fields collide")
	}
}

func TestViewDigest_SignedZeroAndNaN(t *testing.T) {
	pos := runtime.PlacementView{PlacementID: "a", AssetID: "chair", Transform: model.IdentityTransform()}
	neg := pos
	neg.Transform.Position = model.Vec3{X: math.Copysign(0, -1), Y: 0, Z: 0}
	if ViewDigest(runtime.WorldView{Placements: []runtime.PlacementView{pos}}) !=
		ViewDigest(runtime.WorldView{Placements: []runtime.PlacementView{neg}}) {
		t.Fatalf("-0 and +0 digest differently")
	}

	n1, n2 := pos, pos
	n1.Transform.Rotation.Y = math.NaN()
	n2.Transform.Rotation.Y = math.Float64frombits(math.Float64bits(math.NaN()) | 2)
	if ViewDigest(runtime.WorldView{Placements: []runtime.PlacementView{n1}}) !=
		ViewDigest(runtime.WorldView{Placements: []runtime.PlacementView{n2}}) {
		t.Fatalf("NaN payloads digest differently")
	}
	if ViewDigest(runtime.WorldView{Placements: []runtime.PlacementView{n1}}) ==
		ViewDigest(runtime.WorldView{Placements: []runtime.PlacementView{pos}}) {
		t.Fatalf("NaN rotation ignored")
	}
}

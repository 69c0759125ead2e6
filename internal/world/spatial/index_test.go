package spatial

import (
	"testing"

	"worldstate.ai/internal/world/runtime"
)

func TestRegionIndex(t *testing.T) {
	v := runtime.WorldView{Placements: []runtime.PlacementView{
		{PlacementID: "a", RegionID: "r1", SpaceID: "s1"},
		{PlacementID: "b", RegionID: "r1"},
		{PlacementID: "c", RegionID: "r2", SpaceID: "s1"},
		{PlacementID: "d"},
	}}
	idx := Build(v)
	if got := idx.PlacementsInRegion("r1"); len(got) != 2 {
		t.Fatalf("r1 placements=%d", len(got))
	}
	got := idx.PlacementsInSpace("r1", "s1")
	if len(got) != 1 || got[0].PlacementID != "a" {
		t.Fatalf("r1/s1=%+v", got)
	}
	if got := idx.PlacementsInRegion(""); len(got) != 0 {
		t.Fatalf("unregioned placements should not be indexed: %+v", got)
	}
	var nilIdx *RegionIndex
	if nilIdx.PlacementsInRegion("r1") != nil {
		t.Fatalf("nil index should return nil")
	}
}

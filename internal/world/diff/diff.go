package diff

import (
	"math"
	"sort"

	"worldstate.ai/internal/world/model"
	"worldstate.ai/internal/world/runtime"
)

type Added struct {
	PlacementID string                `json:"placement_id"`
	After       runtime.PlacementView `json:"after"`
}

type Removed struct {
	PlacementID string                `json:"placement_id"`
	Before      runtime.PlacementView `json:"before"`
}

type Updated struct {
	PlacementID string                `json:"placement_id"`
	Before      runtime.PlacementView `json:"before"`
	After       runtime.PlacementView `json:"after"`
}

// WorldDiff lists are each sorted by placement id.
type WorldDiff struct {
	Added   []Added   `json:"added"`
	Removed []Removed `json:"removed"`
	Updated []Updated `json:"updated"`
}

func (d WorldDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Updated) == 0
}

// Compute returns the structural diff from before to after. Unchanged
// placements are omitted.
func Compute(before, after runtime.WorldView) WorldDiff {
	b := index(before)
	a := index(after)

	out := WorldDiff{
		Added:   []Added{},
		Removed: []Removed{},
		Updated: []Updated{},
	}
	for id, av := range a {
		bv, ok := b[id]
		if !ok {
			out.Added = append(out.Added, Added{PlacementID: id, After: av})
			continue
		}
		if !Equal(bv, av) {
			out.Updated = append(out.Updated, Updated{PlacementID: id, Before: bv, After: av})
		}
	}
	for id, bv := range b {
		if _, ok := a[id]; !ok {
			out.Removed = append(out.Removed, Removed{PlacementID: id, Before: bv})
		}
	}

	sort.Slice(out.Added, func(i, j int) bool { return out.Added[i].PlacementID < out.Added[j].PlacementID })
	sort.Slice(out.Removed, func(i, j int) bool { return out.Removed[i].PlacementID < out.Removed[j].PlacementID })
	sort.Slice(out.Updated, func(i, j int) bool { return out.Updated[i].PlacementID < out.Updated[j].PlacementID })
	return out
}

func index(v runtime.WorldView) map[string]runtime.PlacementView {
	m := make(map[string]runtime.PlacementView, len(v.Placements))
	for _, p := range v.Placements {
		m[p.PlacementID] = p
	}
	return m
}

// Equal compares two placement views field by field with exact float
// comparison (NaN matches NaN so a view always equals itself). Tag and issue
// id order is significant.
func Equal(a, b runtime.PlacementView) bool {
	if a.PlacementID != b.PlacementID ||
		a.AssetID != b.AssetID ||
		a.RegionID != b.RegionID ||
		a.SpaceID != b.SpaceID ||
		a.IsValid != b.IsValid ||
		a.HasWarnings != b.HasWarnings {
		return false
	}
	if !vecEqual(a.Transform.Position, b.Transform.Position) ||
		!vecEqual(a.Transform.Rotation, b.Transform.Rotation) ||
		!vecEqual(a.Transform.Scale, b.Transform.Scale) {
		return false
	}
	return stringsEqual(a.Tags, b.Tags) && stringsEqual(a.IssueIDs, b.IssueIDs)
}

func vecEqual(a, b model.Vec3) bool {
	return floatEqual(a.X, b.X) && floatEqual(a.Y, b.Y) && floatEqual(a.Z, b.Z)
}

func floatEqual(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

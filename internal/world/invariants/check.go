package invariants

import (
	"fmt"
	"sort"

	"worldstate.ai/internal/world/diff"
	"worldstate.ai/internal/world/linking"
	"worldstate.ai/internal/world/model"
	"worldstate.ai/internal/world/runtime"
	"worldstate.ai/internal/world/validation"
)

// SpatialIndex is the query surface of an external spatial index.
type SpatialIndex interface {
	PlacementsInRegion(regionID string) []runtime.PlacementView
	PlacementsInSpace(regionID, spaceID string) []runtime.PlacementView
}

const DefaultSampleSize = 2

// Context carries the snapshot to audit plus optional derived data. Each
// optional field that is set enables its own group of checks.
type Context struct {
	WorldView        runtime.WorldView
	SpatialIndex     SpatialIndex
	Diff             *diff.WorldDiff
	ValidationResult *validation.Result
	LinkingIndex     *linking.Index

	// SampleSize bounds how many placements are probed against the spatial
	// index. Zero means DefaultSampleSize.
	SampleSize int
}

// Check audits ctx and returns every finding as data. It never panics on
// malformed input.
func Check(ctx Context) Report {
	var vs []Violation
	vs = append(vs, checkWorld(ctx.WorldView)...)
	if ctx.SpatialIndex != nil {
		vs = append(vs, checkSpatial(ctx)...)
	}
	if ctx.Diff != nil {
		vs = append(vs, checkDiff(*ctx.Diff)...)
	}
	if ctx.ValidationResult != nil {
		vs = append(vs, checkValidation(ctx.WorldView, *ctx.ValidationResult)...)
	}
	if ctx.LinkingIndex != nil {
		vs = append(vs, checkLinking(ctx.WorldView, *ctx.LinkingIndex)...)
	}
	return NewReport(vs)
}

func checkWorld(v runtime.WorldView) []Violation {
	var out []Violation

	counts := map[string]int{}
	for _, p := range v.Placements {
		counts[p.PlacementID]++
	}
	dupes := make([]string, 0)
	for id, n := range counts {
		if n > 1 {
			dupes = append(dupes, id)
		}
	}
	sort.Strings(dupes)
	for _, id := range dupes {
		out = append(out, Violation{
			Code:     CodePlacementIDNotUnique,
			Severity: SeverityError,
			Message:  fmt.Sprintf("placement id %q appears %d times", id, counts[id]),
			Details:  map[string]any{"placement_id": id, "count": counts[id]},
		})
	}

	regions := model.RegionsByID(v.Regions)
	for _, p := range v.Placements {
		if p.RegionID == "" {
			continue
		}
		r, ok := regions[p.RegionID]
		if !ok {
			out = append(out, Violation{
				Code:     CodePlacementRegionNotFound,
				Severity: SeverityError,
				Message:  fmt.Sprintf("placement %q references missing region %q", p.PlacementID, p.RegionID),
				Details:  map[string]any{"placement_id": p.PlacementID, "region_id": p.RegionID},
			})
			continue
		}
		if p.SpaceID != "" && !r.HasSpace(p.SpaceID) {
			out = append(out, Violation{
				Code:     CodePlacementSpaceNotInRegion,
				Severity: SeverityError,
				Message:  fmt.Sprintf("placement %q references space %q outside region %q", p.PlacementID, p.SpaceID, p.RegionID),
				Details:  map[string]any{"placement_id": p.PlacementID, "region_id": p.RegionID, "space_id": p.SpaceID},
			})
		}
	}
	return out
}

func checkSpatial(ctx Context) (out []Violation) {
	defer func() {
		if r := recover(); r != nil {
			out = append(out, Violation{
				Code:     CodeSpatialIndexFailed,
				Severity: SeverityError,
				Message:  fmt.Sprintf("spatial index query failed: %v", r),
			})
		}
	}()

	idx := ctx.SpatialIndex
	for _, r := range ctx.WorldView.Regions {
		for _, p := range idx.PlacementsInRegion(r.RegionID) {
			if p.RegionID != r.RegionID {
				out = append(out, Violation{
					Code:     CodeSpatialRegionMismatch,
					Severity: SeverityError,
					Message:  fmt.Sprintf("region %q query returned placement %q from region %q", r.RegionID, p.PlacementID, p.RegionID),
					Details:  map[string]any{"region_id": r.RegionID, "placement_id": p.PlacementID, "placement_region_id": p.RegionID},
				})
			}
		}
	}

	n := ctx.SampleSize
	if n <= 0 {
		n = DefaultSampleSize
	}
	for i, p := range ctx.WorldView.Placements {
		if i >= n {
			break
		}
		if p.RegionID == "" {
			continue
		}
		var found []runtime.PlacementView
		if p.SpaceID != "" {
			found = idx.PlacementsInSpace(p.RegionID, p.SpaceID)
		} else {
			found = idx.PlacementsInRegion(p.RegionID)
		}
		if !containsPlacement(found, p.PlacementID) {
			out = append(out, Violation{
				Code:     CodeSpatialSampleMissing,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("placement %q not returned by its own region/space query", p.PlacementID),
				Details:  map[string]any{"placement_id": p.PlacementID, "region_id": p.RegionID, "space_id": p.SpaceID},
			})
		}
	}
	return out
}

func containsPlacement(ps []runtime.PlacementView, id string) bool {
	for _, p := range ps {
		if p.PlacementID == id {
			return true
		}
	}
	return false
}

func checkDiff(d diff.WorldDiff) []Violation {
	buckets := []struct {
		name string
		ids  []string
	}{
		{"added", idsOf(d.Added, func(a diff.Added) string { return a.PlacementID })},
		{"removed", idsOf(d.Removed, func(r diff.Removed) string { return r.PlacementID })},
		{"updated", idsOf(d.Updated, func(u diff.Updated) string { return u.PlacementID })},
	}

	var out []Violation
	for i := 0; i < len(buckets); i++ {
		for j := i + 1; j < len(buckets); j++ {
			overlap := intersect(buckets[i].ids, buckets[j].ids)
			if len(overlap) == 0 {
				continue
			}
			out = append(out, Violation{
				Code:     CodeDiffBucketsOverlap,
				Severity: SeverityError,
				Message:  fmt.Sprintf("diff buckets %s and %s share %d placement id(s)", buckets[i].name, buckets[j].name, len(overlap)),
				Details: map[string]any{
					"buckets":       []string{buckets[i].name, buckets[j].name},
					"placement_ids": overlap,
				},
			})
		}
	}
	for _, b := range buckets {
		if !sort.StringsAreSorted(b.ids) {
			out = append(out, Violation{
				Code:     CodeDiffNotCanonical,
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("diff bucket %s is not sorted by placement id", b.name),
				Details:  map[string]any{"bucket": b.name},
			})
		}
	}
	return out
}

func idsOf[T any](xs []T, id func(T) string) []string {
	out := make([]string, len(xs))
	for i, x := range xs {
		out[i] = id(x)
	}
	return out
}

func intersect(a, b []string) []string {
	set := make(map[string]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	seen := map[string]struct{}{}
	var out []string
	for _, id := range b {
		if _, ok := set[id]; !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func checkValidation(v runtime.WorldView, res validation.Result) []Violation {
	present := make(map[string]struct{}, len(v.Placements))
	for _, p := range v.Placements {
		present[p.PlacementID] = struct{}{}
	}
	var out []Violation
	for _, is := range res.Issues {
		if is.PlacementID != "" {
			if _, ok := present[is.PlacementID]; !ok {
				out = append(out, Violation{
					Code:     CodeIssuePlacementNotFound,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("issue %q targets missing placement %q", is.IssueID, is.PlacementID),
					Details:  map[string]any{"issue_id": is.IssueID, "placement_id": is.PlacementID},
				})
			}
		}
		if is.DraftPlacementID != "" {
			if _, ok := present[is.DraftPlacementID]; !ok {
				out = append(out, Violation{
					Code:     CodeIssueDraftNotFound,
					Severity: SeverityWarning,
					Message:  fmt.Sprintf("issue %q targets missing draft placement %q", is.IssueID, is.DraftPlacementID),
					Details:  map[string]any{"issue_id": is.IssueID, "draft_placement_id": is.DraftPlacementID},
				})
			}
		}
	}
	return out
}

func checkLinking(v runtime.WorldView, idx linking.Index) []Violation {
	placements := make(map[string]struct{}, len(v.Placements))
	for _, p := range v.Placements {
		placements[p.PlacementID] = struct{}{}
	}
	regions := model.RegionsByID(v.Regions)

	var out []Violation
	emptyLink := func(kind, id, path, node string) {
		if path == "" {
			out = append(out, Violation{
				Code:     CodeLinkEmptyPath,
				Severity: SeverityError,
				Message:  fmt.Sprintf("%s %q has an empty USD path", kind, id),
				Details:  map[string]any{"kind": kind, "id": id},
			})
		}
		if node == "" {
			out = append(out, Violation{
				Code:     CodeLinkEmptyNodeID,
				Severity: SeverityError,
				Message:  fmt.Sprintf("%s %q has an empty node id", kind, id),
				Details:  map[string]any{"kind": kind, "id": id},
			})
		}
	}

	pids := make([]string, 0, len(idx.Placements))
	for id := range idx.Placements {
		pids = append(pids, id)
	}
	sort.Strings(pids)
	for _, id := range pids {
		if _, ok := placements[id]; !ok {
			out = append(out, Violation{
				Code:     CodeLinkPlacementNotFound,
				Severity: SeverityError,
				Message:  fmt.Sprintf("linked placement %q is not in the world view", id),
				Details:  map[string]any{"placement_id": id},
			})
		}
		link := idx.Placements[id]
		emptyLink("placement", id, link.USDPath, link.NodeID)
	}

	rids := make([]string, 0, len(idx.Regions))
	for id := range idx.Regions {
		rids = append(rids, id)
	}
	sort.Strings(rids)
	for _, id := range rids {
		if _, ok := regions[id]; !ok {
			out = append(out, Violation{
				Code:     CodeLinkRegionNotFound,
				Severity: SeverityError,
				Message:  fmt.Sprintf("linked region %q is not in the world view", id),
				Details:  map[string]any{"region_id": id},
			})
		}
		link := idx.Regions[id]
		emptyLink("region", id, link.USDPath, link.NodeID)
	}
	return out
}

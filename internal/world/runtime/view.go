package runtime

import (
	"sort"

	"worldstate.ai/internal/world/commit"
	"worldstate.ai/internal/world/model"
	"worldstate.ai/internal/world/validation"
)

type PlacementView struct {
	PlacementID string          `json:"placement_id"`
	AssetID     string          `json:"asset_id"`
	RegionID    string          `json:"region_id,omitempty"`
	SpaceID     string          `json:"space_id,omitempty"`
	Transform   model.Transform `json:"transform"`
	Tags        []string        `json:"tags,omitempty"`

	IsValid     bool     `json:"is_valid"`
	HasWarnings bool     `json:"has_warnings"`
	IssueIDs    []string `json:"issue_ids,omitempty"`
}

// WorldView is the read-only snapshot consumed by diffing, invariant checks
// and downstream adapters. Callers must not mutate it.
type WorldView struct {
	Regions    []model.Region  `json:"regions"`
	Placements []PlacementView `json:"placements"`
}

func (v WorldView) PlacementByID(id string) (PlacementView, bool) {
	for _, p := range v.Placements {
		if p.PlacementID == id {
			return p, true
		}
	}
	return PlacementView{}, false
}

func (p PlacementView) Placement() model.AssetPlacement {
	return model.ClonePlacement(model.AssetPlacement{
		PlacementID: p.PlacementID,
		AssetID:     p.AssetID,
		RegionID:    p.RegionID,
		SpaceID:     p.SpaceID,
		Transform:   p.Transform,
		Tags:        p.Tags,
	})
}

// Build projects the effective placement set into a WorldView. Changes, if
// any, are applied first. Every effective placement appears in the view,
// invalid ones included.
func Build(regions []model.Region, base []model.AssetPlacement, changes []commit.Change, result *validation.Result) WorldView {
	effective := base
	if len(changes) > 0 {
		effective = commit.ApplyChanges(base, changes)
	}

	views := make([]PlacementView, len(effective))
	for i, p := range effective {
		p = model.ClonePlacement(p)
		views[i] = PlacementView{
			PlacementID: p.PlacementID,
			AssetID:     p.AssetID,
			RegionID:    p.RegionID,
			SpaceID:     p.SpaceID,
			Transform:   p.Transform,
			Tags:        p.Tags,
			IsValid:     true,
		}
	}
	if result != nil {
		annotate(views, result.Issues)
	}

	rs := make([]model.Region, len(regions))
	for i, r := range regions {
		r.SpaceIDs = append([]string(nil), r.SpaceIDs...)
		rs[i] = r
	}
	return WorldView{Regions: rs, Placements: views}
}

func annotate(views []PlacementView, issues []validation.Issue) {
	byPlacement := map[string][]validation.Issue{}
	for _, is := range issues {
		if is.PlacementID == "" {
			continue
		}
		byPlacement[is.PlacementID] = append(byPlacement[is.PlacementID], is)
	}
	for i := range views {
		v := &views[i]
		list := byPlacement[v.PlacementID]
		if len(list) == 0 {
			continue
		}
		hasErr, hasWarn := false, false
		ids := make([]string, 0, len(list))
		for _, is := range list {
			switch is.Severity {
			case validation.SeverityError:
				hasErr = true
			case validation.SeverityWarning:
				hasWarn = true
			}
			ids = append(ids, is.IssueID)
		}
		sort.Strings(ids)
		v.IsValid = !hasErr
		v.HasWarnings = hasWarn
		v.IssueIDs = ids
	}
}

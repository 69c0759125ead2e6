package validation

import (
	"fmt"
	"sort"

	"worldstate.ai/internal/world/commit"
	"worldstate.ai/internal/world/model"
)

type Validator struct {
	Policy Policy
}

func New(p Policy) *Validator { return &Validator{Policy: p} }

// collector accumulates issues and assigns ids once the final order is known.
type collector struct {
	issues []Issue
}

func (c *collector) add(is Issue) { c.issues = append(c.issues, is) }

func (c *collector) result(scope string) Result {
	sort.SliceStable(c.issues, func(i, j int) bool {
		return c.issues[i].PlacementID < c.issues[j].PlacementID
	})
	seq := map[string]int{}
	for i := range c.issues {
		is := &c.issues[i]
		key := is.Code + "/" + is.PlacementID
		n := seq[key]
		seq[key] = n + 1
		is.IssueID = fmt.Sprintf("%s/%s/%s/%d", scope, is.Code, is.PlacementID, n)
	}
	return NewResult(c.issues)
}

// ValidatePlacements runs structural, referential and spatial checks over a
// placement set. Issues are ordered by placement id.
func (v *Validator) ValidatePlacements(regions []model.Region, placements []model.AssetPlacement) Result {
	regionIndex := model.RegionsByID(regions)
	var c collector
	for _, p := range placements {
		v.checkPlacement(&c, regionIndex, p, "")
	}
	checkPointOverlap(&c, placements)
	return c.result("placement")
}

// ValidateChange checks one change against the current (pre-change)
// placement set.
func (v *Validator) ValidateChange(regions []model.Region, placements []model.AssetPlacement, change commit.Change) Result {
	return v.ValidateChangeIndexed(model.RegionsByID(regions), model.PlacementsByID(placements), change)
}

// ValidateChangeIndexed is ValidateChange over prebuilt id indexes, for
// callers validating many changes against an evolving set.
func (v *Validator) ValidateChangeIndexed(regionIndex map[string]model.Region, existing map[string]model.AssetPlacement, change commit.Change) Result {
	var c collector
	scope := "change"
	switch ch := deref(change).(type) {
	case commit.AddChange:
		scope = "change/add"
		id := ch.After.PlacementID
		if _, ok := existing[id]; ok && id != "" {
			c.add(Issue{
				Code:             CodeAddDuplicate,
				Severity:         SeverityError,
				Type:             TypeStructural,
				Message:          fmt.Sprintf("placement %q already exists", id),
				PlacementID:      id,
				DraftPlacementID: id,
			})
		}
		v.checkPlacement(&c, regionIndex, ch.After, id)
	case commit.UpdateChange:
		scope = "change/update"
		if _, ok := existing[ch.PlacementID]; !ok {
			c.add(Issue{
				Code:        CodeUpdateReference,
				Severity:    SeverityError,
				Type:        TypeReferential,
				Message:     fmt.Sprintf("update targets unknown placement %q", ch.PlacementID),
				PlacementID: ch.PlacementID,
			})
		}
		if ch.After == nil {
			break
		}
		if ch.After.PlacementID != ch.PlacementID {
			c.add(Issue{
				Code:             CodeUpdateIDMismatch,
				Severity:         SeverityError,
				Type:             TypeStructural,
				Message:          fmt.Sprintf("update of %q carries placement %q", ch.PlacementID, ch.After.PlacementID),
				PlacementID:      ch.PlacementID,
				DraftPlacementID: ch.After.PlacementID,
			})
		}
		v.checkPlacement(&c, regionIndex, *ch.After, "")
	case commit.RemoveChange:
		scope = "change/remove"
		if _, ok := existing[ch.PlacementID]; !ok {
			c.add(Issue{
				Code:        CodeRemoveReference,
				Severity:    SeverityError,
				Type:        TypeReferential,
				Message:     fmt.Sprintf("remove targets unknown placement %q", ch.PlacementID),
				PlacementID: ch.PlacementID,
			})
		}
	}
	return c.result(scope)
}

func deref(ch commit.Change) commit.Change {
	switch c := ch.(type) {
	case *commit.AddChange:
		if c != nil {
			return *c
		}
		return nil
	case *commit.UpdateChange:
		if c != nil {
			return *c
		}
		return nil
	case *commit.RemoveChange:
		if c != nil {
			return *c
		}
		return nil
	}
	return ch
}

func (v *Validator) checkPlacement(c *collector, regions map[string]model.Region, p model.AssetPlacement, draftID string) {
	emit := func(is Issue) {
		is.PlacementID = p.PlacementID
		is.DraftPlacementID = draftID
		c.add(is)
	}

	if p.PlacementID == "" {
		emit(Issue{Code: CodePlacementIDRequired, Severity: SeverityError, Type: TypeStructural, Message: "placement id is required"})
	}
	if p.AssetID == "" {
		emit(Issue{Code: CodeAssetIDRequired, Severity: SeverityError, Type: TypeStructural, Message: "asset id is required"})
	}

	tr := p.Transform
	sane := func(code, name string, vec model.Vec3) bool {
		if vec.Finite() {
			return true
		}
		emit(Issue{
			Code:     code,
			Severity: SeverityError,
			Type:     TypeStructural,
			Message:  name + " must contain finite numbers",
			Details:  map[string]any{name: fmt.Sprint(vec.Components())},
		})
		return false
	}
	sane(CodePositionSanity, "position", tr.Position)
	sane(CodeRotationSanity, "rotation", tr.Rotation)
	if sane(CodeScaleSanity, "scale", tr.Scale) {
		v.checkScale(emit, tr.Scale)
	}

	if p.RegionID != "" {
		region, ok := regions[p.RegionID]
		switch {
		case !ok:
			emit(Issue{
				Code:     CodeRegionExistence,
				Severity: SeverityError,
				Type:     TypeReferential,
				Message:  fmt.Sprintf("region %q does not exist", p.RegionID),
				Details:  map[string]any{"region_id": p.RegionID},
			})
		case p.SpaceID != "" && !region.HasSpace(p.SpaceID):
			emit(Issue{
				Code:     CodeSpaceMembership,
				Severity: SeverityError,
				Type:     TypeReferential,
				Message:  fmt.Sprintf("space %q is not part of region %q", p.SpaceID, p.RegionID),
				Details:  map[string]any{"region_id": p.RegionID, "space_id": p.SpaceID},
			})
		}
	}
}

func (v *Validator) checkScale(emit func(Issue), s model.Vec3) {
	comps := s.Components()
	for _, f := range comps {
		if f <= 0 {
			emit(Issue{
				Code:     CodeScalePositive,
				Severity: SeverityError,
				Type:     TypeStructural,
				Message:  "scale components must be positive",
				Details:  map[string]any{"scale": comps},
			})
			break
		}
	}
	limit := v.Policy.ScaleWarnThreshold
	if limit <= 0 {
		return
	}
	for _, f := range comps {
		if f > limit {
			emit(Issue{
				Code:     CodeScaleThreshold,
				Severity: SeverityWarning,
				Type:     TypeStructural,
				Message:  fmt.Sprintf("scale exceeds %g", limit),
				Details:  map[string]any{"scale": comps, "threshold": limit},
			})
			return
		}
	}
}

type pointKey struct {
	region string
	pos    model.Vec3
}

// checkPointOverlap warns on every placement sharing an exact position with
// another placement in the same region.
func checkPointOverlap(c *collector, placements []model.AssetPlacement) {
	groups := map[pointKey][]int{}
	for i, p := range placements {
		if !p.Transform.Position.Finite() {
			continue
		}
		k := pointKey{region: p.RegionID, pos: p.Transform.Position}
		groups[k] = append(groups[k], i)
	}
	var members []int
	for _, idx := range groups {
		if len(idx) > 1 {
			members = append(members, idx...)
		}
	}
	sort.Ints(members)
	for _, i := range members {
		p := placements[i]
		k := pointKey{region: p.RegionID, pos: p.Transform.Position}
		c.add(Issue{
			Code:        CodePointOverlap,
			Severity:    SeverityWarning,
			Type:        TypeSpatial,
			Message:     fmt.Sprintf("placement shares position with %d other placement(s)", len(groups[k])-1),
			PlacementID: p.PlacementID,
			Details: map[string]any{
				"region_id": p.RegionID,
				"position":  p.Transform.Position.Components(),
			},
		})
	}
}

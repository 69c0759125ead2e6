package pipeline

import (
	"fmt"

	"worldstate.ai/internal/world/commit"
	"worldstate.ai/internal/world/model"
	"worldstate.ai/internal/world/validation"
)

// ValidatePlan validates each change against the placement set produced by
// the changes before it. Issue ids are prefixed with the change index.
func ValidatePlan(v *validation.Validator, regions []model.Region, base []model.AssetPlacement, changes []commit.Change) validation.Result {
	regionIndex := model.RegionsByID(regions)
	working := model.PlacementsByID(base)
	results := make([]validation.Result, 0, len(changes))
	for i, ch := range changes {
		r := v.ValidateChangeIndexed(regionIndex, working, ch)
		results = append(results, r.WithIDPrefix(fmt.Sprintf("c%d/", i)))
		commit.Apply(working, ch)
	}
	return validation.Merge(results...)
}

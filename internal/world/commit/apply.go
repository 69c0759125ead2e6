package commit

import (
	"sort"

	"worldstate.ai/internal/world/model"
)

// ApplyChanges merges changes, in order, into base and returns the effective
// placement set sorted by placement id. No validation happens here: an ADD
// whose id already exists overwrites the existing entry.
func ApplyChanges(base []model.AssetPlacement, changes []Change) []model.AssetPlacement {
	working := make(map[string]model.AssetPlacement, len(base)+len(changes))
	for _, p := range base {
		working[p.PlacementID] = model.ClonePlacement(p)
	}
	for _, ch := range changes {
		Apply(working, ch)
	}

	out := make([]model.AssetPlacement, 0, len(working))
	for _, p := range working {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlacementID < out[j].PlacementID })
	return out
}

// Apply merges one change into working, keyed by placement id.
func Apply(working map[string]model.AssetPlacement, ch Change) {
	switch c := ch.(type) {
	case AddChange:
		working[c.After.PlacementID] = model.ClonePlacement(c.After)
	case *AddChange:
		if c != nil {
			working[c.After.PlacementID] = model.ClonePlacement(c.After)
		}
	case UpdateChange:
		applyUpdate(working, c)
	case *UpdateChange:
		if c != nil {
			applyUpdate(working, *c)
		}
	case RemoveChange:
		delete(working, c.PlacementID)
	case *RemoveChange:
		if c != nil {
			delete(working, c.PlacementID)
		}
	default:
		// Unknown variants are ignored.
	}
}

func applyUpdate(working map[string]model.AssetPlacement, c UpdateChange) {
	if c.After == nil {
		return
	}
	working[c.PlacementID] = model.ClonePlacement(*c.After)
}

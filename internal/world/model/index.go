package model

func RegionsByID(regions []Region) map[string]Region {
	out := make(map[string]Region, len(regions))
	for _, r := range regions {
		if r.RegionID == "" {
			continue
		}
		if _, ok := out[r.RegionID]; ok {
			continue
		}
		out[r.RegionID] = r
	}
	return out
}

// PlacementsByID keys placements by id. Later duplicates replace earlier ones.
func PlacementsByID(placements []AssetPlacement) map[string]AssetPlacement {
	out := make(map[string]AssetPlacement, len(placements))
	for _, p := range placements {
		out[p.PlacementID] = p
	}
	return out
}

func ClonePlacement(p AssetPlacement) AssetPlacement {
	if p.Tags != nil {
		p.Tags = append([]string(nil), p.Tags...)
	}
	return p
}

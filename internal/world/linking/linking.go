package linking

import (
	"strings"

	"worldstate.ai/internal/world/runtime"
)

type PlacementLink struct {
	PlacementID string `json:"placement_id"`
	RegionID    string `json:"region_id,omitempty"`
	SpaceID     string `json:"space_id,omitempty"`
	USDPath     string `json:"usd_path"`
	NodeID      string `json:"node_id"`
}

type RegionLink struct {
	RegionID string `json:"region_id"`
	USDPath  string `json:"usd_path"`
	NodeID   string `json:"node_id"`
}

// Index maps world entities to their USD prim paths and PlanGraph node ids.
type Index struct {
	Placements map[string]PlacementLink `json:"placements"`
	Regions    map[string]RegionLink    `json:"regions"`
}

const root = "/World"

func Build(v runtime.WorldView) Index {
	idx := Index{
		Placements: make(map[string]PlacementLink, len(v.Placements)),
		Regions:    make(map[string]RegionLink, len(v.Regions)),
	}
	for _, r := range v.Regions {
		idx.Regions[r.RegionID] = RegionLink{
			RegionID: r.RegionID,
			USDPath:  RegionPath(r.RegionID),
			NodeID:   NodeID("region", r.RegionID),
		}
	}
	for _, p := range v.Placements {
		idx.Placements[p.PlacementID] = PlacementLink{
			PlacementID: p.PlacementID,
			RegionID:    p.RegionID,
			SpaceID:     p.SpaceID,
			USDPath:     PlacementPath(p.RegionID, p.SpaceID, p.PlacementID),
			NodeID:      NodeID("placement", p.PlacementID),
		}
	}
	return idx
}

func RegionPath(regionID string) string {
	if regionID == "" {
		return ""
	}
	return root + "/Regions/" + PrimName(regionID)
}

// PlacementPath nests a placement under its region and space when known.
func PlacementPath(regionID, spaceID, placementID string) string {
	if placementID == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString(root)
	if regionID != "" {
		b.WriteString("/Regions/")
		b.WriteString(PrimName(regionID))
		if spaceID != "" {
			b.WriteString("/Spaces/")
			b.WriteString(PrimName(spaceID))
		}
	}
	b.WriteString("/Placements/")
	b.WriteString(PrimName(placementID))
	return b.String()
}

func NodeID(kind, id string) string {
	if id == "" {
		return ""
	}
	return kind + ":" + id
}

// PrimName maps an arbitrary id onto a valid USD identifier.
func PrimName(id string) string {
	if id == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range id {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if i == 0 && r >= '0' && r <= '9' {
			b.WriteByte('_')
		}
		if ok {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

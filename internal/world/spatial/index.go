package spatial

import "worldstate.ai/internal/world/runtime"

type spaceKey struct {
	region string
	space  string
}

// RegionIndex answers region and space membership queries over a view.
// It is built once and is safe for concurrent reads.
type RegionIndex struct {
	byRegion map[string][]runtime.PlacementView
	bySpace  map[spaceKey][]runtime.PlacementView
}

func Build(v runtime.WorldView) *RegionIndex {
	idx := &RegionIndex{
		byRegion: map[string][]runtime.PlacementView{},
		bySpace:  map[spaceKey][]runtime.PlacementView{},
	}
	for _, p := range v.Placements {
		if p.RegionID == "" {
			continue
		}
		idx.byRegion[p.RegionID] = append(idx.byRegion[p.RegionID], p)
		if p.SpaceID != "" {
			k := spaceKey{region: p.RegionID, space: p.SpaceID}
			idx.bySpace[k] = append(idx.bySpace[k], p)
		}
	}
	return idx
}

func (i *RegionIndex) PlacementsInRegion(regionID string) []runtime.PlacementView {
	if i == nil {
		return nil
	}
	return append([]runtime.PlacementView(nil), i.byRegion[regionID]...)
}

func (i *RegionIndex) PlacementsInSpace(regionID, spaceID string) []runtime.PlacementView {
	if i == nil {
		return nil
	}
	return append([]runtime.PlacementView(nil), i.bySpace[spaceKey{region: regionID, space: spaceID}]...)
}

package model

import "math"

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Finite() bool {
	return isFinite(v.X) && isFinite(v.Y) && isFinite(v.Z)
}

func (v Vec3) Components() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// Transform places an asset. Rotation is Euler angles in degrees.
type Transform struct {
	Position Vec3 `json:"position"`
	Rotation Vec3 `json:"rotation"`
	Scale    Vec3 `json:"scale"`
}

func IdentityTransform() Transform {
	return Transform{Scale: Vec3{X: 1, Y: 1, Z: 1}}
}

type AssetPlacement struct {
	PlacementID string    `json:"placement_id"`
	AssetID     string    `json:"asset_id"`
	RegionID    string    `json:"region_id,omitempty"`
	SpaceID     string    `json:"space_id,omitempty"`
	Transform   Transform `json:"transform"`
	Tags        []string  `json:"tags,omitempty"`
}

type Region struct {
	RegionID string   `json:"region_id"`
	Name     string   `json:"name"`
	SpaceIDs []string `json:"space_ids"`
}

func (r Region) HasSpace(spaceID string) bool {
	for _, s := range r.SpaceIDs {
		if s == spaceID {
			return true
		}
	}
	return false
}

// World is the persisted input to the pipeline: regions and base placements.
type World struct {
	ID         string           `json:"world_id"`
	Regions    []Region         `json:"regions"`
	Placements []AssetPlacement `json:"placements"`
}

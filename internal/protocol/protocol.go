package protocol

import (
	"encoding/json"
	"fmt"

	"worldstate.ai/internal/world/commit"
	"worldstate.ai/internal/world/model"
)

const Version = "1.0"

// Document types.
const (
	TypeWorld = "WORLD"
	TypePlan  = "PLAN"
)

// BaseDocument lets us route unknown JSON documents by type.
type BaseDocument struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseDocument, error) {
	var d BaseDocument
	err := json.Unmarshal(b, &d)
	return d, err
}

type WorldDoc struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	WorldID         string         `json:"world_id"`
	Regions         []model.Region `json:"regions"`
	Placements      []PlacementDoc `json:"placements"`
}

type PlacementDoc struct {
	PlacementID string       `json:"placement_id"`
	AssetID     string       `json:"asset_id"`
	RegionID    string       `json:"region_id,omitempty"`
	SpaceID     string       `json:"space_id,omitempty"`
	Transform   TransformDoc `json:"transform"`
	Tags        []string     `json:"tags,omitempty"`
}

// TransformDoc leaves scale optional; a missing scale is the identity.
type TransformDoc struct {
	Position model.Vec3  `json:"position"`
	Rotation model.Vec3  `json:"rotation"`
	Scale    *model.Vec3 `json:"scale,omitempty"`
}

type PlanDoc struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id,omitempty"`
	Changes         []ChangeDoc `json:"changes"`
}

type ChangeDoc struct {
	Op          string        `json:"op"`
	PlacementID string        `json:"placement_id,omitempty"`
	After       *PlacementDoc `json:"after,omitempty"`
}

// Skipped records a change the decoder dropped instead of failing the plan.
type Skipped struct {
	Index  int    `json:"index"`
	Op     string `json:"op"`
	Reason string `json:"reason"`
}

type Plan struct {
	WorldID string
	Changes []commit.Change
	Skipped []Skipped
}

func (d PlacementDoc) Placement() model.AssetPlacement {
	tr := model.Transform{
		Position: d.Transform.Position,
		Rotation: d.Transform.Rotation,
		Scale:    model.Vec3{X: 1, Y: 1, Z: 1},
	}
	if d.Transform.Scale != nil {
		tr.Scale = *d.Transform.Scale
	}
	return model.AssetPlacement{
		PlacementID: d.PlacementID,
		AssetID:     d.AssetID,
		RegionID:    d.RegionID,
		SpaceID:     d.SpaceID,
		Transform:   tr,
		Tags:        append([]string(nil), d.Tags...),
	}
}

func PlacementDocOf(p model.AssetPlacement) PlacementDoc {
	scale := p.Transform.Scale
	return PlacementDoc{
		PlacementID: p.PlacementID,
		AssetID:     p.AssetID,
		RegionID:    p.RegionID,
		SpaceID:     p.SpaceID,
		Transform: TransformDoc{
			Position: p.Transform.Position,
			Rotation: p.Transform.Rotation,
			Scale:    &scale,
		},
		Tags: append([]string(nil), p.Tags...),
	}
}

// DecodeWorld validates b against the world schema and decodes it.
func DecodeWorld(b []byte) (model.World, error) {
	if err := validateDoc(worldSchema, b); err != nil {
		return model.World{}, fmt.Errorf("%w: %w", ErrBadDocument, err)
	}
	var doc WorldDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return model.World{}, fmt.Errorf("%w: %w", ErrBadDocument, err)
	}
	w := model.World{ID: doc.WorldID, Regions: doc.Regions}
	w.Placements = make([]model.AssetPlacement, 0, len(doc.Placements))
	for _, p := range doc.Placements {
		w.Placements = append(w.Placements, p.Placement())
	}
	return w, nil
}

// DecodePlan validates b against the plan schema and decodes the ordered
// changes. Unknown ops and ADDs without a placement are skipped and reported
// in Plan.Skipped.
func DecodePlan(b []byte) (Plan, error) {
	if err := validateDoc(planSchema, b); err != nil {
		return Plan{}, fmt.Errorf("%w: %w", ErrBadDocument, err)
	}
	var doc PlanDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return Plan{}, fmt.Errorf("%w: %w", ErrBadDocument, err)
	}
	plan := Plan{WorldID: doc.WorldID}
	for i, c := range doc.Changes {
		switch commit.Op(c.Op) {
		case commit.OpAdd:
			if c.After == nil {
				plan.Skipped = append(plan.Skipped, Skipped{Index: i, Op: c.Op, Reason: "missing after"})
				continue
			}
			plan.Changes = append(plan.Changes, commit.AddChange{After: c.After.Placement()})
		case commit.OpUpdate:
			u := commit.UpdateChange{PlacementID: c.PlacementID}
			if c.After != nil {
				p := c.After.Placement()
				u.After = &p
			}
			plan.Changes = append(plan.Changes, u)
		case commit.OpRemove:
			plan.Changes = append(plan.Changes, commit.RemoveChange{PlacementID: c.PlacementID})
		default:
			plan.Skipped = append(plan.Skipped, Skipped{Index: i, Op: c.Op, Reason: "unknown op"})
		}
	}
	return plan, nil
}

func EncodeWorld(w model.World) ([]byte, error) {
	doc := WorldDoc{
		Type:            TypeWorld,
		ProtocolVersion: Version,
		WorldID:         w.ID,
		Regions:         w.Regions,
		Placements:      make([]PlacementDoc, 0, len(w.Placements)),
	}
	for _, p := range w.Placements {
		doc.Placements = append(doc.Placements, PlacementDocOf(p))
	}
	return json.Marshal(doc)
}

func EncodePlan(worldID string, changes []commit.Change) ([]byte, error) {
	doc := PlanDoc{Type: TypePlan, ProtocolVersion: Version, WorldID: worldID, Changes: []ChangeDoc{}}
	for _, ch := range changes {
		switch c := ch.(type) {
		case commit.AddChange:
			after := PlacementDocOf(c.After)
			doc.Changes = append(doc.Changes, ChangeDoc{Op: string(commit.OpAdd), PlacementID: c.After.PlacementID, After: &after})
		case commit.UpdateChange:
			cd := ChangeDoc{Op: string(commit.OpUpdate), PlacementID: c.PlacementID}
			if c.After != nil {
				after := PlacementDocOf(*c.After)
				cd.After = &after
			}
			doc.Changes = append(doc.Changes, cd)
		case commit.RemoveChange:
			doc.Changes = append(doc.Changes, ChangeDoc{Op: string(commit.OpRemove), PlacementID: c.PlacementID})
		}
	}
	return json.Marshal(doc)
}

package commit

import "worldstate.ai/internal/world/model"

type Op string

const (
	OpAdd    Op = "ADD"
	OpUpdate Op = "UPDATE"
	OpRemove Op = "REMOVE"
)

// Change is one proposed placement mutation. The set of implementations is
// closed: AddChange, UpdateChange and RemoveChange.
type Change interface {
	Op() Op
	// TargetID is the placement id the change touches.
	TargetID() string
	isChange()
}

type AddChange struct {
	After model.AssetPlacement
}

// UpdateChange replaces PlacementID with After. A nil After makes the change a no-op.
type UpdateChange struct {
	PlacementID string
	After       *model.AssetPlacement
}

type RemoveChange struct {
	PlacementID string
}

func (AddChange) Op() Op    { return OpAdd }
func (UpdateChange) Op() Op { return OpUpdate }
func (RemoveChange) Op() Op { return OpRemove }

func (c AddChange) TargetID() string    { return c.After.PlacementID }
func (c UpdateChange) TargetID() string { return c.PlacementID }
func (c RemoveChange) TargetID() string { return c.PlacementID }

func (AddChange) isChange()    {}
func (UpdateChange) isChange() {}
func (RemoveChange) isChange() {}

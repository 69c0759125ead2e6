package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"sort"

	"worldstate.ai/internal/world/model"
	"worldstate.ai/internal/world/runtime"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// ViewDigest hashes a view independent of region and placement order.
func ViewDigest(v runtime.WorldView) string {
	h := sha256.New()
	var tmp [8]byte

	regions := append([]model.Region(nil), v.Regions...)
	sort.SliceStable(regions, func(i, j int) bool { return regions[i].RegionID < regions[j].RegionID })
	writeU64(h, &tmp, uint64(len(regions)))
	for _, r := range regions {
		writeString(h, &tmp, r.RegionID)
		writeString(h, &tmp, r.Name)
		writeStrings(h, &tmp, r.SpaceIDs)
	}

	ps := append([]runtime.PlacementView(nil), v.Placements...)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].PlacementID < ps[j].PlacementID })
	writeU64(h, &tmp, uint64(len(ps)))
	for _, p := range ps {
		writePlacement(h, &tmp, p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writePlacement(h hashWriter, tmp *[8]byte, p runtime.PlacementView) {
	writeString(h, tmp, p.PlacementID)
	writeString(h, tmp, p.AssetID)
	writeString(h, tmp, p.RegionID)
	writeString(h, tmp, p.SpaceID)
	writeVec(h, tmp, p.Transform.Position)
	writeVec(h, tmp, p.Transform.Rotation)
	writeVec(h, tmp, p.Transform.Scale)
	writeStrings(h, tmp, p.Tags)
	h.Write([]byte{boolByte(p.IsValid), boolByte(p.HasWarnings)})
	writeStrings(h, tmp, p.IssueIDs)
}

func writeU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

// Strings are length-prefixed so adjacent fields cannot collide.
func writeString(h hashWriter, tmp *[8]byte, s string) {
	writeU64(h, tmp, uint64(len(s)))
	h.Write([]byte(s))
}

func writeStrings(h hashWriter, tmp *[8]byte, ss []string) {
	writeU64(h, tmp, uint64(len(ss)))
	for _, s := range ss {
		writeString(h, tmp, s)
	}
}

func writeVec(h hashWriter, tmp *[8]byte, v model.Vec3) {
	writeU64(h, tmp, floatBits(v.X))
	writeU64(h, tmp, floatBits(v.Y))
	writeU64(h, tmp, floatBits(v.Z))
}

// floatBits folds -0 into +0 and every NaN into one pattern, matching the
// diff engine's notion of equal components.
func floatBits(f float64) uint64 {
	switch {
	case f == 0:
		return 0
	case math.IsNaN(f):
		return math.Float64bits(math.NaN())
	}
	return math.Float64bits(f)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

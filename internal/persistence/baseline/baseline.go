package baseline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"worldstate.ai/internal/persistence/snapshot"
)

// Meta describes the accepted baseline bundle of one world.
type Meta struct {
	WorldID    string `json:"world_id"`
	ViewDigest string `json:"view_digest"`
	Bundle     string `json:"bundle"`
	Previous   string `json:"previous_digest,omitempty"`
	PromotedAt string `json:"promoted_at"`
}

var ErrNoBaseline = errors.New("no baseline")

// Promote copies bundlePath into `dir/<world>/<digest>.snap.zst` and points
// the world's meta.json at it. Promoting the current digest again is a no-op.
func Promote(dir, bundlePath string) (Meta, error) {
	h, err := snapshot.ReadHeader(bundlePath)
	if err != nil {
		return Meta{}, err
	}
	if h.WorldID == "" || h.ViewDigest == "" {
		return Meta{}, fmt.Errorf("bundle %s has no world id or digest", filepath.Base(bundlePath))
	}

	prev, err := Current(dir, h.WorldID)
	switch {
	case err == nil && prev.ViewDigest == h.ViewDigest:
		return prev, nil
	case err != nil && !errors.Is(err, ErrNoBaseline):
		return Meta{}, err
	}

	worldDir := filepath.Join(dir, h.WorldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		return Meta{}, err
	}
	name := h.ViewDigest + ".snap.zst"
	if err := copyFile(bundlePath, filepath.Join(worldDir, name)); err != nil {
		return Meta{}, err
	}

	meta := Meta{
		WorldID:    h.WorldID,
		ViewDigest: h.ViewDigest,
		Bundle:     name,
		Previous:   prev.ViewDigest,
		PromotedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return Meta{}, err
	}
	tmp := filepath.Join(worldDir, "meta.json.tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return Meta{}, err
	}
	if err := os.Rename(tmp, filepath.Join(worldDir, "meta.json")); err != nil {
		return Meta{}, err
	}
	return meta, nil
}

// Current returns the meta of the world's accepted baseline.
func Current(dir, worldID string) (Meta, error) {
	b, err := os.ReadFile(filepath.Join(dir, worldID, "meta.json"))
	if errors.Is(err, os.ErrNotExist) {
		return Meta{}, ErrNoBaseline
	}
	if err != nil {
		return Meta{}, err
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, fmt.Errorf("baseline meta for %s: %w", worldID, err)
	}
	return m, nil
}

// Load reads the world's accepted baseline bundle.
func Load(dir, worldID string) (snapshot.BundleV1, error) {
	m, err := Current(dir, worldID)
	if err != nil {
		return snapshot.BundleV1{}, err
	}
	return snapshot.ReadBundle(filepath.Join(dir, worldID, m.Bundle))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

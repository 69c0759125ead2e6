package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_EmptyPathIsDefault(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ValidationPolicy().ScaleWarnThreshold != 1000 || got.Invariants.SpatialSampleSize != 2 {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	raw := []byte(`world_id: lobby
log_level: debug
validation:
  scale_warn_threshold: 0
invariants:
  spatial_sample_size: 5
commit:
  allow_blocking_commits: true
`)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.WorldID != "lobby" || got.LogLevel != "debug" {
		t.Fatalf("header fields: %+v", got)
	}
	if got.ValidationPolicy().ScaleWarnThreshold != 0 {
		t.Fatalf("explicit zero threshold lost")
	}
	if got.Invariants.SpatialSampleSize != 5 || !got.Commit.AllowBlockingCommits {
		t.Fatalf("unexpected tuning: %+v", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected missing file error")
	}
	bad := filepath.Join(dir, "bad.yaml")
	_ = os.WriteFile(bad, []byte("invariants:\n  spatial_sample_size: -1\n"), 0o644)
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected negative sample size error")
	}
	broken := filepath.Join(dir, "broken.yaml")
	_ = os.WriteFile(broken, []byte("validation: [\n"), 0o644)
	if _, err := Load(broken); err == nil {
		t.Fatalf("expected yaml error")
	}
}

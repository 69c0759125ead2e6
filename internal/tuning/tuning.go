package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"worldstate.ai/internal/world/invariants"
	"worldstate.ai/internal/world/validation"
)

type Tuning struct {
	WorldID  string `yaml:"world_id"`
	LogLevel string `yaml:"log_level"`

	Validation Validation `yaml:"validation"`
	Invariants Invariants `yaml:"invariants"`
	Commit     Commit     `yaml:"commit"`
}

type Validation struct {
	ScaleWarnThreshold *float64 `yaml:"scale_warn_threshold"`
}

type Invariants struct {
	SpatialSampleSize int `yaml:"spatial_sample_size"`
}

type Commit struct {
	// AllowBlockingCommits applies plans even when validation reports errors.
	AllowBlockingCommits bool `yaml:"allow_blocking_commits"`
}

func Default() Tuning {
	th := float64(validation.DefaultScaleWarnThreshold)
	return Tuning{
		LogLevel:   "info",
		Validation: Validation{ScaleWarnThreshold: &th},
		Invariants: Invariants{SpatialSampleSize: invariants.DefaultSampleSize},
	}
}

// Load reads a tuning file on top of Default. An empty path returns Default.
func Load(path string) (Tuning, error) {
	t := Default()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if t.Invariants.SpatialSampleSize < 0 {
		return t, fmt.Errorf("tuning.yaml: spatial_sample_size must be >= 0")
	}
	return t, nil
}

func (t Tuning) ValidationPolicy() validation.Policy {
	p := validation.DefaultPolicy()
	if t.Validation.ScaleWarnThreshold != nil {
		p.ScaleWarnThreshold = *t.Validation.ScaleWarnThreshold
	}
	return p
}

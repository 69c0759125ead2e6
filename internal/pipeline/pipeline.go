package pipeline

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"worldstate.ai/internal/tuning"
	"worldstate.ai/internal/world/commit"
	"worldstate.ai/internal/world/diff"
	"worldstate.ai/internal/world/digest"
	"worldstate.ai/internal/world/invariants"
	"worldstate.ai/internal/world/linking"
	"worldstate.ai/internal/world/model"
	"worldstate.ai/internal/world/runtime"
	"worldstate.ai/internal/world/spatial"
	"worldstate.ai/internal/world/validation"
)

type Options struct {
	Policy     validation.Policy
	SampleSize int
	// AllowBlocking applies plans even when validation reports errors.
	AllowBlocking bool
}

func OptionsFromTuning(t tuning.Tuning) Options {
	return Options{
		Policy:        t.ValidationPolicy(),
		SampleSize:    t.Invariants.SpatialSampleSize,
		AllowBlocking: t.Commit.AllowBlockingCommits,
	}
}

type Pipeline struct {
	opts      Options
	validator *validation.Validator
	log       *logrus.Entry
	metrics   *Metrics
}

// New builds a pipeline. log and m may be nil.
func New(opts Options, log *logrus.Entry, m *Metrics) *Pipeline {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pipeline{
		opts:      opts,
		validator: validation.New(opts.Policy),
		log:       log,
		metrics:   m,
	}
}

func (p *Pipeline) Validator() *validation.Validator { return p.validator }

type Result struct {
	WorldID string

	// Plan holds the per-change validation; Validation is what the
	// runtime view was annotated with.
	Plan       validation.Result
	Validation validation.Result

	Applied  bool
	Rejected bool

	Effective []model.AssetPlacement
	Before    runtime.WorldView
	After     runtime.WorldView
	Diff      diff.WorldDiff
	Linking   linking.Index
	Report    invariants.Report
	Digest    string

	TimingsMs map[string]float64
}

// Run validates changes against w, applies them unless validation blocks,
// builds before/after views, diffs them and audits the result.
func (p *Pipeline) Run(w model.World, changes []commit.Change) Result {
	res := Result{WorldID: w.ID, TimingsMs: map[string]float64{}}
	lap := stopwatch(res.TimingsMs)

	res.Plan = ValidatePlan(p.validator, w.Regions, w.Placements, changes)
	baseValidation := p.validator.ValidatePlacements(w.Regions, w.Placements)
	lap("validate_plan")

	res.Effective = w.Placements
	switch {
	case len(changes) == 0:
	case res.Plan.IsBlocking && !p.opts.AllowBlocking:
		res.Rejected = true
	default:
		res.Effective = commit.ApplyChanges(w.Placements, changes)
		res.Applied = true
	}
	lap("apply")

	present := make(map[string]struct{}, len(res.Effective))
	for _, pl := range res.Effective {
		present[pl.PlacementID] = struct{}{}
	}
	res.Validation = baseValidation
	if res.Applied {
		effective := p.validator.ValidatePlacements(w.Regions, res.Effective)
		// The effective pass already repeats the per-placement checks, so
		// only the commit checks are carried over from the plan.
		planIssues := res.Plan.Filter(func(is validation.Issue) bool {
			_, ok := present[is.PlacementID]
			return ok && strings.HasPrefix(is.Code, validation.CommitCodePrefix)
		})
		res.Validation = validation.Merge(effective, planIssues)
	}
	lap("validate_effective")

	res.Before = runtime.Build(w.Regions, w.Placements, nil, &baseValidation)
	if res.Applied {
		res.After = runtime.Build(w.Regions, w.Placements, changes, &res.Validation)
	} else {
		res.After = runtime.Build(w.Regions, w.Placements, nil, &res.Validation)
	}
	res.Digest = digest.ViewDigest(res.After)
	lap("build")

	res.Diff = diff.Compute(res.Before, res.After)
	lap("diff")

	res.Linking = linking.Build(res.After)
	res.Report = invariants.Check(invariants.Context{
		WorldView:        res.After,
		SpatialIndex:     spatial.Build(res.After),
		Diff:             &res.Diff,
		ValidationResult: &res.Validation,
		LinkingIndex:     &res.Linking,
		SampleSize:       p.opts.SampleSize,
	})
	lap("invariants")

	p.metrics.observe(res)
	p.logResult(res, len(changes))
	return res
}

func (p *Pipeline) logResult(res Result, changes int) {
	entry := p.log.WithFields(logrus.Fields{
		"world":      res.WorldID,
		"changes":    changes,
		"applied":    res.Applied,
		"issues":     len(res.Validation.Issues),
		"violations": len(res.Report.Violations),
		"added":      len(res.Diff.Added),
		"removed":    len(res.Diff.Removed),
		"updated":    len(res.Diff.Updated),
		"digest":     res.Digest,
	})
	switch {
	case res.Report.HasErrors:
		entry.Error("world invariants violated")
	case res.Rejected:
		entry.Warnf("change plan rejected: %d blocking issue(s)", res.Plan.Count(validation.SeverityError))
	case res.Report.HasWarnings:
		entry.Warn("world checked with warnings")
	default:
		entry.Info("world checked")
	}
	for _, v := range res.Report.Violations {
		p.log.WithField("code", v.Code).Debugf("[%s] %s", v.Severity, v.Message)
	}
}

func stopwatch(into map[string]float64) func(string) {
	last := time.Now()
	return func(name string) {
		now := time.Now()
		into[name] = float64(now.Sub(last).Microseconds()) / 1000
		last = now
	}
}

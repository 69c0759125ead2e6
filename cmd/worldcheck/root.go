package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"worldstate.ai/internal/persistence/baseline"
	"worldstate.ai/internal/persistence/indexdb"
	"worldstate.ai/internal/persistence/runlog"
	"worldstate.ai/internal/persistence/snapshot"
	"worldstate.ai/internal/pipeline"
	"worldstate.ai/internal/protocol"
	"worldstate.ai/internal/tuning"
	"worldstate.ai/internal/world/commit"
	"worldstate.ai/internal/world/diff"
	"worldstate.ai/internal/world/invariants"
)

var errInvariantErrors = errors.New("world invariants violated")

type checkFlags struct {
	worldPath   string
	planPath    string
	tuningPath  string
	outPath     string
	indexPath   string
	metricsPath string
	journalDir  string
	baselineDir string
	logLevel    string
	strict      bool
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "worldcheck",
		Short:         "Validate, merge and audit world placement snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newCheckCmd(), newDiffCmd(), newInspectCmd())
	return root
}

func newCheckCmd() *cobra.Command {
	var f checkFlags
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the consistency pipeline over a world and an optional change plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&f.worldPath, "world", "", "world document (JSON)")
	cmd.Flags().StringVar(&f.planPath, "plan", "", "change plan document (JSON, optional)")
	cmd.Flags().StringVar(&f.tuningPath, "tuning", "", "tuning.yaml (optional)")
	cmd.Flags().StringVar(&f.outPath, "out", "", "write a regression bundle (.snap.zst)")
	cmd.Flags().StringVar(&f.indexPath, "index", "", "record the run in a sqlite audit index")
	cmd.Flags().StringVar(&f.baselineDir, "baselines", "", "compare against and promote clean bundles into this baseline store (needs --out)")
	cmd.Flags().StringVar(&f.journalDir, "journal", "", "append a run entry to the zstd JSONL journal in this directory")
	cmd.Flags().StringVar(&f.metricsPath, "metrics", "", "write prometheus text metrics to this file")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (overrides tuning)")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "exit non-zero when invariants report errors")
	_ = cmd.MarkFlagRequired("world")
	return cmd
}

func runCheck(out io.Writer, f checkFlags) error {
	tune, err := tuning.Load(f.tuningPath)
	if err != nil {
		return fmt.Errorf("load tuning: %w", err)
	}
	if f.baselineDir != "" && f.outPath == "" {
		return errors.New("--baselines needs --out")
	}
	level := tune.LogLevel
	if f.logLevel != "" {
		level = f.logLevel
	}
	if level != "" {
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level: %s", level)
		}
		logrus.SetLevel(lvl)
	}

	raw, err := os.ReadFile(f.worldPath)
	if err != nil {
		return fmt.Errorf("read world: %w", err)
	}
	w, err := protocol.DecodeWorld(raw)
	if err != nil {
		return fmt.Errorf("decode world %s: %w", f.worldPath, err)
	}
	if w.ID == "" {
		w.ID = tune.WorldID
	}
	if f.baselineDir != "" && w.ID == "" {
		return errors.New("--baselines needs a world id (world_id in the world document or tuning)")
	}

	var changes []commit.Change
	if f.planPath != "" {
		raw, err := os.ReadFile(f.planPath)
		if err != nil {
			return fmt.Errorf("read plan: %w", err)
		}
		plan, err := protocol.DecodePlan(raw)
		if err != nil {
			return fmt.Errorf("decode plan %s: %w", f.planPath, err)
		}
		for _, s := range plan.Skipped {
			logrus.WithFields(logrus.Fields{"index": s.Index, "op": s.Op}).Warnf("skipped change: %s", s.Reason)
		}
		changes = plan.Changes
	}

	reg := prometheus.NewRegistry()
	p := pipeline.New(pipeline.OptionsFromTuning(tune), logrus.WithField("component", "pipeline"), pipeline.NewMetrics(reg))
	res := p.Run(w, changes)

	if f.outPath != "" {
		rep := res.Report
		d := res.Diff
		b := snapshot.BundleV1{
			Header:  snapshot.Header{WorldID: res.WorldID, Label: "check", ViewDigest: res.Digest},
			View:    res.After,
			Diff:    &d,
			Report:  &rep,
			Timings: res.TimingsMs,
		}
		if err := snapshot.WriteBundle(f.outPath, b); err != nil {
			return fmt.Errorf("write bundle: %w", err)
		}
	}

	if f.baselineDir != "" {
		if err := compareAndPromote(f.baselineDir, f.outPath, res); err != nil {
			return fmt.Errorf("baseline: %w", err)
		}
	}

	runID := uuid.NewString()
	if f.indexPath != "" {
		idx, err := indexdb.OpenSQLite(f.indexPath)
		if err != nil {
			return fmt.Errorf("open index: %w", err)
		}
		idx.RecordRun(indexdb.RunRecord{
			RunID:      runID,
			WorldID:    res.WorldID,
			ViewDigest: res.Digest,
			BundlePath: f.outPath,
			Placements: len(res.After.Placements),
			Issues:     len(res.Validation.Issues),
			Blocking:   res.Plan.IsBlocking,
			Applied:    res.Applied,
			Added:      len(res.Diff.Added),
			Removed:    len(res.Diff.Removed),
			Updated:    len(res.Diff.Updated),
			Violations: res.Report.Violations,
		})
		if err := idx.Close(); err != nil {
			return fmt.Errorf("close index: %w", err)
		}
		if n, d := idx.Failed(), idx.Dropped(); n > 0 || d > 0 {
			logrus.WithFields(logrus.Fields{"run_id": runID, "failed": n, "dropped": d}).Warn("run not recorded in index")
		} else {
			logrus.WithField("run_id", runID).Debug("run recorded")
		}
	}

	if f.journalDir != "" {
		if err := journalRun(f.journalDir, runID, len(changes), res); err != nil {
			return fmt.Errorf("journal: %w", err)
		}
	}

	if f.metricsPath != "" {
		if err := writeMetrics(f.metricsPath, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	fmt.Fprintf(out, "world=%s placements=%d applied=%v rejected=%v issues=%d added=%d removed=%d updated=%d violations=%d digest=%s\n",
		res.WorldID, len(res.After.Placements), res.Applied, res.Rejected, len(res.Validation.Issues),
		len(res.Diff.Added), len(res.Diff.Removed), len(res.Diff.Updated), len(res.Report.Violations), res.Digest)

	if f.strict && res.Report.HasErrors {
		return errInvariantErrors
	}
	return nil
}

func compareAndPromote(dir, bundlePath string, res pipeline.Result) error {
	prev, err := baseline.Load(dir, res.WorldID)
	switch {
	case errors.Is(err, baseline.ErrNoBaseline):
	case err != nil:
		return err
	default:
		d := diff.Compute(prev.View, res.After)
		logrus.WithFields(logrus.Fields{
			"world":    res.WorldID,
			"baseline": prev.Header.ViewDigest,
			"added":    len(d.Added),
			"removed":  len(d.Removed),
			"updated":  len(d.Updated),
		}).Info("drift since baseline")
	}
	if res.Report.HasErrors {
		logrus.WithField("world", res.WorldID).Warn("baseline not promoted: invariant errors")
		return nil
	}
	m, err := baseline.Promote(dir, bundlePath)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"world": m.WorldID, "digest": m.ViewDigest, "previous": m.Previous}).Debug("baseline promoted")
	return nil
}

func journalRun(dir, runID string, changes int, res pipeline.Result) error {
	counts := map[invariants.Severity]int{}
	for _, v := range res.Report.Violations {
		counts[v.Severity]++
	}
	w := runlog.NewWriter(dir, "runs")
	err := w.Write(runlog.Entry{
		RunID:      runID,
		WorldID:    res.WorldID,
		ViewDigest: res.Digest,
		Changes:    changes,
		Applied:    res.Applied,
		Rejected:   res.Rejected,
		Added:      len(res.Diff.Added),
		Removed:    len(res.Diff.Removed),
		Updated:    len(res.Diff.Updated),
		Violations: counts,
	})
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	return err
}

func writeMetrics(path string, g prometheus.Gatherer) error {
	mfs, err := g.Gather()
	if err != nil {
		return err
	}
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fh.Close()
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(fh, mf); err != nil {
			return err
		}
	}
	return nil
}

func newDiffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <before.snap.zst> <after.snap.zst>",
		Short: "Diff the runtime views of two regression bundles",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func runDiff(out io.Writer, beforePath, afterPath string) error {
	before, err := snapshot.ReadBundle(beforePath)
	if err != nil {
		return fmt.Errorf("read %s: %w", beforePath, err)
	}
	after, err := snapshot.ReadBundle(afterPath)
	if err != nil {
		return fmt.Errorf("read %s: %w", afterPath, err)
	}
	d := diff.Compute(before.View, after.View)
	rep := invariants.Check(invariants.Context{WorldView: after.View, Diff: &d})
	body, err := snapshot.Canonical(snapshot.BundleV1{
		Header: snapshot.Header{Version: snapshot.Version, WorldID: after.Header.WorldID, Label: "diff", ViewDigest: after.Header.ViewDigest},
		View:   after.View,
		Diff:   &d,
		Report: &rep,
	})
	if err != nil {
		return err
	}
	_, err = out.Write(body)
	return err
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <bundle.snap.zst>",
		Short: "Print a regression bundle summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := snapshot.ReadBundle(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "bundle v%d world=%s label=%s digest=%s regions=%d placements=%d\n",
				b.Header.Version, b.Header.WorldID, b.Header.Label, b.Header.ViewDigest, len(b.View.Regions), len(b.View.Placements))
			if b.Report != nil {
				for _, v := range b.Report.Violations {
					fmt.Fprintf(out, "  %-7s %s: %s\n", v.Severity, v.Code, v.Message)
				}
			}
			return nil
		},
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"worldstate.ai/internal/persistence/baseline"
	"worldstate.ai/internal/persistence/indexdb"
	"worldstate.ai/internal/persistence/runlog"
	"worldstate.ai/internal/persistence/snapshot"
)

const testWorldDoc = `{
  "type":"WORLD",
  "protocol_version":"1.0",
  "world_id":"lobby",
  "regions":[{"region_id":"r1","name":"Hall","space_ids":["s1"]}],
  "placements":[
    {"placement_id":"A","asset_id":"chair","region_id":"r1","space_id":"s1",
     "transform":{"position":{"x":0,"y":0,"z":0},"rotation":{"x":0,"y":0,"z":0}}},
    {"placement_id":"B","asset_id":"table","region_id":"r1","space_id":"s1",
     "transform":{"position":{"x":1,"y":0,"z":0},"rotation":{"x":0,"y":0,"z":0}}}
  ]
}`

const testPlanDoc = `{
  "type":"PLAN",
  "protocol_version":"1.0",
  "world_id":"lobby",
  "changes":[
    {"op":"REMOVE","placement_id":"A"},
    {"op":"ADD","after":{"placement_id":"C","asset_id":"lamp","region_id":"r1","space_id":"s1",
      "transform":{"position":{"x":2,"y":0,"z":0},"rotation":{"x":0,"y":0,"z":0}}}}
  ]
}`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestRunCheck_WritesBundleAndIndex(t *testing.T) {
	dir := t.TempDir()
	f := checkFlags{
		worldPath:   writeFile(t, dir, "world.json", testWorldDoc),
		planPath:    writeFile(t, dir, "plan.json", testPlanDoc),
		outPath:     filepath.Join(dir, "run.snap.zst"),
		indexPath:   filepath.Join(dir, "index.sqlite"),
		metricsPath: filepath.Join(dir, "metrics.prom"),
		journalDir:  filepath.Join(dir, "journal"),
		logLevel:    "error",
		strict:      true,
	}
	var out bytes.Buffer
	if err := runCheck(&out, f); err != nil {
		t.Fatalf("runCheck: %v", err)
	}
	if !strings.Contains(out.String(), "applied=true") || !strings.Contains(out.String(), "added=1 removed=1") {
		t.Fatalf("summary: %q", out.String())
	}

	b, err := snapshot.ReadBundle(f.outPath)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	if b.Header.WorldID != "lobby" || len(b.View.Placements) != 2 || b.Diff == nil || b.Report == nil {
		t.Fatalf("bundle: %+v", b.Header)
	}
	if b.View.Placements[0].PlacementID != "B" || b.View.Placements[1].PlacementID != "C" {
		t.Fatalf("placements: %+v", b.View.Placements)
	}

	idx, err := indexdb.OpenSQLite(f.indexPath)
	if err != nil {
		t.Fatalf("reopen index: %v", err)
	}
	defer idx.Close()
	run, ok, err := idx.LatestRun(context.Background(), "lobby")
	if err != nil || !ok {
		t.Fatalf("latest run: ok=%v err=%v", ok, err)
	}
	if run.ViewDigest != b.Header.ViewDigest || !run.Applied || run.Added != 1 || run.Removed != 1 {
		t.Fatalf("run: %+v", run)
	}

	entries, err := runlog.ReadDir(f.journalDir, "runs")
	if err != nil || len(entries) != 1 {
		t.Fatalf("journal: %+v err=%v", entries, err)
	}
	if entries[0].RunID != run.RunID || entries[0].Changes != 2 || !entries[0].Applied {
		t.Fatalf("journal entry: %+v", entries[0])
	}

	prom, err := os.ReadFile(f.metricsPath)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(prom), "commits_applied_total") {
		t.Fatalf("metrics missing counter:\n%s", prom)
	}
}

func TestRunCheck_PromotesBaseline(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "baselines")
	f := checkFlags{
		worldPath:   writeFile(t, dir, "world.json", testWorldDoc),
		outPath:     filepath.Join(dir, "base.snap.zst"),
		baselineDir: store,
		logLevel:    "error",
	}
	if err := runCheck(&bytes.Buffer{}, f); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, err := baseline.Current(store, "lobby")
	if err != nil {
		t.Fatalf("current: %v", err)
	}

	f.planPath = writeFile(t, dir, "plan.json", testPlanDoc)
	f.outPath = filepath.Join(dir, "next.snap.zst")
	if err := runCheck(&bytes.Buffer{}, f); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, err := baseline.Current(store, "lobby")
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if second.Previous != first.ViewDigest || second.ViewDigest == first.ViewDigest {
		t.Fatalf("baseline not advanced: first=%+v second=%+v", first, second)
	}

	if err := runCheck(&bytes.Buffer{}, checkFlags{worldPath: f.worldPath, baselineDir: store}); err == nil {
		t.Fatalf("expected error without --out")
	}
}

func TestRunCheck_BaselinesNeedWorldID(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "baselines")
	anon := strings.Replace(testWorldDoc, `"world_id":"lobby",`, "", 1)
	f := checkFlags{
		worldPath:   writeFile(t, dir, "world.json", anon),
		outPath:     filepath.Join(dir, "anon.snap.zst"),
		baselineDir: store,
		logLevel:    "error",
	}
	err := runCheck(&bytes.Buffer{}, f)
	if err == nil || !strings.Contains(err.Error(), "world id") {
		t.Fatalf("expected world id error, got %v", err)
	}
	if _, statErr := os.Stat(f.outPath); !os.IsNotExist(statErr) {
		t.Fatalf("run should stop before writing a bundle: %v", statErr)
	}

	f.tuningPath = writeFile(t, dir, "tuning.yaml", "world_id: plaza\n")
	if err := runCheck(&bytes.Buffer{}, f); err != nil {
		t.Fatalf("tuning world id: %v", err)
	}
	if _, err := baseline.Current(store, "plaza"); err != nil {
		t.Fatalf("baseline for tuning world: %v", err)
	}
}

func TestRunCheck_StrictFailsOnInvariantErrors(t *testing.T) {
	dir := t.TempDir()
	world := strings.Replace(testWorldDoc, `"asset_id":"table","region_id":"r1"`, `"asset_id":"table","region_id":"ghost"`, 1)
	f := checkFlags{
		worldPath: writeFile(t, dir, "world.json", world),
		logLevel:  "error",
		strict:    true,
	}
	var out bytes.Buffer
	err := runCheck(&out, f)
	if !errors.Is(err, errInvariantErrors) {
		t.Fatalf("expected invariant error, got %v (out=%q)", err, out.String())
	}

	f.strict = false
	out.Reset()
	if err := runCheck(&out, f); err != nil {
		t.Fatalf("non-strict run: %v", err)
	}
}

func TestRunCheck_BadInputs(t *testing.T) {
	dir := t.TempDir()
	if err := runCheck(&bytes.Buffer{}, checkFlags{worldPath: filepath.Join(dir, "missing.json")}); err == nil {
		t.Fatalf("expected read error")
	}
	bad := writeFile(t, dir, "bad.json", `{"type":"PLAN","changes":[]}`)
	if err := runCheck(&bytes.Buffer{}, checkFlags{worldPath: bad}); err == nil {
		t.Fatalf("expected decode error")
	}
	ok := writeFile(t, dir, "world.json", testWorldDoc)
	if err := runCheck(&bytes.Buffer{}, checkFlags{worldPath: ok, logLevel: "loud"}); err == nil {
		t.Fatalf("expected log level error")
	}
}

func TestRunDiff_SameBundleIsEmpty(t *testing.T) {
	dir := t.TempDir()
	f := checkFlags{
		worldPath: writeFile(t, dir, "world.json", testWorldDoc),
		outPath:   filepath.Join(dir, "base.snap.zst"),
		logLevel:  "error",
	}
	if err := runCheck(&bytes.Buffer{}, f); err != nil {
		t.Fatalf("runCheck: %v", err)
	}
	var out bytes.Buffer
	if err := runDiff(&out, f.outPath, f.outPath); err != nil {
		t.Fatalf("runDiff: %v", err)
	}
	var b snapshot.BundleV1
	if err := json.Unmarshal(out.Bytes(), &b); err != nil {
		t.Fatalf("decode diff output: %v", err)
	}
	if b.Diff == nil || !b.Diff.Empty() {
		t.Fatalf("self diff not empty: %+v", b.Diff)
	}
	if b.Report == nil || b.Report.HasErrors {
		t.Fatalf("report: %+v", b.Report)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"check", "diff", "inspect"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Fatalf("subcommand %s: %v", name, err)
		}
	}
}

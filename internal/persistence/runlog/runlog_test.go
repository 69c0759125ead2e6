package runlog

import (
	"testing"
	"time"

	"worldstate.ai/internal/world/invariants"
)

func TestWriter_RotatesByDayAndReadsBack(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, "runs")

	d1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	d2 := d1.Add(2 * time.Minute)
	if err := w.Write(Entry{RunID: "a", WorldID: "lobby", At: d1, Applied: true, Added: 1}); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := w.Write(Entry{RunID: "b", WorldID: "lobby", At: d2, Violations: map[invariants.Severity]int{invariants.SeverityError: 2}}); err != nil {
		t.Fatalf("write b: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	first, err := ReadFile(w.Path(d1))
	if err != nil {
		t.Fatalf("read day 1: %v", err)
	}
	if len(first) != 1 || first[0].RunID != "a" || !first[0].Applied || first[0].Added != 1 {
		t.Fatalf("day 1: %+v", first)
	}

	all, err := ReadDir(dir, "runs")
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(all) != 2 || all[1].RunID != "b" || all[1].Violations[invariants.SeverityError] != 2 {
		t.Fatalf("all: %+v", all)
	}
}

func TestWriter_AppendsAcrossSessions(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	for _, id := range []string{"x", "y"} {
		w := NewWriter(dir, "runs")
		if err := w.Write(Entry{RunID: id, At: at}); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	es, err := ReadFile(NewWriter(dir, "runs").Path(at))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(es) != 2 || es[0].RunID != "x" || es[1].RunID != "y" {
		t.Fatalf("entries: %+v", es)
	}
}

func TestWriter_StampsMissingTime(t *testing.T) {
	dir := t.TempDir()
	fixed := time.Date(2026, 4, 5, 6, 7, 8, 0, time.UTC)
	w := NewWriter(dir, "runs")
	w.now = func() time.Time { return fixed }
	if err := w.Write(Entry{RunID: "z"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = w.Close()
	es, err := ReadFile(w.Path(fixed))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(es) != 1 || !es[0].At.Equal(fixed) {
		t.Fatalf("entries: %+v", es)
	}
}

package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"worldstate.ai/internal/world/invariants"
)

type RunSummary struct {
	RunID       string
	WorldID     string
	RecordedAt  time.Time
	ViewDigest  string
	BundlePath  string
	Placements  int
	Issues      int
	Blocking    bool
	Applied     bool
	Added       int
	Removed     int
	Updated     int
	HasErrors   bool
	HasWarnings bool
}

// LatestRun returns the most recent run for worldID; ok is false if none.
func (s *SQLiteIndex) LatestRun(ctx context.Context, worldID string) (RunSummary, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT run_id,world_id,recorded_at,view_digest,COALESCE(bundle_path,''),placements,issues,blocking,applied,added,removed,updated,has_errors,has_warnings
		FROM runs WHERE world_id = ? ORDER BY recorded_at DESC, run_id DESC LIMIT 1`, worldID)
	var (
		out                                     RunSummary
		recorded                                string
		blocking, applied, hasErrors, hasWarned int
	)
	err := row.Scan(&out.RunID, &out.WorldID, &recorded, &out.ViewDigest, &out.BundlePath,
		&out.Placements, &out.Issues, &blocking, &applied, &out.Added, &out.Removed, &out.Updated, &hasErrors, &hasWarned)
	if errors.Is(err, sql.ErrNoRows) {
		return RunSummary{}, false, nil
	}
	if err != nil {
		return RunSummary{}, false, err
	}
	out.RecordedAt, _ = time.Parse(time.RFC3339Nano, recorded)
	out.Blocking = blocking != 0
	out.Applied = applied != 0
	out.HasErrors = hasErrors != 0
	out.HasWarnings = hasWarned != 0
	return out, true, nil
}

func (s *SQLiteIndex) Violations(ctx context.Context, runID string) ([]invariants.Violation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code,severity,message,details_json FROM violations WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []invariants.Violation
	for rows.Next() {
		var (
			v       invariants.Violation
			sev     string
			details sql.NullString
		)
		if err := rows.Scan(&v.Code, &sev, &v.Message, &details); err != nil {
			return nil, err
		}
		v.Severity = invariants.Severity(sev)
		if details.Valid && details.String != "" {
			_ = json.Unmarshal([]byte(details.String), &v.Details)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountByCode aggregates violation counts across all runs of worldID.
func (s *SQLiteIndex) CountByCode(ctx context.Context, worldID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.code, COUNT(*) FROM violations v JOIN runs r ON r.run_id = v.run_id
		WHERE r.world_id = ? GROUP BY v.code`, worldID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var code string
		var n int
		if err := rows.Scan(&code, &n); err != nil {
			return nil, err
		}
		out[code] = n
	}
	return out, rows.Err()
}

package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// RunRepo handles database operations for analysis runs
type RunRepo struct {
	db *DB
}

var _ RunRepository = (*RunRepo)(nil)

func NewRunRepository(db *DB) *RunRepo {
	return &RunRepo{db: db}
}

func (r *RunRepo) CreateRun(run *Run) error {
	providers, err := json.Marshal(run.Providers)
	if err != nil {
		return fmt.Errorf("failed to encode providers: %w", err)
	}
	domains, err := json.Marshal(run.SemrushDomains)
	if err != nil {
		return fmt.Errorf("failed to encode semrush domains: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO runs (id, profile, status, grouping_mode, tier_count, providers, site_url, semrush_domains)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Profile, RunStatusPending, run.GroupingMode, run.TierCount, string(providers), run.SiteURL, string(domains))
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *RunRepo) GetRun(id string) (*Run, error) {
	row := r.db.QueryRow(`
		SELECT id, profile, status, grouping_mode, tier_count, providers, site_url,
		       semrush_domains, error, stats, created_at, started_at, completed_at
		FROM runs WHERE id = ?
	`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (r *RunRepo) GetRunCount() (int, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM runs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

func (r *RunRepo) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, profile, status, grouping_mode, tier_count, providers, site_url,
		       semrush_domains, error, stats, created_at, started_at, completed_at
		FROM runs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (r *RunRepo) UpdateRunStatus(id, status, errMsg string) error {
	var query string
	switch status {
	case RunStatusRunning:
		query = `UPDATE runs SET status = ?, error = ?, started_at = CURRENT_TIMESTAMP WHERE id = ?`
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		query = `UPDATE runs SET status = ?, error = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ?`
	default:
		query = `UPDATE runs SET status = ?, error = ? WHERE id = ?`
	}

	if _, err := r.db.Exec(query, status, errMsg, id); err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}
	return nil
}

func (r *RunRepo) UpdateRunStats(id, stats string) error {
	if _, err := r.db.Exec(`UPDATE runs SET stats = ? WHERE id = ?`, stats, id); err != nil {
		return fmt.Errorf("failed to update run stats: %w", err)
	}
	return nil
}

func (r *RunRepo) AddRunFile(file *RunFile) error {
	result, err := r.db.Exec(`
		INSERT INTO run_files (run_id, filename, stored_path, source_domain, row_count, error)
		VALUES (?, ?, ?, ?, ?, ?)
	`, file.RunID, file.Filename, file.StoredPath, file.SourceDomain, file.RowCount, file.Error)
	if err != nil {
		return fmt.Errorf("failed to add run file: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		file.ID = id
	}
	return nil
}

func (r *RunRepo) GetRunFiles(runID string) ([]RunFile, error) {
	rows, err := r.db.Query(`
		SELECT id, run_id, filename, stored_path, source_domain, row_count, error
		FROM run_files WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run files: %w", err)
	}
	defer rows.Close()

	var files []RunFile
	for rows.Next() {
		var f RunFile
		if err := rows.Scan(&f.ID, &f.RunID, &f.Filename, &f.StoredPath, &f.SourceDomain, &f.RowCount, &f.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (r *RunRepo) UpdateRunFile(id int64, rowCount int, errMsg string) error {
	if _, err := r.db.Exec(`UPDATE run_files SET row_count = ?, error = ? WHERE id = ?`, rowCount, errMsg, id); err != nil {
		return fmt.Errorf("failed to update run file: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var providers, domains string
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&run.ID, &run.Profile, &run.Status, &run.GroupingMode, &run.TierCount,
		&providers, &run.SiteURL, &domains, &run.Error, &run.Stats,
		&run.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(providers), &run.Providers); err != nil {
		return nil, fmt.Errorf("failed to decode providers: %w", err)
	}
	if err := json.Unmarshal([]byte(domains), &run.SemrushDomains); err != nil {
		return nil, fmt.Errorf("failed to decode semrush domains: %w", err)
	}
	if startedAt.Valid {
		t := startedAt.Time
		run.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	return &run, nil
}

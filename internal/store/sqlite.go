// Package store keeps a small sqlite audit trail of ingest activity so
// degraded upstreams are diagnosable across runs. Forecast data itself is
// never persisted; each run rebuilds the ensemble from the sources.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the audit database at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	s := New(db)
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// FetchRun is one (ingestor, site) fetch for auditing.
type FetchRun struct {
	ID           int64
	StartedAt    time.Time
	FinishedAt   sql.NullTime
	Source       string
	SiteName     string
	RecordCount  sql.NullInt64
	Success      bool
	ErrorMessage sql.NullString
}

// StartFetch records the beginning of a source fetch and returns the run to
// complete later.
func (s *Store) StartFetch(source, siteName string) (*FetchRun, error) {
	run := &FetchRun{
		StartedAt: time.Now().UTC(),
		Source:    source,
		SiteName:  siteName,
	}
	result, err := s.db.Exec(`
		INSERT INTO fetch_log (started_at, source, site_name, success)
		VALUES (?, ?, ?, FALSE)
	`, run.StartedAt, run.Source, run.SiteName)
	if err != nil {
		return nil, err
	}
	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteFetch updates the run with its outcome.
func (s *Store) CompleteFetch(run *FetchRun) error {
	if run == nil {
		return nil
	}
	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	_, err := s.db.Exec(`
		UPDATE fetch_log SET
			finished_at = ?,
			record_count = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.RecordCount, run.Success, run.ErrorMessage, run.ID)
	return err
}

// FetchHealthSummary aggregates fetch outcomes per day and source.
type FetchHealthSummary struct {
	Date        string
	Source      string
	TotalRuns   int
	SuccessRuns int
	FailedRuns  int
	Records     int64
}

// GetFetchHealth returns per-source health summaries for the last N days.
func (s *Store) GetFetchHealth(days int) ([]FetchHealthSummary, error) {
	rows, err := s.db.Query(`
		SELECT
			DATE(SUBSTR(started_at, 1, 19)) as date,
			source,
			COUNT(*) as total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) as success_runs,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) as failed_runs,
			COALESCE(SUM(record_count), 0) as records
		FROM fetch_log
		WHERE SUBSTR(started_at, 1, 19) > datetime('now', '-' || ? || ' days')
		GROUP BY date, source
		ORDER BY date DESC, source
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchHealthSummary
	for rows.Next() {
		var h FetchHealthSummary
		if err := rows.Scan(&h.Date, &h.Source, &h.TotalRuns, &h.SuccessRuns, &h.FailedRuns, &h.Records); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// GetRecentFetchErrors returns the latest failed fetches.
func (s *Store) GetRecentFetchErrors(limit int) ([]FetchRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, source, site_name, record_count, success, error_message
		FROM fetch_log
		WHERE success = FALSE
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []FetchRun
	for rows.Next() {
		var r FetchRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.Source, &r.SiteName, &r.RecordCount, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

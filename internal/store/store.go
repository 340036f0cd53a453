// Package store keeps a history of analysis reports in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"greenscan/internal/report"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when no report has the requested job id.
var ErrNotFound = errors.New("report not found")

// Store is a report history backed by a single SQLite file.
type Store struct {
	db *sql.DB
}

// Summary is one row of the report history.
type Summary struct {
	JobID       string    `json:"jobId"`
	Project     string    `json:"project,omitempty"`
	Commit      string    `json:"commit,omitempty"`
	AnalyzedAt  time.Time `json:"analyzedAt"`
	Total       int       `json:"total"`
	High        int       `json:"high"`
	Medium      int       `json:"medium"`
	Low         int       `json:"low"`
	RunID       string    `json:"runId,omitempty"`
	FailedPhase string    `json:"failedPhase,omitempty"`
}

// FindingRecord is a stored finding with the job it belongs to.
type FindingRecord struct {
	JobID       string  `json:"jobId"`
	FindingID   string  `json:"findingId"`
	RuleID      string  `json:"ruleId"`
	Severity    string  `json:"severity"`
	EnergyScore float64 `json:"energyScore"`
	File        string  `json:"file"`
	StartLine   int     `json:"startLine"`
	Message     string  `json:"message"`
}

// Open opens (and creates if missing) the database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	log.Debug().Str("path", path).Msg("Report store opened")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS reports (
  job_id       TEXT PRIMARY KEY,
  project      TEXT,
  commit_ref   TEXT,
  analyzed_at  TEXT NOT NULL,  -- UTC, fixed width
  total        INTEGER NOT NULL,
  high         INTEGER NOT NULL,
  medium       INTEGER NOT NULL,
  low          INTEGER NOT NULL,
  run_id       TEXT,
  failed_phase TEXT,
  report_json  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS findings (
  id           TEXT NOT NULL,
  job_id       TEXT NOT NULL,
  rule_id      TEXT NOT NULL,
  severity     TEXT,
  energy_score REAL,
  file         TEXT,
  start_line   INTEGER,
  message      TEXT,
  PRIMARY KEY (id, job_id),
  FOREIGN KEY(job_id) REFERENCES reports(job_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_reports_analyzed ON reports(analyzed_at);
CREATE INDEX IF NOT EXISTS idx_findings_rule ON findings(rule_id);
`)
	return err
}

// SaveReport upserts r and rewrites its findings.
func (s *Store) SaveReport(ctx context.Context, r *report.Report) error {
	jobID := r.JobID()
	if jobID == "" {
		return errors.New("save report: missing job id")
	}
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	static := r.StaticAnalysis
	var runID string
	if r.DynamicAnalysis != nil {
		runID = r.DynamicAnalysis.RunID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO reports (job_id, project, commit_ref, analyzed_at, total, high, medium, low, run_id, failed_phase, report_json)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(job_id) DO UPDATE SET project=excluded.project, commit_ref=excluded.commit_ref,
           analyzed_at=excluded.analyzed_at, total=excluded.total, high=excluded.high, medium=excluded.medium,
           low=excluded.low, run_id=excluded.run_id, failed_phase=excluded.failed_phase, report_json=excluded.report_json`,
		jobID, static.Project.Name, static.Project.Commit, r.AnalyzedAt.UTC().Format(timeLayout),
		static.Summary.Total, static.Summary.High, static.Summary.Medium, static.Summary.Low,
		runID, r.FailedPhase, string(b),
	); err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM findings WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	if len(static.Findings) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO findings (id, job_id, rule_id, severity, energy_score, file, start_line, message)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("save report: %w", err)
		}
		defer stmt.Close()
		for _, f := range static.Findings {
			if _, err := stmt.ExecContext(ctx,
				f.ID, jobID, f.RuleID, f.Severity, f.EnergyScore, f.File, f.StartLine, f.Message,
			); err != nil {
				return fmt.Errorf("save finding %s: %w", f.ID, err)
			}
		}
	}
	return tx.Commit()
}

// LoadReport returns the full report stored for jobID.
func (s *Store) LoadReport(ctx context.Context, jobID string) (*report.Report, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT report_json FROM reports WHERE job_id = ?`, jobID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("load report %s: %w", jobID, err)
	}
	var r report.Report
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("load report %s: %w", jobID, err)
	}
	return &r, nil
}

// ListReports returns report summaries, newest first.
func (s *Store) ListReports(ctx context.Context, limit, offset int) ([]Summary, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, project, commit_ref, analyzed_at, total, high, medium, low, run_id, failed_phase
         FROM reports ORDER BY analyzed_at DESC, job_id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum     Summary
			at      string
			project sql.NullString
			commit  sql.NullString
			runID   sql.NullString
			failed  sql.NullString
		)
		if err := rows.Scan(&sum.JobID, &project, &commit, &at, &sum.Total, &sum.High, &sum.Medium, &sum.Low, &runID, &failed); err != nil {
			return nil, fmt.Errorf("list reports: %w", err)
		}
		sum.Project = project.String
		sum.Commit = commit.String
		sum.RunID = runID.String
		sum.FailedPhase = failed.String
		if t, err := time.Parse(timeLayout, at); err == nil {
			sum.AnalyzedAt = t
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// FindingsByRule returns stored findings for ruleID across all reports,
// newest report first.
func (s *Store) FindingsByRule(ctx context.Context, ruleID string) ([]FindingRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.job_id, f.id, f.rule_id, f.severity, f.energy_score, f.file, f.start_line, f.message
         FROM findings f JOIN reports r ON r.job_id = f.job_id
         WHERE f.rule_id = ?
         ORDER BY r.analyzed_at DESC, f.job_id, f.start_line, f.id`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("findings by rule: %w", err)
	}
	defer rows.Close()

	var out []FindingRecord
	for rows.Next() {
		var (
			rec      FindingRecord
			severity sql.NullString
			score    sql.NullFloat64
			file     sql.NullString
			line     sql.NullInt64
			message  sql.NullString
		)
		if err := rows.Scan(&rec.JobID, &rec.FindingID, &rec.RuleID, &severity, &score, &file, &line, &message); err != nil {
			return nil, fmt.Errorf("findings by rule: %w", err)
		}
		rec.Severity = severity.String
		rec.EnergyScore = score.Float64
		rec.File = file.String
		rec.StartLine = int(line.Int64)
		rec.Message = message.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes reports analyzed before cutoff and returns how many were
// removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE analyzed_at < ?`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune reports: %w", err)
	}
	return res.RowsAffected()
}

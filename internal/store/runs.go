package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mtzanidakis/erevna/internal/errs"
)

// ResearchRun is the persisted record of one pipeline execution.
type ResearchRun struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	Query       string          `json:"query,omitempty"`
	Format      string          `json:"format,omitempty"`
	Status      string          `json:"status"`
	Steps       json.RawMessage `json:"steps,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// SaveResearchRun records a run at the moment it is admitted, before any
// stage executes. Status starts as "running".
func (s *Store) SaveResearchRun(run *ResearchRun) error {
	if run.Status == "" {
		run.Status = "running"
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO research_runs (id, topic, query, format, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Topic, run.Query, run.Format, run.Status, run.StartedAt)
	if err != nil {
		return errs.Storage("insert run", err)
	}
	return nil
}

// CompleteResearchRun stores the final status and the step transcript.
func (s *Store) CompleteResearchRun(id, status string, steps any) error {
	encoded, err := json.Marshal(steps)
	if err != nil {
		return errs.Storage("encode steps", err)
	}
	now := time.Now().UTC()
	result, err := s.db.Exec(`
		UPDATE research_runs SET status = ?, steps = ?, completed_at = ? WHERE id = ?`,
		status, string(encoded), now, id)
	if err != nil {
		return errs.Storage("complete run", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errs.NotFound("run", id)
	}
	return nil
}

func (s *Store) GetResearchRun(id string) (*ResearchRun, error) {
	row := s.db.QueryRow(`
		SELECT id, topic, query, format, status, steps, started_at, completed_at
		FROM research_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("run", id)
	}
	if err != nil {
		return nil, errs.Storage("get run", err)
	}
	return run, nil
}

func (s *Store) ListResearchRuns(limit int) ([]ResearchRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, topic, query, format, status, steps, started_at, completed_at
		FROM research_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errs.Storage("list runs", err)
	}
	defer rows.Close()

	var runs []ResearchRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errs.Storage("scan run", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*ResearchRun, error) {
	run := &ResearchRun{}
	var query, format, steps sql.NullString
	var completed sql.NullTime
	err := scanner.Scan(&run.ID, &run.Topic, &query, &format, &run.Status,
		&steps, &run.StartedAt, &completed)
	if err != nil {
		return nil, err
	}
	run.Query = query.String
	run.Format = format.String
	if steps.String != "" {
		run.Steps = json.RawMessage(steps.String)
	}
	if completed.Valid {
		run.CompletedAt = &completed.Time
	}
	return run, nil
}

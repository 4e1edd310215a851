package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/mtzanidakis/erevna/internal/errs"
)

// ScheduledTopic is a recurring research request. The schedule field holds a
// JSON expression interpreted by the scheduler package.
type ScheduledTopic struct {
	ID         string     `json:"id"`
	Topic      string     `json:"topic"`
	Query      string     `json:"query,omitempty"`
	Format     string     `json:"format,omitempty"`
	MaxSources int        `json:"max_sources"`
	Schedule   string     `json:"schedule"`
	Status     string     `json:"status"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastStatus string     `json:"last_status,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (s *Store) CreateScheduledTopic(t *ScheduledTopic) error {
	if t.Topic == "" {
		return errs.Validationf("topic required")
	}
	if t.Schedule == "" {
		return errs.Validationf("schedule required")
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = "active"
	}
	if t.MaxSources <= 0 {
		t.MaxSources = 5
	}
	t.CreatedAt = time.Now().UTC()

	_, err := s.db.Exec(`
		INSERT INTO scheduled_topics (id, topic, query, format, max_sources, schedule, status, next_run_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Topic, t.Query, t.Format, t.MaxSources, t.Schedule, t.Status, t.NextRunAt, t.CreatedAt)
	if err != nil {
		return errs.Storage("insert schedule", err)
	}
	return nil
}

func (s *Store) GetScheduledTopic(id string) (*ScheduledTopic, error) {
	row := s.db.QueryRow(scheduleSelect+` WHERE id = ?`, id)
	t, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("schedule", id)
	}
	if err != nil {
		return nil, errs.Storage("get schedule", err)
	}
	return t, nil
}

func (s *Store) ListScheduledTopics() ([]ScheduledTopic, error) {
	rows, err := s.db.Query(scheduleSelect + ` ORDER BY created_at DESC`)
	if err != nil {
		return nil, errs.Storage("list schedules", err)
	}
	defer rows.Close()

	var topics []ScheduledTopic
	for rows.Next() {
		t, err := scanSchedule(rows)
		if err != nil {
			return nil, errs.Storage("scan schedule", err)
		}
		topics = append(topics, *t)
	}
	return topics, rows.Err()
}

// DueScheduledTopics returns active schedules whose next run time has passed.
func (s *Store) DueScheduledTopics(now time.Time) ([]ScheduledTopic, error) {
	rows, err := s.db.Query(
		scheduleSelect+` WHERE status = 'active' AND next_run_at IS NOT NULL AND next_run_at <= ?`, now)
	if err != nil {
		return nil, errs.Storage("query due schedules", err)
	}
	defer rows.Close()

	var topics []ScheduledTopic
	for rows.Next() {
		t, err := scanSchedule(rows)
		if err != nil {
			return nil, errs.Storage("scan schedule", err)
		}
		topics = append(topics, *t)
	}
	return topics, rows.Err()
}

// MarkScheduledRun records the outcome of one triggered run and the computed
// next fire time. A nil next time deactivates the schedule (one-shot done).
func (s *Store) MarkScheduledRun(id, status, errMsg string, next *time.Time) error {
	state := "active"
	if next == nil {
		state = "done"
	}
	result, err := s.db.Exec(`
		UPDATE scheduled_topics
		SET last_run_at = ?, last_status = ?, last_error = ?, next_run_at = ?, status = ?
		WHERE id = ?`,
		time.Now().UTC(), status, errMsg, next, state, id)
	if err != nil {
		return errs.Storage("mark schedule run", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errs.NotFound("schedule", id)
	}
	return nil
}

func (s *Store) SetScheduledTopicStatus(id, status string) error {
	result, err := s.db.Exec(`UPDATE scheduled_topics SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return errs.Storage("set schedule status", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errs.NotFound("schedule", id)
	}
	return nil
}

func (s *Store) DeleteScheduledTopic(id string) error {
	result, err := s.db.Exec(`DELETE FROM scheduled_topics WHERE id = ?`, id)
	if err != nil {
		return errs.Storage("delete schedule", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errs.NotFound("schedule", id)
	}
	return nil
}

const scheduleSelect = `
	SELECT id, topic, query, format, max_sources, schedule, status,
		next_run_at, last_run_at, last_status, last_error, created_at
	FROM scheduled_topics`

func scanSchedule(scanner interface{ Scan(dest ...any) error }) (*ScheduledTopic, error) {
	t := &ScheduledTopic{}
	var query, format, lastStatus, lastError sql.NullString
	var nextRun, lastRun sql.NullTime
	err := scanner.Scan(&t.ID, &t.Topic, &query, &format, &t.MaxSources, &t.Schedule,
		&t.Status, &nextRun, &lastRun, &lastStatus, &lastError, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Query = query.String
	t.Format = format.String
	t.LastStatus = lastStatus.String
	t.LastError = lastError.String
	if nextRun.Valid {
		t.NextRunAt = &nextRun.Time
	}
	if lastRun.Valid {
		t.LastRunAt = &lastRun.Time
	}
	return t, nil
}

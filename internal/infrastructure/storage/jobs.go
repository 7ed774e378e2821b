package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"RedCardNews/internal/domain"
	"RedCardNews/internal/ports"
)

var _ ports.JobLedger = (*Store)(nil)

// CreateJob inserts the ledger row when the job starts.
func (s *Store) CreateJob(ctx context.Context, job domain.Job) error {
	result, payload, err := encodeJob(job)
	if err != nil {
		return err
	}

	_, err = s.exec(ctx, s.sb.Insert("jobs").
		Columns("id", "job_type", "status", "started_at", "completed_at", "result", "payload").
		Values(job.ID, string(job.Kind), string(job.Status), utc(job.StartedAt), nullTime(job.CompletedAt), result, payload))
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// FinishJob writes the terminal status, completion time and result.
func (s *Store) FinishJob(ctx context.Context, job domain.Job) error {
	result, _, err := encodeJob(job)
	if err != nil {
		return err
	}

	n, err := s.exec(ctx, s.sb.Update("jobs").
		Set("status", string(job.Status)).
		Set("completed_at", nullTime(job.CompletedAt)).
		Set("result", result).
		Where(sq.Eq{"id": job.ID}))
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %s: %w", job.ID, domain.ErrNotFound)
	}
	return nil
}

// ListJobs returns the most recent jobs, optionally filtered by kind.
func (s *Store) ListJobs(ctx context.Context, kind domain.JobKind, limit int) ([]domain.Job, error) {
	q := s.sb.Select("id", "job_type", "status", "started_at", "completed_at", "result", "payload").
		From("jobs").
		OrderBy("started_at DESC")
	if kind != "" {
		q = q.Where(sq.Eq{"job_type": string(kind)})
	}
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	rows, err := s.query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		var (
			job             domain.Job
			kindText        string
			statusText      string
			completed       sql.NullTime
			result, payload string
		)
		if err := rows.Scan(&job.ID, &kindText, &statusText, &job.StartedAt, &completed, &result, &payload); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		job.Kind = domain.JobKind(kindText)
		job.Status = domain.JobStatus(statusText)
		job.StartedAt = job.StartedAt.UTC()
		if completed.Valid {
			job.CompletedAt = completed.Time.UTC()
		}
		if err := json.Unmarshal([]byte(result), &job.Result); err != nil {
			return nil, fmt.Errorf("decode job result: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &job.Payload); err != nil {
			return nil, fmt.Errorf("decode job payload: %w", err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

func encodeJob(job domain.Job) (string, string, error) {
	result, err := json.Marshal(job.Result)
	if err != nil {
		return "", "", fmt.Errorf("encode job result: %w", err)
	}
	payload := job.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", "", fmt.Errorf("encode job payload: %w", err)
	}
	return string(result), string(raw), nil
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrAttemptExists is returned by Create when the candidate already has an
// attempt for the test.
var ErrAttemptExists = errors.New("attempt already exists")

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new ACTIVE attempt and fills in its id and started_at.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO attempts (test_id, candidate_id, duration_seconds, status)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (test_id, candidate_id) DO NOTHING
		 RETURNING id, started_at`,
		a.TestID, a.CandidateID, a.DurationSeconds, model.AttemptStatusActive,
	).Scan(&a.ID, &a.StartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAttemptExists
	}
	if err != nil {
		return err
	}
	a.Status = model.AttemptStatusActive
	return nil
}

// FindResumable returns the candidate's ACTIVE attempt for the test that has
// no stored submission yet. It returns pgx.ErrNoRows when there is none.
func (r *AttemptRepository) FindResumable(ctx context.Context, testID uuid.UUID, candidateID int64) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT a.id, a.test_id, a.candidate_id, a.duration_seconds, a.status, a.started_at
		 FROM attempts a
		 WHERE a.test_id = $1 AND a.candidate_id = $2 AND a.status = $3
		   AND NOT EXISTS (SELECT 1 FROM attempt_submissions s WHERE s.attempt_id = a.id)`,
		testID, candidateID, model.AttemptStatusActive,
	).Scan(&a.ID, &a.TestID, &a.CandidateID, &a.DurationSeconds, &a.Status, &a.StartedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAnswers returns the persisted draft answers of an attempt.
func (r *AttemptRepository) ListAnswers(ctx context.Context, attemptID uuid.UUID) (map[string]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, value FROM attempt_answers WHERE attempt_id = $1`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make(map[string]string)
	for rows.Next() {
		var qid, value string
		if err := rows.Scan(&qid, &value); err != nil {
			return nil, err
		}
		answers[qid] = value
	}
	return answers, rows.Err()
}

// ListDefocusEvents returns the persisted defocus timestamps of an attempt
// in occurrence order.
func (r *AttemptRepository) ListDefocusEvents(ctx context.Context, attemptID uuid.UUID) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT occurred_at FROM attempt_defocus_events
		 WHERE attempt_id = $1 ORDER BY occurred_at`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return pgx.CollectRows(rows, pgx.RowTo[time.Time])
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, test_id, candidate_id, duration_seconds, status, started_at, finished_at
		 FROM attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.TestID, &a.CandidateID, &a.DurationSeconds, &a.Status, &a.StartedAt, &a.FinishedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// SaveSubmission stores the single submission of an attempt together with
// its final answers. A repeated call for the same attempt returns the id of
// the stored submission and changes nothing.
func (r *AttemptRepository) SaveSubmission(ctx context.Context, attemptID uuid.UUID, kind model.AttemptStatus, p model.SubmissionPayload) (uuid.UUID, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var resultID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO attempt_submissions
		     (attempt_id, kind, auto_submit, time_taken_seconds, defocus_count, fraud_detected, fraud_reason, payload)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		 ON CONFLICT (attempt_id) DO NOTHING
		 RETURNING id`,
		attemptID, kind, p.AutoSubmit, p.TimeTakenSeconds, p.DefocusCount,
		p.FraudDetected != nil && *p.FraudDetected, p.FraudReason, raw,
	).Scan(&resultID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx,
			`SELECT id FROM attempt_submissions WHERE attempt_id = $1`, attemptID,
		).Scan(&resultID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("fetch existing submission: %w", err)
		}
		return resultID, tx.Commit(ctx)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert submission: %w", err)
	}

	batch := &pgx.Batch{}
	for qid, ans := range p.Answers {
		batch.Queue(
			`INSERT INTO attempt_answers (attempt_id, question_id, value, used_alternate_editor)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (attempt_id, question_id) DO UPDATE
			 SET value = EXCLUDED.value,
			     used_alternate_editor = EXCLUDED.used_alternate_editor,
			     updated_at = NOW()`,
			attemptID, qid, ans.Value, ans.UsedAlternateEditor,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return uuid.Nil, fmt.Errorf("save answers: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE attempts SET status = $1 WHERE id = $2`,
		model.AttemptStatusSubmitting, attemptID,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("mark submitting: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit: %w", err)
	}
	return resultID, nil
}

// DefocusCount is the number of persisted defocus events of an attempt.
type DefocusCount struct {
	AttemptID   uuid.UUID           `json:"attempt_id"`
	CandidateID int64               `json:"candidate_id"`
	Status      model.AttemptStatus `json:"status"`
	Count       int                 `json:"count"`
}

// ListDefocusCounts aggregates persisted defocus events per attempt of a test.
func (r *AttemptRepository) ListDefocusCounts(ctx context.Context, testID uuid.UUID) ([]DefocusCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.candidate_id, a.status, COUNT(d.id)
		 FROM attempts a
		 LEFT JOIN attempt_defocus_events d ON d.attempt_id = a.id
		 WHERE a.test_id = $1
		 GROUP BY a.id
		 ORDER BY a.candidate_id`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]DefocusCount, 0)
	for rows.Next() {
		var c DefocusCount
		if err := rows.Scan(&c.AttemptID, &c.CandidateID, &c.Status, &c.Count); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

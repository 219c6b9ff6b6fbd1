package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// TestRepository reads test definitions. Tests are authored elsewhere.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// GetSessionSpec retrieves a published test with its ordered question ids.
// Returns pgx.ErrNoRows when the test does not exist or is unpublished.
func (r *TestRepository) GetSessionSpec(ctx context.Context, testID uuid.UUID) (*model.SessionSpec, error) {
	spec := &model.SessionSpec{TestID: testID}
	err := r.pool.QueryRow(ctx,
		`SELECT title, duration_seconds
		 FROM tests
		 WHERE id = $1 AND published`, testID,
	).Scan(&spec.Title, &spec.DurationSeconds)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT question_id
		 FROM test_questions
		 WHERE test_id = $1
		 ORDER BY position`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	spec.QuestionIDs = make([]string, 0)
	for rows.Next() {
		var qid string
		if err := rows.Scan(&qid); err != nil {
			return nil, err
		}
		spec.QuestionIDs = append(spec.QuestionIDs, qid)
	}
	return spec, rows.Err()
}

// ListPublishedIDs returns the ids of every published test.
func (r *TestRepository) ListPublishedIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM tests WHERE published ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

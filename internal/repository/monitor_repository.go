package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// MonitorRepository provides data access for the proctor feed.
// It combines PostgreSQL (attempt state) and Redis (live draft answers).
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// GetActiveAttemptIDs returns the ids of the attempts of a test that are still running.
func (r *MonitorRepository) GetActiveAttemptIDs(ctx context.Context, testID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM attempts WHERE test_id = $1 AND status = $2`,
		testID, model.AttemptStatusActive,
	)
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

// GetDraftCounts returns how many questions each attempt has autosaved, read
// from the draft hashes in one pipeline. Attempts without a draft are omitted.
func (r *MonitorRepository) GetDraftCounts(ctx context.Context, attemptIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(attemptIDs))
	if len(attemptIDs) == 0 {
		return counts, nil
	}

	pipe := r.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(attemptIDs))
	for i, id := range attemptIDs {
		cmds[i] = pipe.HLen(ctx, config.CacheKey.AttemptDraftKey(id.String()))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	for i, cmd := range cmds {
		if n := cmd.Val(); n > 0 {
			counts[attemptIDs[i]] = n
		}
	}
	return counts, nil
}

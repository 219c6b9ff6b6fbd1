package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	FinalizeBatchSize    = 50
	FinalizeBatchTimeout = 2 * time.Second
)

// FinalizeWorker moves submitted attempts to their terminal status and
// clears their Redis drafts.
type FinalizeWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewFinalizeWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *FinalizeWorker {
	return &FinalizeWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "finalize_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *FinalizeWorker) Start(ctx context.Context) {
	w.log.Info().Msg("FinalizeWorker started")

	batch := make([]*service.FinalizeJob, 0, FinalizeBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= FinalizeBatchSize || time.Since(lastFlush) >= FinalizeBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flushSafe(flushCtx, batch)
			cancel()
			return

		default:
			item, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.FinalizeAttemptQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
					time.Sleep(time.Second)
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var job service.FinalizeJob
			if err := json.Unmarshal([]byte(item[1]), &job); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}
			if _, err := uuid.Parse(job.AttemptID); err != nil {
				w.log.Error().Str("attempt_id", job.AttemptID).Msg("Dropping finalize job with invalid UUID")
				continue
			}

			batch = append(batch, &job)
		}
	}
}

// ----------------------------------------------------------------
// Batch update wrapper
// ----------------------------------------------------------------

func (w *FinalizeWorker) flushSafe(ctx context.Context, batch []*service.FinalizeJob) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkFinalize(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("Bulk finalize failed, using fallback")

		for _, j := range batch {
			if err := w.finalizeSingle(ctx, j); err != nil {
				w.log.Error().Err(err).Str("attempt_id", j.AttemptID).Msg("finalizeSingle failed, requeueing")
				raw, _ := json.Marshal(j)
				w.rdb.RPush(ctx, config.WorkerKey.FinalizeAttemptQueue, raw)
				continue
			}
			w.clearDrafts(ctx, []*service.FinalizeJob{j})
		}
		return
	}

	w.clearDrafts(ctx, batch)
	w.log.Debug().Int("count", len(batch)).Msg("Attempts finalized")
}

// ----------------------------------------------------------------
// BULK PostgreSQL UPDATE using UNNEST + alias
// ----------------------------------------------------------------

func (w *FinalizeWorker) bulkFinalize(ctx context.Context, batch []*service.FinalizeJob) error {
	n := len(batch)

	attemptIDs := make([]uuid.UUID, 0, n)
	statuses := make([]string, 0, n)
	finishedAts := make([]time.Time, 0, n)

	for _, j := range batch {
		id, err := uuid.Parse(j.AttemptID)
		if err != nil {
			return err
		}
		attemptIDs = append(attemptIDs, id)
		statuses = append(statuses, string(j.Status))
		finishedAts = append(finishedAts, time.Unix(j.FinishedAt, 0))
	}

	query := `
		UPDATE attempts AS a
		SET status = t.status,
		    finished_at = t.finished_at
		FROM (
			SELECT
				u.attempt_id,
				u.status,
				u.finished_at
			FROM UNNEST(
				$1::uuid[],
				$2::text[],
				$3::timestamptz[]
			) AS u (attempt_id, status, finished_at)
		) AS t
		WHERE a.id = t.attempt_id
		  AND a.finished_at IS NULL
	`

	_, err := w.pool.Exec(ctx, query, attemptIDs, statuses, finishedAts)
	return err
}

// ----------------------------------------------------------------
// BULK Redis DEL for clearing drafts
// ----------------------------------------------------------------

func (w *FinalizeWorker) clearDrafts(ctx context.Context, batch []*service.FinalizeJob) {
	pipe := w.rdb.Pipeline()
	for _, j := range batch {
		pipe.Del(ctx, config.CacheKey.AttemptDraftKey(j.AttemptID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Warn().Err(err).Msg("Failed to clear drafts")
	}
}

// ----------------------------------------------------------------
// FALLBACK single update
// ----------------------------------------------------------------

func (w *FinalizeWorker) finalizeSingle(ctx context.Context, j *service.FinalizeJob) error {
	id, err := uuid.Parse(j.AttemptID)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1,
		     finished_at = $2
		 WHERE id = $3 AND finished_at IS NULL`,
		j.Status, time.Unix(j.FinishedAt, 0), id,
	)
	return err
}

package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// DefocusWorker drains the defocus telemetry queue into attempt_defocus_events.
type DefocusWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewDefocusWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *DefocusWorker {
	return &DefocusWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "defocus_worker").Logger(),
	}
}

func (w *DefocusWorker) Start(ctx context.Context) {
	w.log.Info().Msg("DefocusWorker started")

	buffer := make([]*service.DefocusJob, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistDefocusQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		var job service.DefocusJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			// Malformed JSON can never succeed.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &job)
	}
}

// flushSafe attempts bulk insert, then fallback insert, then requeue
func (w *DefocusWorker) flushSafe(ctx context.Context, batch []*service.DefocusJob) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *DefocusWorker) bulkInsert(ctx context.Context, batch []*service.DefocusJob) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, j := range batch {
		attemptID, err := uuid.Parse(j.AttemptID)
		if err != nil {
			// The fallback drops the bad row individually.
			return err
		}
		rows = append(rows, []interface{}{attemptID, time.UnixMilli(j.OccurredAt)})
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_defocus_events"},
		[]string{"attempt_id", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *DefocusWorker) fallbackInsert(ctx context.Context, batch []*service.DefocusJob) {
	requeueList := make([]*service.DefocusJob, 0)

	for _, j := range batch {
		attemptID, err := uuid.Parse(j.AttemptID)
		if err != nil {
			w.log.Error().Str("attempt_id", j.AttemptID).Msg("Dropping defocus event with invalid UUID")
			continue
		}

		_, err = w.pool.Exec(ctx,
			`INSERT INTO attempt_defocus_events (attempt_id, occurred_at)
			 VALUES ($1, $2)`,
			attemptID, time.UnixMilli(j.OccurredAt),
		)
		if err != nil {
			w.log.Error().Err(err).Str("attempt_id", j.AttemptID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, j)
		}
	}

	if len(requeueList) > 0 {
		w.requeue(ctx, requeueList)
	}
}

func (w *DefocusWorker) requeue(ctx context.Context, items []*service.DefocusJob) {
	pipe := w.rdb.Pipeline()
	for _, j := range items {
		data, _ := json.Marshal(j)
		pipe.RPush(ctx, config.WorkerKey.PersistDefocusQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue defocus events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Back off while the database is down.
	time.Sleep(2 * time.Second)
}

func (w *DefocusWorker) shutdown(buffer []*service.DefocusJob) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}

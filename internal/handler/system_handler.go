package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const probeTimeout = 2 * time.Second

// SystemHandler reports liveness and the load of the session engine.
type SystemHandler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	manager   *service.SessionManager
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, manager *service.SessionManager, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		pool:      pool,
		rdb:       rdb,
		manager:   manager,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthStatus struct {
	Status   string `json:"status"`
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

// Health godoc
// GET /health
// Answers 503 while either store is unreachable so the load balancer stops
// routing new sessions here.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), probeTimeout)
	defer cancel()

	st := healthStatus{Status: "ok", Postgres: "ok", Redis: "ok"}
	if err := h.pool.Ping(ctx); err != nil {
		h.log.Warn().Err(err).Msg("PostgreSQL health probe failed")
		st.Status, st.Postgres = "degraded", "unreachable"
	}
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		h.log.Warn().Err(err).Msg("Redis health probe failed")
		st.Status, st.Redis = "degraded", "unreachable"
	}

	if st.Status != "ok" {
		response.FailWithData(c, http.StatusServiceUnavailable, response.ErrServiceUnavailable, st)
		return
	}
	response.Success(c, http.StatusOK, st)
}

type engineStats struct {
	Timestamp    int64  `json:"timestamp"`
	Uptime       string `json:"uptime"`
	LiveSessions int    `json:"live_sessions"`
	Goroutines   int    `json:"goroutines"`
	HeapAlloc    uint64 `json:"heap_alloc"`
	NumGC        uint32 `json:"num_gc"`
	GoVersion    string `json:"go_version"`

	// Worker Queues
	QueueDefocus  int64 `json:"queue_defocus"`
	QueueAnswers  int64 `json:"queue_answers"`
	QueueFinalize int64 `json:"queue_finalize"`

	DBTotalConns    int32 `json:"db_total_conns"`
	DBAcquiredConns int32 `json:"db_acquired_conns"`
}

// EngineStats godoc
// GET /api/v1/proctor/system
func (h *SystemHandler) EngineStats(c *gin.Context) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	st := engineStats{
		Timestamp:    time.Now().Unix(),
		Uptime:       time.Since(h.startTime).Truncate(time.Second).String(),
		LiveSessions: h.manager.Len(),
		Goroutines:   runtime.NumGoroutine(),
		HeapAlloc:    ms.HeapAlloc,
		NumGC:        ms.NumGC,
		GoVersion:    runtime.Version(),
	}

	poolStat := h.pool.Stat()
	st.DBTotalConns = poolStat.TotalConns()
	st.DBAcquiredConns = poolStat.AcquiredConns()

	// ── Worker Queues (pipelined LLEN) ──
	ctx := c.Request.Context()
	pipe := h.rdb.Pipeline()
	defocusCmd := pipe.LLen(ctx, config.WorkerKey.PersistDefocusQueue)
	answersCmd := pipe.LLen(ctx, config.WorkerKey.PersistAnswersQueue)
	finalizeCmd := pipe.LLen(ctx, config.WorkerKey.FinalizeAttemptQueue)
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Warn().Err(err).Msg("Queue length probe failed")
	} else {
		st.QueueDefocus = defocusCmd.Val()
		st.QueueAnswers = answersCmd.Val()
		st.QueueFinalize = finalizeCmd.Val()
	}

	response.Success(c, http.StatusOK, st)
}

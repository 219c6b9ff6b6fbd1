package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// ErrTestNotAvailable is returned for unknown or unpublished tests.
var ErrTestNotAvailable = errors.New("test not available")

// TestService serves session specs with a Redis read-through cache.
type TestService struct {
	testRepo *repository.TestRepository
	rdb      *redis.Client
	ttl      time.Duration
	log      zerolog.Logger
}

// NewTestService creates a new TestService.
func NewTestService(testRepo *repository.TestRepository, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *TestService {
	return &TestService{
		testRepo: testRepo,
		rdb:      rdb,
		ttl:      ttl,
		log:      log.With().Str("component", "test_service").Logger(),
	}
}

// PrewarmPublished loads every published test into Redis before the server
// accepts traffic, so the first wave of starts does not stampede PostgreSQL.
func (s *TestService) PrewarmPublished(ctx context.Context) error {
	ids, err := s.testRepo.ListPublishedIDs(ctx)
	if err != nil {
		return fmt.Errorf("list published tests: %w", err)
	}

	if len(ids) == 0 {
		s.log.Info().Msg("No published tests to prewarm")
		return nil
	}

	warmed := 0
	for _, id := range ids {
		if err := s.Invalidate(ctx, id); err != nil {
			s.log.Warn().Err(err).Str("test_id", id.String()).Msg("Failed to drop cached spec")
		}
		if _, err := s.GetSessionSpec(ctx, id); err != nil {
			s.log.Warn().
				Err(err).
				Str("test_id", id.String()).
				Msg("Failed to warm test, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(ids)).
		Msg("Prewarming complete")
	return nil
}

// Invalidate drops the cached spec of a test.
func (s *TestService) Invalidate(ctx context.Context, testID uuid.UUID) error {
	return s.rdb.Del(ctx, config.CacheKey.TestSpecKey(testID.String())).Err()
}

// GetSessionSpec returns the duration and question ids of a published test.
func (s *TestService) GetSessionSpec(ctx context.Context, testID uuid.UUID) (*model.SessionSpec, error) {
	key := config.CacheKey.TestSpecKey(testID.String())

	raw, err := s.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var spec model.SessionSpec
		if jsonErr := json.Unmarshal(raw, &spec); jsonErr == nil {
			return &spec, nil
		}
		s.log.Warn().Str("key", key).Msg("Discarding malformed cached spec")
	case !errors.Is(err, redis.Nil):
		// Redis down: serve from the database.
		s.log.Warn().Err(err).Msg("Spec cache read failed")
	}

	spec, err := s.testRepo.GetSessionSpec(ctx, testID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotAvailable
		}
		return nil, fmt.Errorf("get session spec: %w", err)
	}

	if data, err := json.Marshal(spec); err == nil {
		if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
			s.log.Warn().Err(err).Msg("Spec cache write failed")
		}
	}
	return spec, nil
}

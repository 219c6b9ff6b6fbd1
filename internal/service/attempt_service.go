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
	"github.com/stemsi/exstem-proctor/internal/session"
)

// Attempt errors.
var (
	ErrAttemptExists  = errors.New("candidate already submitted an attempt for this test")
	ErrInvalidAttempt = errors.New("invalid attempt id")
	ErrInvalidTestID  = errors.New("invalid test id")
)

// CandidateBackend is the per-candidate network boundary of a live session.
type CandidateBackend interface {
	session.SubmissionService
	// Autosave stores a draft answer. It is best effort.
	Autosave(ctx context.Context, attemptID, questionID, value string) error
}

// DefocusJob is queued for the defocus worker.
type DefocusJob struct {
	AttemptID  string `json:"attempt_id"`
	OccurredAt int64  `json:"occurred_at"` // Unix milliseconds
}

// AnswerJob is queued for the autosave worker.
type AnswerJob struct {
	AttemptID  string `json:"attempt_id"`
	QuestionID string `json:"q_id"`
	Answer     string `json:"answer"`
}

// FinalizeJob is queued for the finalize worker once a submission is stored.
type FinalizeJob struct {
	AttemptID  string              `json:"attempt_id"`
	TestID     string              `json:"test_id"`
	Status     model.AttemptStatus `json:"status"`
	FinishedAt int64               `json:"finished_at"` // Unix seconds
}

// AttemptService backs live sessions with PostgreSQL and Redis.
type AttemptService struct {
	attemptRepo *repository.AttemptRepository
	testService *TestService
	rdb         *redis.Client
	log         zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	attemptRepo *repository.AttemptRepository,
	testService *TestService,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attemptRepo: attemptRepo,
		testService: testService,
		rdb:         rdb,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
}

// For binds the service to one candidate's credential.
func (s *AttemptService) For(candidateID int64) CandidateBackend {
	return &CandidateGateway{svc: s, candidateID: candidateID}
}

// CandidateGateway implements session.SubmissionService for one candidate.
type CandidateGateway struct {
	svc         *AttemptService
	candidateID int64
}

var _ CandidateBackend = (*CandidateGateway)(nil)

func (g *CandidateGateway) Start(ctx context.Context, testID string) (model.StartResult, error) {
	tid, err := uuid.Parse(testID)
	if err != nil {
		return model.StartResult{}, ErrInvalidTestID
	}

	spec, err := g.svc.testService.GetSessionSpec(ctx, tid)
	if err != nil {
		return model.StartResult{}, err
	}

	attempt := &model.Attempt{
		TestID:          tid,
		CandidateID:     g.candidateID,
		DurationSeconds: spec.DurationSeconds,
	}
	if err := g.svc.attemptRepo.Create(ctx, attempt); err != nil {
		if errors.Is(err, repository.ErrAttemptExists) {
			return g.resume(ctx, tid)
		}
		return model.StartResult{}, fmt.Errorf("create attempt: %w", err)
	}

	key := config.CacheKey.CandidateActiveAttemptKey(testID, g.candidateID)
	ttl := time.Duration(spec.DurationSeconds)*time.Second + time.Hour
	if err := g.svc.rdb.Set(ctx, key, attempt.ID.String(), ttl).Err(); err != nil {
		g.svc.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Failed to cache active attempt")
	}

	return model.StartResult{AttemptID: attempt.ID.String(), StartedAt: attempt.StartedAt}, nil
}

// resume picks up the candidate's unsubmitted attempt. Drafts come from the
// Redis hash, or from the persisted answers when the hash is unavailable.
func (g *CandidateGateway) resume(ctx context.Context, testID uuid.UUID) (model.StartResult, error) {
	attempt, err := g.svc.attemptRepo.FindResumable(ctx, testID, g.candidateID)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.StartResult{}, ErrAttemptExists
	}
	if err != nil {
		return model.StartResult{}, fmt.Errorf("find resumable attempt: %w", err)
	}
	attemptID := attempt.ID.String()

	answers, err := g.svc.rdb.HGetAll(ctx, config.CacheKey.AttemptDraftKey(attemptID)).Result()
	if err != nil || len(answers) == 0 {
		if err != nil {
			g.svc.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Draft cache unavailable, loading persisted answers")
		}
		answers, err = g.svc.attemptRepo.ListAnswers(ctx, attempt.ID)
		if err != nil {
			return model.StartResult{}, fmt.Errorf("load answers: %w", err)
		}
	}

	events, err := g.svc.attemptRepo.ListDefocusEvents(ctx, attempt.ID)
	if err != nil {
		return model.StartResult{}, fmt.Errorf("load defocus events: %w", err)
	}

	g.svc.log.Info().
		Int64("candidate_id", g.candidateID).
		Str("attempt_id", attemptID).
		Int("answers", len(answers)).
		Int("defocus_count", len(events)).
		Msg("Resuming attempt")

	return model.StartResult{
		AttemptID:     attemptID,
		StartedAt:     attempt.StartedAt,
		Resumed:       true,
		Answers:       answers,
		DefocusEvents: events,
	}, nil
}

// RecordDefocusEvent queues the event; the defocus worker persists it.
func (g *CandidateGateway) RecordDefocusEvent(ctx context.Context, attemptID string, at time.Time) error {
	data, err := json.Marshal(DefocusJob{AttemptID: attemptID, OccurredAt: at.UnixMilli()})
	if err != nil {
		return err
	}
	if err := g.svc.rdb.RPush(ctx, config.WorkerKey.PersistDefocusQueue, data).Err(); err != nil {
		return fmt.Errorf("queue defocus event: %w", err)
	}
	return nil
}

// Autosave writes the Redis draft and queues the answer for persistence.
func (g *CandidateGateway) Autosave(ctx context.Context, attemptID, questionID, value string) error {
	data, err := json.Marshal(AnswerJob{AttemptID: attemptID, QuestionID: questionID, Answer: value})
	if err != nil {
		return err
	}

	pipe := g.svc.rdb.TxPipeline()
	pipe.HSet(ctx, config.CacheKey.AttemptDraftKey(attemptID), questionID, value)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("autosave: %w", err)
	}
	return nil
}

// Submit stores the submission synchronously and queues finalization.
func (g *CandidateGateway) Submit(ctx context.Context, testID string, payload model.SubmissionPayload) (model.SubmitResult, error) {
	attemptID, err := uuid.Parse(payload.AttemptID)
	if err != nil {
		return model.SubmitResult{}, ErrInvalidAttempt
	}

	outcome := payload.Outcome()
	resultID, err := g.svc.attemptRepo.SaveSubmission(ctx, attemptID, outcome, payload)
	if err != nil {
		return model.SubmitResult{}, fmt.Errorf("save submission: %w", err)
	}

	job, _ := json.Marshal(FinalizeJob{
		AttemptID:  payload.AttemptID,
		TestID:     testID,
		Status:     outcome,
		FinishedAt: time.Now().Unix(),
	})
	if err := g.svc.rdb.RPush(ctx, config.WorkerKey.FinalizeAttemptQueue, job).Err(); err != nil {
		// The submission row is stored and authoritative; only the attempt
		// status stays SUBMITTING.
		g.svc.log.Error().Err(err).Str("attempt_id", payload.AttemptID).Msg("Failed to queue finalize job")
	}

	g.svc.log.Info().
		Int64("candidate_id", g.candidateID).
		Str("attempt_id", payload.AttemptID).
		Str("status", string(outcome)).
		Str("result_id", resultID.String()).
		Msg("Submission stored")

	return model.SubmitResult{ResultID: resultID.String()}, nil
}

package service

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
)

// MonitorService builds the proctor view of a test.
type MonitorService struct {
	attemptRepo *repository.AttemptRepository
	monitorRepo *repository.MonitorRepository
	testService *TestService
	log         zerolog.Logger
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(
	attemptRepo *repository.AttemptRepository,
	monitorRepo *repository.MonitorRepository,
	testService *TestService,
	log zerolog.Logger,
) *MonitorService {
	return &MonitorService{
		attemptRepo: attemptRepo,
		monitorRepo: monitorRepo,
		testService: testService,
		log:         log.With().Str("component", "monitor_service").Logger(),
	}
}

// MonitorAttempt is one attempt row of the proctor view.
type MonitorAttempt struct {
	repository.DefocusCount
	// DraftAnswers is the number of autosaved answers; zero once finished.
	DraftAnswers int64 `json:"draft_answers"`
}

// MonitorSnapshot is the initial state sent to a proctor feed.
type MonitorSnapshot struct {
	Test         *model.SessionSpec `json:"test"`
	Attempts     []MonitorAttempt   `json:"attempts"`
	TotalDefocus int                `json:"total_defocus"`
	Active       int                `json:"active"`
}

// GetSnapshot loads the test, the per-attempt defocus counts and the live
// draft counts concurrently. The test is required; the rest is best effort.
func (s *MonitorService) GetSnapshot(ctx context.Context, testID uuid.UUID) (*MonitorSnapshot, error) {
	var (
		spec      *model.SessionSpec
		counts    []repository.DefocusCount
		drafts    map[uuid.UUID]int64
		specErr   error
		countsErr error
		wg        sync.WaitGroup
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		spec, specErr = s.testService.GetSessionSpec(ctx, testID)
	}()
	go func() {
		defer wg.Done()
		counts, countsErr = s.attemptRepo.ListDefocusCounts(ctx, testID)
	}()
	go func() {
		defer wg.Done()
		ids, err := s.monitorRepo.GetActiveAttemptIDs(ctx, testID)
		if err == nil {
			drafts, err = s.monitorRepo.GetDraftCounts(ctx, ids)
		}
		if err != nil {
			s.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Draft counts unavailable")
		}
	}()
	wg.Wait()

	if specErr != nil {
		return nil, specErr
	}
	if countsErr != nil {
		s.log.Warn().Err(countsErr).Str("test_id", testID.String()).Msg("Defocus counts unavailable")
	}

	snapshot := &MonitorSnapshot{Test: spec, Attempts: make([]MonitorAttempt, 0, len(counts))}
	for _, c := range counts {
		snapshot.Attempts = append(snapshot.Attempts, MonitorAttempt{
			DefocusCount: c,
			DraftAnswers: drafts[c.AttemptID],
		})
		snapshot.TotalDefocus += c.Count
		if c.Status == model.AttemptStatusActive {
			snapshot.Active++
		}
	}
	return snapshot, nil
}

// Command seed-test publishes a demo test with generated question ids.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/logger"
)

func main() {
	var (
		title     string
		duration  int
		questions int
	)
	flag.StringVar(&title, "title", "Ujian Coba", "Test title")
	flag.IntVar(&duration, "duration", 3600, "Duration in seconds")
	flag.IntVar(&questions, "questions", 40, "Number of questions")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, "seed-test")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if duration <= 0 || questions <= 0 {
		log.Fatal().Int("duration", duration).Int("questions", questions).Msg("Duration and question count must be positive")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	fmt.Printf("=== Seeding test %q (%d questions, %ds) ===\n", title, questions, duration)

	testID := uuid.New()
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO tests (id, title, duration_seconds, published) VALUES ($1, $2, $3, TRUE)`,
			testID, title, duration,
		); err != nil {
			return fmt.Errorf("insert test: %w", err)
		}

		rows := make([][]interface{}, questions)
		for i := range rows {
			rows[i] = []interface{}{testID, fmt.Sprintf("q%03d", i+1), i + 1}
		}
		n, err := tx.CopyFrom(ctx,
			pgx.Identifier{"test_questions"},
			[]string{"test_id", "question_id", "position"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy questions: %w", err)
		}
		log.Info().Int64("rows", n).Msg("Questions inserted")
		return nil
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Seed failed")
	}

	fmt.Printf("\nSeed completed! Test ID: %s\n", testID)
}

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nzvengeance/flight-logbook/internal/database"
	"github.com/nzvengeance/flight-logbook/internal/logbook"
	"github.com/nzvengeance/flight-logbook/internal/models"
)

// Importer wraps a bulk load in an import run record so every run, whether
// started from the API, the inbox or the migrate command, leaves a trace.
type Importer struct {
	db            *database.DB
	progressEvery int
}

func NewImporter(db *database.DB, progressEvery int) *Importer {
	return &Importer{db: db, progressEvery: progressEvery}
}

// Request describes one import.
type Request struct {
	Source       string // shown in the run history, e.g. "upload:logbook.csv"
	UserID       int64  // user that started the run; 0 for operator runs
	DefaultOwner int64  // owner for records without an owner key
	Adapter      *logbook.Adapter
	Records      logbook.RecordSource
}

// Import drains req.Records through a fresh loader. The returned run reflects
// the final state even when the loader aborted.
func (im *Importer) Import(ctx context.Context, req Request) (*models.ImportRun, *logbook.Result, error) {
	run := &models.ImportRun{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Source:    req.Source,
		Status:    models.ImportStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := im.db.InsertImportRun(ctx, run); err != nil {
		return nil, nil, fmt.Errorf("recording import run: %w", err)
	}

	logger := log.With().Str("run", run.ID).Str("source", req.Source).Logger()
	logger.Info().Msg("import starting")

	loader := logbook.NewLoader(im.db, im.db, req.Adapter,
		logbook.WithProgressEvery(im.progressEvery),
		logbook.WithRunID(run.ID),
	)
	res, runErr := loader.Run(ctx, req.Records, req.DefaultOwner)
	if res == nil {
		res = &logbook.Result{State: logbook.StateAborted, Failures: []logbook.FailedRecord{}}
	}

	run.Status = models.ImportStatusCompleted
	if res.State == logbook.StateAborted {
		run.Status = models.ImportStatusAborted
	}
	run.Succeeded = res.Succeeded
	run.Failed = res.Failed
	if runErr != nil {
		run.ErrorMessage = runErr.Error()
	}

	// The run row is closed even if the caller's context was cancelled.
	finishCtx := context.WithoutCancel(ctx)
	if err := im.db.FinishImportRun(finishCtx, run.ID, run.Status, run.Succeeded, run.Failed, run.ErrorMessage); err != nil {
		logger.Error().Err(err).Msg("failed to close import run")
	}
	completed := time.Now().UTC()
	run.CompletedAt = &completed

	logger.Info().
		Str("status", run.Status).
		Int("succeeded", run.Succeeded).
		Int("failed", run.Failed).
		Msg("import finished")
	return run, res, runErr
}

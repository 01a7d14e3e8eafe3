package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	gosync "sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/nzvengeance/flight-logbook/internal/config"
	"github.com/nzvengeance/flight-logbook/internal/database"
	"github.com/nzvengeance/flight-logbook/internal/logbook"
	"github.com/nzvengeance/flight-logbook/internal/source"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// Scheduler imports legacy export files dropped into the inbox directory on
// a cron schedule.
type Scheduler struct {
	db       *database.DB
	importer *Importer
	cfg      *config.Config
	cron     *cron.Cron

	// one inbox scan at a time, whether from cron or a manual trigger
	scanMu gosync.Mutex
}

func NewScheduler(db *database.DB, importer *Importer, cfg *config.Config) *Scheduler {
	return &Scheduler{
		db:       db,
		importer: importer,
		cfg:      cfg,
		cron:     cron.New(),
	}
}

// Importer exposes the run wrapper so the API shares it.
func (s *Scheduler) Importer() *Importer {
	return s.importer
}

// Start begins the scheduled inbox import
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.cfg.ImportSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		if _, err := s.ScanInbox(ctx); err != nil {
			log.Error().Err(err).Msg("scheduled inbox import failed")
		}
	})
	if err != nil {
		return fmt.Errorf("adding cron job: %w", err)
	}

	s.cron.Start()
	log.Info().Str("schedule", s.cfg.ImportSchedule).Str("inbox", s.cfg.InboxDir).Msg("import scheduler started")

	if s.cfg.ImportOnStartup {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
			defer cancel()

			log.Info().Msg("running startup inbox import")
			if _, err := s.ScanInbox(ctx); err != nil {
				log.Error().Err(err).Msg("startup inbox import failed")
			}
		}()
	}

	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("import scheduler stopped")
}

// ScanInbox imports every *.csv file in the inbox in name order and
// moves each one to processed/ or failed/. It returns the number of files
// handled.
func (s *Scheduler) ScanInbox(ctx context.Context) (int, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	files, err := filepath.Glob(filepath.Join(s.cfg.InboxDir, "*.csv"))
	if err != nil {
		return 0, fmt.Errorf("listing inbox: %w", err)
	}
	if len(files) == 0 {
		log.Debug().Str("inbox", s.cfg.InboxDir).Msg("inbox empty")
		return 0, nil
	}
	sort.Strings(files)

	var defaultOwner int64
	if s.cfg.InboxOwner != "" {
		defaultOwner, err = s.db.FindOrCreateOwner(ctx, s.cfg.InboxOwner)
		if err != nil {
			return 0, fmt.Errorf("resolving inbox owner: %w", err)
		}
	}

	handled := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return handled, err
		}

		dest := processedDir
		res, err := s.importFile(ctx, path, defaultOwner)
		if err != nil {
			log.Error().Err(err).Str("file", path).Msg("inbox file import failed")
			dest = failedDir
		}

		moved, moveErr := moveTo(path, dest)
		if moveErr != nil {
			log.Error().Err(moveErr).Str("file", path).Msg("failed to move inbox file")
			handled++
			continue
		}
		if res != nil && len(res.Failures) > 0 {
			if err := writeFailures(moved, res.Failures); err != nil {
				log.Warn().Err(err).Str("file", moved).Msg("failed to write failure report")
			}
		}
		handled++
	}

	log.Info().Int("files", handled).Msg("inbox import complete")
	return handled, nil
}

func (s *Scheduler) importFile(ctx context.Context, path string, defaultOwner int64) (*logbook.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	src, err := source.NewLegacy(f)
	if err != nil {
		return nil, err
	}

	_, res, err := s.importer.Import(ctx, Request{
		Source:       "inbox:" + filepath.Base(path),
		DefaultOwner: defaultOwner,
		Adapter:      logbook.NewLegacyAdapter(),
		Records:      src,
	})
	return res, err
}

// moveTo moves path into the named subdirectory next to it and returns the
// new path. An existing file of the same name gets a timestamp suffix.
func moveTo(path, sub string) (string, error) {
	dir := filepath.Join(filepath.Dir(path), sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := filepath.Base(path)
	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(name)
		dest = filepath.Join(dir, fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), time.Now().UnixNano(), ext))
	}
	return dest, os.Rename(path, dest)
}

// writeFailures stores rejected records next to the moved file as
// <file>.failures.json for operator review.
func writeFailures(path string, failures []logbook.FailedRecord) error {
	data, err := json.MarshalIndent(failures, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path+".failures.json", data, 0o644)
}

package sync

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nzvengeance/flight-logbook/internal/config"
	"github.com/nzvengeance/flight-logbook/internal/database"
	"github.com/nzvengeance/flight-logbook/internal/logbook"
	"github.com/nzvengeance/flight-logbook/internal/models"
)

const legacyExport = `date,aircraft_type,registration,origin,destinations,hour_breakdown,mission_type,pilot_role,landings,user_id
2024-03-01,UH-60M,20-1234,KDCA,"[""KBWI""]","[{""mode"":""D"",""duration"":1.5}]",Training,PI,2,pilot-a
,UH-60M,20-1234,KDCA,,,,,,pilot-a
2024-03-02,AH-64D (F),,KBWI,,"[{""mode"":""NG"",""duration"":"" 0.8""}]",,PC,,
`

func newTestScheduler(t *testing.T, inboxOwner string) (*Scheduler, *database.DB, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		DBDriver:       "sqlite",
		DBPath:         filepath.Join(dir, "logbook.db"),
		InboxDir:       filepath.Join(dir, "inbox"),
		InboxOwner:     inboxOwner,
		ImportSchedule: "@every 1h",
	}
	require.NoError(t, os.MkdirAll(cfg.InboxDir, 0o755))

	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewScheduler(db, NewImporter(db, 10), cfg), db, cfg.InboxDir
}

func TestScanInboxImportsAndMovesFiles(t *testing.T) {
	s, db, inbox := newTestScheduler(t, "inbox-owner")
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "export.csv"), []byte(legacyExport), 0o644))

	n, err := s.ScanInbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.NoFileExists(t, filepath.Join(inbox, "export.csv"))
	assert.FileExists(t, filepath.Join(inbox, processedDir, "export.csv"))

	report, err := os.ReadFile(filepath.Join(inbox, processedDir, "export.csv.failures.json"))
	require.NoError(t, err)
	var failures []logbook.FailedRecord
	require.NoError(t, json.Unmarshal(report, &failures))
	require.Len(t, failures, 1)
	assert.Equal(t, 2, failures[0].Index)

	ownerA, err := db.FindOrCreateOwner(ctx, "pilot-a")
	require.NoError(t, err)
	flights, err := db.ListFlights(ctx, ownerA)
	require.NoError(t, err)
	require.Len(t, flights, 1)
	assert.Equal(t, "KBWI", flights[0].Arrival)
	assert.InDelta(t, 1.5, flights[0].TotalFlightHours, 1e-9)
	assert.NotEmpty(t, flights[0].ImportRunID)

	inboxOwner, err := db.FindOrCreateOwner(ctx, "inbox-owner")
	require.NoError(t, err)
	flights, err = db.ListFlights(ctx, inboxOwner)
	require.NoError(t, err)
	require.Len(t, flights, 1)
	assert.Equal(t, "AH-64D", flights[0].AircraftType)
	assert.InDelta(t, 0.8, flights[0].TotalFlightHours, 1e-9)

	runs, err := db.ListImportRuns(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.ImportStatusCompleted, runs[0].Status)
	assert.Equal(t, "inbox:export.csv", runs[0].Source)
	assert.Equal(t, 2, runs[0].Succeeded)
	assert.Equal(t, 1, runs[0].Failed)
}

func TestScanInboxWithoutOwnerFailsOwnerlessRows(t *testing.T) {
	s, db, inbox := newTestScheduler(t, "")
	ctx := context.Background()
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "export.csv"), []byte(legacyExport), 0o644))

	_, err := s.ScanInbox(ctx)
	require.NoError(t, err)

	runs, err := db.ListImportRuns(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 1, runs[0].Succeeded)
	assert.Equal(t, 2, runs[0].Failed)
}

func TestScanInboxEmpty(t *testing.T) {
	s, _, _ := newTestScheduler(t, "")
	n, err := s.ScanInbox(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMoveToAvoidsOverwrite(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		path := filepath.Join(dir, "same.csv")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		_, err := moveTo(path, processedDir)
		require.NoError(t, err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, processedDir))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStartStop(t *testing.T) {
	s, _, _ := newTestScheduler(t, "")
	require.NoError(t, s.Start())
	s.Stop()
}

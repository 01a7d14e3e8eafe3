package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nzvengeance/flight-logbook/internal/auth"
	"github.com/nzvengeance/flight-logbook/internal/config"
	"github.com/nzvengeance/flight-logbook/internal/database"
	"github.com/nzvengeance/flight-logbook/internal/logbook"
	"github.com/nzvengeance/flight-logbook/internal/models"
)

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", filepath.Join(dir, "logbook.db"))
	t.Setenv("JWT_SECRET", "s3cret")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&out)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLegacyCommand(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "export.csv")
	data := "date,aircraft_type,hour_breakdown,user_id\n" +
		`2024-02-03,UH-60M,"[{""mode"":""D"",""duration"":2}]",pilot-1` + "\n" +
		`2024-02-04,UH-60M,"[{""mode"":""N"",""duration"":1}]",` + "\n" +
		`,UH-60M,,pilot-1` + "\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	out, err := execute(t, "legacy", "--file", path, "--owner", "ops")
	require.NoError(t, err)

	var resp struct {
		Run    models.ImportRun `json:"run"`
		Result logbook.Result   `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	assert.Equal(t, models.ImportStatusCompleted, resp.Run.Status)
	assert.Equal(t, 2, resp.Result.Succeeded)
	assert.Equal(t, 1, resp.Result.Failed)

	cfg, err := config.Load()
	require.NoError(t, err)
	db, err := database.New(cfg)
	require.NoError(t, err)
	defer db.Close()

	pilot, err := db.GetUserByKey(context.Background(), "pilot-1")
	require.NoError(t, err)
	assert.Equal(t, database.PlaceholderEmail("pilot-1"), pilot.Email)
	flights, err := db.ListFlights(context.Background(), pilot.ID)
	require.NoError(t, err)
	assert.Len(t, flights, 1)
}

func TestCSVCommandRejectsIncompleteMapping(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "logbook.csv")
	require.NoError(t, os.WriteFile(path, []byte("Date,Remarks\n2024-01-01,hello\n"), 0o644))

	_, err := execute(t, "csv", "--file", path, "--owner", "ops")
	assert.ErrorIs(t, err, logbook.ErrMappingIncomplete)
}

func TestPreviewCommand(t *testing.T) {
	dir := setupEnv(t)
	path := filepath.Join(dir, "logbook.csv")
	data := "Date,Aircraft,Total Hours,Pilot Role\n2024-01-01,UH-60M,1:30,PC\n2024-01-02,UH-60M,2,PC\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	out, err := execute(t, "preview", "--file", path, "--rows", "1")
	require.NoError(t, err)

	var resp struct {
		Rows []previewRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Len(t, resp.Rows, 1)
	require.NotNil(t, resp.Rows[0].Flight)
	assert.InDelta(t, 1.5, resp.Rows[0].Flight.TotalFlightHours, 1e-9)
}

func TestTokenCommand(t *testing.T) {
	setupEnv(t)
	out, err := execute(t, "token", "--subject", "pilot-1", "--email", "p@example.com")
	require.NoError(t, err)

	claims, err := auth.NewVerifier("s3cret").Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "pilot-1", claims.Subject)
	assert.Equal(t, "p@example.com", claims.Email)
}

func TestBaaSCommandNeedsBaseURL(t *testing.T) {
	setupEnv(t)
	t.Setenv("BAAS_BASE_URL", "")
	_, err := execute(t, "baas")
	assert.ErrorContains(t, err, "BAAS_BASE_URL")
}

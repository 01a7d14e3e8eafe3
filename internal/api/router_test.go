package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nzvengeance/flight-logbook/internal/auth"
	"github.com/nzvengeance/flight-logbook/internal/config"
	"github.com/nzvengeance/flight-logbook/internal/database"
	"github.com/nzvengeance/flight-logbook/internal/logbook"
	"github.com/nzvengeance/flight-logbook/internal/models"
	"github.com/nzvengeance/flight-logbook/internal/prefs"
	syncsvc "github.com/nzvengeance/flight-logbook/internal/sync"
)

const testSecret = "s3cret"

func newTestServer(t *testing.T, authDisabled bool) (http.Handler, *database.DB) {
	t.Helper()
	return newTestServerWith(t, func(cfg *config.Config) { cfg.AuthDisabled = authDisabled })
}

func newTestServerWith(t *testing.T, configure func(*config.Config)) (http.Handler, *database.DB) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		BaseURL:        "http://localhost:8080",
		StaticDir:      filepath.Join(dir, "missing"),
		DBDriver:       "sqlite",
		DBPath:         filepath.Join(dir, "logbook.db"),
		JWTSecret:      testSecret,
		DevUserKey:     "local",
		PrefsBackend:   "db",
		InboxDir:       filepath.Join(dir, "inbox"),
		ImportSchedule: "@every 1h",
	}
	configure(cfg)
	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	scheduler := syncsvc.NewScheduler(db, syncsvc.NewImporter(db, 100), cfg)
	return NewServer(db, cfg, scheduler, prefs.NewDBStore(db)).Router(), db
}

func do(t *testing.T, h http.Handler, method, path string, body io.Reader, contentType, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, h http.Handler, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return do(t, h, method, path, body, "application/json", "")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func multipartBody(t *testing.T, filename, content string, fields map[string]string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func sampleFlightPayload() map[string]any {
	return map[string]any{
		"date":         "2024-04-02",
		"aircraftType": "UH-60M",
		"origin":       "KDCA",
		"destinations": []string{"KBWI", "KJFK"},
		"hourBreakdown": []map[string]any{
			{"mode": "D", "duration": 1.5, "seatPosition": "L"},
			{"mode": "N", "duration": 0.5},
		},
		"totalFlightHours":  99,
		"landings":          1,
		"dayLandings":       1,
		"nightLandings":     2,
		"pilotRole":         "PI",
		"customMissionType": "Hoist",
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestServer(t, false)
	rec := do(t, h, http.MethodGet, "/api/health", nil, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/status", nil, "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"import_schedule":"@every 1h"`)
}

func TestFlightCRUD(t *testing.T) {
	h, _ := newTestServer(t, true)

	rec := doJSON(t, h, http.MethodPost, "/api/flights", sampleFlightPayload())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.Flight](t, rec)
	assert.NotZero(t, created.ID)
	assert.InDelta(t, 2.0, created.TotalFlightHours, 1e-9, "client total is ignored")
	assert.Equal(t, "KJFK", created.Arrival)
	assert.Equal(t, 3, created.AllLandings)

	path := fmt.Sprintf("/api/flights/%d", created.ID)
	rec = doJSON(t, h, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	update := sampleFlightPayload()
	update["destinations"] = []string{"KBWI"}
	update["hourBreakdown"] = []map[string]any{{"mode": "NG", "duration": 0.7}}
	update["nightLandings"] = 0
	rec = doJSON(t, h, http.MethodPut, path, update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.Flight](t, rec)
	assert.Equal(t, "KBWI", updated.Arrival)
	assert.InDelta(t, 0.7, updated.TotalFlightHours, 1e-9)
	assert.Equal(t, 1, updated.AllLandings)

	rec = doJSON(t, h, http.MethodGet, "/api/preferences", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[models.Preferences](t, rec)
	assert.Equal(t, []string{"Hoist"}, p.CustomMissionTypes)

	rec = doJSON(t, h, http.MethodGet, "/api/flights/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[models.LogbookSummary](t, rec)
	assert.Equal(t, 1, summary.Flights)

	rec = doJSON(t, h, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doJSON(t, h, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = doJSON(t, h, http.MethodPut, path, update)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateFlightValidation(t *testing.T) {
	h, _ := newTestServer(t, true)

	payload := sampleFlightPayload()
	payload["hourBreakdown"] = []map[string]any{{"mode": "XX", "duration": -1}}
	rec := doJSON(t, h, http.MethodPost, "/api/flights", payload)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[struct {
		Problems []string `json:"problems"`
	}](t, rec)
	assert.Len(t, body.Problems, 2)

	rec = do(t, h, http.MethodPost, "/api/flights", strings.NewReader("{"), "application/json", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/flights/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateFlightStoresCanonicalDate(t *testing.T) {
	h, _ := newTestServer(t, true)

	payload := sampleFlightPayload()
	payload["date"] = "12/31/2024"
	rec := doJSON(t, h, http.MethodPost, "/api/flights", payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "2024-12-31", decode[models.Flight](t, rec).Date)

	payload = sampleFlightPayload()
	payload["date"] = "2024-02-01"
	rec = doJSON(t, h, http.MethodPost, "/api/flights", payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	earlier := decode[models.Flight](t, rec)

	payload["date"] = "1/5/2025"
	rec = doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/flights/%d", earlier.ID), payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2025-01-05", decode[models.Flight](t, rec).Date)

	rec = doJSON(t, h, http.MethodGet, "/api/flights", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	flights := decode[[]models.Flight](t, rec)
	require.Len(t, flights, 2)
	assert.Equal(t, "2025-01-05", flights[0].Date)
	assert.Equal(t, "2024-12-31", flights[1].Date)
}

func TestFlightsAreOwnerScoped(t *testing.T) {
	h, _ := newTestServer(t, false)
	v := auth.NewVerifier(testSecret)
	alice, err := v.Sign("alice", "alice@example.com", "Alice", time.Hour)
	require.NoError(t, err)
	bob, err := v.Sign("bob", "", "", time.Hour)
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/api/flights", nil, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	data, err := json.Marshal(sampleFlightPayload())
	require.NoError(t, err)
	rec = do(t, h, http.MethodPost, "/api/flights", bytes.NewReader(data), "application/json", alice)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.Flight](t, rec)

	rec = do(t, h, http.MethodGet, fmt.Sprintf("/api/flights/%d", created.ID), nil, "", bob)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, h, http.MethodDelete, fmt.Sprintf("/api/flights/%d", created.ID), nil, "", bob)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/flights", nil, "", bob)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.Flight](t, rec))

	rec = do(t, h, http.MethodGet, "/api/flights", nil, "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Flight](t, rec), 1)
}

const uploadCSV = "Date,Aircraft,Total Hours,Pilot Role,Origin,Destination\n" +
	"2024-01-02,AH-64D (F),1.5,PI,KDCA,KBWI\n" +
	",UH-60M,1,PI,,\n"

func TestImportFields(t *testing.T) {
	h, _ := newTestServer(t, true)
	rec := doJSON(t, h, http.MethodGet, "/api/import/fields", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]logbook.FieldSpec](t, rec), len(logbook.Catalog()))
}

func TestImportPreview(t *testing.T) {
	h, _ := newTestServer(t, true)

	body, ct := multipartBody(t, "logbook.csv", uploadCSV, nil)
	rec := do(t, h, http.MethodPost, "/api/import/preview", body, ct, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decode[previewResponse](t, rec)
	assert.Equal(t, "Total Hours", preview.Suggested[logbook.FieldTotalHours])
	assert.Empty(t, preview.Missing)
	require.Len(t, preview.Rows, 2)
	require.NotNil(t, preview.Rows[0].Flight)
	assert.Equal(t, "AH-64D", preview.Rows[0].Flight.AircraftType)
	assert.Equal(t, models.SeatFront, preview.Rows[0].Flight.HourBreakdown[0].SeatPosition)
	assert.Equal(t, "KBWI", preview.Rows[0].Flight.Arrival)
	assert.Contains(t, preview.Rows[1].Error, "missing date")

	body, ct = multipartBody(t, "logbook.csv", uploadCSV, map[string]string{"mapping": `{"date":"Date"}`})
	rec = do(t, h, http.MethodPost, "/api/import/preview", body, ct, "")
	require.Equal(t, http.StatusOK, rec.Code)
	preview = decode[previewResponse](t, rec)
	assert.ElementsMatch(t, []logbook.Field{logbook.FieldAircraft, logbook.FieldTotalHours, logbook.FieldPilotRole}, preview.Missing)
	assert.Empty(t, preview.Rows)

	rec = do(t, h, http.MethodPost, "/api/import/preview", strings.NewReader("x"), "text/plain", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportCSV(t *testing.T) {
	h, db := newTestServer(t, true)

	body, ct := multipartBody(t, "logbook.csv", uploadCSV, nil)
	rec := do(t, h, http.MethodPost, "/api/import/csv", body, ct, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[struct {
		Run    models.ImportRun `json:"run"`
		Result logbook.Result   `json:"result"`
	}](t, rec)
	assert.Equal(t, models.ImportStatusCompleted, resp.Run.Status)
	assert.Equal(t, 1, resp.Result.Succeeded)
	assert.Equal(t, 1, resp.Result.Failed)
	require.Len(t, resp.Result.Failures, 1)
	assert.Equal(t, 2, resp.Result.Failures[0].Index)

	rec = doJSON(t, h, http.MethodGet, "/api/flights", nil)
	flights := decode[[]models.Flight](t, rec)
	require.Len(t, flights, 1)
	assert.Equal(t, resp.Run.ID, flights[0].ImportRunID)

	rec = doJSON(t, h, http.MethodGet, "/api/import/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	runs := decode[[]models.ImportRun](t, rec)
	require.Len(t, runs, 1)
	assert.Equal(t, "upload:logbook.csv", runs[0].Source)

	body, ct = multipartBody(t, "again.csv", uploadCSV, nil)
	rec = do(t, h, http.MethodPost, "/api/import/csv", body, ct, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	stats, err := db.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Flights)
}

func TestImportCSVIncompleteMapping(t *testing.T) {
	h, db := newTestServer(t, true)

	body, ct := multipartBody(t, "logbook.csv", uploadCSV, map[string]string{"mapping": `{"date":"Date","aircraft":"Aircraft"}`})
	rec := do(t, h, http.MethodPost, "/api/import/csv", body, ct, "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[struct {
		Missing []logbook.Field `json:"missing"`
	}](t, rec)
	assert.ElementsMatch(t, []logbook.Field{logbook.FieldTotalHours, logbook.FieldPilotRole}, resp.Missing)

	runs, err := db.ListImportRuns(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, runs, "no run is started for a rejected mapping")
}

func TestInboxImportNeedsOperator(t *testing.T) {
	h, _ := newTestServerWith(t, func(cfg *config.Config) { cfg.OperatorKeys = []string{"ops"} })
	v := auth.NewVerifier(testSecret)
	pilot, err := v.Sign("pilot-1", "", "", time.Hour)
	require.NoError(t, err)
	ops, err := v.Sign("ops", "", "", time.Hour)
	require.NoError(t, err)

	rec := do(t, h, http.MethodPost, "/api/import/inbox", nil, "", pilot)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/import/inbox", nil, "", ops)
	assert.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
}

func TestImportLegacyIgnoresOwnerColumn(t *testing.T) {
	h, db := newTestServer(t, true)

	legacy := "date,aircraft_type,hour_breakdown,user_id\n" +
		`2024-02-03,UH-60M,"[{""mode"":""D"",""duration"":2}]",someone-else` + "\n"
	body, ct := multipartBody(t, "export.csv", legacy, map[string]string{"format": "legacy"})
	rec := do(t, h, http.MethodPost, "/api/import/csv", body, ct, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/flights", nil)
	flights := decode[[]models.Flight](t, rec)
	require.Len(t, flights, 1)
	assert.InDelta(t, 2.0, flights[0].TotalFlightHours, 1e-9)

	_, err := db.GetUserByKey(context.Background(), "someone-else")
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestExportAndPublicLogbook(t *testing.T) {
	h, _ := newTestServer(t, true)

	rec := doJSON(t, h, http.MethodPost, "/api/flights", sampleFlightPayload())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/export/logbook.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "2024-04-02,UH-60M,"))

	me := decode[models.User](t, doJSON(t, h, http.MethodGet, "/api/me", nil))
	public := fmt.Sprintf("/api/public/%d/logbook.csv", me.ID)

	rec = doJSON(t, h, http.MethodGet, public, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodPut, "/api/preferences", map[string]any{"publicLogbook": true})
	require.Equal(t, http.StatusOK, rec.Code)
	saved := decode[models.Preferences](t, rec)
	assert.True(t, saved.PublicLogbook)
	assert.Equal(t, []string{}, saved.CustomAircraftTypes)

	rec = doJSON(t, h, http.MethodGet, public, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2024-04-02")

	rec = doJSON(t, h, http.MethodGet, "/api/public/0/logbook.csv", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroups(t *testing.T) {
	h, _ := newTestServer(t, true)

	rec := doJSON(t, h, http.MethodPost, "/api/groups", map[string]any{"name": "  Alpha Flight "})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	g := decode[models.FlightGroup](t, rec)
	assert.NotEmpty(t, g.IDCode)
	assert.Equal(t, "Alpha Flight", g.Name)
	assert.Equal(t, "local", g.CreatedByID)

	rec = doJSON(t, h, http.MethodPost, "/api/groups", map[string]any{"idCode": g.IDCode, "name": "Alpha", "members": []string{"a@example.com"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/api/groups", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decode[[]models.FlightGroup](t, rec)
	require.Len(t, groups, 1)
	assert.Equal(t, "Alpha", groups[0].Name)
	assert.Equal(t, []string{"a@example.com"}, groups[0].Members)

	rec = doJSON(t, h, http.MethodPost, "/api/groups", map[string]any{"name": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGroupsOnlyChangedByCreatorOrAdmin(t *testing.T) {
	h, _ := newTestServer(t, false)
	v := auth.NewVerifier(testSecret)
	alice, err := v.Sign("alice", "alice@example.com", "Alice", time.Hour)
	require.NoError(t, err)
	mallory, err := v.Sign("mallory", "m@example.org", "Mallory", time.Hour)
	require.NoError(t, err)
	lead, err := v.Sign("lead", "Lead@Example.com", "Lead", time.Hour)
	require.NoError(t, err)

	post := func(token string, payload map[string]any) *httptest.ResponseRecorder {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		return do(t, h, http.MethodPost, "/api/groups", bytes.NewReader(data), "application/json", token)
	}

	rec := post(alice, map[string]any{"name": "Alpha", "createdById": "someone-else"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	g := decode[models.FlightGroup](t, rec)
	assert.Equal(t, "alice", g.CreatedByID)

	rec = post(mallory, map[string]any{"idCode": g.IDCode, "name": "pwned", "adminEmail": "m@example.org", "members": []string{"m@example.org"}})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = post(alice, map[string]any{"idCode": g.IDCode, "name": "Alpha", "adminEmail": "lead@example.com", "createdById": "mallory"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "alice", decode[models.FlightGroup](t, rec).CreatedByID)

	rec = post(lead, map[string]any{"idCode": g.IDCode, "name": "Alpha Flight", "members": []string{"lead@example.com"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/groups", nil, "", alice)
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decode[[]models.FlightGroup](t, rec)
	require.Len(t, groups, 1)
	assert.Equal(t, "Alpha Flight", groups[0].Name)
	assert.Equal(t, "alice", groups[0].CreatedByID)
	assert.Equal(t, "Alice", groups[0].CreatedByName)
	assert.Equal(t, "lead@example.com", groups[0].AdminEmail)
	assert.Equal(t, []string{"lead@example.com"}, groups[0].Members)
}

func TestServeFrontend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>logbook</html>"), 0o644))

	cfg := &config.Config{
		BaseURL:   "http://localhost:8080",
		StaticDir: dir,
		DBDriver:  "sqlite",
		DBPath:    filepath.Join(t.TempDir(), "logbook.db"),
	}
	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := NewServer(db, cfg, nil, prefs.NewDBStore(db)).Router()
	rec := do(t, h, http.MethodGet, "/flights/12", nil, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "logbook")
}

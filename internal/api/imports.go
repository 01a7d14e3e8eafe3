package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nzvengeance/flight-logbook/internal/logbook"
	"github.com/nzvengeance/flight-logbook/internal/models"
	"github.com/nzvengeance/flight-logbook/internal/source"
	syncsvc "github.com/nzvengeance/flight-logbook/internal/sync"
)

const (
	maxUploadBytes = 32 << 20
	previewRows    = 5
)

// upload is a CSV file posted as multipart form data, with an optional
// "mapping" JSON field and "format=legacy" for legacy exports.
type upload struct {
	name    string
	data    []byte
	legacy  bool
	mapping logbook.Mapping
	headers []string
}

func parseUpload(w http.ResponseWriter, r *http.Request) (*upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid upload: "+err.Error())
		return nil, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file")
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read file")
		return nil, false
	}

	u := &upload{name: header.Filename, data: data, legacy: r.FormValue("format") == "legacy"}
	if raw := r.FormValue("mapping"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &u.mapping); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid mapping JSON: "+err.Error())
			return nil, false
		}
	}

	csvSrc, err := source.NewCSV(bytes.NewReader(data))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid CSV: "+err.Error())
		return nil, false
	}
	u.headers = csvSrc.Headers()
	return u, true
}

// adapter builds the record adapter for the upload. Without an explicit
// mapping the suggested one is used. Owner columns are always ignored: an
// upload only ever creates flights for the caller.
func (u *upload) adapter() (*logbook.Adapter, error) {
	if u.legacy {
		return logbook.NewLegacyAdapter().WithoutOwner(), nil
	}
	a, err := logbook.NewAdapter(u.effectiveMapping())
	if err != nil {
		return nil, err
	}
	return a.WithoutOwner(), nil
}

func (u *upload) effectiveMapping() logbook.Mapping {
	if u.legacy {
		return logbook.LegacyMapping
	}
	if u.mapping != nil {
		return u.mapping
	}
	return logbook.SuggestMapping(u.headers)
}

func (u *upload) records() (logbook.RecordSource, error) {
	if u.legacy {
		return source.NewLegacy(bytes.NewReader(u.data))
	}
	return source.NewCSV(bytes.NewReader(u.data))
}

func writeMappingError(w http.ResponseWriter, err error) bool {
	var mi *logbook.MappingIncompleteError
	if !errors.As(err, &mi) {
		return false
	}
	writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
		"error":   err.Error(),
		"missing": mi.Missing,
	})
	return true
}

// --- Import ---

func (s *Server) listImportFields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, logbook.Catalog())
}

type previewRow struct {
	Index  int            `json:"index"`
	Raw    logbook.Record `json:"raw"`
	Flight *models.Flight `json:"flight,omitempty"`
	Error  string         `json:"error,omitempty"`
}

type previewResponse struct {
	Headers   []string        `json:"headers"`
	Suggested logbook.Mapping `json:"suggested"`
	Mapping   logbook.Mapping `json:"mapping"`
	Missing   []logbook.Field `json:"missing"`
	Rows      []previewRow    `json:"rows"`
}

// previewImport normalizes the first rows without storing anything so the
// user can check a mapping before running the import.
func (s *Server) previewImport(w http.ResponseWriter, r *http.Request) {
	u, ok := parseUpload(w, r)
	if !ok {
		return
	}

	resp := previewResponse{
		Headers:   u.headers,
		Suggested: logbook.SuggestMapping(u.headers),
		Mapping:   u.effectiveMapping(),
		Missing:   []logbook.Field{},
		Rows:      []previewRow{},
	}

	adapter, err := u.adapter()
	if err != nil {
		var mi *logbook.MappingIncompleteError
		if !errors.As(err, &mi) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp.Missing = mi.Missing
		writeJSON(w, http.StatusOK, resp)
		return
	}

	src, err := u.records()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid CSV: "+err.Error())
		return
	}
	raws, err := source.Take(r.Context(), src, previewRows)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid CSV: "+err.Error())
		return
	}

	owner := currentUser(r).ID
	for i, raw := range raws {
		row := previewRow{Index: i + 1, Raw: raw}
		rec, err := adapter.Adapt(raw)
		if err == nil {
			row.Flight, err = logbook.Normalize(rec, owner)
		}
		if err != nil {
			row.Error = err.Error()
		}
		resp.Rows = append(resp.Rows, row)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) importCSV(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	u, ok := parseUpload(w, r)
	if !ok {
		return
	}

	adapter, err := u.adapter()
	if err != nil {
		if !writeMappingError(w, err) {
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	src, err := u.records()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid CSV: "+err.Error())
		return
	}

	run, res, err := s.scheduler.Importer().Import(r.Context(), syncsvc.Request{
		Source:       "upload:" + u.name,
		UserID:       user.ID,
		DefaultOwner: user.ID,
		Adapter:      adapter,
		Records:      src,
	})
	if run == nil {
		writeError(w, http.StatusInternalServerError, "Failed to start import: "+err.Error())
		return
	}

	status := http.StatusOK
	body := map[string]interface{}{"run": run, "result": res}
	if err != nil {
		body["error"] = err.Error()
		status = http.StatusInternalServerError
		if errors.Is(err, logbook.ErrSourceRead) {
			status = http.StatusBadRequest
		}
	}
	writeJSON(w, status, body)
}

// triggerInboxImport runs the scheduled inbox scan now. Operators only, since
// rows without an owner go to the inbox owner.
func (s *Server) triggerInboxImport(w http.ResponseWriter, r *http.Request) {
	log.Info().Str("user", currentUser(r).ExternalKey).Msg("inbox import requested")
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := s.scheduler.ScanInbox(ctx); err != nil {
			log.Error().Err(err).Msg("manual inbox import failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Inbox import started",
	})
}

func (s *Server) listImportRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.db.ListImportRuns(r.Context(), currentUser(r).ID, limit)
	if err != nil {
		writeStoreError(w, err, "import runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

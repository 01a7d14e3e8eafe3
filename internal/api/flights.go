package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/nzvengeance/flight-logbook/internal/analysis"
	"github.com/nzvengeance/flight-logbook/internal/logbook"
	"github.com/nzvengeance/flight-logbook/internal/models"
	"github.com/nzvengeance/flight-logbook/internal/prefs"
)

// --- Flights ---

func (s *Server) listFlights(w http.ResponseWriter, r *http.Request) {
	flights, err := s.db.ListFlights(r.Context(), currentUser(r).ID)
	if err != nil {
		writeStoreError(w, err, "flights")
		return
	}
	writeJSON(w, http.StatusOK, flights)
}

func (s *Server) getFlight(w http.ResponseWriter, r *http.Request) {
	id, ok := flightID(w, r)
	if !ok {
		return
	}
	f, err := s.db.GetFlight(r.Context(), id, currentUser(r).ID)
	if err != nil {
		writeStoreError(w, err, "flight")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) createFlight(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	f, ok := decodeFlight(w, r)
	if !ok {
		return
	}
	f.ID = 0
	f.UserID = user.ID
	f.ImportRunID = ""

	if !validateFlight(w, f) {
		return
	}
	logbook.Recompute(f)

	ctx := r.Context()
	if _, err := s.db.CreateFlight(ctx, f); err != nil {
		writeStoreError(w, err, "flight")
		return
	}
	s.rememberPreferences(r, f)

	created, err := s.db.GetFlight(ctx, f.ID, user.ID)
	if err != nil {
		writeStoreError(w, err, "flight")
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) updateFlight(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r)
	id, ok := flightID(w, r)
	if !ok {
		return
	}
	f, ok := decodeFlight(w, r)
	if !ok {
		return
	}
	f.UserID = user.ID

	if !validateFlight(w, f) {
		return
	}
	logbook.Recompute(f)

	ctx := r.Context()
	if err := s.db.UpdateFlight(ctx, id, f); err != nil {
		writeStoreError(w, err, "flight")
		return
	}
	s.rememberPreferences(r, f)

	updated, err := s.db.GetFlight(ctx, id, user.ID)
	if err != nil {
		writeStoreError(w, err, "flight")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) deleteFlight(w http.ResponseWriter, r *http.Request) {
	id, ok := flightID(w, r)
	if !ok {
		return
	}
	if err := s.db.DeleteFlight(r.Context(), id, currentUser(r).ID); err != nil {
		writeStoreError(w, err, "flight")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	flights, err := s.db.ListFlights(r.Context(), currentUser(r).ID)
	if err != nil {
		writeStoreError(w, err, "flights")
		return
	}
	writeJSON(w, http.StatusOK, analysis.AnalyzeLogbook(flights))
}

// rememberPreferences never fails the request; the flight is already saved.
func (s *Server) rememberPreferences(r *http.Request, f *models.Flight) {
	if err := prefs.Remember(r.Context(), s.prefs, f.UserID, f); err != nil {
		log.Warn().Err(err).Int64("user", f.UserID).Msg("failed to remember custom types")
	}
}

func flightID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid flight id")
		return 0, false
	}
	return id, true
}

func decodeFlight(w http.ResponseWriter, r *http.Request) (*models.Flight, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return nil, false
	}
	var f models.Flight
	if err := json.Unmarshal(body, &f); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return nil, false
	}
	return &f, true
}

func validateFlight(w http.ResponseWriter, f *models.Flight) bool {
	err := logbook.ValidateFlight(f)
	if err == nil {
		return true
	}
	var ve *logbook.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":    "Invalid flight",
			"problems": ve.Problems,
		})
		return false
	}
	writeError(w, http.StatusBadRequest, err.Error())
	return false
}

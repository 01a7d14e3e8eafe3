package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nzvengeance/flight-logbook/internal/database"
	"github.com/nzvengeance/flight-logbook/internal/models"
	"github.com/nzvengeance/flight-logbook/internal/source"
)

// --- Export ---

func (s *Server) exportLogbook(w http.ResponseWriter, r *http.Request) {
	s.writeLogbookCSV(w, r, currentUser(r).ID)
}

// exportPublicLogbook serves an owner's logbook without auth when the owner
// has opted in. Owners that have not are indistinguishable from unknown ids.
func (s *Server) exportPublicLogbook(w http.ResponseWriter, r *http.Request) {
	ownerID, err := strconv.ParseInt(chi.URLParam(r, "ownerID"), 10, 64)
	if err != nil || ownerID <= 0 {
		writeError(w, http.StatusNotFound, "Logbook not found")
		return
	}

	p, err := s.prefs.Get(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read preferences")
		return
	}
	if !p.PublicLogbook {
		writeError(w, http.StatusNotFound, "Logbook not found")
		return
	}
	s.writeLogbookCSV(w, r, ownerID)
}

func (s *Server) writeLogbookCSV(w http.ResponseWriter, r *http.Request, ownerID int64) {
	flights, err := s.db.ListFlights(r.Context(), ownerID)
	if err != nil {
		writeStoreError(w, err, "flights")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="logbook-%d.csv"`, ownerID))
	w.WriteHeader(http.StatusOK)
	if err := source.WriteLegacy(w, flights); err != nil {
		log.Warn().Err(err).Int64("owner", ownerID).Msg("failed to write logbook export")
	}
}

// --- Preferences ---

func (s *Server) getPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := s.prefs.Get(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read preferences: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) setPreferences(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	var p models.Preferences
	if err := json.Unmarshal(body, &p); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}

	ctx := r.Context()
	userID := currentUser(r).ID
	if err := s.prefs.Put(ctx, userID, p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save preferences: "+err.Error())
		return
	}
	saved, err := s.prefs.Get(ctx, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read preferences: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// --- Groups ---

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.db.ListFlightGroups(r.Context())
	if err != nil {
		writeStoreError(w, err, "groups")
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

// saveGroup creates a group, or updates one the caller created or administers.
// The creator of an existing group never changes.
func (s *Server) saveGroup(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body")
		return
	}
	var g models.FlightGroup
	if err := json.Unmarshal(body, &g); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		writeError(w, http.StatusBadRequest, "Group name is required")
		return
	}

	ctx := r.Context()
	user := currentUser(r)
	status := http.StatusCreated

	var existing *models.FlightGroup
	if g.IDCode != "" {
		existing, err = s.db.GetFlightGroup(ctx, g.IDCode)
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			writeStoreError(w, err, "group")
			return
		}
	}

	if existing != nil {
		if !canManageGroup(existing, user) {
			writeError(w, http.StatusForbidden, "Only the group's creator or admin can change it")
			return
		}
		g.CreatedByID = existing.CreatedByID
		g.CreatedByName = existing.CreatedByName
		g.CreatedAt = existing.CreatedAt
		if g.AdminEmail == "" {
			g.AdminEmail = existing.AdminEmail
		}
		status = http.StatusOK
	} else {
		if g.IDCode == "" {
			g.IDCode = uuid.NewString()
		}
		g.CreatedByID = user.ExternalKey
		g.CreatedByName = user.Name
		g.CreatedAt = time.Time{}
		if g.AdminEmail == "" {
			g.AdminEmail = user.Email
		}
	}
	g.UpdatedAt = time.Time{}

	if err := s.db.UpsertFlightGroup(ctx, &g); err != nil {
		writeStoreError(w, err, "group")
		return
	}
	saved, err := s.db.GetFlightGroup(ctx, g.IDCode)
	if err != nil {
		writeStoreError(w, err, "group")
		return
	}
	writeJSON(w, status, saved)
}

func canManageGroup(g *models.FlightGroup, u *models.User) bool {
	if g.CreatedByID != "" && g.CreatedByID == u.ExternalKey {
		return true
	}
	return u.Email != "" && strings.EqualFold(g.AdminEmail, u.Email)
}

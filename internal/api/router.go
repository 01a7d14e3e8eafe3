package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/nzvengeance/flight-logbook/internal/auth"
	"github.com/nzvengeance/flight-logbook/internal/config"
	"github.com/nzvengeance/flight-logbook/internal/database"
	"github.com/nzvengeance/flight-logbook/internal/models"
	"github.com/nzvengeance/flight-logbook/internal/prefs"
	syncsvc "github.com/nzvengeance/flight-logbook/internal/sync"
)

type Server struct {
	db            *database.DB
	cfg           *config.Config
	scheduler     *syncsvc.Scheduler
	prefs         prefs.Store
	verifier      *auth.Verifier
	importLimiter *rate.Limiter
}

func NewServer(db *database.DB, cfg *config.Config, scheduler *syncsvc.Scheduler, prefStore prefs.Store) *Server {
	return &Server{
		db:            db,
		cfg:           cfg,
		scheduler:     scheduler,
		prefs:         prefStore,
		verifier:      auth.NewVerifier(cfg.JWTSecret),
		importLimiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{s.cfg.BaseURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.healthCheck)
		r.Get("/status", s.getStatus)

		// Logbooks their owners chose to share
		r.Get("/public/{ownerID}/logbook.csv", s.exportPublicLogbook)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.verifier, s.db, s.cfg.AuthDisabled, s.cfg.DevUserKey))

			r.Get("/me", s.getMe)

			r.Route("/flights", func(r chi.Router) {
				r.Get("/", s.listFlights)
				r.Post("/", s.createFlight)
				r.Get("/summary", s.getSummary)
				r.Get("/{id}", s.getFlight)
				r.Put("/{id}", s.updateFlight)
				r.Delete("/{id}", s.deleteFlight)
			})

			// CSV import
			r.Route("/import", func(r chi.Router) {
				r.Get("/fields", s.listImportFields)
				r.Post("/preview", s.previewImport)
				r.With(s.rateLimitImport).Post("/csv", s.importCSV)
				r.With(s.requireOperator, s.rateLimitImport).Post("/inbox", s.triggerInboxImport)
				r.Get("/runs", s.listImportRuns)
			})

			r.Get("/export/logbook.csv", s.exportLogbook)

			r.Get("/preferences", s.getPreferences)
			r.Put("/preferences", s.setPreferences)

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", s.listGroups)
				r.Post("/", s.saveGroup)
			})
		})
	})

	// Serve frontend SPA
	s.serveFrontend(r)

	return r
}

// --- Middleware ---

func (s *Server) rateLimitImport(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.importLimiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded - please wait before starting another import")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.IsOperator(currentUser(r).ExternalKey) {
			writeError(w, http.StatusForbidden, "Operator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Health & Status ---

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := s.db.GetStats(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read stats: "+err.Error())
		return
	}
	runs, _ := s.db.ListImportRuns(ctx, 0, 5)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":       stats,
		"import_runs": runs,
		"config": map[string]interface{}{
			"import_schedule": s.cfg.ImportSchedule,
			"db_driver":       s.cfg.DBDriver,
			"prefs_backend":   s.cfg.PrefsBackend,
			"auth_disabled":   s.cfg.AuthDisabled,
		},
	})
}

func (s *Server) getMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}

// --- Frontend ---

func (s *Server) serveFrontend(r chi.Router) {
	staticDir := s.cfg.StaticDir

	if _, err := os.Stat(staticDir); os.IsNotExist(err) {
		log.Warn().Str("dir", staticDir).Msg("frontend static directory not found")
		return
	}

	fs := http.FileServer(http.Dir(staticDir))

	r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(staticDir, r.URL.Path)

		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(staticDir, "index.html"))
			return
		}

		fs.ServeHTTP(w, r)
	})
}

// --- Helpers ---

// currentUser is only called behind auth.Middleware, which always sets it.
func currentUser(r *http.Request) *models.User {
	u, _ := auth.UserFrom(r.Context())
	return u
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Warn().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps store failures to a status: a missing row is a 404,
// anything else a 500.
func writeStoreError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, what+" not found")
		return
	}
	log.Error().Err(err).Str("resource", what).Msg("store error")
	writeError(w, http.StatusInternalServerError, "Failed to access "+what+": "+err.Error())
}

// Package server implements the Teester HTTP API.
package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"github.com/teester/teester/internal/auth"
	"github.com/teester/teester/internal/db"
	"github.com/teester/teester/internal/logging"
	"github.com/teester/teester/internal/runner"
	"github.com/teester/teester/internal/types"
)

// MaxBodyBytes bounds every request body.
const MaxBodyBytes = 8 << 20

// DefaultHistory is the number of snapshots kept when History is unset.
const DefaultHistory = 20

// APIServer serves project persistence, database queries, collection runs
// and faker runs.
type APIServer struct {
	DB     *sql.DB
	Logger *zap.Logger
	Runs   *RunManager
	// Query executes /db-query requests and faker inserts.
	Query runner.QueryTransport
	// RunDefaults are applied to every run before per-request overrides.
	RunDefaults runner.Options
	// History is the number of snapshots kept; <= 0 uses DefaultHistory.
	History        int
	RequireAuth    bool
	AllowedOrigins []string
}

// AuthMiddleware validates bearer API keys.
func (s *APIServer) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || apiKey == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		prefix, _, err := auth.Parse(apiKey)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		storedKey, err := db.GetAPIKeyByPrefix(s.DB, prefix)
		if err != nil || storedKey == nil || storedKey.RevokedAt != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		if !auth.Verify(apiKey, storedKey.KeyHash) {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		if err := db.TouchAPIKey(s.DB, storedKey.ID); err != nil {
			s.Logger.Warn("failed to record key use", logging.KeyPrefix(prefix), zap.Error(err))
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the HTTP handler for the API server.
func (s *APIServer) Handler() http.Handler {
	origins := s.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	}))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.RequireAuth {
			r.Use(s.AuthMiddleware)
		}

		r.Get("/getData", s.handleGetProjects)
		r.Post("/postData", s.handlePostData)
		r.Post("/db-query", s.handleLegacyQuery)

		r.Route("/v1", func(r chi.Router) {
			r.Get("/projects", s.handleGetProjects)
			r.Put("/projects", s.handlePutProjects)
			r.Get("/projects/history", s.handleHistory)
			r.Get("/projects/history/{snapshot}", s.handleGetSnapshot)
			r.Post("/db-query", s.handleQuery)

			r.Route("/projects/{project}", func(r chi.Router) {
				r.Post("/collections/{collection}/run", s.handleRunCollection)
				r.Post("/collections/{collection}/tests/{test}/run", s.handleRunTest)
				r.Post("/fakers/{faker}/run", s.handleRunFaker)
			})

			r.Get("/runs", s.handleRunStatus)
			r.Get("/runs/{run}", s.handleGetRun)
		})
	})

	return r
}

func (s *APIServer) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *APIServer) history() int {
	if s.History <= 0 {
		return DefaultHistory
	}
	return s.History
}

func (s *APIServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger().Debug("request",
			logging.Method(r.Method),
			logging.Path(r.URL.Path),
			logging.Status(ww.Status()),
			logging.Elapsed(time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.PlainText(w, r, "Hello there!")
}

// decodeJSON reads a single JSON document into v. An empty body leaves v
// untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return true
		}
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, r, http.StatusBadRequest, "invalid JSON")
		return false
	}
	if dec.Decode(&struct{}{}) != io.EOF {
		writeError(w, r, http.StatusBadRequest, "unexpected trailing data")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, types.ErrorResponse{Error: msg})
}

package server

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/teester/teester/internal/faker"
	"github.com/teester/teester/internal/logging"
	"github.com/teester/teester/internal/models"
	"github.com/teester/teester/internal/transport"
	"github.com/teester/teester/internal/types"
)

// MaxFakerRows bounds the count of a single faker run.
const MaxFakerRows = 10000

// handleLegacyQuery answers 200 or 400 with an empty body, as the browser
// UI expects.
func (s *APIServer) handleLegacyQuery(w http.ResponseWriter, r *http.Request) {
	var req types.QueryRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if err := s.runQuery(r.Context(), req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *APIServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req types.QueryRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if err := s.runQuery(r.Context(), req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *APIServer) runQuery(ctx context.Context, req types.QueryRequest) error {
	if s.Query == nil {
		return errors.New("queries disabled")
	}
	err := s.Query.RunQuery(ctx, transport.QueryConfig{DBType: req.DBType, DBURL: req.DBURL}, req.Query)
	if err != nil {
		s.logger().Info("query failed", logging.DBType(req.DBType), zap.Error(err))
	}
	return err
}

func (s *APIServer) handleRunFaker(w http.ResponseWriter, r *http.Request) {
	p, ok := pathInt(w, r, "project")
	if !ok {
		return
	}
	f, ok := pathInt(w, r, "faker")
	if !ok {
		return
	}

	req := types.FakerRunRequest{Count: 1}
	if !decodeJSON(w, r, &req, true) {
		return
	}
	if req.Count < 1 || req.Count > MaxFakerRows {
		writeError(w, r, http.StatusBadRequest, "count out of range")
		return
	}
	if s.Query == nil {
		writeError(w, r, http.StatusServiceUnavailable, "queries disabled")
		return
	}

	projects, err := s.loadProjects()
	if err != nil {
		s.logger().Error("load projects", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "load projects")
		return
	}
	proj, container, err := models.LookupFaker(projects, p, f)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}

	cfg := transport.QueryConfig{DBType: proj.Config.DBType, DBURL: proj.Config.DBURL}
	inserted, err := faker.New(req.Seed).Run(r.Context(), s.Query, cfg, *container, req.Count)
	if err != nil {
		s.logger().Info("faker run failed",
			logging.Project(p),
			logging.Table(container.Name),
			zap.Int("inserted", inserted),
			zap.Error(err),
		)
		writeJSON(w, r, http.StatusBadRequest, types.FakerRunResponse{Inserted: inserted, Error: err.Error()})
		return
	}
	s.logger().Info("faker run", logging.Project(p), logging.Table(container.Name), zap.Int("inserted", inserted))
	writeJSON(w, r, http.StatusOK, types.FakerRunResponse{Inserted: inserted})
}

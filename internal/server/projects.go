package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/teester/teester/internal/db"
	"github.com/teester/teester/internal/models"
	"github.com/teester/teester/internal/schema"
	"github.com/teester/teester/internal/types"
)

func (s *APIServer) handleGetProjects(w http.ResponseWriter, r *http.Request) {
	snap, err := db.LatestSnapshot(s.DB)
	if err != nil {
		s.logger().Error("load snapshot", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "database error")
		return
	}
	writeRaw(w, http.StatusOK, snap.Data)
}

// handlePostData accepts the whole project list as a JSON string in
// {"data": "..."} and answers 201 with an empty body.
func (s *APIServer) handlePostData(w http.ResponseWriter, r *http.Request) {
	var req types.SaveProjectsRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if _, ok := s.saveSnapshot(w, r, []byte(req.Data)); !ok {
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *APIServer) handlePutProjects(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "read body")
		return
	}

	snap, ok := s.saveSnapshot(w, r, data)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, types.SaveResponse{
		ID:      snap.ID,
		SavedAt: formatTime(snap.SavedAt),
	})
}

// saveSnapshot validates data and stores it as the newest snapshot. On
// failure it has already written the error response.
func (s *APIServer) saveSnapshot(w http.ResponseWriter, r *http.Request, data []byte) (*models.Snapshot, bool) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON")
		return nil, false
	}

	if err := schema.ValidateProjects(compact.Bytes()); err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, r, http.StatusBadRequest, types.ErrorResponse{
				Error:    "invalid projects",
				Problems: verr.Problems,
			})
			return nil, false
		}
		s.logger().Error("validate snapshot", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "validation error")
		return nil, false
	}

	id, err := db.SaveSnapshot(s.DB, compact.String(), s.history())
	if err != nil {
		s.logger().Error("save snapshot", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "database error")
		return nil, false
	}
	s.logger().Info("snapshot saved", zap.Int64("snapshot_id", id), zap.Int("bytes", compact.Len()))
	return &models.Snapshot{ID: id, SavedAt: time.Now().Unix()}, true
}

func (s *APIServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	snaps, err := db.ListSnapshots(s.DB)
	if err != nil {
		s.logger().Error("list snapshots", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "database error")
		return
	}

	resp := types.HistoryResponse{Snapshots: make([]types.SnapshotInfo, 0, len(snaps))}
	for _, snap := range snaps {
		resp.Snapshots = append(resp.Snapshots, types.SnapshotInfo{
			ID:      snap.ID,
			SavedAt: formatTime(snap.SavedAt),
		})
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *APIServer) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "snapshot"), 10, 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid snapshot id")
		return
	}
	snap, err := db.GetSnapshot(s.DB, id)
	if err != nil {
		s.logger().Error("get snapshot", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "database error")
		return
	}
	if snap == nil {
		writeError(w, r, http.StatusNotFound, "snapshot not found")
		return
	}
	writeRaw(w, http.StatusOK, snap.Data)
}

// loadProjects decodes the newest snapshot.
func (s *APIServer) loadProjects() ([]models.Project, error) {
	snap, err := db.LatestSnapshot(s.DB)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var projects []models.Project
	if err := json.Unmarshal([]byte(snap.Data), &projects); err != nil {
		return nil, fmt.Errorf("decode snapshot %d: %w", snap.ID, err)
	}
	return projects, nil
}

func writeRaw(w http.ResponseWriter, status int, data string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, data)
}

func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format(time.RFC3339)
}

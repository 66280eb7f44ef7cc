// Package types defines the API request and response types.
package types

import "github.com/teester/teester/internal/runner"

// SaveProjectsRequest is the legacy /postData body: the whole project list
// encoded as a JSON string.
type SaveProjectsRequest struct {
	Data string `json:"data"`
}

// SaveResponse is returned after a snapshot is stored.
type SaveResponse struct {
	ID      int64  `json:"id"`
	SavedAt string `json:"saved_at"`
}

// SnapshotInfo describes one stored snapshot.
type SnapshotInfo struct {
	ID      int64  `json:"id"`
	SavedAt string `json:"saved_at"`
}

// HistoryResponse lists stored snapshots, newest first.
type HistoryResponse struct {
	Snapshots []SnapshotInfo `json:"snapshots"`
}

// QueryRequest is the body of /db-query.
type QueryRequest struct {
	DBType string `json:"dbType"`
	DBURL  string `json:"dbUrl"`
	Query  string `json:"query"`
}

// RunRequest optionally overrides runner options for one run.
type RunRequest struct {
	StrictVariables bool   `json:"strictVariables,omitempty"`
	StrictJSON      bool   `json:"strictJson,omitempty"`
	Mode            string `json:"mode,omitempty"`
}

// RunResponse wraps a finished run report.
type RunResponse = runner.Report

// RunStatusResponse reports the runs currently executing.
type RunStatusResponse struct {
	Running int      `json:"running"`
	Active  []string `json:"active"`
}

// FakerRunRequest is the body of a faker run.
type FakerRunRequest struct {
	Count int   `json:"count"`
	Seed  int64 `json:"seed,omitempty"`
}

// FakerRunResponse reports how many rows a faker run inserted.
type FakerRunResponse struct {
	Inserted int    `json:"inserted"`
	Error    string `json:"error,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

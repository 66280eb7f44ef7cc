package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teester/teester/internal/runner"
)

// Supported report file formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Writer is a run hook that saves every finished report to Dir.
type Writer struct {
	Dir    string
	Format string
	Logger *zap.Logger
}

func (w *Writer) ID() string { return "report-file" }

func (w *Writer) OnRunFinish(_ context.Context, r *runner.Report) error {
	path, err := w.Write(r)
	if err != nil {
		return err
	}
	if w.Logger != nil {
		w.Logger.Info("report written", zap.String("path", path))
	}
	return nil
}

// Write saves r and returns the file path.
func (w *Writer) Write(r *runner.Report) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	format := w.Format
	if format == "" {
		format = FormatYAML
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case FormatYAML:
		data, err = yaml.Marshal(r)
	case FormatJSON:
		data, err = json.MarshalIndent(r, "", "  ")
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	path := filepath.Join(w.Dir, fmt.Sprintf("run-%s.%s", r.RunID, format))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// Read loads a report written by Writer.
func Read(path string) (*runner.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r runner.Report
	if filepath.Ext(path) == ".json" {
		err = json.Unmarshal(data, &r)
	} else {
		err = yaml.Unmarshal(data, &r)
	}
	if err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}

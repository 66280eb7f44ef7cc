package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DecodeProjects parses a project list. YAML is accepted when the document
// does not start with '[' or '{'.
func DecodeProjects(data []byte) ([]Project, error) {
	trimmed := bytes.TrimSpace(data)
	var projects []Project
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		if err := json.Unmarshal(trimmed, &projects); err != nil {
			return nil, fmt.Errorf("decode projects json: %w", err)
		}
		return projects, nil
	}
	if err := yaml.Unmarshal(trimmed, &projects); err != nil {
		return nil, fmt.Errorf("decode projects yaml: %w", err)
	}
	return projects, nil
}

// ReadProjectsFile loads a .json, .yaml or .yml project file.
func ReadProjectsFile(path string) ([]Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var projects []Project
		if err := json.Unmarshal(data, &projects); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return projects, nil
	case ".yaml", ".yml":
		var projects []Project
		if err := yaml.Unmarshal(data, &projects); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return projects, nil
	}
	projects, err := DecodeProjects(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return projects, nil
}

package models

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlProjects = `
- name: demo
  config:
    host: http://localhost:3000
    dbType: SQLITE
    dbUrl: app.db
    header: '{"Accept":"application/json"}'
  collections:
    - name: users
      tests:
        - name: create
          methodType: POST
          endpoint: /users
          body: '{"name":"ann"}'
          assertion:
            status: 201
            body: '{"id":"@{uid}"}'
        - name: cleanup
          query: DELETE FROM users
`

func checkDemo(t *testing.T, projects []Project) {
	t.Helper()
	require.Len(t, projects, 1)
	assert.Equal(t, "demo", projects[0].Name)
	assert.Equal(t, "SQLITE", projects[0].Config.DBType)
	tests := projects[0].Collections[0].Tests
	require.Len(t, tests, 2)
	require.Equal(t, KindAPI, tests[0].Kind)
	assert.Equal(t, StatusCode(201), tests[0].API.Assertion.Status)
	assert.Equal(t, `{"id":"@{uid}"}`, tests[0].API.Assertion.Body)
	require.Equal(t, KindDB, tests[1].Kind)
	assert.Equal(t, "DELETE FROM users", tests[1].DB.Query)
}

func TestReadProjectsFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "projects.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(yamlProjects), 0o600))
	fromYAML, err := ReadProjectsFile(yamlPath)
	require.NoError(t, err)
	checkDemo(t, fromYAML)

	data, err := json.Marshal(fromYAML)
	require.NoError(t, err)
	jsonPath := filepath.Join(dir, "projects.json")
	require.NoError(t, os.WriteFile(jsonPath, data, 0o600))
	fromJSON, err := ReadProjectsFile(jsonPath)
	require.NoError(t, err)
	checkDemo(t, fromJSON)

	sniffPath := filepath.Join(dir, "projects.txt")
	require.NoError(t, os.WriteFile(sniffPath, []byte(yamlProjects), 0o600))
	sniffed, err := ReadProjectsFile(sniffPath)
	require.NoError(t, err)
	checkDemo(t, sniffed)
}

func TestReadProjectsFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadProjectsFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"name":`), 0o600))
	_, err = ReadProjectsFile(bad)
	assert.Error(t, err)
}

func TestDecodeProjectsSniffsJSON(t *testing.T) {
	projects, err := DecodeProjects([]byte(`  [{"name":"p","config":{},"collections":[]}]`))
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "p", projects[0].Name)
}

// Package schema validates stored project snapshots.
package schema

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed projects.schema.json
var projectsSchema []byte

var (
	compileOnce sync.Once
	compiled    *gojsonschema.Schema
	compileErr  error
)

func projects() (*gojsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled, compileErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(projectsSchema))
	})
	return compiled, compileErr
}

// ValidationError lists every schema violation found in a document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid projects: " + strings.Join(e.Problems, "; ")
}

// ValidateProjects checks data against the projects schema. It returns a
// *ValidationError when the document is well-formed JSON but violates the
// schema.
func ValidateProjects(data []byte) error {
	s, err := projects()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	if result.Valid() {
		return nil
	}

	verr := &ValidationError{}
	for _, re := range result.Errors() {
		verr.Problems = append(verr.Problems, re.String())
	}
	return verr
}

// Package models defines the project snapshot and database entity types.
package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when a project, collection, test or faker index
// is out of range.
var ErrNotFound = errors.New("not found")

// Project is the top-level container for one target configuration.
type Project struct {
	Name        string           `json:"name" yaml:"name"`
	Config      Config           `json:"config" yaml:"config"`
	Collections []Collection     `json:"collections" yaml:"collections"`
	Fakers      []FakerContainer `json:"fakers,omitempty" yaml:"fakers,omitempty"`
	Uis         []UiContainer    `json:"uis,omitempty" yaml:"uis,omitempty"`
}

// Config holds per-project connection settings.
type Config struct {
	Type            string `json:"type,omitempty" yaml:"type,omitempty"`
	Host            string `json:"host" yaml:"host"`
	DBType          string `json:"dbType" yaml:"dbType"`
	DBURL           string `json:"dbUrl" yaml:"dbUrl"`
	Header          string `json:"header" yaml:"header"`
	WithCredentials bool   `json:"withCredentials,omitempty" yaml:"withCredentials,omitempty"`
}

// Collection is an ordered list of tests; order is execution order.
type Collection struct {
	Name  string `json:"name" yaml:"name"`
	Tests []Test `json:"tests" yaml:"tests"`
}

// TestKind discriminates the Test union.
type TestKind string

const (
	KindAPI TestKind = "api"
	KindDB  TestKind = "db"
)

// Test is either an API call or a database query. Exactly one of API and
// DB is set, matching Kind.
type Test struct {
	Kind TestKind
	API  *APITest
	DB   *DBTest
}

// APITest describes a single HTTP call and its expected outcome.
type APITest struct {
	Name       string    `json:"name" yaml:"name"`
	MethodType string    `json:"methodType" yaml:"methodType"`
	Endpoint   string    `json:"endpoint" yaml:"endpoint"`
	Header     string    `json:"header" yaml:"header"`
	Body       string    `json:"body" yaml:"body"`
	Assertion  Assertion `json:"assertion" yaml:"assertion"`
}

// DBTest is a query sent verbatim to the query transport.
type DBTest struct {
	Name  string `json:"name" yaml:"name"`
	Query string `json:"query" yaml:"query"`
}

// Assertion is the expected status and body template of an API test.
type Assertion struct {
	Status StatusCode `json:"status" yaml:"status"`
	Body   string     `json:"body" yaml:"body"`
}

// StatusCode accepts both numeric and string encodings; stored projects
// carry either depending on which form wrote them.
type StatusCode int

func (s *StatusCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		return s.parse(str)
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	*s = StatusCode(int(n))
	return nil
}

func (s *StatusCode) UnmarshalYAML(value *yaml.Node) error {
	return s.parse(value.Value)
}

// parse takes the leading integer of str, like parseInt; no digits is 0.
func (s *StatusCode) parse(str string) error {
	str = strings.TrimSpace(str)
	end := 0
	if end < len(str) && (str[end] == '-' || str[end] == '+') {
		end++
	}
	for end < len(str) && str[end] >= '0' && str[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(str[:end])
	if err != nil {
		n = 0
	}
	*s = StatusCode(n)
	return nil
}

// Name returns the test's display name regardless of variant.
func (t Test) Name() string {
	switch t.Kind {
	case KindAPI:
		if t.API != nil {
			return t.API.Name
		}
	case KindDB:
		if t.DB != nil {
			return t.DB.Name
		}
	}
	return ""
}

// Validate reports whether exactly the variant named by Kind is populated.
func (t Test) Validate() error {
	switch t.Kind {
	case KindAPI:
		if t.API == nil || t.DB != nil {
			return fmt.Errorf("api test must carry only an api variant")
		}
		if t.API.MethodType == "" {
			return fmt.Errorf("api test %q has no method", t.API.Name)
		}
	case KindDB:
		if t.DB == nil || t.API != nil {
			return fmt.Errorf("db test must carry only a db variant")
		}
	default:
		return fmt.Errorf("unknown test kind %q", t.Kind)
	}
	return nil
}

// NewAPITest wraps an APITest in a Test.
func NewAPITest(a APITest) Test { return Test{Kind: KindAPI, API: &a} }

// NewDBTest wraps a DBTest in a Test.
func NewDBTest(d DBTest) Test { return Test{Kind: KindDB, DB: &d} }

// wireTest is the flat stored shape of both variants.
type wireTest struct {
	Name       string     `json:"name" yaml:"name"`
	MethodType string     `json:"methodType,omitempty" yaml:"methodType,omitempty"`
	Endpoint   string     `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Header     string     `json:"header,omitempty" yaml:"header,omitempty"`
	Body       string     `json:"body,omitempty" yaml:"body,omitempty"`
	Assertion  *Assertion `json:"assertion,omitempty" yaml:"assertion,omitempty"`
	Query      string     `json:"query,omitempty" yaml:"query,omitempty"`
}

func (w wireTest) toTest() Test {
	if w.MethodType != "" {
		a := APITest{
			Name:       w.Name,
			MethodType: w.MethodType,
			Endpoint:   w.Endpoint,
			Header:     w.Header,
			Body:       w.Body,
		}
		if w.Assertion != nil {
			a.Assertion = *w.Assertion
		}
		return NewAPITest(a)
	}
	return NewDBTest(DBTest{Name: w.Name, Query: w.Query})
}

func fromTest(t Test) (wireTest, error) {
	if err := t.Validate(); err != nil {
		return wireTest{}, err
	}
	if t.Kind == KindAPI {
		a := t.API.Assertion
		return wireTest{
			Name:       t.API.Name,
			MethodType: t.API.MethodType,
			Endpoint:   t.API.Endpoint,
			Header:     t.API.Header,
			Body:       t.API.Body,
			Assertion:  &a,
		}, nil
	}
	return wireTest{Name: t.DB.Name, Query: t.DB.Query}, nil
}

// UnmarshalJSON discriminates on a non-empty methodType.
func (t *Test) UnmarshalJSON(data []byte) error {
	var w wireTest
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = w.toTest()
	return nil
}

// MarshalJSON writes the flat stored shape.
func (t Test) MarshalJSON() ([]byte, error) {
	w, err := fromTest(t)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

func (t *Test) UnmarshalYAML(value *yaml.Node) error {
	var w wireTest
	if err := value.Decode(&w); err != nil {
		return err
	}
	*t = w.toTest()
	return nil
}

func (t Test) MarshalYAML() (any, error) {
	return fromTest(t)
}

// FakerContainer generates rows for one table.
type FakerContainer struct {
	Name string       `json:"name" yaml:"name"`
	Data []FakerField `json:"data" yaml:"data"`
}

// FakerField is a single generated column.
type FakerField struct {
	FieldName   string `json:"fieldName" yaml:"fieldName"`
	Type        string `json:"type" yaml:"type"`
	Constraints string `json:"constraints" yaml:"constraints"`
}

// UiContainer is a browser interaction script. It is stored and
// round-tripped but never executed.
type UiContainer struct {
	Name        string   `json:"name" yaml:"name"`
	Screenshots bool     `json:"screenshots" yaml:"screenshots"`
	Data        []UiStep `json:"data" yaml:"data"`
}

// UiStep is one selector/input/event triple of a UI script.
type UiStep struct {
	Selector string `json:"selector" yaml:"selector"`
	Input    string `json:"input" yaml:"input"`
	Event    string `json:"event" yaml:"event"`
}

// LookupCollection returns the collection at projects[p].Collections[c].
func LookupCollection(projects []Project, p, c int) (*Project, *Collection, error) {
	if p < 0 || p >= len(projects) {
		return nil, nil, fmt.Errorf("project %d: %w", p, ErrNotFound)
	}
	proj := &projects[p]
	if c < 0 || c >= len(proj.Collections) {
		return nil, nil, fmt.Errorf("collection %d: %w", c, ErrNotFound)
	}
	return proj, &proj.Collections[c], nil
}

// LookupFaker returns the faker container at projects[p].Fakers[f].
func LookupFaker(projects []Project, p, f int) (*Project, *FakerContainer, error) {
	if p < 0 || p >= len(projects) {
		return nil, nil, fmt.Errorf("project %d: %w", p, ErrNotFound)
	}
	proj := &projects[p]
	if f < 0 || f >= len(proj.Fakers) {
		return nil, nil, fmt.Errorf("faker %d: %w", f, ErrNotFound)
	}
	return proj, &proj.Fakers[f], nil
}

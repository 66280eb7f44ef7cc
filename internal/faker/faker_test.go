package faker

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teester/teester/internal/models"
	"github.com/teester/teester/internal/transport"
)

func users() models.FakerContainer {
	return models.FakerContainer{
		Name: "users",
		Data: []models.FakerField{
			{FieldName: "email", Type: "email"},
			{FieldName: "name", Type: "Name"},
			{FieldName: "id", Type: "uuid"},
			{FieldName: "age", Type: "number", Constraints: "18-30"},
		},
	}
}

var insertRe = regexp.MustCompile(`^INSERT INTO users \(email, name, id, age\) VALUES \('[^']*@[^']*', '(?:[^']|'')*', '[0-9a-f-]{36}', (\d+)\);$`)

func TestGenerateSQL(t *testing.T) {
	g := New(42)
	for i := 0; i < 20; i++ {
		stmt, err := g.GenerateSQL(users())
		require.NoError(t, err)

		m := insertRe.FindStringSubmatch(stmt)
		require.NotNil(t, m, "unexpected statement %s", stmt)
		age, _ := strconv.Atoi(m[1])
		assert.GreaterOrEqual(t, age, 18)
		assert.LessOrEqual(t, age, 30)
	}
}

func TestGenerateSQLDeterministicSeed(t *testing.T) {
	a, err := New(7).GenerateSQL(users())
	require.NoError(t, err)
	b, err := New(7).GenerateSQL(users())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerateSQLRejectsBadIdentifiers(t *testing.T) {
	g := New(1)

	_, err := g.GenerateSQL(models.FakerContainer{Name: "users; DROP TABLE x", Data: users().Data})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = g.GenerateSQL(models.FakerContainer{Name: "users", Data: []models.FakerField{{FieldName: "a b", Type: "email"}}})
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = g.GenerateSQL(models.FakerContainer{Name: "users"})
	assert.Error(t, err)
}

func TestValueTypes(t *testing.T) {
	g := New(3)
	for _, typ := range Types() {
		v, err := g.Value(models.FakerField{FieldName: "f", Type: typ})
		require.NoError(t, err, typ)
		assert.NotEmpty(t, v.Text, typ)
	}

	_, err := g.Value(models.FakerField{Type: "ssn"})
	assert.True(t, errors.Is(err, ErrUnknownType))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "'O''Brien'", quote("O'Brien"))
	assert.Equal(t, "''", quote(""))
}

func TestBoolIsNumeric(t *testing.T) {
	g := New(1)
	stmt, err := g.GenerateSQL(models.FakerContainer{Name: "t", Data: []models.FakerField{{FieldName: "b", Type: "bool"}}})
	require.NoError(t, err)
	assert.Regexp(t, `^INSERT INTO t \(b\) VALUES \([01]\);$`, stmt)
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		in      string
		lo, hi  int
		wantErr bool
	}{
		{"1-10", 1, 10, false},
		{" 5 - 7 ", 5, 7, false},
		{"-5--1", -5, -1, false},
		{"10-1", 0, 0, true},
		{"7", 0, 0, true},
		{"a-b", 0, 0, true},
	}
	for _, tt := range tests {
		lo, hi, err := parseRange(strings.TrimSpace(tt.in))
		if (err != nil) != tt.wantErr {
			t.Errorf("parseRange(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if lo != tt.lo || hi != tt.hi {
			t.Errorf("parseRange(%q) = %d, %d", tt.in, lo, hi)
		}
	}
}

func TestSentenceConstraint(t *testing.T) {
	g := New(5)
	v, err := g.Value(models.FakerField{Type: "sentence", Constraints: "3"})
	require.NoError(t, err)
	assert.Len(t, strings.Fields(v.Text), 3)

	_, err = g.Value(models.FakerField{Type: "sentence", Constraints: "many"})
	assert.Error(t, err)
}

func TestGenerateMongo(t *testing.T) {
	cmd, err := New(9).Generate("mongo", users())
	require.NoError(t, err)

	var doc struct {
		Insert    string           `json:"insert"`
		Documents []map[string]any `json:"documents"`
	}
	require.NoError(t, json.Unmarshal([]byte(cmd), &doc))
	assert.Equal(t, "users", doc.Insert)
	require.Len(t, doc.Documents, 1)
	assert.Contains(t, doc.Documents[0], "email")
	assert.IsType(t, float64(0), doc.Documents[0]["age"])
}

type countingExec struct {
	stmts  []string
	failAt int
}

func (c *countingExec) RunQuery(ctx context.Context, cfg transport.QueryConfig, query string) error {
	c.stmts = append(c.stmts, query)
	if c.failAt > 0 && len(c.stmts) == c.failAt {
		return errors.New("constraint failed")
	}
	return nil
}

func TestRunStopsOnFirstError(t *testing.T) {
	exec := &countingExec{failAt: 3}
	n, err := New(1).Run(context.Background(), exec, transport.QueryConfig{DBType: "SQLITE"}, users(), 5)
	assert.Error(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, exec.stmts, 3)
}

func TestRunAgainstSQLite(t *testing.T) {
	e, err := transport.NewExecutor(0, nil)
	require.NoError(t, err)
	defer func() { _ = e.Close() }()

	cfg := transport.QueryConfig{DBType: "SQLITE", DBURL: filepath.Join(t.TempDir(), "f.db")}
	ctx := context.Background()
	require.NoError(t, e.RunQuery(ctx, cfg, "CREATE TABLE users (email TEXT, name TEXT, id TEXT, age INTEGER)"))

	n, err := New(0).Run(ctx, e, cfg, users(), 10)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
}

func TestTypesSorted(t *testing.T) {
	types := Types()
	require.NotEmpty(t, types)
	assert.True(t, sort.StringsAreSorted(types), "types: %v", types)
	assert.Equal(t, types, Types())
	assert.Contains(t, types, "email")
}

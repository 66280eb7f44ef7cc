// Package faker generates synthetic rows for a table and inserts them
// through a query transport.
package faker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/teester/teester/internal/models"
	"github.com/teester/teester/internal/transport"
)

// ErrUnknownType is returned for a field type with no generator.
var ErrUnknownType = errors.New("unknown faker type")

// ErrInvalidIdentifier is returned for table or field names that are not
// plain SQL identifiers.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const dateLayout = "2006-01-02 15:04:05"

// Value is one generated column value.
type Value struct {
	Text    string
	Numeric bool
	raw     any
}

type generator func(f *gofakeit.Faker, constraints string) (Value, error)

var generators = map[string]generator{
	"email":         str(func(f *gofakeit.Faker) string { return f.Email() }),
	"name":          str(func(f *gofakeit.Faker) string { return f.Name() }),
	"uuid":          str(func(f *gofakeit.Faker) string { return f.UUID() }),
	"phone":         str(func(f *gofakeit.Faker) string { return f.Phone() }),
	"company":       str(func(f *gofakeit.Faker) string { return f.Company() }),
	"color":         str(func(f *gofakeit.Faker) string { return f.Color() }),
	"url":           str(func(f *gofakeit.Faker) string { return f.URL() }),
	"emoji":         str(func(f *gofakeit.Faker) string { return f.Emoji() }),
	"beername":      str(func(f *gofakeit.Faker) string { return f.BeerName() }),
	"hackerphrase":  str(func(f *gofakeit.Faker) string { return f.HackerPhrase() }),
	"currencyshort": str(func(f *gofakeit.Faker) string { return f.CurrencyShort() }),
	"date":          str(func(f *gofakeit.Faker) string { return f.Date().Format(dateLayout) }),
	"sentence":      sentence,
	"number":        number,
	"bool":          boolean,
}

func str(fn func(f *gofakeit.Faker) string) generator {
	return func(f *gofakeit.Faker, _ string) (Value, error) {
		s := fn(f)
		return Value{Text: s, raw: s}, nil
	}
}

// sentence honours an optional word count constraint.
func sentence(f *gofakeit.Faker, constraints string) (Value, error) {
	words := 10
	if c := strings.TrimSpace(constraints); c != "" {
		n, err := strconv.Atoi(c)
		if err != nil || n <= 0 {
			return Value{}, fmt.Errorf("sentence constraint %q: want a positive word count", constraints)
		}
		words = n
	}
	s := f.Sentence(words)
	return Value{Text: s, raw: s}, nil
}

// number honours a "min-max" constraint; the default range is 1-50.
func number(f *gofakeit.Faker, constraints string) (Value, error) {
	lo, hi := 1, 50
	if c := strings.TrimSpace(constraints); c != "" {
		var err error
		lo, hi, err = parseRange(c)
		if err != nil {
			return Value{}, err
		}
	}
	n := f.Number(lo, hi)
	return Value{Text: strconv.Itoa(n), Numeric: true, raw: n}, nil
}

func parseRange(c string) (int, int, error) {
	// Split on the separator dash, not a leading minus sign.
	idx := strings.Index(c[1:], "-")
	if idx < 0 {
		return 0, 0, fmt.Errorf("number constraint %q: want min-max", c)
	}
	lo, err := strconv.Atoi(strings.TrimSpace(c[:idx+1]))
	if err != nil {
		return 0, 0, fmt.Errorf("number constraint %q: %w", c, err)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(c[idx+2:]))
	if err != nil {
		return 0, 0, fmt.Errorf("number constraint %q: %w", c, err)
	}
	if lo > hi {
		return 0, 0, fmt.Errorf("number constraint %q: min exceeds max", c)
	}
	return lo, hi, nil
}

func boolean(f *gofakeit.Faker, _ string) (Value, error) {
	b := f.Bool()
	text := "0"
	if b {
		text = "1"
	}
	return Value{Text: text, Numeric: true, raw: b}, nil
}

// Types lists the supported field types in sorted order.
func Types() []string {
	types := make([]string, 0, len(generators))
	for t := range generators {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Generator produces fake values. It is not safe for concurrent use.
type Generator struct {
	f *gofakeit.Faker
}

// New creates a Generator. A zero seed picks a random one.
func New(seed int64) *Generator {
	return &Generator{f: gofakeit.New(seed)}
}

// Value generates a single value of the given field type.
func (g *Generator) Value(field models.FakerField) (Value, error) {
	gen, ok := generators[strings.ToLower(strings.TrimSpace(field.Type))]
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", ErrUnknownType, field.Type)
	}
	return gen(g.f, field.Constraints)
}

// GenerateSQL builds one INSERT statement for container.
func (g *Generator) GenerateSQL(container models.FakerContainer) (string, error) {
	if err := validate(container); err != nil {
		return "", err
	}

	cols := make([]string, 0, len(container.Data))
	vals := make([]string, 0, len(container.Data))
	for _, field := range container.Data {
		v, err := g.Value(field)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", field.FieldName, err)
		}
		cols = append(cols, field.FieldName)
		if v.Numeric {
			vals = append(vals, v.Text)
		} else {
			vals = append(vals, quote(v.Text))
		}
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s);",
		container.Name, strings.Join(cols, ", "), strings.Join(vals, ", ")), nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// GenerateMongo builds one insert command document for container, in the
// Extended JSON form the query transport accepts.
func (g *Generator) GenerateMongo(container models.FakerContainer) (string, error) {
	if err := validate(container); err != nil {
		return "", err
	}

	doc := make(map[string]any, len(container.Data))
	for _, field := range container.Data {
		v, err := g.Value(field)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", field.FieldName, err)
		}
		doc[field.FieldName] = v.raw
	}

	cmd, err := json.Marshal(map[string]any{
		"insert":    container.Name,
		"documents": []any{doc},
	})
	if err != nil {
		return "", err
	}
	return string(cmd), nil
}

// Generate builds one insert for the given database type.
func (g *Generator) Generate(dbType string, container models.FakerContainer) (string, error) {
	if strings.EqualFold(dbType, transport.DBTypeMongo) {
		return g.GenerateMongo(container)
	}
	return g.GenerateSQL(container)
}

func validate(container models.FakerContainer) error {
	if !identRe.MatchString(container.Name) {
		return fmt.Errorf("%w: table %q", ErrInvalidIdentifier, container.Name)
	}
	if len(container.Data) == 0 {
		return fmt.Errorf("faker %q has no fields", container.Name)
	}
	for _, field := range container.Data {
		if !identRe.MatchString(field.FieldName) {
			return fmt.Errorf("%w: field %q", ErrInvalidIdentifier, field.FieldName)
		}
	}
	return nil
}

// Executor runs generated statements.
type Executor interface {
	RunQuery(ctx context.Context, cfg transport.QueryConfig, query string) error
}

// Run inserts count generated rows, stopping at the first error. It returns
// the number of rows inserted.
func (g *Generator) Run(ctx context.Context, exec Executor, cfg transport.QueryConfig, container models.FakerContainer, count int) (int, error) {
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		stmt, err := g.Generate(cfg.DBType, container)
		if err != nil {
			return i, err
		}
		if err := exec.RunQuery(ctx, cfg, stmt); err != nil {
			return i, fmt.Errorf("insert row %d: %w", i+1, err)
		}
	}
	return count, nil
}

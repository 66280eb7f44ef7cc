package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ParsePolicy decides what a template that fails to parse turns into.
type ParsePolicy int

const (
	// EmptyObjectOnError substitutes an empty object and carries on.
	EmptyObjectOnError ParsePolicy = iota
	// FailOnError fails the test without issuing the request.
	FailOnError
)

func (p ParsePolicy) String() string {
	if p == FailOnError {
		return "fail"
	}
	return "empty-object"
}

var errNotObject = errors.New("not a JSON object")

// Parsed is the outcome of parsing one template field.
type Parsed struct {
	Value any
	Err   error
	// Empty is set when the template was blank. Blank templates resolve to
	// an empty object under every policy.
	Empty bool
}

// ParseTemplate parses text as any JSON value.
func ParseTemplate(text string) Parsed {
	if strings.TrimSpace(text) == "" {
		return Parsed{Empty: true, Err: errors.New("empty template")}
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return Parsed{Err: err}
	}
	return Parsed{Value: v}
}

// ParseObject parses text and requires the result to be a JSON object.
func ParseObject(text string) Parsed {
	p := ParseTemplate(text)
	if p.Err != nil {
		return p
	}
	if _, ok := p.Value.(map[string]any); !ok {
		return Parsed{Err: fmt.Errorf("%w: %s", errNotObject, kindOf(p.Value))}
	}
	return p
}

// Resolve applies the policy to p. fallback reports whether the empty
// object was substituted for a genuine parse failure.
func (pol ParsePolicy) Resolve(p Parsed) (value any, fallback bool, err error) {
	if p.Err == nil {
		return p.Value, false, nil
	}
	if p.Empty {
		return map[string]any{}, false, nil
	}
	if pol == FailOnError {
		return nil, false, p.Err
	}
	return map[string]any{}, true, nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		return "number"
	}
	return fmt.Sprintf("%T", v)
}

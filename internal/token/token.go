// Package token implements ${name} substitution over a variable bag and the
// @{name} marker grammar used by assertion templates.
package token

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// ErrMissingVariable is returned by strict substitution when a placeholder
// names a variable that is not in the bag.
var ErrMissingVariable = errors.New("missing variable")

// Undefined is what a missing variable renders as under MissingUndefined.
const Undefined = "undefined"

var (
	placeholderRe = regexp.MustCompile(`\$\{(.*?)\}`)
	markerRe      = regexp.MustCompile(`@\{(.*?)\}`)
)

// Variables is a run-scoped bag of extracted values.
type Variables map[string]any

// Merge copies every key of from into into; later values win.
func Merge(into, from Variables) {
	for k, v := range from {
		into[k] = v
	}
}

// MissingPolicy selects what a placeholder with no bound variable becomes.
type MissingPolicy int

const (
	// MissingUndefined renders the literal "undefined".
	MissingUndefined MissingPolicy = iota
	// MissingError fails substitution.
	MissingError
)

func (p MissingPolicy) String() string {
	switch p {
	case MissingUndefined:
		return "undefined"
	case MissingError:
		return "error"
	default:
		return fmt.Sprintf("MissingPolicy(%d)", int(p))
	}
}

// Substitute replaces every ${name} in template with the stringified value
// of vars[name]. Missing names render as "undefined".
func Substitute(template string, vars Variables) string {
	out, _ := SubstituteWith(template, vars, MissingUndefined)
	return out
}

// SubstituteStrict is Substitute with MissingError.
func SubstituteStrict(template string, vars Variables) (string, error) {
	return SubstituteWith(template, vars, MissingError)
}

// SubstituteWith substitutes under the given policy. Under MissingError the
// error names every missing variable once, in order of first use.
func SubstituteWith(template string, vars Variables, policy MissingPolicy) (string, error) {
	if !strings.Contains(template, "${") {
		return template, nil
	}
	if policy == MissingError {
		if missing := Missing(template, vars); len(missing) > 0 {
			quoted := make([]string, len(missing))
			for i, name := range missing {
				quoted[i] = strconv.Quote(name)
			}
			return "", fmt.Errorf("%w: %s", ErrMissingVariable, strings.Join(quoted, ", "))
		}
	}

	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		v, ok := vars[m[2:len(m)-1]]
		if !ok {
			return Undefined
		}
		return Stringify(v)
	}), nil
}

// Missing lists the placeholder names in template that vars does not set,
// without duplicates.
func Missing(template string, vars Variables) []string {
	var missing []string
	for _, name := range Placeholders(template) {
		if _, ok := vars[name]; !ok && !slices.Contains(missing, name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Placeholders lists the variable names referenced by template, in order.
func Placeholders(template string) []string {
	matches := placeholderRe.FindAllStringSubmatch(template, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// MarkerName reports whether s contains an @{...} marker and returns the
// captured name, which may be empty.
func MarkerName(s string) (string, bool) {
	m := markerRe.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// HasMarker reports whether s contains an @{...} marker.
func HasMarker(s string) bool {
	return markerRe.MatchString(s)
}

// Stringify renders a JSON-compatible value the way a JavaScript String()
// call would.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatNumber(x)
	case float32:
		return formatNumber(float64(x))
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case interface{ String() string }:
		return x.String()
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			if e == nil {
				continue
			}
			parts[i] = Stringify(e)
		}
		return strings.Join(parts, ",")
	case map[string]any:
		return "[object Object]"
	default:
		return fmt.Sprint(x)
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		// Go pads the exponent to two digits; JavaScript does not.
		mant, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		exp = strings.TrimLeft(exp[1:], "0")
		return mant + "e" + sign + exp
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

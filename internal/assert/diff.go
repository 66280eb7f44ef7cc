package assert

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wI2L/jsondiff"

	"github.com/teester/teester/internal/token"
)

// Diff describes how actual departs from expected as one line per JSON
// pointer. It is informational only; Equal decides pass/fail. Paths whose
// expected value is a marker are omitted, as are additions under Subset.
func Diff(actual, expected any, mode Mode) []string {
	patch, err := jsondiff.Compare(expected, actual)
	if err != nil {
		return []string{fmt.Sprintf("diff unavailable: %v", err)}
	}

	var lines []string
	for _, op := range patch {
		path := fmt.Sprintf("%v", op.Path)
		switch op.Type {
		case jsondiff.OperationAdd:
			if mode == Subset {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: unexpected %s", path, render(op.Value)))
		case jsondiff.OperationRemove:
			want, _ := lookup(expected, path)
			lines = append(lines, fmt.Sprintf("%s: missing, expected %s", path, render(want)))
		case jsondiff.OperationReplace:
			want, _ := lookup(expected, path)
			if s, ok := want.(string); ok && token.HasMarker(s) {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: expected %s, got %s", path, render(want), render(op.Value)))
		}
	}
	return lines
}

func render(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("%v", v)
}

// lookup resolves an RFC 6901 pointer against v.
func lookup(v any, pointer string) (any, bool) {
	if pointer == "" {
		return v, true
	}
	cur := v
	for _, part := range strings.Split(strings.TrimPrefix(pointer, "/"), "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		obj, ok := asObject(cur)
		if !ok {
			return nil, false
		}
		if cur, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return cur, true
}

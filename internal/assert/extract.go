package assert

import "github.com/teester/teester/internal/token"

// Extract binds each @{name} marker found at the top level of template to
// the value actual holds under the same key. Keys missing on either side
// are skipped, as are markers with an empty name.
func Extract(actual, template any) token.Variables {
	vars := token.Variables{}

	tObj, ok := asObject(template)
	if !ok {
		return vars
	}
	aObj, ok := asObject(actual)
	if !ok {
		return vars
	}

	for k, leaf := range tObj {
		av, ok := aObj[k]
		if !ok {
			continue
		}
		name, marked := token.MarkerName(token.Stringify(leaf))
		if !marked || name == "" {
			continue
		}
		vars[name] = av
	}
	return vars
}

package runner

import (
	"errors"
	"testing"
)

func TestParseTemplate(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr bool
		empty   bool
	}{
		{"object", `{"a":1}`, false, false},
		{"array", `[1]`, false, false},
		{"number", `3`, false, false},
		{"blank", "  ", true, true},
		{"malformed", `{"a":`, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParseTemplate(tt.text)
			if (p.Err != nil) != tt.wantErr {
				t.Errorf("Err = %v, wantErr %v", p.Err, tt.wantErr)
			}
			if p.Empty != tt.empty {
				t.Errorf("Empty = %v, want %v", p.Empty, tt.empty)
			}
		})
	}
}

func TestParseObjectRejectsNonObjects(t *testing.T) {
	for _, text := range []string{`[1,2]`, `"s"`, `null`, `true`} {
		p := ParseObject(text)
		if !errors.Is(p.Err, errNotObject) {
			t.Errorf("ParseObject(%s) err = %v, want errNotObject", text, p.Err)
		}
	}
	if p := ParseObject(`{"k":"v"}`); p.Err != nil {
		t.Errorf("unexpected error %v", p.Err)
	}
}

func TestResolve(t *testing.T) {
	bad := ParseTemplate(`nope`)

	v, fallback, err := EmptyObjectOnError.Resolve(bad)
	if err != nil || !fallback {
		t.Fatalf("expected fallback, got %v %v", fallback, err)
	}
	if m, ok := v.(map[string]any); !ok || len(m) != 0 {
		t.Errorf("expected empty object, got %#v", v)
	}

	if _, _, err := FailOnError.Resolve(bad); err == nil {
		t.Error("expected error under FailOnError")
	}

	v, fallback, err = FailOnError.Resolve(ParseTemplate(""))
	if err != nil || fallback {
		t.Errorf("blank template should resolve silently, got %v %v", fallback, err)
	}
	if m, ok := v.(map[string]any); !ok || len(m) != 0 {
		t.Errorf("expected empty object, got %#v", v)
	}

	v, _, err = FailOnError.Resolve(ParseTemplate(`{"a":1}`))
	if err != nil || v.(map[string]any)["a"] != float64(1) {
		t.Errorf("unexpected %v %v", v, err)
	}
}

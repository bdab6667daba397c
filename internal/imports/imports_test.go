package imports

import (
	"strings"
	"testing"
)

func modSig(path, version string) *ModuleSignature {
	return &ModuleSignature{Path: path, Version: version}
}

func TestCheckCompatibility(t *testing.T) {
	loaded := []*ModuleSignature{
		modSig("math/linear", "1.4.2"),
		modSig("io/mesh", "0.9.0"),
	}

	tests := []struct {
		name    string
		reqs    []Requirement
		wantErr string
	}{
		{
			name: "satisfied caret",
			reqs: []Requirement{{Path: "math/linear", Constraint: "^1.2"}},
		},
		{
			name: "satisfied range",
			reqs: []Requirement{{Path: "io/mesh", Constraint: ">=0.8, <1.0"}},
		},
		{
			name: "empty constraint accepts any version",
			reqs: []Requirement{{Path: "math/linear"}},
		},
		{
			name:    "major version too old",
			reqs:    []Requirement{{Path: "math/linear", Constraint: "^2.0"}},
			wantErr: "math/linear",
		},
		{
			name:    "module not loaded",
			reqs:    []Requirement{{Path: "gpu/kernels", Constraint: "^1.0"}},
			wantErr: "gpu/kernels",
		},
		{
			name:    "malformed constraint",
			reqs:    []Requirement{{Path: "math/linear", Constraint: "not-a-range"}},
			wantErr: "constraint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := CheckCompatibility(tt.reqs, loaded)

			if tt.wantErr == "" {
				if len(errs) != 0 {
					t.Fatalf("unexpected errors: %v", errs)
				}

				return
			}

			if len(errs) == 0 {
				t.Fatal("expected an error")
			}

			if !strings.Contains(errs[0].Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", errs[0], tt.wantErr)
			}
		})
	}
}

func TestCheckCompatibilityInvalidVersion(t *testing.T) {
	loaded := []*ModuleSignature{modSig("math/linear", "garbage")}
	errs := CheckCompatibility([]Requirement{{Path: "math/linear", Constraint: "^1.0"}}, loaded)

	if len(errs) == 0 {
		t.Fatal("malformed loaded version not reported")
	}
}

func TestCheckCompatibilityMultipleFailures(t *testing.T) {
	loaded := []*ModuleSignature{modSig("a", "1.0.0")}
	errs := CheckCompatibility([]Requirement{
		{Path: "a", Constraint: "^2.0"},
		{Path: "b", Constraint: "^1.0"},
	}, loaded)

	if len(errs) != 2 {
		t.Fatalf("got %d errors, want 2: %v", len(errs), errs)
	}
}

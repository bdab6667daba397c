// Package imports models the exported surface of already-checked
// modules. The host toolchain resolves and loads dependencies; this
// package only carries their signatures into signature collection and
// gates them by version constraint.
package imports

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/tessera-lang/tessera/internal/ast"
)

// FunctionSig is one exported function of an imported module. Parameter
// and return types are carried as type expressions and resolved against
// the importing unit's interner during signature collection.
type FunctionSig struct {
	Name   string
	Params []ast.TypeExpr
	Return ast.TypeExpr // nil means unit
}

// ModuleSignature is the checked surface of one imported module at a
// concrete version.
type ModuleSignature struct {
	Path      string
	Version   string
	Functions []FunctionSig
}

// Requirement pins an import path to a version constraint the importing
// unit was checked against, e.g. ">=1.2.0, <2.0.0".
type Requirement struct {
	Path       string
	Constraint string
}

// CheckCompatibility verifies that every requirement is met by a loaded
// module signature: the module must be present and its version must
// satisfy the declared constraint. It returns one error per violation.
func CheckCompatibility(reqs []Requirement, loaded []*ModuleSignature) []error {
	byPath := make(map[string]*ModuleSignature, len(loaded))
	for _, m := range loaded {
		byPath[m.Path] = m
	}

	var errs []error

	for _, req := range reqs {
		mod, ok := byPath[req.Path]
		if !ok {
			errs = append(errs, fmt.Errorf("required module %s is not loaded", req.Path))

			continue
		}

		c, err := parseConstraint(req.Constraint)
		if err != nil {
			errs = append(errs, fmt.Errorf("module %s: invalid constraint %q: %w", req.Path, req.Constraint, err))

			continue
		}

		v, err := semver.NewVersion(mod.Version)
		if err != nil {
			errs = append(errs, fmt.Errorf("module %s: invalid version %q: %w", req.Path, mod.Version, err))

			continue
		}

		if !c.Check(v) {
			errs = append(errs, fmt.Errorf("module %s version %s does not satisfy constraint %s",
				req.Path, mod.Version, req.Constraint))
		}
	}

	return errs
}

// parseConstraint treats an empty constraint as "any version".
func parseConstraint(expr string) (*semver.Constraints, error) {
	if expr == "" {
		return semver.NewConstraint(">=0.0.0")
	}

	return semver.NewConstraint(expr)
}

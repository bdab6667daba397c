// Package analysis drives the full pipeline over one compilation unit:
// resolve scopes, collect signatures, then run per-function type,
// borrow, and escape checks across parallel workers. Signature
// collection is sequential; once the signature table is finalized it
// is read-only, per-function analysis shares no mutable state beyond
// the append-only diagnostic reporter, and results are merged after
// all workers finish.
package analysis

import (
	"context"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tessera-lang/tessera/internal/arenaflow"
	"github.com/tessera-lang/tessera/internal/ast"
	"github.com/tessera-lang/tessera/internal/borrow"
	"github.com/tessera-lang/tessera/internal/checker"
	"github.com/tessera-lang/tessera/internal/diagnostics"
	"github.com/tessera-lang/tessera/internal/imports"
	"github.com/tessera-lang/tessera/internal/resolver"
	"github.com/tessera-lang/tessera/internal/types"
)

// Options configures one analysis run.
type Options struct {
	// Workers bounds parallel per-function analysis; zero or negative
	// means GOMAXPROCS.
	Workers int

	// ErrorLimit stops recording further errors once reached; zero
	// means unlimited.
	ErrorLimit int

	// Suppress drops diagnostics of the listed codes.
	Suppress []diagnostics.Code

	// Imports are the checked signatures of imported modules.
	Imports []*imports.ModuleSignature

	// Requirements gate imported module versions before analysis.
	Requirements []imports.Requirement
}

// Result is the annotated output of one run.
type Result struct {
	// Session identifies this run for the host toolchain's logs and
	// caches.
	Session uuid.UUID

	Resolved *resolver.Result
	Interner *types.Interner
	Info     *checker.Info
	Tags     map[ast.Expression]arenaflow.Tag

	// Diagnostics is the complete, position-ordered diagnostic list.
	Diagnostics []diagnostics.Diagnostic

	reporter *diagnostics.Reporter
}

// HasErrors reports whether any error-severity diagnostic was recorded.
// Code generation must be refused while this holds.
func (r *Result) HasErrors() bool { return r.reporter.HasErrors() }

// ErrorCount returns the number of recorded errors.
func (r *Result) ErrorCount() int { return r.reporter.ErrorCount() }

// Reporter exposes the run's reporter for rendering.
func (r *Result) Reporter() *diagnostics.Reporter { return r.reporter }

// Analyze checks one module. The same module analyzed twice yields the
// same diagnostic set; analysis never mutates the AST.
func Analyze(ctx context.Context, mod *ast.Module, opts Options) *Result {
	reporter := diagnostics.NewReporter()

	if opts.ErrorLimit > 0 {
		reporter.SetErrorLimit(opts.ErrorLimit)
	}

	for _, code := range opts.Suppress {
		reporter.Suppress(code)
	}

	result := &Result{
		Session:  uuid.New(),
		Interner: types.NewInterner(),
		Info:     checker.NewInfo(),
		Tags:     make(map[ast.Expression]arenaflow.Tag),
		reporter: reporter,
	}

	for _, err := range imports.CheckCompatibility(opts.Requirements, opts.Imports) {
		reporter.Error(diagnostics.PhaseResolve, diagnostics.UnresolvedName, mod.GetSpan(), "%v", err)
	}

	// Phase 1: scope resolution, sequential over the whole unit.
	externs := externNames(opts.Imports)
	result.Resolved = resolver.Resolve(mod, externs, reporter)

	// Phase 2: signature collection, sequential; bodies may call
	// functions declared later in source order.
	chk := checker.New(result.Resolved, result.Interner, reporter)
	chk.CollectSignatures(mod, opts.Imports)

	// Phase 3: per-function body analysis in parallel. Type checking
	// runs first per function since borrow rules depend on whether a
	// type is a reference, an owned value, or arena-tagged.
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	fns := moduleFunctions(mod)
	perFn := make([]funcOutput, len(fns))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, fn := range fns {
		g.Go(func() error {
			info := chk.CheckFunction(fn)
			borrowRes := borrow.Check(fn, result.Resolved, result.Interner, info, reporter)
			escRes := arenaflow.Check(fn, result.Resolved, borrowRes, reporter)

			perFn[i] = funcOutput{info: info, tags: escRes.Tags}

			return nil
		})
	}

	// Workers only signal completion; diagnostics flow through the
	// reporter.
	_ = g.Wait()

	for _, out := range perFn {
		if out.info != nil {
			result.Info.Merge(out.info)
		}

		for k, v := range out.tags {
			result.Tags[k] = v
		}
	}

	result.Diagnostics = reporter.Sorted()

	return result
}

type funcOutput struct {
	info *checker.Info
	tags map[ast.Expression]arenaflow.Tag
}

func moduleFunctions(mod *ast.Module) []*ast.FunctionDecl {
	var fns []*ast.FunctionDecl

	for _, decl := range mod.Decls {
		if fn, ok := decl.(*ast.FunctionDecl); ok {
			fns = append(fns, fn)
		}
	}

	return fns
}

func externNames(mods []*imports.ModuleSignature) []string {
	var names []string

	for _, m := range mods {
		for _, fn := range m.Functions {
			names = append(names, fn.Name)
		}
	}

	return names
}

package analysis

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/google/uuid"

	"github.com/tessera-lang/tessera/internal/ast"
	"github.com/tessera-lang/tessera/internal/diagnostics"
	"github.com/tessera-lang/tessera/internal/imports"
	"github.com/tessera-lang/tessera/internal/position"
)

var spanCounter int

func sp() position.Span {
	spanCounter += 4

	return position.Span{
		Start: position.Position{Filename: "unit.tsr", Line: 1, Column: spanCounter + 1, Offset: spanCounter},
		End:   position.Position{Filename: "unit.tsr", Line: 1, Column: spanCounter + 3, Offset: spanCounter + 2},
	}
}

func id(name string) *ast.Ident { return &ast.Ident{Span: sp(), Name: name} }

func fnOf(name string, body ...ast.Statement) *ast.FunctionDecl {
	return &ast.FunctionDecl{
		Span: sp(),
		Name: name,
		Body: &ast.Block{Span: sp(), Stmts: body},
	}
}

// brokenFn uses an undeclared name, producing one resolve error.
func brokenFn(name string) *ast.FunctionDecl {
	return fnOf(name, &ast.ExprStmt{Span: sp(), X: id("missing_" + name)})
}

func module(decls ...ast.Declaration) *ast.Module {
	return &ast.Module{Name: "unit", Span: sp(), Decls: decls}
}

func TestAnalyzeCleanModule(t *testing.T) {
	mod := module(fnOf("f",
		&ast.LetStmt{Span: sp(), Name: "x", Init: &ast.IntLit{Span: sp(), Value: 1}},
		&ast.ExprStmt{Span: sp(), X: id("x")},
	))

	result := Analyze(context.Background(), mod, Options{})

	if result.HasErrors() {
		t.Fatalf("clean module has errors: %v", result.Diagnostics)
	}

	if result.Session == uuid.Nil {
		t.Error("session ID not assigned")
	}

	if result.Resolved == nil || result.Info == nil {
		t.Error("result missing resolution or type info")
	}
}

func TestDiagnosticsAreDeterministic(t *testing.T) {
	build := func() *ast.Module {
		spanCounter = 1000

		var decls []ast.Declaration
		for i := 0; i < 8; i++ {
			decls = append(decls, brokenFn(fmt.Sprintf("f%d", i)))
		}

		return module(decls...)
	}

	first := Analyze(context.Background(), build(), Options{Workers: 4})
	second := Analyze(context.Background(), build(), Options{Workers: 4})

	if len(first.Diagnostics) == 0 {
		t.Fatal("expected diagnostics from broken functions")
	}

	if !reflect.DeepEqual(first.Diagnostics, second.Diagnostics) {
		t.Errorf("diagnostic output differs between identical runs:\n%v\n%v",
			first.Diagnostics, second.Diagnostics)
	}
}

func TestSessionsAreDistinct(t *testing.T) {
	mod := module(fnOf("f"))

	a := Analyze(context.Background(), mod, Options{})
	b := Analyze(context.Background(), mod, Options{})

	if a.Session == b.Session {
		t.Error("two runs share a session ID")
	}
}

func TestWorkerCountDoesNotChangeResults(t *testing.T) {
	build := func() *ast.Module {
		spanCounter = 2000

		var decls []ast.Declaration
		for i := 0; i < 16; i++ {
			decls = append(decls, brokenFn(fmt.Sprintf("g%d", i)))
		}

		return module(decls...)
	}

	serial := Analyze(context.Background(), build(), Options{Workers: 1})
	parallel := Analyze(context.Background(), build(), Options{Workers: 8})

	if serial.ErrorCount() != 16 || parallel.ErrorCount() != 16 {
		t.Errorf("error counts %d (serial) and %d (parallel), want 16 each",
			serial.ErrorCount(), parallel.ErrorCount())
	}
}

func TestErrorLimit(t *testing.T) {
	var decls []ast.Declaration
	for i := 0; i < 10; i++ {
		decls = append(decls, brokenFn(fmt.Sprintf("h%d", i)))
	}

	result := Analyze(context.Background(), module(decls...), Options{Workers: 1, ErrorLimit: 3})

	if got := result.ErrorCount(); got != 3 {
		t.Errorf("error limit 3 recorded %d errors", got)
	}
}

func TestSuppressedCodesDropped(t *testing.T) {
	result := Analyze(context.Background(), module(brokenFn("f")),
		Options{Suppress: []diagnostics.Code{diagnostics.UnresolvedName}})

	if result.HasErrors() {
		t.Errorf("suppressed code still reported: %v", result.Diagnostics)
	}
}

func TestImportedFunctionsResolve(t *testing.T) {
	sig := &imports.ModuleSignature{
		Path:    "math/linear",
		Version: "1.2.0",
		Functions: []imports.FunctionSig{
			{Name: "identity", Return: &ast.NamedType{Span: sp(), Name: "f32"}},
		},
	}

	mod := module(fnOf("f",
		&ast.LetStmt{Span: sp(), Name: "x",
			Init: &ast.CallExpr{Span: sp(), Callee: id("identity")}},
	))

	result := Analyze(context.Background(), mod, Options{Imports: []*imports.ModuleSignature{sig}})

	if result.HasErrors() {
		t.Fatalf("call to imported function rejected: %v", result.Diagnostics)
	}
}

func TestVersionRequirementGatesAnalysis(t *testing.T) {
	sig := &imports.ModuleSignature{Path: "math/linear", Version: "1.2.0"}

	result := Analyze(context.Background(), module(fnOf("f")), Options{
		Imports:      []*imports.ModuleSignature{sig},
		Requirements: []imports.Requirement{{Path: "math/linear", Constraint: "^2.0"}},
	})

	if !result.HasErrors() {
		t.Fatal("incompatible module version not reported")
	}

	// A satisfied constraint passes.
	result = Analyze(context.Background(), module(fnOf("f")), Options{
		Imports:      []*imports.ModuleSignature{sig},
		Requirements: []imports.Requirement{{Path: "math/linear", Constraint: "^1.1"}},
	})

	if result.HasErrors() {
		t.Fatalf("compatible module version rejected: %v", result.Diagnostics)
	}
}

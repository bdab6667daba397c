package arenaflow

import (
	"testing"

	"github.com/tessera-lang/tessera/internal/ast"
	"github.com/tessera-lang/tessera/internal/borrow"
	"github.com/tessera-lang/tessera/internal/checker"
	"github.com/tessera-lang/tessera/internal/diagnostics"
	"github.com/tessera-lang/tessera/internal/position"
	"github.com/tessera-lang/tessera/internal/resolver"
	"github.com/tessera-lang/tessera/internal/types"
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

func bufLit() *ast.StructLit {
	return &ast.StructLit{Span: sp(), Name: "Buf", Fields: []*ast.FieldInit{
		{Span: sp(), Name: "n", Value: &ast.IntLit{Span: sp(), Value: 1}},
	}}
}

func bufDecl() *ast.StructDecl {
	return &ast.StructDecl{Span: sp(), Name: "Buf", Fields: []*ast.Field{
		{Span: sp(), Name: "n", Type: &ast.NamedType{Span: sp(), Name: "i32"}},
	}}
}

func alloc(arena string, value ast.Expression) *ast.AllocExpr {
	return &ast.AllocExpr{Span: sp(), Arena: id(arena), Value: value}
}

func let(name string, init ast.Expression) *ast.LetStmt {
	return &ast.LetStmt{Span: sp(), Name: name, Mutable: true, Init: init}
}

func arenaBlk(name string, body ...ast.Statement) *ast.ArenaStmt {
	return &ast.ArenaStmt{Span: sp(), Name: name, Body: &ast.Block{Span: sp(), Stmts: body}}
}

func fnOf(name string, ret ast.TypeExpr, body ...ast.Statement) *ast.FunctionDecl {
	return &ast.FunctionDecl{
		Span:       sp(),
		Name:       name,
		ReturnType: ret,
		Body:       &ast.Block{Span: sp(), Stmts: body},
	}
}

// run executes the full per-function pipeline up to escape analysis.
func run(t *testing.T, decls ...ast.Declaration) (*diagnostics.Reporter, *Result) {
	t.Helper()

	mod := &ast.Module{Name: "unit", Span: sp(), Decls: decls}
	reporter := diagnostics.NewReporter()
	res := resolver.Resolve(mod, nil, reporter)

	c := checker.New(res, types.NewInterner(), reporter)
	c.CollectSignatures(mod, nil)

	out := &Result{Tags: make(map[ast.Expression]Tag)}

	for _, decl := range decls {
		f, ok := decl.(*ast.FunctionDecl)
		if !ok {
			continue
		}

		info := c.CheckFunction(f)
		borrowRes := borrow.Check(f, res, c.Interner(), info, reporter)
		fnRes := Check(f, res, borrowRes, reporter)

		for e, tag := range fnRes.Tags {
			out.Tags[e] = tag
		}
	}

	if n := len(reporter.ByCode(diagnostics.UnresolvedName)) +
		len(reporter.ByCode(diagnostics.TypeMismatch)); n != 0 {
		t.Fatalf("test program does not type check: %v", reporter.Sorted())
	}

	return reporter, out
}

func wantEscapes(t *testing.T, reporter *diagnostics.Reporter, n int) []diagnostics.Diagnostic {
	t.Helper()

	got := reporter.ByCode(diagnostics.ArenaEscape)
	if len(got) != n {
		t.Fatalf("got %d escape diagnostics, want %d; all: %v", len(got), n, reporter.Sorted())
	}

	return got
}

func TestAllocationTaggedWithArena(t *testing.T) {
	ae := alloc("a", bufLit())

	_, result := run(t, bufDecl(), fnOf("f", nil,
		arenaBlk("a",
			let("v", ae),
		),
	))

	tag, ok := result.Tags[ae]
	if !ok {
		t.Fatal("no tag recorded for allocation expression")
	}

	if tag.Kind != TagArenaAllocated || tag.Arena == nil || tag.Arena.Name != "a" {
		t.Errorf("allocation tagged %v, want arena allocation in 'a'", tag)
	}

	if !tag.Tainted() {
		t.Error("arena allocation not tainted")
	}
}

func TestReturnEscapesArena(t *testing.T) {
	reporter, _ := run(t, bufDecl(), fnOf("f", &ast.NamedType{Span: sp(), Name: "Buf"},
		arenaBlk("a",
			let("v", alloc("a", bufLit())),
			&ast.ReturnStmt{Span: sp(), Value: id("v")},
		),
	))

	d := wantEscapes(t, reporter, 1)
	if len(d[0].Related) == 0 || d[0].Related[0].Message != "allocated here" {
		t.Errorf("escape does not cite the allocation site: %v", d[0].Related)
	}
}

func TestPromotionClearsTaint(t *testing.T) {
	reporter, _ := run(t, bufDecl(), fnOf("f", &ast.NamedType{Span: sp(), Name: "Buf"},
		arenaBlk("a",
			let("v", alloc("a", bufLit())),
			&ast.ReturnStmt{Span: sp(), Value: &ast.PromoteExpr{Span: sp(), Value: id("v")}},
		),
	))

	wantEscapes(t, reporter, 0)
}

func TestStoreIntoOuterBinding(t *testing.T) {
	reporter, _ := run(t, bufDecl(), fnOf("f", nil,
		let("out", bufLit()),
		arenaBlk("a",
			&ast.AssignStmt{Span: sp(), Target: id("out"), Value: alloc("a", bufLit())},
		),
	))

	wantEscapes(t, reporter, 1)
}

func TestStoreWithinArenaScope(t *testing.T) {
	reporter, _ := run(t, bufDecl(), fnOf("f", nil,
		arenaBlk("a",
			let("v", alloc("a", bufLit())),
			let("w", id("v")),
		),
	))

	wantEscapes(t, reporter, 0)
}

func TestInnerArenaValueIntoOuterArena(t *testing.T) {
	reporter, _ := run(t, bufDecl(), fnOf("f", nil,
		arenaBlk("outer",
			arenaBlk("inner",
				let("v", alloc("inner", bufLit())),
				let("w", alloc("outer", id("v"))),
			),
		),
	))

	wantEscapes(t, reporter, 1)
}

func TestOuterArenaValueIntoInnerArena(t *testing.T) {
	// The inner arena dies first, so a longer-lived value stored there
	// is fine.
	reporter, _ := run(t, bufDecl(), fnOf("f", nil,
		arenaBlk("outer",
			let("v", alloc("outer", bufLit())),
			arenaBlk("inner",
				let("w", alloc("inner", id("v"))),
			),
		),
	))

	wantEscapes(t, reporter, 0)
}

func TestReferenceCarriesTaint(t *testing.T) {
	ref := &ast.RefExpr{Span: sp(), Target: id("v")}

	_, result := run(t, bufDecl(), fnOf("f", nil,
		arenaBlk("a",
			let("v", alloc("a", bufLit())),
			let("r", ref),
			&ast.ExprStmt{Span: sp(), X: id("r")},
		),
	))

	tag, ok := result.Tags[ref]
	if !ok {
		t.Fatal("no tag recorded for the reference")
	}

	if tag.Kind != TagBorrowedShared || !tag.Tainted() {
		t.Errorf("reference into arena storage tagged %v, want tainted borrow", tag)
	}
}

func TestMatchDestructuringCarriesTaint(t *testing.T) {
	wrap := &ast.EnumDecl{Span: sp(), Name: "Wrap", Variants: []*ast.Variant{
		{Span: sp(), Name: "Hold", Payload: []ast.TypeExpr{&ast.NamedType{Span: sp(), Name: "Buf"}}},
	}}

	reporter, _ := run(t, bufDecl(), wrap, fnOf("f", &ast.NamedType{Span: sp(), Name: "Buf"},
		arenaBlk("a",
			let("e", alloc("a", &ast.CallExpr{Span: sp(),
				Callee: &ast.PathExpr{Span: sp(), Type: "Wrap", Member: "Hold"},
				Args:   []ast.Expression{bufLit()},
			})),
			&ast.MatchStmt{Span: sp(), Subject: id("e"), Arms: []*ast.MatchArm{
				{Span: sp(), Pattern: &ast.VariantPattern{Span: sp(), Variant: "Hold", Binds: []string{"v"}},
					Body: &ast.Block{Span: sp(), Stmts: []ast.Statement{
						&ast.ReturnStmt{Span: sp(), Value: id("v")},
					}}},
			}},
		),
	))

	d := wantEscapes(t, reporter, 1)
	if len(d[0].Related) == 0 || d[0].Related[0].Message != "allocated here" {
		t.Errorf("escape does not cite the allocation site: %v", d[0].Related)
	}
}

func TestMatchOnUntaintedSubject(t *testing.T) {
	wrap := &ast.EnumDecl{Span: sp(), Name: "Wrap", Variants: []*ast.Variant{
		{Span: sp(), Name: "Hold", Payload: []ast.TypeExpr{&ast.NamedType{Span: sp(), Name: "Buf"}}},
	}}

	reporter, _ := run(t, bufDecl(), wrap, fnOf("f", &ast.NamedType{Span: sp(), Name: "Buf"},
		let("e", &ast.CallExpr{Span: sp(),
			Callee: &ast.PathExpr{Span: sp(), Type: "Wrap", Member: "Hold"},
			Args:   []ast.Expression{bufLit()},
		}),
		&ast.MatchStmt{Span: sp(), Subject: id("e"), Arms: []*ast.MatchArm{
			{Span: sp(), Pattern: &ast.VariantPattern{Span: sp(), Variant: "Hold", Binds: []string{"v"}},
				Body: &ast.Block{Span: sp(), Stmts: []ast.Statement{
					&ast.ReturnStmt{Span: sp(), Value: id("v")},
				}}},
		}},
	))

	wantEscapes(t, reporter, 0)
}

func TestAggregateTaintedByMember(t *testing.T) {
	reporter, _ := run(t, bufDecl(), fnOf("f", nil,
		let("out", &ast.TupleLit{Span: sp(), Elems: []ast.Expression{bufLit(), bufLit()}}),
		arenaBlk("a",
			let("v", alloc("a", bufLit())),
			&ast.AssignStmt{Span: sp(), Target: id("out"),
				Value: &ast.TupleLit{Span: sp(), Elems: []ast.Expression{id("v"), bufLit()}}},
		),
	))

	wantEscapes(t, reporter, 1)
}

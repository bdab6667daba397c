package checker

import (
	"strings"
	"testing"

	"github.com/tessera-lang/tessera/internal/ast"
	"github.com/tessera-lang/tessera/internal/diagnostics"
	"github.com/tessera-lang/tessera/internal/position"
	"github.com/tessera-lang/tessera/internal/resolver"
	"github.com/tessera-lang/tessera/internal/types"
)

var spanCounter int

// sp hands out distinct spans so separate findings never deduplicate.
func sp() position.Span {
	spanCounter += 4

	return position.Span{
		Start: position.Position{Filename: "unit.tsr", Line: 1, Column: spanCounter + 1, Offset: spanCounter},
		End:   position.Position{Filename: "unit.tsr", Line: 1, Column: spanCounter + 3, Offset: spanCounter + 2},
	}
}

func named(name string) *ast.NamedType { return &ast.NamedType{Span: sp(), Name: name} }

func vecType(elem string, n int64) *ast.VectorType {
	return &ast.VectorType{Span: sp(), Elem: named(elem), Len: ast.DimExpr{Lit: n}}
}

func vecTypeP(elem, param string) *ast.VectorType {
	return &ast.VectorType{Span: sp(), Elem: named(elem), Len: ast.DimExpr{Param: param}}
}

func matType(elem string, rows, cols int64) *ast.MatrixType {
	return &ast.MatrixType{Span: sp(), Elem: named(elem), Rows: ast.DimExpr{Lit: rows}, Cols: ast.DimExpr{Lit: cols}}
}

func intLit(v int64) *ast.IntLit     { return &ast.IntLit{Span: sp(), Value: v} }
func floatLit(v float64) *ast.FloatLit { return &ast.FloatLit{Span: sp(), Value: v} }
func id(name string) *ast.Ident      { return &ast.Ident{Span: sp(), Name: name} }

func vecLit(elems ...ast.Expression) *ast.VectorLit {
	return &ast.VectorLit{Span: sp(), Elems: elems}
}

func binary(op ast.BinaryOp, l, r ast.Expression) *ast.BinaryExpr {
	return &ast.BinaryExpr{Span: sp(), Op: op, Left: l, Right: r}
}

func letT(name string, t ast.TypeExpr, init ast.Expression) *ast.LetStmt {
	return &ast.LetStmt{Span: sp(), Name: name, Type: t, Init: init}
}

func fn(name string, params []*ast.Param, ret ast.TypeExpr, body ...ast.Statement) *ast.FunctionDecl {
	return &ast.FunctionDecl{
		Span:       sp(),
		Name:       name,
		Params:     params,
		ReturnType: ret,
		Body:       &ast.Block{Span: sp(), Stmts: body},
	}
}

func param(name string, t ast.TypeExpr) *ast.Param {
	return &ast.Param{Span: sp(), Name: name, Type: t}
}

// check runs resolution, signature collection, and all body checks.
func check(t *testing.T, decls ...ast.Declaration) (*diagnostics.Reporter, *Info, *Checker) {
	t.Helper()

	mod := &ast.Module{Name: "unit", Span: sp(), Decls: decls}
	reporter := diagnostics.NewReporter()
	res := resolver.Resolve(mod, nil, reporter)

	c := New(res, types.NewInterner(), reporter)
	c.CollectSignatures(mod, nil)

	info := NewInfo()

	for _, decl := range decls {
		if f, ok := decl.(*ast.FunctionDecl); ok {
			info.Merge(c.CheckFunction(f))
		}
	}

	return reporter, info, c
}

func wantCode(t *testing.T, reporter *diagnostics.Reporter, code diagnostics.Code, n int) []diagnostics.Diagnostic {
	t.Helper()

	got := reporter.ByCode(code)
	if len(got) != n {
		t.Fatalf("got %d %s diagnostics, want %d; all: %v", len(got), code, n, reporter.Sorted())
	}

	return got
}

func TestVectorLiteralLengthMismatch(t *testing.T) {
	// let v: vec4<f32> = [1.0, 2.0]; -> ShapeMismatch citing 4 vs 2.
	reporter, _, _ := check(t, fn("f", nil, nil,
		letT("v", vecType("f32", 4), vecLit(floatLit(1), floatLit(2))),
	))

	d := wantCode(t, reporter, diagnostics.ShapeMismatch, 1)
	if !strings.Contains(d[0].Message, "4") || !strings.Contains(d[0].Message, "2") {
		t.Errorf("message does not cite both shapes: %q", d[0].Message)
	}
}

func TestVectorLiteralExactLengthAccepted(t *testing.T) {
	reporter, _, _ := check(t, fn("f", nil, nil,
		letT("v", vecType("f32", 4), vecLit(floatLit(1), floatLit(2), floatLit(3), floatLit(4))),
	))

	if reporter.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", reporter.Sorted())
	}
}

func TestIntLiteralAdoptsExpectedType(t *testing.T) {
	use := id("x")

	reporter, info, c := check(t, fn("f", nil, nil,
		letT("x", named("i64"), intLit(1)),
		&ast.ExprStmt{Span: sp(), X: use},
	))

	if reporter.HasErrors() {
		t.Fatalf("unexpected diagnostics: %v", reporter.Sorted())
	}

	// The inference result surfaces through the side table.
	if got := info.TypeOf(use); got != c.Interner().I64 {
		t.Errorf("use of x typed %d, want i64", got)
	}
}

func TestIntLiteralDefaultsToI32(t *testing.T) {
	lit := intLit(7)

	_, info, c := check(t, fn("f", nil, nil,
		&ast.LetStmt{Span: sp(), Name: "x", Init: lit},
	))

	if info.TypeOf(lit) != c.Interner().I32 {
		t.Errorf("unannotated int literal typed %d, want i32", info.TypeOf(lit))
	}
}

func TestMatrixMultiplyShapes(t *testing.T) {
	// fn f(a: mat3x4<f32>, b: mat4x4<f32>) -> mat3x4<f32> { return a * b; }
	reporter, _, _ := check(t, fn("f",
		[]*ast.Param{param("a", matType("f32", 3, 4)), param("b", matType("f32", 4, 4))},
		matType("f32", 3, 4),
		&ast.ReturnStmt{Span: sp(), Value: binary(ast.OpMul, id("a"), id("b"))},
	))

	if reporter.HasErrors() {
		t.Fatalf("valid matmul rejected: %v", reporter.Sorted())
	}

	// a * a has inner dimensions 4 and 3, which do not agree.
	reporter, _, _ = check(t, fn("g",
		[]*ast.Param{param("a", matType("f32", 3, 4))},
		matType("f32", 3, 4),
		&ast.ReturnStmt{Span: sp(), Value: binary(ast.OpMul, id("a"), id("a"))},
	))

	wantCode(t, reporter, diagnostics.ShapeMismatch, 1)
}

func TestMatrixVectorProduct(t *testing.T) {
	reporter, _, _ := check(t, fn("f",
		[]*ast.Param{param("m", matType("f32", 3, 4)), param("v", vecType("f32", 4))},
		vecType("f32", 3),
		&ast.ReturnStmt{Span: sp(), Value: binary(ast.OpMul, id("m"), id("v"))},
	))

	if reporter.HasErrors() {
		t.Fatalf("mat3x4 * vec4 rejected: %v", reporter.Sorted())
	}
}

func TestElementwiseNeedsIdenticalShape(t *testing.T) {
	reporter, _, _ := check(t, fn("f",
		[]*ast.Param{param("a", vecType("f32", 4)), param("b", vecType("f32", 3))},
		vecType("f32", 4),
		&ast.ReturnStmt{Span: sp(), Value: binary(ast.OpAdd, id("a"), id("b"))},
	))

	wantCode(t, reporter, diagnostics.ShapeMismatch, 1)
}

func TestScalarScaling(t *testing.T) {
	reporter, _, _ := check(t, fn("f",
		[]*ast.Param{param("v", vecType("f32", 4)), param("s", named("f32"))},
		vecType("f32", 4),
		&ast.ReturnStmt{Span: sp(), Value: binary(ast.OpMul, id("v"), id("s"))},
	))

	if reporter.HasErrors() {
		t.Fatalf("scalar scaling rejected: %v", reporter.Sorted())
	}
}

func TestDimensionGenericCall(t *testing.T) {
	// fn scale<N: dim>(v: vec<f32, N>, s: f32) -> vec<f32, N>
	// caller passes vec3 and gets vec3 back.
	scale := fn("scale",
		[]*ast.Param{param("v", vecTypeP("f32", "N")), param("s", named("f32"))},
		vecTypeP("f32", "N"),
		&ast.ReturnStmt{Span: sp(), Value: binary(ast.OpMul, id("v"), id("s"))},
	)
	scale.TypeParams = []*ast.TypeParam{{Span: sp(), Name: "N", Kind: ast.TypeParamDim}}

	call := &ast.CallExpr{Span: sp(), Callee: id("scale"), Args: []ast.Expression{id("u"), floatLit(2)}}

	caller := fn("caller",
		[]*ast.Param{param("u", vecType("f32", 3))},
		vecType("f32", 3),
		&ast.ReturnStmt{Span: sp(), Value: call},
	)

	reporter, info, c := check(t, scale, caller)
	if reporter.HasErrors() {
		t.Fatalf("dimension-generic call rejected: %v", reporter.Sorted())
	}

	in := c.Interner()
	if got := info.TypeOf(call); got != in.Vector(in.F32, types.Literal(3)) {
		t.Errorf("call result typed %d, want vec3<f32>", got)
	}

	// Mismatched scalar argument in the same call shape still reports.
	badCall := &ast.CallExpr{Span: sp(), Callee: id("scale"), Args: []ast.Expression{id("u")}}
	badCaller := fn("bad",
		[]*ast.Param{param("u", vecType("f32", 3))},
		vecType("f32", 3),
		&ast.ReturnStmt{Span: sp(), Value: badCall},
	)

	reporter, _, _ = check(t, scale, badCaller)
	wantCode(t, reporter, diagnostics.ArityMismatch, 1)
}

func TestReturnTypeMismatch(t *testing.T) {
	reporter, _, _ := check(t, fn("f", nil, named("bool"),
		&ast.ReturnStmt{Span: sp(), Value: vecLit(floatLit(1))},
	))

	wantCode(t, reporter, diagnostics.TypeMismatch, 1)
}

func TestNonExhaustiveMatch(t *testing.T) {
	enum := &ast.EnumDecl{
		Span: sp(),
		Name: "Light",
		Variants: []*ast.Variant{
			{Span: sp(), Name: "Red"},
			{Span: sp(), Name: "Amber"},
			{Span: sp(), Name: "Green"},
		},
	}

	match := &ast.MatchStmt{
		Span:    sp(),
		Subject: id("l"),
		Arms: []*ast.MatchArm{
			{Span: sp(), Pattern: &ast.VariantPattern{Span: sp(), Variant: "Red"}, Body: &ast.Block{Span: sp()}},
		},
	}

	reporter, _, _ := check(t, enum, fn("f",
		[]*ast.Param{param("l", named("Light"))}, nil, match,
	))

	d := wantCode(t, reporter, diagnostics.NonExhaustiveMatch, 1)
	for _, missing := range []string{"Amber", "Green"} {
		if !strings.Contains(d[0].Message, missing) {
			t.Errorf("message does not name missing variant %s: %q", missing, d[0].Message)
		}
	}
}

func TestWildcardCoversMatch(t *testing.T) {
	enum := &ast.EnumDecl{
		Span: sp(),
		Name: "Light",
		Variants: []*ast.Variant{
			{Span: sp(), Name: "Red"},
			{Span: sp(), Name: "Green"},
		},
	}

	match := &ast.MatchStmt{
		Span:    sp(),
		Subject: id("l"),
		Arms: []*ast.MatchArm{
			{Span: sp(), Pattern: &ast.VariantPattern{Span: sp(), Variant: "Red"}, Body: &ast.Block{Span: sp()}},
			{Span: sp(), Pattern: &ast.WildcardPattern{Span: sp()}, Body: &ast.Block{Span: sp()}},
		},
	}

	reporter, _, _ := check(t, enum, fn("f",
		[]*ast.Param{param("l", named("Light"))}, nil, match,
	))

	if reporter.HasErrors() {
		t.Fatalf("wildcard-covered match rejected: %v", reporter.Sorted())
	}
}

func TestVariantPatternBindArity(t *testing.T) {
	enum := &ast.EnumDecl{
		Span: sp(),
		Name: "Shape",
		Variants: []*ast.Variant{
			{Span: sp(), Name: "Circle", Payload: []ast.TypeExpr{named("f32")}},
		},
	}

	match := &ast.MatchStmt{
		Span:    sp(),
		Subject: id("s"),
		Arms: []*ast.MatchArm{
			{Span: sp(), Pattern: &ast.VariantPattern{Span: sp(), Variant: "Circle", Binds: []string{"r", "extra"}},
				Body: &ast.Block{Span: sp()}},
		},
	}

	reporter, _, _ := check(t, enum, fn("f",
		[]*ast.Param{param("s", named("Shape"))}, nil, match,
	))

	wantCode(t, reporter, diagnostics.ArityMismatch, 1)
}

func TestTryPropagation(t *testing.T) {
	// `?` on an Option inside a function returning Option<i32> is fine.
	reporter, _, _ := check(t, fn("f",
		[]*ast.Param{param("o", &ast.NamedType{Span: sp(), Name: "Option", Args: []ast.TypeExpr{named("i32")}})},
		&ast.NamedType{Span: sp(), Name: "Option", Args: []ast.TypeExpr{named("i32")}},
		&ast.LetStmt{Span: sp(), Name: "v", Init: &ast.TryExpr{Span: sp(), X: id("o")}},
		&ast.ReturnStmt{Span: sp(), Value: &ast.CallExpr{Span: sp(),
			Callee: &ast.PathExpr{Span: sp(), Type: "Option", Member: "Some"},
			Args:   []ast.Expression{id("v")}}},
	))

	if reporter.HasErrors() {
		t.Fatalf("Option propagation rejected: %v", reporter.Sorted())
	}

	// `?` on an Option inside a function returning i32 is incompatible.
	reporter, _, _ = check(t, fn("g",
		[]*ast.Param{param("o", &ast.NamedType{Span: sp(), Name: "Option", Args: []ast.TypeExpr{named("i32")}})},
		named("i32"),
		&ast.ReturnStmt{Span: sp(), Value: &ast.TryExpr{Span: sp(), X: id("o")}},
	))

	wantCode(t, reporter, diagnostics.IncompatiblePropagation, 1)
}

func TestResultErrorTypeMustMatch(t *testing.T) {
	resOf := func(ok, errName string) *ast.NamedType {
		return &ast.NamedType{Span: sp(), Name: "Result", Args: []ast.TypeExpr{named(ok), named(errName)}}
	}

	reporter, _, _ := check(t, fn("f",
		[]*ast.Param{param("r", resOf("i32", "string"))},
		resOf("f32", "bool"),
		&ast.LetStmt{Span: sp(), Name: "v", Init: &ast.TryExpr{Span: sp(), X: id("r")}},
		&ast.ReturnStmt{Span: sp(), Value: &ast.CallExpr{Span: sp(),
			Callee: &ast.PathExpr{Span: sp(), Type: "Result", Member: "Ok"},
			Args:   []ast.Expression{floatLit(1)}}},
	))

	wantCode(t, reporter, diagnostics.IncompatiblePropagation, 1)
}

func TestStructLiteralFields(t *testing.T) {
	strct := &ast.StructDecl{
		Span: sp(),
		Name: "Pose",
		Fields: []*ast.Field{
			{Span: sp(), Name: "pos", Type: vecType("f32", 3)},
			{Span: sp(), Name: "yaw", Type: named("f32")},
		},
	}

	// Missing `yaw` and unknown `roll` both report.
	lit := &ast.StructLit{Span: sp(), Name: "Pose", Fields: []*ast.FieldInit{
		{Span: sp(), Name: "pos", Value: vecLit(floatLit(1), floatLit(2), floatLit(3))},
		{Span: sp(), Name: "roll", Value: floatLit(0)},
	}}

	reporter, _, _ := check(t, strct, fn("f", nil, nil,
		&ast.LetStmt{Span: sp(), Name: "p", Init: lit},
	))

	wantCode(t, reporter, diagnostics.UnresolvedName, 1)
	wantCode(t, reporter, diagnostics.TypeMismatch, 1)
}

func TestPoisonSuppressesCascades(t *testing.T) {
	// ghost is unresolved; the binary expression over it must not add
	// a second diagnostic.
	reporter, _, _ := check(t, fn("f", nil, nil,
		&ast.LetStmt{Span: sp(), Name: "x", Init: binary(ast.OpAdd, id("ghost"), intLit(1))},
	))

	wantCode(t, reporter, diagnostics.UnresolvedName, 1)

	if got := reporter.ErrorCount(); got != 1 {
		t.Errorf("poison did not suppress cascade: %d errors: %v", got, reporter.Sorted())
	}
}

func TestAssignToFunctionNameRejected(t *testing.T) {
	// g = 1; must not quietly record a type for g.
	g := fn("g", nil, nil)
	reporter, info, _ := check(t, g,
		fn("f", nil, nil,
			&ast.AssignStmt{Span: sp(), Target: id("g"), Value: intLit(1)},
		),
	)

	wantCode(t, reporter, diagnostics.TypeMismatch, 1)

	for bind, typ := range info.Bindings {
		if bind.Name == "g" && bind.Kind == resolver.BindFunction && typ != types.NoType {
			t.Errorf("assignment recorded a binding type for function 'g': %v", typ)
		}
	}
}

func TestConditionMustBeBool(t *testing.T) {
	reporter, _, _ := check(t, fn("f", nil, nil,
		&ast.IfStmt{Span: sp(), Cond: intLit(1), Then: &ast.Block{Span: sp()}},
	))

	wantCode(t, reporter, diagnostics.TypeMismatch, 1)
}

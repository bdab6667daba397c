// Per-function body checking. Inference is local and bidirectional:
// unannotated bindings take their initializer's type by structural
// matching, annotated bindings check the initializer against the
// annotation, and expected types flow into literals. Ill-typed
// expressions receive the poison type so dependent expressions do not
// cascade duplicate diagnostics.

package checker

import (
	"strconv"

	"github.com/tessera-lang/tessera/internal/ast"
	"github.com/tessera-lang/tessera/internal/diagnostics"
	"github.com/tessera-lang/tessera/internal/position"
	"github.com/tessera-lang/tessera/internal/resolver"
	"github.com/tessera-lang/tessera/internal/types"
)

// bodyChecker checks one function body against its collected signature.
type bodyChecker struct {
	c    *Checker
	in   *types.Interner
	sig  *FuncSig
	env  *typeEnv
	info *Info
}

// CheckFunction type-checks one function body and returns its Info.
// Safe to call concurrently for distinct functions once signatures are
// collected.
func (c *Checker) CheckFunction(fn *ast.FunctionDecl) *Info {
	sig := c.sigs[fn.Name]
	if sig == nil || fn.Body == nil {
		return NewInfo()
	}

	b := &bodyChecker{
		c:    c,
		in:   c.interner,
		sig:  sig,
		env:  newTypeEnv(fn.TypeParams),
		info: NewInfo(),
	}

	for i, p := range fn.Params {
		if bind := c.res.DeclBinds[p]; bind != nil && i < len(sig.Params) {
			b.info.Bindings[bind] = sig.Params[i]
		}
	}

	b.checkBlock(fn.Body)

	return b.info
}

func (b *bodyChecker) report(code diagnostics.Code, span position.Span, format string, args ...interface{}) types.TypeID {
	b.c.reporter.Error(diagnostics.PhaseTypeCheck, code, span, format, args...)

	return b.in.Poison
}

// ====== Statements ======

func (b *bodyChecker) checkBlock(blk *ast.Block) {
	for _, stmt := range blk.Stmts {
		b.checkStmt(stmt)
	}
}

func (b *bodyChecker) checkStmt(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.Block:
		b.checkBlock(s)

	case *ast.LetStmt:
		b.checkLet(s)

	case *ast.AssignStmt:
		b.checkAssign(s)

	case *ast.ExprStmt:
		b.inferExpr(s.X, types.NoType)

	case *ast.ReturnStmt:
		if s.Value == nil {
			if b.sig.Result != b.in.Unit {
				b.report(diagnostics.TypeMismatch, s.GetSpan(),
					"missing return value: function returns %s", b.in.String(b.sig.Result))
			}

			return
		}

		got := b.inferExpr(s.Value, b.sig.Result)
		b.expect(got, b.sig.Result, s.Value.GetSpan())

	case *ast.IfStmt:
		b.expect(b.inferExpr(s.Cond, b.in.Bool), b.in.Bool, s.Cond.GetSpan())
		b.checkBlock(s.Then)

		if s.Else != nil {
			b.checkStmt(s.Else)
		}

	case *ast.WhileStmt:
		b.expect(b.inferExpr(s.Cond, b.in.Bool), b.in.Bool, s.Cond.GetSpan())
		b.checkBlock(s.Body)

	case *ast.ForStmt:
		b.checkFor(s)

	case *ast.ArenaStmt:
		b.checkBlock(s.Body)

	case *ast.MatchStmt:
		b.checkMatch(s)
	}
}

func (b *bodyChecker) checkLet(s *ast.LetStmt) {
	bind := b.c.res.DeclBinds[s]

	var declared types.TypeID
	if s.Type != nil {
		declared = b.c.ResolveTypeExpr(s.Type, b.env)
	}

	switch {
	case s.Init != nil && declared != types.NoType:
		got := b.inferExpr(s.Init, declared)
		b.expect(got, declared, s.Init.GetSpan())

	case s.Init != nil:
		declared = b.inferExpr(s.Init, types.NoType)

	case declared == types.NoType:
		// Uninitialized and unannotated: the type is fixed by the first
		// assignment instead.
	}

	if bind != nil && declared != types.NoType {
		b.info.Bindings[bind] = declared
	}
}

func (b *bodyChecker) checkAssign(s *ast.AssignStmt) {
	// First assignment into an unannotated `var` fixes its type. Only
	// variable bindings participate: assigning to a function or type
	// name falls through to the ordinary mismatch path.
	if id, ok := s.Target.(*ast.Ident); ok {
		if bind := b.c.res.Uses[id]; bind != nil && bind.Kind == resolver.BindVar {
			if _, known := b.info.Bindings[bind]; !known {
				t := b.inferExpr(s.Value, types.NoType)
				b.info.Bindings[bind] = t
				b.info.Types[id] = t

				return
			}
		}
	}

	target := b.inferExpr(s.Target, types.NoType)
	got := b.inferExpr(s.Value, target)
	b.expect(got, target, s.Value.GetSpan())
}

func (b *bodyChecker) checkFor(s *ast.ForStmt) {
	iter := b.inferExpr(s.Iter, types.NoType)

	elem := b.in.Poison

	switch b.in.Kind(iter) {
	case types.KindArray, types.KindVector:
		elem = b.in.Elem(iter)
	case types.KindPoison:
	default:
		b.report(diagnostics.TypeMismatch, s.Iter.GetSpan(),
			"cannot iterate over %s", b.in.String(iter))
	}

	if bind := b.c.res.ForBinds[s]; bind != nil {
		b.info.Bindings[bind] = elem
	}

	b.checkBlock(s.Body)
}

func (b *bodyChecker) checkMatch(s *ast.MatchStmt) {
	subject := b.inferExpr(s.Subject, types.NoType)

	isEnum := b.in.Kind(subject) == types.KindEnum
	if !isEnum && !b.in.IsPoison(subject) {
		b.report(diagnostics.TypeMismatch, s.Subject.GetSpan(),
			"match subject must be an enum, got %s", b.in.String(subject))
	}

	var variants []types.VariantInfo
	if isEnum {
		variants = b.in.EnumVariants(subject)
	}

	covered := make(map[string]bool)
	sawWildcard := false

	for _, arm := range s.Arms {
		switch p := arm.Pattern.(type) {
		case *ast.WildcardPattern:
			sawWildcard = true

		case *ast.VariantPattern:
			if isEnum {
				b.checkVariantPattern(p, subject, variants, covered)
			}
		}

		b.checkBlock(arm.Body)
	}

	if isEnum && !sawWildcard {
		var missing []string

		for _, v := range variants {
			if !covered[v.Name] {
				missing = append(missing, v.Name)
			}
		}

		if len(missing) > 0 {
			b.report(diagnostics.NonExhaustiveMatch, s.GetSpan(),
				"non-exhaustive match on %s: missing %s",
				b.in.String(subject), joinNames(missing))
		}
	}
}

func (b *bodyChecker) checkVariantPattern(p *ast.VariantPattern, subject types.TypeID, variants []types.VariantInfo, covered map[string]bool) {
	if p.Enum != "" && p.Enum != b.in.Name(subject) {
		b.report(diagnostics.TypeMismatch, p.GetSpan(),
			"pattern names enum %s but subject is %s", p.Enum, b.in.String(subject))

		return
	}

	var variant *types.VariantInfo

	for i := range variants {
		if variants[i].Name == p.Variant {
			variant = &variants[i]

			break
		}
	}

	if variant == nil {
		b.report(diagnostics.UnresolvedName, p.GetSpan(),
			"enum %s has no variant '%s'", b.in.String(subject), p.Variant)

		return
	}

	covered[p.Variant] = true

	if len(p.Binds) != len(variant.Payload) {
		b.report(diagnostics.ArityMismatch, p.GetSpan(),
			"variant %s carries %d value(s), pattern binds %d", p.Variant, len(variant.Payload), len(p.Binds))

		return
	}

	binds := b.c.res.PatternBinds[p]
	for i, bind := range binds {
		if i < len(variant.Payload) {
			b.info.Bindings[bind] = variant.Payload[i]
		}
	}
}

func joinNames(names []string) string {
	out := ""

	for i, n := range names {
		if i > 0 {
			out += ", "
		}

		out += "'" + n + "'"
	}

	return out
}

// ====== Expressions ======

// expect checks got against want by structural equality (identity on
// interned IDs). Poison on either side is tolerated silently.
func (b *bodyChecker) expect(got, want types.TypeID, span position.Span) {
	if got == want || b.in.IsPoison(got) || b.in.IsPoison(want) || want == types.NoType {
		return
	}

	// Shaped types with matching element kinds report the dedicated
	// shape diagnostic with the two concrete shapes.
	if b.in.IsShaped(got) && b.in.IsShaped(want) && b.in.Kind(got) == b.in.Kind(want) && b.in.Elem(got) == b.in.Elem(want) {
		b.report(diagnostics.ShapeMismatch, span,
			"shape mismatch: expected %s, got %s", b.in.Shape(want), b.in.Shape(got))

		return
	}

	b.report(diagnostics.TypeMismatch, span,
		"expected %s, got %s", b.in.String(want), b.in.String(got))
}

// inferExpr resolves the type of expr, recording it in the Info table.
// expected is a bidirectional hint: literals adopt compatible expected
// types, and NoType means no expectation.
func (b *bodyChecker) inferExpr(expr ast.Expression, expected types.TypeID) types.TypeID {
	t := b.inferExprInner(expr, expected)
	b.info.Types[expr] = t

	return t
}

func (b *bodyChecker) inferExprInner(expr ast.Expression, expected types.TypeID) types.TypeID {
	in := b.in

	switch e := expr.(type) {
	case *ast.IntLit:
		if expected != types.NoType && in.IsNumeric(expected) {
			return expected
		}

		return in.I32

	case *ast.FloatLit:
		if expected != types.NoType && in.IsFloat(expected) {
			return expected
		}

		return in.F64

	case *ast.BoolLit:
		return in.Bool

	case *ast.StringLit:
		return in.Str

	case *ast.Ident:
		return b.inferIdent(e)

	case *ast.PathExpr:
		// A bare path is a unit variant such as Option::None.
		return b.inferVariantCall(e, nil, e.GetSpan(), expected)

	case *ast.CallExpr:
		return b.inferCall(e, expected)

	case *ast.BinaryExpr:
		return b.inferBinary(e)

	case *ast.UnaryExpr:
		return b.inferUnary(e)

	case *ast.RefExpr:
		target := b.inferExpr(e.Target, types.NoType)
		if in.IsPoison(target) {
			return in.Poison
		}

		return in.Reference(target, e.Mutable)

	case *ast.DerefExpr:
		x := b.inferExpr(e.X, types.NoType)
		if in.IsPoison(x) {
			return in.Poison
		}

		if in.Kind(x) != types.KindReference {
			return b.report(diagnostics.TypeMismatch, e.GetSpan(),
				"cannot dereference non-reference type %s", in.String(x))
		}

		return in.Elem(x)

	case *ast.FieldExpr:
		return b.inferField(e)

	case *ast.IndexExpr:
		return b.inferIndex(e)

	case *ast.VectorLit:
		return b.inferVectorLit(e, expected)

	case *ast.MatrixLit:
		return b.inferMatrixLit(e, expected)

	case *ast.StructLit:
		return b.inferStructLit(e)

	case *ast.TupleLit:
		return b.inferTupleLit(e, expected)

	case *ast.AllocExpr:
		return b.inferAlloc(e, expected)

	case *ast.PromoteExpr:
		return b.inferExpr(e.Value, expected)

	case *ast.TryExpr:
		return b.inferTry(e)

	default:
		return in.Poison
	}
}

func (b *bodyChecker) inferIdent(e *ast.Ident) types.TypeID {
	bind := b.c.res.Uses[e]
	if bind == nil {
		// Resolution already reported the unresolved name.
		return b.in.Poison
	}

	if bind.Kind == resolver.BindFunction {
		if sig, ok := b.c.sigs[bind.Name]; ok {
			return b.in.Function(sig.Params, sig.Result)
		}
	}

	if t, ok := b.info.Bindings[bind]; ok {
		return t
	}

	return b.in.Poison
}

func (b *bodyChecker) inferCall(e *ast.CallExpr, expected types.TypeID) types.TypeID {
	switch callee := e.Callee.(type) {
	case *ast.Ident:
		bind := b.c.res.Uses[callee]
		if bind == nil {
			// Still infer arguments for downstream phases.
			for _, a := range e.Args {
				b.inferExpr(a, types.NoType)
			}

			return b.in.Poison
		}

		sig, ok := b.c.sigs[bind.Name]
		if !ok || bind.Kind != resolver.BindFunction {
			for _, a := range e.Args {
				b.inferExpr(a, types.NoType)
			}

			return b.report(diagnostics.TypeMismatch, callee.GetSpan(),
				"'%s' is not callable", callee.Name)
		}

		b.info.Types[callee] = b.in.Function(sig.Params, sig.Result)

		return b.checkCallAgainst(sig, e)

	case *ast.PathExpr:
		return b.inferVariantCall(callee, e.Args, e.GetSpan(), expected)

	default:
		for _, a := range e.Args {
			b.inferExpr(a, types.NoType)
		}

		return b.report(diagnostics.TypeMismatch, e.GetSpan(), "expression is not callable")
	}
}

// checkCallAgainst checks a call against a collected signature,
// inferring generic type and dimension arguments by structural matching
// of parameter types against argument types.
func (b *bodyChecker) checkCallAgainst(sig *FuncSig, e *ast.CallExpr) types.TypeID {
	in := b.in

	if len(e.Args) != len(sig.Params) {
		for _, a := range e.Args {
			b.inferExpr(a, types.NoType)
		}

		return b.report(diagnostics.ArityMismatch, e.GetSpan(),
			"'%s' expects %d argument(s), got %d", sig.Name, len(sig.Params), len(e.Args))
	}

	typeBind := make(map[string]types.TypeID)
	dimBind := make(map[string]types.Dim)

	for i, a := range e.Args {
		param := sig.Params[i]

		var got types.TypeID
		if isConcrete(in, param) {
			got = b.inferExpr(a, param)
		} else {
			got = b.inferExpr(a, types.NoType)
		}

		if in.IsPoison(got) || in.IsPoison(param) {
			continue
		}

		if !matchGeneric(in, param, got, typeBind, dimBind) {
			want := in.Substitute(param, typeBind, dimBind)
			b.expect(got, want, a.GetSpan())
		}
	}

	return in.Substitute(sig.Result, typeBind, dimBind)
}

// isConcrete reports whether t mentions no generic parameters or
// symbolic dimensions.
func isConcrete(in *types.Interner, t types.TypeID) bool {
	switch in.Kind(t) {
	case types.KindGenericParam:
		return false
	case types.KindVector, types.KindArray:
		return !in.Len(t).IsParam() && isConcrete(in, in.Elem(t))
	case types.KindMatrix:
		r, c := in.RowsCols(t)

		return !r.IsParam() && !c.IsParam() && isConcrete(in, in.Elem(t))
	case types.KindReference:
		return isConcrete(in, in.Elem(t))
	case types.KindTuple, types.KindStruct, types.KindEnum:
		for _, p := range in.Params(t) {
			if !isConcrete(in, p) {
				return false
			}
		}

		return true
	case types.KindFunction:
		for _, p := range in.Params(t) {
			if !isConcrete(in, p) {
				return false
			}
		}

		return isConcrete(in, in.Elem(t))
	default:
		return true
	}
}

// matchGeneric structurally matches got against the (possibly generic)
// pattern, binding generic parameters and symbolic dimensions exactly
// once. It returns false when the shapes are incompatible or a
// parameter would need two different bindings.
func matchGeneric(in *types.Interner, pattern, got types.TypeID, typeBind map[string]types.TypeID, dimBind map[string]types.Dim) bool {
	if pattern == got {
		return true
	}

	matchDim := func(p, g types.Dim) bool {
		if !p.IsParam() {
			return p.Equal(g)
		}

		if bound, ok := dimBind[p.Param]; ok {
			return bound.Equal(g)
		}

		dimBind[p.Param] = g

		return true
	}

	switch in.Kind(pattern) {
	case types.KindGenericParam:
		name := in.Name(pattern)
		if bound, ok := typeBind[name]; ok {
			return bound == got
		}

		typeBind[name] = got

		return true

	case types.KindVector:
		return in.Kind(got) == types.KindVector &&
			matchGeneric(in, in.Elem(pattern), in.Elem(got), typeBind, dimBind) &&
			matchDim(in.Len(pattern), in.Len(got))

	case types.KindArray:
		return in.Kind(got) == types.KindArray &&
			matchGeneric(in, in.Elem(pattern), in.Elem(got), typeBind, dimBind) &&
			matchDim(in.Len(pattern), in.Len(got))

	case types.KindMatrix:
		if in.Kind(got) != types.KindMatrix {
			return false
		}

		pr, pc := in.RowsCols(pattern)
		gr, gc := in.RowsCols(got)

		return matchGeneric(in, in.Elem(pattern), in.Elem(got), typeBind, dimBind) &&
			matchDim(pr, gr) && matchDim(pc, gc)

	case types.KindReference:
		return in.Kind(got) == types.KindReference &&
			in.RefMutable(pattern) == in.RefMutable(got) &&
			matchGeneric(in, in.Elem(pattern), in.Elem(got), typeBind, dimBind)

	case types.KindTuple:
		if in.Kind(got) != types.KindTuple {
			return false
		}

		pp, gp := in.Params(pattern), in.Params(got)
		if len(pp) != len(gp) {
			return false
		}

		for i := range pp {
			if !matchGeneric(in, pp[i], gp[i], typeBind, dimBind) {
				return false
			}
		}

		return true

	case types.KindStruct, types.KindEnum:
		if in.Kind(got) != in.Kind(pattern) || in.Name(got) != in.Name(pattern) {
			return false
		}

		pp, gp := in.Params(pattern), in.Params(got)
		if len(pp) != len(gp) {
			return false
		}

		for i := range pp {
			if !matchGeneric(in, pp[i], gp[i], typeBind, dimBind) {
				return false
			}
		}

		return true

	default:
		return false
	}
}

// inferVariantCall resolves Enum::Variant construction, inferring the
// enum's generic arguments from the payload and, failing that, from the
// expected type.
func (b *bodyChecker) inferVariantCall(path *ast.PathExpr, args []ast.Expression, span position.Span, expected types.TypeID) types.TypeID {
	in := b.in

	if !in.IsEnumDeclared(path.Type) {
		for _, a := range args {
			b.inferExpr(a, types.NoType)
		}

		return b.report(diagnostics.UnresolvedName, span,
			"unresolved type '%s' in path '%s'", path.Type, path.String())
	}

	params := in.EnumParams(path.Type)
	genericArgs := make([]types.TypeID, len(params))

	for i, p := range params {
		genericArgs[i] = in.GenericParam(p.Name)
	}

	genericEnum := in.Enum(path.Type, genericArgs)
	variants := in.EnumVariants(genericEnum)

	var variant *types.VariantInfo

	for i := range variants {
		if variants[i].Name == path.Member {
			variant = &variants[i]

			break
		}
	}

	if variant == nil {
		for _, a := range args {
			b.inferExpr(a, types.NoType)
		}

		return b.report(diagnostics.UnresolvedName, span,
			"enum %s has no variant '%s'", path.Type, path.Member)
	}

	if len(args) != len(variant.Payload) {
		for _, a := range args {
			b.inferExpr(a, types.NoType)
		}

		return b.report(diagnostics.ArityMismatch, span,
			"variant %s::%s expects %d value(s), got %d",
			path.Type, path.Member, len(variant.Payload), len(args))
	}

	typeBind := make(map[string]types.TypeID)
	dimBind := make(map[string]types.Dim)

	// Seed generic bindings from the expected type, so constructions
	// like Option::None check against an annotated binding.
	if expected != types.NoType && in.Kind(expected) == types.KindEnum && in.Name(expected) == path.Type {
		expArgs := in.Params(expected)
		for i, p := range params {
			if i < len(expArgs) {
				typeBind[p.Name] = expArgs[i]
			}
		}
	}

	for i, a := range args {
		payload := variant.Payload[i]

		var got types.TypeID
		if isConcrete(in, payload) {
			got = b.inferExpr(a, payload)
		} else if bound := in.Substitute(payload, typeBind, dimBind); isConcrete(in, bound) {
			got = b.inferExpr(a, bound)
		} else {
			got = b.inferExpr(a, types.NoType)
		}

		if in.IsPoison(got) {
			continue
		}

		if !matchGeneric(in, payload, got, typeBind, dimBind) {
			want := in.Substitute(payload, typeBind, dimBind)
			b.expect(got, want, a.GetSpan())
		}
	}

	result := in.Substitute(genericEnum, typeBind, dimBind)
	if !isConcrete(in, result) {
		return b.report(diagnostics.TypeMismatch, span,
			"cannot infer type arguments for %s::%s; annotate the binding", path.Type, path.Member)
	}

	return result
}

func (b *bodyChecker) inferBinary(e *ast.BinaryExpr) types.TypeID {
	in := b.in

	left := b.inferExpr(e.Left, types.NoType)
	right := b.inferExpr(e.Right, left)

	if in.IsPoison(left) || in.IsPoison(right) {
		return in.Poison
	}

	switch e.Op {
	case ast.OpAnd, ast.OpOr:
		if left != in.Bool || right != in.Bool {
			return b.report(diagnostics.TypeMismatch, e.GetSpan(),
				"operator '%s' requires bool operands, got %s and %s",
				e.Op.String(), in.String(left), in.String(right))
		}

		return in.Bool

	case ast.OpEq, ast.OpNe:
		if left != right {
			return b.report(diagnostics.TypeMismatch, e.GetSpan(),
				"cannot compare %s with %s", in.String(left), in.String(right))
		}

		return in.Bool

	case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		if left != right || !in.IsNumeric(left) {
			return b.report(diagnostics.TypeMismatch, e.GetSpan(),
				"operator '%s' requires matching numeric operands, got %s and %s",
				e.Op.String(), in.String(left), in.String(right))
		}

		return in.Bool

	default:
		return b.inferArithmetic(e, left, right)
	}
}

// inferArithmetic applies the shape algebra: elementwise operators
// require identical shapes and element types; `*` on matrices is
// matrix multiplication with (M×K)·(K×N) → M×N.
func (b *bodyChecker) inferArithmetic(e *ast.BinaryExpr, left, right types.TypeID) types.TypeID {
	in := b.in

	leftShaped := in.IsShaped(left)
	rightShaped := in.IsShaped(right)

	switch {
	case !leftShaped && !rightShaped:
		if left != right || !in.IsNumeric(left) {
			return b.report(diagnostics.TypeMismatch, e.GetSpan(),
				"operator '%s' requires matching numeric operands, got %s and %s",
				e.Op.String(), in.String(left), in.String(right))
		}

		return left

	case leftShaped && !rightShaped:
		// Scaling by a scalar of the element type.
		if right != in.Elem(left) {
			return b.report(diagnostics.TypeMismatch, e.GetSpan(),
				"cannot apply '%s' to %s and %s",
				e.Op.String(), in.String(left), in.String(right))
		}

		return left

	case !leftShaped && rightShaped:
		if left != in.Elem(right) {
			return b.report(diagnostics.TypeMismatch, e.GetSpan(),
				"cannot apply '%s' to %s and %s",
				e.Op.String(), in.String(left), in.String(right))
		}

		return right
	}

	// Both shaped.
	if e.Op == ast.OpMul {
		if in.Kind(left) == types.KindMatrix && in.Kind(right) == types.KindMatrix {
			if result, ok := in.MatMul(left, right); ok {
				return result
			}

			return b.report(diagnostics.ShapeMismatch, e.GetSpan(),
				"shape mismatch: cannot multiply %s by %s", in.Shape(left), in.Shape(right))
		}

		if in.Kind(left) == types.KindMatrix && in.Kind(right) == types.KindVector {
			if result, ok := in.MatVecMul(left, right); ok {
				return result
			}

			return b.report(diagnostics.ShapeMismatch, e.GetSpan(),
				"shape mismatch: cannot multiply %s by %s", in.Shape(left), in.Shape(right))
		}
	}

	if result, ok := in.Elementwise(left, right); ok {
		return result
	}

	if in.Elem(left) != in.Elem(right) || in.Kind(left) != in.Kind(right) {
		return b.report(diagnostics.TypeMismatch, e.GetSpan(),
			"cannot apply '%s' to %s and %s",
			e.Op.String(), in.String(left), in.String(right))
	}

	return b.report(diagnostics.ShapeMismatch, e.GetSpan(),
		"shape mismatch: %s vs %s", in.Shape(left), in.Shape(right))
}

func (b *bodyChecker) inferUnary(e *ast.UnaryExpr) types.TypeID {
	in := b.in
	x := b.inferExpr(e.X, types.NoType)

	if in.IsPoison(x) {
		return in.Poison
	}

	if e.Op == ast.OpNot {
		if x != in.Bool {
			return b.report(diagnostics.TypeMismatch, e.GetSpan(),
				"operator '!' requires bool, got %s", in.String(x))
		}

		return in.Bool
	}

	if in.IsNumeric(x) || in.IsShaped(x) {
		return x
	}

	return b.report(diagnostics.TypeMismatch, e.GetSpan(),
		"operator '-' requires a numeric operand, got %s", in.String(x))
}

func (b *bodyChecker) inferField(e *ast.FieldExpr) types.TypeID {
	in := b.in
	base := b.inferExpr(e.X, types.NoType)

	if in.IsPoison(base) {
		return in.Poison
	}

	// One level of auto-deref through references.
	if in.Kind(base) == types.KindReference {
		base = in.Elem(base)
	}

	switch in.Kind(base) {
	case types.KindStruct:
		for _, f := range in.StructFields(base) {
			if f.Name == e.Name {
				return f.Type
			}
		}

		return b.report(diagnostics.UnresolvedName, e.GetSpan(),
			"%s has no field '%s'", in.String(base), e.Name)

	case types.KindTuple:
		idx, err := strconv.Atoi(e.Name)
		elems := in.Params(base)

		if err != nil || idx < 0 || idx >= len(elems) {
			return b.report(diagnostics.UnresolvedName, e.GetSpan(),
				"%s has no element '%s'", in.String(base), e.Name)
		}

		return elems[idx]

	default:
		return b.report(diagnostics.TypeMismatch, e.GetSpan(),
			"%s has no fields", in.String(base))
	}
}

func (b *bodyChecker) inferIndex(e *ast.IndexExpr) types.TypeID {
	in := b.in
	base := b.inferExpr(e.X, types.NoType)
	idx := b.inferExpr(e.Index, in.I32)

	if !in.IsPoison(idx) && !in.IsInteger(idx) {
		b.report(diagnostics.TypeMismatch, e.Index.GetSpan(),
			"index must be an integer, got %s", in.String(idx))
	}

	if in.IsPoison(base) {
		return in.Poison
	}

	if in.Kind(base) == types.KindReference {
		base = in.Elem(base)
	}

	switch in.Kind(base) {
	case types.KindArray, types.KindVector:
		return in.Elem(base)

	case types.KindMatrix:
		// Indexing a matrix yields a row vector.
		_, cols := in.RowsCols(base)

		return in.Vector(in.Elem(base), cols)

	default:
		return b.report(diagnostics.TypeMismatch, e.GetSpan(),
			"cannot index %s", in.String(base))
	}
}

func (b *bodyChecker) inferVectorLit(e *ast.VectorLit, expected types.TypeID) types.TypeID {
	in := b.in

	var elemExpected types.TypeID

	if expected != types.NoType {
		switch in.Kind(expected) {
		case types.KindVector, types.KindArray:
			elemExpected = in.Elem(expected)
			want := in.Len(expected)
			got := types.Literal(int64(len(e.Elems)))

			if !want.Equal(got) {
				for _, el := range e.Elems {
					b.inferExpr(el, elemExpected)
				}

				return b.report(diagnostics.ShapeMismatch, e.GetSpan(),
					"shape mismatch: expected %s, got %d", want.String(), len(e.Elems))
			}
		}
	}

	elem := types.NoType

	for _, el := range e.Elems {
		t := b.inferExpr(el, elemExpected)

		if elemExpected != types.NoType {
			b.expect(t, elemExpected, el.GetSpan())

			continue
		}

		if elem == types.NoType {
			elem = t
		} else if t != elem && !in.IsPoison(t) && !in.IsPoison(elem) {
			b.report(diagnostics.TypeMismatch, el.GetSpan(),
				"mixed element types in literal: %s and %s", in.String(elem), in.String(t))
		}
	}

	if elemExpected != types.NoType {
		return expected
	}

	if elem == types.NoType || in.IsPoison(elem) {
		return in.Poison
	}

	return in.Vector(elem, types.Literal(int64(len(e.Elems))))
}

func (b *bodyChecker) inferMatrixLit(e *ast.MatrixLit, expected types.TypeID) types.TypeID {
	in := b.in

	var elemExpected types.TypeID

	if expected != types.NoType && in.Kind(expected) == types.KindMatrix {
		elemExpected = in.Elem(expected)
		rows, cols := in.RowsCols(expected)

		shapeOK := rows.Equal(types.Literal(int64(len(e.Rows))))
		for _, row := range e.Rows {
			if !cols.Equal(types.Literal(int64(len(row)))) {
				shapeOK = false
			}
		}

		if !shapeOK {
			for _, row := range e.Rows {
				for _, el := range row {
					b.inferExpr(el, elemExpected)
				}
			}

			gotCols := 0
			if len(e.Rows) > 0 {
				gotCols = len(e.Rows[0])
			}

			return b.report(diagnostics.ShapeMismatch, e.GetSpan(),
				"shape mismatch: expected %s, got %dx%d", in.Shape(expected), len(e.Rows), gotCols)
		}
	}

	elem := types.NoType
	width := -1
	ragged := false

	for _, row := range e.Rows {
		if width == -1 {
			width = len(row)
		} else if len(row) != width {
			ragged = true
		}

		for _, el := range row {
			t := b.inferExpr(el, elemExpected)

			if elemExpected != types.NoType {
				b.expect(t, elemExpected, el.GetSpan())

				continue
			}

			if elem == types.NoType {
				elem = t
			} else if t != elem && !in.IsPoison(t) && !in.IsPoison(elem) {
				b.report(diagnostics.TypeMismatch, el.GetSpan(),
					"mixed element types in literal: %s and %s", in.String(elem), in.String(t))
			}
		}
	}

	if elemExpected != types.NoType {
		return expected
	}

	if ragged {
		return b.report(diagnostics.ShapeMismatch, e.GetSpan(),
			"shape mismatch: matrix literal rows have unequal lengths")
	}

	if elem == types.NoType || in.IsPoison(elem) || width < 0 {
		return in.Poison
	}

	return in.Matrix(elem, types.Literal(int64(len(e.Rows))), types.Literal(int64(width)))
}

func (b *bodyChecker) inferStructLit(e *ast.StructLit) types.TypeID {
	in := b.in

	if !in.IsStructDeclared(e.Name) {
		for _, f := range e.Fields {
			b.inferExpr(f.Value, types.NoType)
		}

		return b.report(diagnostics.UnresolvedName, e.GetSpan(),
			"unresolved struct name '%s'", e.Name)
	}

	params := in.StructParams(e.Name)

	// Explicit generic arguments, when present, fix the instantiation.
	if len(e.Args) > 0 {
		if len(e.Args) != len(params) {
			for _, f := range e.Fields {
				b.inferExpr(f.Value, types.NoType)
			}

			return b.report(diagnostics.ArityMismatch, e.GetSpan(),
				"'%s' expects %d type argument(s), got %d", e.Name, len(params), len(e.Args))
		}

		args := make([]types.TypeID, len(e.Args))
		for i, a := range e.Args {
			args[i] = b.c.ResolveTypeExpr(a, b.env)
		}

		t := in.Struct(e.Name, args)
		b.checkStructFields(e, t)

		return t
	}

	if len(params) == 0 {
		t := in.Struct(e.Name, nil)
		b.checkStructFields(e, t)

		return t
	}

	// Infer generic arguments from the field initializers.
	genericArgs := make([]types.TypeID, len(params))
	for i, p := range params {
		genericArgs[i] = in.GenericParam(p.Name)
	}

	genericStruct := in.Struct(e.Name, genericArgs)
	declFields := in.StructFields(genericStruct)

	typeBind := make(map[string]types.TypeID)
	dimBind := make(map[string]types.Dim)

	for _, f := range e.Fields {
		got := b.inferExpr(f.Value, types.NoType)

		for _, df := range declFields {
			if df.Name == f.Name && !in.IsPoison(got) {
				matchGeneric(in, df.Type, got, typeBind, dimBind)
			}
		}
	}

	t := in.Substitute(genericStruct, typeBind, dimBind)
	if !isConcrete(in, t) {
		return b.report(diagnostics.TypeMismatch, e.GetSpan(),
			"cannot infer type arguments for %s; annotate the literal", e.Name)
	}

	b.checkStructFields(e, t)

	return t
}

// checkStructFields checks the initializer list of a struct literal
// against the instantiated field set: unknown and missing fields are
// reported, and already-inferred values are checked for equality.
func (b *bodyChecker) checkStructFields(e *ast.StructLit, t types.TypeID) {
	in := b.in
	fields := in.StructFields(t)

	byName := make(map[string]types.TypeID, len(fields))
	for _, f := range fields {
		byName[f.Name] = f.Type
	}

	seen := make(map[string]bool, len(e.Fields))

	for _, f := range e.Fields {
		want, ok := byName[f.Name]
		if !ok {
			b.report(diagnostics.UnresolvedName, f.GetSpan(),
				"%s has no field '%s'", in.String(t), f.Name)

			if _, done := b.info.Types[f.Value]; !done {
				b.inferExpr(f.Value, types.NoType)
			}

			continue
		}

		seen[f.Name] = true

		got, done := b.info.Types[f.Value]
		if !done {
			got = b.inferExpr(f.Value, want)
		}

		b.expect(got, want, f.Value.GetSpan())
	}

	for _, f := range fields {
		if !seen[f.Name] {
			b.report(diagnostics.TypeMismatch, e.GetSpan(),
				"missing field '%s' in literal of %s", f.Name, in.String(t))
		}
	}
}

func (b *bodyChecker) inferTupleLit(e *ast.TupleLit, expected types.TypeID) types.TypeID {
	in := b.in

	var expectedElems []types.TypeID
	if expected != types.NoType && in.Kind(expected) == types.KindTuple {
		expectedElems = in.Params(expected)
	}

	elems := make([]types.TypeID, len(e.Elems))

	for i, el := range e.Elems {
		want := types.NoType
		if i < len(expectedElems) {
			want = expectedElems[i]
		}

		elems[i] = b.inferExpr(el, want)
	}

	return in.Tuple(elems)
}

func (b *bodyChecker) inferAlloc(e *ast.AllocExpr, expected types.TypeID) types.TypeID {
	bind := b.c.res.Uses[e.Arena]
	if bind != nil && bind.Kind != resolver.BindArenaHandle {
		b.report(diagnostics.TypeMismatch, e.Arena.GetSpan(),
			"'%s' is not an arena", e.Arena.Name)
	}

	return b.inferExpr(e.Value, expected)
}

// inferTry checks `?` propagation: the operand must be Option or
// Result, and the enclosing function must return the same family with a
// compatible error/none type.
func (b *bodyChecker) inferTry(e *ast.TryExpr) types.TypeID {
	in := b.in
	x := b.inferExpr(e.X, types.NoType)

	if in.IsPoison(x) {
		return in.Poison
	}

	if in.Kind(x) != types.KindEnum {
		return b.report(diagnostics.IncompatiblePropagation, e.GetSpan(),
			"operator '?' requires Option or Result, got %s", in.String(x))
	}

	family := in.Name(x)
	args := in.Params(x)
	ret := b.sig.Result

	switch family {
	case "Option":
		if in.Kind(ret) != types.KindEnum || in.Name(ret) != "Option" {
			return b.report(diagnostics.IncompatiblePropagation, e.GetSpan(),
				"'?' on %s requires the function to return Option, but it returns %s",
				in.String(x), in.String(ret))
		}

		return args[0]

	case "Result":
		if in.Kind(ret) != types.KindEnum || in.Name(ret) != "Result" {
			return b.report(diagnostics.IncompatiblePropagation, e.GetSpan(),
				"'?' on %s requires the function to return Result, but it returns %s",
				in.String(x), in.String(ret))
		}

		retArgs := in.Params(ret)
		if len(args) == 2 && len(retArgs) == 2 && args[1] != retArgs[1] {
			return b.report(diagnostics.IncompatiblePropagation, e.GetSpan(),
				"'?' error type %s does not match function error type %s",
				in.String(args[1]), in.String(retArgs[1]))
		}

		return args[0]

	default:
		return b.report(diagnostics.IncompatiblePropagation, e.GetSpan(),
			"operator '?' requires Option or Result, got %s", in.String(x))
	}
}

// Package arenaflow tracks arena-provenance taint on values and
// rejects cross-scope escapes. Allocation tags its result with the
// arena's identity; the tag propagates structurally through moves,
// field projection, indexing, and aggregation, and is cleared only by
// an explicit promotion, which performs an owned copy with the
// destination's lifetime.
package arenaflow

import (
	"github.com/tessera-lang/tessera/internal/ast"
	"github.com/tessera-lang/tessera/internal/borrow"
	"github.com/tessera-lang/tessera/internal/diagnostics"
	"github.com/tessera-lang/tessera/internal/position"
	"github.com/tessera-lang/tessera/internal/resolver"
)

// TagKind classifies a value's provenance.
type TagKind uint8

const (
	TagOwned TagKind = iota
	TagBorrowedShared
	TagBorrowedMutable
	TagArenaAllocated
	TagPromoted
)

func (k TagKind) String() string {
	switch k {
	case TagOwned:
		return "owned"
	case TagBorrowedShared:
		return "borrowed"
	case TagBorrowedMutable:
		return "borrowed_mut"
	case TagArenaAllocated:
		return "arena"
	case TagPromoted:
		return "promoted"
	default:
		return "unknown"
	}
}

// Tag is a value's provenance. Arena and Site are set when the value
// is, or structurally contains, an arena allocation; Site is the
// allocation site cited in escape diagnostics.
type Tag struct {
	Kind  TagKind
	Arena *resolver.Arena
	Site  position.Span
}

// Tainted reports whether the tagged value may not leave its arena's
// scope.
func (t Tag) Tainted() bool {
	return t.Arena != nil && t.Kind != TagPromoted
}

var owned = Tag{Kind: TagOwned}

// Result maps every expression to its provenance tag.
type Result struct {
	Tags map[ast.Expression]Tag
}

// analyzer walks one function body.
type analyzer struct {
	res      *resolver.Result
	reporter *diagnostics.Reporter

	arenaByHandle map[*resolver.Binding]*resolver.Arena
	bindTags      map[*resolver.Binding]Tag
	tags          map[ast.Expression]Tag

	// moves are the value-consuming uses found by the borrow checker;
	// taint follows the value out of a moved binding instead of
	// lingering on the binding.
	moves map[ast.Expression]*resolver.Binding
}

// Check runs escape analysis on one function body. The borrow result
// is consulted so moved-out bindings stop carrying taint forward.
func Check(fn *ast.FunctionDecl, res *resolver.Result, borrowRes *borrow.Result, reporter *diagnostics.Reporter) *Result {
	a := &analyzer{
		res:           res,
		reporter:      reporter,
		arenaByHandle: make(map[*resolver.Binding]*resolver.Arena),
		bindTags:      make(map[*resolver.Binding]Tag),
		tags:          make(map[ast.Expression]Tag),
		moves:         borrowRes.Moves,
	}

	for _, ar := range res.Arenas {
		if ar.Handle != nil {
			a.arenaByHandle[ar.Handle] = ar
		}
	}

	if fn.Body != nil {
		a.block(fn.Body)
	}

	return &Result{Tags: a.tags}
}

// ====== Statements ======

func (a *analyzer) block(blk *ast.Block) {
	for _, stmt := range blk.Stmts {
		a.stmt(stmt)
	}
}

func (a *analyzer) stmt(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.Block:
		a.block(s)

	case *ast.LetStmt:
		if s.Init == nil {
			return
		}

		tag := a.expr(s.Init)
		if bind := a.res.DeclBinds[s]; bind != nil {
			a.bindTags[bind] = tag
		}

	case *ast.AssignStmt:
		a.assign(s)

	case *ast.ExprStmt:
		a.expr(s.X)

	case *ast.ReturnStmt:
		if s.Value == nil {
			return
		}

		tag := a.expr(s.Value)
		if tag.Tainted() {
			a.escape(s.Value.GetSpan(), tag,
				"returning value allocated in arena '%s'", tag.Arena.Name)
		}

	case *ast.IfStmt:
		a.expr(s.Cond)
		a.block(s.Then)

		if s.Else != nil {
			a.stmt(s.Else)
		}

	case *ast.WhileStmt:
		a.expr(s.Cond)
		a.block(s.Body)

	case *ast.ForStmt:
		a.expr(s.Iter)
		a.block(s.Body)

	case *ast.ArenaStmt:
		a.block(s.Body)

	case *ast.MatchStmt:
		subj := a.expr(s.Subject)

		for _, arm := range s.Arms {
			// Destructuring projects out of the subject: payload
			// bindings inherit the subject's arena provenance.
			if vp, ok := arm.Pattern.(*ast.VariantPattern); ok && subj.Tainted() {
				for _, bind := range a.res.PatternBinds[vp] {
					a.bindTags[bind] = Tag{Kind: TagArenaAllocated, Arena: subj.Arena, Site: subj.Site}
				}
			}

			a.block(arm.Body)
		}
	}
}

// assign checks stores against the arena scope rule: a tainted value
// may only be written into a binding declared inside its arena's scope.
func (a *analyzer) assign(s *ast.AssignStmt) {
	tag := a.expr(s.Value)

	if id, ok := s.Target.(*ast.Ident); ok {
		bind := a.res.Uses[id]
		if bind == nil {
			return
		}

		if tag.Tainted() && !a.inArenaScope(tag.Arena, bind.Scope) {
			a.escape(s.Value.GetSpan(), tag,
				"value allocated in arena '%s' stored into '%s', which outlives the arena",
				tag.Arena.Name, bind.Name)
		}

		a.bindTags[bind] = tag

		return
	}

	// A store through a projection taints the root aggregate and must
	// obey the root binding's scope.
	a.expr(s.Target)

	if root := rootBinding(a.res, s.Target); root != nil {
		if tag.Tainted() && !a.inArenaScope(tag.Arena, root.Scope) {
			a.escape(s.Value.GetSpan(), tag,
				"value allocated in arena '%s' stored into '%s', which outlives the arena",
				tag.Arena.Name, root.Name)
		}

		if tag.Tainted() {
			a.bindTags[root] = tag
		}
	}
}

// inArenaScope reports whether scope lies within the arena's scope.
func (a *analyzer) inArenaScope(arena *resolver.Arena, scope resolver.ScopeID) bool {
	return scope == arena.Scope || a.res.IsAncestor(arena.Scope, scope)
}

func (a *analyzer) escape(span position.Span, tag Tag, format string, args ...interface{}) {
	a.reporter.ErrorWithRelated(
		diagnostics.PhaseEscapeCheck, diagnostics.ArenaEscape, span,
		[]diagnostics.Related{{Message: "allocated here", Span: tag.Site}},
		format, args...)
}

// ====== Expressions ======

func (a *analyzer) expr(e ast.Expression) Tag {
	tag := a.exprInner(e)
	a.tags[e] = tag

	return tag
}

func (a *analyzer) exprInner(e ast.Expression) Tag {
	switch x := e.(type) {
	case *ast.IntLit, *ast.FloatLit, *ast.BoolLit, *ast.StringLit, *ast.PathExpr:
		return owned

	case *ast.Ident:
		if bind := a.res.Uses[x]; bind != nil {
			if t, ok := a.bindTags[bind]; ok {
				if a.moves[x] == bind {
					delete(a.bindTags, bind)
				}

				return t
			}
		}

		return owned

	case *ast.AllocExpr:
		return a.alloc(x)

	case *ast.PromoteExpr:
		a.expr(x.Value)

		return Tag{Kind: TagPromoted}

	case *ast.RefExpr:
		inner := a.expr(x.Target)
		kind := TagBorrowedShared

		if x.Mutable {
			kind = TagBorrowedMutable
		}

		// A reference into arena storage carries the taint: the
		// reference may not outlive the arena either.
		return Tag{Kind: kind, Arena: inner.Arena, Site: inner.Site}

	case *ast.DerefExpr:
		return a.expr(x.X)

	case *ast.FieldExpr:
		return a.expr(x.X)

	case *ast.IndexExpr:
		a.expr(x.Index)

		return a.expr(x.X)

	case *ast.TryExpr:
		return a.expr(x.X)

	case *ast.CallExpr:
		// Callee bodies are analyzed independently; without a summary
		// the result conservatively carries the taint of any tainted
		// argument.
		if _, isPath := x.Callee.(*ast.PathExpr); !isPath {
			a.expr(x.Callee)
		}

		return a.aggregate(x.Args)

	case *ast.VectorLit:
		return a.aggregate(x.Elems)

	case *ast.MatrixLit:
		var all []ast.Expression
		for _, row := range x.Rows {
			all = append(all, row...)
		}

		return a.aggregate(all)

	case *ast.TupleLit:
		return a.aggregate(x.Elems)

	case *ast.StructLit:
		var vals []ast.Expression
		for _, f := range x.Fields {
			vals = append(vals, f.Value)
		}

		return a.aggregate(vals)

	case *ast.BinaryExpr:
		a.expr(x.Left)
		a.expr(x.Right)

		return owned

	case *ast.UnaryExpr:
		a.expr(x.X)

		return owned

	default:
		return owned
	}
}

// aggregate evaluates member expressions; the aggregate is tainted by
// its first tainted member.
func (a *analyzer) aggregate(elems []ast.Expression) Tag {
	result := owned

	for _, el := range elems {
		t := a.expr(el)
		if t.Tainted() && !result.Tainted() {
			result = Tag{Kind: TagArenaAllocated, Arena: t.Arena, Site: t.Site}
		}
	}

	return result
}

// alloc tags the allocation with its arena and checks nested-arena
// stores: a value tainted by an inner arena may not be allocated into
// an outer, longer-lived arena.
func (a *analyzer) alloc(x *ast.AllocExpr) Tag {
	inner := a.expr(x.Value)

	handle := a.res.Uses[x.Arena]
	arena := a.arenaByHandle[handle]

	if arena == nil {
		return inner
	}

	if inner.Tainted() && inner.Arena != arena && a.res.IsAncestor(arena.Scope, inner.Arena.Scope) {
		a.escape(x.Value.GetSpan(), inner,
			"value allocated in inner arena '%s' stored into longer-lived arena '%s'",
			inner.Arena.Name, arena.Name)
	}

	return Tag{Kind: TagArenaAllocated, Arena: arena, Site: x.GetSpan()}
}

// rootBinding resolves the base binding of a projection target.
func rootBinding(res *resolver.Result, e ast.Expression) *resolver.Binding {
	switch x := e.(type) {
	case *ast.Ident:
		return res.Uses[x]
	case *ast.FieldExpr:
		return rootBinding(res, x.X)
	case *ast.IndexExpr:
		return rootBinding(res, x.X)
	case *ast.DerefExpr:
		return rootBinding(res, x.X)
	default:
		return nil
	}
}

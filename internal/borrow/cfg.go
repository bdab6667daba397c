// Control-flow graph construction for borrow checking. The graph is a
// list of program points in evaluation order, each carrying ownership
// and borrow events, with successor edges for branches, loops, and
// match arms. Liveness and ownership-state analysis run over the point
// list rather than lexical structure.

package borrow

import (
	"github.com/tessera-lang/tessera/internal/ast"
	"github.com/tessera-lang/tessera/internal/checker"
	"github.com/tessera-lang/tessera/internal/position"
	"github.com/tessera-lang/tessera/internal/resolver"
	"github.com/tessera-lang/tessera/internal/types"
)

// PointID indexes a program point within one function's graph.
type PointID int32

// LoanID identifies a borrow within one function.
type LoanID int32

// EventKind identifies the type of ownership/borrow event.
type EventKind uint8

const (
	// EvDef marks a binding's declaration point, before any initializer
	// effect. The binding starts uninitialized.
	EvDef EventKind = iota
	// EvAssign marks a write that (re)initializes the binding.
	EvAssign
	// EvRead marks a by-reference or copying use.
	EvRead
	// EvMove marks a value-consuming use of a non-copyable binding.
	EvMove
	// EvBorrowStart marks the evaluation of a reference expression.
	EvBorrowStart
	// EvLoanUse marks a use of a live borrow (directly or through the
	// binding holding it).
	EvLoanUse
	// EvDrop marks the conceptual destruction of a binding at its
	// scope's exit.
	EvDrop
)

func (k EventKind) String() string {
	switch k {
	case EvDef:
		return "def"
	case EvAssign:
		return "assign"
	case EvRead:
		return "read"
	case EvMove:
		return "move"
	case EvBorrowStart:
		return "borrow_start"
	case EvLoanUse:
		return "loan_use"
	case EvDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// Event is one ownership or borrow event at a program point.
type Event struct {
	Kind    EventKind
	Binding *resolver.Binding // subject binding; nil for pure loan events
	Loan    LoanID            // valid for EvBorrowStart and EvLoanUse
	Span    position.Span
}

// Loan is one borrow of a target binding. Holder is the binding the
// reference value was stored into, or nil for a temporary borrow whose
// only use is the expression consuming it.
type Loan struct {
	ID      LoanID
	Target  *resolver.Binding
	Mutable bool
	Holder  *resolver.Binding
	Span    position.Span
}

// Point is one program point.
type Point struct {
	ID     PointID
	Events []Event
	Succs  []PointID
}

// Graph is the per-function control-flow graph.
type Graph struct {
	Points []*Point
	Loans  []*Loan

	// loansByHolder indexes the loans held by each binding.
	loansByHolder map[*resolver.Binding][]*Loan
}

func (g *Graph) point(id PointID) *Point { return g.Points[id] }

// useMode distinguishes value-consuming positions from plain reads.
type useMode int

const (
	modeRead useMode = iota
	modeMove
)

// builder constructs the graph for one function.
type builder struct {
	g    *Graph
	res  *resolver.Result
	in   *types.Interner
	info *checker.Info

	cur PointID

	// returns records expressions returned from the function, with the
	// point at which the return occurs.
	returns []returnSite

	// moves records every value-consuming expression, for the escape
	// analyzer's taint propagation.
	moves map[ast.Expression]*resolver.Binding
}

type returnSite struct {
	value ast.Expression
	point PointID
}

func newBuilder(res *resolver.Result, in *types.Interner, info *checker.Info) *builder {
	b := &builder{
		g: &Graph{
			loansByHolder: make(map[*resolver.Binding][]*Loan),
		},
		res:   res,
		in:    in,
		info:  info,
		moves: make(map[ast.Expression]*resolver.Binding),
	}
	b.cur = b.newPoint()

	return b
}

func (b *builder) newPoint() PointID {
	id := PointID(len(b.g.Points))
	b.g.Points = append(b.g.Points, &Point{ID: id})

	return id
}

func (b *builder) edge(from, to PointID) {
	p := b.g.point(from)
	p.Succs = append(p.Succs, to)
}

// advance opens a fresh point after cur and moves to it.
func (b *builder) advance() PointID {
	next := b.newPoint()
	b.edge(b.cur, next)
	b.cur = next

	return next
}

func (b *builder) emit(ev Event) {
	p := b.g.point(b.cur)
	p.Events = append(p.Events, ev)
}

func (b *builder) newLoan(target *resolver.Binding, mutable bool, span position.Span) *Loan {
	l := &Loan{
		ID:      LoanID(len(b.g.Loans)),
		Target:  target,
		Mutable: mutable,
		Span:    span,
	}
	b.g.Loans = append(b.g.Loans, l)

	return l
}

func (b *builder) setHolder(l *Loan, holder *resolver.Binding) {
	l.Holder = holder

	if holder != nil {
		b.g.loansByHolder[holder] = append(b.g.loansByHolder[holder], l)
	}
}

// isCopyBinding reports whether moving out of the binding is a copy.
// Unknown types (checker recovery) are treated as copyable so borrow
// diagnostics do not pile onto type errors.
func (b *builder) isCopyBinding(bind *resolver.Binding) bool {
	t, ok := b.info.Bindings[bind]
	if !ok || t == types.NoType {
		return true
	}

	return b.in.IsCopy(t)
}

// ====== Statement walking ======

func (b *builder) block(blk *ast.Block) {
	for _, stmt := range blk.Stmts {
		b.stmt(stmt)
	}

	b.dropScope(blk)
}

// dropScope emits drop events for the bindings of the scope introduced
// by node, in reverse declaration order.
func (b *builder) dropScope(node ast.Node) {
	id, ok := b.res.NodeScopes[node]
	if !ok {
		return
	}

	sc := b.res.Scope(id)
	if sc == nil || len(sc.Ordered) == 0 {
		return
	}

	b.advance()

	for i := len(sc.Ordered) - 1; i >= 0; i-- {
		bind := sc.Ordered[i]
		b.emit(Event{Kind: EvDrop, Binding: bind, Span: sc.Span})
	}
}

func (b *builder) stmt(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.Block:
		b.block(s)

	case *ast.LetStmt:
		b.letStmt(s)

	case *ast.AssignStmt:
		b.assign(s)

	case *ast.ExprStmt:
		b.expr(s.X, modeRead)

	case *ast.ReturnStmt:
		b.returnStmt(s)

	case *ast.IfStmt:
		b.ifStmt(s)

	case *ast.WhileStmt:
		b.whileStmt(s)

	case *ast.ForStmt:
		b.forStmt(s)

	case *ast.ArenaStmt:
		b.arenaStmt(s)

	case *ast.MatchStmt:
		b.matchStmt(s)
	}
}

func (b *builder) letStmt(s *ast.LetStmt) {
	bind := b.res.DeclBinds[s]

	var loans []*Loan
	if s.Init != nil {
		loans = b.expr(s.Init, modeMove)
	}

	b.advance()

	if bind != nil {
		b.emit(Event{Kind: EvDef, Binding: bind, Span: s.GetSpan()})

		if s.Init != nil {
			b.emit(Event{Kind: EvAssign, Binding: bind, Span: s.GetSpan()})
		}

		for _, l := range loans {
			b.setHolder(l, bind)
		}
	}
}

func (b *builder) assign(s *ast.AssignStmt) {
	loans := b.expr(s.Value, modeMove)

	if id, ok := s.Target.(*ast.Ident); ok {
		bind := b.res.Uses[id]

		b.advance()

		if bind != nil {
			b.emit(Event{Kind: EvAssign, Binding: bind, Span: s.GetSpan()})

			for _, l := range loans {
				b.setHolder(l, bind)
			}
		}

		return
	}

	// Writes through projections or dereferences read the base.
	b.expr(s.Target, modeRead)
	b.advance()
}

func (b *builder) returnStmt(s *ast.ReturnStmt) {
	if s.Value != nil {
		b.expr(s.Value, modeMove)
		b.returns = append(b.returns, returnSite{value: s.Value, point: b.cur})
	}

	// Return points have no successor; subsequent statements start a
	// fresh, unreachable point.
	b.cur = b.newPoint()
}

func (b *builder) ifStmt(s *ast.IfStmt) {
	b.expr(s.Cond, modeRead)
	branch := b.cur

	thenEntry := b.newPoint()
	b.edge(branch, thenEntry)
	b.cur = thenEntry
	b.block(s.Then)
	thenExit := b.cur

	join := b.newPoint()

	if s.Else != nil {
		elseEntry := b.newPoint()
		b.edge(branch, elseEntry)
		b.cur = elseEntry
		b.stmt(s.Else)
		b.edge(b.cur, join)
	} else {
		b.edge(branch, join)
	}

	b.edge(thenExit, join)
	b.cur = join
}

func (b *builder) whileStmt(s *ast.WhileStmt) {
	head := b.advance()
	b.expr(s.Cond, modeRead)
	cond := b.cur

	bodyEntry := b.newPoint()
	b.edge(cond, bodyEntry)
	b.cur = bodyEntry
	b.block(s.Body)
	b.edge(b.cur, head)

	exit := b.newPoint()
	b.edge(cond, exit)
	b.cur = exit
}

func (b *builder) forStmt(s *ast.ForStmt) {
	b.expr(s.Iter, modeRead)

	head := b.advance()

	if bind := b.res.ForBinds[s]; bind != nil {
		b.emit(Event{Kind: EvDef, Binding: bind, Span: s.GetSpan()})
		b.emit(Event{Kind: EvAssign, Binding: bind, Span: s.GetSpan()})
	}

	bodyEntry := b.newPoint()
	b.edge(head, bodyEntry)
	b.cur = bodyEntry
	b.block(s.Body)
	b.edge(b.cur, head)

	exit := b.newPoint()
	b.edge(head, exit)
	b.cur = exit
}

func (b *builder) arenaStmt(s *ast.ArenaStmt) {
	b.advance()

	// The handle binding lives in the arena block's scope and is
	// dropped with it.
	if bind := b.res.DeclBinds[s]; bind != nil {
		b.emit(Event{Kind: EvDef, Binding: bind, Span: s.GetSpan()})
		b.emit(Event{Kind: EvAssign, Binding: bind, Span: s.GetSpan()})
	}

	b.block(s.Body)
}

func (b *builder) matchStmt(s *ast.MatchStmt) {
	b.expr(s.Subject, modeRead)
	branch := b.cur

	join := b.newPoint()

	for _, arm := range s.Arms {
		entry := b.newPoint()
		b.edge(branch, entry)
		b.cur = entry

		if vp, ok := arm.Pattern.(*ast.VariantPattern); ok {
			for _, bind := range b.res.PatternBinds[vp] {
				b.emit(Event{Kind: EvDef, Binding: bind, Span: vp.GetSpan()})
				b.emit(Event{Kind: EvAssign, Binding: bind, Span: vp.GetSpan()})
			}
		}

		b.block(arm.Body)
		b.edge(b.cur, join)
	}

	if len(s.Arms) == 0 {
		b.edge(branch, join)
	}

	b.cur = join
}

// ====== Expression walking ======

// expr emits the events of evaluating e and returns the loans created
// directly by e (a reference expression, or the loans already held by a
// named reference being passed along), so callers can attach holders or
// check returns.
func (b *builder) expr(e ast.Expression, mode useMode) []*Loan {
	switch x := e.(type) {
	case *ast.IntLit, *ast.FloatLit, *ast.BoolLit, *ast.StringLit, *ast.PathExpr:
		return nil

	case *ast.Ident:
		return b.identUse(x, mode)

	case *ast.CallExpr:
		if _, isPath := x.Callee.(*ast.PathExpr); !isPath {
			b.expr(x.Callee, modeRead)
		}

		for _, a := range x.Args {
			b.expr(a, modeMove)
		}

		b.advance()

		return nil

	case *ast.BinaryExpr:
		b.expr(x.Left, modeRead)
		b.expr(x.Right, modeRead)

		return nil

	case *ast.UnaryExpr:
		b.expr(x.X, modeRead)

		return nil

	case *ast.RefExpr:
		return b.borrowExpr(x)

	case *ast.DerefExpr:
		b.expr(x.X, modeRead)

		return nil

	case *ast.FieldExpr:
		b.expr(x.X, modeRead)

		return nil

	case *ast.IndexExpr:
		b.expr(x.X, modeRead)
		b.expr(x.Index, modeRead)

		return nil

	case *ast.VectorLit:
		for _, el := range x.Elems {
			b.expr(el, modeMove)
		}

		return nil

	case *ast.MatrixLit:
		for _, row := range x.Rows {
			for _, el := range row {
				b.expr(el, modeMove)
			}
		}

		return nil

	case *ast.StructLit:
		for _, f := range x.Fields {
			b.expr(f.Value, modeMove)
		}

		return nil

	case *ast.TupleLit:
		for _, el := range x.Elems {
			b.expr(el, modeMove)
		}

		return nil

	case *ast.AllocExpr:
		b.identUse(x.Arena, modeRead)
		b.expr(x.Value, modeMove)

		return nil

	case *ast.PromoteExpr:
		return b.expr(x.Value, modeMove)

	case *ast.TryExpr:
		return b.expr(x.X, modeMove)

	default:
		return nil
	}
}

// identUse emits the read or move of a named binding, plus a use event
// for every loan the binding holds.
func (b *builder) identUse(id *ast.Ident, mode useMode) []*Loan {
	bind := b.res.Uses[id]
	if bind == nil {
		return nil
	}

	held := b.g.loansByHolder[bind]
	for _, l := range held {
		b.emit(Event{Kind: EvLoanUse, Loan: l.ID, Span: id.GetSpan()})
	}

	if mode == modeMove && !b.isCopyBinding(bind) {
		b.emit(Event{Kind: EvMove, Binding: bind, Span: id.GetSpan()})
		b.moves[id] = bind
	} else {
		b.emit(Event{Kind: EvRead, Binding: bind, Span: id.GetSpan()})
	}

	return held
}

// borrowExpr creates a loan for &x / &mut x. Borrows of projections
// (&p.field, &v[i]) borrow the root binding.
func (b *builder) borrowExpr(x *ast.RefExpr) []*Loan {
	root := rootIdent(x.Target)
	if root == nil {
		b.expr(x.Target, modeRead)

		return nil
	}

	bind := b.res.Uses[root]
	if bind == nil {
		return nil
	}

	// Evaluate index subexpressions of the projection path.
	b.projectionReads(x.Target)

	l := b.newLoan(bind, x.Mutable, x.GetSpan())
	b.emit(Event{Kind: EvBorrowStart, Binding: bind, Loan: l.ID, Span: x.GetSpan()})

	// A temporary borrow is used where it is created; holder-bound
	// borrows get their later uses from identUse.
	b.emit(Event{Kind: EvLoanUse, Loan: l.ID, Span: x.GetSpan()})

	return []*Loan{l}
}

// projectionReads emits reads for subexpressions along a projection
// path, excluding the root identifier itself.
func (b *builder) projectionReads(e ast.Expression) {
	switch x := e.(type) {
	case *ast.FieldExpr:
		b.projectionReads(x.X)
	case *ast.IndexExpr:
		b.projectionReads(x.X)
		b.expr(x.Index, modeRead)
	case *ast.DerefExpr:
		b.projectionReads(x.X)
	}
}

// rootIdent returns the base identifier of a projection path, or nil.
func rootIdent(e ast.Expression) *ast.Ident {
	switch x := e.(type) {
	case *ast.Ident:
		return x
	case *ast.FieldExpr:
		return rootIdent(x.X)
	case *ast.IndexExpr:
		return rootIdent(x.X)
	case *ast.DerefExpr:
		return rootIdent(x.X)
	default:
		return nil
	}
}

// Package borrow verifies move and borrow discipline per binding using
// control-flow-sensitive liveness. A borrow is live at a point if some
// forward path from that point reaches a use of it before the holding
// binding is reassigned, so an early borrow can end before its
// enclosing block closes. Ownership states follow the binding
// lifecycle: Uninitialized, Owned, Moved; active borrows are
// represented by live loans rather than explicit states.
package borrow

import (
	"github.com/tessera-lang/tessera/internal/ast"
	"github.com/tessera-lang/tessera/internal/checker"
	"github.com/tessera-lang/tessera/internal/diagnostics"
	"github.com/tessera-lang/tessera/internal/resolver"
	"github.com/tessera-lang/tessera/internal/types"
)

// ownState is a binding's ownership state at a program point.
type ownState uint8

const (
	stUnknown ownState = iota
	stUninit
	stOwned
	stMoved
)

// merge joins states at control-flow joins. Differing states join to
// Owned: only a move or missing initialization that holds on every
// path reaching a use is an error.
func (s ownState) merge(other ownState) ownState {
	switch {
	case s == stUnknown:
		return other
	case other == stUnknown:
		return s
	case s == other:
		return s
	default:
		return stOwned
	}
}

// Result carries the borrow checker's per-function output consumed by
// the escape analyzer.
type Result struct {
	// Moves maps each value-consuming identifier use to the binding it
	// moves out of. Copyable bindings never appear.
	Moves map[ast.Expression]*resolver.Binding

	// Loans lists every borrow created in the function.
	Loans []*Loan
}

// checkerState runs the dataflow passes for one function.
type checkerState struct {
	g        *Graph
	res      *resolver.Result
	reporter *diagnostics.Reporter

	// liveOut[p] is the set of loans live immediately after point p.
	liveOut []map[LoanID]bool
	liveIn  []map[LoanID]bool
}

// Check analyzes one function body. It requires the checker's Info for
// the same function, to know which bindings are copyable and which hold
// references.
func Check(fn *ast.FunctionDecl, res *resolver.Result, in *types.Interner, info *checker.Info, reporter *diagnostics.Reporter) *Result {
	out := &Result{Moves: make(map[ast.Expression]*resolver.Binding)}

	if fn.Body == nil {
		return out
	}

	b := newBuilder(res, in, info)

	// Parameters are initialized on entry.
	for _, p := range fn.Params {
		if bind := res.DeclBinds[p]; bind != nil {
			b.emit(Event{Kind: EvDef, Binding: bind, Span: p.GetSpan()})
			b.emit(Event{Kind: EvAssign, Binding: bind, Span: p.GetSpan()})
		}
	}

	b.block(fn.Body)

	cs := &checkerState{g: b.g, res: res, reporter: reporter}
	cs.computeLiveness()
	cs.checkConflicts()
	cs.checkOwnership()
	cs.checkDangling(b)

	out.Moves = b.moves
	out.Loans = b.g.Loans

	return out
}

// ====== Loan liveness ======

// computeLiveness runs a backward fixpoint: a loan is generated by its
// uses and killed when its holder is reassigned or dropped.
func (cs *checkerState) computeLiveness() {
	n := len(cs.g.Points)
	cs.liveOut = make([]map[LoanID]bool, n)
	cs.liveIn = make([]map[LoanID]bool, n)

	for i := range cs.g.Points {
		cs.liveOut[i] = make(map[LoanID]bool)
		cs.liveIn[i] = make(map[LoanID]bool)
	}

	changed := true
	for changed {
		changed = false

		for i := n - 1; i >= 0; i-- {
			p := cs.g.Points[i]

			out := cs.liveOut[i]
			for _, s := range p.Succs {
				for l := range cs.liveIn[s] {
					if !out[l] {
						out[l] = true
						changed = true
					}
				}
			}

			in := make(map[LoanID]bool, len(out))
			for l := range out {
				in[l] = true
			}

			// Events within a point apply in order; walk them backward.
			for e := len(p.Events) - 1; e >= 0; e-- {
				ev := p.Events[e]

				switch ev.Kind {
				case EvLoanUse:
					in[ev.Loan] = true

				case EvAssign, EvDrop:
					if ev.Binding != nil {
						for _, l := range cs.g.loansByHolder[ev.Binding] {
							delete(in, l.ID)
						}
					}
				}
			}

			if !sameSet(cs.liveIn[i], in) {
				cs.liveIn[i] = in
				changed = true
			}
		}
	}
}

func sameSet(a, b map[LoanID]bool) bool {
	if len(a) != len(b) {
		return false
	}

	for k := range a {
		if !b[k] {
			return false
		}
	}

	return true
}

// ====== Exclusivity ======

// computeStarted runs a forward fixpoint marking, per point, the loans
// whose borrow has begun on some path reaching the point. Backward
// liveness alone marks a loan live before it exists, so conflicts are
// gated on the loan having started.
func (cs *checkerState) computeStarted() []map[LoanID]bool {
	n := len(cs.g.Points)
	startedIn := make([]map[LoanID]bool, n)

	for i := range startedIn {
		startedIn[i] = make(map[LoanID]bool)
	}

	changed := true
	for changed {
		changed = false

		for i, p := range cs.g.Points {
			out := make(map[LoanID]bool, len(startedIn[i]))
			for l := range startedIn[i] {
				out[l] = true
			}

			for _, ev := range p.Events {
				if ev.Kind == EvBorrowStart {
					out[ev.Loan] = true
				}
			}

			for _, s := range p.Succs {
				for l := range out {
					if !startedIn[s][l] {
						startedIn[s][l] = true
						changed = true
					}
				}
			}
		}
	}

	return startedIn
}

// checkConflicts reports a conflict wherever a borrow starts while
// another borrow of the same binding is both started and live across
// that point and at least one of the two is mutable, and rejects moves
// out of a binding while a started borrow of it is still live: the
// move ends the binding's lifetime, leaving the borrow dangling.
func (cs *checkerState) checkConflicts() {
	startedIn := cs.computeStarted()

	for i, p := range cs.g.Points {
		started := make(map[LoanID]bool, len(startedIn[i]))
		for l := range startedIn[i] {
			started[l] = true
		}

		for _, ev := range p.Events {
			switch ev.Kind {
			case EvBorrowStart:
				neu := cs.g.Loans[ev.Loan]
				started[neu.ID] = true

				for existingID := range cs.liveOut[i] {
					if existingID == neu.ID || !started[existingID] {
						continue
					}

					existing := cs.g.Loans[existingID]
					if existing.Target != neu.Target {
						continue
					}

					if !existing.Mutable && !neu.Mutable {
						continue
					}

					kind := "shared"
					if existing.Mutable {
						kind = "mutable"
					}

					cs.reporter.ErrorWithRelated(
						diagnostics.PhaseBorrowCheck, diagnostics.ActiveBorrowConflict, neu.Span,
						[]diagnostics.Related{{Message: "conflicting " + kind + " borrow starts here", Span: existing.Span}},
						"cannot borrow '%s' while a %s borrow is live", neu.Target.Name, kind)
				}

			case EvMove:
				if ev.Binding == nil {
					continue
				}

				for loanID := range cs.liveOut[i] {
					if !started[loanID] {
						continue
					}

					l := cs.g.Loans[loanID]
					if l.Target != ev.Binding {
						continue
					}

					cs.reporter.ErrorWithRelated(
						diagnostics.PhaseBorrowCheck, diagnostics.DanglingReference, ev.Span,
						[]diagnostics.Related{{Message: "borrow of '" + l.Target.Name + "' created here", Span: l.Span}},
						"cannot move out of '%s' while it is borrowed", ev.Binding.Name)
				}
			}
		}
	}
}

// ====== Ownership states ======

// checkOwnership runs a forward fixpoint over per-binding states and
// reports uses of moved or uninitialized bindings.
func (cs *checkerState) checkOwnership() {
	n := len(cs.g.Points)
	inStates := make([]map[*resolver.Binding]ownState, n)

	for i := range inStates {
		inStates[i] = make(map[*resolver.Binding]ownState)
	}

	// Worklist seeded with the entry point.
	work := []PointID{0}
	queued := make([]bool, n)
	queued[0] = true

	for len(work) > 0 {
		id := work[0]
		work = work[1:]
		queued[id] = false

		p := cs.g.Points[id]
		state := copyStates(inStates[id])

		for _, ev := range p.Events {
			cs.applyOwnership(state, ev)
		}

		for _, s := range p.Succs {
			if mergeInto(inStates[s], state) && !queued[s] {
				queued[s] = true
				work = append(work, s)
			}
		}
	}

	// Reporting pass: rerun transfer with final in-states so each
	// violation is reported once per site.
	reported := make(map[reportKey]bool)

	for i, p := range cs.g.Points {
		state := copyStates(inStates[i])

		for _, ev := range p.Events {
			cs.reportOwnership(state, ev, reported)
			cs.applyOwnership(state, ev)
		}
	}
}

type reportKey struct {
	bind   *resolver.Binding
	code   diagnostics.Code
	offset int
}

func copyStates(m map[*resolver.Binding]ownState) map[*resolver.Binding]ownState {
	out := make(map[*resolver.Binding]ownState, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

// mergeInto joins src into dst and reports whether dst changed.
func mergeInto(dst, src map[*resolver.Binding]ownState) bool {
	changed := false

	for k, v := range src {
		merged := dst[k].merge(v)
		if merged != dst[k] {
			dst[k] = merged
			changed = true
		}
	}

	return changed
}

func (cs *checkerState) applyOwnership(state map[*resolver.Binding]ownState, ev Event) {
	if ev.Binding == nil {
		return
	}

	switch ev.Kind {
	case EvDef:
		state[ev.Binding] = stUninit
	case EvAssign:
		state[ev.Binding] = stOwned
	case EvMove:
		state[ev.Binding] = stMoved
	case EvDrop:
		delete(state, ev.Binding)
	}
}

func (cs *checkerState) reportOwnership(state map[*resolver.Binding]ownState, ev Event, reported map[reportKey]bool) {
	if ev.Binding == nil {
		return
	}

	var uses bool

	switch ev.Kind {
	case EvRead, EvMove, EvBorrowStart:
		uses = true
	}

	if !uses {
		return
	}

	switch state[ev.Binding] {
	case stMoved:
		key := reportKey{ev.Binding, diagnostics.UseAfterMove, ev.Span.Start.Offset}
		if !reported[key] {
			reported[key] = true
			cs.reporter.Error(diagnostics.PhaseBorrowCheck, diagnostics.UseAfterMove, ev.Span,
				"use of moved value '%s'", ev.Binding.Name)
		}

	case stUninit:
		key := reportKey{ev.Binding, diagnostics.UninitializedUse, ev.Span.Start.Offset}
		if !reported[key] {
			reported[key] = true
			cs.reporter.Error(diagnostics.PhaseBorrowCheck, diagnostics.UninitializedUse, ev.Span,
				"use of uninitialized binding '%s'", ev.Binding.Name)
		}
	}
}

// ====== Dangling references ======

// checkDangling rejects references that would outlive their referent:
// returning a reference to a function-local binding, and storing a
// reference into a binding whose scope strictly encloses the referent's
// scope.
func (cs *checkerState) checkDangling(b *builder) {
	for _, site := range b.returns {
		for _, l := range returnedLoans(b, site.value) {
			cs.reporter.ErrorWithRelated(
				diagnostics.PhaseBorrowCheck, diagnostics.DanglingReference, site.value.GetSpan(),
				[]diagnostics.Related{{Message: "borrow of local '" + l.Target.Name + "' created here", Span: l.Span}},
				"returning a reference to local '%s'", l.Target.Name)
		}
	}

	for _, l := range b.g.Loans {
		if l.Holder == nil {
			continue
		}

		holderScope := l.Holder.Scope
		targetScope := l.Target.Scope

		if holderScope != targetScope && cs.res.IsAncestor(holderScope, targetScope) {
			cs.reporter.ErrorWithRelated(
				diagnostics.PhaseBorrowCheck, diagnostics.DanglingReference, l.Span,
				[]diagnostics.Related{{Message: "'" + l.Holder.Name + "' declared in an outer scope here", Span: l.Holder.DeclSpan}},
				"reference to '%s' stored in '%s' outlives its referent's scope",
				l.Target.Name, l.Holder.Name)
		}
	}
}

// returnedLoans collects the loans escaping through a return value: a
// reference expression's own loan, or the loans held by a returned
// named reference.
func returnedLoans(b *builder, e ast.Expression) []*Loan {
	switch x := e.(type) {
	case *ast.RefExpr:
		root := rootIdent(x.Target)
		if root == nil {
			return nil
		}

		bind := b.res.Uses[root]
		if bind == nil {
			return nil
		}

		var out []*Loan

		for _, l := range b.g.Loans {
			if l.Target == bind && l.Holder == nil && l.Span == x.GetSpan() {
				out = append(out, l)
			}
		}

		return out

	case *ast.Ident:
		bind := b.res.Uses[x]
		if bind == nil {
			return nil
		}

		return b.g.loansByHolder[bind]

	case *ast.TupleLit:
		var out []*Loan

		for _, el := range x.Elems {
			out = append(out, returnedLoans(b, el)...)
		}

		return out

	default:
		return nil
	}
}

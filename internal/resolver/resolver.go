// Symbol resolution for Tessera compilation units. The resolver builds
// the scope tree, binds every identifier use to exactly one visible
// declaration (inner shadows outer), registers arena resources, and
// reports UnresolvedName/DuplicateDeclaration without mutating the AST.

package resolver

import (
	"github.com/tessera-lang/tessera/internal/ast"
	"github.com/tessera-lang/tessera/internal/diagnostics"
	"github.com/tessera-lang/tessera/internal/position"
)

// Resolver performs name resolution over one module.
type Resolver struct {
	reporter *diagnostics.Reporter
	result   *Result

	scopeCounter   ScopeID
	bindingCounter BindingID
	arenaCounter   ArenaID

	current ScopeID
}

// Resolve builds the scope tree and resolution tables for mod. Names in
// externs are registered in the module scope before declarations, so
// bodies may call imported functions; their signatures are attached by
// the checker.
func Resolve(mod *ast.Module, externs []string, reporter *diagnostics.Reporter) *Result {
	r := &Resolver{
		reporter: reporter,
		result: &Result{
			Scopes:       make(map[ScopeID]*Scope),
			Uses:         make(map[*ast.Ident]*Binding),
			NodeScopes:   make(map[ast.Node]ScopeID),
			DeclBinds:    make(map[ast.Node]*Binding),
			PatternBinds: make(map[*ast.VariantPattern][]*Binding),
			ForBinds:     make(map[*ast.ForStmt]*Binding),
		},
	}

	root := r.newScope(ScopeModule, nil, mod.GetSpan())
	r.result.Root = root.ID
	r.current = root.ID

	for _, name := range externs {
		r.declare(&Binding{Name: name, Kind: BindFunction, DeclSpan: mod.GetSpan(), Initialized: true})
	}

	// Signature pass: every top-level name is visible before any body is
	// resolved, so calls may reference later declarations.
	for _, decl := range mod.Decls {
		r.declareTopLevel(decl)
	}

	for _, decl := range mod.Decls {
		if fn, ok := decl.(*ast.FunctionDecl); ok {
			r.resolveFunction(fn)
		}
	}

	return r.result
}

// ====== Scope management ======

func (r *Resolver) newScope(kind ScopeKind, parent *ScopeID, span position.Span) *Scope {
	r.scopeCounter++

	s := &Scope{
		ID:       r.scopeCounter,
		Kind:     kind,
		Parent:   parent,
		Bindings: make(map[string]*Binding),
		Span:     span,
	}

	if parent != nil {
		if p := r.result.Scopes[*parent]; p != nil {
			s.Depth = p.Depth + 1
			p.Children = append(p.Children, s.ID)
		}
	}

	r.result.Scopes[s.ID] = s

	return s
}

// enter creates a child scope of the current scope and makes it current.
func (r *Resolver) enter(kind ScopeKind, span position.Span) *Scope {
	parent := r.current
	s := r.newScope(kind, &parent, span)
	r.current = s.ID

	return s
}

func (r *Resolver) exit() {
	if s := r.result.Scopes[r.current]; s != nil && s.Parent != nil {
		r.current = *s.Parent
	}
}

// declare adds a binding to the current scope. A duplicate in the same
// scope reports DuplicateDeclaration; the later declaration shadows for
// subsequent resolution rather than being silently dropped.
func (r *Resolver) declare(b *Binding) *Binding {
	scope := r.result.Scopes[r.current]

	if existing, ok := scope.Bindings[b.Name]; ok {
		r.reporter.ErrorWithRelated(
			diagnostics.PhaseResolve,
			diagnostics.DuplicateDeclaration,
			b.DeclSpan,
			[]diagnostics.Related{{Message: "previous declaration here", Span: existing.DeclSpan}},
			"duplicate declaration of '%s' in the same scope", b.Name,
		)
	}

	r.bindingCounter++
	b.ID = r.bindingCounter
	b.Scope = scope.ID
	scope.Bindings[b.Name] = b
	scope.Ordered = append(scope.Ordered, b)

	if b.Decl != nil {
		r.result.DeclBinds[b.Decl] = b
	}

	return b
}

// lookup walks the scope chain from the current scope outward.
func (r *Resolver) lookup(name string) *Binding {
	id := r.current

	for {
		scope := r.result.Scopes[id]
		if scope == nil {
			return nil
		}

		if b, ok := scope.Bindings[name]; ok {
			return b
		}

		if scope.Parent == nil {
			return nil
		}

		id = *scope.Parent
	}
}

// ====== Declarations ======

func (r *Resolver) declareTopLevel(decl ast.Declaration) {
	switch d := decl.(type) {
	case *ast.FunctionDecl:
		r.declare(&Binding{Name: d.Name, Kind: BindFunction, Decl: d, DeclSpan: d.GetSpan(), Initialized: true})
	case *ast.StructDecl:
		r.declare(&Binding{Name: d.Name, Kind: BindStruct, Decl: d, DeclSpan: d.GetSpan(), Initialized: true})
	case *ast.EnumDecl:
		r.declare(&Binding{Name: d.Name, Kind: BindEnum, Decl: d, DeclSpan: d.GetSpan(), Initialized: true})
	}
}

func (r *Resolver) resolveFunction(fn *ast.FunctionDecl) {
	scope := r.enter(ScopeFunction, fn.GetSpan())
	defer r.exit()

	r.result.NodeScopes[fn] = scope.ID

	for _, p := range fn.Params {
		r.declare(&Binding{
			Name:        p.Name,
			Kind:        BindParam,
			Mutable:     p.Mutable,
			Decl:        p,
			DeclSpan:    p.GetSpan(),
			Initialized: true,
		})
	}

	if fn.Body != nil {
		r.resolveBlockInto(fn.Body)
	}
}

// resolveBlockInto resolves a block's statements inside the current
// scope without opening a new one; callers that need a fresh scope open
// it first.
func (r *Resolver) resolveBlockInto(b *ast.Block) {
	for _, stmt := range b.Stmts {
		r.resolveStmt(stmt)
	}
}

func (r *Resolver) resolveBlock(b *ast.Block, kind ScopeKind) {
	scope := r.enter(kind, b.GetSpan())
	defer r.exit()

	r.result.NodeScopes[b] = scope.ID
	r.resolveBlockInto(b)
}

// ====== Statements ======

func (r *Resolver) resolveStmt(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.Block:
		r.resolveBlock(s, ScopeBlock)

	case *ast.LetStmt:
		// The initializer resolves before the name is visible, so
		// `let x = x` refers to an outer x.
		if s.Init != nil {
			r.resolveExpr(s.Init)
		}

		r.declare(&Binding{
			Name:        s.Name,
			Kind:        BindVar,
			Mutable:     s.Mutable,
			Decl:        s,
			DeclSpan:    s.GetSpan(),
			Initialized: s.Init != nil,
		})

	case *ast.AssignStmt:
		r.resolveExpr(s.Target)
		r.resolveExpr(s.Value)

	case *ast.ExprStmt:
		r.resolveExpr(s.X)

	case *ast.ReturnStmt:
		if s.Value != nil {
			r.resolveExpr(s.Value)
		}

	case *ast.IfStmt:
		r.resolveExpr(s.Cond)
		r.resolveBlock(s.Then, ScopeBlock)

		if s.Else != nil {
			r.resolveStmt(s.Else)
		}

	case *ast.WhileStmt:
		r.resolveExpr(s.Cond)
		r.resolveBlock(s.Body, ScopeLoop)

	case *ast.ForStmt:
		r.resolveExpr(s.Iter)

		scope := r.enter(ScopeLoop, s.GetSpan())
		r.result.NodeScopes[s.Body] = scope.ID
		r.result.ForBinds[s] = r.declare(&Binding{
			Name:        s.Name,
			Kind:        BindVar,
			Decl:        s,
			DeclSpan:    s.GetSpan(),
			Initialized: true,
		})
		r.resolveBlockInto(s.Body)
		r.exit()

	case *ast.ArenaStmt:
		r.resolveArena(s)

	case *ast.MatchStmt:
		r.resolveExpr(s.Subject)

		for _, arm := range s.Arms {
			r.resolveArm(arm)
		}
	}
}

// resolveArena opens the arena block's scope, registers the Arena
// resource on it, and binds the arena handle inside the block.
func (r *Resolver) resolveArena(s *ast.ArenaStmt) {
	scope := r.enter(ScopeArena, s.GetSpan())
	defer r.exit()

	r.result.NodeScopes[s.Body] = scope.ID
	r.result.NodeScopes[s] = scope.ID

	handle := r.declare(&Binding{
		Name:        s.Name,
		Kind:        BindArenaHandle,
		Decl:        s,
		DeclSpan:    s.GetSpan(),
		Initialized: true,
	})

	r.arenaCounter++
	arena := &Arena{
		ID:     r.arenaCounter,
		Name:   s.Name,
		Scope:  scope.ID,
		Decl:   s,
		Handle: handle,
	}
	scope.Arena = arena
	r.result.Arenas = append(r.result.Arenas, arena)

	r.resolveBlockInto(s.Body)
}

func (r *Resolver) resolveArm(arm *ast.MatchArm) {
	scope := r.enter(ScopeMatchArm, arm.GetSpan())
	defer r.exit()

	r.result.NodeScopes[arm.Body] = scope.ID

	if vp, ok := arm.Pattern.(*ast.VariantPattern); ok {
		binds := make([]*Binding, 0, len(vp.Binds))

		for _, name := range vp.Binds {
			binds = append(binds, r.declare(&Binding{
				Name:        name,
				Kind:        BindVar,
				Decl:        vp,
				DeclSpan:    vp.GetSpan(),
				Initialized: true,
			}))
		}

		r.result.PatternBinds[vp] = binds
	}

	r.resolveBlockInto(arm.Body)
}

// ====== Expressions ======

func (r *Resolver) resolveExpr(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.Ident:
		if b := r.lookup(e.Name); b != nil {
			r.result.Uses[e] = b
		} else {
			r.reporter.Error(diagnostics.PhaseResolve, diagnostics.UnresolvedName, e.GetSpan(),
				"unresolved name '%s'", e.Name)
		}

	case *ast.PathExpr:
		// Qualified names resolve against the type namespace in the
		// checker; nothing to bind here.

	case *ast.CallExpr:
		r.resolveExpr(e.Callee)

		for _, a := range e.Args {
			r.resolveExpr(a)
		}

	case *ast.BinaryExpr:
		r.resolveExpr(e.Left)
		r.resolveExpr(e.Right)

	case *ast.UnaryExpr:
		r.resolveExpr(e.X)

	case *ast.RefExpr:
		r.resolveExpr(e.Target)

	case *ast.DerefExpr:
		r.resolveExpr(e.X)

	case *ast.FieldExpr:
		r.resolveExpr(e.X)

	case *ast.IndexExpr:
		r.resolveExpr(e.X)
		r.resolveExpr(e.Index)

	case *ast.VectorLit:
		for _, el := range e.Elems {
			r.resolveExpr(el)
		}

	case *ast.MatrixLit:
		for _, row := range e.Rows {
			for _, el := range row {
				r.resolveExpr(el)
			}
		}

	case *ast.StructLit:
		for _, f := range e.Fields {
			r.resolveExpr(f.Value)
		}

	case *ast.TupleLit:
		for _, el := range e.Elems {
			r.resolveExpr(el)
		}

	case *ast.AllocExpr:
		r.resolveExpr(e.Arena)
		r.resolveExpr(e.Value)

	case *ast.PromoteExpr:
		r.resolveExpr(e.Value)

	case *ast.TryExpr:
		r.resolveExpr(e.X)
	}
}

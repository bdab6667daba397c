// Scope tree and binding records for the Tessera resolver. The tree
// mirrors lexical nesting: module, function, block, arena block, match
// arm, and loop scopes. Arena resources are registered on the scope of
// their declaring block.

package resolver

import (
	"fmt"

	"github.com/tessera-lang/tessera/internal/ast"
	"github.com/tessera-lang/tessera/internal/position"
)

// ScopeID is a unique identifier for one scope node.
type ScopeID uint32

// BindingID is a unique identifier for one binding.
type BindingID uint32

// ArenaID is a unique identifier for one arena resource.
type ArenaID uint32

// ScopeKind classifies a scope node.
type ScopeKind int

const (
	ScopeModule ScopeKind = iota
	ScopeFunction
	ScopeBlock
	ScopeArena
	ScopeMatchArm
	ScopeLoop
)

// String returns the scope kind name.
func (k ScopeKind) String() string {
	switch k {
	case ScopeModule:
		return "module"
	case ScopeFunction:
		return "function"
	case ScopeBlock:
		return "block"
	case ScopeArena:
		return "arena"
	case ScopeMatchArm:
		return "match-arm"
	case ScopeLoop:
		return "loop"
	default:
		return "unknown"
	}
}

// BindingKind classifies what a name is bound to.
type BindingKind int

const (
	BindVar BindingKind = iota
	BindParam
	BindFunction
	BindStruct
	BindEnum
	BindArenaHandle
)

// String returns the binding kind name.
func (k BindingKind) String() string {
	switch k {
	case BindVar:
		return "variable"
	case BindParam:
		return "parameter"
	case BindFunction:
		return "function"
	case BindStruct:
		return "struct"
	case BindEnum:
		return "enum"
	case BindArenaHandle:
		return "arena"
	default:
		return "unknown"
	}
}

// Binding is one declared name. Re-declaration under the same name in
// the same scope creates a new, independent Binding; the old one is
// shadowed for subsequent resolution.
type Binding struct {
	ID       BindingID
	Name     string
	Kind     BindingKind
	Mutable  bool
	Scope    ScopeID
	Decl     ast.Node // nil for externally supplied signatures
	DeclSpan position.Span

	// Initialized is true for bindings declared with an initializer and
	// for parameters; `var x;` starts uninitialized.
	Initialized bool
}

// String renders the binding for debugging.
func (b *Binding) String() string {
	return fmt.Sprintf("%s %s (scope %d)", b.Kind.String(), b.Name, b.Scope)
}

// Arena is a resource bound 1:1 to the scope of its declaring block;
// its lifetime equals that scope's lifetime.
type Arena struct {
	ID     ArenaID
	Name   string
	Scope  ScopeID
	Decl   *ast.ArenaStmt
	Handle *Binding
}

// Scope is a node in the scope tree. Parent is nil only for the module
// root.
type Scope struct {
	ID       ScopeID
	Kind     ScopeKind
	Parent   *ScopeID
	Children []ScopeID
	Bindings map[string]*Binding
	Depth    int
	Span     position.Span

	// Arena is the arena registered on this scope, non-nil only for
	// ScopeArena nodes.
	Arena *Arena

	// Ordered declaration list, used to conceptually destroy bindings in
	// reverse declaration order at scope exit.
	Ordered []*Binding
}

// Lookup searches this scope only.
func (s *Scope) Lookup(name string) (*Binding, bool) {
	b, ok := s.Bindings[name]

	return b, ok
}

// Result is the resolver's output: the scope tree, the use-site
// resolution table, and the arena registry.
type Result struct {
	Root   ScopeID
	Scopes map[ScopeID]*Scope

	// Uses maps each resolved identifier use to its binding. Unresolved
	// identifiers are absent; downstream phases tolerate the gap.
	Uses map[*ast.Ident]*Binding

	// NodeScopes maps scope-introducing nodes (function bodies, blocks,
	// arena blocks, match arms, loops) to their scope IDs.
	NodeScopes map[ast.Node]ScopeID

	// DeclBinds maps declaring nodes (let statements, parameters, arena
	// statements) to the binding they create.
	DeclBinds map[ast.Node]*Binding

	// PatternBinds maps each variant pattern to the bindings it introduces,
	// in payload order.
	PatternBinds map[*ast.VariantPattern][]*Binding

	// ForBinds maps each for statement to its element binding.
	ForBinds map[*ast.ForStmt]*Binding

	Arenas []*Arena
}

// Scope returns the scope node for id, or nil.
func (r *Result) Scope(id ScopeID) *Scope {
	return r.Scopes[id]
}

// IsAncestor reports whether outer is outer (or equal to) inner in the
// scope tree.
func (r *Result) IsAncestor(outer, inner ScopeID) bool {
	for {
		if outer == inner {
			return true
		}

		s := r.Scopes[inner]
		if s == nil || s.Parent == nil {
			return false
		}

		inner = *s.Parent
	}
}

// Depth returns the nesting depth of a scope, with the module root at 0.
func (r *Result) Depth(id ScopeID) int {
	if s := r.Scopes[id]; s != nil {
		return s.Depth
	}

	return 0
}

// ArenaByScope returns the arena registered on the given scope, or nil.
func (r *Result) ArenaByScope(id ScopeID) *Arena {
	if s := r.Scopes[id]; s != nil {
		return s.Arena
	}

	return nil
}

// EnclosingArena returns the innermost arena whose scope contains id,
// or nil when id is outside every arena block.
func (r *Result) EnclosingArena(id ScopeID) *Arena {
	for {
		s := r.Scopes[id]
		if s == nil {
			return nil
		}

		if s.Arena != nil {
			return s.Arena
		}

		if s.Parent == nil {
			return nil
		}

		id = *s.Parent
	}
}

// Package ast defines the parsed representation of a Tessera compilation
// unit as handed to the analysis core by the external parser. The core
// never mutates these nodes; analysis results live in side tables keyed
// by node identity.
package ast

import (
	"fmt"
	"strings"

	"github.com/tessera-lang/tessera/internal/position"
)

// Node is the base interface for all AST nodes.
type Node interface {
	// GetSpan returns the source span covered by the node.
	GetSpan() position.Span
	// String returns a short printable form used in diagnostics and tests.
	String() string
}

// Declaration is a top-level declaration in a module.
type Declaration interface {
	Node
	declNode()
}

// Statement is any statement inside a function body.
type Statement interface {
	Node
	stmtNode()
}

// Expression is any value-producing node.
type Expression interface {
	Node
	exprNode()
}

// TypeExpr is a syntactic type annotation, resolved to a semantic type
// by the checker.
type TypeExpr interface {
	Node
	typeNode()
}

// DimExpr is a compile-time dimension term: a literal length or a
// generic dimension parameter. Exactly one of the two forms is set.
type DimExpr struct {
	Lit   int64  // literal value, valid when Param == ""
	Param string // dimension parameter name, "" for literals
}

// IsParam reports whether the term is a symbolic dimension parameter.
func (d DimExpr) IsParam() bool { return d.Param != "" }

func (d DimExpr) String() string {
	if d.IsParam() {
		return d.Param
	}

	return fmt.Sprintf("%d", d.Lit)
}

// ====== Module ======

// Module is the root of one compilation unit.
type Module struct {
	Span  position.Span
	Name  string
	Decls []Declaration
}

func (m *Module) GetSpan() position.Span { return m.Span }
func (m *Module) String() string         { return "module " + m.Name }

// ====== Declarations ======

// TypeParamKind distinguishes type parameters from dimension parameters.
type TypeParamKind int

const (
	TypeParamType TypeParamKind = iota
	TypeParamDim
)

// TypeParam is a generic parameter on a function, struct, or enum.
type TypeParam struct {
	Span position.Span
	Name string
	Kind TypeParamKind
}

func (tp *TypeParam) GetSpan() position.Span { return tp.Span }
func (tp *TypeParam) String() string         { return tp.Name }

// Param is a function parameter.
type Param struct {
	Span    position.Span
	Name    string
	Type    TypeExpr
	Mutable bool
}

func (p *Param) GetSpan() position.Span { return p.Span }
func (p *Param) String() string         { return p.Name + ": " + p.Type.String() }

// FunctionDecl declares a function. ReturnType may be nil for the unit
// return type.
type FunctionDecl struct {
	Span       position.Span
	Name       string
	TypeParams []*TypeParam
	Params     []*Param
	ReturnType TypeExpr
	Body       *Block
	Public     bool
}

func (f *FunctionDecl) GetSpan() position.Span { return f.Span }
func (f *FunctionDecl) String() string         { return "fn " + f.Name }
func (f *FunctionDecl) declNode()              {}

// Field is a named struct field.
type Field struct {
	Span position.Span
	Name string
	Type TypeExpr
}

func (f *Field) GetSpan() position.Span { return f.Span }
func (f *Field) String() string         { return f.Name + ": " + f.Type.String() }

// StructDecl declares a nominal struct type with ordered fields.
type StructDecl struct {
	Span       position.Span
	Name       string
	TypeParams []*TypeParam
	Fields     []*Field
	Public     bool
}

func (s *StructDecl) GetSpan() position.Span { return s.Span }
func (s *StructDecl) String() string         { return "struct " + s.Name }
func (s *StructDecl) declNode()              {}

// Variant is one enum variant with an ordered payload.
type Variant struct {
	Span    position.Span
	Name    string
	Payload []TypeExpr
}

func (v *Variant) GetSpan() position.Span { return v.Span }
func (v *Variant) String() string         { return v.Name }

// EnumDecl declares a nominal enum type with ordered variants.
type EnumDecl struct {
	Span       position.Span
	Name       string
	TypeParams []*TypeParam
	Variants   []*Variant
	Public     bool
}

func (e *EnumDecl) GetSpan() position.Span { return e.Span }
func (e *EnumDecl) String() string         { return "enum " + e.Name }
func (e *EnumDecl) declNode()              {}

// ====== Type expressions ======

// NamedType names a primitive, struct, enum, or generic type parameter,
// optionally with generic arguments (e.g. Result<i32, Error>).
type NamedType struct {
	Span position.Span
	Name string
	Args []TypeExpr
}

func (t *NamedType) GetSpan() position.Span { return t.Span }
func (t *NamedType) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}

	parts := make([]string, len(t.Args))
	for i, a := range t.Args {
		parts[i] = a.String()
	}

	return t.Name + "<" + strings.Join(parts, ", ") + ">"
}
func (t *NamedType) typeNode() {}

// VectorType is vecN<elem>.
type VectorType struct {
	Span position.Span
	Elem TypeExpr
	Len  DimExpr
}

func (t *VectorType) GetSpan() position.Span { return t.Span }
func (t *VectorType) String() string {
	return fmt.Sprintf("vec%s<%s>", t.Len.String(), t.Elem.String())
}
func (t *VectorType) typeNode() {}

// MatrixType is matRxC<elem>.
type MatrixType struct {
	Span position.Span
	Elem TypeExpr
	Rows DimExpr
	Cols DimExpr
}

func (t *MatrixType) GetSpan() position.Span { return t.Span }
func (t *MatrixType) String() string {
	return fmt.Sprintf("mat%sx%s<%s>", t.Rows.String(), t.Cols.String(), t.Elem.String())
}
func (t *MatrixType) typeNode() {}

// ArrayType is [elem; N].
type ArrayType struct {
	Span position.Span
	Elem TypeExpr
	Len  DimExpr
}

func (t *ArrayType) GetSpan() position.Span { return t.Span }
func (t *ArrayType) String() string {
	return fmt.Sprintf("[%s; %s]", t.Elem.String(), t.Len.String())
}
func (t *ArrayType) typeNode() {}

// TupleType is (a, b, ...).
type TupleType struct {
	Span  position.Span
	Elems []TypeExpr
}

func (t *TupleType) GetSpan() position.Span { return t.Span }
func (t *TupleType) String() string {
	parts := make([]string, len(t.Elems))
	for i, e := range t.Elems {
		parts[i] = e.String()
	}

	return "(" + strings.Join(parts, ", ") + ")"
}
func (t *TupleType) typeNode() {}

// ReferenceType is &T or &mut T.
type ReferenceType struct {
	Span    position.Span
	Elem    TypeExpr
	Mutable bool
}

func (t *ReferenceType) GetSpan() position.Span { return t.Span }
func (t *ReferenceType) String() string {
	if t.Mutable {
		return "&mut " + t.Elem.String()
	}

	return "&" + t.Elem.String()
}
func (t *ReferenceType) typeNode() {}

// ====== Statements ======

// Block is a braced sequence of statements introducing a lexical scope.
type Block struct {
	Span  position.Span
	Stmts []Statement
}

func (b *Block) GetSpan() position.Span { return b.Span }
func (b *Block) String() string         { return "block" }
func (b *Block) stmtNode()              {}

// LetStmt declares a binding. Mutable distinguishes `var` from `let`.
// Type may be nil (inferred); Init may be nil (uninitialized `var`).
type LetStmt struct {
	Span    position.Span
	Name    string
	Mutable bool
	Type    TypeExpr
	Init    Expression
}

func (s *LetStmt) GetSpan() position.Span { return s.Span }
func (s *LetStmt) String() string {
	if s.Mutable {
		return "var " + s.Name
	}

	return "let " + s.Name
}
func (s *LetStmt) stmtNode() {}

// AssignStmt assigns Value into an existing place expression.
type AssignStmt struct {
	Span   position.Span
	Target Expression
	Value  Expression
}

func (s *AssignStmt) GetSpan() position.Span { return s.Span }
func (s *AssignStmt) String() string         { return "assign" }
func (s *AssignStmt) stmtNode()              {}

// ExprStmt evaluates an expression for its effects.
type ExprStmt struct {
	Span position.Span
	X    Expression
}

func (s *ExprStmt) GetSpan() position.Span { return s.Span }
func (s *ExprStmt) String() string         { return "expr" }
func (s *ExprStmt) stmtNode()              {}

// ReturnStmt returns from the enclosing function. Value may be nil.
type ReturnStmt struct {
	Span  position.Span
	Value Expression
}

func (s *ReturnStmt) GetSpan() position.Span { return s.Span }
func (s *ReturnStmt) String() string         { return "return" }
func (s *ReturnStmt) stmtNode()              {}

// IfStmt is a conditional with an optional else branch. Else is either
// a *Block or another *IfStmt.
type IfStmt struct {
	Span position.Span
	Cond Expression
	Then *Block
	Else Statement
}

func (s *IfStmt) GetSpan() position.Span { return s.Span }
func (s *IfStmt) String() string         { return "if" }
func (s *IfStmt) stmtNode()              {}

// WhileStmt is a pre-tested loop.
type WhileStmt struct {
	Span position.Span
	Cond Expression
	Body *Block
}

func (s *WhileStmt) GetSpan() position.Span { return s.Span }
func (s *WhileStmt) String() string         { return "while" }
func (s *WhileStmt) stmtNode()              {}

// ForStmt iterates over an array or vector, binding each element.
type ForStmt struct {
	Span position.Span
	Name string
	Iter Expression
	Body *Block
}

func (s *ForStmt) GetSpan() position.Span { return s.Span }
func (s *ForStmt) String() string         { return "for " + s.Name }
func (s *ForStmt) stmtNode()              {}

// ArenaStmt introduces a scope-bound arena. Name binds the arena handle
// inside Body; the arena and all its non-promoted allocations die when
// Body exits.
type ArenaStmt struct {
	Span position.Span
	Name string
	Body *Block
}

func (s *ArenaStmt) GetSpan() position.Span { return s.Span }
func (s *ArenaStmt) String() string         { return "arena " + s.Name }
func (s *ArenaStmt) stmtNode()              {}

// Pattern is a match-arm pattern.
type Pattern interface {
	Node
	patternNode()
}

// VariantPattern matches one enum variant, binding its payload.
type VariantPattern struct {
	Span    position.Span
	Enum    string // optional qualifier, "" when inferred from subject
	Variant string
	Binds   []string
}

func (p *VariantPattern) GetSpan() position.Span { return p.Span }
func (p *VariantPattern) String() string {
	if p.Enum != "" {
		return p.Enum + "::" + p.Variant
	}

	return p.Variant
}
func (p *VariantPattern) patternNode() {}

// WildcardPattern matches anything.
type WildcardPattern struct {
	Span position.Span
}

func (p *WildcardPattern) GetSpan() position.Span { return p.Span }
func (p *WildcardPattern) String() string         { return "_" }
func (p *WildcardPattern) patternNode()           {}

// MatchArm is one pattern with its body.
type MatchArm struct {
	Span    position.Span
	Pattern Pattern
	Body    *Block
}

func (a *MatchArm) GetSpan() position.Span { return a.Span }
func (a *MatchArm) String() string         { return a.Pattern.String() + " =>" }

// MatchStmt matches a subject against ordered arms.
type MatchStmt struct {
	Span    position.Span
	Subject Expression
	Arms    []*MatchArm
}

func (s *MatchStmt) GetSpan() position.Span { return s.Span }
func (s *MatchStmt) String() string         { return "match" }
func (s *MatchStmt) stmtNode()              {}

// ====== Expressions ======

// IntLit is an integer literal.
type IntLit struct {
	Span  position.Span
	Value int64
}

func (e *IntLit) GetSpan() position.Span { return e.Span }
func (e *IntLit) String() string         { return fmt.Sprintf("%d", e.Value) }
func (e *IntLit) exprNode()              {}

// FloatLit is a floating-point literal.
type FloatLit struct {
	Span  position.Span
	Value float64
}

func (e *FloatLit) GetSpan() position.Span { return e.Span }
func (e *FloatLit) String() string         { return fmt.Sprintf("%g", e.Value) }
func (e *FloatLit) exprNode()              {}

// BoolLit is true or false.
type BoolLit struct {
	Span  position.Span
	Value bool
}

func (e *BoolLit) GetSpan() position.Span { return e.Span }
func (e *BoolLit) String() string         { return fmt.Sprintf("%t", e.Value) }
func (e *BoolLit) exprNode()              {}

// StringLit is a string literal.
type StringLit struct {
	Span  position.Span
	Value string
}

func (e *StringLit) GetSpan() position.Span { return e.Span }
func (e *StringLit) String() string         { return fmt.Sprintf("%q", e.Value) }
func (e *StringLit) exprNode()              {}

// Ident references a binding by name.
type Ident struct {
	Span position.Span
	Name string
}

func (e *Ident) GetSpan() position.Span { return e.Span }
func (e *Ident) String() string         { return e.Name }
func (e *Ident) exprNode()              {}

// PathExpr is a qualified name such as Thing::new or Option::Some.
type PathExpr struct {
	Span   position.Span
	Type   string
	Member string
}

func (e *PathExpr) GetSpan() position.Span { return e.Span }
func (e *PathExpr) String() string         { return e.Type + "::" + e.Member }
func (e *PathExpr) exprNode()              {}

// CallExpr applies a callee to positional arguments. Callee is an
// *Ident for plain function calls or a *PathExpr for variant
// construction and associated functions.
type CallExpr struct {
	Span   position.Span
	Callee Expression
	Args   []Expression
}

func (e *CallExpr) GetSpan() position.Span { return e.Span }
func (e *CallExpr) String() string         { return e.Callee.String() + "(...)" }
func (e *CallExpr) exprNode()              {}

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpAnd
	OpOr
)

// String returns the operator's surface spelling.
func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpEq:
		return "=="
	case OpNe:
		return "!="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	default:
		return "?"
	}
}

// BinaryExpr applies a binary operator.
type BinaryExpr struct {
	Span  position.Span
	Op    BinaryOp
	Left  Expression
	Right Expression
}

func (e *BinaryExpr) GetSpan() position.Span { return e.Span }
func (e *BinaryExpr) String() string {
	return e.Left.String() + " " + e.Op.String() + " " + e.Right.String()
}
func (e *BinaryExpr) exprNode() {}

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpNot
)

// UnaryExpr applies a unary operator.
type UnaryExpr struct {
	Span position.Span
	Op   UnaryOp
	X    Expression
}

func (e *UnaryExpr) GetSpan() position.Span { return e.Span }
func (e *UnaryExpr) String() string {
	if e.Op == OpNeg {
		return "-" + e.X.String()
	}

	return "!" + e.X.String()
}
func (e *UnaryExpr) exprNode() {}

// RefExpr takes a shared or mutable reference to a place.
type RefExpr struct {
	Span    position.Span
	Mutable bool
	Target  Expression
}

func (e *RefExpr) GetSpan() position.Span { return e.Span }
func (e *RefExpr) String() string {
	if e.Mutable {
		return "&mut " + e.Target.String()
	}

	return "&" + e.Target.String()
}
func (e *RefExpr) exprNode() {}

// DerefExpr dereferences a reference.
type DerefExpr struct {
	Span position.Span
	X    Expression
}

func (e *DerefExpr) GetSpan() position.Span { return e.Span }
func (e *DerefExpr) String() string         { return "*" + e.X.String() }
func (e *DerefExpr) exprNode()              {}

// FieldExpr projects a struct field or tuple element (Name is the
// decimal index for tuples).
type FieldExpr struct {
	Span position.Span
	X    Expression
	Name string
}

func (e *FieldExpr) GetSpan() position.Span { return e.Span }
func (e *FieldExpr) String() string         { return e.X.String() + "." + e.Name }
func (e *FieldExpr) exprNode()              {}

// IndexExpr indexes an array, vector, or matrix.
type IndexExpr struct {
	Span  position.Span
	X     Expression
	Index Expression
}

func (e *IndexExpr) GetSpan() position.Span { return e.Span }
func (e *IndexExpr) String() string         { return e.X.String() + "[...]" }
func (e *IndexExpr) exprNode()              {}

// VectorLit is the bracketed element list used for vector and array
// literals; its shape is checked against the expected type.
type VectorLit struct {
	Span  position.Span
	Elems []Expression
}

func (e *VectorLit) GetSpan() position.Span { return e.Span }
func (e *VectorLit) String() string         { return fmt.Sprintf("[%d elems]", len(e.Elems)) }
func (e *VectorLit) exprNode()              {}

// MatrixLit is a row-major nested element list.
type MatrixLit struct {
	Span position.Span
	Rows [][]Expression
}

func (e *MatrixLit) GetSpan() position.Span { return e.Span }
func (e *MatrixLit) String() string         { return fmt.Sprintf("[%d rows]", len(e.Rows)) }
func (e *MatrixLit) exprNode()              {}

// FieldInit initializes one field of a struct literal.
type FieldInit struct {
	Span  position.Span
	Name  string
	Value Expression
}

func (f *FieldInit) GetSpan() position.Span { return f.Span }
func (f *FieldInit) String() string         { return f.Name + ": " + f.Value.String() }

// StructLit constructs a struct value by field name.
type StructLit struct {
	Span   position.Span
	Name   string
	Args   []TypeExpr // explicit generic arguments, may be empty
	Fields []*FieldInit
}

func (e *StructLit) GetSpan() position.Span { return e.Span }
func (e *StructLit) String() string         { return e.Name + "{...}" }
func (e *StructLit) exprNode()              {}

// TupleLit constructs a tuple value.
type TupleLit struct {
	Span  position.Span
	Elems []Expression
}

func (e *TupleLit) GetSpan() position.Span { return e.Span }
func (e *TupleLit) String() string         { return fmt.Sprintf("(%d elems)", len(e.Elems)) }
func (e *TupleLit) exprNode()              {}

// AllocExpr allocates Value in the arena named by Arena. The result is
// tagged with the arena's identity for escape analysis.
type AllocExpr struct {
	Span  position.Span
	Arena *Ident
	Value Expression
}

func (e *AllocExpr) GetSpan() position.Span { return e.Span }
func (e *AllocExpr) String() string         { return e.Arena.Name + ".alloc(...)" }
func (e *AllocExpr) exprNode()              {}

// PromoteExpr deep-copies an arena value into the destination's
// storage, clearing its arena taint.
type PromoteExpr struct {
	Span  position.Span
	Value Expression
}

func (e *PromoteExpr) GetSpan() position.Span { return e.Span }
func (e *PromoteExpr) String() string         { return "promote(" + e.Value.String() + ")" }
func (e *PromoteExpr) exprNode()              {}

// TryExpr is the `?` propagation operator on Result/Option values.
type TryExpr struct {
	Span position.Span
	X    Expression
}

func (e *TryExpr) GetSpan() position.Span { return e.Span }
func (e *TryExpr) String() string         { return e.X.String() + "?" }
func (e *TryExpr) exprNode()              {}

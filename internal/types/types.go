// Package types implements the semantic type representation for the
// Tessera analysis core. Types live in an index-based arena owned by an
// Interner; a TypeID names one canonical node, so structural equality is
// identity on IDs and mutually recursive nominal types never require
// unbounded value types.
package types

import (
	"fmt"
	"strings"
	"sync"
)

// TypeID indexes a canonical type node inside an Interner.
type TypeID int32

// NoType marks an absent type.
const NoType TypeID = 0

// Kind discriminates the type representation.
type Kind int

const (
	KindPrimitive Kind = iota
	KindStruct
	KindEnum
	KindTuple
	KindArray
	KindVector
	KindMatrix
	KindFunction
	KindReference
	KindGenericParam
	KindPoison
)

// String returns the kind name used in diagnostics.
func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindTuple:
		return "tuple"
	case KindArray:
		return "array"
	case KindVector:
		return "vector"
	case KindMatrix:
		return "matrix"
	case KindFunction:
		return "function"
	case KindReference:
		return "reference"
	case KindGenericParam:
		return "generic"
	case KindPoison:
		return "poison"
	default:
		return "unknown"
	}
}

// Primitive enumerates the fixed-width primitive kinds.
type Primitive int

const (
	PrimBool Primitive = iota
	PrimI8
	PrimI16
	PrimI32
	PrimI64
	PrimU8
	PrimU16
	PrimU32
	PrimU64
	PrimF32
	PrimF64
	PrimString
	PrimUnit
)

// String returns the surface spelling of the primitive.
func (p Primitive) String() string {
	switch p {
	case PrimBool:
		return "bool"
	case PrimI8:
		return "i8"
	case PrimI16:
		return "i16"
	case PrimI32:
		return "i32"
	case PrimI64:
		return "i64"
	case PrimU8:
		return "u8"
	case PrimU16:
		return "u16"
	case PrimU32:
		return "u32"
	case PrimU64:
		return "u64"
	case PrimF32:
		return "f32"
	case PrimF64:
		return "f64"
	case PrimString:
		return "string"
	case PrimUnit:
		return "unit"
	default:
		return "unknown"
	}
}

// Dim is a compile-time dimension term: a literal length or a symbolic
// dimension parameter. Equality is exact; there is no coercion between
// a literal and a parameter, or between distinct parameters.
type Dim struct {
	Lit   int64
	Param string
}

// IsParam reports whether the term is symbolic.
func (d Dim) IsParam() bool { return d.Param != "" }

// Equal reports exact dimension equality.
func (d Dim) Equal(other Dim) bool {
	if d.IsParam() || other.IsParam() {
		return d.Param == other.Param
	}

	return d.Lit == other.Lit
}

// String renders the term as it appears in shapes.
func (d Dim) String() string {
	if d.IsParam() {
		return d.Param
	}

	return fmt.Sprintf("%d", d.Lit)
}

// Literal returns a literal dimension term.
func Literal(n int64) Dim { return Dim{Lit: n} }

// Symbolic returns a dimension parameter term.
func Symbolic(name string) Dim { return Dim{Param: name} }

// Field is one struct field after resolution.
type Field struct {
	Name string
	Type TypeID
}

// VariantInfo is one enum variant after resolution.
type VariantInfo struct {
	Name    string
	Payload []TypeID
}

// TypeParamInfo describes one generic parameter of a nominal declaration.
type TypeParamInfo struct {
	Name  string
	IsDim bool
}

// typeNode is the arena representation of a canonical type.
type typeNode struct {
	kind    Kind
	prim    Primitive
	name    string   // struct/enum/generic parameter name
	elem    TypeID   // array/vector/matrix/reference element; function result
	params  []TypeID // function parameters, tuple elements, nominal type arguments
	dims    [2]Dim   // [len] or [rows, cols]
	mutable bool     // reference mutability
}

// structDecl holds the declaration-side data for a nominal struct.
type structDecl struct {
	params []TypeParamInfo
	fields []Field // field types refer to generic parameter types
}

// enumDecl holds the declaration-side data for a nominal enum.
type enumDecl struct {
	params   []TypeParamInfo
	variants []VariantInfo
}

// Interner owns the type arena for one analysis session. Interning is
// safe for concurrent use; per-function body checks run in parallel and
// share one Interner.
type Interner struct {
	mu      sync.Mutex
	nodes   []typeNode
	index   map[string]TypeID
	structs map[string]*structDecl
	enums   map[string]*enumDecl

	// Pre-interned well-known types.
	Poison TypeID
	Bool   TypeID
	I32    TypeID
	I64    TypeID
	F32    TypeID
	F64    TypeID
	Str    TypeID
	Unit   TypeID
}

// NewInterner creates an interner with primitives, the poison type, and
// the builtin Option/Result enum families registered.
func NewInterner() *Interner {
	in := &Interner{
		nodes:   make([]typeNode, 1), // index 0 is NoType
		index:   make(map[string]TypeID),
		structs: make(map[string]*structDecl),
		enums:   make(map[string]*enumDecl),
	}

	in.Poison = in.intern(typeNode{kind: KindPoison}, "!poison")
	in.Bool = in.Primitive(PrimBool)
	in.I32 = in.Primitive(PrimI32)
	in.I64 = in.Primitive(PrimI64)
	in.F32 = in.Primitive(PrimF32)
	in.F64 = in.Primitive(PrimF64)
	in.Str = in.Primitive(PrimString)
	in.Unit = in.Primitive(PrimUnit)

	// Builtin families recognized by `?` propagation.
	tParam := in.GenericParam("T")
	eParam := in.GenericParam("E")

	in.DeclareEnum("Option", []TypeParamInfo{{Name: "T"}})
	in.SetEnumVariants("Option", []VariantInfo{
		{Name: "Some", Payload: []TypeID{tParam}},
		{Name: "None"},
	})

	in.DeclareEnum("Result", []TypeParamInfo{{Name: "T"}, {Name: "E"}})
	in.SetEnumVariants("Result", []VariantInfo{
		{Name: "Ok", Payload: []TypeID{tParam}},
		{Name: "Err", Payload: []TypeID{eParam}},
	})

	return in
}

// intern returns the canonical ID for a node, creating it when absent.
func (in *Interner) intern(n typeNode, key string) TypeID {
	in.mu.Lock()
	defer in.mu.Unlock()

	if id, ok := in.index[key]; ok {
		return id
	}

	id := TypeID(len(in.nodes))
	in.nodes = append(in.nodes, n)
	in.index[key] = id

	return id
}

func (in *Interner) node(t TypeID) typeNode {
	in.mu.Lock()
	defer in.mu.Unlock()

	if t <= 0 || int(t) >= len(in.nodes) {
		return typeNode{kind: KindPoison}
	}

	return in.nodes[t]
}

func idsKey(ids []TypeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}

	return strings.Join(parts, ",")
}

// Primitive interns a primitive type.
func (in *Interner) Primitive(p Primitive) TypeID {
	return in.intern(typeNode{kind: KindPrimitive, prim: p}, "p:"+p.String())
}

// Vector interns vec<elem, n>.
func (in *Interner) Vector(elem TypeID, n Dim) TypeID {
	return in.intern(
		typeNode{kind: KindVector, elem: elem, dims: [2]Dim{n}},
		fmt.Sprintf("v:%d:%s", elem, n.String()),
	)
}

// Matrix interns mat<elem, rows, cols>.
func (in *Interner) Matrix(elem TypeID, rows, cols Dim) TypeID {
	return in.intern(
		typeNode{kind: KindMatrix, elem: elem, dims: [2]Dim{rows, cols}},
		fmt.Sprintf("m:%d:%s:%s", elem, rows.String(), cols.String()),
	)
}

// Array interns [elem; n].
func (in *Interner) Array(elem TypeID, n Dim) TypeID {
	return in.intern(
		typeNode{kind: KindArray, elem: elem, dims: [2]Dim{n}},
		fmt.Sprintf("a:%d:%s", elem, n.String()),
	)
}

// Tuple interns an ordered tuple type.
func (in *Interner) Tuple(elems []TypeID) TypeID {
	return in.intern(
		typeNode{kind: KindTuple, params: append([]TypeID(nil), elems...)},
		"t:"+idsKey(elems),
	)
}

// Reference interns &T or &mut T.
func (in *Interner) Reference(elem TypeID, mutable bool) TypeID {
	return in.intern(
		typeNode{kind: KindReference, elem: elem, mutable: mutable},
		fmt.Sprintf("r:%d:%t", elem, mutable),
	)
}

// Function interns a function type.
func (in *Interner) Function(params []TypeID, result TypeID) TypeID {
	return in.intern(
		typeNode{kind: KindFunction, params: append([]TypeID(nil), params...), elem: result},
		fmt.Sprintf("f:%s->%d", idsKey(params), result),
	)
}

// GenericParam interns a generic type parameter by name.
func (in *Interner) GenericParam(name string) TypeID {
	return in.intern(typeNode{kind: KindGenericParam, name: name}, "g:"+name)
}

// DeclareStruct registers a nominal struct declaration. Fields are
// attached separately so mutually recursive definitions resolve.
func (in *Interner) DeclareStruct(name string, params []TypeParamInfo) {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.structs[name] = &structDecl{params: params}
}

// SetStructFields attaches resolved fields to a declared struct. Field
// types reference generic parameter types for generic declarations.
func (in *Interner) SetStructFields(name string, fields []Field) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if d, ok := in.structs[name]; ok {
		d.fields = fields
	}
}

// DeclareEnum registers a nominal enum declaration.
func (in *Interner) DeclareEnum(name string, params []TypeParamInfo) {
	in.mu.Lock()
	defer in.mu.Unlock()

	in.enums[name] = &enumDecl{params: params}
}

// SetEnumVariants attaches resolved variants to a declared enum.
func (in *Interner) SetEnumVariants(name string, variants []VariantInfo) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if d, ok := in.enums[name]; ok {
		d.variants = variants
	}
}

// IsStructDeclared reports whether name is a known struct.
func (in *Interner) IsStructDeclared(name string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	_, ok := in.structs[name]

	return ok
}

// IsEnumDeclared reports whether name is a known enum.
func (in *Interner) IsEnumDeclared(name string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()

	_, ok := in.enums[name]

	return ok
}

// StructParams returns the declared generic parameters of a struct.
func (in *Interner) StructParams(name string) []TypeParamInfo {
	in.mu.Lock()
	defer in.mu.Unlock()

	if d, ok := in.structs[name]; ok {
		return d.params
	}

	return nil
}

// EnumParams returns the declared generic parameters of an enum.
func (in *Interner) EnumParams(name string) []TypeParamInfo {
	in.mu.Lock()
	defer in.mu.Unlock()

	if d, ok := in.enums[name]; ok {
		return d.params
	}

	return nil
}

// Struct interns a (possibly instantiated) nominal struct type.
func (in *Interner) Struct(name string, args []TypeID) TypeID {
	return in.intern(
		typeNode{kind: KindStruct, name: name, params: append([]TypeID(nil), args...)},
		"s:"+name+":"+idsKey(args),
	)
}

// Enum interns a (possibly instantiated) nominal enum type.
func (in *Interner) Enum(name string, args []TypeID) TypeID {
	return in.intern(
		typeNode{kind: KindEnum, name: name, params: append([]TypeID(nil), args...)},
		"e:"+name+":"+idsKey(args),
	)
}

// Option returns Option<t>.
func (in *Interner) Option(t TypeID) TypeID { return in.Enum("Option", []TypeID{t}) }

// Result returns Result<t, e>.
func (in *Interner) Result(t, e TypeID) TypeID { return in.Enum("Result", []TypeID{t, e}) }

// ====== Accessors ======

// Kind returns the kind of t.
func (in *Interner) Kind(t TypeID) Kind { return in.node(t).kind }

// Prim returns the primitive kind of a primitive type.
func (in *Interner) Prim(t TypeID) Primitive { return in.node(t).prim }

// Name returns the name of a struct, enum, or generic parameter.
func (in *Interner) Name(t TypeID) string { return in.node(t).name }

// Elem returns the element of an array/vector/matrix/reference, or the
// result of a function type.
func (in *Interner) Elem(t TypeID) TypeID { return in.node(t).elem }

// Len returns the length dimension of an array or vector.
func (in *Interner) Len(t TypeID) Dim { return in.node(t).dims[0] }

// RowsCols returns the row and column dimensions of a matrix.
func (in *Interner) RowsCols(t TypeID) (Dim, Dim) {
	n := in.node(t)

	return n.dims[0], n.dims[1]
}

// Params returns the ordered component types: function parameters,
// tuple elements, or nominal type arguments.
func (in *Interner) Params(t TypeID) []TypeID { return in.node(t).params }

// RefMutable reports whether a reference type is mutable.
func (in *Interner) RefMutable(t TypeID) bool { return in.node(t).mutable }

// IsPoison reports whether t is the poison type used for error recovery.
func (in *Interner) IsPoison(t TypeID) bool { return in.node(t).kind == KindPoison }

// IsNumeric reports whether t is an integer or float primitive.
func (in *Interner) IsNumeric(t TypeID) bool {
	n := in.node(t)
	if n.kind != KindPrimitive {
		return false
	}

	return n.prim >= PrimI8 && n.prim <= PrimF64
}

// IsInteger reports whether t is a fixed-width integer primitive.
func (in *Interner) IsInteger(t TypeID) bool {
	n := in.node(t)
	if n.kind != KindPrimitive {
		return false
	}

	return n.prim >= PrimI8 && n.prim <= PrimU64
}

// IsFloat reports whether t is a float primitive.
func (in *Interner) IsFloat(t TypeID) bool {
	n := in.node(t)
	if n.kind != KindPrimitive {
		return false
	}

	return n.prim == PrimF32 || n.prim == PrimF64
}

// IsCopy reports whether values of t copy implicitly instead of moving.
// Primitives and references are copy; everything else moves.
func (in *Interner) IsCopy(t TypeID) bool {
	switch in.node(t).kind {
	case KindPrimitive, KindReference, KindPoison, KindGenericParam:
		return true
	default:
		return false
	}
}

// StructFields returns the fields of a struct type with its generic
// arguments substituted into field types.
func (in *Interner) StructFields(t TypeID) []Field {
	n := in.node(t)
	if n.kind != KindStruct {
		return nil
	}

	in.mu.Lock()
	decl, ok := in.structs[n.name]
	in.mu.Unlock()

	if !ok || decl.fields == nil {
		return nil
	}

	bind := bindArgs(decl.params, n.params)
	out := make([]Field, len(decl.fields))

	for i, f := range decl.fields {
		out[i] = Field{Name: f.Name, Type: in.Substitute(f.Type, bind, nil)}
	}

	return out
}

// EnumVariants returns the variants of an enum type with its generic
// arguments substituted into payload types.
func (in *Interner) EnumVariants(t TypeID) []VariantInfo {
	n := in.node(t)
	if n.kind != KindEnum {
		return nil
	}

	in.mu.Lock()
	decl, ok := in.enums[n.name]
	in.mu.Unlock()

	if !ok || decl.variants == nil {
		return nil
	}

	bind := bindArgs(decl.params, n.params)
	out := make([]VariantInfo, len(decl.variants))

	for i, v := range decl.variants {
		payload := make([]TypeID, len(v.Payload))
		for j, p := range v.Payload {
			payload[j] = in.Substitute(p, bind, nil)
		}

		out[i] = VariantInfo{Name: v.Name, Payload: payload}
	}

	return out
}

func bindArgs(params []TypeParamInfo, args []TypeID) map[string]TypeID {
	bind := make(map[string]TypeID, len(params))

	for i, p := range params {
		if i < len(args) {
			bind[p.Name] = args[i]
		}
	}

	return bind
}

// Substitute rewrites generic type parameters and symbolic dimensions
// in t, interning the result. Unbound parameters pass through unchanged.
func (in *Interner) Substitute(t TypeID, typeBind map[string]TypeID, dimBind map[string]Dim) TypeID {
	n := in.node(t)

	subDim := func(d Dim) Dim {
		if d.IsParam() && dimBind != nil {
			if repl, ok := dimBind[d.Param]; ok {
				return repl
			}
		}

		return d
	}

	switch n.kind {
	case KindGenericParam:
		if typeBind != nil {
			if repl, ok := typeBind[n.name]; ok {
				return repl
			}
		}

		return t

	case KindVector:
		return in.Vector(in.Substitute(n.elem, typeBind, dimBind), subDim(n.dims[0]))

	case KindMatrix:
		return in.Matrix(in.Substitute(n.elem, typeBind, dimBind), subDim(n.dims[0]), subDim(n.dims[1]))

	case KindArray:
		return in.Array(in.Substitute(n.elem, typeBind, dimBind), subDim(n.dims[0]))

	case KindReference:
		return in.Reference(in.Substitute(n.elem, typeBind, dimBind), n.mutable)

	case KindTuple:
		elems := make([]TypeID, len(n.params))
		for i, e := range n.params {
			elems[i] = in.Substitute(e, typeBind, dimBind)
		}

		return in.Tuple(elems)

	case KindFunction:
		params := make([]TypeID, len(n.params))
		for i, p := range n.params {
			params[i] = in.Substitute(p, typeBind, dimBind)
		}

		return in.Function(params, in.Substitute(n.elem, typeBind, dimBind))

	case KindStruct:
		args := make([]TypeID, len(n.params))
		for i, a := range n.params {
			args[i] = in.Substitute(a, typeBind, dimBind)
		}

		return in.Struct(n.name, args)

	case KindEnum:
		args := make([]TypeID, len(n.params))
		for i, a := range n.params {
			args[i] = in.Substitute(a, typeBind, dimBind)
		}

		return in.Enum(n.name, args)

	default:
		return t
	}
}

// String renders t the way the surface syntax spells it.
func (in *Interner) String(t TypeID) string {
	n := in.node(t)

	switch n.kind {
	case KindPrimitive:
		return n.prim.String()

	case KindPoison:
		return "<error>"

	case KindGenericParam:
		return n.name

	case KindVector:
		return fmt.Sprintf("vec%s<%s>", n.dims[0].String(), in.String(n.elem))

	case KindMatrix:
		return fmt.Sprintf("mat%sx%s<%s>", n.dims[0].String(), n.dims[1].String(), in.String(n.elem))

	case KindArray:
		return fmt.Sprintf("[%s; %s]", in.String(n.elem), n.dims[0].String())

	case KindReference:
		if n.mutable {
			return "&mut " + in.String(n.elem)
		}

		return "&" + in.String(n.elem)

	case KindTuple:
		parts := make([]string, len(n.params))
		for i, e := range n.params {
			parts[i] = in.String(e)
		}

		return "(" + strings.Join(parts, ", ") + ")"

	case KindFunction:
		parts := make([]string, len(n.params))
		for i, p := range n.params {
			parts[i] = in.String(p)
		}

		return "fn(" + strings.Join(parts, ", ") + ") -> " + in.String(n.elem)

	case KindStruct, KindEnum:
		if len(n.params) == 0 {
			return n.name
		}

		parts := make([]string, len(n.params))
		for i, a := range n.params {
			parts[i] = in.String(a)
		}

		return n.name + "<" + strings.Join(parts, ", ") + ">"

	default:
		return "<unknown>"
	}
}

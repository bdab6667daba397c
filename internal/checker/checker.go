// Package checker implements type inference and checking for Tessera
// function bodies, including the restricted numeric-dimension generics
// used by fixed-shape vector and matrix types. Checking is two-phase:
// top-level signature collection runs sequentially over the whole
// module, then per-function body checks run independently (and safely
// in parallel) against the finalized, read-only signature table.
package checker

import (
	"github.com/tessera-lang/tessera/internal/ast"
	"github.com/tessera-lang/tessera/internal/diagnostics"
	"github.com/tessera-lang/tessera/internal/imports"
	"github.com/tessera-lang/tessera/internal/resolver"
	"github.com/tessera-lang/tessera/internal/types"
)

// FuncSig is a collected function signature.
type FuncSig struct {
	Name       string
	Params     []types.TypeID
	Result     types.TypeID
	TypeParams []*ast.TypeParam
	Decl       *ast.FunctionDecl // nil for imported functions
}

// Info carries the checker's per-function output: a type for every
// expression and every binding. Poisoned entries mark recovered errors.
type Info struct {
	Types    map[ast.Expression]types.TypeID
	Bindings map[*resolver.Binding]types.TypeID
}

// NewInfo creates an empty Info.
func NewInfo() *Info {
	return &Info{
		Types:    make(map[ast.Expression]types.TypeID),
		Bindings: make(map[*resolver.Binding]types.TypeID),
	}
}

// TypeOf returns the recorded type of an expression, or poison-safe NoType.
func (i *Info) TypeOf(e ast.Expression) types.TypeID {
	return i.Types[e]
}

// Merge folds other's tables into i. Key sets are disjoint across
// functions, so merging after parallel body checks is safe.
func (i *Info) Merge(other *Info) {
	for k, v := range other.Types {
		i.Types[k] = v
	}

	for k, v := range other.Bindings {
		i.Bindings[k] = v
	}
}

// Checker holds the cross-function state: the resolved scope tree, the
// type interner, collected signatures, and the shared reporter.
type Checker struct {
	res      *resolver.Result
	interner *types.Interner
	reporter *diagnostics.Reporter

	sigs     map[string]*FuncSig
	sigOrder []*FuncSig
}

// New creates a checker over a resolved module.
func New(res *resolver.Result, interner *types.Interner, reporter *diagnostics.Reporter) *Checker {
	return &Checker{
		res:      res,
		interner: interner,
		reporter: reporter,
		sigs:     make(map[string]*FuncSig),
	}
}

// Interner exposes the shared type interner.
func (c *Checker) Interner() *types.Interner { return c.interner }

// Sig returns the collected signature for a function name.
func (c *Checker) Sig(name string) (*FuncSig, bool) {
	s, ok := c.sigs[name]

	return s, ok
}

// Sigs returns all collected signatures in declaration order.
func (c *Checker) Sigs() []*FuncSig { return c.sigOrder }

// CollectSignatures registers every top-level type declaration and
// function signature, plus the exported signatures of imported modules.
// It must complete before any body is checked: calls may reference
// declarations appearing later in source order.
func (c *Checker) CollectSignatures(mod *ast.Module, imported []*imports.ModuleSignature) {
	// Nominal type declarations first, in two passes so mutually
	// recursive structs and enums resolve.
	for _, decl := range mod.Decls {
		switch d := decl.(type) {
		case *ast.StructDecl:
			c.interner.DeclareStruct(d.Name, paramInfos(d.TypeParams))
		case *ast.EnumDecl:
			c.interner.DeclareEnum(d.Name, paramInfos(d.TypeParams))
		}
	}

	for _, decl := range mod.Decls {
		switch d := decl.(type) {
		case *ast.StructDecl:
			env := newTypeEnv(d.TypeParams)
			fields := make([]types.Field, 0, len(d.Fields))

			for _, f := range d.Fields {
				fields = append(fields, types.Field{
					Name: f.Name,
					Type: c.ResolveTypeExpr(f.Type, env),
				})
			}

			c.interner.SetStructFields(d.Name, fields)

		case *ast.EnumDecl:
			env := newTypeEnv(d.TypeParams)
			variants := make([]types.VariantInfo, 0, len(d.Variants))

			for _, v := range d.Variants {
				payload := make([]types.TypeID, 0, len(v.Payload))
				for _, p := range v.Payload {
					payload = append(payload, c.ResolveTypeExpr(p, env))
				}

				variants = append(variants, types.VariantInfo{Name: v.Name, Payload: payload})
			}

			c.interner.SetEnumVariants(d.Name, variants)
		}
	}

	for _, m := range imported {
		for _, fn := range m.Functions {
			sig := &FuncSig{Name: fn.Name, Result: c.interner.Unit}

			env := newTypeEnv(nil)
			for _, p := range fn.Params {
				sig.Params = append(sig.Params, c.ResolveTypeExpr(p, env))
			}

			if fn.Return != nil {
				sig.Result = c.ResolveTypeExpr(fn.Return, env)
			}

			c.addSig(sig)
		}
	}

	for _, decl := range mod.Decls {
		fn, ok := decl.(*ast.FunctionDecl)
		if !ok {
			continue
		}

		env := newTypeEnv(fn.TypeParams)
		sig := &FuncSig{Name: fn.Name, Result: c.interner.Unit, TypeParams: fn.TypeParams, Decl: fn}

		for _, p := range fn.Params {
			sig.Params = append(sig.Params, c.ResolveTypeExpr(p.Type, env))
		}

		if fn.ReturnType != nil {
			sig.Result = c.ResolveTypeExpr(fn.ReturnType, env)
		}

		c.addSig(sig)
	}
}

func (c *Checker) addSig(sig *FuncSig) {
	c.sigs[sig.Name] = sig
	c.sigOrder = append(c.sigOrder, sig)
}

func paramInfos(tps []*ast.TypeParam) []types.TypeParamInfo {
	out := make([]types.TypeParamInfo, len(tps))
	for i, tp := range tps {
		out[i] = types.TypeParamInfo{Name: tp.Name, IsDim: tp.Kind == ast.TypeParamDim}
	}

	return out
}

// typeEnv tracks the generic parameters in scope while resolving a
// type expression.
type typeEnv struct {
	typeParams map[string]bool
	dimParams  map[string]bool
}

func newTypeEnv(tps []*ast.TypeParam) *typeEnv {
	env := &typeEnv{
		typeParams: make(map[string]bool),
		dimParams:  make(map[string]bool),
	}

	for _, tp := range tps {
		if tp.Kind == ast.TypeParamDim {
			env.dimParams[tp.Name] = true
		} else {
			env.typeParams[tp.Name] = true
		}
	}

	return env
}

var primitivesByName = map[string]types.Primitive{
	"bool":   types.PrimBool,
	"i8":     types.PrimI8,
	"i16":    types.PrimI16,
	"i32":    types.PrimI32,
	"i64":    types.PrimI64,
	"u8":     types.PrimU8,
	"u16":    types.PrimU16,
	"u32":    types.PrimU32,
	"u64":    types.PrimU64,
	"f32":    types.PrimF32,
	"f64":    types.PrimF64,
	"string": types.PrimString,
	"unit":   types.PrimUnit,
}

// ResolveTypeExpr resolves a syntactic type annotation into an interned
// semantic type. Unknown names and malformed instantiations are
// reported and resolve to the poison type.
func (c *Checker) ResolveTypeExpr(te ast.TypeExpr, env *typeEnv) types.TypeID {
	in := c.interner

	switch t := te.(type) {
	case *ast.NamedType:
		if p, ok := primitivesByName[t.Name]; ok && len(t.Args) == 0 {
			return in.Primitive(p)
		}

		if env.typeParams[t.Name] && len(t.Args) == 0 {
			return in.GenericParam(t.Name)
		}

		if in.IsEnumDeclared(t.Name) {
			return c.resolveNominal(t, in.EnumParams(t.Name), env, true)
		}

		if in.IsStructDeclared(t.Name) {
			return c.resolveNominal(t, in.StructParams(t.Name), env, false)
		}

		c.reporter.Error(diagnostics.PhaseTypeCheck, diagnostics.UnresolvedName, t.GetSpan(),
			"unresolved type name '%s'", t.Name)

		return in.Poison

	case *ast.VectorType:
		return in.Vector(c.ResolveTypeExpr(t.Elem, env), c.resolveDim(t.Len, t, env))

	case *ast.MatrixType:
		return in.Matrix(
			c.ResolveTypeExpr(t.Elem, env),
			c.resolveDim(t.Rows, t, env),
			c.resolveDim(t.Cols, t, env),
		)

	case *ast.ArrayType:
		return in.Array(c.ResolveTypeExpr(t.Elem, env), c.resolveDim(t.Len, t, env))

	case *ast.TupleType:
		elems := make([]types.TypeID, len(t.Elems))
		for i, e := range t.Elems {
			elems[i] = c.ResolveTypeExpr(e, env)
		}

		return in.Tuple(elems)

	case *ast.ReferenceType:
		return in.Reference(c.ResolveTypeExpr(t.Elem, env), t.Mutable)

	default:
		return in.Poison
	}
}

func (c *Checker) resolveNominal(t *ast.NamedType, params []types.TypeParamInfo, env *typeEnv, isEnum bool) types.TypeID {
	in := c.interner

	if len(t.Args) != len(params) {
		c.reporter.Error(diagnostics.PhaseTypeCheck, diagnostics.ArityMismatch, t.GetSpan(),
			"'%s' expects %d type argument(s), got %d", t.Name, len(params), len(t.Args))

		return in.Poison
	}

	args := make([]types.TypeID, len(t.Args))
	for i, a := range t.Args {
		args[i] = c.ResolveTypeExpr(a, env)
	}

	if isEnum {
		return in.Enum(t.Name, args)
	}

	return in.Struct(t.Name, args)
}

func (c *Checker) resolveDim(d ast.DimExpr, at ast.Node, env *typeEnv) types.Dim {
	if !d.IsParam() {
		return types.Literal(d.Lit)
	}

	if !env.dimParams[d.Param] {
		c.reporter.Error(diagnostics.PhaseTypeCheck, diagnostics.UnresolvedName, at.GetSpan(),
			"unresolved dimension parameter '%s'", d.Param)
	}

	return types.Symbolic(d.Param)
}

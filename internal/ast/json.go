// JSON decoding of parser dumps. The external parser serializes a module
// as kind-tagged JSON objects; this decoder rebuilds the node tree so the
// analysis core can run without linking the parser itself.

package ast

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/tessera-lang/tessera/internal/position"
)

type jsonPos struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
	Off  int    `json:"off"`
}

type jsonSpan struct {
	Start jsonPos `json:"start"`
	End   jsonPos `json:"end"`
}

func (js jsonSpan) span() position.Span {
	return position.Span{
		Start: position.Position{Filename: js.Start.File, Line: js.Start.Line, Column: js.Start.Col, Offset: js.Start.Off},
		End:   position.Position{Filename: js.End.File, Line: js.End.Line, Column: js.End.Col, Offset: js.End.Off},
	}
}

// node is the envelope every serialized AST node uses. Only the fields
// relevant to the tagged kind are populated.
type jsonNode struct {
	Kind    string            `json:"kind"`
	Span    jsonSpan          `json:"span"`
	Name    string            `json:"name,omitempty"`
	Member  string            `json:"member,omitempty"`
	Op      string            `json:"op,omitempty"`
	Int     int64             `json:"int,omitempty"`
	Float   float64           `json:"float,omitempty"`
	Bool    bool              `json:"bool,omitempty"`
	Str     string            `json:"str,omitempty"`
	Mutable bool              `json:"mutable,omitempty"`
	Public  bool              `json:"public,omitempty"`
	Dim     *jsonDim          `json:"dim,omitempty"`
	Rows    *jsonDim          `json:"rows,omitempty"`
	Cols    *jsonDim          `json:"cols,omitempty"`
	Binds   []string          `json:"binds,omitempty"`
	X       json.RawMessage   `json:"x,omitempty"`
	Y       json.RawMessage   `json:"y,omitempty"`
	Type    json.RawMessage   `json:"type,omitempty"`
	Body    json.RawMessage   `json:"body,omitempty"`
	Else    json.RawMessage   `json:"else,omitempty"`
	List    []json.RawMessage `json:"list,omitempty"`
	Extra   []json.RawMessage `json:"extra,omitempty"`
	Grid    [][]json.RawMessage `json:"grid,omitempty"`
}

type jsonDim struct {
	Lit   int64  `json:"lit,omitempty"`
	Param string `json:"param,omitempty"`
}

func (jd *jsonDim) dim() DimExpr {
	if jd == nil {
		return DimExpr{}
	}

	return DimExpr{Lit: jd.Lit, Param: jd.Param}
}

// DecodeModule reads a kind-tagged JSON parser dump into a Module.
func DecodeModule(r io.Reader) (*Module, error) {
	var raw struct {
		Name  string            `json:"name"`
		Span  jsonSpan          `json:"span"`
		Decls []json.RawMessage `json:"decls"`
	}

	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode module: %w", err)
	}

	mod := &Module{Name: raw.Name, Span: raw.Span.span()}

	for i, d := range raw.Decls {
		decl, err := decodeDecl(d)
		if err != nil {
			return nil, fmt.Errorf("decl %d: %w", i, err)
		}

		mod.Decls = append(mod.Decls, decl)
	}

	return mod, nil
}

func decodeNode(raw json.RawMessage) (*jsonNode, error) {
	var n jsonNode
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, err
	}

	if n.Kind == "" {
		return nil, fmt.Errorf("node missing kind tag")
	}

	return &n, nil
}

func decodeDecl(raw json.RawMessage) (Declaration, error) {
	n, err := decodeNode(raw)
	if err != nil {
		return nil, err
	}

	switch n.Kind {
	case "fn":
		fn := &FunctionDecl{Span: n.Span.span(), Name: n.Name, Public: n.Public}

		for _, p := range n.Extra {
			tp, err := decodeTypeParam(p)
			if err != nil {
				return nil, err
			}

			fn.TypeParams = append(fn.TypeParams, tp)
		}

		for _, p := range n.List {
			param, err := decodeParam(p)
			if err != nil {
				return nil, err
			}

			fn.Params = append(fn.Params, param)
		}

		if n.Type != nil {
			fn.ReturnType, err = decodeType(n.Type)
			if err != nil {
				return nil, err
			}
		}

		if n.Body != nil {
			fn.Body, err = decodeBlock(n.Body)
			if err != nil {
				return nil, err
			}
		}

		return fn, nil

	case "struct":
		sd := &StructDecl{Span: n.Span.span(), Name: n.Name, Public: n.Public}

		for _, p := range n.Extra {
			tp, err := decodeTypeParam(p)
			if err != nil {
				return nil, err
			}

			sd.TypeParams = append(sd.TypeParams, tp)
		}

		for _, f := range n.List {
			fn, err := decodeNode(f)
			if err != nil {
				return nil, err
			}

			ft, err := decodeType(fn.Type)
			if err != nil {
				return nil, err
			}

			sd.Fields = append(sd.Fields, &Field{Span: fn.Span.span(), Name: fn.Name, Type: ft})
		}

		return sd, nil

	case "enum":
		ed := &EnumDecl{Span: n.Span.span(), Name: n.Name, Public: n.Public}

		for _, p := range n.Extra {
			tp, err := decodeTypeParam(p)
			if err != nil {
				return nil, err
			}

			ed.TypeParams = append(ed.TypeParams, tp)
		}

		for _, v := range n.List {
			vn, err := decodeNode(v)
			if err != nil {
				return nil, err
			}

			variant := &Variant{Span: vn.Span.span(), Name: vn.Name}

			for _, p := range vn.List {
				pt, err := decodeType(p)
				if err != nil {
					return nil, err
				}

				variant.Payload = append(variant.Payload, pt)
			}

			ed.Variants = append(ed.Variants, variant)
		}

		return ed, nil

	default:
		return nil, fmt.Errorf("unknown declaration kind %q", n.Kind)
	}
}

func decodeTypeParam(raw json.RawMessage) (*TypeParam, error) {
	n, err := decodeNode(raw)
	if err != nil {
		return nil, err
	}

	tp := &TypeParam{Span: n.Span.span(), Name: n.Name}
	if n.Kind == "dimparam" {
		tp.Kind = TypeParamDim
	}

	return tp, nil
}

func decodeParam(raw json.RawMessage) (*Param, error) {
	n, err := decodeNode(raw)
	if err != nil {
		return nil, err
	}

	t, err := decodeType(n.Type)
	if err != nil {
		return nil, err
	}

	return &Param{Span: n.Span.span(), Name: n.Name, Type: t, Mutable: n.Mutable}, nil
}

func decodeType(raw json.RawMessage) (TypeExpr, error) {
	if raw == nil {
		return nil, fmt.Errorf("missing type node")
	}

	n, err := decodeNode(raw)
	if err != nil {
		return nil, err
	}

	switch n.Kind {
	case "named":
		t := &NamedType{Span: n.Span.span(), Name: n.Name}

		for _, a := range n.List {
			arg, err := decodeType(a)
			if err != nil {
				return nil, err
			}

			t.Args = append(t.Args, arg)
		}

		return t, nil

	case "vec":
		elem, err := decodeType(n.Type)
		if err != nil {
			return nil, err
		}

		return &VectorType{Span: n.Span.span(), Elem: elem, Len: n.Dim.dim()}, nil

	case "mat":
		elem, err := decodeType(n.Type)
		if err != nil {
			return nil, err
		}

		return &MatrixType{Span: n.Span.span(), Elem: elem, Rows: n.Rows.dim(), Cols: n.Cols.dim()}, nil

	case "array":
		elem, err := decodeType(n.Type)
		if err != nil {
			return nil, err
		}

		return &ArrayType{Span: n.Span.span(), Elem: elem, Len: n.Dim.dim()}, nil

	case "tuple":
		t := &TupleType{Span: n.Span.span()}

		for _, e := range n.List {
			elem, err := decodeType(e)
			if err != nil {
				return nil, err
			}

			t.Elems = append(t.Elems, elem)
		}

		return t, nil

	case "ref":
		elem, err := decodeType(n.Type)
		if err != nil {
			return nil, err
		}

		return &ReferenceType{Span: n.Span.span(), Elem: elem, Mutable: n.Mutable}, nil

	default:
		return nil, fmt.Errorf("unknown type kind %q", n.Kind)
	}
}

func decodeBlock(raw json.RawMessage) (*Block, error) {
	n, err := decodeNode(raw)
	if err != nil {
		return nil, err
	}

	if n.Kind != "block" {
		return nil, fmt.Errorf("expected block, got %q", n.Kind)
	}

	b := &Block{Span: n.Span.span()}

	for _, s := range n.List {
		stmt, err := decodeStmt(s)
		if err != nil {
			return nil, err
		}

		b.Stmts = append(b.Stmts, stmt)
	}

	return b, nil
}

func decodeStmt(raw json.RawMessage) (Statement, error) {
	n, err := decodeNode(raw)
	if err != nil {
		return nil, err
	}

	switch n.Kind {
	case "block":
		return decodeBlock(raw)

	case "let":
		s := &LetStmt{Span: n.Span.span(), Name: n.Name, Mutable: n.Mutable}

		if n.Type != nil {
			s.Type, err = decodeType(n.Type)
			if err != nil {
				return nil, err
			}
		}

		if n.X != nil {
			s.Init, err = decodeExpr(n.X)
			if err != nil {
				return nil, err
			}
		}

		return s, nil

	case "assign":
		target, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}

		value, err := decodeExpr(n.Y)
		if err != nil {
			return nil, err
		}

		return &AssignStmt{Span: n.Span.span(), Target: target, Value: value}, nil

	case "exprstmt":
		x, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}

		return &ExprStmt{Span: n.Span.span(), X: x}, nil

	case "return":
		s := &ReturnStmt{Span: n.Span.span()}

		if n.X != nil {
			s.Value, err = decodeExpr(n.X)
			if err != nil {
				return nil, err
			}
		}

		return s, nil

	case "if":
		cond, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}

		then, err := decodeBlock(n.Body)
		if err != nil {
			return nil, err
		}

		s := &IfStmt{Span: n.Span.span(), Cond: cond, Then: then}

		if n.Else != nil {
			els, err := decodeStmt(n.Else)
			if err != nil {
				return nil, err
			}

			s.Else = els
		}

		return s, nil

	case "while":
		cond, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}

		body, err := decodeBlock(n.Body)
		if err != nil {
			return nil, err
		}

		return &WhileStmt{Span: n.Span.span(), Cond: cond, Body: body}, nil

	case "for":
		iter, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}

		body, err := decodeBlock(n.Body)
		if err != nil {
			return nil, err
		}

		return &ForStmt{Span: n.Span.span(), Name: n.Name, Iter: iter, Body: body}, nil

	case "arena":
		body, err := decodeBlock(n.Body)
		if err != nil {
			return nil, err
		}

		return &ArenaStmt{Span: n.Span.span(), Name: n.Name, Body: body}, nil

	case "match":
		subject, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}

		s := &MatchStmt{Span: n.Span.span(), Subject: subject}

		for _, a := range n.List {
			arm, err := decodeArm(a)
			if err != nil {
				return nil, err
			}

			s.Arms = append(s.Arms, arm)
		}

		return s, nil

	default:
		return nil, fmt.Errorf("unknown statement kind %q", n.Kind)
	}
}

func decodeArm(raw json.RawMessage) (*MatchArm, error) {
	n, err := decodeNode(raw)
	if err != nil {
		return nil, err
	}

	if n.Kind != "arm" {
		return nil, fmt.Errorf("expected arm, got %q", n.Kind)
	}

	pat, err := decodePattern(n.X)
	if err != nil {
		return nil, err
	}

	body, err := decodeBlock(n.Body)
	if err != nil {
		return nil, err
	}

	return &MatchArm{Span: n.Span.span(), Pattern: pat, Body: body}, nil
}

func decodePattern(raw json.RawMessage) (Pattern, error) {
	n, err := decodeNode(raw)
	if err != nil {
		return nil, err
	}

	switch n.Kind {
	case "variant":
		return &VariantPattern{Span: n.Span.span(), Enum: n.Name, Variant: n.Member, Binds: n.Binds}, nil
	case "wildcard":
		return &WildcardPattern{Span: n.Span.span()}, nil
	default:
		return nil, fmt.Errorf("unknown pattern kind %q", n.Kind)
	}
}

func decodeExpr(raw json.RawMessage) (Expression, error) {
	if raw == nil {
		return nil, fmt.Errorf("missing expression node")
	}

	n, err := decodeNode(raw)
	if err != nil {
		return nil, err
	}

	switch n.Kind {
	case "int":
		return &IntLit{Span: n.Span.span(), Value: n.Int}, nil

	case "float":
		return &FloatLit{Span: n.Span.span(), Value: n.Float}, nil

	case "bool":
		return &BoolLit{Span: n.Span.span(), Value: n.Bool}, nil

	case "string":
		return &StringLit{Span: n.Span.span(), Value: n.Str}, nil

	case "ident":
		return &Ident{Span: n.Span.span(), Name: n.Name}, nil

	case "path":
		return &PathExpr{Span: n.Span.span(), Type: n.Name, Member: n.Member}, nil

	case "call":
		callee, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}

		e := &CallExpr{Span: n.Span.span(), Callee: callee}

		for _, a := range n.List {
			arg, err := decodeExpr(a)
			if err != nil {
				return nil, err
			}

			e.Args = append(e.Args, arg)
		}

		return e, nil

	case "binary":
		op, err := binaryOpFromString(n.Op)
		if err != nil {
			return nil, err
		}

		left, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}

		right, err := decodeExpr(n.Y)
		if err != nil {
			return nil, err
		}

		return &BinaryExpr{Span: n.Span.span(), Op: op, Left: left, Right: right}, nil

	case "unary":
		x, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}

		op := OpNeg
		if n.Op == "!" {
			op = OpNot
		}

		return &UnaryExpr{Span: n.Span.span(), Op: op, X: x}, nil

	case "ref":
		target, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}

		return &RefExpr{Span: n.Span.span(), Mutable: n.Mutable, Target: target}, nil

	case "deref":
		x, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}

		return &DerefExpr{Span: n.Span.span(), X: x}, nil

	case "field":
		x, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}

		return &FieldExpr{Span: n.Span.span(), X: x, Name: n.Name}, nil

	case "index":
		x, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}

		idx, err := decodeExpr(n.Y)
		if err != nil {
			return nil, err
		}

		return &IndexExpr{Span: n.Span.span(), X: x, Index: idx}, nil

	case "veclit":
		e := &VectorLit{Span: n.Span.span()}

		for _, el := range n.List {
			elem, err := decodeExpr(el)
			if err != nil {
				return nil, err
			}

			e.Elems = append(e.Elems, elem)
		}

		return e, nil

	case "matlit":
		e := &MatrixLit{Span: n.Span.span()}

		for _, row := range n.Grid {
			exprs := make([]Expression, 0, len(row))

			for _, el := range row {
				elem, err := decodeExpr(el)
				if err != nil {
					return nil, err
				}

				exprs = append(exprs, elem)
			}

			e.Rows = append(e.Rows, exprs)
		}

		return e, nil

	case "structlit":
		e := &StructLit{Span: n.Span.span(), Name: n.Name}

		for _, a := range n.Extra {
			arg, err := decodeType(a)
			if err != nil {
				return nil, err
			}

			e.Args = append(e.Args, arg)
		}

		for _, f := range n.List {
			fn, err := decodeNode(f)
			if err != nil {
				return nil, err
			}

			v, err := decodeExpr(fn.X)
			if err != nil {
				return nil, err
			}

			e.Fields = append(e.Fields, &FieldInit{Span: fn.Span.span(), Name: fn.Name, Value: v})
		}

		return e, nil

	case "tuplelit":
		e := &TupleLit{Span: n.Span.span()}

		for _, el := range n.List {
			elem, err := decodeExpr(el)
			if err != nil {
				return nil, err
			}

			e.Elems = append(e.Elems, elem)
		}

		return e, nil

	case "alloc":
		value, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}

		arena, err := decodeExpr(n.Y)
		if err != nil {
			return nil, err
		}

		handle, ok := arena.(*Ident)
		if !ok {
			return nil, fmt.Errorf("alloc arena must be an identifier")
		}

		return &AllocExpr{Span: n.Span.span(), Arena: handle, Value: value}, nil

	case "promote":
		value, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}

		return &PromoteExpr{Span: n.Span.span(), Value: value}, nil

	case "try":
		x, err := decodeExpr(n.X)
		if err != nil {
			return nil, err
		}

		return &TryExpr{Span: n.Span.span(), X: x}, nil

	default:
		return nil, fmt.Errorf("unknown expression kind %q", n.Kind)
	}
}

func binaryOpFromString(s string) (BinaryOp, error) {
	switch s {
	case "+":
		return OpAdd, nil
	case "-":
		return OpSub, nil
	case "*":
		return OpMul, nil
	case "/":
		return OpDiv, nil
	case "==":
		return OpEq, nil
	case "!=":
		return OpNe, nil
	case "<":
		return OpLt, nil
	case "<=":
		return OpLe, nil
	case ">":
		return OpGt, nil
	case ">=":
		return OpGe, nil
	case "&&":
		return OpAnd, nil
	case "||":
		return OpOr, nil
	default:
		return OpAdd, fmt.Errorf("unknown binary operator %q", s)
	}
}

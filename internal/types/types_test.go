package types

import "testing"

func TestInternerDeduplicates(t *testing.T) {
	in := NewInterner()

	a := in.Vector(in.F32, Literal(4))
	b := in.Vector(in.F32, Literal(4))

	if a != b {
		t.Errorf("identical vector types interned to different IDs: %d vs %d", a, b)
	}

	c := in.Vector(in.F32, Literal(3))
	if a == c {
		t.Errorf("vec4<f32> and vec3<f32> interned to the same ID")
	}

	d := in.Vector(in.F64, Literal(4))
	if a == d {
		t.Errorf("vec4<f32> and vec4<f64> interned to the same ID")
	}
}

func TestDimEquality(t *testing.T) {
	tests := []struct {
		name string
		a, b Dim
		want bool
	}{
		{"equal literals", Literal(4), Literal(4), true},
		{"unequal literals", Literal(4), Literal(3), false},
		{"same parameter", Symbolic("N"), Symbolic("N"), true},
		{"different parameters", Symbolic("N"), Symbolic("M"), false},
		{"parameter vs literal", Symbolic("N"), Literal(4), false},
	}

	for _, tt := range tests {
		if got := tt.a.Equal(tt.b); got != tt.want {
			t.Errorf("%s: Equal(%s, %s) = %v, want %v", tt.name, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestMatMulShapes(t *testing.T) {
	in := NewInterner()

	m3x4 := in.Matrix(in.F32, Literal(3), Literal(4))
	m4x4 := in.Matrix(in.F32, Literal(4), Literal(4))
	m4x2 := in.Matrix(in.F32, Literal(4), Literal(2))

	got, ok := in.MatMul(m3x4, m4x4)
	if !ok {
		t.Fatalf("mat3x4 * mat4x4 rejected")
	}

	if want := in.Matrix(in.F32, Literal(3), Literal(4)); got != want {
		t.Errorf("mat3x4 * mat4x4 = %s, want %s", in.String(got), in.String(want))
	}

	got, ok = in.MatMul(m3x4, m4x2)
	if !ok {
		t.Fatalf("mat3x4 * mat4x2 rejected")
	}

	if want := in.Matrix(in.F32, Literal(3), Literal(2)); got != want {
		t.Errorf("mat3x4 * mat4x2 = %s, want %s", in.String(got), in.String(want))
	}

	if _, ok := in.MatMul(m3x4, m3x4); ok {
		t.Errorf("mat3x4 * mat3x4 accepted; inner dimensions do not agree")
	}

	m3x4f64 := in.Matrix(in.F64, Literal(3), Literal(4))
	if _, ok := in.MatMul(m3x4f64, m4x4); ok {
		t.Errorf("matmul across element types accepted")
	}
}

func TestMatMulSymbolicDims(t *testing.T) {
	in := NewInterner()

	// (M x K) * (K x N) -> (M x N) with symbolic dimensions.
	a := in.Matrix(in.F32, Symbolic("M"), Symbolic("K"))
	b := in.Matrix(in.F32, Symbolic("K"), Symbolic("N"))

	got, ok := in.MatMul(a, b)
	if !ok {
		t.Fatalf("symbolic matmul with agreeing inner dims rejected")
	}

	rows, cols := in.RowsCols(got)
	if rows != Symbolic("M") || cols != Symbolic("N") {
		t.Errorf("symbolic matmul result %sx%s, want MxN", rows, cols)
	}

	c := in.Matrix(in.F32, Symbolic("J"), Symbolic("N"))
	if _, ok := in.MatMul(a, c); ok {
		t.Errorf("matmul with distinct symbolic inner dims accepted")
	}
}

func TestMatVecMul(t *testing.T) {
	in := NewInterner()

	m := in.Matrix(in.F32, Literal(3), Literal(4))
	v4 := in.Vector(in.F32, Literal(4))
	v3 := in.Vector(in.F32, Literal(3))

	got, ok := in.MatVecMul(m, v4)
	if !ok {
		t.Fatalf("mat3x4 * vec4 rejected")
	}

	if got != v3 {
		t.Errorf("mat3x4 * vec4 = %s, want vec3<f32>", in.String(got))
	}

	if _, ok := in.MatVecMul(m, v3); ok {
		t.Errorf("mat3x4 * vec3 accepted; columns do not match length")
	}
}

func TestElementwise(t *testing.T) {
	in := NewInterner()

	v4 := in.Vector(in.F32, Literal(4))
	v3 := in.Vector(in.F32, Literal(3))

	if _, ok := in.Elementwise(v4, v4); !ok {
		t.Errorf("elementwise on identical shapes rejected")
	}

	if _, ok := in.Elementwise(v4, v3); ok {
		t.Errorf("elementwise across lengths accepted")
	}

	if _, ok := in.Elementwise(v4, in.Vector(in.F64, Literal(4))); ok {
		t.Errorf("elementwise across element types accepted")
	}
}

func TestIsCopy(t *testing.T) {
	in := NewInterner()

	in.DeclareStruct("Thing", nil)
	in.SetStructFields("Thing", []Field{{Name: "v", Type: in.I32}})

	tests := []struct {
		name string
		t    TypeID
		want bool
	}{
		{"i32", in.I32, true},
		{"bool", in.Bool, true},
		{"shared reference", in.Reference(in.I32, false), true},
		{"mutable reference", in.Reference(in.I32, true), true},
		{"poison", in.Poison, true},
		{"struct", in.Struct("Thing", nil), false},
		{"vector", in.Vector(in.F32, Literal(4)), false},
		{"option", in.Option(in.I32), false},
	}

	for _, tt := range tests {
		if got := in.IsCopy(tt.t); got != tt.want {
			t.Errorf("%s: IsCopy = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSubstitute(t *testing.T) {
	in := NewInterner()

	tp := in.GenericParam("T")
	vecN := in.Vector(tp, Symbolic("N"))

	got := in.Substitute(vecN,
		map[string]TypeID{"T": in.F32},
		map[string]Dim{"N": Literal(4)})

	if want := in.Vector(in.F32, Literal(4)); got != want {
		t.Errorf("Substitute(vec<T, N>) = %s, want %s", in.String(got), in.String(want))
	}

	// Unbound parameters survive substitution untouched.
	partial := in.Substitute(vecN, map[string]TypeID{"T": in.F32}, nil)
	if in.Len(partial) != Symbolic("N") {
		t.Errorf("unbound dim replaced: got %s", in.Len(partial))
	}
}

func TestRecursiveEnum(t *testing.T) {
	in := NewInterner()

	// enum List { Cons(i32, List), Nil }
	in.DeclareEnum("List", nil)
	list := in.Enum("List", nil)
	in.SetEnumVariants("List", []VariantInfo{
		{Name: "Cons", Payload: []TypeID{in.I32, list}},
		{Name: "Nil"},
	})

	variants := in.EnumVariants(list)
	if len(variants) != 2 {
		t.Fatalf("got %d variants, want 2", len(variants))
	}

	if variants[0].Payload[1] != list {
		t.Errorf("recursive payload does not point back at the enum")
	}
}

func TestBuiltinOptionResult(t *testing.T) {
	in := NewInterner()

	opt := in.Option(in.I32)
	variants := in.EnumVariants(opt)

	if len(variants) != 2 || variants[0].Name != "Some" || variants[1].Name != "None" {
		t.Fatalf("Option variants = %v", variants)
	}

	if variants[0].Payload[0] != in.I32 {
		t.Errorf("Option<i32>::Some payload = %s, want i32", in.String(variants[0].Payload[0]))
	}

	res := in.Result(in.F32, in.Str)
	variants = in.EnumVariants(res)

	if variants[1].Payload[0] != in.Str {
		t.Errorf("Result<f32, string>::Err payload = %s, want string", in.String(variants[1].Payload[0]))
	}
}

func TestStringRendering(t *testing.T) {
	in := NewInterner()

	tests := []struct {
		t    TypeID
		want string
	}{
		{in.I32, "i32"},
		{in.Vector(in.F32, Literal(4)), "vec4<f32>"},
		{in.Matrix(in.F32, Literal(3), Literal(4)), "mat3x4<f32>"},
		{in.Vector(in.F32, Symbolic("N")), "vecN<f32>"},
		{in.Reference(in.I32, true), "&mut i32"},
		{in.Option(in.I32), "Option<i32>"},
	}

	for _, tt := range tests {
		if got := in.String(tt.t); got != tt.want {
			t.Errorf("String = %q, want %q", got, tt.want)
		}
	}
}

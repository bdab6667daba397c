// Shape algebra for vector and matrix types. Dimension equality is
// exact: literals must match literally, symbolic dimensions must be the
// identical parameter. Mismatched dimensions never coerce.

package types

// Shape renders the dimension tuple of a vector or matrix type, e.g.
// "4" for vec4 and "3x4" for mat3x4. Non-shaped types render as "".
func (in *Interner) Shape(t TypeID) string {
	switch in.Kind(t) {
	case KindVector, KindArray:
		return in.Len(t).String()
	case KindMatrix:
		r, c := in.RowsCols(t)

		return r.String() + "x" + c.String()
	default:
		return ""
	}
}

// Elementwise computes the result type of an elementwise operation over
// two shaped operands. It requires identical kinds, identical element
// types, and identical shapes; the result shape equals the operand
// shape. ok is false on any mismatch.
func (in *Interner) Elementwise(a, b TypeID) (TypeID, bool) {
	ka, kb := in.Kind(a), in.Kind(b)
	if ka != kb {
		return in.Poison, false
	}

	switch ka {
	case KindVector:
		if in.Elem(a) != in.Elem(b) || !in.Len(a).Equal(in.Len(b)) {
			return in.Poison, false
		}

		return a, true

	case KindMatrix:
		ra, ca := in.RowsCols(a)
		rb, cb := in.RowsCols(b)

		if in.Elem(a) != in.Elem(b) || !ra.Equal(rb) || !ca.Equal(cb) {
			return in.Poison, false
		}

		return a, true

	default:
		return in.Poison, false
	}
}

// MatMul computes the result type of matrix multiplication:
// (M×K)·(K×N) → M×N. The inner dimensions must be exactly equal and
// the element types identical. ok is false on any mismatch.
func (in *Interner) MatMul(a, b TypeID) (TypeID, bool) {
	if in.Kind(a) != KindMatrix || in.Kind(b) != KindMatrix {
		return in.Poison, false
	}

	if in.Elem(a) != in.Elem(b) {
		return in.Poison, false
	}

	ra, ca := in.RowsCols(a)
	rb, cb := in.RowsCols(b)

	if !ca.Equal(rb) {
		return in.Poison, false
	}

	return in.Matrix(in.Elem(a), ra, cb), true
}

// MatVecMul computes the result of (M×K)·(K) → vec M, the matrix-vector
// product. ok is false on any mismatch.
func (in *Interner) MatVecMul(a, b TypeID) (TypeID, bool) {
	if in.Kind(a) != KindMatrix || in.Kind(b) != KindVector {
		return in.Poison, false
	}

	if in.Elem(a) != in.Elem(b) {
		return in.Poison, false
	}

	ra, ca := in.RowsCols(a)
	if !ca.Equal(in.Len(b)) {
		return in.Poison, false
	}

	return in.Vector(in.Elem(a), ra), true
}

// IsShaped reports whether t participates in the shape algebra.
func (in *Interner) IsShaped(t TypeID) bool {
	k := in.Kind(t)

	return k == KindVector || k == KindMatrix
}

package position

import "testing"

func pos(line, col, off int) Position {
	return Position{Filename: "unit.tsr", Line: line, Column: col, Offset: off}
}

func TestPositionString(t *testing.T) {
	p := pos(3, 7, 42)
	if got, want := p.String(), "unit.tsr:3:7"; got != want {
		t.Errorf("String = %q, want %q", got, want)
	}

	anon := Position{Line: 2, Column: 1, Offset: 10}
	if got, want := anon.String(), "2:1"; got != want {
		t.Errorf("String = %q, want %q", got, want)
	}
}

func TestSpanContains(t *testing.T) {
	s := Span{Start: pos(1, 5, 4), End: pos(1, 10, 9)}

	if !s.Contains(pos(1, 7, 6)) {
		t.Errorf("span does not contain interior position")
	}

	if s.Contains(pos(1, 12, 11)) {
		t.Errorf("span contains position past its end")
	}
}

func TestSpanUnion(t *testing.T) {
	a := Span{Start: pos(1, 1, 0), End: pos(1, 4, 3)}
	b := Span{Start: pos(1, 8, 7), End: pos(1, 12, 11)}

	u := a.Union(b)
	if u.Start != a.Start || u.End != b.End {
		t.Errorf("Union = %v, want start of a and end of b", u)
	}
}

func TestSourceFileLines(t *testing.T) {
	f := NewSourceFile("unit.tsr", "let x = 1;\nlet y = 2;\nuse(x);")

	if got := f.LineCount(); got != 3 {
		t.Fatalf("LineCount = %d, want 3", got)
	}

	if got, want := f.Line(2), "let y = 2;"; got != want {
		t.Errorf("Line(2) = %q, want %q", got, want)
	}

	if got := f.Line(99); got != "" {
		t.Errorf("Line(99) = %q, want empty", got)
	}
}

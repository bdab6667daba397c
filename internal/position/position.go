// Package position provides source position and span tracking for the
// Tessera analysis core. Every diagnostic and every annotated node refers
// back to the source through these types.
package position

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Position is a single point in a source file.
type Position struct {
	Filename string // source file name
	Line     int    // 1-based line number
	Column   int    // 1-based column number
	Offset   int    // 0-based byte offset
}

// IsValid reports whether the position carries real location data.
func (p Position) IsValid() bool {
	return p.Line > 0 && p.Column > 0 && p.Offset >= 0
}

// String formats the position as file:line:column.
func (p Position) String() string {
	if p.Filename != "" {
		return fmt.Sprintf("%s:%d:%d", filepath.Base(p.Filename), p.Line, p.Column)
	}

	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Before reports whether p precedes other in source order.
func (p Position) Before(other Position) bool {
	if p.Filename != other.Filename {
		return p.Filename < other.Filename
	}

	return p.Offset < other.Offset
}

// Span is a half-open range of source text [Start, End).
type Span struct {
	Start Position
	End   Position
}

// IsValid reports whether the span is well formed within one file.
func (s Span) IsValid() bool {
	return s.Start.IsValid() && s.End.IsValid() &&
		s.Start.Filename == s.End.Filename &&
		s.Start.Offset <= s.End.Offset
}

// String formats the span compactly, collapsing single-line spans.
func (s Span) String() string {
	if s.Start.Line == s.End.Line {
		return fmt.Sprintf("%s-%d", s.Start.String(), s.End.Column)
	}

	return fmt.Sprintf("%s-%d:%d", s.Start.String(), s.End.Line, s.End.Column)
}

// Contains reports whether pos falls inside the span.
func (s Span) Contains(pos Position) bool {
	if !s.IsValid() || !pos.IsValid() || s.Start.Filename != pos.Filename {
		return false
	}

	return s.Start.Offset <= pos.Offset && pos.Offset < s.End.Offset
}

// Union returns the smallest span covering both s and other.
func (s Span) Union(other Span) Span {
	if !s.IsValid() {
		return other
	}

	if !other.IsValid() || s.Start.Filename != other.Start.Filename {
		return s
	}

	out := s
	if other.Start.Before(out.Start) {
		out.Start = other.Start
	}

	if out.End.Before(other.End) {
		out.End = other.End
	}

	return out
}

// SourceFile holds one file's content for context rendering in diagnostics.
type SourceFile struct {
	Filename string
	Content  string
	lines    []string
}

// NewSourceFile builds a SourceFile, splitting content into lines eagerly.
func NewSourceFile(filename, content string) *SourceFile {
	return &SourceFile{
		Filename: filename,
		Content:  content,
		lines:    strings.Split(content, "\n"),
	}
}

// Line returns the 1-based line, or the empty string when out of range.
func (sf *SourceFile) Line(n int) string {
	if n < 1 || n > len(sf.lines) {
		return ""
	}

	return sf.lines[n-1]
}

// LineCount returns the number of lines in the file.
func (sf *SourceFile) LineCount() int {
	return len(sf.lines)
}

// Text returns the source text covered by span, or "" when it does not
// lie within this file.
func (sf *SourceFile) Text(span Span) string {
	if !span.IsValid() || span.Start.Filename != sf.Filename {
		return ""
	}

	if span.End.Offset > len(sf.Content) {
		return ""
	}

	return sf.Content[span.Start.Offset:span.End.Offset]
}

// Package diagnostics provides the shared diagnostic reporter for the
// Tessera analysis core. All phases append into one Reporter; recoverable
// faults never stop a phase, so a single run yields the unit's complete
// diagnostic set. The reporter is safe for concurrent appends because
// per-function analysis runs across parallel workers.
package diagnostics

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tessera-lang/tessera/internal/position"
)

// Severity is the severity level of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Phase identifies which analysis phase produced a diagnostic.
type Phase int

const (
	PhaseResolve Phase = iota
	PhaseTypeCheck
	PhaseBorrowCheck
	PhaseEscapeCheck
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseResolve:
		return "resolve"
	case PhaseTypeCheck:
		return "typecheck"
	case PhaseBorrowCheck:
		return "borrowcheck"
	case PhaseEscapeCheck:
		return "escapecheck"
	default:
		return "unknown"
	}
}

// Code is the stable diagnostic code.
type Code int

const (
	UnresolvedName Code = iota
	DuplicateDeclaration
	TypeMismatch
	ShapeMismatch
	ArityMismatch
	NonExhaustiveMatch
	IncompatiblePropagation
	ActiveBorrowConflict
	DanglingReference
	UseAfterMove
	UninitializedUse
	ArenaEscape
)

// String returns the code name used in rendered diagnostics.
func (c Code) String() string {
	switch c {
	case UnresolvedName:
		return "UnresolvedName"
	case DuplicateDeclaration:
		return "DuplicateDeclaration"
	case TypeMismatch:
		return "TypeMismatch"
	case ShapeMismatch:
		return "ShapeMismatch"
	case ArityMismatch:
		return "ArityMismatch"
	case NonExhaustiveMatch:
		return "NonExhaustiveMatch"
	case IncompatiblePropagation:
		return "IncompatiblePropagation"
	case ActiveBorrowConflict:
		return "ActiveBorrowConflict"
	case DanglingReference:
		return "DanglingReference"
	case UseAfterMove:
		return "UseAfterMove"
	case UninitializedUse:
		return "UninitializedUse"
	case ArenaEscape:
		return "ArenaEscape"
	default:
		return "Unknown"
	}
}

// allCodes lists every diagnostic code, for name lookup and grouping.
var allCodes = []Code{
	UnresolvedName, DuplicateDeclaration, TypeMismatch, ShapeMismatch,
	ArityMismatch, NonExhaustiveMatch, IncompatiblePropagation,
	ActiveBorrowConflict, DanglingReference, UseAfterMove,
	UninitializedUse, ArenaEscape,
}

// ParseCode looks up a code by its rendered name.
func ParseCode(name string) (Code, bool) {
	for _, c := range allCodes {
		if c.String() == name {
			return c, true
		}
	}

	return 0, false
}

// Related points at a secondary location that explains the primary
// diagnostic, such as a conflicting borrow's origin or an allocation site.
type Related struct {
	Message string
	Span    position.Span
}

// Diagnostic is one reported finding.
type Diagnostic struct {
	Phase    Phase
	Severity Severity
	Code     Code
	Message  string
	Span     position.Span
	Related  []Related
}

// Reporter accumulates diagnostics across phases. Appends are
// mutex-guarded; ordering across concurrent appends is not guaranteed
// beyond eventual inclusion, and Sorted produces a stable view.
type Reporter struct {
	mu         sync.Mutex
	diags      []Diagnostic
	seen       map[string]bool
	errorCount int
	errorLimit int
	suppressed map[Code]bool
}

// NewReporter creates an empty reporter with no error limit.
func NewReporter() *Reporter {
	return &Reporter{
		seen:       make(map[string]bool),
		suppressed: make(map[Code]bool),
	}
}

// SetErrorLimit caps the number of recorded errors; zero means no cap.
func (r *Reporter) SetErrorLimit(limit int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errorLimit = limit
}

// Suppress drops all future diagnostics with the given code.
func (r *Reporter) Suppress(code Code) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.suppressed[code] = true
}

// Report appends a diagnostic. Duplicate (code, span) pairs are
// deduplicated so one offending expression yields one root-cause entry
// rather than a cascade.
func (r *Reporter) Report(d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.suppressed[d.Code] {
		return
	}

	key := fmt.Sprintf("%d@%s:%d:%d", d.Code, d.Span.Start.Filename, d.Span.Start.Offset, d.Span.End.Offset)
	if r.seen[key] {
		return
	}

	if d.Severity == SeverityError {
		if r.errorLimit > 0 && r.errorCount >= r.errorLimit {
			return
		}

		r.errorCount++
	}

	r.seen[key] = true
	r.diags = append(r.diags, d)
}

// Error reports an error-severity diagnostic.
func (r *Reporter) Error(phase Phase, code Code, span position.Span, format string, args ...interface{}) {
	r.Report(Diagnostic{
		Phase:    phase,
		Severity: SeverityError,
		Code:     code,
		Span:     span,
		Message:  fmt.Sprintf(format, args...),
	})
}

// ErrorWithRelated reports an error citing secondary locations.
func (r *Reporter) ErrorWithRelated(phase Phase, code Code, span position.Span, related []Related, format string, args ...interface{}) {
	r.Report(Diagnostic{
		Phase:    phase,
		Severity: SeverityError,
		Code:     code,
		Span:     span,
		Message:  fmt.Sprintf(format, args...),
		Related:  related,
	})
}

// Warning reports a warning-severity diagnostic.
func (r *Reporter) Warning(phase Phase, code Code, span position.Span, format string, args ...interface{}) {
	r.Report(Diagnostic{
		Phase:    phase,
		Severity: SeverityWarning,
		Code:     code,
		Span:     span,
		Message:  fmt.Sprintf(format, args...),
	})
}

// HasErrors reports whether any error-severity diagnostic was recorded.
// Code generation must be refused while this is true.
func (r *Reporter) HasErrors() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.errorCount > 0
}

// ErrorCount returns the number of recorded errors.
func (r *Reporter) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.errorCount
}

// Count returns the total number of recorded diagnostics.
func (r *Reporter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.diags)
}

// Sorted returns all diagnostics ordered by file, source position,
// then severity. The returned slice is a copy.
func (r *Reporter) Sorted() []Diagnostic {
	r.mu.Lock()
	out := make([]Diagnostic, len(r.diags))
	copy(out, r.diags)
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]

		if a.Span.Start.Filename != b.Span.Start.Filename {
			return a.Span.Start.Filename < b.Span.Start.Filename
		}

		if a.Span.Start.Offset != b.Span.Start.Offset {
			return a.Span.Start.Offset < b.Span.Start.Offset
		}

		return a.Severity < b.Severity
	})

	return out
}

// ByCode returns all diagnostics carrying the given code, in sorted order.
func (r *Reporter) ByCode(code Code) []Diagnostic {
	var out []Diagnostic

	for _, d := range r.Sorted() {
		if d.Code == code {
			out = append(out, d)
		}
	}

	return out
}

// ansi color codes for terminal rendering.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorBold   = "\033[1m"
)

// Format renders one diagnostic for terminal display.
func Format(d Diagnostic, colorize bool) string {
	var b strings.Builder

	if colorize {
		switch d.Severity {
		case SeverityError:
			b.WriteString(colorRed)
		case SeverityWarning:
			b.WriteString(colorYellow)
		default:
			b.WriteString(colorBlue)
		}
	}

	b.WriteString(d.Severity.String())
	b.WriteString("[")
	b.WriteString(d.Code.String())
	b.WriteString("]")

	if colorize {
		b.WriteString(colorReset)
		b.WriteString(colorBold)
	}

	b.WriteString(": ")
	b.WriteString(d.Message)

	if colorize {
		b.WriteString(colorReset)
	}

	b.WriteString("\n  --> ")
	b.WriteString(d.Span.Start.String())

	for _, rel := range d.Related {
		b.WriteString("\n  note: ")
		b.WriteString(rel.Message)
		b.WriteString(" at ")
		b.WriteString(rel.Span.Start.String())
	}

	return b.String()
}

// Summary renders a one-line count summary.
func (r *Reporter) Summary() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	warnings := 0

	for _, d := range r.diags {
		if d.Severity == SeverityWarning {
			warnings++
		}
	}

	if len(r.diags) == 0 {
		return "no diagnostics"
	}

	return fmt.Sprintf("%d error(s), %d warning(s)", r.errorCount, warnings)
}

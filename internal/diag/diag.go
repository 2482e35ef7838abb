// Package diag defines the compiler's diagnostic kinds and a thin logger
// used for -debug tracing, matching the error-kind taxonomy of the core
// specification (§7): resolution, metadata, unsupported-bytecode,
// structural, and emission failures.
package diag

import (
	"fmt"
	"log"
	"os"
)

// Kind classifies a diagnostic. Fatal kinds unwind the compile;
// UnsupportedBytecode is the sole non-fatal kind and degrades to a WARNING Comment instead.
type Kind int

const (
	Resolution Kind = iota
	Metadata
	UnsupportedBytecode
	Structural
	Emission
)

func (k Kind) String() string {
	switch k {
	case Resolution:
		return "resolution error"
	case Metadata:
		return "metadata error"
	case UnsupportedBytecode:
		return "unsupported bytecode"
	case Structural:
		return "structural error"
	case Emission:
		return "emission error"
	default:
		return "error"
	}
}

// Fatal returns true for diagnostic kinds that must unwind the compile
// rather than accumulate as a warning.
func (k Kind) Fatal() bool {
	return k != UnsupportedBytecode
}

// Diagnostic names the offending symbol in metadata terms
// (Namespace.Type::Method) and, when applicable, the bytecode offset that
// triggered it — the user-visible contract §7 requires of every diagnostic.
type Diagnostic struct {
	Kind       Kind
	Symbol     string // e.g. "System.Collections.Generic.List`1::Add"
	Offset     int    // bytecode offset; -1 when not applicable
	Detail     string
	SearchDirs []string // populated for Resolution diagnostics
}

func (d *Diagnostic) Error() string {
	loc := d.Symbol
	if loc == "" {
		loc = "<module>"
	}
	if d.Offset >= 0 {
		loc = fmt.Sprintf("%s+0x%x", loc, d.Offset)
	}
	msg := fmt.Sprintf("%s: %s: %s", d.Kind, loc, d.Detail)
	if len(d.SearchDirs) > 0 {
		msg += fmt.Sprintf(" (searched: %v)", d.SearchDirs)
	}
	return msg
}

// New builds a Diagnostic for a symbol with no associated bytecode offset.
func New(kind Kind, symbol, detail string) *Diagnostic {
	return &Diagnostic{Kind: kind, Symbol: symbol, Offset: -1, Detail: detail}
}

// NewAt builds a Diagnostic anchored to a bytecode offset within a method.
func NewAt(kind Kind, symbol string, offset int, detail string) *Diagnostic {
	return &Diagnostic{Kind: kind, Symbol: symbol, Offset: offset, Detail: detail}
}

// Logger wraps the standard library logger for -debug tracing. The core
// never needs structured fields or levels beyond "is debug on", so a plain
// *log.Logger over stderr — the same style the teacher's own
// fmt.Fprintf(os.Stderr, "debug: ...") traces use in its main() — is the
// whole of it.
type Logger struct {
	debug bool
	l     *log.Logger
}

// NewLogger constructs a Logger; debug traces are only emitted when enabled.
func NewLogger(enabled bool) *Logger {
	return &Logger{debug: enabled, l: log.New(os.Stderr, "", 0)}
}

// Debugf emits a trace line when debug mode is enabled.
func (lg *Logger) Debugf(format string, args ...interface{}) {
	if lg == nil || !lg.debug {
		return
	}
	lg.l.Printf("debug: "+format, args...)
}

// Warnf emits a non-fatal warning unconditionally.
func (lg *Logger) Warnf(format string, args ...interface{}) {
	if lg == nil {
		log.Printf("warning: "+format, args...)
		return
	}
	lg.l.Printf("warning: "+format, args...)
}

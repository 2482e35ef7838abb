package diag

import (
	"bytes"
	"testing"
)

func TestDiagnosticError(t *testing.T) {
	tests := []struct {
		name string
		d    *Diagnostic
		want string
	}{
		{
			name: "no symbol no offset",
			d:    New(Structural, "", "entry point missing"),
			want: "structural error: <module>: entry point missing",
		},
		{
			name: "symbol with offset",
			d:    NewAt(UnsupportedBytecode, "MyApp.Program::Main", 0x2a, "unhandled opcode"),
			want: "unsupported bytecode: MyApp.Program::Main+0x2a: unhandled opcode",
		},
		{
			name: "resolution with search dirs",
			d: &Diagnostic{
				Kind:       Resolution,
				Symbol:     "System.Private.CoreLib",
				Offset:     -1,
				Detail:     "assembly not found",
				SearchDirs: []string{"/app", "/runtime"},
			},
			want: "resolution error: System.Private.CoreLib: assembly not found (searched: [/app /runtime])",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.d.Error()
			if got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindFatal(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{Resolution, true},
		{Metadata, true},
		{UnsupportedBytecode, false},
		{Structural, true},
		{Emission, true},
	}
	for _, tt := range tests {
		if got := tt.kind.Fatal(); got != tt.want {
			t.Errorf("%v.Fatal() = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestLoggerDebugfRespectsFlag(t *testing.T) {
	// Debugf is a silent no-op when disabled, and a nil Logger degrades
	// Warnf to the package-level logger rather than crashing a caller that
	// skipped NewLogger.
	lg := NewLogger(false)
	var buf bytes.Buffer
	lg.l.SetOutput(&buf)
	lg.Debugf("should not print: %d", 1)
	if buf.Len() != 0 {
		t.Errorf("Debugf with debug disabled wrote %q, want nothing", buf.String())
	}

	var nilLogger *Logger
	nilLogger.Warnf("nil logger still works: %d", 1)
}

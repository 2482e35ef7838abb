package intrinsics

import "testing"

func TestLookup(t *testing.T) {
	tests := []struct {
		name       string
		typeName   string
		methodName string
		arity      int
		wantSymbol string
		wantOK     bool
	}{
		{"console writeline no args", "System.Console", "WriteLine", 0, "rtg::console::write_line_empty", true},
		{"console writeline one arg", "System.Console", "WriteLine", 1, "rtg::console::write_line", true},
		{"string substring overload 1", "System.String", "Substring", 1, "rtg::string_substring1", true},
		{"string substring overload 2", "System.String", "Substring", 2, "rtg::string_substring2", true},
		{"unregistered method", "System.Console", "Beep", 0, "", false},
		{"unregistered type", "MyApp.Widget", "Run", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSymbol, gotOK := Lookup(tt.typeName, tt.methodName, tt.arity)
			if gotOK != tt.wantOK || gotSymbol != tt.wantSymbol {
				t.Errorf("Lookup(%q, %q, %d) = (%q, %v), want (%q, %v)",
					tt.typeName, tt.methodName, tt.arity, gotSymbol, gotOK, tt.wantSymbol, tt.wantOK)
			}
		})
	}
}

func TestMustLookupPanicsOnMiss(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected MustLookup to panic on an unregistered symbol")
		}
	}()
	MustLookup("MyApp.Widget", "Run", 0)
}

func TestMustLookupReturnsSymbolOnHit(t *testing.T) {
	got := MustLookup("System.Math", "Abs", 1)
	if got != "rtg::math_abs" {
		t.Errorf("MustLookup(System.Math, Abs, 1) = %q, want rtg::math_abs", got)
	}
}

func TestIsIntrinsicType(t *testing.T) {
	if !IsIntrinsicType("System.Console") {
		t.Error("System.Console should be an intrinsic type")
	}
	if !IsIntrinsicType("System.String") {
		t.Error("System.String should be an intrinsic type")
	}
	if IsIntrinsicType("MyApp.Widget") {
		t.Error("MyApp.Widget should not be an intrinsic type")
	}
}

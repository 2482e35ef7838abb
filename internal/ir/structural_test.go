package ir

import (
	"testing"

	"github.com/axiomates/cli2cpp/internal/assembly"
)

func TestIsOperatorName(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"op_Addition", true},
		{"op_", false},
		{"Run", false},
		{"op", false},
	}
	for _, tt := range tests {
		if got := isOperatorName(tt.in); got != tt.want {
			t.Errorf("isOperatorName(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCppSafeParamName(t *testing.T) {
	if got := cppSafeParamName(""); got != "_" {
		t.Errorf("cppSafeParamName(\"\") = %q, want _", got)
	}
	if got := cppSafeParamName("value"); got != "value" {
		t.Errorf("cppSafeParamName(value) = %q, want value", got)
	}
}

func TestShortNameOf(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MyApp.Program", "Program"},
		{"MyApp.Outer/Inner", "Inner"},
		{"Program", "Program"},
		{"System.Collections.Generic.List`1", "List`1"},
	}
	for _, tt := range tests {
		if got := shortNameOf(tt.in); got != tt.want {
			t.Errorf("shortNameOf(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSizeAndAlignOf(t *testing.T) {
	tests := []struct {
		cppType   string
		wantSize  int
		wantAlign int
	}{
		{"bool", 1, 1},
		{"int32_t", 4, 4},
		{"double", 8, 8},
		{"rtg::gc_ptr<MyApp__Widget>", pointerSize, pointerSize},
	}
	for _, tt := range tests {
		size, align := sizeAndAlignOf(tt.cppType)
		if size != tt.wantSize || align != tt.wantAlign {
			t.Errorf("sizeAndAlignOf(%q) = (%d, %d), want (%d, %d)", tt.cppType, size, align, tt.wantSize, tt.wantAlign)
		}
	}
}

func TestIsDelegateType(t *testing.T) {
	noBase := &assembly.TypeDef{FullName: "MyApp.Widget"}
	if isDelegateType(noBase) {
		t.Error("a type with no base should not be a delegate type")
	}
	delegate := &assembly.TypeDef{
		FullName: "MyApp.Handler",
		BaseType: &assembly.TypeRef{FullName: "System.MulticastDelegate"},
	}
	if !isDelegateType(delegate) {
		t.Error("a type deriving from System.MulticastDelegate should be a delegate type")
	}
	notDelegate := &assembly.TypeDef{
		FullName: "MyApp.Widget",
		BaseType: &assembly.TypeRef{FullName: "System.Object"},
	}
	if isDelegateType(notDelegate) {
		t.Error("a type deriving from System.Object should not be a delegate type")
	}
}

func TestIsRuntimeProvided(t *testing.T) {
	if !isRuntimeProvided("System.Object") {
		t.Error("System.Object should be runtime-provided")
	}
	if isRuntimeProvided("MyApp.Widget") {
		t.Error("MyApp.Widget should not be runtime-provided")
	}
}

package namemap

import (
	"testing"

	"github.com/axiomates/cli2cpp/internal/assembly"
)

func TestMangleType(t *testing.T) {
	tests := []struct {
		in  string
		out string
	}{
		{"System.Object", "System__Object"},
		{"MyApp.Program", "MyApp__Program"},
		{"MyApp.Outer/Inner", "MyApp__Outer__Inner"},
		{"System.Collections.Generic.List`1", "System__Collections__Generic__List__1"},
	}

	m := New()
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := m.MangleType(tt.in)
			if got != tt.out {
				t.Errorf("MangleType(%q) = %q, want %q", tt.in, got, tt.out)
			}
		})
	}
}

func TestMangleTypeMemoized(t *testing.T) {
	m := New()
	first := m.MangleType("MyApp.Program")
	second := m.MangleType("MyApp.Program")
	if first != second {
		t.Errorf("MangleType not stable across calls: %q != %q", first, second)
	}
}

func TestMangleMethodArityDisambiguates(t *testing.T) {
	m := New()
	zero := m.MangleMethod("MyApp.Program", "Run", 0)
	one := m.MangleMethod("MyApp.Program", "Run", 1)
	if zero == one {
		t.Errorf("MangleMethod did not disambiguate by arity: both gave %q", zero)
	}
	want := "MyApp__Program__Run_0"
	if zero != want {
		t.Errorf("MangleMethod(arity=0) = %q, want %q", zero, want)
	}
}

func TestMangleGenericInstanceSharedIdentity(t *testing.T) {
	m := New()
	a := m.MangleGenericInstance("System.Collections.Generic.List`1", []string{"System.Int32"})
	b := m.MangleGenericInstance("System.Collections.Generic.List`1", []string{"System.Int32"})
	if a != b {
		t.Errorf("two instantiations of the same closed shape disagreed: %q != %q", a, b)
	}
	c := m.MangleGenericInstance("System.Collections.Generic.List`1", []string{"System.String"})
	if a == c {
		t.Errorf("different closed shapes produced the same mangled name: %q", a)
	}
}

func TestCppTypeNameForSignature(t *testing.T) {
	m := New()
	m.RegisterValueType("MyApp.Point")

	tests := []struct {
		name string
		ref  *assembly.TypeRef
		want string
	}{
		{"nil", nil, "void"},
		{"primitive", &assembly.TypeRef{FullName: "System.Int32"}, "int32_t"},
		{"value type", &assembly.TypeRef{FullName: "MyApp.Point"}, "MyApp__Point"},
		{"reference type", &assembly.TypeRef{FullName: "MyApp.Widget"}, "rtg::gc_ptr<MyApp__Widget>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.CppTypeNameForSignature(tt.ref)
			if got != tt.want {
				t.Errorf("CppTypeNameForSignature(%v) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestDefaultValue(t *testing.T) {
	m := New()
	m.RegisterValueType("MyApp.Point")

	tests := []struct {
		name string
		ref  *assembly.TypeRef
		want string
	}{
		{"nil", nil, "{}"},
		{"bool", &assembly.TypeRef{FullName: "System.Boolean"}, "false"},
		{"int", &assembly.TypeRef{FullName: "System.Int32"}, "0"},
		{"float", &assembly.TypeRef{FullName: "System.Double"}, "0.0"},
		{"value type", &assembly.TypeRef{FullName: "MyApp.Point"}, "MyApp__Point{}"},
		{"reference type", &assembly.TypeRef{FullName: "MyApp.Widget"}, "nullptr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.DefaultValue(tt.ref)
			if got != tt.want {
				t.Errorf("DefaultValue(%v) = %q, want %q", tt.ref, got, tt.want)
			}
		})
	}
}

func TestIsPrimitive(t *testing.T) {
	if !IsPrimitive("System.Int32") {
		t.Error("System.Int32 should be primitive")
	}
	if IsPrimitive("MyApp.Widget") {
		t.Error("MyApp.Widget should not be primitive")
	}
}

func TestClearValueTypes(t *testing.T) {
	m := New()
	m.RegisterValueType("MyApp.Point")
	if !m.IsValueType("MyApp.Point") {
		t.Fatal("expected MyApp.Point to be registered as a value type")
	}
	m.ClearValueTypes()
	if m.IsValueType("MyApp.Point") {
		t.Error("ClearValueTypes did not reset the registry")
	}
}

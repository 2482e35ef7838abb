package codegen

import (
	"strings"
	"testing"

	"github.com/axiomates/cli2cpp/internal/ir"
)

func TestHeaderGuard(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MyApp", "MYAPP_H"},
		{"my-app.v2", "MY_APP_V2_H"},
		{"123start", "123START_H"},
	}
	for _, tt := range tests {
		if got := headerGuard(tt.in); got != tt.want {
			t.Errorf("headerGuard(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderStructLayoutReferenceType(t *testing.T) {
	ty := &ir.Type{
		CppName: "MyApp__Widget",
		InstanceFields: []*ir.Field{
			{CppName: "count", CppType: "int32_t"},
		},
	}
	var b strings.Builder
	renderStructLayout(&b, ty)
	got := b.String()
	if !strings.Contains(got, "rtg::TypeInfo* type_info;") {
		t.Error("expected a reference type's layout to carry a type_info header field")
	}
	if !strings.Contains(got, "rtg::SyncBlock sync_block;") {
		t.Error("expected a reference type's layout to carry a sync_block header field")
	}
	if !strings.Contains(got, "int32_t count;") {
		t.Error("expected the instance field to be emitted")
	}
}

func TestRenderStructLayoutValueType(t *testing.T) {
	ty := &ir.Type{
		CppName:     "MyApp__Point",
		IsValueType: true,
		InstanceFields: []*ir.Field{
			{CppName: "x", CppType: "int32_t"},
		},
	}
	var b strings.Builder
	renderStructLayout(&b, ty)
	got := b.String()
	if strings.Contains(got, "type_info") {
		t.Error("a value type's layout must not carry a type_info header field")
	}
	if !strings.Contains(got, "int32_t x;") {
		t.Error("expected the instance field to be emitted")
	}
}

func TestRenderStructLayoutEnum(t *testing.T) {
	ty := &ir.Type{CppName: "MyApp__Color", IsEnum: true, EnumUnderlying: "int32_t"}
	var b strings.Builder
	renderStructLayout(&b, ty)
	want := "using MyApp__Color = int32_t;\n\n"
	if got := b.String(); got != want {
		t.Errorf("renderStructLayout(enum) = %q, want %q", got, want)
	}
}

func TestRenderStaticsStruct(t *testing.T) {
	ty := &ir.Type{
		CppName: "MyApp__Program",
		StaticFields: []*ir.Field{
			{CppName: "counter", CppType: "int32_t"},
		},
	}
	var b strings.Builder
	renderStaticsStruct(&b, ty)
	got := b.String()
	if !strings.Contains(got, "struct MyApp__Program_Statics {") {
		t.Error("expected a statics struct declaration")
	}
	if !strings.Contains(got, "extern MyApp__Program_Statics MyApp__Program_statics;") {
		t.Error("expected an extern declaration for the statics instance")
	}
}

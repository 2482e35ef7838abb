package codegen

import (
	"strings"
	"testing"

	"github.com/axiomates/cli2cpp/internal/ir"
)

func TestRenderInstSimpleForms(t *testing.T) {
	tests := []struct {
		name string
		inst ir.Instruction
		want string
	}{
		{"comment", &ir.Comment{Text: "hello"}, "// hello"},
		{"assign", &ir.Assign{Target: "x", Value: "1"}, "x = 1;"},
		{"declare local", &ir.DeclareLocal{Name: "x", CppType: "int32_t", Init: "0"}, "int32_t x = 0;"},
		{"return void", &ir.Return{}, "return;"},
		{"return value", &ir.Return{Value: "x"}, "return x;"},
		{"binary op", &ir.BinaryOp{Op: "+", Lhs: "a", Rhs: "b", ResultTemp: "t0"}, "t0 = (a + b);"},
		{"unary op", &ir.UnaryOp{Op: "-", Operand: "a", ResultTemp: "t0"}, "t0 = (-a);"},
		{"branch", &ir.Branch{Target: 3}, "goto BB_3;"},
		{"conditional branch", &ir.ConditionalBranch{Cond: "c", TrueTarget: 1, FalseTarget: 2}, "if (c) goto BB_1; else goto BB_2;"},
		{"label", &ir.Label{Block: 5}, "BB_5:;"},
		{"rethrow", &ir.Rethrow{}, "RETHROW;"},
		{"throw value", &ir.Throw{Value: "ex"}, "throw_exception(ex);"},
		{"throw empty", &ir.Throw{}, "RETHROW;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := renderInst(tt.inst)
			if got != tt.want {
				t.Errorf("renderInst(%#v) = %q, want %q", tt.inst, got, tt.want)
			}
		})
	}
}

func TestRenderCallDirect(t *testing.T) {
	v := &ir.Call{Target: "MyApp__Program__Run_0", Args: []string{"__this"}, ResultTemp: ""}
	got := renderCall(v)
	want := "MyApp__Program__Run_0(__this);"
	if got != want {
		t.Errorf("renderCall(direct) = %q, want %q", got, want)
	}
}

func TestRenderCallVirtual(t *testing.T) {
	v := &ir.Call{Args: []string{"obj"}, ResultTemp: "t0", Virtual: true, VTableSlot: 2}
	got := renderCall(v)
	want := "t0 = obj->type_info->vtable->methods[2](obj);"
	if got != want {
		t.Errorf("renderCall(virtual) = %q, want %q", got, want)
	}
}

func TestRenderCallInterface(t *testing.T) {
	iface := &ir.Type{CppName: "MyApp__IShape"}
	v := &ir.Call{Args: []string{"obj"}, ResultTemp: "t0", Interface: iface, VTableSlot: 1}
	got := renderCall(v)
	if !strings.Contains(got, "type_get_interface_vtable_checked(obj->type_info, &MyApp__IShape_TypeInfo)->methods[1]") {
		t.Errorf("renderCall(interface) = %q, missing expected interface dispatch expression", got)
	}
}

func TestRenderNewObj(t *testing.T) {
	ty := &ir.Type{CppName: "MyApp__Widget"}
	v := &ir.NewObj{Type: ty, Ctor: "MyApp__Widget__ctor_0", Args: nil, ResultTemp: "t0"}
	got := renderNewObj(v)
	want := "t0 = (MyApp__Widget*)runtime::gc_alloc(sizeof(MyApp__Widget), &MyApp__Widget_TypeInfo); MyApp__Widget__ctor_0(t0);"
	if got != want {
		t.Errorf("renderNewObj = %q, want %q", got, want)
	}
}

func TestRenderFieldAccess(t *testing.T) {
	field := &ir.Field{CppName: "count"}
	load := &ir.FieldAccess{Receiver: "obj", Field: field, ResultTemp: "t0"}
	if got, want := renderFieldAccess(load), "t0 = obj->count;"; got != want {
		t.Errorf("renderFieldAccess(load) = %q, want %q", got, want)
	}
	store := &ir.FieldAccess{Receiver: "obj", Field: field, Store: true, Value: "5"}
	if got, want := renderFieldAccess(store), "obj->count = 5;"; got != want {
		t.Errorf("renderFieldAccess(store) = %q, want %q", got, want)
	}
}

func TestRenderCast(t *testing.T) {
	target := &ir.Type{CppName: "MyApp__Widget"}
	safe := &ir.Cast{Value: "obj", Target: target, Safe: true, ResultTemp: "t0"}
	want := "t0 = rtg::isinst<MyApp__Widget>(obj, &MyApp__Widget_TypeInfo);"
	if got := renderCast(safe); got != want {
		t.Errorf("renderCast(safe) = %q, want %q", got, want)
	}

	unsafe := &ir.Cast{Value: "obj", Target: target, Safe: false, ResultTemp: "t0"}
	want = "t0 = rtg::castclass<MyApp__Widget>(obj, &MyApp__Widget_TypeInfo);"
	if got := renderCast(unsafe); got != want {
		t.Errorf("renderCast(unsafe) = %q, want %q", got, want)
	}
}

func TestRenderSwitch(t *testing.T) {
	v := &ir.Switch{Value: "x", Targets: []int{1, 2}, Default: 3}
	got := renderSwitch(v)
	if !strings.Contains(got, "case 0: goto BB_1;") || !strings.Contains(got, "case 1: goto BB_2;") || !strings.Contains(got, "default: goto BB_3;") {
		t.Errorf("renderSwitch produced unexpected text: %q", got)
	}
}

func TestRenderParamList(t *testing.T) {
	ty := &ir.Type{CppName: "MyApp__Program"}
	m := &ir.Method{
		DeclaringType: ty,
		IsStatic:      false,
		Params: []ir.Param{
			{Name: "x", CppType: "int32_t"},
			{Name: "y", CppType: "int32_t"},
		},
	}
	got := renderParamList(m)
	want := "MyApp__Program* __this, int32_t x, int32_t y"
	if got != want {
		t.Errorf("renderParamList = %q, want %q", got, want)
	}
}

func TestRenderParamListStatic(t *testing.T) {
	m := &ir.Method{IsStatic: true}
	got := renderParamList(m)
	if got != "" {
		t.Errorf("renderParamList(static, no params) = %q, want empty string", got)
	}
}

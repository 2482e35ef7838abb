package reachability

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/axiomates/cli2cpp/internal/assembly"
)

// sortedTypeNames returns r's reachable type full names in sorted order, for
// order-independent structural comparison.
func sortedTypeNames(r *Result) []string {
	names := make([]string, len(r.Types))
	for i, t := range r.Types {
		names[i] = t.FullName
	}
	sort.Strings(names)
	return names
}

func hasType(r *Result, fullName string) bool {
	for _, t := range r.Types {
		if t.FullName == fullName {
			return true
		}
	}
	return false
}

func hasMethod(r *Result, owner, name string) bool {
	for _, m := range r.Methods {
		if m.Owner.FullName == owner && m.Name == name {
			return true
		}
	}
	return false
}

func TestAnalyzeEntryPointOnly(t *testing.T) {
	asm := assembly.NewAssembly("MyApp", "/root/MyApp.dll")
	program := &assembly.TypeDef{SimpleName: "Program", FullName: "MyApp.Program"}
	main := &assembly.MethodDef{
		Owner: program,
		Name:  "Main",
		Body:  &assembly.MethodBody{},
	}
	program.Methods = append(program.Methods, main)
	asm.AddType(program)

	unused := &assembly.TypeDef{SimpleName: "Unused", FullName: "MyApp.Unused"}
	asm.AddType(unused)

	set := assembly.NewAssemblySet(assembly.NewResolver(nil))
	if err := set.Load(asm); err != nil {
		t.Fatal(err)
	}

	res, err := Analyze(set, "MyApp.Program", "Main")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if !hasType(res, "MyApp.Program") {
		t.Error("expected MyApp.Program to be reachable")
	}
	if hasType(res, "MyApp.Unused") {
		t.Error("expected MyApp.Unused to be unreachable")
	}
}

func TestAnalyzeFollowsFieldAndCall(t *testing.T) {
	asm := assembly.NewAssembly("MyApp", "/root/MyApp.dll")

	widget := &assembly.TypeDef{SimpleName: "Widget", FullName: "MyApp.Widget"}
	run := &assembly.MethodDef{Owner: widget, Name: "Run", Body: &assembly.MethodBody{}}
	widget.Methods = append(widget.Methods, run)
	asm.AddType(widget)

	holder := &assembly.TypeDef{SimpleName: "Holder", FullName: "MyApp.Holder"}
	field := &assembly.FieldDef{Owner: holder, Name: "W", Type: &assembly.TypeRef{FullName: "MyApp.Widget"}}
	holder.Fields = append(holder.Fields, field)
	asm.AddType(holder)

	program := &assembly.TypeDef{SimpleName: "Program", FullName: "MyApp.Program"}
	main := &assembly.MethodDef{
		Owner: program,
		Name:  "Main",
		Body: &assembly.MethodBody{
			Code: []assembly.Instruction{
				{Op: assembly.OpLdsfld, FieldArg: field},
				{Op: assembly.OpCall, MethodArg: run},
			},
		},
	}
	program.Methods = append(program.Methods, main)
	asm.AddType(program)

	set := assembly.NewAssemblySet(assembly.NewResolver(nil))
	if err := set.Load(asm); err != nil {
		t.Fatal(err)
	}

	res, err := Analyze(set, "MyApp.Program", "Main")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if !hasType(res, "MyApp.Holder") {
		t.Error("expected MyApp.Holder to be reachable via a field reference")
	}
	if !hasMethod(res, "MyApp.Widget", "Run") {
		t.Error("expected MyApp.Widget::Run to be reachable via a direct call")
	}
}

func TestAnalyzeVirtualDispatchPullsInstantiatedOverride(t *testing.T) {
	asm := assembly.NewAssembly("MyApp", "/root/MyApp.dll")

	base := &assembly.TypeDef{SimpleName: "Shape", FullName: "MyApp.Shape"}
	baseDraw := &assembly.MethodDef{
		Owner:     base,
		Name:      "Draw",
		Signature: assembly.Signature{IsVirtual: true},
		Body:      &assembly.MethodBody{},
	}
	base.Methods = append(base.Methods, baseDraw)
	asm.AddType(base)

	circle := &assembly.TypeDef{SimpleName: "Circle", FullName: "MyApp.Circle"}
	circle.BaseType = &assembly.TypeRef{FullName: "MyApp.Shape"}
	circleDraw := &assembly.MethodDef{
		Owner:     circle,
		Name:      "Draw",
		Signature: assembly.Signature{IsVirtual: true},
		Body:      &assembly.MethodBody{},
	}
	circleCtor := &assembly.MethodDef{
		Owner:     circle,
		Name:      ".ctor",
		Signature: assembly.Signature{IsConstructor: true},
		Body:      &assembly.MethodBody{},
	}
	circle.Methods = append(circle.Methods, circleDraw, circleCtor)
	asm.AddType(circle)

	program := &assembly.TypeDef{SimpleName: "Program", FullName: "MyApp.Program"}
	main := &assembly.MethodDef{
		Owner: program,
		Name:  "Main",
		Body: &assembly.MethodBody{
			Code: []assembly.Instruction{
				{Op: assembly.OpNewobj, MethodArg: circleCtor},
				{Op: assembly.OpCallvirt, MethodArg: baseDraw},
			},
		},
	}
	program.Methods = append(program.Methods, main)
	asm.AddType(program)

	set := assembly.NewAssemblySet(assembly.NewResolver(nil))
	if err := set.Load(asm); err != nil {
		t.Fatal(err)
	}

	res, err := Analyze(set, "MyApp.Program", "Main")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if !hasMethod(res, "MyApp.Circle", "Draw") {
		t.Error("expected Circle's override of Draw to be pulled in once Circle is instantiated and Shape.Draw is called virtually")
	}
}

func TestAnalyzeSkipsIntrinsicType(t *testing.T) {
	asm := assembly.NewAssembly("MyApp", "/root/MyApp.dll")
	program := &assembly.TypeDef{SimpleName: "Program", FullName: "MyApp.Program"}
	main := &assembly.MethodDef{
		Owner: program,
		Name:  "Main",
		Body: &assembly.MethodBody{
			Code: []assembly.Instruction{
				{Op: assembly.OpCallIntrinsic, Intrinsic: "rtg::console::write_line_empty"},
			},
		},
	}
	program.Methods = append(program.Methods, main)
	asm.AddType(program)

	set := assembly.NewAssemblySet(assembly.NewResolver(nil))
	if err := set.Load(asm); err != nil {
		t.Fatal(err)
	}

	res, err := Analyze(set, "MyApp.Program", "Main")
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}
	if hasType(res, "System.Console") {
		t.Error("intrinsic BCL types should never appear in the reachable set")
	}
}

func TestAnalyzeEntryNotFound(t *testing.T) {
	asm := assembly.NewAssembly("MyApp", "/root/MyApp.dll")
	set := assembly.NewAssemblySet(assembly.NewResolver(nil))
	if err := set.Load(asm); err != nil {
		t.Fatal(err)
	}

	if _, err := Analyze(set, "MyApp.Missing", "Main"); err == nil {
		t.Error("expected an error for a missing entry type")
	}
	asm.AddType(&assembly.TypeDef{SimpleName: "Program", FullName: "MyApp.Program"})
	if _, err := Analyze(set, "MyApp.Program", "Missing"); err == nil {
		t.Error("expected an error for a missing entry method")
	}
}

func TestAnalyzeLibrarySeedsPublicSurface(t *testing.T) {
	asm := assembly.NewAssembly("MyLib", "/root/MyLib.dll")

	widget := &assembly.TypeDef{SimpleName: "Widget", FullName: "MyLib.Widget", IsPublic: true}
	doThing := &assembly.MethodDef{Owner: widget, Name: "DoThing", IsPublic: true, Body: &assembly.MethodBody{}}
	helper := &assembly.MethodDef{Owner: widget, Name: "helper", IsPublic: false, Body: &assembly.MethodBody{}}
	widget.Methods = append(widget.Methods, doThing, helper)
	asm.AddType(widget)

	internalType := &assembly.TypeDef{SimpleName: "Internals", FullName: "MyLib.Internals", IsPublic: false}
	asm.AddType(internalType)

	closure := &assembly.TypeDef{SimpleName: "<>c__DisplayClass0", FullName: "MyLib.<>c__DisplayClass0", IsPublic: true}
	asm.AddType(closure)

	set := assembly.NewAssemblySet(assembly.NewResolver(nil))
	if err := set.Load(asm); err != nil {
		t.Fatal(err)
	}

	res, err := AnalyzeLibrary(set, asm)
	if err != nil {
		t.Fatalf("AnalyzeLibrary returned error: %v", err)
	}
	if !hasType(res, "MyLib.Widget") {
		t.Error("expected the public type Widget to be seeded")
	}
	if !hasMethod(res, "MyLib.Widget", "DoThing") {
		t.Error("expected the public method DoThing to be seeded")
	}
	if hasMethod(res, "MyLib.Widget", "helper") {
		t.Error("did not expect the non-public method helper to be seeded")
	}
	if hasType(res, "MyLib.Internals") {
		t.Error("did not expect the non-public type Internals to be seeded")
	}
	if hasType(res, "MyLib.<>c__DisplayClass0") {
		t.Error("did not expect a compiler-generated type to be seeded even though it is public")
	}
}

func TestAnalyzeLibrarySeedsPublicSurfaceStructural(t *testing.T) {
	asm := assembly.NewAssembly("MyLib", "/root/MyLib.dll")

	widget := &assembly.TypeDef{SimpleName: "Widget", FullName: "MyLib.Widget", IsPublic: true}
	doThing := &assembly.MethodDef{Owner: widget, Name: "DoThing", IsPublic: true, Body: &assembly.MethodBody{}}
	widget.Methods = append(widget.Methods, doThing)
	asm.AddType(widget)

	gadget := &assembly.TypeDef{SimpleName: "Gadget", FullName: "MyLib.Gadget", IsPublic: true}
	asm.AddType(gadget)

	internalType := &assembly.TypeDef{SimpleName: "Internals", FullName: "MyLib.Internals", IsPublic: false}
	asm.AddType(internalType)

	set := assembly.NewAssemblySet(assembly.NewResolver(nil))
	if err := set.Load(asm); err != nil {
		t.Fatal(err)
	}

	res, err := AnalyzeLibrary(set, asm)
	if err != nil {
		t.Fatalf("AnalyzeLibrary returned error: %v", err)
	}

	want := []string{"MyLib.Gadget", "MyLib.Widget"}
	if diff := cmp.Diff(want, sortedTypeNames(res)); diff != "" {
		t.Errorf("reachable type set mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzeLibraryEmptySurfaceSucceeds(t *testing.T) {
	asm := assembly.NewAssembly("MyLib", "/root/MyLib.dll")
	internalType := &assembly.TypeDef{SimpleName: "Internals", FullName: "MyLib.Internals", IsPublic: false}
	asm.AddType(internalType)

	set := assembly.NewAssemblySet(assembly.NewResolver(nil))
	if err := set.Load(asm); err != nil {
		t.Fatal(err)
	}

	res, err := AnalyzeLibrary(set, asm)
	if err != nil {
		t.Fatalf("AnalyzeLibrary returned error: %v", err)
	}
	if len(res.Types) != 0 || len(res.Methods) != 0 {
		t.Errorf("expected an empty reachable set for a library with no public surface, got %d types, %d methods", len(res.Types), len(res.Methods))
	}
}

func TestIsCompilerGeneratedType(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"<>c__DisplayClass0", true},
		{"<Main>d__0", true},
		{"Widget", false},
		{"", false},
	}
	for _, tt := range tests {
		td := &assembly.TypeDef{SimpleName: tt.name}
		if got := isCompilerGeneratedType(td); got != tt.want {
			t.Errorf("isCompilerGeneratedType(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

package assembly

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		want Kind
	}{
		{"mscorlib", BCL},
		{"System.Private.CoreLib", BCL},
		{"MyApp", User},
		{"MyApp.Widgets", User},
	}
	for _, tt := range tests {
		if got := Classify(tt.name); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAssemblySetLoadTransitiveClosure(t *testing.T) {
	entry := NewAssembly("MyApp", "/root/MyApp.dll")
	program := &TypeDef{SimpleName: "Program", FullName: "MyApp.Program"}
	program.BaseType = &TypeRef{AssemblyName: "Helpers", FullName: "Helpers.Base"}
	entry.AddType(program)

	helpers := NewAssembly("Helpers", "/root/Helpers.dll")
	base := &TypeDef{SimpleName: "Base", FullName: "Helpers.Base"}
	base.Interfaces = []*TypeRef{{AssemblyName: "Contracts", FullName: "Contracts.IThing"}}
	helpers.AddType(base)

	contracts := NewAssembly("Contracts", "/root/Contracts.dll")
	contracts.AddType(&TypeDef{SimpleName: "IThing", FullName: "Contracts.IThing"})

	r := NewResolver(func(path string) (*Assembly, error) { panic("load should not be called directly in this test") })
	r.Register(entry)
	r.Register(helpers)
	r.Register(contracts)

	set := NewAssemblySet(r)
	if err := set.Load(entry); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if len(set.Order) != 3 {
		t.Fatalf("Order has %d assemblies, want 3; got %v", len(set.Order), namesOf(set.Order))
	}
	if set.Order[0] != entry {
		t.Errorf("Order[0] = %v, want entry assembly first", set.Order[0].Name)
	}
	if _, ok := set.Get("Helpers"); !ok {
		t.Error("expected Helpers to be loaded transitively via Program's base type")
	}
	if _, ok := set.Get("Contracts"); !ok {
		t.Error("expected Contracts to be loaded transitively via Base's interface")
	}

	all := set.AllLoadedTypes()
	if len(all) != 3 {
		t.Errorf("AllLoadedTypes() returned %d types, want 3", len(all))
	}
}

func TestAssemblySetLoadMissingReference(t *testing.T) {
	entry := NewAssembly("MyApp", "/root/MyApp.dll")
	program := &TypeDef{SimpleName: "Program", FullName: "MyApp.Program"}
	program.BaseType = &TypeRef{AssemblyName: "Missing", FullName: "Missing.Base"}
	entry.AddType(program)

	r := NewResolver(func(path string) (*Assembly, error) {
		return nil, errNotFound
	})
	set := NewAssemblySet(r)

	if err := set.Load(entry); err == nil {
		t.Fatal("expected Load to fail when a referenced assembly cannot be resolved")
	}
}

func namesOf(as []*Assembly) []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.Name
	}
	return out
}

var errNotFound = &ResolutionError{Name: "Missing"}

package codegen

import (
	"fmt"
	"strings"

	"github.com/axiomates/cli2cpp/internal/ir"
)

// renderSource implements §4.5's translation-unit rules: include, optional
// debug marker, type-info constants, statics storage, cctor guards, method
// bodies (supplied pre-rendered by the concurrent pass), string-init
// function.
func renderSource(mod *ir.Module, opts Options, bodies [][]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#include \"%s.h\"\n\n", opts.ModuleName)
	if opts.Debug {
		b.WriteString("// DEBUG BUILD\n\n")
	}

	for _, t := range mod.Types {
		if t.RuntimeProvided {
			continue
		}
		renderTypeInfo(&b, t)
	}

	for _, t := range mod.Types {
		if t.RuntimeProvided || len(t.StaticFields) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s_Statics %s_statics = {};\n", t.CppName, t.CppName)
	}
	b.WriteString("\n")

	for _, t := range mod.Types {
		if t.RuntimeProvided || !t.HasCctor {
			continue
		}
		renderCctorGuard(&b, t)
	}

	for i, t := range mod.Types {
		if t.RuntimeProvided {
			continue
		}
		for j := range t.Methods {
			b.WriteString(bodies[i][j])
			b.WriteString("\n")
		}
	}

	renderArrayInitPool(&b, mod)
	renderPrimitiveInfoRegistrations(&b, mod)

	if pairs := mod.Strings.Ordered(); len(pairs) > 0 {
		b.WriteString("void __init_string_literals() {\n")
		for _, p := range pairs {
			fmt.Fprintf(&b, "  %s = rtg::string_literal(%q);\n", p.Symbol, p.Literal)
		}
		b.WriteString("}\n")
	}

	return b.String()
}

// renderArrayInitPool emits the raw byte blobs newarr-with-initializer sites
// reference, in insertion order (§3's "array-init data pool").
func renderArrayInitPool(b *strings.Builder, mod *ir.Module) {
	for _, sym := range mod.ArrayInitOrder() {
		data := mod.ArrayInit[sym]
		fmt.Fprintf(b, "static const uint8_t %s[%d] = {", sym, len(data))
		for i, byteVal := range data {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(b, "%d", byteVal)
		}
		b.WriteString("};\n")
	}
}

// renderPrimitiveInfoRegistrations emits one comment line naming each
// primitive in §3's "primitive type-info registration set"; no TypeInfo
// declaration is emitted for these primitives. Sorted since the set carries no meaningful
// insertion order of its own (a plain membership set, not a sequence).
func renderPrimitiveInfoRegistrations(b *strings.Builder, mod *ir.Module) {
	for _, fullName := range sortedKeys(mod.PrimitiveInfo) {
		fmt.Fprintf(b, "// primitive type-info required: %s\n", fullName)
	}
}

// renderTypeInfo writes the type-info constant §4.5 rule 3 describes: name,
// full name, instance size, vtable (if any), interface-implementation table
// (if any), custom attributes.
func renderTypeInfo(b *strings.Builder, t *ir.Type) {
	vtableSym := "nullptr"
	if len(t.VTable) > 0 {
		fmt.Fprintf(b, "static void* %s_vtable[] = {\n", t.CppName)
		for _, slot := range t.VTable {
			if slot.Method == nil {
				b.WriteString("  nullptr,\n")
				continue
			}
			fmt.Fprintf(b, "  (void*)&%s, // %s\n", slot.Method.CppName, slot.MethodName)
		}
		b.WriteString("};\n")
		vtableSym = t.CppName + "_vtable"
	}

	ifaceSym := "nullptr"
	if len(t.InterfaceImpls) > 0 {
		for idx, impl := range t.InterfaceImpls {
			fmt.Fprintf(b, "static void* %s_iface_%d[] = {\n", t.CppName, idx)
			for _, slot := range impl.Slots {
				if slot.Method == nil {
					b.WriteString("  nullptr,\n")
					continue
				}
				fmt.Fprintf(b, "  (void*)&%s, // %s\n", slot.Method.CppName, slot.MethodName)
			}
			b.WriteString("};\n")
		}
		fmt.Fprintf(b, "static rtg::InterfaceImpl %s_ifaces[] = {\n", t.CppName)
		for idx, impl := range t.InterfaceImpls {
			fmt.Fprintf(b, "  { &%s_TypeInfo, %s_iface_%d },\n", impl.Interface.CppName, t.CppName, idx)
		}
		b.WriteString("};\n")
		ifaceSym = t.CppName + "_ifaces"
	}

	baseSym := "nullptr"
	if t.Base != nil {
		baseSym = "&" + t.Base.CppName + "_TypeInfo"
	}

	fmt.Fprintf(b, "rtg::TypeInfo %s_TypeInfo = {\n", t.CppName)
	fmt.Fprintf(b, "  .name = %q,\n", t.ShortName)
	fmt.Fprintf(b, "  .full_name = %q,\n", t.FullName)
	fmt.Fprintf(b, "  .instance_size = %d,\n", t.InstanceSize)
	fmt.Fprintf(b, "  .base = %s,\n", baseSym)
	fmt.Fprintf(b, "  .vtable = %s,\n", vtableSym)
	fmt.Fprintf(b, "  .vtable_count = %d,\n", len(t.VTable))
	fmt.Fprintf(b, "  .interfaces = %s,\n", ifaceSym)
	fmt.Fprintf(b, "  .interface_count = %d,\n", len(t.InterfaceImpls))
	fmt.Fprintf(b, "  .attribute_count = %d,\n", len(t.Attributes))
	b.WriteString("};\n\n")
}

func renderCctorGuard(b *strings.Builder, t *ir.Type) {
	cctor := findCctor(t)
	fmt.Fprintf(b, "static bool %s_cctor_ran = false;\n", t.CppName)
	fmt.Fprintf(b, "void %s_cctor_guard() {\n", t.CppName)
	fmt.Fprintf(b, "  if (%s_cctor_ran) return;\n", t.CppName)
	fmt.Fprintf(b, "  %s_cctor_ran = true;\n", t.CppName)
	if cctor != nil {
		fmt.Fprintf(b, "  %s();\n", cctor.CppName)
	}
	b.WriteString("}\n\n")
}

func findCctor(t *ir.Type) *ir.Method {
	for _, m := range t.Methods {
		if m.SourceName == ".cctor" {
			return m
		}
	}
	return nil
}

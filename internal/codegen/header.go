package codegen

import (
	"fmt"
	"strings"

	"github.com/axiomates/cli2cpp/internal/ir"
)

// renderHeader implements §4.5's header-file rules: umbrella include,
// forward declarations, type-info externs, struct layouts, statics
// companions, method declarations, string-init declaration.
func renderHeader(mod *ir.Module, opts Options) string {
	guard := headerGuard(opts.ModuleName)
	var b strings.Builder
	fmt.Fprintf(&b, "#ifndef %s\n#define %s\n\n", guard, guard)
	b.WriteString("#include \"rtg/runtime.h\"\n\n")

	for _, t := range mod.Types {
		fmt.Fprintf(&b, "struct %s;\n", t.CppName)
	}
	b.WriteString("\n")

	for _, t := range mod.Types {
		if t.RuntimeProvided {
			continue
		}
		fmt.Fprintf(&b, "extern rtg::TypeInfo %s_TypeInfo;\n", t.CppName)
	}
	b.WriteString("\n")

	for _, t := range mod.Types {
		if t.RuntimeProvided {
			continue
		}
		renderStructLayout(&b, t)
		if len(t.StaticFields) > 0 {
			renderStaticsStruct(&b, t)
		}
	}

	for _, t := range mod.Types {
		if t.RuntimeProvided {
			continue
		}
		for _, m := range t.Methods {
			fmt.Fprintf(&b, "%s %s(%s);\n", m.ReturnCpp, m.CppName, renderParamList(m))
		}
	}

	if len(mod.Strings.Ordered()) > 0 {
		b.WriteString("\nvoid __init_string_literals();\n")
	}

	fmt.Fprintf(&b, "\n#endif // %s\n", guard)
	return b.String()
}

func headerGuard(moduleName string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(moduleName) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	b.WriteString("_H")
	return b.String()
}

// renderStructLayout writes the object-header-plus-fields layout for
// reference types, or the plain/enum-alias layout for value types, per
// §4.5 rule 4.
func renderStructLayout(b *strings.Builder, t *ir.Type) {
	if t.IsEnum {
		fmt.Fprintf(b, "using %s = %s;\n\n", t.CppName, t.EnumUnderlying)
		return
	}
	fmt.Fprintf(b, "struct %s {\n", t.CppName)
	if !t.IsValueType {
		b.WriteString("  rtg::TypeInfo* type_info;\n")
		b.WriteString("  rtg::SyncBlock sync_block;\n")
	}
	for _, f := range t.InstanceFields {
		fmt.Fprintf(b, "  %s %s;\n", f.CppType, f.CppName)
	}
	b.WriteString("};\n\n")
}

func renderStaticsStruct(b *strings.Builder, t *ir.Type) {
	fmt.Fprintf(b, "struct %s_Statics {\n", t.CppName)
	for _, f := range t.StaticFields {
		fmt.Fprintf(b, "  %s %s;\n", f.CppType, f.CppName)
	}
	fmt.Fprintf(b, "};\nextern %s_Statics %s_statics;\n\n", t.CppName, t.CppName)
}

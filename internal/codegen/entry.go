package codegen

import (
	"fmt"
	"strings"

	"github.com/axiomates/cli2cpp/internal/ir"
)

// renderEntry implements §4.5's entry-point source rules: runtime init,
// string-literal init (if any), entry-method call, runtime shutdown.
// Called only when mod.EntryPoint is non-nil.
func renderEntry(mod *ir.Module, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#include \"%s.h\"\n\n", opts.ModuleName)
	b.WriteString("int main(int argc, char** argv) {\n")
	b.WriteString("  runtime::init(argc, argv);\n")
	if len(mod.Strings.Ordered()) > 0 {
		b.WriteString("  __init_string_literals();\n")
	}
	entry := mod.EntryPoint
	if entry.IsStatic && len(entry.Params) == 0 {
		fmt.Fprintf(&b, "  %s();\n", entry.CppName)
	} else {
		fmt.Fprintf(&b, "  %s(runtime::make_args(argc, argv));\n", entry.CppName)
	}
	b.WriteString("  runtime::shutdown();\n")
	b.WriteString("  return 0;\n")
	b.WriteString("}\n")
	return b.String()
}

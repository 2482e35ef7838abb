package codegen

import (
	"fmt"
	"strings"

	"github.com/axiomates/cli2cpp/internal/ir"
)

// renderBuild implements §4.5's build-description rules: a runtime package
// discovery call, then either an executable target (entry point present) or
// a static library target, listing the generated sources and linking the
// runtime.
func renderBuild(mod *ir.Module, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cmake_minimum_required(VERSION 3.20)\nproject(%s CXX)\n\n", opts.ModuleName)
	b.WriteString("set(CMAKE_CXX_STANDARD 17)\nset(CMAKE_CXX_STANDARD_REQUIRED ON)\n\n")

	if opts.RuntimeDir != "" {
		fmt.Fprintf(&b, "list(APPEND CMAKE_PREFIX_PATH %q)\n", opts.RuntimeDir)
	}
	b.WriteString("find_package(rtgruntime REQUIRED)\n\n")

	sources := []string{opts.ModuleName + ".cpp"}
	if mod.EntryPoint != nil {
		sources = append(sources, "main.cpp")
	}
	sourceList := strings.Join(sources, " ")

	if mod.EntryPoint != nil {
		fmt.Fprintf(&b, "add_executable(%s %s)\n", opts.ModuleName, sourceList)
	} else {
		fmt.Fprintf(&b, "add_library(%s STATIC %s)\n", opts.ModuleName, sourceList)
	}
	fmt.Fprintf(&b, "target_link_libraries(%s PRIVATE rtgruntime::rtgruntime)\n", opts.ModuleName)
	return b.String()
}

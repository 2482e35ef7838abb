// Command cli2cpp is the ahead-of-time CLI-bytecode-to-C++ compiler's
// command-line surface (core specification §6, AMBIENT per SPEC_FULL.md
// §6.1): the non-goal "CLI argument parsing... external collaborator" made
// concrete with github.com/spf13/cobra, grounded on saferwall-pe's
// cmd/pedumper.go (a root command plus task subcommands, flags read off the
// invoking *cobra.Command rather than threaded through globals).
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/axiomates/cli2cpp/internal/assembly"
	"github.com/axiomates/cli2cpp/internal/cilbin"
	"github.com/axiomates/cli2cpp/internal/codegen"
	"github.com/axiomates/cli2cpp/internal/diag"
	"github.com/axiomates/cli2cpp/internal/ir"
	"github.com/axiomates/cli2cpp/internal/namemap"
	"github.com/axiomates/cli2cpp/internal/reachability"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cli2cpp",
		Short: "Ahead-of-time CLI bytecode to C++ compiler",
		Long:  "Lowers a managed CLI (CIL) bytecode assembly into C++ source plus a companion build description.",
	}
	root.AddCommand(newBuildCmd(), newIRCmd(), newReachCmd())
	return root
}

// pipeline holds everything shared across the build/ir/reach subcommands:
// resolving the assembly graph and running reachability is common to all
// three; only what each does with the result differs.
type pipeline struct {
	set    *assembly.AssemblySet
	entry  *assembly.Assembly
	result *reachability.Result
	nm     *namemap.Mapper
}

// buildIR runs the IR Builder over p, passing an empty entry type/method
// name in library mode (§2.1/§8: "library vs executable mode is decided
// solely by presence of an entry point").
func (p *pipeline) buildIR(debugSymbols bool) (*ir.Module, error) {
	if p.entry.Entry == nil {
		return ir.Build(p.result, p.nm, "", "", debugSymbols)
	}
	return ir.Build(p.result, p.nm, p.entry.Entry.TypeName, p.entry.Entry.MethodName, debugSymbols)
}

func runPipeline(rootPath, runtimeDir, depsPath string, logger *diag.Logger) (*pipeline, error) {
	entryAsm, err := cilbin.Load(rootPath)
	if err != nil {
		return nil, diag.New(diag.Metadata, rootPath, err.Error())
	}

	resolver := assembly.NewResolver(cilbin.Load)
	resolver.AddSearchDirectory(filepath.Dir(rootPath))
	if runtimeDir == "" {
		// No override given: probe the platform's default install layout,
		// picking the highest installed shared-runtime version (§6). A
		// miss here just means the resolver has one fewer search
		// directory; BCL references still resolve via the deps manifest
		// or the root's own output directory.
		if probed, ok := assembly.ProbeRuntimeDirectory(defaultDotnetRoot(), "Microsoft.NETCore.App", ""); ok {
			runtimeDir = probed
		}
	}
	if runtimeDir != "" {
		resolver.AddSearchDirectory(runtimeDir)
	}
	if deps, err := assembly.LoadDependencyManifest(depsPath); err == nil {
		for _, d := range deps {
			for _, dll := range d.RuntimeDllPaths {
				resolver.AddSearchDirectory(filepath.Dir(dll))
			}
		}
	} else if depsPath != "" {
		logger.Warnf("skipping dependency manifest %s: %v", depsPath, err)
	}
	resolver.Register(entryAsm)

	set := assembly.NewAssemblySet(resolver)
	if err := set.Load(entryAsm); err != nil {
		return nil, err
	}
	logger.Debugf("loaded %d assemblies", len(set.Order))

	var result *reachability.Result
	if entryAsm.Entry != nil {
		result, err = reachability.Analyze(set, entryAsm.Entry.TypeName, entryAsm.Entry.MethodName)
	} else {
		logger.Debugf("%s has no entry point; compiling in library mode", rootPath)
		result, err = reachability.AnalyzeLibrary(set, entryAsm)
	}
	if err != nil {
		return nil, err
	}
	logger.Debugf("reachable: %d types, %d methods", len(result.Types), len(result.Methods))

	// The Name Mapper's value-type registry is process-wide state (§5); a
	// fresh Mapper per compile is this process's equivalent of the spec's
	// "explicit clear_value_types at the top of each compile" rule.
	nm := namemap.New()

	return &pipeline{set: set, entry: entryAsm, result: result, nm: nm}, nil
}

func newBuildCmd() *cobra.Command {
	var (
		outDir     string
		debug      bool
		noSymbols  bool
		runtimeDir string
		depsPath   string
	)
	cmd := &cobra.Command{
		Use:   "build <root.dll>",
		Short: "Compile an assembly to C++ and a build description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := diag.NewLogger(debug)
			p, err := runPipeline(args[0], runtimeDir, depsPath, logger)
			if err != nil {
				return err
			}

			// §4.1's read_debug_symbols contract: attempt to associate debug
			// info unless the caller opted out with --no-symbols. No
			// portable-PDB reader exists yet, so "attempting" only ever
			// succeeds at the bytecode-offset granularity lowerBody can
			// derive on its own; there is no failure mode here to retry
			// without symbols from, since nothing is read from disk.
			mod, err := p.buildIR(!noSymbols)
			if err != nil {
				return err
			}

			moduleName := moduleNameFor(args[0])
			artifacts, err := codegen.Generate(mod, codegen.Options{
				ModuleName: moduleName,
				Debug:      debug,
				RuntimeDir: runtimeDir,
			})
			if err != nil {
				return err
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			if err := writeFile(outDir, moduleName+".h", artifacts.Header); err != nil {
				return err
			}
			if err := writeFile(outDir, moduleName+".cpp", artifacts.Source); err != nil {
				return err
			}
			if artifacts.HasEntry {
				if err := writeFile(outDir, "main.cpp", artifacts.Entry); err != nil {
					return err
				}
			}
			if err := writeFile(outDir, "CMakeLists.txt", artifacts.Build); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s, %s.cpp, CMakeLists.txt%s to %s\n",
				moduleName+".h", moduleName, entrySuffix(artifacts.HasEntry), outDir)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", "out", "output directory for generated artifacts")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable #line directives and debug tracing")
	cmd.Flags().BoolVar(&noSymbols, "no-symbols", false, "skip reading debug symbols")
	cmd.Flags().StringVar(&runtimeDir, "runtime-dir", "", "managed runtime directory override")
	cmd.Flags().StringVar(&depsPath, "deps", "", "path to a dependency manifest (deps.json)")
	return cmd
}

// defaultDotnetRoot is the conventional managed-runtime install root on
// Linux hosts, used only when --runtime-dir is not given.
func defaultDotnetRoot() string {
	if env := os.Getenv("DOTNET_ROOT"); env != "" {
		return env
	}
	return "/usr/share/dotnet"
}

func entrySuffix(hasEntry bool) string {
	if hasEntry {
		return ", main.cpp"
	}
	return ""
}

func writeFile(dir, name, content string) error {
	return os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644)
}

func moduleNameFor(rootPath string) string {
	base := filepath.Base(rootPath)
	return base[:len(base)-len(filepath.Ext(base))]
}

func newIRCmd() *cobra.Command {
	var runtimeDir, depsPath string
	cmd := &cobra.Command{
		Use:   "ir <root.dll>",
		Short: "Print a deterministic textual dump of the constructed IR module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := diag.NewLogger(false)
			p, err := runPipeline(args[0], runtimeDir, depsPath, logger)
			if err != nil {
				return err
			}
			mod, err := p.buildIR(false)
			if err != nil {
				return err
			}
			dumpModule(cmd.OutOrStdout(), mod)
			return nil
		},
	}
	cmd.Flags().StringVar(&runtimeDir, "runtime-dir", "", "managed runtime directory override")
	cmd.Flags().StringVar(&depsPath, "deps", "", "path to a dependency manifest (deps.json)")
	return cmd
}

func newReachCmd() *cobra.Command {
	var runtimeDir, depsPath string
	cmd := &cobra.Command{
		Use:   "reach <root.dll>",
		Short: "Print the reachable type and method sets in deterministic order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := diag.NewLogger(false)
			p, err := runPipeline(args[0], runtimeDir, depsPath, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "types (%d):\n", len(p.result.Types))
			for _, t := range p.result.Types {
				fmt.Fprintf(out, "  %s\n", t.FullName)
			}
			fmt.Fprintf(out, "methods (%d):\n", len(p.result.Methods))
			for _, m := range p.result.Methods {
				fmt.Fprintf(out, "  %s\n", m.FullName())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&runtimeDir, "runtime-dir", "", "managed runtime directory override")
	cmd.Flags().StringVar(&depsPath, "deps", "", "path to a dependency manifest (deps.json)")
	return cmd
}

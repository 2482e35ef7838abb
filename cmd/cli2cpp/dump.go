package main

import (
	"fmt"
	"io"

	"github.com/axiomates/cli2cpp/internal/ir"
)

// dumpModule prints a deterministic textual form of mod: one section per
// type listing its vtable and interface tables, then one instruction per
// line for every method's basic blocks. This is the `ir` subcommand's
// debugging surface, mirrored on tinyrange-rtg's own `-T ir` textual IR
// backend (backend_ir.go) — a plain instruction-per-line dump meant for a
// human or a diff, not for compilation.
func dumpModule(out io.Writer, mod *ir.Module) {
	for _, t := range mod.Types {
		fmt.Fprintf(out, "type %s (%s)\n", t.CppName, t.FullName)
		if t.Base != nil {
			fmt.Fprintf(out, "  base: %s\n", t.Base.CppName)
		}
		for _, slot := range t.VTable {
			name := "<unresolved>"
			if slot.Method != nil {
				name = slot.Method.CppName
			}
			fmt.Fprintf(out, "  vtable[%s] -> %s\n", slot.MethodName, name)
		}
		for _, impl := range t.InterfaceImpls {
			fmt.Fprintf(out, "  implements %s\n", impl.Interface.CppName)
			for _, slot := range impl.Slots {
				name := "<unresolved>"
				if slot.Method != nil {
					name = slot.Method.CppName
				}
				fmt.Fprintf(out, "    %s -> %s\n", slot.MethodName, name)
			}
		}
		for _, m := range t.Methods {
			dumpMethod(out, m)
		}
	}
	if pairs := mod.Strings.Ordered(); len(pairs) > 0 {
		fmt.Fprintln(out, "strings:")
		for _, p := range pairs {
			fmt.Fprintf(out, "  %s = %q\n", p.Symbol, p.Literal)
		}
	}
}

func dumpMethod(out io.Writer, m *ir.Method) {
	fmt.Fprintf(out, "  method %s\n", m.CppName)
	for _, block := range m.Blocks {
		fmt.Fprintf(out, "    BB_%d:\n", block.ID)
		for _, inst := range block.Insts {
			fmt.Fprintf(out, "      %s\n", dumpInst(inst))
		}
	}
}

// dumpInst renders one instruction's descriptive form, keyed by concrete
// type rather than by Target/Op strings alone, so the dump stays readable
// even for instructions the generator lowers into multi-line C++.
func dumpInst(inst ir.Instruction) string {
	switch v := inst.(type) {
	case *ir.Comment:
		return "comment " + v.Text
	case *ir.DeclareLocal:
		return fmt.Sprintf("declare %s: %s = %s", v.Name, v.CppType, v.Init)
	case *ir.Assign:
		return fmt.Sprintf("assign %s = %s", v.Target, v.Value)
	case *ir.Return:
		return "return " + v.Value
	case *ir.Call:
		return fmt.Sprintf("call %s(%v) -> %s virtual=%v slot=%d", v.Target, v.Args, v.ResultTemp, v.Virtual, v.VTableSlot)
	case *ir.NewObj:
		return fmt.Sprintf("newobj %s::%s(%v) -> %s", typeName(v.Type), v.Ctor, v.Args, v.ResultTemp)
	case *ir.BinaryOp:
		return fmt.Sprintf("binop %s %s %s -> %s", v.Lhs, v.Op, v.Rhs, v.ResultTemp)
	case *ir.UnaryOp:
		return fmt.Sprintf("unop %s%s -> %s", v.Op, v.Operand, v.ResultTemp)
	case *ir.Branch:
		return fmt.Sprintf("br BB_%d", v.Target)
	case *ir.ConditionalBranch:
		return fmt.Sprintf("brcond %s ? BB_%d : BB_%d", v.Cond, v.TrueTarget, v.FalseTarget)
	case *ir.Label:
		return fmt.Sprintf("label BB_%d", v.Block)
	case *ir.FieldAccess:
		if v.Store {
			return fmt.Sprintf("stfld %s.%s = %s", v.Receiver, fieldName(v.Field), v.Value)
		}
		return fmt.Sprintf("ldfld %s.%s -> %s", v.Receiver, fieldName(v.Field), v.ResultTemp)
	case *ir.StaticFieldAccess:
		if v.Store {
			return fmt.Sprintf("stsfld %s.%s = %s", typeName(v.Owner), fieldName(v.Field), v.Value)
		}
		return fmt.Sprintf("ldsfld %s.%s -> %s", typeName(v.Owner), fieldName(v.Field), v.ResultTemp)
	case *ir.ArrayAccess:
		if v.Store {
			return fmt.Sprintf("stelem %s[%s] = %s", v.Array, v.Index, v.Value)
		}
		return fmt.Sprintf("ldelem %s[%s] -> %s", v.Array, v.Index, v.ResultTemp)
	case *ir.Cast:
		kind := "isinst"
		if !v.Safe {
			kind = "castclass"
		}
		return fmt.Sprintf("%s %s as %s -> %s", kind, v.Value, typeName(v.Target), v.ResultTemp)
	case *ir.Conversion:
		return fmt.Sprintf("conv %s to %s -> %s (checked=%v)", v.Value, v.TargetCpp, v.ResultTemp, v.Checked)
	case *ir.NullCheck:
		return "nullcheck " + v.Value
	case *ir.InitObj:
		return fmt.Sprintf("initobj %s: %s", v.Address, typeName(v.Type))
	case *ir.Box:
		return fmt.Sprintf("box %s: %s -> %s", v.Value, typeName(v.Type), v.ResultTemp)
	case *ir.Unbox:
		return fmt.Sprintf("unbox %s: %s copy=%v -> %s", v.Value, typeName(v.Type), v.Copy, v.ResultTemp)
	case *ir.StaticCtorGuard:
		return "cctor_guard " + typeName(v.Type)
	case *ir.TryBegin:
		return fmt.Sprintf("try_begin region=%d", v.RegionID)
	case *ir.CatchBegin:
		return fmt.Sprintf("catch_begin region=%d type=%s", v.RegionID, typeName(v.ExceptionType))
	case *ir.FinallyBegin:
		return fmt.Sprintf("finally_begin region=%d", v.RegionID)
	case *ir.FilterBegin:
		return fmt.Sprintf("filter_begin region=%d", v.RegionID)
	case *ir.EndFilter:
		return "endfilter " + v.Value
	case *ir.TryEnd:
		return fmt.Sprintf("try_end region=%d", v.RegionID)
	case *ir.Throw:
		return "throw " + v.Value
	case *ir.Rethrow:
		return "rethrow"
	case *ir.Switch:
		return fmt.Sprintf("switch %s -> %v default BB_%d", v.Value, v.Targets, v.Default)
	case *ir.LoadFunctionPointer:
		return fmt.Sprintf("ldftn %s slot=%d recv=%s -> %s", methodName(v.Method), v.VTableSlot, v.Receiver, v.ResultTemp)
	case *ir.DelegateCreate:
		return fmt.Sprintf("delegate_create %s target=%s recv=%s -> %s", typeName(v.DelegateType), v.Target, v.Receiver, v.ResultTemp)
	case *ir.DelegateInvoke:
		return fmt.Sprintf("delegate_invoke %s(%v) -> %s", v.Delegate, v.Args, v.ResultTemp)
	case *ir.RawCpp:
		return "raw " + v.Text
	}
	return "<unknown instruction>"
}

func typeName(t *ir.Type) string {
	if t == nil {
		return "<none>"
	}
	return t.CppName
}

func fieldName(f *ir.Field) string {
	if f == nil {
		return "<none>"
	}
	return f.CppName
}

func methodName(m *ir.Method) string {
	if m == nil {
		return "<none>"
	}
	return m.CppName
}

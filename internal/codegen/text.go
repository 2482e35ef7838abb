package codegen

import (
	"fmt"
	"strings"

	"github.com/axiomates/cli2cpp/internal/ir"
)

// renderMethodBody walks m's basic blocks in ascending id order (§4.5's
// ordering rule) and renders a label plus each instruction's textual form,
// one statement per line. This is the generalization of backend_ir.go's
// textual IR dump: there it prints opcodes for human inspection, here the
// same per-instruction switch prints compilable C++ statements instead.
func renderMethodBody(m *ir.Method, opts Options) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s(%s) {\n", m.ReturnCpp, m.CppName, renderParamList(m))
	for _, block := range m.Blocks {
		fmt.Fprintf(&b, "BB_%d:\n", block.ID)
		for _, inst := range block.Insts {
			if opts.Debug {
				if dbg := inst.Debug(); dbg != nil {
					if dbg.File != "" {
						fmt.Fprintf(&b, "#line %d \"%s\"\n", dbg.Line, normalizeSlashes(dbg.File))
					}
					fmt.Fprintf(&b, "  // bytecode offset %d\n", dbg.BytecodeOffset)
				}
			}
			b.WriteString("  ")
			b.WriteString(renderInst(inst))
			b.WriteString("\n")
		}
	}
	b.WriteString("}\n")
	return b.String()
}

func renderParamList(m *ir.Method) string {
	var parts []string
	if !m.IsStatic {
		parts = append(parts, m.DeclaringType.CppName+"* __this")
	}
	for _, p := range m.Params {
		parts = append(parts, p.CppType+" "+p.Name)
	}
	return strings.Join(parts, ", ")
}

func normalizeSlashes(path string) string {
	return strings.ReplaceAll(path, "\\", "/")
}

// renderInst renders the C++ statement text for a single instruction. The
// switch order follows the IR Instructions sum as §3 lists it.
func renderInst(inst ir.Instruction) string {
	switch v := inst.(type) {
	case *ir.Comment:
		return "// " + v.Text
	case *ir.Assign:
		return v.Target + " = " + v.Value + ";"
	case *ir.DeclareLocal:
		return v.CppType + " " + v.Name + " = " + v.Init + ";"
	case *ir.Return:
		if v.Value == "" {
			return "return;"
		}
		return "return " + v.Value + ";"
	case *ir.Call:
		return renderCall(v)
	case *ir.NewObj:
		return renderNewObj(v)
	case *ir.BinaryOp:
		return resultAssign(v.ResultTemp, fmt.Sprintf("(%s %s %s)", v.Lhs, v.Op, v.Rhs))
	case *ir.UnaryOp:
		return resultAssign(v.ResultTemp, fmt.Sprintf("(%s%s)", v.Op, v.Operand))
	case *ir.Branch:
		return fmt.Sprintf("goto BB_%d;", v.Target)
	case *ir.ConditionalBranch:
		return fmt.Sprintf("if (%s) goto BB_%d; else goto BB_%d;", v.Cond, v.TrueTarget, v.FalseTarget)
	case *ir.Label:
		return fmt.Sprintf("BB_%d:;", v.Block)
	case *ir.FieldAccess:
		return renderFieldAccess(v)
	case *ir.StaticFieldAccess:
		return renderStaticFieldAccess(v)
	case *ir.ArrayAccess:
		return renderArrayAccess(v)
	case *ir.Cast:
		return renderCast(v)
	case *ir.Conversion:
		fn := "rtg::convert"
		if v.Checked {
			fn = "rtg::checked_conv"
		}
		return resultAssign(v.ResultTemp, fmt.Sprintf("%s<%s>(%s)", fn, v.TargetCpp, v.Value))
	case *ir.NullCheck:
		return fmt.Sprintf("rtg::null_check(%s);", v.Value)
	case *ir.InitObj:
		return fmt.Sprintf("rtg::init_obj(%s, sizeof(%s));", v.Address, cppNameOf(v.Type))
	case *ir.Box:
		return resultAssign(v.ResultTemp, fmt.Sprintf("rtg::box(%s, &%s_TypeInfo)", v.Value, cppNameOf(v.Type)))
	case *ir.Unbox:
		if v.Copy {
			return resultAssign(v.ResultTemp, fmt.Sprintf("rtg::unbox_any<%s>(%s)", cppNameOf(v.Type), v.Value))
		}
		return resultAssign(v.ResultTemp, fmt.Sprintf("rtg::unbox(%s)", v.Value))
	case *ir.StaticCtorGuard:
		return fmt.Sprintf("%s_cctor_guard();", cppNameOf(v.Type))
	case *ir.TryBegin:
		return fmt.Sprintf("TRY /* region %d */ {", v.RegionID)
	case *ir.CatchBegin:
		if v.ExceptionType == nil {
			return fmt.Sprintf("} CATCH_ALL /* region %d */ {", v.RegionID)
		}
		return fmt.Sprintf("} CATCH(%s) /* region %d */ {", cppNameOf(v.ExceptionType), v.RegionID)
	case *ir.FinallyBegin:
		return fmt.Sprintf("} FINALLY /* region %d */ {", v.RegionID)
	case *ir.FilterBegin:
		return fmt.Sprintf("} FILTER_BEGIN /* region %d */ {", v.RegionID)
	case *ir.EndFilter:
		return fmt.Sprintf("FILTER_RESULT(%s);", v.Value)
	case *ir.TryEnd:
		return fmt.Sprintf("} END_TRY /* region %d */", v.RegionID)
	case *ir.Throw:
		if v.Value == "" {
			return "RETHROW;"
		}
		return fmt.Sprintf("throw_exception(%s);", v.Value)
	case *ir.Rethrow:
		return "RETHROW;"
	case *ir.Switch:
		return renderSwitch(v)
	case *ir.LoadFunctionPointer:
		return renderLoadFunctionPointer(v)
	case *ir.DelegateCreate:
		recv := v.Receiver
		if recv == "" {
			recv = "nullptr"
		}
		return resultAssign(v.ResultTemp, fmt.Sprintf("rtg::delegate_create(&%s_TypeInfo, %s, %s)", cppNameOf(v.DelegateType), recv, v.Target))
	case *ir.DelegateInvoke:
		return renderDelegateInvoke(v)
	case *ir.RawCpp:
		return v.Text
	}
	return "// unrenderable instruction"
}

func resultAssign(target, expr string) string {
	if target == "" {
		return expr + ";"
	}
	return target + " = " + expr + ";"
}

func cppNameOf(t *ir.Type) string {
	if t == nil {
		return "void"
	}
	return t.CppName
}

func renderCall(v *ir.Call) string {
	var target string
	switch {
	case v.Interface != nil:
		target = fmt.Sprintf("type_get_interface_vtable_checked(%s->type_info, &%s_TypeInfo)->methods[%d]",
			firstOr(v.Args, "__this"), cppNameOf(v.Interface), v.VTableSlot)
	case v.Virtual:
		target = fmt.Sprintf("%s->type_info->vtable->methods[%d]", firstOr(v.Args, "__this"), v.VTableSlot)
	default:
		target = v.Target
	}
	return resultAssign(v.ResultTemp, fmt.Sprintf("%s(%s)", target, strings.Join(v.Args, ", ")))
}

func firstOr(args []string, def string) string {
	if len(args) > 0 {
		return args[0]
	}
	return def
}

func renderNewObj(v *ir.NewObj) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s = (%s*)runtime::gc_alloc(sizeof(%s), &%s_TypeInfo); ",
		v.ResultTemp, cppNameOf(v.Type), cppNameOf(v.Type), cppNameOf(v.Type))
	args := append([]string{v.ResultTemp}, v.Args...)
	fmt.Fprintf(&b, "%s(%s);", v.Ctor, strings.Join(args, ", "))
	return b.String()
}

func renderFieldAccess(v *ir.FieldAccess) string {
	if v.Store {
		return fmt.Sprintf("%s->%s = %s;", v.Receiver, v.Field.CppName, v.Value)
	}
	return resultAssign(v.ResultTemp, fmt.Sprintf("%s->%s", v.Receiver, v.Field.CppName))
}

func renderStaticFieldAccess(v *ir.StaticFieldAccess) string {
	stat := cppNameOf(v.Owner) + "_statics." + v.Field.CppName
	if v.Store {
		return stat + " = " + v.Value + ";"
	}
	return resultAssign(v.ResultTemp, stat)
}

func renderArrayAccess(v *ir.ArrayAccess) string {
	elem := fmt.Sprintf("rtg::array_elem<%s>(%s, %s)", v.ElementCpp, v.Array, v.Index)
	if v.Store {
		return fmt.Sprintf("%s = %s;", elem, v.Value)
	}
	return resultAssign(v.ResultTemp, elem)
}

func renderCast(v *ir.Cast) string {
	if v.Safe {
		return resultAssign(v.ResultTemp, fmt.Sprintf("rtg::isinst<%s>(%s, &%s_TypeInfo)", cppNameOf(v.Target), v.Value, cppNameOf(v.Target)))
	}
	return resultAssign(v.ResultTemp, fmt.Sprintf("rtg::castclass<%s>(%s, &%s_TypeInfo)", cppNameOf(v.Target), v.Value, cppNameOf(v.Target)))
}

func renderSwitch(v *ir.Switch) string {
	var b strings.Builder
	b.WriteString("switch (" + v.Value + ") {\n")
	for i, target := range v.Targets {
		fmt.Fprintf(&b, "    case %d: goto BB_%d;\n", i, target)
	}
	fmt.Fprintf(&b, "    default: goto BB_%d;\n  }", v.Default)
	return b.String()
}

func renderLoadFunctionPointer(v *ir.LoadFunctionPointer) string {
	if v.VTableSlot < 0 {
		return resultAssign(v.ResultTemp, "(void*)&"+v.Method.CppName)
	}
	recv := v.Receiver
	if recv == "" {
		recv = "__this"
	}
	return resultAssign(v.ResultTemp, fmt.Sprintf("(void*)%s->type_info->vtable->methods[%d]", recv, v.VTableSlot))
}

func renderDelegateInvoke(v *ir.DelegateInvoke) string {
	var sig strings.Builder
	sig.WriteString(v.ReturnCpp + "(*)(")
	sig.WriteString(strings.Join(v.ParamsCpp, ", "))
	sig.WriteString(")")
	return resultAssign(v.ResultTemp, fmt.Sprintf("rtg::delegate_invoke<%s>(%s)(%s)", sig.String(), v.Delegate, strings.Join(v.Args, ", ")))
}

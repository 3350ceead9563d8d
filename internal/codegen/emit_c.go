package codegen

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/refc/internal/ir"
	"github.com/roach88/refc/internal/types"
)

// EmitC renders p as C source against the refc_rt.h runtime interface. The
// output depends only on the IR, so equal programs produce identical bytes.
func EmitC(p *Program) []byte {
	e := &cEmitter{module: p.Module}
	e.header(p)
	for _, fn := range p.funcs {
		e.native(fn.IR)
		e.boundary(fn.Sig)
	}
	e.exports(p)
	return e.buf.Bytes()
}

type cEmitter struct {
	buf    bytes.Buffer
	module string
}

func (e *cEmitter) printf(format string, args ...any) {
	fmt.Fprintf(&e.buf, format, args...)
}

func (e *cEmitter) line(indent int, format string, args ...any) {
	e.buf.WriteString(strings.Repeat("    ", indent))
	e.printf(format, args...)
	e.buf.WriteByte('\n')
}

func cIdent(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func nativeSymbol(sig ir.Signature) string {
	return cIdent(sig.Module) + "__" + cIdent(sig.Name) + "_native"
}

func boundarySymbol(sig ir.Signature) string {
	return cIdent(sig.Module) + "__" + cIdent(sig.Name) + "_boundary"
}

var cKeywords = map[string]bool{
	"auto": true, "break": true, "case": true, "char": true, "const": true, "continue": true,
	"default": true, "do": true, "double": true, "else": true, "enum": true, "extern": true,
	"float": true, "for": true, "goto": true, "if": true, "int": true, "long": true,
	"register": true, "return": true, "short": true, "signed": true, "sizeof": true,
	"static": true, "struct": true, "switch": true, "typedef": true, "union": true,
	"unsigned": true, "void": true, "volatile": true, "while": true, "f": true, "a": true,
	"res": true, "boxed": true, "argv": true, "items": true,
}

func cValue(v *ir.Value) string {
	name := cIdent(v.String())
	if cKeywords[name] {
		return name + "_"
	}
	return name
}

func nativeParams(sig ir.Signature, names []string) string {
	parts := []string{"frame_t *f"}
	for i := range sig.Params {
		if names != nil {
			parts = append(parts, "word_t "+names[i])
		} else {
			parts = append(parts, "word_t")
		}
	}
	return strings.Join(parts, ", ")
}

const boundaryParams = "frame_t *f, const object_t *args, size_t nargs"

func (e *cEmitter) header(p *Program) {
	e.line(0, "/* Code generated by refc. DO NOT EDIT. */")
	e.line(0, "/* module %s */", p.Module)
	e.line(0, "")
	e.line(0, "#include \"refc_rt.h\"")
	e.line(0, "")
	for _, fn := range p.funcs {
		e.line(0, "static word_t %s(%s);", nativeSymbol(fn.Sig), nativeParams(fn.Sig, nil))
		e.line(0, "static object_t %s(%s);", boundarySymbol(fn.Sig), boundaryParams)
	}

	imported := map[string]ir.Signature{}
	for _, fn := range p.funcs {
		for _, b := range fn.IR.Blocks {
			for _, op := range b.Ops {
				if c, ok := op.(*ir.Call); ok && c.Target.Module != p.Module {
					imported[nativeSymbol(c.Target)] = c.Target
				}
			}
		}
	}
	if len(imported) > 0 {
		syms := make([]string, 0, len(imported))
		for s := range imported {
			syms = append(syms, s)
		}
		sort.Strings(syms)
		e.line(0, "")
		for _, s := range syms {
			e.line(0, "extern word_t %s(%s);", s, nativeParams(imported[s], nil))
		}
	}
	e.line(0, "")
}

func (e *cEmitter) native(fn *ir.Function) {
	names := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		names[i] = cValue(p)
	}
	e.line(0, "/* %s */", fn.Sig)
	e.line(0, "static word_t %s(%s)", nativeSymbol(fn.Sig), nativeParams(fn.Sig, names))
	e.line(0, "{")
	for _, v := range fn.Values {
		e.line(1, "word_t %s;", cValue(v))
	}
	if len(fn.Values) > 0 {
		e.line(0, "")
	}
	e.line(1, "if (!rt_enter(f))")
	e.line(2, "return RT_ERROR;")
	for _, b := range fn.Blocks {
		e.line(0, "%s:", b)
		for _, op := range b.Ops {
			e.op(op)
		}
	}
	e.line(0, "}")
	e.line(0, "")
}

func (e *cEmitter) op(op ir.Op) {
	switch o := op.(type) {
	case *ir.LoadInt:
		if ir.IsShortLiteral(o.Value) {
			e.line(1, "%s = RT_SHORT(%s);", cValue(o.Dst), o.Value)
		} else {
			e.line(1, "%s = rt_int_from_str(f, %q);", cValue(o.Dst), o.Value.String())
		}
	case *ir.LoadBool:
		v := 0
		if o.Value {
			v = 1
		}
		e.line(1, "%s = %d;", cValue(o.Dst), v)
	case *ir.LoadNone:
		e.line(1, "%s = RT_NONE;", cValue(o.Dst))
	case *ir.BinaryOp:
		prim := [...]string{"add", "sub", "mul", "floordiv", "mod"}[o.Op]
		e.line(1, "%s = rt_int_%s(f, %s, %s);", cValue(o.Dst), prim, cValue(o.Left), cValue(o.Right))
	case *ir.UnaryOp:
		if o.Op == ir.Not {
			e.line(1, "%s = %s ^ 1;", cValue(o.Dst), cValue(o.X))
		} else {
			e.line(1, "%s = rt_int_neg(f, %s);", cValue(o.Dst), cValue(o.X))
		}
	case *ir.Compare:
		e.compare(o)
	case *ir.Call:
		args := []string{"f"}
		for _, a := range o.Args {
			args = append(args, cValue(a))
		}
		e.line(1, "%s = %s(%s);", cValue(o.Dst), nativeSymbol(o.Target), strings.Join(args, ", "))
	case *ir.CallGeneric:
		call := fmt.Sprintf("rt_call_generic(f, %s, %s, %%s, %d)",
			strconv.Quote(o.Module), strconv.Quote(o.Name), len(o.Args))
		e.withArray(o.Dst, "argv", o.Args, call)
	case *ir.ListNew:
		e.withArray(o.Dst, "items", o.Items, fmt.Sprintf("rt_list_new(f, %%s, %d)", len(o.Items)))
	case *ir.ListGet:
		e.line(1, "%s = rt_list_get(f, %s, %s);", cValue(o.Dst), cValue(o.List), cValue(o.Index))
	case *ir.ListSet:
		e.line(1, "%s = rt_list_set(f, %s, %s, %s);", cValue(o.Dst), cValue(o.List), cValue(o.Index), cValue(o.Item))
	case *ir.ListAppend:
		e.line(1, "%s = rt_list_append(f, %s, %s);", cValue(o.Dst), cValue(o.List), cValue(o.Item))
	case *ir.ListLen:
		e.line(1, "%s = rt_list_len(f, %s);", cValue(o.Dst), cValue(o.List))
	case *ir.ListRepeat:
		e.line(1, "%s = rt_list_repeat(f, %s, %s);", cValue(o.Dst), cValue(o.List), cValue(o.Count))
	case *ir.Box:
		e.line(1, "%s = rt_box(f, %s, %s);", cValue(o.Dst), typeDesc(o.Src.Type), cValue(o.Src))
	case *ir.Unbox:
		e.line(1, "%s = rt_unbox(f, %s, %s);", cValue(o.Dst), typeDesc(o.Dst.Type), cValue(o.Src))
	case *ir.Assign:
		e.line(1, "%s = %s;", cValue(o.Dst), cValue(o.Src))
	case *ir.IncRef:
		e.line(1, "rt_incref(f, %s);", cValue(o.V))
	case *ir.DecRef:
		e.line(1, "rt_decref(f, %s);", cValue(o.V))
	case *ir.Goto:
		e.line(1, "goto %s;", o.Target)
	case *ir.Branch:
		cond := cValue(o.Cond)
		if o.Kind == ir.BranchIsError {
			cond += " == RT_ERROR"
		}
		e.line(1, "if (%s) goto %s; else goto %s;", cond, o.Then, o.Else)
	case *ir.Return:
		e.line(1, "rt_leave(f);")
		if o.IsError() {
			e.line(1, "return RT_ERROR;")
		} else {
			e.line(1, "return %s;", cValue(o.Value))
		}
	case *ir.Unreachable:
		e.line(1, "rt_abort(f, %s);", strconv.Quote(o.Reason))
		e.line(1, "return RT_ERROR;")
	default:
		e.line(1, "/* unknown op %T */", op)
	}
}

func (e *cEmitter) compare(o *ir.Compare) {
	l, r, d := cValue(o.Left), cValue(o.Right), cValue(o.Dst)
	if o.Left.Type.Kind == types.KindBool {
		e.line(1, "%s = (%s %s %s);", d, l, o.Op, r)
		return
	}
	switch o.Op {
	case ir.Lt:
		e.line(1, "%s = rt_int_lt(f, %s, %s);", d, l, r)
	case ir.Le:
		e.line(1, "%s = rt_int_le(f, %s, %s);", d, l, r)
	case ir.Gt:
		e.line(1, "%s = rt_int_lt(f, %s, %s);", d, r, l)
	case ir.Ge:
		e.line(1, "%s = rt_int_le(f, %s, %s);", d, r, l)
	case ir.Eq:
		e.line(1, "%s = rt_int_eq(f, %s, %s);", d, l, r)
	case ir.Ne:
		e.line(1, "%s = !rt_int_eq(f, %s, %s);", d, l, r)
	}
}

// withArray emits call with its %s replaced by a stack array of vs.
func (e *cEmitter) withArray(dst *ir.Value, name string, vs []*ir.Value, call string) {
	if len(vs) == 0 {
		e.line(1, "%s = %s;", cValue(dst), fmt.Sprintf(call, "NULL"))
		return
	}
	elems := make([]string, len(vs))
	for i, v := range vs {
		elems[i] = cValue(v)
	}
	e.line(1, "{")
	e.line(2, "object_t %s[%d] = {%s};", name, len(vs), strings.Join(elems, ", "))
	e.line(2, "%s = %s;", cValue(dst), fmt.Sprintf(call, name))
	e.line(1, "}")
}

func typeDesc(t types.RType) string { return strconv.Quote(t.String()) }

func (e *cEmitter) boundary(sig ir.Signature) {
	n := len(sig.Params)
	e.line(0, "static object_t %s(%s)", boundarySymbol(sig), boundaryParams)
	e.line(0, "{")
	if n > 0 {
		e.line(1, "word_t a[%d];", n)
	}
	e.line(1, "word_t res;")
	e.line(1, "object_t boxed;")
	e.line(0, "")
	e.line(1, "if (nargs != %d)", n)
	e.line(2, "return rt_raise_arity(f, %s, %d, nargs);", strconv.Quote(sig.Name), n)
	for i, p := range sig.Params {
		e.line(1, "if (!rt_check(f, args[%d], %s))", i, typeDesc(p))
		e.line(2, "return rt_raise_arg(f, %s, %d, %s, args[%d]);", strconv.Quote(sig.Name), i+1, typeDesc(p), i)
	}
	args := []string{"f"}
	for i, p := range sig.Params {
		e.line(1, "a[%d] = rt_unbox(f, %s, args[%d]);", i, typeDesc(p), i)
		if i == 0 {
			e.line(1, "if (a[0] == RT_ERROR)")
			e.line(2, "return RT_ERROR;")
		} else {
			e.line(1, "if (a[%d] == RT_ERROR) {", i)
			for j := 0; j < i; j++ {
				e.line(2, "rt_decref(f, a[%d]);", j)
			}
			e.line(2, "return RT_ERROR;")
			e.line(1, "}")
		}
		args = append(args, fmt.Sprintf("a[%d]", i))
	}
	e.line(1, "res = %s(%s);", nativeSymbol(sig), strings.Join(args, ", "))
	for i := range sig.Params {
		e.line(1, "rt_decref(f, a[%d]);", i)
	}
	e.line(1, "if (res == RT_ERROR)")
	e.line(2, "return RT_ERROR;")
	e.line(1, "boxed = rt_box(f, %s, res);", typeDesc(sig.Return))
	e.line(1, "rt_decref(f, res);")
	e.line(1, "return boxed;")
	e.line(0, "}")
	e.line(0, "")
}

func (e *cEmitter) exports(p *Program) {
	e.line(0, "const export_t %s__exports[] = {", cIdent(p.Module))
	for _, fn := range p.funcs {
		e.line(1, "{%s, %s, (void *)%s, %s},", strconv.Quote(fn.Sig.Name), strconv.Quote(fn.Sig.String()),
			nativeSymbol(fn.Sig), boundarySymbol(fn.Sig))
	}
	e.line(1, "{NULL, NULL, NULL, NULL},")
	e.line(0, "};")
}

package host

import (
	"fmt"
	"math/big"

	"github.com/roach88/refc/internal/ast"
	"github.com/roach88/refc/internal/rt"
)

// Function is a function run by the host interpreter. Every value it touches
// is a generic object and all integer arithmetic goes through math/big, so
// its results are independent of the native fast paths.
type Function struct {
	runtime *Runtime
	module  string
	def     *ast.FuncDef
}

// NewFunction wraps def from module for interpretation on r.
func NewFunction(r *Runtime, module string, def *ast.FuncDef) *Function {
	return &Function{runtime: r, module: module, def: def}
}

// Def returns the interpreted definition.
func (fn *Function) Def() *ast.FuncDef { return fn.def }

// LoadInterpreted binds every function of m into its namespace as an
// interpreted function. Existing bindings are replaced.
func (r *Runtime) LoadInterpreted(m *ast.Module) *Namespace {
	ns := r.Module(m.Name)
	for _, def := range m.Funcs {
		ns.Set(def.Name, NewFunction(r, m.Name, def))
	}
	r.logger.Debug("module loaded", "module", m.Name, "mode", "interpreted", "functions", len(m.Funcs))
	return ns
}

// Call implements Callable.
func (fn *Function) Call(f *rt.Frame, args []rt.Word) rt.Word {
	def := fn.def
	if len(args) != len(def.Params) {
		return f.Raise(rt.ErrType, "%s() takes %d positional arguments but %d were given",
			def.Name, len(def.Params), len(args))
	}
	if def.Rejected != nil {
		return f.Raise(rt.ErrNotImpl, "%s() uses %s", def.Name, def.Rejected.Construct)
	}
	if !f.Enter() {
		return rt.ErrorSentinel
	}
	defer f.Leave()

	ev := &evaluator{runtime: fn.runtime, f: f, h: f.Heap, module: fn.module, env: make(map[string]rt.Word)}
	defer ev.release()
	for i, p := range def.Params {
		f.Heap.IncRef(args[i])
		ev.env[p.Name] = args[i]
	}

	ctl, w := ev.block(def.Body)
	switch ctl {
	case ctlReturn:
		return w
	case ctlFail:
		return rt.ErrorSentinel
	}
	return rt.None
}

type control int

const (
	ctlNext control = iota
	ctlReturn
	ctlBreak
	ctlContinue
	ctlFail
)

// evaluator holds one activation. Every word in env and every word returned
// by expr is an owned reference.
type evaluator struct {
	runtime *Runtime
	f       *rt.Frame
	h       *rt.Heap
	module  string
	env     map[string]rt.Word
}

func (e *evaluator) release() {
	for name, w := range e.env {
		e.h.DecRef(w)
		delete(e.env, name)
	}
}

func (e *evaluator) bind(name string, w rt.Word) {
	old, ok := e.env[name]
	e.env[name] = w
	if ok {
		e.h.DecRef(old)
	}
}

func (e *evaluator) block(stmts []ast.Stmt) (control, rt.Word) {
	for _, s := range stmts {
		if ctl, w := e.stmt(s); ctl != ctlNext {
			return ctl, w
		}
	}
	return ctlNext, 0
}

func (e *evaluator) stmt(s ast.Stmt) (control, rt.Word) {
	switch s := s.(type) {
	case *ast.Assign:
		v := e.expr(s.Value)
		if v == rt.ErrorSentinel {
			return ctlFail, 0
		}
		e.bind(s.Target, v)
	case *ast.IndexAssign:
		return e.setItem(s)
	case *ast.If:
		c, ok := e.cond(s.Cond)
		if !ok {
			return ctlFail, 0
		}
		if c {
			return e.block(s.Then)
		}
		return e.block(s.Else)
	case *ast.While:
		return e.loop(s)
	case *ast.ExprStmt:
		v := e.expr(s.X)
		if v == rt.ErrorSentinel {
			return ctlFail, 0
		}
		e.h.DecRef(v)
	case *ast.Return:
		if s.Value == nil {
			return ctlReturn, rt.None
		}
		v := e.expr(s.Value)
		if v == rt.ErrorSentinel {
			return ctlFail, 0
		}
		return ctlReturn, v
	case *ast.Pass:
	case *ast.Break:
		return ctlBreak, 0
	case *ast.Continue:
		return ctlContinue, 0
	case *ast.UnsupportedStmt:
		e.f.Raise(rt.ErrNotImpl, "%s: %s is not implemented by the interpreter", s.Pos, s.Construct)
		return ctlFail, 0
	default:
		e.f.Raise(rt.ErrNotImpl, "statement %T", s)
		return ctlFail, 0
	}
	return ctlNext, 0
}

func (e *evaluator) loop(s *ast.While) (control, rt.Word) {
	for {
		c, ok := e.cond(s.Cond)
		if !ok {
			return ctlFail, 0
		}
		if !c {
			return ctlNext, 0
		}
		ctl, w := e.block(s.Body)
		switch ctl {
		case ctlBreak:
			return ctlNext, 0
		case ctlReturn, ctlFail:
			return ctl, w
		}
	}
}

// setItem evaluates value, then list, then index.
func (e *evaluator) setItem(s *ast.IndexAssign) (control, rt.Word) {
	v := e.expr(s.Value)
	if v == rt.ErrorSentinel {
		return ctlFail, 0
	}
	l := e.expr(s.List)
	if l == rt.ErrorSentinel {
		e.h.DecRef(v)
		return ctlFail, 0
	}
	defer e.h.DecRef(l)
	i := e.expr(s.Index)
	if i == rt.ErrorSentinel {
		e.h.DecRef(v)
		return ctlFail, 0
	}
	defer e.h.DecRef(i)
	if !e.isList(l) {
		e.h.DecRef(v)
		e.f.Raise(rt.ErrType, "'%s' object does not support item assignment", e.h.TypeOf(l))
		return ctlFail, 0
	}
	idx, ok := e.index(i)
	if !ok {
		e.h.DecRef(v)
		return ctlFail, 0
	}
	defer e.h.DecRef(idx)
	if rt.ListSet(e.f, l, idx, v) == rt.ErrorSentinel {
		return ctlFail, 0
	}
	return ctlNext, 0
}

// cond evaluates x and reports its truth value.
func (e *evaluator) cond(x ast.Expr) (bool, bool) {
	v := e.expr(x)
	if v == rt.ErrorSentinel {
		return false, false
	}
	defer e.h.DecRef(v)
	return e.truthy(v), true
}

func (e *evaluator) truthy(w rt.Word) bool {
	o := e.h.Object(w)
	switch o.Type {
	case rt.TypeBool:
		return o.Bool
	case rt.TypeInt:
		return o.Int.Sign() != 0
	case rt.TypeList:
		return len(o.Items) != 0
	}
	return false
}

func (e *evaluator) isList(w rt.Word) bool { return e.h.TypeOf(w) == rt.TypeList }

func (e *evaluator) intValue(w rt.Word) (*big.Int, bool) {
	switch e.h.TypeOf(w) {
	case rt.TypeInt, rt.TypeBool:
		return e.h.BigOf(w), true
	}
	return nil, false
}

// index converts an int object to a native index word, owned by the caller.
func (e *evaluator) index(w rt.Word) (rt.Word, bool) {
	if _, ok := e.intValue(w); !ok {
		e.f.Raise(rt.ErrType, "list indices must be integers, not %s", e.h.TypeOf(w))
		return 0, false
	}
	n := rt.UnboxInt(e.f, w)
	return n, n != rt.ErrorSentinel
}

func (e *evaluator) expr(x ast.Expr) rt.Word {
	switch x := x.(type) {
	case *ast.IntLit:
		return rt.NewIntObject(e.f, x.Value)
	case *ast.BoolLit:
		return rt.BoxBool(rt.NativeBool(x.Value))
	case *ast.NoneLit:
		return rt.None
	case *ast.Name:
		w, ok := e.env[x.Id]
		if !ok {
			return e.f.Raise(rt.ErrUnboundVar, "local variable %q referenced before assignment", x.Id)
		}
		e.h.IncRef(w)
		return w
	case *ast.BinOp:
		return e.binOp(x)
	case *ast.UnaryOp:
		return e.unaryOp(x)
	case *ast.Compare:
		return e.compare(x)
	case *ast.BoolOp:
		return e.boolOp(x)
	case *ast.Call:
		return e.call(x)
	case *ast.ListLit:
		items, ok := e.exprs(x.Elems)
		defer e.releaseAll(items)
		if !ok {
			return rt.ErrorSentinel
		}
		return rt.ListNew(e.f, items)
	case *ast.Index:
		return e.getItem(x)
	case *ast.Len:
		v := e.expr(x.X)
		if v == rt.ErrorSentinel {
			return v
		}
		defer e.h.DecRef(v)
		if !e.isList(v) {
			return e.f.Raise(rt.ErrType, "object of type '%s' has no len()", e.h.TypeOf(v))
		}
		return rt.NewIntObject(e.f, big.NewInt(rt.ListLen(e.h, v).Short()))
	case *ast.Append:
		return e.appendItem(x)
	case *ast.UnsupportedExpr:
		return e.f.Raise(rt.ErrNotImpl, "%s: %s is not implemented by the interpreter", x.Pos, x.Construct)
	}
	return e.f.Raise(rt.ErrNotImpl, "expression %T", x)
}

// exprs evaluates xs left to right. On failure the words evaluated so far
// are still returned so the caller can release them.
func (e *evaluator) exprs(xs []ast.Expr) ([]rt.Word, bool) {
	out := make([]rt.Word, 0, len(xs))
	for _, x := range xs {
		w := e.expr(x)
		if w == rt.ErrorSentinel {
			return out, false
		}
		out = append(out, w)
	}
	return out, true
}

func (e *evaluator) releaseAll(ws []rt.Word) {
	for _, w := range ws {
		e.h.DecRef(w)
	}
}

func (e *evaluator) operands(l, r ast.Expr) ([]rt.Word, bool) {
	return e.exprs([]ast.Expr{l, r})
}

func (e *evaluator) binOp(x *ast.BinOp) rt.Word {
	ws, ok := e.operands(x.Left, x.Right)
	defer e.releaseAll(ws)
	if !ok {
		return rt.ErrorSentinel
	}
	a, b := ws[0], ws[1]
	if x.Op == ast.Mul && (e.isList(a) || e.isList(b)) {
		if e.isList(b) {
			a, b = b, a
		}
		n, ok := e.index(b)
		if !ok {
			return rt.ErrorSentinel
		}
		defer e.h.DecRef(n)
		return rt.ListRepeat(e.f, a, n)
	}
	return e.arith(x.Op, a, b)
}

func (e *evaluator) arith(op ast.BinaryOperator, a, b rt.Word) rt.Word {
	x, ok1 := e.intValue(a)
	y, ok2 := e.intValue(b)
	if !ok1 || !ok2 {
		return e.f.Raise(rt.ErrType, "unsupported operand type(s) for %s: '%s' and '%s'",
			op, e.h.TypeOf(a), e.h.TypeOf(b))
	}
	z := new(big.Int)
	switch op {
	case ast.Add:
		z.Add(x, y)
	case ast.Sub:
		z.Sub(x, y)
	case ast.Mul:
		z.Mul(x, y)
	case ast.FloorDiv, ast.Mod:
		if y.Sign() == 0 {
			return e.f.Raise(rt.ErrZeroDiv, "integer division or modulo by zero")
		}
		q, m := new(big.Int).QuoRem(x, y, new(big.Int))
		if m.Sign() != 0 && (m.Sign() < 0) != (y.Sign() < 0) {
			q.Sub(q, big.NewInt(1))
			m.Add(m, y)
		}
		if op == ast.FloorDiv {
			z = q
		} else {
			z = m
		}
	default:
		return e.f.Raise(rt.ErrNotImpl, "operator %s", op)
	}
	return rt.NewIntObject(e.f, z)
}

func (e *evaluator) unaryOp(x *ast.UnaryOp) rt.Word {
	v := e.expr(x.X)
	if v == rt.ErrorSentinel {
		return v
	}
	defer e.h.DecRef(v)
	switch x.Op {
	case ast.Not:
		return rt.BoxBool(rt.NativeBool(!e.truthy(v)))
	case ast.Neg:
		n, ok := e.intValue(v)
		if !ok {
			return e.f.Raise(rt.ErrType, "bad operand type for unary -: '%s'", e.h.TypeOf(v))
		}
		return rt.NewIntObject(e.f, new(big.Int).Neg(n))
	}
	return e.f.Raise(rt.ErrNotImpl, "operator %s", x.Op)
}

func (e *evaluator) compare(x *ast.Compare) rt.Word {
	ws, ok := e.operands(x.Left, x.Right)
	defer e.releaseAll(ws)
	if !ok {
		return rt.ErrorSentinel
	}
	a, b := ws[0], ws[1]
	ia, ok1 := e.intValue(a)
	ib, ok2 := e.intValue(b)
	if !ok1 || !ok2 {
		switch x.Op {
		case ast.Eq:
			return rt.BoxBool(rt.NativeBool(a == b))
		case ast.Ne:
			return rt.BoxBool(rt.NativeBool(a != b))
		}
		return e.f.Raise(rt.ErrType, "'%s' not supported between instances of '%s' and '%s'",
			x.Op, e.h.TypeOf(a), e.h.TypeOf(b))
	}
	c := ia.Cmp(ib)
	var r bool
	switch x.Op {
	case ast.Lt:
		r = c < 0
	case ast.Le:
		r = c <= 0
	case ast.Gt:
		r = c > 0
	case ast.Ge:
		r = c >= 0
	case ast.Eq:
		r = c == 0
	case ast.Ne:
		r = c != 0
	}
	return rt.BoxBool(rt.NativeBool(r))
}

// boolOp short-circuits. Results are always bool objects.
func (e *evaluator) boolOp(x *ast.BoolOp) rt.Word {
	l, ok := e.cond(x.Left)
	if !ok {
		return rt.ErrorSentinel
	}
	if (x.Op == ast.And && !l) || (x.Op == ast.Or && l) {
		return rt.BoxBool(rt.NativeBool(l))
	}
	r, ok := e.cond(x.Right)
	if !ok {
		return rt.ErrorSentinel
	}
	return rt.BoxBool(rt.NativeBool(r))
}

func (e *evaluator) call(x *ast.Call) rt.Word {
	args, ok := e.exprs(x.Args)
	defer e.releaseAll(args)
	if !ok {
		return rt.ErrorSentinel
	}
	module := x.Module
	if module == "" {
		module = e.module
	}
	return e.runtime.CallGeneric(e.f, module, x.Func, args)
}

func (e *evaluator) getItem(x *ast.Index) rt.Word {
	ws, ok := e.operands(x.List, x.Index)
	defer e.releaseAll(ws)
	if !ok {
		return rt.ErrorSentinel
	}
	l, i := ws[0], ws[1]
	if !e.isList(l) {
		return e.f.Raise(rt.ErrType, "'%s' object is not subscriptable", e.h.TypeOf(l))
	}
	idx, ok := e.index(i)
	if !ok {
		return rt.ErrorSentinel
	}
	defer e.h.DecRef(idx)
	return rt.ListGet(e.f, l, idx)
}

func (e *evaluator) appendItem(x *ast.Append) rt.Word {
	ws, ok := e.operands(x.List, x.Item)
	defer e.releaseAll(ws)
	if !ok {
		return rt.ErrorSentinel
	}
	if !e.isList(ws[0]) {
		return e.f.Raise(rt.ErrType, "'%s' object has no attribute 'append'", e.h.TypeOf(ws[0]))
	}
	return rt.ListAppend(e.f, ws[0], ws[1])
}

// String identifies the function in diagnostics.
func (fn *Function) String() string {
	return fmt.Sprintf("<interpreted %s.%s>", fn.module, fn.def.Name)
}

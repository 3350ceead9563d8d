package irbuild

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/refc/internal/ast"
	"github.com/roach88/refc/internal/ir"
	tu "github.com/roach88/refc/internal/testutil"
	"github.com/roach88/refc/internal/types"
)

var (
	intT    = types.Int
	boolT   = types.Bool
	intList = types.List(types.Int)
)

func build(t *testing.T, def *ast.FuncDef) *ir.Function {
	t.Helper()
	fn, err := Build("m", def, Signatures{})
	require.NoError(t, err)
	return fn
}

func countOps[T ir.Op](fn *ir.Function) int {
	return ir.CountOps(fn, func(op ir.Op) bool {
		_, ok := op.(T)
		return ok
	})
}

func TestBuild_Add(t *testing.T) {
	fn := build(t, tu.AddFunc())
	want := `def m.add(x: int, y: int) -> int:
L0:
    r2 = x + y
    if is_error(r2) goto L2 else goto L1
L1:
    return r2
L2:
    return <error>
`
	assert.Equal(t, want, ir.Format(fn))
}

func TestBuild_WhileReevaluatesCondition(t *testing.T) {
	fn := build(t, tu.FillFunc())
	assert.Empty(t, ir.Validate(fn))

	// The loop header holds the comparison and is the target of the back edge.
	var header *ir.BasicBlock
	for _, b := range fn.Blocks {
		for _, op := range b.Ops {
			if _, ok := op.(*ir.Compare); ok {
				header = b
			}
		}
	}
	require.NotNil(t, header)
	preds := fn.Predecessors()[header]
	assert.Len(t, preds, 2, "entry edge and back edge")

	assert.Equal(t, 1, countOps[*ir.ListAppend](fn))
	assert.Equal(t, 1, countOps[*ir.ListLen](fn))
	assert.Equal(t, 1, countOps[*ir.Box](fn), "appended ints are boxed")
}

func TestBuild_ShortCircuit(t *testing.T) {
	def := tu.Func("f", tu.Params("a", boolT, "n", intT), boolT,
		tu.Return(tu.And(tu.Name("a", boolT), tu.Cmp(ast.Lt, tu.Call("g", intT, tu.Name("n", intT)), tu.Int(3)))),
	)
	r := Signatures{}
	r.Add(ir.Signature{Module: "m", Name: "g", Params: []types.RType{intT}, Return: intT})
	fn, err := Build("m", def, r)
	require.NoError(t, err)

	// The call happens only in the block reached when a is true.
	entry := fn.Entry()
	br, ok := entry.Terminator().(*ir.Branch)
	require.True(t, ok)
	assert.Equal(t, ir.BranchBool, br.Kind)
	for _, op := range entry.Ops {
		_, isCall := op.(*ir.Call)
		assert.False(t, isCall, "right operand evaluated eagerly")
	}
	assert.Contains(t, ir.Format(fn), "r3 = m.g(n)")
}

func TestBuild_Unsupported(t *testing.T) {
	def := tu.Func("f", tu.Params("x", intT), intT, tu.Unsupported("with statement", 7), tu.Return(tu.Name("x", intT)))
	_, err := Build("m", def, nil)
	var uf *UnsupportedFeature
	require.ErrorAs(t, err, &uf)
	assert.Equal(t, "with statement", uf.Construct)
	assert.Equal(t, 7, uf.Pos.Line)
	assert.Equal(t, "f", uf.Func)
	assert.Contains(t, err.Error(), "test.cue:7:1")
}

func TestBuild_PossiblyUndefinedLocal(t *testing.T) {
	def := tu.Func("f", tu.Params("c", boolT), intT,
		tu.If(tu.Name("c", boolT), []ast.Stmt{tu.Assign("y", tu.Int(1))}),
		tu.Return(tu.Name("y", intT)),
	)
	_, err := Build("m", def, nil)
	var uf *UnsupportedFeature
	require.ErrorAs(t, err, &uf)
	assert.Equal(t, "possibly undefined local", uf.Construct)

	// Assigned on both branches is fine.
	def = tu.Func("f", tu.Params("c", boolT), intT,
		tu.If(tu.Name("c", boolT), []ast.Stmt{tu.Assign("y", tu.Int(1))}, tu.Assign("y", tu.Int(2))),
		tu.Return(tu.Name("y", intT)),
	)
	build(t, def)
}

func TestBuild_AssignedParamGetsRegister(t *testing.T) {
	def := tu.Func("f", tu.Params("xs", intList), intList,
		tu.Assign("xs", tu.List(intList, tu.Int(1))),
		tu.Return(tu.Name("xs", intList)),
	)
	fn := build(t, def)
	first, ok := fn.Entry().Ops[0].(*ir.Assign)
	require.True(t, ok)
	assert.Equal(t, ir.Param, first.Src.Kind)
	assert.Equal(t, "xs_local", first.Dst.Name)
}

func TestBuild_SelfAssignSkipped(t *testing.T) {
	def := tu.Func("f", tu.Params("x", intT), intT,
		tu.Assign("y", tu.Name("x", intT)),
		tu.Assign("y", tu.Name("y", intT)),
		tu.Return(tu.Name("y", intT)),
	)
	fn := build(t, def)
	assert.Equal(t, 1, countOps[*ir.Assign](fn))
}

func TestBuild_BreakContinue(t *testing.T) {
	def := tu.Func("f", tu.Params("n", intT), intT,
		tu.Assign("k", tu.Int(0)),
		tu.While(tu.Bool(true),
			tu.Assign("k", tu.Bin(ast.Add, tu.Name("k", intT), tu.Int(1))),
			tu.If(tu.Cmp(ast.Lt, tu.Name("k", intT), tu.Name("n", intT)), []ast.Stmt{tu.Continue()}),
			tu.Break(),
		),
		tu.Return(tu.Name("k", intT)),
	)
	fn := build(t, def)
	assert.Empty(t, ir.Validate(fn))

	_, err := Build("m", tu.Func("g", nil, types.None, tu.Break()), nil)
	var uf *UnsupportedFeature
	require.ErrorAs(t, err, &uf)
	assert.Equal(t, "break outside loop", uf.Construct)
}

func TestBuild_ImplicitReturnNone(t *testing.T) {
	def := tu.Func("f", tu.Params("xs", intList), types.None,
		tu.Expr(tu.Append(tu.Name("xs", intList), tu.Int(1))),
	)
	fn := build(t, def)
	text := ir.Format(fn)
	assert.Contains(t, text, "= None")
	assert.True(t, strings.Contains(text, "return r"), text)
	assert.Zero(t, countOps[*ir.Unreachable](fn))
}

func TestBuild_GenericCallBoxesAndUnboxes(t *testing.T) {
	def := tu.Func("f", tu.Params("x", intT), intT,
		tu.Return(tu.CallIn("other", "g", intT, tu.Name("x", intT))),
	)
	fn := build(t, def)
	assert.Equal(t, 1, countOps[*ir.CallGeneric](fn))
	assert.Equal(t, 1, countOps[*ir.Box](fn))
	assert.Equal(t, 1, countOps[*ir.Unbox](fn))
	assert.Contains(t, ir.Format(fn), "host_call other.g(")
}

func TestBuild_IndexAssignEvaluationOrder(t *testing.T) {
	fn := build(t, tu.SwapFunc())
	var order []string
	for _, b := range fn.Blocks {
		for _, op := range b.Ops {
			switch op.(type) {
			case *ir.ListGet:
				order = append(order, "get")
			case *ir.ListSet:
				order = append(order, "set")
			}
		}
	}
	assert.Equal(t, []string{"get", "set"}, order)
}

func TestBuild_ListRepeatEitherSide(t *testing.T) {
	def := tu.Func("f", tu.Params("n", intT), intList,
		tu.Return(tu.Bin(ast.Mul, tu.Name("n", intT), tu.List(intList, tu.Int(0)))),
	)
	fn := build(t, def)
	assert.Equal(t, 1, countOps[*ir.ListRepeat](fn))
}

func TestBuild_TruthinessOfIntAndList(t *testing.T) {
	def := tu.Func("f", tu.Params("n", intT, "xs", intList), boolT,
		tu.Return(tu.Or(tu.Name("n", intT), tu.Name("xs", intList))),
	)
	fn := build(t, def)
	assert.Equal(t, 2, countOps[*ir.Compare](fn))
	assert.Equal(t, 1, countOps[*ir.ListLen](fn))
}

func TestBuildModule_IsolatesUnsupported(t *testing.T) {
	res := BuildModule(tu.SampleModule(), nil)
	require.Len(t, res.Excluded, 1)
	assert.Equal(t, "uses_dict", res.Excluded[0].Func)
	assert.Equal(t, "dict display", res.Excluded[0].Construct)

	assert.Nil(t, res.Function("uses_dict"))
	caller := res.Function("calls_dict")
	require.NotNil(t, caller, "caller of an excluded function still compiles")
	assert.Equal(t, 1, countOps[*ir.CallGeneric](caller))
	assert.Zero(t, countOps[*ir.Call](caller))

	fact := res.Function("fact")
	require.NotNil(t, fact)
	assert.Equal(t, 1, countOps[*ir.Call](fact), "self call binds natively")
	assert.Len(t, res.Signatures(), 7)
}

func TestBuildModule_ModuleLevelUnsupported(t *testing.T) {
	m := tu.Module("m", tu.AddFunc(), tu.FillFunc())
	m.Unsupported = []*ast.Unsupported{{Construct: "metaclass", Reason: "dynamic class creation", Pos: ast.Pos{Line: 1}}}
	res := BuildModule(m, nil)
	assert.Empty(t, res.Functions)
	require.Len(t, res.Excluded, 2)
	assert.Contains(t, res.Excluded[1].Reason, "module excluded")
}

func TestBuildModule_ImportsBindNatively(t *testing.T) {
	imports := Signatures{}
	imports.Add(ir.Signature{Module: "lib", Name: "g", Params: []types.RType{intT}, Return: intT})
	m := tu.Module("m", tu.Func("f", tu.Params("x", intT), intT,
		tu.Return(tu.CallIn("lib", "g", intT, tu.Name("x", intT))),
	))
	res := BuildModule(m, imports)
	require.Len(t, res.Functions, 1)
	assert.Equal(t, 1, countOps[*ir.Call](res.Functions[0]))
}

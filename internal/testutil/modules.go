package testutil

import (
	"github.com/roach88/refc/internal/ast"
	"github.com/roach88/refc/internal/types"
)

var (
	intList = types.List(types.Int)
	intT    = types.Int
)

// AddFunc is f(x: int, y: int) -> int: return x + y.
func AddFunc() *ast.FuncDef {
	return Func("add", Params("x", intT, "y", intT), intT,
		Return(Bin(ast.Add, Name("x", intT), Name("y", intT))),
	)
}

// FillFunc appends n items to a list in a loop and returns its length.
//
//	def fill(n: int) -> int:
//	    l = []
//	    k = 0
//	    while k < n:
//	        l.append(k)
//	        k = k + 1
//	    return len(l)
func FillFunc() *ast.FuncDef {
	return Func("fill", Params("n", intT), intT,
		Assign("l", List(intList)),
		Assign("k", Int(0)),
		While(Cmp(ast.Lt, Name("k", intT), Name("n", intT)),
			Expr(Append(Name("l", intList), Name("k", intT))),
			Assign("k", Bin(ast.Add, Name("k", intT), Int(1))),
		),
		Return(Len(Name("l", intList))),
	)
}

// FactFunc is a recursive factorial exercising direct self calls and big
// integer results.
func FactFunc() *ast.FuncDef {
	return Func("fact", Params("n", intT), intT,
		If(Cmp(ast.Le, Name("n", intT), Int(1)), []ast.Stmt{Return(Int(1))}),
		Return(Bin(ast.Mul, Name("n", intT), Call("fact", intT, Bin(ast.Sub, Name("n", intT), Int(1))))),
	)
}

// SumFunc sums a list of ints by index.
func SumFunc() *ast.FuncDef {
	return Func("total", Params("xs", intList), intT,
		Assign("s", Int(0)),
		Assign("k", Int(0)),
		While(Cmp(ast.Lt, Name("k", intT), Len(Name("xs", intList))),
			Assign("s", Bin(ast.Add, Name("s", intT), Index(Name("xs", intList), Name("k", intT)))),
			Assign("k", Bin(ast.Add, Name("k", intT), Int(1))),
		),
		Return(Name("s", intT)),
	)
}

// SwapFunc stores an element of a list into another slot of the same list
// and returns the list.
func SwapFunc() *ast.FuncDef {
	return Func("swap_first", Params("xs", intList), intList,
		SetItem(Name("xs", intList), Int(0), Index(Name("xs", intList), Int(-1))),
		Return(Name("xs", intList)),
	)
}

// PickFunc returns one of two lists depending on a flag, exercising values
// live on only one branch.
func PickFunc() *ast.FuncDef {
	return Func("pick", Params("flag", types.Bool), intList,
		Assign("a", List(intList, Int(1), Int(2))),
		Assign("b", Bin(ast.Mul, List(intList, Int(7)), Int(3))),
		If(Name("flag", types.Bool), []ast.Stmt{Return(Name("a", intList))}),
		Return(Name("b", intList)),
	)
}

// SampleModule bundles the sample functions, plus one function outside the
// subset, under the module name "sample".
func SampleModule() *ast.Module {
	return Module("sample",
		AddFunc(), FillFunc(), FactFunc(), SumFunc(), SwapFunc(), PickFunc(),
		Func("uses_dict", Params("x", intT), intT, Unsupported("dict display", 42), Return(Name("x", intT))),
		Func("calls_dict", Params("x", intT), intT,
			Return(Bin(ast.Add, Call("uses_dict", intT, Name("x", intT)), Int(1))),
		),
	)
}

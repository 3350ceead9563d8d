package frontend

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/refc/internal/ast"
	"github.com/roach88/refc/internal/ir"
	"github.com/roach88/refc/internal/irbuild"
	tu "github.com/roach88/refc/internal/testutil"
	"github.com/roach88/refc/internal/types"
)

func TestLoadFile_MatchesBuiltSample(t *testing.T) {
	m, err := LoadFile(filepath.Join("testdata", "sample.cue"))
	require.NoError(t, err)
	assert.Equal(t, "sample", m.Name)
	require.Len(t, m.Funcs, 8)

	want := irbuild.BuildModule(tu.SampleModule(), nil)
	got := irbuild.BuildModule(m, nil)
	require.Len(t, got.Functions, len(want.Functions))
	for i, fn := range want.Functions {
		assert.Equal(t, ir.Format(fn), ir.Format(got.Functions[i]), fn.Name())
	}

	require.Len(t, got.Excluded, 1)
	uf := got.Excluded[0]
	assert.Equal(t, "uses_dict", uf.Func)
	assert.Equal(t, "dict display", uf.Construct)
	assert.Equal(t, "sample.cue", filepath.Base(uf.Pos.File))
	assert.Positive(t, uf.Pos.Line)
}

func TestCompileString_Types(t *testing.T) {
	m, err := CompileString(`
module: "m"
functions: f: {
	params: {xs: "list[int]", flag: "bool"}
	returns: "int"
	body: [
		{assign: "n", value: {len: "xs"}},
		{assign: "ys", value: {op: "*", l: 2, r: "xs"}},
		{assign: "ok", value: {op: "and", l: "flag", r: {op: "not", x: {op: "==", l: "n", r: 0}}}},
		{assign: "big", value: 123456789012345678901234567890},
		{cond: "ok", then: [{return: {get: "ys", at: -1}}], else: ["pass"]},
		{return: {op: "-", x: "n"}},
	]
}
`, "m.cue")
	require.NoError(t, err)
	def := m.Func("f")
	require.NotNil(t, def)

	assert.Equal(t, map[string]types.RType{
		"n":   types.Int,
		"ys":  types.List(types.Int),
		"ok":  types.Bool,
		"big": types.Int,
	}, def.Locals)

	big := def.Body[3].(*ast.Assign).Value.(*ast.IntLit)
	assert.Equal(t, "123456789012345678901234567890", big.Value.String())

	cond := def.Body[4].(*ast.If)
	assert.Len(t, cond.Else, 1)
	idx := cond.Then[0].(*ast.Return).Value.(*ast.Index)
	assert.Equal(t, types.Int, idx.Type())
	assert.Equal(t, 11, def.Body[4].Position().Line)
	assert.Equal(t, "m.cue", def.Body[4].Position().File)
}

func TestCompileString_Unsupported(t *testing.T) {
	m, err := CompileString(`
module: "m"
unsupported: [{construct: "class definition", reason: "classes are outside the subset"}]
functions: {
	f: {
		params: {x: "int"}
		returns: "int"
		body: [{return: {op: "+", l: "x", r: {unsupported: "attribute access"}}}]
	}
	g: {
		returns: "int"
		rejected: "generator"
	}
	h: {
		returns: "None"
		body: [{eval: 1.5}, "return"]
	}
}
`, "m.cue")
	require.NoError(t, err)
	require.Len(t, m.Unsupported, 1)
	assert.Equal(t, "class definition", m.Unsupported[0].Construct)

	ret := m.Func("f").Body[0].(*ast.Return)
	ue, ok := ret.Value.(*ast.UnsupportedExpr)
	require.True(t, ok)
	assert.Equal(t, "attribute access", ue.Construct)

	g := m.Func("g")
	require.NotNil(t, g.Rejected)
	assert.Equal(t, "generator", g.Rejected.Construct)
	assert.Empty(t, g.Body)

	h := m.Func("h")
	_, ok = h.Body[0].(*ast.ExprStmt).X.(*ast.UnsupportedExpr)
	assert.True(t, ok, "float literals are outside the subset")
	assert.Nil(t, h.Body[1].(*ast.Return).Value)
}

func TestCompileString_CrossModuleCall(t *testing.T) {
	m, err := CompileString(`
module: "app"
functions: inc: {
	params: {x: "int"}
	returns: "int"
	body: [{return: {call: "add", module: "lib", args: ["x", 1], returns: "int"}}]
}
`, "app.cue")
	require.NoError(t, err)
	call := m.Func("inc").Body[0].(*ast.Return).Value.(*ast.Call)
	assert.Equal(t, "lib", call.Module)
	assert.Equal(t, types.Int, call.Type())

	// Naming the current module is a local call.
	m, err = CompileString(`
module: "app"
functions: {
	one: {returns: "int", body: [{return: 1}]}
	two: {returns: "int", body: [{return: {call: "one", module: "app"}}]}
}
`, "app.cue")
	require.NoError(t, err)
	assert.Empty(t, m.Func("two").Body[0].(*ast.Return).Value.(*ast.Call).Module)
}

func TestCompileString_Errors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		field string
		msg   string
		code  string
	}{
		{
			name:  "missing module",
			src:   `functions: {}`,
			field: "module",
			msg:   "module name is required",
			code:  ErrCodeSchema,
		},
		{
			name:  "undefined name",
			src:   `module: "m", functions: f: {returns: "int", body: [{return: "y"}]}`,
			field: "functions.f.name",
			msg:   `name "y" is not defined`,
			code:  ErrCodeName,
		},
		{
			name:  "undefined function",
			src:   `module: "m", functions: f: {returns: "int", body: [{return: {call: "g"}}]}`,
			field: "functions.f.name",
			msg:   `function "g" is not defined in module m`,
			code:  ErrCodeName,
		},
		{
			name:  "return type",
			src:   `module: "m", functions: f: {returns: "int", body: [{return: true}]}`,
			field: "functions.f.type",
			msg:   "returning bool from function declared to return int",
			code:  ErrCodeType,
		},
		{
			name:  "operand types",
			src:   `module: "m", functions: f: {params: {b: "bool"}, returns: "int", body: [{return: {op: "+", l: "b", r: 1}}]}`,
			field: "functions.f.type",
			msg:   "unsupported operand types for +: bool and int",
			code:  ErrCodeType,
		},
		{
			name:  "local retyped",
			src:   `module: "m", functions: f: {body: [{assign: "a", value: 1}, {assign: "a", value: false}]}`,
			field: "functions.f.type",
			msg:   `cannot assign bool to "a" of type int`,
			code:  ErrCodeType,
		},
		{
			name:  "empty list",
			src:   `module: "m", functions: f: {body: [{assign: "a", value: {list: []}}]}`,
			field: "functions.f.type",
			msg:   "empty list needs an elem type",
			code:  ErrCodeType,
		},
		{
			name:  "arity",
			src:   `module: "m", functions: {g: {params: {x: "int"}, body: []}, f: {body: [{eval: {call: "g"}}]}}`,
			field: "functions.f.type",
			msg:   "g() takes 1 arguments but 0 were given",
			code:  ErrCodeType,
		},
		{
			name:  "bad type string",
			src:   `module: "m", functions: f: {params: {x: "float"}, body: []}`,
			field: "functions.f.params.x.type",
			msg:   `unsupported type "float"`,
			code:  ErrCodeType,
		},
		{
			name:  "unknown statement",
			src:   `module: "m", functions: f: {body: ["goto"]}`,
			field: "functions.f.body",
			msg:   `unknown statement "goto"`,
			code:  ErrCodeSchema,
		},
		{
			name:  "missing body",
			src:   `module: "m", functions: f: {returns: "int"}`,
			field: "functions.f.body",
			msg:   "function body is required",
			code:  ErrCodeSchema,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileString(tt.src, "bad.cue")
			var ce *CompileError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tt.field, ce.Field)
			assert.Equal(t, tt.msg, ce.Message)
			assert.Equal(t, tt.code, MapFieldToErrorCode(ce.Field))
		})
	}
}

func TestCompileString_CUEError(t *testing.T) {
	_, err := CompileString("module: \"m\"\nmodule: \"n\"\n", "conflict.cue")
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "cue", ce.Field)
	assert.True(t, ce.Pos.IsValid())
	assert.Equal(t, ErrCodeBuildFailed, MapFieldToErrorCode(ce.Field))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.cue", `module: "a", functions: one: {returns: "int", body: [{return: 1}]}`)
	writeFile(t, dir, "nested/b.cue", `module: "b", functions: two: {returns: "int", body: [{return: 2}]}`)
	writeFile(t, dir, "notes.txt", "not a module")

	res, errs := LoadDir(dir, LoadModeCollectAll)
	require.Empty(t, errs)
	assert.Equal(t, 2, res.FileCount)
	require.NotNil(t, res.Module("a"))
	require.NotNil(t, res.Module("b"))
	assert.Nil(t, res.Module("c"))
	assert.Equal(t, filepath.Join(dir, "nested", "b.cue"), res.Files["b"])
}

func TestLoadDir_Errors(t *testing.T) {
	_, errs := LoadDir(filepath.Join(t.TempDir(), "missing"), LoadModeFailFast)
	require.Len(t, errs, 1)
	var le *LoadError
	require.True(t, errors.As(errs[0], &le))
	assert.Equal(t, ErrCodeNotFound, le.Code)

	_, errs = LoadDir(t.TempDir(), LoadModeFailFast)
	require.Len(t, errs, 1)
	require.True(t, errors.As(errs[0], &le))
	assert.Equal(t, ErrCodeNoFiles, le.Code)

	dir := t.TempDir()
	writeFile(t, dir, "a.cue", `module: "a", functions: f: {returns: "int", body: [{return: "nope"}]}`)
	writeFile(t, dir, "b.cue", `module: "b", functions: {}`)
	writeFile(t, dir, "c.cue", `module: "b", functions: {}`)

	res, errs := LoadDir(dir, LoadModeCollectAll)
	require.Len(t, errs, 2)
	require.True(t, errors.As(errs[0], &le))
	assert.Equal(t, ErrCodeName, le.Code)
	assert.True(t, le.Pos.IsValid())
	assert.Contains(t, errs[1].Error(), "module b defined in both")
	assert.Len(t, res.Modules, 1)

	_, errs = LoadDir(dir, LoadModeFailFast)
	assert.Len(t, errs, 1)
}

func TestLoadFile_NotFound(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.cue"))
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrCodeNotFound, le.Code)
}

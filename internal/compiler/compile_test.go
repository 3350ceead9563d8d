package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/refc/internal/ast"
	"github.com/roach88/refc/internal/extmod"
	"github.com/roach88/refc/internal/host"
	tu "github.com/roach88/refc/internal/testutil"
	"github.com/roach88/refc/internal/types"
)

func TestCompile_SampleModule(t *testing.T) {
	res, err := Compile(tu.SampleModule(), NewOptions(WithC(), WithRawIR()))
	require.NoError(t, err)

	assert.Equal(t, 7, res.Compiled())
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, "uses_dict", res.Diagnostics[0].Func)

	names := make([]string, len(res.Functions))
	for i, f := range res.Functions {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"add", "fill", "fact", "total", "swap_first", "pick", "uses_dict", "calls_dict"}, names,
		"reports follow source order")

	rep, ok := res.Report("uses_dict")
	require.True(t, ok)
	assert.False(t, rep.Compiled)
	assert.Contains(t, rep.Reason, "dict display")
	assert.Equal(t, 42, rep.Pos.Line)

	fill, ok := res.Report("fill")
	require.True(t, ok)
	assert.True(t, fill.Compiled)
	assert.NotContains(t, fill.RawIR, "dec_ref")
	assert.Contains(t, fill.IR, "dec_ref l")
	assert.Positive(t, fill.Stats.DecRefs)
	assert.Equal(t, "sample.fill(int) -> int", fill.Signature)
	assert.NotEmpty(t, fill.Fingerprint)

	assert.Contains(t, string(res.C), "const export_t sample__exports[] = {")
}

func TestCompile_LoadAndRun(t *testing.T) {
	res, err := Compile(tu.SampleModule(), Options{})
	require.NoError(t, err)
	assert.Nil(t, res.C)

	r := host.NewRuntime()
	res.Module.Load(r)
	got, err := r.Invoke("sample", "total", []any{4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, int64(15), got)
	assert.Zero(t, r.Heap.Live())
}

func TestCompile_ModuleNameOverride(t *testing.T) {
	src := tu.Module("orig", tu.AddFunc())
	res, err := Compile(src, Options{ModuleName: "renamed"})
	require.NoError(t, err)

	assert.Equal(t, "renamed", res.Module.Name)
	assert.Equal(t, "orig", src.Name, "source module is not modified")
	_, ok := res.Module.Capsule.Lookup("add")
	assert.True(t, ok)
}

func TestCompile_WithCapsule(t *testing.T) {
	intT := types.Int
	lib, err := Compile(tu.Module("lib", tu.AddFunc()), Options{})
	require.NoError(t, err)

	app := tu.Module("app",
		tu.Func("inc", tu.Params("x", intT), intT,
			tu.Return(tu.CallIn("lib", "add", intT, tu.Name("x", intT), tu.Int(1)))),
	)
	res, err := Compile(app, NewOptions(WithCapsule(lib.Module.Capsule), WithRawIR()))
	require.NoError(t, err)
	rep, _ := res.Report("inc")
	assert.Contains(t, rep.RawIR, "lib.add(x, ")
	assert.NotContains(t, rep.RawIR, "host_call")

	r := host.NewRuntime()
	res.Module.Load(r)
	got, err := r.Invoke("app", "inc", 41)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)

	// Without the capsule the call goes through the host namespace.
	generic, err := Compile(app, NewOptions(WithRawIR()))
	require.NoError(t, err)
	rep, _ = generic.Report("inc")
	assert.Contains(t, rep.RawIR, "host_call lib.add")

	stale := extmod.NewCapsule(lib.Module.Program, extmod.WithABIVersion(extmod.ABIVersion+1))
	_, err = Compile(app, NewOptions(WithCapsule(stale)))
	var ce *extmod.CapsuleError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, extmod.ABIVersion+1, ce.GotABI)
}

func TestCompile_ModuleLevelUnsupported(t *testing.T) {
	m := tu.SampleModule()
	m.Unsupported = []*ast.Unsupported{{Construct: "class definition", Reason: "classes are outside the subset"}}

	res, err := Compile(m, Options{})
	require.NoError(t, err)
	assert.Zero(t, res.Compiled())
	assert.Len(t, res.Diagnostics, len(m.Funcs))

	// Every function still runs, interpreted.
	r := host.NewRuntime()
	res.Module.Load(r)
	got, err := r.Invoke("sample", "add", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)
	assert.False(t, r.Module("sample").IsNative("add"))
}

func TestInternalError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := error(&InternalError{Module: "m", Func: "f", Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.EqualError(t, err, "internal compiler error in m.f: boom")
}

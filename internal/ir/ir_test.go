package ir

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/refc/internal/types"
)

// buildAdd builds `def m.f(x: int, y: int) -> int: return x + y` by hand.
func buildAdd() *Function {
	sig := Signature{Module: "m", Name: "f", Params: []types.RType{types.Int, types.Int}, Return: types.Int}
	fn := NewFunction(sig, []string{"x", "y"})
	entry := fn.NewBlock()
	errBlock := fn.NewBlock()
	ok := fn.NewBlock()

	sum := fn.NewTemp(types.Int)
	entry.Ops = append(entry.Ops,
		&BinaryOp{Dst: sum, Op: Add, Left: fn.Params[0], Right: fn.Params[1]},
		&Branch{Kind: BranchIsError, Cond: sum, Then: errBlock, Else: ok},
	)
	errBlock.Ops = append(errBlock.Ops, &Return{})
	ok.Ops = append(ok.Ops, &Return{Value: sum})
	return fn
}

func TestFormat(t *testing.T) {
	want := `def m.f(x: int, y: int) -> int:
L0:
    r2 = x + y
    if is_error(r2) goto L1 else goto L2
L1:
    return <error>
L2:
    return r2
`
	assert.Equal(t, want, Format(buildAdd()))
}

func TestValidate_WellFormed(t *testing.T) {
	assert.Empty(t, Validate(buildAdd()))
}

func TestValidate_Defects(t *testing.T) {
	t.Run("missing terminator", func(t *testing.T) {
		fn := buildAdd()
		fn.Blocks[2].Ops = nil
		errs := Validate(fn)
		require.NotEmpty(t, errs)
		assert.Equal(t, ErrMissingTerminator, errs[0].Code)
	})

	t.Run("terminator mid block", func(t *testing.T) {
		fn := buildAdd()
		b := fn.Blocks[2]
		b.Ops = append([]Op{&Goto{Target: b}}, b.Ops...)
		errs := Validate(fn)
		require.Len(t, errs, 1)
		assert.Equal(t, ErrMisplacedTerm, errs[0].Code)
	})

	t.Run("double definition", func(t *testing.T) {
		fn := buildAdd()
		sum := fn.Values[0]
		b := fn.Blocks[2]
		b.Ops = append([]Op{&LoadInt{Dst: sum, Value: big.NewInt(1)}}, b.Ops...)
		errs := Validate(fn)
		require.Len(t, errs, 1)
		assert.Equal(t, ErrMultipleDefinition, errs[0].Code)
	})

	t.Run("type mismatch", func(t *testing.T) {
		fn := buildAdd()
		flag := fn.NewTemp(types.Bool)
		b := fn.Blocks[2]
		b.Ops = append([]Op{&LoadBool{Dst: flag}, &Assign{Dst: fn.Params[0], Src: flag}}, b.Ops...)
		codes := []string{}
		for _, e := range Validate(fn) {
			codes = append(codes, e.Code)
		}
		assert.ElementsMatch(t, []string{ErrTypeMismatch, ErrAssignTarget}, codes)
	})

	t.Run("refcount on bool", func(t *testing.T) {
		fn := buildAdd()
		flag := fn.NewTemp(types.Bool)
		b := fn.Blocks[2]
		b.Ops = append([]Op{&LoadBool{Dst: flag}, &DecRef{V: flag}}, b.Ops...)
		errs := Validate(fn)
		require.Len(t, errs, 1)
		assert.Equal(t, ErrRefCountNonHeap, errs[0].Code)
	})
}

func TestPredecessorsAndRetarget(t *testing.T) {
	fn := buildAdd()
	preds := fn.Predecessors()
	assert.Equal(t, []*BasicBlock{fn.Blocks[0]}, preds[fn.Blocks[1]])
	assert.Empty(t, preds[fn.Blocks[0]])

	split := fn.NewBlock()
	split.Ops = append(split.Ops, &Goto{Target: fn.Blocks[2]})
	fn.Blocks[0].Terminator().Retarget(fn.Blocks[2], split)
	assert.Equal(t, []*BasicBlock{fn.Blocks[1], split}, fn.Blocks[0].Successors())
}

func TestRemoveUnreachable(t *testing.T) {
	fn := buildAdd()
	dead := fn.NewBlock()
	dead.Ops = append(dead.Ops, &Unreachable{})
	fn.RemoveUnreachable()
	assert.Len(t, fn.Blocks, 3)
}

func TestCanFail(t *testing.T) {
	fn := buildAdd()
	x := fn.Params[0]
	obj := fn.NewTemp(types.Object)
	assert.False(t, (&LoadInt{Dst: x, Value: big.NewInt(7)}).CanFail())
	huge, _ := new(big.Int).SetString("10000000000000000000000", 10)
	assert.True(t, (&LoadInt{Dst: x, Value: huge}).CanFail())
	assert.False(t, (&Unbox{Dst: fn.NewTemp(types.Object), Src: obj}).CanFail())
	assert.True(t, (&Unbox{Dst: fn.NewTemp(types.Int), Src: obj}).CanFail())
	assert.True(t, (&ListSet{}).Steals(2))
	assert.False(t, (&ListAppend{}).Steals(1))
}

func TestMarshalCanonical(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected string
	}{
		{"string", "hello", `"hello"`},
		{"int", 42, "42"},
		{"bool", true, "true"},
		{"no html escaping", "a<b&c", `"a<b&c"`},
		{"sorted keys", map[string]any{"zebra": 1, "alpha": 2}, `{"alpha":2,"zebra":1}`},
		{"nested", map[string]any{"b": []any{"x", int64(1)}, "a": []string{"int"}}, `{"a":["int"],"b":["x",1]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MarshalCanonical(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(got))
		})
	}

	_, err := MarshalCanonical(map[string]any{"f": 1.5})
	assert.Error(t, err)
	_, err = MarshalCanonical(nil)
	assert.Error(t, err)
}

func TestFingerprints(t *testing.T) {
	sig := buildAdd().Sig
	fp := SignatureFingerprint(sig)
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, SignatureFingerprint(sig), "deterministic")

	changed := sig
	changed.Return = types.Bool
	assert.NotEqual(t, fp, SignatureFingerprint(changed))

	mod := ModuleFingerprint("m", []Signature{sig})
	assert.NotEqual(t, mod, ModuleFingerprint("m", []Signature{changed}))
	assert.NotEqual(t, SourceFingerprint([]byte("a"), ""), SourceFingerprint([]byte("a"), "emit"))
}

func TestFunctionFingerprint(t *testing.T) {
	a, b := buildAdd(), buildAdd()
	assert.Equal(t, FunctionFingerprint(a), FunctionFingerprint(b))

	b.RefCounted = true
	assert.NotEqual(t, FunctionFingerprint(a), FunctionFingerprint(b))

	c := buildAdd()
	c.Blocks[0].Ops[0].(*BinaryOp).Op = Sub
	assert.NotEqual(t, FunctionFingerprint(a), FunctionFingerprint(c), "body change")
	assert.Equal(t, SignatureFingerprint(a.Sig), SignatureFingerprint(c.Sig))
}

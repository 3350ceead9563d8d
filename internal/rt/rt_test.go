package rt

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/refc/internal/types"
)

// panicOnAbort turns Abort into a recoverable panic for the duration of a test.
func panicOnAbort(t *testing.T) {
	t.Helper()
	prev := SetAbortHandler(func(msg string) { panic("abort: " + msg) })
	t.Cleanup(func() { SetAbortHandler(prev) })
}

func bigInt(t *testing.T, f *Frame, s string) Word {
	t.Helper()
	b, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	w := IntFromBig(f, b)
	require.NotEqual(t, ErrorSentinel, w)
	return w
}

func TestWord_Tagging(t *testing.T) {
	for _, i := range []int64{0, 1, -1, 42, ShortMax, ShortMin} {
		w := FromShort(i)
		assert.True(t, w.IsShort(), "%d", i)
		assert.Equal(t, i, w.Short())
	}
	for _, w := range []Word{None, ErrorSentinel, True, False} {
		assert.True(t, w.IsRef())
	}
	assert.False(t, FitsShort(ShortMax+1))
	assert.False(t, FitsShort(ShortMin-1))
}

func TestIntArith_OverflowRoundTrip(t *testing.T) {
	boundary := []int64{ShortMax, ShortMax - 1, ShortMin, ShortMin + 1, -1, 0, 1}
	ops := []struct {
		name string
		fast func(*Frame, Word, Word) Word
		slow func(z, x, y *big.Int) *big.Int
	}{
		{"add", IntAdd, (*big.Int).Add},
		{"sub", IntSub, (*big.Int).Sub},
		{"mul", IntMul, (*big.Int).Mul},
	}
	for _, op := range ops {
		for _, a := range boundary {
			for _, b := range boundary {
				t.Run(fmt.Sprintf("%s/%d/%d", op.name, a, b), func(t *testing.T) {
					f := NewFrame(NewHeap())
					got := op.fast(f, FromShort(a), FromShort(b))
					require.NotEqual(t, ErrorSentinel, got)

					want := op.slow(new(big.Int), big.NewInt(a), big.NewInt(b))
					assert.Equal(t, 0, want.Cmp(f.Heap.BigOf(got)))
					fits := want.IsInt64() && FitsShort(want.Int64())
					assert.Equal(t, fits, got.IsShort(), "canonical representation")
				})
			}
		}
	}
}

func TestIntArith_BigOperandsNormalize(t *testing.T) {
	f := NewFrame(NewHeap())
	big1 := IntAdd(f, FromShort(ShortMax), FromShort(1))
	require.True(t, big1.IsRef())
	assert.Equal(t, 1, f.Heap.Live())

	back := IntSub(f, big1, FromShort(1))
	assert.True(t, back.IsShort())
	assert.Equal(t, int64(ShortMax), back.Short())
	assert.Equal(t, 1, f.Heap.Live(), "normalized result does not allocate")

	f.Heap.DecRef(big1)
	assert.Equal(t, 0, f.Heap.Live())
}

func TestIntArith_FloorSemantics(t *testing.T) {
	f := NewFrame(NewHeap())
	tests := []struct {
		a, b     int64
		div, mod int64
	}{
		{7, 2, 3, 1},
		{-7, 2, -4, 1},
		{7, -2, -4, -1},
		{-7, -2, 3, -1},
		{6, 3, 2, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.div, IntFloorDiv(f, FromShort(tt.a), FromShort(tt.b)).Short(), "%d // %d", tt.a, tt.b)
		assert.Equal(t, tt.mod, IntMod(f, FromShort(tt.a), FromShort(tt.b)).Short(), "%d %% %d", tt.a, tt.b)
	}

	q := IntFloorDiv(f, FromShort(ShortMin), FromShort(-1))
	require.True(t, q.IsRef())
	assert.Equal(t, 0, new(big.Int).Neg(big.NewInt(ShortMin)).Cmp(f.Heap.BigOf(q)))

	neg := IntNeg(f, FromShort(ShortMin))
	assert.True(t, neg.IsRef())

	big1 := bigInt(t, f, "-100000000000000000000000")
	q = IntFloorDiv(f, big1, FromShort(7))
	want, _ := floorDivMod(f.Heap.BigOf(big1), big.NewInt(7))
	assert.Equal(t, 0, want.Cmp(f.Heap.BigOf(q)))
}

func TestIntArith_DivisionByZero(t *testing.T) {
	f := NewFrame(NewHeap())
	got := IntFloorDiv(f, FromShort(1), FromShort(0))
	assert.Equal(t, ErrorSentinel, got)
	assert.True(t, IsCode(f.TakeError(), ErrZeroDiv))

	got = IntMod(f, FromShort(1), FromShort(0))
	assert.Equal(t, ErrorSentinel, got)
	assert.True(t, IsCode(f.TakeError(), ErrZeroDiv))
}

func TestIntCompare(t *testing.T) {
	f := NewFrame(NewHeap())
	huge := bigInt(t, f, "100000000000000000000000")
	allocs := f.Heap.Allocations()

	assert.True(t, IntLt(f.Heap, FromShort(-3), FromShort(2)))
	assert.True(t, IntLe(f.Heap, FromShort(2), FromShort(2)))
	assert.False(t, IntLt(f.Heap, FromShort(2), FromShort(2)))
	assert.True(t, IntLt(f.Heap, FromShort(ShortMax), huge))
	assert.True(t, IntEq(f.Heap, huge, huge))
	assert.Equal(t, -1, IntCompare(f.Heap, FromShort(ShortMin), FromShort(ShortMax)))
	assert.Equal(t, allocs, f.Heap.Allocations(), "comparisons never allocate")
}

func TestHeap_AllocationLimit(t *testing.T) {
	h := NewHeap()
	h.SetLimits(Limits{MaxObjects: 1})
	f := NewFrame(h)

	first := IntAdd(f, FromShort(ShortMax), FromShort(1))
	require.True(t, first.IsRef())

	second := IntAdd(f, FromShort(ShortMax), FromShort(2))
	assert.Equal(t, ErrorSentinel, second)
	assert.True(t, IsCode(f.TakeError(), ErrMemory))
}

func TestHeap_ImmortalObjectsIgnoreRefCounting(t *testing.T) {
	var events []Event
	h := NewHeap()
	h.SetTrace(func(e Event) { events = append(events, e) })
	for _, w := range []Word{None, True, False} {
		h.IncRef(w)
		h.DecRef(w)
		h.DecRef(w)
	}
	assert.Empty(t, events)
	assert.Equal(t, 0, h.Live())
}

func TestHeap_UnderflowAborts(t *testing.T) {
	panicOnAbort(t)
	f := NewFrame(NewHeap())
	w := IntAdd(f, FromShort(ShortMax), FromShort(1))
	f.Heap.DecRef(w)

	assert.Panics(t, func() { f.Heap.DecRef(w) }, "use after free")
}

func TestHeap_FreedSlotsAreReused(t *testing.T) {
	f := NewFrame(NewHeap())
	h := f.Heap
	base := len(h.objects)

	for i := 0; i < 100000; i++ {
		l := ListNew(f, []Word{FromShort(int64(i))})
		require.True(t, l.IsRef())
		h.DecRef(l)
	}
	assert.Equal(t, 0, h.Live())
	assert.Equal(t, 100000, h.Allocations())
	assert.LessOrEqual(t, len(h.objects), base+1)

	outer := ListNew(f, nil)
	for i := 0; i < 4; i++ {
		item := bigInt(t, f, fmt.Sprintf("1%020d", i))
		require.NotEqual(t, ErrorSentinel, ListAppend(f, outer, item))
		h.DecRef(item)
	}
	h.DecRef(outer)
	assert.Equal(t, 0, h.Live())
	assert.LessOrEqual(t, len(h.objects), base+5)

	again := ListNew(f, nil)
	assert.Less(t, again.index(), base+5)
	h.DecRef(again)
}

func TestList_GetSetAppendLen(t *testing.T) {
	f := NewFrame(NewHeap())
	h := f.Heap
	item := bigInt(t, f, "123456789012345678901234567890")

	l := ListNew(f, []Word{item, BoxInt(f, FromShort(1))})
	require.True(t, l.IsRef())
	assert.Equal(t, int64(2), h.RefCount(item), "list holds its own reference")
	assert.Equal(t, int64(2), ListLen(h, l).Short())

	got := ListGet(f, l, FromShort(-2))
	assert.Equal(t, item, got)
	assert.Equal(t, int64(3), h.RefCount(item))
	h.DecRef(got)

	assert.Equal(t, ErrorSentinel, ListGet(f, l, FromShort(2)))
	assert.True(t, IsCode(f.TakeError(), ErrIndex))

	require.Equal(t, None, ListSet(f, l, FromShort(0), BoxInt(f, FromShort(7))))
	assert.Equal(t, int64(1), h.RefCount(item), "displaced element released")

	require.Equal(t, None, ListAppend(f, l, item))
	assert.Equal(t, int64(3), ListLen(h, l).Short())
	assert.Equal(t, int64(2), h.RefCount(item))

	h.DecRef(l)
	assert.Equal(t, int64(1), h.RefCount(item))
	h.DecRef(item)
	assert.Equal(t, 0, h.Live())
	assert.Equal(t, 0, h.Cells())
}

func TestList_SetOutOfRangeStealsItem(t *testing.T) {
	f := NewFrame(NewHeap())
	h := f.Heap
	l := ListNew(f, nil)
	item := bigInt(t, f, "99999999999999999999999")

	assert.Equal(t, ErrorSentinel, ListSet(f, l, FromShort(0), item))
	assert.True(t, IsCode(f.TakeError(), ErrIndex))
	assert.Nil(t, h.Object(item), "stolen item released on failure")
	h.DecRef(l)
	assert.Equal(t, 0, h.Live())
}

func TestList_AppendGrowth(t *testing.T) {
	f := NewFrame(NewHeap())
	l := ListNew(f, nil)
	caps := []int{}
	for i := range 10 {
		require.Equal(t, None, ListAppend(f, l, BoxInt(f, FromShort(int64(i)))))
		caps = append(caps, f.Heap.Cells())
	}
	assert.Equal(t, []int{4, 4, 4, 4, 8, 8, 8, 8, 16, 16}, caps)
	assert.Equal(t, int64(10), ListLen(f.Heap, l).Short())
}

func TestList_AppendCellLimit(t *testing.T) {
	h := NewHeap()
	h.SetLimits(Limits{MaxCells: 4})
	f := NewFrame(h)
	l := ListNew(f, nil)
	for i := range 4 {
		require.Equal(t, None, ListAppend(f, l, BoxInt(f, FromShort(int64(i)))))
	}
	assert.Equal(t, ErrorSentinel, ListAppend(f, l, None))
	assert.True(t, IsCode(f.TakeError(), ErrMemory))
	assert.Equal(t, int64(4), ListLen(h, l).Short())
}

func TestList_Repeat(t *testing.T) {
	f := NewFrame(NewHeap())
	h := f.Heap
	item := bigInt(t, f, "77777777777777777777777")
	l := ListNew(f, []Word{BoxInt(f, FromShort(1)), item})

	r := ListRepeat(f, l, FromShort(3))
	require.True(t, r.IsRef())
	assert.Equal(t, int64(6), ListLen(h, r).Short())
	assert.Equal(t, int64(5), h.RefCount(item))
	for i := range 6 {
		got := ListGet(f, r, FromShort(int64(i)))
		if i%2 == 1 {
			assert.Equal(t, item, got)
		}
		h.DecRef(got)
	}

	for _, n := range []int64{0, -4} {
		empty := ListRepeat(f, l, FromShort(n))
		assert.Equal(t, int64(0), ListLen(h, empty).Short())
		h.DecRef(empty)
	}

	huge := bigInt(t, f, "100000000000000000000000")
	assert.Equal(t, ErrorSentinel, ListRepeat(f, l, huge))
	assert.True(t, IsCode(f.TakeError(), ErrOverflow))
	h.DecRef(huge)
}

func TestList_RepeatBigCountOverflows(t *testing.T) {
	f := NewFrame(NewHeap())
	h := f.Heap
	full := ListNew(f, []Word{FromShort(1)})
	empty := ListNew(f, nil)

	tests := []struct {
		name  string
		list  Word
		count string
	}{
		{"big positive, empty list", empty, "100000000000000000000000"},
		{"big negative", full, "-100000000000000000000000"},
		{"big negative, empty list", empty, "-100000000000000000000000"},
		{"just past short max", full, "4611686018427387904"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := h.Live()
			n := bigInt(t, f, tt.count)
			assert.Equal(t, ErrorSentinel, ListRepeat(f, tt.list, n))
			assert.True(t, IsCode(f.TakeError(), ErrOverflow))
			h.DecRef(n)
			assert.Equal(t, before, h.Live())
		})
	}
	h.DecRef(full)
	h.DecRef(empty)
	assert.Equal(t, 0, h.Live())
}

func TestBox_RoundTrip(t *testing.T) {
	f := NewFrame(NewHeap())
	h := f.Heap

	small := BoxInt(f, FromShort(5))
	assert.Equal(t, 0, h.Live(), "small ints are cached")
	assert.Equal(t, int64(5), UnboxInt(f, small).Short())

	boxed := BoxInt(f, FromShort(1000))
	assert.Equal(t, 1, h.Live())
	assert.Equal(t, int64(1000), UnboxInt(f, boxed).Short())
	h.DecRef(boxed)

	assert.Equal(t, True, BoxBool(NativeTrue))
	assert.Equal(t, NativeFalse, UnboxBool(f, False))
	assert.Equal(t, FromShort(1), UnboxInt(f, True), "bool is an int subtype")

	assert.Equal(t, ErrorSentinel, UnboxBool(f, small))
	assert.True(t, IsCode(f.TakeError(), ErrType))
	assert.Equal(t, ErrorSentinel, Unbox(f, types.List(types.Int), small))
	assert.True(t, IsCode(f.TakeError(), ErrType))
	assert.Equal(t, 0, h.Live())
}

func TestCheckType(t *testing.T) {
	f := NewFrame(NewHeap())
	l := ListNew(f, nil)
	tests := []struct {
		w    Word
		t    types.RType
		want bool
	}{
		{BoxInt(f, FromShort(1)), types.Int, true},
		{True, types.Int, true},
		{True, types.Bool, true},
		{BoxInt(f, FromShort(1)), types.Bool, false},
		{None, types.None, true},
		{l, types.List(types.Int), true},
		{l, types.Int, false},
		{None, types.Object, true},
		{FromShort(3), types.Int, false},
		{ErrorSentinel, types.Object, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CheckType(f.Heap, tt.w, tt.t), "%s as %s", Describe(f.Heap, tt.w), tt.t)
	}
}

func TestFrame_RecursionLimit(t *testing.T) {
	f := NewFrame(NewHeap())
	f.MaxDepth = 2
	require.True(t, f.Enter())
	require.True(t, f.Enter())
	assert.False(t, f.Enter())
	assert.True(t, IsCode(f.TakeError(), ErrRecursion))
	f.Leave()
	assert.Equal(t, 1, f.Depth)
}

func TestDescribe(t *testing.T) {
	f := NewFrame(NewHeap())
	assert.Equal(t, "short int -4", Describe(f.Heap, FromShort(-4)))
	assert.Equal(t, "None", Describe(f.Heap, None))
	l := ListNew(f, nil)
	assert.Equal(t, "<list len=0 refcount=1>", Describe(f.Heap, l))
	f.Heap.DecRef(l)
	assert.Contains(t, Describe(f.Heap, l), "freed")
}

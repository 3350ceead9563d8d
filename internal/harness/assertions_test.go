package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertions(t *testing.T) {
	result, err := Run(loadScenario(t, "sample.yaml"))
	require.NoError(t, err)
	h := &Harness{result: result, first: "sample"}

	tests := []struct {
		name string
		a    Assertion
		msg  string // empty: assertion holds
	}{
		{"compiled", Assertion{Type: AssertCompiled, Func: "fact"}, ""},
		{"compiled but excluded", Assertion{Type: AssertCompiled, Func: "uses_dict"}, "excluded: "},
		{"interpreted", Assertion{Type: AssertInterpreted, Func: "sample.uses_dict", Reason: "dict"}, ""},
		{"interpreted but compiled", Assertion{Type: AssertInterpreted, Func: "fact"}, "compiled natively"},
		{"wrong reason", Assertion{Type: AssertInterpreted, Func: "uses_dict", Reason: "lambda"}, `reason containing "lambda"`},
		{"ir contains", Assertion{Type: AssertIRContains, Func: "fill", Text: "dec_ref l"}, ""},
		{"ir missing text", Assertion{Type: AssertIRContains, Func: "add", Text: "inc_ref"}, `IR containing "inc_ref"`},
		{"ir of excluded", Assertion{Type: AssertIRContains, Func: "uses_dict", Text: "x"}, "Expected: compiled IR"},
		{"trace count", Assertion{Type: AssertTraceCount, Func: "total", Count: 7}, ""},
		{"trace count entry", Assertion{Type: AssertTraceCount, Func: "total", Entry: EntryBoundary, Count: 3}, ""},
		{"trace count wrong", Assertion{Type: AssertTraceCount, Func: "fact", Count: 1}, "Expected: 1 calls on all entries"},
		{"trace count absent", Assertion{Type: AssertTraceCount, Func: "add", Count: 0}, ""},
		{"unknown module", Assertion{Type: AssertCompiled, Func: "other.f"}, `unknown module "other"`},
		{"unknown function", Assertion{Type: AssertCompiled, Func: "nope"}, "no such function"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.assert(tt.a)
			if tt.msg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestAssertionError_ListsCalls(t *testing.T) {
	err := assertTraceCount([]TraceEvent{
		{Seq: 1, Func: "m.f", Entry: EntryInterp, Args: "1"},
		{Seq: 2, Func: "m.g", Entry: EntryInterp, Args: "2"},
		{Seq: 3, Func: "m.f", Entry: EntryNative, Args: "1"},
	}, "m.f", Assertion{Type: AssertTraceCount, Entry: EntryNative, Count: 2})

	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "1 calls", ae.Actual)
	assert.Len(t, ae.Trace, 1)
	assert.Contains(t, err.Error(), "[3] native m.f(1)")
	assert.Contains(t, err.Error(), "Expected: 2 calls on native")
}

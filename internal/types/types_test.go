package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{"int", "bool", "None", "object", "list[int]", "list[list[object]]"}
	for _, s := range cases {
		t.Run(s, func(t *testing.T) {
			typ, err := Parse(s)
			require.NoError(t, err)
			assert.True(t, typ.IsValid())
			assert.Equal(t, s, typ.String())
		})
	}
}

func TestParseRejectsUnknown(t *testing.T) {
	for _, s := range []string{"float", "str", "list[float]", "dict[int, int]", ""} {
		_, err := Parse(s)
		assert.Error(t, err, s)
	}
}

func TestRefCounted(t *testing.T) {
	assert.True(t, Int.IsRefCounted(), "int may hold a big integer reference")
	assert.True(t, List(Int).IsRefCounted())
	assert.True(t, Object.IsRefCounted())
	assert.False(t, Bool.IsRefCounted())
	assert.False(t, None.IsRefCounted())
}

func TestEqual(t *testing.T) {
	assert.True(t, List(Int).Equal(MustParse("list[int]")))
	assert.False(t, List(Int).Equal(List(Object)))
	assert.False(t, Int.Equal(Bool))
	assert.True(t, List(Int).AssignableTo(Object))
	assert.False(t, Object.AssignableTo(Int))
}

func TestElemType(t *testing.T) {
	assert.Equal(t, "int", List(Int).ElemType().String())
	assert.Equal(t, "object", Int.ElemType().String())
}

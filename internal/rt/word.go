package rt

import "math"

// Word is a tagged machine word.
type Word int64

// Short integer range: one bit is spent on the tag.
const (
	ShortMax = math.MaxInt64 >> 1
	ShortMin = math.MinInt64 >> 1
)

// Reserved reference words. Indices 0-3 of every heap are these objects.
const (
	None          Word = 0<<1 | 1
	ErrorSentinel Word = 1<<1 | 1
	False         Word = 2<<1 | 1
	True          Word = 3<<1 | 1
)

// Native representation of bool values: unboxed 0 and 1.
const (
	NativeFalse Word = 0
	NativeTrue  Word = 1
)

// Small integers in [SmallIntMin, SmallIntMax] box to immortal cached objects.
const (
	SmallIntMin = -5
	SmallIntMax = 256

	smallIntBase = 4
	staticCount  = smallIntBase + SmallIntMax - SmallIntMin + 1
)

// IsShort reports whether w directly encodes an integer.
func (w Word) IsShort() bool { return w&1 == 0 }

// IsRef reports whether w refers to a heap object.
func (w Word) IsRef() bool { return w&1 == 1 }

// Short decodes a short integer. The result is meaningless for references.
func (w Word) Short() int64 { return int64(w) >> 1 }

// FromShort encodes i, which must lie in [ShortMin, ShortMax].
func FromShort(i int64) Word { return Word(i << 1) }

// FitsShort reports whether i can be encoded without allocation.
func FitsShort(i int64) bool { return i >= ShortMin && i <= ShortMax }

// NativeBool converts a Go bool to its native representation.
func NativeBool(b bool) Word {
	if b {
		return NativeTrue
	}
	return NativeFalse
}

func refWord(index int) Word { return Word(index)<<1 | 1 }

func (w Word) index() int { return int(w >> 1) }

package refcount

import "math/bits"

// bitset is a set of value IDs.
type bitset []uint64

func newBitset(n int) bitset { return make(bitset, (n+63)/64) }

func (s bitset) add(i int)      { s[i/64] |= 1 << (i % 64) }
func (s bitset) remove(i int)   { s[i/64] &^= 1 << (i % 64) }
func (s bitset) has(i int) bool { return s[i/64]&(1<<(i%64)) != 0 }

func (s bitset) clone() bitset { return append(bitset(nil), s...) }

// unionWith adds o to s and reports whether s changed.
func (s bitset) unionWith(o bitset) bool {
	changed := false
	for i := range s {
		n := s[i] | o[i]
		if n != s[i] {
			s[i] = n
			changed = true
		}
	}
	return changed
}

func (s bitset) equal(o bitset) bool {
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// minus returns the IDs in s but not in o, ascending.
func (s bitset) minus(o bitset) []int {
	var ids []int
	for i := range s {
		w := s[i] &^ o[i]
		for w != 0 {
			b := bits.TrailingZeros64(w)
			ids = append(ids, i*64+b)
			w &^= 1 << b
		}
	}
	return ids
}

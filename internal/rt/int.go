package rt

import "math/big"

// IntFromInt64 returns i as a tagged integer, allocating only outside the
// short range.
func IntFromInt64(f *Frame, i int64) Word {
	if FitsShort(i) {
		return FromShort(i)
	}
	return IntFromBig(f, big.NewInt(i))
}

// IntFromBig returns b as a tagged integer. Values in the short range never
// allocate, so every integer has exactly one canonical representation.
func IntFromBig(f *Frame, b *big.Int) Word {
	if b.IsInt64() && FitsShort(b.Int64()) {
		return FromShort(b.Int64())
	}
	return f.Heap.alloc(f, &Object{Type: TypeInt, Int: new(big.Int).Set(b)})
}

// BigOf returns the arbitrary-precision value of an integer word. The result
// must not be mutated.
func (h *Heap) BigOf(w Word) *big.Int {
	if w.IsShort() {
		return big.NewInt(w.Short())
	}
	o := h.deref(w)
	switch o.Type {
	case TypeInt:
		return o.Int
	case TypeBool:
		if o.Bool {
			return big.NewInt(1)
		}
		return big.NewInt(0)
	}
	Abort(h, "integer operation on a non-integer object", w)
	return nil
}

// IntAdd returns a+b. Both operands are borrowed; the result is owned.
func IntAdd(f *Frame, a, b Word) Word {
	if a.IsShort() && b.IsShort() {
		sum := a + b
		// Overflow iff both operands share a sign the result does not have.
		if (a^sum)&(b^sum) >= 0 {
			return sum
		}
	}
	return bigBinary(f, a, b, (*big.Int).Add)
}

// IntSub returns a-b.
func IntSub(f *Frame, a, b Word) Word {
	if a.IsShort() && b.IsShort() {
		diff := a - b
		// Overflow iff the operands differ in sign and the result's sign
		// differs from the minuend's.
		if (a^b)&(a^diff) >= 0 {
			return diff
		}
	}
	return bigBinary(f, a, b, (*big.Int).Sub)
}

// IntMul returns a*b.
func IntMul(f *Frame, a, b Word) Word {
	if a.IsShort() && b.IsShort() {
		x, y := a.Short(), b.Short()
		if x == 0 || y == 0 {
			return 0
		}
		p := x * y
		if p/y == x && FitsShort(p) {
			return FromShort(p)
		}
	}
	return bigBinary(f, a, b, (*big.Int).Mul)
}

// IntFloorDiv returns a//b rounded towards negative infinity.
func IntFloorDiv(f *Frame, a, b Word) Word {
	if isZero(b) {
		return f.Raise(ErrZeroDiv, "integer division or modulo by zero")
	}
	if a.IsShort() && b.IsShort() {
		x, y := a.Short(), b.Short()
		q := x / y
		if x%y != 0 && (x < 0) != (y < 0) {
			q--
		}
		return IntFromInt64(f, q)
	}
	q, _ := floorDivMod(f.Heap.BigOf(a), f.Heap.BigOf(b))
	return IntFromBig(f, q)
}

// IntMod returns a%b with the sign of b.
func IntMod(f *Frame, a, b Word) Word {
	if isZero(b) {
		return f.Raise(ErrZeroDiv, "integer division or modulo by zero")
	}
	if a.IsShort() && b.IsShort() {
		x, y := a.Short(), b.Short()
		r := x % y
		if r != 0 && (r < 0) != (y < 0) {
			r += y
		}
		return FromShort(r)
	}
	_, m := floorDivMod(f.Heap.BigOf(a), f.Heap.BigOf(b))
	return IntFromBig(f, m)
}

// IntNeg returns -a.
func IntNeg(f *Frame, a Word) Word {
	if a.IsShort() && a.Short() != ShortMin {
		return FromShort(-a.Short())
	}
	return IntFromBig(f, new(big.Int).Neg(f.Heap.BigOf(a)))
}

// IntCompare returns -1, 0 or +1. It never allocates.
func IntCompare(h *Heap, a, b Word) int {
	if a.IsShort() && b.IsShort() {
		// Tagging preserves order, so raw words compare directly.
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	return h.BigOf(a).Cmp(h.BigOf(b))
}

// IntLt reports a < b.
func IntLt(h *Heap, a, b Word) bool {
	if a.IsShort() && b.IsShort() {
		return a < b
	}
	return IntCompare(h, a, b) < 0
}

// IntLe reports a <= b.
func IntLe(h *Heap, a, b Word) bool {
	if a.IsShort() && b.IsShort() {
		return a <= b
	}
	return IntCompare(h, a, b) <= 0
}

// IntEq reports a == b.
func IntEq(h *Heap, a, b Word) bool {
	if a.IsShort() && b.IsShort() {
		return a == b
	}
	return IntCompare(h, a, b) == 0
}

func isZero(w Word) bool { return w == 0 }

func bigBinary(f *Frame, a, b Word, op func(z, x, y *big.Int) *big.Int) Word {
	z := op(new(big.Int), f.Heap.BigOf(a), f.Heap.BigOf(b))
	return IntFromBig(f, z)
}

// floorDivMod implements floor division on big integers. big.Int.QuoRem
// truncates towards zero, so results with a non-zero remainder of the
// opposite sign to the divisor are adjusted by one step.
func floorDivMod(x, y *big.Int) (*big.Int, *big.Int) {
	q, r := new(big.Int).QuoRem(x, y, new(big.Int))
	if r.Sign() != 0 && (r.Sign() < 0) != (y.Sign() < 0) {
		q.Sub(q, big.NewInt(1))
		r.Add(r, y)
	}
	return q, r
}

package refcount

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/refc/internal/ir"
)

// ErrImbalance is wrapped by every verification failure.
var ErrImbalance = errors.New("reference count imbalance")

// counts maps a value to the number of references the function holds for
// it at a program point. Borrowed params start at zero.
type counts map[*ir.Value]int

func (c counts) clone() counts { return maps.Clone(c) }

func (c counts) normalized() counts {
	out := counts{}
	for v, n := range c {
		if n != 0 {
			out[v] = n
		}
	}
	return out
}

func (c counts) equal(o counts) bool {
	return maps.Equal(c.normalized(), o.normalized())
}

func (c counts) String() string {
	n := c.normalized()
	vs := slices.SortedFunc(maps.Keys(n), func(a, b *ir.Value) int { return a.ID - b.ID })
	s := "{"
	for i, v := range vs {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%s:%d", v, n[v])
	}
	return s + "}"
}

// Verify abstractly executes fn, counting references per value, and
// reports the first path on which a value is used after release, released
// twice, released while borrowed, overwritten while holding a reference,
// or still held when the function returns.
func Verify(fn *ir.Function) error {
	entryState := map[*ir.BasicBlock]counts{fn.Entry(): {}}
	work := []*ir.BasicBlock{fn.Entry()}
	for len(work) > 0 {
		b := work[0]
		work = work[1:]
		state := entryState[b].clone()
		if err := verifyBlock(b, state, func(s *ir.BasicBlock, c counts) error {
			prev, seen := entryState[s]
			if !seen {
				entryState[s] = c
				work = append(work, s)
				return nil
			}
			if !prev.equal(c) {
				return fmt.Errorf("%w: %s reached with %s and %s", ErrImbalance, s, prev, c)
			}
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func verifyBlock(b *ir.BasicBlock, c counts, edge func(*ir.BasicBlock, counts) error) error {
	fail := func(op ir.Op, format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s: %s", ErrImbalance, b, op, fmt.Sprintf(format, args...))
	}
	for _, op := range b.Ops {
		switch o := op.(type) {
		case *ir.IncRef:
			if o.V.Kind != ir.Param && c[o.V] <= 0 {
				return fail(op, "increment of released value %s", o.V)
			}
			c[o.V]++
			continue
		case *ir.DecRef:
			if c[o.V] <= 0 {
				if o.V.Kind == ir.Param {
					return fail(op, "release of borrowed param %s", o.V)
				}
				return fail(op, "release of %s which holds no reference", o.V)
			}
			c[o.V]--
			continue
		}

		for i, v := range op.Operands() {
			if !v.IsRefCounted() {
				continue
			}
			if v.Kind != ir.Param && c[v] <= 0 {
				return fail(op, "use of released value %s", v)
			}
			if op.Steals(i) {
				if c[v] <= 0 {
					return fail(op, "%s consumed without an owned reference", v)
				}
				c[v]--
			}
		}
		if dst := op.Dest(); dst != nil && tracked(dst) {
			if c[dst] != 0 {
				return fail(op, "%s overwritten while holding %d references", dst, c[dst])
			}
			c[dst] = 1
		}

		switch o := op.(type) {
		case *ir.Return:
			if held := c.normalized(); len(held) > 0 {
				return fail(op, "references still held at return: %s", held)
			}
		case *ir.Branch:
			if o.Kind == ir.BranchIsError {
				onError := c.clone()
				delete(onError, o.Cond)
				if err := edge(o.Then, onError); err != nil {
					return err
				}
				return edge(o.Else, c.clone())
			}
			if err := edge(o.Then, c.clone()); err != nil {
				return err
			}
			return edge(o.Else, c.clone())
		case *ir.Goto:
			return edge(o.Target, c)
		}
	}
	return nil
}

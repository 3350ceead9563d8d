package refcount

import (
	"fmt"

	"github.com/roach88/refc/internal/ir"
)

// tracked reports whether v carries an owned reference the function must
// balance. Params are borrowed and never tracked.
func tracked(v *ir.Value) bool {
	return v != nil && v.Kind != ir.Param && v.IsRefCounted()
}

type liveness struct {
	in, out    map[*ir.BasicBlock]bitset
	iterations int
}

// transfer computes the values live before the ops of b given the values
// live after them.
func transfer(b *ir.BasicBlock, out bitset) bitset {
	live := out.clone()
	for k := len(b.Ops) - 1; k >= 0; k-- {
		op := b.Ops[k]
		if dst := op.Dest(); tracked(dst) {
			live.remove(dst.ID)
		}
		for _, v := range op.Operands() {
			if tracked(v) {
				live.add(v.ID)
			}
		}
	}
	return live
}

// postorder returns the blocks reachable from the entry in postorder, which
// lets a backward analysis see successors before predecessors.
func postorder(fn *ir.Function) []*ir.BasicBlock {
	seen := map[*ir.BasicBlock]bool{}
	var order []*ir.BasicBlock
	var visit func(*ir.BasicBlock)
	visit = func(b *ir.BasicBlock) {
		seen[b] = true
		for _, s := range b.Successors() {
			if !seen[s] {
				visit(s)
			}
		}
		order = append(order, b)
	}
	visit(fn.Entry())
	return order
}

// analyze runs backward liveness to a fixed point. Structured control flow
// converges within loop depth + 2 passes; the block count bounds that.
func analyze(fn *ir.Function) (*liveness, error) {
	n := fn.NumValues()
	lv := &liveness{
		in:  make(map[*ir.BasicBlock]bitset, len(fn.Blocks)),
		out: make(map[*ir.BasicBlock]bitset, len(fn.Blocks)),
	}
	for _, b := range fn.Blocks {
		lv.in[b] = newBitset(n)
		lv.out[b] = newBitset(n)
	}
	order := postorder(fn)
	limit := len(fn.Blocks) + 2
	for changed := true; changed; {
		lv.iterations++
		if lv.iterations > limit {
			return nil, fmt.Errorf("refcount: %s: liveness did not converge in %d iterations", fn.Sig.QualifiedName(), limit)
		}
		changed = false
		for _, b := range order {
			out := lv.out[b]
			for _, s := range b.Successors() {
				out.unionWith(lv.in[s])
			}
			in := transfer(b, out)
			if !in.equal(lv.in[b]) {
				lv.in[b] = in
				changed = true
			}
		}
	}
	return lv, nil
}

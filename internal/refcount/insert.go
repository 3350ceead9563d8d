// Package refcount inserts reference-count operations into IR.
//
// Ownership is tracked per value: a temp or register that holds a heap
// reference owns exactly one reference for as long as it is live. Params
// are borrowed from the caller. From backward liveness the pass derives,
// for every op, the increments needed before it (extra owners created by
// stolen uses) and the decrements after it (last uses and dead results),
// plus decrements on control-flow edges for values that die across them.
package refcount

import (
	"fmt"
	"log/slog"

	"github.com/roach88/refc/internal/ir"
)

// Stats summarises one run of the pass.
type Stats struct {
	Iterations int `json:"iterations"`
	IncRefs    int `json:"inc_refs"`
	DecRefs    int `json:"dec_refs"`
	SplitEdges int `json:"split_edges"`
}

type edgeDecs struct {
	from, to *ir.BasicBlock
	values   []*ir.Value
}

// Insert adds IncRef and DecRef ops to fn so that every owned value is
// released exactly once on every path. Running it on its own output is a
// no-op.
func Insert(fn *ir.Function) (Stats, error) {
	var st Stats
	if fn.RefCounted {
		return st, nil
	}
	lv, err := analyze(fn)
	if err != nil {
		return st, err
	}
	st.Iterations = lv.iterations

	byID := make(map[int]*ir.Value, len(fn.Values))
	for _, v := range fn.Values {
		byID[v.ID] = v
	}
	preds := fn.Predecessors()

	blocks := append([]*ir.BasicBlock(nil), fn.Blocks...)
	rewritten := make(map[*ir.BasicBlock][]ir.Op, len(blocks))
	var edges []edgeDecs
	for _, b := range blocks {
		ops, termLive := rewriteBlock(b, lv.out[b], &st)
		rewritten[b] = ops
		term := b.Terminator()
		for _, s := range uniqueSuccessors(b) {
			dying := termLive.clone()
			if br, ok := term.(*ir.Branch); ok && br.Kind == ir.BranchIsError && br.Then == s && tracked(br.Cond) {
				// The checked value is the error sentinel on this edge.
				dying.remove(br.Cond.ID)
			}
			ids := dying.minus(lv.in[s])
			if len(ids) == 0 {
				continue
			}
			e := edgeDecs{from: b, to: s}
			for _, id := range ids {
				e.values = append(e.values, byID[id])
			}
			edges = append(edges, e)
		}
	}

	for _, b := range blocks {
		b.Ops = rewritten[b]
	}
	for _, e := range edges {
		decs := make([]ir.Op, len(e.values))
		for i, v := range e.values {
			decs[i] = &ir.DecRef{V: v}
		}
		st.DecRefs += len(decs)
		if len(preds[e.to]) == 1 {
			e.to.Ops = append(decs, e.to.Ops...)
			continue
		}
		split := fn.NewBlock()
		split.Ops = append(decs, &ir.Goto{Target: e.to})
		e.from.Terminator().Retarget(e.to, split)
		st.SplitEdges++
	}

	annotate(fn)
	fn.RefCounted = true
	slog.Debug("reference counts inserted",
		"func", fn.Sig.QualifiedName(),
		"iterations", st.Iterations,
		"inc_refs", st.IncRefs,
		"dec_refs", st.DecRefs,
		"split_edges", st.SplitEdges)
	return st, nil
}

// Run inserts reference-count ops and verifies the result.
func Run(fn *ir.Function) (Stats, error) {
	st, err := Insert(fn)
	if err != nil {
		return st, err
	}
	if err := Verify(fn); err != nil {
		return st, fmt.Errorf("refcount: %s: %w", fn.Sig.QualifiedName(), err)
	}
	return st, nil
}

// rewriteBlock returns the ops of b with increments and decrements placed
// around each op, and the set of values live just before the terminator.
func rewriteBlock(b *ir.BasicBlock, out bitset, st *Stats) ([]ir.Op, bitset) {
	live := out.clone()
	term := b.Terminator()
	body := b.Body()

	// The terminator only needs increments for stolen uses; values dying
	// across its edges are released on the edges.
	termPre := increments(term, live, st)
	for _, v := range term.Operands() {
		if tracked(v) {
			live.add(v.ID)
		}
	}
	termLive := live.clone()

	type placed struct{ pre, post []ir.Op }
	around := make([]placed, len(body))
	for k := len(body) - 1; k >= 0; k-- {
		op := body[k]
		pre := increments(op, live, st)
		var post []ir.Op
		for _, v := range distinctOperands(op) {
			if tracked(v) && stolen(op, v) == 0 && !live.has(v.ID) {
				post = append(post, &ir.DecRef{V: v})
			}
		}
		if dst := op.Dest(); tracked(dst) && !live.has(dst.ID) {
			post = append(post, &ir.DecRef{V: dst})
		}
		st.DecRefs += len(post)
		around[k] = placed{pre, post}

		if dst := op.Dest(); tracked(dst) {
			live.remove(dst.ID)
		}
		for _, v := range op.Operands() {
			if tracked(v) {
				live.add(v.ID)
			}
		}
	}

	ops := make([]ir.Op, 0, len(b.Ops)+8)
	for k, op := range body {
		ops = append(ops, around[k].pre...)
		ops = append(ops, op)
		ops = append(ops, around[k].post...)
	}
	ops = append(ops, termPre...)
	ops = append(ops, term)
	return ops, termLive
}

// increments returns the IncRef ops op needs given the values live after
// it. An owned value used by op holds one reference; each stolen use
// consumes one and staying live needs one more. A borrowed param needs one
// per stolen use.
func increments(op ir.Op, liveAfter bitset, st *Stats) []ir.Op {
	var incs []ir.Op
	for _, v := range distinctOperands(op) {
		if !v.IsRefCounted() {
			continue
		}
		n := stolen(op, v)
		if v.Kind != ir.Param {
			if liveAfter.has(v.ID) {
				n++
			}
			n--
		}
		for range n {
			incs = append(incs, &ir.IncRef{V: v})
		}
	}
	st.IncRefs += len(incs)
	return incs
}

func stolen(op ir.Op, v *ir.Value) int {
	n := 0
	for i, u := range op.Operands() {
		if u == v && op.Steals(i) {
			n++
		}
	}
	return n
}

func distinctOperands(op ir.Op) []*ir.Value {
	var out []*ir.Value
	for _, v := range op.Operands() {
		dup := false
		for _, u := range out {
			if u == v {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

func uniqueSuccessors(b *ir.BasicBlock) []*ir.BasicBlock {
	var out []*ir.BasicBlock
	for _, s := range b.Successors() {
		dup := false
		for _, u := range out {
			dup = dup || u == s
		}
		if !dup {
			out = append(out, s)
		}
	}
	return out
}

// annotate records the ownership of every operand use.
func annotate(fn *ir.Function) {
	for _, b := range fn.Blocks {
		for _, op := range b.Ops {
			operands := op.Operands()
			uses := make([]ir.Ownership, len(operands))
			for i := range operands {
				if op.Steals(i) {
					uses[i] = ir.Owned
				}
			}
			ir.SetUses(op, uses)
		}
	}
}

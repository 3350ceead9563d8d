package ir

import (
	"fmt"
	"strings"
)

// Format renders fn in a stable, line-oriented text form used by `refc ir`
// and by tests.
func Format(fn *Function) string {
	var sb strings.Builder
	params := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = fmt.Sprintf("%s: %s", p.Name, p.Type)
	}
	fmt.Fprintf(&sb, "def %s(%s) -> %s:\n", fn.Sig.QualifiedName(), strings.Join(params, ", "), fn.Sig.Return)
	for _, b := range fn.Blocks {
		fmt.Fprintf(&sb, "%s:\n", b)
		for _, op := range b.Ops {
			fmt.Fprintf(&sb, "    %s\n", op)
		}
	}
	return sb.String()
}

// CountOps returns the number of ops in fn for which pred holds.
func CountOps(fn *Function, pred func(Op) bool) int {
	n := 0
	for _, b := range fn.Blocks {
		for _, op := range b.Ops {
			if pred(op) {
				n++
			}
		}
	}
	return n
}

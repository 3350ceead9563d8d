package irbuild

import (
	"fmt"

	"github.com/roach88/refc/internal/ast"
)

// UnsupportedFeature reports a construct outside the compiled subset. It is
// not fatal: the function (or module) it names is left to the interpreter.
type UnsupportedFeature struct {
	Module    string  `json:"module"`
	Func      string  `json:"func,omitempty"`
	Construct string  `json:"construct"`
	Reason    string  `json:"reason,omitempty"`
	Pos       ast.Pos `json:"pos"`
}

// Error implements the error interface.
func (e *UnsupportedFeature) Error() string {
	where := e.Module
	if e.Func != "" {
		where += "." + e.Func
	}
	msg := fmt.Sprintf("%s: unsupported %s in %s", e.Pos, e.Construct, where)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Package frontend reads typed modules written in CUE and hands them to the
// compiler as ast.Module values.
//
// A module file looks like:
//
//	module: "sample"
//	functions: add: {
//		params: {x: "int", y: "int"}
//		returns: "int"
//		body: [{return: {op: "+", l: "x", r: "y"}}]
//	}
//
// Bare strings in expression position are names. The package plays the part
// of the type checker: every expression comes out with a resolved static
// type, and constructs outside the subset come out as explicit Unsupported
// markers for the compiler to exclude.
package frontend

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/refc/internal/ast"
	"github.com/roach88/refc/internal/types"
)

// CompileString compiles CUE source text. filename labels positions.
func CompileString(src, filename string) (*ast.Module, error) {
	return CompileBytes([]byte(src), filename)
}

// CompileBytes compiles CUE source. filename labels positions.
func CompileBytes(src []byte, filename string) (*ast.Module, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return CompileModule(v)
}

// CompileModule converts a built CUE value into a typed module.
func CompileModule(v cue.Value) (*ast.Module, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	nameVal := v.LookupPath(cue.ParsePath("module"))
	if !nameVal.Exists() {
		return nil, &CompileError{Field: "module", Message: "module name is required", Pos: v.Pos()}
	}
	name, err := nameVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	if name == "" {
		return nil, &CompileError{Field: "module", Message: "module name must not be empty", Pos: nameVal.Pos()}
	}
	m := &ast.Module{Name: name, Pos: position(v.Pos())}

	if u := v.LookupPath(cue.ParsePath("unsupported")); u.Exists() {
		iter, err := u.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			us, err := parseUnsupported(iter.Value(), "unsupported")
			if err != nil {
				return nil, err
			}
			m.Unsupported = append(m.Unsupported, us)
		}
	}

	fnsVal := v.LookupPath(cue.ParsePath("functions"))
	if !fnsVal.Exists() {
		return m, nil
	}
	iter, err := fnsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	// Signatures first, so calls can refer to functions defined later.
	type pending struct {
		def *ast.FuncDef
		val cue.Value
	}
	var defs []pending
	sigs := map[string]*ast.FuncDef{}
	for iter.Next() {
		def, err := parseHeader(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		sigs[def.Name] = def
		defs = append(defs, pending{def, iter.Value()})
	}

	for _, p := range defs {
		c := newChecker(m.Name, p.def, sigs)
		if err := c.function(p.val); err != nil {
			return nil, err
		}
		m.Funcs = append(m.Funcs, p.def)
	}
	return m, nil
}

// parseHeader reads the parameters, return type and optional local
// declarations of one function.
func parseHeader(name string, v cue.Value) (*ast.FuncDef, error) {
	field := "functions." + name
	def := &ast.FuncDef{Name: name, Locals: map[string]types.RType{}, Pos: position(v.Pos())}

	if pv := v.LookupPath(cue.ParsePath("params")); pv.Exists() {
		iter, err := pv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			t, err := parseType(iter.Value(), field+".params."+iter.Label())
			if err != nil {
				return nil, err
			}
			def.Params = append(def.Params, ast.Param{Name: iter.Label(), Type: t, Pos: position(iter.Value().Pos())})
		}
	}

	def.Return = types.None
	if rv := v.LookupPath(cue.ParsePath("returns")); rv.Exists() {
		t, err := parseType(rv, field+".returns")
		if err != nil {
			return nil, err
		}
		def.Return = t
	}

	if lv := v.LookupPath(cue.ParsePath("locals")); lv.Exists() {
		iter, err := lv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			t, err := parseType(iter.Value(), field+".locals."+iter.Label())
			if err != nil {
				return nil, err
			}
			def.Locals[iter.Label()] = t
		}
	}

	if rj := v.LookupPath(cue.ParsePath("rejected")); rj.Exists() {
		us, err := parseUnsupported(rj, field+".rejected")
		if err != nil {
			return nil, err
		}
		def.Rejected = us
	}
	return def, nil
}

func parseType(v cue.Value, field string) (types.RType, error) {
	s, err := v.String()
	if err != nil {
		return types.RType{}, &CompileError{Field: field + ".type", Message: "type must be a string such as \"int\" or \"list[int]\"", Pos: v.Pos()}
	}
	t, err := types.Parse(s)
	if err != nil {
		return types.RType{}, &CompileError{Field: field + ".type", Message: err.Error(), Pos: v.Pos()}
	}
	return t, nil
}

// parseUnsupported reads {construct, reason} or a bare construct string.
func parseUnsupported(v cue.Value, field string) (*ast.Unsupported, error) {
	us := &ast.Unsupported{Pos: position(v.Pos())}
	if s, err := v.String(); err == nil {
		us.Construct = s
		return us, nil
	}
	cv := v.LookupPath(cue.ParsePath("construct"))
	if !cv.Exists() {
		return nil, &CompileError{Field: field, Message: "construct is required", Pos: v.Pos()}
	}
	s, err := cv.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	us.Construct = s
	if rv := v.LookupPath(cue.ParsePath("reason")); rv.Exists() {
		r, err := rv.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		us.Reason = r
	}
	return us, nil
}

func fieldf(fn, format string, args ...any) string {
	return "functions." + fn + "." + fmt.Sprintf(format, args...)
}

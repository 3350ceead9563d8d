package irbuild

import (
	"log/slog"

	"github.com/roach88/refc/internal/ast"
	"github.com/roach88/refc/internal/ir"
)

// Result is the outcome of building one module.
type Result struct {
	Module    string
	Functions []*ir.Function
	Excluded  []*UnsupportedFeature
}

// Function returns the compiled function with the given name, or nil.
func (r *Result) Function(name string) *ir.Function {
	for _, fn := range r.Functions {
		if fn.Name() == name {
			return fn
		}
	}
	return nil
}

// Signatures returns the native signatures of the compiled functions.
func (r *Result) Signatures() []ir.Signature {
	sigs := make([]ir.Signature, len(r.Functions))
	for i, fn := range r.Functions {
		sigs[i] = fn.Sig
	}
	return sigs
}

// BuildModule builds every function of m. A function that meets an
// unsupported construct is excluded without affecting the others; calls
// to it from the rest of m are rebuilt to go through the host. A
// module-level unsupported construct excludes the whole module. imports
// resolves calls into other compiled modules and may be nil.
func BuildModule(m *ast.Module, imports Resolver) *Result {
	res := &Result{Module: m.Name}
	if len(m.Unsupported) > 0 {
		u := m.Unsupported[0]
		for _, def := range m.Funcs {
			res.Excluded = append(res.Excluded, &UnsupportedFeature{
				Module:    m.Name,
				Func:      def.Name,
				Construct: u.Construct,
				Reason:    "module excluded: " + u.Reason,
				Pos:       u.Pos,
			})
		}
		slog.Debug("module excluded", "module", m.Name, "construct", u.Construct, "pos", u.Pos.String())
		return res
	}

	excluded := map[string]*UnsupportedFeature{}
	for {
		local := Signatures{}
		for _, def := range m.Funcs {
			if excluded[def.Name] == nil && def.Rejected == nil {
				params, ret := def.Signature()
				local.Add(ir.Signature{Module: m.Name, Name: def.Name, Params: params, Return: ret})
			}
		}

		var fns []*ir.Function
		changed := false
		for _, def := range m.Funcs {
			if excluded[def.Name] != nil {
				continue
			}
			fn, err := Build(m.Name, def, chain{local, imports})
			if err != nil {
				uf := asUnsupported(m.Name, def.Name, err)
				excluded[def.Name] = uf
				changed = true
				slog.Debug("function excluded", "module", m.Name, "func", def.Name, "reason", uf.Error())
				continue
			}
			fns = append(fns, fn)
		}
		if !changed {
			res.Functions = fns
			break
		}
	}
	for _, def := range m.Funcs {
		if uf := excluded[def.Name]; uf != nil {
			res.Excluded = append(res.Excluded, uf)
		}
	}
	return res
}

package extmod

import (
	"github.com/roach88/refc/internal/ast"
	"github.com/roach88/refc/internal/codegen"
	"github.com/roach88/refc/internal/host"
	"github.com/roach88/refc/internal/irbuild"
)

// Module is a compiled extension module.
type Module struct {
	Name     string
	Program  *codegen.Program
	Capsule  *Capsule
	Excluded []*irbuild.UnsupportedFeature

	// Source is kept to run excluded functions under the host interpreter.
	Source *ast.Module
}

// New assembles an extension module from its lowered program and source.
func New(src *ast.Module, p *codegen.Program, excluded []*irbuild.UnsupportedFeature, opts ...CapsuleOption) *Module {
	return &Module{
		Name:     src.Name,
		Program:  p,
		Capsule:  NewCapsule(p, opts...),
		Excluded: excluded,
		Source:   src,
	}
}

// Load binds the module into r. Every function of the source is bound:
// compiled ones to their boundary entries, excluded ones to the interpreter.
// Calls between them go through the namespace, so an excluded function is
// reached exactly as any other host function would be.
func (m *Module) Load(r *host.Runtime) *host.Namespace {
	ns := r.LoadInterpreted(m.Source)
	for _, fn := range m.Program.Funcs() {
		ns.SetNative(fn.Sig.Name, fn)
	}
	r.Logger().Debug("extension module loaded",
		"module", m.Name,
		"native", len(m.Program.Funcs()),
		"interpreted", len(m.Excluded),
		"fingerprint", m.Capsule.Fingerprint)
	return ns
}

// IsCompiled reports whether name was compiled natively.
func (m *Module) IsCompiled(name string) bool {
	_, ok := m.Program.Func(name)
	return ok
}

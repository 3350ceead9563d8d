package irbuild

import "github.com/roach88/refc/internal/ir"

// Resolver decides whether a call can bind to a native entry.
type Resolver interface {
	// Native returns the signature of module.name when the callee has a
	// native entry the caller may call directly.
	Native(module, name string) (ir.Signature, bool)
}

// Signatures is a Resolver over a fixed set of signatures keyed by
// qualified name.
type Signatures map[string]ir.Signature

// Native implements Resolver.
func (s Signatures) Native(module, name string) (ir.Signature, bool) {
	sig, ok := s[module+"."+name]
	return sig, ok
}

// Add registers sig.
func (s Signatures) Add(sig ir.Signature) { s[sig.QualifiedName()] = sig }

type chain []Resolver

func (c chain) Native(module, name string) (ir.Signature, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		if sig, ok := r.Native(module, name); ok {
			return sig, true
		}
	}
	return ir.Signature{}, false
}

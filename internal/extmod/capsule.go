// Package extmod packages compiled modules as host extension modules.
//
// A Module binds its boundary entries into a host namespace, with interpreted
// fallbacks for functions that were excluded from compilation. Its Capsule is
// the export table other compiled modules import to call it natively.
package extmod

import (
	"fmt"

	"github.com/google/btree"

	"github.com/roach88/refc/internal/codegen"
	"github.com/roach88/refc/internal/ir"
)

// Capsule versions produced by this compiler. ABIVersion changes whenever the
// native calling convention or word tagging changes; APIVersion grows when
// capsules gain fields.
const (
	ABIVersion = 1
	APIVersion = 2
)

// Export is one natively callable function of a capsule.
type Export struct {
	Sig    ir.Signature
	Native codegen.NativeFunc
}

// Capsule is the export table of a compiled module.
type Capsule struct {
	Module      string
	ABIVersion  int
	APIVersion  int
	Fingerprint string

	exports *btree.BTreeG[*Export]
}

// CapsuleOption customises NewCapsule.
type CapsuleOption func(*Capsule)

// WithABIVersion overrides the ABI version stamped on the capsule.
func WithABIVersion(v int) CapsuleOption {
	return func(c *Capsule) { c.ABIVersion = v }
}

// WithAPIVersion overrides the API version stamped on the capsule.
func WithAPIVersion(v int) CapsuleOption {
	return func(c *Capsule) { c.APIVersion = v }
}

func exportLess(a, b *Export) bool { return a.Sig.Name < b.Sig.Name }

// NewCapsule builds the capsule for a lowered program.
func NewCapsule(p *codegen.Program, opts ...CapsuleOption) *Capsule {
	c := &Capsule{
		Module:     p.Module,
		ABIVersion: ABIVersion,
		APIVersion: APIVersion,
		exports:    btree.NewG[*Export](8, exportLess),
	}
	for _, fn := range p.Funcs() {
		c.exports.ReplaceOrInsert(&Export{Sig: fn.Sig, Native: fn.Native})
	}
	c.Fingerprint = ir.ModuleFingerprint(c.Module, c.Signatures())
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the export called name.
func (c *Capsule) Lookup(name string) (*Export, bool) {
	return c.exports.Get(&Export{Sig: ir.Signature{Name: name}})
}

// Len returns the number of exports.
func (c *Capsule) Len() int { return c.exports.Len() }

// Signatures returns the exported signatures in name order.
func (c *Capsule) Signatures() []ir.Signature {
	sigs := make([]ir.Signature, 0, c.exports.Len())
	c.exports.Ascend(func(e *Export) bool {
		sigs = append(sigs, e.Sig)
		return true
	})
	return sigs
}

// CapsuleError reports a capsule that cannot be imported.
type CapsuleError struct {
	Module          string
	WantABI, GotABI int
	WantAPI, GotAPI int
	Reason          string
}

func (e *CapsuleError) Error() string {
	return fmt.Sprintf("import capsule %s: %s", e.Module, e.Reason)
}

// Import validates c for use by code compiled against wantABI and needing at
// least minAPI. Any mismatch is a CapsuleError; the capsule is never used
// partially.
func Import(c *Capsule, wantABI, minAPI int) (*Capsule, error) {
	if c == nil {
		return nil, &CapsuleError{Module: "<nil>", Reason: "module does not export a capsule"}
	}
	ce := &CapsuleError{Module: c.Module, WantABI: wantABI, GotABI: c.ABIVersion, WantAPI: minAPI, GotAPI: c.APIVersion}
	switch {
	case c.ABIVersion != wantABI:
		ce.Reason = fmt.Sprintf("ABI version %d, want %d", c.ABIVersion, wantABI)
	case c.APIVersion < minAPI:
		ce.Reason = fmt.Sprintf("API version %d is older than required %d", c.APIVersion, minAPI)
	case ir.ModuleFingerprint(c.Module, c.Signatures()) != c.Fingerprint:
		ce.Reason = "export table does not match its fingerprint"
	default:
		return c, nil
	}
	return nil, ce
}

// Imports is the set of capsules a module is compiled against. It resolves
// signatures for the IR builder and native entries for the linker.
type Imports struct {
	capsules map[string]*Capsule
}

// NewImports validates every capsule against the current versions.
func NewImports(caps ...*Capsule) (*Imports, error) {
	im := &Imports{capsules: make(map[string]*Capsule, len(caps))}
	for _, c := range caps {
		ok, err := Import(c, ABIVersion, APIVersion)
		if err != nil {
			return nil, err
		}
		im.capsules[ok.Module] = ok
	}
	return im, nil
}

// Capsule returns the imported capsule for module.
func (im *Imports) Capsule(module string) (*Capsule, bool) {
	c, ok := im.capsules[module]
	return c, ok
}

// Native implements irbuild.Resolver.
func (im *Imports) Native(module, name string) (ir.Signature, bool) {
	c, ok := im.capsules[module]
	if !ok {
		return ir.Signature{}, false
	}
	e, ok := c.Lookup(name)
	if !ok {
		return ir.Signature{}, false
	}
	return e.Sig, true
}

// NativeEntry implements codegen.Linker.
func (im *Imports) NativeEntry(sig ir.Signature) (codegen.NativeFunc, bool) {
	c, ok := im.capsules[sig.Module]
	if !ok {
		return nil, false
	}
	e, ok := c.Lookup(sig.Name)
	if !ok || ir.SignatureFingerprint(e.Sig) != ir.SignatureFingerprint(sig) {
		return nil, false
	}
	return e.Native, true
}

package irbuild

import (
	"fmt"
	"maps"

	"github.com/roach88/refc/internal/ast"
	"github.com/roach88/refc/internal/ir"
	"github.com/roach88/refc/internal/types"
)

func (b *builder) stmts(list []ast.Stmt) error {
	for _, s := range list {
		b.pos = s.Position()
		if err := b.stmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) stmt(s ast.Stmt) error {
	switch s := s.(type) {
	case *ast.Assign:
		return b.assign(s)
	case *ast.IndexAssign:
		return b.indexAssign(s)
	case *ast.If:
		return b.ifStmt(s)
	case *ast.While:
		return b.while(s)
	case *ast.ExprStmt:
		_, err := b.expr(s.X)
		return err
	case *ast.Return:
		return b.ret(s)
	case *ast.Pass:
		return nil
	case *ast.Break:
		if len(b.loops) == 0 {
			return b.unsupportedAt(s.Pos, "break outside loop", "")
		}
		b.terminate(&ir.Goto{Target: b.loops[len(b.loops)-1].exit})
		return nil
	case *ast.Continue:
		if len(b.loops) == 0 {
			return b.unsupportedAt(s.Pos, "continue outside loop", "")
		}
		b.terminate(&ir.Goto{Target: b.loops[len(b.loops)-1].header})
		return nil
	case *ast.UnsupportedStmt:
		return b.unsupported(&s.Unsupported)
	}
	return b.unsupportedAt(s.Position(), fmt.Sprintf("statement %T", s), "")
}

func (b *builder) assign(s *ast.Assign) error {
	// x = x has no effect.
	if n, ok := s.Value.(*ast.Name); ok && n.Id == s.Target {
		_, err := b.name(n)
		return err
	}
	reg, ok := b.vars[s.Target]
	if !ok || reg.Kind != ir.Register {
		return b.unsupportedAt(s.Pos, "assignment to undeclared local", s.Target)
	}
	v, err := b.expr(s.Value)
	if err != nil {
		return err
	}
	if v, err = b.coerce(v, reg.Type); err != nil {
		return err
	}
	b.emit(&ir.Assign{Dst: reg, Src: v})
	b.defined[s.Target] = true
	return nil
}

// indexAssign evaluates the stored value first, then the list, then the
// index, matching the host's evaluation order for subscript assignment.
func (b *builder) indexAssign(s *ast.IndexAssign) error {
	v, err := b.expr(s.Value)
	if err != nil {
		return err
	}
	l, err := b.expr(s.List)
	if err != nil {
		return err
	}
	if !l.Type.IsList() {
		return b.unsupportedAt(s.Pos, "item assignment", fmt.Sprintf("target has type %s", l.Type))
	}
	if !v.Type.AssignableTo(l.Type.ElemType()) {
		return b.unsupportedAt(s.Pos, "item assignment", fmt.Sprintf("%s stored into %s", v.Type, l.Type))
	}
	i, err := b.index(s.Index)
	if err != nil {
		return err
	}
	item, err := b.coerce(v, types.Object)
	if err != nil {
		return err
	}
	b.emit(&ir.ListSet{Dst: b.temp(types.None), List: l, Index: i, Item: item})
	return nil
}

func (b *builder) ifStmt(s *ast.If) error {
	cond, err := b.truthy(s.Cond)
	if err != nil {
		return err
	}
	thenB := b.fn.NewBlock()
	join := b.fn.NewBlock()
	elseB := join
	if len(s.Else) > 0 {
		elseB = b.fn.NewBlock()
	}
	b.terminate(&ir.Branch{Kind: ir.BranchBool, Cond: cond, Then: thenB, Else: elseB})
	entry := maps.Clone(b.defined)

	b.cur = thenB
	if err := b.stmts(s.Then); err != nil {
		return err
	}
	thenDefs, thenLive := b.defined, b.cur != nil
	if thenLive {
		b.terminate(&ir.Goto{Target: join})
	}

	elseDefs, elseLive := entry, true
	if len(s.Else) > 0 {
		b.defined = maps.Clone(entry)
		b.cur = elseB
		if err := b.stmts(s.Else); err != nil {
			return err
		}
		elseDefs, elseLive = b.defined, b.cur != nil
		if elseLive {
			b.terminate(&ir.Goto{Target: join})
		}
	}

	switch {
	case thenLive && elseLive:
		b.defined = intersect(thenDefs, elseDefs)
	case thenLive:
		b.defined = thenDefs
	case elseLive:
		b.defined = elseDefs
	default:
		b.defined = entry
		b.cur = nil
		return nil
	}
	b.cur = join
	return nil
}

func intersect(a, c map[string]bool) map[string]bool {
	out := map[string]bool{}
	for k := range a {
		if c[k] {
			out[k] = true
		}
	}
	return out
}

// while evaluates the condition in its own header block, so it runs again
// before every iteration.
func (b *builder) while(s *ast.While) error {
	header := b.fn.NewBlock()
	b.terminate(&ir.Goto{Target: header})
	b.cur = header
	cond, err := b.truthy(s.Cond)
	if err != nil {
		return err
	}
	body := b.fn.NewBlock()
	exit := b.fn.NewBlock()
	b.terminate(&ir.Branch{Kind: ir.BranchBool, Cond: cond, Then: body, Else: exit})

	entry := maps.Clone(b.defined)
	b.loops = append(b.loops, loop{header: header, exit: exit})
	b.cur = body
	if err := b.stmts(s.Body); err != nil {
		return err
	}
	if b.cur != nil {
		b.terminate(&ir.Goto{Target: header})
	}
	b.loops = b.loops[:len(b.loops)-1]

	// The body may run zero times.
	b.defined = entry
	b.cur = exit
	return nil
}

func (b *builder) ret(s *ast.Return) error {
	var v *ir.Value
	if s.Value == nil {
		v = b.temp(types.None)
		b.emit(&ir.LoadNone{Dst: v})
	} else {
		var err error
		if v, err = b.expr(s.Value); err != nil {
			return err
		}
	}
	v, err := b.coerce(v, b.fn.Sig.Return)
	if err != nil {
		return err
	}
	b.terminate(&ir.Return{Value: v})
	return nil
}

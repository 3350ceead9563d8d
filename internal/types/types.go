// Package types defines the static types of the compiled subset.
//
// The same lattice is used by the typed AST handed over by the type checker and
// by the IR. Every value in native code has exactly one of these types for its
// whole lifetime.
package types

import (
	"fmt"
	"strings"
)

// Kind discriminates an RType.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt          // tagged integer: short word or reference to a big int
	KindBool         // unboxed 0/1 word
	KindNone         // the none singleton
	KindObject       // generic object handle
	KindList         // list[T]
)

// RType is a static type. The zero value is invalid.
type RType struct {
	Kind Kind
	Elem *RType // element type when Kind == KindList
}

var (
	Int    = RType{Kind: KindInt}
	Bool   = RType{Kind: KindBool}
	None   = RType{Kind: KindNone}
	Object = RType{Kind: KindObject}
)

// List returns list[elem].
func List(elem RType) RType {
	e := elem
	return RType{Kind: KindList, Elem: &e}
}

// IsValid reports whether t is a usable type.
func (t RType) IsValid() bool {
	if t.Kind == KindList {
		return t.Elem != nil && t.Elem.IsValid()
	}
	return t.Kind != KindInvalid
}

// IsRefCounted reports whether values of t may refer to heap objects and
// therefore take part in reference counting. Tagged integers are included
// because a value of type int may be a reference to a big integer.
func (t RType) IsRefCounted() bool {
	switch t.Kind {
	case KindInt, KindObject, KindList:
		return true
	}
	return false
}

// IsList reports whether t is a list type.
func (t RType) IsList() bool { return t.Kind == KindList }

// ElemType returns the element type of a list type, or Object for anything else.
func (t RType) ElemType() RType {
	if t.Kind == KindList && t.Elem != nil {
		return *t.Elem
	}
	return Object
}

// Equal reports structural equality.
func (t RType) Equal(u RType) bool {
	if t.Kind != u.Kind {
		return false
	}
	if t.Kind == KindList {
		if t.Elem == nil || u.Elem == nil {
			return t.Elem == u.Elem
		}
		return t.Elem.Equal(*u.Elem)
	}
	return true
}

// AssignableTo reports whether a value of type t can flow into a slot of type u
// without conversion. Everything is assignable to object, but that flow needs
// a box, which callers decide on separately.
func (t RType) AssignableTo(u RType) bool {
	return t.Equal(u) || u.Kind == KindObject
}

func (t RType) String() string {
	switch t.Kind {
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindNone:
		return "None"
	case KindObject:
		return "object"
	case KindList:
		if t.Elem == nil {
			return "list[?]"
		}
		return "list[" + t.Elem.String() + "]"
	}
	return "<invalid>"
}

// Parse reads a type string such as "int", "None" or "list[list[int]]".
func Parse(s string) (RType, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "int":
		return Int, nil
	case "bool":
		return Bool, nil
	case "None", "none":
		return None, nil
	case "object", "Any":
		return Object, nil
	case "list":
		return List(Object), nil
	}
	if strings.HasPrefix(s, "list[") && strings.HasSuffix(s, "]") {
		elem, err := Parse(s[len("list[") : len(s)-1])
		if err != nil {
			return RType{}, err
		}
		return List(elem), nil
	}
	return RType{}, fmt.Errorf("unsupported type %q", s)
}

// MustParse is like Parse but panics on error.
// Use only in tests or for constant type strings.
func MustParse(s string) RType {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

package builtins

import (
	"github.com/funvibe/consteval/internal/ir"
)

// IntrinsicKey is the stable identity of a routine whose behaviour the
// interpreter supplies itself.
type IntrinsicKey struct {
	Category ir.IntrinsicCategory
	FqName   string
}

func (k IntrinsicKey) String() string { return k.Category.String() + ":" + k.FqName }

// IntrinsicSpec describes one registry entry.
type IntrinsicSpec struct {
	Key IntrinsicKey
	// TypeArguments asks the caller to bind the call's type arguments
	// before the intrinsic runs.
	TypeArguments bool
}

var intrinsicRegistry = map[IntrinsicKey]IntrinsicSpec{}

func registerIntrinsic(cat ir.IntrinsicCategory, fqName string, typeArgs bool) {
	k := IntrinsicKey{Category: cat, FqName: fqName}
	intrinsicRegistry[k] = IntrinsicSpec{Key: k, TypeArguments: typeArgs}
}

func init() {
	registerIntrinsic(ir.IntrinsicArray, "kotlin.emptyArray", true)
	registerIntrinsic(ir.IntrinsicArray, "kotlin.arrayOf", false)
	registerIntrinsic(ir.IntrinsicArray, "kotlin.arrayOfNulls", true)
	registerIntrinsic(ir.IntrinsicArray, "kotlin.Array.<init>", false)
	registerIntrinsic(ir.IntrinsicEnum, "kotlin.enumValues", true)
	registerIntrinsic(ir.IntrinsicEnum, "kotlin.enumValueOf", true)
	registerIntrinsic(ir.IntrinsicEnum, "kotlin.Enum.hashCode", false)
	registerIntrinsic(ir.IntrinsicSourceLocation, "kotlin.internal.sourceLocation", false)
	registerIntrinsic(ir.IntrinsicAssert, "kotlin.assert", false)
	registerIntrinsic(ir.IntrinsicBoxed, "kotlin.Long.<init>", false)
	registerIntrinsic(ir.IntrinsicBoxed, "kotlin.Char.<init>", false)
}

// KeyOf returns the registry identity of r.
func KeyOf(r ir.Routine) IntrinsicKey {
	return IntrinsicKey{Category: r.Category(), FqName: r.FullName()}
}

// LookupIntrinsic finds the registry entry for r. Routines of category
// IntrinsicNone or IntrinsicHost are never registry entries.
func LookupIntrinsic(r ir.Routine) (IntrinsicSpec, bool) {
	switch r.Category() {
	case ir.IntrinsicNone, ir.IntrinsicHost:
		return IntrinsicSpec{}, false
	}
	spec, ok := intrinsicRegistry[KeyOf(r)]
	return spec, ok
}

// Intrinsics lists every registry entry.
func Intrinsics() []IntrinsicSpec {
	out := make([]IntrinsicSpec, 0, len(intrinsicRegistry))
	for _, s := range intrinsicRegistry {
		out = append(out, s)
	}
	return out
}

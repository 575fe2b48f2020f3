package stack

import (
	"fmt"

	"github.com/funvibe/consteval/internal/ir"
)

type InstructionKind uint8

const (
	// Compound instructions must be unfolded before they produce a value.
	Compound InstructionKind = iota
	// Simple instructions are executed directly.
	Simple
	// Intrinsic instructions hand a routine to the builtin dispatcher.
	Intrinsic
)

func (k InstructionKind) String() string {
	switch k {
	case Compound:
		return "compound"
	case Simple:
		return "simple"
	case Intrinsic:
		return "intrinsic"
	}
	return "unknown"
}

// Instruction is one pending unit of work over an IR element.
type Instruction struct {
	Kind    InstructionKind
	Element ir.Element
}

func CompoundOf(e ir.Element) Instruction  { return Instruction{Kind: Compound, Element: e} }
func SimpleOf(e ir.Element) Instruction    { return Instruction{Kind: Simple, Element: e} }
func IntrinsicOf(r ir.Routine) Instruction { return Instruction{Kind: Intrinsic, Element: r} }

func (i Instruction) String() string {
	return fmt.Sprintf("%s(%T@%d)", i.Kind, i.Element, i.Element.StartOffset())
}

package stack

import (
	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/state"
)

// Phase tells which part of a try construct a subframe evaluates.
// Every other subframe is a plain scope.
type Phase uint8

const (
	PhaseScope Phase = iota
	PhaseTry
	PhaseCatch
	PhaseFinally
)

type CompletionKind uint8

const (
	CompleteNormal CompletionKind = iota
	CompleteThrow
	CompleteReturn
	CompleteBreak
	CompleteContinue
)

// Completion is the way control left a try or catch block. It is parked on
// the finally subframe and resumed when the finally block ends.
type Completion struct {
	Kind  CompletionKind
	Value state.State
	// Jump is the *ir.Return, *ir.Break or *ir.Continue being completed.
	Jump ir.Element
}

// SubFrame is one lexical or control scope: an instruction queue, local
// variables and an operand stack. The top of every slice is its last element.
type SubFrame struct {
	instructions []Instruction
	variables    []*state.Variable
	operands     []state.State
	owner        ir.Element

	Phase      Phase
	Completion *Completion
}

func newSubFrame(owner ir.Element, instrs []Instruction) *SubFrame {
	sf := &SubFrame{owner: owner}
	sf.pushAll(instrs)
	return sf
}

func (sf *SubFrame) Owner() ir.Element { return sf.owner }

// pushAll pushes instructions so that instrs[0] is executed first.
func (sf *SubFrame) pushAll(instrs []Instruction) {
	for i := len(instrs) - 1; i >= 0; i-- {
		sf.instructions = append(sf.instructions, instrs[i])
	}
}

func (sf *SubFrame) hasInstructions() bool { return len(sf.instructions) > 0 }

func (sf *SubFrame) popInstruction() (Instruction, bool) {
	n := len(sf.instructions)
	if n == 0 {
		return Instruction{}, false
	}
	in := sf.instructions[n-1]
	sf.instructions = sf.instructions[:n-1]
	return in, true
}

func (sf *SubFrame) peekInstruction() (Instruction, bool) {
	if n := len(sf.instructions); n > 0 {
		return sf.instructions[n-1], true
	}
	return Instruction{}, false
}

func (sf *SubFrame) push(s state.State) { sf.operands = append(sf.operands, s) }

func (sf *SubFrame) pop() (state.State, bool) {
	n := len(sf.operands)
	if n == 0 {
		return nil, false
	}
	s := sf.operands[n-1]
	sf.operands[n-1] = nil
	sf.operands = sf.operands[:n-1]
	return s, true
}

func (sf *SubFrame) peek() (state.State, bool) {
	if n := len(sf.operands); n > 0 {
		return sf.operands[n-1], true
	}
	return nil, false
}

func (sf *SubFrame) variable(sym ir.Symbol) *state.Variable {
	for i := len(sf.variables) - 1; i >= 0; i-- {
		if sf.variables[i].Symbol == sym {
			return sf.variables[i]
		}
	}
	return nil
}

// Reset empties the subframe and seeds it with new instructions, keeping
// owner and phase. Loops use it to start the next iteration.
func (sf *SubFrame) Reset(instrs ...Instruction) {
	sf.instructions = sf.instructions[:0]
	sf.variables = nil
	sf.operands = nil
	sf.pushAll(instrs)
}

// Reseed replaces the pending instructions and operands but keeps the
// variables, so a do-while condition still sees the body's locals.
func (sf *SubFrame) Reseed(instrs ...Instruction) {
	sf.instructions = sf.instructions[:0]
	sf.operands = nil
	sf.pushAll(instrs)
}

// OperandCount is the height of the operand stack.
func (sf *SubFrame) OperandCount() int { return len(sf.operands) }

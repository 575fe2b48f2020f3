package stack

import (
	"errors"
	"fmt"

	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/state"
)

var ErrOperandUnderflow = errors.New("operand stack underflow")
var ErrNoFrame = errors.New("no active frame")
var ErrNoInstruction = errors.New("no pending instruction")
var ErrUnknownVariable = errors.New("unknown variable")

// Fault reports a violated stack discipline. CallStack methods panic with
// a *Fault; the interpreter's driver recovers it and turns it into a fatal
// interpreter error.
type Fault struct {
	Err    error
	Detail string
}

func (f *Fault) Error() string {
	if f.Detail == "" {
		return f.Err.Error()
	}
	return f.Err.Error() + ": " + f.Detail
}

func (f *Fault) Unwrap() error { return f.Err }

func fault(err error, format string, args ...any) {
	panic(&Fault{Err: err, Detail: fmt.Sprintf(format, args...)})
}

// Frame is one routine activation: a stack of subframes plus the file the
// routine was declared in.
type Frame struct {
	subFrames []*SubFrame
	file      *ir.File
	// current is the last instruction popped in this frame, for stack traces.
	current    Instruction
	hasCurrent bool
}

func (f *Frame) top() *SubFrame { return f.subFrames[len(f.subFrames)-1] }

// Owner is the owner of the frame's base subframe.
func (f *Frame) Owner() ir.Element {
	if len(f.subFrames) == 0 {
		return nil
	}
	return f.subFrames[0].owner
}

func (f *Frame) File() *ir.File     { return f.file }
func (f *Frame) SubFrameCount() int { return len(f.subFrames) }

func (f *Frame) hasNoInstructions() bool {
	return len(f.subFrames) == 0 || (len(f.subFrames) == 1 && !f.subFrames[0].hasInstructions())
}

// CallStack is the explicit control stack of one driver invocation.
type CallStack struct {
	frames []*Frame
}

func New() *CallStack {
	return &CallStack{}
}

func (cs *CallStack) frame() *Frame {
	if len(cs.frames) == 0 {
		fault(ErrNoFrame, "")
	}
	return cs.frames[len(cs.frames)-1]
}

// Current returns the innermost subframe.
func (cs *CallStack) Current() *SubFrame {
	f := cs.frame()
	if len(f.subFrames) == 0 {
		fault(ErrNoFrame, "frame has no subframes")
	}
	return f.top()
}

// CurrentFrame returns the innermost frame.
func (cs *CallStack) CurrentFrame() *Frame { return cs.frame() }

// NewFrame starts a routine activation whose base subframe is owned by owner.
func (cs *CallStack) NewFrame(owner ir.Element, file *ir.File, instrs ...Instruction) {
	cs.frames = append(cs.frames, &Frame{
		subFrames: []*SubFrame{newSubFrame(owner, instrs)},
		file:      file,
	})
}

// NewSubFrame opens a scope inside the current frame and returns it so the
// caller can set its phase.
func (cs *CallStack) NewSubFrame(owner ir.Element, instrs ...Instruction) *SubFrame {
	f := cs.frame()
	sf := newSubFrame(owner, instrs)
	f.subFrames = append(f.subFrames, sf)
	return sf
}

func (cs *CallStack) DropFrame() {
	cs.frame()
	cs.frames[len(cs.frames)-1] = nil
	cs.frames = cs.frames[:len(cs.frames)-1]
}

// DropSubFrame removes the current subframe and moves its topmost operand,
// if any, to the enclosing subframe of the same frame.
func (cs *CallStack) DropSubFrame() {
	f := cs.frame()
	sf := cs.Current()
	f.subFrames = f.subFrames[:len(f.subFrames)-1]
	if top, ok := sf.peek(); ok && len(f.subFrames) > 0 {
		f.top().push(top)
	}
}

// DropSubFrameSilently removes the current subframe and discards its operands.
func (cs *CallStack) DropSubFrameSilently() {
	f := cs.frame()
	cs.Current()
	f.subFrames[len(f.subFrames)-1] = nil
	f.subFrames = f.subFrames[:len(f.subFrames)-1]
}

// ResetToStub replaces every subframe of the current frame with one empty
// subframe owned by owner. It is used when the outermost frame completes
// a routine and must stay alive to hold the result.
func (cs *CallStack) ResetToStub(owner ir.Element) {
	f := cs.frame()
	f.subFrames = []*SubFrame{newSubFrame(owner, nil)}
}

func (cs *CallStack) PushState(s state.State) {
	cs.Current().push(s)
}

func (cs *CallStack) PopState() state.State {
	s, ok := cs.Current().pop()
	if !ok {
		fault(ErrOperandUnderflow, "in subframe owned by %T", cs.Current().owner)
	}
	return s
}

func (cs *CallStack) PeekState() (state.State, bool) {
	return cs.Current().peek()
}

// PopStates pops n states and returns them in push order.
func (cs *CallStack) PopStates(n int) []state.State {
	out := make([]state.State, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = cs.PopState()
	}
	return out
}

func (cs *CallStack) AddVariable(sym ir.Symbol, s state.State) {
	sf := cs.Current()
	sf.variables = append(sf.variables, &state.Variable{Symbol: sym, State: s})
}

// Variable looks sym up in the subframes of the current frame, innermost first.
func (cs *CallStack) Variable(sym ir.Symbol) *state.Variable {
	if v := cs.LookupVariable(sym); v != nil {
		return v
	}
	fault(ErrUnknownVariable, "%s", sym.SymbolName())
	return nil
}

// LookupVariable is Variable without the fault: it returns nil when sym is unbound.
func (cs *CallStack) LookupVariable(sym ir.Symbol) *state.Variable {
	f := cs.frame()
	for i := len(f.subFrames) - 1; i >= 0; i-- {
		if v := f.subFrames[i].variable(sym); v != nil {
			return v
		}
	}
	return nil
}

// AllVariables returns copies of the bindings visible in the current frame.
// Inner bindings shadow outer ones.
func (cs *CallStack) AllVariables() []state.Variable {
	f := cs.frame()
	seen := make(map[ir.Symbol]bool)
	var out []state.Variable
	for i := len(f.subFrames) - 1; i >= 0; i-- {
		vars := f.subFrames[i].variables
		for j := len(vars) - 1; j >= 0; j-- {
			if seen[vars[j].Symbol] {
				continue
			}
			seen[vars[j].Symbol] = true
			out = append(out, *vars[j])
		}
	}
	return out
}

// PushInstruction schedules in on the current subframe; it runs before
// every instruction already pending there.
func (cs *CallStack) PushInstruction(in Instruction) {
	sf := cs.Current()
	sf.instructions = append(sf.instructions, in)
}

// PushInstructions schedules instrs so that instrs[0] runs first.
func (cs *CallStack) PushInstructions(instrs ...Instruction) {
	cs.Current().pushAll(instrs)
}

func (cs *CallStack) PopInstruction() Instruction {
	f := cs.frame()
	in, ok := cs.Current().popInstruction()
	if !ok {
		fault(ErrNoInstruction, "subframe owned by %T is empty", cs.Current().owner)
	}
	f.current = in
	f.hasCurrent = true
	return in
}

// ClearInstructions drops every pending instruction of the current subframe.
func (cs *CallStack) ClearInstructions() {
	sf := cs.Current()
	sf.instructions = sf.instructions[:0]
}

// Done reports that no work is left: the outermost frame is down to one
// subframe with an empty instruction queue.
func (cs *CallStack) Done() bool {
	return len(cs.frames) == 0 || (len(cs.frames) == 1 && cs.frames[0].hasNoInstructions())
}

// Depth is the number of frames, the logical call depth.
func (cs *CallStack) Depth() int { return len(cs.frames) }

// Height is the total number of subframes over all frames.
func (cs *CallStack) Height() int {
	n := 0
	for _, f := range cs.frames {
		n += len(f.subFrames)
	}
	return n
}

// StackTrace renders the frames, innermost first, as "<owner> at <file>:<line>".
// Frames without a source file are skipped.
func (cs *CallStack) StackTrace() []string {
	var out []string
	for i := len(cs.frames) - 1; i >= 0; i-- {
		f := cs.frames[i]
		if f.file == nil {
			continue
		}
		out = append(out, f.String())
	}
	return out
}

func (f *Frame) String() string {
	owner := "<clinit>"
	if r, ok := f.Owner().(ir.Routine); ok {
		owner = r.FullName()
	}
	pos := f.file.Name
	if f.hasCurrent {
		if line := f.file.Line(f.current.Element.StartOffset()); line > 0 {
			pos = fmt.Sprintf("%s:%d", pos, line)
		}
	}
	return owner + " at " + pos
}

package stack

import (
	"errors"
	"reflect"
	"testing"

	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/state"
)

func newValues() state.Values {
	return state.Values{B: ir.NewBuiltIns()}
}

func expectFault(t *testing.T, target error, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		f, ok := r.(*Fault)
		if !ok {
			t.Fatalf("expected *Fault panic, got %v", r)
		}
		if !errors.Is(f, target) {
			t.Fatalf("expected %v, got %v", target, f)
		}
	}()
	fn()
}

func TestCallStack_InstructionOrder(t *testing.T) {
	a := &ir.Const{Kind: ir.ConstInt, Value: int32(1)}
	b := &ir.Const{Kind: ir.ConstInt, Value: int32(2)}
	c := &ir.Const{Kind: ir.ConstInt, Value: int32(3)}

	cs := New()
	cs.NewFrame(a, nil, CompoundOf(a), CompoundOf(b))
	cs.PushInstruction(SimpleOf(c))

	var got []Instruction
	for !cs.Done() {
		got = append(got, cs.PopInstruction())
	}
	expected := []Instruction{SimpleOf(c), CompoundOf(a), CompoundOf(b)}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("order = %v, want %v", got, expected)
	}
}

func TestCallStack_DropSubFramePropagatesTop(t *testing.T) {
	v := newValues()
	owner := &ir.Block{}
	cs := New()
	cs.NewFrame(owner, nil)
	cs.NewSubFrame(owner)
	cs.PushState(v.Int(1))
	cs.PushState(v.Int(2))
	cs.DropSubFrame()

	if got := cs.PopState(); got.Inspect() != "2" {
		t.Fatalf("propagated %s, want 2", got.Inspect())
	}
	if _, ok := cs.PeekState(); ok {
		t.Fatal("only the topmost operand should be propagated")
	}

	cs.NewSubFrame(owner)
	cs.PushState(v.Int(3))
	cs.DropSubFrameSilently()
	if _, ok := cs.PeekState(); ok {
		t.Fatal("silent drop must not propagate")
	}
}

func TestCallStack_VariablesAreFrameLocal(t *testing.T) {
	v := newValues()
	x := &ir.Variable{Name: "x"}
	y := &ir.Variable{Name: "y"}
	owner := &ir.Block{}

	cs := New()
	cs.NewFrame(owner, nil)
	cs.AddVariable(x, v.Int(1))
	cs.NewSubFrame(owner)
	cs.AddVariable(x, v.Int(2))
	cs.AddVariable(y, v.Int(3))

	if got := cs.Variable(x).State.Inspect(); got != "2" {
		t.Fatalf("inner x = %s, want 2", got)
	}
	vars := cs.AllVariables()
	if len(vars) != 2 {
		t.Fatalf("AllVariables() returned %d bindings, want 2", len(vars))
	}

	cs.NewFrame(owner, nil)
	if cs.LookupVariable(x) != nil {
		t.Fatal("a new frame must not see the caller's locals")
	}
	expectFault(t, ErrUnknownVariable, func() { cs.Variable(x) })
	cs.DropFrame()

	cs.DropSubFrameSilently()
	if got := cs.Variable(x).State.Inspect(); got != "1" {
		t.Fatalf("outer x = %s, want 1", got)
	}
}

func TestCallStack_Faults(t *testing.T) {
	cs := New()
	expectFault(t, ErrNoFrame, func() { cs.PushState(nil) })
	cs.NewFrame(&ir.Block{}, nil)
	expectFault(t, ErrOperandUnderflow, func() { cs.PopState() })
	expectFault(t, ErrNoInstruction, func() { cs.PopInstruction() })
}

func TestCallStack_Reset(t *testing.T) {
	v := newValues()
	loop := &ir.WhileLoop{}
	x := &ir.Variable{Name: "x"}
	cs := New()
	cs.NewFrame(&ir.Block{}, nil)
	sf := cs.NewSubFrame(loop, CompoundOf(loop))
	cs.AddVariable(x, v.Int(1))
	cs.PushState(v.Int(1))

	sf.Reseed(SimpleOf(loop))
	if cs.LookupVariable(x) == nil || sf.OperandCount() != 0 {
		t.Fatal("Reseed keeps variables and clears operands")
	}
	sf.Reset(SimpleOf(loop))
	if cs.LookupVariable(x) != nil {
		t.Fatal("Reset clears variables")
	}
	if in := cs.PopInstruction(); in != SimpleOf(loop) {
		t.Fatalf("unexpected instruction %v", in)
	}
}

func TestCallStack_StackTrace(t *testing.T) {
	file := ir.NewFile("main.kt", "fun f() {\n  g()\n}\n")
	fn := &ir.Function{Name: "f", FqName: "f"}
	call := &ir.Call{ExprBase: ir.ExprBase{Pos: ir.Pos{Offset: 12}}}

	cs := New()
	cs.NewFrame(&ir.Block{}, nil, CompoundOf(call))
	cs.NewFrame(fn, file, SimpleOf(call))
	cs.PopInstruction()

	expected := []string{"f at main.kt:2"}
	if got := cs.StackTrace(); !reflect.DeepEqual(got, expected) {
		t.Fatalf("StackTrace() = %v, want %v", got, expected)
	}
	if cs.Depth() != 2 || cs.Height() != 2 {
		t.Fatalf("Depth/Height = %d/%d", cs.Depth(), cs.Height())
	}
}

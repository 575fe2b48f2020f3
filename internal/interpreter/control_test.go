package interpreter

import (
	"errors"
	"testing"

	"github.com/funvibe/consteval/internal/builtins"
	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/stack"
	"github.com/funvibe/consteval/internal/state"
)

// finallyProgram builds
//
//	object Log { var count = 0 }
//	fun f(mode: Int): Int {
//	    val x = try {
//	        when { mode == 0 -> return 1; mode == 1 -> throw IllegalStateException("x") }
//	        2
//	    } finally { Log.count = Log.count + 1 }
//	    return x * 10
//	}
//
// and evaluates Log.count * 100 + (try { f(mode) } catch (e: IllegalStateException) { -1 }).
func finallyProgram(k *kit, mode int32) ir.Expression {
	log := ir.NewClass("demo.Log", ir.ClassKindObject, k.b.Any)
	count := ir.NewProperty("count", k.intT(), k.int(0))
	count.Mutable = true
	log.Add(count)
	logCtor := &ir.Constructor{Primary: true}
	logCtor.Body = k.constructorBody(log, k.b.AnyConstructor())
	log.Add(logCtor)

	bump := &ir.SetField{
		ExprBase: ir.ExprBase{Type: k.unitT()},
		Field:    count.BackingField,
		Receiver: k.objectValue(log),
		Value:    k.plus(k.field(count, k.objectValue(log)), k.int(1)),
	}

	m := k.param("mode", k.intT())
	f := k.function("f", k.intT(), []*ir.ValueParameter{m}, func(fn *ir.Function) []ir.Element {
		x := k.val("x", k.intT(), &ir.Try{
			ExprBase: ir.ExprBase{Type: k.intT()},
			Result: k.block(
				k.when(
					k.branch(k.eq(k.get(m), k.int(0)), k.ret(fn, k.int(1))),
					k.branch(k.eq(k.get(m), k.int(1)), k.throw(k.newException(k.b.IllegalStateException, "x"))),
				),
				k.int(2),
			),
			Finally: k.block(bump),
		})
		return []ir.Element{x, k.ret(fn, k.times(k.get(x), k.int(10)))}
	})

	guarded := &ir.Try{
		ExprBase: ir.ExprBase{Type: k.intT()},
		Result:   k.call(f, k.int(mode)),
		Catches: []*ir.Catch{k.catch(k.b.IllegalStateException, func(*ir.Variable) ir.Expression {
			return k.int(-1)
		})},
	}
	r := k.val("r", k.intT(), guarded)
	return k.composite(r, k.plus(k.times(k.field(count, k.objectValue(log)), k.int(100)), k.get(r)))
}

func TestFinally_RunsOnceOnEveryExit(t *testing.T) {
	k := newKit()
	tests := []struct {
		name     string
		mode     int32
		expected string
	}{
		{"return", 0, "101"},
		{"throw", 1, "99"},
		{"normal completion", 2, "120"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectValue(t, interpret(t, k.interpreter(), finallyProgram(k, tt.mode)), tt.expected)
		})
	}
}

func TestFinally_OverridesPendingReturn(t *testing.T) {
	k := newKit()
	fn := k.function("g", k.intT(), nil, func(fn *ir.Function) []ir.Element {
		return []ir.Element{&ir.Try{
			ExprBase: ir.ExprBase{Type: k.intT()},
			Result:   k.ret(fn, k.int(1)),
			Finally:  k.ret(fn, k.int(2)),
		}}
	})
	expectValue(t, interpret(t, k.interpreter(), k.call(fn)), "2")
}

func TestCatch_FirstMatchingClauseWins(t *testing.T) {
	k := newKit()
	tests := []struct {
		name     string
		thrown   *ir.Class
		clauses  []*ir.Class
		expected string
	}{
		{"supertype first", k.b.IllegalArgumentException,
			[]*ir.Class{k.b.RuntimeException, k.b.IllegalArgumentException}, "0"},
		{"exact match second", k.b.IllegalStateException,
			[]*ir.Class{k.b.IllegalArgumentException, k.b.IllegalStateException, k.b.Exception}, "1"},
		{"throwable catches all", k.b.AssertionError,
			[]*ir.Class{k.b.Exception, k.b.Throwable}, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			try := &ir.Try{
				ExprBase: ir.ExprBase{Type: k.intT()},
				Result:   k.throw(k.newException(tt.thrown, "boom")),
			}
			for i, c := range tt.clauses {
				try.Catches = append(try.Catches, k.catch(c, func(*ir.Variable) ir.Expression { return k.int(int32(i)) }))
			}
			expectValue(t, interpret(t, k.interpreter(), try), tt.expected)
		})
	}
}

func TestCatch_NoMatchPropagates(t *testing.T) {
	k := newKit()
	try := &ir.Try{
		ExprBase: ir.ExprBase{Type: k.intT()},
		Result:   k.throw(k.newException(k.b.IllegalStateException, "boom")),
		Catches: []*ir.Catch{k.catch(k.b.IllegalArgumentException, func(*ir.Variable) ir.Expression {
			return k.int(0)
		})},
	}
	_, err := k.interpreter().Interpret(try, nil)
	expectUncaught(t, err, k.b.IllegalStateException)
}

func TestCatch_RethrowFromCatch(t *testing.T) {
	k := newKit()
	inner := &ir.Try{
		ExprBase: ir.ExprBase{Type: k.intT()},
		Result:   k.throw(k.newException(k.b.IllegalStateException, "first")),
		Catches: []*ir.Catch{k.catch(k.b.IllegalStateException, func(*ir.Variable) ir.Expression {
			return k.throw(k.newException(k.b.IllegalArgumentException, "second"))
		})},
	}
	outer := &ir.Try{
		ExprBase: ir.ExprBase{Type: k.intT()},
		Result:   inner,
		Catches: []*ir.Catch{k.catch(k.b.IllegalArgumentException, func(*ir.Variable) ir.Expression {
			return k.int(7)
		})},
	}
	expectValue(t, interpret(t, k.interpreter(), outer), "7")
}

func infiniteLoop(k *kit) *ir.WhileLoop {
	return &ir.WhileLoop{ExprBase: ir.ExprBase{Type: k.unitT()}, Condition: k.boolean(true), Body: k.block()}
}

func TestTimeout(t *testing.T) {
	k := newKit()
	swallow := &ir.Try{
		ExprBase: ir.ExprBase{Type: k.intT()},
		Result:   k.block(infiniteLoop(k), k.int(0)),
		Catches: []*ir.Catch{k.catch(k.b.Throwable, func(*ir.Variable) ir.Expression {
			return k.int(5)
		})},
	}
	keepGoing := &ir.Try{
		ExprBase: ir.ExprBase{Type: k.unitT()},
		Result:   infiniteLoop(k),
		Catches: []*ir.Catch{k.catch(k.b.Throwable, func(*ir.Variable) ir.Expression {
			return infiniteLoop(k)
		})},
	}

	tests := []struct {
		name string
		expr ir.Expression
		min  int
	}{
		{"bare loop", infiniteLoop(k), 300},
		{"timeout caught", swallow, 300},
		{"loop after catch", keepGoing, 360},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := k.interpreter(WithConfig(smallBudget())).Interpret(tt.expr, nil)
			if !errors.Is(err, ErrTimeout) {
				t.Fatalf("expected ErrTimeout, got %v", err)
			}
			var te *TimeoutError
			if !errors.As(err, &te) {
				t.Fatalf("expected *TimeoutError, got %T", err)
			}
			if te.Instructions < tt.min {
				t.Errorf("stopped after %d instructions, want at least %d", te.Instructions, tt.min)
			}
		})
	}
}

func TestTimeout_SurfacesAsException(t *testing.T) {
	k := newKit()
	message := k.b.Getter(k.b.Throwable, "message", k.stringT().MakeNullable())
	record := &ir.Function{Name: "record", FqName: "demo.record", ReturnType: k.unitT(), Static: true, Intrinsic: ir.IntrinsicHost}
	record.AddParam(k.param("msg", k.b.AnyNType()))

	var seen string
	vals := state.Values{B: k.b}
	in := k.interpreter(WithConfig(smallBudget()), WithHostTable(map[string]builtins.HostFunc{
		"demo.record": func(args []state.State) (state.State, error) {
			seen = args[0].Inspect()
			return vals.Unit(), nil
		},
	}))
	try := &ir.Try{
		ExprBase: ir.ExprBase{Type: k.unitT()},
		Result:   infiniteLoop(k),
		Catches: []*ir.Catch{k.catch(k.b.InterpreterTimeOutError, func(e *ir.Variable) ir.Expression {
			return k.call(record, k.callOn(k.get(e), message))
		})},
	}

	_, err := in.Interpret(try, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if seen != "Exceeded execution limit of 300 instructions" {
		t.Errorf("catch block saw %q", seen)
	}
}

func TestLoops_BreakRestoresHeight(t *testing.T) {
	k := newKit()
	i := k.val("i", k.intT(), k.int(0))
	i.Mutable = true
	loop := &ir.WhileLoop{ExprBase: ir.ExprBase{Type: k.unitT()}, Condition: k.boolean(true)}
	loop.Body = k.block(
		k.set(i, k.plus(k.get(i), k.int(1))),
		k.when(k.branch(k.eq(k.get(i), k.int(3)), k.block(k.block(&ir.Break{Loop: loop})))),
	)
	marker := k.get(i)

	before, after := -1, -1
	hook := func(cs *stack.CallStack, instr stack.Instruction) {
		if instr.Kind != stack.Compound {
			return
		}
		switch instr.Element {
		case ir.Element(loop):
			before = cs.Height()
		case ir.Element(marker):
			after = cs.Height()
		}
	}

	res := interpret(t, k.interpreter(withInstructionHook(hook)), k.composite(i, loop, marker))
	expectValue(t, res, "3")
	if before < 0 || before != after {
		t.Errorf("height before loop %d, after loop %d", before, after)
	}
}

func TestLoops_ContinueAndDoWhile(t *testing.T) {
	k := newKit()

	t.Run("continue skips the rest of the body", func(t *testing.T) {
		i := k.val("i", k.intT(), k.int(0))
		sum := k.val("sum", k.intT(), k.int(0))
		loop := &ir.WhileLoop{ExprBase: ir.ExprBase{Type: k.unitT()}, Condition: k.less(k.get(i), k.int(6))}
		isOdd := k.eq(k.binary("rem", k.intT(), k.get(i), k.int(2)), k.int(1))
		loop.Body = k.block(
			k.set(i, k.plus(k.get(i), k.int(1))),
			k.when(k.branch(isOdd, &ir.Continue{Loop: loop})),
			k.set(sum, k.plus(k.get(sum), k.get(i))),
		)
		expectValue(t, interpret(t, k.interpreter(), k.composite(i, sum, loop, k.get(sum))), "12")
	})

	t.Run("do-while body runs first", func(t *testing.T) {
		n := k.val("n", k.intT(), k.int(10))
		loop := &ir.DoWhileLoop{
			ExprBase:  ir.ExprBase{Type: k.unitT()},
			Condition: k.less(k.get(n), k.int(7)),
			Body:      k.block(k.set(n, k.plus(k.get(n), k.int(2)))),
		}
		expectValue(t, interpret(t, k.interpreter(), k.composite(n, loop, k.get(n))), "12")
	})

	t.Run("do-while condition sees body locals", func(t *testing.T) {
		n := k.val("n", k.intT(), k.int(0))
		next := k.val("next", k.intT(), k.plus(k.get(n), k.int(3)))
		loop := &ir.DoWhileLoop{ExprBase: ir.ExprBase{Type: k.unitT()}, Condition: k.less(k.get(next), k.int(10))}
		loop.Body = k.block(next, k.set(n, k.get(next)))
		expectValue(t, interpret(t, k.interpreter(), k.composite(n, loop, k.get(n))), "12")
	})

	t.Run("break inside finally-guarded body", func(t *testing.T) {
		hits := k.val("hits", k.intT(), k.int(0))
		loop := &ir.WhileLoop{ExprBase: ir.ExprBase{Type: k.unitT()}, Condition: k.boolean(true)}
		loop.Body = &ir.Try{
			ExprBase: ir.ExprBase{Type: k.unitT()},
			Result:   &ir.Break{Loop: loop},
			Finally:  k.set(hits, k.plus(k.get(hits), k.int(1))),
		}
		expectValue(t, interpret(t, k.interpreter(), k.composite(hits, loop, k.get(hits))), "1")
	})
}

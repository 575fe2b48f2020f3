package interpreter

import (
	"testing"

	"github.com/funvibe/consteval/internal/config"
	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/state"
)

// kit builds IR by hand against one set of builtins.
type kit struct {
	b *ir.BuiltIns
}

func newKit() *kit { return &kit{b: ir.NewBuiltIns()} }

func (k *kit) interpreter(opts ...Option) *Interpreter { return New(k.b, opts...) }

func (k *kit) intT() ir.Type    { return k.b.Int.DefaultType() }
func (k *kit) longT() ir.Type   { return k.b.Long.DefaultType() }
func (k *kit) boolT() ir.Type   { return k.b.Boolean.DefaultType() }
func (k *kit) stringT() ir.Type { return k.b.String.DefaultType() }
func (k *kit) unitT() ir.Type   { return k.b.Unit.DefaultType() }

func (k *kit) int(v int32) *ir.Const {
	return &ir.Const{ExprBase: ir.ExprBase{Type: k.intT()}, Kind: ir.ConstInt, Value: v}
}

func (k *kit) long(v int64) *ir.Const {
	return &ir.Const{ExprBase: ir.ExprBase{Type: k.longT()}, Kind: ir.ConstLong, Value: v}
}

func (k *kit) str(v string) *ir.Const {
	return &ir.Const{ExprBase: ir.ExprBase{Type: k.stringT()}, Kind: ir.ConstString, Value: v}
}

func (k *kit) boolean(v bool) *ir.Const {
	return &ir.Const{ExprBase: ir.ExprBase{Type: k.boolT()}, Kind: ir.ConstBoolean, Value: v}
}

func (k *kit) get(sym ir.Symbol) *ir.GetValue {
	var t ir.Type
	switch s := sym.(type) {
	case *ir.ValueParameter:
		t = s.Type
	case *ir.Variable:
		t = s.Type
	}
	return &ir.GetValue{ExprBase: ir.ExprBase{Type: t}, Symbol: sym}
}

func (k *kit) val(name string, t ir.Type, init ir.Expression) *ir.Variable {
	return &ir.Variable{Name: name, Type: t, Initializer: init}
}

func (k *kit) set(v *ir.Variable, value ir.Expression) *ir.SetValue {
	return &ir.SetValue{ExprBase: ir.ExprBase{Type: k.unitT()}, Symbol: v, Value: value}
}

// binary calls the builtin member l.name(r).
func (k *kit) binary(name string, ret ir.Type, l, r ir.Expression) *ir.Call {
	owner := l.ExpressionType().Class()
	fn := k.b.Member(owner, name, ret, r.ExpressionType())
	return &ir.Call{ExprBase: ir.ExprBase{Type: ret}, Target: fn, DispatchReceiver: l, Args: []ir.Expression{r}}
}

func (k *kit) plus(l, r ir.Expression) *ir.Call {
	return k.binary("plus", l.ExpressionType(), l, r)
}

// concat is String.plus(Any?).
func (k *kit) concat(l, r ir.Expression) *ir.Call {
	fn := k.b.Member(k.b.String, "plus", k.stringT(), k.b.AnyNType())
	return &ir.Call{ExprBase: ir.ExprBase{Type: k.stringT()}, Target: fn, DispatchReceiver: l, Args: []ir.Expression{r}}
}

func (k *kit) times(l, r ir.Expression) *ir.Call {
	return k.binary("times", l.ExpressionType(), l, r)
}

func (k *kit) minus(l, r ir.Expression) *ir.Call {
	return k.binary("minus", l.ExpressionType(), l, r)
}

// op calls a top-level builtin operator such as less or EQEQ.
func (k *kit) op(name string, ret ir.Type, args ...ir.Expression) *ir.Call {
	params := make([]ir.Type, len(args))
	for i, a := range args {
		params[i] = a.ExpressionType()
	}
	if name == "EQEQ" || name == "EQEQEQ" {
		params = []ir.Type{k.b.AnyNType(), k.b.AnyNType()}
	}
	return &ir.Call{ExprBase: ir.ExprBase{Type: ret}, Target: k.b.Operator(name, ret, params...), Args: args}
}

func (k *kit) less(l, r ir.Expression) *ir.Call { return k.op("less", k.boolT(), l, r) }
func (k *kit) eq(l, r ir.Expression) *ir.Call   { return k.op("EQEQ", k.boolT(), l, r) }

func (k *kit) block(stmts ...ir.Element) *ir.Block {
	return &ir.Block{Statements: stmts}
}

func (k *kit) composite(stmts ...ir.Element) *ir.Composite {
	return &ir.Composite{Statements: stmts}
}

func (k *kit) when(branches ...*ir.Branch) *ir.When {
	return &ir.When{Branches: branches}
}

func (k *kit) branch(cond, result ir.Expression) *ir.Branch {
	return &ir.Branch{Condition: cond, Result: result}
}

func (k *kit) ret(target ir.Routine, v ir.Expression) *ir.Return {
	return &ir.Return{ExprBase: ir.ExprBase{Type: k.b.Nothing.DefaultType()}, Target: target, Value: v}
}

func (k *kit) throw(v ir.Expression) *ir.Throw {
	return &ir.Throw{ExprBase: ir.ExprBase{Type: k.b.Nothing.DefaultType()}, Value: v}
}

// newException constructs a builtin exception with a message.
func (k *kit) newException(c *ir.Class, msg string) *ir.ConstructorCall {
	return &ir.ConstructorCall{
		ExprBase: ir.ExprBase{Type: c.DefaultType()},
		Target:   c.PrimaryConstructor(),
		Args:     []ir.Expression{k.str(msg)},
	}
}

func (k *kit) catch(c *ir.Class, result func(e *ir.Variable) ir.Expression) *ir.Catch {
	param := &ir.Variable{Name: "e", Type: c.DefaultType()}
	return &ir.Catch{Parameter: param, Result: result(param)}
}

// function declares a top-level function. body receives the function so
// that it can build returns and parameter reads.
func (k *kit) function(name string, ret ir.Type, params []*ir.ValueParameter, body func(fn *ir.Function) []ir.Element) *ir.Function {
	fn := &ir.Function{Name: name, FqName: "demo." + name, ReturnType: ret, Static: true}
	for _, p := range params {
		fn.AddParam(p)
	}
	fn.Body = &ir.Body{Statements: body(fn)}
	return fn
}

func (k *kit) param(name string, t ir.Type) *ir.ValueParameter {
	return &ir.ValueParameter{Name: name, Type: t}
}

func (k *kit) call(fn *ir.Function, args ...ir.Expression) *ir.Call {
	return &ir.Call{ExprBase: ir.ExprBase{Type: fn.ReturnType}, Target: fn, Args: args}
}

func (k *kit) callOn(recv ir.Expression, fn *ir.Function, args ...ir.Expression) *ir.Call {
	c := k.call(fn, args...)
	c.DispatchReceiver = recv
	return c
}

// constructorBody is the usual super() call followed by the initializers of c.
func (k *kit) constructorBody(c *ir.Class, super *ir.Constructor, superArgs ...ir.Expression) *ir.Body {
	return &ir.Body{Statements: []ir.Element{
		&ir.DelegatingConstructorCall{ExprBase: ir.ExprBase{Type: k.unitT()}, Target: super, Args: superArgs},
		&ir.InstanceInitializerCall{ExprBase: ir.ExprBase{Type: k.unitT()}, Class: c},
	}}
}

func (k *kit) newObject(ctor *ir.Constructor, args ...ir.Expression) *ir.ConstructorCall {
	return &ir.ConstructorCall{ExprBase: ir.ExprBase{Type: ctor.Parent.DefaultType()}, Target: ctor, Args: args}
}

func (k *kit) field(p *ir.Property, recv ir.Expression) *ir.GetField {
	return &ir.GetField{ExprBase: ir.ExprBase{Type: p.Type}, Field: p.BackingField, Receiver: recv}
}

func (k *kit) objectValue(c *ir.Class) *ir.GetObjectValue {
	return &ir.GetObjectValue{ExprBase: ir.ExprBase{Type: c.DefaultType()}, Class: c}
}

func (k *kit) anyToString() *ir.Function {
	return k.b.Member(k.b.Any, "toString", k.stringT())
}

func smallBudget() *config.Config {
	cfg := config.Default()
	cfg.MaxInstructions = 300
	cfg.TimeoutGrace = 60
	return cfg
}

func interpret(t *testing.T, in *Interpreter, expr ir.Expression) *Result {
	t.Helper()
	res, err := in.Interpret(expr, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return res
}

func expectValue(t *testing.T, res *Result, expected string) {
	t.Helper()
	if got := res.Value.Inspect(); got != expected {
		t.Fatalf("got %s, want %s", got, expected)
	}
}

func expectUncaught(t *testing.T, err error, class *ir.Class) *state.ExceptionState {
	t.Helper()
	ue, ok := err.(*UncaughtException)
	if !ok {
		t.Fatalf("expected *UncaughtException, got %T: %v", err, err)
	}
	if ue.Exception.Class() != class {
		t.Fatalf("expected %s, got %s", class.FqName, ue.Exception.Class().FqName)
	}
	return ue.Exception
}

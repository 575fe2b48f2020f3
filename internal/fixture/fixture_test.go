package fixture

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/funvibe/consteval/internal/interpreter"
	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/state"
)

func loadFixture(t *testing.T, name string) (*Program, *interpreter.Interpreter) {
	t.Helper()
	b := ir.NewBuiltIns()
	prog, err := Load(filepath.Join("testdata", name), b)
	if err != nil {
		t.Fatalf("Load(%s) failed: %v", name, err)
	}
	return prog, interpreter.New(b)
}

func evaluate(t *testing.T, prog *Program, in *interpreter.Interpreter, name string) *interpreter.Result {
	t.Helper()
	e := prog.Lookup(name)
	if e == nil {
		t.Fatalf("fixture has no expression %q (have %v)", name, prog.Names())
	}
	res, err := in.Interpret(e.Expr, prog.File)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return res
}

type evalCase struct {
	name     string
	expected string
}

func runCases(t *testing.T, fixture string, cases []evalCase) {
	t.Helper()
	prog, in := loadFixture(t, fixture)
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			res := evaluate(t, prog, in, tt.name)
			if got := res.Value.Inspect(); got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, got, tt.expected)
			}
		})
	}
}

func TestFixture_Points(t *testing.T) {
	runCases(t, "points.yaml", []evalCase{
		{"sum", "(4, 6)"},
		{"label", "p=(1, 2)"},
		{"squareArea", "area=16"},
		{"isShape", "true"},
		{"tickets", "3"},
	})
}

func TestFixture_Algorithms(t *testing.T) {
	runCases(t, "algorithms.yaml", []evalCase{
		{"fact20", "2432902008176640000"},
		{"fib10", "55"},
		{"sum100", "5050"},
		{"greetDefault", "hello, world!!"},
		{"greetGo", "hello, go!!"},
		{"totalFour", "10"},
		{"totalNone", "0"},
		{"answer", "42"},
		{"abs", "7"},
		{"squares", "[0, 1, 4, 9]"},
	})
}

func TestFixture_Control(t *testing.T) {
	runCases(t, "control.yaml", []evalCase{
		{"checked", "try;finally"},
		{"caught", "try;caught -2;finally"},
		{"message", "invalid code -1"},
		{"noMessage", "null"},
		{"pair", "206"},
		{"odd", "9"},
		{"negative", "negative"},
		{"zero", "zero"},
		{"positive", "positive"},
		{"adder", "11"},
		{"earthHeavier", "true"},
		{"planets", "[MERCURY, EARTH]"},
		{"earthMass", "60"},
		{"castCheck", "true/null"},
	})
}

func TestFixture_ConstantObject(t *testing.T) {
	prog, in := loadFixture(t, "points.yaml")
	res := evaluate(t, prog, in, "origin")

	if res.Text != "(0, 0)" {
		t.Errorf("Text = %q, want the toString override", res.Text)
	}
	obj, ok := res.Expr.(*ir.ConstantObject)
	if !ok {
		t.Fatalf("origin expressed as %T, want *ir.ConstantObject", res.Expr)
	}
	if obj.Type.Class().FqName != "geo.Point" {
		t.Errorf("class = %s, want geo.Point", obj.Type.Class().FqName)
	}
	if len(obj.Fields) != 2 {
		t.Fatalf("got %d fields, want 2", len(obj.Fields))
	}
	for i, name := range []string{"x", "y"} {
		f := obj.Fields[i]
		c, ok := f.Value.(*ir.Const)
		if f.Property.Name != name || !ok || c.Value != int32(0) {
			t.Errorf("field %d = %s:%v, want %s:0", i, f.Property.Name, f.Value, name)
		}
	}
}

func TestFixture_UncaughtTrace(t *testing.T) {
	prog, in := loadFixture(t, "control.yaml")
	e := prog.Lookup("failing")
	_, err := in.Interpret(e.Expr, prog.File)

	var uncaught *interpreter.UncaughtException
	if !errors.As(err, &uncaught) {
		t.Fatalf("expected UncaughtException, got %v", err)
	}
	if got, _ := uncaught.Exception.Message(); got != "invalid code -3" {
		t.Errorf("message = %q", got)
	}
	if len(uncaught.Exception.StackTrace) == 0 {
		t.Fatal("empty stack trace")
	}
	if top := uncaught.Exception.StackTrace[0]; !strings.HasPrefix(top, "ctl.check at Control.kt:") {
		t.Errorf("top frame = %q, want ctl.check at Control.kt:<line>", top)
	}
}

func TestFixture_ExpressionLines(t *testing.T) {
	prog, _ := loadFixture(t, "algorithms.yaml")
	e := prog.Lookup("fact20")
	if e.Line == 0 {
		t.Fatal("expression has no line")
	}
	if line := prog.File.Line(e.Expr.StartOffset()); line != e.Line {
		t.Errorf("expression offset maps to line %d, want %d", line, e.Line)
	}
}

func TestFixture_Names(t *testing.T) {
	prog, _ := loadFixture(t, "points.yaml")
	got := strings.Join(prog.Names(), ",")
	if got != "origin,sum,label,squareArea,isShape,tickets" {
		t.Errorf("Names() = %s", got)
	}
	if prog.Package != "geo" || prog.File.Name != "Points.kt" {
		t.Errorf("package %q file %q", prog.Package, prog.File.Name)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		sentinel error
		line     int
	}{
		{
			name: "unknown form",
			input: `expressions:
  - name: bad
    expr: {frobnicate: 1}
`,
			sentinel: ErrUnknownForm,
			line:     3,
		},
		{
			name: "unresolved variable",
			input: `expressions:
  - name: bad
    expr: {get: missing}
`,
			sentinel: ErrUnresolved,
			line:     3,
		},
		{
			name: "val reassigned",
			input: `expressions:
  - name: bad
    expr:
      block:
        - {val: x, init: {int: 1}}
        - {set: x, value: {int: 2}}
`,
			sentinel: ErrInvalid,
			line:     6,
		},
		{
			name: "break outside loop",
			input: `expressions:
  - name: bad
    expr: {break: ~}
`,
			sentinel: ErrInvalid,
			line:     3,
		},
		{
			name: "return outside function",
			input: `expressions:
  - name: bad
    expr: {return: {int: 1}}
`,
			sentinel: ErrInvalid,
			line:     3,
		},
		{
			name: "int literal overflow",
			input: `expressions:
  - name: bad
    expr: {int: 3000000000}
`,
			sentinel: ErrInvalid,
			line:     3,
		},
		{
			name: "two forms",
			input: `expressions:
  - name: bad
    expr: {int: 1, string: one}
`,
			sentinel: ErrInvalid,
			line:     3,
		},
		{
			name: "unknown type",
			input: `functions:
  - name: f
    returns: Widget
    body: {int: 1}
`,
			sentinel: ErrUnresolved,
			line:     2,
		},
		{
			name: "supertype cycle",
			input: `classes:
  - {name: A, supertypes: [B]}
  - {name: B, supertypes: [A]}
`,
			sentinel: ErrInvalid,
			line:     0,
		},
		{
			name: "duplicate expression",
			input: `expressions:
  - {name: x, expr: {int: 1}}
  - {name: x, expr: {int: 2}}
`,
			sentinel: ErrInvalid,
			line:     3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.input), "inline.yaml", ir.NewBuiltIns())
			if err == nil {
				t.Fatal("expected an error")
			}
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("error %v does not wrap %v", err, tt.sentinel)
			}
			var fe *Error
			if !errors.As(err, &fe) {
				t.Fatalf("error %v is not a *fixture.Error", err)
			}
			if tt.line > 0 && fe.Line != tt.line {
				t.Errorf("line = %d, want %d (%v)", fe.Line, tt.line, err)
			}
			if !strings.HasPrefix(err.Error(), "inline.yaml:") {
				t.Errorf("error %q does not name the file", err)
			}
		})
	}
}

func TestDecode_BadYAML(t *testing.T) {
	_, err := Decode([]byte("classes: [unterminated"), "broken.yaml", ir.NewBuiltIns())
	if err == nil || !strings.Contains(err.Error(), "parsing broken.yaml") {
		t.Errorf("expected a parse error, got %v", err)
	}
}

func TestDecode_ResultState(t *testing.T) {
	b := ir.NewBuiltIns()
	prog, err := Decode([]byte(`expressions:
  - name: c
    expr: {char: "z"}
`), "inline.yaml", b)
	if err != nil {
		t.Fatal(err)
	}
	res, err := interpreter.New(b).Interpret(prog.Expressions[0].Expr, prog.File)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := res.Value.(*state.Primitive)
	if !ok || p.Value != state.Char('z') {
		t.Errorf("char literal evaluated to %#v", res.Value)
	}
}

const nodeFields = `package: nodes
classes:
  - name: Box
    properties:
      - {name: w, type: Int, init: {get: w}}
      - {name: trace, type: String, init: {string: ""}, mutable: true}
    constructors:
      - params: [{name: w, type: Int, default: {int: 3}}]
        body:
          - setfield: trace
            value: {concat: [{field: trace}, {string: "ctor;"}]}
      - params: [{name: a, type: Int}, {name: b, type: Int}]
        this: [{call: plus, receiver: {get: a}, args: [{get: b}]}]
    init:
      - setfield: trace
        value: {concat: [{field: trace}, {string: "init;"}]}

functions:
  - name: guarded
    params: [{name: n, type: Int}]
    returns: Int
    body:
      - try: {throw: {new: IllegalStateException, args: [{string: "x"}]}}
        catch:
          - {name: e, type: IllegalStateException, body: {return: {get: n}}}
      - return: {int: -1}

expressions:
  - name: trace
    expr: {field: trace, receiver: {new: Box}}
  - name: width
    expr: {field: w, receiver: {new: Box}}
  - name: delegated
    expr: {field: w, receiver: {new: Box, args: [{int: 2}, {int: 5}]}}
  - name: guarded
    expr: {call: guarded, args: [{int: 9}]}
`

func TestDecode_NodeFields(t *testing.T) {
	b := ir.NewBuiltIns()
	prog, err := Decode([]byte(nodeFields), "nodes.yaml", b)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	in := interpreter.New(b)

	tests := []struct {
		name     string
		expected string
	}{
		{"trace", "init;ctor;"},
		{"width", "3"},
		{"delegated", "7"},
		{"guarded", "9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := prog.Lookup(tt.name)
			if e == nil || e.Expr == nil {
				t.Fatalf("expression %q decoded without a body", tt.name)
			}
			if got := evaluate(t, prog, in, tt.name).Value.Inspect(); got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, got, tt.expected)
			}
		})
	}
}

func TestDecode_NullNodeFields(t *testing.T) {
	prog, err := Decode([]byte(`classes:
  - name: Plain
    init: ~
    properties:
      - {name: note, type: "String?", init: {null: ~}}
    constructors:
      - params: [{name: v, type: Int, default: ~}]
`), "nulls.yaml", ir.NewBuiltIns())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	c := prog.Classes[0]
	for _, d := range c.Declarations {
		if _, ok := d.(*ir.AnonymousInitializer); ok {
			t.Error("a null init block declared an initializer")
		}
	}
	if p := c.Constructors()[0].ValueParams[0]; p.Default != nil {
		t.Errorf("a null default decoded as %T", p.Default)
	}
}

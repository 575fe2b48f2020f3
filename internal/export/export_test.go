package export

import (
	"errors"
	"math"
	"testing"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/funvibe/consteval/internal/fixture"
	"github.com/funvibe/consteval/internal/interpreter"
	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/state"
)

const shapes = `file: Shapes.kt
package: shapes
classes:
  - name: Box
    properties:
      - {name: w, type: Int, init: {get: w}}
      - {name: tag, type: "String?", init: {null: ~}}
    constructors:
      - params: [{name: w, type: Int}]
  - name: Color
    kind: enum
    entries: [RED, GREEN]
functions:
  - name: fail
    returns: Int
    body: {throw: {new: IllegalArgumentException, args: [{string: boom}]}}
expressions:
  - {name: box, expr: {new: Box, args: [{int: 3}]}}
  - {name: green, expr: {enum: Color.GREEN}}
  - {name: fails, expr: {call: fail}}
  - {name: range, expr: {call: rangeTo, receiver: {int: 1}, args: [{int: 3}]}}
`

func evalShapes(t *testing.T) []Entry {
	t.Helper()
	b := ir.NewBuiltIns()
	prog, err := fixture.Decode([]byte(shapes), "shapes.yaml", b)
	if err != nil {
		t.Fatal(err)
	}
	in := interpreter.New(b)
	var out []Entry
	for _, e := range prog.Expressions {
		entry := Entry{Name: e.Name}
		res, err := in.Interpret(e.Expr, prog.File)
		if err != nil {
			entry.Err = err
		} else {
			entry.Value = res.Value
		}
		out = append(out, entry)
	}
	return out
}

func TestValue_Primitives(t *testing.T) {
	vals := state.Values{B: ir.NewBuiltIns()}
	tests := []struct {
		name     string
		input    state.State
		expected *structpb.Value
	}{
		{"null", vals.Null(), structpb.NewNullValue()},
		{"bool", vals.Bool(true), structpb.NewBoolValue(true)},
		{"int", vals.Int(-12), structpb.NewNumberValue(-12)},
		{"small long", vals.Long(1 << 40), structpb.NewNumberValue(1 << 40)},
		{"large long", vals.Long(math.MaxInt64), structpb.NewStringValue("9223372036854775807")},
		{"char", vals.Char('z'), structpb.NewStringValue("z")},
		{"string", vals.String("hi"), structpb.NewStringValue("hi")},
		{"double", vals.Double(2.5), structpb.NewNumberValue(2.5)},
		{"float", vals.Float(0.1), structpb.NewNumberValue(0.1)},
		{"nan", vals.Double(math.NaN()), structpb.NewStringValue("NaN")},
		{"negative infinity", vals.Float(float32(math.Inf(-1))), structpb.NewStringValue("-Infinity")},
		{"unit", vals.Unit(), structpb.NewStringValue("kotlin.Unit")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Value(tt.input)
			if err != nil {
				t.Fatalf("Value(%s) failed: %v", tt.input.Inspect(), err)
			}
			if !proto.Equal(got, tt.expected) {
				t.Errorf("Value(%s) = %v, want %v", tt.input.Inspect(), got, tt.expected)
			}
		})
	}
}

func TestValue_Array(t *testing.T) {
	b := ir.NewBuiltIns()
	vals := state.Values{B: b}
	inner := vals.Array(b.Int.DefaultType(), []state.State{vals.Int(1), vals.Int(2)})
	outer := vals.Array(inner.Type, []state.State{inner, inner})

	got, err := Value(outer)
	if err != nil {
		t.Fatalf("shared elements should export: %v", err)
	}
	list := got.GetListValue()
	if list == nil || len(list.Values) != 2 {
		t.Fatalf("expected a list of two, got %v", got)
	}
	if n := list.Values[1].GetListValue().GetValues()[1].GetNumberValue(); n != 2 {
		t.Errorf("outer[1][1] = %v, want 2", n)
	}
}

func TestValue_Cycle(t *testing.T) {
	b := ir.NewBuiltIns()
	vals := state.Values{B: b}
	arr := vals.Array(b.AnyNType(), nil)
	av := arr.Value.(*state.ArrayValue)
	av.Elements = append(av.Elements, vals.Int(1), arr)

	_, err := Value(arr)
	if !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	if err.Error() != "$[1]: value refers to itself" {
		t.Errorf("error = %q", err)
	}
}

func TestDocument_Entries(t *testing.T) {
	doc, err := Document(evalShapes(t))
	if err != nil {
		t.Fatal(err)
	}

	box := doc.Fields["box"].GetStructValue()
	if box == nil {
		t.Fatalf("box exported as %v", doc.Fields["box"])
	}
	if got := box.Fields[ClassKey].GetStringValue(); got != "shapes.Box" {
		t.Errorf("box class = %q", got)
	}
	if got := box.Fields["w"].GetNumberValue(); got != 3 {
		t.Errorf("box.w = %v", got)
	}
	if _, ok := box.Fields["tag"].GetKind().(*structpb.Value_NullValue); !ok {
		t.Errorf("box.tag = %v, want null", box.Fields["tag"])
	}

	green := doc.Fields["green"].GetStructValue()
	if got := green.GetFields()["name"].GetStringValue(); got != "GREEN" {
		t.Errorf("green.name = %q", got)
	}
	if got := green.GetFields()["ordinal"].GetNumberValue(); got != 1 {
		t.Errorf("green.ordinal = %v", got)
	}

	fails := doc.Fields["fails"].GetStructValue()
	if fails.GetFields()[ErrorKey].GetStringValue() == "" {
		t.Error("failed entry has no error text")
	}
	exc := fails.GetFields()[ExceptionKey].GetStructValue()
	if got := exc.GetFields()["message"].GetStringValue(); got != "boom" {
		t.Errorf("exception message = %q", got)
	}
	if len(exc.GetFields()[TraceKey].GetListValue().GetValues()) == 0 {
		t.Error("exception has no stack trace")
	}

	rng := doc.Fields["range"].GetStructValue()
	if got := rng.GetFields()[HostKey].GetStringValue(); got != "1..3" {
		t.Errorf("range = %q, want 1..3", got)
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	data, err := Marshal(evalShapes(t))
	if err != nil {
		t.Fatal(err)
	}
	var doc structpb.Struct
	if err := protojson.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, data)
	}
	if len(doc.Fields) != 4 {
		t.Errorf("got %d entries, want 4", len(doc.Fields))
	}
}

func TestMarshalValue_RoundTrip(t *testing.T) {
	vals := state.Values{B: ir.NewBuiltIns()}
	data, err := MarshalValue(vals.Long(math.MinInt64))
	if err != nil {
		t.Fatal(err)
	}
	v, err := UnmarshalValue(data)
	if err != nil {
		t.Fatal(err)
	}
	if got := v.GetStringValue(); got != "-9223372036854775808" {
		t.Errorf("round trip = %v", v)
	}
	if _, err := UnmarshalValue([]byte("{")); err == nil {
		t.Error("expected a decode error")
	}
}

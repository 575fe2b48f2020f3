// Package export converts interpreted values into protobuf Struct values
// and renders them as JSON.
//
// Scalars map onto JSON scalars. Long and ULong values that a double
// cannot hold exactly become decimal strings, and non-finite floats
// become "NaN", "Infinity" or "-Infinity". Objects become structs keyed
// by property name plus an "@class" entry.
package export

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/funvibe/consteval/internal/interpreter"
	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/state"
)

var (
	ErrCycle       = errors.New("value refers to itself")
	ErrTooDeep     = errors.New("value nested too deeply")
	ErrUnsupported = errors.New("unsupported state")
)

// Reserved keys of exported structs.
const (
	ClassKey     = "@class"
	HostKey      = "@host"
	FunctionKey  = "@function"
	TypeKey      = "@type"
	TraceKey     = "@stackTrace"
	ErrorKey     = "@error"
	ExceptionKey = "@exception"
)

// MaxDepth bounds the nesting of exported arrays and objects.
const MaxDepth = 64

// maxExact is the largest integer magnitude a double holds exactly.
const maxExact = 1 << 53

type converter struct {
	seen  map[any]bool
	depth int
}

// Value converts s. Arrays and objects that contain themselves are
// reported with ErrCycle; shared references that do not loop are copied.
func Value(s state.State) (*structpb.Value, error) {
	c := &converter{seen: make(map[any]bool)}
	return c.value(s, "$")
}

func (c *converter) enter(key any, path string) error {
	if c.seen[key] {
		return fmt.Errorf("%s: %w", path, ErrCycle)
	}
	if c.depth >= MaxDepth {
		return fmt.Errorf("%s: %w", path, ErrTooDeep)
	}
	c.seen[key] = true
	c.depth++
	return nil
}

func (c *converter) leave(key any) {
	delete(c.seen, key)
	c.depth--
}

func (c *converter) value(s state.State, path string) (*structpb.Value, error) {
	switch x := s.(type) {
	case nil:
		return structpb.NewNullValue(), nil
	case *state.Primitive:
		return c.primitive(x, path)
	case *state.Composite:
		return c.composite(x, path)
	case *state.ExceptionState:
		v, err := c.composite(x.Instance, path)
		if err != nil {
			return nil, err
		}
		if st := v.GetStructValue(); st != nil {
			trace := make([]*structpb.Value, len(x.StackTrace))
			for i, frame := range x.StackTrace {
				trace[i] = structpb.NewStringValue(frame)
			}
			st.Fields[TraceKey] = structpb.NewListValue(&structpb.ListValue{Values: trace})
		}
		return v, nil
	case *state.Wrapped:
		return tagged(x.Class, HostKey, x.Inspect()), nil
	case *state.ReflectiveFunction:
		return tagged(nil, FunctionKey, x.Inspect()), nil
	case *state.ReflectiveType:
		return tagged(nil, TypeKey, x.Type.String()), nil
	}
	return nil, fmt.Errorf("%s: %w %T", path, ErrUnsupported, s)
}

func tagged(class *ir.Class, key, text string) *structpb.Value {
	fields := map[string]*structpb.Value{key: structpb.NewStringValue(text)}
	if class != nil {
		fields[ClassKey] = structpb.NewStringValue(class.FqName)
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields})
}

func (c *converter) primitive(p *state.Primitive, path string) (*structpb.Value, error) {
	switch v := p.Value.(type) {
	case nil:
		return structpb.NewNullValue(), nil
	case bool:
		return structpb.NewBoolValue(v), nil
	case state.Char:
		return structpb.NewStringValue(string(rune(v))), nil
	case int8:
		return structpb.NewNumberValue(float64(v)), nil
	case int16:
		return structpb.NewNumberValue(float64(v)), nil
	case int32:
		return structpb.NewNumberValue(float64(v)), nil
	case int64:
		if v >= -maxExact && v <= maxExact {
			return structpb.NewNumberValue(float64(v)), nil
		}
		return structpb.NewStringValue(strconv.FormatInt(v, 10)), nil
	case float32:
		return float(float64(v), 32), nil
	case float64:
		return float(v, 64), nil
	case string:
		return structpb.NewStringValue(v), nil
	case state.UnitValue:
		return structpb.NewStringValue(p.Inspect()), nil
	case *state.ArrayValue:
		if err := c.enter(v, path); err != nil {
			return nil, err
		}
		defer c.leave(v)
		list := &structpb.ListValue{Values: make([]*structpb.Value, len(v.Elements))}
		for i, e := range v.Elements {
			ev, err := c.value(e, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			list.Values[i] = ev
		}
		return structpb.NewListValue(list), nil
	}
	return nil, fmt.Errorf("%s: %w primitive %T", path, ErrUnsupported, p.Value)
}

func float(f float64, bits int) *structpb.Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return structpb.NewStringValue(state.FormatFloat(f, bits))
	}
	if bits == 32 {
		// shortest decimal that round-trips through float32
		f, _ = strconv.ParseFloat(strconv.FormatFloat(f, 'g', -1, 32), 64)
	}
	return structpb.NewNumberValue(f)
}

func (c *converter) composite(o *state.Composite, path string) (*structpb.Value, error) {
	if u, ok := o.UnsignedValue(); ok {
		if u <= maxExact {
			return structpb.NewNumberValue(float64(u)), nil
		}
		return structpb.NewStringValue(strconv.FormatUint(u, 10)), nil
	}
	if err := c.enter(o, path); err != nil {
		return nil, err
	}
	defer c.leave(o)

	fields := map[string]*structpb.Value{ClassKey: structpb.NewStringValue(o.Class.FqName)}
	for _, p := range o.Properties() {
		key := p.Name
		if _, taken := fields[key]; taken && p.Parent != nil {
			key = p.Parent.Name + "." + p.Name
		}
		s, _ := o.Field(p)
		v, err := c.value(s, path+"."+key)
		if err != nil {
			return nil, err
		}
		fields[key] = v
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
}

// Entry is the outcome of evaluating one named expression.
type Entry struct {
	Name  string
	Value state.State
	Err   error
}

// EntryValue exports one entry. A failed entry exports as
// {"@error": message}, plus the thrown object under "@exception" when the
// failure is an uncaught exception.
func EntryValue(e Entry) (*structpb.Value, error) {
	if e.Err == nil {
		return Value(e.Value)
	}
	fields := map[string]*structpb.Value{ErrorKey: structpb.NewStringValue(e.Err.Error())}
	var uncaught *interpreter.UncaughtException
	if errors.As(e.Err, &uncaught) {
		v, err := Value(uncaught.Exception)
		if err != nil {
			return nil, err
		}
		fields[ExceptionKey] = v
	}
	return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
}

// Document gathers entries into one struct keyed by name.
func Document(entries []Entry) (*structpb.Struct, error) {
	doc := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(entries))}
	for _, e := range entries {
		v, err := EntryValue(e)
		if err != nil {
			return nil, fmt.Errorf("exporting %s: %w", e.Name, err)
		}
		doc.Fields[e.Name] = v
	}
	return doc, nil
}

// Marshal renders entries as indented JSON.
func Marshal(entries []Entry) ([]byte, error) {
	doc, err := Document(entries)
	if err != nil {
		return nil, err
	}
	return Render(doc)
}

// Render renders a document as indented JSON.
func Render(doc *structpb.Struct) ([]byte, error) {
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(doc)
}

// MarshalValue renders one value as compact JSON.
func MarshalValue(s state.State) ([]byte, error) {
	v, err := Value(s)
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(v)
}

// MarshalEntry renders one entry as compact JSON.
func MarshalEntry(e Entry) ([]byte, error) {
	v, err := EntryValue(e)
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(v)
}

// UnmarshalValue parses JSON written by MarshalValue or MarshalEntry.
func UnmarshalValue(data []byte) (*structpb.Value, error) {
	v := &structpb.Value{}
	if err := protojson.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("decoding exported value: %w", err)
	}
	return v, nil
}

package builtins

import (
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/funvibe/consteval/internal/state"
)

func utf16Units(s string) []uint16 { return utf16.Encode([]rune(s)) }

func fromUnits(u []uint16) string { return string(utf16.Decode(u)) }

func str(s state.State) string      { return value(s).(string) }
func boolean(s state.State) bool    { return value(s).(bool) }
func char(s state.State) state.Char { return value(s).(state.Char) }

func (d *Dispatcher) registerOperators() {
	d.registerChar()
	d.registerBoolean()
	d.registerString()
	d.registerAny()
	d.registerIrBuiltins()
	d.registerRanges()
	d.registerArray()
}

func (d *Dispatcher) registerChar() {
	d.ops["plus(Char,Int)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Char(state.Char(uint16(int32(char(args[0])) + value(args[1]).(int32)))), nil
	}
	d.ops["minus(Char,Int)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Char(state.Char(uint16(int32(char(args[0])) - value(args[1]).(int32)))), nil
	}
	d.ops["minus(Char,Char)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Int(int32(char(args[0])) - int32(char(args[1]))), nil
	}
	d.ops["compareTo(Char,Char)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Int(compareNum(int32(char(args[0])), int32(char(args[1])))), nil
	}
	for _, op := range []string{"less", "lessOrEqual", "greater", "greaterOrEqual"} {
		d.ops[op+"(Char,Char)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
			return d.vals.Bool(compareIEEE(op, int32(char(args[0])), int32(char(args[1])))), nil
		}
	}
	d.ops["inc(Char)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Char(state.Char(uint16(char(args[0]) + 1))), nil
	}
	d.ops["dec(Char)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Char(state.Char(uint16(char(args[0]) - 1))), nil
	}
	d.ops["code(Char)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Int(int32(char(args[0]))), nil
	}
	for _, to := range numKinds {
		d.ops["to"+to.String()+"(Char)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
			return d.convert(char(args[0]), to), nil
		}
	}
	d.ops["toChar(Char)"] = func(d *Dispatcher, args []state.State) (state.State, error) { return args[0], nil }
	d.ops["isDigit(Char)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Bool(unicode.IsDigit(rune(char(args[0])))), nil
	}
	d.ops["isLetter(Char)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Bool(unicode.IsLetter(rune(char(args[0])))), nil
	}
	d.ops["isWhitespace(Char)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Bool(unicode.IsSpace(rune(char(args[0])))), nil
	}
	d.registerValueMembers("Char")
}

func (d *Dispatcher) registerBoolean() {
	d.ops["not(Boolean)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Bool(!boolean(args[0])), nil
	}
	d.ops["and(Boolean,Boolean)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Bool(boolean(args[0]) && boolean(args[1])), nil
	}
	d.ops["or(Boolean,Boolean)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Bool(boolean(args[0]) || boolean(args[1])), nil
	}
	d.ops["xor(Boolean,Boolean)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Bool(boolean(args[0]) != boolean(args[1])), nil
	}
	d.ops["compareTo(Boolean,Boolean)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		a, b := boolean(args[0]), boolean(args[1])
		switch {
		case a == b:
			return d.vals.Int(0), nil
		case a:
			return d.vals.Int(1), nil
		}
		return d.vals.Int(-1), nil
	}
	d.registerValueMembers("Boolean")
}

// registerValueMembers adds equals, hashCode and toString for a primitive class.
func (d *Dispatcher) registerValueMembers(class string) {
	d.ops["equals("+class+",Any?)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		eq, err := d.Equals(args[0], args[1])
		return d.vals.Bool(eq), err
	}
	d.ops["hashCode("+class+")"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Int(primitiveHash(value(args[0]))), nil
	}
	d.ops["toString("+class+")"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.String(args[0].Inspect()), nil
	}
}

func (d *Dispatcher) registerString() {
	concat := func(d *Dispatcher, args []state.State) (state.State, error) {
		left, err := d.Render(args[0])
		if err != nil {
			return nil, err
		}
		right, err := d.Render(args[1])
		if err != nil {
			return nil, err
		}
		return d.vals.String(left + right), nil
	}
	d.ops["plus(String,Any?)"] = concat
	d.ops["plus(String?,Any?)"] = concat

	d.ops["length(String)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Int(int32(len(utf16Units(str(args[0]))))), nil
	}
	d.ops["get(String,Int)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		units := utf16Units(str(args[0]))
		i := value(args[1]).(int32)
		if i < 0 || int(i) >= len(units) {
			return nil, newHostError(IndexOutOfBoundsException, "index: %d, length: %d", i, len(units))
		}
		return d.vals.Char(state.Char(units[i])), nil
	}
	d.ops["compareTo(String,String)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Int(compareUnits(utf16Units(str(args[0])), utf16Units(str(args[1])))), nil
	}
	d.ops["substring(String,Int)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		units := utf16Units(str(args[0]))
		return d.substring(units, value(args[1]).(int32), int32(len(units)))
	}
	d.ops["substring(String,Int,Int)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.substring(utf16Units(str(args[0])), value(args[1]).(int32), value(args[2]).(int32))
	}
	d.ops["isEmpty(String)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Bool(str(args[0]) == ""), nil
	}
	d.ops["trim(String)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.String(strings.TrimFunc(str(args[0]), func(r rune) bool { return r <= ' ' })), nil
	}
	d.ops["startsWith(String,String)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Bool(strings.HasPrefix(str(args[0]), str(args[1]))), nil
	}
	d.ops["endsWith(String,String)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Bool(strings.HasSuffix(str(args[0]), str(args[1]))), nil
	}
	d.ops["contains(String,String)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Bool(strings.Contains(str(args[0]), str(args[1]))), nil
	}
	d.ops["indexOf(String,String)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		s := str(args[0])
		i := strings.Index(s, str(args[1]))
		if i < 0 {
			return d.vals.Int(-1), nil
		}
		return d.vals.Int(int32(len(utf16Units(s[:i])))), nil
	}
	d.ops["uppercase(String)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.String(strings.ToUpper(str(args[0]))), nil
	}
	d.ops["lowercase(String)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.String(strings.ToLower(str(args[0]))), nil
	}
	d.ops["repeat(String,Int)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.repeat(str(args[0]), value(args[1]).(int32))
	}
	d.registerValueMembers("String")
}

func (d *Dispatcher) substring(units []uint16, from, to int32) (state.State, error) {
	if from < 0 || to > int32(len(units)) || from > to {
		return nil, newHostError(IndexOutOfBoundsException, "begin %d, end %d, length %d", from, to, len(units))
	}
	return d.vals.String(fromUnits(units[from:to])), nil
}

func (d *Dispatcher) repeat(s string, n int32) (state.State, error) {
	if n < 0 {
		return nil, newHostError(IllegalArgumentException, "Count 'n' must be non-negative, but was %d.", n)
	}
	return d.vals.String(strings.Repeat(s, int(n))), nil
}

func compareUnits(a, b []uint16) int32 {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return int32(a[i]) - int32(b[i])
		}
	}
	return int32(len(a) - len(b))
}

// registerAny covers members of Any on interpreted objects that do not
// override them. They use identity semantics.
func (d *Dispatcher) registerAny() {
	d.ops["toString(Any)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		if c, ok := args[0].(*state.Composite); ok && d.b.IsThrowable(c.Class) {
			return d.vals.String(state.NewException(c, nil).Inspect()), nil
		}
		return d.vals.String(args[0].Inspect()), nil
	}
	d.ops["equals(Any,Any?)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Bool(Identical(args[0], args[1])), nil
	}
	d.ops["hashCode(Any)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		if c, ok := args[0].(*state.Composite); ok {
			return d.vals.Int(int32(c.ID)), nil
		}
		if e, ok := args[0].(*state.ExceptionState); ok {
			return d.vals.Int(int32(e.Instance.ID)), nil
		}
		h, err := d.HashCode(args[0])
		return d.vals.Int(h), err
	}
	d.ops["compareTo(Enum,Enum)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		a, _ := args[0].(*state.Composite).FieldByName("ordinal")
		b, _ := args[1].(*state.Composite).FieldByName("ordinal")
		return d.vals.Int(compareNum(value(a), value(b))), nil
	}
	d.ops["equals(Enum,Any?)"] = d.ops["equals(Any,Any?)"]
	d.ops["toString(Enum)"] = d.ops["toString(Any)"]
}

func (d *Dispatcher) registerIrBuiltins() {
	d.ops["EQEQ(Any?,Any?)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		eq, err := d.Equals(args[0], args[1])
		return d.vals.Bool(eq), err
	}
	d.ops["EQEQEQ(Any?,Any?)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Bool(Identical(args[0], args[1])), nil
	}
	ieee := func(d *Dispatcher, args []state.State) (state.State, error) {
		if state.IsNull(args[0]) || state.IsNull(args[1]) {
			return d.vals.Bool(state.IsNull(args[0]) && state.IsNull(args[1])), nil
		}
		return d.vals.Bool(toF64(value(args[0])) == toF64(value(args[1]))), nil
	}
	d.ops["ieee754equals(Float?,Float?)"] = ieee
	d.ops["ieee754equals(Double?,Double?)"] = ieee
	d.ops["CHECK_NOT_NULL(Any?)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		if state.IsNull(args[0]) {
			return nil, &HostError{Class: NullPointerException}
		}
		return args[0], nil
	}
	d.ops["noWhenBranchMatchedException()"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return nil, &HostError{Class: NoWhenBranchMatchedException}
	}
	d.ops["illegalArgumentException(String)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return nil, newHostError(IllegalArgumentException, "%s", str(args[0]))
	}
	d.ops["THROW_CCE()"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return nil, &HostError{Class: ClassCastException}
	}
	d.ops["THROW_NPE()"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return nil, &HostError{Class: NullPointerException}
	}
}

func (d *Dispatcher) registerRanges() {
	progression := func(build func(a, b int32) *IntProgression) opFunc {
		return func(d *Dispatcher, args []state.State) (state.State, error) {
			p := build(value(args[0]).(int32), value(args[1]).(int32))
			return &state.Wrapped{Value: p, Class: d.b.IntRange}, nil
		}
	}
	d.ops["rangeTo(Int,Int)"] = progression(func(a, b int32) *IntProgression {
		return &IntProgression{First: a, Last: b, Step: 1}
	})
	d.ops["until(Int,Int)"] = progression(func(a, b int32) *IntProgression {
		if b == -1<<31 {
			return &IntProgression{First: 1, Last: 0, Step: 1}
		}
		return &IntProgression{First: a, Last: b - 1, Step: 1}
	})
	d.ops["downTo(Int,Int)"] = progression(func(a, b int32) *IntProgression {
		return &IntProgression{First: a, Last: b, Step: -1}
	})
}

func (d *Dispatcher) registerArray() {
	index := func(args []state.State) (*state.ArrayValue, int32, error) {
		arr := value(args[0]).(*state.ArrayValue)
		i := value(args[1]).(int32)
		if i < 0 || int(i) >= len(arr.Elements) {
			return nil, 0, newHostError(ArrayIndexOutOfBoundsException,
				"Index %d out of bounds for length %d", i, len(arr.Elements))
		}
		return arr, i, nil
	}
	d.ops["get(Array,Int)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		arr, i, err := index(args)
		if err != nil {
			return nil, err
		}
		return arr.Elements[i], nil
	}
	d.ops["set(Array,Int,Any?)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		arr, i, err := index(args)
		if err != nil {
			return nil, err
		}
		arr.Elements[i] = args[2]
		return d.vals.Unit(), nil
	}
	d.ops["size(Array)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Int(int32(len(value(args[0]).(*state.ArrayValue).Elements))), nil
	}
	d.ops["toString(Array)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.String(args[0].Inspect()), nil
	}
	d.ops["equals(Array,Any?)"] = d.ops["EQEQEQ(Any?,Any?)"]
}

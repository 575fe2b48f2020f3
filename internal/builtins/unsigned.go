package builtins

import (
	"strconv"

	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/state"
)

func (d *Dispatcher) unsignedClasses() []*ir.Class {
	return []*ir.Class{d.b.UByte, d.b.UShort, d.b.UInt, d.b.ULong}
}

func (d *Dispatcher) unsignedWidth(c *ir.Class) uint {
	switch c {
	case d.b.UByte:
		return 8
	case d.b.UShort:
		return 16
	case d.b.UInt:
		return 32
	}
	return 64
}

func uvalue(s state.State) uint64 {
	c, ok := s.(*state.Composite)
	if !ok {
		panic(newHostError(ClassCastException, "%s is not an unsigned value", s.Inspect()))
	}
	v, ok := c.UnsignedValue()
	if !ok {
		panic(newHostError(ClassCastException, "%s is not an unsigned value", c.Class.FqName))
	}
	return v
}

// NewUnsigned builds an instance of the unsigned class c holding v
// truncated to the class width.
func (d *Dispatcher) NewUnsigned(c *ir.Class, v uint64) state.State {
	var obj *state.Composite
	if d.proxy != nil {
		obj = d.proxy.NewObject(c)
	} else {
		obj = state.NewComposite(c, 0)
	}
	var data state.State
	switch d.unsignedWidth(c) {
	case 8:
		data = d.vals.Byte(int8(uint8(v)))
	case 16:
		data = d.vals.Short(int16(uint16(v)))
	case 32:
		data = d.vals.Int(int32(uint32(v)))
	default:
		data = d.vals.Long(int64(v))
	}
	obj.SetField(c.Property("data"), data)
	return obj
}

func compareUnsigned(a, b uint64) int32 {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (d *Dispatcher) registerUnsigned() {
	classes := d.unsignedClasses()
	for _, a := range classes {
		for _, b := range classes {
			sig := "(" + a.Name + "," + b.Name + ")"
			rc := a
			if d.unsignedWidth(b) > d.unsignedWidth(rc) {
				rc = b
			}
			if d.unsignedWidth(rc) < 32 {
				rc = d.b.UInt
			}
			for _, op := range []string{"plus", "minus", "times", "div", "rem"} {
				d.ops[op+sig] = func(d *Dispatcher, args []state.State) (state.State, error) {
					x, y := uvalue(args[0]), uvalue(args[1])
					var r uint64
					switch op {
					case "plus":
						r = x + y
					case "minus":
						r = x - y
					case "times":
						r = x * y
					default:
						if y == 0 {
							return nil, errDivByZero
						}
						if op == "div" {
							r = x / y
						} else {
							r = x % y
						}
					}
					return d.NewUnsigned(rc, r), nil
				}
			}
			d.ops["compareTo"+sig] = func(d *Dispatcher, args []state.State) (state.State, error) {
				return d.vals.Int(compareUnsigned(uvalue(args[0]), uvalue(args[1]))), nil
			}
		}
		d.registerUnsignedMembers(a)
	}
	for _, k := range []numKind{kByte, kShort, kInt, kLong} {
		for _, to := range classes {
			d.ops["to"+to.Name+"("+k.String()+")"] = func(d *Dispatcher, args []state.State) (state.State, error) {
				return d.NewUnsigned(to, uint64(toI64(value(args[0])))), nil
			}
		}
	}
}

func (d *Dispatcher) registerUnsignedMembers(c *ir.Class) {
	self := "(" + c.Name + ")"
	width := d.unsignedWidth(c)
	d.ops["toString"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.String(strconv.FormatUint(uvalue(args[0]), 10)), nil
	}
	d.ops["hashCode"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		v := uvalue(args[0])
		if width == 64 {
			return d.vals.Int(int32(v ^ v>>32)), nil
		}
		return d.vals.Int(int32(v)), nil
	}
	d.ops["equals("+c.Name+",Any?)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		eq, err := d.Equals(args[0], args[1])
		return d.vals.Bool(eq), err
	}
	d.ops["inc"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.NewUnsigned(c, uvalue(args[0])+1), nil
	}
	d.ops["dec"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.NewUnsigned(c, uvalue(args[0])-1), nil
	}
	d.ops["inv"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.NewUnsigned(c, ^uvalue(args[0])), nil
	}
	pair := "(" + c.Name + "," + c.Name + ")"
	d.ops["and"+pair] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.NewUnsigned(c, uvalue(args[0])&uvalue(args[1])), nil
	}
	d.ops["or"+pair] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.NewUnsigned(c, uvalue(args[0])|uvalue(args[1])), nil
	}
	d.ops["xor"+pair] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.NewUnsigned(c, uvalue(args[0])^uvalue(args[1])), nil
	}
	if width >= 32 {
		mask := uint64(width - 1)
		d.ops["shl("+c.Name+",Int)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
			return d.NewUnsigned(c, uvalue(args[0])<<(uint64(toI64(value(args[1])))&mask)), nil
		}
		d.ops["shr("+c.Name+",Int)"] = func(d *Dispatcher, args []state.State) (state.State, error) {
			return d.NewUnsigned(c, uvalue(args[0])>>(uint64(toI64(value(args[1])))&mask)), nil
		}
	}
	for _, to := range d.unsignedClasses() {
		d.ops["to"+to.Name+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
			return d.NewUnsigned(to, uvalue(args[0])), nil
		}
	}
	d.ops["toByte"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Byte(int8(uvalue(args[0]))), nil
	}
	d.ops["toShort"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Short(int16(uvalue(args[0]))), nil
	}
	d.ops["toInt"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Int(int32(uvalue(args[0]))), nil
	}
	d.ops["toLong"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Long(int64(uvalue(args[0]))), nil
	}
	d.ops["toDouble"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Double(float64(uvalue(args[0]))), nil
	}
	d.ops["toFloat"+self] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Float(float32(float64(uvalue(args[0])))), nil
	}
}

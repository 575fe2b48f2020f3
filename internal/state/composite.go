package state

import (
	"fmt"
	"strconv"

	"github.com/funvibe/consteval/internal/ir"
)

// Composite is an interpreted object. Fields is the only mutation surface
// of the state model.
type Composite struct {
	Class *ir.Class
	// SuperDelegate is the host instance backing an external superclass.
	SuperDelegate *Wrapped
	// ID is a per-environment identity, used by the default toString and hashCode.
	ID     uint64
	fields map[*ir.Property]State
	order  []*ir.Property
}

func NewComposite(c *ir.Class, id uint64) *Composite {
	return &Composite{Class: c, ID: id, fields: make(map[*ir.Property]State)}
}

func (c *Composite) Kind() StateKind      { return COMPOSITE_STATE }
func (c *Composite) RuntimeType() ir.Type { return c.Class.DefaultType() }

func (c *Composite) Inspect() string {
	if v, ok := c.UnsignedValue(); ok {
		return strconv.FormatUint(v, 10)
	}
	if c.Class.IsEnum() || (len(c.Class.Supertypes) > 0 && c.Class.Supertypes[0].IsEnum()) {
		if name, ok := c.FieldByName("name"); ok {
			return name.Inspect()
		}
	}
	return fmt.Sprintf("%s@%x", c.Class.Name, c.ID)
}

func (c *Composite) Field(p *ir.Property) (State, bool) {
	s, ok := c.fields[p]
	return s, ok
}

func (c *Composite) SetField(p *ir.Property, s State) {
	if _, ok := c.fields[p]; !ok {
		c.order = append(c.order, p)
	}
	c.fields[p] = s
}

// FieldByName finds a field by property name, in assignment order.
func (c *Composite) FieldByName(name string) (State, bool) {
	for _, p := range c.order {
		if p.Name == name {
			return c.fields[p], true
		}
	}
	return nil, false
}

// Properties lists the assigned properties in assignment order.
func (c *Composite) Properties() []*ir.Property {
	out := make([]*ir.Property, len(c.order))
	copy(out, c.order)
	return out
}

var unsignedWidths = map[string]uint{
	"kotlin.UByte":  8,
	"kotlin.UShort": 16,
	"kotlin.UInt":   32,
	"kotlin.ULong":  64,
}

// UnsignedValue returns the numeric value of an unsigned wrapper
// (UByte, UShort, UInt, ULong).
func (c *Composite) UnsignedValue() (uint64, bool) {
	width, ok := unsignedWidths[c.Class.FqName]
	if !ok {
		return 0, false
	}
	data, ok := c.FieldByName("data")
	if !ok {
		return 0, false
	}
	p, ok := data.(*Primitive)
	if !ok {
		return 0, false
	}
	var v uint64
	switch x := p.Value.(type) {
	case int8:
		v = uint64(uint8(x))
	case int16:
		v = uint64(uint16(x))
	case int32:
		v = uint64(uint32(x))
	case int64:
		v = uint64(x)
	default:
		return 0, false
	}
	if width < 64 {
		v &= 1<<width - 1
	}
	return v, true
}

// Wrapped is an opaque host value. It re-enters the host only through the
// builtin dispatcher.
type Wrapped struct {
	Value any
	Class *ir.Class
}

func (w *Wrapped) Kind() StateKind      { return WRAPPED_STATE }
func (w *Wrapped) RuntimeType() ir.Type { return w.Class.DefaultType() }

func (w *Wrapped) Inspect() string {
	if s, ok := w.Value.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", w.Value)
}

package builtins

import (
	"fmt"
	"strings"

	"github.com/funvibe/consteval/internal/ir"
	"github.com/funvibe/consteval/internal/state"
)

// IntProgression backs IntRange instances. Ranges built with rangeTo or
// until have Step 1; downTo yields Step -1.
type IntProgression struct {
	First, Last, Step int32
}

func (p *IntProgression) IsEmpty() bool {
	if p.Step > 0 {
		return p.First > p.Last
	}
	return p.First < p.Last
}

func (p *IntProgression) Contains(v int32) bool {
	if p.Step > 0 {
		return p.First <= v && v <= p.Last
	}
	return p.Last <= v && v <= p.First
}

func (p *IntProgression) String() string {
	if p.Step == 1 {
		return fmt.Sprintf("%d..%d", p.First, p.Last)
	}
	if p.Step > 0 {
		return fmt.Sprintf("%d..%d step %d", p.First, p.Last, p.Step)
	}
	return fmt.Sprintf("%d downTo %d step %d", p.First, p.Last, -p.Step)
}

// IntIterator walks an IntProgression.
type IntIterator struct {
	next, last, step int32
	hasNext          bool
}

func (p *IntProgression) Iterator() *IntIterator {
	return &IntIterator{next: p.First, last: p.Last, step: p.Step, hasNext: !p.IsEmpty()}
}

func (it *IntIterator) Next() (int32, error) {
	if !it.hasNext {
		return 0, &HostError{Class: NoSuchElementException}
	}
	v := it.next
	if v == it.last {
		it.hasNext = false
	} else {
		it.next += it.step
	}
	return v, nil
}

func (it *IntIterator) String() string { return "IntIterator" }

func (d *Dispatcher) registerHost() {
	rng := d.b.IntRange.FqName
	iter := d.b.IntIterator.FqName
	sb := d.b.StringBuilder.FqName

	d.hostCtors[rng] = func(d *Dispatcher, args []state.State) (any, error) {
		return &IntProgression{First: value(args[0]).(int32), Last: value(args[1]).(int32), Step: 1}, nil
	}
	d.hostMethods[rng+".iterator"] = func(d *Dispatcher, recv *state.Wrapped, args []state.State) (state.State, error) {
		return &state.Wrapped{Value: recv.Value.(*IntProgression).Iterator(), Class: d.b.IntIterator}, nil
	}
	d.hostMethods[rng+".contains"] = func(d *Dispatcher, recv *state.Wrapped, args []state.State) (state.State, error) {
		return d.vals.Bool(recv.Value.(*IntProgression).Contains(value(args[0]).(int32))), nil
	}
	d.hostMethods[rng+".isEmpty"] = func(d *Dispatcher, recv *state.Wrapped, args []state.State) (state.State, error) {
		return d.vals.Bool(recv.Value.(*IntProgression).IsEmpty()), nil
	}
	d.hostMethods[rng+".toString"] = func(d *Dispatcher, recv *state.Wrapped, args []state.State) (state.State, error) {
		return d.vals.String(recv.Inspect()), nil
	}
	d.hostMethods[rng+".first"] = func(d *Dispatcher, recv *state.Wrapped, args []state.State) (state.State, error) {
		return d.vals.Int(recv.Value.(*IntProgression).First), nil
	}
	d.hostMethods[rng+".last"] = func(d *Dispatcher, recv *state.Wrapped, args []state.State) (state.State, error) {
		return d.vals.Int(recv.Value.(*IntProgression).Last), nil
	}
	d.hostMethods[rng+".step"] = func(d *Dispatcher, recv *state.Wrapped, args []state.State) (state.State, error) {
		return d.vals.Int(recv.Value.(*IntProgression).Step), nil
	}

	d.hostMethods[iter+".hasNext"] = func(d *Dispatcher, recv *state.Wrapped, args []state.State) (state.State, error) {
		return d.vals.Bool(recv.Value.(*IntIterator).hasNext), nil
	}
	next := func(d *Dispatcher, recv *state.Wrapped, args []state.State) (state.State, error) {
		v, err := recv.Value.(*IntIterator).Next()
		if err != nil {
			return nil, err
		}
		return d.vals.Int(v), nil
	}
	d.hostMethods[iter+".next"] = next
	d.hostMethods[iter+".nextInt"] = next

	d.hostCtors[sb] = func(d *Dispatcher, args []state.State) (any, error) {
		return &strings.Builder{}, nil
	}
	d.hostMethods[sb+".append"] = func(d *Dispatcher, recv *state.Wrapped, args []state.State) (state.State, error) {
		s, err := d.Render(args[0])
		if err != nil {
			return nil, err
		}
		recv.Value.(*strings.Builder).WriteString(s)
		return recv, nil
	}
	d.hostMethods[sb+".toString"] = func(d *Dispatcher, recv *state.Wrapped, args []state.State) (state.State, error) {
		return d.vals.String(recv.Value.(*strings.Builder).String()), nil
	}
	d.hostMethods[sb+".length"] = func(d *Dispatcher, recv *state.Wrapped, args []state.State) (state.State, error) {
		return d.vals.Int(int32(len(utf16Units(recv.Value.(*strings.Builder).String())))), nil
	}

	d.registerHostRoutines()
}

func (d *Dispatcher) registerHostRoutines() {
	d.hostRoutines["kotlin.math.abs"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		n := value(args[0]).(int32)
		if n < 0 {
			n = -n
		}
		return d.vals.Int(n), nil
	}
	d.hostRoutines["kotlin.math.max"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Int(max(value(args[0]).(int32), value(args[1]).(int32))), nil
	}
	d.hostRoutines["kotlin.math.min"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.Int(min(value(args[0]).(int32), value(args[1]).(int32))), nil
	}
	d.hostRoutines["kotlin.text.uppercase"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.String(strings.ToUpper(str(args[0]))), nil
	}
	d.hostRoutines["kotlin.text.lowercase"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.vals.String(strings.ToLower(str(args[0]))), nil
	}
	d.hostRoutines["kotlin.text.repeat"] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return d.repeat(str(args[0]), value(args[1]).(int32))
	}
}

// HostRoutines lists the fully qualified names of the host routines.
func (d *Dispatcher) HostRoutines() []string {
	out := make([]string, 0, len(d.hostRoutines))
	for name := range d.hostRoutines {
		out = append(out, name)
	}
	return out
}

// IsHostClass reports whether instances of c are created by the host.
func (d *Dispatcher) IsHostClass(c *ir.Class) bool {
	_, ok := d.hostCtors[c.FqName]
	return ok
}

// HostFunc is a host routine supplied by the embedding program.
type HostFunc func(args []state.State) (state.State, error)

// RegisterHostRoutine adds or replaces the host routine fqName.
func (d *Dispatcher) RegisterHostRoutine(fqName string, fn HostFunc) {
	d.hostRoutines[fqName] = func(d *Dispatcher, args []state.State) (state.State, error) {
		return fn(args)
	}
}

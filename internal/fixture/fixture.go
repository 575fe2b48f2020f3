// Package fixture decodes YAML descriptions of IR programs.
//
// A fixture declares classes and functions and names the expressions to
// evaluate:
//
//	file: Points.kt
//	package: geo
//	classes:
//	  - name: Point
//	    properties:
//	      - {name: x, type: Int, init: {get: x}}
//	    constructors:
//	      - params: [{name: x, type: Int}]
//	functions:
//	  - name: twice
//	    params: [{name: n, type: Int}]
//	    returns: Int
//	    body: {call: times, receiver: {get: n}, args: [{int: 2}]}
//	expressions:
//	  - name: origin
//	    expr: {new: Point, args: [{int: 0}]}
//
// Offsets of the decoded nodes point into the YAML text, so stack traces
// name the line of the fixture that raised.
package fixture

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/funvibe/consteval/internal/ir"
)

var (
	// ErrUnknownForm is returned for a mapping with no expression form key.
	ErrUnknownForm = errors.New("unknown expression form")
	// ErrUnresolved is returned for names that resolve to nothing.
	ErrUnresolved = errors.New("unresolved reference")
	// ErrInvalid is returned for well-formed YAML that describes bad IR.
	ErrInvalid = errors.New("invalid fixture")
)

// Error locates a decode failure in the fixture.
type Error struct {
	Path   string
	Line   int
	Err    error
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s:%d: %v: %s", e.Path, e.Line, e.Err, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// Program is a decoded fixture.
type Program struct {
	File        *ir.File
	Package     string
	Classes     []*ir.Class
	Functions   []*ir.Function
	Expressions []*Expression
}

// Expression is a named top-level expression of a fixture.
type Expression struct {
	Name string
	Expr ir.Expression
	Line int
}

// Lookup returns the expression called name, or nil.
func (p *Program) Lookup(name string) *Expression {
	for _, e := range p.Expressions {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// Names lists the expressions in declaration order.
func (p *Program) Names() []string {
	names := make([]string, len(p.Expressions))
	for i, e := range p.Expressions {
		names[i] = e.Name
	}
	return names
}

// Load reads and decodes a fixture file.
func Load(path string, b *ir.BuiltIns) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture %s: %w", path, err)
	}
	return Decode(data, filepath.Base(path), b)
}

// Decode builds the IR described by data. User classes are registered
// with b. The path argument is used for error messages and as the file
// name when the fixture does not set one.
func Decode(data []byte, path string, b *ir.BuiltIns) (*Program, error) {
	var raw programYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	name := raw.File
	if name == "" {
		name = path
	}
	d := newDecoder(b, ir.NewFile(name, string(data)), path, raw.Package)
	return d.program(&raw)
}

type programYAML struct {
	File        string           `yaml:"file"`
	Package     string           `yaml:"package"`
	Classes     []classYAML      `yaml:"classes"`
	Properties  []propertyYAML   `yaml:"properties"`
	Functions   []functionYAML   `yaml:"functions"`
	Expressions []expressionYAML `yaml:"expressions"`
}

type classYAML struct {
	Name         string            `yaml:"name"`
	Kind         string            `yaml:"kind"`
	Supertypes   []string          `yaml:"supertypes"`
	Properties   []propertyYAML    `yaml:"properties"`
	Constructors []constructorYAML `yaml:"constructors"`
	Functions    []functionYAML    `yaml:"functions"`
	Init         *yaml.Node        `yaml:"-"`
	Entries      []entryYAML       `yaml:"entries"`

	node *yaml.Node
}

func (c *classYAML) UnmarshalYAML(value *yaml.Node) error {
	type plain classYAML
	if err := value.Decode((*plain)(c)); err != nil {
		return err
	}
	pick(value, map[string]**yaml.Node{"init": &c.Init})
	c.node = value
	return nil
}

type propertyYAML struct {
	Name    string     `yaml:"name"`
	Type    string     `yaml:"type"`
	Init    *yaml.Node `yaml:"-"`
	Mutable bool       `yaml:"mutable"`

	node *yaml.Node
}

func (p *propertyYAML) UnmarshalYAML(value *yaml.Node) error {
	type plain propertyYAML
	if err := value.Decode((*plain)(p)); err != nil {
		return err
	}
	pick(value, map[string]**yaml.Node{"init": &p.Init})
	p.node = value
	return nil
}

type paramYAML struct {
	Name    string     `yaml:"name"`
	Type    string     `yaml:"type"`
	Default *yaml.Node `yaml:"-"`
	Vararg  bool       `yaml:"vararg"`

	node *yaml.Node
}

func (p *paramYAML) UnmarshalYAML(value *yaml.Node) error {
	type plain paramYAML
	if err := value.Decode((*plain)(p)); err != nil {
		return err
	}
	pick(value, map[string]**yaml.Node{"default": &p.Default})
	p.node = value
	return nil
}

type constructorYAML struct {
	Params  []paramYAML `yaml:"params"`
	Primary bool        `yaml:"primary"`
	// Super and This hold the arguments of the delegating call; at most
	// one may be set. Without either the constructor calls super().
	Super *yaml.Node `yaml:"-"`
	This  *yaml.Node `yaml:"-"`
	Body  *yaml.Node `yaml:"-"`

	node *yaml.Node
}

func (c *constructorYAML) UnmarshalYAML(value *yaml.Node) error {
	type plain constructorYAML
	if err := value.Decode((*plain)(c)); err != nil {
		return err
	}
	pick(value, map[string]**yaml.Node{"super": &c.Super, "this": &c.This, "body": &c.Body})
	c.node = value
	return nil
}

type functionYAML struct {
	Name       string      `yaml:"name"`
	TypeParams []string    `yaml:"type_params"`
	Params     []paramYAML `yaml:"params"`
	Returns    string      `yaml:"returns"`
	Body       *yaml.Node  `yaml:"-"`
	// Host functions are supplied by the interpreter's host table.
	Host     bool `yaml:"host"`
	Abstract bool `yaml:"abstract"`

	node *yaml.Node
}

func (f *functionYAML) UnmarshalYAML(value *yaml.Node) error {
	type plain functionYAML
	if err := value.Decode((*plain)(f)); err != nil {
		return err
	}
	pick(value, map[string]**yaml.Node{"body": &f.Body})
	f.node = value
	return nil
}

// entryYAML is an enum entry: a bare name or {name, args}.
type entryYAML struct {
	Name string
	Args *yaml.Node

	node *yaml.Node
}

func (e *entryYAML) UnmarshalYAML(value *yaml.Node) error {
	e.node = value
	switch value.Kind {
	case yaml.ScalarNode:
		e.Name = value.Value
		return nil
	case yaml.MappingNode:
		var raw struct {
			Name string `yaml:"name"`
		}
		if err := value.Decode(&raw); err != nil {
			return err
		}
		e.Name = raw.Name
		pick(value, map[string]**yaml.Node{"args": &e.Args})
		return nil
	case yaml.AliasNode:
		return e.UnmarshalYAML(value.Alias)
	default:
		return fmt.Errorf("line %d: enum entry must be a name or a mapping, found %s", value.Line, value.ShortTag())
	}
}

type expressionYAML struct {
	Name string     `yaml:"name"`
	Expr *yaml.Node `yaml:"-"`

	node *yaml.Node
}

func (e *expressionYAML) UnmarshalYAML(value *yaml.Node) error {
	type plain expressionYAML
	if err := value.Decode((*plain)(e)); err != nil {
		return err
	}
	pick(value, map[string]**yaml.Node{"expr": &e.Expr})
	e.node = value
	return nil
}

// pick points the given fields at the values of their keys in a mapping
// node. Node-valued fields are tagged "-" and filled here; decoding into a
// *yaml.Node field would decode the YAML into the Node struct itself.
// Missing keys and explicit nulls leave a field nil.
func pick(value *yaml.Node, fields map[string]**yaml.Node) {
	if value.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		f, ok := fields[value.Content[i].Value]
		if !ok {
			continue
		}
		v := value.Content[i+1]
		if v.Kind == yaml.AliasNode {
			v = v.Alias
		}
		if v.Kind == yaml.ScalarNode && v.ShortTag() == "!!null" {
			continue
		}
		*f = v
	}
}

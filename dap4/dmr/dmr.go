// Package dmr describes the schema of a DAP4 dataset: groups, shared
// dimensions, atomic and compound variables, and their attributes.
//
// A schema is assembled with the New* constructors and the Add* methods,
// then sealed with Dataset.Finish, which links every node to its parent
// and validates the tree. Nodes are read-only once a dataset is in use.
package dmr

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrInvalid is returned by Finish when the schema tree is malformed.
var ErrInvalid = errors.New("invalid schema")

// Node is implemented by every schema element.
type Node interface {
	Name() string
	Sort() Sort
	FQN() string
}

// Dimension is a named (shared) or anonymous array extent.
type Dimension struct {
	name  string
	size  int64
	group *Group
}

// Anon returns an anonymous dimension of the given size.
func Anon(size int64) *Dimension {
	return &Dimension{size: size}
}

func (d *Dimension) Name() string { return d.name }
func (d *Dimension) Sort() Sort   { return SortDimension }
func (d *Dimension) Size() int64  { return d.size }

// Shared reports whether the dimension is declared by a group.
func (d *Dimension) Shared() bool { return d.name != "" }

// FQN returns the dimension's fully qualified name, or "" if anonymous.
func (d *Dimension) FQN() string {
	if !d.Shared() || d.group == nil {
		return d.name
	}
	return joinGroup(d.group.FQN(), d.name)
}

// Group is a namespace of dimensions, variables and subgroups.
type Group struct {
	name   string
	sort   Sort
	dims   []*Dimension
	vars   []*Variable
	groups []*Group
	attrs  []Attribute
	parent *Group
}

func (g *Group) Name() string { return g.name }
func (g *Group) Sort() Sort   { return g.sort }

// FQN returns the group's path; the root is "/".
func (g *Group) FQN() string {
	if g.parent == nil {
		return "/"
	}
	return joinGroup(g.parent.FQN(), g.name)
}

// Parent returns the enclosing group, or nil for the root.
func (g *Group) Parent() *Group { return g.parent }

func (g *Group) Dimensions() []*Dimension { return g.dims }
func (g *Group) Variables() []*Variable   { return g.vars }
func (g *Group) Groups() []*Group         { return g.groups }
func (g *Group) Attributes() []Attribute  { return g.attrs }

// AddDimension declares a shared dimension in g and returns it.
func (g *Group) AddDimension(name string, size int64) *Dimension {
	d := &Dimension{name: name, size: size, group: g}
	g.dims = append(g.dims, d)
	return d
}

// AddVariable appends v to g and returns it.
func (g *Group) AddVariable(v *Variable) *Variable {
	v.group = g
	v.container = nil
	g.vars = append(g.vars, v)
	return v
}

// AddGroup creates a subgroup of g.
func (g *Group) AddGroup(name string) *Group {
	sub := &Group{name: name, sort: SortGroup, parent: g}
	g.groups = append(g.groups, sub)
	return sub
}

// AddAttribute attaches an attribute to g.
func (g *Group) AddAttribute(name string, t AtomicType, values ...string) *Group {
	g.attrs = append(g.attrs, Attribute{Name: name, Type: t, Values: values})
	return g
}

// Dimension returns the dimension declared in g with the given name.
func (g *Group) Dimension(name string) *Dimension {
	for _, d := range g.dims {
		if d.name == name {
			return d
		}
	}
	return nil
}

// Variable returns the variable of g with the given name.
func (g *Group) Variable(name string) *Variable {
	for _, v := range g.vars {
		if v.name == name {
			return v
		}
	}
	return nil
}

// Subgroup returns the subgroup of g with the given name.
func (g *Group) Subgroup(name string) *Group {
	for _, sub := range g.groups {
		if sub.name == name {
			return sub
		}
	}
	return nil
}

// ResolveDimension looks a dimension up in g and then in each enclosing
// group.
func (g *Group) ResolveDimension(name string) *Dimension {
	for cur := g; cur != nil; cur = cur.parent {
		if d := cur.Dimension(name); d != nil {
			return d
		}
	}
	return nil
}

// Variable is an atomic, structure or sequence variable. Variables with
// a Structure or Sequence sort hold their members in Fields.
type Variable struct {
	name      string
	sort      Sort
	typ       AtomicType
	dims      []*Dimension
	fields    []*Variable
	attrs     []Attribute
	group     *Group
	container *Variable
}

// NewAtomic returns an atomic variable of type t.
func NewAtomic(name string, t AtomicType, dims ...*Dimension) *Variable {
	return &Variable{name: name, sort: SortAtomic, typ: t, dims: dims}
}

// NewStructure returns a structure variable with the given fields.
func NewStructure(name string, fields []*Variable, dims ...*Dimension) *Variable {
	return newCompound(name, SortStructure, fields, dims)
}

// NewSequence returns a sequence variable whose records hold the given
// fields.
func NewSequence(name string, fields []*Variable, dims ...*Dimension) *Variable {
	return newCompound(name, SortSequence, fields, dims)
}

func newCompound(name string, sort Sort, fields []*Variable, dims []*Dimension) *Variable {
	v := &Variable{name: name, sort: sort, dims: dims}
	for _, f := range fields {
		f.container = v
	}
	v.fields = fields
	return v
}

// AddAttribute attaches an attribute to v.
func (v *Variable) AddAttribute(name string, t AtomicType, values ...string) *Variable {
	v.attrs = append(v.attrs, Attribute{Name: name, Type: t, Values: values})
	return v
}

func (v *Variable) Name() string             { return v.name }
func (v *Variable) Sort() Sort               { return v.sort }
func (v *Variable) Dimensions() []*Dimension { return v.dims }
func (v *Variable) Fields() []*Variable      { return v.fields }
func (v *Variable) Attributes() []Attribute  { return v.attrs }

// Type returns the element type of an atomic variable and TypeInvalid for
// compound variables.
func (v *Variable) Type() AtomicType { return v.typ }

// IsCompound reports whether v is a structure or a sequence.
func (v *Variable) IsCompound() bool {
	return v.sort == SortStructure || v.sort == SortSequence
}

// Rank returns the number of dimensions of v.
func (v *Variable) Rank() int { return len(v.dims) }

// Shape returns the dimension sizes of v.
func (v *Variable) Shape() []int64 {
	shape := make([]int64, len(v.dims))
	for i, d := range v.dims {
		shape[i] = d.size
	}
	return shape
}

// Count returns the number of elements of v: the product of its
// dimension sizes, or 1 for a scalar.
func (v *Variable) Count() int64 {
	n := int64(1)
	for _, d := range v.dims {
		n *= d.size
	}
	return n
}

// Field returns the i'th field of a compound variable, or nil.
func (v *Variable) Field(i int) *Variable {
	if i < 0 || i >= len(v.fields) {
		return nil
	}
	return v.fields[i]
}

// FieldIndex returns the position of the named field, or -1.
func (v *Variable) FieldIndex(name string) int {
	for i, f := range v.fields {
		if f.name == name {
			return i
		}
	}
	return -1
}

// Container returns the compound variable v is a field of, or nil for a
// variable that belongs directly to a group.
func (v *Variable) Container() *Variable { return v.container }

// IsTopLevel reports whether v belongs directly to a group.
func (v *Variable) IsTopLevel() bool { return v.container == nil }

// Group returns the group that encloses v, looking through containers.
func (v *Variable) Group() *Group {
	cur := v
	for cur.container != nil {
		cur = cur.container
	}
	return cur.group
}

// FQN returns the fully qualified name of v, e.g. "/g1/obs.id".
func (v *Variable) FQN() string {
	if v.container != nil {
		return v.container.FQN() + "." + v.name
	}
	if v.group == nil {
		return "/" + v.name
	}
	return joinGroup(v.group.FQN(), v.name)
}

// Dataset is the root group of a schema.
type Dataset struct {
	Group
	DapVersion string
	DMRVersion string

	mu       sync.Mutex
	finished bool
}

// NewDataset returns an empty dataset with the given name.
func NewDataset(name string) *Dataset {
	return &Dataset{
		Group:      Group{name: name, sort: SortDataset},
		DapVersion: "4.0",
		DMRVersion: "1.0",
	}
}

// Root returns the dataset's root group.
func (ds *Dataset) Root() *Group { return &ds.Group }

// TopVariables returns every variable that belongs directly to a group,
// root group first, subgroups depth-first in declaration order.
func (ds *Dataset) TopVariables() []*Variable {
	var out []*Variable
	var visit func(g *Group)
	visit = func(g *Group) {
		out = append(out, g.vars...)
		for _, sub := range g.groups {
			visit(sub)
		}
	}
	visit(&ds.Group)
	return out
}

// Find returns the variable with the given fully qualified name, or nil.
func (ds *Dataset) Find(fqn string) *Variable {
	groups, vars, err := ParseFQN(fqn)
	if err != nil {
		return nil
	}
	g := &ds.Group
	for _, name := range groups {
		if g = g.Subgroup(name); g == nil {
			return nil
		}
	}
	v := g.Variable(vars[0])
	for _, name := range vars[1:] {
		if v == nil {
			return nil
		}
		v = v.Field(v.FieldIndex(name))
	}
	return v
}

// Contains reports whether v is a node of ds.
func (ds *Dataset) Contains(v *Variable) bool {
	if v == nil {
		return false
	}
	g := v.Group()
	for g != nil && g.parent != nil {
		g = g.parent
	}
	return g == &ds.Group
}

// Finish links every node of ds to its parent and validates the tree.
// Once it has succeeded, later calls do nothing, so sessions may share a
// finished schema. The schema must not be modified after Finish.
func (ds *Dataset) Finish() error {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.finished {
		return nil
	}
	ds.sort = SortDataset
	ds.parent = nil
	seen := make(map[*Variable]bool)
	if err := ds.finishGroup(&ds.Group, seen); err != nil {
		return err
	}
	ds.finished = true
	return nil
}

func (ds *Dataset) finishGroup(g *Group, seen map[*Variable]bool) error {
	// Dimensions have their own namespace, so a coordinate variable may
	// share the name of its dimension.
	dimNames := make(map[string]string)
	names := make(map[string]string)
	claimIn := func(ns map[string]string, name, what string) error {
		if err := checkName(name); err != nil {
			return fmt.Errorf("%w: %s in group %s: %v", ErrInvalid, what, g.FQN(), err)
		}
		if prev, ok := ns[name]; ok {
			return fmt.Errorf("%w: %s %q in group %s clashes with %s", ErrInvalid, what, name, g.FQN(), prev)
		}
		ns[name] = what
		return nil
	}
	claim := func(name, what string) error { return claimIn(names, name, what) }

	for _, d := range g.dims {
		if err := claimIn(dimNames, d.name, "dimension"); err != nil {
			return err
		}
		if d.size < 0 {
			return fmt.Errorf("%w: dimension %s has negative size %d", ErrInvalid, d.FQN(), d.size)
		}
		d.group = g
	}
	for _, v := range g.vars {
		if err := claim(v.name, "variable"); err != nil {
			return err
		}
		v.group = g
		v.container = nil
		if err := finishVariable(v, g, seen); err != nil {
			return err
		}
	}
	for _, sub := range g.groups {
		if err := claim(sub.name, "group"); err != nil {
			return err
		}
		sub.parent = g
		sub.sort = SortGroup
		if err := ds.finishGroup(sub, seen); err != nil {
			return err
		}
	}
	return nil
}

func finishVariable(v *Variable, g *Group, seen map[*Variable]bool) error {
	if seen[v] {
		return fmt.Errorf("%w: variable %s appears more than once", ErrInvalid, v.FQN())
	}
	seen[v] = true

	for i, d := range v.dims {
		if d == nil {
			return fmt.Errorf("%w: variable %s: dimension %d is nil", ErrInvalid, v.FQN(), i)
		}
		if d.size < 0 {
			return fmt.Errorf("%w: variable %s: dimension %d has negative size %d", ErrInvalid, v.FQN(), i, d.size)
		}
		if d.Shared() && !declaredIn(d, g) {
			return fmt.Errorf("%w: variable %s: dimension %q is not declared in an enclosing group", ErrInvalid, v.FQN(), d.name)
		}
	}

	switch v.sort {
	case SortAtomic:
		if !v.typ.Valid() {
			return fmt.Errorf("%w: variable %s has invalid type %v", ErrInvalid, v.FQN(), v.typ)
		}
		if len(v.fields) != 0 {
			return fmt.Errorf("%w: atomic variable %s has fields", ErrInvalid, v.FQN())
		}
	case SortStructure, SortSequence:
		if len(v.fields) == 0 {
			return fmt.Errorf("%w: %s %s has no fields", ErrInvalid, strings.ToLower(v.sort.String()), v.FQN())
		}
		names := make(map[string]bool, len(v.fields))
		for _, f := range v.fields {
			if err := checkName(f.name); err != nil {
				return fmt.Errorf("%w: field of %s: %v", ErrInvalid, v.FQN(), err)
			}
			if names[f.name] {
				return fmt.Errorf("%w: duplicate field %q in %s", ErrInvalid, f.name, v.FQN())
			}
			names[f.name] = true
			f.container = v
			f.group = nil
			if err := finishVariable(f, g, seen); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: variable %s has sort %v", ErrInvalid, v.FQN(), v.sort)
	}
	return nil
}

func declaredIn(d *Dimension, g *Group) bool {
	for cur := g; cur != nil; cur = cur.parent {
		for _, cand := range cur.dims {
			if cand == d {
				return true
			}
		}
	}
	return false
}

func checkName(name string) error {
	if name == "" {
		return errors.New("empty name")
	}
	if strings.ContainsAny(name, "/.") {
		return fmt.Errorf("name %q contains a path separator", name)
	}
	return nil
}

// Package memdsp serves datasets held in memory under "mem://name"
// locations. Datasets are built in code or loaded from YAML fixtures and
// kept in a Catalog shared by every session of the backend.
package memdsp

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/robert-malhotra/go-dap4/dap4"
	"github.com/robert-malhotra/go-dap4/dap4/dmr"
)

// Name is the backend name used in registries.
const Name = "mem"

// Prefix starts every location this backend serves.
const Prefix = "mem://"

// Instance is the value of one structure instance or sequence record: one
// value per field, in field order.
type Instance struct {
	Fields []interface{}
}

// Sequence is the value of one sequence instance.
type Sequence struct {
	Records []Instance
}

// Dataset is a schema together with the values of its top-level
// variables. Values are stored by FQN and follow these rules:
//
//	atomic             a slice accepted by dap4.Coerce, row-major, Count values
//	structure          Instance
//	structure array    []Instance, Count elements
//	sequence           *Sequence
//	sequence array     []*Sequence, Count elements
//
// Field values inside an Instance follow the same rules for the field's
// variable. A variable without a value reads as zeros, empty sequences
// and zero-valued instances.
type Dataset struct {
	Schema *dmr.Dataset
	// Streaming hides record counts: sessions report dap4.UnknownCount
	// and signal the end of a sequence with io.EOF.
	Streaming bool

	values map[string]interface{}
}

// NewDataset returns a dataset over a schema, finishing the schema.
func NewDataset(schema *dmr.Dataset) (*Dataset, error) {
	if err := schema.Finish(); err != nil {
		return nil, err
	}
	return &Dataset{Schema: schema, values: make(map[string]interface{})}, nil
}

// Set stores the value of the top-level variable with the given FQN.
func (d *Dataset) Set(fqn string, value interface{}) error {
	v := d.Schema.Find(fqn)
	if v == nil {
		return fmt.Errorf("setting %s: no such variable", fqn)
	}
	if !v.IsTopLevel() {
		return fmt.Errorf("setting %s: not a top-level variable", fqn)
	}
	if err := checkValue(v, value); err != nil {
		return fmt.Errorf("setting %s: %w", fqn, err)
	}
	d.values[v.FQN()] = value
	return nil
}

// checkValue validates the shape of a value against its variable.
func checkValue(v *dmr.Variable, value interface{}) error {
	if value == nil {
		return nil
	}
	switch {
	case v.Sort() == dmr.SortAtomic:
		arr, err := dap4.Coerce(v.Type(), value)
		if err != nil {
			return err
		}
		if n := int64(dap4.ArrayLen(arr)); n != v.Count() {
			return fmt.Errorf("%s has %d values, want %d", v.FQN(), n, v.Count())
		}
	case v.Sort() == dmr.SortStructure && v.Rank() == 0:
		inst, ok := value.(Instance)
		if !ok {
			return fmt.Errorf("%s: want Instance, got %T", v.FQN(), value)
		}
		return checkInstance(v, inst)
	case v.Sort() == dmr.SortStructure:
		insts, ok := value.([]Instance)
		if !ok {
			return fmt.Errorf("%s: want []Instance, got %T", v.FQN(), value)
		}
		if int64(len(insts)) != v.Count() {
			return fmt.Errorf("%s has %d elements, want %d", v.FQN(), len(insts), v.Count())
		}
		for _, inst := range insts {
			if err := checkInstance(v, inst); err != nil {
				return err
			}
		}
	case v.Sort() == dmr.SortSequence && v.Rank() == 0:
		seq, ok := value.(*Sequence)
		if !ok {
			return fmt.Errorf("%s: want *Sequence, got %T", v.FQN(), value)
		}
		return checkSequence(v, seq)
	case v.Sort() == dmr.SortSequence:
		seqs, ok := value.([]*Sequence)
		if !ok {
			return fmt.Errorf("%s: want []*Sequence, got %T", v.FQN(), value)
		}
		if int64(len(seqs)) != v.Count() {
			return fmt.Errorf("%s has %d elements, want %d", v.FQN(), len(seqs), v.Count())
		}
		for _, seq := range seqs {
			if err := checkSequence(v, seq); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkInstance(v *dmr.Variable, inst Instance) error {
	if len(inst.Fields) > len(v.Fields()) {
		return fmt.Errorf("%s: instance has %d fields, want at most %d", v.FQN(), len(inst.Fields), len(v.Fields()))
	}
	for i, val := range inst.Fields {
		if err := checkValue(v.Field(i), val); err != nil {
			return err
		}
	}
	return nil
}

func checkSequence(v *dmr.Variable, seq *Sequence) error {
	if seq == nil {
		return nil
	}
	for _, rec := range seq.Records {
		if err := checkInstance(v, rec); err != nil {
			return err
		}
	}
	return nil
}

// Catalog holds named datasets. It is safe for concurrent use.
type Catalog struct {
	mu   sync.RWMutex
	sets map[string]*Dataset
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{sets: make(map[string]*Dataset)}
}

// Add stores a dataset under name, replacing any previous one.
func (c *Catalog) Add(name string, d *Dataset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets[name] = d
}

// Remove deletes the named dataset.
func (c *Catalog) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sets, name)
}

// Get returns the named dataset.
func (c *Catalog) Get(name string) (*Dataset, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.sets[name]
	return d, ok
}

// Names returns the dataset names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.sets))
	for n := range c.sets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Match reports whether location is a mem:// location.
func Match(location string, _ dap4.Params) bool {
	return strings.HasPrefix(location, Prefix)
}

// New returns an unopened session over the catalog.
func New(c *Catalog, opts ...dap4.Option) *dap4.Base {
	return dap4.NewBase(Name, &driver{catalog: c}, opts...)
}

// Register adds the backend to a registry.
func Register(r *dap4.Registry, c *Catalog, where dap4.Position) {
	r.Register(Name, dap4.MatchFunc(Match), func(opts ...dap4.Option) dap4.DSP {
		return New(c, opts...)
	}, where)
}

type driver struct {
	catalog *Catalog
	ds      *Dataset
}

func (d *driver) Open(location string) (*dmr.Dataset, error) {
	name := strings.TrimPrefix(location, Prefix)
	ds, ok := d.catalog.Get(name)
	if !ok {
		return nil, fmt.Errorf("opening %s: %w", location, os.ErrNotExist)
	}
	d.ds = ds
	return ds.Schema, nil
}

func (d *driver) Close() error {
	d.ds = nil
	return nil
}

// Refs are the stored values themselves; zero values stand in for
// missing ones.

func (d *driver) Root(v *dmr.Variable) (dap4.Ref, error) {
	return d.ds.values[v.FQN()], nil
}

func (d *driver) ReadAtomic(ref dap4.Ref, v *dmr.Variable, slices []dap4.Slice) (interface{}, error) {
	var arr interface{}
	var err error
	if ref == nil {
		arr, err = dap4.MakeArray(v.Type(), int(v.Count()))
	} else {
		arr, err = dap4.Coerce(v.Type(), ref)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", v.FQN(), err)
	}
	return dap4.Gather(arr, v.Shape(), slices)
}

func (d *driver) Element(ref dap4.Ref, v *dmr.Variable, offset int64) (dap4.Ref, error) {
	switch elems := ref.(type) {
	case nil:
		if v.Sort() == dmr.SortSequence {
			return (*Sequence)(nil), nil
		}
		return Instance{}, nil
	case []Instance:
		return elems[offset], nil
	case []*Sequence:
		return elems[offset], nil
	}
	return nil, fmt.Errorf("element of %s: unexpected value %T", v.FQN(), ref)
}

func (d *driver) Field(ref dap4.Ref, v *dmr.Variable, i int) (dap4.Ref, error) {
	var inst Instance
	switch r := ref.(type) {
	case nil:
	case Instance:
		inst = r
	default:
		return nil, fmt.Errorf("field of %s: unexpected value %T", v.FQN(), ref)
	}
	if i < len(inst.Fields) {
		return inst.Fields[i], nil
	}
	return nil, nil
}

func (d *driver) RecordCount(ref dap4.Ref, v *dmr.Variable) (int64, error) {
	if d.ds.Streaming {
		return dap4.UnknownCount, nil
	}
	seq, err := sequenceOf(ref, v)
	if err != nil {
		return 0, err
	}
	return int64(len(seq.Records)), nil
}

func (d *driver) Record(ref dap4.Ref, v *dmr.Variable, i int64) (dap4.Ref, error) {
	seq, err := sequenceOf(ref, v)
	if err != nil {
		return nil, err
	}
	if i >= int64(len(seq.Records)) {
		return nil, io.EOF
	}
	return seq.Records[i], nil
}

var errNotSequence = errors.New("value is not a sequence")

func sequenceOf(ref dap4.Ref, v *dmr.Variable) (*Sequence, error) {
	switch s := ref.(type) {
	case nil:
		return &Sequence{}, nil
	case *Sequence:
		if s == nil {
			return &Sequence{}, nil
		}
		return s, nil
	}
	return nil, fmt.Errorf("%s: %w (got %T)", v.FQN(), errNotSequence, ref)
}

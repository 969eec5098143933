// Package nc4dsp serves NetCDF-4 and HDF5 files, and NetCDF classic files
// as well, through the pure Go reader of go-native-netcdf.
//
// Groups map to DAP4 groups. Only atomic variables are served: variables
// of user-defined types (compound, enum, vlen, opaque) are left out of the
// schema with a warning. The reader has no dimension listing, so shared
// dimensions are declared in the group where a variable first uses them.
// Open reads every variable into memory.
package nc4dsp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/robert-malhotra/go-dap4/dap4"
	"github.com/robert-malhotra/go-dap4/dap4/dmr"
)

// Name is the backend name used in registries.
const Name = "nc4"

// ParamFormat is the Params key a caller can set to "nc4" to claim a
// location for this backend regardless of its name.
const ParamFormat = "format"

var hdf5Magic = []byte("\x89HDF\r\n\x1a\n")

// Match reports whether location looks like an HDF5 file: an ".nc4",
// ".h5", ".hdf5" or ".he5" name, an ".nc" name whose first bytes are the
// HDF5 signature, or an explicit format hint.
func Match(location string, params dap4.Params) bool {
	if f, ok := params[ParamFormat]; ok {
		return f == "nc4"
	}
	switch strings.ToLower(filepath.Ext(location)) {
	case ".nc4", ".h5", ".hdf5", ".he5":
		return true
	case ".nc":
		return sniff(location)
	}
	return false
}

func sniff(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	magic := make([]byte, len(hdf5Magic))
	if _, err := io.ReadFull(f, magic); err != nil {
		return false
	}
	return bytes.Equal(magic, hdf5Magic)
}

// New returns an unopened session.
func New(opts ...dap4.Option) *dap4.Base {
	return dap4.NewBase(Name, &driver{log: logrus.WithField("backend", Name)}, opts...)
}

// Register adds the backend to a registry.
func Register(r *dap4.Registry, where dap4.Position) {
	r.Register(Name, dap4.MatchFunc(Match), func(opts ...dap4.Option) dap4.DSP {
		return New(opts...)
	}, where)
}

type driver struct {
	log    *logrus.Entry
	root   api.Group
	groups []api.Group
	values map[*dmr.Variable]interface{}
}

func (d *driver) Open(location string) (*dmr.Dataset, error) {
	root, err := netcdf.Open(location)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", location, err)
	}
	d.root = root
	d.values = make(map[*dmr.Variable]interface{})

	name := strings.TrimSuffix(filepath.Base(location), filepath.Ext(location))
	ds := dmr.NewDataset(name)
	if err := d.loadGroup(root, ds.Root()); err != nil {
		return nil, fmt.Errorf("reading %s: %w", location, err)
	}
	return ds, nil
}

func (d *driver) loadGroup(src api.Group, g *dmr.Group) error {
	for _, a := range attributes(src.Attributes()) {
		g.AddAttribute(a.Name, a.Type, a.Values...)
	}

	for _, name := range src.ListVariables() {
		if err := d.loadVariable(src, g, name); err != nil {
			return fmt.Errorf("variable %s: %w", name, err)
		}
	}

	for _, name := range src.ListSubgroups() {
		sub, err := src.GetGroup(name)
		if err != nil {
			return fmt.Errorf("group %s: %w", name, err)
		}
		d.groups = append(d.groups, sub)
		if err := d.loadGroup(sub, g.AddGroup(name)); err != nil {
			return err
		}
	}
	return nil
}

func (d *driver) loadVariable(src api.Group, g *dmr.Group, name string) error {
	vr, err := src.GetVariable(name)
	if err != nil {
		return err
	}
	char := false
	if vg, err := src.GetVarGetter(name); err == nil {
		char = vg.Type() == "char"
	}

	t, shape, flat, err := flatten(vr.Values, char)
	if err != nil {
		d.log.WithFields(logrus.Fields{"group": g.FQN(), "variable": name}).Warnf("skipping variable: %v", err)
		return nil
	}

	v := g.AddVariable(dmr.NewAtomic(name, t, dimensions(g, vr.Dimensions, shape)...))
	for _, a := range attributes(vr.Attributes) {
		v.AddAttribute(a.Name, a.Type, a.Values...)
	}
	d.values[v] = flat
	return nil
}

// dimensions returns the dimensions of a variable of the given shape.
// Named dimensions are reused from enclosing groups when their size
// agrees and declared in g otherwise; without usable names the
// dimensions are anonymous.
func dimensions(g *dmr.Group, names []string, shape []int64) []*dmr.Dimension {
	dims := make([]*dmr.Dimension, len(shape))
	named := len(names) == len(shape)
	for i, n := range shape {
		if !named || names[i] == "" {
			dims[i] = dmr.Anon(n)
			continue
		}
		if dim := g.ResolveDimension(names[i]); dim != nil {
			if dim.Size() == n {
				dims[i] = dim
			} else {
				dims[i] = dmr.Anon(n)
			}
			continue
		}
		dims[i] = g.AddDimension(names[i], n)
	}
	return dims
}

var leafTypes = map[reflect.Kind]dmr.AtomicType{
	reflect.Int8:    dmr.Int8,
	reflect.Uint8:   dmr.UInt8,
	reflect.Int16:   dmr.Int16,
	reflect.Uint16:  dmr.UInt16,
	reflect.Int32:   dmr.Int32,
	reflect.Uint32:  dmr.UInt32,
	reflect.Int64:   dmr.Int64,
	reflect.Uint64:  dmr.UInt64,
	reflect.Float32: dmr.Float32,
	reflect.Float64: dmr.Float64,
	reflect.String:  dmr.String,
}

// flatten turns the reader's nested slices into a row-major container of
// the variable's type and returns the shape. Char variables come as
// strings, one per innermost row; their characters become the last
// dimension.
func flatten(values interface{}, char bool) (dmr.AtomicType, []int64, interface{}, error) {
	rv := reflect.ValueOf(values)
	if !rv.IsValid() {
		return dmr.TypeInvalid, nil, nil, fmt.Errorf("no values")
	}

	var shape []int64
	leaf := rv.Type()
	for probe := rv; leaf.Kind() == reflect.Slice; {
		shape = append(shape, int64(probe.Len()))
		leaf = leaf.Elem()
		if probe.Len() > 0 {
			probe = probe.Index(0)
		}
	}

	t, ok := leafTypes[leaf.Kind()]
	if !ok {
		return dmr.TypeInvalid, nil, nil, fmt.Errorf("unsupported value type %s", rv.Type())
	}
	if char {
		if t != dmr.String {
			return dmr.TypeInvalid, nil, nil, fmt.Errorf("char variable holds %s", rv.Type())
		}
		t = dmr.Char
	}

	ct, err := dap4.ContainerType(t)
	if err != nil {
		return dmr.TypeInvalid, nil, nil, err
	}
	out := reflect.MakeSlice(ct, 0, 0)
	width := -1
	var walk func(v reflect.Value) error
	walk = func(v reflect.Value) error {
		if v.Kind() == reflect.Slice {
			for i := 0; i < v.Len(); i++ {
				if err := walk(v.Index(i)); err != nil {
					return err
				}
			}
			return nil
		}
		if t == dmr.Char {
			s := v.String()
			if width < 0 {
				width = len(s)
			} else if len(s) != width {
				return fmt.Errorf("ragged char rows: %d and %d characters", width, len(s))
			}
			out = reflect.AppendSlice(out, reflect.ValueOf([]byte(s)))
			return nil
		}
		out = reflect.Append(out, v.Convert(ct.Elem()))
		return nil
	}
	if err := walk(rv); err != nil {
		return dmr.TypeInvalid, nil, nil, err
	}
	if t == dmr.Char {
		if width < 0 {
			width = 0
		}
		shape = append(shape, int64(width))
	}

	want := int64(1)
	for _, n := range shape {
		want *= n
	}
	if int64(out.Len()) != want {
		return dmr.TypeInvalid, nil, nil, fmt.Errorf("ragged values: %d values for shape %v", out.Len(), shape)
	}
	return t, shape, out.Interface(), nil
}

// attributes converts an attribute map, skipping values of types DAP4
// attributes cannot hold.
func attributes(m api.AttributeMap) []dmr.Attribute {
	if m == nil {
		return nil
	}
	var out []dmr.Attribute
	for _, key := range m.Keys() {
		val, ok := m.Get(key)
		if !ok {
			continue
		}
		a, err := attribute(key, val)
		if err != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}

func attribute(name string, val interface{}) (dmr.Attribute, error) {
	rv := reflect.ValueOf(val)
	if !rv.IsValid() {
		return dmr.Attribute{}, fmt.Errorf("attribute %s has no value", name)
	}
	elems := []reflect.Value{rv}
	if rv.Kind() == reflect.Slice {
		elems = elems[:0]
		for i := 0; i < rv.Len(); i++ {
			elems = append(elems, rv.Index(i))
		}
	}
	kind := rv.Kind()
	if kind == reflect.Slice {
		kind = rv.Type().Elem().Kind()
	}
	t, ok := leafTypes[kind]
	if !ok {
		return dmr.Attribute{}, fmt.Errorf("attribute %s has unsupported type %T", name, val)
	}

	a := dmr.Attribute{Name: name, Type: t}
	for _, e := range elems {
		s, err := cast.ToStringE(e.Interface())
		if err != nil {
			return dmr.Attribute{}, fmt.Errorf("attribute %s: %w", name, err)
		}
		a.Values = append(a.Values, s)
	}
	return a, nil
}

func (d *driver) Close() error {
	for _, g := range d.groups {
		g.Close()
	}
	if d.root != nil {
		d.root.Close()
	}
	d.root = nil
	d.groups = nil
	d.values = nil
	return nil
}

func (d *driver) Root(v *dmr.Variable) (dap4.Ref, error) {
	flat, ok := d.values[v]
	if !ok {
		return nil, fmt.Errorf("no values loaded for %s", v.FQN())
	}
	return flat, nil
}

func (d *driver) ReadAtomic(ref dap4.Ref, v *dmr.Variable, slices []dap4.Slice) (interface{}, error) {
	return dap4.Gather(ref, v.Shape(), slices)
}

func (d *driver) Element(dap4.Ref, *dmr.Variable, int64) (dap4.Ref, error) {
	return nil, errAtomicOnly
}

func (d *driver) Field(dap4.Ref, *dmr.Variable, int) (dap4.Ref, error) {
	return nil, errAtomicOnly
}

func (d *driver) RecordCount(dap4.Ref, *dmr.Variable) (int64, error) {
	return 0, errAtomicOnly
}

func (d *driver) Record(dap4.Ref, *dmr.Variable, int64) (dap4.Ref, error) {
	return nil, errAtomicOnly
}

var errAtomicOnly = errors.New(Name + " serves atomic variables only")

package memdsp

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/robert-malhotra/go-dap4/dap4/dmr"
)

// A fixture file describes one dataset:
//
//	name: grid1
//	streaming: false
//	dimensions:
//	  - {name: x, size: 2}
//	  - {name: y, size: 3}
//	variables:
//	  - name: temp
//	    type: Int32
//	    dims: [x, y]
//	    data: [[1, 2, 3], [4, 5, 6]]
//	  - name: track
//	    type: Sequence
//	    fields:
//	      - {name: lat, type: Float64}
//	    data:
//	      - {lat: 1.5}
//	groups:
//	  - name: g1
//	    variables: [...]
//
// Dims name a shared dimension of the group or an enclosing group, or give
// the size of an anonymous dimension; any other scalar is rejected. Data
// for an array of structures or sequences nests one list per dimension.
// Structure instances and sequence records are maps from field name to
// value, or lists of values in field order.
type fixture struct {
	fixtureGroup `yaml:",inline"`
	Streaming    bool `yaml:"streaming"`
}

type fixtureGroup struct {
	Name       string         `yaml:"name"`
	Dimensions []fixtureDim   `yaml:"dimensions"`
	Variables  []fixtureVar   `yaml:"variables"`
	Groups     []fixtureGroup `yaml:"groups"`
	Attributes []fixtureAttr  `yaml:"attributes"`
}

type fixtureDim struct {
	Name string `yaml:"name"`
	Size int64  `yaml:"size"`
}

type fixtureVar struct {
	Name       string        `yaml:"name"`
	Type       string        `yaml:"type"`
	Dims       []interface{} `yaml:"dims"`
	Fields     []fixtureVar  `yaml:"fields"`
	Data       interface{}   `yaml:"data"`
	Attributes []fixtureAttr `yaml:"attributes"`
}

type fixtureAttr struct {
	Name   string        `yaml:"name"`
	Type   string        `yaml:"type"`
	Values []interface{} `yaml:"values"`
}

// pending is a top-level variable whose data is converted once the schema
// is finished.
type pending struct {
	v    *dmr.Variable
	data interface{}
}

// LoadFile reads a fixture file. The dataset is named by the file's name
// field, or by the file name without its extension.
func LoadFile(path string) (string, *Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("reading fixture: %w", err)
	}
	name, ds, err := Parse(raw)
	if err != nil {
		return "", nil, fmt.Errorf("parsing fixture %s: %w", path, err)
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return name, ds, nil
}

// LoadFiles loads fixture files into the catalog. Every file is tried;
// the failures are returned together.
func LoadFiles(c *Catalog, paths ...string) error {
	var result error
	for _, p := range paths {
		name, ds, err := LoadFile(p)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		c.Add(name, ds)
	}
	return result
}

// Parse builds a dataset from fixture YAML and returns it with its name.
func Parse(raw []byte) (string, *Dataset, error) {
	var fx fixture
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return "", nil, fmt.Errorf("decoding YAML: %w", err)
	}

	schema := dmr.NewDataset(fx.Name)
	var todo []pending
	if err := buildGroup(schema.Root(), fx.fixtureGroup, &todo); err != nil {
		return "", nil, err
	}
	ds, err := NewDataset(schema)
	if err != nil {
		return "", nil, err
	}
	ds.Streaming = fx.Streaming

	for _, p := range todo {
		val, err := valueOf(p.v, p.data)
		if err != nil {
			return "", nil, err
		}
		if err := ds.Set(p.v.FQN(), val); err != nil {
			return "", nil, err
		}
	}
	return fx.Name, ds, nil
}

func buildGroup(g *dmr.Group, fg fixtureGroup, todo *[]pending) error {
	for _, d := range fg.Dimensions {
		g.AddDimension(d.Name, d.Size)
	}
	for _, a := range fg.Attributes {
		t, vals, err := attribute(a)
		if err != nil {
			return err
		}
		g.AddAttribute(a.Name, t, vals...)
	}
	for _, fv := range fg.Variables {
		v, err := buildVariable(g, fv)
		if err != nil {
			return err
		}
		g.AddVariable(v)
		if fv.Data != nil {
			*todo = append(*todo, pending{v: v, data: fv.Data})
		}
	}
	for _, sub := range fg.Groups {
		if err := buildGroup(g.AddGroup(sub.Name), sub, todo); err != nil {
			return err
		}
	}
	return nil
}

func buildVariable(g *dmr.Group, fv fixtureVar) (*dmr.Variable, error) {
	dims := make([]*dmr.Dimension, len(fv.Dims))
	for i, raw := range fv.Dims {
		d, err := dimensionOf(g, raw)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", fv.Name, err)
		}
		dims[i] = d
	}

	var v *dmr.Variable
	switch strings.ToLower(fv.Type) {
	case "structure", "sequence":
		fields := make([]*dmr.Variable, len(fv.Fields))
		for i, ff := range fv.Fields {
			f, err := buildVariable(g, ff)
			if err != nil {
				return nil, err
			}
			fields[i] = f
		}
		if strings.EqualFold(fv.Type, "structure") {
			v = dmr.NewStructure(fv.Name, fields, dims...)
		} else {
			v = dmr.NewSequence(fv.Name, fields, dims...)
		}
	default:
		t, err := dmr.ParseAtomicType(fv.Type)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", fv.Name, err)
		}
		v = dmr.NewAtomic(fv.Name, t, dims...)
	}

	for _, a := range fv.Attributes {
		t, vals, err := attribute(a)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", fv.Name, err)
		}
		v.AddAttribute(a.Name, t, vals...)
	}
	return v, nil
}

// dimensionOf resolves one dims entry: a declared dimension name, or the
// size of an anonymous dimension.
func dimensionOf(g *dmr.Group, raw interface{}) (*dmr.Dimension, error) {
	var size int64
	switch x := raw.(type) {
	case string:
		if d := g.ResolveDimension(x); d != nil {
			return d, nil
		}
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("dimension %q is not declared", x)
		}
		size = n
	case int:
		size = int64(x)
	case int64:
		size = x
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("dimension size %d out of range", x)
		}
		size = int64(x)
	default:
		return nil, fmt.Errorf("dimension %v (%T) is neither a name nor a size", raw, raw)
	}
	if size < 0 {
		return nil, fmt.Errorf("dimension size %d is negative", size)
	}
	return dmr.Anon(size), nil
}

func attribute(a fixtureAttr) (dmr.AtomicType, []string, error) {
	t := dmr.String
	if a.Type != "" {
		var err error
		if t, err = dmr.ParseAtomicType(a.Type); err != nil {
			return 0, nil, fmt.Errorf("attribute %s: %w", a.Name, err)
		}
	}
	vals := make([]string, len(a.Values))
	for i, raw := range a.Values {
		s, err := cast.ToStringE(raw)
		if err != nil {
			return 0, nil, fmt.Errorf("attribute %s: %w", a.Name, err)
		}
		vals[i] = s
	}
	return t, vals, nil
}

// valueOf converts fixture data for the whole of v into the value layout
// of Dataset.
func valueOf(v *dmr.Variable, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	switch v.Sort() {
	case dmr.SortAtomic:
		if v.Type() == dmr.Char {
			if s, ok := raw.(string); ok {
				return []byte(s), nil
			}
		}
		return atomicValues(v, flatten(raw))
	case dmr.SortStructure:
		if v.Rank() == 0 {
			return instanceOf(v, raw)
		}
		items, err := flattenDepth(raw, v.Rank())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", v.FQN(), err)
		}
		insts := make([]Instance, len(items))
		for i, item := range items {
			inst, err := instanceOf(v, item)
			if err != nil {
				return nil, err
			}
			insts[i] = inst
		}
		return insts, nil
	case dmr.SortSequence:
		if v.Rank() == 0 {
			return sequenceValue(v, raw)
		}
		items, err := flattenDepth(raw, v.Rank())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", v.FQN(), err)
		}
		seqs := make([]*Sequence, len(items))
		for i, item := range items {
			if seqs[i], err = sequenceValue(v, item); err != nil {
				return nil, err
			}
		}
		return seqs, nil
	}
	return nil, fmt.Errorf("%s: unexpected sort %v", v.FQN(), v.Sort())
}

func sequenceValue(v *dmr.Variable, raw interface{}) (*Sequence, error) {
	if raw == nil {
		return &Sequence{}, nil
	}
	items, err := cast.ToSliceE(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: records: %w", v.FQN(), err)
	}
	seq := &Sequence{Records: make([]Instance, len(items))}
	for i, item := range items {
		if seq.Records[i], err = instanceOf(v, item); err != nil {
			return nil, err
		}
	}
	return seq, nil
}

func instanceOf(v *dmr.Variable, raw interface{}) (Instance, error) {
	inst := Instance{Fields: make([]interface{}, len(v.Fields()))}
	if list, ok := raw.([]interface{}); ok {
		if len(list) > len(inst.Fields) {
			return inst, fmt.Errorf("%s: %d values for %d fields", v.FQN(), len(list), len(inst.Fields))
		}
		for i, item := range list {
			val, err := valueOf(v.Field(i), item)
			if err != nil {
				return inst, err
			}
			inst.Fields[i] = val
		}
		return inst, nil
	}

	m, err := cast.ToStringMapE(raw)
	if err != nil {
		return inst, fmt.Errorf("%s: instance: %w", v.FQN(), err)
	}
	for name, item := range m {
		i := v.FieldIndex(name)
		if i < 0 {
			return inst, fmt.Errorf("%s: no field named %q", v.FQN(), name)
		}
		val, err := valueOf(v.Field(i), item)
		if err != nil {
			return inst, err
		}
		inst.Fields[i] = val
	}
	return inst, nil
}

// flatten turns nested lists into one row-major list. Anything that is
// not a list is a one-element list.
func flatten(raw interface{}) []interface{} {
	list, ok := raw.([]interface{})
	if !ok {
		return []interface{}{raw}
	}
	var out []interface{}
	for _, item := range list {
		out = append(out, flatten(item)...)
	}
	return out
}

// flattenDepth unwraps exactly depth levels of list nesting, leaving the
// elements below that level intact. A structure instance may itself be a
// list, so compound arrays cannot use flatten.
func flattenDepth(raw interface{}, depth int) ([]interface{}, error) {
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("expected a list, got %T", raw)
	}
	if depth <= 1 {
		return list, nil
	}
	var out []interface{}
	for _, item := range list {
		sub, err := flattenDepth(item, depth-1)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

func atomicValues(v *dmr.Variable, items []interface{}) (interface{}, error) {
	n := len(items)
	var err error
	at := func(i int) error {
		if err != nil {
			return fmt.Errorf("%s: value %d (%v): %w", v.FQN(), i, items[i], err)
		}
		return nil
	}

	switch v.Type() {
	case dmr.Char:
		out := make([]byte, n)
		for i, item := range items {
			out[i], err = cast.ToUint8E(item)
			if e := at(i); e != nil {
				return nil, e
			}
		}
		return out, nil
	case dmr.Int8:
		out := make([]int8, n)
		for i, item := range items {
			out[i], err = cast.ToInt8E(item)
			if e := at(i); e != nil {
				return nil, e
			}
		}
		return out, nil
	case dmr.UInt8:
		out := make([]int8, n)
		for i, item := range items {
			var u uint8
			u, err = cast.ToUint8E(item)
			out[i] = int8(u)
			if e := at(i); e != nil {
				return nil, e
			}
		}
		return out, nil
	case dmr.Int16:
		out := make([]int16, n)
		for i, item := range items {
			out[i], err = cast.ToInt16E(item)
			if e := at(i); e != nil {
				return nil, e
			}
		}
		return out, nil
	case dmr.UInt16:
		out := make([]int16, n)
		for i, item := range items {
			var u uint16
			u, err = cast.ToUint16E(item)
			out[i] = int16(u)
			if e := at(i); e != nil {
				return nil, e
			}
		}
		return out, nil
	case dmr.Int32:
		out := make([]int32, n)
		for i, item := range items {
			out[i], err = cast.ToInt32E(item)
			if e := at(i); e != nil {
				return nil, e
			}
		}
		return out, nil
	case dmr.UInt32:
		out := make([]int32, n)
		for i, item := range items {
			var u uint32
			u, err = cast.ToUint32E(item)
			out[i] = int32(u)
			if e := at(i); e != nil {
				return nil, e
			}
		}
		return out, nil
	case dmr.Int64:
		out := make([]int64, n)
		for i, item := range items {
			out[i], err = cast.ToInt64E(item)
			if e := at(i); e != nil {
				return nil, e
			}
		}
		return out, nil
	case dmr.UInt64:
		out := make([]int64, n)
		for i, item := range items {
			var u uint64
			u, err = cast.ToUint64E(item)
			out[i] = int64(u)
			if e := at(i); e != nil {
				return nil, e
			}
		}
		return out, nil
	case dmr.Float32:
		out := make([]float32, n)
		for i, item := range items {
			out[i], err = cast.ToFloat32E(item)
			if e := at(i); e != nil {
				return nil, e
			}
		}
		return out, nil
	case dmr.Float64:
		out := make([]float64, n)
		for i, item := range items {
			out[i], err = cast.ToFloat64E(item)
			if e := at(i); e != nil {
				return nil, e
			}
		}
		return out, nil
	case dmr.String, dmr.URL:
		out := make([]string, n)
		for i, item := range items {
			out[i], err = cast.ToStringE(item)
			if e := at(i); e != nil {
				return nil, e
			}
		}
		return out, nil
	case dmr.Opaque:
		out := make([][]byte, n)
		for i, item := range items {
			var s string
			s, err = cast.ToStringE(item)
			out[i] = []byte(s)
			if e := at(i); e != nil {
				return nil, e
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s: unsupported type %v", v.FQN(), v.Type())
}

// Package ncdsp serves NetCDF-3 classic and 64-bit offset files.
//
// NetCDF-3 has no compound types, so every variable is atomic. The record
// dimension, if any, takes the number of records present in the file.
// BYTE maps to Int8, CHAR to Char and the remaining types to their DAP4
// namesakes.
package ncdsp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/spf13/cast"

	"github.com/robert-malhotra/go-dap4/dap4"
	"github.com/robert-malhotra/go-dap4/dap4/dmr"
)

// Name is the backend name used in registries.
const Name = "netcdf"

// ParamFormat is the Params key a caller can set to "netcdf3" to claim a
// location for this backend regardless of its name.
const ParamFormat = "format"

var (
	magicV1 = []byte("CDF\x01")
	magicV2 = []byte("CDF\x02")
)

// errNoCompounds is returned for compound operations, which a NetCDF-3
// schema never allows.
var errNoCompounds = errors.New("netcdf-3 has no compound variables")

// Match reports whether location looks like a NetCDF-3 file: a ".cdf"
// name, a ".nc" name whose first bytes are the classic magic, or an
// explicit format hint.
func Match(location string, params dap4.Params) bool {
	if f, ok := params[ParamFormat]; ok {
		return f == "netcdf3"
	}
	switch strings.ToLower(filepath.Ext(location)) {
	case ".cdf":
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
	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}
	return bytes.Equal(magic[:], magicV1) || bytes.Equal(magic[:], magicV2)
}

// New returns an unopened session.
func New(opts ...dap4.Option) *dap4.Base {
	return dap4.NewBase(Name, &driver{}, opts...)
}

// Register adds the backend to a registry.
func Register(r *dap4.Registry, where dap4.Position) {
	r.Register(Name, dap4.MatchFunc(Match), func(opts ...dap4.Option) dap4.DSP {
		return New(opts...)
	}, where)
}

type driver struct {
	f     *os.File
	file  *cdf.File
	nrecs int
	cache map[*dmr.Variable]interface{}
}

// NetCDF-3 data is always big-endian.
func (d *driver) Order() binary.ByteOrder { return binary.BigEndian }

func (d *driver) Open(location string) (*dmr.Dataset, error) {
	f, err := os.Open(location)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", location, err)
	}
	d.f = f

	file, err := cdf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("reading netcdf header of %s: %w", location, err)
	}
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", location, err)
	}
	d.file = file
	d.nrecs = int(file.Header.NumRecs(fi.Size()))
	d.cache = make(map[*dmr.Variable]interface{})

	name := strings.TrimSuffix(filepath.Base(location), filepath.Ext(location))
	return d.schema(name)
}

// schema translates the file header.
func (d *driver) schema(name string) (*dmr.Dataset, error) {
	h := d.file.Header
	ds := dmr.NewDataset(name)
	root := ds.Root()

	lengths := h.Lengths("")
	for i, dim := range h.Dimensions("") {
		n := lengths[i]
		if n == 0 {
			n = d.nrecs
		}
		root.AddDimension(dim, int64(n))
	}

	for _, a := range h.Attributes("") {
		t, values, err := attribute(h.GetAttribute("", a))
		if err != nil {
			return nil, fmt.Errorf("global attribute %s: %w", a, err)
		}
		root.AddAttribute(a, t, values...)
	}

	for _, vn := range h.Variables() {
		t, err := atomicType(h.ZeroValue(vn, 0))
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", vn, err)
		}
		var dims []*dmr.Dimension
		for _, dn := range h.Dimensions(vn) {
			dims = append(dims, root.Dimension(dn))
		}
		v := root.AddVariable(dmr.NewAtomic(vn, t, dims...))
		for _, a := range h.Attributes(vn) {
			at, values, err := attribute(h.GetAttribute(vn, a))
			if err != nil {
				return nil, fmt.Errorf("attribute %s of %s: %w", a, vn, err)
			}
			v.AddAttribute(a, at, values...)
		}
	}
	return ds, nil
}

// atomicType maps the zero value the header reports for a variable to
// its DAP4 type.
func atomicType(zero interface{}) (dmr.AtomicType, error) {
	switch zero.(type) {
	case []uint8:
		return dmr.Int8, nil
	case string:
		return dmr.Char, nil
	case []int16:
		return dmr.Int16, nil
	case []int32:
		return dmr.Int32, nil
	case []float32:
		return dmr.Float32, nil
	case []float64:
		return dmr.Float64, nil
	}
	return dmr.TypeInvalid, fmt.Errorf("unsupported netcdf type %T", zero)
}

func attribute(val interface{}) (dmr.AtomicType, []string, error) {
	if s, ok := val.(string); ok {
		return dmr.String, []string{s}, nil
	}
	t, err := atomicType(val)
	if err != nil {
		return t, nil, err
	}
	rv := reflect.ValueOf(val)
	values := make([]string, rv.Len())
	for i := range values {
		e := rv.Index(i).Interface()
		if b, ok := e.(uint8); ok {
			e = int8(b)
		}
		if values[i], err = cast.ToStringE(e); err != nil {
			return t, nil, err
		}
	}
	return t, values, nil
}

func (d *driver) Close() error {
	d.file = nil
	d.cache = nil
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func (d *driver) Root(v *dmr.Variable) (dap4.Ref, error) {
	return v.Name(), nil
}

func (d *driver) ReadAtomic(ref dap4.Ref, v *dmr.Variable, slices []dap4.Slice) (interface{}, error) {
	all, ok := d.cache[v]
	if !ok {
		var err error
		if all, err = d.readAll(v.Name()); err != nil {
			return nil, fmt.Errorf("reading %s: %w", v.FQN(), err)
		}
		d.cache[v] = all
	}
	return dap4.Gather(all, v.Shape(), slices)
}

// readAll reads every value of a variable. Record variables are read one
// record at a time since records of different variables interleave.
func (d *driver) readAll(name string) (interface{}, error) {
	h := d.file.Header
	if !h.IsRecordVariable(name) {
		r := d.file.Reader(name, nil, nil)
		buf := r.Zero(-1)
		if _, err := r.Read(buf); err != nil && err != io.EOF {
			return nil, err
		}
		return buf, nil
	}

	lengths := h.Lengths(name)
	per := 1
	for _, n := range lengths[1:] {
		per *= n
	}
	all := d.file.Reader(name, nil, nil).Zero(d.nrecs * per)
	if per == 0 {
		return all, nil
	}
	out := reflect.ValueOf(all)
	begin := make([]int, len(lengths))
	end := make([]int, len(lengths))
	for i := 1; i < len(lengths); i++ {
		end[i] = lengths[i] - 1
	}
	for rec := 0; rec < d.nrecs; rec++ {
		begin[0], end[0] = rec, rec
		r := d.file.Reader(name, begin, end)
		buf := out.Slice(rec*per, (rec+1)*per).Interface()
		if _, err := r.Read(buf); err != nil && err != io.EOF {
			return nil, fmt.Errorf("record %d: %w", rec, err)
		}
	}
	return all, nil
}

func (d *driver) Element(dap4.Ref, *dmr.Variable, int64) (dap4.Ref, error) {
	return nil, errNoCompounds
}

func (d *driver) Field(dap4.Ref, *dmr.Variable, int) (dap4.Ref, error) {
	return nil, errNoCompounds
}

func (d *driver) RecordCount(dap4.Ref, *dmr.Variable) (int64, error) {
	return 0, errNoCompounds
}

func (d *driver) Record(dap4.Ref, *dmr.Variable, int64) (dap4.Ref, error) {
	return nil, errNoCompounds
}

package dap4_test

import (
	"errors"

	"github.com/robert-malhotra/go-dap4/dap4"
	"github.com/robert-malhotra/go-dap4/dap4/dmr"
)

// brokenDriver serves one Int32 variable /v[3] and fails in the ways its
// flags ask for.
type brokenDriver struct {
	noSchema  bool
	badSchema bool
	short     bool
	readErr   error
	closed    int
}

func (d *brokenDriver) Open(location string) (*dmr.Dataset, error) {
	if d.noSchema {
		return nil, nil
	}
	ds := dmr.NewDataset("broken")
	name := "v"
	if d.badSchema {
		name = "v/w"
	}
	ds.AddVariable(dmr.NewAtomic(name, dmr.Int32, dmr.Anon(3)))
	return ds, nil
}

func (d *brokenDriver) Close() error {
	d.closed++
	return nil
}

func (d *brokenDriver) Root(v *dmr.Variable) (dap4.Ref, error) { return v.Name(), nil }

func (d *brokenDriver) ReadAtomic(ref dap4.Ref, v *dmr.Variable, slices []dap4.Slice) (interface{}, error) {
	if d.readErr != nil {
		return nil, d.readErr
	}
	if d.short {
		return []int32{1}, nil
	}
	return dap4.Gather([]int32{7, 8, 9}, v.Shape(), slices)
}

func (d *brokenDriver) Element(dap4.Ref, *dmr.Variable, int64) (dap4.Ref, error) {
	return nil, errors.New("no compound arrays here")
}

func (d *brokenDriver) Field(dap4.Ref, *dmr.Variable, int) (dap4.Ref, error) {
	return nil, errors.New("no structures here")
}

func (d *brokenDriver) RecordCount(dap4.Ref, *dmr.Variable) (int64, error) {
	return 0, errors.New("no sequences here")
}

func (d *brokenDriver) Record(dap4.Ref, *dmr.Variable, int64) (dap4.Ref, error) {
	return nil, errors.New("no sequences here")
}

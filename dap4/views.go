package dap4

import (
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/robert-malhotra/go-dap4/dap4/dmr"
)

// DataVariable is the common view of a node of a dataset's data.
type DataVariable interface {
	Sort() DataSort
	Variable() *dmr.Variable
	Cursor() *Cursor
}

// DataCompound is implemented by the structure and sequence views.
type DataCompound interface {
	DataVariable
	compound()
}

// View returns the typed view for a cursor.
func View(c *Cursor) (DataVariable, error) {
	if c == nil {
		return nil, errors.New("view of nil cursor")
	}
	base := view{c: c}
	switch c.Scheme() {
	case SchemeAtomic:
		return &DataAtomic{base}, nil
	case SchemeStructure:
		return &DataStructure{fields{base}}, nil
	case SchemeRecord:
		return &DataRecord{fields{base}}, nil
	case SchemeSequence:
		return &DataSequence{base}, nil
	case SchemeStructArray, SchemeSeqArray:
		return &DataCompoundArray{base}, nil
	}
	return nil, fmt.Errorf("view of cursor with scheme %v", c.Scheme())
}

func compoundView(c *Cursor) (DataCompound, error) {
	dv, err := View(c)
	if err != nil {
		return nil, err
	}
	dc, ok := dv.(DataCompound)
	if !ok {
		return nil, fmt.Errorf("%v is not a compound view", c)
	}
	return dc, nil
}

type view struct {
	c *Cursor
}

func (v view) Variable() *dmr.Variable { return v.c.Template() }
func (v view) Cursor() *Cursor          { return v.c }

// DataAtomic is the view of an atomic variable.
type DataAtomic struct {
	view
}

func (a *DataAtomic) Sort() DataSort { return SortAtomic }

// Type returns the element type.
func (a *DataAtomic) Type() dmr.AtomicType { return a.Variable().Type() }

// Count returns the number of elements: 1 for a scalar, otherwise the
// product of the dimension sizes.
func (a *DataAtomic) Count() int64 { return a.Variable().Count() }

// ElementSize returns the size of one element in bytes, or 0 when it is
// not fixed.
func (a *DataAtomic) ElementSize() int { return a.Type().Size() }

// Read copies the values selected by slices into dst, a container of the
// element type, starting at offset. It returns the number of values
// copied. A dst of the wrong type is an ErrSchema error; one too short to
// hold the values at offset is ErrOutOfRange.
func (a *DataAtomic) Read(slices []Slice, dst interface{}, offset int) (int, error) {
	arr, err := a.c.Read(slices)
	if err != nil {
		return 0, err
	}
	n, err := copyValues(dst, offset, arr)
	if err != nil {
		kind := ErrOutOfRange
		if errors.Is(err, errDestinationType) {
			kind = ErrSchema
		}
		return 0, newError(kind, "read", a.Variable().FQN(), err)
	}
	return n, nil
}

// ReadAt returns the element at row-major position i.
func (a *DataAtomic) ReadAt(i int64) (interface{}, error) {
	v := a.Variable()
	if i < 0 || i >= v.Count() {
		return nil, errorf(ErrOutOfRange, "read index", v.FQN(), "position %d outside [0, %d)", i, v.Count())
	}
	return a.c.ReadIndex(IndexOf(i, v.Shape()))
}

// ReadAll returns every element as a typed array.
func (a *DataAtomic) ReadAll() (interface{}, error) {
	return a.c.Read(Wholes(a.Variable().Shape()))
}

type fields struct {
	view
}

func (fields) compound() {}

// FieldCount returns the number of fields.
func (f fields) FieldCount() int { return len(f.Variable().Fields()) }

// Field returns the view of field i.
func (f fields) Field(i int) (DataVariable, error) {
	c, err := f.c.Field(i)
	if err != nil {
		return nil, err
	}
	return View(c)
}

// FieldByName returns the view of the named field.
func (f fields) FieldByName(name string) (DataVariable, error) {
	c, err := f.c.FieldByName(name)
	if err != nil {
		return nil, err
	}
	return View(c)
}

// DataStructure is the view of one structure instance.
type DataStructure struct {
	fields
}

func (s *DataStructure) Sort() DataSort { return SortStructure }

// DataRecord is the view of one record of a sequence. It behaves like a
// structure whose fields are the sequence's fields.
type DataRecord struct {
	fields
}

func (r *DataRecord) Sort() DataSort { return SortRecord }

// Index returns the record number.
func (r *DataRecord) Index() int64 { return r.c.Position() }

// DataSequence is the view of one sequence instance.
type DataSequence struct {
	view
}

func (s *DataSequence) Sort() DataSort { return SortSequence }
func (s *DataSequence) compound()      {}

// RecordCount returns the number of records, or UnknownCount.
func (s *DataSequence) RecordCount() (int64, error) {
	return s.c.RecordCount()
}

// ReadRecord returns record i.
func (s *DataSequence) ReadRecord(i int64) (*DataRecord, error) {
	c, err := s.c.Record(i)
	if err != nil {
		return nil, err
	}
	return &DataRecord{fields{view{c: c}}}, nil
}

// Records iterates over the records in order. Iteration stops after the
// last record, at the first error, or when the caller breaks out; an
// unknown record count is handled by reading until the backend reports
// the end.
func (s *DataSequence) Records() iter.Seq2[*DataRecord, error] {
	return func(yield func(*DataRecord, error) bool) {
		n, err := s.RecordCount()
		if err != nil {
			yield(nil, err)
			return
		}
		for i := int64(0); n == UnknownCount || i < n; i++ {
			rec, err := s.ReadRecord(i)
			if n == UnknownCount && errors.Is(err, io.EOF) {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// DataCompoundArray is the view of an array of structures or sequences.
type DataCompoundArray struct {
	view
}

func (a *DataCompoundArray) Sort() DataSort { return SortCompoundArray }

// ElementSort returns SortStructure or SortSequence.
func (a *DataCompoundArray) ElementSort() DataSort {
	if a.Variable().Sort() == dmr.SortSequence {
		return SortSequence
	}
	return SortStructure
}

// Count returns the number of elements.
func (a *DataCompoundArray) Count() int64 { return a.Variable().Count() }

// Read returns the views of the elements selected by slices.
func (a *DataCompoundArray) Read(slices []Slice) ([]DataCompound, error) {
	res, err := a.c.Read(slices)
	if err != nil {
		return nil, err
	}
	cursors := res.([]*Cursor)
	out := make([]DataCompound, len(cursors))
	for i, c := range cursors {
		if out[i], err = compoundView(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReadAt returns the view of the element at row-major position i.
func (a *DataCompoundArray) ReadAt(i int64) (DataCompound, error) {
	v := a.Variable()
	if i < 0 || i >= v.Count() {
		return nil, errorf(ErrOutOfRange, "read index", v.FQN(), "position %d outside [0, %d)", i, v.Count())
	}
	res, err := a.c.ReadIndex(IndexOf(i, v.Shape()))
	if err != nil {
		return nil, err
	}
	return compoundView(res.(*Cursor))
}

// DataDataset is the entry point to the data of an open session.
type DataDataset struct {
	dsp    DSP
	schema *dmr.Dataset
}

// NewDataDataset returns the data view of an open session.
func NewDataDataset(d DSP) (*DataDataset, error) {
	ds, err := d.DMR()
	if err != nil {
		return nil, err
	}
	return &DataDataset{dsp: d, schema: ds}, nil
}

func (d *DataDataset) Sort() DataSort { return SortDataset }

// DSP returns the session behind the view.
func (d *DataDataset) DSP() DSP { return d.dsp }

// Schema returns the dataset's schema.
func (d *DataDataset) Schema() *dmr.Dataset { return d.schema }

// Variables returns the top-level variables in schema order.
func (d *DataDataset) Variables() []*dmr.Variable { return d.schema.TopVariables() }

// VariableData returns the view of a top-level variable.
func (d *DataDataset) VariableData(v *dmr.Variable) (DataVariable, error) {
	c, err := d.dsp.VariableData(v)
	if err != nil {
		return nil, err
	}
	return View(c)
}

// Find returns the view of the top-level variable with the given FQN.
func (d *DataDataset) Find(fqn string) (DataVariable, error) {
	v := d.schema.Find(fqn)
	if v == nil {
		return nil, errorf(ErrSchema, "find", fqn, "no such variable in %s", d.dsp.Location())
	}
	return d.VariableData(v)
}

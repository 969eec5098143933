// Package printer renders a dataset as text: its DMR document followed by
// a nested dump of every top-level variable's data.
package printer

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/robert-malhotra/go-dap4/dap4"
	"github.com/robert-malhotra/go-dap4/dap4/dmr"
)

// DefaultColumns is the number of atomic values printed per line.
const DefaultColumns = 8

// Printer writes dumps to an io.Writer. Write errors are sticky: after
// the first one nothing more is written and every method returns it.
type Printer struct {
	w       io.Writer
	depth   int
	columns int
	err     error
}

// Option configures a Printer.
type Option func(*Printer)

// WithColumns sets the number of atomic values per line.
func WithColumns(n int) Option {
	return func(p *Printer) {
		if n > 0 {
			p.columns = n
		}
	}
}

// New returns a printer writing to w.
func New(w io.Writer, opts ...Option) *Printer {
	p := &Printer{w: w, columns: DefaultColumns}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Printer) line(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, "%s%s\n", strings.Repeat("  ", p.depth), fmt.Sprintf(format, args...))
}

// Print writes the DMR document, its checksum when enabled, then the
// data of every top-level variable.
func (p *Printer) Print(dd *dap4.DataDataset) error {
	if err := p.PrintDMR(dd); err != nil {
		return err
	}
	return p.PrintData(dd)
}

// PrintDMR writes the DMR XML document of the dataset.
func (p *Printer) PrintDMR(dd *dap4.DataDataset) error {
	if p.err != nil {
		return p.err
	}
	if err := dmr.WriteXML(p.w, dd.Schema()); err != nil {
		p.err = err
		return err
	}
	p.line("")
	sum, ok, err := dd.DMRChecksum()
	if err != nil {
		return err
	}
	if ok {
		p.line("<Checksum dmr=\"0x%08x\"/>", sum)
	}
	return p.err
}

// PrintData writes a <data> block with every top-level variable in schema
// order, each followed by its checksum when the session enables them.
func (p *Printer) PrintData(dd *dap4.DataDataset) error {
	p.line("<data>")
	for _, v := range dd.Variables() {
		dv, err := dd.VariableData(v)
		if err != nil {
			return err
		}
		if err := p.PrintVariable(dv); err != nil {
			return err
		}
		sum, ok, err := dd.Checksum(v)
		if err != nil {
			return err
		}
		if ok {
			alg, err := dd.ChecksumAlgorithm()
			if err != nil {
				return err
			}
			p.line("<Checksum name=%q %s=\"0x%08x\"/>", v.Name(), alg, sum)
		}
	}
	p.line("</data>")
	return p.err
}

// PrintVariable writes the data below one view.
func (p *Printer) PrintVariable(dv dap4.DataVariable) error {
	if err := p.variable(dv, ""); err != nil {
		return err
	}
	return p.err
}

func (p *Printer) variable(dv dap4.DataVariable, indices string) error {
	v := dv.Variable()
	switch dv.Sort() {
	case dap4.SortAtomic:
		return p.atomic(dv.(*dap4.DataAtomic))
	case dap4.SortStructure:
		s := dv.(*dap4.DataStructure)
		return p.block("Structure", v.Name(), indices, func() error {
			return p.fields(s.FieldCount(), s.Field)
		})
	case dap4.SortRecord:
		r := dv.(*dap4.DataRecord)
		p.line("<Record>")
		p.depth++
		err := p.fields(r.FieldCount(), r.Field)
		p.depth--
		p.line("</Record>")
		return err
	case dap4.SortSequence:
		s := dv.(*dap4.DataSequence)
		return p.block("Sequence", v.Name(), indices, func() error {
			for rec, err := range s.Records() {
				if err != nil {
					return err
				}
				if err := p.child(rec); err != nil {
					return err
				}
			}
			return nil
		})
	case dap4.SortCompoundArray:
		a := dv.(*dap4.DataCompoundArray)
		shape := v.Shape()
		for i := int64(0); i < a.Count(); i++ {
			elem, err := a.ReadAt(i)
			if err != nil {
				return err
			}
			err = p.variable(elem, indexString(dap4.IndexOf(i, shape)))
			if rerr := elem.Cursor().Release(); err == nil {
				err = rerr
			}
			if err != nil {
				return err
			}
		}
		return nil
	case dap4.SortDataset:
		return fmt.Errorf("printing %s: a dataset is not a variable", v.FQN())
	}
	return fmt.Errorf("printing %s: unknown data sort %v", v.FQN(), dv.Sort())
}

func (p *Printer) block(kind, name, indices string, body func() error) error {
	if indices != "" {
		p.line("<%s name=%q indices=%q>", kind, name, indices)
	} else {
		p.line("<%s name=%q>", kind, name)
	}
	p.depth++
	err := body()
	p.depth--
	p.line("</%s>", kind)
	return err
}

func (p *Printer) fields(n int, field func(int) (dap4.DataVariable, error)) error {
	for i := 0; i < n; i++ {
		f, err := field(i)
		if err != nil {
			return err
		}
		if err := p.child(f); err != nil {
			return err
		}
	}
	return nil
}

// child prints a field or record and releases its cursor.
func (p *Printer) child(dv dap4.DataVariable) error {
	err := p.variable(dv, "")
	if rerr := dv.Cursor().Release(); err == nil {
		err = rerr
	}
	return err
}

func (p *Printer) atomic(a *dap4.DataAtomic) error {
	t := a.Type()
	all, err := a.ReadAll()
	if err != nil {
		return err
	}
	p.line("<%v name=%q>", t, a.Variable().Name())
	p.depth++
	n := dap4.ArrayLen(all)
	row := make([]string, 0, p.columns)
	for i := 0; i < n; i++ {
		row = append(row, ValueString(dap4.ValueAt(all, i), t))
		if len(row) == p.columns || i == n-1 {
			p.line("%s", strings.Join(row, ", "))
			row = row[:0]
		}
	}
	p.depth--
	p.line("</%v>", t)
	return nil
}

func indexString(ix dap4.Index) string {
	parts := make([]string, len(ix.Indices))
	for i, n := range ix.Indices {
		parts[i] = strconv.FormatInt(n, 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// ValueString formats one element of type t. Unsigned types are printed
// from the bit pattern of their signed container values.
func ValueString(value interface{}, t dmr.AtomicType) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case int8:
		if t.IsUnsigned() {
			return strconv.FormatUint(uint64(uint8(v)), 10)
		}
		return strconv.FormatInt(int64(v), 10)
	case int16:
		if t.IsUnsigned() {
			return strconv.FormatUint(uint64(uint16(v)), 10)
		}
		return strconv.FormatInt(int64(v), 10)
	case int32:
		if t.IsUnsigned() {
			return strconv.FormatUint(uint64(uint32(v)), 10)
		}
		return strconv.FormatInt(int64(v), 10)
	case int64:
		if t.IsUnsigned() {
			return strconv.FormatUint(uint64(v), 10)
		}
		return strconv.FormatInt(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case byte:
		return strconv.QuoteRune(rune(v))
	case string:
		return strconv.Quote(v)
	case []byte:
		return "0x" + hex.EncodeToString(v)
	}
	return fmt.Sprint(value)
}

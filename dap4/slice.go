package dap4

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Slice selects the positions Start, Start+Stride, ... strictly below
// Stop in one dimension. Start == Stop selects nothing and is legal at any
// point up to and including the dimension size, so an empty slice may sit
// at the end: splitting [0, n) at k gives [0, k) and [k, n) for every k
// in [0, n].
type Slice struct {
	Start  int64
	Stop   int64
	Stride int64
}

// NewSlice returns a validated slice.
func NewSlice(start, stop, stride int64) (Slice, error) {
	s := Slice{Start: start, Stop: stop, Stride: stride}
	if stride < 1 {
		return s, fmt.Errorf("slice %v: stride must be positive", s)
	}
	if start < 0 || stop < start {
		return s, fmt.Errorf("slice %v: need 0 <= start <= stop", s)
	}
	return s, nil
}

// Whole selects all n positions of a dimension.
func Whole(n int64) Slice { return Slice{Start: 0, Stop: n, Stride: 1} }

// Point selects the single position i.
func Point(i int64) Slice { return Slice{Start: i, Stop: i + 1, Stride: 1} }

// Wholes returns one Whole slice per dimension of shape.
func Wholes(shape []int64) []Slice {
	slices := make([]Slice, len(shape))
	for i, n := range shape {
		slices[i] = Whole(n)
	}
	return slices
}

// Count returns the number of positions selected.
func (s Slice) Count() int64 {
	if s.Stride < 1 || s.Stop <= s.Start {
		return 0
	}
	return (s.Stop - s.Start + s.Stride - 1) / s.Stride
}

// At returns the i'th selected position.
func (s Slice) At(i int64) int64 { return s.Start + i*s.Stride }

// Last returns the last selected position, or Start-1 if none is.
func (s Slice) Last() int64 {
	n := s.Count()
	if n == 0 {
		return s.Start - 1
	}
	return s.At(n - 1)
}

// String formats s in constraint notation: [i], [start:last] or
// [start:stride:last], with last inclusive.
func (s Slice) String() string {
	switch {
	case s.Count() == 1:
		return "[" + strconv.FormatInt(s.Start, 10) + "]"
	case s.Stride == 1:
		return fmt.Sprintf("[%d:%d]", s.Start, s.Last())
	default:
		return fmt.Sprintf("[%d:%d:%d]", s.Start, s.Stride, s.Last())
	}
}

// check validates s against a dimension of the given size. An empty slice
// with Start == Stop == size passes.
func (s Slice) check(size int64) error {
	if s.Stride < 1 {
		return fmt.Errorf("slice %v: stride %d must be positive", s, s.Stride)
	}
	if s.Start < 0 || s.Start > s.Stop {
		return fmt.Errorf("slice start %d, stop %d: need 0 <= start <= stop", s.Start, s.Stop)
	}
	if s.Stop > size {
		return fmt.Errorf("slice %v exceeds dimension size %d", s, size)
	}
	return nil
}

func checkSlices(slices []Slice, shape []int64) error {
	if len(slices) != len(shape) {
		return fmt.Errorf("got %d slices for rank %d", len(slices), len(shape))
	}
	for d, s := range slices {
		if err := s.check(shape[d]); err != nil {
			return fmt.Errorf("dimension %d: %w", d, err)
		}
	}
	return nil
}

// ParseSlices parses a constraint such as "[0:1][0:2:5][]" against a
// shape. An empty bracket selects the whole dimension.
func ParseSlices(expr string, shape []int64) ([]Slice, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Wholes(shape), nil
	}
	var slices []Slice
	for expr != "" {
		if expr[0] != '[' {
			return nil, fmt.Errorf("constraint %q: expected '['", expr)
		}
		end := strings.IndexByte(expr, ']')
		if end < 0 {
			return nil, fmt.Errorf("constraint %q: missing ']'", expr)
		}
		d := len(slices)
		if d >= len(shape) {
			return nil, fmt.Errorf("constraint has more than %d dimensions", len(shape))
		}
		s, err := parseSlice(expr[1:end], shape[d])
		if err != nil {
			return nil, fmt.Errorf("dimension %d: %w", d, err)
		}
		slices = append(slices, s)
		expr = expr[end+1:]
	}
	if len(slices) != len(shape) {
		return nil, fmt.Errorf("constraint has %d dimensions, variable has %d", len(slices), len(shape))
	}
	return slices, nil
}

func parseSlice(body string, size int64) (Slice, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Whole(size), nil
	}
	parts := strings.Split(body, ":")
	nums := make([]int64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return Slice{}, fmt.Errorf("parsing %q: %w", body, err)
		}
		nums[i] = n
	}
	switch len(nums) {
	case 1:
		return NewSlice(nums[0], nums[0]+1, 1)
	case 2:
		return NewSlice(nums[0], nums[1]+1, 1)
	case 3:
		return NewSlice(nums[0], nums[2]+1, nums[1])
	}
	return Slice{}, fmt.Errorf("parsing %q: too many fields", body)
}

// Index is a coordinate into a node's shape.
type Index struct {
	Indices []int64
	Dims    []int64
}

// IndexOf unflattens a row-major offset into a coordinate of dims.
func IndexOf(offset int64, dims []int64) Index {
	ix := Index{Indices: make([]int64, len(dims)), Dims: dims}
	for d := len(dims) - 1; d >= 0; d-- {
		if dims[d] > 0 {
			ix.Indices[d] = offset % dims[d]
			offset /= dims[d]
		}
	}
	return ix
}

// Rank returns the number of coordinates.
func (ix Index) Rank() int { return len(ix.Indices) }

// Offset flattens the coordinate in row-major order.
func (ix Index) Offset() int64 {
	var off int64
	for d, i := range ix.Indices {
		off = off*ix.Dims[d] + i
	}
	return off
}

func (ix Index) String() string {
	var b strings.Builder
	for _, i := range ix.Indices {
		b.WriteByte('[')
		b.WriteString(strconv.FormatInt(i, 10))
		b.WriteByte(']')
	}
	return b.String()
}

func (ix Index) check(shape []int64) error {
	if len(ix.Indices) != len(shape) {
		return fmt.Errorf("index %v has rank %d, variable has rank %d", ix, len(ix.Indices), len(shape))
	}
	if len(ix.Dims) != 0 && len(ix.Dims) != len(shape) {
		return fmt.Errorf("index %v has %d dims for rank %d", ix, len(ix.Dims), len(shape))
	}
	for d, i := range ix.Indices {
		if i < 0 || i >= shape[d] {
			return fmt.Errorf("index %v: position %d outside [0, %d) in dimension %d", ix, i, shape[d], d)
		}
	}
	return nil
}

// Odometer steps through the coordinates selected by a slice list in
// row-major order.
type Odometer struct {
	slices  []Slice
	shape   []int64
	strides []int64
	counter []int64
	total   int64
	started bool
	done    bool
}

// NewOdometer validates slices against shape and returns an odometer
// positioned before the first coordinate.
func NewOdometer(slices []Slice, shape []int64) (*Odometer, error) {
	if err := checkSlices(slices, shape); err != nil {
		return nil, err
	}
	o := &Odometer{
		slices:  slices,
		shape:   shape,
		strides: rowStrides(shape),
		counter: make([]int64, len(slices)),
		total:   selectionCount(slices),
	}
	return o, nil
}

// Count returns the number of coordinates the odometer visits.
func (o *Odometer) Count() int64 { return o.total }

// Next advances to the next coordinate and reports whether there is one.
func (o *Odometer) Next() bool {
	if o.done || o.total == 0 {
		return false
	}
	if !o.started {
		o.started = true
		return true
	}
	for d := len(o.counter) - 1; d >= 0; d-- {
		o.counter[d]++
		if o.counter[d] < o.slices[d].Count() {
			return true
		}
		o.counter[d] = 0
	}
	o.done = true
	return false
}

// Index returns the current coordinate in the source shape.
func (o *Odometer) Index() Index {
	ix := Index{Indices: make([]int64, len(o.counter)), Dims: o.shape}
	for d, c := range o.counter {
		ix.Indices[d] = o.slices[d].At(c)
	}
	return ix
}

// Offset returns the row-major source offset of the current coordinate.
func (o *Odometer) Offset() int64 {
	var off int64
	for d, c := range o.counter {
		off += o.slices[d].At(c) * o.strides[d]
	}
	return off
}

// Offsets returns the flattened source positions selected by slices, in
// row-major selection order.
func Offsets(slices []Slice, shape []int64) ([]int64, error) {
	o, err := NewOdometer(slices, shape)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, o.Count())
	for o.Next() {
		out = append(out, o.Offset())
	}
	return out, nil
}

func selectionCount(slices []Slice) int64 {
	n := int64(1)
	for _, s := range slices {
		n *= s.Count()
	}
	return n
}

func rowStrides(shape []int64) []int64 {
	strides := make([]int64, len(shape))
	stride := int64(1)
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = stride
		stride *= shape[d]
	}
	return strides
}

// Gather extracts the selection described by slices from src, a slice
// holding a row-major array of the given shape. The result is a new slice
// of the same type.
func Gather(src interface{}, shape []int64, slices []Slice) (interface{}, error) {
	sv := reflect.ValueOf(src)
	if sv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("gather: source must be a slice, got %T", src)
	}
	if err := checkSlices(slices, shape); err != nil {
		return nil, err
	}
	if want := product(shape); int64(sv.Len()) < want {
		return nil, fmt.Errorf("gather: source has %d elements, shape needs %d", sv.Len(), want)
	}

	n := selectionCount(slices)
	dst := reflect.MakeSlice(sv.Type(), int(n), int(n))
	if len(shape) == 0 {
		if n > 0 {
			dst.Index(0).Set(sv.Index(0))
		}
		return dst.Interface(), nil
	}
	if n == 0 {
		return dst.Interface(), nil
	}

	dstStrides := make([]int64, len(slices))
	dstStrides[len(slices)-1] = 1
	for d := len(slices) - 2; d >= 0; d-- {
		dstStrides[d] = dstStrides[d+1] * slices[d+1].Count()
	}
	gatherRecursive(sv, dst, slices, rowStrides(shape), dstStrides, 0, 0, 0)
	return dst.Interface(), nil
}

// gatherRecursive copies one dimension of the selection, copying the
// innermost dimension as a block when it is contiguous.
func gatherRecursive(src, dst reflect.Value, slices []Slice, srcStrides, dstStrides []int64, srcOffset, dstOffset int64, dim int) {
	s := slices[dim]
	count := s.Count()
	if dim == len(slices)-1 {
		start := srcOffset + s.Start*srcStrides[dim]
		if s.Stride == 1 {
			reflect.Copy(dst.Slice(int(dstOffset), int(dstOffset+count)), src.Slice(int(start), int(start+count)))
			return
		}
		for i := int64(0); i < count; i++ {
			dst.Index(int(dstOffset + i)).Set(src.Index(int(start + i*s.Stride*srcStrides[dim])))
		}
		return
	}
	for i := int64(0); i < count; i++ {
		gatherRecursive(src, dst, slices, srcStrides, dstStrides,
			srcOffset+s.At(i)*srcStrides[dim],
			dstOffset+i*dstStrides[dim],
			dim+1)
	}
}

func product(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

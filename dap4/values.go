package dap4

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/robert-malhotra/go-dap4/dap4/dmr"
)

var (
	typeBytes   = reflect.TypeOf([]byte(nil))
	typeInt8s   = reflect.TypeOf([]int8(nil))
	typeInt16s  = reflect.TypeOf([]int16(nil))
	typeInt32s  = reflect.TypeOf([]int32(nil))
	typeInt64s  = reflect.TypeOf([]int64(nil))
	typeFloat32 = reflect.TypeOf([]float32(nil))
	typeFloat64 = reflect.TypeOf([]float64(nil))
	typeStrings = reflect.TypeOf([]string(nil))
	typeOpaques = reflect.TypeOf([][]byte(nil))
)

// ContainerType returns the slice type that holds values of type t:
//
//	Char            []byte
//	Int8, UInt8     []int8
//	Int16, UInt16   []int16
//	Int32, UInt32   []int32
//	Int64, UInt64   []int64
//	Float32         []float32
//	Float64         []float64
//	String, URL     []string
//	Opaque          [][]byte
//
// Unsigned types share the signed container of the same width; the bit
// pattern of every value is kept, so a UInt8 of 255 reads as int8(-1).
func ContainerType(t dmr.AtomicType) (reflect.Type, error) {
	switch t {
	case dmr.Char:
		return typeBytes, nil
	case dmr.Int8, dmr.UInt8:
		return typeInt8s, nil
	case dmr.Int16, dmr.UInt16:
		return typeInt16s, nil
	case dmr.Int32, dmr.UInt32:
		return typeInt32s, nil
	case dmr.Int64, dmr.UInt64:
		return typeInt64s, nil
	case dmr.Float32:
		return typeFloat32, nil
	case dmr.Float64:
		return typeFloat64, nil
	case dmr.String, dmr.URL:
		return typeStrings, nil
	case dmr.Opaque:
		return typeOpaques, nil
	}
	return nil, fmt.Errorf("no container for type %v", t)
}

// MakeArray allocates a zeroed container of n values of type t.
func MakeArray(t dmr.AtomicType, n int) (interface{}, error) {
	ct, err := ContainerType(t)
	if err != nil {
		return nil, err
	}
	return reflect.MakeSlice(ct, n, n).Interface(), nil
}

// Coerce converts values into the container of type t. It accepts the
// container itself, any slice of Go numbers for numeric types, a string
// or byte slice for Char, and single values, which become a one-element
// array. Integer conversions follow Go conversion rules, so unsigned
// sources keep their bit pattern in the signed container.
func Coerce(t dmr.AtomicType, values interface{}) (interface{}, error) {
	ct, err := ContainerType(t)
	if err != nil {
		return nil, err
	}
	if values == nil {
		return nil, fmt.Errorf("coercing nil to %v", t)
	}
	rv := reflect.ValueOf(values)
	if rv.Type() == ct {
		return values, nil
	}

	switch t {
	case dmr.Opaque:
		if b, ok := values.([]byte); ok {
			return [][]byte{b}, nil
		}
	case dmr.Char:
		if s, ok := values.(string); ok {
			return []byte(s), nil
		}
	}

	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		one := reflect.MakeSlice(reflect.SliceOf(rv.Type()), 1, 1)
		one.Index(0).Set(rv)
		rv = one
	}

	n := rv.Len()
	dst := reflect.MakeSlice(ct, n, n)
	elem := ct.Elem()
	for i := 0; i < n; i++ {
		e := rv.Index(i)
		for e.Kind() == reflect.Interface && !e.IsNil() {
			e = e.Elem()
		}
		if !convertible(e, elem) {
			return nil, fmt.Errorf("coercing element %d (%s) to %v", i, e.Type(), t)
		}
		dst.Index(i).Set(e.Convert(elem))
	}
	return dst.Interface(), nil
}

func convertible(v reflect.Value, to reflect.Type) bool {
	if !v.IsValid() {
		return false
	}
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		switch to.Kind() {
		case reflect.String, reflect.Slice:
			return false
		}
		return true
	case reflect.String:
		return to.Kind() == reflect.String
	case reflect.Slice:
		return v.Type().ConvertibleTo(to) && to.Kind() == reflect.Slice
	}
	return false
}

// ArrayLen returns the number of values in a container.
func ArrayLen(arr interface{}) int {
	rv := reflect.ValueOf(arr)
	if rv.Kind() != reflect.Slice {
		return 0
	}
	return rv.Len()
}

// ValueAt returns the i'th value of a container.
func ValueAt(arr interface{}, i int) interface{} {
	return reflect.ValueOf(arr).Index(i).Interface()
}

var errDestinationType = errors.New("destination type mismatch")

// copyValues copies src into dst starting at offset and returns the number
// of values copied. dst must be a container of the same type as src.
func copyValues(dst interface{}, offset int, src interface{}) (int, error) {
	dv := reflect.ValueOf(dst)
	sv := reflect.ValueOf(src)
	if dv.Kind() != reflect.Slice || dv.Type() != sv.Type() {
		return 0, fmt.Errorf("%w: %T does not match %T", errDestinationType, dst, src)
	}
	if offset < 0 || offset+sv.Len() > dv.Len() {
		return 0, fmt.Errorf("destination of length %d cannot hold %d values at offset %d", dv.Len(), sv.Len(), offset)
	}
	return reflect.Copy(dv.Slice(offset, dv.Len()), sv), nil
}
